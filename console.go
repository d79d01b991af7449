package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jroimartin/gocui"

	"ee/console"
	"ee/logger"
	"ee/script"
	"ee/system"
	"ee/vtlb"
)

/*
Memory monitor front end.

views:
	- map: the virtual address space, coalesced into regions
	- memory: hexdump starting at the cursor address
	- status: console output of the system and the script

keys:
	- arrow up/down: one line
	- page up/down: one screen
	- ctrl-c: quit
*/

const bytesPerLine = 16

type monitor struct {
	opts    options
	addr    uint32
	console *console.Gui
	sys     *system.System
	engine  *script.Engine
}

func (m *monitor) start(g *gocui.Gui) error {
	c, err := console.NewGui(g)
	if err != nil {
		return err
	}
	m.console = c
	l := logger.Discard()
	if m.opts.logPath != "" {
		l = logger.New(m.opts.logPath)
	}
	_ = c.WriteConsole("Starting EE memory monitor..")
	m.sys, m.engine, err = boot(m.opts, c, l)
	if err != nil {
		_ = c.WriteConsole(err.Error())
		return nil
	}
	return m.refresh(g)
}

// shutdown runs after the main loop has returned; the status view is gone,
// so the console is closed before halting.
func (m *monitor) shutdown() error {
	var err error
	if m.console != nil {
		err = m.console.Close()
	}
	if m.sys == nil {
		return err
	}
	return errors.Join(err, halt(m.opts, m.sys, m.engine))
}

func (m *monitor) refresh(g *gocui.Gui) error {
	if m.sys == nil {
		return nil
	}
	mv, err := g.View("map")
	if err != nil {
		return err
	}
	mv.Clear()
	renderMap(mv, m.sys.VTLB)

	v, err := g.View("memory")
	if err != nil {
		return err
	}
	v.Clear()
	v.Title = fmt.Sprintf("Memory %08x", m.addr)
	_, h := v.Size()
	renderMemory(v, m.sys, m.addr, h)
	return nil
}

// scroll moves the memory view by lines rows, or by screens when page is
// set.
func (m *monitor) scroll(lines int, page bool) func(*gocui.Gui, *gocui.View) error {
	return func(g *gocui.Gui, _ *gocui.View) error {
		n := lines
		if page {
			v, err := g.View("memory")
			if err != nil {
				return err
			}
			_, h := v.Size()
			n *= h
		}
		m.addr += uint32(n * bytesPerLine)
		return m.refresh(g)
	}
}

func (m *monitor) keybindings(g *gocui.Gui) error {
	bindings := []struct {
		key gocui.Key
		fn  func(*gocui.Gui, *gocui.View) error
	}{
		{gocui.KeyCtrlC, quit},
		{gocui.KeyArrowDown, m.scroll(1, false)},
		{gocui.KeyArrowUp, m.scroll(-1, false)},
		{gocui.KeyPgdn, m.scroll(1, true)},
		{gocui.KeyPgup, m.scroll(-1, true)},
	}
	for _, b := range bindings {
		if err := g.SetKeybinding("", b.key, gocui.ModNone, b.fn); err != nil {
			return err
		}
	}
	return nil
}

// gocui layout
func layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()
	// left -> virtual map
	if v, err := g.SetView("map", 0, 0, maxX/2-1, maxY-10); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Map"
	}

	// right -> memory
	if v, err := g.SetView("memory", maxX/2, 0, maxX-1, maxY-10); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Memory"
	}
	// down -> status
	if v, err := g.SetView("status", 0, maxY-9, maxX-1, maxY-1); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Status"
		v.Autoscroll = true
	}
	return nil
}

func quit(g *gocui.Gui, v *gocui.View) error {
	return gocui.ErrQuit
}

// renderMap writes one line per region of the virtual space.
func renderMap(w io.Writer, v *vtlb.VTLB) {
	for _, r := range v.Regions() {
		fmt.Fprintln(w, r)
	}
}

// renderMemory hexdumps lines rows from addr. Direct and handler pages go
// through the access engine; faulting pages print as "--" without raising
// anything.
func renderMemory(w io.Writer, sys *system.System, addr uint32, lines int) {
	mem := sys.Memory()
	for row := 0; row < lines; row++ {
		base := addr + uint32(row*bytesPerLine)
		var hex strings.Builder
		var text strings.Builder
		for i := uint32(0); i < bytesPerLine; i++ {
			a := base + i
			switch sys.VTLB.Lookup(a).Kind {
			case vtlb.Direct, vtlb.Handled:
				b := mem.Read8(a)
				fmt.Fprintf(&hex, "%02x ", b)
				if b >= 0x20 && b < 0x7f {
					text.WriteByte(b)
				} else {
					text.WriteByte('.')
				}
			default:
				hex.WriteString("-- ")
				text.WriteByte(' ')
			}
		}
		fmt.Fprintf(w, "%08x  %s %s\n", base, hex.String(), text.String())
	}
}
