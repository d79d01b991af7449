package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/jroimartin/gocui"
	"golang.org/x/term"

	"ee/codegen"
	"ee/console"
	"ee/logger"
	"ee/script"
	"ee/snapshot"
	"ee/system"
)

type options struct {
	script   string
	rom      string
	logPath  string
	debug    bool
	snapshot string
	restore  string
	addr     uint
	codegen  bool
}

func main() {
	var opts options
	flag.StringVar(&opts.script, "script", "", "Lua file run after the memory map is built")
	flag.StringVar(&opts.rom, "rom", "", "boot ROM image")
	flag.StringVar(&opts.logPath, "log", "", "log file (default: none in the monitor, stdout otherwise)")
	flag.BoolVar(&opts.debug, "debug", false, "log every default handler and register access")
	flag.StringVar(&opts.snapshot, "snapshot", "", "save tables and memory here on exit")
	flag.StringVar(&opts.restore, "restore", "", "restore tables and memory from this snapshot")
	flag.UintVar(&opts.addr, "addr", 0x80000000, "first address of the memory view")
	flag.BoolVar(&opts.codegen, "codegen", false, "print the inline access sequences for this memory map")
	flag.Parse()

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		if err := runPlain(opts); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		log.Panicln("Couldn't create gui!")
	}
	defer g.Close()

	m := &monitor{opts: opts, addr: uint32(opts.addr)}
	g.SetManagerFunc(layout)
	if err := m.keybindings(g); err != nil {
		log.Panicln(err)
	}

	// build the machine once the views exist
	g.Update(m.start)

	if err := g.MainLoop(); err != nil && err != gocui.ErrQuit {
		log.Panicln(err)
	}
	if err := m.shutdown(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// boot builds the system and applies the restore and script options, in
// that order of handler registration: memory map, script, snapshot.
func boot(opts options, c console.Console, l *log.Logger) (*system.System, *script.Engine, error) {
	cfg := system.DefaultConfig()
	cfg.ROMPath = opts.rom
	cfg.Debug = opts.debug

	sys, err := system.New(cfg, c, l)
	if err != nil {
		return nil, nil, err
	}
	var engine *script.Engine
	if opts.script != "" {
		engine = script.New(sys.VTLB, c, l)
		if err := engine.DoFile(opts.script); err != nil {
			engine.Close()
			sys.Close()
			return nil, nil, err
		}
		_ = c.WriteConsole(fmt.Sprintf("Script %s done.", opts.script))
	}
	if opts.restore != "" {
		if err := snapshot.Load(opts.restore, sys.VTLB); err != nil {
			if engine != nil {
				engine.Close()
			}
			sys.Close()
			return nil, nil, err
		}
		_ = c.WriteConsole(fmt.Sprintf("Snapshot %s restored.", opts.restore))
	}
	return sys, engine, nil
}

// halt saves the snapshot if asked to and releases everything.
func halt(opts options, sys *system.System, engine *script.Engine) error {
	var err error
	if opts.snapshot != "" {
		err = snapshot.Save(opts.snapshot, sys.VTLB)
	}
	if engine != nil {
		engine.Close()
	}
	if cerr := sys.Close(); err == nil {
		err = cerr
	}
	return err
}

// runPlain dumps the map and one screen of memory to stdout.
func runPlain(opts options) error {
	l := logger.Discard()
	if opts.logPath != "" || opts.debug {
		l = logger.New(opts.logPath)
	}
	c := console.NewSimple(os.Stdout)
	sys, engine, err := boot(opts, c, l)
	if err != nil {
		return err
	}
	renderMap(os.Stdout, sys.VTLB)
	fmt.Fprintln(os.Stdout)
	renderMemory(os.Stdout, sys, uint32(opts.addr), 16)
	if opts.codegen {
		fmt.Fprintln(os.Stdout)
		if err := renderCodegen(os.Stdout, sys); err != nil {
			return errors.Join(err, halt(opts, sys, engine))
		}
	}
	return halt(opts, sys, engine)
}

// renderCodegen prints the AMD64 sequence of every access kind against the
// live table addresses.
func renderCodegen(w io.Writer, sys *system.System) error {
	layout := codegen.NewLayout(sys.VTLB, &codegen.ThunkTable{})
	for _, acc := range codegen.Accesses() {
		asm := codegen.NewAMD64(layout)
		codegen.Emit(asm, acc)
		if err := asm.Err(); err != nil {
			return err
		}
		fmt.Fprintf(w, "; %s\n%s", acc, codegen.Disassemble(asm.Bytes()))
	}
	return nil
}
