package console

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jroimartin/gocui"
)

var ErrClosed = errors.New("console: closed")

// Gui type definition
type Gui struct {
	consoleOut  chan string   // string channel, to which the console data is sent to
	done        chan struct{} // closed once the feeder has drained consoleOut
	show        func(string)  // puts one line on screen
	mu          sync.Mutex
	closed      bool
	currentLine int // counter to keep the position of the cursor
}

// NewGui returns a console writing to the "status" view. The view must
// exist already.
func NewGui(g *gocui.Gui) (*Gui, error) {
	v, err := g.View("status")
	if err != nil {
		return nil, err
	}
	// gocui only allows view updates from Update callbacks
	return newGui(func(s string) {
		g.Update(func(g *gocui.Gui) error {
			fmt.Fprint(v, s)
			return nil
		})
	}), nil
}

func newGui(show func(string)) *Gui {
	c := &Gui{
		consoleOut: make(chan string, 64),
		done:       make(chan struct{}),
		show:       show,
	}
	c.initGui()
	return c
}

// initGui starts the goroutine feeding the view.
func (c *Gui) initGui() {
	go func() {
		defer close(c.done)
		for s := range c.consoleOut {
			c.show(s)
		}
	}()
}

// WriteConsole displays a string on the console
func (c *Gui) WriteConsole(msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	for _, line := range strings.Split(msg, "\n") {
		if line != "" {
			c.consoleOut <- line + "\n"
			c.currentLine++
		}
	}
	return nil
}

// Close stops the feeder once every pending line has been handed over.
func (c *Gui) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.consoleOut)
	c.mu.Unlock()
	<-c.done
	return nil
}

// Lines returns the number of lines written so far.
func (c *Gui) Lines() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentLine
}
