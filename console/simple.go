package console

import (
	"io"
	"strings"
	"sync"
)

// Simple console type definition
type Simple struct {
	mu          sync.Mutex
	out         io.Writer
	currentLine int // counter to keep the position of the cursor
}

// NewSimple returns a console writing whole lines to out.
func NewSimple(out io.Writer) *Simple {
	return &Simple{out: out}
}

// WriteConsole writes every non-empty line of msg.
func (c *Simple) WriteConsole(msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, line := range strings.Split(msg, "\n") {
		if line != "" {
			if _, err := io.WriteString(c.out, line+"\n"); err != nil {
				return err
			}
			c.currentLine++
		}
	}
	return nil
}

// Lines returns the number of lines written so far.
func (c *Simple) Lines() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentLine
}
