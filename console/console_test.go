package console

import (
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestSimpleSplitsLines(t *testing.T) {
	var sb strings.Builder
	c := NewSimple(&sb)

	tests := []struct {
		msg   string
		lines int
	}{
		{"Initializing EE memory map.\n", 1},
		{"one\ntwo\n\nthree", 3},
		{"\n\n", 0},
	}
	total := 0
	for _, tt := range tests {
		if err := c.WriteConsole(tt.msg); err != nil {
			t.Fatal(err)
		}
		total += tt.lines
		if c.Lines() != total {
			t.Errorf("after %q: %d lines, want %d", tt.msg, c.Lines(), total)
		}
	}
	if want := "Initializing EE memory map.\none\ntwo\nthree\n"; sb.String() != want {
		t.Errorf("output %q, want %q", sb.String(), want)
	}
}

func TestDiscard(t *testing.T) {
	var c Console = Discard{}
	if err := c.WriteConsole("x"); err != nil {
		t.Error(err)
	}
}

func TestGuiCloseDrainsFeeder(t *testing.T) {
	var mu sync.Mutex
	var shown []string
	c := newGui(func(s string) {
		mu.Lock()
		shown = append(shown, s)
		mu.Unlock()
	})

	for i := 0; i < 100; i++ {
		if err := c.WriteConsole("line\n"); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	n := len(shown)
	mu.Unlock()
	if n != 100 || c.Lines() != 100 {
		t.Errorf("shown %d lines, counted %d, want 100", n, c.Lines())
	}
	if err := c.WriteConsole("late"); !errors.Is(err, ErrClosed) {
		t.Errorf("WriteConsole after Close = %v, want ErrClosed", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}
