package console

/*
Status output of the memory monitor.

Two implementations:
	- Gui: appends to the "status" view of the gocui front end
	- Simple: writes lines to a plain writer, used when stdout is not a
	  terminal and by tests

Other parts of the emulator (system, script) report through this interface
instead of logging, so messages meant for the user end up on screen.
*/

// Console receives status messages.
type Console interface {
	WriteConsole(msg string) error
}

// Discard drops every message.
type Discard struct{}

func (Discard) WriteConsole(string) error { return nil }
