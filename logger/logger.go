package logger

import (
	"io"
	"log"
	"os"
)

// New returns the emulator logger: stdout when path is empty, otherwise an
// append-mode log file.
func New(path string) *log.Logger {
	if len(path) == 0 {
		return log.New(os.Stdout, "EE ", log.Ldate|log.Ltime|log.Lshortfile)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0666)
	if err != nil {
		log.Fatal(err)
	}
	l := log.New(f, "EE ", log.Ldate|log.Ltime|log.Lshortfile)
	l.Printf("Initializing %s", path)
	return l
}

// Discard returns a logger that drops everything; tests and the monitor
// (which owns the terminal) use it.
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}
