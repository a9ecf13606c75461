package logger

import (
	"io"
	"log"
	"os"
)

const flags = log.Ldate | log.Ltime | log.Lshortfile

// New returns the emulator logger: stdout when path is empty, the file at
// path (appended to) otherwise.
func New(path string) *log.Logger {
	if len(path) == 0 {
		return log.New(os.Stdout, "IDE ", flags)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0666)
	if err != nil {
		log.Fatal(err)
	}
	l := log.New(f, "IDE ", flags)
	l.Printf("Initializing %s", path)
	return l
}

// Discard returns a logger that drops everything
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// OrDiscard returns l, or a discarding logger if l is nil
func OrDiscard(l *log.Logger) *log.Logger {
	if l == nil {
		return Discard()
	}
	return l
}
