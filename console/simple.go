package console

import (
	"io"
	"os"
	"sync"
)

// Simple console for headless runs: lines go to a writer
type Simple struct {
	consoleOut  chan string // string channel, to which the console data is sent to
	w           io.Writer
	mu          sync.Mutex // guards currentLine
	currentLine int        // counter of lines written
}

// NewSimple returns a console writing to w, or to stdout if w is nil.
func NewSimple(w io.Writer) *Simple {
	if w == nil {
		w = os.Stdout
	}
	c := new(Simple)
	c.consoleOut = make(chan string)
	c.w = w
	c.initSimple()
	return c
}

// initSimple starts the output goroutine
func (c *Simple) initSimple() {
	go func() {
		for s := range c.consoleOut {
			io.WriteString(c.w, s)
		}
	}()
}

// WriteConsole displays a string on the console
func (c *Simple) WriteConsole(msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentLine += lines(msg, c.consoleOut)
	return nil
}
