package console

import (
	"fmt"
	"sync"

	"github.com/jroimartin/gocui"
)

// Gui type definition
type Gui struct {
	consoleOut  chan string // string channel, to which the console data is sent to
	g           *gocui.Gui  // main gocui GUI object
	view        string      // name of the view the console writes to
	mu          sync.Mutex  // guards currentLine
	currentLine int         // counter to keep the position of the cursor
}

// NewGui returns a console writing to the gocui view called view and starts
// its output goroutine.
func NewGui(g *gocui.Gui, view string) *Gui {
	c := new(Gui)
	c.consoleOut = make(chan string)
	c.g = g
	c.view = view
	c.initGui()
	return c
}

// initGui starts the goroutine that owns the view
func (c *Gui) initGui() {
	go func() {
		for s := range c.consoleOut {
			c.g.Update(func(g *gocui.Gui) error {
				v, err := g.View(c.view)
				if err != nil {
					return err
				}
				fmt.Fprint(v, s)
				v.MoveCursor(0, 1, true)
				return nil
			})
		}
	}()
}

// WriteConsole displays a string on the console
func (c *Gui) WriteConsole(msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentLine += lines(msg, c.consoleOut)
	return nil
}
