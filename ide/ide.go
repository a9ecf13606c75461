// Package ide is a programmed I/O driver for a legacy two-channel ATA
// controller.
//
// The primary channel carries the filesystem disk. Its requests are queued
// and completed from the channel interrupt: Rw appends a buffer, starts the
// controller if it was idle and parks until Intr has finished the buffer.
// The secondary channel carries the swap disk, which ReadSwap and WriteSwap
// drive synchronously by polling, without the queue or interrupts.
//
// Caller contract violations and missing hardware are reported as
// *FatalError; the embedding system is expected to halt on them. Drive
// faults are returned as errors wrapping ata.ErrIOFault.
package ide

import (
	"errors"
	"log"
	"sync"

	"idedisk/ata"
	"idedisk/buf"
	"idedisk/logger"
)

// ProbeIterations bounds the presence probe status polling.
const ProbeIterations = 1000

// swap transfers are one page of eight sectors
const (
	SwapSectors = 8
	SwapSpan    = SwapSectors * ata.SectorSize
)

// device numbers of the two expected disks
const (
	FSDev   = 1 // primary slave
	SwapDev = 2 // secondary master
)

// DefaultFSSize is the filesystem size in blocks.
const DefaultFSSize = 1000

// State of a request on its trip through the driver
type State int

const (
	Submitted State = iota
	Queued
	Active
	Completed
)

func (s State) String() string {
	switch s {
	case Submitted:
		return "submitted"
	case Queued:
		return "queued"
	case Active:
		return "active"
	case Completed:
		return "completed"
	}
	return "unknown"
}

// Config of a driver. Zero values select the defaults.
type Config struct {
	FSSize  uint32
	FSDev   uint32
	SwapDev uint32

	// Lock serializes the queue, the controller and the swap path.
	Lock sync.Locker

	// Trace, when set, is called with the lock held on every request
	// state transition.
	Trace func(b *buf.Buf, s State)

	Log *log.Logger
}

// Stats counts driver activity
type Stats struct {
	Requests  int
	Completed int
	Faults    int
	Spurious  int
	MaxQueue  int

	SwapReads  int
	SwapWrites int
	SwapFaults int
}

// FatalError is an unrecoverable condition: missing hardware or a caller
// breaking the driver's contract.
type FatalError struct {
	Op  string
	Msg string
}

func (e *FatalError) Error() string {
	return "ide: " + e.Op + ": " + e.Msg
}

// IsFatal reports whether err is, or wraps, a *FatalError.
func IsFatal(err error) bool {
	var f *FatalError
	return errors.As(err, &f)
}

// Driver of one controller
type Driver struct {
	port ata.Port
	mu   sync.Locker
	cfg  Config

	// guarded by mu
	queue    queue
	haveFS   bool
	haveSwap bool
	halted   error
	stats    Stats

	log *log.Logger
}

// New returns a driver talking to the controller through port. Init must
// run before any I/O.
func New(port ata.Port, cfg Config) *Driver {
	if cfg.FSSize == 0 {
		cfg.FSSize = DefaultFSSize
	}
	if cfg.FSDev == 0 {
		cfg.FSDev = FSDev
	}
	if cfg.SwapDev == 0 {
		cfg.SwapDev = SwapDev
	}
	if cfg.Lock == nil {
		cfg.Lock = &sync.Mutex{}
	}
	cfg.Log = logger.OrDiscard(cfg.Log)
	return &Driver{
		port: port,
		mu:   cfg.Lock,
		cfg:  cfg,
		log:  cfg.Log,
	}
}

// Stats returns a copy of the counters
func (d *Driver) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// QueueLen returns the number of queued requests, the active one included
func (d *Driver) QueueLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queue.len()
}

func (d *Driver) fatal(op, msg string) error {
	err := &FatalError{Op: op, Msg: msg}
	d.log.Print(err)
	return err
}

func (d *Driver) trace(b *buf.Buf, s State) {
	if d.cfg.Trace != nil {
		d.cfg.Trace(b, s)
	}
}

// FSSize returns the filesystem size in blocks
func (d *Driver) FSSize() uint32 {
	return d.cfg.FSSize
}
