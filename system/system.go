package system

import (
	"fmt"
	"io"
	"log"
	"sync"

	"idedisk/ata"
	"idedisk/buf"
	"idedisk/console"
	"idedisk/disk"
	"idedisk/ide"
	"idedisk/interrupts"
	"idedisk/iobus"
	"idedisk/logger"
)

// default sizes of the disks created in memory when no image is given
const (
	BootSectors = 64
	SwapSectors = 8192
)

// HistorySize is the number of request transitions kept for display
const HistorySize = 64

// Config of the emulated machine. Empty image paths select in-memory disks.
type Config struct {
	FSImage   string
	SwapImage string
	BootImage string

	// FSSize is the filesystem size in blocks
	FSSize uint32

	LogPath  string
	Headless bool
}

// System definition: the controller, its disks and the driver on top.
type System struct {
	Driver *ide.Driver

	bus       *iobus.Bus
	primary   *disk.Channel
	secondary *disk.Channel
	drives    []*disk.Drive

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu    sync.Mutex
	acked int // swap channel interrupts dropped by the router

	history *history

	console console.Console
	log     *log.Logger
}

// InitializeSystem builds the emulated controller, attaches the disks and
// starts the interrupt router. Boot must run before any I/O.
func InitializeSystem(cfg Config, c console.Console, l *log.Logger) (*System, error) {
	if cfg.FSSize == 0 {
		cfg.FSSize = ide.DefaultFSSize
	}
	sys := new(System)
	sys.console = c
	sys.log = logger.OrDiscard(l)
	sys.stop = make(chan struct{})
	sys.history = newHistory(HistorySize)

	sys.bus = iobus.New(sys.log)
	sys.primary = disk.NewChannel(0, ata.Primary, interrupts.IRQIDE0, sys.bus, sys.log)
	sys.secondary = disk.NewChannel(1, ata.Secondary, interrupts.IRQIDE1, sys.bus, sys.log)
	for _, ch := range []*disk.Channel{sys.primary, sys.secondary} {
		base, end, ctrl := ch.Ports()
		sys.bus.RegisterDevice(base, end, ch)
		sys.bus.RegisterDevice(ctrl, ctrl, ch)
	}

	mounts := []struct {
		ch      *disk.Channel
		unit    int
		image   string
		sectors uint32
	}{
		{sys.primary, 0, cfg.BootImage, BootSectors},
		{sys.primary, ide.FSDev & 1, cfg.FSImage, cfg.FSSize * buf.SectorsPerBlock},
		{sys.secondary, ide.SwapDev & 1, cfg.SwapImage, SwapSectors},
	}
	for _, m := range mounts {
		d, err := sys.mount(m.image, m.sectors)
		if err != nil {
			sys.closeDrives()
			return nil, err
		}
		m.ch.Attach(m.unit, d)
	}

	sys.Driver = ide.New(sys.bus, ide.Config{
		FSSize: cfg.FSSize,
		Trace:  sys.trace,
		Log:    sys.log,
	})

	sys.wg.Add(1)
	go sys.route()
	return sys, nil
}

// mount opens image, or makes an in-memory disk of sectors if image is empty
func (sys *System) mount(image string, sectors uint32) (*disk.Drive, error) {
	if image == "" {
		d := disk.NewMemDrive(sectors)
		sys.drives = append(sys.drives, d)
		return d, nil
	}
	d, err := disk.OpenImage(image)
	if err != nil {
		return nil, err
	}
	if d.Sectors() < sectors {
		d.Close()
		return nil, fmt.Errorf("system: image %s has %d sectors, need %d", image, d.Sectors(), sectors)
	}
	sys.drives = append(sys.drives, d)
	sys.log.Printf("mounted %s, %d sectors", image, d.Sectors())
	return d, nil
}

// route delivers controller interrupts. The primary channel's go to the
// driver; the swap path polls, so the secondary's are acknowledged and
// dropped.
func (sys *System) route() {
	defer sys.wg.Done()
	for {
		select {
		case i := <-sys.bus.Interrupts:
			switch i.IRQ {
			case interrupts.IRQIDE0:
				sys.Driver.Intr()
			case interrupts.IRQIDE1:
				sys.mu.Lock()
				sys.acked++
				sys.mu.Unlock()
			default:
				sys.log.Printf("unexpected interrupt %d from channel %d", i.IRQ, i.Channel)
			}
		case <-sys.stop:
			return
		}
	}
}

// Boot probes the disks. A missing disk halts the system.
func (sys *System) Boot() {
	sys.WriteConsole("Probing IDE channels.")
	sys.halt(sys.Driver.Init())
	sys.WriteConsole(fmt.Sprintf("ide: fs disk on %v, swap disk on %v", ata.Primary, ata.Secondary))
}

// Rw syncs b with the filesystem disk. Drive faults are returned; contract
// violations halt the system.
func (sys *System) Rw(b *buf.Buf) error {
	return sys.halt(sys.Driver.Rw(b))
}

// ReadSwap reads one swap page
func (sys *System) ReadSwap(secno uint32, dst []byte) error {
	return sys.halt(sys.Driver.ReadSwap(secno, dst))
}

// WriteSwap writes one swap page
func (sys *System) WriteSwap(secno uint32, src []byte) error {
	return sys.halt(sys.Driver.WriteSwap(secno, src))
}

// Halt is the panic value of a system stopped by a fatal driver error
type Halt struct {
	Err error
}

func (h *Halt) Error() string {
	return "halt: " + h.Err.Error()
}

func (h *Halt) Unwrap() error {
	return h.Err
}

// halt panics on fatal driver errors and passes everything else through
func (sys *System) halt(err error) error {
	if ide.IsFatal(err) {
		h := &Halt{Err: err}
		sys.WriteConsole("HALT: " + err.Error())
		sys.log.Print(h)
		panic(h)
	}
	return err
}

// Run calls fn and returns a halt raised inside it as a *Halt error. Other
// panics pass through.
func (sys *System) Run(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			h, ok := r.(*Halt)
			if !ok {
				panic(r)
			}
			err = h
		}
	}()
	return fn()
}

// Shutdown stops the interrupt router and releases the disk images. Calls
// after the first do nothing.
func (sys *System) Shutdown() error {
	var err error
	sys.stopOnce.Do(func() {
		close(sys.stop)
		sys.wg.Wait()
		err = sys.closeDrives()
	})
	return err
}

func (sys *System) closeDrives() error {
	var first error
	for _, d := range sys.drives {
		if err := d.Close(); err != nil && first == nil {
			first = err
		}
	}
	sys.drives = nil
	return first
}

// InjectBadSector marks lba of the filesystem disk, or of the swap disk if
// swap is set, as unusable.
func (sys *System) InjectBadSector(swap bool, lba uint32) {
	if swap {
		sys.secondary.BadSector(ide.SwapDev&1, lba)
		return
	}
	sys.primary.BadSector(ide.FSDev&1, lba)
}

// InjectCorruption damages lba of the filesystem disk, or of the swap disk
// if swap is set, so its next read fails the sector checksum.
func (sys *System) InjectCorruption(swap bool, lba uint32) error {
	if swap {
		return sys.secondary.Corrupt(ide.SwapDev&1, lba)
	}
	return sys.primary.Corrupt(ide.FSDev&1, lba)
}

// WriteConsole logs msg and shows it to the operator
func (sys *System) WriteConsole(msg string) error {
	sys.log.Print(msg)
	if sys.console == nil {
		return nil
	}
	return sys.console.WriteConsole(msg)
}

// trace records a request transition. It runs with the driver lock held.
func (sys *System) trace(b *buf.Buf, s ide.State) {
	sys.history.add(fmt.Sprintf("dev %d block %4d %v %v", b.Dev, b.Blockno, b.Flags, s))
}

// History returns the most recent request transitions, oldest first
func (sys *System) History() []string {
	return sys.history.lines()
}

// Status is a snapshot of the system counters
type Status struct {
	Driver    ide.Stats
	Queue     int
	Primary   disk.Stats
	Secondary disk.Stats
	SwapIntrs int
}

// Status returns the current counters
func (sys *System) Status() Status {
	sys.mu.Lock()
	acked := sys.acked
	sys.mu.Unlock()
	return Status{
		Driver:    sys.Driver.Stats(),
		Queue:     sys.Driver.QueueLen(),
		Primary:   sys.primary.Stats(),
		Secondary: sys.secondary.Stats(),
		SwapIntrs: acked,
	}
}

// Dump writes the counters in the status view layout
func (s Status) Dump(w io.Writer) {
	d := s.Driver
	fmt.Fprintf(w, " queue %2d (max %2d)  requests %6d  completed %6d  faults %3d  spurious %3d\n",
		s.Queue, d.MaxQueue, d.Requests, d.Completed, d.Faults, d.Spurious)
	fmt.Fprintf(w, " swap   reads %6d  writes %6d  faults %3d  acked intr %6d\n",
		d.SwapReads, d.SwapWrites, d.SwapFaults, s.SwapIntrs)
	for i, c := range []disk.Stats{s.Primary, s.Secondary} {
		fmt.Fprintf(w, " ata%d   cmds %6d  intr %6d  sectors r/w %7d/%-7d  faults %3d  overlaps %d\n",
			i, c.Commands, c.Interrupts, c.SectorsRead, c.SectorsWritten, c.Faults, c.Overlaps)
	}
}
