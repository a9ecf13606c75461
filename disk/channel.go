// Package disk emulates a legacy two-drive ATA channel driven by programmed
// I/O.
//
// The emulated controller completes work as soon as it is asked to and
// raises one interrupt per command: for reads once the first sector is
// staged, for writes once the last sector is committed, and for either when
// the command aborts. Status reads can be made to report BSY for a number of
// polls after each step to exercise drivers' wait loops.
package disk

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"idedisk/ata"
	"idedisk/interrupts"
	"idedisk/logger"
)

// error register bits
const (
	errAMNF = 1 << 0 // address mark not found
	errABRT = 1 << 2 // aborted command
	errIDNF = 1 << 4 // sector id not found
	errUNC  = 1 << 6 // uncorrectable data
)

const idleStatus = ata.StatusDRDY | ata.StatusDSC

// Stats counts what the channel has been asked to do
type Stats struct {
	Commands       int
	Interrupts     int
	Overlaps       int // commands issued while another was still transferring
	Ignored        int // commands addressed to an absent unit
	Faults         int
	SectorsRead    int
	SectorsWritten int
}

// Channel - one ATA channel with a master and a slave slot
type Channel struct {
	mu sync.Mutex

	index int
	irq   uint8
	bases ata.Channel
	units [2]*Drive
	intr  interrupts.Sender

	// task file
	errReg, secCnt, sector, cylLo, cylHi, sdh uint8
	ctrl                                      uint8
	status                                    ata.Status

	// transfer in progress
	cmd       uint8
	drive     *Drive
	lba       uint32
	remaining int
	buf       [ata.SectorSize]byte
	pos       int
	raised    bool // this command has interrupted already

	// Latency is the number of status reads that report BSY after each step.
	Latency int
	busy    int

	stats Stats
	log   *log.Logger
}

// NewChannel returns channel index (0 primary, 1 secondary) answering at
// bases and raising irq through intr.
func NewChannel(index int, bases ata.Channel, irq uint8, intr interrupts.Sender, l *log.Logger) *Channel {
	c := &Channel{
		index: index,
		irq:   irq,
		bases: bases,
		intr:  intr,
		log:   logger.OrDiscard(l),
	}
	c.Reset()
	return c
}

// Attach puts drive into unit slot 0 (master) or 1 (slave)
func (c *Channel) Attach(unit int, d *Drive) error {
	if unit < 0 || unit >= len(c.units) {
		return errors.New("disk: a channel has only units 0 and 1")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.units[unit] = d
	c.log.Printf("ata%d: unit %d attached, %d sectors", c.index, unit, d.Sectors())
	return nil
}

// Unit returns the drive in slot unit, or nil
func (c *Channel) Unit(unit int) *Drive {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.units[unit&1]
}

// BadSector marks lba of unit as unreadable and unwritable
func (c *Channel) BadSector(unit int, lba uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d := c.units[unit&1]; d != nil {
		d.BadSector(lba)
	}
}

// Corrupt damages lba of unit so its next read fails the checksum
func (c *Channel) Corrupt(unit int, lba uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.units[unit&1]
	if d == nil {
		return errors.New("disk: no such unit")
	}
	return d.Corrupt(lba)
}

// Ports returns the I/O ranges the channel decodes: the task file and the
// device control register.
func (c *Channel) Ports() (base, baseEnd, ctrl uint16) {
	return c.bases.Base, c.bases.Base + ata.RegStatus, c.bases.Ctrl + ata.RegCtrl
}

// Stats returns a copy of the counters
func (c *Channel) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Reset sets the channel to its power-on values.
func (c *Channel) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

func (c *Channel) reset() {
	c.errReg = 0
	c.secCnt = 1
	c.sector = 1
	c.cylLo, c.cylHi = 0, 0
	c.sdh = 0xA0
	c.status = idleStatus
	c.endTransfer()
}

func (c *Channel) selected() *Drive {
	return c.units[(c.sdh>>4)&1]
}

// In reads a register
func (c *Channel) In(port uint16) uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if port == c.bases.Ctrl+ata.RegCtrl {
		return uint8(c.readStatus())
	}
	switch port - c.bases.Base {
	case ata.RegData:
		var b [1]byte
		c.readData(b[:])
		return b[0]
	case ata.RegError:
		return c.errReg
	case ata.RegSecCnt:
		return c.secCnt
	case ata.RegSector:
		return c.sector
	case ata.RegCylLo:
		return c.cylLo
	case ata.RegCylHi:
		return c.cylHi
	case ata.RegSDH:
		return c.sdh
	case ata.RegStatus:
		return uint8(c.readStatus())
	default:
		panic(fmt.Sprintf("ata%d: invalid read of port %#x", c.index, port))
	}
}

// Out writes a register
func (c *Channel) Out(port uint16, v uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if port == c.bases.Ctrl+ata.RegCtrl {
		if v&ata.CtrlSRST != 0 {
			c.reset()
		}
		c.ctrl = v
		return
	}
	switch port - c.bases.Base {
	case ata.RegData:
		c.writeData([]byte{v})
	case ata.RegPrecomp:
		// no write precompensation on LBA drives
	case ata.RegSecCnt:
		c.secCnt = v
	case ata.RegSector:
		c.sector = v
	case ata.RegCylLo:
		c.cylLo = v
	case ata.RegCylHi:
		c.cylHi = v
	case ata.RegSDH:
		c.sdh = v
	case ata.RegCommand:
		c.command(v)
	default:
		panic(fmt.Sprintf("ata%d: invalid write of port %#x", c.index, port))
	}
}

// InString reads the data port
func (c *Channel) InString(port uint16, p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readData(p)
}

// OutString writes the data port
func (c *Channel) OutString(port uint16, p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeData(p)
}

// an absent unit does not drive the bus
func (c *Channel) readStatus() ata.Status {
	if c.selected() == nil {
		return 0
	}
	if c.busy > 0 {
		c.busy--
		return c.status | ata.StatusBSY
	}
	return c.status
}

func (c *Channel) command(cmd uint8) {
	d := c.selected()
	if d == nil {
		c.stats.Ignored++
		return
	}
	if c.status.DataRequest() {
		c.stats.Overlaps++
		c.log.Printf("ata%d: command %#x while a transfer is pending", c.index, cmd)
	}
	c.stats.Commands++

	c.cmd = cmd
	c.drive = d
	c.lba = uint32(c.sector) | uint32(c.cylLo)<<8 | uint32(c.cylHi)<<16 | uint32(c.sdh&0x0F)<<24
	c.remaining = int(c.secCnt)
	if c.remaining == 0 {
		c.remaining = 256
	}
	c.errReg = 0
	c.pos = 0
	c.raised = false

	switch cmd {
	case ata.CmdRead:
		if c.stage() {
			c.interrupt()
		}
	case ata.CmdWrite:
		c.status = idleStatus | ata.StatusDRQ
		c.busy = c.Latency
	default:
		c.abort(errABRT)
	}
}

// stage loads the next sector of a read into the buffer. It reports false
// if the command aborted.
func (c *Channel) stage() bool {
	if err := c.drive.readSector(c.lba, c.buf[:]); err != nil {
		c.fail(err)
		return false
	}
	c.pos = 0
	c.status = idleStatus | ata.StatusDRQ
	c.busy = c.Latency
	return true
}

func (c *Channel) readData(p []byte) {
	for i := range p {
		if c.cmd != ata.CmdRead || !c.status.DataRequest() {
			p[i] = 0
			continue
		}
		p[i] = c.buf[c.pos]
		c.pos++
		if c.pos < ata.SectorSize {
			continue
		}
		c.stats.SectorsRead++
		c.lba++
		c.remaining--
		if c.remaining == 0 {
			c.status = idleStatus
			c.endTransfer()
			continue
		}
		c.stage()
	}
}

func (c *Channel) writeData(p []byte) {
	for _, v := range p {
		if c.cmd != ata.CmdWrite || !c.status.DataRequest() {
			continue
		}
		c.buf[c.pos] = v
		c.pos++
		if c.pos < ata.SectorSize {
			continue
		}
		if err := c.drive.writeSector(c.lba, c.buf[:]); err != nil {
			c.fail(err)
			continue
		}
		c.stats.SectorsWritten++
		c.pos = 0
		c.lba++
		c.remaining--
		c.busy = c.Latency
		if c.remaining == 0 {
			c.status = idleStatus
			c.endTransfer()
			c.interrupt()
		}
	}
}

func (c *Channel) fail(err error) {
	c.stats.Faults++
	c.log.Printf("ata%d: sector %d: %v", c.index, c.lba, err)
	switch {
	case errors.Is(err, errNoSector):
		c.abort(errIDNF)
	case errors.Is(err, errChecksum):
		c.abort(errUNC)
	case errors.Is(err, errBadSector):
		c.abort(errAMNF)
	default:
		c.status = idleStatus
		c.status.Set(ata.StatusDF|ata.StatusERR, true)
		c.endTransfer()
		c.interrupt()
	}
}

func (c *Channel) abort(code uint8) {
	c.errReg = code
	c.status = idleStatus
	c.status.Set(ata.StatusERR, true)
	c.endTransfer()
	c.interrupt()
}

func (c *Channel) endTransfer() {
	c.cmd = 0
	c.drive = nil
	c.remaining = 0
	c.pos = 0
}

func (c *Channel) interrupt() {
	if c.raised || c.ctrl&ata.CtrlNIEN != 0 || c.intr == nil {
		return
	}
	c.raised = true
	c.stats.Interrupts++
	c.intr.SendInterrupt(c.irq, c.index)
}
