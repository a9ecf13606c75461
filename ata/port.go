package ata

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrIOFault is reported when the drive sets DF or ERR.
var ErrIOFault = errors.New("ata: drive fault")

// Port is programmed I/O access to the controller's register space.
// Insl and Outsl move len(p) bytes as 32-bit words; len(p) must be a
// multiple of 4.
type Port interface {
	Inb(port uint16) uint8
	Outb(port uint16, v uint8)
	Insl(port uint16, p []byte)
	Outsl(port uint16, p []byte)
}

// WaitReady spins on the status register of the channel at base until BSY
// clears. With checkErr set, DF or ERR in the settled status is a fault.
// There is no timeout: the drive is assumed to come back eventually.
func WaitReady(p Port, base uint16, checkErr bool) error {
	var s Status
	for {
		if s = Status(p.Inb(base + RegStatus)); !s.Busy() {
			break
		}
		runtime.Gosched()
	}
	if !checkErr || !s.Failed() {
		return nil
	}
	if s.Fault() {
		return fmt.Errorf("%w: write fault, status %v", ErrIOFault, s)
	}
	return fmt.Errorf("%w: error, status %v", ErrIOFault, s)
}

// SetupTransfer enables the channel interrupt and programs count sectors
// starting at lba on drive dev. The command register is left to the caller.
func SetupTransfer(p Port, c Channel, dev uint32, lba uint32, count uint8) {
	p.Outb(c.Ctrl+RegCtrl, 0)
	p.Outb(c.Base+RegSecCnt, count)
	p.Outb(c.Base+RegSector, uint8(lba&0xFF))
	p.Outb(c.Base+RegCylLo, uint8((lba>>8)&0xFF))
	p.Outb(c.Base+RegCylHi, uint8((lba>>16)&0xFF))
	p.Outb(c.Base+RegSDH, DriveHead(dev, lba))
}
