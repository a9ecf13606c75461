package buf

import (
	"fmt"

	"idedisk/ata"
)

/**
Block buffer as handed to the disk driver by the buffer cache
*/

// BlockSize is the filesystem block size in bytes
const BlockSize = 1024

// SectorsPerBlock - sectors covered by one block
const SectorsPerBlock = BlockSize / ata.SectorSize

// one block must fit a single controller command
const _ = uint(ata.MaxSectorsPerCmd - SectorsPerBlock)

// flag layout. Values here are bits, not the powers of 2
const busyFlag = 0
const validFlag = 1
const dirtyFlag = 2

// Flags keeps the buffer state bits
type Flags uint8

// Flag masks
const (
	Busy  Flags = 1 << busyFlag  // locked by some process
	Valid Flags = 1 << validFlag // data has been read from disk
	Dirty Flags = 1 << dirtyFlag // data needs to be written to disk
)

// Buf is a cached disk block. The caller owns it; the driver only
// references it while a request is in flight.
type Buf struct {
	Dev     uint32
	Blockno uint32
	Flags   Flags
	Data    [BlockSize]byte
}

// New returns a busy, empty buffer for block blockno of device dev
func New(dev, blockno uint32) *Buf {
	return &Buf{Dev: dev, Blockno: blockno, Flags: Busy}
}

func (b *Buf) String() string {
	return fmt.Sprintf("buf{dev %d, block %d, %v}", b.Dev, b.Blockno, b.Flags)
}

// Busy returns B flag
func (f *Flags) Busy() bool {
	return f.getFlag(busyFlag)
}

// SetBusy sets B flag
func (f *Flags) SetBusy(status bool) {
	f.setFlag(busyFlag, status)
}

// Valid returns V flag
func (f *Flags) Valid() bool {
	return f.getFlag(validFlag)
}

// SetValid sets V flag
func (f *Flags) SetValid(status bool) {
	f.setFlag(validFlag, status)
}

// Dirty returns D flag
func (f *Flags) Dirty() bool {
	return f.getFlag(dirtyFlag)
}

// SetDirty sets D flag
func (f *Flags) SetDirty(status bool) {
	f.setFlag(dirtyFlag, status)
}

// Settled reports whether memory and disk agree: valid and not dirty.
func (f *Flags) Settled() bool {
	return *f&(Valid|Dirty) == Valid
}

func (f *Flags) getFlag(flag uint) bool {
	return (*f & (1 << flag)) > 0
}

func (f *Flags) setFlag(flag uint, status bool) {
	if status {
		*f |= (1 << flag)
	} else {
		*f &^= (1 << flag)
	}
}

// String returns set flags
func (f Flags) String() string {
	flags := []byte("   ")
	if f.Busy() {
		flags[0] = 'B'
	}
	if f.Valid() {
		flags[1] = 'V'
	}
	if f.Dirty() {
		flags[2] = 'D'
	}
	return "[" + string(flags) + "]"
}
