package disk

import (
	"errors"
	"fmt"
	"io"

	"github.com/sigurn/crc8"

	"idedisk/ata"
)

// Backing is the medium behind an emulated drive.
type Backing interface {
	io.ReaderAt
	io.WriterAt
}

var crcTable = crc8.MakeTable(crc8.CRC8)

// media errors, mapped to status and error register bits by the channel
var (
	errNoSector  = errors.New("sector not found")
	errBadSector = errors.New("bad sector")
	errChecksum  = errors.New("uncorrectable data")
)

// Drive - one disk unit on a channel
type Drive struct {
	backing Backing
	closer  io.Closer
	sectors uint32

	// per-sector checksums of what the controller last wrote
	crc []uint8
	bad map[uint32]bool
}

// NewDrive wraps a backing store of size bytes. Checksums are taken from the
// current contents.
func NewDrive(b Backing, size int64) (*Drive, error) {
	if size%ata.SectorSize != 0 {
		return nil, fmt.Errorf("disk: size %d is not a multiple of %d", size, ata.SectorSize)
	}
	d := &Drive{
		backing: b,
		sectors: uint32(size / ata.SectorSize),
		bad:     make(map[uint32]bool),
	}
	if c, ok := b.(io.Closer); ok {
		d.closer = c
	}
	d.crc = make([]uint8, d.sectors)
	var sec [ata.SectorSize]byte
	for lba := uint32(0); lba < d.sectors; lba++ {
		if _, err := b.ReadAt(sec[:], int64(lba)*ata.SectorSize); err != nil {
			return nil, fmt.Errorf("disk: reading sector %d: %w", lba, err)
		}
		d.crc[lba] = crc8.Checksum(sec[:], crcTable)
	}
	return d, nil
}

// NewMemDrive returns a zero filled drive held in memory.
func NewMemDrive(sectors uint32) *Drive {
	d, err := NewDrive(&memBacking{buf: make([]byte, int(sectors)*ata.SectorSize)}, int64(sectors)*ata.SectorSize)
	if err != nil {
		panic(err)
	}
	return d
}

// Sectors returns the drive capacity
func (d *Drive) Sectors() uint32 {
	return d.sectors
}

// BadSector makes every later access to lba fail.
func (d *Drive) BadSector(lba uint32) {
	d.bad[lba] = true
}

// Corrupt damages the stored data of lba behind the controller's back, so
// the next read of it fails its checksum.
func (d *Drive) Corrupt(lba uint32) error {
	if lba >= d.sectors {
		return errNoSector
	}
	var b [1]byte
	off := int64(lba) * ata.SectorSize
	if _, err := d.backing.ReadAt(b[:], off); err != nil {
		return err
	}
	b[0] ^= 0xFF
	_, err := d.backing.WriteAt(b[:], off)
	return err
}

// ReadAt reads raw contents, bypassing the controller
func (d *Drive) ReadAt(p []byte, off int64) (int, error) {
	return d.backing.ReadAt(p, off)
}

func (d *Drive) readSector(lba uint32, p []byte) error {
	if lba >= d.sectors {
		return errNoSector
	}
	if d.bad[lba] {
		return errBadSector
	}
	if _, err := d.backing.ReadAt(p[:ata.SectorSize], int64(lba)*ata.SectorSize); err != nil {
		return err
	}
	if crc8.Checksum(p[:ata.SectorSize], crcTable) != d.crc[lba] {
		return errChecksum
	}
	return nil
}

func (d *Drive) writeSector(lba uint32, p []byte) error {
	if lba >= d.sectors {
		return errNoSector
	}
	if d.bad[lba] {
		return errBadSector
	}
	if _, err := d.backing.WriteAt(p[:ata.SectorSize], int64(lba)*ata.SectorSize); err != nil {
		return err
	}
	d.crc[lba] = crc8.Checksum(p[:ata.SectorSize], crcTable)
	return nil
}

// Close releases the backing store if it needs releasing
func (d *Drive) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

// memBacking - fixed size in-memory medium
type memBacking struct {
	buf []byte
}

func (m *memBacking) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memBacking) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(m.buf)) {
		return 0, io.ErrShortWrite
	}
	return copy(m.buf[off:], p), nil
}
