package ata

/**
 * ATA register set, as seen through programmed I/O.
 */

// register offsets relative to the channel I/O base
const (
	RegData    = 0x00
	RegError   = 0x01
	RegPrecomp = 0x01
	RegSecCnt  = 0x02
	RegSector  = 0x03
	RegCylLo   = 0x04
	RegCylHi   = 0x05
	RegSDH     = 0x06
	RegCommand = 0x07
	RegStatus  = 0x07

	// RegCtrl is relative to the control base, not the I/O base.
	RegCtrl = 0x02
)

// channel bases
const (
	IOBase0   uint16 = 0x1F0 // primary
	IOBase1   uint16 = 0x170 // secondary
	CtrlBase0 uint16 = 0x3F4
	CtrlBase1 uint16 = 0x374
)

// commands
const (
	CmdRead  uint8 = 0x20
	CmdWrite uint8 = 0x30
)

// device control byte
const (
	// CtrlNIEN masks the channel interrupt line when set.
	CtrlNIEN uint8 = 0x02
	CtrlSRST uint8 = 0x04
)

// SectorSize is the hardware transfer unit.
const SectorSize = 512

// MaxSectorsPerCmd is the largest block the driver issues as a single command.
const MaxSectorsPerCmd = 7

// sdhMode is ORed into every drive/head write: LBA addressing, legacy bits 5 and 7.
const sdhMode = 0xE0

// DriveHead returns the drive/head register value selecting the master or
// slave (low bit of dev) and carrying bits 24-27 of the sector address.
func DriveHead(dev uint32, lba uint32) uint8 {
	return uint8(sdhMode | (dev&1)<<4 | (lba>>24)&0x0F)
}

// Channel bundles the two bases of one physical channel.
type Channel struct {
	Base uint16
	Ctrl uint16
}

// Primary and Secondary are the two legacy channels.
var (
	Primary   = Channel{Base: IOBase0, Ctrl: CtrlBase0}
	Secondary = Channel{Base: IOBase1, Ctrl: CtrlBase1}
)

func (c Channel) String() string {
	if c.Base == IOBase0 {
		return "primary"
	}
	return "secondary"
}
