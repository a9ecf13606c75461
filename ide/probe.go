package ide

import (
	"idedisk/ata"
)

// Init probes both channels for their expected drive. A missing drive is
// fatal and leaves the driver halted: every later call fails the same way
// without touching the hardware, until a later Init finds both drives.
func (d *Driver) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.halted = nil
	d.haveFS, d.haveSwap = false, false

	if d.haveFS = d.probe(ata.Primary, d.cfg.FSDev); !d.haveFS {
		d.halted = d.fatal("init", "ide disk 1 not present")
		return d.halted
	}
	if d.haveSwap = d.probe(ata.Secondary, d.cfg.SwapDev); !d.haveSwap {
		d.halted = d.fatal("init", "ide disk 2 (swap disk) not present")
		return d.halted
	}

	// probing left the secondary selected; point the primary back at disk 0
	d.port.Outb(ata.IOBase0+ata.RegSDH, ata.DriveHead(0, 0))
	d.log.Printf("ide: fs disk %d and swap disk %d present", d.cfg.FSDev, d.cfg.SwapDev)
	return nil
}

// probe selects dev on channel c and waits for any sign of life.
func (d *Driver) probe(c ata.Channel, dev uint32) bool {
	ata.WaitReady(d.port, c.Base, false)
	d.port.Outb(c.Base+ata.RegSDH, ata.DriveHead(dev, 0))
	for i := 0; i < ProbeIterations; i++ {
		if d.port.Inb(c.Base+ata.RegStatus) != 0 {
			return true
		}
	}
	return false
}
