package ide

import (
	"fmt"

	"idedisk/ata"
)

// ReadSwap reads the SwapSectors sectors starting at secno from the swap
// disk into dst.
func (d *Driver) ReadSwap(secno uint32, dst []byte) error {
	return d.swap("read_swap", secno, dst, false)
}

// WriteSwap writes SwapSectors sectors from src to the swap disk starting
// at secno.
func (d *Driver) WriteSwap(secno uint32, src []byte) error {
	return d.swap("write_swap", secno, src, true)
}

// swap polls a whole page through the secondary channel while holding the
// lock, so queued filesystem traffic waits for it. A fault stops the
// transfer where it happened; sectors already moved stay moved.
func (d *Driver) swap(op string, secno uint32, p []byte, write bool) error {
	if len(p) < SwapSpan {
		return d.fatal(op, fmt.Sprintf("buffer of %d bytes, need %d", len(p), SwapSpan))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.halted != nil {
		return d.halted
	}
	if !d.haveSwap {
		return d.fatal(op, "ide disk 2 (swap disk) not present")
	}

	c := ata.Secondary
	cmd := ata.CmdRead
	if write {
		cmd = ata.CmdWrite
	}
	ata.WaitReady(d.port, c.Base, false)
	ata.SetupTransfer(d.port, c, d.cfg.SwapDev, secno, SwapSectors)
	d.port.Outb(c.Base+ata.RegCommand, cmd)

	for i := 0; i < SwapSectors; i++ {
		if err := ata.WaitReady(d.port, c.Base, true); err != nil {
			if write && i > 0 {
				// the status reports on the sector pushed last
				i--
			}
			return d.swapFault(op, secno, i, err)
		}
		sec := p[i*ata.SectorSize : (i+1)*ata.SectorSize]
		if write {
			d.port.Outsl(c.Base+ata.RegData, sec)
		} else {
			d.port.Insl(c.Base+ata.RegData, sec)
		}
	}
	if write {
		// the last sector's outcome is only visible once it is committed
		if err := ata.WaitReady(d.port, c.Base, true); err != nil {
			return d.swapFault(op, secno, SwapSectors-1, err)
		}
		d.stats.SwapWrites++
	} else {
		d.stats.SwapReads++
	}
	return nil
}

func (d *Driver) swapFault(op string, secno uint32, i int, err error) error {
	d.stats.SwapFaults++
	err = fmt.Errorf("ide: %s sector %d+%d: %w", op, secno, i, err)
	d.log.Print(err)
	return err
}
