package ide

import (
	"fmt"

	"idedisk/ata"
)

// Intr completes the active request. It runs once per primary channel
// interrupt and never blocks beyond taking the lock.
func (d *Driver) Intr() {
	d.mu.Lock()
	defer d.mu.Unlock()

	r := d.queue.pop()
	if r == nil {
		d.stats.Spurious++
		return
	}

	b := r.b
	err := ata.WaitReady(d.port, ata.IOBase0, true)
	if err == nil && !b.Flags.Dirty() {
		d.port.Insl(ata.IOBase0+ata.RegData, b.Data[:])
		// a later sector of the block may have failed while draining
		err = ata.WaitReady(d.port, ata.IOBase0, true)
	}

	if err != nil {
		// flags stay as submitted: a failed write is still dirty, a failed
		// read is still not valid
		r.err = fmt.Errorf("ide: dev %d block %d: %w", b.Dev, b.Blockno, err)
		d.stats.Faults++
		d.log.Print(r.err)
	} else {
		b.Flags.SetValid(true)
		b.Flags.SetDirty(false)
	}
	d.stats.Completed++
	d.trace(b, Completed)
	close(r.done)

	if next := d.queue.front(); next != nil {
		d.start(next)
	}
}
