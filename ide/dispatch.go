package ide

import (
	"fmt"

	"idedisk/ata"
	"idedisk/buf"
)

// enqueue appends r and starts it if the controller was idle. Caller must
// hold the lock.
func (d *Driver) enqueue(r *request) error {
	if err := d.checkBlock(r.b); err != nil {
		return err
	}
	d.queue.push(r)
	d.stats.Requests++
	d.stats.MaxQueue = max(d.stats.MaxQueue, d.queue.len())
	d.trace(r.b, Queued)

	if d.queue.front() == r {
		d.start(r)
	}
	return nil
}

func (d *Driver) checkBlock(b *buf.Buf) error {
	if b.Blockno >= d.cfg.FSSize {
		return d.fatal("start", fmt.Sprintf("incorrect blockno %d, fs has %d blocks", b.Blockno, d.cfg.FSSize))
	}
	return nil
}

// start issues the command for r, which must be the queue head. Caller
// must hold the lock. Reads leave the data for Intr to collect; writes push
// the whole block right after the command.
func (d *Driver) start(r *request) {
	if err := d.checkBlock(r.b); err != nil {
		// enqueue refuses such requests
		panic(err)
	}
	sector := r.b.Blockno * buf.SectorsPerBlock

	ata.WaitReady(d.port, ata.IOBase0, false)
	ata.SetupTransfer(d.port, ata.Primary, r.b.Dev, sector, buf.SectorsPerBlock)
	d.trace(r.b, Active)
	if r.b.Flags.Dirty() {
		d.port.Outb(ata.IOBase0+ata.RegCommand, ata.CmdWrite)
		d.port.Outsl(ata.IOBase0+ata.RegData, r.b.Data[:])
	} else {
		d.port.Outb(ata.IOBase0+ata.RegCommand, ata.CmdRead)
	}
}
