package ide

import (
	"idedisk/buf"
)

// Rw syncs b with disk. If b is dirty it is written and left valid and
// clean; otherwise it is read and left valid. b must be busy, and must have
// work to do. Rw blocks until the interrupt handler has finished b.
//
// On a drive fault Rw returns an error wrapping ata.ErrIOFault and b's
// flags are left as they were.
func (d *Driver) Rw(b *buf.Buf) error {
	if !b.Flags.Busy() {
		return d.fatal("rw", "buf not busy")
	}
	if b.Flags&(buf.Valid|buf.Dirty) == buf.Valid {
		return d.fatal("rw", "nothing to do")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.halted != nil {
		return d.halted
	}
	if b.Dev != 0 && !d.haveFS {
		return d.fatal("rw", "ide disk 1 not present")
	}

	r := newRequest(b)
	d.trace(b, Submitted)
	if err := d.enqueue(r); err != nil {
		return err
	}

	for !r.settled() {
		d.mu.Unlock()
		<-r.done
		d.mu.Lock()
	}
	return r.err
}
