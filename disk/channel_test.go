package disk

import (
	"bytes"
	"sync"
	"testing"

	"idedisk/ata"
)

// recorder counts raised interrupts instead of delivering them
type recorder struct {
	mu   sync.Mutex
	irqs []uint8
}

func (r *recorder) SendInterrupt(irq uint8, channel int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.irqs = append(r.irqs, irq)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.irqs)
}

func newPrimary(t *testing.T, sectors uint32) (*Channel, *recorder) {
	t.Helper()
	r := &recorder{}
	c := NewChannel(0, ata.Primary, 14, r, nil)
	if err := c.Attach(0, NewMemDrive(sectors)); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	return c, r
}

// issue programs a transfer the way a driver would
func issue(c *Channel, cmd uint8, unit uint32, lba uint32, count uint8) {
	base := ata.IOBase0
	c.Out(ata.CtrlBase0+ata.RegCtrl, 0)
	c.Out(base+ata.RegSecCnt, count)
	c.Out(base+ata.RegSector, uint8(lba))
	c.Out(base+ata.RegCylLo, uint8(lba>>8))
	c.Out(base+ata.RegCylHi, uint8(lba>>16))
	c.Out(base+ata.RegSDH, ata.DriveHead(unit, lba))
	c.Out(base+ata.RegCommand, cmd)
}

func status(c *Channel) ata.Status {
	return ata.Status(c.In(ata.IOBase0 + ata.RegStatus))
}

func TestChannel_Attach(t *testing.T) {
	tests := []struct {
		name    string
		unit    int
		wantErr bool
	}{
		{"master", 0, false},
		{"slave", 1, false},
		{"invalid unit number", 2, true},
		{"negative unit number", -1, true},
	}
	c := NewChannel(0, ata.Primary, 14, nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Attach(tt.unit, NewMemDrive(8)); (err != nil) != tt.wantErr {
				t.Errorf("Channel.Attach() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestChannel_Presence(t *testing.T) {
	c, _ := newPrimary(t, 8)

	c.Out(ata.IOBase0+ata.RegSDH, ata.DriveHead(0, 0))
	if s := status(c); s != idleStatus {
		t.Errorf("status of present unit = %v, want %v", s, idleStatus)
	}
	c.Out(ata.IOBase0+ata.RegSDH, ata.DriveHead(1, 0))
	if s := status(c); s != 0 {
		t.Errorf("status of absent unit = %v, want 0", s)
	}

	c.Out(ata.IOBase0+ata.RegCommand, ata.CmdRead)
	if st := c.Stats(); st.Ignored != 1 || st.Commands != 0 {
		t.Errorf("command to absent unit: stats %+v, want one ignored", st)
	}
}

func TestChannel_WriteRead(t *testing.T) {
	c, r := newPrimary(t, 16)

	out := make([]byte, 2*ata.SectorSize)
	for i := range out {
		out[i] = byte(i * 7)
	}
	issue(c, ata.CmdWrite, 0, 5, 2)
	if !status(c).DataRequest() {
		t.Fatalf("write command: status %v, want DRQ", status(c))
	}
	c.OutString(ata.IOBase0, out)
	if s := status(c); s != idleStatus {
		t.Errorf("after write: status %v, want %v", s, idleStatus)
	}

	in := make([]byte, len(out))
	issue(c, ata.CmdRead, 0, 5, 2)
	c.InString(ata.IOBase0, in)
	if !bytes.Equal(in, out) {
		t.Errorf("read back differs from written data")
	}

	raw := make([]byte, ata.SectorSize)
	c.Unit(0).ReadAt(raw, 6*ata.SectorSize)
	if !bytes.Equal(raw, out[ata.SectorSize:]) {
		t.Errorf("second sector not stored at lba 6")
	}

	st := c.Stats()
	if st.Commands != 2 || st.SectorsWritten != 2 || st.SectorsRead != 2 || st.Overlaps != 0 {
		t.Errorf("stats = %+v", st)
	}
	if r.count() != 2 {
		t.Errorf("raised %d interrupts, want 2", r.count())
	}
}

func TestChannel_Faults(t *testing.T) {
	tests := []struct {
		name    string
		inject  func(c *Channel)
		lba     uint32
		wantErr uint8
	}{
		{"bad sector", func(c *Channel) { c.BadSector(0, 3) }, 2, errAMNF},
		{"checksum", func(c *Channel) { c.Corrupt(0, 3) }, 2, errUNC},
		{"past the end", func(c *Channel) {}, 7, errIDNF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, r := newPrimary(t, 8)
			tt.inject(c)

			issue(c, ata.CmdRead, 0, tt.lba, 2)
			first := make([]byte, ata.SectorSize)
			c.InString(ata.IOBase0, first)

			s := status(c)
			if !s.Failed() || s.Fault() || s.DataRequest() {
				t.Errorf("status after fault = %v, want ERR without DRQ", s)
			}
			if got := c.In(ata.IOBase0 + ata.RegError); got != tt.wantErr {
				t.Errorf("error register = %#x, want %#x", got, tt.wantErr)
			}
			if st := c.Stats(); st.Faults != 1 || st.SectorsRead != 1 {
				t.Errorf("stats = %+v, want one fault after one sector", st)
			}
			if r.count() != 1 {
				t.Errorf("raised %d interrupts, want 1 per command", r.count())
			}
		})
	}
}

func TestChannel_InterruptMask(t *testing.T) {
	c, r := newPrimary(t, 8)

	issue(c, ata.CmdRead, 0, 0, 1)
	c.Out(ata.CtrlBase0+ata.RegCtrl, ata.CtrlNIEN)
	c.InString(ata.IOBase0, make([]byte, ata.SectorSize))

	c.Out(ata.IOBase0+ata.RegCommand, ata.CmdRead)
	if r.count() != 1 {
		t.Errorf("raised %d interrupts, want 1 with nIEN set for the second", r.count())
	}
}

func TestChannel_Latency(t *testing.T) {
	c, _ := newPrimary(t, 8)
	c.Latency = 3

	issue(c, ata.CmdRead, 0, 0, 1)
	for i := 0; i < 3; i++ {
		if !status(c).Busy() {
			t.Fatalf("status read %d: not busy", i)
		}
	}
	if s := status(c); s.Busy() || !s.DataRequest() {
		t.Errorf("status after latency = %v, want DRQ", s)
	}
	if err := ata.WaitReady(c.asPort(), ata.IOBase0, true); err != nil {
		t.Errorf("WaitReady() error = %v", err)
	}
}

// asPort exposes the channel directly as an ata.Port, without a bus
func (c *Channel) asPort() ata.Port {
	return directPort{c}
}

type directPort struct {
	c *Channel
}

func (p directPort) Inb(port uint16) uint8 { return p.c.In(port) }
func (p directPort) Outb(port uint16, v uint8) { p.c.Out(port, v) }
func (p directPort) Insl(port uint16, b []byte) { p.c.InString(port, b) }
func (p directPort) Outsl(port uint16, b []byte) { p.c.OutString(port, b) }
