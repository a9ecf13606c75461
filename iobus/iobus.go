package iobus

import (
	"fmt"
	"log"
	"sync"

	"idedisk/interrupts"
	"idedisk/logger"
)

// Device handles programmed I/O for the ports it was registered for.
type Device interface {
	In(port uint16) uint8
	Out(port uint16, v uint8)
	InString(port uint16, p []byte)
	OutString(port uint16, p []byte)
}

// Bus definition: port space of the emulated machine
type Bus struct {
	mu    sync.RWMutex
	ports map[uint16]Device

	// Channel for interrupt communication
	Interrupts chan interrupts.Interrupt

	log *log.Logger
}

// New initializes and returns the Bus
func New(l *log.Logger) *Bus {
	return &Bus{
		ports:      make(map[uint16]Device),
		Interrupts: make(chan interrupts.Interrupt, 16),
		log:        logger.OrDiscard(l),
	}
}

// RegisterDevice maps ports start..end (inclusive) to dev.
func (b *Bus) RegisterDevice(start, end uint16, dev Device) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for port := start; port <= end; port++ {
		if old, ok := b.ports[port]; ok {
			b.log.Printf("port %#x already registered to %T, replacing with %T", port, old, dev)
		}
		b.ports[port] = dev
		if port == 0xFFFF {
			break
		}
	}
}

func (b *Bus) device(port uint16) (Device, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	d, ok := b.ports[port]
	return d, ok
}

// Inb reads a byte. Nothing drives an unmapped port, so it floats high.
func (b *Bus) Inb(port uint16) uint8 {
	d, ok := b.device(port)
	if !ok {
		return 0xFF
	}
	return d.In(port)
}

// Outb writes a byte; writes to unmapped ports are dropped.
func (b *Bus) Outb(port uint16, v uint8) {
	d, ok := b.device(port)
	if !ok {
		b.log.Printf("write %#x to unmapped port %#x", v, port)
		return
	}
	d.Out(port, v)
}

// Insl reads len(p) bytes as 32-bit words from port.
func (b *Bus) Insl(port uint16, p []byte) {
	mustWords(p)
	d, ok := b.device(port)
	if !ok {
		for i := range p {
			p[i] = 0xFF
		}
		return
	}
	d.InString(port, p)
}

// Outsl writes len(p) bytes as 32-bit words to port.
func (b *Bus) Outsl(port uint16, p []byte) {
	mustWords(p)
	d, ok := b.device(port)
	if !ok {
		b.log.Printf("string write of %d bytes to unmapped port %#x", len(p), port)
		return
	}
	d.OutString(port, p)
}

func mustWords(p []byte) {
	if len(p)%4 != 0 {
		panic(fmt.Sprintf("iobus: string I/O of %d bytes is not word sized", len(p)))
	}
}

// SendInterrupt raises irq on behalf of channel. Delivery is asynchronous:
// the sender may hold locks the interrupt handler needs.
func (b *Bus) SendInterrupt(irq uint8, channel int) {
	i := interrupts.Interrupt{
		IRQ:     irq,
		Channel: channel}

	go func() { b.Interrupts <- i }()
}
