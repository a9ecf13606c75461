package interrupts

/**
 * Separate package exists mainly in order to avoid cyclic imports
 * between the bus, the emulated channels and the driver.
 */

// Interrupt type - used to signal a completed controller operation
type Interrupt struct {
	IRQ     uint8
	Channel int
}

// IRQ lines of the two legacy channels:

// IRQIDE0 : primary channel, serviced by the queued filesystem path
const IRQIDE0 = 14

// IRQIDE1 : secondary channel, the swap path polls and never waits for it
const IRQIDE1 = 15

// Sender is implemented by anything able to raise an interrupt line
type Sender interface {
	SendInterrupt(irq uint8, channel int)
}
