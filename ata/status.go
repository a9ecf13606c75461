package ata

// status register layout. Values here are bits, not the powers of 2
const (
	errBit  = 0
	idxBit  = 1
	corrBit = 2
	drqBit  = 3
	dscBit  = 4
	dfBit   = 5
	drdyBit = 6
	bsyBit  = 7
)

// Status bits as masks
const (
	StatusBSY  Status = 1 << bsyBit  // busy
	StatusDRDY Status = 1 << drdyBit // drive ready
	StatusDF   Status = 1 << dfBit   // drive write fault
	StatusDSC  Status = 1 << dscBit  // drive seek complete
	StatusDRQ  Status = 1 << drqBit  // data request ready
	StatusCORR Status = 1 << corrBit // corrected data
	StatusIDX  Status = 1 << idxBit  // index
	StatusERR  Status = 1 << errBit  // error
)

// Status keeps a value read from the status register
type Status uint8

// Busy returns BSY
func (s Status) Busy() bool {
	return s.getFlag(bsyBit)
}

// Fault returns DF
func (s Status) Fault() bool {
	return s.getFlag(dfBit)
}

// DataRequest returns DRQ
func (s Status) DataRequest() bool {
	return s.getFlag(drqBit)
}

// Failed reports whether the drive flagged either a write fault or an error.
func (s Status) Failed() bool {
	return s&(StatusDF|StatusERR) != 0
}

// Set sets or clears the bits in mask
func (s *Status) Set(mask Status, on bool) {
	if on {
		*s |= mask
	} else {
		*s &^= mask
	}
}

func (s Status) getFlag(bit uint) bool {
	return s&(1<<bit) != 0
}

// String renders the flags, highest bit first, blank for clear bits.
func (s Status) String() string {
	const names = "BRFSQCIE"
	flags := []byte("        ")
	for i := 0; i < 8; i++ {
		if s.getFlag(uint(7 - i)) {
			flags[i] = names[i]
		}
	}
	return "[" + string(flags) + "]"
}
