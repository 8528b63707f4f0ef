// Package regfile holds the hart's 32 integer registers, the program counter,
// and the LR/SC reservation flag. x0 is hard-wired to zero; every write to it
// is silently discarded, mirroring how the teacher's RiSC-style VM zeroes its
// GPR[0] after every retirement.
package regfile

import (
	"math/rand"

	w "github.com/angry-goose-initiative/irve-sub000/emu/word"
)

// NumRegisters is the number of general purpose integer registers.
const NumRegisters = 32

// RegFile is the x0..x31 integer register file plus PC and the LR/SC
// reservation state.
type RegFile struct {
	x        [NumRegisters]w.Word
	pc       w.Word
	reserved bool
	resAddr  w.Word
}

// New creates a register file reset to all zeros.
func New() *RegFile {
	return &RegFile{}
}

// Reset zeroes the PC and clears the reservation. If fuzz is true, x1..x31
// are seeded from rng instead of zero, surfacing uninitialized-register bugs
// in guest software; x0 is never touched.
func Reset(rf *RegFile, fuzz bool, rng *rand.Rand) {
	rf.pc = 0
	rf.reserved = false
	for i := range rf.x {
		rf.x[i] = 0
	}
	if fuzz && rng != nil {
		for i := 1; i < NumRegisters; i++ {
			rf.x[i] = w.Word(rng.Uint32())
		}
	}
}

// Get reads register i; reading x0 always yields zero.
func (rf *RegFile) Get(i uint8) w.Word {
	if i == 0 {
		return 0
	}
	return rf.x[i]
}

// Set writes register i; writes to x0 are ignored.
func (rf *RegFile) Set(i uint8, v w.Word) {
	if i == 0 {
		return
	}
	rf.x[i] = v
}

// PC returns the program counter.
func (rf *RegFile) PC() w.Word {
	return rf.pc
}

// SetPC sets the program counter.
func (rf *RegFile) SetPC(v w.Word) {
	rf.pc = v
}

// AdvancePC increments PC by 4, the IALIGN=32 retirement step.
func (rf *RegFile) AdvancePC() {
	rf.pc = rf.pc.Add(4)
}

// Reserve sets the LR/SC reservation at addr.
func (rf *RegFile) Reserve(addr w.Word) {
	rf.reserved = true
	rf.resAddr = addr
}

// ClearReservation drops any outstanding reservation, as happens on any
// trap or trap-return control transfer.
func (rf *RegFile) ClearReservation() {
	rf.reserved = false
}

// ReservationHolds reports whether a reservation is outstanding for addr.
func (rf *RegFile) ReservationHolds(addr w.Word) bool {
	return rf.reserved && rf.resAddr == addr
}
