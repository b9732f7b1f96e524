// Package emu provides the architectural state of the simulated machine and
// a functional reference emulator.
package emu

import "github.com/sarchlab/ipsim/insts"

// RegFile represents the architectural register file.
// It contains 16 general-purpose integer registers, zero-initialised.
type RegFile struct {
	// R holds registers r0-r15.
	R [insts.NumRegs]int64
}

// ReadReg reads a register value. Out-of-range indices read as 0.
func (r *RegFile) ReadReg(reg uint8) int64 {
	if int(reg) >= len(r.R) {
		return 0
	}
	return r.R[reg]
}

// WriteReg writes a value to a register. Writes to out-of-range indices
// are ignored.
func (r *RegFile) WriteReg(reg uint8, value int64) {
	if int(reg) >= len(r.R) {
		return
	}
	r.R[reg] = value
}

// Snapshot returns a copy of all register values.
func (r *RegFile) Snapshot() [insts.NumRegs]int64 {
	return r.R
}
