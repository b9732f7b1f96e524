package emu

import "github.com/sarchlab/ipsim/insts"

// BranchTaken evaluates the compare-with-zero predicate of a branch on the
// value of its tested register.
func BranchTaken(op insts.Op, value int64) bool {
	switch op {
	case insts.OpBEZ:
		return value == 0
	case insts.OpBGEZ:
		return value >= 0
	case insts.OpBLEZ:
		return value <= 0
	case insts.OpBGTZ:
		return value > 0
	case insts.OpBLTZ:
		return value < 0
	default:
		return false
	}
}

// BranchTarget returns the byte address a branch at pc jumps to. The
// displacement counts instructions relative to the fall-through address.
func BranchTarget(pc, disp int64) int64 {
	return pc + 4 + disp*4
}
