package emu

import (
	"fmt"

	"github.com/sarchlab/ipsim/insts"
)

// Arith computes the result of a three-operand arithmetic instruction on
// already-read operand values. Results wrap on overflow.
func Arith(op insts.Op, left, right int64) (int64, error) {
	switch op {
	case insts.OpADD:
		return left + right, nil
	case insts.OpSUB:
		return left - right, nil
	case insts.OpMUL:
		return left * right, nil
	case insts.OpDIV:
		if right == 0 {
			return 0, fmt.Errorf("%w: %d / 0", ErrDivideByZero, left)
		}
		return left / right, nil
	default:
		return 0, fmt.Errorf("%v is not an arithmetic operation", op)
	}
}
