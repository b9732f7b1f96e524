package insts

import "fmt"

// Op represents an opcode.
type Op uint8

// Opcodes, numbered in encoding order.
const (
	OpSET Op = iota
	OpADD
	OpSUB
	OpMUL
	OpDIV
	OpLD
	OpST
	OpBEZ
	OpBGEZ
	OpBLEZ
	OpBGTZ
	OpBLTZ
	OpRET

	numOps
)

// NumRegs is the number of architectural registers.
const NumRegs = 16

var opNames = [numOps]string{
	OpSET:  "set",
	OpADD:  "add",
	OpSUB:  "sub",
	OpMUL:  "mul",
	OpDIV:  "div",
	OpLD:   "ld",
	OpST:   "st",
	OpBEZ:  "bez",
	OpBGEZ: "bgez",
	OpBLEZ: "blez",
	OpBGTZ: "bgtz",
	OpBLTZ: "bltz",
	OpRET:  "ret",
}

// String returns the lower-case mnemonic of the opcode.
func (op Op) String() string {
	if !op.Valid() {
		return fmt.Sprintf("op(%d)", uint8(op))
	}
	return opNames[op]
}

// Valid reports whether op is part of the instruction set.
func (op Op) Valid() bool {
	return op < numOps
}

// IsBranch reports whether op is a conditional branch.
func (op Op) IsBranch() bool {
	return op >= OpBEZ && op <= OpBLTZ
}

// IsArith reports whether op is a three-operand arithmetic operation.
func (op Op) IsArith() bool {
	return op >= OpADD && op <= OpDIV
}

// IsMemory reports whether op accesses data memory.
func (op Op) IsMemory() bool {
	return op == OpLD || op == OpST
}

// WritesReg reports whether op writes its Dest register at writeback.
func (op Op) WritesReg() bool {
	return op == OpSET || op.IsArith() || op == OpLD
}

// LookupMnemonic returns the opcode for a mnemonic such as "add".
func LookupMnemonic(name string) (Op, bool) {
	for i, n := range opNames {
		if n == name {
			return Op(i), true
		}
	}
	return 0, false
}

// OperandKind describes how an instruction field is interpreted.
type OperandKind uint8

// Operand kinds.
const (
	OperandNone OperandKind = iota
	OperandReg
	OperandImm
)

// Operands returns the kinds of the Dest, Left and Right fields for op.
func (op Op) Operands() (dest, left, right OperandKind) {
	switch {
	case op == OpSET:
		return OperandReg, OperandImm, OperandNone
	case op.IsArith():
		return OperandReg, OperandReg, OperandReg
	case op.IsMemory():
		return OperandReg, OperandReg, OperandNone
	case op.IsBranch():
		return OperandReg, OperandImm, OperandNone
	default:
		return OperandNone, OperandNone, OperandNone
	}
}

// Instruction is the record held in a pipeline latch.
//
// Fields are reinterpreted per opcode: before register read Left and Right
// hold register indices or immediates, afterwards they hold values.
type Instruction struct {
	Op    Op    // Operation code
	Dest  uint8 // Destination register, tested register, or store value register
	Left  int64 // First operand
	Right int64 // Second operand or result
}

// SourceRegs returns the registers op reads at register read.
func (inst Instruction) SourceRegs() []uint8 {
	switch {
	case inst.Op.IsArith():
		return []uint8{uint8(inst.Left), uint8(inst.Right)}
	case inst.Op == OpLD:
		return []uint8{uint8(inst.Left)}
	case inst.Op == OpST:
		return []uint8{inst.Dest, uint8(inst.Left)}
	case inst.Op.IsBranch():
		return []uint8{inst.Dest}
	default:
		return nil
	}
}

// Validate checks the opcode and every register field of an undecoded
// instruction.
func (inst Instruction) Validate() error {
	if !inst.Op.Valid() {
		return fmt.Errorf("invalid opcode %d", uint8(inst.Op))
	}
	dest, left, right := inst.Op.Operands()
	if dest == OperandReg && inst.Dest >= NumRegs {
		return fmt.Errorf("%v: register r%d out of range", inst.Op, inst.Dest)
	}
	if left == OperandReg && (inst.Left < 0 || inst.Left >= NumRegs) {
		return fmt.Errorf("%v: register r%d out of range", inst.Op, inst.Left)
	}
	if right == OperandReg && (inst.Right < 0 || inst.Right >= NumRegs) {
		return fmt.Errorf("%v: register r%d out of range", inst.Op, inst.Right)
	}
	return nil
}

// String formats the instruction as assembly text.
func (inst Instruction) String() string {
	dest, left, right := inst.Op.Operands()
	s := inst.Op.String()
	if dest != OperandNone {
		s += fmt.Sprintf(" r%d", inst.Dest)
	}
	for _, f := range []struct {
		kind OperandKind
		v    int64
	}{{left, inst.Left}, {right, inst.Right}} {
		switch f.kind {
		case OperandReg:
			s += fmt.Sprintf(" r%d", f.v)
		case OperandImm:
			s += fmt.Sprintf(" %d", f.v)
		}
	}
	return s
}

// Word is one memory cell.
type Word uint64

// Field layout of an encoded instruction word.
//
//	63      56 55     48 47            24 23             0
//	| opcode  |  dest   |      left      |      right     |
const (
	opShift    = 56
	destShift  = 48
	leftShift  = 24
	fieldBits  = 24
	fieldMask  = 1<<fieldBits - 1
	signBit    = 1 << (fieldBits - 1)
	MaxOperand = signBit - 1
	MinOperand = -signBit
)

// Encode packs an instruction into a memory word. Left and Right are
// truncated to 24 bits.
func Encode(inst Instruction) Word {
	return Word(uint64(inst.Op)<<opShift |
		uint64(inst.Dest)<<destShift |
		(uint64(inst.Left)&fieldMask)<<leftShift |
		uint64(inst.Right)&fieldMask)
}

// Decode unpacks a memory word. Every bit pattern decodes; an opcode
// outside the instruction set is reported by Op.Valid.
func Decode(word Word) Instruction {
	w := uint64(word)
	return Instruction{
		Op:    Op(w >> opShift),
		Dest:  uint8(w >> destShift),
		Left:  signExtend((w >> leftShift) & fieldMask),
		Right: signExtend(w & fieldMask),
	}
}

// signExtend sign-extends a 24-bit field.
func signExtend(v uint64) int64 {
	if v&signBit != 0 {
		return int64(v) - (1 << fieldBits)
	}
	return int64(v)
}
