// Package insts provides the instruction set of the eleven-stage pipeline
// model and the codec that packs instructions into memory words.
//
// It supports:
//   - Immediate load: SET
//   - Three-operand arithmetic: ADD, SUB, MUL, DIV
//   - Register-addressed memory access: LD, ST
//   - Compare-with-zero branches: BEZ, BGEZ, BLEZ, BGTZ, BLTZ
//   - RET
//
// Usage:
//
//	word := insts.Encode(insts.Instruction{Op: insts.OpADD, Dest: 3, Left: 1, Right: 2})
//	inst := insts.Decode(word)
//	fmt.Printf("Op: %v, Dest: %d, Left: %d, Right: %d\n", inst.Op, inst.Dest, inst.Left, inst.Right)
package insts
