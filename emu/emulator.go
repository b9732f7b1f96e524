package emu

import (
	"fmt"

	"github.com/sarchlab/ipsim/insts"
)

// StepResult represents the result of executing a single instruction.
type StepResult struct {
	// Done is true once fetch is exhausted or a halting RET executed.
	Done bool

	// Err is set if a fault occurred during execution.
	Err error
}

// Emulator executes programs one instruction at a time with no pipeline.
// It is the functional reference the timing pipeline is checked against.
type Emulator struct {
	state *State

	haltOnRet   bool
	dropIllegal bool

	halted           bool
	instructionCount uint64
	maxInstructions  uint64 // 0 means no limit
}

// EmulatorOption is a functional option for configuring the Emulator.
type EmulatorOption func(*Emulator)

// WithMaxInstructions sets the maximum number of instructions to execute.
// A value of 0 means no limit.
func WithMaxInstructions(max uint64) EmulatorOption {
	return func(e *Emulator) {
		e.maxInstructions = max
	}
}

// WithHaltOnRet makes RET stop execution.
func WithHaltOnRet(halt bool) EmulatorOption {
	return func(e *Emulator) {
		e.haltOnRet = halt
	}
}

// WithDropIllegal skips illegal instructions instead of faulting.
func WithDropIllegal(drop bool) EmulatorOption {
	return func(e *Emulator) {
		e.dropIllegal = drop
	}
}

// NewEmulator creates an emulator operating on the given state.
func NewEmulator(state *State, opts ...EmulatorOption) *Emulator {
	e := &Emulator{state: state}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the emulator's architectural state.
func (e *Emulator) State() *State {
	return e.state
}

// InstructionCount returns the number of instructions executed.
func (e *Emulator) InstructionCount() uint64 {
	return e.instructionCount
}

// Step executes a single instruction.
func (e *Emulator) Step() StepResult {
	if e.halted || e.state.FetchExhausted() {
		return StepResult{Done: true}
	}
	if e.maxInstructions > 0 && e.instructionCount >= e.maxInstructions {
		return StepResult{Err: fmt.Errorf("max instructions reached")}
	}

	pc := e.state.PC
	if pc < 0 || pc%4 != 0 {
		return StepResult{Err: fmt.Errorf("%w: 0x%X", ErrPCOutOfRange, pc)}
	}
	inst, err := e.state.Memory.ReadInst(pc / 4)
	if err != nil {
		return StepResult{Err: fmt.Errorf("%w: 0x%X", ErrPCOutOfRange, pc)}
	}

	if err := inst.Validate(); err != nil {
		if e.dropIllegal {
			e.state.PC += 4
			return StepResult{}
		}
		return StepResult{
			Err: fmt.Errorf("%w at PC=0x%X: %v", ErrIllegalInstruction, pc, err),
		}
	}

	if err := e.execute(pc, inst); err != nil {
		return StepResult{Err: fmt.Errorf("at PC=0x%X (%v): %w", pc, inst, err)}
	}
	e.instructionCount++

	return StepResult{}
}

// Run executes instructions until the program finishes or faults.
func (e *Emulator) Run() error {
	for {
		result := e.Step()
		if result.Err != nil {
			return result.Err
		}
		if result.Done {
			return nil
		}
	}
}

// execute applies one validated instruction to the state.
func (e *Emulator) execute(pc int64, inst insts.Instruction) error {
	regs := e.state.Regs
	next := pc + 4

	switch {
	case inst.Op == insts.OpSET:
		regs.WriteReg(inst.Dest, inst.Left)

	case inst.Op.IsArith():
		result, err := Arith(inst.Op,
			regs.ReadReg(uint8(inst.Left)), regs.ReadReg(uint8(inst.Right)))
		if err != nil {
			return err
		}
		regs.WriteReg(inst.Dest, result)

	case inst.Op == insts.OpLD:
		value, err := e.state.Memory.Read(regs.ReadReg(uint8(inst.Left)))
		if err != nil {
			return err
		}
		regs.WriteReg(inst.Dest, value)

	case inst.Op == insts.OpST:
		err := e.state.Memory.Write(regs.ReadReg(uint8(inst.Left)), regs.ReadReg(inst.Dest))
		if err != nil {
			return err
		}

	case inst.Op.IsBranch():
		if BranchTaken(inst.Op, regs.ReadReg(inst.Dest)) {
			next = BranchTarget(pc, inst.Left)
		}

	case inst.Op == insts.OpRET:
		if e.haltOnRet {
			e.halted = true
		}
	}

	e.state.PC = next
	return nil
}
