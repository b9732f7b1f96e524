package emu

import "errors"

// Runtime faults shared by the emulator and the pipeline.
var (
	ErrIllegalInstruction = errors.New("illegal instruction")
	ErrDivideByZero       = errors.New("integer divide by zero")
	ErrAddressOutOfRange  = errors.New("memory address out of range")
	ErrPCOutOfRange       = errors.New("program counter out of range")
)

// State is the architectural state mutated by a simulation run.
type State struct {
	Regs   *RegFile
	Memory *Memory

	// PC is a byte offset; it advances by 4.
	PC int64

	// TotalInstructions is the static program length, set once at load.
	TotalInstructions int
}

// NewState creates a zeroed architectural state.
func NewState() *State {
	return &State{
		Regs:   &RegFile{},
		Memory: NewMemory(),
	}
}

// FetchExhausted reports whether PC has moved past the loaded program.
func (s *State) FetchExhausted() bool {
	return s.PC >= int64(s.TotalInstructions)*4
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	regs := *s.Regs
	return &State{
		Regs:              &regs,
		Memory:            s.Memory.Clone(),
		PC:                s.PC,
		TotalInstructions: s.TotalInstructions,
	}
}
