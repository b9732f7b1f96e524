package emu

import (
	"fmt"

	"github.com/sarchlab/ipsim/insts"
)

// MemoryWords is the number of cells in the unified memory.
const MemoryWords = 65536

// Memory is the unified, word-addressed memory shared by instructions and
// data. Cell i corresponds to byte address i*4.
type Memory struct {
	cells []insts.Word
}

// NewMemory creates a zero-filled memory.
func NewMemory() *Memory {
	return &Memory{cells: make([]insts.Word, MemoryWords)}
}

// Size returns the number of cells.
func (m *Memory) Size() int {
	return len(m.cells)
}

// InRange reports whether addr is a valid word address.
func (m *Memory) InRange(addr int64) bool {
	return addr >= 0 && addr < int64(len(m.cells))
}

// ReadWord returns the raw cell at addr.
func (m *Memory) ReadWord(addr int64) (insts.Word, error) {
	if !m.InRange(addr) {
		return 0, fmt.Errorf("%w: read at %d", ErrAddressOutOfRange, addr)
	}
	return m.cells[addr], nil
}

// WriteWord stores a raw cell at addr.
func (m *Memory) WriteWord(addr int64, w insts.Word) error {
	if !m.InRange(addr) {
		return fmt.Errorf("%w: write at %d", ErrAddressOutOfRange, addr)
	}
	m.cells[addr] = w
	return nil
}

// Read returns the data value at addr.
func (m *Memory) Read(addr int64) (int64, error) {
	w, err := m.ReadWord(addr)
	return int64(w), err
}

// Write stores a data value at addr.
func (m *Memory) Write(addr int64, value int64) error {
	return m.WriteWord(addr, insts.Word(value))
}

// ReadInst decodes the cell at addr as an instruction.
func (m *Memory) ReadInst(addr int64) (insts.Instruction, error) {
	w, err := m.ReadWord(addr)
	if err != nil {
		return insts.Instruction{}, err
	}
	return insts.Decode(w), nil
}

// WriteInst encodes inst into the cell at addr.
func (m *Memory) WriteInst(addr int64, inst insts.Instruction) error {
	return m.WriteWord(addr, insts.Encode(inst))
}

// Peek returns the data value at addr, or 0 when addr is out of range.
func (m *Memory) Peek(addr int64) int64 {
	if !m.InRange(addr) {
		return 0
	}
	return int64(m.cells[addr])
}

// Clone returns a deep copy of the memory.
func (m *Memory) Clone() *Memory {
	cells := make([]insts.Word, len(m.cells))
	copy(cells, m.cells)
	return &Memory{cells: cells}
}
