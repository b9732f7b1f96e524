// Package loader reads program listings and memory images from text.
package loader

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sarchlab/ipsim/emu"
	"github.com/sarchlab/ipsim/insts"
)

// Load-time errors.
var (
	ErrUnknownMnemonic = errors.New("unknown mnemonic")
	ErrBadOperand      = errors.New("malformed operand")
	ErrBadAddress      = errors.New("invalid instruction address")
)

// Line is one instruction of a program listing.
type Line struct {
	// Addr is the byte address the instruction is placed at.
	Addr int64
	// Inst is the parsed instruction.
	Inst insts.Instruction
	// Source is the line number in the listing.
	Source int
}

// Program is a parsed program listing.
type Program struct {
	Lines []Line
}

// Len returns the number of instructions.
func (p *Program) Len() int {
	return len(p.Lines)
}

// Install encodes every instruction into memory at Addr/4 and records the
// program length as the fetch-exhaustion sentinel.
func (p *Program) Install(state *emu.State) error {
	for _, l := range p.Lines {
		if err := state.Memory.WriteInst(l.Addr/4, l.Inst); err != nil {
			return fmt.Errorf("line %d: %w", l.Source, err)
		}
	}
	state.TotalInstructions = len(p.Lines)
	return nil
}

// LoadProgram parses the program listing at path.
func LoadProgram(path string) (*Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open program file: %w", err)
	}
	defer func() { _ = f.Close() }()

	prog, err := ParseProgram(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return prog, nil
}

// ParseProgram parses lines of the form "<hex-address> <mnemonic> [operands]",
// e.g. "0x8 add r3 r1 r2". Missing trailing operands default to 0. Blank
// lines and text after ";" or "//" are ignored.
func ParseProgram(r io.Reader) (*Program, error) {
	prog := &Program{}
	scanner := bufio.NewScanner(r)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		text := stripComment(scanner.Text())
		fields := strings.Fields(strings.ReplaceAll(text, ",", " "))
		if len(fields) == 0 {
			continue
		}

		line, err := parseLine(fields)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		line.Source = lineNo
		prog.Lines = append(prog.Lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read program: %w", err)
	}

	return prog, nil
}

func stripComment(s string) string {
	if i := strings.Index(s, "//"); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = s[:i]
	}
	return s
}

func parseLine(fields []string) (Line, error) {
	addr, err := strconv.ParseInt(strings.TrimPrefix(strings.ToLower(fields[0]), "0x"), 16, 64)
	if err != nil {
		return Line{}, fmt.Errorf("%w: %q", ErrBadAddress, fields[0])
	}
	if addr%4 != 0 || addr < 0 || addr/4 >= emu.MemoryWords {
		return Line{}, fmt.Errorf("%w: 0x%X", ErrBadAddress, addr)
	}

	if len(fields) < 2 {
		return Line{}, fmt.Errorf("%w: missing mnemonic", ErrUnknownMnemonic)
	}
	op, ok := insts.LookupMnemonic(strings.ToLower(fields[1]))
	if !ok {
		return Line{}, fmt.Errorf("%w: %s", ErrUnknownMnemonic, fields[1])
	}

	operands := fields[2:]
	if len(operands) > 3 {
		return Line{}, fmt.Errorf("%w: %s takes at most 3 operands", ErrBadOperand, op)
	}
	var vals [3]int64
	for i, tok := range operands {
		v, err := parseOperand(tok)
		if err != nil {
			return Line{}, err
		}
		vals[i] = v
	}

	if vals[0] < 0 || vals[0] > 0xFF {
		return Line{}, fmt.Errorf("%w: %s", ErrBadOperand, operands[0])
	}
	if vals[1] < insts.MinOperand || vals[1] > insts.MaxOperand ||
		vals[2] < insts.MinOperand || vals[2] > insts.MaxOperand {
		return Line{}, fmt.Errorf("%w: immediate does not fit in 24 bits", ErrBadOperand)
	}

	inst := insts.Instruction{Op: op, Dest: uint8(vals[0]), Left: vals[1], Right: vals[2]}
	if err := inst.Validate(); err != nil {
		return Line{}, fmt.Errorf("%w: %v", ErrBadOperand, err)
	}

	return Line{Addr: addr, Inst: inst}, nil
}

// parseOperand accepts "r5", "R5", "#5", "5", "-3" and "0x1F".
func parseOperand(tok string) (int64, error) {
	s := strings.TrimPrefix(strings.ToLower(tok), "#")
	s = strings.TrimPrefix(s, "r")
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadOperand, tok)
	}
	return v, nil
}
