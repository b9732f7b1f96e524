package loader

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/sarchlab/ipsim/emu"
)

// MemoryImage is a sequence of data values placed at memory[0], memory[1], ...
type MemoryImage []int64

// Install writes the image into memory starting at address 0.
func (img MemoryImage) Install(state *emu.State) error {
	for i, v := range img {
		if err := state.Memory.Write(int64(i), v); err != nil {
			return err
		}
	}
	return nil
}

// LoadMemoryImage parses the memory image file at path.
func LoadMemoryImage(path string) (MemoryImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory image: %w", err)
	}
	defer func() { _ = f.Close() }()

	img, err := ParseMemoryImage(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// ParseMemoryImage reads whitespace-separated decimal integers.
func ParseMemoryImage(r io.Reader) (MemoryImage, error) {
	var img MemoryImage
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanWords)

	for scanner.Scan() {
		v, err := strconv.ParseInt(scanner.Text(), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("word %d: %w: %q", len(img), ErrBadOperand, scanner.Text())
		}
		if len(img) >= emu.MemoryWords {
			return nil, fmt.Errorf("memory image exceeds %d words", emu.MemoryWords)
		}
		img = append(img, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read memory image: %w", err)
	}

	return img, nil
}

// Load reads both files and installs them into a fresh state: the memory
// image first, then the program, so the program wins where they overlap.
func Load(imagePath, programPath string) (*emu.State, *Program, error) {
	img, err := LoadMemoryImage(imagePath)
	if err != nil {
		return nil, nil, err
	}
	prog, err := LoadProgram(programPath)
	if err != nil {
		return nil, nil, err
	}

	state := emu.NewState()
	if err := img.Install(state); err != nil {
		return nil, nil, err
	}
	if err := prog.Install(state); err != nil {
		return nil, nil, err
	}
	return state, prog, nil
}
