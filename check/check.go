// Package check runs Lua assertion scripts against the final state of a
// simulation run.
//
// A script sees these globals:
//
//	reg(i)            value of register i
//	mem(addr)         data value of memory cell addr
//	stats             table: cycles, instructions, stalls, data_hazards,
//	                  flushes, squashed, dropped, ipc
//	expect(cond, msg) records a failed expectation when cond is false
//
// Example:
//
//	expect(reg(3) == 12, "r3 holds the sum")
//	expect(stats.stalls > 0)
package check

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/sarchlab/ipsim/emu"
	"github.com/sarchlab/ipsim/insts"
	"github.com/sarchlab/ipsim/timing/core"
)

// ErrCheckFailed is returned when at least one expectation fails.
var ErrCheckFailed = errors.New("check failed")

// Snapshot is the state a script inspects.
type Snapshot struct {
	Regs   [insts.NumRegs]int64
	Memory *emu.Memory
	Stats  core.Stats
}

// SnapshotOf captures the final state of a core.
func SnapshotOf(c *core.Core) Snapshot {
	return Snapshot{
		Regs:   c.State().Regs.Snapshot(),
		Memory: c.State().Memory,
		Stats:  c.Stats(),
	}
}

// Result summarizes a script run.
type Result struct {
	Passed   int
	Failures []string
}

// Run executes script against snap. A Lua error is returned as is; failed
// expectations are returned as ErrCheckFailed along with the Result.
func Run(ctx context.Context, script string, snap Snapshot) (Result, error) {
	L := lua.NewState()
	defer L.Close()
	L.SetContext(ctx)

	result := Result{}
	install(L, snap, &result)

	if err := L.DoString(script); err != nil {
		return result, fmt.Errorf("lua: %w", err)
	}
	if len(result.Failures) > 0 {
		return result, fmt.Errorf("%w: %s", ErrCheckFailed, strings.Join(result.Failures, "; "))
	}
	return result, nil
}

// RunFile executes the script at path.
func RunFile(ctx context.Context, path string, snap Snapshot) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read check script: %w", err)
	}
	return Run(ctx, string(data), snap)
}

func install(L *lua.LState, snap Snapshot, result *Result) {
	L.SetGlobal("reg", L.NewFunction(func(L *lua.LState) int {
		i := L.CheckInt(1)
		if i < 0 || i >= insts.NumRegs {
			L.ArgError(1, "register out of range")
			return 0
		}
		L.Push(lua.LNumber(snap.Regs[i]))
		return 1
	}))

	L.SetGlobal("mem", L.NewFunction(func(L *lua.LState) int {
		addr := int64(L.CheckInt(1))
		if snap.Memory == nil || !snap.Memory.InRange(addr) {
			L.ArgError(1, "address out of range")
			return 0
		}
		L.Push(lua.LNumber(snap.Memory.Peek(addr)))
		return 1
	}))

	L.SetGlobal("expect", L.NewFunction(func(L *lua.LState) int {
		ok := L.ToBool(1)
		msg := L.OptString(2, fmt.Sprintf("expectation %d", result.Passed+len(result.Failures)+1))
		if ok {
			result.Passed++
		} else {
			result.Failures = append(result.Failures, msg)
		}
		return 0
	}))

	s := snap.Stats
	stats := L.NewTable()
	for name, v := range map[string]float64{
		"cycles":       float64(s.Cycles),
		"instructions": float64(s.Instructions),
		"stalls":       float64(s.Stalls),
		"data_hazards": float64(s.DataHazards),
		"flushes":      float64(s.Flushes),
		"squashed":     float64(s.Squashed),
		"dropped":      float64(s.Dropped),
		"ipc":          s.IPC(),
	} {
		L.SetField(stats, name, lua.LNumber(v))
	}
	L.SetGlobal("stats", stats)
}
