package benchmarks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sarchlab/ipsim/emu"
	"github.com/sarchlab/ipsim/insts"
	"github.com/sarchlab/ipsim/loader"
	"github.com/sarchlab/ipsim/timing/config"
	"github.com/sarchlab/ipsim/timing/core"
)

// BenchmarkResult holds the timing results for a single benchmark run.
type BenchmarkResult struct {
	// Name identifies the benchmark
	Name string `json:"name"`

	// Description explains what the benchmark measures
	Description string `json:"description"`

	// SimulatedCycles is the total cycle count from the timing simulator
	SimulatedCycles uint64 `json:"simulated_cycles"`

	// InstructionsRetired is the number of instructions committed at WB
	InstructionsRetired uint64 `json:"instructions_retired"`

	// IPC is instructions per cycle
	IPC float64 `json:"ipc"`

	// CPI is cycles per instruction
	CPI float64 `json:"cpi"`

	// StallCycles is the number of cycles fetch was blocked
	StallCycles uint64 `json:"stall_cycles"`

	// DataHazards is the number of stall cycles caused by RAW hazards
	DataHazards uint64 `json:"data_hazards"`

	// PipelineFlushes is the number of mispredict squashes
	PipelineFlushes uint64 `json:"pipeline_flushes"`

	// Squashed is the number of wrong-path instructions discarded
	Squashed uint64 `json:"squashed"`

	// DCacheHits/Misses (if the profile is enabled)
	DCacheHits   uint64 `json:"dcache_hits,omitempty"`
	DCacheMisses uint64 `json:"dcache_misses,omitempty"`

	// Branch stats
	BranchPredictions     uint64  `json:"branch_predictions,omitempty"`
	BranchCorrect         uint64  `json:"branch_correct,omitempty"`
	BranchMispredictions  uint64  `json:"branch_mispredictions,omitempty"`
	BranchAccuracyPercent float64 `json:"branch_accuracy_percent,omitempty"`

	// EmulatedInstructions is the instruction count of the functional run
	EmulatedInstructions uint64 `json:"emulated_instructions"`

	// Mismatches lists every disagreement with the functional emulator or
	// with the expected register values
	Mismatches []string `json:"mismatches,omitempty"`

	// Error is set when either run faulted
	Error string `json:"error,omitempty"`

	// WallTime is the actual time taken to run the simulation
	WallTime time.Duration `json:"wall_time_ns"`
}

// Passed reports whether the run finished and agreed with every reference.
func (r BenchmarkResult) Passed() bool {
	return r.Error == "" && len(r.Mismatches) == 0
}

// Benchmark defines a single benchmark program.
type Benchmark struct {
	// Name identifies the benchmark
	Name string

	// Description explains what the benchmark measures
	Description string

	// Memory is the initial memory image as word address to value
	Memory map[int64]int64

	// Program is the program listing
	Program string

	// Expected maps registers to their values once the program drains
	Expected map[uint8]int64
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// Sim is the pipeline configuration every benchmark runs with
	Sim *config.SimConfig

	// EnableDCache attaches the data-cache profile
	EnableDCache bool

	// Output is where to write results (default: os.Stdout)
	Output io.Writer

	// Verbose prints every mismatch under its benchmark
	Verbose bool
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		Sim:          config.DefaultSimConfig(),
		EnableDCache: true,
		Output:       os.Stdout,
	}
}

// Harness runs timing benchmarks and reports results.
type Harness struct {
	config     HarnessConfig
	benchmarks []Benchmark
}

// NewHarness creates a new benchmark harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Sim == nil {
		config.Sim = DefaultConfig().Sim
	}
	return &Harness{
		config:     config,
		benchmarks: []Benchmark{},
	}
}

// AddBenchmark adds a benchmark to the harness.
func (h *Harness) AddBenchmark(b Benchmark) {
	h.benchmarks = append(h.benchmarks, b)
}

// AddBenchmarks adds multiple benchmarks to the harness.
func (h *Harness) AddBenchmarks(benchmarks []Benchmark) {
	h.benchmarks = append(h.benchmarks, benchmarks...)
}

// RunAll executes all benchmarks and returns results.
func (h *Harness) RunAll() []BenchmarkResult {
	results := make([]BenchmarkResult, 0, len(h.benchmarks))

	for _, bench := range h.benchmarks {
		results = append(results, h.runBenchmark(bench))
	}

	return results
}

// NewState builds the architectural state a benchmark starts from.
func (b Benchmark) NewState() (*emu.State, error) {
	prog, err := loader.ParseProgram(strings.NewReader(b.Program))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name, err)
	}

	state := emu.NewState()
	for addr, value := range b.Memory {
		if err := state.Memory.Write(addr, value); err != nil {
			return nil, fmt.Errorf("%s: memory image: %w", b.Name, err)
		}
	}
	if err := prog.Install(state); err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name, err)
	}
	return state, nil
}

// runBenchmark executes a benchmark on the pipeline and on the functional
// emulator, then compares the final states.
func (h *Harness) runBenchmark(bench Benchmark) BenchmarkResult {
	result := BenchmarkResult{
		Name:        bench.Name,
		Description: bench.Description,
	}

	state, err := bench.NewState()
	if err != nil {
		result.Error = err.Error()
		return result
	}
	reference := state.Clone()

	cfg := h.config.Sim.Clone()
	cfg.DCache.Enabled = h.config.EnableDCache
	c, err := core.NewCore(state, cfg)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	start := time.Now()
	runErr := c.Run()
	result.WallTime = time.Since(start)

	stats := c.Stats()
	result.SimulatedCycles = stats.Cycles
	result.InstructionsRetired = stats.Instructions
	result.IPC = stats.IPC()
	result.CPI = stats.CPI()
	result.StallCycles = stats.Stalls
	result.DataHazards = stats.DataHazards
	result.PipelineFlushes = stats.Flushes
	result.Squashed = stats.Squashed
	result.BranchPredictions = stats.BranchPredictions
	result.BranchCorrect = stats.BranchCorrect
	result.BranchMispredictions = stats.BranchMispredictions
	if resolved := stats.BranchCorrect + stats.BranchMispredictions; resolved > 0 {
		result.BranchAccuracyPercent = float64(stats.BranchCorrect) / float64(resolved) * 100
	}
	if stats.DCache != nil {
		result.DCacheHits = stats.DCache.Hits
		result.DCacheMisses = stats.DCache.Misses
	}

	if runErr != nil {
		result.Error = runErr.Error()
		return result
	}

	emulator := emu.NewEmulator(reference,
		emu.WithHaltOnRet(cfg.RetHaltsFetch),
		emu.WithDropIllegal(cfg.IllegalInstruction == config.IllegalDrop),
	)
	if err := emulator.Run(); err != nil {
		result.Error = fmt.Sprintf("emulator: %v", err)
		return result
	}
	result.EmulatedInstructions = emulator.InstructionCount()
	result.Mismatches = compareStates(state, reference, bench.Expected)

	return result
}

// compareStates lists the differences between the pipeline's final state,
// the emulator's final state and the expected register values.
func compareStates(got, want *emu.State, expected map[uint8]int64) []string {
	var mismatches []string

	gotRegs, wantRegs := got.Regs.Snapshot(), want.Regs.Snapshot()
	for i := range gotRegs {
		if gotRegs[i] != wantRegs[i] {
			mismatches = append(mismatches,
				fmt.Sprintf("r%d: pipeline=%d emulator=%d", i, gotRegs[i], wantRegs[i]))
		}
	}

	for reg := uint8(0); reg < insts.NumRegs; reg++ {
		value, ok := expected[reg]
		if ok && gotRegs[reg] != value {
			mismatches = append(mismatches,
				fmt.Sprintf("r%d: got %d, expected %d", reg, gotRegs[reg], value))
		}
	}

	for addr := int64(0); addr < emu.MemoryWords; addr++ {
		if g, w := got.Memory.Peek(addr), want.Memory.Peek(addr); g != w {
			mismatches = append(mismatches,
				fmt.Sprintf("mem[%d]: pipeline=%d emulator=%d", addr, g, w))
		}
	}

	return mismatches
}

// PrintResults outputs benchmark results in a human-readable format.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	out := h.config.Output
	_, _ = fmt.Fprintln(out, "=== ipsim Timing Benchmark Results ===")
	_, _ = fmt.Fprintln(out, "")

	for _, r := range results {
		_, _ = fmt.Fprintf(out, "Benchmark: %s\n", r.Name)
		_, _ = fmt.Fprintf(out, "  Description: %s\n", r.Description)
		if r.Error != "" {
			_, _ = fmt.Fprintf(out, "  Error: %s\n", r.Error)
		}
		_, _ = fmt.Fprintln(out, "  --- Timing ---")
		_, _ = fmt.Fprintf(out, "  Simulated Cycles:     %d\n", r.SimulatedCycles)
		_, _ = fmt.Fprintf(out, "  Instructions Retired: %d\n", r.InstructionsRetired)
		_, _ = fmt.Fprintf(out, "  IPC:                  %.3f\n", r.IPC)
		_, _ = fmt.Fprintf(out, "  CPI:                  %.3f\n", r.CPI)
		_, _ = fmt.Fprintf(out, "  Stall Cycles:         %d\n", r.StallCycles)
		_, _ = fmt.Fprintf(out, "  Data Hazards:         %d\n", r.DataHazards)
		_, _ = fmt.Fprintf(out, "  Pipeline Flushes:     %d\n", r.PipelineFlushes)
		if r.Squashed > 0 {
			_, _ = fmt.Fprintf(out, "  Squashed:             %d\n", r.Squashed)
		}

		if r.DCacheHits > 0 || r.DCacheMisses > 0 {
			_, _ = fmt.Fprintln(out, "  --- D-Cache ---")
			_, _ = fmt.Fprintf(out, "  Hits:   %d\n", r.DCacheHits)
			_, _ = fmt.Fprintf(out, "  Misses: %d\n", r.DCacheMisses)
		}

		if r.BranchPredictions > 0 {
			_, _ = fmt.Fprintln(out, "  --- Branches ---")
			_, _ = fmt.Fprintf(out, "  Predictions:     %d\n", r.BranchPredictions)
			_, _ = fmt.Fprintf(out, "  Correct:         %d\n", r.BranchCorrect)
			_, _ = fmt.Fprintf(out, "  Mispredictions:  %d\n", r.BranchMispredictions)
			_, _ = fmt.Fprintf(out, "  Accuracy:        %.1f%%\n", r.BranchAccuracyPercent)
		}

		_, _ = fmt.Fprintln(out, "  --- Reference ---")
		_, _ = fmt.Fprintf(out, "  Emulated Instructions: %d\n", r.EmulatedInstructions)
		if r.Passed() {
			_, _ = fmt.Fprintln(out, "  Agreement: ok")
		} else {
			_, _ = fmt.Fprintf(out, "  Agreement: %d mismatches\n", len(r.Mismatches))
			if h.config.Verbose {
				for _, m := range r.Mismatches {
					_, _ = fmt.Fprintf(out, "    %s\n", m)
				}
			}
		}

		_, _ = fmt.Fprintf(out, "  Wall Time: %v\n", r.WallTime)
		_, _ = fmt.Fprintln(out, "")
	}
}

// PrintCSV outputs benchmark results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,cycles,instructions,ipc,cpi,stalls,data_hazards,flushes,squashed,dcache_hits,dcache_misses,mispredictions,passed")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%d,%d,%.3f,%.3f,%d,%d,%d,%d,%d,%d,%d,%t\n",
			r.Name,
			r.SimulatedCycles,
			r.InstructionsRetired,
			r.IPC,
			r.CPI,
			r.StallCycles,
			r.DataHazards,
			r.PipelineFlushes,
			r.Squashed,
			r.DCacheHits,
			r.DCacheMisses,
			r.BranchMispredictions,
			r.Passed(),
		)
	}
}

// BenchmarkReport is the complete output format for benchmark results.
type BenchmarkReport struct {
	// Metadata about the benchmark run
	Metadata ReportMetadata `json:"metadata"`

	// Results is the list of individual benchmark results
	Results []BenchmarkResult `json:"results"`

	// Summary contains aggregate statistics
	Summary ReportSummary `json:"summary"`
}

// ReportMetadata contains information about the benchmark run.
type ReportMetadata struct {
	// Timestamp when the benchmark was run
	Timestamp string `json:"timestamp"`

	// Config is the pipeline configuration used
	Config *config.SimConfig `json:"config"`
}

// ReportSummary contains aggregate statistics across all benchmarks.
type ReportSummary struct {
	TotalBenchmarks   int           `json:"total_benchmarks"`
	Passed            int           `json:"passed"`
	TotalCycles       uint64        `json:"total_cycles"`
	TotalInstructions uint64        `json:"total_instructions"`
	AverageCPI        float64       `json:"average_cpi"`
	TotalWallTime     time.Duration `json:"total_wall_time_ns"`
}

// Summarize aggregates results.
func Summarize(results []BenchmarkResult) ReportSummary {
	summary := ReportSummary{TotalBenchmarks: len(results)}
	for _, r := range results {
		summary.TotalCycles += r.SimulatedCycles
		summary.TotalInstructions += r.InstructionsRetired
		summary.TotalWallTime += r.WallTime
		if r.Passed() {
			summary.Passed++
		}
	}
	if summary.TotalInstructions > 0 {
		summary.AverageCPI = float64(summary.TotalCycles) / float64(summary.TotalInstructions)
	}
	return summary
}

// PrintJSON outputs benchmark results in JSON format for automated comparison.
func (h *Harness) PrintJSON(results []BenchmarkResult) error {
	cfg := h.config.Sim.Clone()
	cfg.DCache.Enabled = h.config.EnableDCache

	report := BenchmarkReport{
		Metadata: ReportMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Config:    cfg,
		},
		Results: results,
		Summary: Summarize(results),
	}

	encoder := json.NewEncoder(h.config.Output)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
