// Package report prints a run to a console: the register file after every
// cycle and a summary once the program has drained.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/sarchlab/ipsim/insts"
	"github.com/sarchlab/ipsim/timing/core"
	"github.com/sarchlab/ipsim/timing/pipeline"
)

// cellWidth is the printed width of one register cell.
const cellWidth = 32

// Reporter is a core.Observer writing human-readable output.
type Reporter struct {
	w        io.Writer
	columns  int
	quiet    bool
	pipeline bool
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithColumns lays the register dump out in n columns. Values below 1
// mean 1.
func WithColumns(n int) Option {
	return func(r *Reporter) {
		r.columns = max(n, 1)
	}
}

// WithQuiet suppresses the per-cycle dump. The summary is still printed.
func WithQuiet(quiet bool) Option {
	return func(r *Reporter) {
		r.quiet = quiet
	}
}

// WithPipelineView adds a line per cycle showing which stage holds which
// instruction.
func WithPipelineView(show bool) Option {
	return func(r *Reporter) {
		r.pipeline = show
	}
}

// New creates a reporter writing to w.
func New(w io.Writer, opts ...Option) *Reporter {
	r := &Reporter{w: w, columns: 1}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ColumnsForWidth returns how many register cells fit in a terminal of the
// given width.
func ColumnsForWidth(width int) int {
	n := width / (cellWidth + 2)
	return min(max(n, 1), 4)
}

// OnCycle prints the clock cycle and the register file.
func (r *Reporter) OnCycle(info core.CycleInfo) {
	if r.quiet {
		return
	}

	rule := r.rule()
	fmt.Fprintln(r.w, strings.Repeat("=", len(rule)))
	fmt.Fprintf(r.w, "Clock Cycle #: %d\n", info.Cycle)
	if r.pipeline {
		fmt.Fprintln(r.w, FormatLatches(&info.Latches))
	}
	fmt.Fprintln(r.w, rule)
	r.printRegisters(info.Regs)
	fmt.Fprintln(r.w, strings.Repeat("=", len(rule)))
	fmt.Fprintln(r.w)
}

// OnFinish prints the run summary.
func (r *Reporter) OnFinish(stats core.Stats) {
	PrintSummary(r.w, stats)
}

// PrintRegisters prints the final architectural register file.
func (r *Reporter) PrintRegisters(regs [insts.NumRegs]int64) {
	rule := r.rule()
	fmt.Fprintln(r.w, strings.Repeat("=", len(rule)))
	fmt.Fprintln(r.w)
	fmt.Fprintln(r.w, "=============== STATE OF ARCHITECTURAL REGISTER FILE ==========")
	fmt.Fprintln(r.w)
	fmt.Fprintln(r.w, rule)
	r.printRegisters(regs)
	fmt.Fprintln(r.w, strings.Repeat("=", len(rule)))
	fmt.Fprintln(r.w)
}

func (r *Reporter) rule() string {
	width := r.columns*cellWidth + (r.columns-1)*2
	return strings.Repeat("-", width)
}

func (r *Reporter) printRegisters(regs [insts.NumRegs]int64) {
	rule := r.rule()
	cells := make([]string, 0, r.columns)

	for reg := range regs {
		cells = append(cells, fmt.Sprintf("%-*s", cellWidth,
			fmt.Sprintf("REG[%2d]   |   Value=%d", reg, regs[reg])))
		if len(cells) == r.columns || reg == len(regs)-1 {
			fmt.Fprintln(r.w, strings.TrimRight(strings.Join(cells, "  "), " "))
			fmt.Fprintln(r.w, rule)
			cells = cells[:0]
		}
	}
}

// FormatLatches renders the occupied stages as "IF:- ID:set r1 5 ...".
func FormatLatches(latches *pipeline.Latches) string {
	parts := make([]string, 0, pipeline.NumStages)
	for s := range latches {
		slot := &latches[s]
		text := "-"
		if slot.Valid {
			text = fmt.Sprintf("#%d", slot.Seq)
		}
		parts = append(parts, fmt.Sprintf("%v:%s", pipeline.Stage(s), text))
	}
	return strings.Join(parts, " ")
}

// PrintSummary writes the final counters of a run.
func PrintSummary(w io.Writer, stats core.Stats) {
	fmt.Fprintf(w, "Stalled cycles due to data hazard: %d\n", stats.DataHazards)
	fmt.Fprintf(w, "Total execution cycles: %d\n", stats.Cycles)
	fmt.Fprintf(w, "Total instruction simulated: %d\n", stats.Instructions)
	fmt.Fprintf(w, "IPC: %f\n", stats.IPC())

	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Pipeline Events:\n")
	fmt.Fprintf(w, "  Stalls:   %d\n", stats.Stalls)
	fmt.Fprintf(w, "  Flushes:  %d (%d squashed)\n", stats.Flushes, stats.Squashed)
	fmt.Fprintf(w, "  Dropped:  %d\n", stats.Dropped)
	fmt.Fprintf(w, "  Branches: %d predicted, %d correct, %d mispredicted, %d at fetch\n",
		stats.BranchPredictions, stats.BranchCorrect, stats.BranchMispredictions, stats.FetchedBranches)

	if stats.DCache != nil {
		d := stats.DCache
		fmt.Fprintf(w, "\n")
		fmt.Fprintf(w, "D-Cache:\n")
		fmt.Fprintf(w, "  Reads: %d  Writes: %d\n", d.Reads, d.Writes)
		fmt.Fprintf(w, "  Hits:  %d  Misses: %d  (%.1f%% hit rate)\n", d.Hits, d.Misses, d.HitRate())
		fmt.Fprintf(w, "  Evictions: %d  Writebacks: %d\n", d.Evictions, d.Writebacks)
	}
}
