package pipeline

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/sarchlab/ipsim/emu"
	"github.com/sarchlab/ipsim/timing/cache"
	"github.com/sarchlab/ipsim/timing/config"
)

// ErrCycleLimit is returned when a run exceeds its configured cycle bound.
var ErrCycleLimit = errors.New("cycle limit exceeded")

// Statistics holds pipeline performance statistics.
type Statistics struct {
	// Cycles is the total number of cycles simulated.
	Cycles uint64
	// Instructions is the number of instructions committed at WB.
	Instructions uint64
	// Stalls is the number of cycles in which fetch was blocked.
	Stalls uint64
	// DataHazards is the number of stall cycles caused by a data hazard.
	DataHazards uint64
	// Flushes is the number of pipeline flushes (due to branch mispredictions).
	Flushes uint64
	// Squashed is the number of in-flight instructions discarded by flushes.
	Squashed uint64
	// Dropped is the number of illegal instructions turned into bubbles.
	Dropped uint64
	// BranchPredictions is the total number of branch predictions made.
	BranchPredictions uint64
	// BranchCorrect is the number of branches resolved at BR whose
	// speculated next PC was right.
	BranchCorrect uint64
	// BranchMispredictions is the number of branch mispredictions.
	BranchMispredictions uint64
	// FetchedBranches is the number of branches consumed at fetch.
	FetchedBranches uint64
}

// IPC returns the instructions committed per cycle.
func (s Statistics) IPC() float64 {
	if s.Cycles == 0 {
		return 0
	}
	return float64(s.Instructions) / float64(s.Cycles)
}

// CPI returns the cycles per instruction.
func (s Statistics) CPI() float64 {
	if s.Instructions == 0 {
		return 0
	}
	return float64(s.Cycles) / float64(s.Instructions)
}

// CycleEvents records what happened in the most recent cycle.
type CycleEvents struct {
	// Fetched is true if an instruction was admitted at IF.
	Fetched bool
	// FetchPC is the address of the admitted instruction.
	FetchPC int64
	// Stalled is true if fetch was blocked.
	Stalled bool
	// Committed is true if an instruction retired at WB.
	Committed bool
	// Squashed is the number of instructions discarded by a flush.
	Squashed int
}

// PipelineOption is a functional option for configuring the Pipeline.
type PipelineOption func(*Pipeline)

// WithConfig sets the simulation configuration. The pipeline keeps its own
// copy.
func WithConfig(cfg *config.SimConfig) PipelineOption {
	return func(p *Pipeline) {
		p.config = cfg.Clone()
	}
}

// WithBranchPredictor sets the branch predictor, e.g. to share a trained
// one between runs.
func WithBranchPredictor(bp *BranchPredictor) PipelineOption {
	return func(p *Pipeline) {
		p.branchPredictor = bp
	}
}

// WithHazardUnit overrides the hazard unit built from the configuration.
func WithHazardUnit(h *HazardUnit) PipelineOption {
	return func(p *Pipeline) {
		p.hazardUnit = h
	}
}

// WithDataCache attaches a data-cache profile to the memory stages.
func WithDataCache(profile *cache.Profile) PipelineOption {
	return func(p *Pipeline) {
		p.dcache = profile
	}
}

// WithLogger sets the logger used for runtime warnings.
func WithLogger(logger *log.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// Pipeline is an in-order, single-issue, eleven-stage pipeline operating
// directly on an architectural state.
type Pipeline struct {
	latches Latches

	state  *emu.State
	config *config.SimConfig

	hazardUnit      *HazardUnit
	branchPredictor *BranchPredictor
	dcache          *cache.Profile
	logger          *log.Logger

	// fetchHalted is set by RET when ret_halts_fetch is on.
	fetchHalted bool
	seq         uint64

	stats  Statistics
	events CycleEvents

	err error
}

// NewPipeline creates a pipeline that runs the program installed in state,
// starting at state.PC.
func NewPipeline(state *emu.State, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		state:  state,
		config: config.DefaultSimConfig(),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.hazardUnit == nil {
		p.hazardUnit = NewHazardUnit(p.config.HazardMode)
	}
	if p.branchPredictor == nil {
		p.branchPredictor = NewBranchPredictor()
	}
	if p.logger == nil {
		p.logger = log.New(io.Discard, "", 0)
	}

	return p
}

// State returns the architectural state the pipeline mutates.
func (p *Pipeline) State() *emu.State {
	return p.state
}

// Config returns the configuration in use.
func (p *Pipeline) Config() *config.SimConfig {
	return p.config
}

// Stats returns pipeline statistics.
func (p *Pipeline) Stats() Statistics {
	return p.stats
}

// PredictorStats returns the branch predictor statistics.
func (p *Pipeline) PredictorStats() BranchPredictorStats {
	return p.branchPredictor.Stats()
}

// DataCache returns the attached data-cache profile, or nil.
func (p *Pipeline) DataCache() *cache.Profile {
	return p.dcache
}

// LastCycle returns the events of the most recent cycle.
func (p *Pipeline) LastCycle() CycleEvents {
	return p.events
}

// Latches returns a snapshot of every latch.
func (p *Pipeline) Latches() Latches {
	return p.latches
}

// Latch returns a copy of the latch owned by stage s.
func (p *Pipeline) Latch(s Stage) Slot {
	return p.latches[s]
}

// Empty reports whether no latch holds a valid instruction.
func (p *Pipeline) Empty() bool {
	for s := range p.latches {
		if p.latches[s].Valid {
			return false
		}
	}
	return true
}

// FetchExhausted reports whether fetch can no longer admit instructions,
// either because PC has passed the program or a RET halted fetch.
func (p *Pipeline) FetchExhausted() bool {
	return p.fetchHalted || p.state.FetchExhausted()
}

// Done reports whether the program has drained.
func (p *Pipeline) Done() bool {
	return p.FetchExhausted() && p.Empty()
}

// Err returns the fault that stopped the pipeline, if any.
func (p *Pipeline) Err() error {
	return p.err
}

// Run executes the pipeline until the program drains or faults.
func (p *Pipeline) Run() error {
	for !p.Done() {
		if err := p.Tick(); err != nil {
			return err
		}
	}
	return nil
}

// RunCycles executes the pipeline for at most the specified number of
// cycles. It returns true if the program has not drained yet.
func (p *Pipeline) RunCycles(cycles uint64) (bool, error) {
	for i := uint64(0); i < cycles && !p.Done(); i++ {
		if err := p.Tick(); err != nil {
			return false, err
		}
	}
	return !p.Done(), nil
}

// Tick executes one pipeline cycle.
//
// Stages are evaluated in reverse order (WB→Mem2→...→ID→IF). Each stage
// acts on its latch and then hands it to the next stage, so an instruction
// advances exactly one stage per cycle and a younger instruction never
// overwrites an older one before the older one has moved on. IF fills its
// latch and hands it to ID in the same cycle.
//
// Once a fault has occurred Tick does nothing and returns it again.
func (p *Pipeline) Tick() error {
	if p.err != nil {
		return p.err
	}
	if p.config.MaxCycles > 0 && p.stats.Cycles >= p.config.MaxCycles {
		p.err = fmt.Errorf("%w: %d cycles", ErrCycleLimit, p.config.MaxCycles)
		return p.err
	}

	p.stats.Cycles++
	p.events = CycleEvents{}

	for s := StageWB; s >= StageIF; s-- {
		if err := p.evaluate(s); err != nil {
			p.err = fmt.Errorf("cycle %d, %v: %w", p.stats.Cycles, s, err)
			return p.err
		}
		p.advance(s)
	}

	// Only IF is consumed without being refilled.
	p.latches[StageIF].Clear()

	return nil
}

func (p *Pipeline) evaluate(s Stage) error {
	if s == StageIF {
		return p.fetch()
	}

	slot := &p.latches[s]
	if !slot.Valid {
		return nil
	}
	if slot.Illegal && s != StageBR {
		return nil
	}

	switch s {
	case StageWB:
		p.writeback(slot)
	case StageMem2:
		return p.memory2(slot)
	case StageMem1:
		return p.memory1(slot)
	case StageBR:
		return p.resolve(slot)
	case StageDiv:
		p.divide(slot)
	case StageMul:
		p.multiply(slot)
	case StageAdd:
		p.add(slot)
	case StageRR:
		p.readRegisters(slot)
	case StageIA:
		p.issue(slot)
	case StageID:
		p.decode(slot)
	}
	return nil
}

// advance hands the latch of s to the next stage. WB has no successor.
func (p *Pipeline) advance(s Stage) {
	if s == StageWB {
		p.latches[StageWB].Clear()
		return
	}
	p.latches[s+1] = p.latches[s]
}
