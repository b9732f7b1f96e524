// Package core drives a simulation run.
// It owns the pipeline, steps it cycle by cycle until the program drains,
// and hands every cycle to the registered observers.
package core

import (
	"github.com/sarchlab/ipsim/emu"
	"github.com/sarchlab/ipsim/insts"
	"github.com/sarchlab/ipsim/timing/cache"
	"github.com/sarchlab/ipsim/timing/config"
	"github.com/sarchlab/ipsim/timing/pipeline"
)

// Stats holds performance statistics for a run.
type Stats struct {
	pipeline.Statistics

	// Predictor holds the branch predictor statistics.
	Predictor pipeline.BranchPredictorStats

	// DCache holds the data-cache profile, or nil when it is disabled.
	DCache *cache.Statistics
}

// CycleInfo describes the state at the end of one cycle.
type CycleInfo struct {
	// Cycle is the 1-based cycle number.
	Cycle uint64
	// PC is the fetch address for the next cycle.
	PC int64
	// Events records what happened during the cycle.
	Events pipeline.CycleEvents
	// Latches is a snapshot of every stage latch.
	Latches pipeline.Latches
	// Regs is a snapshot of the register file.
	Regs [insts.NumRegs]int64
}

// Observer receives the progress of a run.
type Observer interface {
	// OnCycle is called after every cycle.
	OnCycle(info CycleInfo)
	// OnFinish is called once the program has drained.
	OnFinish(stats Stats)
}

// Core couples a pipeline with the observers of its run.
type Core struct {
	// Pipeline is the underlying eleven-stage pipeline.
	Pipeline *pipeline.Pipeline

	state     *emu.State
	observers []Observer
}

// NewCore validates cfg and creates a core running the program installed
// in state. A data-cache profile is attached when cfg enables one. Extra
// pipeline options are applied after the configuration.
func NewCore(state *emu.State, cfg *config.SimConfig, opts ...pipeline.PipelineOption) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pipeOpts := []pipeline.PipelineOption{pipeline.WithConfig(cfg)}
	if cfg.DCache.Enabled {
		pipeOpts = append(pipeOpts, pipeline.WithDataCache(cache.NewProfile(cfg.DCache)))
	}
	pipeOpts = append(pipeOpts, opts...)

	return &Core{
		Pipeline: pipeline.NewPipeline(state, pipeOpts...),
		state:    state,
	}, nil
}

// AddObserver registers an observer.
func (c *Core) AddObserver(o Observer) {
	c.observers = append(c.observers, o)
}

// State returns the architectural state.
func (c *Core) State() *emu.State {
	return c.state
}

// Tick executes one pipeline cycle and notifies observers.
func (c *Core) Tick() error {
	if err := c.Pipeline.Tick(); err != nil {
		return err
	}
	c.notifyCycle()
	return nil
}

// Done reports whether the program has drained.
func (c *Core) Done() bool {
	return c.Pipeline.Done()
}

// Halted returns true if the run stopped on a fault.
func (c *Core) Halted() bool {
	return c.Pipeline.Err() != nil
}

// Stats returns performance statistics for the run.
func (c *Core) Stats() Stats {
	stats := Stats{
		Statistics: c.Pipeline.Stats(),
		Predictor:  c.Pipeline.PredictorStats(),
	}
	if profile := c.Pipeline.DataCache(); profile != nil {
		s := profile.Stats()
		stats.DCache = &s
	}
	return stats
}

// Run executes the core until fetch is exhausted and the pipeline is
// empty, then calls OnFinish on every observer.
func (c *Core) Run() error {
	for !c.Done() {
		if err := c.Tick(); err != nil {
			return err
		}
	}
	c.finish()
	return nil
}

// RunCycles executes the core for at most the specified number of cycles.
// Returns true if still running. OnFinish fires if the program drains.
func (c *Core) RunCycles(cycles uint64) (bool, error) {
	for i := uint64(0); i < cycles && !c.Done(); i++ {
		if err := c.Tick(); err != nil {
			return false, err
		}
	}
	if c.Done() {
		c.finish()
		return false, nil
	}
	return true, nil
}

func (c *Core) notifyCycle() {
	if len(c.observers) == 0 {
		return
	}

	info := CycleInfo{
		Cycle:   c.Pipeline.Stats().Cycles,
		PC:      c.state.PC,
		Events:  c.Pipeline.LastCycle(),
		Latches: c.Pipeline.Latches(),
		Regs:    c.state.Regs.Snapshot(),
	}
	for _, o := range c.observers {
		o.OnCycle(info)
	}
}

func (c *Core) finish() {
	stats := c.Stats()
	for _, o := range c.observers {
		o.OnFinish(stats)
	}
}
