// Package config holds the JSON configuration of a simulation run.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// BranchMode selects how conditional branches move through the pipeline.
type BranchMode string

const (
	// BranchSpeculate admits branches, predicts at fetch and squashes
	// younger instructions when BR resolves a misprediction.
	BranchSpeculate BranchMode = "speculate"
	// BranchAtFetch consumes branches at fetch. They are redirected by the
	// predictor and never enter the pipeline.
	BranchAtFetch BranchMode = "fetch"
)

// HazardMode selects the fetch-time data hazard rule.
type HazardMode string

const (
	// HazardInterlock stalls any reader of a register still being produced
	// between IA and BR.
	HazardInterlock HazardMode = "interlock"
	// HazardLegacy stalls only a load or store whose address register is
	// the destination of the instruction in register read.
	HazardLegacy HazardMode = "legacy"
)

// IllegalPolicy selects what happens to an undecodable instruction once it
// reaches BR.
type IllegalPolicy string

const (
	// IllegalFault aborts the run.
	IllegalFault IllegalPolicy = "fault"
	// IllegalDrop logs a warning and turns the instruction into a bubble.
	IllegalDrop IllegalPolicy = "drop"
)

// CacheConfig describes the data-cache profile.
type CacheConfig struct {
	// Enabled turns on hit/miss profiling of data accesses.
	Enabled bool `json:"enabled"`

	// Size is the total capacity in bytes. Default: 4096.
	Size int `json:"size"`

	// Associativity is the number of ways per set. Default: 4.
	Associativity int `json:"associativity"`

	// BlockSize is the line size in bytes. Default: 64.
	BlockSize int `json:"block_size"`
}

// NumSets returns the number of sets implied by the geometry.
func (c CacheConfig) NumSets() int {
	if c.Associativity == 0 || c.BlockSize == 0 {
		return 0
	}
	return c.Size / (c.Associativity * c.BlockSize)
}

// SimConfig holds the tunable behavior of the pipeline.
type SimConfig struct {
	// BranchMode selects speculative or fetch-consumed branches.
	// Default: "speculate".
	BranchMode BranchMode `json:"branch_mode"`

	// PredictorUpdate trains the predictor when BR resolves a branch.
	// With it off the predictor stays never-taken. Default: false.
	PredictorUpdate bool `json:"predictor_update"`

	// HazardMode selects the data hazard rule. Default: "interlock".
	HazardMode HazardMode `json:"hazard_mode"`

	// IllegalInstruction selects the illegal instruction policy.
	// Default: "fault".
	IllegalInstruction IllegalPolicy `json:"illegal_instruction"`

	// RetHaltsFetch stops fetch once a RET is admitted. Default: false.
	RetHaltsFetch bool `json:"ret_halts_fetch"`

	// MaxCycles bounds a run. 0 means unbounded.
	MaxCycles uint64 `json:"max_cycles"`

	// DCache configures the data-cache profile.
	DCache CacheConfig `json:"dcache"`
}

// DefaultSimConfig returns the configuration every run starts from.
func DefaultSimConfig() *SimConfig {
	return &SimConfig{
		BranchMode:         BranchSpeculate,
		HazardMode:         HazardInterlock,
		IllegalInstruction: IllegalFault,
		DCache: CacheConfig{
			Size:          4096,
			Associativity: 4,
			BlockSize:     64,
		},
	}
}

// LoadConfig loads a SimConfig from a JSON file. Keys missing from the
// file keep their default values.
func LoadConfig(path string) (*SimConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultSimConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a SimConfig to a JSON file.
func (c *SimConfig) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks that every mode is known and the cache geometry is sound.
func (c *SimConfig) Validate() error {
	switch c.BranchMode {
	case BranchSpeculate, BranchAtFetch:
	default:
		return fmt.Errorf("branch_mode must be %q or %q, got %q",
			BranchSpeculate, BranchAtFetch, c.BranchMode)
	}
	switch c.HazardMode {
	case HazardInterlock, HazardLegacy:
	default:
		return fmt.Errorf("hazard_mode must be %q or %q, got %q",
			HazardInterlock, HazardLegacy, c.HazardMode)
	}
	switch c.IllegalInstruction {
	case IllegalFault, IllegalDrop:
	default:
		return fmt.Errorf("illegal_instruction must be %q or %q, got %q",
			IllegalFault, IllegalDrop, c.IllegalInstruction)
	}

	if !c.DCache.Enabled {
		return nil
	}
	if c.DCache.Associativity <= 0 || c.DCache.BlockSize <= 0 {
		return fmt.Errorf("dcache associativity and block_size must be > 0")
	}
	if c.DCache.BlockSize&(c.DCache.BlockSize-1) != 0 {
		return fmt.Errorf("dcache block_size must be a power of 2")
	}
	if c.DCache.NumSets() == 0 || c.DCache.Size%(c.DCache.Associativity*c.DCache.BlockSize) != 0 {
		return fmt.Errorf("dcache size must be a positive multiple of associativity*block_size")
	}
	return nil
}

// Clone returns a deep copy of the SimConfig.
func (c *SimConfig) Clone() *SimConfig {
	clone := *c
	return &clone
}
