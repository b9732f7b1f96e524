// Package main provides the entry point for ipsim, a cycle-level simulator
// of an eleven-stage in-order pipeline.
//
// Usage:
//
//	ipsim [flags] <memory-image> <program>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"golang.org/x/term"

	"github.com/sarchlab/ipsim/check"
	"github.com/sarchlab/ipsim/emu"
	"github.com/sarchlab/ipsim/loader"
	"github.com/sarchlab/ipsim/report"
	"github.com/sarchlab/ipsim/timing/config"
	"github.com/sarchlab/ipsim/timing/core"
	"github.com/sarchlab/ipsim/timing/pipeline"
	"github.com/sarchlab/ipsim/trace"
)

type options struct {
	configPath      string
	saveConfig      string
	quiet           bool
	pipelineView    bool
	emulate         bool
	tracePath       string
	traceFormat     string
	checkPath       string
	predictorUpdate bool
	branchMode      string
	hazardMode      string
	illegal         string
	retHaltsFetch   bool
	dcache          bool
	maxCycles       uint64
	columns         int
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the CLI and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ipsim", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.StringVar(&opts.configPath, "config", "", "Path to simulator configuration JSON file")
	fs.StringVar(&opts.saveConfig, "save-config", "", "Write the effective configuration to this path")
	fs.BoolVar(&opts.quiet, "quiet", false, "Suppress the per-cycle register dump")
	fs.BoolVar(&opts.pipelineView, "pipeline", false, "Show stage occupancy every cycle")
	fs.BoolVar(&opts.emulate, "emu", false, "Run the functional emulator instead of the pipeline")
	fs.StringVar(&opts.tracePath, "trace", "", "Write a per-cycle trace to this path")
	fs.StringVar(&opts.traceFormat, "trace-format", "", "Trace format: csv or parquet (default: from extension)")
	fs.StringVar(&opts.checkPath, "check", "", "Lua script run against the final state")
	fs.BoolVar(&opts.predictorUpdate, "predictor-update", false, "Train the branch predictor at resolution")
	fs.StringVar(&opts.branchMode, "branch-mode", "", "Branch handling: speculate or fetch")
	fs.StringVar(&opts.hazardMode, "hazard-mode", "", "Hazard rule: interlock or legacy")
	fs.StringVar(&opts.illegal, "illegal", "", "Illegal instruction policy: fault or drop")
	fs.BoolVar(&opts.retHaltsFetch, "ret-halts-fetch", false, "Stop fetch once a RET is admitted")
	fs.BoolVar(&opts.dcache, "dcache", false, "Attach the data-cache profile")
	fs.Uint64Var(&opts.maxCycles, "max-cycles", 0, "Abort after this many cycles (0: unbounded)")
	fs.IntVar(&opts.columns, "columns", 0, "Register dump columns (default: from terminal width)")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() < 2 {
		fmt.Fprintf(stderr, "Usage: ipsim [options] <memory-image> <program>\n")
		fmt.Fprintf(stderr, "\nOptions:\n")
		fs.PrintDefaults()
		return 1
	}

	cfg, err := buildConfig(fs, opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}
	if opts.saveConfig != "" {
		if err := cfg.SaveConfig(opts.saveConfig); err != nil {
			fmt.Fprintf(stderr, "Error saving config: %v\n", err)
			return 1
		}
	}

	state, _, err := loader.Load(fs.Arg(0), fs.Arg(1))
	if err != nil {
		fmt.Fprintf(stderr, "Error loading program: %v\n", err)
		return 1
	}

	reporter := report.New(stdout,
		report.WithColumns(columns(opts.columns, stdout)),
		report.WithQuiet(opts.quiet),
		report.WithPipelineView(opts.pipelineView),
	)

	if opts.emulate {
		return runEmulation(state, cfg, reporter, stdout, stderr)
	}
	return runTiming(state, cfg, reporter, opts, stdout, stderr)
}

// buildConfig loads the configuration file, if any, and applies the flags
// that were set explicitly on top of it.
func buildConfig(fs *flag.FlagSet, opts options) (*config.SimConfig, error) {
	cfg := config.DefaultSimConfig()
	if opts.configPath != "" {
		var err error
		cfg, err = config.LoadConfig(opts.configPath)
		if err != nil {
			return nil, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "predictor-update":
			cfg.PredictorUpdate = opts.predictorUpdate
		case "branch-mode":
			cfg.BranchMode = config.BranchMode(opts.branchMode)
		case "hazard-mode":
			cfg.HazardMode = config.HazardMode(opts.hazardMode)
		case "illegal":
			cfg.IllegalInstruction = config.IllegalPolicy(opts.illegal)
		case "ret-halts-fetch":
			cfg.RetHaltsFetch = opts.retHaltsFetch
		case "dcache":
			cfg.DCache.Enabled = opts.dcache
		case "max-cycles":
			cfg.MaxCycles = opts.maxCycles
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// columns returns the requested column count, or one derived from the
// terminal width when stdout is a terminal.
func columns(requested int, stdout io.Writer) int {
	if requested > 0 {
		return requested
	}
	f, ok := stdout.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 1
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 1
	}
	return report.ColumnsForWidth(width)
}

// runEmulation runs the program in functional emulation mode.
func runEmulation(
	state *emu.State,
	cfg *config.SimConfig,
	reporter *report.Reporter,
	stdout, stderr io.Writer,
) int {
	emulator := emu.NewEmulator(state,
		emu.WithHaltOnRet(cfg.RetHaltsFetch),
		emu.WithDropIllegal(cfg.IllegalInstruction == config.IllegalDrop),
	)

	if err := emulator.Run(); err != nil {
		fmt.Fprintf(stderr, "Error during emulation: %v\n", err)
		return 1
	}

	reporter.PrintRegisters(state.Regs.Snapshot())
	fmt.Fprintf(stdout, "Instructions executed: %d\n", emulator.InstructionCount())
	return 0
}

// runTiming runs the program on the pipeline.
func runTiming(
	state *emu.State,
	cfg *config.SimConfig,
	reporter *report.Reporter,
	opts options,
	stdout, stderr io.Writer,
) int {
	ctx := context.Background()

	logger := log.New(stderr, "ipsim: ", 0)
	c, err := core.NewCore(state, cfg, pipeline.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(stderr, "Error creating core: %v\n", err)
		return 1
	}
	c.AddObserver(reporter)

	var recorder *trace.Recorder
	if opts.tracePath != "" {
		recorder = trace.NewRecorder()
		c.AddObserver(recorder)
	}

	runErr := c.Run()

	if recorder != nil {
		if err := exportTrace(ctx, recorder, opts); err != nil {
			fmt.Fprintf(stderr, "Error writing trace: %v\n", err)
			return 1
		}
	}

	if runErr != nil {
		fmt.Fprintf(stderr, "Error during simulation: %v\n", runErr)
		return 1
	}

	if opts.quiet {
		reporter.PrintRegisters(state.Regs.Snapshot())
	}

	if opts.checkPath != "" {
		result, err := check.RunFile(ctx, opts.checkPath, check.SnapshotOf(c))
		if errors.Is(err, check.ErrCheckFailed) {
			for _, f := range result.Failures {
				fmt.Fprintf(stderr, "FAIL: %s\n", f)
			}
			fmt.Fprintf(stderr, "%d passed, %d failed\n", result.Passed, len(result.Failures))
			return 1
		}
		if err != nil {
			fmt.Fprintf(stderr, "Error running check: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "Checks passed: %d\n", result.Passed)
	}

	return 0
}

func exportTrace(ctx context.Context, recorder *trace.Recorder, opts options) error {
	format := trace.FormatForPath(opts.tracePath)
	if opts.traceFormat != "" {
		var err error
		format, err = trace.ParseFormat(opts.traceFormat)
		if err != nil {
			return err
		}
	}
	return recorder.Export(ctx, opts.tracePath, format)
}
