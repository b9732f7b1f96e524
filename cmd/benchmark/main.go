// Command benchmark runs the ipsim timing benchmark harness.
//
// Usage:
//
//	go run ./cmd/benchmark [flags]
//
// Flags:
//
//	-csv        Output results in CSV format (default: human-readable)
//	-json       Output results as a JSON report
//	-core       Run only the core benchmark set
//	-config     Pipeline configuration JSON file
//	-no-dcache  Disable the data-cache profile
//	-v          List every mismatch
//
// Every benchmark also runs on the functional emulator; the process exits
// with status 1 when any result disagrees.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/ipsim/benchmarks"
	"github.com/sarchlab/ipsim/timing/config"
)

func main() {
	csvOutput := flag.Bool("csv", false, "Output results in CSV format")
	jsonOutput := flag.Bool("json", false, "Output results as a JSON report")
	coreOnly := flag.Bool("core", false, "Run only the core benchmark set")
	configPath := flag.String("config", "", "Path to pipeline configuration JSON file")
	noDCache := flag.Bool("no-dcache", false, "Disable the data-cache profile")
	verbose := flag.Bool("v", false, "List every mismatch")
	flag.Parse()

	cfg := benchmarks.DefaultConfig()
	cfg.EnableDCache = !*noDCache
	cfg.Verbose = *verbose
	cfg.Output = os.Stdout
	if *configPath != "" {
		sim, err := config.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		cfg.Sim = sim
	}

	harness := benchmarks.NewHarness(cfg)
	if *coreOnly {
		harness.AddBenchmarks(benchmarks.GetCoreBenchmarks())
	} else {
		harness.AddBenchmarks(benchmarks.GetMicrobenchmarks())
	}

	if !*csvOutput && !*jsonOutput {
		fmt.Println("ipsim Timing Benchmark Harness")
		fmt.Println("==============================")
		fmt.Printf("Branch mode: %s\n", cfg.Sim.BranchMode)
		fmt.Printf("Hazard mode: %s\n", cfg.Sim.HazardMode)
		fmt.Printf("D-Cache:     %v\n", cfg.EnableDCache)
		fmt.Println("")
	}

	results := harness.RunAll()

	switch {
	case *jsonOutput:
		if err := harness.PrintJSON(results); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
			os.Exit(1)
		}
	case *csvOutput:
		harness.PrintCSV(results)
	default:
		harness.PrintResults(results)

		summary := benchmarks.Summarize(results)
		fmt.Println("=== Summary ===")
		fmt.Printf("Passed:       %d/%d\n", summary.Passed, summary.TotalBenchmarks)
		fmt.Printf("Cycles:       %d\n", summary.TotalCycles)
		fmt.Printf("Instructions: %d\n", summary.TotalInstructions)
		fmt.Printf("Average CPI:  %.3f\n", summary.AverageCPI)
	}

	if summary := benchmarks.Summarize(results); summary.Passed != summary.TotalBenchmarks {
		os.Exit(1)
	}
}
