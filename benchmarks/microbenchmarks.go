// Package benchmarks provides timing benchmark infrastructure for ipsim.
package benchmarks

// GetMicrobenchmarks returns the standard set of microbenchmarks.
// Each benchmark targets a specific pipeline characteristic.
func GetMicrobenchmarks() []Benchmark {
	return []Benchmark{
		independentALU(),
		dependencyChain(),
		memoryRoundTrip(),
		countedLoop(),
		divideChain(),
		branchSkip(),
	}
}

// GetCoreBenchmarks returns a minimal set of benchmarks for quick validation:
// a hazard-bound chain, a loop and memory traffic.
func GetCoreBenchmarks() []Benchmark {
	return []Benchmark{
		dependencyChain(),
		countedLoop(),
		memoryRoundTrip(),
	}
}

// 1. Independent ALU - operands are produced well ahead of their use
func independentALU() Benchmark {
	return Benchmark{
		Name:        "independent_alu",
		Description: "7 SETs then 4 arithmetic ops on registers set long before",
		Program: `
0x0  set r1 3
0x4  set r2 4
0x8  set r3 5
0xC  set r4 6
0x10 set r5 7
0x14 set r6 8
0x18 set r7 9
0x1C add r8 r1 r2
0x20 mul r9 r3 r4
0x24 sub r10 r6 r5
0x28 add r11 r7 r1
`,
		Expected: map[uint8]int64{8: 7, 9: 30, 10: 1, 11: 12},
	}
}

// 2. Dependency Chain - every instruction reads the previous result
func dependencyChain() Benchmark {
	return Benchmark{
		Name:        "dependency_chain",
		Description: "6 dependent ADDs (r1 = r1 + r1) - measures the RAW interlock",
		Program: `
0x0  set r1 1
0x4  add r1 r1 r1
0x8  add r1 r1 r1
0xC  add r1 r1 r1
0x10 add r1 r1 r1
0x14 add r1 r1 r1
0x18 add r1 r1 r1
`,
		Expected: map[uint8]int64{1: 64},
	}
}

// 3. Memory Round Trip - store then load the same cell, plus a preloaded cell
func memoryRoundTrip() Benchmark {
	return Benchmark{
		Name:        "memory_round_trip",
		Description: "ST/LD through the same cell and a load from the memory image",
		Memory:      map[int64]int64{101: 7},
		Program: `
0x0  set r1 100
0x4  set r2 42
0x8  st r2 r1
0xC  ld r3 r1
0x10 set r4 101
0x14 ld r5 r4
0x18 add r6 r3 r5
`,
		Expected: map[uint8]int64{3: 42, 5: 7, 6: 49},
	}
}

// 4. Counted Loop - backward branch taken four times
func countedLoop() Benchmark {
	return Benchmark{
		Name:        "counted_loop",
		Description: "Sum 5+4+3+2+1 with a BGTZ loop - exercises prediction and squash",
		Program: `
0x0  set r1 5
0x4  set r2 0
0x8  set r3 1
0xC  add r2 r2 r1
0x10 sub r1 r1 r3
0x14 bgtz r1 -3
`,
		Expected: map[uint8]int64{1: 0, 2: 15},
	}
}

// 5. Divide Chain - repeated division by a constant
func divideChain() Benchmark {
	return Benchmark{
		Name:        "divide_chain",
		Description: "1000 / 2 / 2 / 2 / 5 through dependent DIVs",
		Program: `
0x0  set r1 1000
0x4  set r2 2
0x8  div r1 r1 r2
0xC  div r1 r1 r2
0x10 div r1 r1 r2
0x14 set r3 5
0x18 div r4 r1 r3
`,
		Expected: map[uint8]int64{1: 125, 4: 25},
	}
}

// 6. Branch Skip - forward taken branches over wrong-path SETs
func branchSkip() Benchmark {
	return Benchmark{
		Name:        "branch_skip",
		Description: "BEZ and BGTZ skipping one instruction each",
		Program: `
0x0  set r1 0
0x4  bez r1 1
0x8  set r2 99
0xC  set r3 1
0x10 bgtz r3 1
0x14 set r4 99
0x18 set r5 2
`,
		Expected: map[uint8]int64{2: 0, 3: 1, 4: 0, 5: 2},
	}
}
