package pipeline_test

import (
	"bytes"
	"log"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ipsim/emu"
	"github.com/sarchlab/ipsim/insts"
	"github.com/sarchlab/ipsim/timing/cache"
	"github.com/sarchlab/ipsim/timing/config"
	"github.com/sarchlab/ipsim/timing/pipeline"
)

const addProgram = `
0x0 set r1 5
0x4 set r2 7
0x8 add r3 r1 r2
0xC ret
`

const loopProgram = `
0x0  set r1 -3
0x4  set r2 1
0x8  add r1 r1 r2
0xC  bltz r1 -2
0x10 set r3 9
`

var _ = Describe("Pipeline", func() {
	var cfg *config.SimConfig

	BeforeEach(func() {
		cfg = config.DefaultSimConfig()
	})

	Describe("NewPipeline", func() {
		It("should be done immediately for an empty program", func() {
			pipe := pipeline.NewPipeline(emu.NewState())
			Expect(pipe.Done()).To(BeTrue())
			Expect(pipe.Run()).To(Succeed())
			Expect(pipe.Stats().Cycles).To(BeZero())
		})

		It("should copy the configuration", func() {
			pipe := pipeline.NewPipeline(emu.NewState(), pipeline.WithConfig(cfg))
			cfg.MaxCycles = 5
			Expect(pipe.Config().MaxCycles).To(BeZero())
		})
	})

	Describe("Hazard-free programs", func() {
		It("should take N+10 cycles", func() {
			pipe := pipeline.NewPipeline(newState(`
0x0 set r1 1
0x4 set r2 2
0x8 set r3 3
0xC set r4 4
`))
			Expect(pipe.Run()).To(Succeed())

			stats := pipe.Stats()
			Expect(stats.Cycles).To(Equal(uint64(14)))
			Expect(stats.Instructions).To(Equal(uint64(4)))
			Expect(stats.Stalls).To(BeZero())
			Expect(stats.IPC()).To(BeNumerically("~", 4.0/14.0))
			Expect(stats.CPI()).To(BeNumerically("~", 3.5))
			regs := pipe.State().Regs.Snapshot()
			Expect(regs[1:5]).To(Equal([]int64{1, 2, 3, 4}))
		})

		It("should become empty exactly when the run terminates", func() {
			pipe := pipeline.NewPipeline(newState("0x0 set r1 1\n0x4 set r2 2\n"))
			for cycle := 1; cycle <= 11; cycle++ {
				Expect(pipe.Tick()).To(Succeed())
				Expect(pipe.Empty()).To(BeFalse(), "cycle %d", cycle)
				Expect(pipe.Done()).To(BeFalse())
			}
			Expect(pipe.Tick()).To(Succeed())
			Expect(pipe.FetchExhausted()).To(BeTrue())
			Expect(pipe.Empty()).To(BeTrue())
			Expect(pipe.Done()).To(BeTrue())
		})

		It("should commit one instruction per program line", func() {
			pipe := pipeline.NewPipeline(newState(addProgram))
			Expect(pipe.Run()).To(Succeed())
			Expect(pipe.Stats().Instructions).To(Equal(uint64(4)))
		})
	})

	Describe("Data hazards", func() {
		It("should compute set/set/add with interlocks", func() {
			pipe := pipeline.NewPipeline(newState(addProgram))
			Expect(pipe.Run()).To(Succeed())

			stats := pipe.Stats()
			Expect(pipe.State().Regs.ReadReg(3)).To(Equal(int64(12)))
			Expect(stats.Stalls).To(Equal(uint64(6)))
			Expect(stats.DataHazards).To(Equal(uint64(6)))
			Expect(stats.Cycles).To(Equal(uint64(20)))
			Expect(stats.IPC()).To(BeNumerically("<=", 4.0/14.0))
		})

		It("should round-trip a store through memory into a load", func() {
			pipe := pipeline.NewPipeline(newState(`
0x0 set r1 100
0x4 set r2 42
0x8 st r2 r1
0xC ld r3 r1
`))
			Expect(pipe.Run()).To(Succeed())

			Expect(pipe.State().Memory.Peek(100)).To(Equal(int64(42)))
			Expect(pipe.State().Regs.ReadReg(3)).To(Equal(int64(42)))
		})

		It("should stall a load that uses the previous load's result", func() {
			state := newState(`
0x0 set r1 7
0x4 ld r2 r1
0x8 ld r3 r2
`)
			Expect(state.Memory.Write(7, 9)).To(Succeed())
			Expect(state.Memory.Write(9, 55)).To(Succeed())
			pipe := pipeline.NewPipeline(state)

			Expect(pipe.Run()).To(Succeed())
			Expect(pipe.Stats().Stalls).To(Equal(uint64(12)))
			Expect(pipe.Stats().Cycles).To(Equal(uint64(25)))
			Expect(state.Regs.ReadReg(3)).To(Equal(int64(55)))
		})

		It("should report a stall in the cycle it happens", func() {
			pipe := pipeline.NewPipeline(newState(addProgram))
			_, err := pipe.RunCycles(3)
			Expect(err).NotTo(HaveOccurred())
			Expect(pipe.LastCycle().Stalled).To(BeTrue())
			Expect(pipe.LastCycle().Fetched).To(BeFalse())
		})

		Context("in legacy mode", func() {
			BeforeEach(func() {
				cfg.HazardMode = config.HazardLegacy
			})

			It("should not protect arithmetic reads", func() {
				pipe := pipeline.NewPipeline(newState(addProgram), pipeline.WithConfig(cfg))
				Expect(pipe.Run()).To(Succeed())

				Expect(pipe.Stats().Stalls).To(BeZero())
				Expect(pipe.Stats().Cycles).To(Equal(uint64(14)))
				Expect(pipe.State().Regs.ReadReg(3)).To(BeZero())
			})

			It("should stall a load on an address register in RR", func() {
				pipe := pipeline.NewPipeline(newState(`
0x0 set r1 7
0x4 set r5 1
0x8 ld r2 r1
`), pipeline.WithConfig(cfg))
				Expect(pipe.Run()).To(Succeed())

				Expect(pipe.Stats().Stalls).To(Equal(uint64(1)))
				Expect(pipe.Stats().DataHazards).To(Equal(uint64(1)))
				Expect(pipe.Stats().Cycles).To(Equal(uint64(14)))
			})
		})

		It("should accept a hazard unit override", func() {
			pipe := pipeline.NewPipeline(newState(addProgram),
				pipeline.WithHazardUnit(pipeline.NewHazardUnit(config.HazardLegacy)))
			Expect(pipe.Run()).To(Succeed())
			Expect(pipe.Stats().Stalls).To(BeZero())
		})
	})

	Describe("Branches", func() {
		It("should squash the wrong path on a taken branch", func() {
			pipe := pipeline.NewPipeline(newState(loopProgram))
			Expect(pipe.Run()).To(Succeed())

			stats := pipe.Stats()
			regs := pipe.State().Regs
			Expect(regs.ReadReg(1)).To(BeZero())
			Expect(regs.ReadReg(3)).To(Equal(int64(9)))
			Expect(stats.Instructions).To(Equal(uint64(9)))
			Expect(stats.BranchPredictions).To(Equal(uint64(3)))
			Expect(stats.BranchCorrect).To(Equal(uint64(1)))
			Expect(stats.BranchMispredictions).To(Equal(uint64(2)))
			Expect(stats.Flushes).To(Equal(uint64(2)))
			Expect(stats.Squashed).To(Equal(uint64(2)))
		})

		It("should agree with the functional emulator", func() {
			state := newState(loopProgram)
			ref := state.Clone()

			Expect(pipeline.NewPipeline(state).Run()).To(Succeed())
			em := emu.NewEmulator(ref)
			Expect(em.Run()).To(Succeed())

			Expect(state.Regs.Snapshot()).To(Equal(ref.Regs.Snapshot()))
		})

		It("should train the predictor when updates are enabled", func() {
			cfg.PredictorUpdate = true
			pipe := pipeline.NewPipeline(newState(loopProgram), pipeline.WithConfig(cfg))
			Expect(pipe.Run()).To(Succeed())

			Expect(pipe.State().Regs.ReadReg(3)).To(Equal(int64(9)))
			Expect(pipe.Stats().BranchMispredictions).To(Equal(uint64(3)))
			Expect(pipe.Stats().Flushes).To(Equal(uint64(3)))
			Expect(pipe.PredictorStats().Mispredictions).To(Equal(uint64(3)))
		})

		It("should leave a shared predictor untouched without updates", func() {
			bp := pipeline.NewBranchPredictor()
			pipe := pipeline.NewPipeline(newState(loopProgram), pipeline.WithBranchPredictor(bp))
			Expect(pipe.Run()).To(Succeed())

			Expect(bp.Counter(0xC)).To(BeZero())
			Expect(bp.Stats().Predictions).To(Equal(uint64(3)))
		})

		It("should not fault on an illegal instruction on the wrong path", func() {
			state := newState(`
0x0 bez r0 1
0x4 ret
0x8 set r1 1
`)
			Expect(state.Memory.WriteWord(1, insts.Word(0xFF)<<56)).To(Succeed())
			pipe := pipeline.NewPipeline(state)

			Expect(pipe.Run()).To(Succeed())
			Expect(state.Regs.ReadReg(1)).To(Equal(int64(1)))
			Expect(pipe.Stats().Squashed).To(Equal(uint64(2)))
		})

		It("should lift a fetch halt caused by a squashed RET", func() {
			cfg.RetHaltsFetch = true
			state := newState(`
0x0 bez r0 1
0x4 ret
0x8 set r1 1
`)
			pipe := pipeline.NewPipeline(state, pipeline.WithConfig(cfg))

			Expect(pipe.Run()).To(Succeed())
			Expect(state.Regs.ReadReg(1)).To(Equal(int64(1)))
			Expect(pipe.Stats().Instructions).To(Equal(uint64(2)))
		})

		Context("when consumed at fetch", func() {
			BeforeEach(func() {
				cfg.BranchMode = config.BranchAtFetch
			})

			It("should follow the prediction and never admit the branch", func() {
				pipe := pipeline.NewPipeline(newState(loopProgram), pipeline.WithConfig(cfg))
				Expect(pipe.Run()).To(Succeed())

				stats := pipe.Stats()
				Expect(pipe.State().Regs.ReadReg(1)).To(Equal(int64(-2)))
				Expect(pipe.State().Regs.ReadReg(3)).To(Equal(int64(9)))
				Expect(stats.Instructions).To(Equal(uint64(4)))
				Expect(stats.FetchedBranches).To(Equal(uint64(1)))
				Expect(stats.BranchMispredictions).To(BeZero())
				Expect(stats.Flushes).To(BeZero())
			})
		})
	})

	Describe("RET", func() {
		It("should keep fetching after RET by default", func() {
			pipe := pipeline.NewPipeline(newState("0x0 ret\n0x4 set r1 1\n"))
			Expect(pipe.Run()).To(Succeed())
			Expect(pipe.State().Regs.ReadReg(1)).To(Equal(int64(1)))
			Expect(pipe.Stats().Cycles).To(Equal(uint64(12)))
		})

		It("should halt fetch when configured", func() {
			cfg.RetHaltsFetch = true
			pipe := pipeline.NewPipeline(newState("0x0 ret\n0x4 set r1 1\n"), pipeline.WithConfig(cfg))
			Expect(pipe.Run()).To(Succeed())
			Expect(pipe.State().Regs.ReadReg(1)).To(BeZero())
			Expect(pipe.Stats().Instructions).To(Equal(uint64(1)))
			Expect(pipe.Stats().Cycles).To(Equal(uint64(11)))
		})
	})

	Describe("Faults", func() {
		It("should fault on divide by zero", func() {
			pipe := pipeline.NewPipeline(newState("0x0 set r1 5\n0x4 div r2 r1 r0\n"))
			err := pipe.Run()

			Expect(err).To(MatchError(emu.ErrDivideByZero))
			Expect(pipe.Err()).To(MatchError(emu.ErrDivideByZero))
			Expect(pipe.Tick()).To(MatchError(emu.ErrDivideByZero))
		})

		It("should fault on an illegal instruction", func() {
			state := newState("0x0 set r1 1\n")
			Expect(state.Memory.WriteWord(0, insts.Word(0xFF)<<56)).To(Succeed())
			pipe := pipeline.NewPipeline(state)

			Expect(pipe.Run()).To(MatchError(emu.ErrIllegalInstruction))
			Expect(pipe.Stats().Cycles).To(Equal(uint64(8)))
		})

		It("should drop an illegal instruction when configured", func() {
			cfg.IllegalInstruction = config.IllegalDrop
			var buf bytes.Buffer
			state := newState("0x0 set r1 1\n0x4 set r2 2\n")
			Expect(state.Memory.WriteWord(0, insts.Word(0xFF)<<56)).To(Succeed())
			pipe := pipeline.NewPipeline(state,
				pipeline.WithConfig(cfg),
				pipeline.WithLogger(log.New(&buf, "", 0)))

			Expect(pipe.Run()).To(Succeed())
			Expect(pipe.Stats().Dropped).To(Equal(uint64(1)))
			Expect(pipe.Stats().Instructions).To(Equal(uint64(1)))
			Expect(state.Regs.ReadReg(2)).To(Equal(int64(2)))
			Expect(buf.String()).To(ContainSubstring("dropping"))
		})

		It("should fault on a load outside memory", func() {
			pipe := pipeline.NewPipeline(newState("0x0 set r1 -1\n0x4 ld r2 r1\n"))
			Expect(pipe.Run()).To(MatchError(emu.ErrAddressOutOfRange))
		})

		It("should fault on a store outside memory", func() {
			pipe := pipeline.NewPipeline(newState("0x0 set r1 0x7FFFFF\n0x4 st r1 r1\n"))
			Expect(pipe.Run()).To(MatchError(emu.ErrAddressOutOfRange))
		})

		It("should fault on a branch target before the program", func() {
			pipe := pipeline.NewPipeline(newState("0x0 bez r0 -5\n"))
			Expect(pipe.Run()).To(MatchError(emu.ErrPCOutOfRange))
		})

		It("should stop at the cycle limit", func() {
			cfg.MaxCycles = 100
			pipe := pipeline.NewPipeline(newState("0x0 bez r0 -1\n"), pipeline.WithConfig(cfg))

			Expect(pipe.Run()).To(MatchError(pipeline.ErrCycleLimit))
			Expect(pipe.Stats().Cycles).To(Equal(uint64(100)))
		})
	})

	Describe("RunCycles", func() {
		It("should report whether the program is still running", func() {
			pipe := pipeline.NewPipeline(newState(addProgram))

			running, err := pipe.RunCycles(5)
			Expect(err).NotTo(HaveOccurred())
			Expect(running).To(BeTrue())
			Expect(pipe.Stats().Cycles).To(Equal(uint64(5)))

			running, err = pipe.RunCycles(100)
			Expect(err).NotTo(HaveOccurred())
			Expect(running).To(BeFalse())
			Expect(pipe.Stats().Cycles).To(Equal(uint64(20)))
		})
	})

	Describe("Data cache profile", func() {
		It("should observe loads and stores without changing timing", func() {
			cfg.DCache.Enabled = true
			profile := cache.NewProfile(cfg.DCache)
			listing := `
0x0 set r1 100
0x4 set r2 42
0x8 st r2 r1
0xC ld r3 r1
`
			pipe := pipeline.NewPipeline(newState(listing), pipeline.WithDataCache(profile))
			Expect(pipe.Run()).To(Succeed())

			plain := pipeline.NewPipeline(newState(listing))
			Expect(plain.Run()).To(Succeed())

			stats := profile.Stats()
			Expect(stats.Writes).To(Equal(uint64(1)))
			Expect(stats.Reads).To(Equal(uint64(1)))
			Expect(stats.Misses).To(Equal(uint64(1)))
			Expect(stats.Hits).To(Equal(uint64(1)))
			Expect(pipe.DataCache()).To(BeIdenticalTo(profile))
			Expect(pipe.Stats()).To(Equal(plain.Stats()))
		})
	})
})
