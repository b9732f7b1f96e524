package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ipsim/timing/config"
	"github.com/sarchlab/ipsim/trace"
)

const sumProgram = `
0x0 set r1 5
0x4 set r2 7
0x8 add r3 r1 r2
0xC ret
`

var _ = Describe("CLI", func() {
	var (
		dir            string
		image, program string
		stdout, stderr *bytes.Buffer
	)

	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())
		return path
	}

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		image = write("memory.txt", "0 0 0 0 0 0 0 0 11 22\n")
		program = write("program.txt", sumProgram)
		stdout = &bytes.Buffer{}
		stderr = &bytes.Buffer{}
	})

	It("should print usage without both files", func() {
		Expect(run([]string{image}, stdout, stderr)).To(Equal(1))
		Expect(stderr.String()).To(ContainSubstring("Usage: ipsim"))
	})

	It("should dump every cycle and the summary", func() {
		Expect(run([]string{image, program}, stdout, stderr)).To(Equal(0))

		out := stdout.String()
		Expect(out).To(ContainSubstring("Clock Cycle #: 1\n"))
		Expect(out).To(ContainSubstring("Clock Cycle #: 20\n"))
		Expect(out).NotTo(ContainSubstring("Clock Cycle #: 21\n"))
		Expect(out).To(ContainSubstring("REG[ 3]   |   Value=12"))
		Expect(out).To(ContainSubstring("Stalled cycles due to data hazard: 6\n"))
		Expect(out).To(ContainSubstring("Total execution cycles: 20\n"))
		Expect(out).To(ContainSubstring("Total instruction simulated: 4\n"))
		Expect(out).To(ContainSubstring("IPC: 0.200000\n"))
	})

	It("should print only the final state when quiet", func() {
		Expect(run([]string{"-quiet", image, program}, stdout, stderr)).To(Equal(0))

		out := stdout.String()
		Expect(out).NotTo(ContainSubstring("Clock Cycle #"))
		Expect(out).To(ContainSubstring("STATE OF ARCHITECTURAL REGISTER FILE"))
		Expect(out).To(ContainSubstring("Total execution cycles: 20\n"))
	})

	It("should run the functional emulator", func() {
		Expect(run([]string{"-emu", image, program}, stdout, stderr)).To(Equal(0))

		Expect(stdout.String()).To(ContainSubstring("REG[ 3]   |   Value=12"))
		Expect(stdout.String()).To(ContainSubstring("Instructions executed: 4"))
		Expect(stdout.String()).NotTo(ContainSubstring("Total execution cycles"))
	})

	It("should report a program that does not load", func() {
		bad := write("bad.txt", "0x0 jmp r1\n")
		Expect(run([]string{image, bad}, stdout, stderr)).To(Equal(1))
		Expect(stderr.String()).To(ContainSubstring("Error loading program"))
	})

	It("should report a missing memory image", func() {
		missing := filepath.Join(dir, "missing.txt")
		Expect(run([]string{missing, program}, stdout, stderr)).To(Equal(1))
		Expect(stderr.String()).To(ContainSubstring("Error loading program"))
	})

	It("should reject an unknown mode", func() {
		Expect(run([]string{"-branch-mode", "oracle", image, program}, stdout, stderr)).To(Equal(1))
		Expect(stderr.String()).To(ContainSubstring("Error loading config"))
	})

	It("should abort at the cycle limit", func() {
		Expect(run([]string{"-quiet", "-max-cycles", "5", image, program}, stdout, stderr)).To(Equal(1))
		Expect(stderr.String()).To(ContainSubstring("Error during simulation"))
	})

	It("should let flags override the configuration file", func() {
		cfgPath := write("config.json", `{"hazard_mode": "legacy", "max_cycles": 3}`)
		saved := filepath.Join(dir, "effective.json")

		code := run([]string{"-quiet", "-config", cfgPath, "-max-cycles", "0",
			"-save-config", saved, image, program}, stdout, stderr)
		Expect(code).To(Equal(0))

		cfg, err := config.LoadConfig(saved)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.HazardMode).To(Equal(config.HazardLegacy))
		Expect(cfg.MaxCycles).To(BeZero())
		Expect(stdout.String()).To(ContainSubstring("Total execution cycles: 14\n"))
	})

	It("should write a trace", func() {
		tracePath := filepath.Join(dir, "trace.csv")
		Expect(run([]string{"-quiet", "-trace", tracePath, image, program}, stdout, stderr)).To(Equal(0))

		rows, err := trace.Load(context.Background(), tracePath)
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(20))
		Expect(rows[19].Regs[3]).To(Equal(int64(12)))
	})

	It("should reject an unknown trace format", func() {
		tracePath := filepath.Join(dir, "trace.out")
		code := run([]string{"-quiet", "-trace", tracePath, "-trace-format", "xml", image, program},
			stdout, stderr)
		Expect(code).To(Equal(1))
		Expect(stderr.String()).To(ContainSubstring("Error writing trace"))
	})

	It("should run checks against the final state", func() {
		script := write("check.lua", `
expect(reg(3) == 12, "r3 is the sum")
expect(mem(9) == 22, "image cell survives")
expect(stats.cycles == 20)
`)
		Expect(run([]string{"-quiet", "-check", script, image, program}, stdout, stderr)).To(Equal(0))
		Expect(stdout.String()).To(ContainSubstring("Checks passed: 3"))
	})

	It("should fail when a check fails", func() {
		script := write("check.lua", `expect(reg(3) == 13, "r3 is off by one")`)
		Expect(run([]string{"-quiet", "-check", script, image, program}, stdout, stderr)).To(Equal(1))
		Expect(stderr.String()).To(ContainSubstring("FAIL: r3 is off by one"))
	})
})
