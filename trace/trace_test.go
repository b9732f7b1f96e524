package trace_test

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ipsim/emu"
	"github.com/sarchlab/ipsim/loader"
	"github.com/sarchlab/ipsim/timing/config"
	"github.com/sarchlab/ipsim/timing/core"
	"github.com/sarchlab/ipsim/trace"
)

const program = `
0x0 set r1 5
0x4 set r2 7
0x8 add r3 r1 r2
0xC ret
`

func record() *trace.Recorder {
	prog, err := loader.ParseProgram(strings.NewReader(program))
	Expect(err).NotTo(HaveOccurred())
	state := emu.NewState()
	Expect(prog.Install(state)).To(Succeed())

	c, err := core.NewCore(state, config.DefaultSimConfig())
	Expect(err).NotTo(HaveOccurred())
	rec := trace.NewRecorder()
	c.AddObserver(rec)
	Expect(c.Run()).To(Succeed())
	return rec
}

var _ = Describe("Recorder", func() {
	var (
		ctx context.Context
		rec *trace.Recorder
	)

	BeforeEach(func() {
		ctx = context.Background()
		rec = record()
	})

	It("should record one row per cycle", func() {
		rows := rec.Rows()
		Expect(rows).To(HaveLen(20))
		Expect(rows[0].Cycle).To(Equal(uint64(1)))
		Expect(rows[0].Fetched).To(BeTrue())
		Expect(rows[2].Stalled).To(BeTrue())
		Expect(rows[19].Committed).To(BeTrue())
		Expect(rows[19].Regs[3]).To(Equal(int64(12)))
		Expect(rec.Stats()).NotTo(BeNil())
		Expect(rec.Stats().Cycles).To(Equal(uint64(20)))
	})

	It("should build a frame with every column", func() {
		df := rec.Frame()
		Expect(df.NRows()).To(Equal(20))
		Expect(df.Series).To(HaveLen(7 + 16))

		idx, err := df.NameToColumn("r3")
		Expect(err).NotTo(HaveOccurred())
		Expect(df.Series[idx].Value(19)).To(Equal(int64(12)))
	})

	It("should round-trip through CSV", func() {
		var buf bytes.Buffer
		Expect(rec.WriteCSV(ctx, &buf)).To(Succeed())
		Expect(buf.String()).To(HavePrefix("cycle,pc,fetched,stalled,committed,squashed,occupancy,r0,"))

		rows, err := trace.ReadCSV(ctx, bytes.NewReader(buf.Bytes()))
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(Equal(rec.Rows()))
	})

	It("should round-trip through files in both formats", func() {
		dir := GinkgoT().TempDir()
		for _, name := range []string{"trace.csv", "trace.parquet"} {
			path := filepath.Join(dir, name)
			Expect(rec.Export(ctx, path, trace.FormatForPath(path))).To(Succeed())

			rows, err := trace.Load(ctx, path)
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(Equal(rec.Rows()), name)
		}
	})

	It("should report missing columns", func() {
		_, err := trace.ReadCSV(ctx, strings.NewReader("cycle,pc\n1,0\n"))
		Expect(err).To(MatchError(trace.ErrMissingColumn))
	})
})

var _ = Describe("Formats", func() {
	It("should parse known format names", func() {
		f, err := trace.ParseFormat("Parquet")
		Expect(err).NotTo(HaveOccurred())
		Expect(f).To(Equal(trace.FormatParquet))

		_, err = trace.ParseFormat("xml")
		Expect(err).To(MatchError(trace.ErrUnknownFormat))
	})

	It("should pick the format from the extension", func() {
		Expect(trace.FormatForPath("out.PARQUET")).To(Equal(trace.FormatParquet))
		Expect(trace.FormatForPath("out.csv")).To(Equal(trace.FormatCSV))
		Expect(trace.FormatForPath("out")).To(Equal(trace.FormatCSV))
	})

	It("should reject unknown formats on export", func() {
		err := trace.NewRecorder().Export(context.Background(), "x", "xml")
		Expect(err).To(MatchError(trace.ErrUnknownFormat))
	})
})
