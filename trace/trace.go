// Package trace records a run cycle by cycle and exports it as a table.
//
// Every column is an int64 series, so a trace written as CSV or Parquet
// reads back unchanged:
//
//	cycle, pc, fetched, stalled, committed, squashed, occupancy, r0 .. r15
package trace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	dataframe "github.com/rocketlaunchr/dataframe-go"
	"github.com/rocketlaunchr/dataframe-go/exports"
	"github.com/rocketlaunchr/dataframe-go/imports"
	"github.com/xitongsys/parquet-go-source/local"

	"github.com/sarchlab/ipsim/insts"
	"github.com/sarchlab/ipsim/timing/core"
)

// Trace errors.
var (
	ErrUnknownFormat = errors.New("unknown trace format")
	ErrMissingColumn = errors.New("trace column missing")
)

// Format is a trace file format.
type Format string

// Supported formats.
const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(name)); f {
	case FormatCSV, FormatParquet:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
}

// FormatForPath picks the format from a file extension, defaulting to CSV.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		return FormatParquet
	}
	return FormatCSV
}

// Row is one traced cycle.
type Row struct {
	Cycle     uint64
	PC        int64
	Fetched   bool
	Stalled   bool
	Committed bool
	Squashed  int
	Occupancy uint16
	Regs      [insts.NumRegs]int64
}

var baseColumns = [...]string{"cycle", "pc", "fetched", "stalled", "committed", "squashed", "occupancy"}

func regColumn(i int) string {
	return fmt.Sprintf("r%d", i)
}

// Recorder is a core.Observer that keeps one Row per cycle.
type Recorder struct {
	rows  []Row
	stats *core.Stats
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// OnCycle records a cycle.
func (r *Recorder) OnCycle(info core.CycleInfo) {
	r.rows = append(r.rows, Row{
		Cycle:     info.Cycle,
		PC:        info.PC,
		Fetched:   info.Events.Fetched,
		Stalled:   info.Events.Stalled,
		Committed: info.Events.Committed,
		Squashed:  info.Events.Squashed,
		Occupancy: info.Latches.Occupancy(),
		Regs:      info.Regs,
	})
}

// OnFinish keeps the final statistics.
func (r *Recorder) OnFinish(stats core.Stats) {
	r.stats = &stats
}

// Rows returns the recorded cycles.
func (r *Recorder) Rows() []Row {
	return r.rows
}

// Stats returns the final statistics, or nil if the run did not finish.
func (r *Recorder) Stats() *core.Stats {
	return r.stats
}

// Frame builds a DataFrame with one row per recorded cycle.
func (r *Recorder) Frame() *dataframe.DataFrame {
	return Frame(r.rows)
}

// Frame builds a DataFrame from rows.
func Frame(rows []Row) *dataframe.DataFrame {
	cols := make([][]interface{}, len(baseColumns)+insts.NumRegs)
	for i := range cols {
		cols[i] = make([]interface{}, 0, len(rows))
	}

	for _, row := range rows {
		vals := []int64{
			int64(row.Cycle), row.PC,
			boolInt(row.Fetched), boolInt(row.Stalled), boolInt(row.Committed),
			int64(row.Squashed), int64(row.Occupancy),
		}
		for _, v := range row.Regs {
			vals = append(vals, v)
		}
		for i, v := range vals {
			cols[i] = append(cols[i], v)
		}
	}

	series := make([]dataframe.Series, 0, len(cols))
	for i, name := range baseColumns {
		series = append(series, dataframe.NewSeriesInt64(name, nil, cols[i]...))
	}
	for i := 0; i < insts.NumRegs; i++ {
		series = append(series, dataframe.NewSeriesInt64(regColumn(i), nil, cols[len(baseColumns)+i]...))
	}

	return dataframe.NewDataFrame(series...)
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// WriteCSV writes the trace as CSV.
func (r *Recorder) WriteCSV(ctx context.Context, w io.Writer) error {
	if err := exports.ExportToCSV(ctx, w, r.Frame()); err != nil {
		return fmt.Errorf("failed to export trace: %w", err)
	}
	return nil
}

// WriteParquet writes the trace as a Parquet file at path.
func (r *Recorder) WriteParquet(ctx context.Context, path string) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("failed to create trace file: %w", err)
	}

	if err := exports.ExportToParquet(ctx, fw, r.Frame()); err != nil {
		_ = fw.Close()
		return fmt.Errorf("failed to export trace: %w", err)
	}
	return fw.Close()
}

// Export writes the trace to path in the given format.
func (r *Recorder) Export(ctx context.Context, path string, format Format) error {
	switch format {
	case FormatParquet:
		return r.WriteParquet(ctx, path)
	case FormatCSV:
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create trace file: %w", err)
		}
		if err := r.WriteCSV(ctx, f); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// ReadCSV reads a CSV trace.
func ReadCSV(ctx context.Context, r io.ReadSeeker) ([]Row, error) {
	df, err := imports.LoadFromCSV(ctx, r, imports.CSVLoadOptions{
		InferDataTypes: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load trace: %w", err)
	}
	return Rows(df)
}

// ReadParquet reads a Parquet trace file.
func ReadParquet(ctx context.Context, path string) ([]Row, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	defer func() { _ = fr.Close() }()

	df, err := imports.LoadFromParquet(ctx, fr)
	if err != nil {
		return nil, fmt.Errorf("failed to load trace: %w", err)
	}
	return Rows(df)
}

// Load reads a trace file, choosing the format from its extension.
func Load(ctx context.Context, path string) ([]Row, error) {
	if FormatForPath(path) == FormatParquet {
		return ReadParquet(ctx, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ReadCSV(ctx, f)
}

// Rows converts a DataFrame with trace columns back into rows.
func Rows(df *dataframe.DataFrame) ([]Row, error) {
	names := append([]string{}, baseColumns[:]...)
	for i := 0; i < insts.NumRegs; i++ {
		names = append(names, regColumn(i))
	}

	series := make([]dataframe.Series, len(names))
	for i, name := range names {
		idx, err := df.NameToColumn(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
		series[i] = df.Series[idx]
	}

	n := df.NRows()
	rows := make([]Row, n)
	for i := 0; i < n; i++ {
		var vals [len(baseColumns) + insts.NumRegs]int64
		for c, s := range series {
			v, err := toInt64(s.Value(i))
			if err != nil {
				return nil, fmt.Errorf("row %d, column %s: %w", i, names[c], err)
			}
			vals[c] = v
		}

		row := Row{
			Cycle:     uint64(vals[0]),
			PC:        vals[1],
			Fetched:   vals[2] != 0,
			Stalled:   vals[3] != 0,
			Committed: vals[4] != 0,
			Squashed:  int(vals[5]),
			Occupancy: uint16(vals[6]),
		}
		copy(row.Regs[:], vals[len(baseColumns):])
		rows[i] = row
	}

	return rows, nil
}

func toInt64(v interface{}) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case *int64:
		if x == nil {
			return 0, nil
		}
		return *x, nil
	case int32:
		return int64(x), nil
	case int:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case bool:
		return boolInt(x), nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("unexpected value %v (%T)", v, v)
	}
}
