// Package powerjoular reads the per-process CSV report of the PowerJoular
// profiler and reduces it to per-run metrics.
package powerjoular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/jszwec/csvutil"

	"github.com/ja7ad/runmeter/pkg/consumption"
	"github.com/ja7ad/runmeter/pkg/system/util"
)

// Column names of the report. All are optional.
const (
	ColDate           = "Date"
	ColCPUUtilization = "CPU Utilization"
	ColTotalPower     = "Total Power"
	ColCPUPower       = "CPU Power"
	ColGPUUtilization = "GPU Utilization"
	ColGPUPower       = "GPU Power"
)

var ErrEmptyReport = errors.New("powerjoular: empty report")

// Row is one line of the report. Empty cells decode to nil.
type Row struct {
	Date           string   `csv:"Date,omitempty"`
	CPUUtilization *float64 `csv:"CPU Utilization,omitempty"`
	TotalPower     *float64 `csv:"Total Power,omitempty"`
	CPUPower       *float64 `csv:"CPU Power,omitempty"`
	GPUUtilization *float64 `csv:"GPU Utilization,omitempty"`
	GPUPower       *float64 `csv:"GPU Power,omitempty"`
}

// Report is a decoded profiler report.
type Report struct {
	Header []string
	Rows   []Row
}

// Has reports whether the report carries column.
func (r *Report) Has(column string) bool {
	return slices.Contains(r.Header, column)
}

// Decode reads a report with a header line.
func Decode(r io.Reader) (*Report, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	dec, err := csvutil.NewDecoder(cr)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyReport
		}
		return nil, fmt.Errorf("powerjoular: read header: %w", err)
	}
	rep := &Report{Header: dec.Header()}
	for {
		var row Row
		if err := dec.Decode(&row); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("powerjoular: decode line %d: %w", len(rep.Rows)+2, err)
		}
		rep.Rows = append(rep.Rows, row)
	}
	return rep, nil
}

// ReadFile decodes the report at path.
func ReadFile(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("powerjoular: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

func (r *Report) column(get func(Row) *float64) []float64 {
	var out []float64
	for _, row := range r.Rows {
		if v := get(row); v != nil {
			out = append(out, *v)
		}
	}
	return out
}

// Metrics reduces the report to consumption.ProfiledSchema. Energies are
// the sum of the power column, one sample per second. A missing or empty
// column reports 0.
func (r *Report) Metrics() consumption.RunMetrics {
	b := consumption.NewBuilder(consumption.ProfiledSchema)
	set := func(column, avg, total string, get func(Row) *float64) {
		if !r.Has(column) {
			return
		}
		vals := r.column(get)
		if len(vals) == 0 {
			return
		}
		_ = b.Set(avg, util.Round3(util.Mean(vals)))
		if total != "" {
			_ = b.Set(total, util.Round3(util.Sum(vals)))
		}
	}
	set(ColCPUUtilization, consumption.AvgCPUUtilization, "", func(r Row) *float64 { return r.CPUUtilization })
	set(ColCPUPower, consumption.AvgCPUPower, consumption.TotalCPUEnergy, func(r Row) *float64 { return r.CPUPower })
	set(ColGPUUtilization, consumption.AvgGPUUtilization, "", func(r Row) *float64 { return r.GPUUtilization })
	set(ColGPUPower, consumption.AvgGPUPower, consumption.TotalGPUEnergy, func(r Row) *float64 { return r.GPUPower })
	return b.Build()
}
