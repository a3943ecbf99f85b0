package consumption

import (
	"time"

	"github.com/ja7ad/runmeter/pkg/system/util"
)

// Kind identifies what a sample measures.
type Kind string

const (
	CPUUtil  Kind = "cpu_util"
	MemUtil  Kind = "mem_util"
	CPUPower Kind = "cpu_power"
	MemPower Kind = "mem_power"
	GPUPower Kind = "gpu_power"
	GPUUtil  Kind = "gpu_util"
)

// Kinds lists every sample kind in reporting order.
var Kinds = []Kind{CPUUtil, MemUtil, CPUPower, MemPower, GPUPower, GPUUtil}

type Sample struct {
	At    time.Time
	Kind  Kind
	Value float64
}

// Series is the ordered samples of one kind collected during a run.
type Series struct {
	kind    Kind
	samples []Sample
}

func NewSeries(kind Kind) *Series { return &Series{kind: kind} }

func (s *Series) Kind() Kind { return s.kind }

func (s *Series) Append(at time.Time, v float64) {
	s.samples = append(s.samples, Sample{At: at, Kind: s.kind, Value: v})
}

func (s *Series) Len() int { return len(s.samples) }

func (s *Series) Samples() []Sample { return s.samples }

func (s *Series) Values() []float64 {
	out := make([]float64, len(s.samples))
	for i, sm := range s.samples {
		out[i] = sm.Value
	}
	return out
}

// Mean is the arithmetic mean rounded to 3 decimals; 0 for an empty series.
func (s *Series) Mean() float64 { return util.Round3(util.Mean(s.Values())) }

func (s *Series) Sum() float64 { return util.Sum(s.Values()) }

func (s *Series) Reset() { s.samples = nil }
