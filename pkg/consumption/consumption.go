package consumption

import (
	"time"

	"github.com/ja7ad/runmeter/pkg/system/util"
)

// Aggregator owns the sample series of one run and reduces them to
// RunMetrics once sampling is done.
type Aggregator struct {
	series   map[Kind]*Series
	disabled map[Kind]bool
}

func NewAggregator() *Aggregator {
	series := make(map[Kind]*Series, len(Kinds))
	for _, k := range Kinds {
		series[k] = NewSeries(k)
	}
	return &Aggregator{series: series, disabled: map[Kind]bool{}}
}

// Add appends a sample to the series of its kind.
func (a *Aggregator) Add(kind Kind, at time.Time, v float64) {
	s, ok := a.series[kind]
	if !ok {
		s = NewSeries(kind)
		a.series[kind] = s
	}
	s.Append(at, v)
}

// Series returns the series for kind, never nil.
func (a *Aggregator) Series(kind Kind) *Series {
	if s, ok := a.series[kind]; ok {
		return s
	}
	return NewSeries(kind)
}

// Disable discards everything collected for the given kinds and marks the
// source as failed: the metrics derived from them report an explicit 0.0
// instead of the empty-series default.
func (a *Aggregator) Disable(kinds ...Kind) {
	for _, k := range kinds {
		if s, ok := a.series[k]; ok {
			s.Reset()
		}
		a.disabled[k] = true
	}
}

// Disabled reports whether kind was disabled for this run.
func (a *Aggregator) Disabled(kind Kind) bool { return a.disabled[kind] }

func (a *Aggregator) setMean(b *Builder, name string, kind Kind) {
	if a.disabled[kind] {
		_ = b.Set(name, 0)
		return
	}
	_ = b.SetSeries(name, a.Series(kind))
}

// Resource reduces the series into ResourceSchema. CPU and DRAM energy come
// from the counter window (see CounterEnergy), not from the power series;
// GPU energy is integrated from the GPU power samples.
func (a *Aggregator) Resource(cpuEnergy, memEnergy float64) RunMetrics {
	b := NewBuilder(ResourceSchema)
	_ = b.SetSeries(AvgCPUUtilization, a.Series(CPUUtil))
	_ = b.SetSeries(AvgMemUtilization, a.Series(MemUtil))
	_ = b.SetSeries(AvgCPUPower, a.Series(CPUPower))
	_ = b.SetSeries(AvgMemPower, a.Series(MemPower))
	_ = b.Set(CPUEnergyUsage, util.Round3(cpuEnergy))
	_ = b.Set(MemEnergyUsage, util.Round3(memEnergy))
	a.setMean(b, AvgGPUPower, GPUPower)
	a.setMean(b, AvgGPUUtilization, GPUUtil)
	_ = b.Set(GPUEnergyUsage, GPUEnergy(a.Series(GPUPower).Values()))
	return b.Build()
}

// CounterEnergy converts an energy counter window in microjoules to joules
// rounded to 3 decimals. ok is false when end < start, which means the
// counter wrapped or was not readable; the energy is then 0.
func CounterEnergy(start, end uint64) (joules float64, ok bool) {
	d, ok := util.DeltaU64(end, start)
	if !ok {
		return 0, false
	}
	return util.Round3(float64(d) / 1e6), true
}

// GPUEnergy is the sum of the GPU power samples divided by 1000, rounded to
// 3 decimals. The samples are not weighted by their spacing in time.
func GPUEnergy(power []float64) float64 {
	return util.Round3(util.Sum(power) / 1e3)
}
