package consumption

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterEnergy(t *testing.T) {
	t.Run("scenario_2_5J", func(t *testing.T) {
		j, ok := CounterEnergy(1_000_000, 3_500_000)
		require.True(t, ok)
		assert.Equal(t, 2.5, j)
	})
	t.Run("exact_to_3_decimals", func(t *testing.T) {
		pairs := [][2]uint64{
			{0, 0},
			{0, 1},
			{10, 1_010},
			{123_456_789, 987_654_321},
			{1 << 40, 1<<40 + 123_456},
		}
		for _, p := range pairs {
			j, ok := CounterEnergy(p[0], p[1])
			require.True(t, ok)
			want := math.Round(float64(p[1]-p[0])/1e6*1000) / 1000
			assert.Equal(t, want, j, "start=%d end=%d", p[0], p[1])
			assert.False(t, math.IsNaN(j))
		}
	})
	t.Run("wrap_is_unavailable", func(t *testing.T) {
		j, ok := CounterEnergy(3_500_000, 1_000_000)
		assert.False(t, ok)
		assert.Equal(t, 0.0, j)
	})
}

func TestGPUEnergy(t *testing.T) {
	assert.Equal(t, 0.25, GPUEnergy([]float64{100.0, 150.0}))
	assert.Equal(t, 0.0, GPUEnergy(nil))
}

func TestSeries_Mean(t *testing.T) {
	s := NewSeries(CPUPower)
	now := time.Now()
	for i, v := range []float64{10.0, 12.0, 14.0} {
		s.Append(now.Add(time.Duration(i)*time.Second), v)
	}
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, 12.0, s.Mean())
	assert.Equal(t, 36.0, s.Sum())
	assert.Equal(t, CPUPower, s.Samples()[0].Kind)

	s.Reset()
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0.0, s.Mean(), "empty series must not be NaN")
}

func TestAggregator_EmptyRunIsAllZero(t *testing.T) {
	m := NewAggregator().Resource(0, 0)

	require.Equal(t, ResourceSchema.Names(), m.Names())
	for _, name := range m.Names() {
		v, ok := m.Get(name)
		require.True(t, ok, name)
		assert.Equal(t, 0.0, v, name)
		assert.False(t, math.IsNaN(v), name)
	}
	// declared types decide how empty metrics are rendered
	assert.Equal(t, []string{"0", "0", "0.0", "0.0", "0.0", "0.0", "0", "0", "0.0"}, m.Strings())
}

func TestAggregator_Resource(t *testing.T) {
	a := NewAggregator()
	now := time.Now()
	for _, v := range []float64{20, 40} {
		a.Add(CPUUtil, now, v)
	}
	a.Add(MemUtil, now, 55.5)
	for _, v := range []float64{10.0, 12.0, 14.0} {
		a.Add(CPUPower, now, v)
	}
	a.Add(MemPower, now, 1.2344)
	for _, v := range []float64{100.0, 150.0} {
		a.Add(GPUPower, now, v)
	}
	a.Add(GPUUtil, now, 90)

	m := a.Resource(2.5, 0.4567)

	got := m.Map()
	assert.Equal(t, 30.0, got[AvgCPUUtilization])
	assert.Equal(t, 55.5, got[AvgMemUtilization])
	assert.Equal(t, 12.0, got[AvgCPUPower])
	assert.Equal(t, 1.234, got[AvgMemPower])
	assert.Equal(t, 2.5, got[CPUEnergyUsage])
	assert.Equal(t, 0.457, got[MemEnergyUsage])
	assert.Equal(t, 125.0, got[AvgGPUPower])
	assert.Equal(t, 90.0, got[AvgGPUUtilization])
	assert.Equal(t, 0.25, got[GPUEnergyUsage])

	assert.Equal(t, "30.0", m.Value(AvgCPUUtilization).String())
	assert.True(t, m.Value(AvgCPUPower).IsSet())
}

func TestAggregator_DisableReportsExplicitZero(t *testing.T) {
	a := NewAggregator()
	a.Add(GPUPower, time.Now(), 300)
	a.Add(GPUUtil, time.Now(), 99)
	a.Disable(GPUPower, GPUUtil)
	assert.True(t, a.Disabled(GPUPower))
	assert.False(t, a.Disabled(CPUPower))
	assert.Zero(t, a.Series(GPUPower).Len())

	m := a.Resource(0, 0)
	for _, name := range []string{AvgGPUPower, AvgGPUUtilization, GPUEnergyUsage} {
		assert.True(t, m.Value(name).IsSet(), name)
		assert.Equal(t, "0.0", m.Value(name).String(), name)
	}
}

func TestAggregator_EmptyGPUSeriesKeepsDefault(t *testing.T) {
	m := NewAggregator().Resource(0, 0)
	assert.False(t, m.Value(AvgGPUPower).IsSet())
	assert.Equal(t, "0", m.Value(AvgGPUPower).String())
	assert.Equal(t, "0", m.Value(AvgGPUUtilization).String())
	assert.Equal(t, "0.0", m.Value(GPUEnergyUsage).String())
}

func TestBuilder(t *testing.T) {
	b := NewBuilder(ProfiledSchema)
	require.NoError(t, b.Set(TotalCPUEnergy, 42.123))
	err := b.Set("nope", 1)
	require.ErrorIs(t, err, ErrUnknownMetric)
	require.ErrorIs(t, b.SetSeries("nope", nil), ErrUnknownMetric)

	m := b.Build()
	// later writes to the builder do not leak into built metrics
	require.NoError(t, b.Set(TotalCPUEnergy, 1))

	v, ok := m.Get(TotalCPUEnergy)
	require.True(t, ok)
	assert.Equal(t, 42.123, v)
	_, ok = m.Get("nope")
	assert.False(t, ok)
	assert.Equal(t, "avg_cpu_utilization=0, avg_cpu_power=0, total_cpu_energy=42.123, "+
		"avg_gpu_utilization=0, avg_gpu_power=0, total_gpu_energy=0", m.String())
}
