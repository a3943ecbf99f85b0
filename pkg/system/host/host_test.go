package host

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampler_Stubbed(t *testing.T) {
	var gotInterval time.Duration
	s := &Sampler{
		cpuPercent: func(_ context.Context, interval time.Duration, percpu bool) ([]float64, error) {
			gotInterval = interval
			assert.False(t, percpu)
			return []float64{42.5}, nil
		},
		virtualMem: func(context.Context) (*mem.VirtualMemoryStat, error) {
			return &mem.VirtualMemoryStat{Total: 8 << 30, UsedPercent: 61.25}, nil
		},
	}

	cpu, err := s.CPUPercent(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 42.5, cpu)
	assert.Equal(t, time.Second, gotInterval)

	m, err := s.MemPercent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 61.25, m)

	total, err := s.TotalMemory(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(8<<30), total)
}

func TestSampler_Errors(t *testing.T) {
	boom := errors.New("boom")
	s := &Sampler{
		cpuPercent: func(context.Context, time.Duration, bool) ([]float64, error) { return nil, nil },
		virtualMem: func(context.Context) (*mem.VirtualMemoryStat, error) { return nil, boom },
	}
	_, err := s.CPUPercent(context.Background(), 0)
	assert.ErrorIs(t, err, ErrNoData)

	_, err = s.MemPercent(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestSampler_Live(t *testing.T) {
	s := NewSampler()
	cpu, err := s.CPUPercent(context.Background(), 50*time.Millisecond)
	if err != nil {
		t.Skipf("cpu stats unavailable: %v", err)
	}
	assert.GreaterOrEqual(t, cpu, 0.0)
	assert.LessOrEqual(t, cpu, 100.0)

	m, err := s.MemPercent(context.Background())
	require.NoError(t, err)
	assert.Greater(t, m, 0.0)
	assert.LessOrEqual(t, m, 100.0)
}
