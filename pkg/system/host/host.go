// Package host samples system-wide CPU and memory utilization.
package host

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Sampler reports whole-machine utilization percentages.
type Sampler struct {
	cpuPercent func(ctx context.Context, interval time.Duration, percpu bool) ([]float64, error)
	virtualMem func(ctx context.Context) (*mem.VirtualMemoryStat, error)
}

func NewSampler() *Sampler {
	return &Sampler{
		cpuPercent: cpu.PercentWithContext,
		virtualMem: mem.VirtualMemoryWithContext,
	}
}

// CPUPercent blocks for interval and returns the busy share of all CPUs in
// [0, 100].
func (s *Sampler) CPUPercent(ctx context.Context, interval time.Duration) (float64, error) {
	pct, err := s.cpuPercent(ctx, interval, false)
	if err != nil {
		return 0, fmt.Errorf("host: cpu percent: %w", err)
	}
	if len(pct) == 0 {
		return 0, ErrNoData
	}
	return pct[0], nil
}

// MemPercent returns the used share of physical memory in [0, 100].
func (s *Sampler) MemPercent(ctx context.Context) (float64, error) {
	vm, err := s.virtualMem(ctx)
	if err != nil {
		return 0, fmt.Errorf("host: virtual memory: %w", err)
	}
	return vm.UsedPercent, nil
}

// TotalMemory returns the physical memory size in bytes.
func (s *Sampler) TotalMemory(ctx context.Context) (uint64, error) {
	vm, err := s.virtualMem(ctx)
	if err != nil {
		return 0, fmt.Errorf("host: virtual memory: %w", err)
	}
	return vm.Total, nil
}
