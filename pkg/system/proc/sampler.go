//go:build linux

package proc

import (
	"context"
	"fmt"
	"time"

	"k8s.io/utils/clock"

	"github.com/ja7ad/runmeter/pkg/system/host"
	"github.com/ja7ad/runmeter/pkg/system/util"
)

// Sampler reports the utilization of one process tree.
type Sampler struct {
	root     int
	clkTck   int
	clock    clock.Clock
	memTotal func(ctx context.Context) (uint64, error)
}

type OptionFn func(*Sampler)

func WithClock(c clock.Clock) OptionFn {
	return func(s *Sampler) {
		s.clock = c
	}
}

// WithMemTotal overrides the source of the physical memory size.
func WithMemTotal(fn func(ctx context.Context) (uint64, error)) OptionFn {
	return func(s *Sampler) {
		s.memTotal = fn
	}
}

func NewSampler(root int, opts ...OptionFn) *Sampler {
	s := &Sampler{
		root:     root,
		clkTck:   ClockTicks(),
		clock:    clock.RealClock{},
		memTotal: host.NewSampler().TotalMemory,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the pid at the top of the sampled tree.
func (s *Sampler) Root() int { return s.root }

func (s *Sampler) jiffies() map[int]uint64 {
	out := make(map[int]uint64)
	for _, pid := range Tree(s.root) {
		ut, st, err := ReadProcStat(pid)
		if err != nil {
			continue
		}
		out[pid] = ut + st
	}
	return out
}

// CPUPercent blocks for interval and returns the CPU time the tree used in
// that window as a percentage of one core.
func (s *Sampler) CPUPercent(ctx context.Context, interval time.Duration) (float64, error) {
	if interval <= 0 {
		return 0, ErrBadInterval
	}
	before := s.jiffies()
	if len(before) == 0 {
		return 0, ErrAllExited
	}

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-s.clock.After(interval):
	}

	after := s.jiffies()
	if len(after) == 0 {
		return 0, ErrAllExited
	}
	var used uint64
	for pid, j := range after {
		// pids born inside the window start from zero
		d, _ := util.DeltaU64(j, before[pid])
		used += d
	}
	sec := float64(used) / float64(s.clkTck)
	return util.SafeDiv(sec, interval.Seconds()) * 100, nil
}

// MemPercent returns the tree's resident memory as a percentage of physical
// memory.
func (s *Sampler) MemPercent(ctx context.Context) (float64, error) {
	pids := Tree(s.root)
	if len(pids) == 0 {
		return 0, ErrAllExited
	}
	var rss uint64
	for _, pid := range pids {
		if b, err := ReadProcRSS(pid); err == nil {
			rss += b
		}
	}
	total, err := s.memTotal(ctx)
	if err != nil {
		return 0, fmt.Errorf("proc: total memory: %w", err)
	}
	return util.Clamp01(util.SafeDiv(float64(rss), float64(total))) * 100, nil
}
