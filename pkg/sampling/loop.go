//go:build linux

// Package sampling polls energy, GPU and OS utilization readers while a
// target process runs, under a time budget.
package sampling

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"k8s.io/utils/clock"

	"github.com/ja7ad/runmeter/pkg/consumption"
	"github.com/ja7ad/runmeter/pkg/system/gpu"
	"github.com/ja7ad/runmeter/pkg/system/rapl"
)

const (
	DefaultBudget         = 10 * time.Second
	DefaultCPUInterval    = time.Second
	DefaultTerminateGrace = 5 * time.Second
)

// UsageSampler reports CPU and memory utilization in percent. CPUPercent
// blocks for the interval.
type UsageSampler interface {
	CPUPercent(ctx context.Context, interval time.Duration) (float64, error)
	MemPercent(ctx context.Context) (float64, error)
}

// Target is the process being measured.
type Target interface {
	Alive() bool
}

// terminator is implemented by targets the loop may stop on budget.
// Shutdown must return once grace has passed or ctx is done.
type terminator interface {
	Shutdown(ctx context.Context, grace time.Duration) error
}

type Config struct {
	// Budget bounds the time spent sampling.
	Budget time.Duration
	// CPUInterval is the blocking window of each CPU utilization sample.
	CPUInterval time.Duration
	// Cadence is an extra pause after each tick; zero means the tick rate
	// is the sum of the blocking reads.
	Cadence time.Duration
	// TerminateOnBudget stops the target when the budget runs out.
	TerminateOnBudget bool
	// TerminateGrace is how long a terminated target may take to exit
	// before it is killed.
	TerminateGrace time.Duration
}

func DefaultConfig() Config {
	return Config{Budget: DefaultBudget, CPUInterval: DefaultCPUInterval}
}

// Outcome is the result of one loop run.
type Outcome struct {
	Aggregator *consumption.Aggregator
	CPUEnergy  float64
	MemEnergy  float64
	Elapsed    time.Duration
	Ticks      int
	Reason     Reason
}

// Metrics reduces the outcome to the resource schema.
func (o *Outcome) Metrics() consumption.RunMetrics {
	return o.Aggregator.Resource(o.CPUEnergy, o.MemEnergy)
}

// Loop is a single-use cooperative sampling loop. Each reader is optional.
type Loop struct {
	cfg   Config
	usage UsageSampler
	rapl  *rapl.Reader
	pkg   *rapl.Domain
	dram  *rapl.Domain
	gpu   *gpu.Telemetry

	clock  clock.Clock
	logger *slog.Logger
	state  State
}

type OptionFn func(*Loop)

func WithUsage(s UsageSampler) OptionFn {
	return func(l *Loop) {
		l.usage = s
	}
}

// WithRAPL enables package and DRAM power sampling. Either domain may be
// nil.
func WithRAPL(r *rapl.Reader, pkg, dram *rapl.Domain) OptionFn {
	return func(l *Loop) {
		l.rapl, l.pkg, l.dram = r, pkg, dram
	}
}

func WithGPU(t *gpu.Telemetry) OptionFn {
	return func(l *Loop) {
		l.gpu = t
	}
}

func WithClock(c clock.Clock) OptionFn {
	return func(l *Loop) {
		l.clock = c
	}
}

func WithLogger(logger *slog.Logger) OptionFn {
	return func(l *Loop) {
		l.logger = logger.With("service", "sampling")
	}
}

func NewLoop(cfg Config, opts ...OptionFn) *Loop {
	if cfg.CPUInterval <= 0 {
		cfg.CPUInterval = DefaultCPUInterval
	}
	if cfg.TerminateGrace <= 0 {
		cfg.TerminateGrace = DefaultTerminateGrace
	}
	l := &Loop{
		cfg:    cfg,
		clock:  clock.RealClock{},
		logger: slog.Default().With("service", "sampling"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loop) State() State { return l.state }

// Run samples until target exits, the budget is spent or ctx is done. An
// in-flight tick is not interrupted beyond what its readers honour.
func (l *Loop) Run(ctx context.Context, target Target) (*Outcome, error) {
	if l.state != Idle {
		return nil, ErrAlreadyRun
	}
	if target == nil {
		return nil, ErrNoTarget
	}
	if l.cfg.Budget <= 0 {
		return nil, ErrBadBudget
	}
	l.state = Running
	defer func() { l.state = Done }()

	out := &Outcome{Aggregator: consumption.NewAggregator()}
	var pkgWin, dramWin *rapl.Window
	if l.rapl != nil {
		pkgWin, dramWin = l.rapl.Begin(l.pkg), l.rapl.Begin(l.dram)
	}
	start := l.clock.Now()
	l.logger.Debug("sampling started", "budget", l.cfg.Budget, "cpu_interval", l.cfg.CPUInterval)

	for {
		if ctx.Err() != nil {
			out.Reason = Cancelled
			break
		}
		if !target.Alive() {
			out.Reason = TargetExited
			break
		}
		if l.clock.Since(start) >= l.cfg.Budget {
			out.Reason = BudgetExceeded
			break
		}
		l.tick(ctx, out.Aggregator)
		out.Ticks++
		if l.cfg.Cadence > 0 {
			select {
			case <-ctx.Done():
			case <-l.clock.After(l.cfg.Cadence):
			}
		}
	}
	out.Elapsed = l.clock.Since(start)

	if out.Reason == BudgetExceeded && l.cfg.TerminateOnBudget {
		if t, ok := target.(terminator); ok {
			l.logger.Info("budget reached, terminating target", "budget", l.cfg.Budget)
			if err := t.Shutdown(ctx, l.cfg.TerminateGrace); err != nil {
				l.logger.Warn("failed to terminate target", "error", err)
			}
		}
	}

	if pkgWin != nil {
		out.CPUEnergy = pkgWin.End()
		out.MemEnergy = dramWin.End()
	}
	if l.gpu != nil && !l.gpu.Available() {
		out.Aggregator.Disable(consumption.GPUPower, consumption.GPUUtil)
	}

	l.logger.Debug("sampling finished",
		"reason", out.Reason, "ticks", out.Ticks, "elapsed", out.Elapsed)
	return out, nil
}

func (l *Loop) tick(ctx context.Context, agg *consumption.Aggregator) {
	if l.usage != nil {
		if v, err := l.usage.CPUPercent(ctx, l.cfg.CPUInterval); err == nil {
			agg.Add(consumption.CPUUtil, l.clock.Now(), v)
		} else if !errors.Is(err, context.Canceled) {
			l.logger.Debug("cpu sample failed", "error", err)
		}
		if v, err := l.usage.MemPercent(ctx); err == nil {
			agg.Add(consumption.MemUtil, l.clock.Now(), v)
		} else {
			l.logger.Debug("memory sample failed", "error", err)
		}
	}
	if l.rapl != nil {
		l.samplePower(ctx, agg, consumption.CPUPower, l.pkg)
		l.samplePower(ctx, agg, consumption.MemPower, l.dram)
	}
	if l.gpu != nil {
		for _, r := range l.gpu.Sample(ctx) {
			agg.Add(consumption.GPUPower, l.clock.Now(), r.PowerW)
			agg.Add(consumption.GPUUtil, l.clock.Now(), r.Utilization)
		}
	}
}

// samplePower appends one power sample of d. A window cut short by ctx is
// not a sample.
func (l *Loop) samplePower(ctx context.Context, agg *consumption.Aggregator, kind consumption.Kind, d *rapl.Domain) {
	if d == nil {
		return
	}
	w, err := l.rapl.SamplePower(ctx, d)
	if err != nil {
		l.logger.Debug("power sample dropped", "domain", d.Name(), "error", err)
		return
	}
	agg.Add(kind, l.clock.Now(), w)
}
