//go:build linux

package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"k8s.io/utils/clock"

	"github.com/ja7ad/runmeter/pkg/consumption"
	"github.com/ja7ad/runmeter/pkg/powerjoular"
	"github.com/ja7ad/runmeter/pkg/sampling"
	"github.com/ja7ad/runmeter/pkg/supervisor"
	"github.com/ja7ad/runmeter/pkg/system/proc"
)

const (
	DefaultWarmup         = time.Second
	DefaultProfiledBudget = 20 * time.Second
)

type ProfiledConfig struct {
	// Profiler.Output is a file name inside the run directory.
	Profiler    supervisor.Profiler
	Warmup      time.Duration
	Budget      time.Duration
	CPUInterval time.Duration
	// Grace is how long the workload gets after SIGTERM, on budget and at
	// run stop. Zero kills it right away at run stop and uses
	// sampling.DefaultTerminateGrace on budget.
	Grace time.Duration
}

// ProfiledRun attaches an external power profiler to the workload, watches
// the workload's CPU usage for a bounded time and reports the profiler's
// per-process CSV as consumption.ProfiledSchema.
type ProfiledRun struct {
	launcher
	cfg ProfiledConfig

	clock  clock.Clock
	logger *slog.Logger

	profiler *supervisor.Process
	report   string
}

type ProfiledOptionFn func(*ProfiledRun)

func WithProfiledClock(c clock.Clock) ProfiledOptionFn {
	return func(p *ProfiledRun) {
		p.clock = c
	}
}

func WithProfiledLogger(logger *slog.Logger) ProfiledOptionFn {
	return func(p *ProfiledRun) {
		p.logger = logger.With("plugin", "profiled")
	}
}

func NewProfiledRun(spec WorkloadSpec, cfg ProfiledConfig, opts ...ProfiledOptionFn) *ProfiledRun {
	if cfg.Budget <= 0 {
		cfg.Budget = DefaultProfiledBudget
	}
	if cfg.CPUInterval <= 0 {
		cfg.CPUInterval = sampling.DefaultCPUInterval
	}
	p := &ProfiledRun{
		cfg:    cfg,
		clock:  clock.RealClock{},
		logger: slog.Default().With("plugin", "profiled"),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.launcher = launcher{
		spec:   spec,
		opts:   []supervisor.OptionFn{supervisor.WithClock(p.clock), supervisor.WithLogger(p.logger)},
		logger: p.logger,
	}
	return p
}

func (p *ProfiledRun) Name() string { return "profiled" }

func (p *ProfiledRun) OnRunStart(ctx context.Context, rc *RunContext) error {
	p.profiler, p.report = nil, ""
	return p.start(ctx, rc)
}

// OnMeasureStart lets the workload warm up, then attaches the profiler.
func (p *ProfiledRun) OnMeasureStart(ctx context.Context, rc *RunContext) error {
	if p.cfg.Warmup > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.clock.After(p.cfg.Warmup):
		}
	}

	prof := p.cfg.Profiler
	if !filepath.IsAbs(prof.Output) {
		prof.Output = filepath.Join(rc.Dir, prof.Output)
	}
	pr, err := supervisor.StartProfiler(ctx, prof, rc.Target, p.opts...)
	if err != nil {
		return err
	}
	p.profiler = pr
	p.report = prof.ReportPath(rc.Target.PID())
	p.logger.Info("profiler attached", "pid", pr.PID(), "target", rc.Target.PID(), "report", p.report)
	return nil
}

// Interact watches the workload's CPU usage until it exits or the budget
// runs out, in which case the workload is terminated.
func (p *ProfiledRun) Interact(ctx context.Context, rc *RunContext) error {
	if rc.Target == nil {
		return ErrNoTarget
	}
	usage := &loggingUsage{
		UsageSampler: proc.NewSampler(rc.Target.PID(), proc.WithClock(p.clock)),
		logger:       p.logger,
	}
	loop := sampling.NewLoop(sampling.Config{
		Budget:            p.cfg.Budget,
		CPUInterval:       p.cfg.CPUInterval,
		TerminateOnBudget: true,
		TerminateGrace:    p.cfg.Grace,
	}, sampling.WithUsage(usage), sampling.WithClock(p.clock), sampling.WithLogger(p.logger))

	out, err := loop.Run(ctx, rc.Target)
	if err != nil {
		return err
	}
	p.logger.Info("workload watch finished", "reason", out.Reason, "elapsed", out.Elapsed)
	return nil
}

// OnMeasureStop stops the profiler with SIGINT so it flushes its report.
func (p *ProfiledRun) OnMeasureStop(context.Context, *RunContext) error {
	if p.profiler == nil {
		return nil
	}
	return p.profiler.Interrupt()
}

// OnRunStop stops whatever is still running and closes the captured output
// files.
func (p *ProfiledRun) OnRunStop(_ context.Context, rc *RunContext) error {
	if p.profiler != nil && p.profiler.Alive() {
		if err := p.profiler.Interrupt(); err != nil {
			p.logger.Warn("profiler interrupt failed", "error", err)
		}
	}
	var err error
	switch {
	case rc.Target == nil:
	case p.cfg.Grace > 0:
		err = rc.Target.Stop(p.cfg.Grace)
	default:
		err = rc.Target.Kill()
	}
	return errors.Join(err, p.release())
}

func (p *ProfiledRun) OnDataCollected(context.Context, *RunContext) (consumption.RunMetrics, error) {
	if p.report == "" {
		return consumption.RunMetrics{}, ErrNotMeasured
	}
	rep, err := powerjoular.ReadFile(p.report)
	if err != nil {
		return consumption.RunMetrics{}, fmt.Errorf("experiment: profiler report: %w", err)
	}
	return rep.Metrics(), nil
}

// loggingUsage logs every CPU sample at info level.
type loggingUsage struct {
	sampling.UsageSampler
	logger *slog.Logger
}

func (u *loggingUsage) CPUPercent(ctx context.Context, interval time.Duration) (float64, error) {
	v, err := u.UsageSampler.CPUPercent(ctx, interval)
	if err == nil {
		u.logger.Info("current CPU usage", "percent", v)
	}
	return v, err
}
