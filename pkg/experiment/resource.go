//go:build linux

package experiment

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"

	"github.com/ja7ad/runmeter/pkg/consumption"
	"github.com/ja7ad/runmeter/pkg/sampling"
	"github.com/ja7ad/runmeter/pkg/supervisor"
	"github.com/ja7ad/runmeter/pkg/system/gpu"
	"github.com/ja7ad/runmeter/pkg/system/proc"
	"github.com/ja7ad/runmeter/pkg/system/rapl"
)

const DefaultStopGrace = 5 * time.Second

// ResourceMonitor starts the workload at run start and samples host
// utilization, RAPL power and GPU telemetry while it runs, reporting
// consumption.ResourceSchema.
type ResourceMonitor struct {
	launcher
	loop      sampling.Config
	stopGrace time.Duration

	usage      sampling.UsageSampler
	procTree   bool
	rapl       *rapl.Reader
	pkg, dram  *rapl.Domain
	gpuQuerier gpu.Querier
	gpuWarned  atomic.Bool

	clock  clock.Clock
	logger *slog.Logger

	outcome *sampling.Outcome
}

type ResourceOptionFn func(*ResourceMonitor)

// WithUsage sets the utilization source, typically a host.Sampler.
func WithUsage(s sampling.UsageSampler) ResourceOptionFn {
	return func(m *ResourceMonitor) {
		m.usage = s
	}
}

// WithProcessTree samples the workload's process tree instead of a fixed
// usage source.
func WithProcessTree() ResourceOptionFn {
	return func(m *ResourceMonitor) {
		m.procTree = true
	}
}

func WithRAPL(r *rapl.Reader, pkg, dram *rapl.Domain) ResourceOptionFn {
	return func(m *ResourceMonitor) {
		m.rapl, m.pkg, m.dram = r, pkg, dram
	}
}

// WithGPUQuerier enables GPU telemetry. Each run gets a fresh Telemetry so
// a failure only disables the GPU for that run; the warning is logged for
// the first failing run only.
func WithGPUQuerier(q gpu.Querier) ResourceOptionFn {
	return func(m *ResourceMonitor) {
		m.gpuQuerier = q
	}
}

func WithStopGrace(d time.Duration) ResourceOptionFn {
	return func(m *ResourceMonitor) {
		m.stopGrace = d
	}
}

func WithResourceClock(c clock.Clock) ResourceOptionFn {
	return func(m *ResourceMonitor) {
		m.clock = c
	}
}

func WithResourceLogger(logger *slog.Logger) ResourceOptionFn {
	return func(m *ResourceMonitor) {
		m.logger = logger.With("plugin", "resource")
	}
}

func NewResourceMonitor(spec WorkloadSpec, loop sampling.Config, opts ...ResourceOptionFn) *ResourceMonitor {
	m := &ResourceMonitor{
		loop:      loop,
		stopGrace: DefaultStopGrace,
		clock:     clock.RealClock{},
		logger:    slog.Default().With("plugin", "resource"),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.launcher = launcher{
		spec:   spec,
		opts:   []supervisor.OptionFn{supervisor.WithClock(m.clock), supervisor.WithLogger(m.logger)},
		logger: m.logger,
	}
	return m
}

func (m *ResourceMonitor) Name() string { return "resource" }

func (m *ResourceMonitor) OnRunStart(ctx context.Context, rc *RunContext) error {
	m.outcome = nil
	return m.start(ctx, rc)
}

func (m *ResourceMonitor) OnMeasureStart(context.Context, *RunContext) error { return nil }

func (m *ResourceMonitor) Interact(ctx context.Context, rc *RunContext) error {
	if rc.Target == nil {
		return ErrNoTarget
	}
	opts := []sampling.OptionFn{
		sampling.WithClock(m.clock),
		sampling.WithLogger(m.logger),
	}
	switch {
	case m.procTree:
		opts = append(opts, sampling.WithUsage(proc.NewSampler(rc.Target.PID(), proc.WithClock(m.clock))))
	case m.usage != nil:
		opts = append(opts, sampling.WithUsage(m.usage))
	}
	if m.rapl != nil {
		opts = append(opts, sampling.WithRAPL(m.rapl, m.pkg, m.dram))
	}
	if m.gpuQuerier != nil {
		opts = append(opts, sampling.WithGPU(gpu.NewTelemetry(m.gpuQuerier,
			gpu.WithLogger(m.logger), gpu.WithWarnOnce(&m.gpuWarned))))
	}

	out, err := sampling.NewLoop(m.loop, opts...).Run(ctx, rc.Target)
	if err != nil {
		return err
	}
	m.outcome = out
	m.logger.Info("sampling finished", "reason", out.Reason, "ticks", out.Ticks, "elapsed", out.Elapsed)
	return nil
}

func (m *ResourceMonitor) OnMeasureStop(context.Context, *RunContext) error { return nil }

// OnRunStop stops the workload if it outlived the budget and closes the
// captured output files.
func (m *ResourceMonitor) OnRunStop(_ context.Context, rc *RunContext) error {
	var err error
	if rc.Target != nil {
		err = rc.Target.Stop(m.stopGrace)
	}
	return errors.Join(err, m.release())
}

func (m *ResourceMonitor) OnDataCollected(context.Context, *RunContext) (consumption.RunMetrics, error) {
	if m.outcome == nil {
		return consumption.RunMetrics{}, ErrNotMeasured
	}
	return m.outcome.Metrics(), nil
}
