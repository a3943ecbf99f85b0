package gpu

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Reading is one GPU's instantaneous power draw and utilization.
type Reading struct {
	Index       int
	PowerW      float64
	Utilization float64
}

// Querier returns one reading per physical GPU.
type Querier interface {
	Name() string
	Query(ctx context.Context) ([]Reading, error)
}

// Telemetry polls a Querier for the duration of a run. The first error
// disables it: GPU monitoring is skipped for the rest of the run and the
// run reports zero for all GPU metrics.
type Telemetry struct {
	querier Querier
	logger  *slog.Logger
	warned  *atomic.Bool
	err     error
}

type OptionFn func(*Telemetry)

func WithLogger(logger *slog.Logger) OptionFn {
	return func(t *Telemetry) {
		t.logger = logger.With("service", "gpu")
	}
}

// WithWarnOnce shares the "already warned" flag between telemetries, so a
// GPU that is missing on every run is reported once per process.
func WithWarnOnce(warned *atomic.Bool) OptionFn {
	return func(t *Telemetry) {
		t.warned = warned
	}
}

// NewTelemetry wraps q. A nil q yields a telemetry that is never available.
func NewTelemetry(q Querier, opts ...OptionFn) *Telemetry {
	t := &Telemetry{
		querier: q,
		logger:  slog.Default().With("service", "gpu"),
		warned:  new(atomic.Bool),
	}
	for _, opt := range opts {
		opt(t)
	}
	if q == nil {
		t.err = ErrDisabled
	}
	return t
}

// Available reports whether every query so far succeeded.
func (t *Telemetry) Available() bool { return t.err == nil }

// Err returns the error that disabled the telemetry, if any.
func (t *Telemetry) Err() error { return t.err }

// Sample queries all GPUs. It returns nil once the telemetry is disabled.
func (t *Telemetry) Sample(ctx context.Context) []Reading {
	if t.err != nil {
		return nil
	}
	readings, err := t.querier.Query(ctx)
	if err != nil {
		t.err = err
		if t.warned.CompareAndSwap(false, true) {
			t.logger.Warn("GPU query failed, skipping GPU monitoring",
				"querier", t.querier.Name(), "error", err)
		} else {
			t.logger.Debug("GPU query failed", "querier", t.querier.Name(), "error", err)
		}
		return nil
	}
	return readings
}

// Mean returns the average power and utilization over readings, (0, 0) for
// none.
func Mean(readings []Reading) (powerW, utilization float64) {
	if len(readings) == 0 {
		return 0, 0
	}
	for _, r := range readings {
		powerW += r.PowerW
		utilization += r.Utilization
	}
	n := float64(len(readings))
	return powerW / n, utilization / n
}
