//go:build linux

// Package experiment drives a plugin through the lifecycle of every run of
// an experiment and persists the metrics each run reports.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/ja7ad/runmeter/pkg/consumption"
	"github.com/ja7ad/runmeter/pkg/sink"
)

const (
	DefaultCooldown = time.Second
	DefaultCSVName  = "run_table.csv"

	doneMarker = "DONE"
)

type Config struct {
	Name        string
	Output      string
	Factors     []Factor
	Repetitions int
	Cooldown    time.Duration
	// CSVName is the metrics table written to every run directory and to
	// the experiment directory.
	CSVName string
}

// Result is the outcome of one completed run.
type Result struct {
	Run     Run
	ID      string
	Dir     string
	Metrics consumption.RunMetrics
}

type Runner struct {
	cfg      Config
	plugin   Plugin
	textfile *sink.TextfileExporter
	newID    func() string

	clock  clock.Clock
	logger *slog.Logger
}

type OptionFn func(*Runner)

func WithClock(c clock.Clock) OptionFn {
	return func(r *Runner) {
		r.clock = c
	}
}

func WithLogger(logger *slog.Logger) OptionFn {
	return func(r *Runner) {
		r.logger = logger.With("service", "experiment")
	}
}

// WithTextfile also exports each run's metrics to a Prometheus textfile.
func WithTextfile(e *sink.TextfileExporter) OptionFn {
	return func(r *Runner) {
		r.textfile = e
	}
}

func NewRunner(cfg Config, plugin Plugin, opts ...OptionFn) *Runner {
	if cfg.CSVName == "" {
		cfg.CSVName = DefaultCSVName
	}
	r := &Runner{
		cfg:    cfg,
		plugin: plugin,
		newID:  uuid.NewString,
		clock:  clock.RealClock{},
		logger: slog.Default().With("service", "experiment"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dir is the experiment directory holding one directory per run.
func (r *Runner) Dir() string {
	return filepath.Join(r.cfg.Output, r.cfg.Name)
}

// Table is the run table the runner executes.
func (r *Runner) Table() []Run {
	return Table(r.cfg.Factors, r.cfg.Repetitions)
}

// Run executes every run in table order, waiting Cooldown between runs. A
// failing run aborts the experiment; results of completed runs are
// returned along with the error.
func (r *Runner) Run(ctx context.Context) ([]Result, error) {
	if r.plugin == nil {
		return nil, ErrNoPlugin
	}
	if err := os.MkdirAll(r.Dir(), 0o755); err != nil {
		return nil, fmt.Errorf("experiment: create %s: %w", r.Dir(), err)
	}

	hooks, _ := r.plugin.(ExperimentHooks)
	if hooks != nil {
		if err := hooks.BeforeExperiment(ctx); err != nil {
			return nil, fmt.Errorf("experiment: before experiment: %w", err)
		}
	}

	runs := r.Table()
	r.logger.Info("experiment started",
		"name", r.cfg.Name, "plugin", r.plugin.Name(), "runs", len(runs), "dir", r.Dir())

	var results []Result
	for i, run := range runs {
		if i > 0 && r.cfg.Cooldown > 0 {
			select {
			case <-ctx.Done():
			case <-r.clock.After(r.cfg.Cooldown):
			}
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}

		res, err := r.runOne(ctx, run)
		if err != nil {
			r.logger.Error("run failed, aborting experiment", "run", run.Name(), "error", err)
			return results, err
		}
		results = append(results, res)
		r.logger.Info("run completed",
			"run", run.Name(), "progress", fmt.Sprintf("%d/%d", i+1, len(runs)), "metrics", res.Metrics.String())
	}

	if hooks != nil {
		if err := hooks.AfterExperiment(ctx); err != nil {
			return results, fmt.Errorf("experiment: after experiment: %w", err)
		}
	}
	r.logger.Info("experiment completed", "name", r.cfg.Name, "runs", len(results))
	return results, nil
}

func (r *Runner) runOne(ctx context.Context, run Run) (Result, error) {
	rc := &RunContext{
		ID:     r.newID(),
		Index:  run.Index,
		Name:   run.Name(),
		Dir:    filepath.Join(r.Dir(), run.Name()),
		Levels: run.Levels,
	}
	if err := os.MkdirAll(rc.Dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("experiment: create run dir: %w", err)
	}
	log := r.logger.With("run", rc.Name, "run_id", rc.ID)
	log.Debug("run started", "dir", rc.Dir)

	steps := []struct {
		name string
		fn   func(context.Context, *RunContext) error
	}{
		{"run start", r.plugin.OnRunStart},
		{"measure start", r.plugin.OnMeasureStart},
		{"interact", r.plugin.Interact},
		{"measure stop", r.plugin.OnMeasureStop},
	}
	for _, s := range steps {
		if err := s.fn(ctx, rc); err != nil {
			if stopErr := r.plugin.OnRunStop(context.WithoutCancel(ctx), rc); stopErr != nil {
				log.Warn("run stop after failure", "error", stopErr)
			}
			return Result{}, &StepError{Run: rc.Name, Step: s.name, Err: err}
		}
		log.Debug("step done", "step", s.name)
	}
	if err := r.plugin.OnRunStop(ctx, rc); err != nil {
		return Result{}, &StepError{Run: rc.Name, Step: "run stop", Err: err}
	}

	metrics, err := r.plugin.OnDataCollected(ctx, rc)
	if err != nil {
		return Result{}, &StepError{Run: rc.Name, Step: "data collected", Err: err}
	}
	if err := r.persist(rc, metrics); err != nil {
		return Result{}, err
	}
	return Result{Run: run, ID: rc.ID, Dir: rc.Dir, Metrics: metrics}, nil
}

func (r *Runner) persist(rc *RunContext, metrics consumption.RunMetrics) error {
	var errs []error
	if err := sink.AppendCSV(filepath.Join(rc.Dir, r.cfg.CSVName), metrics); err != nil {
		errs = append(errs, err)
	}

	header := []string{"__run_id", "__uuid", "__done"}
	row := []string{rc.Name, rc.ID, doneMarker}
	levels := make(map[string]string, len(rc.Levels))
	for _, l := range rc.Levels {
		header = append(header, l.Factor)
		row = append(row, l.Value)
		levels[l.Factor] = l.Value
	}
	header = append(header, metrics.Names()...)
	row = append(row, metrics.Strings()...)
	if err := sink.AppendRecord(filepath.Join(r.Dir(), r.cfg.CSVName), header, row); err != nil {
		errs = append(errs, err)
	}

	if r.textfile != nil {
		if err := r.textfile.Export(rc.Name, levels, metrics); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
