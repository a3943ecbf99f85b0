//go:build linux

package experiment

import (
	"context"

	"github.com/ja7ad/runmeter/pkg/consumption"
	"github.com/ja7ad/runmeter/pkg/supervisor"
)

// RunContext is what a plugin sees of the current run.
type RunContext struct {
	ID     string
	Index  int
	Name   string
	Dir    string
	Levels []Level

	// Target is the workload process, set by the plugin that starts it.
	Target *supervisor.Process
}

// Level returns the level of factor name for this run.
func (rc *RunContext) Level(name string) (string, bool) {
	for _, l := range rc.Levels {
		if l.Factor == name {
			return l.Value, true
		}
	}
	return "", false
}

// Plugin receives the lifecycle of every run in this order:
// OnRunStart, OnMeasureStart, Interact, OnMeasureStop, OnRunStop,
// OnDataCollected.
type Plugin interface {
	Name() string
	OnRunStart(ctx context.Context, rc *RunContext) error
	OnMeasureStart(ctx context.Context, rc *RunContext) error
	Interact(ctx context.Context, rc *RunContext) error
	OnMeasureStop(ctx context.Context, rc *RunContext) error
	OnRunStop(ctx context.Context, rc *RunContext) error
	OnDataCollected(ctx context.Context, rc *RunContext) (consumption.RunMetrics, error)
}

// ExperimentHooks is implemented by plugins that need to act once around
// the whole experiment.
type ExperimentHooks interface {
	BeforeExperiment(ctx context.Context) error
	AfterExperiment(ctx context.Context) error
}
