//go:build linux

package experiment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/ja7ad/runmeter/pkg/supervisor"
	"github.com/ja7ad/runmeter/pkg/workload"
)

// WorkloadSpec describes how each run starts the measured workload.
type WorkloadSpec struct {
	Command supervisor.Command
	// CaptureOutput writes stdout.log and stderr.log into the run
	// directory.
	CaptureOutput bool
	// ConfigFile, when set, is generated into the run directory before the
	// workload starts. Relative names are joined with the run directory.
	ConfigFile string
	Rand       *rand.Rand
}

// launcher starts workloads and owns the log files of the current run.
type launcher struct {
	spec   WorkloadSpec
	opts   []supervisor.OptionFn
	logger *slog.Logger
	files  []io.Closer
}

func (l *launcher) start(ctx context.Context, rc *RunContext) error {
	cmd := l.spec.Command
	if cmd.Dir == "" {
		cmd.Dir = rc.Dir
	}

	if l.spec.ConfigFile != "" {
		path := l.spec.ConfigFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(rc.Dir, path)
		}
		r := l.spec.Rand
		if r == nil {
			r = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		}
		wc := workload.Generate(r)
		if err := wc.Write(path); err != nil {
			return err
		}
		l.logger.Info("workload config generated", "path", path, "config", wc.String())
	}

	if l.spec.CaptureOutput {
		stdout, err := os.Create(filepath.Join(rc.Dir, "stdout.log"))
		if err != nil {
			return fmt.Errorf("experiment: %w", err)
		}
		l.files = append(l.files, stdout)
		stderr, err := os.Create(filepath.Join(rc.Dir, "stderr.log"))
		if err != nil {
			return fmt.Errorf("experiment: %w", err)
		}
		l.files = append(l.files, stderr)
		cmd.Stdout, cmd.Stderr = stdout, stderr
	}

	p, err := supervisor.Launch(ctx, cmd, l.opts...)
	if err != nil {
		return err
	}
	rc.Target = p
	l.logger.Info("workload started", "command", cmd.String(), "pid", p.PID())
	return nil
}

// release closes the log files of the run.
func (l *launcher) release() error {
	var errs []error
	for _, f := range l.files {
		errs = append(errs, f.Close())
	}
	l.files = nil
	return errors.Join(errs...)
}
