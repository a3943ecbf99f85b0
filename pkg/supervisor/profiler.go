//go:build linux

package supervisor

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/ja7ad/runmeter/pkg/system/proc"
)

const DefaultProfilerTool = "powerjoular"

// Profiler is an external power profiler attached to a single pid.
type Profiler struct {
	Tool   string
	Output string

	Stdout io.Writer
	Stderr io.Writer
}

func (p Profiler) tool() string {
	if p.Tool == "" {
		return DefaultProfilerTool
	}
	return p.Tool
}

// Args returns the profiler arguments for pid.
func (p Profiler) Args(pid int) []string {
	return []string{"-l", "-p", strconv.Itoa(pid), "-f", p.Output}
}

// ReportPath is the per-process CSV the profiler writes for pid.
func (p Profiler) ReportPath(pid int) string {
	return fmt.Sprintf("%s-%d.csv", p.Output, pid)
}

// StartProfiler attaches p to target. The target must be running.
func StartProfiler(ctx context.Context, p Profiler, target *Process, opts ...OptionFn) (*Process, error) {
	if p.Output == "" {
		return nil, &ConfigurationError{Reason: "profiler output path is empty"}
	}
	if target == nil || target.PID() == 0 {
		return nil, &ConfigurationError{Reason: "profiler target has not been started"}
	}
	if !target.Alive() || !proc.Exists(target.PID()) {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("profiler target pid %d is not running", target.PID())}
	}
	return Launch(ctx, Command{
		Path:   p.tool(),
		Args:   p.Args(target.PID()),
		Stdout: p.Stdout,
		Stderr: p.Stderr,
	}, opts...)
}
