package gpu

import (
	"errors"
	"fmt"
)

// ErrDisabled is returned by a Telemetry that gave up on its querier for the
// rest of the run.
var ErrDisabled = errors.New("gpu: telemetry disabled")

// ToolNotFoundError reports that the query tool (or library) is absent.
type ToolNotFoundError struct {
	Tool string
	Err  error
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("gpu: %s not found: %v", e.Tool, e.Err)
}

func (e *ToolNotFoundError) Unwrap() error { return e.Err }

// ToolExecutionError reports that the query tool exited non-zero.
type ToolExecutionError struct {
	Tool   string
	Stderr string
	Err    error
}

func (e *ToolExecutionError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("gpu: %s failed: %v: %s", e.Tool, e.Err, e.Stderr)
	}
	return fmt.Sprintf("gpu: %s failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// ParseError reports a query output line that is not "power,utilization".
type ParseError struct {
	Line string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("gpu: unexpected query output %q: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
