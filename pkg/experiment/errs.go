package experiment

import (
	"errors"
	"fmt"
)

var (
	ErrNoPlugin    = errors.New("experiment: nil plugin")
	ErrNoTarget    = errors.New("experiment: run has no target process")
	ErrNotMeasured = errors.New("experiment: no measurement collected")
)

// StepError reports the lifecycle step that failed for a run.
type StepError struct {
	Run  string
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("experiment: %s: %s: %v", e.Run, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
