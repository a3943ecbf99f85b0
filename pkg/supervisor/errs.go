package supervisor

import (
	"errors"
	"fmt"
)

var (
	ErrNotStarted = errors.New("supervisor: process not started")
	ErrEmptyPath  = errors.New("supervisor: empty command path")
)

// ConfigurationError reports a supervisor request that cannot work as
// configured, such as profiling a target that is not running.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("supervisor: invalid configuration: %s", e.Reason)
}
