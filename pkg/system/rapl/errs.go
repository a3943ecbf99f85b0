package rapl

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable matches any UnavailableError.
	ErrUnavailable = errors.New("rapl: energy interface unavailable")

	// ErrCounterWrapped indicates an end reading below the start reading.
	ErrCounterWrapped = errors.New("rapl: energy counter went backwards")

	// ErrNoZones indicates that powercap exposes neither a package nor a dram zone.
	ErrNoZones = errors.New("rapl: no package or dram zone found")
)

// UnavailableError reports that the energy_uj file of a domain does not exist.
type UnavailableError struct {
	Domain string
	Path   string
	Err    error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("rapl: %s domain unavailable at %s: %v", e.Domain, e.Path, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }
