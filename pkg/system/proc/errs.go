package proc

import "errors"

var (
	// ErrNoRSS indicates that resident set size could not be determined
	// (neither smaps_rollup nor the stat rss field had it).
	ErrNoRSS = errors.New("proc: no rss")

	// ErrNoChildren indicates that /proc/<pid>/task/*/children contained none.
	ErrNoChildren = errors.New("proc: no children")

	// ErrAllExited indicates that no process of the sampled tree is alive.
	ErrAllExited = errors.New("proc: all processes exited")

	// ErrBadInterval indicates a non-positive CPU sampling interval.
	ErrBadInterval = errors.New("proc: interval must be positive")
)
