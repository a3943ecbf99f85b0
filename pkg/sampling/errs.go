package sampling

import "errors"

var (
	ErrAlreadyRun = errors.New("sampling: loop already ran")
	ErrNoTarget   = errors.New("sampling: nil target")
	ErrBadBudget  = errors.New("sampling: budget must be positive")
)
