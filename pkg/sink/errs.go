package sink

import "errors"

var ErrEmptyPath = errors.New("sink: empty path")
