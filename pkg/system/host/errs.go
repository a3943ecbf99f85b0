package host

import "errors"

var ErrNoData = errors.New("host: sampler returned no data")
