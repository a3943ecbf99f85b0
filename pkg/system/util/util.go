package util

import (
	"math"
	"strconv"
)

// DeltaU64 returns now-prev for a monotonic counter. ok is false when the
// counter went backwards (wrap, reset or a missing previous reading).
func DeltaU64(now, prev uint64) (delta uint64, ok bool) {
	if now >= prev {
		return now - prev, true
	}
	return 0, false
}

func SafeDiv(n, d float64) float64 {
	const eps = 1e-12
	if d > eps || d < -eps {
		return n / d
	}
	return 0
}

func Clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	// guard against NaN
	if math.IsNaN(x) {
		return 0
	}
	return x
}

// Round rounds x half away from zero to the given number of decimal places.
func Round(x float64, places int) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	p := math.Pow10(places)
	return math.Round(x*p) / p
}

// Round3 is Round(x, 3), the precision every run metric is reported with.
func Round3(x float64) float64 { return Round(x, 3) }

func Sum(vs []float64) float64 {
	var s float64
	for _, v := range vs {
		s += v
	}
	return s
}

// Mean returns the arithmetic mean of vs, or 0 when vs is empty.
func Mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	return Sum(vs) / float64(len(vs))
}

// FmtFloat formats v with the shortest representation that round-trips.
// Integral values keep a trailing ".0" so float columns stay recognisable.
func FmtFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !math.IsNaN(v) && !math.IsInf(v, 0) && v == math.Trunc(v) {
		s += ".0"
	}
	return s
}
