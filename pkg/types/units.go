package types

import "fmt"

// Energy is an accumulated energy reading in microjoules, the unit exposed
// by powercap energy_uj files.
type Energy uint64

const (
	MicroJoule Energy = 1
	MilliJoule        = 1000 * MicroJoule
	Joule             = 1000 * MilliJoule
)

// MicroJoules returns the raw counter value.
func (e Energy) MicroJoules() uint64 { return uint64(e) }

// Joules returns the energy in joules.
func (e Energy) Joules() float64 { return float64(e) / float64(Joule) }

func (e Energy) String() string { return fmt.Sprintf("%.3fJ", e.Joules()) }

// Power is an instantaneous power draw in watts.
type Power float64

// Watts returns the power in watts.
func (p Power) Watts() float64 { return float64(p) }

// FromMilliWatts converts an NVML style milliwatt reading.
func FromMilliWatts(mw uint32) Power { return Power(float64(mw) / 1000) }

func (p Power) String() string { return fmt.Sprintf("%.3fW", float64(p)) }

// Bytes is a uint64 wrapper representing a size in bytes.
type Bytes uint64

var byteUnits = []string{"KB", "MB", "GB", "TB"}

// Humanized returns a human-readable string with automatic unit (B, KB, MB, GB, TB).
func (b Bytes) Humanized() string {
	if b < 1<<10 {
		return fmt.Sprintf("%d B", b)
	}
	v := float64(b) / 1024
	i := 0
	for v >= 1024 && i < len(byteUnits)-1 {
		v /= 1024
		i++
	}
	return fmt.Sprintf("%.2f %s", v, byteUnits[i])
}
