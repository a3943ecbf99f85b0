// Package workload generates the JSON range file consumed by the sample
// prime-testing workload.
package workload

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
)

const (
	MinStart = 1
	MaxStart = 100
	MinEnd   = 101
	MaxEnd   = 1000

	DefaultFile = "config.json"
)

var ErrBadRange = errors.New("workload: start must not exceed end")

// Config is the integer range a workload processes.
type Config struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Generate draws Start from [MinStart, MaxStart] and End from
// [MinEnd, MaxEnd].
func Generate(r *rand.Rand) Config {
	return Config{
		Start: MinStart + r.IntN(MaxStart-MinStart+1),
		End:   MinEnd + r.IntN(MaxEnd-MinEnd+1),
	}
}

func (c Config) Validate() error {
	if c.Start > c.End {
		return fmt.Errorf("%w: %d > %d", ErrBadRange, c.Start, c.End)
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("{start: %d, end: %d}", c.Start, c.End)
}

// Write stores c as JSON at path.
func (c Config) Write(path string) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("workload: write %s: %w", path, err)
	}
	return nil
}

// Read loads and validates a config written by Write.
func Read(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("workload: read %s: %w", path, err)
	}
	var c Config
	if err := json.Unmarshal(b, &c); err != nil {
		return Config{}, fmt.Errorf("workload: parse %s: %w", path, err)
	}
	return c, c.Validate()
}
