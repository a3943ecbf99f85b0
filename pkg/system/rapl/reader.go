//go:build linux

package rapl

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"k8s.io/utils/clock"

	"github.com/ja7ad/runmeter/pkg/consumption"
	"github.com/ja7ad/runmeter/pkg/system/util"
	"github.com/ja7ad/runmeter/pkg/types"
)

// PowerWindow is the sampling window of SamplePower.
const PowerWindow = time.Second

// Reader reads RAPL domains. Unavailability degrades to zero readings and is
// logged once per domain.
type Reader struct {
	clock  clock.Clock
	logger *slog.Logger
}

type OptionFn func(*Reader)

func WithClock(c clock.Clock) OptionFn {
	return func(r *Reader) {
		r.clock = c
	}
}

func WithLogger(logger *slog.Logger) OptionFn {
	return func(r *Reader) {
		r.logger = logger.With("service", "rapl")
	}
}

func NewReader(opts ...OptionFn) *Reader {
	r := &Reader{
		clock:  clock.RealClock{},
		logger: slog.Default().With("service", "rapl"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReadMicrojoules returns the current accumulator value of d. A missing
// energy_uj file yields an *UnavailableError.
func (r *Reader) ReadMicrojoules(d *Domain) (uint64, error) {
	uj, err := d.zone.GetEnergyMicrojoules()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, &UnavailableError{Domain: d.name, Path: d.Path(), Err: err}
		}
		return 0, fmt.Errorf("rapl: read %s: %w", d.Path(), err)
	}
	d.last, d.lastAt = types.Energy(uj), r.clock.Now()
	return uj, nil
}

// SamplePower reads d, sleeps PowerWindow, reads again and returns the
// energy delta in joules. With the fixed one second window this number is
// reported as watts; it is not divided by the window length.
//
// An unreadable domain or a counter that went backwards yields 0 and a nil
// error. The only error is ctx's, when it is done before the window closes;
// the caller must then drop the sample.
func (r *Reader) SamplePower(ctx context.Context, d *Domain) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	start, err := r.ReadMicrojoules(d)
	if err != nil {
		r.warn(d, err)
		return 0, nil
	}
	r.clock.Sleep(PowerWindow)
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	end, err := r.ReadMicrojoules(d)
	if err != nil {
		r.warn(d, err)
		return 0, nil
	}
	delta, ok := util.DeltaU64(end, start)
	if !ok {
		r.warn(d, ErrCounterWrapped)
		return 0, nil
	}
	return float64(delta) / 1e6, nil
}

// Window measures the energy a domain accumulates between Begin and End.
type Window struct {
	r     *Reader
	d     *Domain
	start uint64
	ok    bool
}

// Begin reads the start counter of a window. An unreadable domain yields a
// window whose energy is 0.
func (r *Reader) Begin(d *Domain) *Window {
	w := &Window{r: r, d: d}
	if d == nil {
		return w
	}
	start, err := r.ReadMicrojoules(d)
	if err != nil {
		r.warn(d, err)
		return w
	}
	w.start, w.ok = start, true
	return w
}

// End reads the end counter and returns (end-start)/1e6 joules rounded to 3
// decimals, or 0 when either reading failed or the counter went backwards.
func (w *Window) End() float64 {
	if !w.ok {
		return 0
	}
	end, err := w.r.ReadMicrojoules(w.d)
	if err != nil {
		w.r.warn(w.d, err)
		return 0
	}
	joules, ok := consumption.CounterEnergy(w.start, end)
	if !ok {
		w.r.warn(w.d, ErrCounterWrapped)
	}
	return joules
}

func (r *Reader) warn(d *Domain, err error) {
	if d.warned {
		return
	}
	d.warned = true
	r.logger.Warn("RAPL energy interface unavailable, reporting 0",
		"domain", d.name, "path", d.Path(), "error", err)
}
