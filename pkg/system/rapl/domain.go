//go:build linux

package rapl

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/procfs/sysfs"

	"github.com/ja7ad/runmeter/pkg/types"
)

// Domain names.
const (
	Package = "package"
	DRAM    = "dram"
)

// Default powercap zone directories, relative to <sysfs>/class/powercap.
const (
	DefaultPackageZone = "intel-rapl:0"
	DefaultDRAMZone    = "intel-rapl:1"
)

// Domain is one RAPL energy accumulator. It remembers the last value read
// and whether its unavailability has been reported already.
type Domain struct {
	name   string
	zone   sysfs.RaplZone
	last   types.Energy
	lastAt time.Time
	warned bool
}

// NewDomain returns a domain reading <dir>/energy_uj.
func NewDomain(name, dir string) *Domain {
	return &Domain{
		name: name,
		zone: sysfs.RaplZone{Name: name, Path: dir},
	}
}

// DefaultDomains returns the package and dram domains at the fixed
// intel-rapl:0 and intel-rapl:1 zone directories below sysfsRoot.
func DefaultDomains(sysfsRoot string) (pkg, dram *Domain) {
	base := filepath.Join(sysfsRoot, "class", "powercap")
	return NewDomain(Package, filepath.Join(base, DefaultPackageZone)),
		NewDomain(DRAM, filepath.Join(base, DefaultDRAMZone))
}

// Discover enumerates the powercap zones below sysfsRoot and returns the
// first package and dram zones found. Either may be nil.
func Discover(sysfsRoot string) (pkg, dram *Domain, err error) {
	fs, err := sysfs.NewFS(sysfsRoot)
	if err != nil {
		return nil, nil, fmt.Errorf("rapl: open sysfs %s: %w", sysfsRoot, err)
	}
	zones, err := sysfs.GetRaplZones(fs)
	if err != nil {
		return nil, nil, fmt.Errorf("rapl: %w", err)
	}
	for _, z := range zones {
		name := strings.ToLower(z.Name)
		switch {
		case pkg == nil && strings.HasPrefix(name, Package):
			pkg = &Domain{name: Package, zone: z}
		case dram == nil && strings.HasPrefix(name, DRAM):
			dram = &Domain{name: DRAM, zone: z}
		}
	}
	if pkg == nil && dram == nil {
		return nil, nil, ErrNoZones
	}
	return pkg, dram, nil
}

func (d *Domain) Name() string { return d.name }

// Path returns the energy_uj file backing the domain.
func (d *Domain) Path() string { return filepath.Join(d.zone.Path, "energy_uj") }

// MaxEnergy is the counter range, when known from discovery.
func (d *Domain) MaxEnergy() types.Energy { return types.Energy(d.zone.MaxMicrojoules) }

// Last returns the most recent successful reading and when it was taken.
func (d *Domain) Last() (types.Energy, time.Time) { return d.last, d.lastAt }

// Warned reports whether unavailability of this domain was already logged.
func (d *Domain) Warned() bool { return d.warned }
