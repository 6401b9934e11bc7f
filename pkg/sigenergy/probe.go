package sigenergy

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

// CapabilitySet is the probed, confirmed-supported subset of the catalog for
// one physical unit. It is immutable after construction; refreshing support
// means probing again and replacing the whole set.
type CapabilitySet struct {
	kind  DeviceKind
	specs map[string]RegisterSpec
}

func (c CapabilitySet) Kind() DeviceKind {
	return c.kind
}

func (c CapabilitySet) Len() int {
	return len(c.specs)
}

func (c CapabilitySet) Supports(name string) bool {
	_, ok := c.specs[name]
	return ok
}

func (c CapabilitySet) Lookup(name string) (RegisterSpec, bool) {
	spec, ok := c.specs[name]
	return spec, ok
}

// Names returns the supported register names in sorted order.
func (c CapabilitySet) Names() []string {
	names := make([]string, 0, len(c.specs))
	for name := range c.specs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Specs returns the supported specs in catalog order.
func (c CapabilitySet) Specs() []RegisterSpec {
	out := make([]RegisterSpec, 0, len(c.specs))
	for _, spec := range RegistersFor(c.kind) {
		if _, ok := c.specs[spec.Name]; ok {
			out = append(out, spec)
		}
	}
	return out
}

// Probe reads every candidate register for the kind once and keeps the ones
// the unit answers. An IllegalAddress reply means "this unit does not
// implement that register" and silently excludes it; a connectivity failure
// aborts the probe as a whole so it can be retried later. Write-only
// registers cannot be probed and are admitted whenever their parameter table
// answered at all.
func Probe(session Session, slaveID uint8, kind DeviceKind) (CapabilitySet, error) {
	supported := map[string]RegisterSpec{}
	holdingAnswered := false

	for _, spec := range RegistersFor(kind) {
		if !spec.Readable() {
			continue
		}
		words, err := session.Read(slaveID, spec.Table, spec.Address, spec.Words)
		if err != nil {
			if errors.Is(err, ErrIllegalAddress) {
				continue
			}
			return CapabilitySet{}, fmt.Errorf("probe %s unit %d: %w", kind, slaveID, err)
		}
		value, err := Decode(spec, words)
		if err != nil || !plausible(spec, value) {
			continue
		}
		supported[spec.Name] = spec
		if spec.Table == HoldingTable {
			holdingAnswered = true
		}
	}

	if holdingAnswered {
		for _, spec := range RegistersFor(kind) {
			if spec.Access == WriteOnly {
				supported[spec.Name] = spec
			}
		}
	}

	return CapabilitySet{kind: kind, specs: supported}, nil
}

// ProbeBudget bounds a full probe of kind: one sequential read per catalog
// candidate, each bounded by perRead, plus headroom for a reconnect. A probe
// on a slow but alive endpoint must be able to finish inside its own budget.
func ProbeBudget(kind DeviceKind, perRead time.Duration) time.Duration {
	if perRead <= 0 {
		perRead = time.Second
	}
	budget := time.Duration(len(RegistersFor(kind))+4) * perRead
	if budget < 10*time.Second {
		budget = 10 * time.Second
	}
	return budget
}

// plausible filters registers that answer but return garbage: all-zero
// strings and numeric values far outside the physical range of their unit.
// Mirrors the device's habit of acknowledging unimplemented registers with
// junk instead of an exception.
func plausible(spec RegisterSpec, value Value) bool {
	if spec.Type == String {
		return value.Text != ""
	}
	v := value.Float
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	unit := strings.ToLower(spec.Unit)
	switch {
	case strings.HasPrefix(unit, "v"):
		return math.Abs(v) <= 1000
	case strings.HasPrefix(unit, "a"):
		return math.Abs(v) <= 1000
	case strings.HasPrefix(unit, "kw"), strings.HasPrefix(unit, "kva"):
		return math.Abs(v) <= 100000
	case strings.HasPrefix(unit, "kwh"):
		return math.Abs(v) <= 100000
	case strings.Contains(unit, "c"):
		return v >= -50 && v <= 150
	case unit == "%":
		return v >= 0 && v <= 120
	default:
		return true
	}
}

// DetectKind classifies the unit listening at (session, slaveID) by reading
// kind-identifying registers, most specific first. A DC charger is an
// inverter that also answers the DC charging current register.
func DetectKind(session Session, slaveID uint8) (DeviceKind, error) {
	checks := []struct {
		kind DeviceKind
		name string
	}{
		{KindDCCharger, "dc_charger_charging_current"},
		{KindInverter, "inverter_running_state"},
		{KindACCharger, "ac_charger_system_state"},
		{KindPlant, "plant_on_off_grid_status"},
	}
	for _, check := range checks {
		spec, ok := LookupRegister(check.kind, check.name)
		if !ok {
			continue
		}
		_, err := session.Read(slaveID, spec.Table, spec.Address, spec.Words)
		if err == nil {
			return check.kind, nil
		}
		if !errors.Is(err, ErrIllegalAddress) {
			return 0, err
		}
	}
	return 0, fmt.Errorf("unit %d: %w", slaveID, ErrIllegalAddress)
}
