package domain

import (
	"fmt"

	"sigenbridge/pkg/sigenergy"
)

// plant units sit above the inverter id range on Sigenergy systems
const maxPlantSlaveID = 247

// Topology is the set of admitted devices. It is owned by a single actor and
// never mutated concurrently.
type Topology struct {
	devices map[string]DeviceRef
	order   []string
}

func NewTopology() *Topology {
	return &Topology{devices: make(map[string]DeviceRef)}
}

// Add validates ref and admits it. DC chargers inherit their Modbus identity
// from the parent inverter.
func (t *Topology) Add(ref DeviceRef) error {
	if ref.Name == "" {
		return fmt.Errorf("%w: empty device name", ErrDuplicateID)
	}
	if _, ok := t.devices[ref.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, ref.Name)
	}
	switch ref.Kind {
	case sigenergy.KindDCCharger:
		parent, ok := t.devices[ref.Parent]
		if !ok || parent.Kind != sigenergy.KindInverter {
			return fmt.Errorf("%w: dc charger %s needs inverter %q", ErrDanglingParent, ref.Name, ref.Parent)
		}
		ref.Host = parent.Host
		ref.Port = parent.Port
		ref.SlaveID = parent.SlaveID
	case sigenergy.KindPlant:
		if ref.SlaveID < MinSlaveID || ref.SlaveID > maxPlantSlaveID {
			return fmt.Errorf("%w: %s unit %d", ErrSlaveIDOutOfRange, ref.Name, ref.SlaveID)
		}
	default:
		if ref.SlaveID < MinSlaveID || ref.SlaveID > MaxSlaveID {
			return fmt.Errorf("%w: %s unit %d", ErrSlaveIDOutOfRange, ref.Name, ref.SlaveID)
		}
		for _, name := range t.order {
			other := t.devices[name]
			if other.Kind == sigenergy.KindPlant || other.Kind == sigenergy.KindDCCharger {
				continue
			}
			if other.Host == ref.Host && other.Port == ref.Port && other.SlaveID == ref.SlaveID {
				if other.Kind != ref.Kind {
					return fmt.Errorf("%w: %s and %s share unit %d", ErrIDConflict, ref.Name, other.Name, ref.SlaveID)
				}
				return fmt.Errorf("%w: %s and %s share unit %d", ErrDuplicateID, ref.Name, other.Name, ref.SlaveID)
			}
		}
	}
	t.devices[ref.Name] = ref
	t.order = append(t.order, ref.Name)
	return nil
}

// Remove drops a device and cascades to DC chargers parented on it. Returned
// names list children first, the removed device last.
func (t *Topology) Remove(name string) []string {
	if _, ok := t.devices[name]; !ok {
		return nil
	}
	removed := t.Children(name)
	removed = append(removed, name)
	for _, n := range removed {
		delete(t.devices, n)
	}
	kept := t.order[:0]
	for _, n := range t.order {
		if _, ok := t.devices[n]; ok {
			kept = append(kept, n)
		}
	}
	t.order = kept
	return removed
}

func (t *Topology) Get(name string) (DeviceRef, bool) {
	ref, ok := t.devices[name]
	return ref, ok
}

// Children returns the names of DC chargers parented on name, in admission order.
func (t *Topology) Children(name string) []string {
	var children []string
	for _, n := range t.order {
		if ref := t.devices[n]; ref.Kind == sigenergy.KindDCCharger && ref.Parent == name {
			children = append(children, n)
		}
	}
	return children
}

// Devices returns all refs in admission order.
func (t *Topology) Devices() []DeviceRef {
	refs := make([]DeviceRef, 0, len(t.order))
	for _, n := range t.order {
		refs = append(refs, t.devices[n])
	}
	return refs
}

// Endpoints returns the distinct host:port pairs in first-seen order.
func (t *Topology) Endpoints() []string {
	seen := make(map[string]bool)
	var endpoints []string
	for _, n := range t.order {
		ep := t.devices[n].Endpoint()
		if !seen[ep] {
			seen[ep] = true
			endpoints = append(endpoints, ep)
		}
	}
	return endpoints
}

func (t *Topology) Len() int {
	return len(t.order)
}
