package domain

import (
	"fmt"
	"time"

	"sigenbridge/pkg/sigenergy"
)

const (
	MinSlaveID = 1
	MaxSlaveID = 246
)

// DeviceRef identifies one logical device of the plant. DC chargers have no
// Modbus identity of their own: they inherit Host, Port and SlaveID from the
// inverter named by Parent.
type DeviceRef struct {
	Kind    sigenergy.DeviceKind
	Name    string
	Host    string
	Port    uint16
	SlaveID uint8
	Parent  string
}

func (r DeviceRef) Endpoint() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type Health int

const (
	HealthUnknown Health = iota
	HealthReachable
	HealthStale
	HealthError
)

func (h Health) String() string {
	switch h {
	case HealthReachable:
		return "reachable"
	case HealthStale:
		return "stale"
	case HealthError:
		return "error"
	default:
		return "unknown"
	}
}

type RegisterReading struct {
	Value sigenergy.Value
	Unit  string
}

// DeviceState is the last complete poll snapshot of a device. A new cycle
// replaces the whole map, never individual entries.
type DeviceState struct {
	Device    string
	Kind      sigenergy.DeviceKind
	Readings  map[string]RegisterReading
	Health    Health
	UpdatedAt time.Time
}

func (s DeviceState) Reading(name string) (RegisterReading, bool) {
	r, ok := s.Readings[name]
	return r, ok
}
