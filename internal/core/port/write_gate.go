package port

import (
	"sigenbridge/internal/core/domain"
	"sigenbridge/pkg/sigenergy"
)

// WriteGate validates a control command against a device's probed
// capabilities and current state, and encodes it for the wire. A failed
// validation means nothing is written.
type WriteGate interface {
	PrepareNumber(caps *sigenergy.CapabilitySet, state domain.DeviceState, control string, value float64) (sigenergy.RegisterSpec, []uint16, error)
	PrepareOption(caps *sigenergy.CapabilitySet, state domain.DeviceState, control string, option string) (sigenergy.RegisterSpec, []uint16, error)
	PrepareSwitch(caps *sigenergy.CapabilitySet, state domain.DeviceState, control string, enable bool) (sigenergy.RegisterSpec, []uint16, error)
	ReadOnly() bool
}
