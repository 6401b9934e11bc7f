package service

import (
	"fmt"

	"sigenbridge/internal/core/domain"
	"sigenbridge/internal/core/port"
	"sigenbridge/pkg/sigenergy"

	"go.uber.org/zap"
)

// Controls that only take effect while remote EMS control is enabled on the
// plant unit.
const (
	remoteEMSEnableControl = "plant_remote_ems_enable"
	remoteEMSModeControl   = "plant_remote_ems_control_mode"
)

// DefaultWriteGate validates control commands in a fixed order: read-only
// mode, capability, access, value bounds, then encoding. Commands are never
// retried; a rejected command produces no wire traffic at all.
type DefaultWriteGate struct {
	ReadOnlyMode bool
	Logger       *zap.Logger
}

func (g *DefaultWriteGate) ReadOnly() bool {
	return g.ReadOnlyMode
}

func (g *DefaultWriteGate) PrepareNumber(caps *sigenergy.CapabilitySet, state domain.DeviceState,
	control string, value float64) (sigenergy.RegisterSpec, []uint16, error) {

	spec, err := g.writableSpec(caps, control)
	if err != nil {
		return sigenergy.RegisterSpec{}, nil, err
	}
	if spec.HasMin && value < spec.Min {
		return spec, nil, fmt.Errorf("%w: %s=%v below %v", domain.ErrOutOfRange, control, value, spec.Min)
	}
	if spec.HasMax && value > spec.Max {
		return spec, nil, fmt.Errorf("%w: %s=%v above %v", domain.ErrOutOfRange, control, value, spec.Max)
	}
	words, err := sigenergy.Encode(spec, value)
	if err != nil {
		return spec, nil, fmt.Errorf("%w: %s=%v", domain.ErrOutOfRange, control, value)
	}
	g.Logger.Debug("write gate: number accepted", zap.String("control", control), zap.Float64("value", value))
	return spec, words, nil
}

func (g *DefaultWriteGate) PrepareOption(caps *sigenergy.CapabilitySet, state domain.DeviceState,
	control string, option string) (sigenergy.RegisterSpec, []uint16, error) {

	spec, err := g.writableSpec(caps, control)
	if err != nil {
		return sigenergy.RegisterSpec{}, nil, err
	}
	if len(spec.Enum) == 0 {
		return spec, nil, fmt.Errorf("%w: %s takes no options", domain.ErrInvalidChoice, control)
	}
	raw, ok := enumRaw(spec, option)
	if !ok {
		return spec, nil, fmt.Errorf("%w: %s=%q", domain.ErrInvalidChoice, control, option)
	}
	if control == remoteEMSModeControl && !remoteEMSEnabled(state) {
		return spec, nil, fmt.Errorf("%w: %s requires %s to be on", domain.ErrInvalidChoice, control, remoteEMSEnableControl)
	}
	g.Logger.Debug("write gate: option accepted", zap.String("control", control), zap.String("option", option))
	return spec, []uint16{raw}, nil
}

func (g *DefaultWriteGate) PrepareSwitch(caps *sigenergy.CapabilitySet, state domain.DeviceState,
	control string, enable bool) (sigenergy.RegisterSpec, []uint16, error) {

	spec, err := g.writableSpec(caps, control)
	if err != nil {
		return sigenergy.RegisterSpec{}, nil, err
	}
	if spec.Words != 1 {
		return spec, nil, fmt.Errorf("%w: %s is not a switch", domain.ErrInvalidChoice, control)
	}
	var raw uint16
	if enable {
		raw = 1
	}
	g.Logger.Debug("write gate: switch accepted", zap.String("control", control), zap.Bool("enable", enable))
	return spec, []uint16{raw}, nil
}

func (g *DefaultWriteGate) writableSpec(caps *sigenergy.CapabilitySet, control string) (sigenergy.RegisterSpec, error) {
	if g.ReadOnlyMode {
		return sigenergy.RegisterSpec{}, fmt.Errorf("%w: rejected %s", domain.ErrReadOnlyMode, control)
	}
	if caps == nil {
		return sigenergy.RegisterSpec{}, fmt.Errorf("%w: %s (device not probed)", domain.ErrUnsupportedControl, control)
	}
	spec, ok := caps.Lookup(control)
	if !ok {
		return sigenergy.RegisterSpec{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedControl, control)
	}
	if !spec.Writable() {
		return sigenergy.RegisterSpec{}, fmt.Errorf("%w: %s is read-only", domain.ErrUnsupportedControl, control)
	}
	return spec, nil
}

func enumRaw(spec sigenergy.RegisterSpec, option string) (uint16, bool) {
	for raw, label := range spec.Enum {
		if label == option {
			return raw, true
		}
	}
	return 0, false
}

func remoteEMSEnabled(state domain.DeviceState) bool {
	reading, ok := state.Reading(remoteEMSEnableControl)
	return ok && reading.Value.Float == 1
}

// ensure interface compliance
var _ port.WriteGate = (*DefaultWriteGate)(nil)
