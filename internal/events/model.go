package events

import (
	"math"

	"sigenbridge/internal/core/domain"
	"sigenbridge/pkg/sigenergy"
)

// StateToEvents turns a poll snapshot into eventstream updates, one per
// supported register. Writable registers mirror their state back to the
// matching command entity so a restarted UI shows the device truth.
func StateToEvents(state domain.DeviceState, caps *sigenergy.CapabilitySet) []domain.SensorUpdateEvent {
	if caps == nil {
		return nil
	}
	events := make([]domain.SensorUpdateEvent, 0, len(state.Readings))
	for _, spec := range caps.Specs() {
		reading, ok := state.Reading(spec.Name)
		if !ok {
			continue
		}
		mixin := domain.SensorUpdateEventMixIn{Device: state.Device, Id: spec.Name}
		switch {
		case spec.Type == sigenergy.String:
			events = append(events, domain.TextSensorUpdateEvent{
				SensorUpdateEventMixIn: mixin,
				Value:                  reading.Value.Text,
			})
		case len(spec.Enum) > 0 && spec.Writable() && isOnOffEnum(spec):
			events = append(events, domain.SwitchSensorUpdateEvent{
				SensorUpdateEventMixIn: mixin,
				Value:                  reading.Value.Float == 1,
			})
		case len(spec.Enum) > 0 && spec.Writable():
			events = append(events, domain.SelectSensorUpdateEvent{
				SensorUpdateEventMixIn: mixin,
				Value:                  enumLabel(spec, reading.Value),
			})
		case len(spec.Enum) > 0:
			events = append(events, domain.TextSensorUpdateEvent{
				SensorUpdateEventMixIn: mixin,
				Value:                  enumLabel(spec, reading.Value),
			})
		case spec.Writable():
			events = append(events, domain.InputNumberSensorUpdateEvent{
				SensorUpdateEventMixIn: mixin,
				Value:                  reading.Value.Float,
				Decimals:               decimals(spec.Gain),
			})
		default:
			events = append(events, domain.FloatSensorUpdateEvent{
				SensorUpdateEventMixIn: mixin,
				Value:                  reading.Value.Float,
				Decimals:               decimals(spec.Gain),
			})
		}
	}
	return events
}

func AvailabilityEvent(device string, online bool) domain.DeviceAvailabilityEvent {
	return domain.DeviceAvailabilityEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Device: device, Id: "availability"},
		Online:                 online,
	}
}

func enumLabel(spec sigenergy.RegisterSpec, value sigenergy.Value) string {
	if label, ok := spec.Enum[uint16(value.Float)]; ok {
		return label
	}
	return "Unknown"
}

// decimals derives display precision from the register gain: gain 1000
// means the raw value carries three decimal places.
func decimals(gain float64) uint {
	if gain <= 1 {
		return 0
	}
	return uint(math.Round(math.Log10(gain)))
}
