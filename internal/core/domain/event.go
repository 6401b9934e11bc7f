package domain

import "fmt"

// Device is the topic segment of the owning device; Id names the sensor
// below it.
type SensorUpdateEventMixIn struct {
	Device string
	Id     string
}

type SensorUpdateEvent interface {
	SensorUpdateEvent() string
	SensorDevice() string
	SensorId() string
}

func (e SensorUpdateEventMixIn) SensorUpdateEvent() string {
	return fmt.Sprintf("%T", e)
}

func (e SensorUpdateEventMixIn) SensorDevice() string {
	return e.Device
}

func (e SensorUpdateEventMixIn) SensorId() string {
	return e.Id
}

type FloatSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value    float64
	Decimals uint
}

type TextSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value string
}

type SwitchSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

type InputNumberSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value    float64
	Decimals uint
}

type SelectSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value string
}

// DeviceAvailabilityEvent reports a device going online or offline on its
// availability topic.
type DeviceAvailabilityEvent struct {
	SensorUpdateEventMixIn
	Online bool
}

type BridgeStateUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}
