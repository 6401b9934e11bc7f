package domain

import "sigenbridge/pkg/sigenergy"

const (
	ACTOR_ID_MASTER = "master"
	ACTOR_ID_MQTT   = "mqtt"

	ACTOR_ID_ENDPOINT_PREFIX = "endpoint"
	ACTOR_ID_DEVICE_PREFIX   = "device"
)

// Endpoint actor messages. One endpoint actor serializes all wire traffic to
// a single host:port.

type ReadCycleRequest struct {
	ActorRequestMixIn
	SlaveID uint8
	Plan    []sigenergy.ReadBatch
}

type ReadCycleResponse struct {
	ActorResponseMixIn
	Batches [][]uint16
}

type ProbeDeviceRequest struct {
	ActorRequestMixIn
	SlaveID uint8
	Kind    sigenergy.DeviceKind
}

type ProbeDeviceResponse struct {
	ActorResponseMixIn
	Capabilities *sigenergy.CapabilitySet
}

type WriteRegisterRequest struct {
	ActorRequestMixIn
	SlaveID uint8
	Address uint16
	Words   []uint16
}

type WriteRegisterResponse struct {
	ActorResponseMixIn
}

// Device actor messages.

type GetDeviceStateRequest struct {
	ActorRequestMixIn
}

type GetDeviceStateResponse struct {
	ActorResponseMixIn
	State DeviceState
}

type GetDeviceInfoRequest struct {
	ActorRequestMixIn
}

type GetDeviceInfoResponse struct {
	ActorResponseMixIn
	Ref          DeviceRef
	Capabilities *sigenergy.CapabilitySet
	State        DeviceState
}

// DeviceProbed is sent by a device actor to the master once its capability
// set is known.
type DeviceProbed struct {
	Device       string
	Ref          DeviceRef
	Capabilities *sigenergy.CapabilitySet
}

// DeviceHealthChanged is sent by a device actor to the master when a device
// transitions between health states.
type DeviceHealthChanged struct {
	Device string
	Health Health
}

// Master messages.

type GetTopologyRequest struct {
	ActorRequestMixIn
}

type DeviceSummary struct {
	Ref       DeviceRef
	Registers []string
	Health    Health
}

type GetTopologyResponse struct {
	ActorResponseMixIn
	Devices []DeviceSummary
}

type GetFleetStateRequest struct {
	ActorRequestMixIn
	Device string // empty for all devices
}

type GetFleetStateResponse struct {
	ActorResponseMixIn
	States []DeviceState
}

type AddDeviceRequest struct {
	ActorRequestMixIn
	Ref DeviceRef
}

type AddDeviceResponse struct {
	ActorResponseMixIn
}

type RemoveDeviceRequest struct {
	ActorRequestMixIn
	Name string
}

type RemoveDeviceResponse struct {
	ActorResponseMixIn
	Removed []string
}

// MQTT actor messages.

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors      []GenericSensor
	Switches     []GenericSwitch
	InputNumbers []GenericInputNumber
	Selects      []GenericSelect
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
