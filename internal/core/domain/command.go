package domain

import "fmt"

// ControlRequest

type ControlRequest interface {
	ActorRequest
	ControlCommand() string
	TargetDevice() string
}

type ControlRequestMixIn struct {
	ActorRequestMixIn
	Device string
}

func (r ControlRequestMixIn) ControlCommand() string {
	return fmt.Sprintf("%T", r)
}

func (r ControlRequestMixIn) TargetDevice() string {
	return r.Device
}

// ControlResponse

type ControlResponse interface {
	ActorResponse
	ControlResponse() string
}

type ControlResponseMixIn struct {
	ActorResponseMixIn
}

func (r ControlResponseMixIn) ControlResponse() string {
	return fmt.Sprintf("%T", r)
}

// Control commands. Each one targets a single writable register of a device
// and is validated before it reaches the wire.

type SetControlNumberRequest struct {
	ControlRequestMixIn
	Control string
	Value   float64
}

type SetControlNumberResponse struct {
	ControlResponseMixIn
}

type SetControlOptionRequest struct {
	ControlRequestMixIn
	Control string
	Option  string
}

type SetControlOptionResponse struct {
	ControlResponseMixIn
}

type SetControlSwitchRequest struct {
	ControlRequestMixIn
	Control string
	Enable  bool
}

type SetControlSwitchResponse struct {
	ControlResponseMixIn
}

// ensure interface compliance
var _ ControlRequest = (*SetControlNumberRequest)(nil)
var _ ControlRequest = (*SetControlOptionRequest)(nil)
var _ ControlRequest = (*SetControlSwitchRequest)(nil)
