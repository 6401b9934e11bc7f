package sigenergy

import (
	"errors"
	"fmt"
)

// Wire-level failure taxonomy. IllegalAddress is the expected "register not
// implemented" signal used by probing and must stay distinguishable from real
// transport failures.
var (
	ErrUnreachable    = errors.New("sigenergy: endpoint unreachable")
	ErrTimeout        = errors.New("sigenergy: request timed out")
	ErrIllegalAddress = errors.New("sigenergy: illegal register address")
	ErrMalformed      = errors.New("sigenergy: malformed response")
	ErrRejectedValue  = errors.New("sigenergy: value rejected by device")
)

type EndpointError struct {
	Endpoint string
	Err      error
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("%s: %s", e.Endpoint, e.Err)
}

func (e *EndpointError) Unwrap() error {
	return e.Err
}

func endpointErr(endpoint string, err error) error {
	if err == nil {
		return nil
	}
	return &EndpointError{Endpoint: endpoint, Err: err}
}
