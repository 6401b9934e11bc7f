package domain

import "errors"

// Topology admission errors.
var (
	ErrSlaveIDOutOfRange = errors.New("slave id out of range")
	ErrDuplicateID       = errors.New("duplicate device id")
	ErrDanglingParent    = errors.New("parent device does not exist")
	ErrIDConflict        = errors.New("device id conflicts with another device kind")
)

// Write gate errors.
var (
	ErrReadOnlyMode       = errors.New("bridge is in read-only mode")
	ErrUnsupportedControl = errors.New("control not supported by device")
	ErrOutOfRange         = errors.New("value out of range")
	ErrInvalidChoice      = errors.New("invalid choice")
	ErrUnknownDevice      = errors.New("unknown device")
)
