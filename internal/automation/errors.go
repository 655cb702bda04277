package automation

import (
	"errors"
	"fmt"
)

// Domain errors for the automation package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, automation.ErrNoHandle) {
//	    // device was never resolved
//	}
var (
	// ErrNoHandle is returned when a device has no resolved control surface.
	ErrNoHandle = errors.New("automation: device has no handle")

	// ErrUnreadableState is returned when isOn does not hold a boolean-like value.
	ErrUnreadableState = errors.New("automation: device state unreadable")

	// ErrMalformedFragment is returned for a payload fragment that is not a
	// valid people-count record.
	ErrMalformedFragment = errors.New("automation: malformed payload fragment")

	// ErrUnknownEventKind is returned for events whose kind has no rule.
	ErrUnknownEventKind = errors.New("automation: unknown event kind")
)

// ParseError describes one payload fragment that was dropped.
type ParseError struct {
	Fragment string
	Err      error
}

func (e *ParseError) Error() string {
	frag := e.Fragment
	if len(frag) > 80 {
		frag = frag[:80] + "..."
	}
	return fmt.Sprintf("parse %q: %v", frag, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ActuationError describes a failed action on one device.
type ActuationError struct {
	DeviceID string
	Op       Op
	Err      error
}

func (e *ActuationError) Error() string {
	return fmt.Sprintf("device %s %s: %v", e.DeviceID, e.Op, e.Err)
}

func (e *ActuationError) Unwrap() error {
	return e.Err
}
