package room

import (
	"errors"
	"fmt"
)

// Per-entity setup problems. None of them abort a registry build.
var (
	// ErrOrphanDevice indicates a device references a room that does not exist.
	ErrOrphanDevice = errors.New("room: device references unknown room")

	// ErrEmptyID indicates an entity's identifier normalises to nothing.
	ErrEmptyID = errors.New("room: identifier is empty after normalisation")

	// ErrUnresolvedHandle indicates the device's control surface could not be resolved.
	ErrUnresolvedHandle = errors.New("room: device handle unresolved")
)

// ResolutionError records one entity that was skipped or left without a
// handle while building the registry.
type ResolutionError struct {
	Entity string
	Err    error
}

func (e ResolutionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Entity, e.Err)
}

func (e ResolutionError) Unwrap() error {
	return e.Err
}
