package thing

import "errors"

// Domain errors for the device control surface.
var (
	// ErrDescription indicates the Thing Description could not be fetched or parsed.
	ErrDescription = errors.New("thing: description unavailable")

	// ErrPropertyRead indicates a property read failed.
	ErrPropertyRead = errors.New("thing: property read failed")

	// ErrActionInvoke indicates an action invocation failed.
	ErrActionInvoke = errors.New("thing: action invoke failed")
)
