package setup

import "errors"

// Sentinel errors for the setup feed. Both are fatal at startup.
var (
	// ErrFetchFailed indicates the setup service could not be reached or
	// answered with a non-success status.
	ErrFetchFailed = errors.New("setup: fetch failed")

	// ErrInvalidPayload indicates the setup response is not a JSON array or object.
	ErrInvalidPayload = errors.New("setup: invalid payload")
)
