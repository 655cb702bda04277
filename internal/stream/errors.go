package stream

import "errors"

// Sentinel errors for stream connections.
var (
	// ErrConnection is returned when the stream cannot be opened or a read fails.
	ErrConnection = errors.New("stream: connection error")

	// ErrUnexpectedStatus is returned when the server answers with a non-2xx status.
	ErrUnexpectedStatus = errors.New("stream: unexpected status")

	// ErrClosed is returned when the server ends the stream.
	ErrClosed = errors.New("stream: closed by server")

	// ErrFrameTooLarge is returned when a line or JSON value exceeds MaxLineSize.
	ErrFrameTooLarge = errors.New("stream: frame too large")
)
