package mqtt

import "errors"

var (
	// ErrConnectionFailed is returned by Connect.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrNotConnected is returned while the broker session is down.
	ErrNotConnected = errors.New("mqtt: not connected")

	// ErrPublishFailed wraps marshal, size and broker failures of a publish.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when the ingress subscription cannot be made.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")
)
