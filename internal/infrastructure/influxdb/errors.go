package influxdb

import "errors"

var (
	// ErrConnectionFailed is returned by Connect when the server does not answer its ping.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrClosed is returned by HealthCheck after Close.
	ErrClosed = errors.New("influxdb: client closed")
)
