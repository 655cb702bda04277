// Package api implements the read-only status API and WebSocket event feed
// for the Gray Logic actuator.
//
// This package provides:
//   - Health, room and stream status endpoints
//   - Runtime and actuation counters for basic monitoring
//   - WebSocket hub broadcasting dispatcher and stream events
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Architecture
//
// The API never drives devices. It reads the immutable room registry, the
// stream manager's state snapshots and the dispatcher's counters. Events flow
// the other way through the Hub: the dispatcher and stream manager call
// Hub.Broadcast and subscribed WebSocket clients receive them.
//
// # Channels
//
// WebSocket clients subscribe to any of:
//   - event.received: an inbound event before rule evaluation
//   - device.actuated: one device outcome (changed, unchanged, failed)
//   - stream.state_changed: a stream connected, disconnected or retried
//
// # Graceful Degradation
//
// The server works with any subset of its optional sources. Missing stream
// or dispatcher sources report empty results rather than errors.
package api
