// Package room builds the room-device registry from the setup feed.
//
// The registry maps each room (a slug) to its devices in feed order and
// holds the device handle table. It is built once before any event stream
// starts and is read-only afterwards, so every stream shares the same
// snapshot without locking.
//
// Endpoints derives the (room, event kind) pairs the stream manager
// subscribes to; the registry is the only source of that list.
package room
