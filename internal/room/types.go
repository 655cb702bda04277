package room

import "strings"

// RoomID is the canonical slug identifying a room.
type RoomID string

// DeviceKind classifies a device for rule evaluation.
type DeviceKind string

// Device kinds recognised by the rule engine. Any other setup type maps to KindOther.
const (
	KindHumidifier   DeviceKind = "Humidifier"
	KindRadiator     DeviceKind = "Radiator"
	KindDimmableLamp DeviceKind = "DimmableLamp"
	KindOther        DeviceKind = "Other"
)

// ParseDeviceKind maps a setup feed type string to a DeviceKind.
// Matching is case-insensitive; unknown types yield KindOther.
func ParseDeviceKind(raw string) DeviceKind {
	for _, k := range []DeviceKind{KindHumidifier, KindRadiator, KindDimmableLamp} {
		if strings.EqualFold(raw, string(k)) {
			return k
		}
	}
	return KindOther
}

// Device describes one actuatable device. Devices are never mutated after
// the registry is built.
type Device struct {
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Kind    DeviceKind `json:"kind"`
	RawType string     `json:"raw_type"`
	Room    RoomID     `json:"room"`
}

// EventKind names an event stream. Values are the wire names used in stream URLs.
type EventKind string

// Event kinds published by the event backend.
const (
	EventPeopleChanged  EventKind = "peopleChanged"
	EventMaxHumidity    EventKind = "maxHumidity"
	EventMinHumidity    EventKind = "minHumidity"
	EventMaxTemperature EventKind = "maxTemperature"
	EventMinTemperature EventKind = "minTemperature"
)

// AllEventKinds returns every known event kind in subscription order.
func AllEventKinds() []EventKind {
	return []EventKind{
		EventPeopleChanged,
		EventMaxHumidity,
		EventMinHumidity,
		EventMaxTemperature,
		EventMinTemperature,
	}
}

// ParseEventKind returns the EventKind for a wire name and whether it is known.
func ParseEventKind(s string) (EventKind, bool) {
	for _, k := range AllEventKinds() {
		if string(k) == s {
			return k, true
		}
	}
	return EventKind(s), false
}

// Endpoint identifies one event stream: a room and the kind of event it carries.
type Endpoint struct {
	Room RoomID    `json:"room"`
	Kind EventKind `json:"kind"`
}

func (e Endpoint) String() string {
	return string(e.Room) + "/" + string(e.Kind)
}

// EndpointPolicy selects which event kinds are subscribed for each room.
type EndpointPolicy string

const (
	// EndpointsRelevant subscribes to peopleChanged everywhere, humidity events
	// where a humidifier exists and temperature events where a radiator exists.
	EndpointsRelevant EndpointPolicy = "relevant"

	// EndpointsAll subscribes to every kind for every room.
	EndpointsAll EndpointPolicy = "all"
)
