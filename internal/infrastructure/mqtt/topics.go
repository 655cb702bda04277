package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the base for every topic the actuator publishes or consumes.
const TopicPrefix = "graylogic/actuator"

// Topics provides builders for actuator MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
//
//	topics := mqtt.Topics{}
//	t := topics.DeviceActuation("lamp-1")
//	// Returns: "graylogic/actuator/device/lamp-1/actuation"
type Topics struct{}

// SystemStatus returns the retained online/offline status topic.
//
// Example: graylogic/actuator/status
func (Topics) SystemStatus() string {
	return TopicPrefix + "/status"
}

// StreamState returns the retained state topic for one event stream.
//
// Example: graylogic/actuator/stream/kitchen/peopleChanged
func (Topics) StreamState(room, kind string) string {
	return fmt.Sprintf("%s/stream/%s/%s", TopicPrefix, room, kind)
}

// DeviceActuation returns the topic for actuation results of one device.
//
// Example: graylogic/actuator/device/lamp-1/actuation
func (Topics) DeviceActuation(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/actuation", TopicPrefix, deviceID)
}

// EventIngress returns the topic on which events for a room and kind may be
// injected over MQTT.
//
// Example: graylogic/actuator/events/kitchen/minTemperature
func (Topics) EventIngress(room, kind string) string {
	return fmt.Sprintf("%s/events/%s/%s", TopicPrefix, room, kind)
}

// AllEventIngress returns a pattern matching every ingress topic.
//
// Pattern: graylogic/actuator/events/+/+
func (Topics) AllEventIngress() string {
	return TopicPrefix + "/events/+/+"
}

// ParseEventIngress splits an ingress topic into its room and kind segments.
// ok is false when the topic does not have the ingress shape.
func ParseEventIngress(topic string) (room, kind string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefix+"/events/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
