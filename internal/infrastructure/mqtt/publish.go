package mqtt

import (
	"encoding/json"
	"fmt"
)

// maxPayloadSize caps a single published document.
const maxPayloadSize = 1 << 20

// PublishActuation publishes one actuation result for deviceID. Results are
// events, so they are not retained.
//
//	client.PublishActuation("kitchen-lamp", map[string]any{"result": "changed"})
//	// -> graylogic/actuator/device/kitchen-lamp/actuation
func (c *Client) PublishActuation(deviceID string, result any) error {
	return c.publishJSON(Topics{}.DeviceActuation(deviceID), result, false)
}

// PublishStreamState publishes the retained state of one event stream, so a
// dashboard subscribing later sees every stream's last status.
//
//	client.PublishStreamState("kitchen", "peopleChanged", state)
//	// -> graylogic/actuator/stream/kitchen/peopleChanged
func (c *Client) PublishStreamState(room, kind string, state any) error {
	return c.publishJSON(Topics{}.StreamState(room, kind), state, true)
}

func (c *Client) publishJSON(topic string, v any, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %s: %d bytes exceeds %d", ErrPublishFailed, topic, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	if err := wait(c.paho.Publish(topic, c.qos, retained, payload), defaultPublishTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}
