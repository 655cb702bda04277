package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the actuator.
const (
	MeasurementActuation   = "actuation"
	MeasurementStreamState = "stream_state"
)

// resultChanged is the actuation result that counts as a state change.
const resultChanged = "changed"

// WriteActuation records the outcome of one device action.
//
// Parameters:
//   - deviceID: Device identifier (e.g., "kitchen-lamp")
//   - room: Room the device belongs to
//   - op: Operation attempted (power_on, power_off, set_intensity)
//   - result: changed, unchanged or failed
//   - duration: Time spent reading and actuating the device
func (c *Client) WriteActuation(deviceID, room, op, result string, duration time.Duration) {
	changed := 0
	if result == resultChanged {
		changed = 1
	}
	c.queue(write.NewPoint(MeasurementActuation,
		map[string]string{
			"device_id": deviceID,
			"room":      room,
			"op":        op,
			"result":    result,
		},
		map[string]any{
			"duration_ms": float64(duration.Microseconds()) / 1000,
			"changed":     changed,
		},
		time.Now(),
	))
}

// WriteStreamState records a stream status transition.
//
//	client.WriteStreamState("kitchen", "peopleChanged", "connected", 3, 2)
func (c *Client) WriteStreamState(room, kind, status string, retries int, connects uint64) {
	c.queue(write.NewPoint(MeasurementStreamState,
		map[string]string{
			"room":   room,
			"kind":   kind,
			"status": status,
		},
		map[string]any{
			"retries":  retries,
			"connects": int64(connects), //nolint:gosec // connect counts never approach MaxInt64
		},
		time.Now(),
	))
}

// queue hands p to the batching writer. Points written after Close are dropped.
func (c *Client) queue(p *write.Point) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.influx != nil && !c.closed {
		c.writer.WritePoint(p)
	}
}
