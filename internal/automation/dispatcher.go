package automation

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-actuator/internal/room"
)

// WebSocket channels used by the dispatcher.
const (
	ChannelEventReceived  = "event.received"
	ChannelDeviceActuated = "device.actuated"
)

// ActuationPublisher is the interface for publishing actuation outcomes.
type ActuationPublisher interface {
	// PublishActuation publishes one outcome document for a device.
	PublishActuation(deviceID string, result any) error
}

// MetricsWriter is the interface for recording actuation telemetry.
type MetricsWriter interface {
	// WriteActuation queues one action outcome for asynchronous writing.
	WriteActuation(deviceID, room, op, result string, duration time.Duration)
}

// WSHub is the interface for broadcasting WebSocket events.
type WSHub interface {
	// Broadcast sends an event to all clients subscribed to the given channel.
	Broadcast(channel string, payload any)
}

// Outcome is everything that happened for one event.
type Outcome struct {
	EventID  string
	Endpoint room.Endpoint
	Decision Decision
	Report   Report
}

// Stats holds dispatcher counters since start.
type Stats struct {
	Events           uint64 `json:"events"`
	UnknownKinds     uint64 `json:"unknown_kinds"`
	DroppedFragments uint64 `json:"dropped_fragments"`
	ActionsChanged   uint64 `json:"actions_changed"`
	ActionsUnchanged uint64 `json:"actions_unchanged"`
	ActionsFailed    uint64 `json:"actions_failed"`
}

// Dispatcher routes inbound events through Decide and the Actuator, then
// reports the outcome.
//
// Thread Safety: Dispatch is safe for concurrent use from every stream.
type Dispatcher struct {
	registry *room.Registry
	actuator *Actuator
	logger   Logger

	// Optional sinks (nil when disabled).
	mqtt    ActuationPublisher
	metrics MetricsWriter
	hub     WSHub

	events           atomic.Uint64
	unknownKinds     atomic.Uint64
	droppedFragments atomic.Uint64
	changed          atomic.Uint64
	unchanged        atomic.Uint64
	failed           atomic.Uint64
}

// NewDispatcher creates a Dispatcher over an immutable registry snapshot.
//
// Parameters:
//   - registry: Registry snapshot used for every decision
//   - actuator: Executes the resulting actions
//   - logger: Logger instance (may be nil)
func NewDispatcher(registry *room.Registry, actuator *Actuator, logger Logger) *Dispatcher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Dispatcher{
		registry: registry,
		actuator: actuator,
		logger:   logger,
	}
}

// SetMQTT enables publishing of actuation outcomes.
func (d *Dispatcher) SetMQTT(client ActuationPublisher) {
	d.mqtt = client
}

// SetMetrics enables actuation telemetry.
func (d *Dispatcher) SetMetrics(w MetricsWriter) {
	d.metrics = w
}

// SetHub enables WebSocket broadcasts.
func (d *Dispatcher) SetHub(hub WSHub) {
	d.hub = hub
}

// Dispatch handles one event payload received on ep.
//
// Unknown kinds and malformed fragments are logged and dropped. Actuation
// failures are logged per device and counted in Stats.
func (d *Dispatcher) Dispatch(ctx context.Context, ep room.Endpoint, payload string) Outcome {
	out := Outcome{EventID: uuid.NewString(), Endpoint: ep}
	d.events.Add(1)

	log := d.logger
	log.Debug("event received",
		"event_id", out.EventID,
		"room", ep.Room,
		"kind", ep.Kind,
		"payload", payload,
	)

	if d.hub != nil {
		d.hub.Broadcast(ChannelEventReceived, map[string]any{
			"event_id": out.EventID,
			"room":     ep.Room,
			"kind":     ep.Kind,
			"payload":  payload,
		})
	}

	if _, known := room.ParseEventKind(string(ep.Kind)); !known {
		d.unknownKinds.Add(1)
		log.Warn("unknown event kind, ignoring",
			"event_id", out.EventID,
			"room", ep.Room,
			"kind", ep.Kind,
			"error", ErrUnknownEventKind,
		)
		return out
	}

	out.Decision = Decide(ep.Kind, ep.Room, payload, d.registry)

	for _, err := range out.Decision.Dropped {
		d.droppedFragments.Add(1)
		log.Warn("event fragment dropped", "event_id", out.EventID, "room", ep.Room, "kind", ep.Kind, "error", err)
	}
	for _, id := range out.Decision.UnknownRooms {
		log.Info("no devices for room", "event_id", out.EventID, "room", id, "kind", ep.Kind)
	}

	if len(out.Decision.Actions) == 0 {
		return out
	}

	out.Report = d.actuator.Execute(ctx, out.Decision.Actions)
	d.changed.Add(uint64(out.Report.Changed))
	d.unchanged.Add(uint64(out.Report.Unchanged))
	d.failed.Add(uint64(out.Report.Failed))

	log.Info("event handled",
		"event_id", out.EventID,
		"room", ep.Room,
		"kind", ep.Kind,
		"actions", len(out.Report.Results),
		"changed", out.Report.Changed,
		"unchanged", out.Report.Unchanged,
		"failed", out.Report.Failed,
	)

	for _, res := range out.Report.Results {
		d.report(out.EventID, ep, res)
	}
	return out
}

// report forwards one result to the enabled sinks.
func (d *Dispatcher) report(eventID string, ep room.Endpoint, res Result) {
	status := "unchanged"
	switch {
	case res.Err != nil:
		status = "failed"
	case res.Changed:
		status = "changed"
	}

	msg := map[string]any{
		"event_id":    eventID,
		"device_id":   res.Action.DeviceID,
		"room":        res.Action.Room,
		"op":          res.Action.Op,
		"result":      status,
		"trigger":     string(ep.Kind),
		"duration_ms": res.Duration.Milliseconds(),
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}
	if res.Action.Level != "" {
		msg["level"] = res.Action.Level
	}
	if res.Err != nil {
		msg["error"] = res.Err.Error()
	}

	if d.mqtt != nil {
		if err := d.mqtt.PublishActuation(res.Action.DeviceID, msg); err != nil {
			d.logger.Debug("actuation publish failed", "device_id", res.Action.DeviceID, "error", err)
		}
	}

	if d.metrics != nil {
		d.metrics.WriteActuation(res.Action.DeviceID, string(res.Action.Room), string(res.Action.Op), status, res.Duration)
	}

	if d.hub != nil {
		d.hub.Broadcast(ChannelDeviceActuated, msg)
	}
}

// Stats returns a snapshot of the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Events:           d.events.Load(),
		UnknownKinds:     d.unknownKinds.Load(),
		DroppedFragments: d.droppedFragments.Load(),
		ActionsChanged:   d.changed.Load(),
		ActionsUnchanged: d.unchanged.Load(),
		ActionsFailed:    d.failed.Load(),
	}
}
