// Package automation turns room events into device actuation.
//
// Architecture:
//
//	┌──────────────────────────────────────────────────────────┐
//	│               Dispatcher (dispatcher.go)                  │
//	│  One call per inbound event, from any stream goroutine    │
//	│  ┌───────────────┐    ┌─────────────────────────────┐    │
//	│  │ Decide        │───▶│ Actuator (actuator.go)      │    │
//	│  │ (rules.go)    │    │ per-device lock, read then  │    │
//	│  │ pure, no I/O  │    │ write, devices in parallel  │    │
//	│  └───────────────┘    └─────────────────────────────┘    │
//	│        ▲                          │                       │
//	│  SplitObjects (framing.go)        ▼                       │
//	│                      MQTT / InfluxDB / WebSocket outcome  │
//	└──────────────────────────────────────────────────────────┘
//
// # Rules
//
//   - maxHumidity / minHumidity: humidifiers off / on
//   - maxTemperature / minTemperature: radiators off / on
//   - peopleChanged "0": every device in the room off
//   - peopleChanged "1": dimmable lamps on at low intensity
//   - peopleChanged anything else: dimmable lamps on at high intensity
//
// # Idempotence
//
// Power actions read isOn and toggle only when the state differs. Intensity
// actions read the intensity property and skip the invoke when it already
// matches; if the property cannot be read the action is invoked anyway.
// All reads and writes for one device are serialised, so overlapping events
// from different streams cannot double-toggle it.
//
// # Thread Safety
//
// Decide is pure. Actuator and Dispatcher are safe for concurrent use.
package automation
