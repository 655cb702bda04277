package automation

import (
	"time"

	"github.com/nerrad567/gray-logic-actuator/internal/room"
)

// Op is a desired device state transition.
type Op string

// Supported operations.
const (
	OpPowerOn      Op = "power_on"
	OpPowerOff     Op = "power_off"
	OpSetIntensity Op = "set_intensity"
)

// Level is a lamp intensity preset.
type Level string

// Intensity presets. The value is the suffix of the device action name
// (setLow, setHigh) and the expected intensity property value.
const (
	LevelLow  Level = "Low"
	LevelHigh Level = "High"
)

// Action is one desired transition for one device.
type Action struct {
	DeviceID string      `json:"device_id"`
	Room     room.RoomID `json:"room"`
	Op       Op          `json:"op"`
	Level    Level       `json:"level,omitempty"`
}

func (a Action) String() string {
	if a.Op == OpSetIntensity {
		return a.DeviceID + ":" + string(a.Op) + "(" + string(a.Level) + ")"
	}
	return a.DeviceID + ":" + string(a.Op)
}

// Decision is the outcome of evaluating one event against the registry.
type Decision struct {
	// Actions in evaluation order. A device may appear more than once.
	Actions []Action

	// Dropped holds a *ParseError for each payload fragment that was skipped.
	Dropped []error

	// UnknownRooms lists room IDs named by the payload that are not registered.
	UnknownRooms []room.RoomID
}

// Result reports how one action went.
type Result struct {
	Action   Action        `json:"action"`
	Changed  bool          `json:"changed"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// Report summarises one Execute call.
type Report struct {
	Results   []Result
	Changed   int
	Unchanged int
	Failed    int
}

// Failures returns the errors of failed actions.
func (r Report) Failures() []error {
	var out []error
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res.Err)
		}
	}
	return out
}
