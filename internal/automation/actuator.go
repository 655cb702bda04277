package automation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-actuator/internal/thing"
)

// defaultActuationTimeout bounds the actions for one device within one Execute call.
const defaultActuationTimeout = 10 * time.Second

// Logger defines the logging interface used by the automation package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// HandleSource looks up device handles. *room.Registry satisfies it.
type HandleSource interface {
	Handle(deviceID string) (thing.Handle, bool)
}

// Actuator applies actions to devices with read-before-write idempotence.
//
// Thread Safety: all methods are safe for concurrent use. Actions on the
// same device are serialised across callers.
type Actuator struct {
	handles HandleSource
	timeout time.Duration
	logger  Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewActuator creates an Actuator.
//
// Parameters:
//   - handles: Device handle lookup (usually the room registry)
//   - timeout: Upper bound for one device's actions per Execute; <= 0 uses 10s
//   - logger: Logger instance (may be nil)
func NewActuator(handles HandleSource, timeout time.Duration, logger Logger) *Actuator {
	if timeout <= 0 {
		timeout = defaultActuationTimeout
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Actuator{
		handles: handles,
		timeout: timeout,
		logger:  logger,
		locks:   make(map[string]*sync.Mutex),
	}
}

// lock acquires the device's mutex and returns its release function.
// The device set is fixed at startup, so entries are never removed.
func (a *Actuator) lock(deviceID string) func() {
	a.locksMu.Lock()
	mu, ok := a.locks[deviceID]
	if !ok {
		mu = &sync.Mutex{}
		a.locks[deviceID] = mu
	}
	a.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// Apply executes a single action.
//
// Returns:
//   - bool: true if the device was actuated, false if it was already in the desired state
//   - error: *ActuationError on failure
func (a *Actuator) Apply(ctx context.Context, action Action) (bool, error) {
	unlock := a.lock(action.DeviceID)
	defer unlock()
	return a.apply(ctx, action)
}

func (a *Actuator) apply(ctx context.Context, action Action) (bool, error) {
	h, ok := a.handles.Handle(action.DeviceID)
	if !ok {
		return false, &ActuationError{DeviceID: action.DeviceID, Op: action.Op, Err: ErrNoHandle}
	}

	var (
		changed bool
		err     error
	)
	switch action.Op {
	case OpPowerOn:
		changed, err = setPower(ctx, h, true)
	case OpPowerOff:
		changed, err = setPower(ctx, h, false)
	case OpSetIntensity:
		changed, err = setIntensity(ctx, h, action.Level)
	default:
		err = fmt.Errorf("unsupported operation %q", action.Op)
	}
	if err != nil {
		return false, &ActuationError{DeviceID: action.DeviceID, Op: action.Op, Err: err}
	}
	return changed, nil
}

// setPower toggles the device only when isOn differs from want.
func setPower(ctx context.Context, h thing.Handle, want bool) (bool, error) {
	v, err := h.ReadProperty(ctx, thing.PropertyIsOn)
	if err != nil {
		return false, err
	}
	on, ok := v.Bool()
	if !ok {
		return false, fmt.Errorf("%w: isOn = %q", ErrUnreadableState, v.String())
	}
	if on == want {
		return false, nil
	}
	if err := h.InvokeAction(ctx, thing.ActionToggle); err != nil {
		return false, err
	}
	return true, nil
}

// setIntensity invokes setLow/setHigh unless the intensity property already
// reports the level. An unreadable intensity falls through to the invoke.
func setIntensity(ctx context.Context, h thing.Handle, level Level) (bool, error) {
	if v, err := h.ReadProperty(ctx, thing.PropertyIntensity); err == nil {
		if strings.EqualFold(strings.TrimSpace(v.String()), string(level)) {
			return false, nil
		}
	}

	action := thing.ActionSetHigh
	if level == LevelLow {
		action = thing.ActionSetLow
	}
	if err := h.InvokeAction(ctx, action); err != nil {
		return false, err
	}
	return true, nil
}

// Execute applies actions. Actions for the same device run in order under
// that device's lock; different devices run concurrently. A failure never
// stops other devices.
//
// Returns:
//   - Report: One Result per action, in device first-appearance order
func (a *Actuator) Execute(ctx context.Context, actions []Action) Report {
	groups := groupByDevice(actions)
	results := make([][]Result, len(groups))

	var wg sync.WaitGroup
	for i, group := range groups {
		wg.Add(1)
		go func(idx int, acts []Action) {
			defer wg.Done()
			results[idx] = a.executeDevice(ctx, acts)
		}(i, group)
	}
	wg.Wait()

	var report Report
	for _, rs := range results {
		for _, r := range rs {
			switch {
			case r.Err != nil:
				report.Failed++
			case r.Changed:
				report.Changed++
			default:
				report.Unchanged++
			}
			report.Results = append(report.Results, r)
		}
	}
	return report
}

// executeDevice runs one device's actions sequentially under its lock.
func (a *Actuator) executeDevice(ctx context.Context, actions []Action) []Result {
	deviceID := actions[0].DeviceID
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	unlock := a.lock(deviceID)
	defer unlock()

	out := make([]Result, 0, len(actions))
	for _, act := range actions {
		start := time.Now()
		changed, err := a.apply(ctx, act)
		res := Result{Action: act, Changed: changed, Duration: time.Since(start), Err: err}
		out = append(out, res)

		if err != nil {
			a.logger.Warn("actuation failed",
				"device_id", act.DeviceID,
				"room", act.Room,
				"op", act.Op,
				"level", act.Level,
				"error", err,
			)
			continue
		}
		a.logger.Debug("actuation applied",
			"device_id", act.DeviceID,
			"op", act.Op,
			"level", act.Level,
			"changed", changed,
		)
	}
	return out
}

// groupByDevice splits actions per device, keeping action order within a
// device and devices in order of first appearance.
//
// Example:
//
//	actions: [lamp:on, fan:off, lamp:set(Low)]
//	groups:  [[lamp:on, lamp:set(Low)], [fan:off]]
func groupByDevice(actions []Action) [][]Action {
	index := make(map[string]int)
	var groups [][]Action
	for _, act := range actions {
		i, ok := index[act.DeviceID]
		if !ok {
			i = len(groups)
			index[act.DeviceID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], act)
	}
	return groups
}
