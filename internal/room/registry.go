package room

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-actuator/internal/setup"
	"github.com/nerrad567/gray-logic-actuator/internal/slug"
	"github.com/nerrad567/gray-logic-actuator/internal/thing"
)

// UnknownDeviceID is assigned to devices whose title is not a string.
const UnknownDeviceID = "unknown"

// defaultResolveConcurrency bounds concurrent Thing Description requests.
const defaultResolveConcurrency = 8

// Logger defines the logging interface used by Build.
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

// Resolver binds a device identifier to its control surface.
// *thing.Client satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, deviceID string) (thing.Handle, error)
}

// BuildOptions tunes Build.
type BuildOptions struct {
	// Concurrency bounds concurrent handle resolutions. Defaults to 8.
	Concurrency int

	Logger Logger
}

// Registry is an immutable snapshot of rooms, their devices and the device
// handle table. It is built once and shared read-only by every stream.
//
// All methods are safe for concurrent use.
type Registry struct {
	order   []RoomID
	devices map[RoomID][]Device
	handles map[string]thing.Handle
}

// Build constructs the registry from setup records.
//
// Rooms come from records of type Room and from the "rooms" array of any
// record (building records). Devices are records with a string roomId and a
// type other than Room. Per-entity problems (orphan devices, empty
// identifiers, unresolvable handles) are returned as ResolutionErrors and
// never abort the build.
//
// Parameters:
//   - ctx: Context bounding handle resolution
//   - records: Setup feed records in feed order
//   - resolver: Control surface client; nil skips handle resolution
//   - opts: Concurrency and logging
//
// Returns:
//   - *Registry: The snapshot (never nil)
//   - []ResolutionError: Skipped entities in feed order, then unresolved handles
func Build(ctx context.Context, records []setup.Record, resolver Resolver, opts BuildOptions) (*Registry, []ResolutionError) {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	reg := &Registry{
		devices: make(map[RoomID][]Device),
		handles: make(map[string]thing.Handle),
	}
	var problems []ResolutionError

	addRoom := func(r setup.Record) {
		raw, _ := r.Key()
		id := RoomID(slug.Normalize(raw))
		if id == "" {
			problems = append(problems, ResolutionError{Entity: r.Describe(), Err: ErrEmptyID})
			return
		}
		if _, exists := reg.devices[id]; exists {
			return
		}
		reg.order = append(reg.order, id)
		reg.devices[id] = []Device{}
	}

	// First pass: rooms.
	for _, r := range records {
		if r.IsRoom() {
			addRoom(r)
		}
		for _, nested := range r.Rooms() {
			addRoom(nested)
		}
	}

	// Second pass: devices.
	for _, r := range records {
		if r.IsRoom() {
			continue
		}
		rawRoom, ok := r.String("roomId")
		if !ok || rawRoom == "" {
			continue
		}

		roomID := RoomID(slug.Normalize(rawRoom))
		if _, exists := reg.devices[roomID]; !exists {
			problems = append(problems, ResolutionError{
				Entity: r.Describe(),
				Err:    fmt.Errorf("%w: %q", ErrOrphanDevice, rawRoom),
			})
			continue
		}

		title, ok := r.String("title")
		id := slug.Normalize(title)
		if !ok {
			id = UnknownDeviceID
			logger.Warn("device title is not a string, using placeholder id",
				"room", roomID, "placeholder", UnknownDeviceID)
		}
		if id == "" {
			problems = append(problems, ResolutionError{Entity: r.Describe(), Err: ErrEmptyID})
			continue
		}

		rawType := r.Type()
		reg.devices[roomID] = append(reg.devices[roomID], Device{
			ID:      id,
			Title:   title,
			Kind:    ParseDeviceKind(rawType),
			RawType: rawType,
			Room:    roomID,
		})
	}

	if resolver != nil {
		problems = append(problems, reg.resolveHandles(ctx, resolver, opts.Concurrency, logger)...)
	}

	logger.Info("room registry built",
		"rooms", len(reg.order),
		"devices", reg.DeviceCount(),
		"handles", len(reg.handles),
		"problems", len(problems),
	)

	return reg, problems
}

// resolveHandles resolves every distinct device ID with bounded concurrency.
func (r *Registry) resolveHandles(ctx context.Context, resolver Resolver, limit int, logger Logger) []ResolutionError {
	if limit < 1 {
		limit = defaultResolveConcurrency
	}

	var ids []string
	seen := make(map[string]struct{})
	for _, roomID := range r.order {
		for _, d := range r.devices[roomID] {
			if _, dup := seen[d.ID]; dup {
				continue
			}
			seen[d.ID] = struct{}{}
			ids = append(ids, d.ID)
		}
	}

	handles := make([]thing.Handle, len(ids))
	errs := make([]error, len(ids))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, id := range ids {
		g.Go(func() error {
			h, err := resolver.Resolve(ctx, id)
			if err != nil {
				errs[i] = err
				return nil
			}
			handles[i] = h
			return nil
		})
	}
	_ = g.Wait()

	var problems []ResolutionError
	for i, id := range ids {
		if errs[i] != nil {
			logger.Warn("device handle unresolved", "device_id", id, "error", errs[i])
			problems = append(problems, ResolutionError{
				Entity: fmt.Sprintf("device %q", id),
				Err:    fmt.Errorf("%w: %w", ErrUnresolvedHandle, errs[i]),
			})
			continue
		}
		if h := handles[i]; h != nil {
			if !h.Supports(thing.PropertyIsOn) || !h.Supports(thing.ActionToggle) {
				logger.Debug("thing description does not declare isOn/toggle, using default paths",
					"device_id", id)
			}
			r.handles[id] = h
		}
	}
	return problems
}

// Rooms returns room IDs in setup feed order.
func (r *Registry) Rooms() []RoomID {
	out := make([]RoomID, len(r.order))
	copy(out, r.order)
	return out
}

// HasRoom reports whether id is a registered room.
func (r *Registry) HasRoom(id RoomID) bool {
	_, ok := r.devices[id]
	return ok
}

// Devices returns a copy of the room's devices in feed order, or nil for an unknown room.
func (r *Registry) Devices(id RoomID) []Device {
	list, ok := r.devices[id]
	if !ok {
		return nil
	}
	out := make([]Device, len(list))
	copy(out, list)
	return out
}

// DevicesOfKind returns the room's devices of the given kind in feed order.
func (r *Registry) DevicesOfKind(id RoomID, kind DeviceKind) []Device {
	var out []Device
	for _, d := range r.devices[id] {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

// Handle returns the control surface for a device.
func (r *Registry) Handle(deviceID string) (thing.Handle, bool) {
	h, ok := r.handles[deviceID]
	return h, ok
}

// RoomCount returns the number of rooms.
func (r *Registry) RoomCount() int {
	return len(r.order)
}

// DeviceCount returns the number of device descriptors across all rooms.
func (r *Registry) DeviceCount() int {
	n := 0
	for _, list := range r.devices {
		n += len(list)
	}
	return n
}

// HandleCount returns the number of resolved device handles.
func (r *Registry) HandleCount() int {
	return len(r.handles)
}

// Endpoints derives the event streams to subscribe to. Rooms are listed in
// feed order and kinds in AllEventKinds order.
func (r *Registry) Endpoints(policy EndpointPolicy) []Endpoint {
	var out []Endpoint
	for _, id := range r.order {
		for _, kind := range AllEventKinds() {
			if policy == EndpointsAll || r.relevant(id, kind) {
				out = append(out, Endpoint{Room: id, Kind: kind})
			}
		}
	}
	return out
}

func (r *Registry) relevant(id RoomID, kind EventKind) bool {
	switch kind {
	case EventPeopleChanged:
		return true
	case EventMaxHumidity, EventMinHumidity:
		return len(r.DevicesOfKind(id, KindHumidifier)) > 0
	case EventMaxTemperature, EventMinTemperature:
		return len(r.DevicesOfKind(id, KindRadiator)) > 0
	default:
		return false
	}
}

// NewRegistry builds a registry directly from devices, keyed by each
// device's Room. Rooms are created in first-seen order, followed by any
// extra empty rooms. Handles are optional. Intended for tests and tools.
func NewRegistry(devices []Device, handles map[string]thing.Handle, emptyRooms ...RoomID) *Registry {
	reg := &Registry{
		devices: make(map[RoomID][]Device),
		handles: make(map[string]thing.Handle, len(handles)),
	}
	ensure := func(id RoomID) {
		if _, ok := reg.devices[id]; !ok {
			reg.order = append(reg.order, id)
			reg.devices[id] = []Device{}
		}
	}
	for _, d := range devices {
		ensure(d.Room)
		reg.devices[d.Room] = append(reg.devices[d.Room], d)
	}
	for _, id := range emptyRooms {
		ensure(id)
	}
	for id, h := range handles {
		reg.handles[id] = h
	}
	return reg
}
