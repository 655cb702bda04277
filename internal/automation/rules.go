package automation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/nerrad567/gray-logic-actuator/internal/room"
	"github.com/nerrad567/gray-logic-actuator/internal/slug"
)

// People counts with a dedicated rule. Every other value means "several".
const (
	peopleNone = "0"
	peopleOne  = "1"
)

// quotedRooms matches room names written as concatenated JSON strings: "a""b".
var quotedRooms = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"`)

// Decide maps one event to the device actions it calls for.
//
// Decide performs no I/O and reads the registry only. Unknown kinds yield an
// empty Decision.
//
// Parameters:
//   - kind: Event kind taken from the stream endpoint
//   - roomID: The endpoint's room
//   - payload: Raw event payload
//   - reg: Registry snapshot
//
// Returns:
//   - Decision: Actions in evaluation order plus dropped fragments and unknown rooms
func Decide(kind room.EventKind, roomID room.RoomID, payload string, reg *room.Registry) Decision {
	switch kind {
	case room.EventMaxHumidity:
		return environmental(roomID, payload, reg, room.KindHumidifier, OpPowerOff)
	case room.EventMinHumidity:
		return environmental(roomID, payload, reg, room.KindHumidifier, OpPowerOn)
	case room.EventMaxTemperature:
		return environmental(roomID, payload, reg, room.KindRadiator, OpPowerOff)
	case room.EventMinTemperature:
		return environmental(roomID, payload, reg, room.KindRadiator, OpPowerOn)
	case room.EventPeopleChanged:
		return peopleChanged(roomID, payload, reg)
	default:
		return Decision{}
	}
}

// environmental switches every device of kind in the target rooms.
func environmental(roomID room.RoomID, payload string, reg *room.Registry, kind room.DeviceKind, op Op) Decision {
	var d Decision
	for _, target := range environmentTargets(roomID, payload, reg, &d) {
		for _, dev := range reg.DevicesOfKind(target, kind) {
			d.Actions = append(d.Actions, Action{DeviceID: dev.ID, Room: target, Op: op})
		}
	}
	return d
}

// environmentTargets returns the registered rooms named by payload (a JSON
// array of strings, or quoted names written back to back). Payloads that
// name no room at all target the endpoint's room; named rooms that are not
// registered are reported and never fall back.
func environmentTargets(roomID room.RoomID, payload string, reg *room.Registry, d *Decision) []room.RoomID {
	var targets []room.RoomID
	names := roomNames(payload)
	seen := make(map[room.RoomID]bool)
	for _, name := range names {
		id := room.RoomID(slug.Normalize(name))
		if seen[id] {
			continue
		}
		seen[id] = true
		if !reg.HasRoom(id) {
			d.UnknownRooms = append(d.UnknownRooms, id)
			continue
		}
		targets = append(targets, id)
	}

	if len(names) == 0 {
		if !reg.HasRoom(roomID) {
			d.UnknownRooms = append(d.UnknownRooms, roomID)
			return nil
		}
		targets = []room.RoomID{roomID}
	}
	return targets
}

// roomNames extracts room names from an environmental payload, or nil when
// the payload is not a list of names.
func roomNames(payload string) []string {
	p := strings.TrimSpace(payload)
	if p == "" {
		return nil
	}

	if strings.HasPrefix(p, "[") && gjson.Valid(p) {
		var names []string
		gjson.Parse(p).ForEach(func(_, v gjson.Result) bool {
			if v.Type == gjson.String {
				names = append(names, v.Str)
			}
			return true
		})
		return names
	}

	if strings.HasPrefix(p, `"`) {
		rest := quotedRooms.ReplaceAllString(p, "")
		if strings.Trim(rest, " \t\r\n,") != "" {
			return nil
		}
		var names []string
		for _, m := range quotedRooms.FindAllStringSubmatch(p, -1) {
			names = append(names, m[1])
		}
		return names
	}

	return nil
}

// peopleChanged applies the occupancy rules to every record in payload.
func peopleChanged(roomID room.RoomID, payload string, reg *room.Registry) Decision {
	var d Decision

	// A payload that is a single number or string, such as 0 or "2", is a
	// count for the endpoint's room.
	if count, ok := bareCount(payload); ok {
		occupancy(&d, roomID, count, reg)
		return d
	}

	for _, frag := range SplitObjects(payload) {
		target, count, err := parseOccupancy(frag, roomID)
		if err != nil {
			d.Dropped = append(d.Dropped, &ParseError{Fragment: frag, Err: err})
			continue
		}
		occupancy(&d, target, count, reg)
	}
	return d
}

// parseOccupancy reads one {"roomId":..., "people":...} record. A missing
// roomId means the endpoint's room.
func parseOccupancy(frag string, endpointRoom room.RoomID) (room.RoomID, string, error) {
	if !isObjectFragment(frag) {
		return "", "", fmt.Errorf("%w: unexpected text between records", ErrMalformedFragment)
	}
	if !gjson.Valid(frag) {
		return "", "", fmt.Errorf("%w: invalid JSON", ErrMalformedFragment)
	}

	rec := gjson.Parse(frag)
	people := rec.Get("people")
	if !people.Exists() {
		return "", "", fmt.Errorf("%w: missing people", ErrMalformedFragment)
	}

	target := endpointRoom
	if rid := rec.Get("roomId"); rid.Exists() {
		if rid.Type != gjson.String {
			return "", "", fmt.Errorf("%w: roomId is not a string", ErrMalformedFragment)
		}
		target = room.RoomID(slug.Normalize(rid.Str))
	}

	return target, canonicalCount(people), nil
}

func bareCount(payload string) (string, bool) {
	p := strings.TrimSpace(payload)
	if !gjson.Valid(p) {
		return "", false
	}
	v := gjson.Parse(p)
	if v.Type != gjson.Number && v.Type != gjson.String {
		return "", false
	}
	return canonicalCount(v), true
}

// canonicalCount renders a people value so that 0, 0.0 and "0" compare equal.
func canonicalCount(v gjson.Result) string {
	switch v.Type {
	case gjson.Number:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case gjson.String:
		return strings.TrimSpace(v.Str)
	default:
		return v.Raw
	}
}

// occupancy appends the actions for count people in target.
func occupancy(d *Decision, target room.RoomID, count string, reg *room.Registry) {
	if !reg.HasRoom(target) {
		d.UnknownRooms = append(d.UnknownRooms, target)
		return
	}

	if count == peopleNone {
		for _, dev := range reg.Devices(target) {
			d.Actions = append(d.Actions, Action{DeviceID: dev.ID, Room: target, Op: OpPowerOff})
		}
		return
	}

	level := LevelHigh
	if count == peopleOne {
		level = LevelLow
	}
	for _, lamp := range reg.DevicesOfKind(target, room.KindDimmableLamp) {
		d.Actions = append(d.Actions,
			Action{DeviceID: lamp.ID, Room: target, Op: OpPowerOn},
			Action{DeviceID: lamp.ID, Room: target, Op: OpSetIntensity, Level: level},
		)
	}
}
