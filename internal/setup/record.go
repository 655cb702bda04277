package setup

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// TypeRoom is the record type that declares a room.
const TypeRoom = "Room"

// Record is a read-only view over one entity from the setup feed.
//
// The feed is loosely typed, so fields are checked for presence and JSON type
// rather than decoded into a fixed struct.
type Record struct {
	res gjson.Result
}

// NewRecord wraps a raw JSON object. Intended for tests and callers that
// already hold an entity.
func NewRecord(raw string) Record {
	return Record{res: gjson.Parse(raw)}
}

// Type returns the "type" field when it is a string, otherwise "".
func (r Record) Type() string {
	s, _ := r.String("type")
	return s
}

// IsRoom reports whether the record declares a room.
func (r Record) IsRoom() bool {
	return r.Type() == TypeRoom
}

// String returns field as a string and true only when it is present and a JSON string.
func (r Record) String(field string) (string, bool) {
	v := r.res.Get(field)
	if v.Type != gjson.String {
		return "", false
	}
	return v.Str, true
}

// Has reports whether field is present with any JSON type, including null.
func (r Record) Has(field string) bool {
	return r.res.Get(field).Exists()
}

// Key returns the first of id, title or key that is a string, in that order.
func (r Record) Key() (string, bool) {
	for _, f := range []string{"id", "title", "key"} {
		if s, ok := r.String(f); ok {
			return s, true
		}
	}
	return "", false
}

// Rooms returns the nested room entries of a building-style record, if any.
func (r Record) Rooms() []Record {
	v := r.res.Get("rooms")
	if !v.IsArray() {
		return nil
	}
	var out []Record
	v.ForEach(func(_, item gjson.Result) bool {
		if item.IsObject() {
			out = append(out, Record{res: item})
		}
		return true
	})
	return out
}

// Raw returns the record's JSON text.
func (r Record) Raw() string {
	return r.res.Raw
}

// Describe returns a short human label for logs and errors.
func (r Record) Describe() string {
	if k, ok := r.Key(); ok {
		return fmt.Sprintf("%s %q", r.typeLabel(), k)
	}
	raw := r.res.Raw
	if len(raw) > 64 {
		raw = raw[:64] + "..."
	}
	return fmt.Sprintf("%s %s", r.typeLabel(), raw)
}

func (r Record) typeLabel() string {
	if t := r.Type(); t != "" {
		return t
	}
	return "record"
}

// Parse decodes a setup feed body. A JSON array yields one record per object
// element (non-objects are skipped). A single object is accepted as one record.
func Parse(data []byte) ([]Record, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: body is not valid JSON", ErrInvalidPayload)
	}

	root := gjson.ParseBytes(data)
	switch {
	case root.IsObject():
		return []Record{{res: root}}, nil
	case root.IsArray():
		var out []Record
		root.ForEach(func(_, item gjson.Result) bool {
			if item.IsObject() {
				out = append(out, Record{res: item})
			}
			return true
		})
		return out, nil
	default:
		return nil, fmt.Errorf("%w: expected array or object, got %s", ErrInvalidPayload, root.Type)
	}
}
