package thing

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Value is a property value as returned by a device.
type Value struct {
	res gjson.Result
}

// ParseValue interprets a property response body. Bodies that are not JSON
// are treated as a bare string.
func ParseValue(body []byte) Value {
	if gjson.ValidBytes(body) {
		return Value{res: gjson.ParseBytes(body)}
	}
	return Value{res: gjson.Result{Type: gjson.String, Str: strings.TrimSpace(string(body))}}
}

// Bool interprets the value as an on/off state. Accepts JSON booleans,
// 1/0, and the strings true/false/on/off/1/0 in any case. ok is false for
// anything else.
func (v Value) Bool() (val bool, ok bool) {
	switch v.res.Type {
	case gjson.True:
		return true, true
	case gjson.False:
		return false, true
	case gjson.Number:
		switch v.res.Num {
		case 1:
			return true, true
		case 0:
			return false, true
		}
	case gjson.String:
		switch strings.ToLower(strings.TrimSpace(v.res.Str)) {
		case "true", "on", "1":
			return true, true
		case "false", "off", "0":
			return false, true
		}
	}
	return false, false
}

// String returns the value in string form (JSON strings unquoted).
func (v Value) String() string {
	return v.res.String()
}
