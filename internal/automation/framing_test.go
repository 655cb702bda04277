package automation

import (
	"reflect"
	"testing"
)

func TestSplitObjects(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []string
	}{
		{
			name:    "empty",
			payload: "",
			want:    nil,
		},
		{
			name:    "single object",
			payload: `{"roomId":"R1","people":"0"}`,
			want:    []string{`{"roomId":"R1","people":"0"}`},
		},
		{
			name:    "back to back",
			payload: `{"a":1}{"b":2}`,
			want:    []string{`{"a":1}`, `{"b":2}`},
		},
		{
			name:    "separated by whitespace and commas",
			payload: "{\"a\":1},\n {\"b\":2}",
			want:    []string{`{"a":1}`, `{"b":2}`},
		},
		{
			name:    "array of objects",
			payload: `[{"a":1},{"b":2}]`,
			want:    []string{`{"a":1}`, `{"b":2}`},
		},
		{
			name:    "nested objects",
			payload: `{"a":{"b":{}}}{"c":1}`,
			want:    []string{`{"a":{"b":{}}}`, `{"c":1}`},
		},
		{
			name:    "braces inside strings",
			payload: `{"a":"}{"}{"b":"{"}`,
			want:    []string{`{"a":"}{"}`, `{"b":"{"}`},
		},
		{
			name:    "escaped quote inside string",
			payload: `{"a":"x\"}"}{"b":2}`,
			want:    []string{`{"a":"x\"}"}`, `{"b":2}`},
		},
		{
			name:    "junk between objects",
			payload: `{"a":1}garbage{"b":2}`,
			want:    []string{`{"a":1}`, `garbage`, `{"b":2}`},
		},
		{
			name:    "unterminated trailing object",
			payload: `{"a":1}{"b":`,
			want:    []string{`{"a":1}`, `{"b":`},
		},
		{
			name:    "bare value",
			payload: ` 2 `,
			want:    []string{`2`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitObjects(tt.payload)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitObjects(%q) = %q, want %q", tt.payload, got, tt.want)
			}
		})
	}
}

func TestSplitObjects_NObjects(t *testing.T) {
	payload := ""
	for i := 0; i < 25; i++ {
		payload += `{"roomId":"kitchen","people":"1"}`
	}
	if got := len(SplitObjects(payload)); got != 25 {
		t.Errorf("len(SplitObjects()) = %d, want 25", got)
	}
}
