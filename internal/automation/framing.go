package automation

import "strings"

// SplitObjects splits a payload made of zero or more JSON objects written
// back to back, such as `{"a":1}{"b":2}`. Whitespace, commas and square
// brackets between objects are separators. Any other text between objects,
// and an object still open at the end of input, is returned as a fragment
// of its own so the caller can report it.
//
// Braces inside JSON strings, including escaped quotes, do not affect nesting.
func SplitObjects(payload string) []string {
	var (
		out      []string
		depth    int
		start    = -1
		junk     = -1
		inString bool
		escaped  bool
	)

	flushJunk := func(end int) {
		if junk < 0 {
			return
		}
		if s := strings.TrimSpace(payload[junk:end]); s != "" {
			out = append(out, s)
		}
		junk = -1
	}

	for i := 0; i < len(payload); i++ {
		c := payload[i]

		if depth > 0 {
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					out = append(out, payload[start:i+1])
					start = -1
				}
			}
			continue
		}

		switch c {
		case '{':
			flushJunk(i)
			depth = 1
			start = i
		case ' ', '\t', '\r', '\n', ',', '[', ']':
			flushJunk(i)
		default:
			if junk < 0 {
				junk = i
			}
		}
	}

	flushJunk(len(payload))
	if depth > 0 {
		out = append(out, payload[start:])
	}
	return out
}

func isObjectFragment(s string) bool {
	return strings.HasPrefix(s, "{")
}
