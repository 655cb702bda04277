package stream

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

// MaxLineSize bounds a single line, or a single undelimited JSON value, of
// the event stream.
const MaxLineSize = 1 << 20

const readChunkSize = 4096

// Frame is one payload read from an event stream.
type Frame struct {
	// Name is the SSE "event" field, empty for plain payloads.
	Name string

	// ID is the SSE "id" field, empty for plain payloads.
	ID string

	// Data is the trimmed payload.
	Data string
}

// Reader splits an event stream into Frames.
//
// SSE blocks are joined per the event-stream format: "data" lines are
// concatenated with newlines and the block ends at a blank line. Comment
// lines starting with ':' are skipped. A line that does not start with a
// known SSE field (data, event, id, retry) is a Frame of its own.
//
// A JSON object or array starting a plain line is delivered as soon as it
// closes, without waiting for a newline, so back-to-back values such as
// `{"people":"0"}{"people":"1"}` on a stream that stays open yield one Frame
// each. Frames with empty data are dropped.
type Reader struct {
	src   io.Reader
	chunk []byte
	buf   []byte
	err   error

	// midLine is set after a value was cut from the middle of a line.
	midLine bool

	queue   []Frame
	block   Frame
	data    []string
	hasData bool
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{src: r, chunk: make([]byte, readChunkSize)}
}

// Next returns the next Frame. At the end of input it returns io.EOF after
// any pending block has been delivered.
func (r *Reader) Next() (Frame, error) {
	for {
		if len(r.queue) > 0 {
			f := r.queue[0]
			r.queue = r.queue[1:]
			return f, nil
		}

		if r.err != nil {
			return Frame{}, r.err
		}

		if err := r.parse(); err != nil {
			r.fail(err)
			continue
		}
		if len(r.queue) > 0 {
			continue
		}

		n, err := r.src.Read(r.chunk)
		r.buf = append(r.buf, r.chunk[:n]...)
		if err != nil {
			if perr := r.parse(); perr != nil {
				r.fail(perr)
				continue
			}
			r.finish()
			if errors.Is(err, io.EOF) {
				r.err = io.EOF
			} else {
				r.err = fmt.Errorf("read event stream: %w", err)
			}
		}
	}
}

// parse consumes every complete line and closed value in the buffer.
func (r *Reader) parse() error {
	for len(r.buf) > 0 {
		nl := bytes.IndexByte(r.buf, '\n')
		lineEnd := nl
		if lineEnd < 0 {
			lineEnd = len(r.buf)
		}
		if lineEnd > MaxLineSize {
			return ErrFrameTooLarge
		}

		lead := leadingSeparators(r.buf[:lineEnd], r.midLine)
		if lead < lineEnd && (r.buf[lead] == '{' || r.buf[lead] == '[') {
			if end := valueEnd(r.buf[lead:lineEnd]); end > 0 {
				r.flush()
				r.push(Frame{Data: string(r.buf[lead : lead+end])})
				r.buf = r.buf[lead+end:]
				r.midLine = true
				continue
			}
		}

		if nl < 0 {
			return nil
		}
		line := string(r.buf[:nl])
		r.buf = r.buf[nl+1:]
		r.endLine(line)
	}
	return nil
}

// finish handles a final unterminated line and any open block.
func (r *Reader) finish() {
	if len(r.buf) > 0 {
		line := string(r.buf)
		r.buf = nil
		r.endLine(line)
	}
	r.flush()
}

func (r *Reader) fail(err error) {
	r.buf = nil
	r.err = fmt.Errorf("read event stream: %w", err)
}

func (r *Reader) endLine(line string) {
	if r.midLine {
		r.midLine = false
		line = strings.TrimLeft(line, " \t,")
		if strings.TrimSpace(line) == "" {
			return
		}
	}
	r.line(line)
}

func (r *Reader) line(line string) {
	line = strings.TrimSuffix(line, "\r")

	if line == "" {
		r.flush()
		return
	}
	if strings.HasPrefix(line, ":") {
		return
	}

	field, value, found := strings.Cut(line, ":")
	if found {
		value = strings.TrimPrefix(value, " ")
	}

	switch {
	case field == "data":
		r.data = append(r.data, value)
		r.hasData = true
	case field == "event" && found:
		r.block.Name = value
	case field == "id" && found:
		r.block.ID = value
	case field == "retry" && found:
		// Reconnect timing is owned by the manager's backoff.
	default:
		// Plain line: deliver any open block first to keep arrival order.
		r.flush()
		r.push(Frame{Data: line})
	}
}

// flush ends the current SSE block.
func (r *Reader) flush() {
	if r.hasData {
		r.push(Frame{
			Name: r.block.Name,
			ID:   r.block.ID,
			Data: strings.Join(r.data, "\n"),
		})
	}
	r.block = Frame{}
	r.data = r.data[:0]
	r.hasData = false
}

func (r *Reader) push(f Frame) {
	f.Data = strings.TrimSpace(f.Data)
	if f.Data == "" {
		return
	}
	r.queue = append(r.queue, f)
}

// leadingSeparators returns the offset of the first byte of b that is not
// horizontal whitespace. Commas between values also count once a value has
// been cut from the line.
func leadingSeparators(b []byte, midLine bool) int {
	for i, c := range b {
		switch {
		case c == ' ' || c == '\t':
		case c == ',' && midLine:
		default:
			return i
		}
	}
	return len(b)
}

// valueEnd returns the length of the JSON object or array at the start of b,
// or -1 when it does not close within b. Brackets inside strings are ignored.
func valueEnd(b []byte) int {
	depth := 0
	inString, escaped := false, false

	for i, c := range b {
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
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}
