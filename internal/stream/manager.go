package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nerrad567/gray-logic-actuator/internal/room"
)

// defaultLogEvery is how often a run of consecutive failures is logged at warn.
const defaultLogEvery = 10

// Status is the connection status of one stream.
type Status string

// Stream statuses.
const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// State is a snapshot of one stream.
type State struct {
	Endpoint room.Endpoint `json:"endpoint"`
	URL      string        `json:"url"`
	Status   Status        `json:"status"`

	// Retries counts failed attempts since the manager started.
	Retries int `json:"retries"`

	// Connects counts successful connections.
	Connects uint64 `json:"connects"`

	Since       time.Time `json:"since"`
	LastEventAt time.Time `json:"last_event_at,omitzero"`
	LastError   string    `json:"last_error,omitempty"`
}

// Event is one payload received on an endpoint.
type Event struct {
	Endpoint   room.Endpoint
	Name       string
	ID         string
	Data       string
	ReceivedAt time.Time
}

// Handler receives events. It is called from the endpoint's goroutine, so
// events of one endpoint are handled in arrival order.
type Handler func(ctx context.Context, ev Event)

// Logger defines the logging interface used by the manager.
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

// Options configures a Manager.
type Options struct {
	// BaseURL is the root of the event backend.
	BaseURL string

	// Backoff controls reconnect delays. The zero value uses DefaultBackoff.
	Backoff Backoff

	// LogEvery logs the first failure and every Nth consecutive failure at
	// warn; the rest go to debug. Defaults to 10.
	LogEvery int

	// Client overrides the HTTP client. It must not set an overall timeout.
	Client *resty.Client

	Logger Logger
}

// Manager runs one supervised stream per endpoint.
//
// Thread Safety: States, State and SetOnStateChange are safe to call while
// Run is active.
type Manager struct {
	baseURL  string
	http     *resty.Client
	backoff  Backoff
	logEvery int
	logger   Logger

	// Test seams.
	sleep func(ctx context.Context, d time.Duration) error
	rand  func() float64

	mu     sync.RWMutex
	order  []room.Endpoint
	states map[room.Endpoint]*State

	hookMu   sync.RWMutex
	onChange func(State)
}

// NewManager creates a Manager.
func NewManager(opts Options) *Manager {
	if opts.Backoff.Initial <= 0 {
		opts.Backoff = DefaultBackoff()
	}
	if opts.LogEvery < 1 {
		opts.LogEvery = defaultLogEvery
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.Client == nil {
		opts.Client = resty.New()
	}

	return &Manager{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		http:     opts.Client,
		backoff:  opts.Backoff,
		logEvery: opts.LogEvery,
		logger:   opts.Logger,
		sleep:    sleepContext,
		rand:     rand.Float64,
		states:   make(map[room.Endpoint]*State),
	}
}

// SetOnStateChange registers a callback for status transitions. It runs on
// the endpoint's goroutine and must not block.
func (m *Manager) SetOnStateChange(fn func(State)) {
	m.hookMu.Lock()
	m.onChange = fn
	m.hookMu.Unlock()
}

// URL returns the stream URL for an endpoint: {base}/{room}/events/{kind}.
func URL(baseURL string, ep room.Endpoint) string {
	return strings.TrimRight(baseURL, "/") + "/" +
		url.PathEscape(string(ep.Room)) + "/events/" +
		url.PathEscape(string(ep.Kind))
}

// Run starts one stream per endpoint and blocks until ctx is cancelled and
// every stream has stopped. Duplicate endpoints are ignored.
func (m *Manager) Run(ctx context.Context, endpoints []room.Endpoint, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("stream: nil handler")
	}

	var unique []room.Endpoint
	m.mu.Lock()
	for _, ep := range endpoints {
		if _, dup := m.states[ep]; dup {
			continue
		}
		m.states[ep] = &State{
			Endpoint: ep,
			URL:      URL(m.baseURL, ep),
			Status:   StatusDisconnected,
			Since:    time.Now(),
		}
		m.order = append(m.order, ep)
		unique = append(unique, ep)
	}
	m.mu.Unlock()

	m.logger.Info("starting event streams", "count", len(unique), "base_url", m.baseURL)

	var wg sync.WaitGroup
	for _, ep := range unique {
		wg.Add(1)
		go func(ep room.Endpoint) {
			defer wg.Done()
			m.runStream(ctx, ep, handler)
		}(ep)
	}
	wg.Wait()

	m.logger.Info("event streams stopped", "count", len(unique))
	return nil
}

// runStream supervises one endpoint until ctx is cancelled.
func (m *Manager) runStream(ctx context.Context, ep room.Endpoint, handler Handler) {
	streamURL := URL(m.baseURL, ep)
	failures := 0

	for {
		if ctx.Err() != nil {
			m.setStatus(ep, StatusDisconnected, nil)
			return
		}

		m.setStatus(ep, StatusConnecting, nil)
		connected, err := m.consume(ctx, ep, streamURL, handler)
		if ctx.Err() != nil {
			m.setStatus(ep, StatusDisconnected, nil)
			return
		}

		if connected {
			failures = 0
		}
		failures++
		m.recordFailure(ep, err)

		delay := m.backoff.Delay(failures, m.rand)
		if failures == 1 || failures%m.logEvery == 0 {
			m.logger.Warn("event stream lost, reconnecting",
				"room", ep.Room,
				"kind", ep.Kind,
				"error", err,
				"consecutive_failures", failures,
				"delay", delay,
			)
		} else {
			m.logger.Debug("event stream reconnect",
				"room", ep.Room,
				"kind", ep.Kind,
				"error", err,
				"consecutive_failures", failures,
				"delay", delay,
			)
		}

		if err := m.sleep(ctx, delay); err != nil {
			m.setStatus(ep, StatusDisconnected, nil)
			return
		}
	}
}

// consume opens the stream and delivers events until it ends.
// connected reports whether the server accepted the stream.
func (m *Manager) consume(ctx context.Context, ep room.Endpoint, streamURL string, handler Handler) (connected bool, err error) {
	resp, err := m.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeader("Accept", "text/event-stream").
		SetHeader("Cache-Control", "no-cache").
		Get(streamURL)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	body := resp.RawBody()
	if body == nil {
		return false, fmt.Errorf("%w: empty response", ErrConnection)
	}
	defer body.Close()

	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return false, fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status())
	}

	m.markConnected(ep)
	m.logger.Info("event stream connected", "room", ep.Room, "kind", ep.Kind)

	reader := NewReader(body)
	for {
		frame, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return true, ErrClosed
		}
		if err != nil {
			return true, fmt.Errorf("%w: %w", ErrConnection, err)
		}

		ev := Event{
			Endpoint:   ep,
			Name:       frame.Name,
			ID:         frame.ID,
			Data:       frame.Data,
			ReceivedAt: time.Now(),
		}
		m.touch(ep, ev.ReceivedAt)
		m.deliver(ctx, handler, ev)
	}
}

// deliver calls handler, recovering panics so one bad event cannot kill the stream.
func (m *Manager) deliver(ctx context.Context, handler Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("event handler panic recovered",
				"room", ev.Endpoint.Room,
				"kind", ev.Endpoint.Kind,
				"panic", r,
			)
		}
	}()
	handler(ctx, ev)
}

func (m *Manager) setStatus(ep room.Endpoint, status Status, mutate func(*State)) {
	m.mu.Lock()
	st, ok := m.states[ep]
	if !ok {
		m.mu.Unlock()
		return
	}
	changed := st.Status != status
	if changed {
		st.Status = status
		st.Since = time.Now()
	}
	if mutate != nil {
		mutate(st)
	}
	snapshot := *st
	m.mu.Unlock()

	if changed {
		m.notify(snapshot)
	}
}

func (m *Manager) markConnected(ep room.Endpoint) {
	m.setStatus(ep, StatusConnected, func(st *State) {
		st.Connects++
		st.LastError = ""
	})
}

func (m *Manager) recordFailure(ep room.Endpoint, err error) {
	m.setStatus(ep, StatusDisconnected, func(st *State) {
		st.Retries++
		if err != nil {
			st.LastError = err.Error()
		}
	})
}

func (m *Manager) touch(ep room.Endpoint, at time.Time) {
	m.mu.Lock()
	if st, ok := m.states[ep]; ok {
		st.LastEventAt = at
	}
	m.mu.Unlock()
}

func (m *Manager) notify(st State) {
	m.hookMu.RLock()
	fn := m.onChange
	m.hookMu.RUnlock()
	if fn != nil {
		fn(st)
	}
}

// States returns snapshots of every stream in start order.
func (m *Manager) States() []State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]State, 0, len(m.order))
	for _, ep := range m.order {
		out = append(out, *m.states[ep])
	}
	return out
}

// State returns the snapshot for one endpoint.
func (m *Manager) State(ep room.Endpoint) (State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.states[ep]
	if !ok {
		return State{}, false
	}
	return *st, true
}
