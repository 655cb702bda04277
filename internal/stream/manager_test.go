package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-actuator/internal/room"
)

// eventServer serves /{room}/events/{kind}. The first `fail` requests per
// path get a 500; later ones write `events` as SSE and then either hold the
// connection open until the client goes away or end the stream.
type eventServer struct {
	*httptest.Server

	fail   int
	events []string
	hold   bool

	mu       sync.Mutex
	requests map[string]int
	headers  http.Header
}

func newEventServer(t *testing.T, fail int, hold bool, events ...string) *eventServer {
	t.Helper()
	s := &eventServer{fail: fail, events: events, hold: hold, requests: make(map[string]int)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *eventServer) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests[r.URL.Path]++
	n := s.requests[r.URL.Path]
	s.headers = r.Header.Clone()
	s.mu.Unlock()

	if n <= s.fail {
		http.Error(w, "backend unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	for _, ev := range s.events {
		fmt.Fprintf(w, "data: %s\n\n", ev)
		if flusher != nil {
			flusher.Flush()
		}
	}
	if s.hold {
		<-r.Context().Done()
	}
}

func (s *eventServer) requestCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[path]
}

// newTestManager returns a manager whose backoff sleeps are instant.
func newTestManager(baseURL string) *Manager {
	m := NewManager(Options{BaseURL: baseURL})
	m.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return m
}

// transitionRecorder captures state changes.
type transitionRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *transitionRecorder) record(s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *transitionRecorder) count(status Status) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.states {
		if s.Status == status {
			n++
		}
	}
	return n
}

func runManager(ctx context.Context, m *Manager, eps []room.Endpoint, h Handler) <-chan error {
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, eps, h) }()
	return done
}

func waitDone(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestURL(t *testing.T) {
	tests := []struct {
		base string
		ep   room.Endpoint
		want string
	}{
		{"http://events.local", room.Endpoint{Room: "kitchen", Kind: room.EventPeopleChanged}, "http://events.local/kitchen/events/peopleChanged"},
		{"http://events.local/api/", room.Endpoint{Room: "living-room", Kind: room.EventMaxHumidity}, "http://events.local/api/living-room/events/maxHumidity"},
	}

	for _, tt := range tests {
		if got := URL(tt.base, tt.ep); got != tt.want {
			t.Errorf("URL(%q, %v) = %q, want %q", tt.base, tt.ep, got, tt.want)
		}
	}
}

func TestManager_RecoversAfterFailures(t *testing.T) {
	srv := newEventServer(t, 3, true, "first", "second")
	m := newTestManager(srv.URL)
	rec := &transitionRecorder{}
	m.SetOnStateChange(rec.record)

	ep := room.Endpoint{Room: "kitchen", Kind: room.EventPeopleChanged}
	events := make(chan Event, 4)

	ctx, cancel := context.WithCancel(context.Background())
	done := runManager(ctx, m, []room.Endpoint{ep}, func(_ context.Context, ev Event) {
		events <- ev
	})

	for _, want := range []string{"first", "second"} {
		select {
		case ev := <-events:
			if ev.Data != want || ev.Endpoint != ep {
				t.Errorf("event = %+v, want data %q on %v", ev, want, ep)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}

	st, ok := m.State(ep)
	if !ok {
		t.Fatal("State() not found")
	}
	if st.Status != StatusConnected || st.Connects != 1 || st.Retries != 3 {
		t.Errorf("state = %+v, want connected with 1 connect and 3 retries", st)
	}
	if st.LastEventAt.IsZero() {
		t.Error("LastEventAt not set")
	}
	if got := rec.count(StatusConnected); got != 1 {
		t.Errorf("connected transitions = %d, want 1", got)
	}

	cancel()
	waitDone(t, done)

	st, _ = m.State(ep)
	if st.Status != StatusDisconnected {
		t.Errorf("status after cancel = %s, want disconnected", st.Status)
	}
	if got := srv.requestCount("/kitchen/events/peopleChanged"); got != 4 {
		t.Errorf("requests = %d, want 4", got)
	}
	if srv.headers.Get("Accept") != "text/event-stream" {
		t.Errorf("Accept = %q", srv.headers.Get("Accept"))
	}
}

func TestManager_ReconnectsAfterServerClose(t *testing.T) {
	srv := newEventServer(t, 0, false, "tick")
	m := newTestManager(srv.URL)

	ep := room.Endpoint{Room: "office", Kind: room.EventMinTemperature}
	var received atomic.Int32

	ctx, cancel := context.WithCancel(context.Background())
	done := runManager(ctx, m, []room.Endpoint{ep}, func(_ context.Context, _ Event) {
		if received.Add(1) == 3 {
			cancel()
		}
	})
	waitDone(t, done)
	cancel()

	st, _ := m.State(ep)
	if st.Connects < 3 {
		t.Errorf("Connects = %d, want >= 3", st.Connects)
	}
	if received.Load() < 3 {
		t.Errorf("received = %d, want >= 3", received.Load())
	}
}

func TestManager_BackoffGrowsAndResets(t *testing.T) {
	srv := newEventServer(t, 3, false, "x")
	m := NewManager(Options{BaseURL: srv.URL, Backoff: Backoff{Initial: time.Second, Max: 8 * time.Second, Multiplier: 2}})

	var (
		mu     sync.Mutex
		delays []time.Duration
	)
	ctx, cancel := context.WithCancel(context.Background())
	m.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		delays = append(delays, d)
		if len(delays) == 5 {
			cancel()
		}
		mu.Unlock()
		return ctx.Err()
	}

	done := runManager(ctx, m, []room.Endpoint{{Room: "r", Kind: room.EventMaxTemperature}}, func(context.Context, Event) {})
	waitDone(t, done)

	mu.Lock()
	defer mu.Unlock()
	// Three failures grow the delay, then each clean connect+close resets it.
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, time.Second, time.Second}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delays = %v, want %v", delays, want)
			break
		}
	}
}

func TestManager_HandlerPanicIsolated(t *testing.T) {
	srv := newEventServer(t, 0, true, "boom", "fine")
	m := newTestManager(srv.URL)

	ep := room.Endpoint{Room: "r", Kind: room.EventPeopleChanged}
	got := make(chan string, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runManager(ctx, m, []room.Endpoint{ep}, func(_ context.Context, ev Event) {
		if ev.Data == "boom" {
			panic("handler bug")
		}
		got <- ev.Data
	})

	select {
	case data := <-got:
		if data != "fine" {
			t.Errorf("data = %q, want fine", data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not survive handler panic")
	}

	st, _ := m.State(ep)
	if st.Connects != 1 {
		t.Errorf("Connects = %d, want 1 (no reconnect after panic)", st.Connects)
	}

	cancel()
	waitDone(t, done)
}

func TestManager_EndpointsIndependent(t *testing.T) {
	good := newEventServer(t, 0, true, "ok")
	bad := newEventServer(t, 1<<30, false)

	// Route by room to two different backends through one base URL.
	mux := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target := good
		if r.URL.Path == "/broken/events/peopleChanged" {
			target = bad
		}
		target.Config.Handler.ServeHTTP(w, r)
	}))
	t.Cleanup(mux.Close)

	m := newTestManager(mux.URL)
	okEp := room.Endpoint{Room: "fine", Kind: room.EventPeopleChanged}
	badEp := room.Endpoint{Room: "broken", Kind: room.EventPeopleChanged}
	got := make(chan Event, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := runManager(ctx, m, []room.Endpoint{badEp, okEp, okEp}, func(_ context.Context, ev Event) {
		select {
		case got <- ev:
		default:
		}
	})

	select {
	case ev := <-got:
		if ev.Endpoint != okEp {
			t.Errorf("event from %v, want %v", ev.Endpoint, okEp)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("healthy endpoint blocked by failing endpoint")
	}

	cancel()
	waitDone(t, done)

	states := m.States()
	if len(states) != 2 {
		t.Fatalf("len(States()) = %d, want 2 (duplicates ignored)", len(states))
	}
	if states[0].Endpoint != badEp || states[0].Retries == 0 {
		t.Errorf("broken state = %+v", states[0])
	}
	if states[0].LastError == "" {
		t.Error("broken LastError is empty")
	}
}

func TestManager_UndelimitedObjectsDeliveredWhileOpen(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		chunks := []string{`{"roomId":"r1","people":"0"}`, `{"roomId":"r1",`, `"people":"2"}{"roomId":"r1","people":"1"}`}
		for _, c := range chunks {
			fmt.Fprint(w, c)
			if flusher != nil {
				flusher.Flush()
			}
			time.Sleep(20 * time.Millisecond)
		}
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	defer close(release)

	m := newTestManager(srv.URL)
	ep := room.Endpoint{Room: "r1", Kind: room.EventPeopleChanged}
	got := make(chan string, 3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runManager(ctx, m, []room.Endpoint{ep}, func(_ context.Context, ev Event) {
		got <- ev.Data
	})

	want := []string{
		`{"roomId":"r1","people":"0"}`,
		`{"roomId":"r1","people":"2"}`,
		`{"roomId":"r1","people":"1"}`,
	}
	for i, w := range want {
		select {
		case data := <-got:
			if data != w {
				t.Errorf("event %d = %q, want %q", i, data, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("event %d not delivered while the stream is open", i)
		}
	}

	st, _ := m.State(ep)
	if st.Status != StatusConnected || st.Connects != 1 {
		t.Errorf("state = %s/%d, want connected/1", st.Status, st.Connects)
	}

	cancel()
	waitDone(t, done)
}

func TestManager_CancelDuringBackoff(t *testing.T) {
	srv := newEventServer(t, 1<<30, false)
	m := NewManager(Options{BaseURL: srv.URL, Backoff: FixedBackoff(time.Hour)})

	ctx, cancel := context.WithCancel(context.Background())
	done := runManager(ctx, m, []room.Endpoint{{Room: "r", Kind: room.EventMinHumidity}}, func(context.Context, Event) {})

	deadline := time.Now().Add(5 * time.Second)
	for srv.requestCount("/r/events/minHumidity") == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	waitDone(t, done)
}

func TestManager_ConsumeErrors(t *testing.T) {
	srv := newEventServer(t, 1, false)
	m := newTestManager(srv.URL)
	ep := room.Endpoint{Room: "r", Kind: room.EventPeopleChanged}
	m.states[ep] = &State{Endpoint: ep}

	connected, err := m.consume(context.Background(), ep, URL(srv.URL, ep), func(context.Context, Event) {})
	if connected || !errors.Is(err, ErrUnexpectedStatus) {
		t.Errorf("consume() = %v, %v; want false, ErrUnexpectedStatus", connected, err)
	}

	connected, err = m.consume(context.Background(), ep, URL(srv.URL, ep), func(context.Context, Event) {})
	if !connected || !errors.Is(err, ErrClosed) {
		t.Errorf("consume() = %v, %v; want true, ErrClosed", connected, err)
	}

	connected, err = m.consume(context.Background(), ep, "http://127.0.0.1:1/r/events/x", func(context.Context, Event) {})
	if connected || !errors.Is(err, ErrConnection) {
		t.Errorf("consume() = %v, %v; want false, ErrConnection", connected, err)
	}
}

func TestManager_NilHandler(t *testing.T) {
	m := NewManager(Options{BaseURL: "http://unused"})
	if err := m.Run(context.Background(), nil, nil); err == nil {
		t.Error("Run(nil handler) error = nil")
	}
}
