package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-actuator/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-actuator/internal/infrastructure/logging"
)

// Message types of the event feed protocol.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// Feed channels.
const (
	ChannelEventReceived     = "event.received"
	ChannelDeviceActuated    = "device.actuated"
	ChannelStreamStateChange = "stream.state_changed"
)

// knownChannels is the set a client may subscribe to.
var knownChannels = map[string]struct{}{
	ChannelEventReceived:     {},
	ChannelDeviceActuated:    {},
	ChannelStreamStateChange: {},
}

const (
	wsSendBufferSize = 256

	defaultWSPingInterval   = 30 * time.Second
	defaultWSPongTimeout    = 10 * time.Second
	defaultWSMaxMessageSize = 8192
)

// WSMessage is the envelope of every outbound feed message.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload lists the channels of a subscribe or unsubscribe request.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// wsRequest is an inbound client message. The payload is decoded per type.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// Hub fans dispatcher and stream events out to feed subscribers.
//
// A subscriber whose buffer is full misses the event; the hub never blocks
// the caller of Broadcast. Missed events are counted in Dropped.
//
// Thread Safety: all methods are safe for concurrent use.
type Hub struct {
	pingInterval time.Duration
	pongWait     time.Duration
	maxMessage   int64
	logger       *logging.Logger

	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	dropped atomic.Uint64
}

// subscriber is one feed connection. out is never closed; done tells the
// writer and all senders that the connection is finished.
type subscriber struct {
	conn *websocket.Conn
	out  chan []byte
	done chan struct{}
	once sync.Once

	mu       sync.RWMutex
	channels map[string]struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// The feed is read-only; origin filtering is left to CORS.
		return true
	},
}

// NewHub creates a hub. Zero timings and limits in cfg take the defaults
// of 30s ping interval, 10s pong timeout and 8 KiB inbound messages.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	h := &Hub{
		pingInterval: defaultWSPingInterval,
		pongWait:     defaultWSPongTimeout,
		maxMessage:   defaultWSMaxMessageSize,
		logger:       logger,
		subs:         make(map[*subscriber]struct{}),
	}
	if cfg.PingInterval > 0 {
		h.pingInterval = time.Duration(cfg.PingInterval) * time.Second
	}
	if cfg.PongTimeout > 0 {
		h.pongWait = time.Duration(cfg.PongTimeout) * time.Second
	}
	if cfg.MaxMessageSize > 0 {
		h.maxMessage = int64(cfg.MaxMessageSize)
	}
	return h
}

// Run blocks until ctx is cancelled, then disconnects every subscriber.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[*subscriber]struct{})
	h.mu.Unlock()

	for sub := range subs {
		sub.close()
	}
}

// Broadcast delivers payload as an event on channel to every subscriber of
// that channel.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal feed event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	recipients := make([]*subscriber, 0, len(h.subs))
	for sub := range h.subs {
		if sub.wants(channel) {
			recipients = append(recipients, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range recipients {
		if !sub.deliver(data) {
			h.dropped.Add(1)
		}
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many events were not delivered to a full subscriber.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *Hub) add(sub *subscriber) {
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	h.logger.Debug("feed subscriber connected", "clients", n)
}

// remove detaches and closes sub. Repeated calls are harmless.
func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	_, ok := h.subs[sub]
	delete(h.subs, sub)
	n := len(h.subs)
	h.mu.Unlock()

	sub.close()
	if ok {
		h.logger.Debug("feed subscriber disconnected", "clients", n)
	}
}

// handleWebSocket upgrades the request and attaches a subscriber with no
// channels.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sub := newSubscriber(conn, wsSendBufferSize)
	s.hub.add(sub)

	go s.hub.writeLoop(sub)
	go s.hub.readLoop(sub)
}

func newSubscriber(conn *websocket.Conn, buffer int) *subscriber {
	return &subscriber{
		conn:     conn,
		out:      make(chan []byte, buffer),
		done:     make(chan struct{}),
		channels: make(map[string]struct{}),
	}
}

// readLoop serves client requests until the connection fails. Any inbound
// frame, pong or otherwise, extends the read deadline.
func (h *Hub) readLoop(sub *subscriber) {
	defer h.remove(sub)

	extend := func() error {
		return sub.conn.SetReadDeadline(time.Now().Add(h.pingInterval + h.pongWait))
	}
	sub.conn.SetReadLimit(h.maxMessage)
	//nolint:errcheck // a failed deadline surfaces as a read error
	extend()
	sub.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := sub.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("feed read failed", "error", err)
			}
			return
		}
		//nolint:errcheck // a failed deadline surfaces as a read error
		extend()
		sub.serve(data)
	}
}

// writeLoop drains sub.out and pings on the hub interval until sub is done.
// It owns the connection and closes it on exit, which also ends readLoop.
func (h *Hub) writeLoop(sub *subscriber) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	defer sub.conn.Close()
	defer h.remove(sub)

	write := func(kind int, data []byte) error {
		//nolint:errcheck // a failed deadline surfaces as a write error
		sub.conn.SetWriteDeadline(time.Now().Add(h.pongWait))
		return sub.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case <-sub.done:
			//nolint:errcheck // the peer may already be gone
			write(websocket.CloseMessage, nil)
			return
		case data := <-sub.out:
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// serve answers one client request.
func (s *subscriber) serve(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.reply("", WSTypeError, errorBody("invalid JSON message"))
		return
	}

	switch req.Type {
	case WSTypePing:
		s.reply(req.ID, WSTypePong, nil)
	case WSTypeSubscribe, WSTypeUnsubscribe:
		channels, msg := parseChannels(req.Payload)
		if msg != "" {
			s.reply(req.ID, WSTypeError, errorBody(msg))
			return
		}
		key := "subscribed"
		if req.Type == WSTypeSubscribe {
			s.subscribe(channels)
		} else {
			s.unsubscribe(channels)
			key = "unsubscribed"
		}
		s.reply(req.ID, WSTypeResponse, map[string]any{key: channels})
	default:
		s.reply(req.ID, WSTypeError, errorBody("unknown message type: "+req.Type))
	}
}

// parseChannels decodes a channel list. A non-empty message describes why
// the payload was refused.
func parseChannels(raw json.RawMessage) ([]string, string) {
	var p WSSubscribePayload
	if len(raw) == 0 || json.Unmarshal(raw, &p) != nil {
		return nil, "payload must be {\"channels\": [...]}"
	}
	if len(p.Channels) == 0 {
		return nil, "no channels given"
	}
	for _, ch := range p.Channels {
		if _, ok := knownChannels[ch]; !ok {
			return nil, "unknown channel: " + ch
		}
	}
	return p.Channels, ""
}

func errorBody(message string) map[string]string {
	return map[string]string{"message": message}
}

func (s *subscriber) subscribe(channels []string) {
	s.mu.Lock()
	for _, ch := range channels {
		s.channels[ch] = struct{}{}
	}
	s.mu.Unlock()
}

func (s *subscriber) unsubscribe(channels []string) {
	s.mu.Lock()
	for _, ch := range channels {
		delete(s.channels, ch)
	}
	s.mu.Unlock()
}

func (s *subscriber) wants(channel string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.channels[channel]
	return ok
}

// deliver queues data without blocking. It reports false when sub is
// finished or its buffer is full.
func (s *subscriber) deliver(data []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- data:
		return true
	default:
		return false
	}
}

func (s *subscriber) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err == nil {
		s.deliver(data)
	}
}

// close marks sub done. Safe to call repeatedly.
func (s *subscriber) close() {
	s.once.Do(func() { close(s.done) })
}
