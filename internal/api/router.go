package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-actuator/internal/room"
	"github.com/nerrad567/gray-logic-actuator/internal/stream"
)

// defaultWSPath is used when websocket.path is empty.
const defaultWSPath = "/api/v1/ws"

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/rooms", func(r chi.Router) {
			r.Get("/", s.handleListRooms)
			r.Get("/{id}", s.handleGetRoom)
		})

		r.Get("/streams", s.handleListStreams)
	})

	r.Get(s.wsPath(), s.handleWebSocket)

	return r
}

func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return defaultWSPath
	}
	return s.wsCfg.Path
}

// handleHealth reports the overall service status.
//
// The status is "ok" when every component check passes and "degraded"
// otherwise. The HTTP status is always 200 so health checkers can read the body.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	components := make(map[string]string, len(s.components))
	for name, c := range s.components {
		ctx, cancel := context.WithTimeout(r.Context(), componentCheckTimeout)
		err := c.HealthCheck(ctx)
		cancel()
		if err != nil {
			components[name] = err.Error()
			status = "degraded"
			continue
		}
		components[name] = "ok"
	}

	states := s.streamStates()
	connected := 0
	for _, st := range states {
		if st.Status == stream.StatusConnected {
			connected++
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"version":    s.version,
		"rooms":      s.registry.RoomCount(),
		"devices":    s.registry.DeviceCount(),
		"handles":    s.registry.HandleCount(),
		"components": components,
		"streams": map[string]int{
			"connected": connected,
			"total":     len(states),
		},
	})
}

// roomView is the JSON representation of a room.
type roomView struct {
	ID      room.RoomID  `json:"id"`
	Devices []deviceView `json:"devices"`
}

// deviceView adds handle availability to a device descriptor.
type deviceView struct {
	room.Device
	Resolved bool `json:"resolved"`
}

func (s *Server) buildRoomView(id room.RoomID) roomView {
	devices := s.registry.Devices(id)
	view := roomView{ID: id, Devices: make([]deviceView, 0, len(devices))}
	for _, d := range devices {
		_, ok := s.registry.Handle(d.ID)
		view.Devices = append(view.Devices, deviceView{Device: d, Resolved: ok})
	}
	return view
}

// handleListRooms returns every room with its devices in setup feed order.
func (s *Server) handleListRooms(w http.ResponseWriter, _ *http.Request) {
	ids := s.registry.Rooms()
	rooms := make([]roomView, 0, len(ids))
	for _, id := range ids {
		rooms = append(rooms, s.buildRoomView(id))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rooms": rooms,
		"count": len(rooms),
	})
}

// handleGetRoom returns one room. The path ID is matched as a canonical slug.
func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	id := room.RoomID(chi.URLParam(r, "id"))
	if !s.registry.HasRoom(id) {
		writeError(w, r, http.StatusNotFound, ErrCodeRoomNotFound, "room not found: "+string(id))
		return
	}
	writeJSON(w, http.StatusOK, s.buildRoomView(id))
}

// handleListStreams returns stream state snapshots.
//
// Query parameters:
//   - status: connected, connecting or disconnected
//   - room: only streams of this room
func (s *Server) handleListStreams(w http.ResponseWriter, r *http.Request) {
	var statusFilter stream.Status
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		statusFilter = stream.Status(raw)
		switch statusFilter {
		case stream.StatusConnected, stream.StatusConnecting, stream.StatusDisconnected:
		default:
			writeError(w, r, http.StatusBadRequest, ErrCodeInvalidFilter,
				"status must be one of connected, connecting, disconnected")
			return
		}
	}
	roomFilter := room.RoomID(r.URL.Query().Get("room"))

	states := make([]stream.State, 0)
	for _, st := range s.streamStates() {
		if statusFilter != "" && st.Status != statusFilter {
			continue
		}
		if roomFilter != "" && st.Endpoint.Room != roomFilter {
			continue
		}
		states = append(states, st)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"streams": states,
		"count":   len(states),
	})
}

func (s *Server) streamStates() []stream.State {
	if s.streams == nil {
		return nil
	}
	return s.streams.States()
}
