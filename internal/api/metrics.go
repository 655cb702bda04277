package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-actuator/internal/automation"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	WebSocket     WSMetrics        `json:"websocket"`
	Registry      RegistryMetrics  `json:"registry"`
	Streams       StreamMetrics    `json:"streams"`
	Actuation     automation.Stats `json:"actuation"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int    `json:"connected_clients"`
	DroppedEvents    uint64 `json:"dropped_events"`
}

// RegistryMetrics contains room registry sizes.
type RegistryMetrics struct {
	Rooms   int `json:"rooms"`
	Devices int `json:"devices"`
	Handles int `json:"handles"`
}

// StreamMetrics aggregates stream states.
type StreamMetrics struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
	Retries  int            `json:"retries"`
	Connects uint64         `json:"connects"`
}

// handleMetrics returns runtime, registry, stream and actuation metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Registry: RegistryMetrics{
			Rooms:   s.registry.RoomCount(),
			Devices: s.registry.DeviceCount(),
			Handles: s.registry.HandleCount(),
		},
		Streams: StreamMetrics{ByStatus: make(map[string]int)},
	}

	if s.hub != nil {
		metrics.WebSocket.ConnectedClients = s.hub.ClientCount()
		metrics.WebSocket.DroppedEvents = s.hub.Dropped()
	}

	for _, st := range s.streamStates() {
		metrics.Streams.Total++
		metrics.Streams.ByStatus[string(st.Status)]++
		metrics.Streams.Retries += st.Retries
		metrics.Streams.Connects += st.Connects
	}

	if s.stats != nil {
		metrics.Actuation = s.stats.Stats()
	}

	writeJSON(w, http.StatusOK, metrics)
}
