package httpapi

import (
	"net/http"
	"time"
)

type hubStatusResponse struct {
	Status           string `json:"status"`
	ServerCount      int    `json:"server_count"`
	ConnectedServers int    `json:"connected_servers"`
	ClientCount      int    `json:"client_count"`
	ConnectedClients int    `json:"connected_clients"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

func (s *Server) handleHubStatus(w http.ResponseWriter, r *http.Request) {
	connectedServers := 0
	for _, id := range s.hub.Supervisor().ServerIDs() {
		if _, ok := s.hub.Supervisor().Connection(id); ok {
			connectedServers++
		}
	}

	status := "stopped"
	if s.hub.Running() {
		status = "running"
	}

	writeJSON(w, http.StatusOK, hubStatusResponse{
		Status:           status,
		ServerCount:      len(s.hub.Registry().List()),
		ConnectedServers: connectedServers,
		ClientCount:      s.hub.Clients().Count(),
		ConnectedClients: s.hub.Clients().ConnectedCount(),
		UptimeSeconds:    int64(time.Since(s.started).Seconds()),
	})
}

type metricsResponse struct {
	ServerCount      int   `json:"server_count"`
	ConnectedServers int   `json:"connected_servers"`
	ClientCount      int   `json:"client_count"`
	ConnectedClients int   `json:"connected_clients"`
	RouteCount       int   `json:"route_count"`
	UptimeSeconds    int64 `json:"uptime_seconds"`
	BufferedLogCount int   `json:"buffered_log_count"`
}

// handleMonitoringMetrics reports the hub's periodic gauge snapshot plus
// the two gauges the snapshot task doesn't cover (route count, buffered
// log count), read live.
func (s *Server) handleMonitoringMetrics(w http.ResponseWriter, r *http.Request) {
	m := s.hub.Metrics()
	bufferedLogs := 0
	if s.buffer != nil {
		bufferedLogs = s.buffer.Count()
	}
	writeJSON(w, http.StatusOK, metricsResponse{
		ServerCount:      m.ServerCount,
		ConnectedServers: m.McpServerCount,
		ClientCount:      m.ClientCount,
		ConnectedClients: m.McpClientCount,
		RouteCount:       len(s.hub.Router().GetRoutes()),
		UptimeSeconds:    m.UptimeSeconds,
		BufferedLogCount: bufferedLogs,
	})
}

type healthResponse struct {
	Status           string `json:"status"`
	ServerCount      int    `json:"server_count"`
	ConnectedServers int    `json:"connected_servers"`
	DegradedServers  int    `json:"degraded_servers"`
}

// handleMonitoringHealth reports the hub's aggregate health across its
// supervised servers: "healthy" when every registered server is
// connected, "degraded" when at least one is down but the hub
// itself is still running, "unhealthy" when the hub isn't running at all —
// matching spec.md §6.3's 200/429/503 status code split.
func (s *Server) handleMonitoringHealth(w http.ResponseWriter, r *http.Request) {
	if !s.hub.Running() {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy"})
		return
	}

	regs := s.hub.Registry().List()
	connected := 0
	degraded := 0
	for _, reg := range regs {
		if _, ok := s.hub.Supervisor().Connection(reg.ID); ok {
			connected++
		} else {
			degraded++
		}
	}

	resp := healthResponse{
		Status:           "healthy",
		ServerCount:      len(regs),
		ConnectedServers: connected,
		DegradedServers:  degraded,
	}
	if degraded > 0 {
		resp.Status = "degraded"
		writeJSON(w, http.StatusTooManyRequests, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
