// Package hub implements the facade that composes the supervisor, client
// registry, router, and access control into the single entry point a
// transport-facing surface (stdio listener, HTTP admin API) talks to.
package hub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nexushq/nexushub/pkg/clients"
	"github.com/nexushq/nexushub/pkg/mcpproto"
	"github.com/nexushq/nexushub/pkg/router"
	"github.com/nexushq/nexushub/pkg/security"
	"github.com/nexushq/nexushub/pkg/supervisor"
	"github.com/nexushq/nexushub/pkg/transport"
)

// hubServerInfo and hubCapabilities are what the hub advertises to a
// remote client's initialize request: resources (with subscriptions),
// tools, prompts, and sampling, matching the server-role handshake's
// symmetric counterpart to the client role in pkg/supervisor.
var hubServerInfo = mcpproto.ServerInfo{Name: "nexushub", Version: "1.0.0"}

func hubCapabilities() mcpproto.Capabilities {
	return mcpproto.Capabilities{
		"resources": map[string]any{"subscriptions": true},
		"tools":     true,
		"prompts":   true,
		"sampling":  true,
	}
}

// Hub is the central coordinator: it owns the supervisor, the client
// registry, the router, and the access-control/auth stack, and wires the
// router's per-destination handlers back into itself at construction time.
// Grounded on original_source/core/hub/manager.py's HubManager.
type Hub struct {
	registry   *supervisor.Registry
	supervisor *supervisor.Supervisor
	clients    *clients.Registry
	router     *router.Router
	auth       *security.AuthManager
	acl        *security.AccessControlList
	logger     *slog.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
	metrics   Metrics

	cancelTasks context.CancelFunc
	tasksDone   chan struct{}
}

// Metrics is the hub-wide gauge snapshot the background metrics task
// refreshes every metricsUpdateInterval, all gauges read within a single
// pass so the counts are mutually consistent.
type Metrics struct {
	UptimeSeconds  int64     `json:"uptime_seconds"`
	ServerCount    int       `json:"server_count"`
	ClientCount    int       `json:"client_count"`
	McpServerCount int       `json:"mcp_server_count"`
	McpClientCount int       `json:"mcp_client_count"`
	UpdatedAt      time.Time `json:"updated_at"`
}

const metricsUpdateInterval = 10 * time.Second

// New builds a Hub from its already-constructed subsystems and wires the
// router's destination handlers to call back into them.
func New(
	registry *supervisor.Registry,
	sup *supervisor.Supervisor,
	clientRegistry *clients.Registry,
	rtr *router.Router,
	authMgr *security.AuthManager,
	acl *security.AccessControlList,
	logger *slog.Logger,
) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		registry:   registry,
		supervisor: sup,
		clients:    clientRegistry,
		router:     rtr,
		auth:       authMgr,
		acl:        acl,
		logger:     logger,
	}
	h.wireRouter()
	return h
}

// wireRouter registers the six destination handlers the spec requires: one
// per RouteType the router can dispatch to.
func (h *Hub) wireRouter() {
	h.router.RegisterMessageHandler(router.TypeServer, h.handleServerMessage)
	h.router.RegisterMessageHandler(router.TypeClient, h.handleClientMessage)
	h.router.RegisterMessageHandler(router.TypeHub, h.handleHubMessage)
	h.router.RegisterMessageHandler(router.TypeAllServers, h.handleAllServersMessage)
	h.router.RegisterMessageHandler(router.TypeAllClients, h.handleAllClientsMessage)
	h.router.RegisterMessageHandler(router.TypeCapability, h.handleCapabilityMessage)
}

// Start brings up the supervisor's monitor loop and the metrics-update
// task, and marks the hub running.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.startedAt = time.Now()
	taskCtx, cancel := context.WithCancel(ctx)
	h.cancelTasks = cancel
	h.tasksDone = make(chan struct{})
	done := h.tasksDone
	h.mu.Unlock()

	h.supervisor.Start(ctx)
	go h.updateMetricsLoop(taskCtx, done)
	h.logger.Info("hub started")
}

// Stop cancels the metrics task, awaits it, halts the supervisor, and marks
// the hub stopped.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	cancel := h.cancelTasks
	done := h.tasksDone
	h.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	h.supervisor.Stop()
	h.logger.Info("hub stopped")
}

func (h *Hub) updateMetricsLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	h.refreshMetrics()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("metrics update task cancelled")
			return
		case <-ticker.C:
			h.refreshMetrics()
		}
	}
}

func (h *Hub) refreshMetrics() {
	s := h.status()

	h.mu.Lock()
	var uptime int64
	if !h.startedAt.IsZero() {
		uptime = int64(time.Since(h.startedAt).Seconds())
	}
	h.metrics = Metrics{
		UptimeSeconds:  uptime,
		ServerCount:    s.ServerCount,
		ClientCount:    s.ClientCount,
		McpServerCount: s.McpServerCount,
		McpClientCount: s.McpClientCount,
		UpdatedAt:      time.Now(),
	}
	h.mu.Unlock()
}

// Metrics returns the most recent gauge snapshot. If the metrics task has
// never run (the hub was not started), a snapshot is taken on the spot.
func (h *Hub) Metrics() Metrics {
	h.mu.RLock()
	m := h.metrics
	h.mu.RUnlock()
	if m.UpdatedAt.IsZero() {
		h.refreshMetrics()
		h.mu.RLock()
		m = h.metrics
		h.mu.RUnlock()
	}
	return m
}

// Running reports whether the hub has been started.
func (h *Hub) Running() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Router exposes the router for wiring transport listeners (incoming
// client connections feed their frames into Router.RouteMessage).
func (h *Hub) Router() *router.Router { return h.router }

// Supervisor exposes the supervisor for the HTTP admin surface's
// server-management endpoints.
func (h *Hub) Supervisor() *supervisor.Supervisor { return h.supervisor }

// Registry exposes the server registration catalog.
func (h *Hub) Registry() *supervisor.Registry { return h.registry }

// Clients exposes the remote client registry.
func (h *Hub) Clients() *clients.Registry { return h.clients }

// ConnectRemoteClient accepts a transport from a newly connected MCP
// client (stdio or HTTP+SSE), registers it with the client registry, and
// wires its inbound business-method frames into the router so the hub's
// supervised servers and hub-directed methods become reachable from it.
// This is the inbound counterpart to the supervisor's outbound
// serverConnection.Connect — the entry point a listener in cmd/nexushubd
// calls for each accepted client connection.
func (h *Hub) ConnectRemoteClient(ctx context.Context, tr transport.Transport) (*clients.Client, error) {
	provider := func(_ context.Context, _ mcpproto.InitializeParams) (mcpproto.ServerInfo, mcpproto.Capabilities, error) {
		return hubServerInfo, hubCapabilities(), nil
	}
	return h.clients.Connect(ctx, tr, provider, h.router.RouteMessage)
}

// Auth exposes the auth manager, for the HTTP admin surface's login
// endpoint and bearer-token middleware.
func (h *Hub) Auth() *security.AuthManager { return h.auth }

// ACL exposes the access control list, for permission-gating admin
// endpoints.
func (h *Hub) ACL() *security.AccessControlList { return h.acl }
