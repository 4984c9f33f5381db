// Package clients implements the hub's remote client registry: the
// two-phase connect/disconnect lifecycle, a disconnection grace window, and
// the notification/sampling emitters the router and hub facade use to talk
// back to a connected remote client.
package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexushq/nexushub/pkg/mcpproto"
	"github.com/nexushq/nexushub/pkg/router"
)

// RouteFunc dispatches one raw inbound frame from a connected client into
// the hub's router, returning the raw reply frame for a request (nil for a
// notification) — matching Router.RouteMessage's own signature, so the
// router's method value can be passed directly as a RouteFunc.
type RouteFunc func(ctx context.Context, message json.RawMessage, source router.RouteTarget) json.RawMessage

// Status is the lifecycle state of a remote client connection.
type Status string

const (
	StatusConnecting    Status = "connecting"
	StatusConnected     Status = "connected"
	StatusDisconnecting Status = "disconnecting"
	StatusDisconnected  Status = "disconnected"
)

// purgeGracePeriod is how long a disconnected client's record is kept
// around before being purged, allowing a reconnecting client carrying the
// same id to re-attach.
const purgeGracePeriod = 60 * time.Second

// Client is one remote client's registry entry.
type Client struct {
	ID       string
	Status   Status
	Info     mcpproto.ClientInfo
	Servers  map[string]struct{}
	Protocol *mcpproto.ServerProtocol

	ConnectedAt    time.Time
	DisconnectedAt *time.Time

	cancelRun context.CancelFunc
}

// Capabilities returns the capability tree the client announced at
// initialize, empty until the handshake completes.
func (c *Client) Capabilities() mcpproto.Capabilities {
	if c.Protocol == nil {
		return mcpproto.NewCapabilities()
	}
	return c.Protocol.Capabilities()
}

// Initialized reports whether the client completed the MCP handshake.
func (c *Client) Initialized() bool {
	return c.Protocol != nil && c.Protocol.Initialized()
}

// Registry tracks every live (and recently-disconnected) remote client.
// Grounded on original_source/core/hub/client_manager.py's ClientManager.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *slog.Logger
}

// New creates an empty client registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{clients: make(map[string]*Client), logger: logger}
}

// Connect wraps tr in a server-role protocol, assigns a fresh UUID client
// id, registers the entry as connecting, and starts pumping inbound
// frames. The handshake itself (initialize/initialized) completes
// asynchronously once the client sends its first frame. Any business
// method the handshake doesn't cover (resources/*, tools/*, prompts/*, ...)
// falls through to route, which forwards it into the hub's router on the
// client's behalf; route may be nil in tests that don't need that path.
func (r *Registry) Connect(ctx context.Context, tr mcpproto.Transport, provider mcpproto.InitializeProvider, route RouteFunc) (*Client, error) {
	id := uuid.NewString()

	protocol := mcpproto.NewServerProtocol(tr, provider, r.logger)
	protocol.SetSubscriberID(id)
	protocol.SetDefaultHandler(func(ctx context.Context, frame []byte) {
		if route == nil {
			return
		}
		// Routed as AllClients, not Client(id): the router's seeded default
		// route is sourced on ALL_CLIENTS (pkg/router.New), matching the
		// original's RouteType.ALL_CLIENTS source for any client-to-hub
		// message. A specific client id is only meaningful as a destination.
		reply := route(ctx, json.RawMessage(frame), router.AllClients())
		if reply == nil {
			return
		}
		if err := tr.Send(reply); err != nil {
			r.logger.Warn("failed to send routed reply to client", "client", id, "error", err)
		}
	})

	client := &Client{
		ID:          id,
		Status:      StatusConnecting,
		Servers:     make(map[string]struct{}),
		Protocol:    protocol,
		ConnectedAt: time.Now(),
	}

	r.mu.Lock()
	r.clients[id] = client
	r.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.Background())
	client.cancelRun = cancel
	go protocol.Run(runCtx)

	r.mu.Lock()
	client.Status = StatusConnected
	r.mu.Unlock()

	r.logger.Info("client connected", "client", id)
	return client, nil
}

// Disconnect tears down a client's transport and schedules its record for
// purge after the grace period.
func (r *Registry) Disconnect(id string) error {
	r.mu.Lock()
	client, ok := r.clients[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("client not found: %s", id)
	}
	client.Status = StatusDisconnecting
	r.mu.Unlock()

	if client.cancelRun != nil {
		client.cancelRun()
	}
	if client.Protocol != nil {
		_ = client.Protocol.Close()
	}

	now := time.Now()
	r.mu.Lock()
	client.Status = StatusDisconnected
	client.DisconnectedAt = &now
	r.mu.Unlock()

	r.logger.Info("client disconnected", "client", id)
	time.AfterFunc(purgeGracePeriod, func() { r.purgeIfStillDisconnected(id) })
	return nil
}

func (r *Registry) purgeIfStillDisconnected(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if client, ok := r.clients[id]; ok && client.Status == StatusDisconnected {
		delete(r.clients, id)
		r.logger.Debug("purged disconnected client record", "client", id)
	}
}

// ConnectToServer records that a client is bound to a server, for
// bookkeeping and hub/status reporting.
func (r *Registry) ConnectToServer(clientID, serverID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	client, ok := r.clients[clientID]
	if !ok {
		return fmt.Errorf("client not found: %s", clientID)
	}
	client.Servers[serverID] = struct{}{}
	return nil
}

// DisconnectFromServer removes a client-to-server binding.
func (r *Registry) DisconnectFromServer(clientID, serverID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	client, ok := r.clients[clientID]
	if !ok {
		return fmt.Errorf("client not found: %s", clientID)
	}
	delete(client.Servers, serverID)
	return nil
}

// Get returns a client's registry entry.
func (r *Registry) Get(id string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	return c, ok
}

// List returns every registered client (connected or within its grace
// window).
func (r *Registry) List() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// Count returns the number of registered clients, matching hub/status's
// client_count field.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// ConnectedCount returns the number of clients currently in the connected
// state, matching hub/status's mcp_client_count field.
func (r *Registry) ConnectedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, c := range r.clients {
		if c.Status == StatusConnected {
			n++
		}
	}
	return n
}
