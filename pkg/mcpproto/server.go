package mcpproto

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/nexushq/nexushub/pkg/jsonrpc"
)

// InitializeProvider answers an inbound initialize request with the hub's
// identity and advertised capability tree for this connection.
type InitializeProvider func(ctx context.Context, params InitializeParams) (ServerInfo, Capabilities, error)

// ServerProtocol is the server-role half of the engine: it speaks to a
// remote client, handling the inbound handshake and any method the caller
// registers (typically wired by the router to forward into the hub), and
// sending the one request that flows server-to-client: sampling/sample.
type ServerProtocol struct {
	disp     *Dispatcher
	provider InitializeProvider

	mu           sync.RWMutex
	state        State
	clientInfo   ClientInfo
	capabilities Capabilities
	serverCaps   Capabilities
	initialized  atomic.Bool

	// subscriptions maps a resource URI to the set of subscriber ids that
	// asked for update notifications on it.
	subscriberID  string
	subscriptions map[string]map[string]struct{}

	onShutdown func()
}

// NewServerProtocol wraps a transport with the server-role engine.
func NewServerProtocol(transport Transport, provider InitializeProvider, logger *slog.Logger) *ServerProtocol {
	p := &ServerProtocol{
		disp:          NewDispatcher(transport, logger),
		provider:      provider,
		state:         Disconnected,
		subscriberID:  "default",
		subscriptions: make(map[string]map[string]struct{}),
	}
	p.disp.Handle("initialize", p.handleInitialize)
	p.disp.Handle("notifications/initialized", p.handleInitialized)
	p.disp.Handle("shutdown", p.handleShutdown)
	p.disp.Handle("exit", p.handleExit)
	p.disp.Handle("resources/subscribe", p.handleResourcesSubscribe)
	p.disp.Handle("resources/unsubscribe", p.handleResourcesUnsubscribe)
	return p
}

// Run starts the inbound frame pump. Call once after accepting the
// connection.
func (p *ServerProtocol) Run(ctx context.Context) {
	p.setState(Connected)
	p.disp.Run(ctx)
}

// State returns the current connection state.
func (p *ServerProtocol) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *ServerProtocol) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Initialized reports whether the handshake has completed.
func (p *ServerProtocol) Initialized() bool {
	return p.initialized.Load()
}

// ClientInfo returns the identity the peer announced at initialize.
func (p *ServerProtocol) ClientInfo() ClientInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.clientInfo
}

// Capabilities returns the capability tree the peer announced. Empty (and
// thus every Has() query false) until initialize completes.
func (p *ServerProtocol) Capabilities() Capabilities {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.capabilities
}

// Handle registers a handler for an arbitrary method, used by the hub/router
// to wire resources/tools/prompts and hub-directed methods into this
// connection without mcpproto needing to know their business logic.
func (p *ServerProtocol) Handle(method string, fn HandlerFunc) {
	p.disp.Handle(method, fn)
}

// SetDefaultHandler registers the fallback invoked for any request or
// notification this connection receives under a method no Handle call
// covers — the path by which a remote client's business-method frames
// (resources/*, tools/*, prompts/*, ...) reach the router.
func (p *ServerProtocol) SetDefaultHandler(fn func(ctx context.Context, frame []byte)) {
	p.disp.SetDefaultHandler(fn)
}

// SetSubscriberID sets the id recorded in the subscription table for this
// connection's peer. The client registry sets it to the connection's client
// id at connect time.
func (p *ServerProtocol) SetSubscriberID(id string) {
	p.mu.Lock()
	p.subscriberID = id
	p.mu.Unlock()
}

// Subscribed reports whether any subscriber is registered for uri.
func (p *ServerProtocol) Subscribed(uri string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscriptions[uri]) > 0
}

// OnShutdown registers a callback invoked when the peer sends shutdown,
// before the idempotent success reply is sent.
func (p *ServerProtocol) OnShutdown(fn func()) {
	p.mu.Lock()
	p.onShutdown = fn
	p.mu.Unlock()
}

func (p *ServerProtocol) handleInitialize(ctx context.Context, raw json.RawMessage) (any, *jsonrpc.Error) {
	p.setState(Initializing)

	var params InitializeParams
	if err := json.Unmarshal(raw, &params); err != nil {
		p.setState(InitializationFailed)
		return nil, &jsonrpc.Error{Code: jsonrpc.InvalidParams, Message: err.Error()}
	}

	info, caps, err := p.provider(ctx, params)
	if err != nil {
		p.setState(InitializationFailed)
		return nil, &jsonrpc.Error{Code: jsonrpc.ProtocolError, Message: err.Error()}
	}

	p.mu.Lock()
	p.clientInfo = params.ClientInfo
	p.serverCaps = caps
	p.mu.Unlock()

	return InitializeResult{
		ProtocolVersion: ProtocolVersion,
		ServerInfo:      info,
		Capabilities:    caps,
	}, nil
}

func (p *ServerProtocol) handleInitialized(_ context.Context, raw json.RawMessage) (any, *jsonrpc.Error) {
	var params InitializeParams
	_ = json.Unmarshal(raw, &params)
	p.mu.Lock()
	p.capabilities = params.Capabilities
	p.mu.Unlock()
	p.initialized.Store(true)
	p.setState(Ready)
	return nil, nil
}

// handleShutdown is idempotent: replying success whether or not the
// connection has already begun shutting down.
func (p *ServerProtocol) handleShutdown(_ context.Context, _ json.RawMessage) (any, *jsonrpc.Error) {
	p.mu.RLock()
	cb := p.onShutdown
	p.mu.RUnlock()
	if cb != nil {
		cb()
	}
	return struct{}{}, nil
}

func (p *ServerProtocol) handleExit(_ context.Context, _ json.RawMessage) (any, *jsonrpc.Error) {
	p.setState(Disconnected)
	go p.disp.Close()
	return nil, nil
}

func (p *ServerProtocol) handleResourcesSubscribe(_ context.Context, raw json.RawMessage) (any, *jsonrpc.Error) {
	p.mu.RLock()
	supported := p.serverCaps.Has("resources.subscriptions")
	p.mu.RUnlock()
	if !supported {
		return nil, &jsonrpc.Error{Code: jsonrpc.UnsupportedCapability, Message: "resource subscriptions are not supported"}
	}

	var params ResourceSubscribeParams
	if err := json.Unmarshal(raw, &params); err != nil || params.URI == "" {
		return nil, &jsonrpc.Error{Code: jsonrpc.InvalidParams, Message: "missing required parameter: uri"}
	}

	p.mu.Lock()
	set, ok := p.subscriptions[params.URI]
	if !ok {
		set = make(map[string]struct{})
		p.subscriptions[params.URI] = set
	}
	set[p.subscriberID] = struct{}{}
	p.mu.Unlock()
	return struct{}{}, nil
}

func (p *ServerProtocol) handleResourcesUnsubscribe(_ context.Context, raw json.RawMessage) (any, *jsonrpc.Error) {
	p.mu.RLock()
	supported := p.serverCaps.Has("resources.subscriptions")
	p.mu.RUnlock()
	if !supported {
		return nil, &jsonrpc.Error{Code: jsonrpc.UnsupportedCapability, Message: "resource subscriptions are not supported"}
	}

	var params ResourceSubscribeParams
	if err := json.Unmarshal(raw, &params); err != nil || params.URI == "" {
		return nil, &jsonrpc.Error{Code: jsonrpc.InvalidParams, Message: "missing required parameter: uri"}
	}

	p.mu.Lock()
	if set, ok := p.subscriptions[params.URI]; ok {
		delete(set, p.subscriberID)
		if len(set) == 0 {
			delete(p.subscriptions, params.URI)
		}
	}
	p.mu.Unlock()
	return struct{}{}, nil
}

// Sample sends sampling/sample to the client — the one request that flows
// server-to-client, used when this connection's peer has declared the
// sampling capability.
func (p *ServerProtocol) Sample(ctx context.Context, params SamplingParams) (*SamplingResult, *jsonrpc.Error) {
	if !p.initialized.Load() || !p.Capabilities().Has("sampling") {
		return nil, &jsonrpc.Error{Code: jsonrpc.UnsupportedCapability, Message: "peer did not declare the sampling capability"}
	}
	raw, rpcErr := p.disp.Call(ctx, "sampling/sample", params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var result SamplingResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.InternalError, Message: err.Error()}
	}
	return &result, nil
}

func (p *ServerProtocol) notify(method string, params any) error {
	if !p.initialized.Load() {
		return fmt.Errorf("notify %s: connection not initialized", method)
	}
	return p.disp.Notify(method, params)
}

// NotifyResourceUpdated sends notifications/resources/updated. The
// notification is only delivered when the peer holds a subscription on uri.
func (p *ServerProtocol) NotifyResourceUpdated(uri string) error {
	if !p.Subscribed(uri) {
		return nil
	}
	return p.notify("notifications/resources/updated", ResourceUpdatedParams{URI: uri})
}

// NotifyResourcesListChanged sends notifications/resources/list_changed.
func (p *ServerProtocol) NotifyResourcesListChanged() error {
	return p.notify("notifications/resources/list_changed", nil)
}

// NotifyToolsListChanged sends notifications/tools/list_changed.
func (p *ServerProtocol) NotifyToolsListChanged() error {
	return p.notify("notifications/tools/list_changed", nil)
}

// NotifyPromptsListChanged sends notifications/prompts/list_changed.
func (p *ServerProtocol) NotifyPromptsListChanged() error {
	return p.notify("notifications/prompts/list_changed", nil)
}

// Forward relays a raw request frame verbatim to the client and returns its
// raw response frame verbatim, for router-driven request forwarding that
// must preserve the exact envelope end to end.
func (p *ServerProtocol) Forward(ctx context.Context, id *json.RawMessage, frame []byte) (json.RawMessage, *jsonrpc.Error) {
	return p.disp.ForwardRequest(ctx, id, frame)
}

// ForwardNotify relays a raw notification frame verbatim to the client.
func (p *ServerProtocol) ForwardNotify(frame []byte) error {
	return p.disp.ForwardNotification(frame)
}

// Close tears down the underlying transport and fails any pending calls.
func (p *ServerProtocol) Close() error {
	p.setState(Disconnected)
	return p.disp.Close()
}
