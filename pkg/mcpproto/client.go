package mcpproto

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Masterminds/semver/v3"
	"github.com/nexushq/nexushub/pkg/jsonrpc"
)

// ClientProtocol is the client-role half of the engine: it speaks to a
// supervised MCP server, sending the discovery and invocation requests and
// handling the inbound sampling requests the spec's reversed-direction
// sampling asymmetry routes through this role.
type ClientProtocol struct {
	disp *Dispatcher
	info ClientInfo

	mu           sync.RWMutex
	state        State
	serverInfo   ServerInfo
	capabilities Capabilities
	initialized  atomic.Bool

	notificationHandler func(method string, params json.RawMessage)
	onSample            func(ctx context.Context, params SamplingParams) (*SamplingResult, *jsonrpc.Error)
}

// NewClientProtocol wraps a transport with the client-role engine.
func NewClientProtocol(transport Transport, info ClientInfo, logger *slog.Logger) *ClientProtocol {
	p := &ClientProtocol{
		disp:  NewDispatcher(transport, logger),
		info:  info,
		state: Disconnected,
	}
	p.disp.Handle("sampling/sample", p.handleSamplingRequest)
	for _, n := range []string{
		"notifications/resources/updated",
		"notifications/resources/list_changed",
		"notifications/tools/list_changed",
		"notifications/prompts/list_changed",
	} {
		method := n
		p.disp.Handle(method, func(_ context.Context, params json.RawMessage) (any, *jsonrpc.Error) {
			p.mu.RLock()
			h := p.notificationHandler
			p.mu.RUnlock()
			if h != nil {
				h(method, params)
			}
			return nil, nil
		})
	}
	return p
}

// Run starts the inbound frame pump. Call once after Connect.
func (p *ClientProtocol) Run(ctx context.Context) {
	p.setState(Connected)
	p.disp.Run(ctx)
}

// State returns the current connection state.
func (p *ClientProtocol) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *ClientProtocol) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// ServerInfo returns the server identity negotiated at initialize.
func (p *ClientProtocol) ServerInfo() ServerInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.serverInfo
}

// Capabilities returns the negotiated capability tree. Before
// initialization completes it is always empty (so every Has() query is
// false), matching the invariant that capability checks never see a stale
// tree.
func (p *ClientProtocol) Capabilities() Capabilities {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.capabilities
}

// RegisterNotificationHandler installs the callback invoked for inbound
// resources/tools/prompts change notifications from the server.
func (p *ClientProtocol) RegisterNotificationHandler(fn func(method string, params json.RawMessage)) {
	p.mu.Lock()
	p.notificationHandler = fn
	p.mu.Unlock()
}

// RegisterSamplingHandler installs the callback invoked for inbound
// sampling/sample requests, normally wired by the supervisor to forward the
// request to the client registry (the actual completion source).
func (p *ClientProtocol) RegisterSamplingHandler(fn func(ctx context.Context, params SamplingParams) (*SamplingResult, *jsonrpc.Error)) {
	p.mu.Lock()
	p.onSample = fn
	p.mu.Unlock()
}

func (p *ClientProtocol) handleSamplingRequest(ctx context.Context, raw json.RawMessage) (any, *jsonrpc.Error) {
	p.mu.RLock()
	h := p.onSample
	p.mu.RUnlock()
	if h == nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.SamplingError, Message: "no sampling handler registered"}
	}
	var params SamplingParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.InvalidParams, Message: err.Error()}
	}
	return h(ctx, params)
}

// Initialize performs the client-role handshake: send initialize, cache the
// server's identity and capability tree, then send the initialized
// notification.
func (p *ClientProtocol) Initialize(ctx context.Context, desired Capabilities, minVersion, maxVersion string) error {
	p.setState(Initializing)

	params := InitializeParams{
		ProtocolVersion: ProtocolVersion,
		ClientInfo:      p.info,
		Capabilities:    desired,
	}
	raw, rpcErr := p.disp.Call(ctx, "initialize", params)
	if rpcErr != nil {
		p.setState(InitializationFailed)
		return fmt.Errorf("initialize: %s", rpcErr.Message)
	}

	var result InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		p.setState(InitializationFailed)
		return fmt.Errorf("initialize: decode result: %w", err)
	}

	if err := checkProtocolCompatible(result.ProtocolVersion, minVersion, maxVersion); err != nil {
		p.setState(InitializationFailed)
		return err
	}

	p.mu.Lock()
	p.serverInfo = result.ServerInfo
	p.capabilities = result.Capabilities
	p.mu.Unlock()
	p.initialized.Store(true)

	if err := p.disp.Notify("notifications/initialized", nil); err != nil {
		p.setState(InitializationFailed)
		return fmt.Errorf("notify initialized: %w", err)
	}

	p.setState(Ready)
	return nil
}

// checkProtocolCompatible rejects an incompatible major protocol version
// using semver comparison rather than trusting the raw date-string blindly.
func checkProtocolCompatible(advertised, min, max string) error {
	if min == "" && max == "" {
		return nil
	}
	v, err := semver.NewVersion(advertised)
	if err != nil {
		// The MCP protocol version is a date string (e.g. "2024-11-05"),
		// not strict semver; fall back to exact match when it doesn't
		// parse as a version.
		if advertised != ProtocolVersion {
			return fmt.Errorf("invalid-capability: unsupported protocol version %q", advertised)
		}
		return nil
	}
	if min != "" {
		if c, err := semver.NewConstraint(">= " + min); err == nil && !c.Check(v) {
			return fmt.Errorf("invalid-capability: protocol version %q below minimum %q", advertised, min)
		}
	}
	if max != "" {
		if c, err := semver.NewConstraint("<= " + max); err == nil && !c.Check(v) {
			return fmt.Errorf("invalid-capability: protocol version %q above maximum %q", advertised, max)
		}
	}
	return nil
}

// Forward relays a raw request frame verbatim to the server and returns its
// raw response frame verbatim, for router-driven request forwarding that
// must preserve the exact envelope end to end.
func (p *ClientProtocol) Forward(ctx context.Context, id *json.RawMessage, frame []byte) (json.RawMessage, *jsonrpc.Error) {
	return p.disp.ForwardRequest(ctx, id, frame)
}

// ForwardNotify relays a raw notification frame verbatim to the server.
func (p *ClientProtocol) ForwardNotify(frame []byte) error {
	return p.disp.ForwardNotification(frame)
}

// Shutdown sends shutdown then exit, the client-role half of the reverse
// handshake.
func (p *ClientProtocol) Shutdown(ctx context.Context) error {
	_, rpcErr := p.disp.Call(ctx, "shutdown", nil)
	if rpcErr != nil {
		return fmt.Errorf("shutdown: %s", rpcErr.Message)
	}
	return p.disp.Notify("exit", nil)
}

// Close tears down the underlying transport and fails any pending calls.
func (p *ClientProtocol) Close() error {
	p.setState(Disconnected)
	return p.disp.Close()
}

func (p *ClientProtocol) requireCapability(path string) *jsonrpc.Error {
	if !p.initialized.Load() || !p.Capabilities().Has(path) {
		return &jsonrpc.Error{Code: jsonrpc.UnsupportedCapability, Message: "unsupported capability: " + path}
	}
	return nil
}

// ListResources sends resources/list.
func (p *ClientProtocol) ListResources(ctx context.Context) (*ResourcesListResult, *jsonrpc.Error) {
	if err := p.requireCapability("resources"); err != nil {
		return nil, err
	}
	raw, rpcErr := p.disp.Call(ctx, "resources/list", nil)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var result ResourcesListResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.InternalError, Message: err.Error()}
	}
	return &result, nil
}

// ReadResource sends resources/read.
func (p *ClientProtocol) ReadResource(ctx context.Context, uri string) (*ResourceReadResult, *jsonrpc.Error) {
	if err := p.requireCapability("resources"); err != nil {
		return nil, err
	}
	raw, rpcErr := p.disp.Call(ctx, "resources/read", ResourceReadParams{URI: uri})
	if rpcErr != nil {
		return nil, rpcErr
	}
	var result ResourceReadResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.InternalError, Message: err.Error()}
	}
	return &result, nil
}

// Subscribe sends resources/subscribe.
func (p *ClientProtocol) Subscribe(ctx context.Context, uri string) *jsonrpc.Error {
	if err := p.requireCapability("resources.subscriptions"); err != nil {
		return err
	}
	_, rpcErr := p.disp.Call(ctx, "resources/subscribe", ResourceSubscribeParams{URI: uri})
	return rpcErr
}

// Unsubscribe sends resources/unsubscribe.
func (p *ClientProtocol) Unsubscribe(ctx context.Context, uri string) *jsonrpc.Error {
	if err := p.requireCapability("resources.subscriptions"); err != nil {
		return err
	}
	_, rpcErr := p.disp.Call(ctx, "resources/unsubscribe", ResourceSubscribeParams{URI: uri})
	return rpcErr
}

// ListTools sends tools/list.
func (p *ClientProtocol) ListTools(ctx context.Context) (*ToolsListResult, *jsonrpc.Error) {
	if err := p.requireCapability("tools"); err != nil {
		return nil, err
	}
	raw, rpcErr := p.disp.Call(ctx, "tools/list", nil)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var result ToolsListResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.InternalError, Message: err.Error()}
	}
	return &result, nil
}

// CallTool sends tools/call.
func (p *ClientProtocol) CallTool(ctx context.Context, name string, arguments map[string]any) (*ToolCallResult, *jsonrpc.Error) {
	if err := p.requireCapability("tools"); err != nil {
		return nil, err
	}
	raw, rpcErr := p.disp.Call(ctx, "tools/call", ToolCallParams{Name: name, Arguments: arguments})
	if rpcErr != nil {
		return nil, rpcErr
	}
	var result ToolCallResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.InternalError, Message: err.Error()}
	}
	return &result, nil
}

// ListPrompts sends prompts/list.
func (p *ClientProtocol) ListPrompts(ctx context.Context) (*PromptsListResult, *jsonrpc.Error) {
	if err := p.requireCapability("prompts"); err != nil {
		return nil, err
	}
	raw, rpcErr := p.disp.Call(ctx, "prompts/list", nil)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var result PromptsListResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.InternalError, Message: err.Error()}
	}
	return &result, nil
}

// GetPrompt sends prompts/get.
func (p *ClientProtocol) GetPrompt(ctx context.Context, id string, arguments map[string]any) (*PromptGetResult, *jsonrpc.Error) {
	if err := p.requireCapability("prompts"); err != nil {
		return nil, err
	}
	raw, rpcErr := p.disp.Call(ctx, "prompts/get", PromptGetParams{ID: id, Arguments: arguments})
	if rpcErr != nil {
		return nil, rpcErr
	}
	var result PromptGetResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.InternalError, Message: err.Error()}
	}
	return &result, nil
}
