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

// HandlerFunc handles one inbound request or notification. For a
// notification, the returned value and error are discarded. Panics inside a
// HandlerFunc are recovered by the dispatcher and translated to an
// internal-error response (or dropped, for notifications).
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, *jsonrpc.Error)

// envelope is the generic shape used to classify an inbound frame before
// decoding it into a typed request/response.
type envelope struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Method  string           `json:"method,omitempty"`
	Params  json.RawMessage  `json:"params,omitempty"`
	Result  json.RawMessage  `json:"result,omitempty"`
	Error   *jsonrpc.Error   `json:"error,omitempty"`
}

// Dispatcher is the role-agnostic JSON-RPC 2.0 engine: frame classification,
// handler registry, pending-request table, and send primitives. ClientProtocol
// and ServerProtocol each wrap one Dispatcher and layer role-specific
// behavior (handshake direction, capability-gated helpers) on top.
type Dispatcher struct {
	transport Transport
	logger    *slog.Logger

	mu             sync.Mutex
	handlers       map[string]HandlerFunc
	defaultHandler func(ctx context.Context, frame []byte)
	pending        map[string]chan *jsonrpc.Response

	nextID atomic.Uint64

	closeOnce sync.Once
	closed    chan struct{}
}

// NewDispatcher wraps a transport with the shared JSON-RPC engine.
func NewDispatcher(transport Transport, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		transport: transport,
		logger:    logger,
		handlers:  make(map[string]HandlerFunc),
		pending:   make(map[string]chan *jsonrpc.Response),
		closed:    make(chan struct{}),
	}
}

// Handle registers a handler for a method name, used for both requests and
// notifications arriving under that method.
func (d *Dispatcher) Handle(method string, fn HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[method] = fn
}

// SetDefaultHandler registers a fallback invoked, with the exact raw frame
// as received, for any request or notification whose method matches no
// handler registered via Handle. Used to forward business methods (e.g.
// resources/*, tools/*) into the router without the protocol layer needing
// to know their names; a request's fallback is responsible for sending its
// own reply (e.g. via the same transport this dispatcher wraps), since the
// router's response envelope must be relayed verbatim rather than re-framed
// by sendResult.
func (d *Dispatcher) SetDefaultHandler(fn func(ctx context.Context, frame []byte)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.defaultHandler = fn
}

// Run pumps inbound frames until the transport closes or ctx is canceled.
// It must be started in its own goroutine; it returns when the connection
// is done.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case frame, ok := <-d.transport.Frames():
			if !ok {
				d.failAllPending(jsonrpc.ConnectionLost, "connection lost")
				return
			}
			d.dispatchFrame(ctx, frame)
		case <-ctx.Done():
			d.failAllPending(jsonrpc.ConnectionLost, "context canceled")
			return
		}
	}
}

// Close fails every outstanding pending request with a connection-lost
// error and closes the transport. Safe to call more than once.
func (d *Dispatcher) Close() error {
	d.failAllPending(jsonrpc.ConnectionLost, "connection closed")
	return d.transport.Close()
}

func (d *Dispatcher) dispatchFrame(ctx context.Context, frame []byte) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		d.sendError(nil, jsonrpc.ParseError, "parse error: "+err.Error())
		return
	}

	switch {
	case env.Method != "" && env.ID != nil:
		d.handleRequest(ctx, env.ID, env.Method, env.Params, frame)
	case env.Method != "" && env.ID == nil:
		d.handleNotification(ctx, env.Method, env.Params, frame)
	case env.ID != nil && (env.Result != nil || env.Error != nil):
		d.handleResponse(env.ID, env.Result, env.Error)
	default:
		// Includes the 0-byte/`{}` boundary case: no method, no id, no
		// result/error — an empty object is neither a request nor a
		// response.
		d.sendError(nil, jsonrpc.InvalidRequest, "invalid request")
	}
}

func (d *Dispatcher) handleRequest(ctx context.Context, id *json.RawMessage, method string, params json.RawMessage, frame []byte) {
	d.mu.Lock()
	fn, ok := d.handlers[method]
	def := d.defaultHandler
	d.mu.Unlock()

	if !ok {
		if def != nil {
			go def(ctx, frame)
			return
		}
		d.sendError(id, jsonrpc.MethodNotFound, fmt.Sprintf("method not found: %s", method))
		return
	}

	go func() {
		result, rpcErr := d.invoke(ctx, fn, params)
		if rpcErr != nil {
			d.sendError(id, rpcErr.Code, rpcErr.Message)
			return
		}
		d.sendResult(id, result)
	}()
}

func (d *Dispatcher) handleNotification(ctx context.Context, method string, params json.RawMessage, frame []byte) {
	d.mu.Lock()
	fn, ok := d.handlers[method]
	def := d.defaultHandler
	d.mu.Unlock()

	if !ok {
		// A notification that matches no handler falls through to the
		// default handler, if any, instead of being dropped silently.
		if def != nil {
			go def(ctx, frame)
		}
		return
	}

	go func() {
		if _, rpcErr := d.invoke(ctx, fn, params); rpcErr != nil {
			d.logger.Warn("notification handler failed", "method", method, "error", rpcErr.Message)
		}
	}()
}

func (d *Dispatcher) invoke(ctx context.Context, fn HandlerFunc, params json.RawMessage) (result any, rpcErr *jsonrpc.Error) {
	defer func() {
		if r := recover(); r != nil {
			rpcErr = &jsonrpc.Error{Code: jsonrpc.InternalError, Message: fmt.Sprintf("internal error: %v", r)}
		}
	}()
	return fn(ctx, params)
}

func (d *Dispatcher) handleResponse(id *json.RawMessage, result json.RawMessage, rpcErr *jsonrpc.Error) {
	key := jsonrpc.IDString(id)

	d.mu.Lock()
	ch, ok := d.pending[key]
	if ok {
		delete(d.pending, key)
	}
	d.mu.Unlock()

	if !ok {
		// A response for an unknown id is logged and discarded.
		d.logger.Warn("response for unknown request id", "id", key)
		return
	}

	ch <- &jsonrpc.Response{JSONRPC: "2.0", ID: id, Result: result, Error: rpcErr}
}

// Call sends a request and blocks for the matching response, the peer's
// error, ctx expiry, or the connection closing — whichever comes first. On
// ctx expiry the pending entry is left in place so a late response is still
// delivered (and harmlessly discarded); only an actual reply or connection
// close removes it.
func (d *Dispatcher) Call(ctx context.Context, method string, params any) (json.RawMessage, *jsonrpc.Error) {
	id := fmt.Sprintf("%d", d.nextID.Add(1))
	req := jsonrpc.NewRequest(id, method, params)

	data, err := json.Marshal(req)
	if err != nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.InternalError, Message: err.Error()}
	}

	ch := make(chan *jsonrpc.Response, 1)
	d.mu.Lock()
	d.pending[id] = ch
	d.mu.Unlock()

	if err := d.transport.Send(data); err != nil {
		d.mu.Lock()
		delete(d.pending, id)
		d.mu.Unlock()
		return nil, &jsonrpc.Error{Code: jsonrpc.ConnectionLost, Message: err.Error()}
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, &jsonrpc.Error{Code: jsonrpc.Timeout, Message: "request timed out"}
	case <-d.closed:
		return nil, &jsonrpc.Error{Code: jsonrpc.ConnectionLost, Message: "connection closed"}
	}
}

// ForwardRequest sends a raw request frame verbatim, preserving the
// caller's own id, and blocks for the matching raw response frame. Used by
// the router to relay a message end to end without re-encoding it, so the
// destination and the original sender see byte-identical envelopes.
func (d *Dispatcher) ForwardRequest(ctx context.Context, id *json.RawMessage, frame []byte) (json.RawMessage, *jsonrpc.Error) {
	key := jsonrpc.IDString(id)

	ch := make(chan *jsonrpc.Response, 1)
	d.mu.Lock()
	d.pending[key] = ch
	d.mu.Unlock()

	if err := d.transport.Send(frame); err != nil {
		d.mu.Lock()
		delete(d.pending, key)
		d.mu.Unlock()
		return nil, &jsonrpc.Error{Code: jsonrpc.ConnectionLost, Message: err.Error()}
	}

	select {
	case resp := <-ch:
		data, err := json.Marshal(resp)
		if err != nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.InternalError, Message: err.Error()}
		}
		return data, nil
	case <-ctx.Done():
		return nil, &jsonrpc.Error{Code: jsonrpc.Timeout, Message: "request timed out"}
	case <-d.closed:
		return nil, &jsonrpc.Error{Code: jsonrpc.ConnectionLost, Message: "connection closed"}
	}
}

// ForwardNotification sends a raw notification frame verbatim.
func (d *Dispatcher) ForwardNotification(frame []byte) error {
	return d.transport.Send(frame)
}

// Notify sends a fire-and-forget notification.
func (d *Dispatcher) Notify(method string, params any) error {
	n := jsonrpc.NewNotification(method, params)
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return d.transport.Send(data)
}

func (d *Dispatcher) sendResult(id *json.RawMessage, result any) {
	resp := jsonrpc.NewSuccessResponse(id, result)
	data, err := json.Marshal(resp)
	if err != nil {
		d.logger.Error("failed to marshal response", "error", err)
		return
	}
	if err := d.transport.Send(data); err != nil {
		d.logger.Warn("failed to send response", "error", err)
	}
}

func (d *Dispatcher) sendError(id *json.RawMessage, code int, message string) {
	resp := jsonrpc.NewErrorResponse(id, code, message)
	data, err := json.Marshal(resp)
	if err != nil {
		d.logger.Error("failed to marshal error response", "error", err)
		return
	}
	if err := d.transport.Send(data); err != nil {
		d.logger.Warn("failed to send error response", "error", err)
	}
}

func (d *Dispatcher) failAllPending(code int, message string) {
	d.mu.Lock()
	pending := d.pending
	d.pending = make(map[string]chan *jsonrpc.Response)
	d.mu.Unlock()

	for _, ch := range pending {
		ch <- &jsonrpc.Response{JSONRPC: "2.0", Error: &jsonrpc.Error{Code: code, Message: message}}
	}

	d.closeOnce.Do(func() { close(d.closed) })
}
