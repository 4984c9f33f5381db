package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nexushq/nexushub/internal/telemetry"
	"github.com/nexushq/nexushub/pkg/jsonrpc"
)

var tracer = telemetry.Tracer("router")

// MessageHandler delivers a routed message to one destination and, for
// requests, returns the raw JSON-RPC response bytes the caller should see.
// Notifications are dispatched with a background context and their
// returned bytes are ignored.
type MessageHandler func(ctx context.Context, message json.RawMessage, source, destination RouteTarget) (json.RawMessage, error)

// Router is the hub's message router: an insertion-ordered, deduplicated
// route set plus one handler per destination RouteType.
type Router struct {
	mu       sync.RWMutex
	routes   []Route
	index    map[string]int // route.key() -> position in routes, for O(1) dedup/removal
	handlers map[RouteType]MessageHandler
	logger   *slog.Logger
}

// New creates a router seeded with the two default routes every hub needs:
// any client message reaches the hub, and every hub notification reaches
// every client.
func New(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		index:    make(map[string]int),
		handlers: make(map[RouteType]MessageHandler),
		logger:   logger,
	}
	r.seedDefaults()
	return r
}

func (r *Router) seedDefaults() {
	r.routes = nil
	r.index = make(map[string]int)
	r.addLocked(Route{Source: AllClients(), Destination: Hub()})
	notifPattern := "notifications/*"
	r.addLocked(Route{Source: Hub(), Destination: AllClients(), MethodPattern: &notifPattern})
}

func (r *Router) addLocked(route Route) bool {
	key := route.key()
	if _, exists := r.index[key]; exists {
		return false
	}
	r.index[key] = len(r.routes)
	r.routes = append(r.routes, route)
	return true
}

// AddRoute inserts a route if no equal route is already present; duplicate
// inserts are a silent no-op, matching the original's value-set semantics.
func (r *Router) AddRoute(route Route) error {
	if err := route.Source.Validate(); err != nil {
		return fmt.Errorf("invalid route source: %w", err)
	}
	if err := route.Destination.Validate(); err != nil {
		return fmt.Errorf("invalid route destination: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addLocked(route)
	return nil
}

// RemoveRoute deletes a route equal to the given one, if present.
func (r *Router) RemoveRoute(route Route) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := route.key()
	pos, ok := r.index[key]
	if !ok {
		return
	}
	r.routes = append(r.routes[:pos], r.routes[pos+1:]...)
	delete(r.index, key)
	for k, idx := range r.index {
		if idx > pos {
			r.index[k] = idx - 1
		}
	}
}

// GetRoutes returns a snapshot of the route set in insertion order.
func (r *Router) GetRoutes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Route, len(r.routes))
	copy(out, r.routes)
	return out
}

// ClearRoutes discards every route and re-seeds the two defaults.
func (r *Router) ClearRoutes() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seedDefaults()
}

// RegisterMessageHandler wires the handler that will be invoked for every
// route whose Destination.Type matches rt.
func (r *Router) RegisterMessageHandler(rt RouteType, handler MessageHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[rt] = handler
}

// GetMatchingRoutes applies the three-stage filter in the same order as the
// original: route type, then target id/capability, then method pattern
// (checked last, since it is the most expensive test).
func (r *Router) GetMatchingRoutes(source RouteTarget, method string) []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var byType []Route
	for _, route := range r.routes {
		if route.Source.Type == source.Type {
			byType = append(byType, route)
		}
	}

	var byIdentity []Route
	for _, route := range byType {
		switch source.Type {
		case TypeServer, TypeClient:
			if route.Source.TargetID == "" || route.Source.TargetID == source.TargetID {
				byIdentity = append(byIdentity, route)
			}
		case TypeCapability:
			if route.Source.Capability == "" || route.Source.Capability == source.Capability {
				byIdentity = append(byIdentity, route)
			}
		default:
			byIdentity = append(byIdentity, route)
		}
	}

	var out []Route
	for _, route := range byIdentity {
		if route.MatchesMethod(method) {
			out = append(out, route)
		}
	}
	return out
}

// RouteMessage dispatches one JSON-RPC message originating at source.
// Requests are sent to the first matching route only (deterministic,
// insertion-order priority) and the response bytes are returned.
// Notifications fan out concurrently to every matching destination and
// RouteMessage always returns nil for them.
func (r *Router) RouteMessage(ctx context.Context, message json.RawMessage, source RouteTarget) json.RawMessage {
	ctx, span := tracer.Start(ctx, "router.dispatch", trace.WithAttributes(
		attribute.String("nexushub.route.source", source.String()),
	))
	defer span.End()

	var env struct {
		ID     *json.RawMessage `json:"id,omitempty"`
		Method string           `json:"method,omitempty"`
	}
	if err := json.Unmarshal(message, &env); err != nil || env.Method == "" {
		span.SetStatus(codes.Error, "missing method")
		return errorResponse(env.ID, jsonrpc.InvalidRequest, "message is missing a method")
	}
	span.SetAttributes(attribute.String("nexushub.route.method", env.Method))

	matches := r.GetMatchingRoutes(source, env.Method)
	isRequest := env.ID != nil

	if len(matches) == 0 {
		if !isRequest {
			return nil
		}
		span.SetStatus(codes.Error, "no route")
		return errorResponse(env.ID, jsonrpc.MethodNotFound, fmt.Sprintf("no route for method: %s", env.Method))
	}

	if isRequest {
		route := matches[0]
		span.SetAttributes(attribute.String("nexushub.route.destination", route.Destination.String()))
		handler, ok := r.handlerFor(route.Destination.Type)
		if !ok {
			span.SetStatus(codes.Error, "no handler")
			return errorResponse(env.ID, jsonrpc.InternalError, fmt.Sprintf("no handler registered for destination: %s", route.Destination))
		}
		reply, err := r.invoke(ctx, handler, message, source, route.Destination)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return errorResponse(env.ID, jsonrpc.InternalError, "internal error routing message: "+err.Error())
		}
		return reply
	}

	for _, route := range matches {
		handler, ok := r.handlerFor(route.Destination.Type)
		if !ok {
			continue
		}
		go func(h MessageHandler, dest RouteTarget) {
			if _, err := r.invoke(context.Background(), h, message, source, dest); err != nil {
				r.logger.Warn("notification fan-out failed", "destination", dest.String(), "error", err)
			}
		}(handler, route.Destination)
	}
	return nil
}

func (r *Router) handlerFor(rt RouteType) (MessageHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[rt]
	return h, ok
}

func (r *Router) invoke(ctx context.Context, handler MessageHandler, message json.RawMessage, source, destination RouteTarget) (reply json.RawMessage, err error) {
	ctx, span := tracer.Start(ctx, "router.forward", trace.WithAttributes(
		attribute.String("nexushub.route.destination", destination.String()),
	))
	defer span.End()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panicked: %v", p)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()
	reply, err = handler(ctx, message, source, destination)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return reply, err
}

func errorResponse(id *json.RawMessage, code int, message string) json.RawMessage {
	if id == nil {
		return nil
	}
	resp := jsonrpc.NewErrorResponse(id, code, message)
	b, _ := json.Marshal(resp)
	return b
}
