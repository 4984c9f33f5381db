package hub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nexushq/nexushub/pkg/jsonrpc"
	"github.com/nexushq/nexushub/pkg/router"
)

// routeEnvelope peeks a message's id and method without fully decoding it —
// the id's presence distinguishes a request (expects a reply) from a
// notification (fire-and-forget).
type routeEnvelope struct {
	ID     *json.RawMessage `json:"id,omitempty"`
	Method string           `json:"method,omitempty"`
}

func peekEnvelope(message json.RawMessage) routeEnvelope {
	var env routeEnvelope
	_ = json.Unmarshal(message, &env)
	return env
}

// handleServerMessage forwards a message to one specific supervised
// server's client-role protocol connection.
func (h *Hub) handleServerMessage(ctx context.Context, message json.RawMessage, _, destination router.RouteTarget) (json.RawMessage, error) {
	protocol, ok := h.supervisor.Connection(destination.TargetID)
	if !ok {
		return nil, fmt.Errorf("server not connected: %s", destination.TargetID)
	}

	env := peekEnvelope(message)
	if env.ID == nil {
		if err := protocol.ForwardNotify(message); err != nil {
			return nil, err
		}
		return nil, nil
	}

	reply, rpcErr := protocol.Forward(ctx, env.ID, message)
	if rpcErr != nil {
		return nil, fmt.Errorf("forwarding to server %s: %s", destination.TargetID, rpcErr.Message)
	}
	return reply, nil
}

// handleClientMessage forwards a message to one specific remote client's
// server-role protocol connection.
func (h *Hub) handleClientMessage(ctx context.Context, message json.RawMessage, _, destination router.RouteTarget) (json.RawMessage, error) {
	client, ok := h.clients.Get(destination.TargetID)
	if !ok {
		return nil, fmt.Errorf("client not connected: %s", destination.TargetID)
	}

	env := peekEnvelope(message)
	if env.ID == nil {
		if err := client.Protocol.ForwardNotify(message); err != nil {
			return nil, err
		}
		return nil, nil
	}

	reply, rpcErr := client.Protocol.Forward(ctx, env.ID, message)
	if rpcErr != nil {
		return nil, fmt.Errorf("forwarding to client %s: %s", destination.TargetID, rpcErr.Message)
	}
	return reply, nil
}

// handleAllServersMessage broadcasts a message to every connected server.
// For a request it returns the first non-nil response; forwarding failures
// at individual members are logged and only fail the overall response if
// every member fails. Grounded on manager.py's _handle_all_servers_message.
func (h *Hub) handleAllServersMessage(ctx context.Context, message json.RawMessage, _, _ router.RouteTarget) (json.RawMessage, error) {
	ids := h.supervisor.ServerIDs()
	env := peekEnvelope(message)
	isRequest := env.ID != nil

	var first json.RawMessage
	attempted := 0
	failed := 0

	for _, id := range ids {
		protocol, ok := h.supervisor.Connection(id)
		if !ok {
			continue
		}
		attempted++

		if !isRequest {
			if err := protocol.ForwardNotify(message); err != nil {
				h.logger.Error("broadcast notify to server failed", "server", id, "error", err)
				failed++
			}
			continue
		}

		reply, rpcErr := protocol.Forward(ctx, env.ID, message)
		if rpcErr != nil {
			h.logger.Error("broadcast request to server failed", "server", id, "error", rpcErr.Message)
			failed++
			continue
		}
		if first == nil {
			first = reply
		}
	}

	if !isRequest {
		return nil, nil
	}
	if attempted == 0 {
		h.logger.Warn("no servers to broadcast message to")
		return nil, nil
	}
	if failed == attempted {
		return nil, fmt.Errorf("all %d servers failed to handle broadcast message", attempted)
	}
	return first, nil
}

// handleAllClientsMessage broadcasts a message to every registered client,
// with the same first-response-wins / all-fail-is-error semantics as
// handleAllServersMessage.
func (h *Hub) handleAllClientsMessage(ctx context.Context, message json.RawMessage, _, _ router.RouteTarget) (json.RawMessage, error) {
	all := h.clients.List()
	env := peekEnvelope(message)
	isRequest := env.ID != nil

	var first json.RawMessage
	attempted := 0
	failed := 0

	for _, client := range all {
		if client.Protocol == nil {
			continue
		}
		attempted++

		if !isRequest {
			if err := client.Protocol.ForwardNotify(message); err != nil {
				h.logger.Error("broadcast notify to client failed", "client", client.ID, "error", err)
				failed++
			}
			continue
		}

		reply, rpcErr := client.Protocol.Forward(ctx, env.ID, message)
		if rpcErr != nil {
			h.logger.Error("broadcast request to client failed", "client", client.ID, "error", rpcErr.Message)
			failed++
			continue
		}
		if first == nil {
			first = reply
		}
	}

	if !isRequest {
		return nil, nil
	}
	if attempted == 0 {
		h.logger.Warn("no clients to broadcast message to")
		return nil, nil
	}
	if failed == attempted {
		return nil, fmt.Errorf("all %d clients failed to handle broadcast message", attempted)
	}
	return first, nil
}

// handleCapabilityMessage broadcasts a message to every connected server
// that declares the destination's capability path.
func (h *Hub) handleCapabilityMessage(ctx context.Context, message json.RawMessage, _, destination router.RouteTarget) (json.RawMessage, error) {
	ids := h.supervisor.ServerIDs()
	env := peekEnvelope(message)
	isRequest := env.ID != nil

	var first json.RawMessage
	attempted := 0
	failed := 0

	for _, id := range ids {
		protocol, ok := h.supervisor.Connection(id)
		if !ok || !protocol.Capabilities().Has(destination.Capability) {
			continue
		}
		attempted++

		if !isRequest {
			if err := protocol.ForwardNotify(message); err != nil {
				h.logger.Error("capability broadcast notify failed", "server", id, "error", err)
				failed++
			}
			continue
		}

		reply, rpcErr := protocol.Forward(ctx, env.ID, message)
		if rpcErr != nil {
			h.logger.Error("capability broadcast request failed", "server", id, "error", rpcErr.Message)
			failed++
			continue
		}
		if first == nil {
			first = reply
		}
	}

	if !isRequest {
		return nil, nil
	}
	if attempted == 0 {
		h.logger.Warn("no servers found with capability", "capability", destination.Capability)
		return nil, nil
	}
	if failed == attempted {
		return nil, fmt.Errorf("all %d servers with capability %s failed to handle broadcast message", attempted, destination.Capability)
	}
	return first, nil
}

// errorResponse builds a raw JSON-RPC error response, or nil if the
// message carried no id (a notification never gets a reply).
func errorResponse(id *json.RawMessage, code int, message string) json.RawMessage {
	if id == nil {
		return nil
	}
	data, _ := json.Marshal(jsonrpc.NewErrorResponse(id, code, message))
	return data
}
