package hub

import (
	"context"
	"encoding/json"

	"github.com/nexushq/nexushub/pkg/jsonrpc"
	"github.com/nexushq/nexushub/pkg/router"
	"github.com/nexushq/nexushub/pkg/security"
)

// statusResult is the response payload for hub/status.
type statusResult struct {
	Status         string `json:"status"`
	ServerCount    int    `json:"server_count"`
	ClientCount    int    `json:"client_count"`
	McpServerCount int    `json:"mcp_server_count"`
	McpClientCount int    `json:"mcp_client_count"`
}

// serverStatus is one entry of hub/servers's result.
type serverStatus struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Transport string `json:"transport"`
	Running   bool   `json:"running"`
	Connected bool   `json:"connected"`
	Retries   int    `json:"retries"`
	LastError string `json:"last_error,omitempty"`
	ExitCode  int    `json:"exit_code,omitempty"`
	ExitTime  int64  `json:"exit_time,omitempty"`
}

// clientStatus is one entry of hub/clients's result.
type clientStatus struct {
	ID          string   `json:"id"`
	Status      string   `json:"status"`
	Servers     []string `json:"servers"`
	ConnectedAt int64    `json:"connect_time"`
}

type loginParams struct {
	Provider    string               `json:"provider"`
	Credentials security.Credentials `json:"credentials"`
}

type logoutParams struct {
	Token string `json:"token"`
}

type validateParams struct {
	Token string `json:"token"`
}

// handleHubMessage dispatches a message whose destination is the hub
// itself. Grounded on manager.py's _handle_hub_directed_message.
func (h *Hub) handleHubMessage(ctx context.Context, message json.RawMessage, _, _ router.RouteTarget) (json.RawMessage, error) {
	env := peekEnvelope(message)
	if env.Method == "" {
		return errorResponse(env.ID, jsonrpc.InvalidRequest, "missing method"), nil
	}

	var params json.RawMessage
	var full struct {
		Params json.RawMessage `json:"params"`
	}
	_ = json.Unmarshal(message, &full)
	params = full.Params

	switch env.Method {
	case "hub/status":
		return h.respond(env.ID, h.status())
	case "hub/servers":
		return h.respond(env.ID, map[string]any{"servers": h.serverStatuses()})
	case "hub/clients":
		return h.respond(env.ID, map[string]any{"clients": h.clientStatuses()})
	case "auth/login":
		return h.handleLogin(env.ID, params)
	case "auth/logout":
		return h.handleLogout(env.ID, params)
	case "auth/validate":
		return h.handleValidate(env.ID, params)
	default:
		h.logger.Warn("unsupported hub method", "method", env.Method)
		return errorResponse(env.ID, jsonrpc.MethodNotFound, "unsupported hub method: "+env.Method), nil
	}
}

func (h *Hub) status() statusResult {
	connectedServers := 0
	for _, id := range h.supervisor.ServerIDs() {
		if _, ok := h.supervisor.Connection(id); ok {
			connectedServers++
		}
	}

	statusStr := "stopped"
	if h.Running() {
		statusStr = "running"
	}

	return statusResult{
		Status:         statusStr,
		ServerCount:    len(h.registry.List()),
		ClientCount:    h.clients.Count(),
		McpServerCount: connectedServers,
		McpClientCount: h.clients.ConnectedCount(),
	}
}

func (h *Hub) serverStatuses() []serverStatus {
	regs := h.registry.List()
	out := make([]serverStatus, 0, len(regs))
	for _, reg := range regs {
		running, connected, retries, lastErr, exitCode, exitTime := h.supervisor.Status(reg.ID)
		var exitTimeUnix int64
		if !exitTime.IsZero() {
			exitTimeUnix = exitTime.Unix()
		}
		out = append(out, serverStatus{
			ID:        reg.ID,
			Name:      reg.Name,
			Transport: string(reg.Transport),
			Running:   running,
			Connected: connected,
			Retries:   retries,
			LastError: lastErr,
			ExitCode:  exitCode,
			ExitTime:  exitTimeUnix,
		})
	}
	return out
}

func (h *Hub) clientStatuses() []clientStatus {
	all := h.clients.List()
	out := make([]clientStatus, 0, len(all))
	for _, c := range all {
		servers := make([]string, 0, len(c.Servers))
		for id := range c.Servers {
			servers = append(servers, id)
		}
		out = append(out, clientStatus{
			ID:          c.ID,
			Status:      string(c.Status),
			Servers:     servers,
			ConnectedAt: c.ConnectedAt.Unix(),
		})
	}
	return out
}

func (h *Hub) handleLogin(id *json.RawMessage, params json.RawMessage) (json.RawMessage, error) {
	var p loginParams
	_ = json.Unmarshal(params, &p)

	userInfo, ok := h.auth.Authenticate(p.Credentials, p.Provider)
	if !ok {
		return errorResponse(id, jsonrpc.ProtocolError, "authentication failed"), nil
	}

	token, err := h.auth.GenerateToken(userInfo, p.Provider)
	if err != nil {
		return errorResponse(id, jsonrpc.InternalError, err.Error()), nil
	}

	return h.respond(id, map[string]any{"token": token, "user": userInfo})
}

func (h *Hub) handleLogout(id *json.RawMessage, params json.RawMessage) (json.RawMessage, error) {
	var p logoutParams
	_ = json.Unmarshal(params, &p)
	if p.Token == "" {
		return errorResponse(id, jsonrpc.InvalidParams, "missing token parameter"), nil
	}
	success := h.auth.RevokeToken(p.Token, "")
	return h.respond(id, map[string]any{"success": success})
}

func (h *Hub) handleValidate(id *json.RawMessage, params json.RawMessage) (json.RawMessage, error) {
	var p validateParams
	_ = json.Unmarshal(params, &p)
	if p.Token == "" {
		return errorResponse(id, jsonrpc.InvalidParams, "missing token parameter"), nil
	}
	userInfo, ok := h.auth.ValidateToken(p.Token, "")
	if !ok {
		return h.respond(id, map[string]any{"valid": false})
	}
	return h.respond(id, map[string]any{"valid": true, "user": userInfo})
}

func (h *Hub) respond(id *json.RawMessage, result any) (json.RawMessage, error) {
	data, err := json.Marshal(jsonrpc.NewSuccessResponse(id, result))
	if err != nil {
		return nil, err
	}
	return data, nil
}
