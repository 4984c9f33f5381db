package httpapi

import (
	"fmt"
	"net/http"

	"github.com/nexushq/nexushub/pkg/mcpproto"
	"github.com/nexushq/nexushub/pkg/transport"
)

type clientDTO struct {
	ID          string   `json:"id"`
	Status      string   `json:"status"`
	Servers     []string `json:"servers"`
	ConnectedAt int64    `json:"connected_at"`
}

func (s *Server) handleClientsList(w http.ResponseWriter, r *http.Request) {
	all := s.hub.Clients().List()
	out := make([]clientDTO, 0, len(all))
	for _, c := range all {
		servers := make([]string, 0, len(c.Servers))
		for id := range c.Servers {
			servers = append(servers, id)
		}
		out = append(out, clientDTO{
			ID:          c.ID,
			Status:      string(c.Status),
			Servers:     servers,
			ConnectedAt: c.ConnectedAt.Unix(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": out})
}

type createClientRequest struct {
	TransportType string `json:"transport_type"`
	TransportArgs struct {
		Host string `json:"host"`
		Port int    `json:"port" validate:"omitempty,min=1,max=65535"`
	} `json:"transport_args"`
}

// handleClientCreate dials out to a remote MCP client endpoint and registers
// the resulting connection, returning the fresh client id.
func (s *Server) handleClientCreate(w http.ResponseWriter, r *http.Request) {
	var req createClientRequest
	if !decodeAndValidate(w, r, s.validate, &req) {
		return
	}
	if req.TransportType == "" {
		req.TransportType = "http"
	}
	if req.TransportType != "http" {
		writeError(w, http.StatusBadRequest, "unsupported transport type: "+req.TransportType)
		return
	}
	host := req.TransportArgs.Host
	if host == "" {
		host = "localhost"
	}
	port := req.TransportArgs.Port
	if port == 0 {
		port = 8000
	}

	tr := transport.NewHTTPClient(fmt.Sprintf("http://%s:%d", host, port), nil, s.logger)
	client, err := s.hub.ConnectRemoteClient(r.Context(), tr)
	if err != nil {
		_ = tr.Close()
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"client_id": client.ID})
}

func (s *Server) handleClientDisconnectAll(w http.ResponseWriter, r *http.Request) {
	var failed []string
	for _, c := range s.hub.Clients().List() {
		if err := s.hub.Clients().Disconnect(c.ID); err != nil {
			failed = append(failed, c.ID)
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusOK, map[string]any{"status": "partial", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

func (s *Server) lookupClient(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := urlParam(r, "clientID")
	if _, ok := s.hub.Clients().Get(id); !ok {
		writeError(w, http.StatusNotFound, "unknown client: "+id)
		return "", false
	}
	return id, true
}

func (s *Server) handleClientGet(w http.ResponseWriter, r *http.Request) {
	id, ok := s.lookupClient(w, r)
	if !ok {
		return
	}
	c, _ := s.hub.Clients().Get(id)
	servers := make([]string, 0, len(c.Servers))
	for sid := range c.Servers {
		servers = append(servers, sid)
	}
	writeJSON(w, http.StatusOK, clientDTO{
		ID:          c.ID,
		Status:      string(c.Status),
		Servers:     servers,
		ConnectedAt: c.ConnectedAt.Unix(),
	})
}

func (s *Server) handleClientDisconnect(w http.ResponseWriter, r *http.Request) {
	id, ok := s.lookupClient(w, r)
	if !ok {
		return
	}
	if err := s.hub.Clients().Disconnect(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

type notifyResourceRequest struct {
	URI string `json:"uri" validate:"required"`
}

func (s *Server) handleNotifyResourceUpdated(w http.ResponseWriter, r *http.Request) {
	id, ok := s.lookupClient(w, r)
	if !ok {
		return
	}
	var req notifyResourceRequest
	if !decodeAndValidate(w, r, s.validate, &req) {
		return
	}
	sent := s.hub.Clients().NotifyResourceUpdated(id, req.URI)
	writeJSON(w, http.StatusOK, map[string]bool{"sent": sent})
}

func (s *Server) handleNotifyResourcesChanged(w http.ResponseWriter, r *http.Request) {
	id, ok := s.lookupClient(w, r)
	if !ok {
		return
	}
	sent := s.hub.Clients().NotifyResourcesChanged(id)
	writeJSON(w, http.StatusOK, map[string]bool{"sent": sent})
}

func (s *Server) handleNotifyToolsChanged(w http.ResponseWriter, r *http.Request) {
	id, ok := s.lookupClient(w, r)
	if !ok {
		return
	}
	sent := s.hub.Clients().NotifyToolsChanged(id)
	writeJSON(w, http.StatusOK, map[string]bool{"sent": sent})
}

func (s *Server) handleNotifyPromptsChanged(w http.ResponseWriter, r *http.Request) {
	id, ok := s.lookupClient(w, r)
	if !ok {
		return
	}
	sent := s.hub.Clients().NotifyPromptsChanged(id)
	writeJSON(w, http.StatusOK, map[string]bool{"sent": sent})
}

// handleClientSample asks a connected remote client to perform an LLM
// completion on the hub's behalf, per spec.md's client-initiated sampling
// flow (the inverse of a server asking its own client to sample).
func (s *Server) handleClientSample(w http.ResponseWriter, r *http.Request) {
	id, ok := s.lookupClient(w, r)
	if !ok {
		return
	}
	var req sampleRequest
	if !decodeAndValidate(w, r, s.validate, &req) {
		return
	}

	messages := make([]mcpproto.SamplingMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		role, _ := m["role"].(string)
		text, _ := m["content"].(string)
		messages = append(messages, mcpproto.SamplingMessage{
			Role:    role,
			Content: mcpproto.NewTextContent(text),
		})
	}

	result, err := s.hub.Clients().Sample(r.Context(), id, mcpproto.SamplingParams{
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}
