package httpapi

import (
	"net/http"
	"time"

	"github.com/nexushq/nexushub/pkg/supervisor"
)

type serverDTO struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Transport   string            `json:"transport"`
	Running     bool              `json:"running"`
	Connected   bool              `json:"connected"`
	Retries     int               `json:"retries"`
	LastError   string            `json:"last_error,omitempty"`
	ExitCode    int               `json:"exit_code,omitempty"`
	ExitTime    int64             `json:"exit_time,omitempty"`
	Command     []string          `json:"command,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	AutoStart   bool              `json:"auto_start"`
	AutoRestart bool              `json:"auto_restart"`
	MaxRetries  int               `json:"max_retries"`
}

func (s *Server) dtoFor(reg supervisor.Registration) serverDTO {
	running, connected, retries, lastErr, exitCode, exitTime := s.hub.Supervisor().Status(reg.ID)
	var exitTimeUnix int64
	if !exitTime.IsZero() {
		exitTimeUnix = exitTime.Unix()
	}
	return serverDTO{
		ID:          reg.ID,
		Name:        reg.Name,
		Transport:   string(reg.Transport),
		Running:     running,
		Connected:   connected,
		Retries:     retries,
		LastError:   lastErr,
		ExitCode:    exitCode,
		ExitTime:    exitTimeUnix,
		Command:     reg.Command,
		Endpoint:    reg.Endpoint,
		Env:         reg.Env,
		AutoStart:   reg.AutoStart,
		AutoRestart: reg.AutoRestart,
		MaxRetries:  reg.MaxRetries,
	}
}

func (s *Server) handleServersList(w http.ResponseWriter, r *http.Request) {
	regs := s.hub.Registry().List()
	out := make([]serverDTO, 0, len(regs))
	for _, reg := range regs {
		out = append(out, s.dtoFor(reg))
	}
	writeJSON(w, http.StatusOK, map[string]any{"servers": out})
}

type createServerRequest struct {
	ID          string            `json:"id" validate:"required"`
	Name        string            `json:"name" validate:"required"`
	Transport   string            `json:"transport" validate:"required,oneof=stdio http container"`
	Command     []string          `json:"command,omitempty"`
	WorkDir     string            `json:"work_dir,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`
	AutoStart   bool              `json:"auto_start"`
	AutoRestart bool              `json:"auto_restart"`
	MaxRetries  int               `json:"max_retries"`
	RetryDelay  time.Duration     `json:"retry_delay"`
}

func (s *Server) handleServerCreate(w http.ResponseWriter, r *http.Request) {
	var req createServerRequest
	if !decodeAndValidate(w, r, s.validate, &req) {
		return
	}

	reg := supervisor.Registration{
		ID:          req.ID,
		Name:        req.Name,
		Transport:   supervisor.TransportKind(req.Transport),
		Command:     req.Command,
		WorkDir:     req.WorkDir,
		Env:         req.Env,
		Endpoint:    req.Endpoint,
		AutoStart:   req.AutoStart,
		AutoRestart: req.AutoRestart,
		MaxRetries:  req.MaxRetries,
		RetryDelay:  req.RetryDelay,
	}
	if err := s.hub.Registry().Add(reg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.dtoFor(reg))
}

func (s *Server) lookupServer(w http.ResponseWriter, r *http.Request) (supervisor.Registration, bool) {
	id := urlParam(r, "serverID")
	reg, ok := s.hub.Registry().Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown server: "+id)
		return supervisor.Registration{}, false
	}
	return reg, true
}

func (s *Server) handleServerGet(w http.ResponseWriter, r *http.Request) {
	reg, ok := s.lookupServer(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.dtoFor(reg))
}

func (s *Server) handleServerDelete(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "serverID")
	if _, ok := s.hub.Registry().Get(id); !ok {
		writeError(w, http.StatusNotFound, "unknown server: "+id)
		return
	}
	_ = s.hub.Supervisor().StopServer(id)
	if err := s.hub.Registry().Remove(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleServerStart(w http.ResponseWriter, r *http.Request) {
	reg, ok := s.lookupServer(w, r)
	if !ok {
		return
	}
	if err := s.hub.Supervisor().StartServer(r.Context(), reg); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.dtoFor(reg))
}

func (s *Server) handleServerStop(w http.ResponseWriter, r *http.Request) {
	reg, ok := s.lookupServer(w, r)
	if !ok {
		return
	}
	if err := s.hub.Supervisor().StopServer(reg.ID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.dtoFor(reg))
}

func (s *Server) handleServerRestart(w http.ResponseWriter, r *http.Request) {
	reg, ok := s.lookupServer(w, r)
	if !ok {
		return
	}
	if err := s.hub.Supervisor().RestartServer(r.Context(), reg.ID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.dtoFor(reg))
}

// handleServerConnect re-establishes the MCP session via ReconnectServer
// (for a stdio server that stops the process and launches a new one),
// distinguishing "connect" from "start" the way spec.md's
// action list keeps them as separate verbs.
func (s *Server) handleServerConnect(w http.ResponseWriter, r *http.Request) {
	reg, ok := s.lookupServer(w, r)
	if !ok {
		return
	}
	if err := s.hub.Supervisor().ReconnectServer(r.Context(), reg.ID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.dtoFor(reg))
}

func (s *Server) handleServerDisconnect(w http.ResponseWriter, r *http.Request) {
	reg, ok := s.lookupServer(w, r)
	if !ok {
		return
	}
	if err := s.hub.Supervisor().StopServer(reg.ID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.dtoFor(reg))
}

func (s *Server) handleServerReconnect(w http.ResponseWriter, r *http.Request) {
	reg, ok := s.lookupServer(w, r)
	if !ok {
		return
	}
	if err := s.hub.Supervisor().ReconnectServer(r.Context(), reg.ID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.dtoFor(reg))
}

func (s *Server) serverConnection(w http.ResponseWriter, r *http.Request) (*Server, string, bool) {
	id := urlParam(r, "serverID")
	if _, ok := s.hub.Supervisor().Connection(id); !ok {
		writeError(w, http.StatusServiceUnavailable, "server not connected: "+id)
		return nil, "", false
	}
	return s, id, true
}

func (s *Server) handleServerResources(w http.ResponseWriter, r *http.Request) {
	_, id, ok := s.serverConnection(w, r)
	if !ok {
		return
	}
	protocol, _ := s.hub.Supervisor().Connection(id)
	result, rpcErr := protocol.ListResources(r.Context())
	if rpcErr != nil {
		writeError(w, http.StatusInternalServerError, rpcErr.Message)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleServerResourceRead(w http.ResponseWriter, r *http.Request) {
	_, id, ok := s.serverConnection(w, r)
	if !ok {
		return
	}
	protocol, _ := s.hub.Supervisor().Connection(id)
	result, rpcErr := protocol.ReadResource(r.Context(), urlParam(r, "uri"))
	if rpcErr != nil {
		writeError(w, http.StatusNotFound, rpcErr.Message)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleServerTools(w http.ResponseWriter, r *http.Request) {
	_, id, ok := s.serverConnection(w, r)
	if !ok {
		return
	}
	protocol, _ := s.hub.Supervisor().Connection(id)
	result, rpcErr := protocol.ListTools(r.Context())
	if rpcErr != nil {
		writeError(w, http.StatusInternalServerError, rpcErr.Message)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type toolCallRequest struct {
	Arguments map[string]any `json:"arguments"`
}

func (s *Server) handleServerToolCall(w http.ResponseWriter, r *http.Request) {
	_, id, ok := s.serverConnection(w, r)
	if !ok {
		return
	}
	var req toolCallRequest
	if !decodeAndValidate(w, r, s.validate, &req) {
		return
	}
	protocol, _ := s.hub.Supervisor().Connection(id)
	result, rpcErr := protocol.CallTool(r.Context(), urlParam(r, "name"), req.Arguments)
	if rpcErr != nil {
		writeError(w, http.StatusNotFound, rpcErr.Message)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleServerPrompts(w http.ResponseWriter, r *http.Request) {
	_, id, ok := s.serverConnection(w, r)
	if !ok {
		return
	}
	protocol, _ := s.hub.Supervisor().Connection(id)
	result, rpcErr := protocol.ListPrompts(r.Context())
	if rpcErr != nil {
		writeError(w, http.StatusInternalServerError, rpcErr.Message)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type sampleRequest struct {
	Messages    []map[string]any `json:"messages" validate:"required"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Temperature float64          `json:"temperature,omitempty"`
}

func (s *Server) handleServerSample(w http.ResponseWriter, r *http.Request) {
	// A supervised server is the completion target for sampling only when
	// acting as a client of the hub (reverse direction); the common case is
	// sampling from a connected remote MCP client, handled in clients.go.
	// This endpoint exists for symmetry and future server-initiated setups.
	writeError(w, http.StatusNotImplemented, "sampling a supervised server is not supported; use /api/mcp-clients/{id}/sample")
}
