package httpapi

import (
	"net/http"

	"github.com/nexushq/nexushub/pkg/router"
)

type routeTargetDTO struct {
	Type       string `json:"type" validate:"required"`
	TargetID   string `json:"target_id,omitempty"`
	Capability string `json:"capability,omitempty"`
}

func (d routeTargetDTO) toTarget() router.RouteTarget {
	return router.RouteTarget{
		Type:       router.RouteType(d.Type),
		TargetID:   d.TargetID,
		Capability: d.Capability,
	}
}

func fromTarget(t router.RouteTarget) routeTargetDTO {
	return routeTargetDTO{Type: string(t.Type), TargetID: t.TargetID, Capability: t.Capability}
}

type routeDTO struct {
	Source        routeTargetDTO `json:"source" validate:"required"`
	Destination   routeTargetDTO `json:"destination" validate:"required"`
	MethodPattern string         `json:"method_pattern,omitempty"`
}

func (d routeDTO) toRoute() router.Route {
	route := router.Route{
		Source:      d.Source.toTarget(),
		Destination: d.Destination.toTarget(),
	}
	if d.MethodPattern != "" {
		pattern := d.MethodPattern
		route.MethodPattern = &pattern
	}
	return route
}

func (s *Server) handleRoutesList(w http.ResponseWriter, r *http.Request) {
	routes := s.hub.Router().GetRoutes()
	out := make([]routeDTO, 0, len(routes))
	for _, rt := range routes {
		dto := routeDTO{
			Source:      fromTarget(rt.Source),
			Destination: fromTarget(rt.Destination),
		}
		if rt.MethodPattern != nil {
			dto.MethodPattern = *rt.MethodPattern
		}
		out = append(out, dto)
	}
	writeJSON(w, http.StatusOK, map[string]any{"routes": out})
}

// handleRouteAdd registers a new route. Source and destination must both be
// supplied explicitly by the caller — the hub never infers a message's
// origin, matching how the original REST handler treated routing as a
// caller-supplied decision rather than something derived from connection
// state.
func (s *Server) handleRouteAdd(w http.ResponseWriter, r *http.Request) {
	var req routeDTO
	if !decodeAndValidate(w, r, s.validate, &req) {
		return
	}
	if err := s.hub.Router().AddRoute(req.toRoute()); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "added"})
}

func (s *Server) handleRouteRemove(w http.ResponseWriter, r *http.Request) {
	var req routeDTO
	if !decodeAndValidate(w, r, s.validate, &req) {
		return
	}
	s.hub.Router().RemoveRoute(req.toRoute())
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

type routeMessageRequest struct {
	Source  routeTargetDTO `json:"source" validate:"required"`
	Message map[string]any `json:"message" validate:"required"`
}

// handleRouteMessage injects an arbitrary JSON-RPC envelope into the router
// as though it arrived from the given source, returning whatever reply (if
// any) the matching destination produced.
func (s *Server) handleRouteMessage(w http.ResponseWriter, r *http.Request) {
	var req routeMessageRequest
	if !decodeAndValidate(w, r, s.validate, &req) {
		return
	}
	raw, err := marshalMessage(req.Message)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reply := s.hub.Router().RouteMessage(r.Context(), raw, req.Source.toTarget())
	if reply == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "delivered"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(reply)
}
