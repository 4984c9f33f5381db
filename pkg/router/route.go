// Package router implements the hub's message router: a value-set of routes
// plus a pattern matcher and fan-out engine, grounded directly on the
// original route.py/router.py semantics (route-type -> id/capability ->
// method-pattern filtering, first-match for requests, concurrent fan-out
// for notifications).
package router

import (
	"fmt"
	"strings"
)

// RouteType tags a RouteTarget's class.
type RouteType string

const (
	TypeServer     RouteType = "server"
	TypeClient     RouteType = "client"
	TypeAllServers RouteType = "all_servers"
	TypeAllClients RouteType = "all_clients"
	TypeCapability RouteType = "capability"
	TypeHub        RouteType = "hub"
)

// RouteTarget identifies an endpoint or class of endpoints. SERVER and
// CLIENT targets carry a TargetID; CAPABILITY targets carry a Capability
// path; the rest are singleton classes.
type RouteTarget struct {
	Type       RouteType
	TargetID   string
	Capability string
}

// Server builds a route target for one specific server.
func Server(id string) RouteTarget { return RouteTarget{Type: TypeServer, TargetID: id} }

// Client builds a route target for one specific client.
func Client(id string) RouteTarget { return RouteTarget{Type: TypeClient, TargetID: id} }

// AllServers is the broadcast target for every registered server.
func AllServers() RouteTarget { return RouteTarget{Type: TypeAllServers} }

// AllClients is the broadcast target for every connected client.
func AllClients() RouteTarget { return RouteTarget{Type: TypeAllClients} }

// CapabilityTarget builds a route target for every server advertising a
// capability path.
func CapabilityTarget(path string) RouteTarget { return RouteTarget{Type: TypeCapability, Capability: path} }

// Hub is the route target that short-circuits fan-out to the hub facade
// itself.
func Hub() RouteTarget { return RouteTarget{Type: TypeHub} }

// Validate enforces the per-type field requirements the original route
// target constructor raises on.
func (t RouteTarget) Validate() error {
	switch t.Type {
	case TypeServer, TypeClient:
		if t.TargetID == "" {
			return fmt.Errorf("target id is required for %s routes", t.Type)
		}
	case TypeCapability:
		if t.Capability == "" {
			return fmt.Errorf("capability is required for CAPABILITY routes")
		}
	}
	return nil
}

func (t RouteTarget) String() string {
	switch t.Type {
	case TypeServer:
		return "SERVER:" + t.TargetID
	case TypeClient:
		return "CLIENT:" + t.TargetID
	case TypeAllServers:
		return "ALL_SERVERS"
	case TypeAllClients:
		return "ALL_CLIENTS"
	case TypeCapability:
		return "CAPABILITY:" + t.Capability
	case TypeHub:
		return "HUB"
	default:
		return "UNKNOWN:" + string(t.Type)
	}
}

// Route is an immutable (source, destination, method-pattern) triple. A nil
// MethodPattern matches every method.
type Route struct {
	Source        RouteTarget
	Destination   RouteTarget
	MethodPattern *string
}

func (r Route) String() string {
	if r.MethodPattern != nil {
		return fmt.Sprintf("%s -> %s (%s)", r.Source, r.Destination, *r.MethodPattern)
	}
	return fmt.Sprintf("%s -> %s", r.Source, r.Destination)
}

// key is the canonical identity used for the route set's value semantics —
// two routes with equal source, destination, and pattern collapse to one.
func (r Route) key() string {
	pattern := ""
	if r.MethodPattern != nil {
		pattern = *r.MethodPattern
	}
	return r.Source.String() + "|" + r.Destination.String() + "|" + pattern
}

// MatchesMethod implements the matcher's four forms, checked in the same
// order as the original: exact, `/*`-suffix prefix, bare `*`-suffix prefix,
// then at most one embedded wildcard split into exactly two parts.
func (r Route) MatchesMethod(method string) bool {
	if r.MethodPattern == nil {
		return true
	}
	pattern := *r.MethodPattern

	if pattern == method {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		prefix := pattern[:len(pattern)-2]
		return strings.HasPrefix(method, prefix)
	}
	if strings.HasSuffix(pattern, "*") {
		prefix := pattern[:len(pattern)-1]
		return strings.HasPrefix(method, prefix)
	}
	if strings.Contains(pattern, "*") {
		parts := strings.Split(pattern, "*")
		if len(parts) == 2 {
			return strings.HasPrefix(method, parts[0]) && strings.HasSuffix(method, parts[1])
		}
	}
	return false
}
