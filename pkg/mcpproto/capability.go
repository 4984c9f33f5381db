package mcpproto

import "strings"

// Capabilities is the negotiated capability tree exchanged during
// initialize. It is a free-form nested object rather than a fixed struct so
// either side can advertise capability paths unknown to this engine (the
// hub only ever queries the paths it cares about).
type Capabilities map[string]any

// Has reports whether the dot-separated capability path is present and
// truthy. A path resolves to true if it names a boolean `true` leaf or any
// non-nil object/value along the way terminates in a present key. Before
// initialization completes, callers must treat every query as false — this
// type doesn't know about connection state, so the owning protocol gates
// that on its handshake state (ServerProtocol.Initialized, ClientProtocol.State).
func (c Capabilities) Has(path string) bool {
	if c == nil {
		return false
	}
	parts := strings.Split(path, ".")
	var cur any = map[string]any(c)
	for i, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return false
		}
		v, present := m[part]
		if !present {
			return false
		}
		if i == len(parts)-1 {
			switch t := v.(type) {
			case bool:
				return t
			case nil:
				return false
			default:
				return true
			}
		}
		cur = v
	}
	return false
}

// Set writes a truthy leaf at the dot-separated path, creating intermediate
// objects as needed. Used when building the hub's own advertised tree.
func (c Capabilities) Set(path string, value any) {
	parts := strings.Split(path, ".")
	cur := map[string]any(c)
	for i, part := range parts {
		if i == len(parts)-1 {
			cur[part] = value
			return
		}
		next, ok := cur[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[part] = next
		}
		cur = next
	}
}

// NewCapabilities builds an empty capability tree.
func NewCapabilities() Capabilities {
	return Capabilities{}
}
