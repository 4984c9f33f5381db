package mcpproto

// State is the connection lifecycle state of a protocol instance (§3 of the
// governing design: server connections and remote client connections share
// this state machine).
type State string

const (
	Disconnected         State = "disconnected"
	Connecting           State = "connecting"
	Connected            State = "connected"
	Initializing         State = "initializing"
	Ready                State = "ready"
	ConnectionFailed     State = "connection_failed"
	InitializationFailed State = "initialization_failed"
	Error                State = "error"
)
