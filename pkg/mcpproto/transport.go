package mcpproto

// Transport moves framed JSON-RPC messages between the engine and a peer.
// pkg/transport provides the stdio (Content-Length) and HTTP+SSE
// implementations; this interface is the seam the dispatcher depends on so
// neither role needs to know how its peer is actually reached.
type Transport interface {
	// Send writes one complete JSON-RPC message. Implementations must
	// preserve call order on the wire.
	Send(frame []byte) error

	// Frames returns the channel of inbound raw JSON-RPC messages. The
	// channel is closed when the transport can no longer deliver frames
	// (peer disconnected, read error, Close called).
	Frames() <-chan []byte

	// Close releases the transport's resources. Idempotent.
	Close() error
}
