package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/nexushq/nexushub/pkg/mcpproto"
	"github.com/nexushq/nexushub/pkg/transport"
)

// serverConnection owns one supervised server's process (if any), its
// transport, and its client-role MCP protocol engine. It implements the
// connect/initialize/disconnect/reconnect lifecycle the original's
// McpServerConnection exposes to the server manager.
type serverConnection struct {
	id     string
	reg    Registration
	logger *slog.Logger

	mu       sync.Mutex
	proc     *managedProcess
	httpTr   *transport.HTTPClientTransport
	protocol *mcpproto.ClientProtocol
	runCancel context.CancelFunc
	connected bool
}

func newServerConnection(reg Registration, logger *slog.Logger) *serverConnection {
	return &serverConnection{id: reg.ID, reg: reg, logger: logger}
}

// Connect starts the transport (spawning a process for stdio/container
// registrations) and the client protocol's inbound frame pump, but does
// not perform the MCP handshake — callers should follow with Initialize.
func (c *serverConnection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	var tr transport.Transport
	switch c.reg.Transport {
	case TransportStdio:
		proc := newManagedProcess(c.id, c.reg.Command, c.reg.WorkDir, c.reg.Env, c.logger)
		started, err := proc.Start(ctx)
		if err != nil {
			return fmt.Errorf("starting server process: %w", err)
		}
		c.proc = proc
		tr = started
	case TransportContainer:
		cproc, err := startContainerProcess(ctx, c.reg, c.logger)
		if err != nil {
			return fmt.Errorf("starting server container: %w", err)
		}
		tr = cproc
	case TransportHTTP:
		httpTr := transport.NewHTTPClient(c.reg.Endpoint, http.DefaultClient, c.logger)
		c.httpTr = httpTr
		tr = httpTr
	default:
		return fmt.Errorf("unknown transport kind: %s", c.reg.Transport)
	}

	c.protocol = mcpproto.NewClientProtocol(tr, mcpproto.ClientInfo{Name: "nexushub", Version: "1.0.0"}, c.logger)

	runCtx, cancel := context.WithCancel(context.Background())
	c.runCancel = cancel
	go c.protocol.Run(runCtx)

	c.connected = true
	return nil
}

// Initialize performs the MCP handshake against the already-connected
// transport.
func (c *serverConnection) Initialize(ctx context.Context, desired mcpproto.Capabilities) error {
	c.mu.Lock()
	protocol := c.protocol
	c.mu.Unlock()
	if protocol == nil {
		return fmt.Errorf("server %s is not connected", c.id)
	}
	return protocol.Initialize(ctx, desired, "", "")
}

// Protocol returns the client protocol engine for this server, or nil if
// not connected.
func (c *serverConnection) Protocol() *mcpproto.ClientProtocol {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.protocol
}

// Disconnect tears down the protocol engine and its transport, stopping
// the underlying process if one was started for it.
func (c *serverConnection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}

	if c.runCancel != nil {
		c.runCancel()
	}
	if c.protocol != nil {
		_ = c.protocol.Close()
	}
	if c.proc != nil {
		_ = c.proc.Stop(c.reg.StopTimeout)
	}

	c.protocol = nil
	c.proc = nil
	c.httpTr = nil
	c.connected = false
	return nil
}

// Reconnect disconnects (if connected) and connects again.
func (c *serverConnection) Reconnect(ctx context.Context, desired mcpproto.Capabilities) error {
	if err := c.Disconnect(); err != nil {
		return err
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Initialize(ctx, desired)
}

// Connected reports whether the transport/protocol is currently live.
func (c *serverConnection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// ProcessAlive reports whether the backing process (for stdio
// registrations) is still running. Non-process transports always report
// true while connected.
func (c *serverConnection) ProcessAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.proc == nil {
		return c.connected
	}
	return c.proc.Alive()
}

// ExitCode returns the backing process's exit code, or -1 if the server
// has no managed process (an HTTP or still-container registration) or the
// process has not yet exited.
func (c *serverConnection) ExitCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.proc == nil {
		return -1
	}
	return c.proc.ExitCode()
}
