package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nexushq/nexushub/internal/telemetry"
	"github.com/nexushq/nexushub/pkg/mcpproto"
)

var tracer = telemetry.Tracer("supervisor")

// defaultConnectDelay is how long startServer waits after spawning a child
// before attempting the MCP handshake, giving the child time to become
// ready.
const defaultConnectDelay = 2 * time.Second

// runtimeState is the observed status of one supervised server, exported
// to the hub facade for hub/status and hub/servers.
type runtimeState struct {
	Running   bool
	Connected bool
	Retries   int
	ExitCode  int
	ExitTime  time.Time
	LastError string
}

// Supervisor owns the registration catalog and the live connections for
// every supervised server, and runs the health-monitor loop that detects a
// dead process and auto-restarts it, bounded by MaxRetries/RetryDelay.
// Grounded on original_source/core/hub/server_manager.py's ServerManager.
type Supervisor struct {
	registry *Registry
	logger   *slog.Logger

	mu          sync.RWMutex
	connections map[string]*serverConnection
	states      map[string]*runtimeState

	desiredCaps  mcpproto.Capabilities
	connectDelay time.Duration

	running    bool
	stopMonitor context.CancelFunc
	monitorDone chan struct{}
}

// New creates a Supervisor backed by registry.
func New(registry *Registry, desiredCaps mcpproto.Capabilities, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		registry:     registry,
		logger:       logger,
		connections:  make(map[string]*serverConnection),
		states:       make(map[string]*runtimeState),
		desiredCaps:  desiredCaps,
		connectDelay: defaultConnectDelay,
	}
}

// Start begins the 1-second monitor loop.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	monitorCtx, cancel := context.WithCancel(ctx)
	s.stopMonitor = cancel
	s.monitorDone = make(chan struct{})
	s.mu.Unlock()

	go s.monitorLoop(monitorCtx)
}

// Stop halts the monitor loop and disconnects every supervised server.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.stopMonitor
	done := s.monitorDone
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	for _, id := range s.ServerIDs() {
		_ = s.StopServer(id)
	}
}

func (s *Supervisor) monitorLoop(ctx context.Context) {
	defer close(s.monitorDone)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkServers(ctx)
		}
	}
}

func (s *Supervisor) checkServers(ctx context.Context) {
	for _, reg := range s.registry.List() {
		conn := s.getConnection(reg.ID)
		if conn == nil || !conn.Connected() {
			continue
		}
		if conn.ProcessAlive() {
			continue
		}

		s.mu.Lock()
		state := s.states[reg.ID]
		if state == nil {
			state = &runtimeState{}
			s.states[reg.ID] = state
		}
		state.Running = false
		state.ExitCode = conn.ExitCode()
		state.ExitTime = time.Now()
		s.mu.Unlock()

		// Drop the dead connection so a restart can replace it and later
		// scans do not count the same exit again.
		_ = conn.Disconnect()

		s.logger.Warn("supervised server terminated", "server", reg.ID)

		if !reg.AutoRestart {
			continue
		}
		if state.Retries >= reg.MaxRetries {
			s.logger.Error("server exceeded max restart retries", "server", reg.ID, "retries", state.Retries)
			continue
		}
		state.Retries++
		delay := reg.RetryDelay
		if delay <= 0 {
			delay = 5 * time.Second
		}
		go s.delayedRestart(reg.ID, delay)
	}
}

func (s *Supervisor) delayedRestart(id string, delay time.Duration) {
	time.Sleep(delay)
	reg, ok := s.registry.Get(id)
	if !ok {
		return
	}
	if err := s.startServer(context.Background(), reg, false); err != nil {
		s.logger.Error("auto-restart failed", "server", id, "error", err)
	}
}

// StartServer connects, initializes, and tracks a server. Registering it
// first (via Registry.Add) is the caller's responsibility. Because this is
// always an explicit, operator- or boot-initiated start, it resets the
// server's retry counter; the monitor loop's own auto-restart goes through
// startServer directly so a crash loop's retry count keeps accumulating
// across automatic restarts instead of being cleared by each one.
func (s *Supervisor) StartServer(ctx context.Context, reg Registration) error {
	return s.startServer(ctx, reg, true)
}

func (s *Supervisor) startServer(ctx context.Context, reg Registration, resetRetries bool) error {
	ctx, span := tracer.Start(ctx, "supervisor.start_server", trace.WithAttributes(
		attribute.String("nexushub.server.id", reg.ID),
		attribute.String("nexushub.server.transport", string(reg.Transport)),
	))
	defer span.End()

	s.mu.Lock()
	if conn, ok := s.connections[reg.ID]; ok && conn.Connected() {
		s.mu.Unlock()
		return nil
	}
	conn := newServerConnection(reg, s.logger)
	s.connections[reg.ID] = conn
	if _, ok := s.states[reg.ID]; !ok {
		s.states[reg.ID] = &runtimeState{}
	}
	s.mu.Unlock()

	// Spawn failures are surfaced to the caller; the MCP handshake is not.
	// The child gets connectDelay to become ready, then the handshake runs
	// in the background so start never blocks on it.
	if err := conn.Connect(ctx); err != nil {
		s.recordError(reg.ID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("connecting to server %s: %w", reg.ID, err)
	}

	s.mu.Lock()
	s.states[reg.ID].Running = true
	s.states[reg.ID].Connected = false
	s.states[reg.ID].LastError = ""
	s.states[reg.ID].ExitCode = 0
	s.states[reg.ID].ExitTime = time.Time{}
	if resetRetries {
		s.states[reg.ID].Retries = 0
	}
	s.mu.Unlock()

	go s.initializeAfterDelay(conn, reg.ID)
	return nil
}

func (s *Supervisor) initializeAfterDelay(conn *serverConnection, id string) {
	if s.connectDelay > 0 {
		time.Sleep(s.connectDelay)
	}
	if !conn.Connected() {
		return
	}
	if err := conn.Initialize(context.Background(), s.desiredCaps); err != nil {
		s.recordError(id, err)
		s.logger.Warn("server initialization failed", "server", id, "error", err)
		return
	}
	s.mu.Lock()
	if st, ok := s.states[id]; ok {
		st.Connected = true
		st.LastError = ""
	}
	s.mu.Unlock()
}

func (s *Supervisor) recordError(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[id]; ok {
		st.LastError = err.Error()
	}
}

// StopServer disconnects a server and marks it stopped.
func (s *Supervisor) StopServer(id string) error {
	_, span := tracer.Start(context.Background(), "supervisor.stop_server", trace.WithAttributes(
		attribute.String("nexushub.server.id", id),
	))
	defer span.End()

	conn := s.getConnection(id)
	if conn == nil {
		return nil
	}
	if err := conn.Disconnect(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	s.mu.Lock()
	if st, ok := s.states[id]; ok {
		st.Running = false
		st.Connected = false
	}
	s.mu.Unlock()
	return nil
}

// RestartServer stops then starts a server using its registered
// configuration.
func (s *Supervisor) RestartServer(ctx context.Context, id string) error {
	reg, ok := s.registry.Get(id)
	if !ok {
		return fmt.Errorf("server not registered: %s", id)
	}
	if err := s.StopServer(id); err != nil {
		return err
	}
	return s.StartServer(ctx, reg)
}

// ReconnectServer disconnects a server's MCP connection, then connects and
// initializes it again. Disconnecting stops a stdio registration's process,
// so a stdio server comes back as a newly launched process; an HTTP server
// only has its transport re-established. A server with no connection yet
// is started instead.
func (s *Supervisor) ReconnectServer(ctx context.Context, id string) error {
	conn := s.getConnection(id)
	if conn == nil {
		reg, ok := s.registry.Get(id)
		if !ok {
			return fmt.Errorf("server not registered: %s", id)
		}
		return s.StartServer(ctx, reg)
	}
	return conn.Reconnect(ctx, s.desiredCaps)
}

func (s *Supervisor) getConnection(id string) *serverConnection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connections[id]
}

// Connection returns the client protocol engine for a connected server,
// for wiring into the router's SERVER/ALL_SERVERS/CAPABILITY destination
// handlers.
func (s *Supervisor) Connection(id string) (*mcpproto.ClientProtocol, bool) {
	conn := s.getConnection(id)
	if conn == nil {
		return nil, false
	}
	protocol := conn.Protocol()
	return protocol, protocol != nil
}

// ServerIDs returns every registered server id.
func (s *Supervisor) ServerIDs() []string {
	regs := s.registry.List()
	ids := make([]string, len(regs))
	for i, reg := range regs {
		ids[i] = reg.ID
	}
	return ids
}

// Status returns the observed runtime state for a server.
func (s *Supervisor) Status(id string) (running, connected bool, retries int, lastError string, exitCode int, exitTime time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[id]
	if !ok {
		return false, false, 0, "", 0, time.Time{}
	}
	return st.Running, st.Connected, st.Retries, st.LastError, st.ExitCode, st.ExitTime
}
