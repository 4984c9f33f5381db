// Package supervisor owns the lifecycle of supervised MCP servers: the
// persisted registration catalog, the process/container launchers, the
// per-server MCP client connection, and the health-monitor loop that
// auto-restarts a server process that dies.
package supervisor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// TransportKind selects how the hub reaches a supervised server.
type TransportKind string

const (
	TransportStdio     TransportKind = "stdio"
	TransportHTTP      TransportKind = "http"
	TransportContainer TransportKind = "container"
)

// Registration is the durable configuration for one supervised server.
type Registration struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Transport TransportKind     `json:"transport"`
	Command   []string          `json:"command,omitempty"`
	WorkDir   string            `json:"work_dir,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	Endpoint  string            `json:"endpoint,omitempty"`

	// ContainerImage launches the server inside a container instead of a
	// host process; Command becomes the container entrypoint override.
	ContainerImage string `json:"container_image,omitempty"`

	// ContainerPort is the container-side port spec (e.g. "8080/tcp") an
	// http-speaking container server listens on. When set, the supervisor
	// publishes it to an ephemeral host port instead of attaching stdio.
	ContainerPort string `json:"container_port,omitempty"`

	AutoStart   bool          `json:"auto_start"`
	AutoRestart bool          `json:"auto_restart"`
	MaxRetries  int           `json:"max_retries"`
	RetryDelay  time.Duration `json:"retry_delay"`

	// StopTimeout bounds how long a graceful SIGTERM is given to land before
	// Stop escalates to SIGKILL. Zero means defaultGracefulStopTimeout (30s).
	StopTimeout time.Duration `json:"stop_timeout,omitempty"`
}

// Registry persists the server registration catalog to a single JSON file
// via temp-then-rename, mirroring the original's process registry
// load/save.
type Registry struct {
	mu      sync.RWMutex
	path    string
	entries map[string]Registration
	logger  *slog.Logger
}

// NewRegistry loads path (if present) into a fresh registry.
func NewRegistry(path string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{path: path, entries: make(map[string]Registration), logger: logger}
	r.load()
	return r
}

// Reload re-reads the registry file from disk, replacing the in-memory
// catalog wholesale. Used when an operator hand-edits the registry file
// out of band; a hub-initiated Add/Remove never needs it since those
// already keep memory and disk in sync.
func (r *Registry) Reload() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]Registration)
	r.load()
}

func (r *Registry) load() {
	if r.path == "" {
		return
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Error("failed to load server registry", "path", r.path, "error", err)
		}
		return
	}
	if err := json.Unmarshal(data, &r.entries); err != nil {
		r.logger.Error("failed to parse server registry", "path", r.path, "error", err)
		return
	}
	r.logger.Info("loaded server registry", "path", r.path, "count", len(r.entries))
}

func (r *Registry) save() error {
	if r.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(r.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling server registry: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing temp registry file: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("renaming temp registry file: %w", err)
	}
	return nil
}

// Add registers (or replaces) a server and persists the catalog.
func (r *Registry) Add(reg Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[reg.ID] = reg
	return r.save()
}

// Remove deletes a registration and persists the catalog.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return fmt.Errorf("server not registered: %s", id)
	}
	delete(r.entries, id)
	return r.save()
}

// Get returns a registration by id.
func (r *Registry) Get(id string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[id]
	return reg, ok
}

// List returns every registration.
func (r *Registry) List() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Registration, 0, len(r.entries))
	for _, reg := range r.entries {
		out = append(out, reg)
	}
	return out
}
