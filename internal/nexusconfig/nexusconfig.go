// Package nexusconfig loads the hub's startup configuration from a single
// JSONC file (comments and trailing commas permitted, standardized to
// strict JSON via tailscale/hujson before unmarshaling) and applies
// NEXUS_<SECTION>__<KEY> environment overrides on top, grounded on
// gridctl's pkg/config loader pipeline (load -> expand -> default ->
// validate).
package nexusconfig

import (
	"fmt"
	"os"
	"time"

	"github.com/tailscale/hujson"
)

// Config is the hub's full startup configuration.
type Config struct {
	Network Network `json:"network"`
	Retry   Retry   `json:"retry"`
	CORS    CORS    `json:"cors"`
	Auth    Auth    `json:"auth"`
	State   State   `json:"state"`
	Logging Logging `json:"logging"`
	Tracing Tracing `json:"tracing"`
}

// Network carries the bind addresses for the two listening surfaces: the
// administrative REST API and the stdio/HTTP+SSE MCP-facing transport.
type Network struct {
	AdminAddr string `json:"admin_addr"`
	MCPAddr   string `json:"mcp_addr"`
}

// Retry is the default auto-restart policy applied to a server registration
// that doesn't specify its own.
type Retry struct {
	MaxRetries int           `json:"max_retries"`
	RetryDelay time.Duration `json:"retry_delay"`
}

// CORS controls which origins the administrative API and SSE stream accept.
type CORS struct {
	Origins []string `json:"origins"`
}

// Auth carries default auth provider settings.
type Auth struct {
	TokenLifetime time.Duration `json:"token_lifetime"`
}

// State holds the filesystem paths for the four persisted-state files.
type State struct {
	Dir         string `json:"dir"`
	RegistryPath string `json:"registry_path"`
	TokensPath  string `json:"tokens_path"`
	UsersPath   string `json:"users_path"`
	RolesPath   string `json:"roles_path"`
}

// Logging carries the structured logging setup handed to internal/nexuslog.
type Logging struct {
	Level     string `json:"level"`
	Format    string `json:"format"`
	FilePath  string `json:"file_path"`
	MaxSizeMB int    `json:"max_size_mb"`
	MaxBackups int   `json:"max_backups"`
	MaxAgeDays int   `json:"max_age_days"`
	Compress  bool   `json:"compress"`
}

// Tracing carries the OTLP exporter endpoint for span export. An empty
// OTLPEndpoint keeps the hub's tracer provider a no-op, per SPEC_FULL.md's
// "configured to no-op unless an OTLP endpoint is configured" default.
type Tracing struct {
	OTLPEndpoint string `json:"otlp_endpoint"`
}

// Default returns a Config with every field set to a usable default, the
// way gridctl's SetDefaults seeds a topology before validation.
func Default() Config {
	return Config{
		Network: Network{
			AdminAddr: "127.0.0.1:8787",
			MCPAddr:   "127.0.0.1:8788",
		},
		Retry: Retry{
			MaxRetries: 3,
			RetryDelay: 2 * time.Second,
		},
		CORS: CORS{
			Origins: []string{"*"},
		},
		Auth: Auth{
			TokenLifetime: 24 * time.Hour,
		},
		State: State{
			Dir:          "./data",
			RegistryPath: "./data/servers.json",
			TokensPath:   "./data/tokens.json",
			UsersPath:    "./data/users.json",
			RolesPath:    "./data/roles.json",
		},
		Logging: Logging{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
	}
}

// Load reads path as JSONC, standardizes it to strict JSON, unmarshals over
// a Default(), then applies NEXUS_<SECTION>__<KEY> environment overrides.
// A missing path is not an error: the hub runs on defaults plus whatever
// environment overrides are set.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else {
			standardized, err := hujson.Standardize(raw)
			if err != nil {
				return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
			}
			if err := unmarshalStrict(standardized, &cfg); err != nil {
				return Config{}, fmt.Errorf("decoding config %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(&cfg, os.Environ())

	if err := Validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
