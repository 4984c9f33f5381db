package nexusconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingPath_ReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.jsonc"))
	require.NoError(t, err)
	assert.Equal(t, Default().Network.AdminAddr, cfg.Network.AdminAddr)
}

func TestLoad_ParsesJSONC(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nexushub.jsonc")
	contents := `{
		// admin surface bind address
		"network": {
			"admin_addr": "0.0.0.0:9090",
		},
		"retry": {
			"max_retries": 5,
		},
	}`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9090", cfg.Network.AdminAddr)
	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	// Untouched fields keep their defaults.
	assert.Equal(t, Default().State.RolesPath, cfg.State.RolesPath)
}

func TestApplyEnvOverrides_TypeInference(t *testing.T) {
	cfg := Default()
	applyEnvOverrides(&cfg, []string{
		"NEXUS_NETWORK__ADMIN_ADDR=10.0.0.1:8080",
		"NEXUS_RETRY__MAX_RETRIES=7",
		"NEXUS_AUTH__TOKEN_LIFETIME=2h",
		"NEXUS_CORS__ORIGINS=[\"https://a\",\"https://b\"]",
		"NEXUS_LOGGING__COMPRESS=true",
		"IRRELEVANT=ignored",
	})

	assert.Equal(t, "10.0.0.1:8080", cfg.Network.AdminAddr)
	assert.Equal(t, 7, cfg.Retry.MaxRetries)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenLifetime)
	assert.Equal(t, []string{"https://a", "https://b"}, cfg.CORS.Origins)
	assert.True(t, cfg.Logging.Compress)
}

func TestApplyEnvOverrides_TracingEndpoint(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "", cfg.Tracing.OTLPEndpoint)
	applyEnvOverrides(&cfg, []string{"NEXUS_TRACING__OTLP_ENDPOINT=collector:4318"})
	assert.Equal(t, "collector:4318", cfg.Tracing.OTLPEndpoint)
}

func TestApplyEnvOverrides_MalformedValueLeavesFieldUnchanged(t *testing.T) {
	cfg := Default()
	before := cfg.Retry.MaxRetries
	applyEnvOverrides(&cfg, []string{"NEXUS_RETRY__MAX_RETRIES=not-a-number"})
	assert.Equal(t, before, cfg.Retry.MaxRetries)
}

func TestValidate_RejectsEmptyRequiredFields(t *testing.T) {
	cfg := Default()
	cfg.Network.AdminAddr = ""
	cfg.State.RolesPath = ""

	err := Validate(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network.admin_addr")
	assert.Contains(t, err.Error(), "state.roles_path")
}

func TestValidate_DefaultsAreValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, Validate(&cfg))
}
