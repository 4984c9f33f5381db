package nexusconfig

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ValidationError mirrors gridctl's pkg/config.ValidationError shape: a
// field name paired with what's wrong with it.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every failure from one Validate call instead of
// stopping at the first.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return "invalid configuration:\n  - " + strings.Join(msgs, "\n  - ")
}

// Validate checks cfg for the constraints the hub cannot safely run
// without: non-empty bind addresses, a non-negative retry count and token
// lifetime, and non-empty persisted-state paths.
func Validate(cfg *Config) error {
	var errs ValidationErrors

	if cfg.Network.AdminAddr == "" {
		errs = append(errs, ValidationError{"network.admin_addr", "is required"})
	}
	if cfg.Network.MCPAddr == "" {
		errs = append(errs, ValidationError{"network.mcp_addr", "is required"})
	}
	if cfg.Retry.MaxRetries < 0 {
		errs = append(errs, ValidationError{"retry.max_retries", "must be >= 0"})
	}
	if cfg.Auth.TokenLifetime < 0 {
		errs = append(errs, ValidationError{"auth.token_lifetime", "must be >= 0"})
	}
	if cfg.State.RegistryPath == "" {
		errs = append(errs, ValidationError{"state.registry_path", "is required"})
	}
	if cfg.State.TokensPath == "" {
		errs = append(errs, ValidationError{"state.tokens_path", "is required"})
	}
	if cfg.State.UsersPath == "" {
		errs = append(errs, ValidationError{"state.users_path", "is required"})
	}
	if cfg.State.RolesPath == "" {
		errs = append(errs, ValidationError{"state.roles_path", "is required"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func unmarshalStrict(strictJSON []byte, cfg *Config) error {
	return json.Unmarshal(strictJSON, cfg)
}
