package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "nexushub.jsonc")
	contents := `{
		"state": {
			"dir": "` + dir + `",
			"tokens_path": "` + filepath.Join(dir, "tokens.json") + `"
		}
	}`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestRunTokenIssueAndRevoke(t *testing.T) {
	dir := t.TempDir()
	origConfigPath, origUsername := configPath, tokenIssueUsername
	defer func() { configPath, tokenIssueUsername = origConfigPath, origUsername }()

	configPath = writeTestConfig(t, dir)
	tokenIssueUsername = "alice"

	require.NoError(t, runTokenIssue())

	data, err := os.ReadFile(filepath.Join(dir, "tokens.json"))
	require.NoError(t, err)

	var persisted map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &persisted))
	require.Len(t, persisted, 1)

	var token string
	for k := range persisted {
		token = k
	}
	require.NotEmpty(t, token)

	require.NoError(t, runTokenRevoke(token))
	assert.Error(t, runTokenRevoke("nxs_does_not_exist"))
}

func TestRunTokenRevoke_UnknownToken(t *testing.T) {
	dir := t.TempDir()
	origConfigPath := configPath
	defer func() { configPath = origConfigPath }()

	configPath = writeTestConfig(t, dir)

	err := runTokenRevoke("nxs_nope")
	assert.ErrorContains(t, err, "token not found")
}
