package supervisor

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AddGetList(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "servers.json"), nil)

	reg := Registration{ID: "srv-1", Name: "echo", Transport: TransportStdio, Command: []string{"cat"}, AutoRestart: true, MaxRetries: 3, RetryDelay: time.Second}
	require.NoError(t, r.Add(reg))

	got, ok := r.Get("srv-1")
	require.True(t, ok)
	assert.Equal(t, reg, got)
	assert.Len(t, r.List(), 1)
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "servers.json"), nil)
	require.NoError(t, r.Add(Registration{ID: "srv-1", Transport: TransportStdio, Command: []string{"cat"}}))
	require.NoError(t, r.Remove("srv-1"))

	_, ok := r.Get("srv-1")
	assert.False(t, ok)
}

func TestRegistry_RemoveUnknown(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "servers.json"), nil)
	assert.Error(t, r.Remove("nonexistent"))
}

func TestRegistry_PersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.json")
	r := NewRegistry(path, nil)
	require.NoError(t, r.Add(Registration{ID: "srv-1", Name: "echo", Transport: TransportHTTP, Endpoint: "http://localhost:9000/mcp"}))

	reloaded := NewRegistry(path, nil)
	got, ok := reloaded.Get("srv-1")
	require.True(t, ok)
	assert.Equal(t, "echo", got.Name)
	assert.Equal(t, TransportHTTP, got.Transport)
}
