package clients

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexushq/nexushub/pkg/mcpproto"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTransport is an in-memory mcpproto.Transport for exercising the
// registry without a real network/process peer.
type fakeTransport struct {
	frames chan []byte
	sent   chan []byte
	closed bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{frames: make(chan []byte, 8), sent: make(chan []byte, 8)}
}

func (f *fakeTransport) Send(frame []byte) error {
	f.sent <- frame
	return nil
}

func (f *fakeTransport) Frames() <-chan []byte { return f.frames }

func (f *fakeTransport) Close() error {
	if !f.closed {
		f.closed = true
		close(f.frames)
	}
	return nil
}

func noopProvider(_ context.Context, _ mcpproto.InitializeParams) (mcpproto.ServerInfo, mcpproto.Capabilities, error) {
	return mcpproto.ServerInfo{Name: "nexushub", Version: "1.0.0"}, mcpproto.NewCapabilities(), nil
}

func TestRegistry_Connect_AssignsUUIDAndMarksConnected(t *testing.T) {
	r := New(testLogger())
	client, err := r.Connect(context.Background(), newFakeTransport(), noopProvider, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, client.ID)
	assert.Equal(t, StatusConnected, client.Status)
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_Disconnect_MarksDisconnectedAndSchedulesPurge(t *testing.T) {
	r := New(testLogger())
	client, err := r.Connect(context.Background(), newFakeTransport(), noopProvider, nil)
	require.NoError(t, err)

	require.NoError(t, r.Disconnect(client.ID))

	got, ok := r.Get(client.ID)
	require.True(t, ok)
	assert.Equal(t, StatusDisconnected, got.Status)
	assert.NotNil(t, got.DisconnectedAt)
}

func TestRegistry_Disconnect_UnknownClientFails(t *testing.T) {
	r := New(testLogger())
	assert.Error(t, r.Disconnect("nope"))
}

func TestRegistry_ConnectToServer_TracksBinding(t *testing.T) {
	r := New(testLogger())
	client, err := r.Connect(context.Background(), newFakeTransport(), noopProvider, nil)
	require.NoError(t, err)

	require.NoError(t, r.ConnectToServer(client.ID, "srv-1"))
	_, bound := client.Servers["srv-1"]
	assert.True(t, bound)

	require.NoError(t, r.DisconnectFromServer(client.ID, "srv-1"))
	_, bound = client.Servers["srv-1"]
	assert.False(t, bound)
}

func TestRegistry_ConnectToServer_UnknownClientFails(t *testing.T) {
	r := New(testLogger())
	assert.Error(t, r.ConnectToServer("ghost", "srv-1"))
}

func TestRegistry_NotifyGuard_UninitializedClientIsNoOp(t *testing.T) {
	r := New(testLogger())
	client, err := r.Connect(context.Background(), newFakeTransport(), noopProvider, nil)
	require.NoError(t, err)

	assert.False(t, r.NotifyResourcesChanged(client.ID))
	assert.False(t, r.NotifyToolsChanged(client.ID))
	assert.False(t, r.NotifyPromptsChanged(client.ID))
}

func TestRegistry_NotifyGuard_UnknownClientIsNoOp(t *testing.T) {
	r := New(testLogger())
	assert.False(t, r.NotifyResourceUpdated("ghost", "file:///a"))
}

func TestRegistry_Sample_UninitializedClientFails(t *testing.T) {
	r := New(testLogger())
	client, err := r.Connect(context.Background(), newFakeTransport(), noopProvider, nil)
	require.NoError(t, err)

	_, err = r.Sample(context.Background(), client.ID, mcpproto.SamplingParams{})
	assert.Error(t, err)
}

func TestRegistry_List_ReflectsAllRegisteredClients(t *testing.T) {
	r := New(testLogger())
	_, err := r.Connect(context.Background(), newFakeTransport(), noopProvider, nil)
	require.NoError(t, err)
	_, err = r.Connect(context.Background(), newFakeTransport(), noopProvider, nil)
	require.NoError(t, err)

	assert.Len(t, r.List(), 2)
	assert.Equal(t, 2, r.ConnectedCount())
}

func TestClient_Capabilities_EmptyBeforeHandshake(t *testing.T) {
	r := New(testLogger())
	client, err := r.Connect(context.Background(), newFakeTransport(), noopProvider, nil)
	require.NoError(t, err)
	assert.False(t, client.Capabilities().Has("sampling"))
	assert.False(t, client.Initialized())
}

func TestRegistry_purgeIfStillDisconnected_RemovesOnlyIfStillDisconnected(t *testing.T) {
	r := New(testLogger())
	client, err := r.Connect(context.Background(), newFakeTransport(), noopProvider, nil)
	require.NoError(t, err)
	require.NoError(t, r.Disconnect(client.ID))

	r.purgeIfStillDisconnected(client.ID)
	_, ok := r.Get(client.ID)
	assert.False(t, ok)
}

func TestRegistry_purgeIfStillDisconnected_KeepsReconnectedClient(t *testing.T) {
	r := New(testLogger())
	client, err := r.Connect(context.Background(), newFakeTransport(), noopProvider, nil)
	require.NoError(t, err)
	require.NoError(t, r.Disconnect(client.ID))

	r.mu.Lock()
	client.Status = StatusConnected
	r.mu.Unlock()

	r.purgeIfStillDisconnected(client.ID)
	_, ok := r.Get(client.ID)
	assert.True(t, ok)
}

func TestRegistry_Disconnect_RealPurgeTimerDoesNotFireEarly(t *testing.T) {
	r := New(testLogger())
	client, err := r.Connect(context.Background(), newFakeTransport(), noopProvider, nil)
	require.NoError(t, err)
	require.NoError(t, r.Disconnect(client.ID))

	time.Sleep(10 * time.Millisecond)
	_, ok := r.Get(client.ID)
	assert.True(t, ok, "record should survive well before the 60s grace window elapses")
}
