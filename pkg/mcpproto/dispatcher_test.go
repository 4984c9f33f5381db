package mcpproto

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexushq/nexushub/pkg/jsonrpc"
)

func TestDispatcher_CallRoundTrip(t *testing.T) {
	a, b := newPipe()
	client := NewDispatcher(a, nil)
	server := NewDispatcher(b, nil)

	server.Handle("echo", func(_ context.Context, params json.RawMessage) (any, *jsonrpc.Error) {
		var m map[string]string
		require.NoError(t, json.Unmarshal(params, &m))
		return m, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)
	go server.Run(ctx)

	raw, rpcErr := client.Call(context.Background(), "echo", map[string]string{"hello": "world"})
	require.Nil(t, rpcErr)

	var result map[string]string
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, "world", result["hello"])
}

func TestDispatcher_MethodNotFound(t *testing.T) {
	a, b := newPipe()
	client := NewDispatcher(a, nil)
	server := NewDispatcher(b, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)
	go server.Run(ctx)

	_, rpcErr := client.Call(context.Background(), "nonexistent", nil)
	require.NotNil(t, rpcErr)
	assert.Equal(t, jsonrpc.MethodNotFound, rpcErr.Code)
}

func TestDispatcher_HandlerPanicBecomesInternalError(t *testing.T) {
	a, b := newPipe()
	client := NewDispatcher(a, nil)
	server := NewDispatcher(b, nil)

	server.Handle("boom", func(_ context.Context, _ json.RawMessage) (any, *jsonrpc.Error) {
		panic("kaboom")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)
	go server.Run(ctx)

	_, rpcErr := client.Call(context.Background(), "boom", nil)
	require.NotNil(t, rpcErr)
	assert.Equal(t, jsonrpc.InternalError, rpcErr.Code)
}

func TestDispatcher_NotificationNoResponse(t *testing.T) {
	a, b := newPipe()
	client := NewDispatcher(a, nil)
	server := NewDispatcher(b, nil)

	received := make(chan struct{}, 1)
	server.Handle("ping", func(_ context.Context, _ json.RawMessage) (any, *jsonrpc.Error) {
		received <- struct{}{}
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)
	go server.Run(ctx)

	require.NoError(t, client.Notify("ping", nil))

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("notification handler was not invoked")
	}
}

func TestDispatcher_UnmatchedNotificationDroppedSilently(t *testing.T) {
	a, b := newPipe()
	client := NewDispatcher(a, nil)
	server := NewDispatcher(b, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)
	go server.Run(ctx)

	require.NoError(t, client.Notify("nobody/listens", nil))
	// No assertion beyond "this does not panic or hang" — the method
	// returns without an error response being sent.
	time.Sleep(50 * time.Millisecond)
}

func TestDispatcher_ResponseForUnknownIDDiscarded(t *testing.T) {
	a, b := newPipe()
	server := NewDispatcher(b, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Run(ctx)

	id := jsonrpc.RawID("does-not-exist")
	resp := jsonrpc.NewSuccessResponse(id, "ignored")
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	require.NoError(t, a.Send(data))

	time.Sleep(50 * time.Millisecond)
	// No pending entry existed; the dispatcher must not panic or block.
}

func TestDispatcher_EmptyFrameIsInvalidRequest(t *testing.T) {
	a, b := newPipe()
	server := NewDispatcher(b, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Run(ctx)

	require.NoError(t, a.Send([]byte(`{}`)))

	select {
	case frame := <-a.Frames():
		var resp jsonrpc.Response
		require.NoError(t, json.Unmarshal(frame, &resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, jsonrpc.InvalidRequest, resp.Error.Code)
		assert.Nil(t, resp.ID)
	case <-time.After(time.Second):
		t.Fatal("expected an invalid-request response")
	}
}

func TestDispatcher_ConnectionCloseFailsPending(t *testing.T) {
	a, b := newPipe()
	client := NewDispatcher(a, nil)
	server := NewDispatcher(b, nil)

	server.Handle("slow", func(_ context.Context, _ json.RawMessage) (any, *jsonrpc.Error) {
		<-time.After(time.Hour) // never actually reached
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)
	go server.Run(ctx)

	done := make(chan *jsonrpc.Error, 1)
	go func() {
		_, rpcErr := client.Call(context.Background(), "slow", nil)
		done <- rpcErr
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, client.Close())

	select {
	case rpcErr := <-done:
		require.NotNil(t, rpcErr)
		assert.Equal(t, jsonrpc.ConnectionLost, rpcErr.Code)
	case <-time.After(time.Second):
		t.Fatal("expected the pending call to fail on close")
	}
}
