package mcpproto

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexushq/nexushub/pkg/jsonrpc"
)

func TestHandshake_InitializeNegotiatesCapabilities(t *testing.T) {
	a, b := newPipe()

	serverCaps := NewCapabilities()
	serverCaps.Set("tools.listChanged", true)
	provider := func(_ context.Context, params InitializeParams) (ServerInfo, Capabilities, error) {
		assert.Equal(t, "test-client", params.ClientInfo.Name)
		return ServerInfo{Name: "test-server", Version: "1.0.0"}, serverCaps, nil
	}

	server := NewServerProtocol(b, provider, nil)
	client := NewClientProtocol(a, ClientInfo{Name: "test-client", Version: "0.1.0"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Run(ctx)
	go client.Run(ctx)

	desired := NewCapabilities()
	desired.Set("sampling", true)

	callCtx, callCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer callCancel()
	require.NoError(t, client.Initialize(callCtx, desired, "", ""))

	assert.Equal(t, Ready, client.State())
	assert.Equal(t, "test-server", client.ServerInfo().Name)
	assert.True(t, client.Capabilities().Has("tools.listChanged"))

	// Give the server-side the notifications/initialized frame a moment
	// to land before asserting on its state.
	require.Eventually(t, func() bool {
		return server.Initialized()
	}, time.Second, 10*time.Millisecond)
	assert.True(t, server.Capabilities().Has("sampling"))
	assert.Equal(t, "test-client", server.ClientInfo().Name)
}

func TestHandshake_CapabilityGatedBeforeInit(t *testing.T) {
	a, _ := newPipe()
	client := NewClientProtocol(a, ClientInfo{Name: "c", Version: "1"}, nil)

	_, rpcErr := client.ListTools(context.Background())
	require.NotNil(t, rpcErr)
	assert.Equal(t, jsonrpc.UnsupportedCapability, rpcErr.Code)
}

func TestHandshake_ShutdownThenExit(t *testing.T) {
	a, b := newPipe()
	provider := func(_ context.Context, _ InitializeParams) (ServerInfo, Capabilities, error) {
		return ServerInfo{Name: "s", Version: "1"}, NewCapabilities(), nil
	}
	server := NewServerProtocol(b, provider, nil)
	client := NewClientProtocol(a, ClientInfo{Name: "c", Version: "1"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Run(ctx)
	go client.Run(ctx)

	require.NoError(t, client.Initialize(context.Background(), NewCapabilities(), "", ""))

	shutdownCalled := make(chan struct{}, 1)
	server.OnShutdown(func() { shutdownCalled <- struct{}{} })

	require.NoError(t, client.Shutdown(context.Background()))

	select {
	case <-shutdownCalled:
	case <-time.After(time.Second):
		t.Fatal("server did not observe shutdown")
	}

	require.Eventually(t, func() bool {
		return server.State() == Disconnected
	}, time.Second, 10*time.Millisecond)
}

func TestHandshake_SamplingRoutedFromServerToClient(t *testing.T) {
	a, b := newPipe()
	serverCaps := NewCapabilities()
	provider := func(_ context.Context, _ InitializeParams) (ServerInfo, Capabilities, error) {
		return ServerInfo{Name: "s", Version: "1"}, serverCaps, nil
	}
	server := NewServerProtocol(b, provider, nil)
	client := NewClientProtocol(a, ClientInfo{Name: "c", Version: "1"}, nil)

	client.RegisterSamplingHandler(func(_ context.Context, params SamplingParams) (*SamplingResult, *jsonrpc.Error) {
		return &SamplingResult{Role: "assistant", Content: NewTextContent("hi " + params.Messages[0].Content.Text)}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Run(ctx)
	go client.Run(ctx)

	desired := NewCapabilities()
	desired.Set("sampling", true)
	require.NoError(t, client.Initialize(context.Background(), desired, "", ""))

	require.Eventually(t, func() bool { return server.Initialized() }, time.Second, 10*time.Millisecond)

	result, rpcErr := server.Sample(context.Background(), SamplingParams{
		Messages: []SamplingMessage{{Role: "user", Content: NewTextContent("there")}},
	})
	require.Nil(t, rpcErr)
	assert.Equal(t, "hi there", result.Content.Text)
}
