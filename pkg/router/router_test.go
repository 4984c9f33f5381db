package router

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_SeedsDefaultRoutes(t *testing.T) {
	r := New(nil)
	routes := r.GetRoutes()
	require.Len(t, routes, 2)
	assert.Equal(t, AllClients(), routes[0].Source)
	assert.Equal(t, Hub(), routes[0].Destination)
	assert.Nil(t, routes[0].MethodPattern)
	assert.Equal(t, Hub(), routes[1].Source)
	assert.Equal(t, AllClients(), routes[1].Destination)
	require.NotNil(t, routes[1].MethodPattern)
	assert.Equal(t, "notifications/*", *routes[1].MethodPattern)
}

func TestAddRoute_DuplicateIsNoOp(t *testing.T) {
	r := New(nil)
	route := Route{Source: Server("srv-1"), Destination: CapabilityTarget("tools")}
	require.NoError(t, r.AddRoute(route))
	require.NoError(t, r.AddRoute(route))
	count := 0
	for _, rt := range r.GetRoutes() {
		if rt.key() == route.key() {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestAddRoute_RejectsInvalidTarget(t *testing.T) {
	r := New(nil)
	err := r.AddRoute(Route{Source: Server(""), Destination: Hub()})
	assert.Error(t, err)
}

func TestRemoveRoute_PreservesOrderOfRemaining(t *testing.T) {
	r := New(nil)
	a := Route{Source: Server("a"), Destination: Hub()}
	b := Route{Source: Server("b"), Destination: Hub()}
	require.NoError(t, r.AddRoute(a))
	require.NoError(t, r.AddRoute(b))

	r.RemoveRoute(a)

	routes := r.GetRoutes()
	var found bool
	for _, rt := range routes {
		if rt.key() == b.key() {
			found = true
		}
		assert.NotEqual(t, a.key(), rt.key())
	}
	assert.True(t, found)
}

func TestClearRoutes_ReseedsDefaults(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.AddRoute(Route{Source: Server("a"), Destination: Hub()}))
	r.ClearRoutes()
	assert.Len(t, r.GetRoutes(), 2)
}

func TestGetMatchingRoutes_ThreeStageFilter(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.AddRoute(Route{Source: Client("c1"), Destination: Server("s1")}))
	require.NoError(t, r.AddRoute(Route{Source: Client("c2"), Destination: Server("s2")}))

	matches := r.GetMatchingRoutes(Client("c1"), "tools/call")
	require.Len(t, matches, 1)
	assert.Equal(t, "s1", matches[0].Destination.TargetID)
}

func TestGetMatchingRoutes_MethodPatternAppliedLast(t *testing.T) {
	r := New(nil)
	pattern := "tools/*"
	require.NoError(t, r.AddRoute(Route{Source: Client("c1"), Destination: Server("s1"), MethodPattern: &pattern}))

	require.Len(t, r.GetMatchingRoutes(Client("c1"), "tools/call"), 1)
	assert.Empty(t, r.GetMatchingRoutes(Client("c1"), "resources/read"))
}

func TestRouteMessage_RequestUsesFirstMatchOnly(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.AddRoute(Route{Source: Client("c1"), Destination: Server("first")}))
	require.NoError(t, r.AddRoute(Route{Source: Client("c1"), Destination: Server("second")}))

	var called []string
	var mu sync.Mutex
	r.RegisterMessageHandler(TypeServer, func(ctx context.Context, message json.RawMessage, source, destination RouteTarget) (json.RawMessage, error) {
		mu.Lock()
		called = append(called, destination.TargetID)
		mu.Unlock()
		return json.RawMessage(`{"jsonrpc":"2.0","id":"1","result":{}}`), nil
	})

	reply := r.RouteMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":"1","method":"tools/call"}`), Client("c1"))
	require.NotNil(t, reply)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first"}, called)
}

func TestRouteMessage_NotificationFansOutConcurrentlyWithNoResponse(t *testing.T) {
	r := New(nil)

	received := make(chan string, 4)
	r.RegisterMessageHandler(TypeClient, func(ctx context.Context, message json.RawMessage, source, destination RouteTarget) (json.RawMessage, error) {
		received <- destination.TargetID
		return nil, nil
	})
	require.NoError(t, r.AddRoute(Route{Source: Hub(), Destination: Client("x")}))
	require.NoError(t, r.AddRoute(Route{Source: Hub(), Destination: Client("y")}))

	reply := r.RouteMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","method":"notifications/ping"}`), Hub())
	assert.Nil(t, reply)

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-received:
			got[id] = true
		case <-time.After(time.Second):
			t.Fatal("expected fan-out to both destinations")
		}
	}
	assert.True(t, got["x"])
	assert.True(t, got["y"])
}

func TestRouteMessage_NoMatchingRoute_RequestGetsMethodNotFound(t *testing.T) {
	r := New(nil)
	reply := r.RouteMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":"7","method":"bogus/method"}`), Client("unregistered"))
	require.NotNil(t, reply)

	var resp struct {
		Error *struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(reply, &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)
}

func TestRouteMessage_NoMatchingRoute_NotificationIsSilentlyDropped(t *testing.T) {
	r := New(nil)
	reply := r.RouteMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","method":"bogus/notify"}`), Client("unregistered"))
	assert.Nil(t, reply)
}

func TestRouteMessage_NoHandlerRegistered_RequestGetsInternalError(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.AddRoute(Route{Source: Client("c1"), Destination: Server("unhandled")}))

	reply := r.RouteMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":"2","method":"tools/call"}`), Client("c1"))
	require.NotNil(t, reply)

	var resp struct {
		Error *struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(reply, &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32603, resp.Error.Code)
}

func TestRouteMessage_NoHandlerRegistered_NotificationIsSkippedSilently(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.AddRoute(Route{Source: Hub(), Destination: Client("unhandled")}))
	reply := r.RouteMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","method":"notifications/ping"}`), Hub())
	assert.Nil(t, reply)
}

func TestRouteMessage_MissingMethod_InvalidRequest(t *testing.T) {
	r := New(nil)
	reply := r.RouteMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":"9"}`), Client("c1"))
	require.NotNil(t, reply)

	var resp struct {
		Error *struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(reply, &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32600, resp.Error.Code)
}

func TestRouteMessage_HandlerPanicBecomesInternalError(t *testing.T) {
	r := New(nil)
	r.RegisterMessageHandler(TypeServer, func(ctx context.Context, message json.RawMessage, source, destination RouteTarget) (json.RawMessage, error) {
		panic("boom")
	})
	require.NoError(t, r.AddRoute(Route{Source: Client("c1"), Destination: Server("s1")}))

	reply := r.RouteMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":"3","method":"tools/call"}`), Client("c1"))
	require.NotNil(t, reply)

	var resp struct {
		Error *struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(reply, &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32603, resp.Error.Code)
}
