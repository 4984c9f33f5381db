package transport

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
)

// HTTPClientTransport implements mcpproto.Transport for the hub's client
// role against an HTTP+SSE-transport supervised server: requests and
// notifications are POSTed to /jsonrpc, each POST's response body is read
// synchronously and pushed onto Frames, and a persistent GET /events
// stream delivers any server-initiated frame (sampling requests, change
// notifications).
type HTTPClientTransport struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger

	frames chan []byte
	done   chan struct{}

	closeOnce sync.Once
	cancelSSE context.CancelFunc
}

// NewHTTPClient dials baseURL (e.g. "http://localhost:8090/mcp") and starts
// the background SSE subscriber.
func NewHTTPClient(baseURL string, client *http.Client, logger *slog.Logger) *HTTPClientTransport {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &HTTPClientTransport{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    client,
		logger:    logger,
		frames:    make(chan []byte, 64),
		done:      make(chan struct{}),
		cancelSSE: cancel,
	}
	go t.readSSE(ctx)
	return t
}

// Send POSTs one frame to /jsonrpc. A non-204 response body is itself a
// JSON-RPC response frame and is pushed onto Frames for the dispatcher's
// pending-request table to pick up.
func (t *HTTPClientTransport) Send(frame []byte) error {
	req, err := http.NewRequest(http.MethodPost, t.baseURL+"/jsonrpc", bytes.NewReader(frame))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("jsonrpc post failed: %s: %s", resp.Status, string(body))
	}

	select {
	case t.frames <- body:
	case <-t.done:
	}
	return nil
}

// Frames returns inbound frames: POST response bodies and SSE-delivered
// server-initiated messages.
func (t *HTTPClientTransport) Frames() <-chan []byte {
	return t.frames
}

// Close stops the SSE subscriber.
func (t *HTTPClientTransport) Close() error {
	t.closeOnce.Do(func() {
		t.cancelSSE()
		close(t.done)
	})
	return nil
}

func (t *HTTPClientTransport) readSSE(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/events", nil)
	if err != nil {
		t.logger.Warn("failed to build SSE request", "error", err)
		return
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			t.logger.Warn("SSE connection failed", "error", err)
		}
		return
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimPrefix(line, "data:")
		payload = strings.TrimPrefix(payload, " ")
		select {
		case t.frames <- []byte(payload):
		case <-t.done:
			return
		case <-ctx.Done():
			return
		}
	}
}
