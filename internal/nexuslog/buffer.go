package nexuslog

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Entry is one buffered log record, the schema the monitoring endpoints
// serialize back to a caller.
type Entry struct {
	Level     string         `json:"level"`
	Timestamp string         `json:"ts"`
	Message   string         `json:"msg"`
	Component string         `json:"component,omitempty"`
	TraceID   string         `json:"trace_id,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// Buffer is a fixed-capacity circular buffer of recent log entries; the
// hub's GET /api/monitoring/metrics endpoint reports its Count as
// buffered_log_count. Grounded on gridctl's pkg/logging.LogBuffer.
type Buffer struct {
	mu       sync.RWMutex
	entries  []Entry
	maxSize  int
	position int
	wrapped  bool
}

// NewBuffer creates a buffer holding at most maxSize entries.
func NewBuffer(maxSize int) *Buffer {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &Buffer{entries: make([]Entry, maxSize), maxSize: maxSize}
}

func (b *Buffer) add(entry Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[b.position] = entry
	b.position++
	if b.position >= b.maxSize {
		b.position = 0
		b.wrapped = true
	}
}

// Recent returns the most recent n entries, newest last.
func (b *Buffer) Recent(n int) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := b.count()
	if n <= 0 || n > count {
		n = count
	}
	if n == 0 {
		return nil
	}

	result := make([]Entry, n)
	if b.wrapped {
		start := b.position - n
		if start < 0 {
			start += b.maxSize
		}
		for i := 0; i < n; i++ {
			result[i] = b.entries[(start+i)%b.maxSize]
		}
		return result
	}

	start := b.position - n
	if start < 0 {
		start = 0
		n = b.position
		result = make([]Entry, n)
	}
	copy(result, b.entries[start:b.position])
	return result
}

// Count returns the number of entries currently buffered.
func (b *Buffer) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count()
}

func (b *Buffer) count() int {
	if b.wrapped {
		return b.maxSize
	}
	return b.position
}

// bufferHandler mirrors every record it sees into a Buffer before passing it
// on to the wrapped handler.
type bufferHandler struct {
	slog.Handler
	buffer *Buffer
}

func (h *bufferHandler) Handle(ctx context.Context, r slog.Record) error {
	entry := Entry{
		Level:     r.Level.String(),
		Timestamp: r.Time.Format(time.RFC3339Nano),
		Message:   r.Message,
		Attrs:     make(map[string]any),
	}
	r.Attrs(func(a slog.Attr) bool {
		switch a.Key {
		case "component":
			entry.Component = a.Value.String()
		case "trace_id":
			entry.TraceID = a.Value.String()
		default:
			entry.Attrs[a.Key] = attrValue(a.Value)
		}
		return true
	})
	if len(entry.Attrs) == 0 {
		entry.Attrs = nil
	}
	h.buffer.add(entry)
	return h.Handler.Handle(ctx, r)
}

func (h *bufferHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &bufferHandler{Handler: h.Handler.WithAttrs(attrs), buffer: h.buffer}
}

func (h *bufferHandler) WithGroup(name string) slog.Handler {
	return &bufferHandler{Handler: h.Handler.WithGroup(name), buffer: h.buffer}
}

func attrValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindGroup:
		g := v.Group()
		m := make(map[string]any, len(g))
		for _, a := range g {
			m[a.Key] = attrValue(a.Value)
		}
		return m
	case slog.KindAny:
		a := v.Any()
		if b, err := json.Marshal(a); err == nil {
			var out any
			if json.Unmarshal(b, &out) == nil {
				return out
			}
		}
		return a
	default:
		return v.Any()
	}
}
