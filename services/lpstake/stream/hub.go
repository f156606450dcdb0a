package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"lpstaking/core/events"
	"lpstaking/observability"
)

const (
	wsWriteTimeout       = 10 * time.Second
	defaultSubscriberBuf = 64
)

type subscriber struct {
	pool string
	ch   chan []byte
}

// Hub fans committed events out to websocket subscribers. Slow subscribers
// lose messages rather than blocking the ledger.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	buffer int
	logger *slog.Logger
}

// NewHub constructs a hub whose subscribers buffer up to buffer messages.
func NewHub(buffer int, log *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuf
	}
	if log == nil {
		log = slog.Default()
	}
	return &Hub{subs: make(map[*subscriber]struct{}), buffer: buffer, logger: log}
}

// Emit implements events.Emitter.
func (h *Hub) Emit(evt events.Event) {
	if h == nil || evt == nil {
		return
	}
	wire := events.ToWire(evt)
	data, err := json.Marshal(newMessage(wire))
	if err != nil {
		return
	}
	pool := wire.Attributes["pool"]

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if sub.pool != "" && sub.pool != pool {
			continue
		}
		select {
		case sub.ch <- data:
			observability.Events().RecordPublished(wire.Type, "websocket")
		default:
			observability.Events().RecordDropped(wire.Type, "websocket")
		}
	}
}

// Subscribe registers a subscriber. An empty pool receives every event.
func (h *Hub) Subscribe(pool string) (<-chan []byte, func()) {
	sub := &subscriber{pool: strings.TrimSpace(pool), ch: make(chan []byte, h.buffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, sub)
			h.mu.Unlock()
		})
	}
}

// Subscribers reports the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// ServeHTTP upgrades the request and streams events until the client leaves.
// The optional ?pool= query narrows the stream to one pool.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := conn.CloseRead(r.Context())
	updates, cancel := h.Subscribe(r.URL.Query().Get("pool"))
	defer cancel()

	if err := h.pump(ctx, conn, updates); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			h.logger.Debug("event stream closed", slog.String("error", err.Error()))
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (h *Hub) pump(ctx context.Context, conn *websocket.Conn, updates <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-updates:
			if !ok {
				return nil
			}
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
