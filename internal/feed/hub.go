// Package feed pushes board snapshots to websocket subscribers.
package feed

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/chess-analysis-board/pkg/analysisdto"
)

const (
	clientBuffer = 16
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

type client struct {
	send chan analysisdto.Snapshot
}

// Hub fans snapshots out to every connected subscriber. A new subscriber
// first receives the latest snapshot. Slow subscribers lose intermediate
// snapshots, never the newest one.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	last    *analysisdto.Snapshot
	closed  bool

	originPatterns []string
	logger         *zap.Logger
}

type Option func(*Hub)

func WithLogger(logger *zap.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithOriginPatterns allows cross-origin renderers, e.g. "localhost:*".
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Hub) { h.originPatterns = append(h.originPatterns, patterns...) }
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{clients: make(map[*client]struct{}), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Publish never blocks.
func (h *Hub) Publish(snap analysisdto.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.last = &snap
	for c := range h.clients {
		offer(c, snap)
	}
}

// offer queues snap, evicting the oldest queued snapshot when full. Only the
// hub sends, under its lock, so the second send always finds room.
func offer(c *client, snap analysisdto.Snapshot) {
	select {
	case c.send <- snap:
		return
	default:
	}
	select {
	case <-c.send:
	default:
	}
	select {
	case c.send <- snap:
	default:
	}
}

// Clients reports the number of live subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) register() (*client, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	c := &client{send: make(chan analysisdto.Snapshot, clientBuffer)}
	if h.last != nil {
		c.send <- *h.last
	}
	h.clients[c] = struct{}{}
	return c, true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// ServeHTTP upgrades the request and streams snapshots as JSON text frames
// until either side goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  h.originPatterns,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		h.logger.Debug("feed upgrade failed", zap.Error(err))
		return
	}
	c, ok := h.register()
	if !ok {
		_ = conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	defer h.unregister(c)

	// subscribers only listen; CloseRead handles control frames and cancels
	// ctx once the peer disconnects
	ctx := conn.CloseRead(r.Context())
	h.logger.Debug("feed subscriber connected", zap.String("remote", r.RemoteAddr))

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case snap, ok := <-c.send:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "shutting down")
				return
			}
			if err := write(ctx, conn, snap); err != nil {
				h.logger.Debug("feed write failed", zap.Error(err))
				_ = conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				_ = conn.Close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, snap analysisdto.Snapshot) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, snap)
}
