package boardclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/chess-analysis-board/pkg/analysisdto"
)

// Watcher follows the snapshot feed and reconnects after drops.
type Watcher struct {
	url          string
	maxReconnect int
	logger       *zap.Logger
}

func NewWatcher(feedURL string, maxReconnect int, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{url: feedURL, maxReconnect: maxReconnect, logger: logger}
}

// Watch calls fn for every snapshot until ctx ends, fn returns false, or
// reconnect attempts run out. A normal stop returns nil.
func (w *Watcher) Watch(ctx context.Context, fn func(analysisdto.Snapshot) bool) error {
	failures := 0
	for {
		done, err := w.session(ctx, fn)
		if done || ctx.Err() != nil {
			return nil
		}
		failures++
		if failures > w.maxReconnect {
			return fmt.Errorf("feed lost after %d attempts: %w", failures, err)
		}
		w.logger.Debug("feed reconnecting", zap.Int("attempt", failures), zap.Error(err))
		if sleepWithContext(ctx, backoffDuration(failures)) != nil {
			return nil
		}
	}
}

// session reads one connection. done means the caller asked to stop.
func (w *Watcher) session(ctx context.Context, fn func(analysisdto.Snapshot) bool) (bool, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.Dial(dialCtx, w.url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	cancel()
	if err != nil {
		return false, err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	conn.SetReadLimit(4 << 20)

	for {
		var snap analysisdto.Snapshot
		if err := wsjson.Read(ctx, conn, &snap); err != nil {
			if errors.Is(err, context.Canceled) {
				return true, nil
			}
			return false, err
		}
		if !fn(snap) {
			return true, nil
		}
	}
}
