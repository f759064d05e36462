package uci

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
)

var ErrSlotClosed = errors.New("engine slot closed")

// Slot owns a single engine session and hands it to one caller at a time.
// Waiting callers queue on the handle channel; a caller whose context ends
// while queued simply leaves. A dead session is not respawned.
type Slot struct {
	session *Session
	handle  chan *Session
	closed  chan struct{}
	logger  *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

func NewSlot(ctx context.Context, cfg Config) (*Slot, error) {
	if cfg.BinaryPath == "" {
		return nil, fmt.Errorf("binary path required")
	}
	if _, err := os.Stat(cfg.BinaryPath); err != nil {
		return nil, fmt.Errorf("engine binary check: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	session, err := NewSession(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := &Slot{
		session: session,
		handle:  make(chan *Session, 1),
		closed:  make(chan struct{}),
		logger:  logger,
	}
	s.handle <- session
	return s, nil
}

// Do runs fn with exclusive use of the session.
func (s *Slot) Do(ctx context.Context, fn func(*Session) error) error {
	var session *Session
	select {
	case <-s.closed:
		return ErrSlotClosed
	case <-ctx.Done():
		return ctx.Err()
	case session = <-s.handle:
	}
	defer func() { s.handle <- session }()

	select {
	case <-s.closed:
		return ErrSlotClosed
	default:
	}
	if !session.Alive() {
		return ErrEngineExited
	}
	return fn(session)
}

// Search is Do with a single search.
func (s *Slot) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	var resp SearchResponse
	err := s.Do(ctx, func(session *Session) error {
		var err error
		resp, err = session.Search(ctx, req)
		return err
	})
	return resp, err
}

// Alive reports whether the session can still serve searches.
func (s *Slot) Alive() bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	return s.session.Alive()
}

// Close stops the engine. Later and in-flight calls fail.
func (s *Slot) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.closeErr = s.session.Close()
		s.logger.Info("engine slot closed")
	})
	return s.closeErr
}
