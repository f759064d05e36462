package uci_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/park285/chess-analysis-board/internal/chess/uci"
	"github.com/park285/chess-analysis-board/internal/chess/uci/ucitest"
)

func TestMain(m *testing.M) {
	ucitest.Main()
	os.Exit(m.Run())
}

func newSlot(t *testing.T, mode string) *uci.Slot {
	t.Helper()
	slot, err := uci.NewSlot(context.Background(), ucitest.Config(mode))
	if err != nil {
		t.Fatalf("NewSlot(%s): %v", mode, err)
	}
	t.Cleanup(func() { _ = slot.Close() })
	return slot
}

var startReq = uci.SearchRequest{FEN: "startpos", Limits: uci.Limits{MoveTimeMillis: 50}}

func TestSearchMultiPV(t *testing.T) {
	slot := newSlot(t, ucitest.ModeCentipawns)
	req := startReq
	req.MultiPV = 3
	resp, err := slot.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Candidates) != 3 {
		t.Fatalf("candidates = %d, want 3", len(resp.Candidates))
	}
	if resp.BestMove == "" || resp.BestMove != resp.Candidates[0].Move {
		t.Fatalf("best = %q, first candidate = %q", resp.BestMove, resp.Candidates[0].Move)
	}
	if resp.Score.Kind != uci.ScoreCentipawns || resp.Score.Value != ucitest.BaseScore {
		t.Fatalf("score = %+v", resp.Score)
	}

	// back to a single line
	resp, err = slot.Search(context.Background(), startReq)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(resp.Candidates))
	}
}

func TestSearchCancelDrainsAndKeepsSession(t *testing.T) {
	slot := newSlot(t, ucitest.ModeHang)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := slot.Search(ctx, startReq); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if !slot.Alive() {
		t.Fatalf("session should survive a cancelled search")
	}
	ctx2, cancel2 := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel2()
	if _, err := slot.Search(ctx2, startReq); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second search err = %v", err)
	}
}

func TestQueuedCallerLeavesOnCancel(t *testing.T) {
	slot := newSlot(t, ucitest.ModeHang)
	holdCtx, release := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = slot.Search(holdCtx, startReq)
	}()
	time.Sleep(50 * time.Millisecond)

	queued, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := slot.Do(queued, func(*uci.Session) error {
		t.Errorf("queued caller must not get the session while it is busy")
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	release()
	wg.Wait()
}

func TestEngineDeathIsPermanent(t *testing.T) {
	slot := newSlot(t, ucitest.ModeDie)
	if _, err := slot.Search(context.Background(), startReq); !errors.Is(err, uci.ErrEngineExited) {
		t.Fatalf("err = %v, want ErrEngineExited", err)
	}
	if slot.Alive() {
		t.Fatalf("slot should report a dead engine")
	}
	if _, err := slot.Search(context.Background(), startReq); !errors.Is(err, uci.ErrEngineExited) {
		t.Fatalf("second err = %v, want ErrEngineExited", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	slot := newSlot(t, ucitest.ModeCentipawns)
	if err := slot.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := slot.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := slot.Search(context.Background(), startReq); !errors.Is(err, uci.ErrSlotClosed) {
		t.Fatalf("err = %v, want ErrSlotClosed", err)
	}
}

func TestNewSlotRejectsMissingBinary(t *testing.T) {
	if _, err := uci.NewSlot(context.Background(), uci.Config{BinaryPath: "/nonexistent/stockfish"}); err == nil {
		t.Fatalf("expected error for missing binary")
	}
}
