package boardclient

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/park285/chess-analysis-board/internal/chess/analysis"
	"github.com/park285/chess-analysis-board/internal/chess/board"
	"github.com/park285/chess-analysis-board/internal/feed"
	"github.com/park285/chess-analysis-board/internal/httpapi"
	"github.com/park285/chess-analysis-board/internal/service/archive"
	"github.com/park285/chess-analysis-board/internal/service/coordinator"
	"github.com/park285/chess-analysis-board/pkg/analysisdto"
)

type fixedAnalyzer struct{}

func (fixedAnalyzer) Analyze(ctx context.Context, pos board.Position, opts analysis.Options) (analysis.Evaluation, error) {
	n := opts.MultiPV
	if n <= 0 {
		n = opts.Profile.MultiPV
	}
	ev := analysis.Evaluation{FEN: pos.FEN, Score: 15, Depth: 5}
	for i := 1; i <= n; i++ {
		ev.Lines = append(ev.Lines, analysis.Line{Rank: i, Move: "d2d4", SAN: "d4", Score: 15 - i})
	}
	return ev, nil
}

func newServer(t *testing.T) *Client {
	t.Helper()
	hub := feed.NewHub()
	coord, err := coordinator.New(fixedAnalyzer{}, coordinator.Config{Publisher: hub, Archive: archive.NewMemoryRepository()})
	if err != nil {
		t.Fatalf("coordinator.New: %v", err)
	}
	coord.Start()
	srv := httptest.NewServer(httpapi.New(coord, hub).Routes())
	t.Cleanup(func() {
		srv.Close()
		hub.Close()
		coord.Close()
	})
	return NewClient(srv.URL, WithTimeout(2*time.Second), WithRetry(1))
}

func TestClientDrivesBoard(t *testing.T) {
	c := newServer(t)
	ctx := context.Background()

	snap, err := c.LoadPGN(ctx, "1. e4 c5 2. Nf3 d6 *")
	if err != nil {
		t.Fatalf("LoadPGN: %v", err)
	}
	if len(snap.Future) != 4 {
		t.Fatalf("future = %d", len(snap.Future))
	}
	if _, err := c.Forward(ctx); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	snap, err = c.Move(ctx, "e5")
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if len(snap.Past) != 2 || len(snap.Future) != 0 {
		t.Fatalf("after move past=%d future=%d", len(snap.Past), len(snap.Future))
	}

	_, err = c.Backward(ctx)
	if err != nil {
		t.Fatalf("Backward: %v", err)
	}
	if _, err := c.PressSquare(ctx, "e7"); err != nil {
		t.Fatalf("PressSquare: %v", err)
	}
	snap, err = c.ReleaseSquare(ctx, "e6")
	if err != nil {
		t.Fatalf("ReleaseSquare: %v", err)
	}
	if snap.Past[len(snap.Past)-1].SAN != "e6" {
		t.Fatalf("last move = %+v", snap.Past)
	}

	top, err := c.TopMoves(ctx, 2)
	if err != nil || len(top.Lines) != 2 {
		t.Fatalf("TopMoves: %v %+v", err, top)
	}

	game, err := c.Archive(ctx, "sicilian")
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	games, err := c.Archives(ctx, 5)
	if err != nil || len(games) != 1 || games[0].ID != game.ID {
		t.Fatalf("Archives: %v %+v", err, games)
	}
	if snap, err = c.Reopen(ctx, game.ID); err != nil || len(snap.Future) != 2 {
		t.Fatalf("Reopen: %v", err)
	}
}

func TestClientSurfacesDomainErrors(t *testing.T) {
	c := newServer(t)
	_, err := c.Backward(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %T %v, want *APIError", err, err)
	}
	if apiErr.Status != 409 || apiErr.Err.Code != "no_past_moves" || apiErr.Snapshot == nil {
		t.Fatalf("api error = %+v", apiErr)
	}
	if apiErr.Retryable() {
		t.Fatalf("boundary errors are not retryable")
	}
}

func TestWatcherSeesActions(t *testing.T) {
	c := newServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	got := make(chan analysisdto.Snapshot, 1)
	w := NewWatcher(c.FeedURL(), 0, nil)
	errc := make(chan error, 1)
	go func() {
		errc <- w.Watch(ctx, func(s analysisdto.Snapshot) bool {
			if len(s.Past) == 1 {
				got <- s
				return false
			}
			return true
		})
	}()

	// the first frame is the current snapshot; keep moving until one lands
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-got:
			if s.Past[0].UCI != "e2e4" {
				t.Fatalf("watched move = %+v", s.Past)
			}
			if err := <-errc; err != nil {
				t.Fatalf("Watch: %v", err)
			}
			return
		case <-deadline:
			t.Fatalf("watcher saw nothing")
		case <-time.After(50 * time.Millisecond):
			if _, err := c.Reset(ctx); err != nil {
				t.Fatalf("Reset: %v", err)
			}
			if _, err := c.Move(ctx, "e2e4"); err != nil {
				t.Fatalf("Move: %v", err)
			}
		}
	}
}

func TestFeedURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8080/": "ws://localhost:8080/ws",
		"https://board.example":  "wss://board.example/ws",
	}
	for in, want := range cases {
		if got := NewClient(in).FeedURL(); got != want {
			t.Fatalf("FeedURL(%q) = %q, want %q", in, got, want)
		}
	}
}
