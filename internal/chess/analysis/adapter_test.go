package analysis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	nchess "github.com/corentings/chess/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/chess-analysis-board/internal/chess/board"
	"github.com/park285/chess-analysis-board/internal/chess/uci"
	"github.com/park285/chess-analysis-board/internal/chess/uci/ucitest"
	"github.com/park285/chess-analysis-board/internal/service/cache"
)

func TestMain(m *testing.M) {
	ucitest.Main()
	os.Exit(m.Run())
}

func newAdapter(t *testing.T, mode string, opts ...Option) *Adapter {
	t.Helper()
	cfg := ucitest.Config(mode)
	a, err := New(context.Background(), EngineConfig{BinaryPath: cfg.BinaryPath, Args: cfg.Args, Env: cfg.Env}, opts...)
	if err != nil {
		t.Fatalf("New(%s): %v", mode, err)
	}
	t.Cleanup(func() { _ = a.Shutdown() })
	return a
}

func positionAfter(t *testing.T, moves ...string) board.Position {
	t.Helper()
	s := board.NewStore()
	for _, mv := range moves {
		m, err := board.ParseMove(mv)
		if err != nil {
			t.Fatalf("ParseMove: %v", err)
		}
		if _, err := s.Apply(m); err != nil {
			t.Fatalf("Apply %s: %v", mv, err)
		}
	}
	return s.Current()
}

func TestAnalyzeWhitePerspective(t *testing.T) {
	a := newAdapter(t, ucitest.ModeCentipawns)
	ctx := context.Background()

	start := positionAfter(t)
	ev, err := a.Analyze(ctx, start, DefaultOptions())
	if err != nil {
		t.Fatalf("Analyze start: %v", err)
	}
	if ev.FEN != start.FEN {
		t.Fatalf("evaluation for %q, want %q", ev.FEN, start.FEN)
	}
	if ev.Score != ucitest.BaseScore {
		t.Fatalf("white to move score = %d, want %d", ev.Score, ucitest.BaseScore)
	}
	if ev.BestMove == "" || ev.BestSAN == "" {
		t.Fatalf("missing best move: %+v", ev)
	}

	afterE4 := positionAfter(t, "e2e4")
	ev, err = a.Analyze(ctx, afterE4, DefaultOptions())
	if err != nil {
		t.Fatalf("Analyze after e4: %v", err)
	}
	if ev.Score != -ucitest.BaseScore {
		t.Fatalf("black to move score = %d, want %d", ev.Score, -ucitest.BaseScore)
	}
	if ev.FEN != afterE4.FEN {
		t.Fatalf("evaluation attached to wrong position")
	}
}

func TestAnalyzeBareScoreShape(t *testing.T) {
	a := newAdapter(t, ucitest.ModePlain)
	ev, err := a.Analyze(context.Background(), positionAfter(t, "d2d4"), DefaultOptions())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if ev.Score != -ucitest.BaseScore || ev.Mate {
		t.Fatalf("score = %d mate=%v, want %d", ev.Score, ev.Mate, -ucitest.BaseScore)
	}
}

func TestAnalyzeMateShapes(t *testing.T) {
	a := newAdapter(t, ucitest.ModeMate)
	ctx := context.Background()
	ev, err := a.Analyze(ctx, positionAfter(t), DefaultOptions())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if ev.Score != MateScore || !ev.Mate || ev.MateIn != 3 {
		t.Fatalf("white mates: %+v", ev)
	}
	ev, err = a.Analyze(ctx, positionAfter(t, "e2e4"), DefaultOptions())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if ev.Score != -MateScore || ev.MateIn != -3 {
		t.Fatalf("black mates: score=%d mateIn=%d", ev.Score, ev.MateIn)
	}

	mated := newAdapter(t, ucitest.ModeMated)
	ev, err = mated.Analyze(ctx, positionAfter(t), DefaultOptions())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if ev.Score != -MateScore || ev.MateIn != -2 {
		t.Fatalf("white is mated: score=%d mateIn=%d", ev.Score, ev.MateIn)
	}
}

func TestAnalyzeMultiPVLines(t *testing.T) {
	a := newAdapter(t, ucitest.ModeCentipawns)
	ev, err := a.Analyze(context.Background(), positionAfter(t), Options{MultiPV: 4})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(ev.Lines) != 4 {
		t.Fatalf("lines = %d, want 4", len(ev.Lines))
	}
	for i, l := range ev.Lines {
		if l.Rank != i+1 || l.SAN == "" {
			t.Fatalf("line %d malformed: %+v", i, l)
		}
	}
	if ev.Lines[0].Score <= ev.Lines[3].Score {
		t.Fatalf("lines not ranked: %d vs %d", ev.Lines[0].Score, ev.Lines[3].Score)
	}
}

func TestEngineKilledIsUnavailable(t *testing.T) {
	a := newAdapter(t, ucitest.ModeDie)
	store := board.NewStore()
	if _, err := a.Analyze(context.Background(), store.Current(), DefaultOptions()); !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("err = %v, want ErrEngineUnavailable", err)
	}
	if a.Alive() {
		t.Fatalf("adapter should report the engine as gone")
	}
	if _, err := a.Analyze(context.Background(), store.Current(), DefaultOptions()); !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("second err = %v, want ErrEngineUnavailable", err)
	}
	// the board keeps working without analysis
	m, _ := board.ParseMove("e2e4")
	if _, err := store.Apply(m); err != nil {
		t.Fatalf("Apply after engine death: %v", err)
	}
}

func TestTerminalPositionSkipsEngine(t *testing.T) {
	a := newAdapter(t, ucitest.ModeDie)
	pos := positionAfter(t, "f2f3", "e7e5", "g2g4", "d8h4")
	ev, err := a.Analyze(context.Background(), pos, DefaultOptions())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !ev.Terminal || ev.Score != -MateScore {
		t.Fatalf("mated white: %+v", ev)
	}
	if !a.Alive() {
		t.Fatalf("engine should not have been asked")
	}
}

func TestAnalyzeCancelled(t *testing.T) {
	a := newAdapter(t, ucitest.ModeHang)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := a.Analyze(ctx, positionAfter(t), DefaultOptions())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("cancellation must not look like an engine failure")
	}
	if !a.Alive() {
		t.Fatalf("engine should survive cancellation")
	}
}

func TestShutdownOnce(t *testing.T) {
	a := newAdapter(t, ucitest.ModeCentipawns)
	if err := a.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := a.Shutdown(); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if _, err := a.Analyze(context.Background(), positionAfter(t), DefaultOptions()); !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("err = %v, want ErrEngineUnavailable", err)
	}
}

func TestEvaluationCache(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	c := cache.NewFromClient(rdb, "test", nil)

	a := newAdapter(t, ucitest.ModeCentipawns, WithCache(c, time.Minute))
	pos := positionAfter(t, "e2e4")
	first, err := a.Analyze(context.Background(), pos, DefaultOptions())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if first.Cached {
		t.Fatalf("first result should come from the engine")
	}
	second, err := a.Analyze(context.Background(), pos, DefaultOptions())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !second.Cached || second.Score != first.Score || second.FEN != pos.FEN {
		t.Fatalf("cache miss or mismatch: %+v", second)
	}
	// a different budget is a different key
	other, err := a.Analyze(context.Background(), pos, Options{MultiPV: 2})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if other.Cached {
		t.Fatalf("multipv change must not hit the single-line entry")
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		score  uci.Score
		turn   nchess.Color
		want   int
		mate   bool
		mateIn int
	}{
		{uci.Score{Kind: uci.ScoreCentipawns, Value: 35}, nchess.White, 35, false, 0},
		{uci.Score{Kind: uci.ScoreCentipawns, Value: 35}, nchess.Black, -35, false, 0},
		{uci.Score{Kind: uci.ScorePlain, Value: -120}, nchess.Black, 120, false, 0},
		{uci.Score{Kind: uci.ScoreCentipawns, Value: 0}, nchess.Black, 0, false, 0},
		{uci.Score{Kind: uci.ScoreCentipawns, Value: 25000}, nchess.White, MateScore - 1, false, 0},
		{uci.Score{Kind: uci.ScoreMate, Value: 7}, nchess.White, MateScore, true, 7},
		{uci.Score{Kind: uci.ScoreMate, Value: 1}, nchess.Black, -MateScore, true, -1},
		{uci.Score{Kind: uci.ScoreMate, Value: -4}, nchess.Black, MateScore, true, 4},
		{uci.Score{Kind: uci.ScoreMate, Value: 0}, nchess.White, -MateScore, true, 0},
	}
	for _, c := range cases {
		got, mate, mateIn, err := Normalize(c.score, c.turn)
		if err != nil {
			t.Fatalf("Normalize(%+v): %v", c.score, err)
		}
		if got != c.want || mate != c.mate || mateIn != c.mateIn {
			t.Fatalf("Normalize(%+v, %v) = %d/%v/%d, want %d/%v/%d", c.score, c.turn, got, mate, mateIn, c.want, c.mate, c.mateIn)
		}
	}
	if _, _, _, err := Normalize(uci.Score{}, nchess.White); !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("missing score must be unknown, got %v", err)
	}
}

func TestWhiteShare(t *testing.T) {
	cases := map[int]float64{
		0:          0.5,
		500:        0.75,
		-500:       0.25,
		1000:       1,
		4000:       1,
		-4000:      0,
		MateScore:  1,
		-MateScore: 0,
	}
	for score, want := range cases {
		if got := WhiteShare(score); got != want {
			t.Fatalf("WhiteShare(%d) = %v, want %v", score, got, want)
		}
	}
}
