// Package coordinator keeps the board, the timeline, pointer input and the
// latest engine evaluation consistent, and publishes one snapshot per action.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	nchess "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/chess-analysis-board/internal/chess/analysis"
	"github.com/park285/chess-analysis-board/internal/chess/board"
	"github.com/park285/chess-analysis-board/internal/chess/input"
	"github.com/park285/chess-analysis-board/internal/chess/record"
	"github.com/park285/chess-analysis-board/internal/chess/timeline"
	"github.com/park285/chess-analysis-board/internal/service/archive"
	"github.com/park285/chess-analysis-board/pkg/analysisdto"
)

var (
	ErrClosed          = errors.New("coordinator closed")
	ErrArchiveDisabled = errors.New("archive not configured")
)

// Notice codes carried in snapshots.
const (
	NoticeIllegalMove       = "illegal_move"
	NoticeNoFutureMoves     = "no_future_moves"
	NoticeNoPastMoves       = "no_past_moves"
	NoticeRecordParse       = "record_parse"
	NoticeEngineUnavailable = "engine_unavailable"
	NoticePromotionRequired = "promotion_required"
	NoticeNoSelection       = "no_selection"
)

// Analyzer evaluates one position. *analysis.Adapter satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, pos board.Position, opts analysis.Options) (analysis.Evaluation, error)
}

// Publisher receives every snapshot in order. Publish must not block.
type Publisher interface {
	Publish(snap analysisdto.Snapshot)
}

// WorkspaceStore persists the current line between restarts.
// *cache.CacheService satisfies it.
type WorkspaceStore interface {
	Lookup(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

type Config struct {
	Analysis     analysis.Options
	TopMoves     analysis.Options
	Geometry     input.Geometry
	Publisher    Publisher
	Workspace    WorkspaceStore
	WorkspaceKey string
	WorkspaceTTL time.Duration
	Archive      archive.Repository
	Logger       *zap.Logger
}

// Coordinator owns all board state. Every method is safe for concurrent use;
// mutations run to completion under one mutex.
type Coordinator struct {
	analyzer Analyzer
	cfg      Config
	logger   *zap.Logger
	session  string
	book     *opening.BookECO

	base   context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	closed bool

	mu        sync.Mutex
	tl        *timeline.Timeline
	validator *input.Validator
	flipped   bool
	seq       uint64

	gen         uint64
	cancel      context.CancelFunc
	analysisFEN string
	status      string
	eval        *analysis.Evaluation
	scores      map[string]int
}

func New(analyzer Analyzer, cfg Config) (*Coordinator, error) {
	if analyzer == nil {
		return nil, fmt.Errorf("nil analyzer")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Analysis.Profile.Name == "" {
		cfg.Analysis = analysis.DefaultOptions()
	}
	if cfg.TopMoves.Profile.Name == "" {
		cfg.TopMoves = analysis.DefaultTopMovesOptions()
	}
	if cfg.Geometry.SquareSize <= 0 {
		cfg.Geometry = input.NewGeometry(input.DefaultSquareSize)
	}
	if cfg.WorkspaceKey == "" {
		cfg.WorkspaceKey = "default"
	}
	if cfg.WorkspaceTTL <= 0 {
		cfg.WorkspaceTTL = 30 * 24 * time.Hour
	}
	tl := timeline.New(nil)
	base, stop := context.WithCancel(context.Background())
	c := &Coordinator{
		analyzer:  analyzer,
		cfg:       cfg,
		logger:    cfg.Logger,
		session:   uuid.NewString(),
		book:      opening.NewBookECO(),
		base:      base,
		stop:      stop,
		tl:        tl,
		validator: input.NewValidator(tl.Store()),
		scores:    make(map[string]int),
	}
	return c, nil
}

// Start publishes the initial snapshot and begins analysing it.
func (c *Coordinator) Start() analysisdto.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settleLocked("start", "")
}

// Snapshot returns the current view without mutating anything.
func (c *Coordinator) Snapshot() analysisdto.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buildLocked("snapshot", "", nil)
}

// LoadPGN replaces the timeline with the first game of r. A malformed record
// changes nothing.
func (c *Coordinator) LoadPGN(r io.Reader) (analysisdto.Snapshot, error) {
	rec, err := record.ParsePGN(r)
	if err != nil {
		return c.fail("load", NoticeRecordParse, err)
	}
	return c.LoadRecord(rec)
}

// LoadRecord positions the board at the record's start with every move ahead.
func (c *Coordinator) LoadRecord(rec record.Record) (analysisdto.Snapshot, error) {
	return c.mutate("load", func() (string, error) {
		if err := c.tl.Load(rec.Start, rec.Moves); err != nil {
			return NoticeRecordParse, err
		}
		c.validator.Cancel()
		clear(c.scores)
		return "", nil
	})
}

func (c *Coordinator) StepForward() (analysisdto.Snapshot, error) {
	return c.mutate("forward", func() (string, error) {
		c.validator.Cancel()
		_, err := c.tl.StepForward()
		return noticeFor(err), err
	})
}

func (c *Coordinator) StepBackward() (analysisdto.Snapshot, error) {
	return c.mutate("backward", func() (string, error) {
		c.validator.Cancel()
		_, err := c.tl.StepBackward()
		return noticeFor(err), err
	})
}

// RecordNewMove plays a user move. The remaining future is discarded; an
// illegal move changes nothing.
func (c *Coordinator) RecordNewMove(m board.Move) (analysisdto.Snapshot, error) {
	return c.mutate("move", func() (string, error) {
		c.validator.Cancel()
		_, err := c.tl.RecordNewMove(m)
		return noticeFor(err), err
	})
}

// PlayNotation plays a move given as SAN or UCI text.
func (c *Coordinator) PlayNotation(text string) (analysisdto.Snapshot, error) {
	return c.mutate("move", func() (string, error) {
		m, err := c.tl.Store().ParseNotation(text)
		if err != nil {
			return NoticeIllegalMove, err
		}
		c.validator.Cancel()
		_, err = c.tl.RecordNewMove(m)
		return noticeFor(err), err
	})
}

func (c *Coordinator) Reset() (analysisdto.Snapshot, error) {
	return c.mutate("reset", func() (string, error) {
		c.validator.Cancel()
		c.tl.Reset()
		clear(c.scores)
		return "", nil
	})
}

// Press handles a pointer press in board-local pixels.
func (c *Coordinator) Press(p input.Point) (analysisdto.Snapshot, error) {
	return c.mutate("press", func() (string, error) {
		return c.pressLocked(c.cfg.Geometry.SquareAt(p, c.flipped))
	})
}

// PressSquare is Press addressed by square instead of pixels.
func (c *Coordinator) PressSquare(sq nchess.Square) (analysisdto.Snapshot, error) {
	return c.mutate("press", func() (string, error) {
		return c.pressLocked(sq)
	})
}

func (c *Coordinator) Release(p input.Point) (analysisdto.Snapshot, error) {
	return c.mutate("release", func() (string, error) {
		return c.releaseLocked(c.cfg.Geometry.SquareAt(p, c.flipped))
	})
}

func (c *Coordinator) ReleaseSquare(sq nchess.Square) (analysisdto.Snapshot, error) {
	return c.mutate("release", func() (string, error) {
		return c.releaseLocked(sq)
	})
}

func (c *Coordinator) Promote(pt nchess.PieceType) (analysisdto.Snapshot, error) {
	return c.mutate("promote", func() (string, error) {
		out, err := c.validator.Promote(pt)
		if err != nil {
			return noticeFor(err), err
		}
		return c.commitLocked(out)
	})
}

func (c *Coordinator) CancelInput() (analysisdto.Snapshot, error) {
	return c.mutate("cancel", func() (string, error) {
		c.validator.Cancel()
		return "", nil
	})
}

// Drag records a floating-piece frame. It never changes the position, so the
// running analysis is untouched.
func (c *Coordinator) Drag(p input.Point) (analysisdto.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.buildLocked("drag", "", nil), ErrClosed
	}
	if err := c.validator.Drag(p); err != nil {
		return c.buildLocked("drag", NoticeNoSelection, nil), err
	}
	g := c.validator.Gesture()
	var frame *analysisdto.DragFrame
	for pt := range g.Frames() {
		frame = &analysisdto.DragFrame{Square: board.SquareName(g.Origin), Piece: g.Piece.String(), X: pt.X, Y: pt.Y}
	}
	c.seq++
	snap := c.buildLocked("drag", "", frame)
	c.publishLocked(snap)
	return snap, nil
}

// Flip sets the orientation, or toggles it when flipped is nil. Only
// coordinates change; the position and its analysis are untouched.
func (c *Coordinator) Flip(flipped *bool) (analysisdto.Snapshot, error) {
	return c.mutate("flip", func() (string, error) {
		if flipped == nil {
			c.flipped = !c.flipped
		} else {
			c.flipped = *flipped
		}
		return "", nil
	})
}

// TopMoves runs a one-shot multi-line search of the current position. It
// queues behind any running analysis on the same engine.
func (c *Coordinator) TopMoves(ctx context.Context, n int) (analysisdto.TopMovesResponse, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return analysisdto.TopMovesResponse{}, ErrClosed
	}
	pos := c.tl.Current()
	c.mu.Unlock()

	opts := c.cfg.TopMoves
	if n > 0 {
		opts.MultiPV = n
	}
	ev, err := c.analyzer.Analyze(ctx, pos, opts)
	if err != nil {
		return analysisdto.TopMovesResponse{}, err
	}
	view := EvaluationView(ev)
	return analysisdto.TopMovesResponse{FEN: ev.FEN, Lines: view.Lines}, nil
}

// Close cancels the running analysis and waits for it to finish.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()
	c.stop()
	c.wg.Wait()
}

func (c *Coordinator) pressLocked(sq nchess.Square) (string, error) {
	out, err := c.validator.Press(sq)
	if err != nil {
		return noticeFor(err), err
	}
	return c.commitLocked(out)
}

func (c *Coordinator) releaseLocked(sq nchess.Square) (string, error) {
	out, err := c.validator.Release(sq)
	if err != nil {
		return noticeFor(err), err
	}
	return c.commitLocked(out)
}

// commitLocked turns an accepted candidate into a timeline move.
func (c *Coordinator) commitLocked(out input.Outcome) (string, error) {
	switch out.Result {
	case input.Candidate:
		if _, err := c.tl.RecordNewMove(out.Move); err != nil {
			return noticeFor(err), err
		}
	case input.Rejected:
		return NoticeIllegalMove, nil
	}
	return "", nil
}

// mutate runs fn under the lock and then settles analysis and publishes,
// whether fn succeeded or not.
func (c *Coordinator) mutate(action string, fn func() (string, error)) (analysisdto.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.buildLocked(action, "", nil), ErrClosed
	}
	notice, err := fn()
	snap := c.settleLocked(action, notice)
	if err != nil {
		c.logger.Debug("action rejected", zap.String("action", action), zap.Error(err))
		return snap, err
	}
	c.persistLocked()
	return snap, nil
}

// fail publishes a snapshot for an action that failed before touching state.
func (c *Coordinator) fail(action, notice string, err error) (analysisdto.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.buildLocked(action, "", nil), ErrClosed
	}
	return c.settleLocked(action, notice), err
}

// settleLocked ensures exactly one analysis is keyed to the current position
// and publishes a snapshot.
func (c *Coordinator) settleLocked(action, notice string) analysisdto.Snapshot {
	cur := c.tl.Current()
	if cur.FEN != c.analysisFEN {
		c.startAnalysisLocked(cur)
	}
	c.seq++
	snap := c.buildLocked(action, notice, nil)
	c.publishLocked(snap)
	return snap
}

func (c *Coordinator) startAnalysisLocked(pos board.Position) {
	if c.cancel != nil {
		c.cancel()
	}
	c.gen++
	c.analysisFEN = pos.FEN
	c.eval = nil
	c.status = analysisdto.StatusPending

	ctx, cancel := context.WithCancel(c.base)
	c.cancel = cancel
	gen := c.gen
	opts := c.cfg.Analysis
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		ev, err := c.analyzer.Analyze(ctx, pos, opts)
		c.finishAnalysis(ctx, gen, pos, ev, err)
	}()
}

// finishAnalysis applies a result only if it still belongs to the current
// generation and position.
func (c *Coordinator) finishAnalysis(ctx context.Context, gen uint64, pos board.Position, ev analysis.Evaluation, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.gen || pos.FEN != c.tl.Current().FEN {
		c.logger.Debug("stale analysis discarded", zap.String("fen", pos.FEN), zap.Uint64("gen", gen))
		return
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.status = analysisdto.StatusUnavailable
		c.eval = nil
		c.logger.Warn("analysis unavailable", zap.String("fen", pos.FEN), zap.Error(err))
		c.seq++
		c.publishLocked(c.buildLocked("analysis", NoticeEngineUnavailable, nil))
		return
	}
	if ev.FEN != pos.FEN {
		c.logger.Warn("evaluation for another position dropped", zap.String("want", pos.FEN), zap.String("got", ev.FEN))
		return
	}
	c.status = analysisdto.StatusReady
	c.eval = &ev
	c.scores[ev.FEN] = ev.Score
	c.seq++
	c.publishLocked(c.buildLocked("analysis", "", nil))
}

func (c *Coordinator) publishLocked(snap analysisdto.Snapshot) {
	if c.cfg.Publisher != nil {
		c.cfg.Publisher.Publish(snap)
	}
}

func noticeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, board.ErrIllegalMove):
		return NoticeIllegalMove
	case errors.Is(err, timeline.ErrNoFutureMoves):
		return NoticeNoFutureMoves
	case errors.Is(err, timeline.ErrNoPastMoves), errors.Is(err, board.ErrEmptyHistory):
		return NoticeNoPastMoves
	case errors.Is(err, input.ErrPromotionRequired):
		return NoticePromotionRequired
	case errors.Is(err, input.ErrNoSelection), errors.Is(err, input.ErrInvalidPromotion):
		return NoticeNoSelection
	case errors.Is(err, record.ErrRecordParse):
		return NoticeRecordParse
	default:
		return ""
	}
}
