// Package analysis wraps the single UCI engine process and turns its output
// into evaluations on one fixed scale.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	corechess "github.com/park285/chess-analysis-board/internal/chess"
	"github.com/park285/chess-analysis-board/internal/chess/board"
	"github.com/park285/chess-analysis-board/internal/chess/uci"
	"github.com/park285/chess-analysis-board/internal/service/cache"
)

var ErrEngineUnavailable = errors.New("analysis engine unavailable")

const defaultCacheTTL = 24 * time.Hour

type EngineConfig struct {
	BinaryPath string
	Args       []string
	Env        []string
	Threads    int
	HashMB     int
}

// Options selects the search budget and the number of ranked lines.
type Options struct {
	Profile corechess.AnalysisProfile
	// MultiPV overrides the profile's line count when > 0.
	MultiPV int
}

// DefaultOptions is the short per-position budget used after every action.
func DefaultOptions() Options {
	p, _ := corechess.GetProfile(corechess.ProfileQuick)
	return Options{Profile: p}
}

// DefaultTopMovesOptions is the on-demand multi-line budget.
func DefaultTopMovesOptions() Options {
	p, _ := corechess.GetProfile(corechess.ProfileTop)
	return Options{Profile: p}
}

func (o Options) profile() corechess.AnalysisProfile {
	p := o.Profile
	if p.MultiPV <= 0 && p.MoveTimeMillis == 0 && p.DepthCap == 0 && p.NodeCap == 0 {
		p = DefaultOptions().Profile
	}
	if o.MultiPV > 0 {
		p = p.WithMultiPV(o.MultiPV)
	}
	return p
}

type Option func(*Adapter)

func WithLogger(logger *zap.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithCache stores evaluations in Redis keyed by FEN and budget.
func WithCache(c *cache.CacheService, ttl time.Duration) Option {
	return func(a *Adapter) {
		a.cache = c
		if ttl > 0 {
			a.cacheTTL = ttl
		}
	}
}

// Adapter serializes analysis requests onto one engine process.
type Adapter struct {
	slot     *uci.Slot
	cache    *cache.CacheService
	cacheTTL time.Duration
	logger   *zap.Logger

	shutdownOnce sync.Once
	shutdownErr  error
}

// New starts the engine. The process lives until Shutdown.
func New(ctx context.Context, cfg EngineConfig, opts ...Option) (*Adapter, error) {
	a := &Adapter{cacheTTL: defaultCacheTTL, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	slot, err := uci.NewSlot(ctx, uci.Config{
		BinaryPath: cfg.BinaryPath,
		Args:       cfg.Args,
		Env:        cfg.Env,
		Threads:    cfg.Threads,
		HashMB:     cfg.HashMB,
		Logger:     a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	a.slot = slot
	a.logger.Info("analysis engine started", zap.String("binary", cfg.BinaryPath))
	return a, nil
}

// Analyze evaluates pos. The result always carries pos.FEN. Cancellation
// returns the context error; every engine failure wraps ErrEngineUnavailable.
func (a *Adapter) Analyze(ctx context.Context, pos board.Position, opts Options) (Evaluation, error) {
	if pos.IsZero() {
		return Evaluation{}, fmt.Errorf("analyze: empty position")
	}
	profile := opts.profile()
	if err := corechess.ValidateProfile(profile); err != nil {
		return Evaluation{}, fmt.Errorf("analyze: %w", err)
	}
	if pos.Terminal() {
		return terminalEvaluation(pos, profile), nil
	}

	key := cacheKey(pos.FEN, profile)
	if ev, ok := a.lookup(ctx, key); ok && ev.FEN == pos.FEN {
		return ev, nil
	}

	started := time.Now()
	resp, err := a.slot.Search(ctx, uci.SearchRequest{
		FEN:     pos.FEN,
		Limits:  corechess.LimitsFor(profile),
		MultiPV: profile.MultiPV,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			return Evaluation{}, ctxErr
		}
		a.logger.Warn("analysis failed", zap.String("fen", pos.FEN), zap.Error(err))
		return Evaluation{}, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	ev, err := buildEvaluation(pos, profile, resp)
	if err != nil {
		return Evaluation{}, err
	}
	ev.Duration = time.Since(started)
	a.logger.Debug("analysis done",
		zap.String("fen", pos.FEN),
		zap.Int("score", ev.Score),
		zap.String("best", ev.BestMove),
		zap.Int("depth", ev.Depth),
		zap.Duration("took", ev.Duration))
	a.store(ctx, key, ev)
	return ev, nil
}

// Alive reports whether the engine can still answer.
func (a *Adapter) Alive() bool { return a.slot.Alive() }

// Shutdown stops the engine process. Later calls return the first result.
func (a *Adapter) Shutdown() error {
	a.shutdownOnce.Do(func() {
		a.shutdownErr = a.slot.Close()
		a.logger.Info("analysis engine stopped")
	})
	return a.shutdownErr
}

func (a *Adapter) lookup(ctx context.Context, key string) (Evaluation, bool) {
	if a.cache == nil {
		return Evaluation{}, false
	}
	var ev Evaluation
	ok, err := a.cache.Lookup(ctx, key, &ev)
	if err != nil {
		a.logger.Warn("evaluation cache read failed", zap.Error(err))
		return Evaluation{}, false
	}
	if !ok {
		return Evaluation{}, false
	}
	ev.Cached = true
	return ev, true
}

func (a *Adapter) store(ctx context.Context, key string, ev Evaluation) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Set(ctx, key, ev, a.cacheTTL); err != nil {
		a.logger.Warn("evaluation cache write failed", zap.Error(err))
	}
}

func cacheKey(fen string, p corechess.AnalysisProfile) string {
	return "eval:" + p.Key() + ":" + fen
}
