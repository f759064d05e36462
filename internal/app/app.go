// Package app wires the analysis board from configuration.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	corechess "github.com/park285/chess-analysis-board/internal/chess"
	"github.com/park285/chess-analysis-board/internal/chess/analysis"
	"github.com/park285/chess-analysis-board/internal/chess/board"
	"github.com/park285/chess-analysis-board/internal/chess/input"
	"github.com/park285/chess-analysis-board/internal/config"
	"github.com/park285/chess-analysis-board/internal/feed"
	"github.com/park285/chess-analysis-board/internal/httpapi"
	"github.com/park285/chess-analysis-board/internal/msgcat"
	"github.com/park285/chess-analysis-board/internal/service/archive"
	"github.com/park285/chess-analysis-board/internal/service/cache"
	"github.com/park285/chess-analysis-board/internal/service/coordinator"
)

// App owns every long-lived dependency of the server.
type App struct {
	Engine      *analysis.Adapter
	Cache       *cache.CacheService
	Archive     archive.Repository
	Feed        *feed.Hub
	Coordinator *coordinator.Coordinator
	Handler     http.Handler

	db     *sql.DB
	logger *zap.Logger
}

// New builds the board. Redis and Postgres are optional. An engine that
// fails to start leaves the board usable without evaluations.
func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.RegisterProfiles(); err != nil {
		return nil, err
	}
	analysisProfile, err := corechess.GetProfile(cfg.AnalysisProfile)
	if err != nil {
		return nil, err
	}
	topProfile, err := corechess.GetProfile(cfg.TopMovesProfile)
	if err != nil {
		return nil, err
	}

	a := &App{logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	msgs, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	// Cache (Redis optional)
	if strings.TrimSpace(cfg.RedisURL) != "" {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		a.Cache, err = cache.NewCacheService(cctx, cache.Config{URL: cfg.RedisURL, Prefix: cfg.CachePrefix}, logger.Named("cache"))
		cancel()
		if err != nil {
			return nil, fmt.Errorf("init cache: %w", err)
		}
	}

	// Archive (Postgres optional, in-memory otherwise)
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		repo, db, err := openArchive(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.db, a.Archive = db, repo
	} else {
		a.Archive = archive.NewMemoryRepository()
		logger.Info("archive kept in memory", zap.String("reason", "DATABASE_URL not set"))
	}

	// Engine
	engineOpts := []analysis.Option{analysis.WithLogger(logger.Named("engine"))}
	if a.Cache != nil {
		engineOpts = append(engineOpts, analysis.WithCache(a.Cache, time.Duration(cfg.EvalCacheTTLSec)*time.Second))
	}
	var analyzer coordinator.Analyzer
	a.Engine, err = analysis.New(ctx, analysis.EngineConfig{
		BinaryPath: cfg.StockfishPath,
		Threads:    cfg.EngineThreads,
		HashMB:     cfg.EngineHashMB,
	}, engineOpts...)
	if err != nil {
		logger.Error("engine start failed, continuing without analysis", zap.Error(err))
		analyzer = offlineAnalyzer{err: err}
	} else {
		analyzer = a.Engine
	}

	a.Feed = feed.NewHub(feed.WithLogger(logger.Named("feed")), feed.WithOriginPatterns(cfg.AllowedOrigins...))

	ccfg := coordinator.Config{
		Analysis:     analysis.Options{Profile: analysisProfile},
		TopMoves:     analysis.Options{Profile: topProfile, MultiPV: cfg.TopMoves},
		Geometry:     input.NewGeometry(cfg.SquareSize),
		Publisher:    a.Feed,
		WorkspaceKey: cfg.WorkspaceKey,
		WorkspaceTTL: time.Duration(cfg.WorkspaceTTLSec) * time.Second,
		Archive:      a.Archive,
		Logger:       logger.Named("board"),
	}
	if a.Cache != nil {
		ccfg.Workspace = a.Cache
	}
	a.Coordinator, err = coordinator.New(analyzer, ccfg)
	if err != nil {
		return nil, err
	}
	a.Coordinator.Start()
	rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	snap, restored, err := a.Coordinator.Restore(rctx)
	cancel()
	switch {
	case err != nil:
		logger.Warn("workspace restore failed, starting fresh", zap.Error(err))
	case restored:
		logger.Info("workspace restored", zap.Int("ply", snap.Position.Ply), zap.Int("future", len(snap.Future)))
	}

	server := httpapi.New(a.Coordinator, a.Feed,
		httpapi.WithLogger(logger.Named("http")),
		httpapi.WithMessages(msgs),
		httpapi.WithHealth(a.EngineAlive),
	)
	a.Handler = server.Routes()
	ok = true
	return a, nil
}

// EngineAlive reports whether evaluations can still be produced.
func (a *App) EngineAlive() bool {
	return a.Engine != nil && a.Engine.Alive()
}

// Close stops analysis, drops feed subscribers and releases storage.
func (a *App) Close() {
	if a.Coordinator != nil {
		a.Coordinator.Close()
	}
	if a.Feed != nil {
		a.Feed.Close()
	}
	if a.Engine != nil {
		if err := a.Engine.Shutdown(); err != nil {
			a.logger.Warn("engine shutdown", zap.Error(err))
		}
	}
	if a.Cache != nil {
		_ = a.Cache.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

func openArchive(ctx context.Context, dsn string) (archive.Repository, *sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := archive.Migrate(pctx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrate archive: %w", err)
	}
	return archive.NewRepository(db), db, nil
}

// offlineAnalyzer stands in when the engine never started.
type offlineAnalyzer struct{ err error }

func (o offlineAnalyzer) Analyze(ctx context.Context, pos board.Position, opts analysis.Options) (analysis.Evaluation, error) {
	if errors.Is(o.err, analysis.ErrEngineUnavailable) {
		return analysis.Evaluation{}, o.err
	}
	return analysis.Evaluation{}, fmt.Errorf("%w: %v", analysis.ErrEngineUnavailable, o.err)
}
