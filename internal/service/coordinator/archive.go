package coordinator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/chess-analysis-board/internal/chess/record"
	"github.com/park285/chess-analysis-board/pkg/analysisdto"
)

// Archive saves the line up to the current position together with every
// evaluation known for it. Plies never evaluated are stored as null.
func (c *Coordinator) Archive(ctx context.Context, title string) (*analysisdto.AnalyzedGame, error) {
	if c.cfg.Archive == nil {
		return nil, ErrArchiveDisabled
	}
	game, err := c.archiveLocked(title)
	if err != nil {
		return nil, err
	}
	id, err := c.cfg.Archive.InsertGame(ctx, game)
	if err != nil {
		return nil, fmt.Errorf("archive line: %w", err)
	}
	game.ID = id
	c.logger.Info("line archived",
		zap.Int64("id", id),
		zap.String("uuid", game.UUID),
		zap.Int("plies", len(game.MovesUCI)))
	return game, nil
}

func (c *Coordinator) archiveLocked(title string) (*analysisdto.AnalyzedGame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	store := c.tl.Store()
	game := &analysisdto.AnalyzedGame{
		UUID:      uuid.NewString(),
		Title:     strings.TrimSpace(title),
		StartFEN:  store.Start().FEN,
		Result:    string(c.tl.Current().Outcome),
		CreatedAt: time.Now().UTC(),
	}
	for _, e := range c.tl.Past() {
		game.MovesUCI = append(game.MovesUCI, e.Move.UCI())
		game.MovesSAN = append(game.MovesSAN, e.SAN)
		if score, ok := c.scores[e.Position.FEN]; ok {
			game.Evaluations = append(game.Evaluations, &score)
		} else {
			game.Evaluations = append(game.Evaluations, nil)
		}
	}
	if o := c.openingLocked(); o != nil {
		game.Opening = o.ECO + " " + o.Name
	}
	pgn, err := store.Line(nil)
	if err != nil {
		return nil, fmt.Errorf("build pgn: %w", err)
	}
	game.PGN = pgn.String()
	return game, nil
}

// RecentArchives lists saved lines, newest first.
func (c *Coordinator) RecentArchives(ctx context.Context, limit int) ([]*analysisdto.AnalyzedGame, error) {
	if c.cfg.Archive == nil {
		return nil, ErrArchiveDisabled
	}
	return c.cfg.Archive.RecentGames(ctx, limit)
}

// Reopen loads a saved line at its start with every move ahead.
func (c *Coordinator) Reopen(ctx context.Context, id int64) (analysisdto.Snapshot, error) {
	if c.cfg.Archive == nil {
		return c.Snapshot(), ErrArchiveDisabled
	}
	game, err := c.cfg.Archive.GetGame(ctx, id)
	if err != nil {
		return c.Snapshot(), err
	}
	rec, err := record.FromUCI(game.StartFEN, game.MovesUCI)
	if err != nil {
		return c.fail("reopen", NoticeRecordParse, err)
	}
	return c.LoadRecord(rec)
}
