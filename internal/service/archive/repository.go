// Package archive stores analysed lines: the moves, the evaluation after every
// ply and the PGN.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/park285/chess-analysis-board/pkg/analysisdto"
)

var (
	ErrDuplicateGame = errors.New("analysed game already exists")
	ErrGameNotFound  = errors.New("analysed game not found")
)

type Repository interface {
	InsertGame(ctx context.Context, game *analysisdto.AnalyzedGame) (int64, error)
	RecentGames(ctx context.Context, limit int) ([]*analysisdto.AnalyzedGame, error)
	GetGame(ctx context.Context, id int64) (*analysisdto.AnalyzedGame, error)
}

const schema = `
	CREATE TABLE IF NOT EXISTS analyzed_games (
		id          BIGSERIAL PRIMARY KEY,
		uuid        TEXT NOT NULL UNIQUE,
		title       TEXT NOT NULL DEFAULT '',
		start_fen   TEXT NOT NULL,
		moves_uci   JSONB NOT NULL,
		moves_san   JSONB NOT NULL,
		evaluations JSONB NOT NULL,
		opening     TEXT NOT NULL DEFAULT '',
		result      TEXT NOT NULL DEFAULT '*',
		pgn         TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`

type repository struct {
	db       *sql.DB
	queryRow func(ctx context.Context, query string, args ...any) scanner
}

func NewRepository(db *sql.DB) Repository {
	return &repository{
		db: db,
		queryRow: func(ctx context.Context, query string, args ...any) scanner {
			return db.QueryRowContext(ctx, query, args...)
		},
	}
}

// Migrate creates the archive table when it does not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create analyzed_games: %w", err)
	}
	return nil
}

func (r *repository) InsertGame(ctx context.Context, game *analysisdto.AnalyzedGame) (int64, error) {
	if game == nil {
		return 0, fmt.Errorf("nil analysed game payload")
	}

	movesUCI, err := json.Marshal(nonNil(game.MovesUCI))
	if err != nil {
		return 0, fmt.Errorf("marshal moves_uci: %w", err)
	}
	movesSAN, err := json.Marshal(nonNil(game.MovesSAN))
	if err != nil {
		return 0, fmt.Errorf("marshal moves_san: %w", err)
	}
	evals := game.Evaluations
	if evals == nil {
		evals = []*int{}
	}
	evaluations, err := json.Marshal(evals)
	if err != nil {
		return 0, fmt.Errorf("marshal evaluations: %w", err)
	}

	const query = `
		INSERT INTO analyzed_games (
			uuid,
			title,
			start_fen,
			moves_uci,
			moves_san,
			evaluations,
			opening,
			result,
			pgn,
			created_at
		)
		VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6::jsonb, $7, $8, $9, $10)
		ON CONFLICT (uuid) DO NOTHING
		RETURNING id`

	var id sql.NullInt64
	err = r.queryRow(
		ctx,
		query,
		game.UUID,
		game.Title,
		game.StartFEN,
		movesUCI,
		movesSAN,
		evaluations,
		game.Opening,
		game.Result,
		game.PGN,
		game.CreatedAt,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !id.Valid) {
		return 0, ErrDuplicateGame
	}
	if err != nil {
		return 0, fmt.Errorf("insert analysed game: %w", err)
	}
	return id.Int64, nil
}

const selectColumns = `
		SELECT
			id,
			uuid,
			title,
			start_fen,
			moves_uci,
			moves_san,
			evaluations,
			opening,
			result,
			pgn,
			created_at
		FROM analyzed_games`

func (r *repository) RecentGames(ctx context.Context, limit int) ([]*analysisdto.AnalyzedGame, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, selectColumns+`
		ORDER BY created_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("select analysed games: %w", err)
	}
	defer rows.Close()

	games := make([]*analysisdto.AnalyzedGame, 0, limit)
	for rows.Next() {
		game, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, game)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analysed games: %w", err)
	}
	return games, nil
}

func (r *repository) GetGame(ctx context.Context, id int64) (*analysisdto.AnalyzedGame, error) {
	game, err := scanGame(r.queryRow(ctx, selectColumns+`
		WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGameNotFound
	}
	return game, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGame(row scanner) (*analysisdto.AnalyzedGame, error) {
	var (
		game            analysisdto.AnalyzedGame
		movesUCIJSON    []byte
		movesSANJSON    []byte
		evaluationsJSON []byte
	)
	if err := row.Scan(
		&game.ID,
		&game.UUID,
		&game.Title,
		&game.StartFEN,
		&movesUCIJSON,
		&movesSANJSON,
		&evaluationsJSON,
		&game.Opening,
		&game.Result,
		&game.PGN,
		&game.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan analysed game: %w", err)
	}
	if err := json.Unmarshal(movesUCIJSON, &game.MovesUCI); err != nil {
		return nil, fmt.Errorf("unmarshal moves_uci: %w", err)
	}
	if err := json.Unmarshal(movesSANJSON, &game.MovesSAN); err != nil {
		return nil, fmt.Errorf("unmarshal moves_san: %w", err)
	}
	if err := json.Unmarshal(evaluationsJSON, &game.Evaluations); err != nil {
		return nil, fmt.Errorf("unmarshal evaluations: %w", err)
	}
	return &game, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
