package board

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Position is an immutable snapshot of a game state. Two positions are the
// same iff their FENs are equal.
type Position struct {
	FEN     string
	Turn    nchess.Color
	Check   bool
	Outcome nchess.Outcome
	Method  nchess.Method

	pos *nchess.Position
}

func positionFromGame(game *nchess.Game) Position {
	p := Position{
		FEN:     game.FEN(),
		Outcome: game.Outcome(),
		Method:  game.Method(),
		pos:     game.Position(),
	}
	if p.pos != nil {
		p.Turn = p.pos.Turn()
	}
	if moves := game.Moves(); len(moves) > 0 {
		p.Check = moves[len(moves)-1].HasTag(nchess.Check)
	}
	return p
}

// ParseFEN builds a Position from a FEN string using the rules provider.
func ParseFEN(fen string) (Position, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" || fen == "startpos" {
		return positionFromGame(nchess.NewGame()), nil
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return Position{}, fmt.Errorf("parse fen %q: %w", fen, err)
	}
	return positionFromGame(nchess.NewGame(opt)), nil
}

// Initial returns the standard starting position.
func Initial() Position {
	return positionFromGame(nchess.NewGame())
}

// IsZero reports whether p was never produced by the rules provider.
func (p Position) IsZero() bool { return p.FEN == "" }

// Same reports whether both positions describe the same game state.
func (p Position) Same(other Position) bool { return p.FEN == other.FEN }

// Terminal reports whether the game is over in this position.
func (p Position) Terminal() bool { return p.Outcome != nchess.NoOutcome }

// PieceAt returns the piece on sq, or nchess.NoPiece.
func (p Position) PieceAt(sq nchess.Square) nchess.Piece {
	if p.pos == nil {
		return nchess.NoPiece
	}
	b := p.pos.Board()
	if b == nil {
		return nchess.NoPiece
	}
	return b.Piece(sq)
}

// Board exposes the rules provider's board for display code.
func (p Position) Board() *nchess.Board {
	if p.pos == nil {
		return nil
	}
	return p.pos.Board()
}

// TurnName is "white" or "black".
func (p Position) TurnName() string {
	if p.Turn == nchess.Black {
		return "black"
	}
	return "white"
}

// Game rebuilds a rules-provider game rooted at this position. Repetition
// history before p is not carried over.
func (p Position) Game() (*nchess.Game, error) {
	if p.FEN == "" || p.FEN == StartFEN {
		return nchess.NewGame(), nil
	}
	opt, err := nchess.FEN(p.FEN)
	if err != nil {
		return nil, fmt.Errorf("parse fen %q: %w", p.FEN, err)
	}
	return nchess.NewGame(opt), nil
}
