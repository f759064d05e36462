package board

import (
	"errors"
	"fmt"

	nchess "github.com/corentings/chess/v2"
)

var (
	ErrIllegalMove  = errors.New("illegal move")
	ErrEmptyHistory = errors.New("no moves to undo")
)

// Store owns the canonical position and the ordered list of applied moves.
// It is not safe for concurrent use; callers serialize access.
type Store struct {
	start   Position
	game    *nchess.Game
	history []HistoryEntry
}

func NewStore() *Store {
	s := &Store{}
	s.Reset()
	return s
}

// Current returns the present position.
func (s *Store) Current() Position {
	if n := len(s.history); n > 0 {
		return s.history[n-1].Position
	}
	return s.start
}

// Start returns the position history is rooted at.
func (s *Store) Start() Position { return s.start }

// History returns a copy of the applied moves, oldest first.
func (s *Store) History() []HistoryEntry {
	return append([]HistoryEntry(nil), s.history...)
}

func (s *Store) Len() int { return len(s.history) }

// Reset restores the standard starting position and clears history.
func (s *Store) Reset() {
	s.game = nchess.NewGame()
	s.start = positionFromGame(s.game)
	s.history = nil
}

// ResetTo roots the store at start and clears history. A start position that
// the rules provider cannot rebuild leaves the store unchanged.
func (s *Store) ResetTo(start Position) error {
	if start.IsZero() {
		s.Reset()
		return nil
	}
	game, err := start.Game()
	if err != nil {
		return err
	}
	s.game = game
	s.start = positionFromGame(game)
	s.history = nil
	return nil
}

// Apply validates m against Current and advances on success. On failure the
// store is unchanged and the error wraps ErrIllegalMove.
func (s *Store) Apply(m Move) (HistoryEntry, error) {
	before := s.game.Position()
	mv, err := decode(before, m)
	if err != nil {
		return HistoryEntry{}, fmt.Errorf("%w: %s: %v", ErrIllegalMove, m.UCI(), err)
	}
	next := s.game.Clone()
	if err := next.Move(mv, nil); err != nil {
		return HistoryEntry{}, fmt.Errorf("%w: %s: %v", ErrIllegalMove, m.UCI(), err)
	}
	entry := HistoryEntry{
		Move:     m,
		SAN:      nchess.AlgebraicNotation{}.Encode(before, mv),
		Position: positionFromGame(next),
	}
	s.game = next
	s.history = append(s.history, entry)
	return entry, nil
}

// Undo pops the newest entry and restores the prior position.
func (s *Store) Undo() (HistoryEntry, error) {
	n := len(s.history)
	if n == 0 {
		return HistoryEntry{}, ErrEmptyHistory
	}
	game, err := replay(s.start, s.history[:n-1])
	if err != nil {
		return HistoryEntry{}, fmt.Errorf("rebuild position: %w", err)
	}
	last := s.history[n-1]
	s.game = game
	s.history = s.history[:n-1:n-1]
	return last, nil
}

// Legal reports whether m can be played in Current.
func (s *Store) Legal(m Move) bool {
	mv, err := decode(s.game.Position(), m)
	if err != nil {
		return false
	}
	return s.game.Clone().Move(mv, nil) == nil
}

// NeedsPromotion reports whether a move from→to is a pawn reaching the last
// rank, which requires an explicit promotion piece.
func (s *Store) NeedsPromotion(from, to nchess.Square) bool {
	cur := s.Current()
	piece := cur.PieceAt(from)
	if piece.Type() != nchess.Pawn {
		return false
	}
	switch piece.Color() {
	case nchess.White:
		return to.Rank() == nchess.Rank8
	case nchess.Black:
		return to.Rank() == nchess.Rank1
	}
	return false
}

// SAN encodes m in standard algebraic notation relative to Current.
func (s *Store) SAN(m Move) (string, error) {
	pos := s.game.Position()
	mv, err := decode(pos, m)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrIllegalMove, m.UCI(), err)
	}
	return nchess.AlgebraicNotation{}.Encode(pos, mv), nil
}

// ParseNotation decodes UCI or SAN text against Current. Text in UCI shape
// is taken as UCI and only checked for syntax; legality is decided by Apply.
// The SAN decoder would otherwise read "g1f3" as a pawn move to f3.
func (s *Store) ParseNotation(text string) (Move, error) {
	if m, err := ParseMove(text); err == nil {
		return m, nil
	}
	pos := s.game.Position()
	mv, err := (nchess.AlgebraicNotation{}).Decode(pos, text)
	if err != nil {
		return Move{}, fmt.Errorf("%w: %q", ErrIllegalMove, text)
	}
	return FromProvider(mv), nil
}

// Line replays the history followed by extra moves into a fresh game. The
// extra moves must be legal continuations.
func (s *Store) Line(extra []Move) (*nchess.Game, error) {
	game, err := replay(s.start, s.history)
	if err != nil {
		return nil, err
	}
	for _, m := range extra {
		if _, err := PlayOn(game, m); err != nil {
			return nil, err
		}
	}
	return game, nil
}

// Moves returns the rules-provider moves of the history, for opening lookups.
func (s *Store) Moves() []*nchess.Move {
	return s.game.Moves()
}

func decode(pos *nchess.Position, m Move) (*nchess.Move, error) {
	return nchess.UCINotation{}.Decode(pos, m.UCI())
}

// FromProvider converts a rules-provider move.
func FromProvider(mv *nchess.Move) Move {
	return Move{From: mv.S1(), To: mv.S2(), Promotion: mv.Promo()}
}

func replay(start Position, entries []HistoryEntry) (*nchess.Game, error) {
	game, err := start.Game()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		mv, err := decode(game.Position(), e.Move)
		if err != nil {
			return nil, fmt.Errorf("decode move %s: %w", e.Move.UCI(), err)
		}
		if err := game.Move(mv, nil); err != nil {
			return nil, fmt.Errorf("apply move %s: %w", e.Move.UCI(), err)
		}
	}
	return game, nil
}

// PlayOn plays m on game in place and returns its SAN.
func PlayOn(game *nchess.Game, m Move) (string, error) {
	pos := game.Position()
	mv, err := decode(pos, m)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrIllegalMove, m.UCI(), err)
	}
	san := nchess.AlgebraicNotation{}.Encode(pos, mv)
	if err := game.Move(mv, nil); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrIllegalMove, m.UCI(), err)
	}
	return san, nil
}
