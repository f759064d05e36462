package board

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// Move is an origin/destination pair plus an optional promotion piece type.
// It only has meaning relative to the position it was validated against.
type Move struct {
	From      nchess.Square
	To        nchess.Square
	Promotion nchess.PieceType
}

// NewMove builds a move without promotion.
func NewMove(from, to nchess.Square) Move {
	return Move{From: from, To: to, Promotion: nchess.NoPieceType}
}

// UCI renders the move in long algebraic form, e.g. "e7e8q".
func (m Move) UCI() string {
	s := SquareName(m.From) + SquareName(m.To)
	if c := promotionLetter(m.Promotion); c != "" {
		s += c
	}
	return s
}

func (m Move) String() string { return m.UCI() }

// ParseMove parses long algebraic notation ("e2e4", "a7a8n").
func ParseMove(text string) (Move, error) {
	s := strings.ToLower(strings.TrimSpace(text))
	if len(s) != 4 && len(s) != 5 {
		return Move{}, fmt.Errorf("invalid move %q", text)
	}
	from, err := ParseSquare(s[0:2])
	if err != nil {
		return Move{}, fmt.Errorf("invalid move %q: %w", text, err)
	}
	to, err := ParseSquare(s[2:4])
	if err != nil {
		return Move{}, fmt.Errorf("invalid move %q: %w", text, err)
	}
	mv := NewMove(from, to)
	if len(s) == 5 {
		pt, ok := ParsePromotion(s[4:])
		if !ok {
			return Move{}, fmt.Errorf("invalid promotion in %q", text)
		}
		mv.Promotion = pt
	}
	return mv, nil
}

// ParseMoves parses a list of long algebraic moves.
func ParseMoves(texts []string) ([]Move, error) {
	out := make([]Move, 0, len(texts))
	for _, t := range texts {
		mv, err := ParseMove(t)
		if err != nil {
			return nil, err
		}
		out = append(out, mv)
	}
	return out, nil
}

// ParseSquare parses "a1".."h8".
func ParseSquare(text string) (nchess.Square, error) {
	s := strings.ToLower(strings.TrimSpace(text))
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return nchess.NoSquare, fmt.Errorf("invalid square %q", text)
	}
	return nchess.NewSquare(nchess.File(s[0]-'a'), nchess.Rank(s[1]-'1')), nil
}

// SquareName renders a square as "e4".
func SquareName(sq nchess.Square) string {
	if sq == nchess.NoSquare {
		return "-"
	}
	return string([]byte{'a' + byte(sq.File()), '1' + byte(sq.Rank())})
}

// ParsePromotion accepts q, r, b, n (any case) or their English names.
func ParsePromotion(text string) (nchess.PieceType, bool) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "q", "queen":
		return nchess.Queen, true
	case "r", "rook":
		return nchess.Rook, true
	case "b", "bishop":
		return nchess.Bishop, true
	case "n", "knight":
		return nchess.Knight, true
	default:
		return nchess.NoPieceType, false
	}
}

func promotionLetter(pt nchess.PieceType) string {
	switch pt {
	case nchess.Queen:
		return "q"
	case nchess.Rook:
		return "r"
	case nchess.Bishop:
		return "b"
	case nchess.Knight:
		return "n"
	default:
		return ""
	}
}

// HistoryEntry is an applied move together with the position it produced.
type HistoryEntry struct {
	Move     Move
	SAN      string
	Position Position
}
