// Package input turns board pointer events into candidate moves.
package input

import (
	"errors"
	"fmt"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/chess-analysis-board/internal/chess/board"
)

var (
	ErrNoSelection       = errors.New("no piece selected")
	ErrPromotionRequired = errors.New("promotion piece required")
	ErrInvalidPromotion  = errors.New("invalid promotion piece")
)

type State int

const (
	Idle State = iota
	PieceSelected
	AwaitingPromotion
)

func (s State) String() string {
	switch s {
	case PieceSelected:
		return "selected"
	case AwaitingPromotion:
		return "awaiting_promotion"
	default:
		return "idle"
	}
}

// Result classifies what an input event did.
type Result int

const (
	Ignored Result = iota
	Selected
	Candidate
	Rejected
	PromotionPending
	Cancelled
)

func (r Result) String() string {
	switch r {
	case Selected:
		return "selected"
	case Candidate:
		return "candidate"
	case Rejected:
		return "rejected"
	case PromotionPending:
		return "promotion_pending"
	case Cancelled:
		return "cancelled"
	default:
		return "ignored"
	}
}

// Outcome is returned by every event. For Candidate, Move is a legal move the
// caller still has to commit.
type Outcome struct {
	Result Result
	Move   board.Move
	Square nchess.Square
}

// Validator is the selection state machine. It reads the store but never
// mutates it; committing a Candidate is up to the caller.
type Validator struct {
	store   *board.Store
	state   State
	sel     nchess.Square
	target  nchess.Square
	gesture *Gesture
}

func NewValidator(store *board.Store) *Validator {
	v := &Validator{store: store}
	v.Cancel()
	return v
}

func (v *Validator) State() State { return v.state }

// Selection returns the selected origin square while a piece is held.
func (v *Validator) Selection() (nchess.Square, bool) {
	if v.state == Idle {
		return nchess.NoSquare, false
	}
	return v.sel, true
}

// PendingPromotion returns the move awaiting a promotion piece.
func (v *Validator) PendingPromotion() (from, to nchess.Square, ok bool) {
	if v.state != AwaitingPromotion {
		return nchess.NoSquare, nchess.NoSquare, false
	}
	return v.sel, v.target, true
}

// Gesture is the live drag gesture, nil when nothing is held.
func (v *Validator) Gesture() *Gesture { return v.gesture }

// Press handles a pointer press or click on sq.
func (v *Validator) Press(sq nchess.Square) (Outcome, error) {
	switch v.state {
	case AwaitingPromotion:
		return Outcome{Result: Ignored}, ErrPromotionRequired
	case PieceSelected:
		if sq == v.sel {
			return Outcome{Result: Ignored, Square: sq}, nil
		}
		if v.ownPiece(sq) {
			v.selectSquare(sq)
			return Outcome{Result: Selected, Square: sq}, nil
		}
		return v.candidate(v.sel, sq), nil
	default:
		if sq == nchess.NoSquare || !v.ownPiece(sq) {
			return Outcome{Result: Ignored, Square: sq}, nil
		}
		v.selectSquare(sq)
		return Outcome{Result: Selected, Square: sq}, nil
	}
}

// Drag records a floating-piece frame for the held piece.
func (v *Validator) Drag(p Point) error {
	if v.state != PieceSelected || v.gesture == nil {
		return ErrNoSelection
	}
	v.gesture.record(p)
	return nil
}

// Release handles the end of a press. Releasing on the origin keeps the
// selection so a second click can pick the destination.
func (v *Validator) Release(sq nchess.Square) (Outcome, error) {
	switch v.state {
	case AwaitingPromotion:
		return Outcome{Result: Ignored}, ErrPromotionRequired
	case PieceSelected:
		if sq == v.sel {
			return Outcome{Result: Ignored, Square: sq}, nil
		}
		return v.candidate(v.sel, sq), nil
	default:
		return Outcome{Result: Ignored, Square: sq}, nil
	}
}

// Promote completes a pending promotion with the given piece type.
func (v *Validator) Promote(pt nchess.PieceType) (Outcome, error) {
	if v.state != AwaitingPromotion {
		return Outcome{Result: Ignored}, ErrNoSelection
	}
	switch pt {
	case nchess.Queen, nchess.Rook, nchess.Bishop, nchess.Knight:
	default:
		return Outcome{Result: Ignored}, fmt.Errorf("%w: %v", ErrInvalidPromotion, pt)
	}
	m := board.Move{From: v.sel, To: v.target, Promotion: pt}
	v.Cancel()
	if !v.store.Legal(m) {
		return Outcome{Result: Rejected, Move: m, Square: m.To}, nil
	}
	return Outcome{Result: Candidate, Move: m, Square: m.To}, nil
}

// Cancel drops any selection, pending promotion and gesture.
func (v *Validator) Cancel() Outcome {
	was := v.state
	v.state = Idle
	v.sel = nchess.NoSquare
	v.target = nchess.NoSquare
	v.gesture = nil
	if was == Idle {
		return Outcome{Result: Ignored}
	}
	return Outcome{Result: Cancelled}
}

func (v *Validator) candidate(from, to nchess.Square) Outcome {
	if to == nchess.NoSquare {
		v.Cancel()
		return Outcome{Result: Rejected, Square: to}
	}
	if v.store.NeedsPromotion(from, to) {
		// any legal promotion piece implies the squares are a legal pair
		if !v.store.Legal(board.Move{From: from, To: to, Promotion: nchess.Queen}) {
			v.Cancel()
			return Outcome{Result: Rejected, Square: to}
		}
		v.state = AwaitingPromotion
		v.target = to
		v.gesture = nil
		return Outcome{Result: PromotionPending, Square: to}
	}
	m := board.NewMove(from, to)
	v.Cancel()
	if !v.store.Legal(m) {
		return Outcome{Result: Rejected, Move: m, Square: to}
	}
	return Outcome{Result: Candidate, Move: m, Square: to}
}

func (v *Validator) selectSquare(sq nchess.Square) {
	v.state = PieceSelected
	v.sel = sq
	v.target = nchess.NoSquare
	v.gesture = newGesture(sq, v.store.Current().PieceAt(sq))
}

func (v *Validator) ownPiece(sq nchess.Square) bool {
	if sq == nchess.NoSquare {
		return false
	}
	cur := v.store.Current()
	if cur.Terminal() {
		return false
	}
	p := cur.PieceAt(sq)
	return p != nchess.NoPiece && p.Color() == cur.Turn
}
