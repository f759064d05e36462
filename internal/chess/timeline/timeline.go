// Package timeline splits a game's move sequence into applied (past) and
// loaded-but-unapplied (future) halves around the displayed position.
package timeline

import (
	"errors"
	"fmt"

	"github.com/park285/chess-analysis-board/internal/chess/board"
)

var (
	ErrNoFutureMoves = errors.New("no future moves")
	ErrNoPastMoves   = errors.New("no past moves")
)

// Timeline moves entries between the store's history and a future list.
// len(Past())+len(Future()) only changes on Load, Reset and RecordNewMove.
type Timeline struct {
	store  *board.Store
	future []board.Move
}

func New(store *board.Store) *Timeline {
	if store == nil {
		store = board.NewStore()
	}
	return &Timeline{store: store}
}

// Store exposes the underlying position store.
func (t *Timeline) Store() *board.Store { return t.store }

// Load roots the store at start and queues moves as the future. A zero start
// means the standard initial position.
func (t *Timeline) Load(start board.Position, moves []board.Move) error {
	if err := t.store.ResetTo(start); err != nil {
		return fmt.Errorf("load timeline: %w", err)
	}
	t.future = append([]board.Move(nil), moves...)
	return nil
}

// StepForward applies the first future move.
func (t *Timeline) StepForward() (board.HistoryEntry, error) {
	if len(t.future) == 0 {
		return board.HistoryEntry{}, ErrNoFutureMoves
	}
	entry, err := t.store.Apply(t.future[0])
	if err != nil {
		return board.HistoryEntry{}, err
	}
	t.future = t.future[1:]
	return entry, nil
}

// StepBackward undoes the newest past entry and queues its move at the front
// of the future.
func (t *Timeline) StepBackward() (board.HistoryEntry, error) {
	if t.store.Len() == 0 {
		return board.HistoryEntry{}, ErrNoPastMoves
	}
	entry, err := t.store.Undo()
	if err != nil {
		return board.HistoryEntry{}, err
	}
	future := make([]board.Move, 0, len(t.future)+1)
	future = append(future, entry.Move)
	t.future = append(future, t.future...)
	return entry, nil
}

// RecordNewMove plays a user move. The future is dropped for good once the
// move is accepted; an illegal move changes nothing.
func (t *Timeline) RecordNewMove(m board.Move) (board.HistoryEntry, error) {
	entry, err := t.store.Apply(m)
	if err != nil {
		return board.HistoryEntry{}, err
	}
	t.future = nil
	return entry, nil
}

// Reset returns to the standard starting position with an empty future.
func (t *Timeline) Reset() {
	t.store.Reset()
	t.future = nil
}

func (t *Timeline) Current() board.Position { return t.store.Current() }

func (t *Timeline) Past() []board.HistoryEntry { return t.store.History() }

func (t *Timeline) Future() []board.Move {
	return append([]board.Move(nil), t.future...)
}

// Len is the total number of moves on the timeline.
func (t *Timeline) Len() int { return t.store.Len() + len(t.future) }

// FutureSAN notates the future moves from the current position. It stops at
// the first move that does not replay.
func (t *Timeline) FutureSAN() []string {
	if len(t.future) == 0 {
		return nil
	}
	game, err := t.store.Line(nil)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(t.future))
	for _, m := range t.future {
		san, err := board.PlayOn(game, m)
		if err != nil {
			break
		}
		out = append(out, san)
	}
	return out
}
