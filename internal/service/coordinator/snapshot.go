package coordinator

import (
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/chess-analysis-board/internal/chess/analysis"
	"github.com/park285/chess-analysis-board/internal/chess/board"
	"github.com/park285/chess-analysis-board/internal/chess/input"
	"github.com/park285/chess-analysis-board/pkg/analysisdto"
)

func (c *Coordinator) buildLocked(action, notice string, frame *analysisdto.DragFrame) analysisdto.Snapshot {
	cur := c.tl.Current()
	snap := analysisdto.Snapshot{
		Seq:         c.seq,
		Session:     c.session,
		Action:      action,
		Notice:      notice,
		Position:    positionView(cur, c.tl.Store().Len()),
		Past:        pastViews(c.tl.Past()),
		Future:      futureViews(c.tl.Future(), c.tl.FutureSAN()),
		Status:      c.status,
		Orientation: analysisdto.OrientationWhite,
		Selection:   selectionView(c.validator),
		Opening:     c.openingLocked(),
		Drag:        frame,
	}
	if c.flipped {
		snap.Orientation = analysisdto.OrientationBlack
	}
	// only an evaluation of exactly this position is shown
	if c.eval != nil && c.eval.FEN == cur.FEN {
		view := EvaluationView(*c.eval)
		snap.Evaluation = &view
	} else if snap.Status == analysisdto.StatusReady {
		snap.Status = analysisdto.StatusPending
	}
	return snap
}

func positionView(p board.Position, ply int) analysisdto.PositionView {
	v := analysisdto.PositionView{
		FEN:     p.FEN,
		Turn:    p.TurnName(),
		Check:   p.Check,
		Outcome: string(p.Outcome),
		Ply:     ply,
	}
	if p.Method != nchess.NoMethod {
		v.Method = strings.ToLower(p.Method.String())
	}
	return v
}

func pastViews(entries []board.HistoryEntry) []analysisdto.PlyView {
	out := make([]analysisdto.PlyView, 0, len(entries))
	for i, e := range entries {
		out = append(out, analysisdto.PlyView{Ply: i + 1, UCI: e.Move.UCI(), SAN: e.SAN, FEN: e.Position.FEN})
	}
	return out
}

func futureViews(moves []board.Move, san []string) []analysisdto.FutureView {
	out := make([]analysisdto.FutureView, 0, len(moves))
	for i, m := range moves {
		v := analysisdto.FutureView{UCI: m.UCI()}
		if i < len(san) {
			v.SAN = san[i]
		}
		out = append(out, v)
	}
	return out
}

func selectionView(v *input.Validator) *analysisdto.SelectionView {
	switch v.State() {
	case input.PieceSelected:
		sq, _ := v.Selection()
		return &analysisdto.SelectionView{State: v.State().String(), Square: board.SquareName(sq)}
	case input.AwaitingPromotion:
		from, to, _ := v.PendingPromotion()
		return &analysisdto.SelectionView{State: v.State().String(), Square: board.SquareName(from), Target: board.SquareName(to)}
	default:
		return nil
	}
}

// openingLocked labels lines played from the standard start.
func (c *Coordinator) openingLocked() *analysisdto.OpeningView {
	store := c.tl.Store()
	if c.book == nil || store.Len() == 0 || store.Start().FEN != board.StartFEN {
		return nil
	}
	eco := c.book.Find(store.Moves())
	if eco == nil {
		return nil
	}
	return &analysisdto.OpeningView{ECO: eco.Code(), Name: eco.Title()}
}

// EvaluationView converts an evaluation for the wire.
func EvaluationView(ev analysis.Evaluation) analysisdto.EvaluationView {
	v := analysisdto.EvaluationView{
		FEN:        ev.FEN,
		Score:      ev.Score,
		Mate:       ev.Mate,
		MateIn:     ev.MateIn,
		Depth:      ev.Depth,
		BestMove:   ev.BestMove,
		BestSAN:    ev.BestSAN,
		WhiteShare: ev.WhiteShare(),
		Profile:    ev.Profile,
		Terminal:   ev.Terminal,
		DurationMS: ev.Duration.Milliseconds(),
		Cached:     ev.Cached,
	}
	for _, l := range ev.Lines {
		v.Lines = append(v.Lines, analysisdto.LineView{
			Rank:   l.Rank,
			Move:   l.Move,
			SAN:    l.SAN,
			Score:  l.Score,
			Mate:   l.Mate,
			MateIn: l.MateIn,
			Depth:  l.Depth,
			PV:     l.PV,
			PVSAN:  l.PVSAN,
		})
	}
	return v
}
