package analysis

import (
	"fmt"
	"time"

	nchess "github.com/corentings/chess/v2"

	corechess "github.com/park285/chess-analysis-board/internal/chess"
	"github.com/park285/chess-analysis-board/internal/chess/board"
	"github.com/park285/chess-analysis-board/internal/chess/uci"
)

// MateScore is the magnitude every forced mate maps to, regardless of
// distance.
const MateScore = 10000

// evalBarLimit is the centipawn value that fills the bar.
const evalBarLimit = 1000

// Line is one ranked candidate. Scores are from White's perspective.
type Line struct {
	Rank   int      `json:"rank"`
	Move   string   `json:"move"`
	SAN    string   `json:"san,omitempty"`
	Score  int      `json:"score"`
	Mate   bool     `json:"mate,omitempty"`
	MateIn int      `json:"mate_in,omitempty"`
	Depth  int      `json:"depth"`
	PV     []string `json:"pv,omitempty"`
	PVSAN  []string `json:"pv_san,omitempty"`
}

// Evaluation belongs to exactly one position, identified by FEN. Score is in
// centipawns from White's perspective; forced mates are ±MateScore and MateIn
// keeps the signed distance for display.
type Evaluation struct {
	FEN      string        `json:"fen"`
	Score    int           `json:"score"`
	Mate     bool          `json:"mate,omitempty"`
	MateIn   int           `json:"mate_in,omitempty"`
	Depth    int           `json:"depth"`
	BestMove string        `json:"best_move,omitempty"`
	BestSAN  string        `json:"best_san,omitempty"`
	Lines    []Line        `json:"lines,omitempty"`
	Profile  string        `json:"profile"`
	Terminal bool          `json:"terminal,omitempty"`
	Duration time.Duration `json:"duration"`
	Cached   bool          `json:"cached,omitempty"`
}

// WhiteShare is the fraction of the eval bar that belongs to White.
func (e Evaluation) WhiteShare() float64 { return WhiteShare(e.Score) }

// WhiteShare maps a White-perspective score to [0,1]. Scores clamp at
// ±1000 cp; mates fill the bar. The desktop viewer this replaces saturated
// at ±100 cp, which pinned the bar for any one-pawn edge.
func WhiteShare(score int) float64 {
	if score >= MateScore {
		return 1
	}
	if score <= -MateScore {
		return 0
	}
	if score > evalBarLimit {
		score = evalBarLimit
	}
	if score < -evalBarLimit {
		score = -evalBarLimit
	}
	return 0.5 + float64(score)/float64(2*evalBarLimit)
}

// Normalize converts a side-to-move engine score to White's perspective.
// Both the bare integer and the cp object pass through as centipawns; mate
// scores map to ±MateScore by sign. "mate 0" means the side to move is mated.
func Normalize(s uci.Score, turn nchess.Color) (score int, mate bool, mateIn int, err error) {
	sign := 1
	if turn == nchess.Black {
		sign = -1
	}
	switch s.Kind {
	case uci.ScoreCentipawns, uci.ScorePlain:
		v := s.Value
		// keep finite scores off the mate sentinel
		if v >= MateScore {
			v = MateScore - 1
		}
		if v <= -MateScore {
			v = -(MateScore - 1)
		}
		return v * sign, false, 0, nil
	case uci.ScoreMate:
		if s.Value > 0 {
			return MateScore * sign, true, s.Value * sign, nil
		}
		return -MateScore * sign, true, s.Value * sign, nil
	default:
		return 0, false, 0, fmt.Errorf("%w: engine reported no score", ErrEngineUnavailable)
	}
}

func buildEvaluation(pos board.Position, profile corechess.AnalysisProfile, resp uci.SearchResponse) (Evaluation, error) {
	primary := resp.Score
	if !primary.Set() && len(resp.Candidates) > 0 {
		primary = resp.Candidates[0].Score
	}
	score, mate, mateIn, err := Normalize(primary, pos.Turn)
	if err != nil {
		return Evaluation{}, err
	}
	ev := Evaluation{
		FEN:      pos.FEN,
		Score:    score,
		Mate:     mate,
		MateIn:   mateIn,
		Depth:    resp.Depth,
		BestMove: resp.BestMove,
		Profile:  profile.Name,
	}
	for _, c := range resp.Candidates {
		line := Line{Rank: c.Rank, Move: c.Move, Depth: c.Depth, PV: append([]string(nil), c.Principal...)}
		if c.Score.Set() {
			line.Score, line.Mate, line.MateIn, _ = Normalize(c.Score, pos.Turn)
		}
		line.PVSAN = notateLine(pos, c.Principal)
		if len(line.PVSAN) > 0 {
			line.SAN = line.PVSAN[0]
		}
		ev.Lines = append(ev.Lines, line)
	}
	if ev.BestMove == "" && len(ev.Lines) > 0 {
		ev.BestMove = ev.Lines[0].Move
	}
	if ev.BestMove != "" {
		if san := notateLine(pos, []string{ev.BestMove}); len(san) == 1 {
			ev.BestSAN = san[0]
		}
	}
	return ev, nil
}

// notateLine converts a UCI principal variation to SAN, stopping at the first
// move the rules provider rejects.
func notateLine(pos board.Position, uciMoves []string) []string {
	if len(uciMoves) == 0 {
		return nil
	}
	game, err := pos.Game()
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(uciMoves))
	for _, text := range uciMoves {
		m, err := board.ParseMove(text)
		if err != nil {
			break
		}
		san, err := board.PlayOn(game, m)
		if err != nil {
			break
		}
		out = append(out, san)
	}
	return out
}

// terminalEvaluation answers finished games without the engine.
func terminalEvaluation(pos board.Position, profile corechess.AnalysisProfile) Evaluation {
	ev := Evaluation{FEN: pos.FEN, Profile: profile.Name, Terminal: true}
	switch pos.Outcome {
	case nchess.WhiteWon:
		ev.Score, ev.Mate = MateScore, true
	case nchess.BlackWon:
		ev.Score, ev.Mate = -MateScore, true
	}
	return ev
}
