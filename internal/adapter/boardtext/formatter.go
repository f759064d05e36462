// Package boardtext renders analysis board snapshots as plain text for
// terminals and chat relays.
package boardtext

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/chess-analysis-board/internal/chess/board"
	"github.com/park285/chess-analysis-board/internal/msgcat"
	"github.com/park285/chess-analysis-board/pkg/analysisdto"
)

const topLinesShown = 3

// Formatter turns DTOs into text blocks. A nil catalog falls back to the
// built-in English strings.
type Formatter struct {
	msgs *msgcat.Catalog
}

func NewFormatter(msgs *msgcat.Catalog) *Formatter {
	return &Formatter{msgs: msgs}
}

// Snapshot renders the full view: board, status line, evaluation and moves.
func (f *Formatter) Snapshot(snap *analysisdto.Snapshot) string {
	if snap == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(f.Board(snap))
	sb.WriteString("\n")
	sb.WriteString(f.Status(snap))
	sb.WriteString("\n")
	sb.WriteString(f.Evaluation(snap))
	if moves := Moves(snap); moves != "" {
		sb.WriteString("\n")
		sb.WriteString(moves)
	}
	if snap.Notice != "" {
		sb.WriteString("\n! ")
		sb.WriteString(f.Notice(snap.Notice))
	}
	return sb.String()
}

// Board draws the position from the shown side. The selected square is
// bracketed.
func (f *Formatter) Board(snap *analysisdto.Snapshot) string {
	pos, err := board.ParseFEN(snap.Position.FEN)
	if err != nil {
		return snap.Position.FEN
	}
	selected := ""
	if snap.Selection != nil {
		selected = snap.Selection.Square
	}
	flipped := snap.Orientation == analysisdto.OrientationBlack

	var sb strings.Builder
	for row := 0; row < 8; row++ {
		rank := 7 - row
		if flipped {
			rank = row
		}
		sb.WriteString(fmt.Sprintf("%d ", rank+1))
		for col := 0; col < 8; col++ {
			file := col
			if flipped {
				file = 7 - col
			}
			sq := nchess.NewSquare(nchess.File(file), nchess.Rank(rank))
			cell := pieceLetter(pos.PieceAt(sq))
			if board.SquareName(sq) == selected {
				sb.WriteString("[" + cell + "]")
			} else {
				sb.WriteString(" " + cell + " ")
			}
		}
		sb.WriteString("\n")
	}
	sb.WriteString("  ")
	for col := 0; col < 8; col++ {
		file := col
		if flipped {
			file = 7 - col
		}
		sb.WriteString(" " + string(rune('a'+file)) + " ")
	}
	return sb.String()
}

// Status is the side to move, or the result once the game is over.
func (f *Formatter) Status(snap *analysisdto.Snapshot) string {
	p := snap.Position
	var line string
	if p.Outcome != "" && p.Outcome != "*" {
		line = f.msgs.Text("board.outcome", map[string]any{"result": p.Outcome, "method": p.Method},
			"game over: "+p.Outcome)
	} else {
		line = f.msgs.Text("board.turn", map[string]any{"side": p.Turn}, p.Turn+" to move")
		if p.Check {
			line += " (check)"
		}
	}
	if snap.Opening != nil {
		line += fmt.Sprintf(" | %s %s", snap.Opening.ECO, snap.Opening.Name)
	}
	return line
}

// Evaluation is one line with the score, depth and best move.
func (f *Formatter) Evaluation(snap *analysisdto.Snapshot) string {
	switch {
	case snap.Status == analysisdto.StatusPending:
		return f.msgs.Text("board.status_pending", nil, "evaluating...")
	case snap.Evaluation == nil:
		return f.msgs.Text("board.status_unavailable", nil, "no evaluation")
	}
	ev := snap.Evaluation
	var sb strings.Builder
	sb.WriteString(Bar(ev.WhiteShare, 20))
	sb.WriteString(" ")
	sb.WriteString(f.score(ev.Score, ev.Mate, ev.MateIn))
	if ev.Terminal {
		return sb.String()
	}
	sb.WriteString(fmt.Sprintf(" d%d", ev.Depth))
	if ev.BestSAN != "" {
		sb.WriteString(" best " + ev.BestSAN)
	} else if ev.BestMove != "" {
		sb.WriteString(" best " + ev.BestMove)
	}
	return sb.String()
}

// TopMoves lists ranked candidates, one per line.
func (f *Formatter) TopMoves(resp *analysisdto.TopMovesResponse) string {
	if resp == nil || len(resp.Lines) == 0 {
		return f.msgs.Text("board.status_unavailable", nil, "no evaluation")
	}
	var sb strings.Builder
	for i, l := range resp.Lines {
		if i > 0 {
			sb.WriteString("\n")
		}
		move := l.SAN
		if move == "" {
			move = l.Move
		}
		sb.WriteString(fmt.Sprintf("%d. %-7s %s", l.Rank, move, f.score(l.Score, l.Mate, l.MateIn)))
		if len(l.PVSAN) > 1 {
			pv := l.PVSAN
			if len(pv) > topLinesShown+1 {
				pv = pv[:topLinesShown+1]
			}
			sb.WriteString("  " + strings.Join(pv, " "))
		}
	}
	return sb.String()
}

// Archives lists stored games, newest first.
func (f *Formatter) Archives(games []*analysisdto.AnalyzedGame) string {
	if len(games) == 0 {
		return "no archived games"
	}
	var sb strings.Builder
	for i, g := range games {
		if i > 0 {
			sb.WriteString("\n")
		}
		title := g.Title
		if title == "" {
			title = "untitled"
		}
		sb.WriteString(fmt.Sprintf("#%d %s | %s | %d plies", g.ID, title, formatShortTime(g.CreatedAt), len(g.MovesUCI)))
		if g.Opening != "" {
			sb.WriteString(" | " + g.Opening)
		}
		if g.Result != "" && g.Result != "*" {
			sb.WriteString(" | " + g.Result)
		}
	}
	return sb.String()
}

// Notice resolves a snapshot notice code to its message.
func (f *Formatter) Notice(code string) string {
	data := map[string]any{"move": "", "detail": "", "what": ""}
	return f.msgs.Text("errors."+code, data, code)
}

func (f *Formatter) score(score int, mate bool, mateIn int) string {
	if !mate {
		return fmt.Sprintf("%+.2f", float64(score)/100)
	}
	if mateIn == 0 {
		if score > 0 {
			return "1-0"
		}
		return "0-1"
	}
	n := mateIn
	key, fallback := "board.mate_in", "mate in %d"
	if n < 0 {
		n = -n
		key, fallback = "board.mated_in", "mated in %d"
	}
	return f.msgs.Text(key, map[string]any{"n": n}, fmt.Sprintf(fallback, n))
}

// Moves numbers the line. Played moves come first; the remaining line
// follows a "|".
func Moves(snap *analysisdto.Snapshot) string {
	if len(snap.Past) == 0 && len(snap.Future) == 0 {
		return ""
	}
	number, black := lineStart(snap)
	plies := make([]string, 0, len(snap.Past)+len(snap.Future))
	for _, p := range snap.Past {
		plies = append(plies, p.SAN)
	}
	for _, fm := range snap.Future {
		plies = append(plies, fm.SAN)
	}

	var sb strings.Builder
	for i, san := range plies {
		if i > 0 {
			sb.WriteString(" ")
		}
		if i == len(snap.Past) {
			sb.WriteString("| ")
		}
		switch {
		case !black:
			sb.WriteString(fmt.Sprintf("%d. ", number))
		case i == 0 || i == len(snap.Past):
			sb.WriteString(fmt.Sprintf("%d... ", number))
		}
		sb.WriteString(san)
		if black {
			number++
		}
		black = !black
	}
	return sb.String()
}

// lineStart reads the move number and side of the first ply from the FEN
// fields. Past plies carry the position after the move.
func lineStart(snap *analysisdto.Snapshot) (number int, black bool) {
	if len(snap.Past) == 0 {
		turn, fm := fenClock(snap.Position.FEN)
		return fm, turn == "b"
	}
	turn, fm := fenClock(snap.Past[0].FEN)
	if turn == "w" {
		// black played the first ply and the counter already moved on
		return max(fm-1, 1), true
	}
	return fm, false
}

func fenClock(fen string) (turn string, fullmove int) {
	fields := strings.Fields(fen)
	fullmove = 1
	if len(fields) > 1 {
		turn = fields[1]
	}
	if len(fields) > 5 {
		if n, err := strconv.Atoi(fields[5]); err == nil && n > 0 {
			fullmove = n
		}
	}
	return turn, fullmove
}

// Bar draws the eval bar with White's share filled.
func Bar(share float64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := int(share*float64(width) + 0.5)
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

var pieceLetters = map[nchess.PieceType]string{
	nchess.King:   "k",
	nchess.Queen:  "q",
	nchess.Rook:   "r",
	nchess.Bishop: "b",
	nchess.Knight: "n",
	nchess.Pawn:   "p",
}

func pieceLetter(p nchess.Piece) string {
	letter, ok := pieceLetters[p.Type()]
	if p == nchess.NoPiece || !ok {
		return "."
	}
	if p.Color() == nchess.White {
		return strings.ToUpper(letter)
	}
	return letter
}

func formatShortTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("01/02 15:04")
}
