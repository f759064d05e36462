// Package ucitest runs a scripted UCI engine inside a re-executed test
// binary. Call Main from TestMain and point the session at Config.
package ucitest

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/chess-analysis-board/internal/chess/board"
	"github.com/park285/chess-analysis-board/internal/chess/uci"
)

// ModeEnv carries the mode to the re-executed binary.
const ModeEnv = "GO_WANT_FAKE_UCI"

// Engine modes.
const (
	// ModeCentipawns reports "score cp".
	ModeCentipawns = "cp"
	// ModePlain reports a bare "score N".
	ModePlain = "bare"
	// ModeMate reports "score mate 3" for the best line.
	ModeMate = "mate"
	// ModeMated reports "score mate -2" for the best line.
	ModeMated = "mated"
	// ModeHang answers a search only after "stop".
	ModeHang = "hang"
	// ModeDie exits as soon as a search starts.
	ModeDie = "die"
)

// BaseScore is the best-line value reported in cp and bare modes.
const BaseScore = 35

// Main turns the process into a fake engine when the mode variable is set.
// It never returns in that case.
func Main() {
	mode := os.Getenv(ModeEnv)
	if mode == "" {
		return
	}
	run(mode)
	os.Exit(0)
}

// Config launches the running test binary as a fake engine in mode.
func Config(mode string) uci.Config {
	return uci.Config{
		BinaryPath: os.Args[0],
		Args:       []string{"-test.run=^$"},
		Env:        []string{ModeEnv + "=" + mode},
	}
}

type engine struct {
	mode    string
	multipv int
	fen     string
	moves   []string
	out     *bufio.Writer
}

func run(mode string) {
	e := &engine{mode: mode, multipv: 1, out: bufio.NewWriter(os.Stdout)}
	in := bufio.NewScanner(os.Stdin)
	for in.Scan() {
		line := strings.TrimSpace(in.Text())
		switch {
		case line == "uci":
			e.println("id name fakefish")
			e.println("option name MultiPV type spin default 1 min 1 max 500")
			e.println("uciok")
		case line == "isready":
			e.println("readyok")
		case line == "quit":
			return
		case strings.HasPrefix(line, "setoption name MultiPV value "):
			if n, err := strconv.Atoi(strings.TrimPrefix(line, "setoption name MultiPV value ")); err == nil && n > 0 {
				e.multipv = n
			}
		case strings.HasPrefix(line, "position "):
			e.position(line)
		case strings.HasPrefix(line, "go"):
			if !e.search(in) {
				return
			}
		}
	}
}

func (e *engine) println(s string) {
	fmt.Fprintln(e.out, s)
	e.out.Flush()
}

func (e *engine) position(line string) {
	rest := strings.TrimPrefix(line, "position ")
	e.moves = nil
	if i := strings.Index(rest, " moves "); i >= 0 {
		e.moves = strings.Fields(rest[i+len(" moves "):])
		rest = rest[:i]
	}
	if strings.HasPrefix(rest, "fen ") {
		e.fen = strings.TrimPrefix(rest, "fen ")
	} else {
		e.fen = ""
	}
}

// search answers one "go". It returns false when the engine should exit.
func (e *engine) search(in *bufio.Scanner) bool {
	if e.mode == ModeDie {
		os.Exit(3)
	}
	legal := e.legalMoves()
	e.println("info string fake search")
	if len(legal) == 0 {
		e.println("info depth 0 score mate 0")
		e.println("bestmove (none)")
		return true
	}
	if e.mode == ModeHang {
		e.println("info depth 1 currmove " + legal[0].UCI())
		for in.Scan() {
			cmd := strings.TrimSpace(in.Text())
			if cmd == "stop" {
				break
			}
			if cmd == "quit" {
				return false
			}
		}
		e.println("bestmove " + legal[0].UCI())
		return true
	}
	n := e.multipv
	if n > len(legal) {
		n = len(legal)
	}
	for rank := 1; rank <= n; rank++ {
		e.println(fmt.Sprintf("info depth 12 seldepth 14 multipv %d %s nodes 1000 pv %s",
			rank, e.scoreTokens(rank), legal[rank-1].UCI()))
	}
	time.Sleep(5 * time.Millisecond)
	e.println("bestmove " + legal[0].UCI())
	return true
}

func (e *engine) scoreTokens(rank int) string {
	value := BaseScore - 20*(rank-1)
	switch e.mode {
	case ModePlain:
		return "score " + strconv.Itoa(value)
	case ModeMate:
		if rank == 1 {
			return "score mate 3"
		}
	case ModeMated:
		if rank == 1 {
			return "score mate -2"
		}
	}
	return "score cp " + strconv.Itoa(value)
}

// legalMoves brute-forces every from/to pair against the rules provider.
func (e *engine) legalMoves() []board.Move {
	start, err := board.ParseFEN(e.fen)
	if err != nil {
		return nil
	}
	store := board.NewStore()
	if err := store.ResetTo(start); err != nil {
		return nil
	}
	for _, text := range e.moves {
		m, err := board.ParseMove(text)
		if err != nil {
			return nil
		}
		if _, err := store.Apply(m); err != nil {
			return nil
		}
	}
	var out []board.Move
	for from := 0; from < 64; from++ {
		for to := 0; to < 64; to++ {
			if from == to {
				continue
			}
			m := board.NewMove(nchess.Square(from), nchess.Square(to))
			if store.NeedsPromotion(m.From, m.To) {
				m.Promotion = nchess.Queen
			}
			if store.Legal(m) {
				out = append(out, m)
			}
		}
	}
	return out
}
