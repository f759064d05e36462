// Package record loads persisted game records into a start position and a
// move list.
package record

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/chess-analysis-board/internal/chess/board"
)

var ErrRecordParse = errors.New("malformed game record")

// maxRecordBytes bounds a single upload.
const maxRecordBytes = 1 << 20

// Record is a parsed game: where it starts and the moves that follow.
type Record struct {
	Start   board.Position
	Moves   []board.Move
	SAN     []string
	Outcome string
}

// ParsePGN reads the first game of a PGN stream.
func ParsePGN(r io.Reader) (Record, error) {
	raw, err := io.ReadAll(io.LimitReader(r, maxRecordBytes+1))
	if err != nil {
		return Record{}, fmt.Errorf("%w: read: %v", ErrRecordParse, err)
	}
	if len(raw) > maxRecordBytes {
		return Record{}, fmt.Errorf("%w: record larger than %d bytes", ErrRecordParse, maxRecordBytes)
	}
	text := firstGame(string(raw))
	if strings.TrimSpace(text) == "" {
		return Record{}, fmt.Errorf("%w: empty input", ErrRecordParse)
	}
	opt, err := nchess.PGN(bytes.NewBufferString(text))
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrRecordParse, err)
	}
	game := nchess.NewGame(opt)
	return fromGame(game)
}

// FromUCI validates a UCI move list played from fen ("" for the standard
// start) and returns it as a record.
func FromUCI(fen string, moves []string) (Record, error) {
	start, err := board.ParseFEN(fen)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrRecordParse, err)
	}
	parsed, err := board.ParseMoves(moves)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrRecordParse, err)
	}
	game, err := start.Game()
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrRecordParse, err)
	}
	rec := Record{Start: start, Moves: parsed, SAN: make([]string, 0, len(parsed))}
	for i, m := range parsed {
		san, err := board.PlayOn(game, m)
		if err != nil {
			return Record{}, fmt.Errorf("%w: ply %d: %v", ErrRecordParse, i+1, err)
		}
		rec.SAN = append(rec.SAN, san)
	}
	rec.Outcome = game.Outcome().String()
	return rec, nil
}

func fromGame(game *nchess.Game) (Record, error) {
	positions := game.Positions()
	moves := game.Moves()
	if len(positions) == 0 {
		return Record{}, fmt.Errorf("%w: no positions", ErrRecordParse)
	}
	start, err := board.ParseFEN(positions[0].String())
	if err != nil {
		return Record{}, fmt.Errorf("%w: start position: %v", ErrRecordParse, err)
	}
	rec := Record{
		Start:   start,
		Moves:   make([]board.Move, 0, len(moves)),
		SAN:     make([]string, 0, len(moves)),
		Outcome: game.Outcome().String(),
	}
	notation := nchess.AlgebraicNotation{}
	for i, mv := range moves {
		rec.Moves = append(rec.Moves, board.FromProvider(mv))
		if i < len(positions) {
			rec.SAN = append(rec.SAN, notation.Encode(positions[i], mv))
		}
	}
	return rec, nil
}

// firstGame cuts the text after the first game's movetext. A new tag section
// following movetext starts the next game.
func firstGame(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	seenMoves := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "[") {
			if seenMoves {
				return strings.Join(lines[:i], "\n")
			}
			continue
		}
		seenMoves = true
	}
	return text
}
