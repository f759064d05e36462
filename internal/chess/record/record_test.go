package record

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/park285/chess-analysis-board/internal/chess/board"
)

const twoGames = `[Event "Casual"]
[White "A"]
[Black "B"]
[Result "1-0"]

1. e4 e5 2. Nf3 Nc6 3. Bb5 a6 4. Ba4 Nf6 5. O-O Be7 1-0

[Event "Second"]
[Result "0-1"]

1. f3 e5 2. g4 Qh4# 0-1
`

func TestParsePGNFirstGameOnly(t *testing.T) {
	rec, err := ParsePGN(strings.NewReader(twoGames))
	if err != nil {
		t.Fatalf("ParsePGN: %v", err)
	}
	if len(rec.Moves) != 10 {
		t.Fatalf("moves = %d, want 10", len(rec.Moves))
	}
	wantSAN := []string{"e4", "e5", "Nf3", "Nc6", "Bb5", "a6", "Ba4", "Nf6", "O-O", "Be7"}
	if diff := cmp.Diff(wantSAN, rec.SAN); diff != "" {
		t.Fatalf("san mismatch (-want +got):\n%s", diff)
	}
	if rec.Moves[8].UCI() != "e1g1" {
		t.Fatalf("castle = %s, want e1g1", rec.Moves[8].UCI())
	}
	if rec.Start.FEN != board.StartFEN {
		t.Fatalf("start = %q", rec.Start.FEN)
	}
}

func TestParsePGNFromSetUp(t *testing.T) {
	pgn := `[SetUp "1"]
[FEN "4k3/P7/8/8/8/8/8/4K3 w - - 0 1"]

1. a8=Q+ Kd7 *
`
	rec, err := ParsePGN(strings.NewReader(pgn))
	if err != nil {
		t.Fatalf("ParsePGN: %v", err)
	}
	if !strings.HasPrefix(rec.Start.FEN, "4k3/P7/8/8/8/8/8/4K3 w") {
		t.Fatalf("start = %q", rec.Start.FEN)
	}
	if diff := cmp.Diff([]string{"a7a8q", "e8d7"}, []string{rec.Moves[0].UCI(), rec.Moves[1].UCI()}); diff != "" {
		t.Fatalf("moves mismatch (-want +got):\n%s", diff)
	}
}

func TestParsePGNRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   \n", "1. e4 e5 2. Qxf7 Kxf7 3. Zz9 *"} {
		if _, err := ParsePGN(strings.NewReader(in)); !errors.Is(err, ErrRecordParse) {
			t.Fatalf("ParsePGN(%q) err = %v, want ErrRecordParse", in, err)
		}
	}
}

func TestFromUCI(t *testing.T) {
	rec, err := FromUCI("", []string{"e2e4", "e7e5", "g1f3"})
	if err != nil {
		t.Fatalf("FromUCI: %v", err)
	}
	if diff := cmp.Diff([]string{"e4", "e5", "Nf3"}, rec.SAN); diff != "" {
		t.Fatalf("san mismatch (-want +got):\n%s", diff)
	}
	if _, err := FromUCI("", []string{"e2e4", "e2e4"}); !errors.Is(err, ErrRecordParse) {
		t.Fatalf("err = %v, want ErrRecordParse", err)
	}
	if _, err := FromUCI("not a fen", nil); !errors.Is(err, ErrRecordParse) {
		t.Fatalf("err = %v, want ErrRecordParse", err)
	}
}

func TestFirstGameSplit(t *testing.T) {
	got := firstGame(twoGames)
	if strings.Contains(got, "Second") || !strings.Contains(got, "Be7") {
		t.Fatalf("split wrong:\n%s", got)
	}
}
