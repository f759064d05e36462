package uci

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseInfoScoreShapes(t *testing.T) {
	cases := []struct {
		line string
		want Candidate
	}{
		{
			line: "info depth 18 seldepth 24 multipv 2 score cp -41 nodes 12 pv e7e5 g1f3",
			want: Candidate{Rank: 2, Move: "e7e5", Depth: 18, Score: Score{Kind: ScoreCentipawns, Value: -41}, Principal: []string{"e7e5", "g1f3"}},
		},
		{
			line: "info depth 30 score mate -3 pv h7h6",
			want: Candidate{Rank: 1, Move: "h7h6", Depth: 30, Score: Score{Kind: ScoreMate, Value: -3}, Principal: []string{"h7h6"}},
		},
		{
			line: "info depth 5 score 35 pv d2d4",
			want: Candidate{Rank: 1, Move: "d2d4", Depth: 5, Score: Score{Kind: ScorePlain, Value: 35}, Principal: []string{"d2d4"}},
		},
		{
			line: "info depth 9 score cp 12 lowerbound nodes 4 pv c2c4",
			want: Candidate{Rank: 1, Move: "c2c4", Depth: 9, Score: Score{Kind: ScoreCentipawns, Value: 12, Bound: "lowerbound"}, Principal: []string{"c2c4"}},
		},
		{
			line: "info depth 0 score mate 0",
			want: Candidate{Rank: 1, Score: Score{Kind: ScoreMate, Value: 0}},
		},
	}
	for _, c := range cases {
		got, ok := parseInfo(c.line)
		if !ok {
			t.Fatalf("parseInfo(%q) not ok", c.line)
		}
		if diff := cmp.Diff(c.want, got); diff != "" {
			t.Fatalf("parseInfo(%q) mismatch (-want +got):\n%s", c.line, diff)
		}
	}
}

func TestParseInfoIgnoresNoise(t *testing.T) {
	for _, line := range []string{
		"info string NNUE evaluation using nn-1.nnue",
		"info",
		"info nodes 100 nps 2000",
	} {
		if _, ok := parseInfo(line); ok {
			t.Fatalf("parseInfo(%q) should be ignored", line)
		}
	}
}

func TestAccumulatorKeepsScoreWithoutPV(t *testing.T) {
	acc := newSearchAccumulator()
	for _, line := range []string{
		"info depth 0 score mate 0",
		"bestmove (none)",
	} {
		if acc.consume(line) {
			break
		}
	}
	resp := acc.response()
	if resp.BestMove != "" || len(resp.Candidates) != 0 {
		t.Fatalf("unexpected move data: %+v", resp)
	}
	if resp.Score.Kind != ScoreMate || resp.Score.Value != 0 {
		t.Fatalf("score = %+v, want mate 0", resp.Score)
	}
}

func TestBuildCommands(t *testing.T) {
	if got := buildPositionCommand("startpos", []string{"e2e4"}); got != "position startpos moves e2e4\n" {
		t.Fatalf("position = %q", got)
	}
	if got := buildPositionCommand("8/8/8/8/8/8/8/K6k w - - 0 1", nil); got != "position fen 8/8/8/8/8/8/8/K6k w - - 0 1\n" {
		t.Fatalf("position = %q", got)
	}
	tokens, err := buildGoTokens(Limits{MoveTimeMillis: 100})
	if err != nil {
		t.Fatalf("buildGoTokens: %v", err)
	}
	if diff := cmp.Diff([]string{"go", "movetime", "100"}, tokens); diff != "" {
		t.Fatalf("go mismatch (-want +got):\n%s", diff)
	}
	if _, err := buildGoTokens(Limits{}); err == nil {
		t.Fatalf("expected error for empty limits")
	}
	if d := computeSearchTimeout(Limits{MoveTimeMillis: 100}); d < 2*time.Second {
		t.Fatalf("timeout too tight: %v", d)
	}
}
