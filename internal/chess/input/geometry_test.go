package input

import (
	"testing"

	nchess "github.com/corentings/chess/v2"
)

func TestSquareAtCorners(t *testing.T) {
	g := NewGeometry(60)
	cases := []struct {
		p       Point
		flipped bool
		want    string
	}{
		{Point{0, 0}, false, "a8"},
		{Point{479, 479}, false, "h1"},
		{Point{0, 479}, false, "a1"},
		{Point{0, 0}, true, "h1"},
		{Point{479, 479}, true, "a8"},
		{Point{250, 370}, false, "e2"},
		{Point{250, 370}, true, "d7"},
	}
	for _, c := range cases {
		got := g.SquareAt(c.p, c.flipped)
		if name := squareName(got); name != c.want {
			t.Fatalf("SquareAt(%v, %v) = %s, want %s", c.p, c.flipped, name, c.want)
		}
	}
}

func TestSquareAtOutsideBoard(t *testing.T) {
	g := NewGeometry(60)
	for _, p := range []Point{{-1, 0}, {0, -1}, {480, 0}, {0, 480}} {
		if got := g.SquareAt(p, false); got != nchess.NoSquare {
			t.Fatalf("SquareAt(%v) = %v, want NoSquare", p, got)
		}
	}
}

func TestOriginInvertsSquareAt(t *testing.T) {
	g := NewGeometry(45)
	for i := 0; i < 64; i++ {
		s := nchess.Square(i)
		for _, flipped := range []bool{false, true} {
			if back := g.SquareAt(g.Origin(s, flipped), flipped); back != s {
				t.Fatalf("origin round trip %v flipped=%v -> %v", s, flipped, back)
			}
			if back := g.SquareAt(g.Center(s, flipped), flipped); back != s {
				t.Fatalf("center round trip %v flipped=%v -> %v", s, flipped, back)
			}
		}
	}
}

func squareName(s nchess.Square) string {
	if s == nchess.NoSquare {
		return "-"
	}
	return string([]byte{'a' + byte(s.File()), '1' + byte(s.Rank())})
}
