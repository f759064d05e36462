package input

import (
	"iter"

	nchess "github.com/corentings/chess/v2"
)

// Gesture is the transient state of one press/drag/release sequence. It is
// dropped on release, drop or cancel and never persisted.
type Gesture struct {
	Origin nchess.Square
	Piece  nchess.Piece

	// frames holds only what Frames has not yielded yet.
	frames   []Point
	consumed int
	last     Point
	recorded int
}

func newGesture(origin nchess.Square, piece nchess.Piece) *Gesture {
	return &Gesture{Origin: origin, Piece: piece}
}

func (g *Gesture) record(p Point) {
	g.frames = append(g.frames, p)
	g.last = p
	g.recorded++
}

// Frames yields the cursor frames recorded since the last iteration. Each
// frame is produced once: ranging again only yields frames added in between.
func (g *Gesture) Frames() iter.Seq[Point] {
	return func(yield func(Point) bool) {
		defer g.trim()
		for g.consumed < len(g.frames) {
			p := g.frames[g.consumed]
			g.consumed++
			if !yield(p) {
				return
			}
		}
	}
}

// trim drops yielded frames so a long drag does not keep its whole path.
func (g *Gesture) trim() {
	n := copy(g.frames, g.frames[g.consumed:])
	clear(g.frames[n:])
	g.frames = g.frames[:n]
	g.consumed = 0
}

// Last is the most recent frame, if any.
func (g *Gesture) Last() (Point, bool) {
	return g.last, g.recorded > 0
}

// Len is the number of frames recorded over the whole gesture.
func (g *Gesture) Len() int { return g.recorded }

// Pending is the number of frames Frames has not yielded yet.
func (g *Gesture) Pending() int { return len(g.frames) - g.consumed }
