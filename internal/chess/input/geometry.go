package input

import (
	nchess "github.com/corentings/chess/v2"
)

// Point is a pointer location in board-local screen pixels, origin at the
// top-left corner of the drawn board.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Geometry maps between screen points and squares for a board drawn with
// square cells of SquareSize pixels.
type Geometry struct {
	SquareSize int
}

// DefaultSquareSize matches the 480px board of the desktop viewer.
const DefaultSquareSize = 60

func NewGeometry(squareSize int) Geometry {
	if squareSize <= 0 {
		squareSize = DefaultSquareSize
	}
	return Geometry{SquareSize: squareSize}
}

// Extent is the board edge length in pixels.
func (g Geometry) Extent() int { return g.size() * 8 }

// SquareAt returns the square under p. Points outside the board yield
// nchess.NoSquare. Flipped boards draw rank 1 at the top and file h at the
// left, so both axes are inverted.
func (g Geometry) SquareAt(p Point, flipped bool) nchess.Square {
	size := g.size()
	if p.X < 0 || p.Y < 0 || p.X >= size*8 || p.Y >= size*8 {
		return nchess.NoSquare
	}
	col, row := p.X/size, p.Y/size
	if flipped {
		col, row = 7-col, 7-row
	}
	return nchess.NewSquare(nchess.File(col), nchess.Rank(7-row))
}

// Origin returns the top-left pixel of the cell that draws sq.
func (g Geometry) Origin(sq nchess.Square, flipped bool) Point {
	size := g.size()
	col, row := int(sq.File()), 7-int(sq.Rank())
	if flipped {
		col, row = 7-col, 7-row
	}
	return Point{X: col * size, Y: row * size}
}

// Center returns the middle pixel of the cell that draws sq.
func (g Geometry) Center(sq nchess.Square, flipped bool) Point {
	o := g.Origin(sq, flipped)
	half := g.size() / 2
	return Point{X: o.X + half, Y: o.Y + half}
}

func (g Geometry) size() int {
	if g.SquareSize <= 0 {
		return DefaultSquareSize
	}
	return g.SquareSize
}
