// Package coords holds the affine matrices and rectangles used to place
// content in PDF user space.
package coords

import (
	"errors"
	"math"
)

// ErrSingular is returned when a matrix has no inverse.
var ErrSingular = errors.New("matrix singular")

// Matrix is a PDF transformation matrix [a b c d e f].
type Matrix [6]float64

func Identity() Matrix { return Matrix{1, 0, 0, 1, 0, 0} }

// Multiply returns m×o: applying the result is applying m, then o.
func (m Matrix) Multiply(o Matrix) Matrix {
	return Matrix{
		m[0]*o[0] + m[1]*o[2],
		m[0]*o[1] + m[1]*o[3],
		m[2]*o[0] + m[3]*o[2],
		m[2]*o[1] + m[3]*o[3],
		m[4]*o[0] + m[5]*o[2] + o[4],
		m[4]*o[1] + m[5]*o[3] + o[5],
	}
}

type Point struct{ X, Y float64 }

func (m Matrix) Transform(p Point) Point {
	return Point{X: m[0]*p.X + m[2]*p.Y + m[4], Y: m[1]*p.X + m[3]*p.Y + m[5]}
}

// TransformRect maps the four corners of r and returns their bounding box.
func (m Matrix) TransformRect(r Rect) Rect {
	pts := [4]Point{
		m.Transform(Point{r.LLX, r.LLY}),
		m.Transform(Point{r.URX, r.LLY}),
		m.Transform(Point{r.LLX, r.URY}),
		m.Transform(Point{r.URX, r.URY}),
	}
	out := Rect{LLX: pts[0].X, LLY: pts[0].Y, URX: pts[0].X, URY: pts[0].Y}
	for _, p := range pts[1:] {
		out.LLX = math.Min(out.LLX, p.X)
		out.LLY = math.Min(out.LLY, p.Y)
		out.URX = math.Max(out.URX, p.X)
		out.URY = math.Max(out.URY, p.Y)
	}
	return out
}

func (m Matrix) Inverse() (Matrix, error) {
	det := m[0]*m[3] - m[1]*m[2]
	if math.Abs(det) < 1e-10 {
		return Matrix{}, ErrSingular
	}
	return Matrix{
		m[3] / det, -m[1] / det,
		-m[2] / det, m[0] / det,
		(m[2]*m[5] - m[3]*m[4]) / det,
		(m[1]*m[4] - m[0]*m[5]) / det,
	}, nil
}

// ScaleX is the length of the transformed x unit vector.
func (m Matrix) ScaleX() float64 { return math.Hypot(m[0], m[1]) }

// ScaleY is the length of the transformed y unit vector.
func (m Matrix) ScaleY() float64 { return math.Hypot(m[2], m[3]) }

func Translate(tx, ty float64) Matrix { return Matrix{1, 0, 0, 1, tx, ty} }
func Scale(sx, sy float64) Matrix     { return Matrix{sx, 0, 0, sy, 0, 0} }
func Rotate(angle float64) Matrix {
	c, s := math.Cos(angle), math.Sin(angle)
	return Matrix{c, s, -s, c, 0, 0}
}

// Rect is an axis-aligned rectangle in PDF user space, origin bottom-left.
type Rect struct {
	LLX, LLY, URX, URY float64
}

// NewRect builds a rectangle from an origin and size.
func NewRect(x, y, w, h float64) Rect { return Rect{x, y, x + w, y + h}.Normalize() }

// Normalize orders the corners so that LL is below and left of UR.
func (r Rect) Normalize() Rect {
	if r.LLX > r.URX {
		r.LLX, r.URX = r.URX, r.LLX
	}
	if r.LLY > r.URY {
		r.LLY, r.URY = r.URY, r.LLY
	}
	return r
}

func (r Rect) Width() float64  { return r.URX - r.LLX }
func (r Rect) Height() float64 { return r.URY - r.LLY }

// Area is zero for degenerate rectangles.
func (r Rect) Area() float64 {
	w, h := r.Width(), r.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

func (r Rect) IsEmpty() bool { return r.Area() == 0 }

// Union treats the zero Rect as empty.
func (r Rect) Union(o Rect) Rect {
	if r == (Rect{}) {
		return o
	}
	if o == (Rect{}) {
		return r
	}
	return Rect{
		LLX: math.Min(r.LLX, o.LLX),
		LLY: math.Min(r.LLY, o.LLY),
		URX: math.Max(r.URX, o.URX),
		URY: math.Max(r.URY, o.URY),
	}
}

// Intersect returns the overlap of r and o and whether it has positive area.
func (r Rect) Intersect(o Rect) (Rect, bool) {
	out := Rect{
		LLX: math.Max(r.LLX, o.LLX),
		LLY: math.Max(r.LLY, o.LLY),
		URX: math.Min(r.URX, o.URX),
		URY: math.Min(r.URY, o.URY),
	}
	if out.URX <= out.LLX || out.URY <= out.LLY {
		return Rect{}, false
	}
	return out, true
}

// Intersects reports a positive-area overlap. Touching edges do not count.
func (r Rect) Intersects(o Rect) bool {
	_, ok := r.Intersect(o)
	return ok
}

func (r Rect) Contains(p Point) bool {
	return p.X >= r.LLX && p.X <= r.URX && p.Y >= r.LLY && p.Y <= r.URY
}

func (r Rect) Center() Point { return Point{(r.LLX + r.URX) / 2, (r.LLY + r.URY) / 2} }
