package editor

import (
	"github.com/wudi/pdfredact/coords"
)

// QuadTree implements a spatial index for rectangles.
type QuadTree struct {
	Bounds   coords.Rect
	Capacity int
	Points   []PointData
	Nodes    []*QuadTree
}

type PointData struct {
	Rect  coords.Rect
	Index int
}

func NewQuadTree(bounds coords.Rect, capacity int) *QuadTree {
	if capacity < 1 {
		capacity = 1
	}
	return &QuadTree{
		Bounds:   bounds,
		Capacity: capacity,
		Points:   make([]PointData, 0, capacity),
	}
}

// maxDepth stops subdivision of stacked identical rectangles.
const maxDepth = 16

func (qt *QuadTree) Insert(rect coords.Rect, index int) bool {
	return qt.insert(rect, index, 0)
}

func (qt *QuadTree) insert(rect coords.Rect, index, depth int) bool {
	if !touches(qt.Bounds, rect) {
		return false
	}

	if qt.Nodes != nil {
		for _, node := range qt.Nodes {
			if contains(node.Bounds, rect) {
				if node.insert(rect, index, depth+1) {
					return true
				}
			}
		}
		// Straddles a split line: stays at this level.
		qt.Points = append(qt.Points, PointData{Rect: rect, Index: index})
		return true
	}

	if len(qt.Points) < qt.Capacity || depth >= maxDepth {
		qt.Points = append(qt.Points, PointData{Rect: rect, Index: index})
		return true
	}
	qt.subdivide()
	old := qt.Points
	qt.Points = make([]PointData, 0, qt.Capacity)
	for _, p := range old {
		qt.insert(p.Rect, p.Index, depth)
	}
	return qt.insert(rect, index, depth)
}

func (qt *QuadTree) subdivide() {
	xMid := (qt.Bounds.LLX + qt.Bounds.URX) / 2
	yMid := (qt.Bounds.LLY + qt.Bounds.URY) / 2

	qt.Nodes = []*QuadTree{
		NewQuadTree(coords.Rect{LLX: qt.Bounds.LLX, LLY: yMid, URX: xMid, URY: qt.Bounds.URY}, qt.Capacity), // top-left
		NewQuadTree(coords.Rect{LLX: xMid, LLY: yMid, URX: qt.Bounds.URX, URY: qt.Bounds.URY}, qt.Capacity), // top-right
		NewQuadTree(coords.Rect{LLX: qt.Bounds.LLX, LLY: qt.Bounds.LLY, URX: xMid, URY: yMid}, qt.Capacity), // bottom-left
		NewQuadTree(coords.Rect{LLX: xMid, LLY: qt.Bounds.LLY, URX: qt.Bounds.URX, URY: yMid}, qt.Capacity), // bottom-right
	}
}

// Query returns the indexes of stored rectangles overlapping rangeRect
// with positive area.
func (qt *QuadTree) Query(rangeRect coords.Rect) []int {
	var found []int
	if !touches(qt.Bounds, rangeRect) {
		return found
	}

	for _, p := range qt.Points {
		if p.Rect.Intersects(rangeRect) {
			found = append(found, p.Index)
		}
	}

	for _, node := range qt.Nodes {
		found = append(found, node.Query(rangeRect)...)
	}
	return found
}

// touches is the closed-interval overlap test used for node bounds.
func touches(r1, r2 coords.Rect) bool {
	return !(r2.LLX > r1.URX || r2.URX < r1.LLX || r2.LLY > r1.URY || r2.URY < r1.LLY)
}

func contains(outer, inner coords.Rect) bool {
	return inner.LLX >= outer.LLX && inner.URX <= outer.URX &&
		inner.LLY >= outer.LLY && inner.URY <= outer.URY
}
