package placement

import (
	"math"

	"orefield/internal/world"
)

type cellKey struct {
	X int
	Z int
}

// Index holds the accepted points of a session. With a positive cell size it
// buckets points by planar cell so conflict checks only visit nearby cells;
// otherwise every check scans all points. Both modes answer Conflicts
// identically because 3D distance is never shorter than planar distance.
type Index struct {
	cellSize float64
	points   []Point
	cells    map[cellKey][]int
}

func NewIndex(cellSize float64) *Index {
	ix := &Index{cellSize: cellSize}
	if cellSize > 0 {
		ix.cells = make(map[cellKey][]int)
	}
	return ix
}

// NewIndexFor returns a grid sized for the constraints, or a linear index when
// useGrid is false or no separation is required.
func NewIndexFor(c Constraints, useGrid bool) *Index {
	if !useGrid {
		return NewIndex(0)
	}
	return NewIndex(c.MaxDistance())
}

// Grid reports whether the index buckets points.
func (ix *Index) Grid() bool {
	return ix.cells != nil
}

func (ix *Index) Len() int {
	return len(ix.points)
}

// Points returns a copy of the accepted points in insertion order.
func (ix *Index) Points() []Point {
	out := make([]Point, len(ix.points))
	copy(out, ix.points)
	return out
}

func (ix *Index) Add(p Point) {
	ix.points = append(ix.points, p)
	if ix.cells != nil {
		key := ix.cellFor(p.Position.X, p.Position.Z)
		ix.cells[key] = append(ix.cells[key], len(ix.points)-1)
	}
}

// Reset drops every point while keeping the index mode.
func (ix *Index) Reset() {
	ix.points = nil
	if ix.cells != nil {
		ix.cells = make(map[cellKey][]int)
	}
}

// Conflicts reports whether a point of kind at pos would sit closer than the
// required separation to any indexed point.
func (ix *Index) Conflicts(pos world.Vec3, kind Kind, c Constraints) bool {
	if len(ix.points) == 0 {
		return false
	}
	if ix.cells == nil {
		for i := range ix.points {
			if ix.tooClose(i, pos, kind, c) {
				return true
			}
		}
		return false
	}

	reach := c.Reach(kind)
	if reach <= 0 {
		return false
	}
	span := int(math.Ceil(reach / ix.cellSize))
	center := ix.cellFor(pos.X, pos.Z)
	for dx := -span; dx <= span; dx++ {
		for dz := -span; dz <= span; dz++ {
			for _, i := range ix.cells[cellKey{X: center.X + dx, Z: center.Z + dz}] {
				if ix.tooClose(i, pos, kind, c) {
					return true
				}
			}
		}
	}
	return false
}

func (ix *Index) tooClose(i int, pos world.Vec3, kind Kind, c Constraints) bool {
	p := ix.points[i]
	return c.Distance(pos, p.Position) < c.MinDistance(kind, p.Category.Kind)
}

func (ix *Index) cellFor(x, z float64) cellKey {
	return cellKey{
		X: int(math.Floor(x / ix.cellSize)),
		Z: int(math.Floor(z / ix.cellSize)),
	}
}
