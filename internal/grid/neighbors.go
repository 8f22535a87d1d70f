package grid

import "iter"

// orthogonalOffsets are the four cardinal neighbor offsets.
var orthogonalOffsets = [4]Point{
	{X: 1, Y: 0},
	{X: -1, Y: 0},
	{X: 0, Y: 1},
	{X: 0, Y: -1},
}

// OrthogonalNeighbors produces the up-to-four in-bounds cells at offsets
// (±1,0) and (0,±1) from p. Offsets falling outside the grid are skipped
// silently, so corner cells yield two neighbors and edge cells three.
func (b *Buffer) OrthogonalNeighbors(p Point) iter.Seq[Cell] {
	return func(yield func(Cell) bool) {
		for _, d := range orthogonalOffsets {
			x, y := p.X+d.X, p.Y+d.Y
			if !b.InBounds(x, y) {
				continue
			}
			i := x + y*b.width
			if !yield(Cell{X: x, Y: y, Index: i, Value: b.storage[i]}) {
				return
			}
		}
	}
}

// NeighborsInRange produces every in-bounds cell within a square window
// of the given Chebyshev radius around p, excluding p itself. A radius
// below 1 is treated as 1.
func (b *Buffer) NeighborsInRange(p Point, radius int) iter.Seq[Cell] {
	if radius < 1 {
		radius = 1
	}
	return func(yield func(Cell) bool) {
		for dx := -radius; dx <= radius; dx++ {
			for dy := -radius; dy <= radius; dy++ {
				if dx == 0 && dy == 0 {
					continue
				}
				x, y := p.X+dx, p.Y+dy
				if !b.InBounds(x, y) {
					continue
				}
				i := x + y*b.width
				if !yield(Cell{X: x, Y: y, Index: i, Value: b.storage[i]}) {
					return
				}
			}
		}
	}
}
