package grid

import (
	"encoding/json"
	"errors"
	"fmt"
	"iter"
)

// Common errors returned by buffer operations
var (
	ErrSizeMismatch = errors.New("storage length does not match grid dimensions")
	ErrOutOfRange   = errors.New("point is outside grid bounds")
	ErrReleased     = errors.New("buffer has been released")
)

// Point identifies a single cell by its x/y coordinates.
type Point struct {
	X int
	Y int
}

// Cell is one grid position together with its flat index and current value.
// It is the element type produced by the iteration and neighbor queries.
type Cell struct {
	X     int
	Y     int
	Index int
	Value float64
}

// Point returns the cell's coordinates as a Point.
func (c Cell) Point() Point {
	return Point{X: c.X, Y: c.Y}
}

// Buffer is a width×height view over a flat float64 slice using the
// mapping index(x,y) = x + y*width.
//
// A Buffer is exclusively owned by whichever side of a request/response
// exchange currently holds it. Release transfers the backing storage out
// and invalidates the handle; checked accessors fail on a released buffer.
// Buffer is not safe for concurrent use.
type Buffer struct {
	width    int
	height   int
	storage  []float64
	released bool
}

// New allocates a zeroed width×height buffer.
// Returns a configuration error for non-positive dimensions.
func New(width, height int) (*Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid dimensions %dx%d: %w", width, height, ErrSizeMismatch)
	}
	return &Buffer{
		width:   width,
		height:  height,
		storage: make([]float64, width*height),
	}, nil
}

// FromStorage wraps an existing flat slice as a width×height buffer.
// The slice length must equal width*height exactly; construction fails
// immediately otherwise. The buffer takes ownership of the slice.
func FromStorage(width, height int, storage []float64) (*Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid dimensions %dx%d: %w", width, height, ErrSizeMismatch)
	}
	if len(storage) != width*height {
		return nil, fmt.Errorf(
			"storage length %d for %dx%d grid (want %d): %w",
			len(storage), width, height, width*height, ErrSizeMismatch)
	}
	return &Buffer{width: width, height: height, storage: storage}, nil
}

// Width returns the buffer's width in cells.
func (b *Buffer) Width() int { return b.width }

// Height returns the buffer's height in cells.
func (b *Buffer) Height() int { return b.height }

// Len returns the total number of cells.
func (b *Buffer) Len() int { return b.width * b.height }

// InBounds reports whether (x, y) addresses a cell inside the grid.
func (b *Buffer) InBounds(x, y int) bool {
	return x >= 0 && x < b.width && y >= 0 && y < b.height
}

// Index converts (x, y) to the flat storage index, failing with an
// out-of-range error when the point lies outside the grid.
func (b *Buffer) Index(x, y int) (int, error) {
	if b.released {
		return 0, ErrReleased
	}
	if !b.InBounds(x, y) {
		return 0, fmt.Errorf("(%d, %d) in %dx%d grid: %w", x, y, b.width, b.height, ErrOutOfRange)
	}
	return x + y*b.width, nil
}

// UncheckedIndex converts (x, y) to the flat storage index without
// validation. Intended for hot loops that have already established the
// point is in bounds.
func (b *Buffer) UncheckedIndex(x, y int) int {
	return x + y*b.width
}

// Get reads the value at (x, y), failing when the point is out of bounds
// or the buffer has been released.
func (b *Buffer) Get(x, y int) (float64, error) {
	i, err := b.Index(x, y)
	if err != nil {
		return 0, err
	}
	return b.storage[i], nil
}

// UncheckedGet reads the value at (x, y) without bounds validation.
func (b *Buffer) UncheckedGet(x, y int) float64 {
	return b.storage[x+y*b.width]
}

// Set writes the value at (x, y), failing when the point is out of bounds
// or the buffer has been released.
func (b *Buffer) Set(x, y int, value float64) error {
	i, err := b.Index(x, y)
	if err != nil {
		return err
	}
	b.storage[i] = value
	return nil
}

// UncheckedSet writes the value at (x, y) without bounds validation.
func (b *Buffer) UncheckedSet(x, y int, value float64) {
	b.storage[x+y*b.width] = value
}

// All produces every cell exactly once in column-major traversal order:
// the outer loop walks x, the inner loop walks y. The sequence is lazy
// and can be ranged over multiple times.
func (b *Buffer) All() iter.Seq[Cell] {
	return func(yield func(Cell) bool) {
		for x := 0; x < b.width; x++ {
			for y := 0; y < b.height; y++ {
				i := x + y*b.width
				if !yield(Cell{X: x, Y: y, Index: i, Value: b.storage[i]}) {
					return
				}
			}
		}
	}
}

// Release transfers ownership of the backing storage to the caller and
// invalidates this handle. Subsequent checked accesses fail with
// ErrReleased; releasing twice returns nil.
func (b *Buffer) Release() []float64 {
	if b.released {
		return nil
	}
	s := b.storage
	b.storage = nil
	b.released = true
	return s
}

// Released reports whether the buffer's storage has been transferred away.
func (b *Buffer) Released() bool { return b.released }

// Storage exposes the backing slice without transferring ownership.
// Returns nil after Release.
func (b *Buffer) Storage() []float64 { return b.storage }

// MarshalJSON encodes the buffer as {"width", "height", "buffer"},
// matching the wire shape task payloads use for grids.
func (b *Buffer) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Width  int       `json:"width"`
		Height int       `json:"height"`
		Buffer []float64 `json:"buffer"`
	}{Width: b.width, Height: b.height, Buffer: b.storage})
}
