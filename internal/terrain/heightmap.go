package terrain

import (
	"fmt"
	"math"

	"github.com/orogen/orogen/internal/grid"
	"github.com/orogen/orogen/internal/task"
)

// HeightmapParams configures terrain/heightmap: a flat elevation grid to
// encode as pixels.
type HeightmapParams struct {
	Size   [2]int    `json:"size"   validate:"dive,gt=0"`
	Buffer []float64 `json:"buffer" validate:"required"`
}

// Pixmap is a 4-channel RGBA pixel grid in row-major order.
type Pixmap struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Pixels []byte `json:"pixels"`
}

// Heightmap encodes an elevation grid as RGBA pixels: each of R, G and B
// is floor(clamp(value*255, 0, 255)) and A is fixed at 255.
func Heightmap(ctx *task.Context) (any, error) {
	var p HeightmapParams
	if err := ctx.DecodeInput(&p); err != nil {
		return nil, fmt.Errorf("decoding heightmap params: %w", err)
	}
	if err := validate.Struct(p); err != nil {
		return nil, fmt.Errorf("invalid heightmap params: %w", err)
	}

	width, height := p.Size[0], p.Size[1]
	buf, err := grid.FromStorage(width, height, p.Buffer)
	if err != nil {
		return nil, err
	}

	pixels := make([]byte, width*height*4)
	for c := range buf.All() {
		level := byte(math.Floor(math.Min(math.Max(c.Value*255, 0), 255)))
		o := c.Index * 4
		pixels[o] = level
		pixels[o+1] = level
		pixels[o+2] = level
		pixels[o+3] = 255
	}

	return Pixmap{Width: width, Height: height, Pixels: pixels}, nil
}
