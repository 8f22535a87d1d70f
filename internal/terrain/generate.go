package terrain

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/orogen/orogen/internal/grid"
	"github.com/orogen/orogen/internal/noise"
	"github.com/orogen/orogen/internal/task"
)

// Category is the task-type prefix of this package's tasks.
const Category = "terrain"

var validate = validator.New()

// Register installs the terrain task bodies: terrain/generate and
// terrain/heightmap.
func Register(r *task.Registry) {
	r.RegisterCategory(Category, task.NewHandler().
		Register("generate", Generate).
		Register("heightmap", Heightmap))
}

// GenerateParams configures terrain/generate. Noise parameters left at
// zero take the noise package defaults.
type GenerateParams struct {
	Size        [2]int  `json:"size"        validate:"dive,gt=0"`
	Seed        int64   `json:"seed"`
	Shared      bool    `json:"shared"`
	Frequency   float64 `json:"frequency"   validate:"gte=0"`
	Octaves     int     `json:"octaves"     validate:"gte=0"`
	Persistence float64 `json:"persistence" validate:"gte=0"`
	Amplitude   float64 `json:"amplitude"   validate:"gte=0"`
	Lacunarity  float64 `json:"lacunarity"  validate:"gte=0"`
	Scale       float64 `json:"scale"       validate:"gte=0"`
}

// Generate fills a new grid with seeded fractal noise, emitting progress
// as columns complete. The resulting buffer is the task's value; with
// Shared set it is additionally marked for zero-copy hand-off.
func Generate(ctx *task.Context) (any, error) {
	var p GenerateParams
	if err := ctx.DecodeInput(&p); err != nil {
		return nil, fmt.Errorf("decoding generate params: %w", err)
	}
	if err := validate.Struct(p); err != nil {
		return nil, fmt.Errorf("invalid generate params: %w", err)
	}

	src, err := noise.NewFractal(p.Seed, noise.Params{
		Frequency:   p.Frequency,
		Octaves:     p.Octaves,
		Persistence: p.Persistence,
		Amplitude:   p.Amplitude,
		Lacunarity:  p.Lacunarity,
		Scale:       p.Scale,
	})
	if err != nil {
		return nil, err
	}

	width, height := p.Size[0], p.Size[1]
	buf, err := grid.New(width, height)
	if err != nil {
		return nil, err
	}

	// Progress roughly every quarter of the columns.
	step := width / 4
	if step == 0 {
		step = 1
	}
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			buf.UncheckedSet(x, y, src.At(float64(x), float64(y)))
		}
		if (x+1)%step == 0 {
			if err := ctx.Progress(float64(x+1) / float64(width)); err != nil {
				return nil, err
			}
		}
	}

	if p.Shared {
		ctx.MarkForTransfer(buf)
	}
	return buf, nil
}
