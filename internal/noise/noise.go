// Package noise provides the seeded (x, y) → value function consumed by
// the terrain generation task: lattice value noise combined across
// fractal octaves. The output is normalized to [0, 1].
package noise

import (
	"errors"
	"fmt"
	"math"
)

// Common errors returned for invalid parameters
var ErrInvalidParams = errors.New("invalid noise parameters")

// Params configures the fractal octave combination. Zero values are
// replaced by the documented defaults.
type Params struct {
	Frequency   float64 // base sampling frequency, default 1
	Octaves     int     // number of octave layers, default 4
	Persistence float64 // per-octave amplitude falloff, default 0.5
	Amplitude   float64 // first-octave amplitude, default 1
	Lacunarity  float64 // per-octave frequency growth, default 2
	Scale       float64 // coordinate divisor, default 64
}

// DefaultParams returns the default octave configuration.
func DefaultParams() Params {
	return Params{
		Frequency:   1,
		Octaves:     4,
		Persistence: 0.5,
		Amplitude:   1,
		Lacunarity:  2,
		Scale:       64,
	}
}

// withDefaults fills zero fields with defaults.
func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.Frequency == 0 {
		p.Frequency = d.Frequency
	}
	if p.Octaves == 0 {
		p.Octaves = d.Octaves
	}
	if p.Persistence == 0 {
		p.Persistence = d.Persistence
	}
	if p.Amplitude == 0 {
		p.Amplitude = d.Amplitude
	}
	if p.Lacunarity == 0 {
		p.Lacunarity = d.Lacunarity
	}
	if p.Scale == 0 {
		p.Scale = d.Scale
	}
	return p
}

// validate rejects parameter combinations with no usable interpretation.
func (p Params) validate() error {
	switch {
	case p.Octaves < 1:
		return fmt.Errorf("octaves %d must be at least 1: %w", p.Octaves, ErrInvalidParams)
	case p.Frequency <= 0:
		return fmt.Errorf("frequency %v must be positive: %w", p.Frequency, ErrInvalidParams)
	case p.Scale <= 0:
		return fmt.Errorf("scale %v must be positive: %w", p.Scale, ErrInvalidParams)
	case p.Persistence <= 0:
		return fmt.Errorf("persistence %v must be positive: %w", p.Persistence, ErrInvalidParams)
	case p.Lacunarity <= 0:
		return fmt.Errorf("lacunarity %v must be positive: %w", p.Lacunarity, ErrInvalidParams)
	case p.Amplitude <= 0:
		return fmt.Errorf("amplitude %v must be positive: %w", p.Amplitude, ErrInvalidParams)
	}
	return nil
}

// Source is an opaque 2D noise function.
type Source interface {
	At(x, y float64) float64
}

// Fractal is a seeded fractal value-noise source. It is deterministic for
// a given (seed, Params) pair and safe for concurrent use.
type Fractal struct {
	seed   int64
	params Params
	// norm rescales the octave sum back to [0, 1].
	norm float64
}

// NewFractal builds a fractal source, applying defaults to zero-valued
// parameters and failing fast on invalid ones.
func NewFractal(seed int64, params Params) (*Fractal, error) {
	p := params.withDefaults()
	if err := p.validate(); err != nil {
		return nil, err
	}

	total := 0.0
	amp := p.Amplitude
	for i := 0; i < p.Octaves; i++ {
		total += amp
		amp *= p.Persistence
	}

	return &Fractal{seed: seed, params: p, norm: 1 / total}, nil
}

// At samples the combined octaves at (x, y).
func (f *Fractal) At(x, y float64) float64 {
	p := f.params
	sx := x / p.Scale
	sy := y / p.Scale

	sum := 0.0
	freq := p.Frequency
	amp := p.Amplitude
	for i := 0; i < p.Octaves; i++ {
		sum += amp * f.octave(sx*freq, sy*freq, int64(i))
		freq *= p.Lacunarity
		amp *= p.Persistence
	}
	return sum * f.norm
}

// octave samples one smoothed value-noise layer in [0, 1].
func (f *Fractal) octave(x, y float64, layer int64) float64 {
	x0 := math.Floor(x)
	y0 := math.Floor(y)
	tx := smooth(x - x0)
	ty := smooth(y - y0)

	ix, iy := int64(x0), int64(y0)
	v00 := f.lattice(ix, iy, layer)
	v10 := f.lattice(ix+1, iy, layer)
	v01 := f.lattice(ix, iy+1, layer)
	v11 := f.lattice(ix+1, iy+1, layer)

	top := lerp(v00, v10, tx)
	bottom := lerp(v01, v11, tx)
	return lerp(top, bottom, ty)
}

// lattice hashes an integer grid point to a deterministic value in [0, 1).
func (f *Fractal) lattice(x, y, layer int64) float64 {
	h := uint64(x)*0x9e3779b97f4a7c15 ^
		uint64(y)*0xc2b2ae3d27d4eb4f ^
		uint64(f.seed)*0x165667b19e3779f9 ^
		uint64(layer)*0x27d4eb2f165667c5
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	h *= 0xc4ceb9fe1a85ec53
	h ^= h >> 33
	return float64(h>>11) / float64(1<<53)
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// smooth is the smoothstep fade, removing lattice-aligned creasing.
func smooth(t float64) float64 {
	return t * t * (3 - 2*t)
}
