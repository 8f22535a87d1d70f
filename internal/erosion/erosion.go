// Package erosion provides the erosion task category: iterative thermal
// and hydraulic stencils over elevation grids.
package erosion

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/orogen/orogen/internal/grid"
	"github.com/orogen/orogen/internal/task"
)

// Category is the task-type prefix of this package's tasks.
const Category = "erosion"

var validate = validator.New()

// Register installs the erosion task bodies: erosion/thermal and
// erosion/hydraulic.
func Register(r *task.Registry) {
	r.RegisterCategory(Category, task.NewHandler().
		Register("thermal", Thermal).
		Register("hydraulic", Hydraulic))
}

// ThermalParams configures erosion/thermal.
type ThermalParams struct {
	Size              [2]int    `json:"size"              validate:"dive,gt=0"`
	Buffer            []float64 `json:"buffer"            validate:"required"`
	Iterations        int       `json:"iterations"        validate:"gte=0"`
	SedimentationRate float64   `json:"sedimentationRate" validate:"gte=0,lte=1"`
	EvaporationRate   float64   `json:"evaporationRate"   validate:"gte=0,lte=1"`
}

// HydraulicParams configures erosion/hydraulic.
type HydraulicParams struct {
	Size              [2]int    `json:"size"              validate:"dive,gt=0"`
	Buffer            []float64 `json:"buffer"            validate:"required"`
	Iterations        int       `json:"iterations"        validate:"gte=0"`
	SedimentationRate float64   `json:"sedimentationRate" validate:"gte=0,lte=1"`
	EvaporationRate   float64   `json:"evaporationRate"   validate:"gte=0,lte=1"`
	InertiaRate       float64   `json:"inertiaRate"       validate:"gte=0,lte=1"`
}

// rainPerIteration is the water added to every cell at the start of each
// hydraulic iteration.
const rainPerIteration = 0.01

// Thermal runs talus-slope thermal erosion: per iteration, every cell
// moves a sedimentationRate fraction of its above-threshold elevation
// excess toward its steepest lower orthogonal neighbor. The threshold
// grows with evaporationRate, so a flat grid never changes. The mutated
// grid is the task's value, marked for hand-off.
func Thermal(ctx *task.Context) (any, error) {
	var p ThermalParams
	if err := ctx.DecodeInput(&p); err != nil {
		return nil, fmt.Errorf("decoding thermal params: %w", err)
	}
	if err := validate.Struct(p); err != nil {
		return nil, fmt.Errorf("invalid thermal params: %w", err)
	}

	buf, err := grid.FromStorage(p.Size[0], p.Size[1], p.Buffer)
	if err != nil {
		return nil, err
	}

	talus := p.EvaporationRate
	for i := 0; i < p.Iterations; i++ {
		for c := range buf.All() {
			h := buf.UncheckedGet(c.X, c.Y)

			// Steepest descent among the orthogonal neighbors.
			var lowest grid.Cell
			drop := 0.0
			for n := range buf.OrthogonalNeighbors(c.Point()) {
				if d := h - buf.UncheckedGet(n.X, n.Y); d > drop {
					drop = d
					lowest = n
				}
			}
			if drop <= talus {
				continue
			}

			moved := p.SedimentationRate * (drop - talus) / 2
			buf.UncheckedSet(c.X, c.Y, h-moved)
			buf.UncheckedSet(lowest.X, lowest.Y, buf.UncheckedGet(lowest.X, lowest.Y)+moved)
		}
		if err := ctx.Progress(float64(i+1) / float64(p.Iterations)); err != nil {
			return nil, err
		}
	}

	ctx.MarkForTransfer(buf)
	return buf, nil
}

// Hydraulic runs a rainfall/dissolve/transport/evaporate cycle. Water
// rains uniformly, dissolves material proportional to sedimentationRate,
// flows downhill carrying sediment with momentum scaled by inertiaRate,
// and evaporates by evaporationRate, depositing what it can no longer
// carry. The mutated grid is the task's value, marked for hand-off.
func Hydraulic(ctx *task.Context) (any, error) {
	var p HydraulicParams
	if err := ctx.DecodeInput(&p); err != nil {
		return nil, fmt.Errorf("decoding hydraulic params: %w", err)
	}
	if err := validate.Struct(p); err != nil {
		return nil, fmt.Errorf("invalid hydraulic params: %w", err)
	}

	buf, err := grid.FromStorage(p.Size[0], p.Size[1], p.Buffer)
	if err != nil {
		return nil, err
	}

	water := make([]float64, buf.Len())
	sediment := make([]float64, buf.Len())

	for i := 0; i < p.Iterations; i++ {
		// Rainfall.
		for j := range water {
			water[j] += rainPerIteration
		}

		// Dissolve and transport toward the steepest lower neighbor.
		for c := range buf.All() {
			h := buf.UncheckedGet(c.X, c.Y)

			dissolved := p.SedimentationRate * water[c.Index]
			buf.UncheckedSet(c.X, c.Y, h-dissolved)
			sediment[c.Index] += dissolved
			h -= dissolved

			var lowest grid.Cell
			drop := 0.0
			for n := range buf.OrthogonalNeighbors(c.Point()) {
				if d := h - buf.UncheckedGet(n.X, n.Y); d > drop {
					drop = d
					lowest = n
				}
			}
			if drop <= 0 {
				continue
			}

			// Momentum: inertia lets more of the water and its load move.
			flow := water[c.Index] * (0.5 + 0.5*p.InertiaRate)
			if flow > drop {
				flow = drop
			}
			carried := sediment[c.Index] * (flow / water[c.Index])
			water[c.Index] -= flow
			water[lowest.Index] += flow
			sediment[c.Index] -= carried
			sediment[lowest.Index] += carried
		}

		// Evaporation deposits stranded sediment back onto the grid.
		for c := range buf.All() {
			water[c.Index] *= 1 - p.EvaporationRate
			capacity := water[c.Index]
			if sediment[c.Index] > capacity {
				deposit := sediment[c.Index] - capacity
				sediment[c.Index] = capacity
				buf.UncheckedSet(c.X, c.Y, buf.UncheckedGet(c.X, c.Y)+deposit)
			}
		}

		if err := ctx.Progress(float64(i+1) / float64(p.Iterations)); err != nil {
			return nil, err
		}
	}

	ctx.MarkForTransfer(buf)
	return buf, nil
}
