// Package grid provides a fixed-size two-dimensional view over a flat
// float64 slice, with bounds-checked access, lazy iteration, and the
// neighbor queries used by the erosion stencils. Buffers carry explicit
// ownership: once released for hand-off, the original handle is invalid.
package grid
