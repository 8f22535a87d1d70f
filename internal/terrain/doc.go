// Package terrain provides the terrain task category: procedural grid
// generation from fractal noise and RGBA heightmap encoding.
package terrain
