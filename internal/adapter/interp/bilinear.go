// Package interp provides horizontal and vertical interpolation onto model grids.
package interp

import (
	"fmt"
	"math"
	"sort"
)

// Grid2D is a regular lon/lat grid of values, used for auxiliary inputs
// such as bathymetry and tidal constituents.
type Grid2D struct {
	X      []float64   // X coordinates (e.g., longitudes), increasing.
	Y      []float64   // Y coordinates (e.g., latitudes), increasing.
	Values [][]float64 // Values[j][i] corresponds to (X[i], Y[j]). NaN is missing.
}

// Validate checks if the grid is valid.
func (g *Grid2D) Validate() error {
	if len(g.X) < 2 {
		return fmt.Errorf("grid must have at least 2 X coordinates")
	}
	if len(g.Y) < 2 {
		return fmt.Errorf("grid must have at least 2 Y coordinates")
	}
	if len(g.Values) != len(g.Y) {
		return fmt.Errorf("number of value rows (%d) must match Y coordinates (%d)", len(g.Values), len(g.Y))
	}
	for j, row := range g.Values {
		if len(row) != len(g.X) {
			return fmt.Errorf("row %d has %d values, expected %d", j, len(row), len(g.X))
		}
	}
	for i := 1; i < len(g.X); i++ {
		if g.X[i] <= g.X[i-1] {
			return fmt.Errorf("X coordinates must be strictly increasing")
		}
	}
	for j := 1; j < len(g.Y); j++ {
		if g.Y[j] <= g.Y[j-1] {
			return fmt.Errorf("Y coordinates must be strictly increasing")
		}
	}
	return nil
}

// cell holds the bracketing indices and weights of one point.
type cell struct {
	i, j int
	w    [4]float64 // (i, j), (i+1, j), (i, j+1), (i+1, j+1).
}

func (g *Grid2D) locate(x, y float64) (cell, error) {
	i := bracket(g.X, x)
	if i == -1 {
		return cell{}, fmt.Errorf("x coordinate %.6f is outside grid range [%.6f, %.6f]", x, g.X[0], g.X[len(g.X)-1])
	}
	j := bracket(g.Y, y)
	if j == -1 {
		return cell{}, fmt.Errorf("y coordinate %.6f is outside grid range [%.6f, %.6f]", y, g.Y[0], g.Y[len(g.Y)-1])
	}
	t := math.Max(0, math.Min(1, (x-g.X[i])/(g.X[i+1]-g.X[i])))
	u := math.Max(0, math.Min(1, (y-g.Y[j])/(g.Y[j+1]-g.Y[j])))
	return cell{i: i, j: j, w: [4]float64{(1 - t) * (1 - u), t * (1 - u), (1 - t) * u, t * u}}, nil
}

func (g *Grid2D) eval(c cell) float64 {
	vals := [4]float64{
		g.Values[c.j][c.i], g.Values[c.j][c.i+1],
		g.Values[c.j+1][c.i], g.Values[c.j+1][c.i+1],
	}
	var sum, wsum float64
	for k, v := range vals {
		if math.IsNaN(v) || c.w[k] == 0 {
			continue
		}
		sum += c.w[k] * v
		wsum += c.w[k]
	}
	if wsum == 0 {
		return math.NaN()
	}
	return sum / wsum
}

// InterpolateAt interpolates bilinearly at (x, y). Missing corners are
// dropped and the remaining weights renormalised; a point with no valid
// corner gives NaN. Points outside the grid are an error.
func (g *Grid2D) InterpolateAt(x, y float64) (float64, error) {
	if err := g.Validate(); err != nil {
		return 0, fmt.Errorf("invalid grid: %w", err)
	}
	c, err := g.locate(x, y)
	if err != nil {
		return 0, err
	}
	return g.eval(c), nil
}

// bracket returns the index k with axis[k] <= v <= axis[k+1], or -1.
func bracket(axis []float64, v float64) int {
	n := len(axis)
	if n < 2 || v < axis[0] || v > axis[n-1] {
		return -1
	}
	k := sort.SearchFloat64s(axis, v)
	if k > 0 {
		k--
	}
	if k > n-2 {
		k = n - 2
	}
	return k
}

// InterpolatePair interpolates two grids on the same axes (e.g. the real
// and imaginary parts of a tidal constituent) at one point.
func InterpolatePair(a, b *Grid2D, x, y float64) (float64, float64, error) {
	if len(a.X) != len(b.X) || len(a.Y) != len(b.Y) {
		return 0, 0, fmt.Errorf("grids must have the same dimensions")
	}
	if err := a.Validate(); err != nil {
		return 0, 0, fmt.Errorf("invalid grid: %w", err)
	}
	if err := b.Validate(); err != nil {
		return 0, 0, fmt.Errorf("invalid grid: %w", err)
	}
	c, err := a.locate(x, y)
	if err != nil {
		return 0, 0, err
	}
	return a.eval(c), b.eval(c), nil
}
