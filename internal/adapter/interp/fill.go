package interp

import (
	"math"

	"go.ngs.io/regional-ocean/internal/domain"
)

// FloodFill replaces NaN values in every (t, z) slice with the value of the
// nearest valid point, measured in 4-connected steps through points inside
// mask. Ties go to the source first in row-major order. Filling stops
// maxDist steps from any source; zero or less means unbounded. Points where
// mask is false are neither filled nor crossed; a nil mask fills everywhere.
// It returns the number of values still missing inside the mask.
func FloodFill(f *domain.GriddedField, mask []bool, maxDist int) int {
	ny, nx := f.Window.NY, f.Window.NX
	if maxDist <= 0 {
		maxDist = ny * nx
	}
	remaining := 0
	dist := make([]int, ny*nx)
	queue := make([]int, 0, ny*nx)
	for t := 0; t < f.NT; t++ {
		for z := 0; z < f.NZ; z++ {
			remaining += fillSlice(f.Slice(t, z), dist, queue, mask, ny, nx, maxDist)
		}
	}
	return remaining
}

// fillSlice runs a multi-source breadth-first search from every valid point.
func fillSlice(cur []float64, dist, queue []int, mask []bool, ny, nx, maxDist int) int {
	queue = queue[:0]
	for p, v := range cur {
		if math.IsNaN(v) {
			dist[p] = -1
			continue
		}
		dist[p] = 0
		queue = append(queue, p)
	}
	for head := 0; head < len(queue); head++ {
		p := queue[head]
		if dist[p] >= maxDist {
			continue
		}
		visit := func(q int) {
			if dist[q] >= 0 || (mask != nil && !mask[q]) {
				return
			}
			dist[q] = dist[p] + 1
			cur[q] = cur[p]
			queue = append(queue, q)
		}
		i, j := p%nx, p/nx
		if i > 0 {
			visit(p - 1)
		}
		if i < nx-1 {
			visit(p + 1)
		}
		if j > 0 {
			visit(p - nx)
		}
		if j < ny-1 {
			visit(p + nx)
		}
	}
	missing := 0
	for p, v := range cur {
		if math.IsNaN(v) && (mask == nil || mask[p]) {
			missing++
		}
	}
	return missing
}
