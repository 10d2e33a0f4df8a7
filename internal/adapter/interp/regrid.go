package interp

import (
	"fmt"
	"math"

	"go.ngs.io/regional-ocean/internal/domain"
)

// DefaultMinCoverage is the fraction of destination points that must fall
// inside the source mesh.
const DefaultMinCoverage = 0.95

// Regridder holds precomputed bilinear weights from one source mesh onto
// one destination point set.
type Regridder struct {
	mesh     *Mesh
	window   domain.Window
	pt       domain.PointType
	idx      [][4]int
	w        [][4]float64
	valid    []bool
	covered  int
	minCover float64
}

// NewRegridder computes weights for every destination point. Points outside
// the mesh are marked invalid and later produce NaN.
func NewRegridder(mesh *Mesh, dest domain.PointSet, minCoverage float64) (*Regridder, error) {
	ny, nx := dest.Shape()
	if ny == 0 || nx == 0 {
		return nil, fmt.Errorf("destination point set is empty")
	}
	if minCoverage <= 0 {
		minCoverage = DefaultMinCoverage
	}
	r := &Regridder{
		mesh:     mesh,
		window:   domain.Window{J0: dest.J[0][0], I0: dest.I[0][0], NY: ny, NX: nx},
		pt:       dest.Type,
		idx:      make([][4]int, ny*nx),
		w:        make([][4]float64, ny*nx),
		valid:    make([]bool, ny*nx),
		minCover: minCoverage,
	}
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			p := j*nx + i
			idx, w, ok := mesh.locate(dest.Lon[j][i], dest.Lat[j][i])
			if !ok {
				continue
			}
			r.idx[p], r.w[p], r.valid[p] = idx, w, true
			r.covered++
		}
	}
	return r, nil
}

// Window returns the destination window the regridder targets.
func (r *Regridder) Window() domain.Window { return r.window }

// Coverage is the fraction of destination points inside the source mesh.
func (r *Regridder) Coverage() float64 {
	return float64(r.covered) / float64(len(r.valid))
}

// CheckCoverage returns an OutOfDomainError when coverage is too low.
func (r *Regridder) CheckCoverage(field string) error {
	if c := r.Coverage(); c < r.minCover {
		return &domain.OutOfDomainError{Field: field, PointType: r.pt, Coverage: c, Min: r.minCover}
	}
	return nil
}

// Regrid interpolates every (t, z) slice of f onto the destination points.
func (r *Regridder) Regrid(f *domain.CanonicalField) (*domain.GriddedField, error) {
	if err := r.CheckCoverage(f.Name); err != nil {
		return nil, err
	}
	out, err := r.Allocate(f)
	if err != nil {
		return nil, err
	}
	r.RegridRows(f, out, 0, r.window.NY)
	return out, nil
}

// Allocate creates the NaN-filled output for f on the destination window.
func (r *Regridder) Allocate(f *domain.CanonicalField) (*domain.GriddedField, error) {
	sny, snx := f.Mesh.Shape()
	mny, mnx := r.mesh.Shape()
	if sny != mny || snx != mnx {
		return nil, fmt.Errorf("field %s mesh %dx%d does not match regridder mesh %dx%d", f.Name, snx, sny, mnx, mny)
	}
	out := domain.NewGriddedField(f.Name, r.pt, r.window, f.NT, f.NZ)
	out.CopyMeta(f)
	return out, nil
}

// RegridRows fills destination rows [j0, j1) of out for every (t, z). Calls
// on disjoint row ranges may run concurrently.
func (r *Regridder) RegridRows(f *domain.CanonicalField, out *domain.GriddedField, j0, j1 int) {
	nx := r.window.NX
	for t := 0; t < f.NT; t++ {
		for z := 0; z < f.NZ; z++ {
			src := f.Slice(t, z)
			dst := out.Slice(t, z)
			for p := j0 * nx; p < j1*nx; p++ {
				dst[p] = r.apply(src, p)
			}
		}
	}
}

// apply evaluates destination point p, renormalising over valid corners.
func (r *Regridder) apply(src []float64, p int) float64 {
	if !r.valid[p] {
		return math.NaN()
	}
	var sum, wsum, first float64
	uniform, n := true, 0
	for k := 0; k < 4; k++ {
		w := r.w[p][k]
		if w == 0 {
			continue
		}
		v := src[r.idx[p][k]]
		if math.IsNaN(v) {
			continue
		}
		if n == 0 {
			first = v
		} else if v != first {
			uniform = false
		}
		n++
		sum += w * v
		wsum += w
	}
	if n == 0 {
		return math.NaN()
	}
	// Equal corners reproduce the value exactly.
	if uniform {
		return first
	}
	return sum / wsum
}
