package interp

import (
	"math"
	"sort"

	"go.ngs.io/regional-ocean/internal/domain"
)

// DeepFill selects how levels below the deepest valid sample are treated.
type DeepFill int

const (
	// DeepFillConstant holds the deepest valid value down to the bottom.
	DeepFillConstant DeepFill = iota
	// DeepFillNearest leaves those levels missing so the caller can fill
	// them horizontally with FloodFill.
	DeepFillNearest
)

// ParseDeepFill accepts "constant" or "nearest".
func ParseDeepFill(s string) (DeepFill, bool) {
	switch s {
	case "", "constant":
		return DeepFillConstant, true
	case "nearest":
		return DeepFillNearest, true
	}
	return DeepFillConstant, false
}

// Remapper interpolates profiles from source depths onto layer midpoints.
type Remapper struct {
	DeepFill DeepFill
}

// Remap maps one column. srcDepths must be increasing. A column without any
// valid sample comes back entirely NaN.
func (r Remapper) Remap(profile, srcDepths, dst []float64) []float64 {
	out := make([]float64, len(dst))
	r.remapInto(out, profile, srcDepths, dst)
	return out
}

func (r Remapper) remapInto(out, profile, srcDepths, dst []float64) {
	var zs, vs []float64
	for k, v := range profile {
		if !math.IsNaN(v) {
			zs = append(zs, srcDepths[k])
			vs = append(vs, v)
		}
	}
	if len(vs) == 0 {
		for k := range out {
			out[k] = math.NaN()
		}
		return
	}
	last := len(zs) - 1
	for k, z := range dst {
		switch {
		case z <= zs[0]:
			out[k] = vs[0]
		case z >= zs[last]:
			if z > zs[last] && r.DeepFill == DeepFillNearest {
				out[k] = math.NaN()
			} else {
				out[k] = vs[last]
			}
		default:
			n := sort.SearchFloat64s(zs, z)
			if zs[n] == z {
				out[k] = vs[n]
				continue
			}
			frac := (z - zs[n-1]) / (zs[n] - zs[n-1])
			out[k] = vs[n-1] + frac*(vs[n]-vs[n-1])
		}
	}
}

// RemapField remaps every column of in onto the layer midpoints of vg.
func (r Remapper) RemapField(in *domain.GriddedField, vg *domain.VerticalGrid) (*domain.GriddedField, []domain.ColumnReport) {
	out := r.Allocate(in, vg)
	reports := r.RemapRows(in, out, 0, in.Window.NY)
	return out, reports
}

// Allocate creates the remapped output for in.
func (r Remapper) Allocate(in *domain.GriddedField, vg *domain.VerticalGrid) *domain.GriddedField {
	nz := vg.Layers()
	if in.Depths == nil {
		nz = 1
	}
	out := domain.NewGriddedField(in.Name, in.PointType, in.Window, in.NT, nz)
	out.Role, out.Units, out.LongName = in.Role, in.Units, in.LongName
	out.Attrs = in.Attrs
	out.Times = in.Times
	if in.Depths != nil {
		out.Depths = append([]float64(nil), vg.Midpoints...)
	}
	return out
}

// RemapRows remaps destination rows [j0, j1). Surface fields are copied.
// Calls on disjoint row ranges may run concurrently.
func (r Remapper) RemapRows(in, out *domain.GriddedField, j0, j1 int) []domain.ColumnReport {
	var reports []domain.ColumnReport
	nx := in.Window.NX
	col := make([]float64, in.NZ)
	res := make([]float64, out.NZ)
	for t := 0; t < in.NT; t++ {
		for j := j0; j < j1; j++ {
			for i := 0; i < nx; i++ {
				for z := 0; z < in.NZ; z++ {
					col[z] = in.At(t, z, j, i)
				}
				if in.Depths == nil {
					copy(res, col)
				} else {
					r.remapInto(res, col, in.Depths, out.Depths)
				}
				missing := true
				for z, v := range res {
					out.Data[out.Index(t, z, j, i)] = v
					if !math.IsNaN(v) {
						missing = false
					}
				}
				if missing {
					reports = append(reports, domain.ColumnReport{
						Field: in.Name, Time: t, I: in.Window.I0 + i, J: in.Window.J0 + j,
					})
				}
			}
		}
	}
	return reports
}
