package domain

import (
	"math"
	"time"
)

// FieldRole says how a field is used by the model.
type FieldRole int

const (
	// RoleTracer is a scalar tracer such as temperature or salinity.
	RoleTracer FieldRole = iota
	// RoleEta is the free-surface height.
	RoleEta
	// RoleU is the zonal (earth-relative) velocity component.
	RoleU
	// RoleV is the meridional (earth-relative) velocity component.
	RoleV
)

func (r FieldRole) String() string {
	switch r {
	case RoleEta:
		return "eta"
	case RoleU:
		return "u"
	case RoleV:
		return "v"
	default:
		return "tracer"
	}
}

// GridVariant tags how a source dataset places its variables.
type GridVariant int

const (
	// Colocated sources (Arakawa A) share one mesh for every variable.
	Colocated GridVariant = iota
	// Staggered sources (Arakawa C) put u and v on their own meshes.
	Staggered
)

// ParseGridVariant accepts "A" or "C".
func ParseGridVariant(s string) (GridVariant, bool) {
	switch s {
	case "A", "a":
		return Colocated, true
	case "C", "c":
		return Staggered, true
	}
	return Colocated, false
}

func (g GridVariant) String() string {
	if g == Staggered {
		return "C"
	}
	return "A"
}

// Targets returns the destination point types a field of the given role
// is regridded onto.
func (g GridVariant) Targets(role FieldRole) []PointType {
	switch role {
	case RoleU:
		if g == Colocated {
			return []PointType{PointU, PointV}
		}
		return []PointType{PointU}
	case RoleV:
		if g == Colocated {
			return []PointType{PointU, PointV}
		}
		return []PointType{PointV}
	default:
		return []PointType{PointT}
	}
}

// SourceMesh is the horizontal mesh a canonical field is defined on.
type SourceMesh struct {
	Lon [][]float64 // Lon[y][x].
	Lat [][]float64
}

// Shape returns (ny, nx).
func (m *SourceMesh) Shape() (int, int) {
	if m == nil || len(m.Lon) == 0 {
		return 0, 0
	}
	return len(m.Lon), len(m.Lon[0])
}

// CanonicalField is a source field expressed in the internal schema.
//
// Data is stored in (t, z, y, x) order. NaN marks missing values.
type CanonicalField struct {
	Name      string
	Role      FieldRole
	PointType PointType
	Units     string
	LongName  string
	Attrs     map[string]string
	Times     []time.Time
	Depths    []float64 // Increasing positive-down depths, nil for 2-D fields.
	Mesh      *SourceMesh
	NT, NZ    int
	Data      []float64
}

// At returns the value at (t, z, y, x).
func (f *CanonicalField) At(t, z, y, x int) float64 {
	ny, nx := f.Mesh.Shape()
	return f.Data[((t*f.NZ+z)*ny+y)*nx+x]
}

// Slice returns the (y, x) horizontal slice at (t, z) without copying.
func (f *CanonicalField) Slice(t, z int) []float64 {
	ny, nx := f.Mesh.Shape()
	n := ny * nx
	off := (t*f.NZ + z) * n
	return f.Data[off : off+n]
}

// Window locates a rectangular block of a point family.
type Window struct {
	J0, I0 int
	NY, NX int
}

// Contains reports whether the full-grid index (i, j) falls in the window.
func (w Window) Contains(i, j int) bool {
	return j >= w.J0 && j < w.J0+w.NY && i >= w.I0 && i < w.I0+w.NX
}

// GriddedField is a field on destination points, in (t, z, y, x) order.
type GriddedField struct {
	Name      string
	Role      FieldRole
	PointType PointType
	Units     string
	LongName  string
	Attrs     map[string]string
	Times     []time.Time
	Depths    []float64 // Source depths before remap, layer midpoints after.
	Window    Window
	NT, NZ    int
	Data      []float64
}

// NewGriddedField allocates a NaN-filled field.
func NewGriddedField(name string, pt PointType, w Window, nt, nz int) *GriddedField {
	data := make([]float64, nt*nz*w.NY*w.NX)
	for i := range data {
		data[i] = math.NaN()
	}
	return &GriddedField{Name: name, PointType: pt, Window: w, NT: nt, NZ: nz, Data: data}
}

// Index returns the flat offset of local (t, z, j, i).
func (f *GriddedField) Index(t, z, j, i int) int {
	return ((t*f.NZ+z)*f.Window.NY+j)*f.Window.NX + i
}

// At returns the value at local (t, z, j, i).
func (f *GriddedField) At(t, z, j, i int) float64 {
	return f.Data[f.Index(t, z, j, i)]
}

// Slice returns the horizontal slice at (t, z) without copying.
func (f *GriddedField) Slice(t, z int) []float64 {
	n := f.Window.NY * f.Window.NX
	off := (t*f.NZ + z) * n
	return f.Data[off : off+n]
}

// CopyMeta copies descriptive metadata from a canonical field.
func (f *GriddedField) CopyMeta(src *CanonicalField) {
	f.Role = src.Role
	f.Units = src.Units
	f.LongName = src.LongName
	f.Attrs = cloneAttrs(src.Attrs)
	f.Times = append([]time.Time(nil), src.Times...)
	f.Depths = append([]float64(nil), src.Depths...)
}

// AllMissing reports whether every value is NaN.
func (f *GriddedField) AllMissing() bool {
	for _, v := range f.Data {
		if !math.IsNaN(v) {
			return false
		}
	}
	return true
}

func cloneAttrs(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// ColumnReport records a destination column with no valid source data.
type ColumnReport struct {
	Field string
	Time  int
	I, J  int
}

// CoverageReport aggregates missing columns per field.
type CoverageReport struct {
	Field          string
	PointType      PointType
	Columns        int // Total columns examined (per time step).
	MissingColumns int // Columns with zero valid samples, summed over time.
	FullyMissing   bool
}
