package source

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.ngs.io/regional-ocean/internal/domain"
)

// Adapter canonicalizes datasets described by one name map.
type Adapter struct {
	names   NameMap
	variant domain.GridVariant
	slots   []slot
}

// NewAdapter validates the name map and returns an adapter for it.
func NewAdapter(names NameMap, variant domain.GridVariant) (*Adapter, error) {
	if err := names.Validate(); err != nil {
		return nil, err
	}
	return &Adapter{names: names, variant: variant, slots: names.slots(variant)}, nil
}

// Variant returns the grid variant of the source.
func (a *Adapter) Variant() domain.GridVariant { return a.variant }

// meshKey identifies a horizontal mesh by its coordinate and dimension names.
type meshKey struct{ lon, lat, x, y string }

// Canonicalize reads every requested field from ds and returns them in the
// internal schema: (t, z, y, x) order, NaN for missing, increasing depth.
// Fields regridded onto more than one point type are replicated per target
// and share their data. ds is never modified.
func (a *Adapter) Canonicalize(ds Dataset, sel Selection) ([]domain.CanonicalField, error) {
	steps, err := a.Steps(ds, sel)
	if err != nil {
		return nil, err
	}
	return a.CanonicalizeSteps(ds, steps)
}

// Steps returns the source time indices matched by sel, in time order.
func (a *Adapter) Steps(ds Dataset, sel Selection) ([]int, error) {
	times, err := a.readTimes(ds)
	if err != nil {
		return nil, err
	}
	steps := sel.indices(times)
	if len(steps) == 0 {
		return nil, fmt.Errorf("time selection matches none of the %d source time steps", len(times))
	}
	return steps, nil
}

// StepBytes estimates the memory one source time step of every requested
// variable takes once canonicalized. Only metadata is read.
func (a *Adapter) StepBytes(ds Dataset) (int, error) {
	seen := make(map[string]bool)
	total := 0
	for _, s := range a.slots {
		if seen[s.source] {
			continue
		}
		seen[s.source] = true
		v, err := ds.VariableSteps(s.source, a.names.Time, nil)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return 0, &domain.SchemaError{Name: s.source, Kind: "variable", Reason: "not found in dataset"}
			}
			return 0, fmt.Errorf("failed to read %s: %w", s.source, err)
		}
		n := 8
		for k, d := range v.Shape {
			if v.Dims[k] != a.names.Time {
				n *= d
			}
		}
		total += n
	}
	return total, nil
}

// CanonicalizeSteps is Canonicalize over explicit source time indices. Only
// those steps are read from ds.
func (a *Adapter) CanonicalizeSteps(ds Dataset, steps []int) ([]domain.CanonicalField, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("no time steps to canonicalize")
	}
	times, err := a.readTimes(ds)
	if err != nil {
		return nil, err
	}
	picked := make([]time.Time, len(steps))
	for k, s := range steps {
		if s < 0 || s >= len(times) {
			return nil, fmt.Errorf("time step %d out of range [0, %d)", s, len(times))
		}
		picked[k] = times[s]
	}

	var depths []float64
	var flip bool
	meshes := make(map[meshKey]*domain.SourceMesh)
	var orders []string
	var out []domain.CanonicalField

	for _, s := range a.slots {
		v, err := ds.VariableSteps(s.source, a.names.Time, steps)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, &domain.SchemaError{Name: s.source, Kind: "variable", Reason: "not found in dataset"}
			}
			return nil, fmt.Errorf("failed to read %s: %w", s.source, err)
		}
		axes, order, err := a.axes(v, s)
		if err != nil {
			return nil, err
		}
		for _, prev := range orders {
			if !consistentOrder(prev, order) {
				return nil, &domain.SchemaError{Name: s.source, Kind: "variable",
					Reason: fmt.Sprintf("dimension order %s conflicts with %s", order, prev)}
			}
		}
		orders = append(orders, order)

		key := meshKey{s.lon, s.lat, s.x, s.y}
		mesh, ok := meshes[key]
		if !ok {
			mesh, err = readMesh(ds, s)
			if err != nil {
				return nil, err
			}
			meshes[key] = mesh
		}
		ny, nx := mesh.Shape()
		if v.Shape[axes.y] != ny || v.Shape[axes.x] != nx {
			return nil, &domain.SchemaError{Name: s.source, Kind: "variable",
				Reason: fmt.Sprintf("horizontal shape %dx%d does not match coordinates %dx%d",
					v.Shape[axes.x], v.Shape[axes.y], nx, ny)}
		}

		nz := 1
		if s.vertical {
			if depths == nil {
				depths, flip, err = a.readDepths(ds)
				if err != nil {
					return nil, err
				}
			}
			nz = len(depths)
			if v.Shape[axes.z] != nz {
				return nil, &domain.SchemaError{Name: s.source, Kind: "variable",
					Reason: fmt.Sprintf("has %d levels, depth coordinate has %d", v.Shape[axes.z], nz)}
			}
		}

		data := canonicalData(v, axes, len(steps), nz, ny, nx, flip && s.vertical)
		f := domain.CanonicalField{
			Name:  s.model,
			Role:  s.role,
			Times: picked,
			Mesh:  mesh,
			NT:    len(steps),
			NZ:    nz,
			Data:  data,
		}
		f.Units, f.LongName, f.Attrs = splitAttrs(v.Attrs)
		if s.vertical {
			f.Depths = depths
		}
		for _, pt := range a.variant.Targets(s.role) {
			f.PointType = pt
			out = append(out, f)
		}
	}
	return out, nil
}

// axisSet holds the axis of each canonical dimension within a variable;
// z is -1 for surface fields.
type axisSet struct{ t, z, y, x int }

func (a *Adapter) axes(v *Variable, s slot) (axisSet, string, error) {
	ax := axisSet{t: v.DimIndex(a.names.Time), z: -1, y: v.DimIndex(s.y), x: v.DimIndex(s.x)}
	need := map[string]int{a.names.Time: ax.t, s.y: ax.y, s.x: ax.x}
	if s.vertical {
		ax.z = v.DimIndex(a.names.Z)
		need[a.names.Z] = ax.z
	}
	for _, d := range []string{a.names.Time, a.names.Z, s.y, s.x} {
		if k, ok := need[d]; ok && k < 0 {
			return ax, "", &domain.SchemaError{Name: d, Kind: "dimension",
				Reason: fmt.Sprintf("required by variable %s (dims %v)", v.Name, v.Dims)}
		}
	}
	for k, d := range v.Dims {
		if k != ax.t && k != ax.z && k != ax.y && k != ax.x && v.Shape[k] != 1 {
			return ax, "", &domain.SchemaError{Name: d, Kind: "dimension",
				Reason: fmt.Sprintf("unexpected dimension of length %d on variable %s", v.Shape[k], v.Name)}
		}
	}
	type named struct {
		axis int
		sym  byte
	}
	list := []named{{ax.t, 't'}, {ax.y, 'y'}, {ax.x, 'x'}}
	if ax.z >= 0 {
		list = append(list, named{ax.z, 'z'})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].axis < list[j].axis })
	var b strings.Builder
	for _, n := range list {
		b.WriteByte(n.sym)
	}
	return ax, b.String(), nil
}

// consistentOrder reports whether two dimension orders agree on the
// relative order of the dimensions they share.
func consistentOrder(a, b string) bool {
	keep := func(s, other string) string {
		var out strings.Builder
		for i := 0; i < len(s); i++ {
			if strings.IndexByte(other, s[i]) >= 0 {
				out.WriteByte(s[i])
			}
		}
		return out.String()
	}
	return keep(a, b) == keep(b, a)
}

// canonicalData copies the nt steps of v into (t, z, y, x) order and
// converts fill values, scale and offset.
func canonicalData(v *Variable, ax axisSet, nt, nz, ny, nx int, flip bool) []float64 {
	strides := make([]int, len(v.Shape))
	stride := 1
	for k := len(v.Shape) - 1; k >= 0; k-- {
		strides[k] = stride
		stride *= v.Shape[k]
	}
	zs := 0
	if ax.z >= 0 {
		zs = strides[ax.z]
	}
	conv := newConverter(v)
	out := make([]float64, 0, nt*nz*ny*nx)
	for t := 0; t < nt; t++ {
		for z := 0; z < nz; z++ {
			sz := z
			if flip {
				sz = nz - 1 - z
			}
			for y := 0; y < ny; y++ {
				base := t*strides[ax.t] + sz*zs + y*strides[ax.y]
				for x := 0; x < nx; x++ {
					out = append(out, conv.apply(v.Data[base+x*strides[ax.x]]))
				}
			}
		}
	}
	return out
}

type converter struct {
	fills         []float64
	scale, offset float64
}

func newConverter(v *Variable) converter {
	c := converter{scale: 1}
	for _, name := range []string{"_FillValue", "missing_value"} {
		if fv, ok := v.Numeric[name]; ok {
			c.fills = append(c.fills, fv)
		}
	}
	if s, ok := v.Numeric["scale_factor"]; ok {
		c.scale = s
	}
	if o, ok := v.Numeric["add_offset"]; ok {
		c.offset = o
	}
	return c
}

func (c converter) apply(raw float64) float64 {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return math.NaN()
	}
	for _, fv := range c.fills {
		if raw == fv {
			return math.NaN()
		}
	}
	return raw*c.scale + c.offset
}

func splitAttrs(attrs map[string]string) (units, longName string, rest map[string]string) {
	rest = make(map[string]string, len(attrs))
	for k, v := range attrs {
		switch k {
		case "units":
			units = v
		case "long_name":
			longName = v
		default:
			rest[k] = v
		}
	}
	return units, longName, rest
}

func (a *Adapter) readTimes(ds Dataset) ([]time.Time, error) {
	if _, ok := ds.DimLen(a.names.Time); !ok {
		return nil, &domain.SchemaError{Name: a.names.Time, Kind: "dimension", Reason: "not found in dataset"}
	}
	v, err := coordinate(ds, a.names.Time)
	if err != nil {
		return nil, err
	}
	units, ok := v.Attrs["units"]
	if !ok {
		return nil, &domain.SchemaError{Name: v.Name, Kind: "variable", Reason: "time coordinate has no units"}
	}
	times, err := DecodeTimes(v.Data, units)
	if err != nil {
		return nil, &domain.SchemaError{Name: v.Name, Kind: "variable", Reason: err.Error()}
	}
	return times, nil
}

// readDepths returns increasing positive-down depths and whether the source
// axis had to be reversed.
func (a *Adapter) readDepths(ds Dataset) ([]float64, bool, error) {
	v, err := coordinate(ds, or(a.names.Depth, a.names.Z))
	if err != nil {
		return nil, false, err
	}
	if len(v.Dims) != 1 {
		return nil, false, &domain.SchemaError{Name: v.Name, Kind: "variable", Reason: "depth coordinate must be 1-D"}
	}
	depths := append([]float64(nil), v.Data...)
	up := strings.EqualFold(v.Attrs["positive"], "up")
	if !up {
		// Heights below the surface without a positive attribute.
		nonPositive, negative := true, false
		for _, d := range depths {
			if d > 0 {
				nonPositive = false
			}
			if d < 0 {
				negative = true
			}
		}
		up = nonPositive && negative
	}
	if up {
		for k := range depths {
			depths[k] = -depths[k]
		}
	}
	flip := len(depths) > 1 && depths[0] > depths[len(depths)-1]
	if flip {
		for i, j := 0, len(depths)-1; i < j; i, j = i+1, j-1 {
			depths[i], depths[j] = depths[j], depths[i]
		}
	}
	for k := 1; k < len(depths); k++ {
		if !(depths[k] > depths[k-1]) {
			return nil, false, &domain.SchemaError{Name: v.Name, Kind: "variable", Reason: "depth coordinate is not monotonic"}
		}
	}
	return depths, flip, nil
}

func readMesh(ds Dataset, s slot) (*domain.SourceMesh, error) {
	lon, err := coordinate(ds, s.lon)
	if err != nil {
		return nil, err
	}
	lat, err := coordinate(ds, s.lat)
	if err != nil {
		return nil, err
	}
	switch {
	case len(lon.Dims) == 1 && len(lat.Dims) == 1:
		m := &domain.SourceMesh{Lon: make([][]float64, len(lat.Data)), Lat: make([][]float64, len(lat.Data))}
		for j, y := range lat.Data {
			m.Lon[j] = append([]float64(nil), lon.Data...)
			m.Lat[j] = make([]float64, len(lon.Data))
			for i := range m.Lat[j] {
				m.Lat[j][i] = y
			}
		}
		return m, nil
	case len(lon.Dims) == 2 && len(lat.Dims) == 2:
		lon2, err := grid2D(lon, s)
		if err != nil {
			return nil, err
		}
		lat2, err := grid2D(lat, s)
		if err != nil {
			return nil, err
		}
		return &domain.SourceMesh{Lon: lon2, Lat: lat2}, nil
	}
	return nil, &domain.SchemaError{Name: s.lon, Kind: "variable",
		Reason: fmt.Sprintf("coordinates must both be 1-D or both 2-D, got %dD and %dD", len(lon.Dims), len(lat.Dims))}
}

// grid2D returns a 2-D coordinate indexed [y][x].
func grid2D(v *Variable, s slot) ([][]float64, error) {
	ay, ax := v.DimIndex(s.y), v.DimIndex(s.x)
	if ay < 0 || ax < 0 {
		return nil, &domain.SchemaError{Name: v.Name, Kind: "variable",
			Reason: fmt.Sprintf("2-D coordinate dims %v do not include %s and %s", v.Dims, s.y, s.x)}
	}
	ny, nx := v.Shape[ay], v.Shape[ax]
	out := make([][]float64, ny)
	for j := range out {
		out[j] = make([]float64, nx)
		for i := range out[j] {
			if ay == 0 {
				out[j][i] = v.Data[j*nx+i]
			} else {
				out[j][i] = v.Data[i*ny+j]
			}
		}
	}
	return out, nil
}

func coordinate(ds Dataset, name string) (*Variable, error) {
	v, err := ds.Variable(name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &domain.SchemaError{Name: name, Kind: "variable", Reason: "coordinate not found in dataset"}
		}
		return nil, fmt.Errorf("failed to read coordinate %s: %w", name, err)
	}
	return v, nil
}
