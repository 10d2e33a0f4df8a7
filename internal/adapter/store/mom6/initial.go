package mom6

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/regional-ocean/internal/adapter/store/netcdfio"
	"go.ngs.io/regional-ocean/internal/domain"
)

// axis is a 1-D horizontal coordinate written alongside gridded fields.
type axis struct {
	name, units string
	values      []float64
}

// axes returns the (y, x) coordinate axes of a point family. Values come
// from the first row and column, which is exact for unrotated grids and an
// index label otherwise.
func axes(g *domain.HorizontalGrid, pt domain.PointType) (axis, axis) {
	ps := g.Points(pt)
	ny, nx := ps.Shape()
	yName, xName := "yh", "xh"
	switch pt {
	case domain.PointU:
		xName = "xq"
	case domain.PointV:
		yName = "yq"
	case domain.PointQ:
		yName, xName = "yq", "xq"
	}
	y := axis{name: yName, units: "degrees_north", values: make([]float64, ny)}
	x := axis{name: xName, units: "degrees_east", values: make([]float64, nx)}
	for j := 0; j < ny; j++ {
		y.values[j] = ps.Lat[j][0]
	}
	for i := 0; i < nx; i++ {
		x.values[i] = ps.Lon[0][i]
	}
	return y, x
}

// WriteInitialCondition writes every tracer, velocity and surface height
// field of ic into one file in dir and returns its path. Fields on
// different point families share the horizontal axes they have in common.
func WriteInitialCondition(dir string, g *domain.HorizontalGrid, ic *domain.InitialCondition) (string, error) {
	fields := make([]*domain.GriddedField, 0, len(ic.Tracers)+3)
	for _, name := range ic.TracerNames() {
		fields = append(fields, ic.Tracers[name])
	}
	for _, f := range []*domain.GriddedField{ic.U, ic.V, ic.Eta} {
		if f != nil {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		return "", fmt.Errorf("initial condition has no fields")
	}
	path := filepath.Join(dir, InitialConditionFile)
	if err := writeGridded(path, g, ic, fields); err != nil {
		return "", err
	}
	return path, nil
}

func writeGridded(path string, g *domain.HorizontalGrid, ic *domain.InitialCondition, fields []*domain.GriddedField) error {
	err := netcdfio.Create(path, func(ds netcdf.Dataset) error {
		dims := make(map[string]netcdf.Dim)
		var writes []pendingWrite
		dim := func(name string, n int) (netcdf.Dim, error) {
			if d, ok := dims[name]; ok {
				return d, nil
			}
			d, err := netcdfio.Dim(ds, name, n)
			if err == nil {
				dims[name] = d
			}
			return d, err
		}
		coord := func(a axis) (netcdf.Dim, error) {
			if d, ok := dims[a.name]; ok {
				return d, nil
			}
			d, err := dim(a.name, len(a.values))
			if err != nil {
				return d, err
			}
			v, err := netcdfio.Var(ds, a.name, d)
			if err != nil {
				return d, err
			}
			if err := netcdfio.PutText(v, "units", a.units); err != nil {
				return d, err
			}
			writes = append(writes, pendingWrite{v, a.name, a.values})
			return d, nil
		}

		dt, err := dim("time", 1)
		if err != nil {
			return err
		}
		vt, times, err := timeVar(ds, dt, []time.Time{ic.Time})
		if err != nil {
			return err
		}
		writes = append(writes, pendingWrite{vt, "time", times})
		dl, err := coord(axis{name: "zl", units: "meter", values: ic.Vertical.Midpoints})
		if err != nil {
			return err
		}
		if _, err := coord(axis{name: "zi", units: "meter", values: ic.Vertical.Interfaces}); err != nil {
			return err
		}

		for _, f := range fields {
			ya, xa := axes(g, f.PointType)
			if len(ya.values) != f.Window.NY || len(xa.values) != f.Window.NX {
				return fmt.Errorf("field %s is %dx%d, %s points are %dx%d",
					f.Name, f.Window.NX, f.Window.NY, f.PointType, len(xa.values), len(ya.values))
			}
			dy, err := coord(ya)
			if err != nil {
				return err
			}
			dx, err := coord(xa)
			if err != nil {
				return err
			}
			vdims := []netcdf.Dim{dt, dy, dx}
			if f.Depths != nil {
				vdims = []netcdf.Dim{dt, dl, dy, dx}
			}
			v, err := netcdfio.Var(ds, f.Name, vdims...)
			if err != nil {
				return err
			}
			if err := netcdfio.PutTexts(v, f.Attrs); err != nil {
				return err
			}
			if err := netcdfio.PutTexts(v, map[string]string{"units": f.Units, "long_name": f.LongName}); err != nil {
				return err
			}
			if err := netcdfio.PutNumber(v, "_FillValue", FillValue); err != nil {
				return err
			}
			// Only the selected time step is written.
			n := f.NZ * f.Window.NY * f.Window.NX
			writes = append(writes, pendingWrite{v, f.Name, toDisk(f.Data[:n])})
		}
		if err := ds.EndDef(); err != nil {
			return fmt.Errorf("failed to end define mode: %w", err)
		}
		return flush(writes)
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
