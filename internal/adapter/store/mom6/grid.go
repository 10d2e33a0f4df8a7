// Package mom6 reads and writes the NetCDF files consumed by the MOM6 ocean model.
package mom6

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/regional-ocean/internal/adapter/store/netcdfio"
	"go.ngs.io/regional-ocean/internal/domain"
)

// File names expected by the model.
const (
	SupergridFile        = "hgrid.nc"
	VerticalGridFile     = "vcoord.nc"
	InitialConditionFile = "init_state.nc"
)

// FillValue marks missing values on disk.
const FillValue = 1e20

// WriteSupergrid writes x, y, angle_dx (degrees) and area.
func WriteSupergrid(path string, g *domain.HorizontalGrid) error {
	nyp, nxp := len(g.X), len(g.X[0])
	return netcdfio.Create(path, func(ds netcdf.Dataset) error {
		dyp, err := netcdfio.Dim(ds, "nyp", nyp)
		if err != nil {
			return err
		}
		dxp, err := netcdfio.Dim(ds, "nxp", nxp)
		if err != nil {
			return err
		}
		dy, err := netcdfio.Dim(ds, "ny", nyp-1)
		if err != nil {
			return err
		}
		dx, err := netcdfio.Dim(ds, "nx", nxp-1)
		if err != nil {
			return err
		}
		angle := make([][]float64, nyp)
		for j, row := range g.AngleDx {
			angle[j] = make([]float64, len(row))
			for i, a := range row {
				angle[j][i] = domain.Rad2Deg(a)
			}
		}
		vars := []struct {
			name, units string
			dims        []netcdf.Dim
			data        [][]float64
		}{
			{"x", "degrees_east", []netcdf.Dim{dyp, dxp}, g.X},
			{"y", "degrees_north", []netcdf.Dim{dyp, dxp}, g.Y},
			{"angle_dx", "degrees", []netcdf.Dim{dyp, dxp}, angle},
			{"area", "m2", []netcdf.Dim{dy, dx}, g.Area},
		}
		defined := make([]netcdf.Var, len(vars))
		for k, v := range vars {
			if defined[k], err = netcdfio.Var(ds, v.name, v.dims...); err != nil {
				return err
			}
			if err := netcdfio.PutText(defined[k], "units", v.units); err != nil {
				return err
			}
		}
		if err := ds.EndDef(); err != nil {
			return fmt.Errorf("failed to end define mode: %w", err)
		}
		for k, v := range vars {
			if err := defined[k].WriteFloat64s(flatten(v.data)); err != nil {
				return fmt.Errorf("failed to write %s: %w", v.name, err)
			}
		}
		return nil
	})
}

// ReadSupergrid reads a supergrid file. angle_dx and area are optional and
// recomputed from x and y when absent.
func ReadSupergrid(path string) (*domain.HorizontalGrid, error) {
	nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("failed to open supergrid %s: %w", path, err)
	}
	defer func() { _ = nc.Close() }()

	read := func(name string, required bool) ([][]float64, string, error) {
		v, err := nc.Var(name)
		if err != nil {
			if required {
				return nil, "", &domain.SchemaError{Name: name, Kind: "variable", Reason: "missing from supergrid " + path}
			}
			return nil, "", nil
		}
		data, _, shape, err := netcdfio.ReadAll(v)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read %s: %w", name, err)
		}
		if len(shape) != 2 {
			return nil, "", fmt.Errorf("supergrid %s must be 2-D, got %dD", name, len(shape))
		}
		units, _ := netcdfio.Text(v.Attr("units"))
		return unflatten(data, shape[0], shape[1]), units, nil
	}
	x, _, err := read("x", true)
	if err != nil {
		return nil, err
	}
	y, _, err := read("y", true)
	if err != nil {
		return nil, err
	}
	angle, units, err := read("angle_dx", false)
	if err != nil {
		return nil, err
	}
	if angle != nil && !strings.HasPrefix(strings.ToLower(units), "rad") {
		for _, row := range angle {
			for i := range row {
				row[i] = domain.Deg2Rad(row[i])
			}
		}
	}
	area, _, err := read("area", false)
	if err != nil {
		return nil, err
	}
	return domain.NewHorizontalGrid(x, y, angle, area)
}

// WriteVerticalGrid writes layer thicknesses with interface and midpoint depths.
func WriteVerticalGrid(path string, vg *domain.VerticalGrid) error {
	return netcdfio.Create(path, func(ds netcdf.Dataset) error {
		dl, err := netcdfio.Dim(ds, "zl", vg.Layers())
		if err != nil {
			return err
		}
		di, err := netcdfio.Dim(ds, "zi", vg.Layers()+1)
		if err != nil {
			return err
		}
		zl, err := depthVar(ds, "zl", "Layer midpoint depth", dl)
		if err != nil {
			return err
		}
		zi, err := depthVar(ds, "zi", "Interface depth", di)
		if err != nil {
			return err
		}
		dz, err := depthVar(ds, "dz", "Layer thickness", dl)
		if err != nil {
			return err
		}
		if err := ds.EndDef(); err != nil {
			return fmt.Errorf("failed to end define mode: %w", err)
		}
		for _, w := range []struct {
			v    netcdf.Var
			data []float64
		}{{zl, vg.Midpoints}, {zi, vg.Interfaces}, {dz, vg.Thickness}} {
			if err := w.v.WriteFloat64s(w.data); err != nil {
				return fmt.Errorf("failed to write vertical grid: %w", err)
			}
		}
		return nil
	})
}

// ReadVerticalGrid reads the thicknesses written by WriteVerticalGrid.
func ReadVerticalGrid(path string) (*domain.VerticalGrid, error) {
	nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("failed to open vertical grid %s: %w", path, err)
	}
	defer func() { _ = nc.Close() }()
	v, err := nc.Var("dz")
	if err != nil {
		return nil, &domain.SchemaError{Name: "dz", Kind: "variable", Reason: "missing from " + path}
	}
	dz, _, _, err := netcdfio.ReadAll(v)
	if err != nil {
		return nil, fmt.Errorf("failed to read dz: %w", err)
	}
	var total float64
	for _, d := range dz {
		total += d
	}
	return domain.NewVerticalGrid(dz, total)
}

func depthVar(ds netcdf.Dataset, name, longName string, dim netcdf.Dim) (netcdf.Var, error) {
	v, err := netcdfio.Var(ds, name, dim)
	if err != nil {
		return v, err
	}
	err = netcdfio.PutTexts(v, map[string]string{"units": "meter", "long_name": longName, "positive": "down"})
	return v, err
}

// encodeTimes returns offsets in days since the first time and the CF units.
func encodeTimes(times []time.Time) ([]float64, string) {
	if len(times) == 0 {
		return nil, "days since 1900-01-01 00:00:00"
	}
	ref := times[0].UTC()
	out := make([]float64, len(times))
	for k, t := range times {
		out[k] = t.Sub(ref).Hours() / 24
	}
	return out, "days since " + ref.Format("2006-01-02 15:04:05")
}

func timeVar(ds netcdf.Dataset, dim netcdf.Dim, times []time.Time) (netcdf.Var, []float64, error) {
	v, err := netcdfio.Var(ds, "time", dim)
	if err != nil {
		return v, nil, err
	}
	values, units := encodeTimes(times)
	err = netcdfio.PutTexts(v, map[string]string{"units": units, "calendar": "gregorian", "axis": "T"})
	return v, values, err
}

// toDisk replaces NaN with FillValue in a copy.
func toDisk(data []float64) []float64 {
	out := make([]float64, len(data))
	for k, v := range data {
		if math.IsNaN(v) {
			v = FillValue
		}
		out[k] = v
	}
	return out
}

func flatten(rows [][]float64) []float64 {
	var out []float64
	for _, r := range rows {
		out = append(out, r...)
	}
	return out
}

func unflatten(data []float64, ny, nx int) [][]float64 {
	out := make([][]float64, ny)
	for j := range out {
		out[j] = data[j*nx : (j+1)*nx]
	}
	return out
}
