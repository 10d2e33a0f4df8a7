package mom6

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/regional-ocean/internal/adapter/store/netcdfio"
	"go.ngs.io/regional-ocean/internal/domain"
)

// SegmentFileName returns the open-boundary forcing file name of a segment.
func SegmentFileName(n int) string {
	return fmt.Sprintf("forcing_obc_%s.nc", domain.SegmentID(n))
}

// TidalFileName returns the tidal elevation file name of a segment.
func TidalFileName(n int) string {
	return fmt.Sprintf("tz_%s.nc", domain.SegmentID(n))
}

type pendingWrite struct {
	v    netcdf.Var
	name string
	data []float64
}

// segmentDims defines the along/cross boundary dimensions of a segment.
// Points run along nx for north, south and path segments and along ny for
// east and west.
func segmentDims(ds netcdf.Dataset, id string, b domain.BoundarySpec, n int) (netcdf.Dim, netcdf.Dim, error) {
	nx, ny := n, 1
	if !b.AlongX() {
		nx, ny = 1, n
	}
	dy, err := netcdfio.Dim(ds, "ny_"+id, ny)
	if err != nil {
		return dy, dy, err
	}
	dx, err := netcdfio.Dim(ds, "nx_"+id, nx)
	return dy, dx, err
}

func coordVars(ds netcdf.Dataset, id string, dy, dx netcdf.Dim, lon, lat []float64) ([]pendingWrite, error) {
	vlon, err := netcdfio.Var(ds, "lon_"+id, dy, dx)
	if err != nil {
		return nil, err
	}
	if err := netcdfio.PutText(vlon, "units", "degrees_east"); err != nil {
		return nil, err
	}
	vlat, err := netcdfio.Var(ds, "lat_"+id, dy, dx)
	if err != nil {
		return nil, err
	}
	if err := netcdfio.PutText(vlat, "units", "degrees_north"); err != nil {
		return nil, err
	}
	return []pendingWrite{{vlon, "lon_" + id, lon}, {vlat, "lat_" + id, lat}}, nil
}

// WriteSegment writes one boundary segment into dir and returns the path.
func WriteSegment(dir string, seg *domain.BoundarySegment) (string, error) {
	id := seg.ID()
	path := filepath.Join(dir, SegmentFileName(seg.Number))
	err := netcdfio.Create(path, func(ds netcdf.Dataset) error {
		dt, err := netcdfio.Dim(ds, "time", len(seg.Times))
		if err != nil {
			return err
		}
		dy, dx, err := segmentDims(ds, id, seg.Boundary, seg.Len())
		if err != nil {
			return err
		}
		vt, times, err := timeVar(ds, dt, seg.Times)
		if err != nil {
			return err
		}
		writes := []pendingWrite{{vt, "time", times}}
		coords, err := coordVars(ds, id, dy, dx, seg.Lon, seg.Lat)
		if err != nil {
			return err
		}
		writes = append(writes, coords...)

		for _, sv := range seg.Variables {
			name := sv.Name + "_" + id
			if !sv.Layered {
				v, err := netcdfio.Var(ds, name, dt, dy, dx)
				if err != nil {
					return err
				}
				if err := variableAttrs(v, sv); err != nil {
					return err
				}
				writes = append(writes, pendingWrite{v, name, toDisk(sv.Data)})
				continue
			}
			zname := "nz_" + id + "_" + sv.Name
			dz, err := netcdfio.Dim(ds, zname, sv.NZ)
			if err != nil {
				return err
			}
			vz, err := netcdfio.Var(ds, zname, dz)
			if err != nil {
				return err
			}
			v, err := netcdfio.Var(ds, name, dt, dz, dy, dx)
			if err != nil {
				return err
			}
			if err := variableAttrs(v, sv); err != nil {
				return err
			}
			vdz, err := netcdfio.Var(ds, "dz_"+name, dt, dz, dy, dx)
			if err != nil {
				return err
			}
			if err := netcdfio.PutText(vdz, "units", "meter"); err != nil {
				return err
			}
			writes = append(writes,
				pendingWrite{vz, zname, seg.Vertical.Midpoints},
				pendingWrite{v, name, toDisk(sv.Data)},
				pendingWrite{vdz, "dz_" + name, thickness(seg, sv)},
			)
		}
		if seg.Vertical != nil {
			if err := ds.Attr("interfaces").WriteInt32s([]int32{int32(seg.Vertical.Layers() + 1)}); err != nil {
				return fmt.Errorf("failed to write interfaces attribute: %w", err)
			}
		}
		if err := ds.EndDef(); err != nil {
			return fmt.Errorf("failed to end define mode: %w", err)
		}
		return flush(writes)
	})
	if err != nil {
		return "", fmt.Errorf("failed to write %s: %w", id, err)
	}
	return path, nil
}

// WriteTidalSegment writes tidal elevation amplitude and phase of a segment.
func WriteTidalSegment(dir string, ts *domain.TidalSegment) (string, error) {
	id := domain.SegmentID(ts.Number)
	path := filepath.Join(dir, TidalFileName(ts.Number))
	err := netcdfio.Create(path, func(ds netcdf.Dataset) error {
		dc, err := netcdfio.Dim(ds, "constituent", len(ts.Constituents))
		if err != nil {
			return err
		}
		dy, dx, err := segmentDims(ds, id, ts.Boundary, len(ts.Lon))
		if err != nil {
			return err
		}
		writes, err := coordVars(ds, id, dy, dx, ts.Lon, ts.Lat)
		if err != nil {
			return err
		}
		for _, f := range []struct {
			name, units string
			data        [][]float64
		}{
			{"zamp_" + id, "m", ts.Amplitude},
			{"zphase_" + id, "radians", ts.Phase},
		} {
			v, err := netcdfio.Var(ds, f.name, dc, dy, dx)
			if err != nil {
				return err
			}
			if err := netcdfio.PutText(v, "units", f.units); err != nil {
				return err
			}
			writes = append(writes, pendingWrite{v, f.name, toDisk(flatten(f.data))})
		}
		if err := ds.Attr("constituents").WriteBytes([]byte(strings.Join(ts.Constituents, " "))); err != nil {
			return fmt.Errorf("failed to write constituents attribute: %w", err)
		}
		if err := ds.EndDef(); err != nil {
			return fmt.Errorf("failed to end define mode: %w", err)
		}
		return flush(writes)
	})
	if err != nil {
		return "", fmt.Errorf("failed to write tides for %s: %w", id, err)
	}
	return path, nil
}

func variableAttrs(v netcdf.Var, sv domain.SegmentVariable) error {
	if err := netcdfio.PutTexts(v, sv.Attrs); err != nil {
		return err
	}
	if err := netcdfio.PutTexts(v, map[string]string{"units": sv.Units, "long_name": sv.LongName}); err != nil {
		return err
	}
	return netcdfio.PutNumber(v, "_FillValue", FillValue)
}

// thickness broadcasts layer thicknesses to the (t, z, n) layout of sv.
func thickness(seg *domain.BoundarySegment, sv domain.SegmentVariable) []float64 {
	n := seg.Len()
	out := make([]float64, 0, len(sv.Data))
	for range seg.Times {
		for z := 0; z < sv.NZ; z++ {
			for p := 0; p < n; p++ {
				out = append(out, seg.Vertical.Thickness[z])
			}
		}
	}
	return out
}

func flush(writes []pendingWrite) error {
	for _, w := range writes {
		if err := w.v.WriteFloat64s(w.data); err != nil {
			return fmt.Errorf("failed to write %s: %w", w.name, err)
		}
	}
	return nil
}
