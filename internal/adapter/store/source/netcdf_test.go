package source

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/regional-ocean/internal/adapter/source"
	"go.ngs.io/regional-ocean/internal/domain"
)

// createSourceNC writes a 1x2x2x3 (time, depth, lat, lon) temperature file.
func createSourceNC(t *testing.T, path string) {
	t.Helper()
	f, err := netcdf.CreateFile(path, netcdf.CLOBBER|netcdf.NETCDF4)
	if err != nil {
		t.Fatalf("create nc: %v", err)
	}
	defer f.Close()

	timeDim, _ := f.AddDim("time", 1)
	depthDim, _ := f.AddDim("depth", 2)
	latDim, _ := f.AddDim("lat", 2)
	lonDim, _ := f.AddDim("lon", 3)
	vtime, _ := f.AddVar("time", netcdf.DOUBLE, []netcdf.Dim{timeDim})
	vdepth, _ := f.AddVar("depth", netcdf.DOUBLE, []netcdf.Dim{depthDim})
	vlat, _ := f.AddVar("lat", netcdf.DOUBLE, []netcdf.Dim{latDim})
	vlon, _ := f.AddVar("lon", netcdf.DOUBLE, []netcdf.Dim{lonDim})
	vtemp, _ := f.AddVar("thetao", netcdf.FLOAT, []netcdf.Dim{timeDim, depthDim, latDim, lonDim})

	if err := vtime.Attr("units").WriteBytes([]byte("hours since 2020-01-01 00:00:00")); err != nil {
		t.Fatalf("write units: %v", err)
	}
	if err := vtemp.Attr("units").WriteBytes([]byte("degC")); err != nil {
		t.Fatalf("write units: %v", err)
	}
	if err := vtemp.Attr("_FillValue").WriteFloat32s([]float32{-999}); err != nil {
		t.Fatalf("write fill: %v", err)
	}
	if err := f.EndDef(); err != nil {
		t.Fatalf("enddef: %v", err)
	}

	if err := vtime.WriteFloat64s([]float64{6}); err != nil {
		t.Fatalf("write time: %v", err)
	}
	if err := vdepth.WriteFloat64s([]float64{0, 10}); err != nil {
		t.Fatalf("write depth: %v", err)
	}
	if err := vlat.WriteFloat64s([]float64{0, 1}); err != nil {
		t.Fatalf("write lat: %v", err)
	}
	if err := vlon.WriteFloat64s([]float64{100, 101, 102}); err != nil {
		t.Fatalf("write lon: %v", err)
	}
	temp := []float32{
		20, 21, 22, 23, 24, -999,
		10, 11, 12, 13, 14, 15,
	}
	if err := vtemp.WriteFloat32s(temp); err != nil {
		t.Fatalf("write thetao: %v", err)
	}
}

func TestNetCDFDataset_Variable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glorys.nc")
	createSourceNC(t, path)

	ds, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ds.Close()

	v, err := ds.Variable("thetao")
	if err != nil {
		t.Fatalf("Variable: %v", err)
	}
	if len(v.Dims) != 4 || v.Dims[1] != "depth" || v.Shape[3] != 3 {
		t.Fatalf("dims=%v shape=%v", v.Dims, v.Shape)
	}
	if v.Attrs["units"] != "degC" {
		t.Errorf("units = %q", v.Attrs["units"])
	}
	if v.Numeric["_FillValue"] != -999 {
		t.Errorf("_FillValue = %v", v.Numeric["_FillValue"])
	}
	if n, ok := ds.DimLen("lon"); !ok || n != 3 {
		t.Errorf("DimLen(lon) = %d, %v", n, ok)
	}
	if _, err := ds.Variable("so"); !errors.Is(err, source.ErrNotFound) {
		t.Errorf("missing variable error = %v, want ErrNotFound", err)
	}
}

func TestNetCDFDataset_Canonicalize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glorys.nc")
	createSourceNC(t, path)

	ds, closeFn, err := OpenAll(path)
	if err != nil {
		t.Fatalf("OpenAll: %v", err)
	}
	defer func() { _ = closeFn() }()

	a, err := source.NewAdapter(source.NameMap{
		Time: "time", X: "lon", Y: "lat", Z: "depth",
		Tracers: map[string]string{"temp": "thetao"},
	}, domain.Colocated)
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	fields, err := a.Canonicalize(ds, source.Selection{})
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	f := fields[0]
	if f.Times[0].Hour() != 6 {
		t.Errorf("time = %v, want 06:00", f.Times[0])
	}
	if !math.IsNaN(f.At(0, 0, 1, 2)) {
		t.Errorf("fill value not converted: %v", f.At(0, 0, 1, 2))
	}
	if f.At(0, 1, 0, 1) != 11 {
		t.Errorf("At(0,1,0,1) = %v, want 11", f.At(0, 1, 0, 1))
	}
}

func TestNetCDFDataset_VariableSteps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "series.nc")
	f, err := netcdf.CreateFile(path, netcdf.CLOBBER|netcdf.NETCDF4)
	if err != nil {
		t.Fatalf("create nc: %v", err)
	}
	latDim, _ := f.AddDim("lat", 2)
	timeDim, _ := f.AddDim("time", 4)
	lonDim, _ := f.AddDim("lon", 2)
	vv, err := f.AddVar("v", netcdf.DOUBLE, []netcdf.Dim{latDim, timeDim, lonDim})
	if err != nil {
		t.Fatalf("add var: %v", err)
	}
	if err := f.EndDef(); err != nil {
		t.Fatalf("enddef: %v", err)
	}
	flat := make([]float64, 16)
	for k := range flat {
		flat[k] = float64(k)
	}
	if err := vv.WriteFloat64s(flat); err != nil {
		t.Fatalf("write v: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	ds, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ds.Close()

	// Steps 0 and 1 are one hyperslab, 3 another.
	v, err := ds.VariableSteps("v", "time", []int{0, 1, 3})
	if err != nil {
		t.Fatalf("VariableSteps: %v", err)
	}
	want := []float64{0, 1, 2, 3, 6, 7, 8, 9, 10, 11, 14, 15}
	if v.Shape[1] != 3 || len(v.Data) != len(want) {
		t.Fatalf("shape=%v len=%d", v.Shape, len(v.Data))
	}
	for k := range want {
		if v.Data[k] != want[k] {
			t.Fatalf("data = %v, want %v", v.Data, want)
		}
	}

	meta, err := ds.VariableSteps("v", "time", nil)
	if err != nil || meta.Shape[1] != 0 || len(meta.Data) != 0 {
		t.Errorf("metadata read: shape=%v len=%d err=%v", meta.Shape, len(meta.Data), err)
	}
	if _, err := ds.VariableSteps("v", "time", []int{4}); err == nil {
		t.Error("out of range step accepted")
	}
	if _, err := ds.VariableSteps("w", "time", []int{0}); !errors.Is(err, source.ErrNotFound) {
		t.Errorf("missing variable error = %v, want ErrNotFound", err)
	}
}
