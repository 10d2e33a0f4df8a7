package source

import (
	"errors"
	"math"
	"testing"
	"time"

	"go.ngs.io/regional-ocean/internal/domain"
)

const (
	nt, nz, ny, nx = 2, 3, 4, 5
)

func seq(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

// value is the fixture value at canonical (t, z, y, x).
func value(t, z, y, x int) float64 {
	return float64(1000*t + 100*z + 10*y + x)
}

func zeros4() []float64 {
	return make([]float64, nt*nz*ny*nx)
}

// testDataset builds a small A-grid dataset with dims (time, depth, lat, lon).
func testDataset() *MemDataset {
	ds := NewMemDataset()
	ds.MustAdd(&Variable{Name: "time", Dims: []string{"time"}, Shape: []int{nt},
		Data: []float64{0, 1}, Attrs: map[string]string{"units": "days since 2000-01-01"}})
	ds.MustAdd(&Variable{Name: "depth", Dims: []string{"depth"}, Shape: []int{nz}, Data: []float64{0, 50, 100}})
	ds.MustAdd(&Variable{Name: "lat", Dims: []string{"lat"}, Shape: []int{ny}, Data: seq(ny, -2, 1)})
	ds.MustAdd(&Variable{Name: "lon", Dims: []string{"lon"}, Shape: []int{nx}, Data: seq(nx, 10, 1)})
	for _, name := range []string{"thetao", "so", "uo", "vo"} {
		data := zeros4()
		for t := 0; t < nt; t++ {
			for z := 0; z < nz; z++ {
				for y := 0; y < ny; y++ {
					for x := 0; x < nx; x++ {
						data[((t*nz+z)*ny+y)*nx+x] = value(t, z, y, x)
					}
				}
			}
		}
		ds.MustAdd(&Variable{Name: name, Dims: []string{"time", "depth", "lat", "lon"},
			Shape: []int{nt, nz, ny, nx}, Data: data,
			Attrs: map[string]string{"units": "degC", "long_name": name + " field", "standard_name": name}})
	}
	zos := make([]float64, nt*ny*nx)
	ds.MustAdd(&Variable{Name: "zos", Dims: []string{"time", "lat", "lon"}, Shape: []int{nt, ny, nx}, Data: zos})
	return ds
}

func testNames() NameMap {
	return NameMap{
		Time: "time", X: "lon", Y: "lat", Z: "depth",
		Eta: "zos", U: "uo", V: "vo",
		Tracers: map[string]string{"temp": "thetao", "salt": "so"},
	}
}

func TestCanonicalize_ColocatedReplicatesVelocity(t *testing.T) {
	a, err := NewAdapter(testNames(), domain.Colocated)
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	fields, err := a.Canonicalize(testDataset(), Selection{})
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	type key struct {
		name string
		pt   domain.PointType
	}
	got := make(map[key]bool)
	for _, f := range fields {
		got[key{f.Name, f.PointType}] = true
	}
	want := []key{
		{"salt", domain.PointT}, {"temp", domain.PointT}, {"eta", domain.PointT},
		{"u", domain.PointU}, {"u", domain.PointV}, {"v", domain.PointU}, {"v", domain.PointV},
	}
	if len(fields) != len(want) {
		t.Fatalf("got %d fields, want %d", len(fields), len(want))
	}
	for _, k := range want {
		if !got[k] {
			t.Errorf("missing field %s on %s points", k.name, k.pt)
		}
	}
	if fields[0].Name != "salt" || fields[1].Name != "temp" {
		t.Errorf("tracers not in model-name order: %s, %s", fields[0].Name, fields[1].Name)
	}
	temp := fields[1]
	if temp.Units != "degC" || temp.LongName != "thetao field" || temp.Attrs["standard_name"] != "thetao" {
		t.Errorf("attributes not carried: units=%q long_name=%q attrs=%v", temp.Units, temp.LongName, temp.Attrs)
	}
	if !temp.Times[1].Equal(time.Date(2000, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("time[1] = %v", temp.Times[1])
	}
	if got := temp.At(1, 2, 3, 4); got != value(1, 2, 3, 4) {
		t.Errorf("At(1,2,3,4) = %v, want %v", got, value(1, 2, 3, 4))
	}
	if fields[2].Depths != nil {
		t.Errorf("eta should be 2-D, got depths %v", fields[2].Depths)
	}
}

func TestCanonicalize_TransposesToCanonicalOrder(t *testing.T) {
	ds := testDataset()
	// Same field stored (lon, lat, time, depth).
	data := make([]float64, nt*nz*ny*nx)
	for x := 0; x < nx; x++ {
		for y := 0; y < ny; y++ {
			for tt := 0; tt < nt; tt++ {
				for z := 0; z < nz; z++ {
					data[((x*ny+y)*nt+tt)*nz+z] = value(tt, z, y, x)
				}
			}
		}
	}
	ds.MustAdd(&Variable{Name: "thetao", Dims: []string{"lon", "lat", "time", "depth"},
		Shape: []int{nx, ny, nt, nz}, Data: data})

	a, _ := NewAdapter(NameMap{Time: "time", X: "lon", Y: "lat", Z: "depth",
		Tracers: map[string]string{"temp": "thetao"}}, domain.Colocated)
	fields, err := a.Canonicalize(ds, Selection{})
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	f := fields[0]
	for tt := 0; tt < nt; tt++ {
		for z := 0; z < nz; z++ {
			for y := 0; y < ny; y++ {
				for x := 0; x < nx; x++ {
					if got := f.At(tt, z, y, x); got != value(tt, z, y, x) {
						t.Fatalf("At(%d,%d,%d,%d) = %v, want %v", tt, z, y, x, got, value(tt, z, y, x))
					}
				}
			}
		}
	}
	if ds.vars["thetao"].Data[1] != value(0, 1, 0, 0) {
		t.Error("source data was modified")
	}
}

func TestCanonicalize_FillScaleOffset(t *testing.T) {
	ds := testDataset()
	zos := make([]float64, nt*ny*nx)
	for k := range zos {
		zos[k] = 10
	}
	zos[0] = -32767
	ds.MustAdd(&Variable{Name: "zos", Dims: []string{"time", "lat", "lon"}, Shape: []int{nt, ny, nx}, Data: zos,
		Numeric: map[string]float64{"_FillValue": -32767, "scale_factor": 0.01, "add_offset": 1}})

	a, _ := NewAdapter(NameMap{Time: "time", X: "lon", Y: "lat", Eta: "zos"}, domain.Colocated)
	fields, err := a.Canonicalize(ds, Selection{})
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	f := fields[0]
	if !math.IsNaN(f.Data[0]) {
		t.Errorf("fill value should be NaN, got %v", f.Data[0])
	}
	if math.Abs(f.Data[1]-1.1) > 1e-12 {
		t.Errorf("scaled value = %v, want 1.1", f.Data[1])
	}
}

func TestCanonicalize_FlipsDecreasingDepth(t *testing.T) {
	ds := testDataset()
	ds.MustAdd(&Variable{Name: "depth", Dims: []string{"depth"}, Shape: []int{nz}, Data: []float64{100, 50, 0}})

	a, _ := NewAdapter(NameMap{Time: "time", X: "lon", Y: "lat", Z: "depth",
		Tracers: map[string]string{"temp": "thetao"}}, domain.Colocated)
	fields, err := a.Canonicalize(ds, Selection{})
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	f := fields[0]
	if d := f.Depths; d[0] != 0 || d[1] != 50 || d[2] != 100 {
		t.Errorf("Depths = %v, want increasing", d)
	}
	if got := f.At(0, 0, 1, 1); got != value(0, 2, 1, 1) {
		t.Errorf("shallowest level = %v, want source level 2 (%v)", got, value(0, 2, 1, 1))
	}
}

func TestCanonicalize_NegativeHeightsBecomeDepths(t *testing.T) {
	ds := testDataset()
	ds.MustAdd(&Variable{Name: "depth", Dims: []string{"depth"}, Shape: []int{nz}, Data: []float64{0, -50, -100}})
	a, _ := NewAdapter(NameMap{Time: "time", X: "lon", Y: "lat", Z: "depth",
		Tracers: map[string]string{"temp": "thetao"}}, domain.Colocated)
	fields, err := a.Canonicalize(ds, Selection{})
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if d := fields[0].Depths; d[0] != 0 || d[2] != 100 {
		t.Errorf("Depths = %v, want [0 50 100]", d)
	}
	if got := fields[0].At(0, 2, 0, 0); got != value(0, 2, 0, 0) {
		t.Errorf("deepest level = %v, want %v", got, value(0, 2, 0, 0))
	}
}

func TestCanonicalize_NearestTime(t *testing.T) {
	a, _ := NewAdapter(testNames(), domain.Colocated)
	ref := time.Date(2000, 1, 1, 20, 0, 0, 0, time.UTC)
	fields, err := a.Canonicalize(testDataset(), Selection{Nearest: ref})
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	f := fields[0]
	if f.NT != 1 || !f.Times[0].Equal(time.Date(2000, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("NT=%d times=%v, want the second step", f.NT, f.Times)
	}
	if got := f.At(0, 0, 0, 0); got != value(1, 0, 0, 0) {
		t.Errorf("selected data = %v, want %v", got, value(1, 0, 0, 0))
	}
}

func TestCanonicalize_StaggeredMeshes(t *testing.T) {
	ds := testDataset()
	ds.MustAdd(&Variable{Name: "lon_u", Dims: []string{"lon_u"}, Shape: []int{nx}, Data: seq(nx, 10.5, 1)})
	ds.MustAdd(&Variable{Name: "lat_v", Dims: []string{"lat_v"}, Shape: []int{ny}, Data: seq(ny, -1.5, 1)})
	ds.MustAdd(&Variable{Name: "uo", Dims: []string{"time", "depth", "lat", "lon_u"},
		Shape: []int{nt, nz, ny, nx}, Data: zeros4()})
	ds.MustAdd(&Variable{Name: "vo", Dims: []string{"time", "depth", "lat_v", "lon"},
		Shape: []int{nt, nz, ny, nx}, Data: zeros4()})

	names := testNames()
	names.UX, names.VY = "lon_u", "lat_v"
	a, err := NewAdapter(names, domain.Staggered)
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	fields, err := a.Canonicalize(ds, Selection{})
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if len(fields) != 5 {
		t.Fatalf("got %d fields, want 5", len(fields))
	}
	u, v := fields[3], fields[4]
	if u.PointType != domain.PointU || v.PointType != domain.PointV {
		t.Errorf("targets = %s, %s", u.PointType, v.PointType)
	}
	if u.Mesh.Lon[0][0] != 10.5 || u.Mesh.Lat[0][0] != -2 {
		t.Errorf("u mesh origin = (%v, %v)", u.Mesh.Lon[0][0], u.Mesh.Lat[0][0])
	}
	if v.Mesh.Lon[0][0] != 10 || v.Mesh.Lat[0][0] != -1.5 {
		t.Errorf("v mesh origin = (%v, %v)", v.Mesh.Lon[0][0], v.Mesh.Lat[0][0])
	}
	if fields[0].Mesh != fields[1].Mesh {
		t.Error("tracers should share one mesh")
	}
}

func TestCanonicalize_SchemaErrors(t *testing.T) {
	tests := []struct {
		name   string
		names  NameMap
		mutate func(*MemDataset)
		want   string
	}{
		{
			name:  "missing variable",
			names: NameMap{Time: "time", X: "lon", Y: "lat", Z: "depth", Tracers: map[string]string{"temp": "thetao_missing"}},
			want:  "thetao_missing",
		},
		{
			name:  "missing dimension",
			names: NameMap{Time: "time", X: "lon", Y: "lat", Z: "lev", Tracers: map[string]string{"temp": "thetao"}},
			want:  "lev",
		},
		{
			name:  "missing time dimension",
			names: NameMap{Time: "t", X: "lon", Y: "lat", Eta: "zos"},
			want:  "t",
		},
		{
			name:  "inconsistent dimension order",
			names: NameMap{Time: "time", X: "lon", Y: "lat", Z: "depth", Tracers: map[string]string{"temp": "thetao", "salt": "so"}},
			mutate: func(ds *MemDataset) {
				ds.MustAdd(&Variable{Name: "so", Dims: []string{"time", "depth", "lon", "lat"},
					Shape: []int{nt, nz, nx, ny}, Data: zeros4()})
			},
			want: "thetao",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := testDataset()
			if tt.mutate != nil {
				tt.mutate(ds)
			}
			a, err := NewAdapter(tt.names, domain.Colocated)
			if err != nil {
				t.Fatalf("NewAdapter: %v", err)
			}
			_, err = a.Canonicalize(ds, Selection{})
			var se *domain.SchemaError
			if !errors.As(err, &se) {
				t.Fatalf("expected SchemaError, got %v", err)
			}
			if se.Name != tt.want {
				t.Errorf("SchemaError.Name = %q, want %q (%v)", se.Name, tt.want, se)
			}
		})
	}
}

func TestNewAdapter_ValidatesEagerly(t *testing.T) {
	tests := []struct {
		name  string
		names NameMap
	}{
		{"no variables", NameMap{Time: "time", X: "lon", Y: "lat"}},
		{"no z for tracers", NameMap{Time: "time", X: "lon", Y: "lat", Tracers: map[string]string{"temp": "thetao"}}},
		{"u without v", NameMap{Time: "time", X: "lon", Y: "lat", Z: "depth", U: "uo"}},
		{"no time", NameMap{X: "lon", Y: "lat", Eta: "zos"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAdapter(tt.names, domain.Colocated)
			var se *domain.SchemaError
			if !errors.As(err, &se) {
				t.Errorf("expected SchemaError, got %v", err)
			}
		})
	}
}

func TestSelectSteps(t *testing.T) {
	// Time is the middle axis: (lat=2, time=4, lon=2) holding its flat index.
	v := &Variable{Name: "v", Dims: []string{"lat", "time", "lon"}, Shape: []int{2, 4, 2}, Data: seq(16, 0, 1)}
	got, err := SelectSteps(v, "time", []int{3, 0})
	if err != nil {
		t.Fatalf("SelectSteps: %v", err)
	}
	want := []float64{6, 7, 0, 1, 14, 15, 8, 9}
	if got.Shape[1] != 2 || len(got.Data) != len(want) {
		t.Fatalf("shape=%v len=%d", got.Shape, len(got.Data))
	}
	for k := range want {
		if got.Data[k] != want[k] {
			t.Fatalf("data = %v, want %v", got.Data, want)
		}
	}
	if v.Shape[1] != 4 {
		t.Error("source shape modified")
	}

	meta, err := SelectSteps(v, "time", nil)
	if err != nil || meta.Shape[1] != 0 || len(meta.Data) != 0 {
		t.Errorf("no steps: shape=%v len=%d err=%v", meta.Shape, len(meta.Data), err)
	}
	if _, err := SelectSteps(v, "time", []int{4}); err == nil {
		t.Error("out of range step accepted")
	}
	if same, _ := SelectSteps(v, "depth", []int{0}); same != v {
		t.Error("variable without the dimension was not returned whole")
	}
}

func TestCanonicalizeSteps_ReadsOnlySelected(t *testing.T) {
	a, _ := NewAdapter(testNames(), domain.Colocated)
	ds := testDataset()
	steps, err := a.Steps(ds, Selection{Nearest: time.Date(2000, 1, 2, 3, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatal(err)
	}
	if len(steps) != 1 || steps[0] != 1 {
		t.Fatalf("steps = %v, want [1]", steps)
	}
	fields, err := a.CanonicalizeSteps(ds, steps)
	if err != nil {
		t.Fatalf("CanonicalizeSteps: %v", err)
	}
	for _, f := range fields {
		if f.NT != 1 || len(f.Data) != f.NZ*ny*nx {
			t.Errorf("%s: NT=%d len=%d", f.Name, f.NT, len(f.Data))
		}
	}
	if got := fields[0].At(0, 1, 2, 3); got != value(1, 1, 2, 3) {
		t.Errorf("At = %v, want %v", got, value(1, 1, 2, 3))
	}
	if _, err := a.CanonicalizeSteps(ds, []int{5}); err == nil {
		t.Error("out of range step accepted")
	}

	bytes, err := a.StepBytes(ds)
	if err != nil {
		t.Fatal(err)
	}
	// Four layered variables and one surface field.
	if want := 8 * (4*nz*ny*nx + ny*nx); bytes != want {
		t.Errorf("StepBytes = %d, want %d", bytes, want)
	}
}
