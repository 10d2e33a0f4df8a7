package usecase

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"go.ngs.io/regional-ocean/internal/adapter/source"
	"go.ngs.io/regional-ocean/internal/domain"
)

var refTime = time.Date(2020, 1, 2, 10, 0, 0, 0, time.UTC)

// constantDataset is a 1° global A-grid source with two daily steps and
// constant fields.
func constantDataset() *source.MemDataset {
	const nt, nz, ny, nx = 2, 3, 180, 360
	lon := make([]float64, nx)
	lat := make([]float64, ny)
	for i := range lon {
		lon[i] = 0.5 + float64(i)
	}
	for j := range lat {
		lat[j] = -89.5 + float64(j)
	}
	fill := func(n int, v float64) []float64 {
		out := make([]float64, n)
		for i := range out {
			out[i] = v
		}
		return out
	}
	ds := source.NewMemDataset()
	ds.MustAdd(&source.Variable{Name: "time", Dims: []string{"time"}, Shape: []int{nt},
		Data: []float64{0, 1}, Attrs: map[string]string{"units": "days since 2020-01-01"}})
	ds.MustAdd(&source.Variable{Name: "depth", Dims: []string{"depth"}, Shape: []int{nz}, Data: []float64{0, 100, 1000}})
	ds.MustAdd(&source.Variable{Name: "lat", Dims: []string{"lat"}, Shape: []int{ny}, Data: lat})
	ds.MustAdd(&source.Variable{Name: "lon", Dims: []string{"lon"}, Shape: []int{nx}, Data: lon})
	for name, v := range map[string]float64{"thetao": 15, "so": 35, "uo": 1, "vo": 0} {
		ds.MustAdd(&source.Variable{Name: name, Dims: []string{"time", "depth", "lat", "lon"},
			Shape: []int{nt, nz, ny, nx}, Data: fill(nt*nz*ny*nx, v),
			Attrs: map[string]string{"units": "unit_" + name, "long_name": name + " field", "standard_name": name}})
	}
	ds.MustAdd(&source.Variable{Name: "zos", Dims: []string{"time", "lat", "lon"},
		Shape: []int{nt, ny, nx}, Data: fill(nt*ny*nx, 0.25), Attrs: map[string]string{"units": "m"}})
	return ds
}

func testNames() source.NameMap {
	return source.NameMap{
		Time: "time", X: "lon", Y: "lat", Z: "depth",
		Eta: "zos", U: "uo", V: "vo",
		Tracers: map[string]string{"temp": "thetao", "salt": "so"},
	}
}

// testExperiment is a 10x10 0.5° domain with five 100 m layers.
func testExperiment(t *testing.T) (*Experiment, *test.Hook) {
	t.Helper()
	grid, err := domain.NewRectangularSupergrid(140, 145, 30, 35, 0.5)
	if err != nil {
		t.Fatalf("NewRectangularSupergrid: %v", err)
	}
	vg, err := domain.NewVerticalGrid([]float64{100, 100, 100, 100, 100}, 500)
	if err != nil {
		t.Fatalf("NewVerticalGrid: %v", err)
	}
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	return &Experiment{
		Name:        "test",
		Grid:        grid,
		Vertical:    vg,
		OutputDir:   t.TempDir(),
		Workers:     4,
		MinCoverage: 0.95,
		Log:         log,
	}, hook
}

// griddedT builds a field on a window of T points with value fn(t, z, i, j)
// in full-grid indices.
func griddedT(name string, w domain.Window, nt, nz int, fn func(t, z, i, j int) float64) domain.GriddedField {
	f := domain.NewGriddedField(name, domain.PointT, w, nt, nz)
	f.Units = "degC"
	f.LongName = name + " long"
	f.Attrs = map[string]string{"standard_name": "sea_water_" + name}
	f.Times = make([]time.Time, nt)
	for k := range f.Times {
		f.Times[k] = time.Date(2020, 1, 1+k, 0, 0, 0, 0, time.UTC)
	}
	if nz > 1 {
		f.Depths = []float64{50, 150, 250, 350, 450}[:nz]
	}
	for t := 0; t < nt; t++ {
		for z := 0; z < nz; z++ {
			for j := 0; j < w.NY; j++ {
				for i := 0; i < w.NX; i++ {
					f.Data[f.Index(t, z, j, i)] = fn(t, z, w.I0+i, w.J0+j)
				}
			}
		}
	}
	return *f
}
