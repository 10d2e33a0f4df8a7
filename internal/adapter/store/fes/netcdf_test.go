package fes

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/fhs/go-netcdf/netcdf"
)

// createGridNC writes a 2x2 file on lat {35, 36}, lon {139, 140} holding the
// named float variables.
func createGridNC(t *testing.T, path, units string, vars map[string][][]float32) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	f, err := netcdf.CreateFile(path, netcdf.CLOBBER)
	if err != nil {
		t.Fatalf("create nc: %v", err)
	}
	defer func() { _ = f.Close() }()

	latDim, _ := f.AddDim("lat", 2)
	lonDim, _ := f.AddDim("lon", 2)
	vlat, _ := f.AddVar("lat", netcdf.DOUBLE, []netcdf.Dim{latDim})
	vlon, _ := f.AddVar("lon", netcdf.DOUBLE, []netcdf.Dim{lonDim})
	defined := make(map[string]netcdf.Var)
	for name := range vars {
		v, err := f.AddVar(name, netcdf.FLOAT, []netcdf.Dim{latDim, lonDim})
		if err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
		if units != "" {
			if err := v.Attr("units").WriteBytes([]byte(units)); err != nil {
				t.Fatalf("units: %v", err)
			}
		}
		defined[name] = v
	}
	if err := f.EndDef(); err != nil {
		t.Fatalf("enddef: %v", err)
	}
	if err := vlat.WriteFloat64s([]float64{35.0, 36.0}); err != nil {
		t.Fatalf("write lat: %v", err)
	}
	if err := vlon.WriteFloat64s([]float64{139.0, 140.0}); err != nil {
		t.Fatalf("write lon: %v", err)
	}
	for name, values := range vars {
		flat := []float32{values[0][0], values[0][1], values[1][0], values[1][1]}
		if err := defined[name].WriteFloat32s(flat); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func TestConstituents_RecursiveAndSorted(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "ocean_tide"), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"m2_amplitude.nc", "m2_phase.nc", "ocean_tide/k1.nc", "ocean_tide/ms4.nc", "notes.txt", "zz9.nc"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte{}, 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	got, err := NewStore(dir).Constituents()
	if err != nil {
		t.Fatalf("Constituents: %v", err)
	}
	want := []string{"K1", "M2", "MS4"}
	if len(got) != len(want) {
		t.Fatalf("Constituents = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Constituents[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestConstituents_MissingDir(t *testing.T) {
	if _, err := NewStore(filepath.Join(t.TempDir(), "absent")).Constituents(); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestSample_CombinedAmpPhaseCentimetres(t *testing.T) {
	dir := t.TempDir()
	createGridNC(t, filepath.Join(dir, "ocean_tide", "m2.nc"), "", map[string][][]float32{
		"amplitude": {{100, 100}, {100, 100}},
		"phase":     {{90, 90}, {90, 90}},
	})
	amp, phase, err := NewStore(dir).Sample([]string{"M2"}, []float64{139.5}, []float64{35.5})
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if math.Abs(amp[0][0]-1.0) > 1e-9 {
		t.Errorf("amplitude = %v, want 1 m", amp[0][0])
	}
	if math.Abs(phase[0][0]-math.Pi/2) > 1e-6 {
		t.Errorf("phase = %v, want π/2", phase[0][0])
	}
}

func TestSample_PhaseAcrossWrap(t *testing.T) {
	dir := t.TempDir()
	createGridNC(t, filepath.Join(dir, "k1_amplitude.nc"), "m", map[string][][]float32{
		"amplitude": {{1, 1}, {1, 1}},
	})
	createGridNC(t, filepath.Join(dir, "k1_phase.nc"), "degrees", map[string][][]float32{
		"phase": {{350, 10}, {350, 10}},
	})
	amp, phase, err := NewStore(dir).Sample([]string{"K1"}, []float64{139.5}, []float64{35.5})
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	// Averaging 350° and 10° must give 0°, not 180°.
	if ph := math.Min(phase[0][0], 2*math.Pi-phase[0][0]); ph > 1e-6 {
		t.Errorf("phase = %v, want 0", phase[0][0])
	}
	if math.Abs(amp[0][0]-math.Cos(10*math.Pi/180)) > 1e-6 {
		t.Errorf("amplitude = %v", amp[0][0])
	}
}

func TestSample_ComplexPairAndOutside(t *testing.T) {
	dir := t.TempDir()
	createGridNC(t, filepath.Join(dir, "m4.nc"), "cm", map[string][][]float32{
		"hRe": {{3, 3}, {3, 3}},
		"hIm": {{4, 4}, {4, 4}},
	})
	s := NewStore(dir)
	amp, _, err := s.Sample([]string{"M4"}, []float64{-220.5, 150}, []float64{35.5, 35.5})
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	// -220.5 wraps onto 139.5.
	if math.Abs(amp[0][0]-0.05) > 1e-6 {
		t.Errorf("amplitude = %v, want 0.05 m", amp[0][0])
	}
	if !math.IsNaN(amp[0][1]) {
		t.Errorf("outside amplitude = %v, want NaN", amp[0][1])
	}
	if _, _, err := s.Sample([]string{"O1"}, []float64{139.5}, []float64{35.5}); err == nil {
		t.Error("expected error for a constituent without files")
	}
}
