package usecase

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.ngs.io/regional-ocean/internal/adapter/interp"
	"go.ngs.io/regional-ocean/internal/adapter/store/manifest"
	"go.ngs.io/regional-ocean/internal/adapter/store/mom6"
	"go.ngs.io/regional-ocean/internal/domain"
)

func allEqual(t *testing.T, f *domain.GriddedField, want float64) {
	t.Helper()
	for k, v := range f.Data {
		if v != want {
			t.Fatalf("%s[%d] = %v, want %v", f.Name, k, v, want)
		}
	}
}

func TestInitialConditionConstantFields(t *testing.T) {
	exp, _ := testExperiment(t)
	ic, err := NewInitialConditionBuilder(exp).Build(context.Background(), constantDataset(), testNames(), domain.Colocated, refTime)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if want := time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC); !ic.Time.Equal(want) {
		t.Errorf("Time = %v, want nearest step %v", ic.Time, want)
	}
	if len(ic.Tracers) != 2 {
		t.Fatalf("tracers = %v", ic.TracerNames())
	}

	temp := ic.Tracers["temp"]
	if temp.Window.NY != 10 || temp.Window.NX != 10 || temp.NZ != 5 || temp.NT != 1 {
		t.Errorf("temp shape = %+v nz=%d nt=%d", temp.Window, temp.NZ, temp.NT)
	}
	allEqual(t, temp, 15)
	allEqual(t, ic.Tracers["salt"], 35)
	if temp.Units != "unit_thetao" || temp.Attrs["standard_name"] != "thetao" {
		t.Errorf("temp metadata = %q %v", temp.Units, temp.Attrs)
	}
	for k, z := range temp.Depths {
		if z != exp.Vertical.Midpoints[k] {
			t.Errorf("depth %d = %v, want midpoint %v", k, z, exp.Vertical.Midpoints[k])
		}
	}

	if ic.U.PointType != domain.PointU || ic.U.Window.NX != 11 || ic.U.Window.NY != 10 {
		t.Errorf("U on %s window %+v", ic.U.PointType, ic.U.Window)
	}
	if ic.V.PointType != domain.PointV || ic.V.Window.NX != 10 || ic.V.Window.NY != 11 {
		t.Errorf("V on %s window %+v", ic.V.PointType, ic.V.Window)
	}
	allEqual(t, ic.U, 1)
	allEqual(t, ic.V, 0)
	if ic.Eta.NZ != 1 || ic.Eta.Depths != nil {
		t.Errorf("eta nz = %d depths = %v", ic.Eta.NZ, ic.Eta.Depths)
	}
	allEqual(t, ic.Eta, 0.25)

	if len(ic.Report) != 5 {
		t.Fatalf("got %d coverage reports, want 5", len(ic.Report))
	}
	for _, r := range ic.Report {
		if r.MissingColumns != 0 || r.FullyMissing {
			t.Errorf("report %+v", r)
		}
	}
}

func TestInitialConditionStaggeredMatchesColocated(t *testing.T) {
	exp, _ := testExperiment(t)
	ic, err := NewInitialConditionBuilder(exp).Build(context.Background(), constantDataset(), testNames(), domain.Staggered, refTime)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	allEqual(t, ic.U, 1)
	allEqual(t, ic.V, 0)
}

func TestInitialConditionRequiresReferenceTime(t *testing.T) {
	exp, _ := testExperiment(t)
	_, err := NewInitialConditionBuilder(exp).Build(context.Background(), constantDataset(), testNames(), domain.Colocated, time.Time{})
	if err == nil {
		t.Fatal("expected error without reference time")
	}
}

func TestInitialConditionReportsMissingColumns(t *testing.T) {
	exp, _ := testExperiment(t)
	ds := constantDataset()
	// Blank the source over the western half of the domain.
	v, err := ds.Variable("thetao")
	if err != nil {
		t.Fatal(err)
	}
	for k := range v.Data {
		x := k % 360
		if x >= 135 && x <= 142 {
			v.Data[k] = math.NaN()
		}
	}
	ic, err := NewInitialConditionBuilder(exp).Build(context.Background(), ds, testNames(), domain.Colocated, refTime)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	var rep domain.CoverageReport
	for _, r := range ic.Report {
		if r.Field == "temp" {
			rep = r
		}
	}
	if rep.MissingColumns == 0 || rep.FullyMissing || rep.Columns != 100 {
		t.Errorf("temp report = %+v", rep)
	}
	if !math.IsNaN(ic.Tracers["temp"].At(0, 0, 5, 0)) {
		t.Error("missing column was filled without a fill policy")
	}

	exp.Remapper = interp.Remapper{DeepFill: interp.DeepFillNearest}
	ic, err = NewInitialConditionBuilder(exp).Build(context.Background(), ds, testNames(), domain.Colocated, refTime)
	if err != nil {
		t.Fatalf("Build with fill: %v", err)
	}
	if got := ic.Tracers["temp"].At(0, 0, 5, 0); got != 15 {
		t.Errorf("filled value = %v, want 15", got)
	}
}

func TestInitialConditionWrite(t *testing.T) {
	exp, _ := testExperiment(t)
	m, err := manifest.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = m.Close() }()
	exp.Manifest = m

	b := NewInitialConditionBuilder(exp)
	ic, err := b.Build(context.Background(), constantDataset(), testNames(), domain.Colocated, refTime)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	paths, err := b.Write(context.Background(), ic)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(paths) != 1 || paths[0] != filepath.Join(exp.OutputDir, mom6.InitialConditionFile) {
		t.Fatalf("paths = %v", paths)
	}
	if _, err := os.Stat(paths[0]); err != nil {
		t.Error(err)
	}
	entries, err := m.List(context.Background(), manifest.KindInitialCondition)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("manifest has %d entries, want 1", len(entries))
	}
}

func TestIcTargetsRotatedAddsCompanions(t *testing.T) {
	fields := []domain.CanonicalField{
		{Name: "temp", Role: domain.RoleTracer, PointType: domain.PointT},
		{Name: "u", Role: domain.RoleU, PointType: domain.PointU},
		{Name: "u", Role: domain.RoleU, PointType: domain.PointV},
		{Name: "v", Role: domain.RoleV, PointType: domain.PointU},
		{Name: "v", Role: domain.RoleV, PointType: domain.PointV},
	}
	plain, _, _ := icTargets(fields, false)
	rotated, u, v := icTargets(fields, true)
	if len(plain) != 3 || len(rotated) != 5 {
		t.Errorf("targets = %d plain, %d rotated", len(plain), len(rotated))
	}
	if u == nil || v == nil || u.Name != "u" || v.Name != "v" {
		t.Errorf("velocity = %v %v", u, v)
	}
	var keys []string
	for _, tg := range rotated {
		keys = append(keys, tg.key())
	}
	want := []string{"temp@t", "u@u", "v@v", "v@u", "u@v"}
	for k := range want {
		if keys[k] != want[k] {
			t.Fatalf("keys = %v, want %v", keys, want)
		}
	}
}
