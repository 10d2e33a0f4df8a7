package usecase

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fhs/go-netcdf/netcdf"
	"github.com/sirupsen/logrus"

	"go.ngs.io/regional-ocean/internal/adapter/source"
	"go.ngs.io/regional-ocean/internal/adapter/store/manifest"
	"go.ngs.io/regional-ocean/internal/adapter/store/netcdfio"
	"go.ngs.io/regional-ocean/internal/adapter/store/mom6"
	"go.ngs.io/regional-ocean/internal/config"
	"go.ngs.io/regional-ocean/internal/domain"
)

func TestSegmentPipelineWritesAndSkipsLand(t *testing.T) {
	exp, hook := testExperiment(t)
	m, err := manifest.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = m.Close() }()
	exp.Manifest = m
	// The southern row is land.
	ny, nx := exp.Grid.Shape()
	exp.Mask = make([]bool, ny*nx)
	for k := range exp.Mask {
		exp.Mask[k] = k >= nx
	}

	boundaries := []config.Boundary{
		{Spec: domain.Cardinal(domain.North), Segment: 1},
		{Spec: domain.Cardinal(domain.South), Segment: 2},
		{Spec: domain.Cardinal(domain.East), Segment: 3},
	}
	p := NewSegmentPipeline(exp, testNames(), domain.Colocated, source.Selection{})
	res, err := p.Run(context.Background(), constantDataset(), boundaries)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{
		filepath.Join(exp.OutputDir, mom6.SegmentFileName(1)),
		filepath.Join(exp.OutputDir, mom6.SegmentFileName(3)),
	}
	if len(res.Written) != 2 || res.Written[0] != want[0] || res.Written[1] != want[1] {
		t.Errorf("Written = %v, want %v", res.Written, want)
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != 2 {
		t.Errorf("Skipped = %v, want [2]", res.Skipped)
	}
	if _, err := os.Stat(filepath.Join(exp.OutputDir, mom6.SegmentFileName(2))); !os.IsNotExist(err) {
		t.Errorf("land segment file exists: %v", err)
	}
	for _, r := range res.Reports {
		if r.MissingColumns != 0 {
			t.Errorf("report %+v", r)
		}
	}

	warned := false
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["segment"] == 2 {
			warned = true
		}
	}
	if !warned {
		t.Error("skipped boundary was not logged as a warning")
	}

	entries, err := m.List(context.Background(), manifest.KindSegment)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("manifest = %+v", entries)
	}
	if got := strings.Join(entries[0].Variables, ","); got != "salt,temp,eta,u,v" {
		t.Errorf("variables = %s", got)
	}
	if entries[0].Boundary != "north" && entries[0].Boundary != "east" {
		t.Errorf("boundary = %s", entries[0].Boundary)
	}
}

func TestSegmentPipelineBoundaryRowOnly(t *testing.T) {
	exp, _ := testExperiment(t)
	ds := constantDataset()
	// A gradient away from the boundary row must not leak into the segment.
	v, err := ds.Variable("thetao")
	if err != nil {
		t.Fatal(err)
	}
	for k := range v.Data {
		y := (k / 360) % 180
		if y < 90+34 {
			v.Data[k] = math.NaN()
		}
	}

	fields, err := mustAdapter(t).Canonicalize(ds, source.Selection{})
	if err != nil {
		t.Fatal(err)
	}
	p := NewSegmentPipeline(exp, testNames(), domain.Colocated, source.Selection{})
	_, land, reports, err := p.boundary(context.Background(), distinct(fields), config.Boundary{Spec: domain.Cardinal(domain.North), Segment: 1})
	if err != nil {
		t.Fatalf("boundary: %v", err)
	}
	if land {
		t.Error("north boundary reported as land")
	}
	for _, r := range reports {
		if r.Columns != 10 {
			t.Errorf("%s covers %d columns, want one row of 10", r.Field, r.Columns)
		}
		if r.Field == "temp" && r.MissingColumns != 0 {
			t.Errorf("temp on the north row has %d missing columns", r.MissingColumns)
		}
	}
	if exp.Regridders().Len() == 0 {
		t.Error("regridders not cached")
	}
}

// stepCounter records the largest time selection read from a dataset.
type stepCounter struct {
	source.Dataset
	most int
}

func (c *stepCounter) VariableSteps(name, dim string, steps []int) (*source.Variable, error) {
	c.most = max(c.most, len(steps))
	return c.Dataset.VariableSteps(name, dim, steps)
}

func TestSegmentPipelineReadsStepsInChunks(t *testing.T) {
	read := func(t *testing.T, budgetMB int) ([]float64, int) {
		t.Helper()
		exp, _ := testExperiment(t)
		exp.MemoryBudgetMB = budgetMB
		mem := constantDataset()
		v, err := mem.Variable("thetao")
		if err != nil {
			t.Fatal(err)
		}
		for k := len(v.Data) / 2; k < len(v.Data); k++ {
			v.Data[k] = 20
		}
		ds := &stepCounter{Dataset: mem}
		p := NewSegmentPipeline(exp, testNames(), domain.Colocated, source.Selection{})
		res, err := p.Run(context.Background(), ds, []config.Boundary{{Spec: domain.Cardinal(domain.North), Segment: 1}})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if len(res.Written) != 1 {
			t.Fatalf("Written = %v", res.Written)
		}
		nc, err := netcdf.OpenFile(res.Written[0], netcdf.NOWRITE)
		if err != nil {
			t.Fatal(err)
		}
		defer func() { _ = nc.Close() }()
		nv, err := nc.Var("temp_segment_001")
		if err != nil {
			t.Fatal(err)
		}
		data, _, shape, err := netcdfio.ReadAll(nv)
		if err != nil {
			t.Fatal(err)
		}
		if shape[0] != 2 {
			t.Errorf("time steps = %d, want 2", shape[0])
		}
		return data, ds.most
	}

	// One step of the fixture is about 6.4 MB, so 8 MB reads one at a time.
	chunked, most := read(t, 8)
	if most != 1 {
		t.Errorf("largest read = %d steps, want 1", most)
	}
	whole, most := read(t, 0)
	if most != 2 {
		t.Errorf("largest read = %d steps, want 2", most)
	}
	if !sameBits(chunked, whole) {
		t.Error("chunked segment differs from a single read")
	}
	half := len(whole) / 2
	if math.Abs(whole[0]-15) > 1e-9 || math.Abs(whole[half]-20) > 1e-9 {
		t.Errorf("temp = %g then %g, want 15 then 20", whole[0], whole[half])
	}
}

func TestSegmentPipelineSchemaError(t *testing.T) {
	exp, _ := testExperiment(t)
	names := testNames()
	names.Tracers["temp"] = "missing_var"
	p := NewSegmentPipeline(exp, names, domain.Colocated, source.Selection{})
	_, err := p.Run(context.Background(), constantDataset(), []config.Boundary{{Spec: domain.Cardinal(domain.North), Segment: 1}})
	var schema *domain.SchemaError
	if !errors.As(err, &schema) || schema.Name != "missing_var" {
		t.Errorf("err = %v, want SchemaError for missing_var", err)
	}
}

func mustAdapter(t *testing.T) *source.Adapter {
	t.Helper()
	a, err := source.NewAdapter(testNames(), domain.Colocated)
	if err != nil {
		t.Fatal(err)
	}
	return a
}
