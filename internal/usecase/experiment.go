// Package usecase orchestrates regridding of ocean reanalysis data into
// model initial conditions and open-boundary segments.
package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"go.ngs.io/regional-ocean/internal/adapter/interp"
	"go.ngs.io/regional-ocean/internal/adapter/store/bathymetry"
	"go.ngs.io/regional-ocean/internal/adapter/store/manifest"
	"go.ngs.io/regional-ocean/internal/adapter/store/mom6"
	"go.ngs.io/regional-ocean/internal/config"
	"go.ngs.io/regional-ocean/internal/domain"
)

// Experiment is the shared context of every pipeline stage. It is built
// once and passed explicitly.
type Experiment struct {
	Name      string
	Grid      *domain.HorizontalGrid
	Vertical  *domain.VerticalGrid
	OutputDir string

	Workers        int
	MemoryBudgetMB int
	ChunkRows      int // Fixed rows per regrid chunk; zero derives it from MemoryBudgetMB.
	MinCoverage    float64
	Remapper       interp.Remapper
	FillIterations int

	// Mask marks ocean T points in (j, i) order. Nil means no bathymetry.
	Mask     []bool
	Manifest *manifest.Manifest
	Log      logrus.FieldLogger

	cacheOnce  sync.Once
	regridders *RegridderCache
}

// NewExperiment builds an experiment from a validated config and geometry.
func NewExperiment(cfg *config.Config, grid *domain.HorizontalGrid, vg *domain.VerticalGrid, log logrus.FieldLogger) *Experiment {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Experiment{
		Name:           cfg.Name,
		Grid:           grid,
		Vertical:       vg,
		OutputDir:      cfg.OutputDir,
		Workers:        cfg.Workers,
		MemoryBudgetMB: cfg.MemoryBudgetMB,
		MinCoverage:    cfg.MinCoverage,
		Remapper:       interp.Remapper{DeepFill: cfg.Fill()},
		FillIterations: cfg.FillIterations,
		Log:            log.WithField("experiment", cfg.Name),
	}
}

// LoadGeometry reads the configured supergrid, or builds a rectangular one,
// and the stretched vertical grid.
func LoadGeometry(cfg *config.Config) (*domain.HorizontalGrid, *domain.VerticalGrid, error) {
	var (
		grid *domain.HorizontalGrid
		err  error
	)
	if cfg.GridFile != "" {
		grid, err = mom6.ReadSupergrid(cfg.GridFile)
	} else {
		g := cfg.Grid
		grid, err = domain.NewRectangularSupergrid(g.LonMin, g.LonMax, g.LatMin, g.LatMax, g.Resolution)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build horizontal grid: %w", err)
	}
	vg, err := cfg.VerticalGrid()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build vertical grid: %w", err)
	}
	return grid, vg, nil
}

// Regridders returns the experiment-wide regridder cache.
func (e *Experiment) Regridders() *RegridderCache {
	e.cacheOnce.Do(func() { e.regridders = NewRegridderCache(e.MinCoverage) })
	return e.regridders
}

// ApplyBathymetry samples depth on T points and sets Mask to the points at
// least minDepth deep.
func (e *Experiment) ApplyBathymetry(store bathymetry.Store, minDepth float64) error {
	depth, err := store.Depth(e.Grid.Points(domain.PointT))
	if err != nil {
		return fmt.Errorf("failed to sample bathymetry: %w", err)
	}
	e.Mask = bathymetry.OceanMask(depth, minDepth)
	ocean := 0
	for _, m := range e.Mask {
		if m {
			ocean++
		}
	}
	e.Log.WithFields(logrus.Fields{"ocean": ocean, "points": len(e.Mask)}).Info("ocean mask built")
	return nil
}

// ocean reports whether T point (i, j) is ocean. Without a mask every
// point is.
func (e *Experiment) ocean(i, j int) bool {
	if e.Mask == nil {
		return true
	}
	_, nx := e.Grid.Shape()
	return e.Mask[j*nx+i]
}

// windowMask cuts the T mask down to w, or returns nil.
func (e *Experiment) windowMask(w domain.Window) []bool {
	if e.Mask == nil {
		return nil
	}
	out := make([]bool, 0, w.NY*w.NX)
	for j := w.J0; j < w.J0+w.NY; j++ {
		for i := w.I0; i < w.I0+w.NX; i++ {
			out = append(out, e.ocean(i, j))
		}
	}
	return out
}

func (e *Experiment) record(ctx context.Context, entry manifest.Entry) {
	if e.Manifest == nil {
		return
	}
	if err := e.Manifest.Record(ctx, entry); err != nil {
		e.Log.WithError(err).WithField("path", entry.Path).Warn("failed to record output in manifest")
	}
}

// WriteGeometry writes the supergrid and vertical grid files.
func (e *Experiment) WriteGeometry(ctx context.Context) ([]string, error) {
	hgrid := filepath.Join(e.OutputDir, mom6.SupergridFile)
	if err := mom6.WriteSupergrid(hgrid, e.Grid); err != nil {
		return nil, fmt.Errorf("failed to write supergrid: %w", err)
	}
	e.record(ctx, manifest.Entry{Path: hgrid, Kind: manifest.KindGrid})
	vcoord := filepath.Join(e.OutputDir, mom6.VerticalGridFile)
	if err := mom6.WriteVerticalGrid(vcoord, e.Vertical); err != nil {
		return []string{hgrid}, fmt.Errorf("failed to write vertical grid: %w", err)
	}
	e.record(ctx, manifest.Entry{Path: vcoord, Kind: manifest.KindVerticalGrid})
	ny, nx := e.Grid.Shape()
	e.Log.WithFields(logrus.Fields{"nx": nx, "ny": ny, "layers": e.Vertical.Layers()}).Info("grid files written")
	return []string{hgrid, vcoord}, nil
}
