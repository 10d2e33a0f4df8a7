package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"go.ngs.io/regional-ocean/internal/adapter/source"
	"go.ngs.io/regional-ocean/internal/adapter/store/bathymetry"
	"go.ngs.io/regional-ocean/internal/adapter/store/fes"
	"go.ngs.io/regional-ocean/internal/adapter/store/manifest"
	storesource "go.ngs.io/regional-ocean/internal/adapter/store/source"
	"go.ngs.io/regional-ocean/internal/config"
	"go.ngs.io/regional-ocean/internal/domain"
)

// ErrBusy is returned when a run is requested while another is in progress.
var ErrBusy = errors.New("a run is already in progress")

// Run kinds.
const (
	RunGrid             = "grid"
	RunInitialCondition = "initial_condition"
	RunSegments         = "segments"
	RunTides            = "tides"
)

// RunStatus describes a finished or running stage.
type RunStatus struct {
	Kind     string                  `json:"kind"`
	Started  time.Time               `json:"started"`
	Finished time.Time               `json:"finished"`
	Outputs  []string                `json:"outputs,omitempty"`
	Skipped  []int                   `json:"skipped,omitempty"`
	Error    string                  `json:"error,omitempty"`
	Coverage []domain.CoverageReport `json:"coverage,omitempty"`
}

// GridInfo summarizes the experiment geometry.
type GridInfo struct {
	Name     string  `json:"name"`
	NX       int     `json:"nx"`
	NY       int     `json:"ny"`
	Layers   int     `json:"layers"`
	MaxDepth float64 `json:"max_depth"`
	LonMin   float64 `json:"lon_min"`
	LonMax   float64 `json:"lon_max"`
	LatMin   float64 `json:"lat_min"`
	LatMax   float64 `json:"lat_max"`
	Rotated  bool    `json:"rotated"`
	Masked   bool    `json:"masked"`
}

// Runner drives every stage of one experiment and allows one run at a time.
type Runner struct {
	cfg        *config.Config
	exp        *Experiment
	boundaries []config.Boundary

	// Open returns the source dataset and its close function.
	Open func() (source.Dataset, func() error, error)
	// TidalStore is nil when no tidal data is configured.
	TidalStore ConstituentSampler

	closers []func() error

	mu      sync.Mutex
	running bool
	last    *RunStatus
}

// NewRunner wires a runner around an existing experiment.
func NewRunner(cfg *config.Config, exp *Experiment) (*Runner, error) {
	boundaries, err := cfg.ResolveBoundaries()
	if err != nil {
		return nil, err
	}
	files := cfg.Source.Files
	return &Runner{
		cfg:        cfg,
		exp:        exp,
		boundaries: boundaries,
		Open: func() (source.Dataset, func() error, error) {
			if len(files) == 0 {
				return nil, nil, fmt.Errorf("no source files configured")
			}
			return storesource.OpenAll(files...)
		},
	}, nil
}

// Setup builds the experiment described by cfg: geometry, output
// directory, manifest, ocean mask and tidal store.
func Setup(cfg *config.Config, log logrus.FieldLogger) (*Runner, error) {
	grid, vg, err := LoadGeometry(cfg)
	if err != nil {
		return nil, err
	}
	exp := NewExperiment(cfg, grid, vg, log)
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	r, err := NewRunner(cfg, exp)
	if err != nil {
		return nil, err
	}
	m, err := manifest.OpenDir(cfg.OutputDir)
	if err != nil {
		return nil, err
	}
	exp.Manifest = m
	r.closers = append(r.closers, m.Close)

	if cfg.Bathymetry.File != "" {
		store := bathymetry.NewLocalStore(cfg.Bathymetry.File, cfg.Bathymetry.Variable)
		r.closers = append(r.closers, store.Close)
		if err := exp.ApplyBathymetry(store, cfg.Bathymetry.MinDepth); err != nil {
			_ = r.Close()
			return nil, err
		}
	}
	if cfg.Tides.Dir != "" {
		r.TidalStore = fes.NewStore(cfg.Tides.Dir)
	}
	return r, nil
}

// Experiment returns the experiment the runner drives.
func (r *Runner) Experiment() *Experiment { return r.exp }

// Close releases the manifest and stores.
func (r *Runner) Close() error {
	var errs []error
	for _, c := range r.closers {
		errs = append(errs, c())
	}
	r.closers = nil
	return errors.Join(errs...)
}

// Info describes the experiment grid.
func (r *Runner) Info() GridInfo {
	g := r.exp.Grid
	ny, nx := g.Shape()
	info := GridInfo{
		Name:     r.exp.Name,
		NX:       nx,
		NY:       ny,
		Layers:   r.exp.Vertical.Layers(),
		MaxDepth: r.exp.Vertical.Interfaces[len(r.exp.Vertical.Interfaces)-1],
		LonMin:   math.Inf(1),
		LonMax:   math.Inf(-1),
		LatMin:   math.Inf(1),
		LatMax:   math.Inf(-1),
		Rotated:  g.Rotated(),
		Masked:   r.exp.Mask != nil,
	}
	for j := range g.X {
		for i := range g.X[j] {
			info.LonMin = math.Min(info.LonMin, g.X[j][i])
			info.LonMax = math.Max(info.LonMax, g.X[j][i])
			info.LatMin = math.Min(info.LatMin, g.Y[j][i])
			info.LatMax = math.Max(info.LatMax, g.Y[j][i])
		}
	}
	return info
}

// Last returns the most recent run, or nil.
func (r *Runner) Last() *RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return nil
	}
	s := *r.last
	return &s
}

// Outputs lists recorded files of one kind, or all for "".
func (r *Runner) Outputs(ctx context.Context, kind string) ([]manifest.Entry, error) {
	if r.exp.Manifest == nil {
		return nil, nil
	}
	return r.exp.Manifest.List(ctx, kind)
}

func (r *Runner) begin(kind string) (*RunStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil, ErrBusy
	}
	r.running = true
	s := &RunStatus{Kind: kind, Started: time.Now().UTC()}
	snapshot := *s
	r.last = &snapshot
	return s, nil
}

func (r *Runner) finish(s *RunStatus, err error) (*RunStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.Finished = time.Now().UTC()
	if err != nil {
		s.Error = err.Error()
	}
	r.running = false
	snapshot := *s
	r.last = &snapshot
	out := *s
	return &out, err
}

// Grid writes the supergrid and vertical grid files.
func (r *Runner) Grid(ctx context.Context) (*RunStatus, error) {
	s, err := r.begin(RunGrid)
	if err != nil {
		return nil, err
	}
	s.Outputs, err = r.exp.WriteGeometry(ctx)
	return r.finish(s, err)
}

func (r *Runner) open() (source.Dataset, func() error, error) {
	ds, closeFn, err := r.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open source: %w", err)
	}
	if closeFn == nil {
		closeFn = func() error { return nil }
	}
	return ds, closeFn, nil
}

// InitialCondition builds and writes the initial condition at the
// configured reference time, falling back to source.start.
func (r *Runner) InitialCondition(ctx context.Context) (*RunStatus, error) {
	s, err := r.begin(RunInitialCondition)
	if err != nil {
		return nil, err
	}
	err = func() error {
		ds, closeFn, err := r.open()
		if err != nil {
			return err
		}
		defer func() { _ = closeFn() }()
		ref := r.cfg.ReferenceTime
		if ref.IsZero() {
			ref = r.cfg.Source.Start
		}
		b := NewInitialConditionBuilder(r.exp)
		ic, err := b.Build(ctx, ds, r.cfg.Source.Names, r.cfg.Variant(), ref)
		if err != nil {
			return err
		}
		s.Coverage = ic.Report
		s.Outputs, err = b.Write(ctx, ic)
		return err
	}()
	return r.finish(s, err)
}

// Segments builds and writes every configured boundary segment.
func (r *Runner) Segments(ctx context.Context) (*RunStatus, error) {
	s, err := r.begin(RunSegments)
	if err != nil {
		return nil, err
	}
	err = func() error {
		if len(r.boundaries) == 0 {
			return fmt.Errorf("no boundaries configured")
		}
		ds, closeFn, err := r.open()
		if err != nil {
			return err
		}
		defer func() { _ = closeFn() }()
		p := NewSegmentPipeline(r.exp, r.cfg.Source.Names, r.cfg.Variant(), r.cfg.Selection())
		res, err := p.Run(ctx, ds, r.boundaries)
		if res != nil {
			s.Outputs, s.Skipped, s.Coverage = res.Written, res.Skipped, res.Reports
		}
		return err
	}()
	return r.finish(s, err)
}

// Tides writes tidal amplitude and phase for every boundary.
func (r *Runner) Tides(ctx context.Context) (*RunStatus, error) {
	s, err := r.begin(RunTides)
	if err != nil {
		return nil, err
	}
	err = func() error {
		if r.TidalStore == nil {
			return fmt.Errorf("no tidal data configured")
		}
		if len(r.boundaries) == 0 {
			return fmt.Errorf("no boundaries configured")
		}
		var err error
		s.Outputs, err = NewTidalPipeline(r.exp, r.TidalStore, r.cfg.Tides.Constituents).Run(ctx, r.boundaries)
		return err
	}()
	return r.finish(s, err)
}

// All runs grid, initial condition, segments and, when configured, tides
// in order, stopping at the first failure.
func (r *Runner) All(ctx context.Context) ([]*RunStatus, error) {
	stages := []func(context.Context) (*RunStatus, error){r.Grid, r.InitialCondition, r.Segments}
	if r.TidalStore != nil {
		stages = append(stages, r.Tides)
	}
	var out []*RunStatus
	for _, stage := range stages {
		s, err := stage(ctx)
		if s != nil {
			out = append(out, s)
		}
		if err != nil {
			return out, err
		}
	}
	return out, nil
}
