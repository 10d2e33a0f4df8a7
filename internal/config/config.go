// Package config loads and validates experiment configuration files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	"go.ngs.io/regional-ocean/internal/adapter/interp"
	"go.ngs.io/regional-ocean/internal/adapter/source"
	"go.ngs.io/regional-ocean/internal/domain"
)

// Config describes one regional experiment.
type Config struct {
	Name      string `toml:"name"`
	OutputDir string `toml:"output_dir"`

	// GridFile is an existing supergrid. When empty the [grid] table
	// builds a rectangular one.
	GridFile string         `toml:"grid_file"`
	Grid     GridConfig     `toml:"grid"`
	Vertical VerticalConfig `toml:"vertical"`

	Source     SourceConfig     `toml:"source"`
	Boundaries []BoundaryConfig `toml:"boundary"`
	Bathymetry BathymetryConfig `toml:"bathymetry"`
	Tides      TidesConfig      `toml:"tides"`

	// ReferenceTime selects the source step used for the initial condition.
	ReferenceTime time.Time `toml:"reference_time"`

	Workers        int     `toml:"workers"`
	MemoryBudgetMB int     `toml:"memory_budget_mb"`
	MinCoverage    float64 `toml:"min_coverage"`
	DeepFill       string  `toml:"deep_fill"`
	FillIterations int     `toml:"fill_iterations"` // Furthest grid steps a nearest fill reaches; 0 is unbounded.

	Log LogConfig `toml:"log"`
}

// GridConfig is a rectangular lon/lat domain.
type GridConfig struct {
	LonMin     float64 `toml:"lon_min"`
	LonMax     float64 `toml:"lon_max"`
	LatMin     float64 `toml:"lat_min"`
	LatMax     float64 `toml:"lat_max"`
	Resolution float64 `toml:"resolution"`
}

// VerticalConfig holds the stretched vertical grid parameters.
type VerticalConfig struct {
	Layers   int     `toml:"layers"`
	Ratio    float64 `toml:"ratio"`
	MaxDepth float64 `toml:"max_depth"`
	MinDz    float64 `toml:"min_dz"`
}

// SourceConfig locates the ocean reanalysis inputs.
type SourceConfig struct {
	Files   []string       `toml:"files"`
	Variant string         `toml:"variant"` // "A" or "C".
	Names   source.NameMap `toml:"names"`
	Start   time.Time      `toml:"start"`
	End     time.Time      `toml:"end"`
}

// BoundaryConfig is one open boundary. Either Side or Path is set.
type BoundaryConfig struct {
	Side    string  `toml:"side"`
	Path    [][]int `toml:"path"` // [[i, j], ...] on T points.
	Segment int     `toml:"segment"`
}

// BathymetryConfig points at a GEBCO-style elevation file.
type BathymetryConfig struct {
	File     string  `toml:"file"`
	Variable string  `toml:"variable"`
	MinDepth float64 `toml:"min_depth"`
}

// TidesConfig points at FES constituent files.
type TidesConfig struct {
	Dir          string   `toml:"dir"`
	Constituents []string `toml:"constituents"`
}

// LogConfig sets the logrus level and formatter.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "text" or "json".
}

// Boundary is a resolved open boundary with its segment number.
type Boundary struct {
	Spec    domain.BoundarySpec
	Segment int
}

// Load reads a TOML file, applies defaults and validates the result.
// Relative paths are resolved against the file's directory.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer func() { _ = f.Close() }()

	cfg := Default()
	md, err := toml.NewDecoder(f).Decode(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	cfg.resolvePaths(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config with every optional value set.
func Default() *Config {
	return &Config{
		Name:           "experiment",
		OutputDir:      "output",
		Source:         SourceConfig{Variant: "A"},
		Workers:        4,
		MemoryBudgetMB: 256,
		MinCoverage:    interp.DefaultMinCoverage,
		DeepFill:       "constant",
		Log:            LogConfig{Level: "info", Format: "text"},
	}
}

func (c *Config) resolvePaths(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.OutputDir = abs(c.OutputDir)
	c.GridFile = abs(c.GridFile)
	c.Bathymetry.File = abs(c.Bathymetry.File)
	c.Tides.Dir = abs(c.Tides.Dir)
	for i, f := range c.Source.Files {
		c.Source.Files[i] = abs(f)
	}
}

// Validate checks the whole config and reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if c.OutputDir == "" {
		add("output_dir is required")
	}
	if c.GridFile == "" {
		g := c.Grid
		if g.Resolution <= 0 {
			add("grid.resolution must be positive (or set grid_file)")
		}
		if g.LonMax <= g.LonMin || g.LatMax <= g.LatMin {
			add("grid bounds are empty: lon [%g, %g] lat [%g, %g]", g.LonMin, g.LonMax, g.LatMin, g.LatMax)
		}
		if g.LatMin < -90 || g.LatMax > 90 {
			add("grid latitudes must be within [-90, 90]")
		}
	}
	if c.Vertical.Layers < 1 {
		add("vertical.layers must be positive")
	}
	if c.Vertical.MaxDepth <= 0 {
		add("vertical.max_depth must be positive")
	}
	if c.Vertical.Ratio == 0 {
		add("vertical.ratio must be non-zero")
	}
	if _, ok := domain.ParseGridVariant(c.Source.Variant); !ok {
		add("source.variant must be A or C, got %q", c.Source.Variant)
	}
	if !c.Source.Start.IsZero() && !c.Source.End.IsZero() && c.Source.End.Before(c.Source.Start) {
		add("source.end is before source.start")
	}
	if _, ok := interp.ParseDeepFill(c.DeepFill); !ok {
		add("deep_fill must be constant or nearest, got %q", c.DeepFill)
	}
	if c.Workers < 1 {
		add("workers must be at least 1")
	}
	if c.MemoryBudgetMB < 0 {
		add("memory_budget_mb must not be negative")
	}
	if c.MinCoverage <= 0 || c.MinCoverage > 1 {
		add("min_coverage must be in (0, 1], got %g", c.MinCoverage)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		add("log.level: %v", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		add("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Bathymetry.MinDepth < 0 {
		add("bathymetry.min_depth must not be negative")
	}
	if _, err := c.ResolveBoundaries(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ResolveBoundaries converts the boundary tables to specs. Segments
// without a number are numbered from 1 in file order.
func (c *Config) ResolveBoundaries() ([]Boundary, error) {
	out := make([]Boundary, 0, len(c.Boundaries))
	seen := make(map[int]bool)
	for k, b := range c.Boundaries {
		var spec domain.BoundarySpec
		switch {
		case b.Side != "" && len(b.Path) > 0:
			return nil, fmt.Errorf("boundary %d: side and path are mutually exclusive", k+1)
		case b.Side != "":
			side, err := domain.ParseSide(b.Side)
			if err != nil {
				return nil, fmt.Errorf("boundary %d: %w", k+1, err)
			}
			spec = domain.Cardinal(side)
		case len(b.Path) > 0:
			path := make([]domain.Index, len(b.Path))
			for p, ij := range b.Path {
				if len(ij) != 2 {
					return nil, fmt.Errorf("boundary %d: path entry %d must be [i, j]", k+1, p)
				}
				path[p] = domain.Index{I: ij[0], J: ij[1]}
			}
			spec = domain.IndexPath(path)
		default:
			return nil, fmt.Errorf("boundary %d: side or path is required", k+1)
		}
		n := b.Segment
		if n == 0 {
			n = k + 1
		}
		if n < 0 || seen[n] {
			return nil, fmt.Errorf("boundary %d: segment number %d is invalid or repeated", k+1, n)
		}
		seen[n] = true
		out = append(out, Boundary{Spec: spec, Segment: n})
	}
	return out, nil
}

// Variant returns the parsed source grid variant.
func (c *Config) Variant() domain.GridVariant {
	v, _ := domain.ParseGridVariant(c.Source.Variant)
	return v
}

// Fill returns the parsed deep-fill policy.
func (c *Config) Fill() interp.DeepFill {
	f, _ := interp.ParseDeepFill(c.DeepFill)
	return f
}

// Selection returns the configured source time window.
func (c *Config) Selection() source.Selection {
	return source.Selection{Start: c.Source.Start, End: c.Source.End}
}

// VerticalGrid builds the stretched vertical grid.
func (c *Config) VerticalGrid() (*domain.VerticalGrid, error) {
	return domain.NewStretchedVerticalGrid(domain.VerticalConfig{
		Layers:   c.Vertical.Layers,
		Ratio:    c.Vertical.Ratio,
		MaxDepth: c.Vertical.MaxDepth,
		MinDz:    c.Vertical.MinDz,
	})
}

// Logger builds a logrus logger with the configured level and format.
func (c *Config) Logger() *logrus.Logger {
	log := logrus.New()
	if level, err := logrus.ParseLevel(c.Log.Level); err == nil {
		log.SetLevel(level)
	}
	if c.Log.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}
