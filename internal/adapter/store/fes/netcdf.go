// Package fes samples FES2014/2022 NetCDF tidal elevation constituents
// along open boundaries.
package fes

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/regional-ocean/internal/adapter/interp"
	"go.ngs.io/regional-ocean/internal/adapter/store/netcdfio"
	"go.ngs.io/regional-ocean/internal/domain"
)

// Store reads FES constituent files from a data directory.
type Store struct {
	dataDir string
	config  FileConfig
	cache   map[string]*Grid // Cache loaded grids.
	mu      sync.RWMutex     // Protect cache.
}

// Grid holds the complex elevation of a constituent in metres. Sampling the
// real and imaginary parts avoids interpolating phase across its wrap.
type Grid struct {
	Name string
	Real *interp.Grid2D
	Imag *interp.Grid2D
}

// FileConfig defines the expected NetCDF file structure.
type FileConfig struct {
	// Variable names in NetCDF files.
	LatVarName       string // E.g., "lat", "latitude".
	LonVarName       string // E.g., "lon", "longitude".
	AmplitudeVarName string // E.g., "amplitude", "amp".
	PhaseVarName     string // E.g., "phase", "pha".
}

// DefaultConfig returns the default FES file configuration.
func DefaultConfig() FileConfig {
	return FileConfig{
		LatVarName:       "lat",
		LonVarName:       "lon",
		AmplitudeVarName: "amplitude",
		PhaseVarName:     "phase",
	}
}

// NewStore creates a store over dataDir. Files are found recursively.
func NewStore(dataDir string) *Store {
	return &Store{
		dataDir: dataDir,
		config:  DefaultConfig(),
		cache:   make(map[string]*Grid),
	}
}

// Constituents returns the known constituents present in the data
// directory, upper-cased and sorted.
func (s *Store) Constituents() ([]string, error) {
	if _, err := os.Stat(s.dataDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("FES data directory does not exist: %s", s.dataDir)
	}
	var names []string
	err := filepath.WalkDir(s.dataDir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".nc") {
			return nil
		}
		base := strings.TrimSuffix(d.Name(), ".nc")
		for _, suffix := range []string{"_amplitude", "_amp", "_phase", "_pha"} {
			base = strings.TrimSuffix(base, suffix)
		}
		names = append(names, base)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk FES directory: %w", err)
	}
	return domain.KnownConstituents(names), nil
}

// Sample interpolates amplitude (m) and phase (radians, [0, 2π)) of every
// constituent at the given points. Points outside the grids are NaN.
func (s *Store) Sample(constituents []string, lon, lat []float64) (amp, phase [][]float64, err error) {
	if len(lon) != len(lat) {
		return nil, nil, fmt.Errorf("lon and lat lengths differ: %d vs %d", len(lon), len(lat))
	}
	amp = make([][]float64, len(constituents))
	phase = make([][]float64, len(constituents))
	for c, name := range constituents {
		grid, err := s.loadConstituent(name)
		if err != nil {
			return nil, nil, err
		}
		amp[c] = make([]float64, len(lon))
		phase[c] = make([]float64, len(lon))
		for p := range lon {
			x := interp.NormalizeLonForAxis(grid.Real.X, lon[p])
			re, im, err := interp.InterpolatePair(grid.Real, grid.Imag, x, lat[p])
			if err != nil {
				amp[c][p], phase[c][p] = math.NaN(), math.NaN()
				continue
			}
			amp[c][p] = math.Hypot(re, im)
			ph := math.Atan2(im, re)
			if ph < 0 {
				ph += 2 * math.Pi
			}
			phase[c][p] = ph
		}
	}
	return amp, phase, nil
}

func (s *Store) loadConstituent(name string) (*Grid, error) {
	s.mu.RLock()
	if grid, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return grid, nil
	}
	s.mu.RUnlock()

	lower := strings.ToLower(name)
	ampPath, err := s.findFirst(lower+".nc", lower+"_amplitude.nc", lower+"_amp.nc")
	if err != nil {
		return nil, fmt.Errorf("amplitude file not found for constituent %s", name)
	}
	phaPath, err := s.findFirst(lower+".nc", lower+"_phase.nc", lower+"_pha.nc")
	if err != nil {
		return nil, fmt.Errorf("phase file not found for constituent %s", name)
	}

	var grid *Grid
	if ampPath == phaPath {
		grid, err = loadCombined(ampPath, s.config)
	} else {
		grid, err = loadSplit(ampPath, phaPath, s.config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load constituent %s: %w", name, err)
	}
	grid.Name = name

	s.mu.Lock()
	s.cache[name] = grid
	s.mu.Unlock()
	return grid, nil
}

var errFound = errors.New("found")

// findFirst returns the first file under dataDir matching one of the
// candidate names, case-insensitively.
func (s *Store) findFirst(candidates ...string) (string, error) {
	for _, target := range candidates {
		var match string
		err := filepath.WalkDir(s.dataDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.EqualFold(d.Name(), target) {
				match = path
				return errFound
			}
			return nil
		})
		if errors.Is(err, errFound) {
			return match, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("none of %v found", candidates)
}

// layer is one 2-D variable read from a constituent file.
type layer struct {
	lon, lat []float64
	values   [][]float64
	units    string
}

// loadCombined reads a file that holds amplitude and phase, or a complex
// real/imaginary pair.
func loadCombined(path string, cfg FileConfig) (*Grid, error) {
	nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("failed to open NetCDF file: %w", err)
	}
	defer func() { _ = nc.Close() }()

	amp, errAmp := readLayer(nc, cfg, amplitudeNames(cfg))
	pha, errPha := readLayer(nc, cfg, phaseNames(cfg))
	if errAmp == nil && errPha == nil {
		return polarGrid(path, amp, pha)
	}
	re, err := readLayer(nc, cfg, []string{"hRe", "Hre", "hre", "Re", "RE", "real", "Real"})
	if err != nil {
		return nil, fmt.Errorf("no amplitude/phase (%v) and no complex pair: %w", errAmp, err)
	}
	im, err := readLayer(nc, cfg, []string{"hIm", "Him", "him", "Im", "IM", "imag", "Imag"})
	if err != nil {
		return nil, fmt.Errorf("real component without imaginary: %w", err)
	}
	scale := unitScale(path, re.units)
	for j := range re.values {
		for i := range re.values[j] {
			re.values[j][i] *= scale
			im.values[j][i] *= scale
		}
	}
	return newGrid(re.lon, re.lat, re.values, im.values)
}

func loadSplit(ampPath, phaPath string, cfg FileConfig) (*Grid, error) {
	read := func(path string, names []string) (*layer, error) {
		nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
		if err != nil {
			return nil, fmt.Errorf("failed to open NetCDF file: %w", err)
		}
		defer func() { _ = nc.Close() }()
		return readLayer(nc, cfg, names)
	}
	amp, err := read(ampPath, amplitudeNames(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to load amplitude: %w", err)
	}
	pha, err := read(phaPath, phaseNames(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to load phase: %w", err)
	}
	if len(amp.lon) != len(pha.lon) || len(amp.lat) != len(pha.lat) {
		return nil, fmt.Errorf("amplitude and phase grids differ in shape")
	}
	return polarGrid(ampPath, amp, pha)
}

// polarGrid converts amplitude and phase (degrees) to complex components.
func polarGrid(path string, amp, pha *layer) (*Grid, error) {
	scale := unitScale(path, amp.units)
	re := make([][]float64, len(amp.values))
	im := make([][]float64, len(amp.values))
	for j := range amp.values {
		re[j] = make([]float64, len(amp.values[j]))
		im[j] = make([]float64, len(amp.values[j]))
		for i, a := range amp.values[j] {
			g := domain.Deg2Rad(pha.values[j][i])
			re[j][i] = a * scale * math.Cos(g)
			im[j][i] = a * scale * math.Sin(g)
		}
	}
	return newGrid(amp.lon, amp.lat, re, im)
}

func newGrid(lon, lat []float64, re, im [][]float64) (*Grid, error) {
	g := &Grid{
		Real: &interp.Grid2D{X: lon, Y: lat, Values: re},
		Imag: &interp.Grid2D{X: lon, Y: lat, Values: im},
	}
	if err := g.Real.Validate(); err != nil {
		return nil, fmt.Errorf("invalid grid: %w", err)
	}
	return g, nil
}

// unitScale returns the factor converting amplitudes to metres. FES
// ocean_tide products store centimetres.
func unitScale(path, units string) float64 {
	u := strings.ToLower(strings.TrimSpace(units))
	if strings.HasPrefix(u, "cm") || strings.HasPrefix(u, "centimet") {
		return 0.01
	}
	if u == "" && strings.Contains(strings.ToLower(path), "ocean_tide") {
		return 0.01
	}
	return 1
}

func amplitudeNames(cfg FileConfig) []string {
	return []string{cfg.AmplitudeVarName, "amplitude", "Amplitude", "amp", "Amp", "HA", "Ha", "ha"}
}

func phaseNames(cfg FileConfig) []string {
	return []string{cfg.PhaseVarName, "phase", "Phase", "pha", "Pha", "Hg", "HG", "hg", "phase_deg"}
}

// readLayer reads the first matching 2-D variable in (lat, lon) order.
// Fill values become zero.
func readLayer(nc netcdf.Dataset, cfg FileConfig, names []string) (*layer, error) {
	lat, latDim, err := netcdfio.ReadAxis(nc, []string{cfg.LatVarName, "latitude", "lat", "y"})
	if err != nil {
		return nil, err
	}
	lon, lonDim, err := netcdfio.ReadAxis(nc, []string{cfg.LonVarName, "longitude", "lon", "x"})
	if err != nil {
		return nil, err
	}

	var v netcdf.Var
	found := false
	for _, name := range names {
		if cand, err := nc.Var(name); err == nil {
			v, found = cand, true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("data variable not found (tried: %v)", names)
	}
	data, dims, shape, err := netcdfio.ReadAll(v)
	if err != nil {
		return nil, err
	}
	if len(dims) != 2 {
		return nil, fmt.Errorf("expected 2D data, got %dD", len(dims))
	}
	text, numeric, err := netcdfio.Attrs(v)
	if err != nil {
		return nil, err
	}
	for _, key := range []string{"_FillValue", "missing_value"} {
		if fv, ok := numeric[key]; ok {
			for k := range data {
				if data[k] == fv {
					data[k] = 0
				}
			}
		}
	}

	nLat, nLon := len(lat), len(lon)
	values := make([][]float64, nLat)
	switch {
	case dims[0] == latDim && dims[1] == lonDim, shape[0] == nLat && shape[1] == nLon:
		for j := range values {
			values[j] = data[j*nLon : (j+1)*nLon]
		}
	case dims[0] == lonDim && dims[1] == latDim, shape[0] == nLon && shape[1] == nLat:
		for j := range values {
			values[j] = make([]float64, nLon)
			for i := range values[j] {
				values[j][i] = data[i*nLat+j]
			}
		}
	default:
		return nil, fmt.Errorf("dimension mismatch: data is %v, expected [%d, %d] or [%d, %d]",
			shape, nLat, nLon, nLon, nLat)
	}
	return &layer{lon: lon, lat: lat, values: values, units: text["units"]}, nil
}
