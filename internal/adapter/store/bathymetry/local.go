// Package bathymetry samples seafloor elevation files onto model grids.
package bathymetry

import (
	"fmt"
	"math"
	"sync"

	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/regional-ocean/internal/adapter/interp"
	"go.ngs.io/regional-ocean/internal/adapter/store/netcdfio"
	"go.ngs.io/regional-ocean/internal/domain"
)

// DefaultVariable is the GEBCO elevation variable, negative below sea level.
const DefaultVariable = "elevation"

// LocalStore reads a GEBCO-style elevation file from local disk or a
// FUSE-mounted bucket. Only the subset covering the requested points is
// loaded and kept until a request falls outside it.
type LocalStore struct {
	path     string
	variable string

	grid   *interp.Grid2D
	bounds *gridBounds
	mu     sync.Mutex
}

type gridBounds struct {
	minLat, maxLat float64
	minLon, maxLon float64
}

func (b *gridBounds) covers(o gridBounds) bool {
	if b == nil {
		return false
	}
	return o.minLat >= b.minLat && o.maxLat <= b.maxLat && o.minLon >= b.minLon && o.maxLon <= b.maxLon
}

func boundsFromGrid(grid *interp.Grid2D) *gridBounds {
	if grid == nil || len(grid.X) == 0 || len(grid.Y) == 0 {
		return nil
	}
	return &gridBounds{
		minLat: grid.Y[0],
		maxLat: grid.Y[len(grid.Y)-1],
		minLon: grid.X[0],
		maxLon: grid.X[len(grid.X)-1],
	}
}

// NewLocalStore creates a store over the elevation file at path. An empty
// variable selects DefaultVariable.
func NewLocalStore(path, variable string) *LocalStore {
	if variable == "" {
		variable = DefaultVariable
	}
	return &LocalStore{path: path, variable: variable}
}

// Depth implements Store.
func (s *LocalStore) Depth(ps domain.PointSet) ([][]float64, error) {
	ny, nx := ps.Shape()
	if ny == 0 || nx == 0 {
		return nil, fmt.Errorf("empty point set")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lons, err := s.axis("lon", "longitude", "x")
	if err != nil {
		return nil, err
	}
	want := gridBounds{minLat: math.Inf(1), maxLat: math.Inf(-1), minLon: math.Inf(1), maxLon: math.Inf(-1)}
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			lon := interp.NormalizeLonForAxis(lons, ps.Lon[j][i])
			want.minLon, want.maxLon = math.Min(want.minLon, lon), math.Max(want.maxLon, lon)
			want.minLat, want.maxLat = math.Min(want.minLat, ps.Lat[j][i]), math.Max(want.maxLat, ps.Lat[j][i])
		}
	}
	// Points straddling the axis seam need the whole longitude range.
	if want.maxLon-want.minLon > 180 {
		want.minLon, want.maxLon = lons[0], lons[len(lons)-1]
	}

	if s.grid == nil || !s.bounds.covers(want) {
		const margin = 0.5 // Degrees.
		grid, err := loadGridSubset(s.path, s.variable, want, margin)
		if err != nil {
			return nil, fmt.Errorf("failed to load bathymetry: %w", err)
		}
		s.grid = grid
		s.bounds = boundsFromGrid(grid)
	}

	out := make([][]float64, ny)
	for j := 0; j < ny; j++ {
		out[j] = make([]float64, nx)
		for i := 0; i < nx; i++ {
			lon := interp.NormalizeLonForAxis(s.grid.X, ps.Lon[j][i])
			elev, err := s.grid.InterpolateAt(lon, ps.Lat[j][i])
			switch {
			case err != nil || math.IsNaN(elev):
				out[j][i] = math.NaN()
			case elev < 0:
				out[j][i] = -elev
			default:
				out[j][i] = 0
			}
		}
	}
	return out, nil
}

// Close releases cached data.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grid, s.bounds = nil, nil
	return nil
}

// axis reads the first 1-D coordinate variable found under names.
func (s *LocalStore) axis(names ...string) ([]float64, error) {
	nc, err := netcdf.OpenFile(s.path, netcdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("failed to open NetCDF file: %w", err)
	}
	defer func() { _ = nc.Close() }()
	values, _, err := netcdfio.ReadAxis(nc, names)
	return values, err
}

// loadGridSubset reads the block of an elevation grid covering want plus
// margin degrees. Descending latitude axes are flipped.
//
//nolint:gocyclo // Dimension order and axis direction cases.
func loadGridSubset(path, dataName string, want gridBounds, margin float64) (*interp.Grid2D, error) {
	nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("failed to open NetCDF file: %w", err)
	}
	defer func() { _ = nc.Close() }()

	latData, latDim, err := netcdfio.ReadAxis(nc, []string{"lat", "latitude", "y"})
	if err != nil {
		return nil, err
	}
	lonData, lonDim, err := netcdfio.ReadAxis(nc, []string{"lon", "longitude", "x"})
	if err != nil {
		return nil, err
	}
	latDescending := latData[0] > latData[len(latData)-1]
	if latDescending {
		reverse(latData)
	}

	latStart, latEnd := subsetRange(latData, want.minLat-margin, want.maxLat+margin)
	lonStart, lonEnd := subsetRange(lonData, want.minLon-margin, want.maxLon+margin)
	if latDescending {
		// Indices into the file's original order.
		latStart, latEnd = len(latData)-latEnd, len(latData)-latStart
	}

	var dataVar netcdf.Var
	found := false
	for _, name := range []string{dataName, "z", "data"} {
		if v, err := nc.Var(name); err == nil {
			dataVar, found = v, true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("data variable not found (tried: %v)", []string{dataName, "z", "data"})
	}
	dims, shape, err := netcdfio.Shape(dataVar)
	if err != nil {
		return nil, err
	}
	if len(dims) != 2 {
		return nil, fmt.Errorf("expected 2D data, got %dD", len(dims))
	}

	nLat, nLon := latEnd-latStart, lonEnd-lonStart
	var values [][]float64
	switch {
	case dims[0] == latDim && dims[1] == lonDim, shape[0] == len(latData) && shape[1] == len(lonData):
		flat, err := readScaled(dataVar, []uint64{uint64(latStart), uint64(lonStart)}, []uint64{uint64(nLat), uint64(nLon)})
		if err != nil {
			return nil, err
		}
		values = rows(flat, nLat, nLon)
	case dims[0] == lonDim && dims[1] == latDim, shape[0] == len(lonData) && shape[1] == len(latData):
		flat, err := readScaled(dataVar, []uint64{uint64(lonStart), uint64(latStart)}, []uint64{uint64(nLon), uint64(nLat)})
		if err != nil {
			return nil, err
		}
		values = transpose2D(rows(flat, nLon, nLat))
	default:
		return nil, fmt.Errorf("dimension mismatch: data is %v, expected [%d, %d] or [%d, %d]",
			shape, len(latData), len(lonData), len(lonData), len(latData))
	}

	var subsetLat []float64
	if latDescending {
		reverse(values)
		subsetLat = latData[len(latData)-latEnd : len(latData)-latStart]
	} else {
		subsetLat = latData[latStart:latEnd]
	}
	grid := &interp.Grid2D{
		X:      lonData[lonStart:lonEnd],
		Y:      subsetLat,
		Values: values,
	}
	if err := grid.Validate(); err != nil {
		return nil, fmt.Errorf("invalid grid: %w", err)
	}
	return grid, nil
}

// readScaled reads a hyperslab and applies fill, scale_factor and add_offset.
func readScaled(v netcdf.Var, start, count []uint64) ([]float64, error) {
	data, err := netcdfio.ReadSlice(v, start, count)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	_, attrs, err := netcdfio.Attrs(v)
	if err != nil {
		return nil, err
	}
	fill, hasFill := attrs["_FillValue"]
	scale, hasScale := attrs["scale_factor"]
	offset := attrs["add_offset"]
	for k, x := range data {
		if hasFill && x == fill {
			data[k] = math.NaN()
			continue
		}
		if hasScale && scale != 0 {
			x *= scale
		}
		data[k] = x + offset
	}
	return data, nil
}

// subsetRange returns [start, end) covering [lo, hi] on an increasing axis,
// with at least two points.
func subsetRange(axis []float64, lo, hi float64) (int, int) {
	start := findNearestIndex(axis, lo)
	end := findNearestIndex(axis, hi)
	if axis[start] > lo {
		start--
	}
	if axis[end] < hi {
		end++
	}
	start = clamp(start, 0, len(axis)-2)
	end = clamp(end+1, start+2, len(axis))
	return start, end
}

func rows(flat []float64, nRows, nCols int) [][]float64 {
	values := make([][]float64, nRows)
	for i := 0; i < nRows; i++ {
		values[i] = flat[i*nCols : (i+1)*nCols]
	}
	return values
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// transpose2D transposes a 2D array.
func transpose2D(data [][]float64) [][]float64 {
	if len(data) == 0 {
		return data
	}
	nRows := len(data)
	nCols := len(data[0])
	transposed := make([][]float64, nCols)
	for i := 0; i < nCols; i++ {
		transposed[i] = make([]float64, nRows)
		for j := 0; j < nRows; j++ {
			transposed[i][j] = data[j][i]
		}
	}
	return transposed
}

// findNearestIndex finds the index of the value closest to target in a sorted array.
func findNearestIndex(arr []float64, target float64) int {
	if len(arr) == 0 {
		return 0
	}
	left, right := 0, len(arr)-1
	for left < right {
		mid := (left + right) / 2
		if arr[mid] < target {
			left = mid + 1
		} else {
			right = mid
		}
	}
	if left > 0 && math.Abs(arr[left-1]-target) < math.Abs(arr[left]-target) {
		return left - 1
	}
	return left
}

// clamp ensures value is within [minVal, maxVal] range.
func clamp(value, minVal, maxVal int) int {
	if value < minVal {
		return minVal
	}
	if value > maxVal {
		return maxVal
	}
	return value
}
