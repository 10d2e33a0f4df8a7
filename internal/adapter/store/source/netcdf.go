// Package source reads source datasets from NetCDF files.
package source

import (
	"fmt"
	"sync"

	"github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/regional-ocean/internal/adapter/source"
	"go.ngs.io/regional-ocean/internal/adapter/store/netcdfio"
)

// NetCDFDataset serves variables of one NetCDF file on demand.
type NetCDFDataset struct {
	path  string
	nc    netcdf.Dataset
	cache map[string]*source.Variable // Whole variables, in practice coordinates.
	mu    sync.Mutex                  // The C library is not safe for concurrent use.
}

// Open opens a NetCDF file read-only.
func Open(path string) (*NetCDFDataset, error) {
	nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("failed to open NetCDF file %s: %w", path, err)
	}
	return &NetCDFDataset{path: path, nc: nc, cache: make(map[string]*source.Variable)}, nil
}

// OpenAll opens several files and merges them into one dataset.
func OpenAll(paths ...string) (source.Dataset, func() error, error) {
	var sets []source.Dataset
	var opened []*NetCDFDataset
	closeAll := func() error {
		var first error
		for _, d := range opened {
			if err := d.Close(); err != nil && first == nil {
				first = err
			}
		}
		return first
	}
	for _, p := range paths {
		d, err := Open(p)
		if err != nil {
			_ = closeAll()
			return nil, nil, err
		}
		opened = append(opened, d)
		sets = append(sets, d)
	}
	if len(sets) == 1 {
		return sets[0], closeAll, nil
	}
	return source.Merge(sets...), closeAll, nil
}

// Path returns the file path.
func (d *NetCDFDataset) Path() string { return d.path }

// Close closes the file.
func (d *NetCDFDataset) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nc.Close()
}

// Variable implements source.Dataset. The whole variable is read and cached,
// so it suits coordinates; data arrays go through VariableSteps. The
// returned variable is shared and must be treated as read-only.
func (d *NetCDFDataset) Variable(name string) (*source.Variable, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if v, ok := d.cache[name]; ok {
		return v, nil
	}
	nv, err := d.nc.Var(name)
	if err != nil {
		return nil, fmt.Errorf("variable %s in %s: %w", name, d.path, source.ErrNotFound)
	}
	data, dims, shape, err := netcdfio.ReadAll(nv)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	text, numeric, err := netcdfio.Attrs(nv)
	if err != nil {
		return nil, fmt.Errorf("failed to read attributes of %s: %w", name, err)
	}
	v := &source.Variable{Name: name, Dims: dims, Shape: shape, Data: data, Attrs: text, Numeric: numeric}
	d.cache[name] = v
	return v, nil
}

// VariableSteps implements source.Dataset. Consecutive steps are read as
// one hyperslab and nothing is cached.
func (d *NetCDFDataset) VariableSteps(name, dim string, steps []int) (*source.Variable, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	nv, err := d.nc.Var(name)
	if err != nil {
		return nil, fmt.Errorf("variable %s in %s: %w", name, d.path, source.ErrNotFound)
	}
	dims, shape, err := netcdfio.Shape(nv)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	text, numeric, err := netcdfio.Attrs(nv)
	if err != nil {
		return nil, fmt.Errorf("failed to read attributes of %s: %w", name, err)
	}
	v := &source.Variable{Name: name, Dims: dims, Shape: shape, Attrs: text, Numeric: numeric}
	ax := v.DimIndex(dim)
	if ax < 0 {
		if v.Data, _, _, err = netcdfio.ReadAll(nv); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		return v, nil
	}
	n := shape[ax]
	for _, s := range steps {
		if s < 0 || s >= n {
			return nil, fmt.Errorf("variable %s: step %d out of range [0, %d)", name, s, n)
		}
	}

	outer, inner := 1, 1
	for k := 0; k < ax; k++ {
		outer *= shape[k]
	}
	for k := ax + 1; k < len(shape); k++ {
		inner *= shape[k]
	}
	v.Shape = append([]int(nil), shape...)
	v.Shape[ax] = len(steps)
	v.Data = make([]float64, outer*len(steps)*inner)

	start := make([]uint64, len(shape))
	count := make([]uint64, len(shape))
	for k, s := range shape {
		count[k] = uint64(s)
	}
	for lo := 0; lo < len(steps); {
		hi := lo + 1
		for hi < len(steps) && steps[hi] == steps[hi-1]+1 {
			hi++
		}
		run := hi - lo
		start[ax], count[ax] = uint64(steps[lo]), uint64(run)
		slab, err := netcdfio.ReadSlice(nv, start, count)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s steps %d-%d: %w", name, steps[lo], steps[hi-1], err)
		}
		for o := 0; o < outer; o++ {
			src := slab[o*run*inner : (o+1)*run*inner]
			copy(v.Data[(o*len(steps)+lo)*inner:], src)
		}
		lo = hi
	}
	return v, nil
}

// DimLen implements source.Dataset.
func (d *NetCDFDataset) DimLen(name string) (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	dim, err := d.nc.Dim(name)
	if err != nil {
		return 0, false
	}
	n, err := dim.Len()
	if err != nil {
		return 0, false
	}
	return int(n), true
}
