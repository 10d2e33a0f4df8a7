// Package source turns arbitrary gridded ocean datasets into canonical fields.
package source

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNotFound is returned by a Dataset for an unknown variable.
var ErrNotFound = errors.New("not found")

// Variable is one array of a dataset, stored row-major over Dims.
type Variable struct {
	Name    string
	Dims    []string
	Shape   []int
	Data    []float64
	Attrs   map[string]string  // Text attributes.
	Numeric map[string]float64 // Scalar numeric attributes such as _FillValue.
}

// Len returns the number of values implied by Shape.
func (v *Variable) Len() int {
	n := 1
	for _, s := range v.Shape {
		n *= s
	}
	return n
}

// DimIndex returns the axis of the named dimension, or -1.
func (v *Variable) DimIndex(name string) int {
	for k, d := range v.Dims {
		if d == name {
			return k
		}
	}
	return -1
}

// Dataset is a read-only source of named variables.
type Dataset interface {
	// Variable loads the named variable. Implementations return an error
	// wrapping ErrNotFound when it does not exist.
	Variable(name string) (*Variable, error)

	// VariableSteps loads the named variable restricted to the given
	// indices along dim, in order. The result has len(steps) entries on
	// that axis; with no steps it carries metadata only. A variable without
	// dim is returned whole.
	VariableSteps(name, dim string, steps []int) (*Variable, error)

	// DimLen returns the length of a dimension, if defined.
	DimLen(name string) (int, bool)
}

// MemDataset is an in-memory Dataset.
type MemDataset struct {
	dims map[string]int
	vars map[string]*Variable
}

// NewMemDataset creates an empty in-memory dataset.
func NewMemDataset() *MemDataset {
	return &MemDataset{dims: make(map[string]int), vars: make(map[string]*Variable)}
}

// Add registers a variable and its dimensions.
func (m *MemDataset) Add(v *Variable) error {
	if len(v.Dims) != len(v.Shape) {
		return fmt.Errorf("variable %s has %d dims but %d shape entries", v.Name, len(v.Dims), len(v.Shape))
	}
	if v.Len() != len(v.Data) {
		return fmt.Errorf("variable %s has %d values, shape implies %d", v.Name, len(v.Data), v.Len())
	}
	for k, d := range v.Dims {
		if n, ok := m.dims[d]; ok && n != v.Shape[k] {
			return fmt.Errorf("dimension %s of %s has length %d, already defined as %d", d, v.Name, v.Shape[k], n)
		}
		m.dims[d] = v.Shape[k]
	}
	m.vars[v.Name] = v
	return nil
}

// MustAdd is Add for fixtures; it panics on error.
func (m *MemDataset) MustAdd(v *Variable) *MemDataset {
	if err := m.Add(v); err != nil {
		panic(err)
	}
	return m
}

// Variable implements Dataset.
func (m *MemDataset) Variable(name string) (*Variable, error) {
	v, ok := m.vars[name]
	if !ok {
		return nil, fmt.Errorf("variable %s: %w", name, ErrNotFound)
	}
	return v, nil
}

// VariableSteps implements Dataset.
func (m *MemDataset) VariableSteps(name, dim string, steps []int) (*Variable, error) {
	v, err := m.Variable(name)
	if err != nil {
		return nil, err
	}
	return SelectSteps(v, dim, steps)
}

// DimLen implements Dataset.
func (m *MemDataset) DimLen(name string) (int, bool) {
	n, ok := m.dims[name]
	return n, ok
}

type merged []Dataset

// Merge combines datasets, searching them in order. Typical sources ship
// one file per variable.
func Merge(sets ...Dataset) Dataset { return merged(sets) }

func (m merged) Variable(name string) (*Variable, error) {
	for _, ds := range m {
		v, err := ds.Variable(name)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("variable %s: %w", name, ErrNotFound)
}

func (m merged) VariableSteps(name, dim string, steps []int) (*Variable, error) {
	for _, ds := range m {
		v, err := ds.VariableSteps(name, dim, steps)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("variable %s: %w", name, ErrNotFound)
}

func (m merged) DimLen(name string) (int, bool) {
	for _, ds := range m {
		if n, ok := ds.DimLen(name); ok {
			return n, true
		}
	}
	return 0, false
}

// Names lists the variables in the dataset.
func (m *MemDataset) Names() []string {
	out := make([]string, 0, len(m.vars))
	for name := range m.vars {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// SelectSteps copies the given indices along dim out of v.
func SelectSteps(v *Variable, dim string, steps []int) (*Variable, error) {
	ax := v.DimIndex(dim)
	if ax < 0 {
		return v, nil
	}
	n := v.Shape[ax]
	for _, s := range steps {
		if s < 0 || s >= n {
			return nil, fmt.Errorf("variable %s: step %d out of range [0, %d)", v.Name, s, n)
		}
	}
	outer, inner := 1, 1
	for k := 0; k < ax; k++ {
		outer *= v.Shape[k]
	}
	for k := ax + 1; k < len(v.Shape); k++ {
		inner *= v.Shape[k]
	}
	out := &Variable{
		Name:    v.Name,
		Dims:    v.Dims,
		Shape:   append([]int(nil), v.Shape...),
		Data:    make([]float64, 0, outer*len(steps)*inner),
		Attrs:   v.Attrs,
		Numeric: v.Numeric,
	}
	out.Shape[ax] = len(steps)
	for o := 0; o < outer; o++ {
		for _, s := range steps {
			base := (o*n + s) * inner
			out.Data = append(out.Data, v.Data[base:base+inner]...)
		}
	}
	return out, nil
}
