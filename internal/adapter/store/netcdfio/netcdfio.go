// Package netcdfio holds the NetCDF read and write helpers shared by the stores.
package netcdfio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fhs/go-netcdf/netcdf"
	"github.com/google/renameio/v2"
)

// Shape returns the dimension names and lengths of a variable.
func Shape(v netcdf.Var) ([]string, []int, error) {
	dims, err := v.Dims()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get dimensions: %w", err)
	}
	names := make([]string, len(dims))
	shape := make([]int, len(dims))
	for k, d := range dims {
		if names[k], err = d.Name(); err != nil {
			return nil, nil, fmt.Errorf("failed to get dimension name: %w", err)
		}
		n, err := d.Len()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get dimension %s length: %w", names[k], err)
		}
		shape[k] = int(n)
	}
	return names, shape, nil
}

// ReadAll reads a whole variable of any numeric type as float64.
func ReadAll(v netcdf.Var) ([]float64, []string, []int, error) {
	names, shape, err := Shape(v)
	if err != nil {
		return nil, nil, nil, err
	}
	start := make([]uint64, len(shape))
	count := make([]uint64, len(shape))
	for k, n := range shape {
		count[k] = uint64(n)
	}
	data, err := ReadSlice(v, start, count)
	if err != nil {
		return nil, nil, nil, err
	}
	return data, names, shape, nil
}

// ReadSlice reads a hyperslab of a variable as float64. Attributes such as
// scale_factor are not applied.
func ReadSlice(v netcdf.Var, start, count []uint64) ([]float64, error) {
	total := 1
	for _, c := range count {
		total *= int(c)
	}
	varType, err := v.Type()
	if err != nil {
		return nil, fmt.Errorf("failed to get variable type: %w", err)
	}
	out := make([]float64, total)
	if total == 0 {
		return out, nil
	}
	switch varType {
	case netcdf.DOUBLE:
		if err := v.ReadFloat64Slice(out, start, count); err != nil {
			return nil, fmt.Errorf("failed to read float64: %w", err)
		}
	case netcdf.FLOAT:
		tmp := make([]float32, total)
		if err := v.ReadFloat32Slice(tmp, start, count); err != nil {
			return nil, fmt.Errorf("failed to read float32: %w", err)
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	case netcdf.INT:
		tmp := make([]int32, total)
		if err := v.ReadInt32Slice(tmp, start, count); err != nil {
			return nil, fmt.Errorf("failed to read int32: %w", err)
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	case netcdf.SHORT:
		tmp := make([]int16, total)
		if err := v.ReadInt16Slice(tmp, start, count); err != nil {
			return nil, fmt.Errorf("failed to read int16: %w", err)
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	case netcdf.BYTE:
		tmp := make([]int8, total)
		if err := v.ReadInt8Slice(tmp, start, count); err != nil {
			return nil, fmt.Errorf("failed to read int8: %w", err)
		}
		for i, val := range tmp {
			out[i] = float64(val)
		}
	default:
		return nil, fmt.Errorf("unsupported data type: %v (expected DOUBLE, FLOAT, INT, SHORT or BYTE)", varType)
	}
	return out, nil
}

// ReadAxis reads the first of names that exists as a 1-D coordinate with at
// least two values. It returns the values and the dimension name.
func ReadAxis(nc netcdf.Dataset, names []string) ([]float64, string, error) {
	for _, name := range names {
		v, err := nc.Var(name)
		if err != nil {
			continue
		}
		data, dims, _, err := ReadAll(v)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read %s: %w", name, err)
		}
		if len(dims) != 1 {
			return nil, "", fmt.Errorf("expected 1D variable %s, got %dD", name, len(dims))
		}
		if len(data) < 2 {
			return nil, "", fmt.Errorf("coordinate %s needs at least 2 values", name)
		}
		return data, dims[0], nil
	}
	return nil, "", fmt.Errorf("coordinate variable not found (tried: %v)", names)
}

// Attrs returns the text and scalar numeric attributes of a variable.
func Attrs(v netcdf.Var) (map[string]string, map[string]float64, error) {
	n, err := v.NAttrs()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to count attributes: %w", err)
	}
	text := make(map[string]string)
	numeric := make(map[string]float64)
	for k := 0; k < n; k++ {
		a, err := v.AttrN(k)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read attribute %d: %w", k, err)
		}
		if s, ok := Text(a); ok {
			text[a.Name()] = s
			continue
		}
		if x, ok := Number(a); ok {
			numeric[a.Name()] = x
		}
	}
	return text, numeric, nil
}

// Text reads a character attribute.
func Text(a netcdf.Attr) (string, bool) {
	if a == (netcdf.Attr{}) {
		return "", false
	}
	t, err := a.Type()
	if err != nil || t != netcdf.CHAR {
		return "", false
	}
	n, err := a.Len()
	if err != nil {
		return "", false
	}
	buf := make([]byte, n)
	if n > 0 {
		if err := a.ReadBytes(buf); err != nil {
			return "", false
		}
	}
	return string(buf), true
}

// Number reads the first value of a numeric attribute.
func Number(a netcdf.Attr) (float64, bool) {
	if a == (netcdf.Attr{}) {
		return 0, false
	}
	n, err := a.Len()
	if err != nil || n == 0 {
		return 0, false
	}
	t, err := a.Type()
	if err != nil {
		return 0, false
	}
	switch t {
	case netcdf.DOUBLE:
		buf := make([]float64, n)
		if a.ReadFloat64s(buf) == nil {
			return buf[0], true
		}
	case netcdf.FLOAT:
		buf := make([]float32, n)
		if a.ReadFloat32s(buf) == nil {
			return float64(buf[0]), true
		}
	case netcdf.INT:
		buf := make([]int32, n)
		if a.ReadInt32s(buf) == nil {
			return float64(buf[0]), true
		}
	case netcdf.SHORT:
		buf := make([]int16, n)
		if a.ReadInt16s(buf) == nil {
			return float64(buf[0]), true
		}
	}
	return 0, false
}

// PutText writes a text attribute.
func PutText(v netcdf.Var, name, value string) error {
	if err := v.Attr(name).WriteBytes([]byte(value)); err != nil {
		return fmt.Errorf("failed to write attribute %s: %w", name, err)
	}
	return nil
}

// PutTexts writes several text attributes. Empty values and reserved
// names starting with an underscore are skipped.
func PutTexts(v netcdf.Var, attrs map[string]string) error {
	for name, value := range attrs {
		if value == "" || strings.HasPrefix(name, "_") {
			continue
		}
		if err := PutText(v, name, value); err != nil {
			return err
		}
	}
	return nil
}

// PutNumber writes a scalar double attribute.
func PutNumber(v netcdf.Var, name string, value float64) error {
	if err := v.Attr(name).WriteFloat64s([]float64{value}); err != nil {
		return fmt.Errorf("failed to write attribute %s: %w", name, err)
	}
	return nil
}

// Var defines a double variable over the named dimensions.
func Var(ds netcdf.Dataset, name string, dims ...netcdf.Dim) (netcdf.Var, error) {
	v, err := ds.AddVar(name, netcdf.DOUBLE, dims)
	if err != nil {
		return netcdf.Var{}, fmt.Errorf("failed to define variable %s: %w", name, err)
	}
	return v, nil
}

// Dim defines a dimension.
func Dim(ds netcdf.Dataset, name string, n int) (netcdf.Dim, error) {
	d, err := ds.AddDim(name, uint64(n))
	if err != nil {
		return netcdf.Dim{}, fmt.Errorf("failed to define dimension %s: %w", name, err)
	}
	return d, nil
}

// Create writes a NetCDF-4 file through a pending file in the same
// directory and atomically replaces path only when fill succeeds. A failed
// write leaves no file at path.
func Create(path string, fill func(ds netcdf.Dataset) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	pf, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("failed to reserve temporary file: %w", err)
	}
	defer func() { _ = pf.Cleanup() }()

	// The C library writes the pending file through its own descriptor.
	ds, err := netcdf.CreateFile(pf.Name(), netcdf.CLOBBER|netcdf.NETCDF4)
	if err != nil {
		return fmt.Errorf("failed to create NetCDF file: %w", err)
	}
	if err := fill(ds); err != nil {
		_ = ds.Close()
		return err
	}
	if err := ds.Close(); err != nil {
		return fmt.Errorf("failed to close NetCDF file: %w", err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", filepath.Base(path), err)
	}
	return nil
}
