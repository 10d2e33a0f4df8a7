package usecase

import (
	"fmt"
	"math"
	"time"

	"go.ngs.io/regional-ocean/internal/domain"
)

// SegmentEncoder extracts along-boundary slices of gridded fields.
type SegmentEncoder struct {
	exp *Experiment
}

// NewSegmentEncoder creates an encoder for exp.
func NewSegmentEncoder(exp *Experiment) *SegmentEncoder {
	return &SegmentEncoder{exp: exp}
}

// Encode samples every field along spec. Fields may cover only a window of
// their point family but must all share one point type and time axis.
func (e *SegmentEncoder) Encode(fields []domain.GriddedField, spec domain.BoundarySpec, segment int) (*domain.BoundarySegment, error) {
	seg, land, err := e.encode(fields, spec, segment)
	if err != nil {
		return nil, err
	}
	if land {
		return nil, &domain.EmptyBoundaryError{Boundary: spec, Segment: segment}
	}
	return seg, nil
}

// encode is Encode without rejecting all-land boundaries; it reports them
// instead.
func (e *SegmentEncoder) encode(fields []domain.GriddedField, spec domain.BoundarySpec, segment int) (*domain.BoundarySegment, bool, error) {
	if len(fields) == 0 {
		return nil, false, fmt.Errorf("segment %d: no fields to encode", segment)
	}
	first := &fields[0]
	pt := first.PointType
	ny, nx := e.exp.Grid.FamilyShape(pt)
	idx, err := spec.Indices(ny, nx)
	if err != nil {
		return nil, false, fmt.Errorf("segment %d: %w", segment, err)
	}
	for k := range fields {
		f := &fields[k]
		if f.PointType != pt {
			return nil, false, fmt.Errorf("segment %d: field %s is on %s points, %s on %s", segment, f.Name, f.PointType, first.Name, pt)
		}
		if f.NT != first.NT {
			return nil, false, fmt.Errorf("segment %d: field %s has %d time steps, %s has %d", segment, f.Name, f.NT, first.Name, first.NT)
		}
		for _, p := range idx {
			if !f.Window.Contains(p.I, p.J) {
				return nil, false, fmt.Errorf("segment %d: field %s window does not contain boundary point (%d, %d)", segment, f.Name, p.I, p.J)
			}
		}
	}

	seg := &domain.BoundarySegment{
		Number:   segment,
		Boundary: spec,
		Times:    append([]time.Time(nil), first.Times...),
		Lon:      make([]float64, len(idx)),
		Lat:      make([]float64, len(idx)),
		Vertical: e.exp.Vertical,
	}
	w := first.Window
	ps := e.exp.Grid.Window(pt, w)
	for n, p := range idx {
		seg.Lon[n] = ps.Lon[p.J-w.J0][p.I-w.I0]
		seg.Lat[n] = ps.Lat[p.J-w.J0][p.I-w.I0]
	}
	for k := range fields {
		seg.Variables = append(seg.Variables, sample(&fields[k], idx))
	}
	return seg, e.allLand(first, idx), nil
}

// appendSegment extends dst in time with the steps of src. Both must come
// from the same boundary and variables.
func appendSegment(dst, src *domain.BoundarySegment) error {
	if len(dst.Variables) != len(src.Variables) || dst.Len() != src.Len() {
		return fmt.Errorf("segment %d: chunk layout differs", dst.Number)
	}
	dst.Times = append(dst.Times, src.Times...)
	for k := range dst.Variables {
		if dst.Variables[k].Name != src.Variables[k].Name {
			return fmt.Errorf("segment %d: chunk has %s where %s was expected", dst.Number, src.Variables[k].Name, dst.Variables[k].Name)
		}
		dst.Variables[k].Data = append(dst.Variables[k].Data, src.Variables[k].Data...)
	}
	return nil
}

// sample copies f at idx into (t, z, n) order.
func sample(f *domain.GriddedField, idx []domain.Index) domain.SegmentVariable {
	sv := domain.SegmentVariable{
		Name:     f.Name,
		Units:    f.Units,
		LongName: f.LongName,
		Attrs:    make(map[string]string, len(f.Attrs)),
		Layered:  f.Depths != nil,
		NZ:       f.NZ,
		Data:     make([]float64, 0, f.NT*f.NZ*len(idx)),
	}
	for k, v := range f.Attrs {
		sv.Attrs[k] = v
	}
	for t := 0; t < f.NT; t++ {
		for z := 0; z < f.NZ; z++ {
			for _, p := range idx {
				sv.Data = append(sv.Data, f.At(t, z, p.J-f.Window.J0, p.I-f.Window.I0))
			}
		}
	}
	return sv
}

// allLand uses the ocean mask for T points, otherwise a surface value that
// is missing at every time step.
func (e *SegmentEncoder) allLand(f *domain.GriddedField, idx []domain.Index) bool {
	if e.exp.Mask != nil && f.PointType == domain.PointT {
		for _, p := range idx {
			if e.exp.ocean(p.I, p.J) {
				return false
			}
		}
		return true
	}
	for _, p := range idx {
		for t := 0; t < f.NT; t++ {
			if !math.IsNaN(f.At(t, 0, p.J-f.Window.J0, p.I-f.Window.I0)) {
				return false
			}
		}
	}
	return true
}
