package domain

import "fmt"

// SchemaError reports a name map that does not match the source dataset.
type SchemaError struct {
	Name   string // Dimension or variable name.
	Kind   string // "dimension", "variable" or "name map".
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error: %s %q: %s", e.Kind, e.Name, e.Reason)
}

// OutOfDomainError reports a destination grid not covered by the source mesh.
type OutOfDomainError struct {
	Field     string
	PointType PointType
	Coverage  float64 // Fraction of destination points inside the source mesh.
	Min       float64
}

func (e *OutOfDomainError) Error() string {
	return fmt.Sprintf("field %s on %s points: source covers %.1f%% of destination points, need %.1f%%",
		e.Field, e.PointType, 100*e.Coverage, 100*e.Min)
}

// EmptyBoundaryError reports a boundary with no ocean points.
type EmptyBoundaryError struct {
	Boundary BoundarySpec
	Segment  int
}

func (e *EmptyBoundaryError) Error() string {
	return fmt.Sprintf("boundary %s (%s) has no ocean points", e.Boundary, SegmentID(e.Segment))
}
