package domain

import (
	"fmt"
	"strings"
	"time"
)

// Side names a boundary of the regional domain.
type Side string

const (
	North Side = "north"
	South Side = "south"
	East  Side = "east"
	West  Side = "west"
	// PathSide marks a boundary given as an explicit index path.
	PathSide Side = "path"
)

// ParseSide accepts the cardinal boundary names, case-insensitively.
func ParseSide(s string) (Side, error) {
	switch side := Side(strings.ToLower(strings.TrimSpace(s))); side {
	case North, South, East, West:
		return side, nil
	}
	return "", fmt.Errorf("unknown boundary %q (use north, south, east or west)", s)
}

// Index is a destination (i, j) grid index.
type Index struct {
	I, J int
}

// BoundarySpec selects the points of one open boundary.
type BoundarySpec struct {
	Side Side
	Path []Index // Only used when Side is PathSide, traced in order.
}

// Cardinal returns a spec for a cardinal side.
func Cardinal(side Side) BoundarySpec { return BoundarySpec{Side: side} }

// IndexPath returns a spec for an explicit index path.
func IndexPath(path []Index) BoundarySpec {
	return BoundarySpec{Side: PathSide, Path: append([]Index(nil), path...)}
}

func (b BoundarySpec) String() string {
	if b.Side == PathSide {
		return fmt.Sprintf("path[%d]", len(b.Path))
	}
	return string(b.Side)
}

// Indices resolves the spec against a point-family shape (ny, nx).
func (b BoundarySpec) Indices(ny, nx int) ([]Index, error) {
	var out []Index
	switch b.Side {
	case North, South:
		j := 0
		if b.Side == North {
			j = ny - 1
		}
		out = make([]Index, nx)
		for i := range out {
			out[i] = Index{I: i, J: j}
		}
	case East, West:
		i := 0
		if b.Side == East {
			i = nx - 1
		}
		out = make([]Index, ny)
		for j := range out {
			out[j] = Index{I: i, J: j}
		}
	case PathSide:
		if len(b.Path) == 0 {
			return nil, fmt.Errorf("boundary path is empty")
		}
		for _, p := range b.Path {
			if p.I < 0 || p.I >= nx || p.J < 0 || p.J >= ny {
				return nil, fmt.Errorf("path index (%d, %d) outside grid %dx%d", p.I, p.J, nx, ny)
			}
		}
		out = append(out, b.Path...)
	default:
		return nil, fmt.Errorf("unknown boundary side %q", b.Side)
	}
	return out, nil
}

// Window returns the smallest window holding every index of the spec.
func (b BoundarySpec) Window(ny, nx int) (Window, error) {
	idx, err := b.Indices(ny, nx)
	if err != nil {
		return Window{}, err
	}
	minI, minJ, maxI, maxJ := idx[0].I, idx[0].J, idx[0].I, idx[0].J
	for _, p := range idx[1:] {
		minI, maxI = min(minI, p.I), max(maxI, p.I)
		minJ, maxJ = min(minJ, p.J), max(maxJ, p.J)
	}
	return Window{J0: minJ, I0: minI, NY: maxJ - minJ + 1, NX: maxI - minI + 1}, nil
}

// AlongX reports whether the boundary runs along the model x direction.
func (b BoundarySpec) AlongX() bool {
	return b.Side != East && b.Side != West
}

// SegmentVariable is one variable of a boundary segment, shaped (t, z, n).
type SegmentVariable struct {
	Name     string
	Units    string
	LongName string
	Attrs    map[string]string
	Layered  bool // Has a vertical dimension.
	NZ       int  // 1 for surface fields.
	Data     []float64
}

// BoundarySegment is an along-boundary slice of one or more fields.
type BoundarySegment struct {
	Number    int
	Boundary  BoundarySpec
	Times     []time.Time
	Lon, Lat  []float64
	Vertical  *VerticalGrid
	Variables []SegmentVariable
}

// ID returns the model segment identifier, e.g. "segment_001".
func (s *BoundarySegment) ID() string { return SegmentID(s.Number) }

// Len returns the number of along-boundary points.
func (s *BoundarySegment) Len() int { return len(s.Lon) }

// Variable returns the named variable, if present.
func (s *BoundarySegment) Variable(name string) (*SegmentVariable, bool) {
	for i := range s.Variables {
		if s.Variables[i].Name == name {
			return &s.Variables[i], true
		}
	}
	return nil, false
}

// SegmentID formats a segment number the way the model expects.
func SegmentID(n int) string { return fmt.Sprintf("segment_%03d", n) }
