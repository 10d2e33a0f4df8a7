package domain

import (
	"fmt"
	"math"
)

// EarthRadiusM is the mean Earth radius used for metric grid quantities.
const EarthRadiusM = 6371000.0

// PointType identifies one of the staggered point families of an Arakawa C grid.
type PointType string

const (
	// PointQ is the cell corner (vorticity) point.
	PointQ PointType = "q"
	// PointT is the cell center (tracer) point.
	PointT PointType = "t"
	// PointU is the east/west face (zonal velocity) point.
	PointU PointType = "u"
	// PointV is the north/south face (meridional velocity) point.
	PointV PointType = "v"
)

// PointSet holds the coordinates of one point family, or a window of one.
type PointSet struct {
	Type  PointType
	Lon   [][]float64 // Lon[j][i], degrees east.
	Lat   [][]float64 // Lat[j][i], degrees north.
	Angle [][]float64 // Grid x-axis angle counter-clockwise from east, radians.
	I     [][]int     // Model i index of each point.
	J     [][]int     // Model j index of each point.
}

// Shape returns (ny, nx) of the point set.
func (p PointSet) Shape() (int, int) {
	if len(p.Lon) == 0 {
		return 0, 0
	}
	return len(p.Lon), len(p.Lon[0])
}

// Len is the number of points.
func (p PointSet) Len() int {
	ny, nx := p.Shape()
	return ny * nx
}

// HorizontalGrid is a curvilinear supergrid at twice the model resolution.
//
// X and Y have shape (2ny+1, 2nx+1). Even/even supergrid nodes are cell
// corners, odd/odd nodes are cell centers, and the mixed nodes are faces.
type HorizontalGrid struct {
	X       [][]float64 // Supergrid longitude.
	Y       [][]float64 // Supergrid latitude.
	AngleDx [][]float64 // Radians, same shape as X.
	Area    [][]float64 // Supergrid cell area in m², shape (2ny, 2nx). May be nil.
}

// NewHorizontalGrid validates a supergrid and fills missing metric fields.
func NewHorizontalGrid(x, y, angle, area [][]float64) (*HorizontalGrid, error) {
	if len(x) < 3 || len(x[0]) < 3 {
		return nil, fmt.Errorf("supergrid must be at least 3x3, got %dx%d", len(x), lenRow(x))
	}
	if len(x)%2 == 0 || len(x[0])%2 == 0 {
		return nil, fmt.Errorf("supergrid dimensions must be odd, got %dx%d", len(x), len(x[0]))
	}
	if err := sameShape(x, y); err != nil {
		return nil, fmt.Errorf("supergrid y: %w", err)
	}
	g := &HorizontalGrid{X: x, Y: y, AngleDx: angle, Area: area}
	if g.AngleDx == nil {
		g.AngleDx = supergridAngle(x, y)
	} else if err := sameShape(x, angle); err != nil {
		return nil, fmt.Errorf("supergrid angle_dx: %w", err)
	}
	if g.Area == nil {
		g.Area = supergridArea(x, y)
	}
	return g, nil
}

// NewRectangularSupergrid builds an equally spaced lon/lat supergrid whose
// T-cells have the given resolution in degrees.
func NewRectangularSupergrid(lonMin, lonMax, latMin, latMax, resolution float64) (*HorizontalGrid, error) {
	if resolution <= 0 {
		return nil, fmt.Errorf("resolution must be positive, got %g", resolution)
	}
	if lonMax <= lonMin || latMax <= latMin {
		return nil, fmt.Errorf("invalid domain bounds lon [%g, %g] lat [%g, %g]", lonMin, lonMax, latMin, latMax)
	}
	if latMin < -90 || latMax > 90 {
		return nil, fmt.Errorf("latitude bounds must be within [-90, 90]")
	}
	nx := int(math.Round((lonMax - lonMin) / resolution))
	ny := int(math.Round((latMax - latMin) / resolution))
	if nx < 1 || ny < 1 {
		return nil, fmt.Errorf("domain smaller than one cell at resolution %g", resolution)
	}
	half := resolution / 2
	x := make([][]float64, 2*ny+1)
	y := make([][]float64, 2*ny+1)
	for j := range x {
		x[j] = make([]float64, 2*nx+1)
		y[j] = make([]float64, 2*nx+1)
		for i := range x[j] {
			x[j][i] = lonMin + float64(i)*half
			y[j][i] = latMin + float64(j)*half
		}
	}
	return NewHorizontalGrid(x, y, nil, nil)
}

// Shape returns the model T-grid shape (ny, nx).
func (g *HorizontalGrid) Shape() (int, int) {
	return (len(g.X) - 1) / 2, (len(g.X[0]) - 1) / 2
}

// FamilyShape returns the full shape of a point family.
func (g *HorizontalGrid) FamilyShape(pt PointType) (int, int) {
	ny, nx := g.Shape()
	switch pt {
	case PointQ:
		return ny + 1, nx + 1
	case PointU:
		return ny, nx + 1
	case PointV:
		return ny + 1, nx
	default:
		return ny, nx
	}
}

// offsets returns the supergrid (row, col) offsets of a point family.
func offsets(pt PointType) (int, int) {
	switch pt {
	case PointQ:
		return 0, 0
	case PointU:
		return 1, 0
	case PointV:
		return 0, 1
	default:
		return 1, 1
	}
}

// Points extracts a full point family from the supergrid.
func (g *HorizontalGrid) Points(pt PointType) PointSet {
	ny, nx := g.FamilyShape(pt)
	return g.Window(pt, Window{NY: ny, NX: nx})
}

// Window extracts a rectangular window of a point family.
func (g *HorizontalGrid) Window(pt PointType, w Window) PointSet {
	oj, oi := offsets(pt)
	ps := PointSet{
		Type:  pt,
		Lon:   make([][]float64, w.NY),
		Lat:   make([][]float64, w.NY),
		Angle: make([][]float64, w.NY),
		I:     make([][]int, w.NY),
		J:     make([][]int, w.NY),
	}
	for j := 0; j < w.NY; j++ {
		ps.Lon[j] = make([]float64, w.NX)
		ps.Lat[j] = make([]float64, w.NX)
		ps.Angle[j] = make([]float64, w.NX)
		ps.I[j] = make([]int, w.NX)
		ps.J[j] = make([]int, w.NX)
		sj := 2*(w.J0+j) + oj
		for i := 0; i < w.NX; i++ {
			si := 2*(w.I0+i) + oi
			ps.Lon[j][i] = g.X[sj][si]
			ps.Lat[j][i] = g.Y[sj][si]
			ps.Angle[j][i] = g.AngleDx[sj][si]
			ps.I[j][i] = w.I0 + i
			ps.J[j][i] = w.J0 + j
		}
	}
	return ps
}

// Rotated reports whether any supergrid point has a non-zero grid angle.
func (g *HorizontalGrid) Rotated() bool {
	const tol = 1e-12
	for _, row := range g.AngleDx {
		for _, a := range row {
			if math.Abs(a) > tol {
				return true
			}
		}
	}
	return false
}

// supergridAngle estimates angle_dx by centered differences along i in
// local east/north metres.
func supergridAngle(x, y [][]float64) [][]float64 {
	ny, nx := len(x), len(x[0])
	angle := make([][]float64, ny)
	for j := 0; j < ny; j++ {
		angle[j] = make([]float64, nx)
		for i := 0; i < nx; i++ {
			i0, i1 := i-1, i+1
			if i0 < 0 {
				i0 = 0
			}
			if i1 >= nx {
				i1 = nx - 1
			}
			dlon := wrapDelta(x[j][i1] - x[j][i0])
			dlat := y[j][i1] - y[j][i0]
			east := dlon * math.Cos(y[j][i]*math.Pi/180)
			angle[j][i] = math.Atan2(dlat, east)
		}
	}
	return angle
}

// supergridArea approximates each supergrid cell as a spherical rectangle.
func supergridArea(x, y [][]float64) [][]float64 {
	ny, nx := len(x)-1, len(x[0])-1
	area := make([][]float64, ny)
	rad := math.Pi / 180
	for j := 0; j < ny; j++ {
		area[j] = make([]float64, nx)
		for i := 0; i < nx; i++ {
			dlon := math.Abs(wrapDelta(x[j][i+1]-x[j][i])) * rad
			lat0, lat1 := y[j][i]*rad, y[j+1][i]*rad
			area[j][i] = EarthRadiusM * EarthRadiusM * dlon * math.Abs(math.Sin(lat1)-math.Sin(lat0))
		}
	}
	return area
}

// wrapDelta maps a longitude difference into (-180, 180].
func wrapDelta(d float64) float64 {
	for d > 180 {
		d -= 360
	}
	for d <= -180 {
		d += 360
	}
	return d
}

func sameShape(a, b [][]float64) error {
	if len(a) != len(b) {
		return fmt.Errorf("row count %d does not match %d", len(b), len(a))
	}
	for j := range a {
		if len(a[j]) != len(b[j]) {
			return fmt.Errorf("row %d has %d values, expected %d", j, len(b[j]), len(a[j]))
		}
	}
	return nil
}

func lenRow(a [][]float64) int {
	if len(a) == 0 {
		return 0
	}
	return len(a[0])
}
