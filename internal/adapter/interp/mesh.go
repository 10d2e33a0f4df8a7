package interp

import (
	"fmt"
	"math"
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
)

// quad is one source mesh cell with corners ordered (j,i), (j,i+1),
// (j+1,i+1), (j+1,i). Longitudes are unwrapped around the first corner.
// The embedded polygon makes it a geom.Geom for the R-tree.
type quad struct {
	geom.Polygon

	j, i   int
	corner [4]int // Flat source indices of the corners.
	x, y   [4]float64
	bounds *geom.Bounds
}

// Bounds returns the cached corner bounds.
func (q *quad) Bounds() *geom.Bounds { return q.bounds }

// outline rebuilds the polygon and bounds from the corners.
func (q *quad) outline() {
	ring := make([]geom.Point, 0, 5)
	b := geom.NewBounds()
	for k := 0; k < 4; k++ {
		p := geom.Point{X: q.x[k], Y: q.y[k]}
		ring = append(ring, p)
		b.Extend(geom.NewBoundsPoint(p))
	}
	ring = append(ring, ring[0])
	q.Polygon = geom.Polygon{ring}
	q.bounds = b
}

func (q *quad) shifted(dx float64) *quad {
	c := *q
	for k := range c.x {
		c.x[k] += dx
	}
	c.outline()
	return &c
}

// Mesh is a spatially indexed source mesh, rectilinear or curvilinear.
// It is built once per source dataset and shared by every regridder.
type Mesh struct {
	ny, nx   int
	periodic bool
	quads    int
	tree     *rtree.Rtree
}

// NewRectilinearMesh expands 1-D lon/lat axes into a mesh.
func NewRectilinearMesh(lon, lat []float64) (*Mesh, error) {
	lon2 := make([][]float64, len(lat))
	lat2 := make([][]float64, len(lat))
	for j := range lat {
		lon2[j] = append([]float64(nil), lon...)
		lat2[j] = make([]float64, len(lon))
		for i := range lon {
			lat2[j][i] = lat[j]
		}
	}
	return NewMesh(lon2, lat2)
}

// NewMesh indexes a 2-D lon/lat mesh. Longitudes may use either the
// [-180, 180) or [0, 360) convention.
func NewMesh(lon, lat [][]float64) (*Mesh, error) {
	ny := len(lon)
	if ny < 2 || len(lon[0]) < 2 {
		return nil, fmt.Errorf("source mesh must be at least 2x2")
	}
	nx := len(lon[0])
	if len(lat) != ny {
		return nil, fmt.Errorf("latitude has %d rows, longitude has %d", len(lat), ny)
	}
	for j := 0; j < ny; j++ {
		if len(lon[j]) != nx || len(lat[j]) != nx {
			return nil, fmt.Errorf("source mesh row %d has inconsistent length", j)
		}
	}

	m := &Mesh{ny: ny, nx: nx, tree: rtree.NewTree(25, 50)}
	m.periodic = isPeriodic(lon[0])

	cols := nx - 1
	if m.periodic {
		cols = nx
	}
	for j := 0; j < ny-1; j++ {
		for i := 0; i < cols; i++ {
			i1 := i + 1
			if i1 == nx {
				i1 = 0
			}
			q, ok := newQuad(lon, lat, j, i, i1, nx)
			if !ok {
				continue
			}
			m.insert(q)
			if q.bounds.Min.X < 0 {
				m.insert(q.shifted(360))
			}
			if q.bounds.Max.X >= 360 {
				m.insert(q.shifted(-360))
			}
		}
	}
	if m.quads == 0 {
		return nil, fmt.Errorf("source mesh has no valid cells")
	}
	return m, nil
}

// Shape returns (ny, nx) of the source mesh.
func (m *Mesh) Shape() (int, int) { return m.ny, m.nx }

// Periodic reports whether the mesh wraps around the globe in longitude.
func (m *Mesh) Periodic() bool { return m.periodic }

func (m *Mesh) insert(q *quad) {
	m.tree.Insert(q)
	m.quads++
}

func newQuad(lon, lat [][]float64, j, i, i1, nx int) (*quad, bool) {
	q := &quad{j: j, i: i}
	js := [4]int{j, j, j + 1, j + 1}
	is := [4]int{i, i1, i1, i}
	ref := NormalizeLon360(lon[j][i])
	for k := 0; k < 4; k++ {
		x, y := lon[js[k]][is[k]], lat[js[k]][is[k]]
		if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
			return nil, false
		}
		q.x[k] = unwrapNear(x, ref)
		q.y[k] = y
		q.corner[k] = js[k]*nx + is[k]
	}
	q.outline()
	return q, true
}

// isPeriodic detects a row whose last column is one spacing short of the first.
func isPeriodic(row []float64) bool {
	n := len(row)
	if n < 3 {
		return false
	}
	spacing := math.Abs(unwrapNear(row[1], row[0]) - row[0])
	if spacing == 0 {
		return false
	}
	span := 0.0
	for i := 1; i < n; i++ {
		span += math.Abs(unwrapNear(row[i], row[i-1]) - row[i-1])
	}
	gap := 360 - span
	return gap > 1e-6*spacing && gap <= 1.5*spacing
}

// locate finds the cell holding (lon, lat) and its bilinear weights.
func (m *Mesh) locate(lon, lat float64) (idx [4]int, w [4]float64, ok bool) {
	x := NormalizeLon360(lon)
	const eps = 1e-9
	hits := m.tree.SearchIntersect(rtree.ToRect(geom.Point{X: x, Y: lat}, eps))
	cands := make([]*quad, 0, len(hits))
	for _, h := range hits {
		cands = append(cands, h.(*quad))
	}
	// Deterministic choice when the point sits on a shared edge.
	sort.Slice(cands, func(a, b int) bool {
		if cands[a].j != cands[b].j {
			return cands[a].j < cands[b].j
		}
		if cands[a].i != cands[b].i {
			return cands[a].i < cands[b].i
		}
		return cands[a].x[0] < cands[b].x[0]
	})
	for _, q := range cands {
		s, t, inside := invertBilinear(q, x, lat)
		if !inside {
			continue
		}
		w = [4]float64{(1 - s) * (1 - t), s * (1 - t), s * t, (1 - s) * t}
		return q.corner, w, true
	}
	return idx, w, false
}

// invertBilinear solves P(s, t) = (x, y) on a quad with Newton iterations.
func invertBilinear(q *quad, x, y float64) (float64, float64, bool) {
	s, t := 0.5, 0.5
	const tol = 1e-12
	for iter := 0; iter < 25; iter++ {
		px := (1-s)*(1-t)*q.x[0] + s*(1-t)*q.x[1] + s*t*q.x[2] + (1-s)*t*q.x[3]
		py := (1-s)*(1-t)*q.y[0] + s*(1-t)*q.y[1] + s*t*q.y[2] + (1-s)*t*q.y[3]
		fx, fy := px-x, py-y
		if math.Abs(fx) < tol && math.Abs(fy) < tol {
			break
		}
		dxs := (1-t)*(q.x[1]-q.x[0]) + t*(q.x[2]-q.x[3])
		dys := (1-t)*(q.y[1]-q.y[0]) + t*(q.y[2]-q.y[3])
		dxt := (1-s)*(q.x[3]-q.x[0]) + s*(q.x[2]-q.x[1])
		dyt := (1-s)*(q.y[3]-q.y[0]) + s*(q.y[2]-q.y[1])
		det := dxs*dyt - dxt*dys
		if det == 0 {
			return 0, 0, false
		}
		s -= (fx*dyt - fy*dxt) / det
		t -= (fy*dxs - fx*dys) / det
	}
	const edge = 1e-9
	if s < -edge || s > 1+edge || t < -edge || t > 1+edge {
		return 0, 0, false
	}
	return clamp01(s), clamp01(t), true
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
