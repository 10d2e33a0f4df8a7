package usecase

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/cespare/xxhash/v2"

	"go.ngs.io/regional-ocean/internal/adapter/interp"
	"go.ngs.io/regional-ocean/internal/domain"
)

// meshKey identifies source coordinates by content, so a mesh read again
// for a later run or time chunk finds the weights already built.
type meshKey struct {
	ny, nx int
	sum    uint64
}

func keyOf(m *domain.SourceMesh) meshKey {
	ny, nx := m.Shape()
	d := xxhash.New()
	var buf [8]byte
	for _, coord := range [][][]float64{m.Lon, m.Lat} {
		for _, row := range coord {
			for _, v := range row {
				binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
				_, _ = d.Write(buf[:])
			}
		}
	}
	return meshKey{ny: ny, nx: nx, sum: d.Sum64()}
}

type regridKey struct {
	mesh   meshKey
	pt     domain.PointType
	window domain.Window
}

type meshEntry struct {
	once sync.Once
	mesh *interp.Mesh
	err  error
}

type regridEntry struct {
	once sync.Once
	r    *interp.Regridder
	err  error
}

// RegridderCache shares indexed meshes and regridder weights across fields
// and time steps. Each mesh and each (mesh, destination) pair is built once,
// even under concurrent use. Meshes are keyed by coordinate values.
type RegridderCache struct {
	minCoverage float64

	mu         sync.Mutex
	meshes     map[meshKey]*meshEntry
	regridders map[regridKey]*regridEntry
}

// NewRegridderCache creates an empty cache.
func NewRegridderCache(minCoverage float64) *RegridderCache {
	return &RegridderCache{
		minCoverage: minCoverage,
		meshes:      make(map[meshKey]*meshEntry),
		regridders:  make(map[regridKey]*regridEntry),
	}
}

// Get returns the regridder from src onto dest.
func (c *RegridderCache) Get(src *domain.SourceMesh, dest domain.PointSet) (*interp.Regridder, error) {
	ny, nx := dest.Shape()
	mk := keyOf(src)
	key := regridKey{mesh: mk, pt: dest.Type}
	if ny > 0 && nx > 0 {
		key.window = domain.Window{J0: dest.J[0][0], I0: dest.I[0][0], NY: ny, NX: nx}
	}

	c.mu.Lock()
	e, ok := c.regridders[key]
	if !ok {
		e = &regridEntry{}
		c.regridders[key] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		var mesh *interp.Mesh
		mesh, e.err = c.mesh(mk, src)
		if e.err != nil {
			return
		}
		e.r, e.err = interp.NewRegridder(mesh, dest, c.minCoverage)
	})
	return e.r, e.err
}

func (c *RegridderCache) mesh(key meshKey, src *domain.SourceMesh) (*interp.Mesh, error) {
	c.mu.Lock()
	e, ok := c.meshes[key]
	if !ok {
		e = &meshEntry{}
		c.meshes[key] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		e.mesh, e.err = interp.NewMesh(src.Lon, src.Lat)
	})
	return e.mesh, e.err
}

// Len returns the number of cached regridders.
func (c *RegridderCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.regridders)
}
