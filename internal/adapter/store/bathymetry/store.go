package bathymetry

import (
	"math"

	"go.ngs.io/regional-ocean/internal/domain"
)

// Store provides seafloor depth on destination points.
type Store interface {
	// Depth returns positive-down depth at every point of ps. Land is 0 and
	// points the source does not cover are NaN.
	Depth(ps domain.PointSet) ([][]float64, error)

	// Close releases any resources held by the store.
	Close() error
}

// OceanMask flattens depth in (j, i) order and marks points at least
// minDepth deep. Missing depths count as land.
func OceanMask(depth [][]float64, minDepth float64) []bool {
	var mask []bool
	for _, row := range depth {
		for _, d := range row {
			mask = append(mask, !math.IsNaN(d) && d > 0 && d >= minDepth)
		}
	}
	return mask
}
