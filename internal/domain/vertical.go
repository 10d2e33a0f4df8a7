package domain

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// VerticalConfig holds the layering parameters of an experiment.
type VerticalConfig struct {
	Layers   int     // Number of layers.
	Ratio    float64 // Ratio of the thickest to the thinnest layer. Negative flips the profile.
	MaxDepth float64 // Target domain depth in metres.
	MinDz    float64 // Initial guess for the thinnest layer; zero uses a default.
}

// VerticalGrid is an ordered set of layer interfaces, depth positive down.
type VerticalGrid struct {
	Interfaces []float64 // len Layers+1, Interfaces[0] == 0.
	Thickness  []float64 // len Layers.
	Midpoints  []float64 // len Layers.
}

// Layers returns the number of layers.
func (v *VerticalGrid) Layers() int { return len(v.Thickness) }

// NewStretchedVerticalGrid builds a tanh-stretched grid from config and
// checks its invariants.
func NewStretchedVerticalGrid(cfg VerticalConfig) (*VerticalGrid, error) {
	if cfg.Layers < 1 {
		return nil, fmt.Errorf("layer count must be positive, got %d", cfg.Layers)
	}
	if cfg.MaxDepth <= 0 {
		return nil, fmt.Errorf("max depth must be positive, got %g", cfg.MaxDepth)
	}
	if cfg.Ratio == 0 {
		return nil, fmt.Errorf("thickness ratio must be non-zero")
	}
	dz := stretchedThickness(cfg.Layers, cfg.Ratio, cfg.MaxDepth, cfg.MinDz)
	return NewVerticalGrid(dz, cfg.MaxDepth)
}

// NewVerticalGrid builds a grid from layer thicknesses. The deepest
// interface must reach maxDepth.
func NewVerticalGrid(thickness []float64, maxDepth float64) (*VerticalGrid, error) {
	if len(thickness) == 0 {
		return nil, fmt.Errorf("vertical grid needs at least one layer")
	}
	interfaces := make([]float64, len(thickness)+1)
	floats.CumSum(interfaces[1:], thickness)
	for k := 1; k < len(interfaces); k++ {
		if !(interfaces[k] > interfaces[k-1]) {
			return nil, fmt.Errorf("interfaces must be strictly increasing: z[%d]=%g, z[%d]=%g",
				k-1, interfaces[k-1], k, interfaces[k])
		}
	}
	// Absorb rounding so the bottom sits exactly at maxDepth when it is within tolerance.
	last := len(interfaces) - 1
	if interfaces[last] < maxDepth {
		if maxDepth-interfaces[last] > 1e-6*maxDepth {
			return nil, fmt.Errorf("deepest interface %.3f is shallower than max depth %.3f", interfaces[last], maxDepth)
		}
		interfaces[last] = maxDepth
	}
	dz := make([]float64, len(thickness))
	mid := make([]float64, len(thickness))
	for k := range dz {
		dz[k] = interfaces[k+1] - interfaces[k]
		mid[k] = 0.5 * (interfaces[k] + interfaces[k+1])
	}
	return &VerticalGrid{Interfaces: interfaces, Thickness: dz, Midpoints: mid}, nil
}

// stretchedThickness returns n thicknesses summing to target, following
//
//	dz_k = m + ½(|r|m − m)(1 + tanh(2π(k − n/2)/n))
//
// with m rescaled until the sum matches target.
func stretchedThickness(n int, ratio, target, minDz float64) []float64 {
	if minDz <= 0 {
		minDz = 1e-4
	}
	profile := make([]float64, n)
	const tolerance = 1.0
	for iter := 0; iter < 200; iter++ {
		for k := range profile {
			arg := 2 * math.Pi * float64(k-n/2) / float64(n)
			profile[k] = minDz + 0.5*(math.Abs(ratio)*minDz-minDz)*(1+math.Tanh(arg))
		}
		tot := floats.Sum(profile)
		if math.Abs(tot-target) < tolerance {
			break
		}
		minDz *= target / tot
	}
	floats.Scale(target/floats.Sum(profile), profile)
	if ratio < 0 {
		floats.Reverse(profile)
	}
	return profile
}
