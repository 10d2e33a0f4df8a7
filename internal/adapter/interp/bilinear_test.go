package interp

import (
	"math"
	"testing"
)

func plane() *Grid2D {
	// f(x, y) = 2x + 3y + 1 on a 1° grid.
	g := &Grid2D{X: []float64{130, 131, 132, 133}, Y: []float64{30, 31, 32}}
	g.Values = make([][]float64, len(g.Y))
	for j, y := range g.Y {
		g.Values[j] = make([]float64, len(g.X))
		for i, x := range g.X {
			g.Values[j][i] = 2*(x-130) + 3*(y-30) + 1
		}
	}
	return g
}

func TestGrid2DInterpolateAtIsExactForPlanes(t *testing.T) {
	g := plane()
	tests := []struct {
		name string
		x, y float64
	}{
		{"corner", 130, 30},
		{"far corner", 133, 32},
		{"interior", 131.25, 30.5},
		{"edge", 132.5, 32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.InterpolateAt(tt.x, tt.y)
			if err != nil {
				t.Fatalf("InterpolateAt: %v", err)
			}
			want := 2*(tt.x-130) + 3*(tt.y-30) + 1
			if math.Abs(got-want) > 1e-12 {
				t.Errorf("f(%v, %v) = %v, want %v", tt.x, tt.y, got, want)
			}
		})
	}
}

func TestGrid2DMissingCorners(t *testing.T) {
	g := plane()
	g.Values[0][0] = math.NaN()
	// With (130, 30) missing the three remaining corners carry the value.
	got, err := g.InterpolateAt(130.5, 30.5)
	if err != nil {
		t.Fatal(err)
	}
	want := (0.25*3 + 0.25*4 + 0.25*6) / 0.75
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("renormalised = %v, want %v", got, want)
	}
	got, err = g.InterpolateAt(130, 30)
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(got) {
		t.Errorf("value at a missing node = %v, want NaN", got)
	}
}

func TestGrid2DOutsideAndInvalid(t *testing.T) {
	g := plane()
	if _, err := g.InterpolateAt(129.9, 31); err == nil {
		t.Error("x outside the grid accepted")
	}
	if _, err := g.InterpolateAt(131, 32.1); err == nil {
		t.Error("y outside the grid accepted")
	}

	bad := []*Grid2D{
		{X: []float64{0}, Y: []float64{0, 1}, Values: [][]float64{{0}, {0}}},
		{X: []float64{0, 1}, Y: []float64{0, 1}, Values: [][]float64{{0, 0}}},
		{X: []float64{1, 0}, Y: []float64{0, 1}, Values: [][]float64{{0, 0}, {0, 0}}},
		{X: []float64{0, 1}, Y: []float64{0, 1}, Values: [][]float64{{0, 0}, {0}}},
	}
	for k, b := range bad {
		if err := b.Validate(); err == nil {
			t.Errorf("grid %d accepted", k)
		}
	}
}

func TestInterpolatePair(t *testing.T) {
	re, im := plane(), plane()
	for j := range im.Values {
		for i := range im.Values[j] {
			im.Values[j][i] *= -1
		}
	}
	a, b, err := InterpolatePair(re, im, 131.5, 31.5)
	if err != nil {
		t.Fatal(err)
	}
	if a != -b || math.Abs(a-(3+4.5+1)) > 1e-12 {
		t.Errorf("pair = %v, %v", a, b)
	}
	short := &Grid2D{X: []float64{130, 131}, Y: re.Y, Values: [][]float64{{0, 0}, {0, 0}, {0, 0}}}
	if _, _, err := InterpolatePair(re, short, 130.5, 31); err == nil {
		t.Error("mismatched grids accepted")
	}
}
