package usecase

import (
	"fmt"
	"math"

	"go.ngs.io/regional-ocean/internal/domain"
)

// rotateToGrid turns earth-relative (u, v) into components along the grid
// axes, in place. angle is the grid x-axis angle of each point in radians.
func rotateToGrid(u, v *domain.GriddedField, angle [][]float64) error {
	if u.Window != v.Window || u.NT != v.NT || u.NZ != v.NZ {
		return fmt.Errorf("cannot rotate %s and %s: shapes differ", u.Name, v.Name)
	}
	if len(angle) != u.Window.NY || (u.Window.NY > 0 && len(angle[0]) != u.Window.NX) {
		return fmt.Errorf("angle shape does not match %s window", u.Name)
	}
	nx := u.Window.NX
	for t := 0; t < u.NT; t++ {
		for z := 0; z < u.NZ; z++ {
			us, vs := u.Slice(t, z), v.Slice(t, z)
			for p := range us {
				a := angle[p/nx][p%nx]
				if a == 0 {
					continue
				}
				sin, cos := math.Sincos(a)
				ue, ve := us[p], vs[p]
				us[p] = ue*cos + ve*sin
				vs[p] = -ue*sin + ve*cos
			}
		}
	}
	return nil
}
