package domain

import (
	"math"
	"sort"
	"strings"
)

// StandardConstituents maps tidal constituents to angular speeds (deg/hour).
// Reference: https://www.pmel.noaa.gov/pubs/PDF/park2589/park2589.pdf
var StandardConstituents = map[string]float64{
	// Semidiurnal.
	"M2": 28.9841042,
	"S2": 30.0000000,
	"N2": 28.4397295,
	"K2": 30.0821373,

	// Diurnal.
	"K1": 15.0410686,
	"O1": 13.9430356,
	"P1": 14.9589314,
	"Q1": 13.3986609,

	// Shallow water.
	"M4":  57.9682084,
	"MN4": 57.4238337,
	"MS4": 58.9841042,

	// Long period.
	"MF": 1.0980331,
	"MM": 0.5443747,
}

// ConstituentSpeed returns the angular speed of a constituent.
func ConstituentSpeed(name string) (float64, bool) {
	speed, ok := StandardConstituents[strings.ToUpper(name)]
	return speed, ok
}

// ConstituentFrequency returns the angular frequency in rad/s.
func ConstituentFrequency(name string) (float64, bool) {
	speed, ok := ConstituentSpeed(name)
	if !ok {
		return 0, false
	}
	return speed * math.Pi / 180 / 3600, true
}

// KnownConstituents filters names to known constituents, upper-cased and sorted.
func KnownConstituents(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		u := strings.ToUpper(strings.TrimSpace(n))
		if _, ok := StandardConstituents[u]; ok && !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	sort.Strings(out)
	return out
}

// TidalSegment holds tidal elevation amplitude and phase along a boundary.
type TidalSegment struct {
	Number       int
	Boundary     BoundarySpec
	Constituents []string
	Lon, Lat     []float64
	Amplitude    [][]float64 // [constituent][point], metres.
	Phase        [][]float64 // [constituent][point], radians.
}

// Deg2Rad converts degrees to radians.
func Deg2Rad(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// Rad2Deg converts radians to degrees.
func Rad2Deg(rad float64) float64 {
	return rad * 180.0 / math.Pi
}
