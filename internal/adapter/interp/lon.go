package interp

import "math"

// NormalizeLon360 maps arbitrary degree longitudes into the [0, 360) range.
func NormalizeLon360(lon float64) float64 {
	lon = math.Mod(lon, 360.0)
	if lon < 0 {
		lon += 360.0
	}
	if lon >= 360.0 {
		lon = 0
	}
	return lon
}

// LonAxisRequiresWrap reports whether a 1-D longitude axis uses the 0–360° convention.
func LonAxisRequiresWrap(lons []float64) bool {
	if len(lons) == 0 {
		return false
	}
	minVal := lons[0]
	maxVal := lons[len(lons)-1]
	if minVal > maxVal {
		minVal, maxVal = maxVal, minVal
	}
	return minVal >= 0 && maxVal > 180
}

// NormalizeLonForAxis maps lon onto the convention of a 1-D longitude axis.
func NormalizeLonForAxis(lons []float64, lon float64) float64 {
	if LonAxisRequiresWrap(lons) {
		return NormalizeLon360(lon)
	}
	for lon >= 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return lon
}

// unwrapNear returns lon shifted by a multiple of 360 to be within 180° of ref.
func unwrapNear(lon, ref float64) float64 {
	d := math.Mod(lon-ref, 360)
	if d > 180 {
		d -= 360
	} else if d <= -180 {
		d += 360
	}
	return ref + d
}
