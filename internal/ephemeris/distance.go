package ephemeris

import (
	"math"
	"time"
)

const (
	// SolarRadiusMeters is the photospheric solar radius (IAU 2015 nominal).
	SolarRadiusMeters = 695700e3

	// AUMeters is the astronomical unit in meters.
	AUMeters = 149597870700.0

	// MeanEarthDistanceSolarRadii is 1 AU expressed in solar radii.
	MeanEarthDistanceSolarRadii = AUMeters / SolarRadiusMeters

	deg2rad = math.Pi / 180
)

// EarthDistanceAU returns the Earth–Sun radius vector in AU at ms (Unix
// epoch milliseconds).
//
// Low-order series in Julian centuries since 1900 (mean anomaly, orbital
// eccentricity and the equation of centre). Good to a few parts in 1e5;
// not suitable for sub-arcsecond geometry.
func EarthDistanceAU(ms int64) float64 {
	t := JulianCenturies(MJDFromMillis(ms), Epoch1900)

	// Mean anomaly (deg).
	mna := 358.47583 + 35999.04975*t - 0.000150*t*t - 0.0000033*t*t*t
	// Eccentricity of orbit.
	e := 0.01675104 - 0.0000418*t - 0.000000126*t*t
	// Equation of centre (deg).
	c := (1.919460-0.004789*t-0.000014*t*t)*math.Sin(mna*deg2rad) +
		(0.020094-0.000100*t)*math.Sin(2*mna*deg2rad) +
		0.000293*math.Sin(3*mna*deg2rad)
	// True anomaly (deg).
	ta := mna + c

	return 1.0000002 * (1 - e*e) / (1 + e*math.Cos(ta*deg2rad))
}

// EarthDistanceMillis returns the Earth–Sun distance in solar radii at ms
// (Unix epoch milliseconds).
func EarthDistanceMillis(ms int64) float64 {
	return EarthDistanceAU(ms) * MeanEarthDistanceSolarRadii
}

// EarthDistance returns the Earth–Sun distance in solar radii at t.
func EarthDistance(t time.Time) float64 {
	return EarthDistanceMillis(t.UnixMilli())
}

// AngularRadiusArcsec returns the apparent radius, in arcseconds, of a sphere
// seen from distance measured in the sphere's radii.
func AngularRadiusArcsec(distance float64) float64 {
	return math.Atan2(1, distance) / deg2rad * 3600
}
