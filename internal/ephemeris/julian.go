// Package ephemeris holds the small amount of solar-system geometry needed to
// place observatory images: time scale conversions and an analytic
// Earth–Sun distance model.
package ephemeris

import (
	"math"
	"time"
)

const (
	// mjdZero is the Julian Date of Modified Julian Date zero.
	mjdZero = 2400000.5

	// unixEpochMJD is the Modified Julian Date of 1970-01-01T00:00:00Z.
	unixEpochMJD = 2440587.5 - mjdZero

	// Epoch1900 is the Julian Date of the 1900 January 0.5 reference epoch
	// used by the Newcomb-style solar series.
	Epoch1900 = 2415020.0

	dayMillis      = 86400000.0
	daysPerCentury = 36525.0
)

// JulianDate converts a time.Time (UTC) to Julian Date using the calendar
// algorithm, valid for dates after March 1, 4801 BC.
func JulianDate(t time.Time) float64 {
	t = t.UTC()
	y := float64(t.Year())
	m := float64(t.Month())
	d := float64(t.Day())
	h := float64(t.Hour())
	min := float64(t.Minute())
	s := float64(t.Second()) + float64(t.Nanosecond())/1e9

	// Jan/Feb count as months 13/14 of the previous year.
	if m <= 2 {
		y -= 1
		m += 12
	}

	A := math.Floor(y / 100)
	B := 2 - A + math.Floor(A/4)

	jd := math.Floor(365.25*(y+4716)) + math.Floor(30.6001*(m+1)) + d + B - 1524.5
	jd += (h + min/60.0 + s/3600.0) / 24.0

	return jd
}

// MJDFromMillis converts Unix epoch milliseconds to a Modified Julian Date.
func MJDFromMillis(ms int64) float64 {
	return unixEpochMJD + float64(ms)/dayMillis
}

// MJD converts t to a Modified Julian Date with millisecond resolution.
func MJD(t time.Time) float64 {
	return MJDFromMillis(t.UnixMilli())
}

// JulianCenturies returns the number of Julian centuries between the
// reference epoch epochJD (a Julian Date) and mjd.
func JulianCenturies(mjd, epochJD float64) float64 {
	return (mjdZero - epochJD + mjd) / daysPerCentury
}
