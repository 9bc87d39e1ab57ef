package ephemeris

import (
	"math"
	"testing"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

// TestJulianDate verifies the calendar algorithm against known values.
func TestJulianDate(t *testing.T) {
	tests := []struct {
		name     string
		time     time.Time
		expected float64
	}{
		{
			name:     "J2000.0 epoch",
			time:     time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC),
			expected: 2451545.0,
		},
		{
			name:     "Unix epoch",
			time:     time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
			expected: 2440587.5,
		},
		{
			name:     "1900 reference epoch",
			time:     time.Date(1899, 12, 31, 12, 0, 0, 0, time.UTC),
			expected: Epoch1900,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := JulianDate(tt.time)
			if diff := math.Abs(got - tt.expected); diff > 1e-6 {
				t.Errorf("JulianDate(%v) = %.10f, want %.10f (diff=%.2e)", tt.time, got, tt.expected, diff)
			}
		})
	}
}

// TestMJDAgainstReference cross-checks the fixed-offset millisecond
// conversion against the calendar algorithm and go-satellite's JDay.
func TestMJDAgainstReference(t *testing.T) {
	times := []time.Time{
		time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(1999, 12, 31, 23, 59, 59, 0, time.UTC),
		time.Date(2010, 6, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 18, 11, 10, 16, 0, time.UTC),
		time.Date(2026, 2, 6, 4, 1, 0, 0, time.UTC),
	}

	for _, tm := range times {
		t.Run(tm.Format(time.RFC3339), func(t *testing.T) {
			jd := MJD(tm) + mjdZero

			if diff := math.Abs(jd - JulianDate(tm)); diff > 1e-6 {
				t.Errorf("MJD+offset = %.8f, JulianDate = %.8f (diff=%.2e)", jd, JulianDate(tm), diff)
			}

			ref := satellite.JDay(tm.Year(), int(tm.Month()), tm.Day(), tm.Hour(), tm.Minute(), tm.Second())
			if diff := math.Abs(jd - ref); diff > 1e-6 {
				t.Errorf("MJD+offset = %.8f, go-satellite JDay = %.8f (diff=%.2e)", jd, ref, diff)
			}
		})
	}
}

func TestMJDFromMillisUnixEpoch(t *testing.T) {
	if got := MJDFromMillis(0); got != 40587 {
		t.Errorf("MJDFromMillis(0) = %v, want 40587", got)
	}
	if got := MJDFromMillis(86400000); got != 40588 {
		t.Errorf("MJDFromMillis(1 day) = %v, want 40588", got)
	}
}

func TestJulianCenturies(t *testing.T) {
	// 1900 January 0.5 is zero centuries from itself.
	mjd := Epoch1900 - mjdZero
	if got := JulianCenturies(mjd, Epoch1900); math.Abs(got) > 1e-12 {
		t.Errorf("JulianCenturies at epoch = %v, want 0", got)
	}
	if got := JulianCenturies(mjd+daysPerCentury, Epoch1900); math.Abs(got-1) > 1e-12 {
		t.Errorf("JulianCenturies one century later = %v, want 1", got)
	}
}

// TestEarthDistanceBounds sweeps the 20th and 21st centuries and checks the
// distance stays within 0.98–1.02 AU.
func TestEarthDistanceBounds(t *testing.T) {
	lo := 0.98 * MeanEarthDistanceSolarRadii
	hi := 1.02 * MeanEarthDistanceSolarRadii

	start := time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2099, 12, 31, 0, 0, 0, 0, time.UTC)
	for tm := start; tm.Before(end); tm = tm.Add(17 * 24 * time.Hour) {
		d := EarthDistance(tm)
		if d < lo || d > hi {
			t.Fatalf("EarthDistance(%s) = %.4f solar radii, outside [%.4f, %.4f]", tm.Format(time.DateOnly), d, lo, hi)
		}
	}
}

// TestEarthDistancePerihelionAphelion checks the 2024 apsides against their
// published distances (0.98331 AU on Jan 3, 1.01673 AU on Jul 5).
func TestEarthDistancePerihelionAphelion(t *testing.T) {
	tests := []struct {
		name string
		time time.Time
		au   float64
	}{
		{"perihelion 2024", time.Date(2024, 1, 3, 0, 39, 0, 0, time.UTC), 0.98331},
		{"aphelion 2024", time.Date(2024, 7, 5, 5, 6, 0, 0, time.UTC), 1.01673},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EarthDistanceAU(tt.time.UnixMilli())
			if diff := math.Abs(got - tt.au); diff > 5e-4 {
				t.Errorf("EarthDistanceAU = %.6f, want %.5f (diff=%.2e)", got, tt.au, diff)
			}
		})
	}

	peri := EarthDistance(tests[0].time)
	aph := EarthDistance(tests[1].time)
	if peri >= aph {
		t.Errorf("perihelion distance %.4f should be less than aphelion %.4f", peri, aph)
	}
}

func TestEarthDistanceDeterministic(t *testing.T) {
	tm := time.Date(2024, 1, 18, 11, 10, 16, 0, time.UTC)
	a := EarthDistance(tm)
	b := EarthDistanceMillis(tm.UnixMilli())
	if a != b {
		t.Errorf("EarthDistance not deterministic: %v != %v", a, b)
	}
}

func TestAngularRadiusArcsec(t *testing.T) {
	// Nominal solar radius at 1 AU.
	if got := AngularRadiusArcsec(MeanEarthDistanceSolarRadii); math.Abs(got-959.22) > 0.01 {
		t.Errorf("AngularRadiusArcsec(1 AU) = %.3f, want 959.22", got)
	}
	if got := AngularRadiusArcsec(1); math.Abs(got-45*3600) > 1e-6 {
		t.Errorf("AngularRadiusArcsec(1) = %v, want 162000", got)
	}
}
