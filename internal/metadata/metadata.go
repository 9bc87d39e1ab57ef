// Package metadata derives placement quantities from an image's calibration
// header. Every accessor recomputes from the immutable Header.
//
// Offsets use the CRPIX-0.5 convention: FITS reference pixels are 1-based
// pixel centres, so CRPIX-0.5 is the reference position measured from the
// image edge.
package metadata

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/helio/sungo/internal/ephemeris"
	"github.com/helio/sungo/internal/metrics"
)

// heliocentricFraming relates the on-model hemisphere size to the image
// framing: the textured model spans four solar radii edge to edge.
const heliocentricFraming = 4

// Metadata is a typed view over one Header.
type Metadata struct {
	header Header
	logger *slog.Logger
}

// New wraps h. Fallback diagnostics are written to logger.
func New(h Header, logger *slog.Logger) *Metadata {
	return &Metadata{header: h, logger: logger}
}

// Header returns the wrapped header.
func (m *Metadata) Header() Header {
	return m.header
}

// Required returns the numeric value of tag, or a *MissingTagError if the
// tag is absent, unparsable or not finite.
func (m *Metadata) Required(tag string) (float64, error) {
	raw, ok := m.header.Lookup(tag)
	if !ok || raw == "" {
		return 0, &MissingTagError{Tag: tag}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &MissingTagError{Tag: tag, Value: raw, Err: err}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &MissingTagError{Tag: tag, Value: raw, Err: ErrNotFinite}
	}
	return v, nil
}

// nonZero is Required for values used as divisors.
func (m *Metadata) nonZero(tag string) (float64, error) {
	v, err := m.Required(tag)
	if err != nil {
		return 0, err
	}
	if v == 0 {
		raw, _ := m.header.Lookup(tag)
		return 0, &MissingTagError{Tag: tag, Value: raw, Err: ErrZeroValue}
	}
	return v, nil
}

// positive is Required for image dimensions.
func (m *Metadata) positive(tag string) (float64, error) {
	v, err := m.Required(tag)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		raw, _ := m.header.Lookup(tag)
		return 0, &MissingTagError{Tag: tag, Value: raw, Err: ErrNotPositive}
	}
	return v, nil
}

// Optional returns the numeric value of tag, or def with a warning when the
// tag is absent or unparsable.
func (m *Metadata) Optional(tag string, def float64) float64 {
	v, err := m.Required(tag)
	if err != nil {
		m.logger.Warn("header tag unavailable, using default",
			"tag", tag,
			"default", def,
			"error", err,
		)
		return def
	}
	return v
}

// Date returns the override supplied with the header, else DATE_OBS.
func (m *Metadata) Date() (time.Time, error) {
	if t, ok := m.header.Override(); ok {
		return t, nil
	}
	raw, ok := m.header.Lookup(TagDateObs)
	if !ok || raw == "" {
		return time.Time{}, ErrMissingDate
	}
	t, err := ParseDate(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrMissingDate, err)
	}
	return t, nil
}

// DistanceToSun returns the observer–Sun distance in solar radii. DSUN_OBS
// is used when present and non-zero, otherwise DSUN is required.
func (m *Metadata) DistanceToSun() (float64, error) {
	meters, err := m.Required(TagDsunObs)
	if err != nil || meters == 0 {
		meters, err = m.Required(TagDsun)
		if err != nil {
			return 0, err
		}
	}
	if meters <= 0 {
		return 0, fmt.Errorf("metadata: non-positive sun distance %g m", meters)
	}
	return meters / ephemeris.SolarRadiusMeters, nil
}

// RadiusInPixels returns SOLAR_R, the apparent solar radius in pixels.
func (m *Metadata) RadiusInPixels() (float64, error) {
	return m.Required(TagSolarR)
}

// RadiusInArcsec returns the apparent solar radius in arcseconds. Tiers, first
// success wins:
//  1. angular radius at DistanceToSun
//  2. CDELT1 * SOLAR_R
//  3. angular radius at the analytic Earth–Sun distance on Date
//
// When all three fail the result is a *ComputationError listing each cause.
func (m *Metadata) RadiusInArcsec() (float64, error) {
	var causes []error

	d, err := m.DistanceToSun()
	if err == nil {
		metrics.IncRadiusTier("distance")
		return ephemeris.AngularRadiusArcsec(d), nil
	}
	causes = append(causes, fmt.Errorf("distance tier: %w", err))

	r, err := m.radiusFromPixels()
	if err == nil {
		metrics.IncRadiusTier("pixels")
		return r, nil
	}
	causes = append(causes, fmt.Errorf("pixel tier: %w", err))

	t, err := m.Date()
	if err == nil {
		metrics.IncRadiusTier("ephemeris")
		m.logger.Debug("solar radius from Earth–Sun distance model", "date", t.Format(time.RFC3339))
		return ephemeris.AngularRadiusArcsec(ephemeris.EarthDistance(t)), nil
	}
	causes = append(causes, fmt.Errorf("ephemeris tier: %w", err))

	metrics.IncRadiusTier("failed")
	return 0, &ComputationError{Quantity: "radius_in_arcsec", Causes: causes}
}

func (m *Metadata) radiusFromPixels() (float64, error) {
	cdelt1, err := m.nonZero(TagCdelt1)
	if err != nil {
		return 0, err
	}
	px, err := m.positive(TagSolarR)
	if err != nil {
		return 0, err
	}
	return cdelt1 * px, nil
}

// Width returns NAXIS1, which must be positive.
func (m *Metadata) Width() (float64, error) {
	return m.positive(TagNaxis1)
}

// Height returns NAXIS2, which must be positive.
func (m *Metadata) Height() (float64, error) {
	return m.positive(TagNaxis2)
}

// Scale returns the texture scale for the spherical model:
// min(width, height) / (4 * radiusInArcsec / CDELT1).
func (m *Metadata) Scale() (float64, error) {
	w, err := m.Width()
	if err != nil {
		return 0, err
	}
	h, err := m.Height()
	if err != nil {
		return 0, err
	}
	cdelt1, err := m.nonZero(TagCdelt1)
	if err != nil {
		return 0, err
	}
	r, err := m.RadiusInArcsec()
	if err != nil {
		return 0, err
	}
	return math.Min(w, h) / (heliocentricFraming * r / cdelt1), nil
}

// axis bundles the WCS values of one image axis.
type axis struct {
	size, crpix, crval, cdelt float64
}

func (m *Metadata) axis(sizeTag, crpixTag, crvalTag, cdeltTag string) (axis, error) {
	var a axis
	var err error
	if a.size, err = m.positive(sizeTag); err != nil {
		return a, err
	}
	if a.crpix, err = m.Required(crpixTag); err != nil {
		return a, err
	}
	if a.crval, err = m.Required(crvalTag); err != nil {
		return a, err
	}
	if a.cdelt, err = m.nonZero(cdeltTag); err != nil {
		return a, err
	}
	return a, nil
}

func (m *Metadata) xAxis() (axis, error) {
	return m.axis(TagNaxis1, TagCrpix1, TagCrval1, TagCdelt1)
}

func (m *Metadata) yAxis() (axis, error) {
	return m.axis(TagNaxis2, TagCrpix2, TagCrval2, TagCdelt2)
}

// SceneOffsetX returns the horizontal offset, in solar radii, of a plane
// model's centre from the solar centre.
func (m *Metadata) SceneOffsetX() (float64, error) {
	a, err := m.xAxis()
	if err != nil {
		return 0, err
	}
	return m.sceneOffset(a)
}

// SceneOffsetY is SceneOffsetX for the vertical axis.
func (m *Metadata) SceneOffsetY() (float64, error) {
	a, err := m.yAxis()
	if err != nil {
		return 0, err
	}
	return m.sceneOffset(a)
}

func (m *Metadata) sceneOffset(a axis) (float64, error) {
	r, err := m.RadiusInArcsec()
	if err != nil {
		return 0, err
	}
	refPix := a.crpix - 0.5
	toSolrad := func(p, ref, val float64) float64 {
		return pixel2arcsec(p, ref, val, a.cdelt) / r
	}
	return toSolrad(refPix, refPix, a.crval) - toSolrad(refPix, a.size/2, 0), nil
}

func pixel2arcsec(p, refPix, refVal, delta float64) float64 {
	return (p-refPix)*delta + refVal
}

// GLOffsetX returns the horizontal texture-space offset for a spherical
// model: (CRPIX1-0.5)/width - CRVAL1/(CDELT1*width).
func (m *Metadata) GLOffsetX() (float64, error) {
	a, err := m.xAxis()
	if err != nil {
		return 0, err
	}
	return glOffset(a), nil
}

// GLOffsetY is GLOffsetX for the vertical axis.
func (m *Metadata) GLOffsetY() (float64, error) {
	a, err := m.yAxis()
	if err != nil {
		return 0, err
	}
	return glOffset(a), nil
}

func glOffset(a axis) float64 {
	return (a.crpix-0.5)/a.size - a.crval/(a.cdelt*a.size)
}

// CenterOfRotation returns the reference pixel as a fraction of the image
// size, ((CRPIX1-0.5)/width, (CRPIX2-0.5)/height).
func (m *Metadata) CenterOfRotation() ([2]float64, error) {
	w, err := m.Width()
	if err != nil {
		return [2]float64{}, err
	}
	h, err := m.Height()
	if err != nil {
		return [2]float64{}, err
	}
	crpix1, err := m.Required(TagCrpix1)
	if err != nil {
		return [2]float64{}, err
	}
	crpix2, err := m.Required(TagCrpix2)
	if err != nil {
		return [2]float64{}, err
	}
	return [2]float64{(crpix1 - 0.5) / w, (crpix2 - 0.5) / h}, nil
}
