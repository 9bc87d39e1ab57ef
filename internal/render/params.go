// Package render turns image metadata into model placement parameters and
// defines the boundary to the drawing pipeline.
package render

import (
	"errors"
	"fmt"

	"github.com/helio/sungo/internal/helioviewer"
	"github.com/helio/sungo/internal/metadata"
	"github.com/helio/sungo/internal/source"
)

// Params are the placement parameters of one frame. The concrete type is
// PlaneParams or SphereParams.
type Params interface {
	Geometry() source.Geometry
}

// PlaneParams size and position a flat model, in solar radii.
type PlaneParams struct {
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	XOffset float64 `json:"x_offset"`
	YOffset float64 `json:"y_offset"`
}

// Geometry returns source.Plane.
func (PlaneParams) Geometry() source.Geometry { return source.Plane }

// SphereParams are the texture-space uniforms of a hemisphere model.
type SphereParams struct {
	Scale            float64    `json:"scale"`
	Aspect           float64    `json:"aspect"`
	XOffset          float64    `json:"x_offset"`
	YOffset          float64    `json:"y_offset"`
	RotationDegrees  float64    `json:"rotation_degrees"`
	CenterOfRotation [2]float64 `json:"center_of_rotation"`
}

// Geometry returns source.Sphere.
func (SphereParams) Geometry() source.Geometry { return source.Sphere }

// ErrZeroRadius is returned for a plane frame whose reported solar radius is
// zero.
var ErrZeroRadius = errors.New("render: image reports zero solar radius")

// Build computes the parameters for one frame. Metadata errors are returned
// unwrapped so callers can match them with errors.As.
func Build(md *metadata.Metadata, info helioviewer.ImageInfo, g source.Geometry) (Params, error) {
	switch g {
	case source.Plane:
		return buildPlane(md, info)
	case source.Sphere:
		return buildSphere(md, info)
	default:
		return nil, fmt.Errorf("render: unknown geometry %d", int(g))
	}
}

func buildPlane(md *metadata.Metadata, info helioviewer.ImageInfo) (Params, error) {
	if info.SolarRadius == 0 {
		return nil, ErrZeroRadius
	}
	x, err := md.SceneOffsetX()
	if err != nil {
		return nil, err
	}
	y, err := md.SceneOffsetY()
	if err != nil {
		return nil, err
	}
	return PlaneParams{
		Width:   info.Width / info.SolarRadius,
		Height:  info.Height / info.SolarRadius,
		XOffset: x,
		YOffset: y,
	}, nil
}

func buildSphere(md *metadata.Metadata, info helioviewer.ImageInfo) (Params, error) {
	scale, err := md.Scale()
	if err != nil {
		return nil, err
	}
	w, err := md.Width()
	if err != nil {
		return nil, err
	}
	h, err := md.Height()
	if err != nil {
		return nil, err
	}
	x, err := md.GLOffsetX()
	if err != nil {
		return nil, err
	}
	y, err := md.GLOffsetY()
	if err != nil {
		return nil, err
	}
	cor, err := md.CenterOfRotation()
	if err != nil {
		return nil, err
	}
	return SphereParams{
		Scale:            scale,
		Aspect:           w / h,
		XOffset:          x,
		YOffset:          y,
		RotationDegrees:  info.SolarRotation,
		CenterOfRotation: cor,
	}, nil
}
