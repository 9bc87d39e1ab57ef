package render

import (
	"context"
	"errors"

	"github.com/helio/sungo/internal/resource"
)

// ErrDisposed is returned by operations on a disposed model.
var ErrDisposed = errors.New("render: model disposed")

// Renderer builds models. Implementations own the drawing pipeline.
type Renderer interface {
	// NewModel creates a model showing tex placed by p. mesh is nil for
	// plane geometry.
	NewModel(ctx context.Context, p Params, tex *resource.Texture, mesh *resource.Mesh) (Model, error)
}

// Model is one textured solar model.
type Model interface {
	SetOpacity(v float64)
	// SwapTexture replaces the texture and placement. p must have the
	// geometry the model was built with.
	SwapTexture(tex *resource.Texture, p Params) error
	Dispose()
}

// SphereUniforms is the uniform block of a hemisphere model.
type SphereUniforms struct {
	Opacity  float64
	Backside bool
	Texture  *resource.Texture
	Params   SphereParams
}

// CopyFrom takes the texture and placement from src and keeps the receiver's
// opacity and backside flag, which belong to the model rather than the frame.
func (u *SphereUniforms) CopyFrom(src SphereUniforms) {
	u.Texture = src.Texture
	u.Params.Scale = src.Params.Scale
	u.Params.Aspect = src.Params.Aspect
	u.Params.XOffset = src.Params.XOffset
	u.Params.YOffset = src.Params.YOffset
	u.Params.RotationDegrees = src.Params.RotationDegrees
	u.Params.CenterOfRotation = src.Params.CenterOfRotation
}

// PlaneTransform is the placement state of a plane model.
type PlaneTransform struct {
	Opacity float64
	Texture *resource.Texture
	Params  PlaneParams
}

// CopyFrom takes the texture and geometry from src and keeps the opacity.
func (t *PlaneTransform) CopyFrom(src PlaneTransform) {
	t.Texture = src.Texture
	t.Params.Width = src.Params.Width
	t.Params.Height = src.Params.Height
	t.Params.XOffset = src.Params.XOffset
	t.Params.YOffset = src.Params.YOffset
}
