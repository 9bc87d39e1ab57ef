package render

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/helio/sungo/internal/resource"
	"github.com/helio/sungo/internal/source"
)

// Headless is a Renderer that keeps model state in memory. It backs the CLI
// and API, which report parameters instead of drawing them.
type Headless struct {
	logger *slog.Logger
	nextID atomic.Int64
	live   atomic.Int64
}

// NewHeadless returns a headless renderer.
func NewHeadless(logger *slog.Logger) *Headless {
	return &Headless{logger: logger}
}

// Live returns the number of models created and not yet disposed.
func (h *Headless) Live() int64 {
	return h.live.Load()
}

// NewModel implements Renderer.
func (h *Headless) NewModel(ctx context.Context, p Params, tex *resource.Texture, mesh *resource.Mesh) (Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if tex == nil {
		return nil, fmt.Errorf("render: nil texture")
	}

	m := &HeadlessModel{
		id:       h.nextID.Add(1),
		geometry: p.Geometry(),
		owner:    h,
	}
	switch v := p.(type) {
	case PlaneParams:
		m.plane = PlaneTransform{Opacity: 1, Texture: tex, Params: v}
	case SphereParams:
		if mesh == nil {
			return nil, fmt.Errorf("render: sphere model needs a mesh")
		}
		m.mesh = mesh
		m.sphere = SphereUniforms{Opacity: 1, Texture: tex, Params: v}
	default:
		return nil, fmt.Errorf("render: unsupported params %T", p)
	}

	h.live.Add(1)
	h.logger.Debug("model created",
		"model_id", m.id,
		"geometry", m.geometry.String(),
		"texture", tex.URL,
	)
	return m, nil
}

// HeadlessModel is the Model produced by Headless.
type HeadlessModel struct {
	id       int64
	geometry source.Geometry
	owner    *Headless
	mesh     *resource.Mesh

	mu       sync.Mutex
	plane    PlaneTransform
	sphere   SphereUniforms
	swaps    int
	disposed bool
}

// ModelState is a snapshot of a headless model.
type ModelState struct {
	ID       int64           `json:"id"`
	Geometry source.Geometry `json:"geometry"`
	Texture  string          `json:"texture"`
	Opacity  float64         `json:"opacity"`
	Params   Params          `json:"params"`
	Swaps    int             `json:"swaps"`
	Disposed bool            `json:"disposed"`
}

// State returns the current model state.
func (m *HeadlessModel) State() ModelState {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := ModelState{ID: m.id, Geometry: m.geometry, Swaps: m.swaps, Disposed: m.disposed}
	if m.geometry == source.Plane {
		s.Opacity = m.plane.Opacity
		s.Params = m.plane.Params
		if m.plane.Texture != nil {
			s.Texture = m.plane.Texture.URL
		}
	} else {
		s.Opacity = m.sphere.Opacity
		s.Params = m.sphere.Params
		if m.sphere.Texture != nil {
			s.Texture = m.sphere.Texture.URL
		}
	}
	return s
}

// SetOpacity implements Model. Values are clamped to [0, 1].
func (m *HeadlessModel) SetOpacity(v float64) {
	v = min(max(v, 0), 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plane.Opacity = v
	m.sphere.Opacity = v
}

// SwapTexture implements Model.
func (m *HeadlessModel) SwapTexture(tex *resource.Texture, p Params) error {
	if tex == nil {
		return fmt.Errorf("render: nil texture")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disposed {
		return ErrDisposed
	}
	switch v := p.(type) {
	case PlaneParams:
		if m.geometry != source.Plane {
			return fmt.Errorf("render: plane params for %s model", m.geometry)
		}
		m.plane.CopyFrom(PlaneTransform{Texture: tex, Params: v})
	case SphereParams:
		if m.geometry != source.Sphere {
			return fmt.Errorf("render: sphere params for %s model", m.geometry)
		}
		m.sphere.CopyFrom(SphereUniforms{Texture: tex, Params: v})
	default:
		return fmt.Errorf("render: unsupported params %T", p)
	}
	m.swaps++
	return nil
}

// Dispose implements Model. It is safe to call more than once.
func (m *HeadlessModel) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		return
	}
	m.disposed = true
	m.plane.Texture = nil
	m.sphere.Texture = nil
	m.mesh = nil
	m.owner.live.Add(-1)
	m.owner.logger.Debug("model disposed", "model_id", m.id)
}
