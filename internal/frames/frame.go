// Package frames holds the time-indexed image set shown on one solar model.
//
// A Store is populated once, asynchronously, from a range query. While it is
// Loading the frame list is private; it is published in full when the store
// turns Ready and never changes afterwards. Selection is nearest-in-time over
// the published list in query order, so ties go to the earlier frame.
package frames

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/helio/sungo/internal/helioviewer"
	"github.com/helio/sungo/internal/metadata"
	"github.com/helio/sungo/internal/render"
	"github.com/helio/sungo/internal/resource"
	"github.com/helio/sungo/internal/source"
)

var (
	// ErrNoFrames is the population error when a query returns no images.
	ErrNoFrames = errors.New("frames: no images found for range")
	// ErrNotReady is returned by SetTime before the store is Ready.
	ErrNotReady = errors.New("frames: store not ready")
	// ErrDisposed is returned after Dispose.
	ErrDisposed = errors.New("frames: store disposed")
)

// State is a store's population state.
type State int

const (
	Loading State = iota
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Fetcher finds images and their headers. *helioviewer.Client satisfies it.
type Fetcher interface {
	QueryImages(ctx context.Context, source int, start, end time.Time, cadence time.Duration) ([]helioviewer.Image, error)
	FetchHeader(ctx context.Context, id int64, override time.Time) (metadata.Header, error)
	ImageURL(id int64, scale float64, format string) string
}

// Deps are the collaborators shared by every store of a process.
type Deps struct {
	Fetcher  Fetcher
	Textures *resource.Cache[*resource.Texture]
	Meshes   *resource.Cache[*resource.Mesh]
	Renderer render.Renderer
	// ModelPath is the mesh key for sphere sources.
	ModelPath string
	Logger    *slog.Logger
}

// Options select the images a store shows.
type Options struct {
	Source  int
	Start   time.Time
	End     time.Time
	Cadence time.Duration
	// Quality defaults to source.Default when zero.
	Quality source.Quality
}

// Frame is one loaded image.
type Frame struct {
	ID        int64
	Timestamp time.Time
	URL       string
	Info      helioviewer.ImageInfo
	Metadata  *metadata.Metadata
	Texture   *resource.Texture
}

// Info identifies a frame.
type Info struct {
	ID   int64     `json:"id"`
	Date time.Time `json:"date"`
}

// DateRange spans the first and last frame in store order.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}
