package frames

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/helio/sungo/internal/metadata"
	"github.com/helio/sungo/internal/metrics"
	"github.com/helio/sungo/internal/render"
	"github.com/helio/sungo/internal/resource"
	"github.com/helio/sungo/internal/source"
)

// fetchConcurrency bounds the per-frame header and texture fetches in flight
// for one store.
const fetchConcurrency = 16

// Store is the frame set of one source over one time range.
type Store struct {
	opts     Options
	geometry source.Geometry
	deps     Deps
	logger   *slog.Logger
	ready    chan struct{}

	mu       sync.Mutex
	state    State
	err      error
	frames   []*Frame
	model    render.Model
	time     time.Time
	selected *Frame
	opacity  float64
	disposed bool
}

// New starts populating a store in the background and returns immediately.
// Population is bound to ctx; Dispose does not cancel it.
func New(ctx context.Context, opts Options, deps Deps) *Store {
	if opts.Quality == (source.Quality{}) {
		opts.Quality = source.Default
	}
	s := &Store{
		opts:     opts,
		geometry: source.Classify(opts.Source),
		deps:     deps,
		logger: deps.Logger.With(
			"source_id", opts.Source,
			"start", opts.Start.Format(time.RFC3339),
			"end", opts.End.Format(time.RFC3339),
		),
		ready:   make(chan struct{}),
		time:    opts.Start,
		opacity: 1,
	}
	go s.populate(ctx)
	return s
}

// NewStatic starts a store holding the single image closest to date. A zero
// quality defaults to source.Maximum.
func NewStatic(ctx context.Context, src int, date time.Time, q source.Quality, deps Deps) *Store {
	if q == (source.Quality{}) {
		q = source.Maximum
	}
	return New(ctx, Options{Source: src, Start: date, End: date, Quality: q}, deps)
}

func (s *Store) populate(ctx context.Context) {
	start := time.Now()
	frames, model, err := s.load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		if model != nil {
			model.Dispose()
		}
		s.logger.Info("population finished after dispose, discarded")
		return
	}
	if err == nil {
		s.frames = frames
		s.model = model
		model.SetOpacity(s.opacity)
		if _, err = s.applyLocked(s.time); err != nil {
			model.Dispose()
			s.frames, s.model = nil, nil
		}
	}
	s.settleLocked(err)
	metrics.RecordPopulation(s.state.String(), time.Since(start))

	if err != nil {
		s.logger.Error("frame store population failed", "error", err)
		return
	}
	s.logger.Info("frame store ready",
		"frame_count", len(s.frames),
		"geometry", s.geometry.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// load fetches everything the store needs without touching its state.
func (s *Store) load(ctx context.Context) ([]*Frame, render.Model, error) {
	images, err := s.deps.Fetcher.QueryImages(ctx, s.opts.Source, s.opts.Start, s.opts.End, s.opts.Cadence)
	if err != nil {
		return nil, nil, fmt.Errorf("querying images: %w", err)
	}

	scale := source.ResolutionScale(s.opts.Quality.Resolution, s.opts.Source, s.logger)
	seen := make(map[string]bool, len(images))
	var frames []*Frame
	for _, img := range images {
		url := s.deps.Fetcher.ImageURL(img.ID, scale, s.opts.Quality.Format)
		if seen[url] {
			continue
		}
		seen[url] = true
		frames = append(frames, &Frame{
			ID:        img.ID,
			Timestamp: img.Timestamp,
			URL:       url,
			Info:      img.Info,
		})
	}
	if len(frames) == 0 {
		return nil, nil, ErrNoFrames
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for _, f := range frames {
		g.Go(func() error {
			h, err := s.deps.Fetcher.FetchHeader(gctx, f.ID, f.Timestamp)
			if err != nil {
				return fmt.Errorf("header of image %d: %w", f.ID, err)
			}
			f.Metadata = metadata.New(h, s.logger)
			return nil
		})
		g.Go(func() error {
			tex, err := s.deps.Textures.Get(gctx, f.URL)
			if err != nil {
				return fmt.Errorf("texture of image %d: %w", f.ID, err)
			}
			f.Texture = tex
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var mesh *resource.Mesh
	if s.geometry == source.Sphere {
		if mesh, err = s.deps.Meshes.Get(ctx, s.deps.ModelPath); err != nil {
			return nil, nil, fmt.Errorf("model mesh: %w", err)
		}
	}

	first := frames[0]
	p, err := render.Build(first.Metadata, first.Info, s.geometry)
	if err != nil {
		return nil, nil, fmt.Errorf("placing image %d: %w", first.ID, err)
	}
	model, err := s.deps.Renderer.NewModel(ctx, p, first.Texture, mesh)
	if err != nil {
		return nil, nil, fmt.Errorf("building model: %w", err)
	}
	return frames, model, nil
}

// settleLocked records the terminal population state once.
func (s *Store) settleLocked(err error) {
	if s.state != Loading {
		return
	}
	if err != nil {
		s.state, s.err = Failed, err
	} else {
		s.state = Ready
	}
	close(s.ready)
}

// Ready blocks until population finishes and returns its error.
func (s *Store) Ready(ctx context.Context) error {
	select {
	case <-s.ready:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the population state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Geometry returns the model class of the store's source.
func (s *Store) Geometry() source.Geometry {
	return s.geometry
}

// Source returns the store's source ID.
func (s *Store) Source() int {
	return s.opts.Source
}

// SelectNearest returns the frame closest to t. Ties go to the frame earlier
// in store order. It reports false when the store has no frames.
func (s *Store) SelectNearest(t time.Time) (*Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nearestLocked(t)
}

func (s *Store) nearestLocked(t time.Time) (*Frame, bool) {
	if len(s.frames) == 0 {
		return nil, false
	}
	best, bestDelta := s.frames[0], absDuration(t.Sub(s.frames[0].Timestamp))
	for _, f := range s.frames[1:] {
		if d := absDuration(t.Sub(f.Timestamp)); d < bestDelta {
			best, bestDelta = f, d
		}
	}
	return best, true
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// SetTime shows the frame nearest to t and returns that frame's timestamp,
// which may be far from t. Before the store is Ready only the requested time
// is recorded; it is applied when population completes.
func (s *Store) SetTime(t time.Time) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return time.Time{}, ErrDisposed
	}
	s.time = t
	switch s.state {
	case Loading:
		return time.Time{}, ErrNotReady
	case Failed:
		return time.Time{}, fmt.Errorf("%w: %w", ErrNotReady, s.err)
	}
	return s.applyLocked(t)
}

// applyLocked selects the frame nearest t and swaps it onto the model.
func (s *Store) applyLocked(t time.Time) (time.Time, error) {
	f, ok := s.nearestLocked(t)
	if !ok {
		return time.Time{}, ErrNoFrames
	}
	if err := s.showLocked(f); err != nil {
		return time.Time{}, err
	}
	return f.Timestamp, nil
}

// ShowFrame swaps the frame at index i, in store order, onto the model.
// Unlike SetTime it distinguishes frames sharing a timestamp.
func (s *Store) ShowFrame(i int) (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return Info{}, ErrDisposed
	}
	switch s.state {
	case Loading:
		return Info{}, ErrNotReady
	case Failed:
		return Info{}, fmt.Errorf("%w: %w", ErrNotReady, s.err)
	}
	if i < 0 || i >= len(s.frames) {
		return Info{}, fmt.Errorf("frame index %d out of range [0, %d)", i, len(s.frames))
	}
	f := s.frames[i]
	if err := s.showLocked(f); err != nil {
		return Info{}, err
	}
	return Info{ID: f.ID, Date: f.Timestamp}, nil
}

func (s *Store) showLocked(f *Frame) error {
	p, err := render.Build(f.Metadata, f.Info, s.geometry)
	if err != nil {
		return fmt.Errorf("placing image %d: %w", f.ID, err)
	}
	if err := s.model.SwapTexture(f.Texture, p); err != nil {
		return fmt.Errorf("swapping to image %d: %w", f.ID, err)
	}
	s.selected = f
	s.time = f.Timestamp
	metrics.IncFrameSwaps()
	return nil
}

// SetOpacity sets the model opacity, 0 transparent to 1 opaque. It is kept
// and applied once the model exists.
func (s *Store) SetOpacity(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opacity = v
	if s.model != nil {
		s.model.SetOpacity(v)
	}
}

// Dispose releases the model and drops this store's textures from the
// cache. It is safe to call in any state and more than once. A store still
// Loading fails with ErrDisposed; its population result is discarded.
func (s *Store) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return
	}
	s.disposed = true
	s.settleLocked(ErrDisposed)
	if s.model != nil {
		s.model.Dispose()
		s.model = nil
	}
	for _, f := range s.frames {
		s.deps.Textures.Forget(f.URL)
	}
	s.logger.Debug("frame store disposed", "frame_count", len(s.frames))
}

// Frames lists the frames in store order. Empty until Ready.
func (s *Store) Frames() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Info, len(s.frames))
	for i, f := range s.frames {
		out[i] = Info{ID: f.ID, Date: f.Timestamp}
	}
	return out
}

// Range returns the timestamps of the first and last frame in store order.
// An empty store reports its current time for both.
func (s *Store) Range() DateRange {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return DateRange{Start: s.time, End: s.time}
	}
	return DateRange{Start: s.frames[0].Timestamp, End: s.frames[len(s.frames)-1].Timestamp}
}

// Count returns the number of frames.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// Selected returns the frame currently shown.
func (s *Store) Selected() (Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return Info{}, false
	}
	return Info{ID: s.selected.ID, Date: s.selected.Timestamp}, true
}

// Time returns the current time pointer: the last requested time, or the
// applied frame's timestamp after a swap.
func (s *Store) Time() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.time
}

// Model returns the current model, or nil before Ready and after Dispose.
func (s *Store) Model() render.Model {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}
