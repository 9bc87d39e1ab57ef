package frames

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/helio/sungo/internal/helioviewer"
	"github.com/helio/sungo/internal/metadata"
	"github.com/helio/sungo/internal/render"
	"github.com/helio/sungo/internal/resource"
	"github.com/helio/sungo/internal/source"
)

var t0 = time.Date(2024, 1, 18, 11, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func headerTags() map[string]string {
	return map[string]string{
		"DSUN_OBS": "147226745474.36",
		"SOLAR_R":  "1626.58",
		"NAXIS1":   "1024",
		"NAXIS2":   "1024",
		"CDELT1":   "2.4",
		"CDELT2":   "2.4",
		"CRPIX1":   "512.5",
		"CRPIX2":   "513.5",
		"CRVAL1":   "0",
		"CRVAL2":   "0",
	}
}

// fakeFetcher answers each query step with the archive image nearest to it.
type fakeFetcher struct {
	archive    []helioviewer.Image
	gate       chan struct{} // when set, QueryImages waits for it to close
	failHeader int64

	headers atomic.Int32
}

func (f *fakeFetcher) QueryImages(ctx context.Context, src int, start, end time.Time, cadence time.Duration) ([]helioviewer.Image, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	var out []helioviewer.Image
	for t := start; !t.After(end); t = t.Add(cadence) {
		if len(f.archive) > 0 {
			best := f.archive[0]
			for _, img := range f.archive[1:] {
				if absDuration(t.Sub(img.Timestamp)) < absDuration(t.Sub(best.Timestamp)) {
					best = img
				}
			}
			out = append(out, best)
		}
		if cadence <= 0 {
			break
		}
	}
	return out, nil
}

func (f *fakeFetcher) FetchHeader(ctx context.Context, id int64, override time.Time) (metadata.Header, error) {
	f.headers.Add(1)
	if id == f.failHeader {
		return metadata.Header{}, &helioviewer.FetchError{URL: fmt.Sprintf("header/%d", id), StatusCode: 500}
	}
	return metadata.NewHeader(headerTags()).WithDate(override), nil
}

func (f *fakeFetcher) ImageURL(id int64, scale float64, format string) string {
	return fmt.Sprintf("img/%d?scale=%g&type=%s", id, scale, format)
}

func archive(offsets ...time.Duration) []helioviewer.Image {
	out := make([]helioviewer.Image, len(offsets))
	for i, d := range offsets {
		out[i] = helioviewer.Image{
			ID:        int64(100 + i),
			Timestamp: t0.Add(d),
			Info:      helioviewer.ImageInfo{Width: 1024, Height: 1024, SolarRadius: 128, SolarRotation: 0.5},
		}
	}
	return out
}

type harness struct {
	fetcher     *fakeFetcher
	renderer    *render.Headless
	textures    *resource.Cache[*resource.Texture]
	meshes      *resource.Cache[*resource.Mesh]
	textureLoad atomic.Int32
	meshLoad    atomic.Int32
}

func newHarness(f *fakeFetcher) *harness {
	h := &harness{fetcher: f, renderer: render.NewHeadless(testLogger())}
	h.textures = resource.NewCache("textures", func(ctx context.Context, key string) (*resource.Texture, error) {
		h.textureLoad.Add(1)
		return &resource.Texture{URL: key, Format: "png", Image: image.NewRGBA(image.Rect(0, 0, 8, 8))}, nil
	}, testLogger())
	h.meshes = resource.NewCache("meshes", func(ctx context.Context, key string) (*resource.Mesh, error) {
		h.meshLoad.Add(1)
		return &resource.Mesh{Path: key, Format: "glb"}, nil
	}, testLogger())
	return h
}

func (h *harness) deps() Deps {
	return Deps{
		Fetcher:   h.fetcher,
		Textures:  h.textures,
		Meshes:    h.meshes,
		Renderer:  h.renderer,
		ModelPath: "sun_model.glb",
		Logger:    testLogger(),
	}
}

func waitReady(t *testing.T, s *Store) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Ready(ctx)
}

func TestSelectNearest(t *testing.T) {
	s := &Store{}
	if _, ok := s.SelectNearest(t0); ok {
		t.Error("empty store selected a frame")
	}

	s.frames = []*Frame{
		{ID: 1, Timestamp: t0},
		{ID: 2, Timestamp: t0.Add(60 * time.Second)},
		{ID: 3, Timestamp: t0.Add(120 * time.Second)},
	}
	tests := []struct {
		name   string
		query  time.Time
		wantID int64
	}{
		{"closer to later frame", t0.Add(45 * time.Second), 2},
		{"midpoint prefers earlier index", t0.Add(30 * time.Second), 1},
		{"exact match", t0.Add(120 * time.Second), 3},
		{"before range", t0.Add(-time.Hour), 1},
		{"after range", t0.Add(time.Hour), 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ok := s.SelectNearest(tt.query)
			if !ok || f.ID != tt.wantID {
				t.Errorf("SelectNearest = %+v, %v; want id %d", f, ok, tt.wantID)
			}
		})
	}
}

func TestSelectNearestTieFollowsStoreOrder(t *testing.T) {
	// Store order is query order, not time order.
	s := &Store{frames: []*Frame{
		{ID: 1, Timestamp: t0.Add(60 * time.Second)},
		{ID: 2, Timestamp: t0},
	}}
	if f, _ := s.SelectNearest(t0.Add(30 * time.Second)); f.ID != 1 {
		t.Errorf("tie chose id %d, want 1 (first in store order)", f.ID)
	}
}

func TestPlaneStoreSingleFrame(t *testing.T) {
	h := newHarness(&fakeFetcher{archive: archive(0, 10*time.Minute)})
	s := New(context.Background(), Options{Source: 4, Start: t0, End: t0, Cadence: time.Minute}, h.deps())

	if err := waitReady(t, s); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	if s.State() != Ready || s.Count() != 1 || s.Geometry() != source.Plane {
		t.Fatalf("state %v count %d geometry %v", s.State(), s.Count(), s.Geometry())
	}
	if h.meshLoad.Load() != 0 {
		t.Error("plane store loaded a mesh")
	}

	for _, q := range []time.Time{t0, t0.Add(-48 * time.Hour), t0.Add(9 * time.Minute)} {
		got, err := s.SetTime(q)
		if err != nil {
			t.Fatalf("SetTime(%v): %v", q, err)
		}
		if !got.Equal(t0) {
			t.Errorf("SetTime(%v) applied %v, want %v", q, got, t0)
		}
	}

	st := s.Model().(*render.HeadlessModel).State()
	if _, ok := st.Params.(render.PlaneParams); !ok {
		t.Errorf("model params = %T, want PlaneParams", st.Params)
	}
	if p := st.Params.(render.PlaneParams); p.Width != 8 || p.Height != 8 {
		t.Errorf("plane size = %vx%v, want 8x8", p.Width, p.Height)
	}
}

func TestSphereStore(t *testing.T) {
	// Five query steps over three archive images. Steps at +1m and +3m tie
	// and resolve to the earlier image, so the URLs collapse to three frames.
	h := newHarness(&fakeFetcher{archive: archive(0, 2*time.Minute, 4*time.Minute)})
	s := New(context.Background(), Options{
		Source:  13,
		Start:   t0,
		End:     t0.Add(4 * time.Minute),
		Cadence: time.Minute,
	}, h.deps())

	if err := waitReady(t, s); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	if s.Count() != 3 {
		t.Fatalf("Count = %d, want 3", s.Count())
	}
	if n := h.fetcher.headers.Load(); n != 3 {
		t.Errorf("header fetches = %d, want 3", n)
	}
	if n := h.meshLoad.Load(); n != 1 {
		t.Errorf("mesh loads = %d, want 1", n)
	}
	wantIDs := []int64{100, 101, 102}
	for i, info := range s.Frames() {
		if info.ID != wantIDs[i] {
			t.Errorf("frame %d id = %d, want %d", i, info.ID, wantIDs[i])
		}
	}
	if r := s.Range(); !r.Start.Equal(t0) || !r.End.Equal(t0.Add(4*time.Minute)) {
		t.Errorf("Range = %+v", r)
	}

	// Ready applied the start time.
	if sel, ok := s.Selected(); !ok || sel.ID != 100 {
		t.Errorf("initial selection = %+v, %v", sel, ok)
	}

	got, err := s.SetTime(t0.Add(200 * time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if want := t0.Add(4 * time.Minute); !got.Equal(want) || !s.Time().Equal(want) {
		t.Errorf("SetTime applied %v (time %v), want %v", got, s.Time(), want)
	}

	s.SetOpacity(0.25)
	st := s.Model().(*render.HeadlessModel).State()
	if st.Texture != "img/102?scale=4&type=png" || st.Opacity != 0.25 || st.Swaps != 2 {
		t.Errorf("model state = %+v", st)
	}
	if p := st.Params.(render.SphereParams); p.RotationDegrees != 0.5 {
		t.Errorf("rotation = %v, want 0.5", p.RotationDegrees)
	}
}

// listFetcher returns its archive as is, whatever the query.
type listFetcher struct{ *fakeFetcher }

func (f listFetcher) QueryImages(ctx context.Context, src int, start, end time.Time, cadence time.Duration) ([]helioviewer.Image, error) {
	return f.archive, nil
}

func TestShowFrameSharedTimestamp(t *testing.T) {
	h := newHarness(&fakeFetcher{archive: archive(0, 0, time.Hour)})
	deps := h.deps()
	deps.Fetcher = listFetcher{h.fetcher}
	s := New(context.Background(), Options{Source: 13, Start: t0, End: t0.Add(time.Hour)}, deps)
	if err := waitReady(t, s); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	if s.Count() != 3 {
		t.Fatalf("Count = %d, want 3", s.Count())
	}

	// SetTime cannot reach the second of two frames at t0; ShowFrame can.
	info, err := s.ShowFrame(1)
	if err != nil {
		t.Fatalf("ShowFrame(1): %v", err)
	}
	if info.ID != 101 || !info.Date.Equal(t0) {
		t.Errorf("ShowFrame(1) = %+v, want id 101 at t0", info)
	}
	if sel, _ := s.Selected(); sel.ID != 101 {
		t.Errorf("Selected = %+v, want 101", sel)
	}
	if st := s.Model().(*render.HeadlessModel).State(); st.Texture != "img/101?scale=4&type=png" {
		t.Errorf("texture = %q", st.Texture)
	}

	for _, i := range []int{-1, 3} {
		if _, err := s.ShowFrame(i); err == nil {
			t.Errorf("ShowFrame(%d): expected error", i)
		}
	}
	s.Dispose()
	if _, err := s.ShowFrame(0); !errors.Is(err, ErrDisposed) {
		t.Errorf("ShowFrame after Dispose = %v, want ErrDisposed", err)
	}
}

func TestPopulationFailure(t *testing.T) {
	tests := []struct {
		name    string
		fetcher *fakeFetcher
		opts    Options
		check   func(error) bool
	}{
		{
			name:    "header fetch fails",
			fetcher: &fakeFetcher{archive: archive(0, time.Minute), failHeader: 101},
			opts:    Options{Source: 13, Start: t0, End: t0.Add(time.Minute), Cadence: time.Minute},
			check: func(err error) bool {
				var fe *helioviewer.FetchError
				return errors.As(err, &fe)
			},
		},
		{
			name:    "no images",
			fetcher: &fakeFetcher{},
			opts:    Options{Source: 13, Start: t0, End: t0},
			check:   func(err error) bool { return errors.Is(err, ErrNoFrames) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(tt.fetcher)
			s := New(context.Background(), tt.opts, h.deps())
			err := waitReady(t, s)
			if !tt.check(err) {
				t.Fatalf("Ready error = %v", err)
			}
			if s.State() != Failed || s.Count() != 0 || len(s.Frames()) != 0 {
				t.Errorf("failed store exposes state %v count %d", s.State(), s.Count())
			}
			if h.renderer.Live() != 0 {
				t.Errorf("live models = %d, want 0", h.renderer.Live())
			}
			if _, err := s.SetTime(t0); !errors.Is(err, ErrNotReady) {
				t.Errorf("SetTime on failed store = %v", err)
			}
		})
	}
}

func TestSetTimeWhileLoading(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(&fakeFetcher{archive: archive(0, time.Minute, 2*time.Minute), gate: gate})
	s := New(context.Background(), Options{Source: 13, Start: t0, End: t0.Add(2 * time.Minute), Cadence: time.Minute}, h.deps())

	if s.State() != Loading {
		t.Fatalf("State = %v, want loading", s.State())
	}
	if _, err := s.SetTime(t0.Add(110 * time.Second)); !errors.Is(err, ErrNotReady) {
		t.Errorf("SetTime while loading = %v, want ErrNotReady", err)
	}
	if s.Count() != 0 {
		t.Errorf("loading store exposes %d frames", s.Count())
	}

	close(gate)
	if err := waitReady(t, s); err != nil {
		t.Fatal(err)
	}
	if sel, _ := s.Selected(); sel.ID != 102 {
		t.Errorf("selected %d after ready, want 102 (requested while loading)", sel.ID)
	}
}

// notifyingRenderer signals each model it builds.
type notifyingRenderer struct {
	*render.Headless
	built chan struct{}
}

func (r *notifyingRenderer) NewModel(ctx context.Context, p render.Params, tex *resource.Texture, mesh *resource.Mesh) (render.Model, error) {
	m, err := r.Headless.NewModel(ctx, p, tex, mesh)
	r.built <- struct{}{}
	return m, err
}

func TestDisposeDuringLoading(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(&fakeFetcher{archive: archive(0), gate: gate})
	nr := &notifyingRenderer{Headless: h.renderer, built: make(chan struct{}, 1)}
	deps := h.deps()
	deps.Renderer = nr

	s := New(context.Background(), Options{Source: 13, Start: t0, End: t0}, deps)
	s.Dispose()

	if err := waitReady(t, s); !errors.Is(err, ErrDisposed) {
		t.Fatalf("Ready after dispose = %v, want ErrDisposed", err)
	}

	close(gate)
	select {
	case <-nr.built:
	case <-time.After(5 * time.Second):
		t.Fatal("population never built its model")
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.renderer.Live() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if h.renderer.Live() != 0 {
		t.Error("late model was not disposed")
	}
	if s.Model() != nil || s.Count() != 0 || s.State() != Failed {
		t.Errorf("disposed store resurrected: count %d state %v", s.Count(), s.State())
	}
}

func TestDisposeReadyStore(t *testing.T) {
	h := newHarness(&fakeFetcher{archive: archive(0, time.Minute)})
	s := New(context.Background(), Options{Source: 13, Start: t0, End: t0.Add(time.Minute), Cadence: time.Minute}, h.deps())
	if err := waitReady(t, s); err != nil {
		t.Fatal(err)
	}
	if h.textures.Len() != 2 {
		t.Fatalf("texture cache holds %d entries, want 2", h.textures.Len())
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Dispose()
		}()
	}
	wg.Wait()

	if h.renderer.Live() != 0 {
		t.Errorf("live models = %d after dispose", h.renderer.Live())
	}
	if h.textures.Len() != 0 {
		t.Errorf("texture cache holds %d entries after dispose", h.textures.Len())
	}
	if _, err := s.SetTime(t0); !errors.Is(err, ErrDisposed) {
		t.Errorf("SetTime after dispose = %v, want ErrDisposed", err)
	}
	if err := waitReady(t, s); err != nil {
		t.Errorf("Ready after disposing a ready store = %v, want nil", err)
	}
}

func TestStoresShareTextureLoads(t *testing.T) {
	h := newHarness(&fakeFetcher{archive: archive(0, time.Minute)})
	opts := Options{Source: 13, Start: t0, End: t0.Add(time.Minute), Cadence: time.Minute}

	a := New(context.Background(), opts, h.deps())
	b := New(context.Background(), opts, h.deps())
	for _, s := range []*Store{a, b} {
		if err := waitReady(t, s); err != nil {
			t.Fatal(err)
		}
	}
	if n := h.textureLoad.Load(); n != 2 {
		t.Errorf("texture loads = %d, want 2 shared by both stores", n)
	}
	if n := h.meshLoad.Load(); n != 1 {
		t.Errorf("mesh loads = %d, want 1", n)
	}
}

func TestNewStaticUsesMaximumQuality(t *testing.T) {
	h := newHarness(&fakeFetcher{archive: archive(0, time.Hour)})
	s := NewStatic(context.Background(), 4, t0.Add(10*time.Minute), source.Quality{}, h.deps())
	if err := waitReady(t, s); err != nil {
		t.Fatal(err)
	}
	if s.Count() != 1 {
		t.Fatalf("Count = %d, want 1", s.Count())
	}
	// LASCO C2 is natively 1024 pixels, so a 4096 request clamps to scale 1.
	st := s.Model().(*render.HeadlessModel).State()
	if st.Texture != "img/100?scale=1&type=png" {
		t.Errorf("texture = %q", st.Texture)
	}
}
