package helioviewer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/helio/sungo/internal/metadata"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

const jp2Header = `<?xml version="1.0" encoding="utf-8"?>
<meta>
  <fits>
    <DATE-OBS>2024-01-18T11:10:17.13</DATE-OBS>
    <NAXIS1>4096</NAXIS1>
    <NAXIS2>4096</NAXIS2>
    <CDELT1>0.600698</CDELT1>
  </fits>
  <helioviewer>
    <NAXIS1>1</NAXIS1>
  </helioviewer>
</meta>`

// fakeAPI answers getClosestImage with one image per minute since T0 and
// records the requested dates.
type fakeAPI struct {
	t0 time.Time

	mu    sync.Mutex
	dates []string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch q.Get("action") {
	case "getClosestImage":
		date, err := time.Parse(time.RFC3339, q.Get("date"))
		if err != nil || q.Get("sourceId") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.dates = append(f.dates, q.Get("date"))
		f.mu.Unlock()

		if q.Get("sourceId") == "999" {
			fmt.Fprint(w, `{"error": "Invalid source"}`)
			return
		}
		minute := int64(date.Sub(f.t0) / time.Minute)
		ts := f.t0.Add(time.Duration(minute) * time.Minute)
		fmt.Fprintf(w, `{"id": "%d", "date": "%s", "width": 4096, "height": 4096,
			"refPixelX": 2048.5, "refPixelY": 2049.25, "offsetX": 0.5, "offsetY": -0.75,
			"rotation": -0.01, "rsun": 1626.58}`, 100+minute, ts.Format("2006-01-02 15:04:05"))
	case "getJP2Header":
		if q.Get("id") == "404" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, jp2Header)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func newFake(t *testing.T) (*fakeAPI, *Client) {
	t.Helper()
	f := &fakeAPI{t0: time.Date(2024, 1, 18, 11, 0, 0, 0, time.UTC)}
	server := httptest.NewServer(f)
	t.Cleanup(server.Close)
	return f, NewClient(server.URL+"/", 5*time.Second, testLogger)
}

func TestClosestImage(t *testing.T) {
	f, c := newFake(t)

	img, err := c.ClosestImage(context.Background(), 13, f.t0.Add(90*time.Second))
	if err != nil {
		t.Fatalf("ClosestImage: %v", err)
	}
	if img.ID != 101 {
		t.Errorf("ID = %d, want 101", img.ID)
	}
	if want := f.t0.Add(time.Minute); !img.Timestamp.Equal(want) || img.Timestamp.Location() != time.UTC {
		t.Errorf("Timestamp = %v, want %v UTC", img.Timestamp, want)
	}
	want := ImageInfo{
		Width: 4096, Height: 4096,
		SolarCenterX: 2048.5, SolarCenterY: 2049.25,
		OffsetX: 0.5, OffsetY: -0.75,
		SolarRotation: -0.01, SolarRadius: 1626.58,
	}
	if img.Info != want {
		t.Errorf("Info = %+v, want %+v", img.Info, want)
	}
	if got := f.dates[0]; got != "2024-01-18T11:01:30.000Z" {
		t.Errorf("requested date = %q", got)
	}
}

func TestClosestImageAPIError(t *testing.T) {
	f, c := newFake(t)
	_, err := c.ClosestImage(context.Background(), 999, f.t0)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if fe.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d", fe.StatusCode)
	}
}

func TestQueryImages(t *testing.T) {
	tests := []struct {
		name    string
		span    time.Duration
		cadence time.Duration
		wantIDs []int64
	}{
		{"inclusive end", 3 * time.Minute, time.Minute, []int64{100, 101, 102, 103}},
		{"zero width range", 0, time.Minute, []int64{100}},
		{"zero cadence", 3 * time.Minute, 0, []int64{100}},
		{"sub-minute cadence repeats images", time.Minute, 30 * time.Second, []int64{100, 100, 101}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, c := newFake(t)
			images, err := c.QueryImages(context.Background(), 13, f.t0, f.t0.Add(tt.span), tt.cadence)
			if err != nil {
				t.Fatalf("QueryImages: %v", err)
			}
			if len(images) != len(tt.wantIDs) {
				t.Fatalf("got %d images, want %d", len(images), len(tt.wantIDs))
			}
			for i, img := range images {
				if img.ID != tt.wantIDs[i] {
					t.Errorf("images[%d].ID = %d, want %d", i, img.ID, tt.wantIDs[i])
				}
			}
		})
	}
}

func TestQueryImagesEmptyRange(t *testing.T) {
	f, c := newFake(t)
	images, err := c.QueryImages(context.Background(), 13, f.t0, f.t0.Add(-time.Minute), time.Minute)
	if err != nil || len(images) != 0 {
		t.Errorf("reversed range = %d images, %v; want none", len(images), err)
	}
}

func TestQueryImagesTooManySteps(t *testing.T) {
	f, c := newFake(t)
	_, err := c.QueryImages(context.Background(), 13, f.t0, f.t0.Add(365*24*time.Hour), time.Second)
	if err == nil {
		t.Fatal("expected step limit error")
	}
	if len(f.dates) != 0 {
		t.Errorf("issued %d requests before rejecting the range", len(f.dates))
	}
}

func TestFetchHeader(t *testing.T) {
	_, c := newFake(t)

	h, err := c.FetchHeader(context.Background(), 7, time.Time{})
	if err != nil {
		t.Fatalf("FetchHeader: %v", err)
	}
	if v, _ := h.Lookup(metadata.TagNaxis1); v != "4096" {
		t.Errorf("NAXIS1 = %q, want first occurrence 4096", v)
	}
	if _, ok := h.Override(); ok {
		t.Error("zero override should not be set")
	}

	override := time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC)
	h, err = c.FetchHeader(context.Background(), 7, override)
	if err != nil {
		t.Fatalf("FetchHeader with override: %v", err)
	}
	if got, _ := metadata.New(h, testLogger).Date(); !got.Equal(override) {
		t.Errorf("Date = %v, want override %v", got, override)
	}

	_, err = c.FetchHeader(context.Background(), 404, time.Time{})
	var fe *FetchError
	if !errors.As(err, &fe) || fe.StatusCode != http.StatusNotFound {
		t.Errorf("404 error = %v", err)
	}
}

func TestImageURL(t *testing.T) {
	c := NewClient("", time.Second, testLogger)
	u, err := url.Parse(c.ImageURL(42, 2.5, "png"))
	if err != nil {
		t.Fatal(err)
	}
	if u.Host != "api.helioviewer.org" {
		t.Errorf("host = %q", u.Host)
	}
	q := u.Query()
	for k, want := range map[string]string{"action": "downloadImage", "id": "42", "scale": "2.5", "type": "png"} {
		if q.Get(k) != want {
			t.Errorf("%s = %q, want %q", k, q.Get(k), want)
		}
	}
}

func TestFlexID(t *testing.T) {
	for _, in := range []string{`"123"`, `123`} {
		var f flexInt64
		if err := f.UnmarshalJSON([]byte(in)); err != nil || f != 123 {
			t.Errorf("UnmarshalJSON(%s) = %d, %v", in, f, err)
		}
	}
	var f flexInt64
	if err := f.UnmarshalJSON([]byte(`"abc"`)); err == nil {
		t.Error("non-numeric id should fail")
	}
}
