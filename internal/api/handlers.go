package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/helio/sungo/internal/ephemeris"
	"github.com/helio/sungo/internal/frames"
	"github.com/helio/sungo/internal/helioviewer"
	"github.com/helio/sungo/internal/metadata"
	"github.com/helio/sungo/internal/render"
	"github.com/helio/sungo/internal/source"
	"github.com/helio/sungo/internal/stream"
)

// writeJSON encodes v before committing status, so an unencodable value
// becomes a 500 instead of an empty success.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		data, _ = json.Marshal(map[string]string{"error": "encode response: " + err.Error()})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(data, '\n'))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errorStatus maps collaborator errors onto HTTP statuses.
func errorStatus(err error) int {
	var (
		fetchErr   *helioviewer.FetchError
		missingTag *metadata.MissingTagError
		compErr    *metadata.ComputationError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, frames.ErrNoFrames):
		return http.StatusNotFound
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway
	case errors.As(err, &missingTag), errors.As(err, &compErr),
		errors.Is(err, metadata.ErrMissingDate), errors.Is(err, render.ErrZeroRadius):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func sourceParam(r *http.Request) (int, error) {
	v := r.URL.Query().Get("source")
	if v == "" {
		return 0, errors.New("source is required")
	}
	id, err := strconv.Atoi(v)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid source %q", v)
	}
	return id, nil
}

// timeParam parses the named query parameter, or returns def when absent.
func timeParam(r *http.Request, name string, def time.Time) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	t, err := metadata.ParseDate(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %w", name, err)
	}
	return t, nil
}

// qualityParam applies the optional quality, resolution and format
// parameters over def.
func qualityParam(r *http.Request, def source.Quality) (source.Quality, error) {
	q := def
	query := r.URL.Query()
	if v := query.Get("quality"); v != "" {
		p, err := source.ParseQuality(v)
		if err != nil {
			return q, err
		}
		q = p
	}
	if v := query.Get("resolution"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return q, fmt.Errorf("invalid resolution %q", v)
		}
		q.Resolution = n
	}
	switch v := query.Get("format"); v {
	case "":
	case "png", "jpg", "webp":
		q.Format = v
	default:
		return q, fmt.Errorf("invalid format %q (want png, jpg or webp)", v)
	}
	return q, nil
}

type sourceInfo struct {
	ID             int             `json:"id"`
	Name           string          `json:"name,omitempty"`
	Geometry       source.Geometry `json:"geometry"`
	BaseResolution int             `json:"base_resolution"`
}

func describeSource(id int, logger *slog.Logger) sourceInfo {
	return sourceInfo{
		ID:             id,
		Name:           source.Name(id),
		Geometry:       source.Classify(id),
		BaseResolution: source.BaseResolution(id, logger),
	}
}

// sourcesHandler describes one source (?source=) or lists the plane sources.
func sourcesHandler(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("source") {
			id, err := sourceParam(r)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeJSON(w, http.StatusOK, describeSource(id, logger))
			return
		}
		ids := source.PlaneSources()
		out := make([]sourceInfo, len(ids))
		for i, id := range ids {
			out[i] = describeSource(id, logger)
		}
		writeJSON(w, http.StatusOK, map[string]any{"plane_sources": out})
	}
}

func distanceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := timeParam(r, "date", time.Now().UTC())
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"date":          t,
			"solar_radii":   ephemeris.EarthDistance(t),
			"au":            ephemeris.EarthDistanceAU(t.UnixMilli()),
			"radius_arcsec": ephemeris.AngularRadiusArcsec(ephemeris.EarthDistance(t)),
		})
	}
}

type imageResponse struct {
	ID   int64     `json:"id"`
	Date time.Time `json:"date"`
	URL  string    `json:"url"`
}

type paramsResponse struct {
	SourceID int             `json:"source_id"`
	Geometry source.Geometry `json:"geometry"`
	Image    imageResponse   `json:"image"`
	Params   render.Params   `json:"params"`
}

// paramsHandler returns the placement of the image closest to date.
func paramsHandler(logger *slog.Logger, deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		src, err := sourceParam(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		date, err := timeParam(r, "date", time.Now().UTC())
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		q, err := qualityParam(r, deps.Quality)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		img, err := deps.Images.ClosestImage(r.Context(), src, date)
		if err != nil {
			logger.Warn("closest image lookup failed", "source_id", src, "error", err)
			writeError(w, errorStatus(err), err.Error())
			return
		}
		h, err := deps.Images.FetchHeader(r.Context(), img.ID, img.Timestamp)
		if err != nil {
			logger.Warn("header fetch failed", "image_id", img.ID, "error", err)
			writeError(w, errorStatus(err), err.Error())
			return
		}

		g := source.Classify(src)
		p, err := render.Build(metadata.New(h, logger), img.Info, g)
		if err != nil {
			writeError(w, errorStatus(err), err.Error())
			return
		}

		scale := source.ResolutionScale(q.Resolution, src, logger)
		writeJSON(w, http.StatusOK, paramsResponse{
			SourceID: src,
			Geometry: g,
			Image: imageResponse{
				ID:   img.ID,
				Date: img.Timestamp,
				URL:  deps.Images.ImageURL(img.ID, scale, q.Format),
			},
			Params: p,
		})
	}
}

type framesResponse struct {
	SourceID int                `json:"source_id"`
	Geometry source.Geometry    `json:"geometry"`
	Count    int                `json:"count"`
	Range    frames.DateRange   `json:"range"`
	Frames   []frames.Info      `json:"frames"`
	Selected *frames.Info       `json:"selected,omitempty"`
	Model    *render.ModelState `json:"model,omitempty"`
}

// frameOptions parses source, start, end, cadence (seconds) and quality.
func frameOptions(r *http.Request, deps Deps) (frames.Options, error) {
	var opts frames.Options
	src, err := sourceParam(r)
	if err != nil {
		return opts, err
	}
	start, err := timeParam(r, "start", time.Time{})
	if err != nil {
		return opts, err
	}
	if start.IsZero() {
		return opts, errors.New("start is required")
	}
	end, err := timeParam(r, "end", start)
	if err != nil {
		return opts, err
	}
	if end.Before(start) {
		return opts, errors.New("end must not precede start")
	}
	cadence := deps.Cadence
	if v := r.URL.Query().Get("cadence"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, fmt.Errorf("invalid cadence %q (seconds)", v)
		}
		cadence = time.Duration(n) * time.Second
	}
	q, err := qualityParam(r, deps.Quality)
	if err != nil {
		return opts, err
	}
	return frames.Options{
		Source:  src,
		Start:   start,
		End:     end,
		Cadence: cadence,
		Quality: q,
	}, nil
}

// stateful is implemented by models that can report their state.
type stateful interface {
	State() render.ModelState
}

// framesHandler populates a store for the range, optionally moves it to
// ?at=, and reports the frames and the resulting model state.
func framesHandler(logger *slog.Logger, deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts, err := frameOptions(r, deps)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		src := opts.Source

		store := frames.New(r.Context(), opts, deps.Frames)
		defer store.Dispose()

		if err := store.Ready(r.Context()); err != nil {
			logger.Warn("frame store failed", "source_id", src, "error", err)
			writeError(w, errorStatus(err), err.Error())
			return
		}
		if r.URL.Query().Has("at") {
			at, err := timeParam(r, "at", opts.Start)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			if _, err := store.SetTime(at); err != nil {
				writeError(w, errorStatus(err), err.Error())
				return
			}
		}

		resp := framesResponse{
			SourceID: src,
			Geometry: store.Geometry(),
			Count:    store.Count(),
			Range:    store.Range(),
			Frames:   store.Frames(),
		}
		if sel, ok := store.Selected(); ok {
			resp.Selected = &sel
		}
		if m, ok := store.Model().(stateful); ok {
			st := m.State()
			resp.Model = &st
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// streamFramesHandler plays a frame range back over SSE. interval is in
// milliseconds between frames.
func streamFramesHandler(h *stream.Handler, deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts, err := frameOptions(r, deps)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		pb := stream.Playback{Options: opts, Interval: deps.StreamInterval}
		if v := r.URL.Query().Get("interval"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 10 || n > 60000 {
				writeError(w, http.StatusBadRequest, "invalid interval parameter, must be 10-60000 ms")
				return
			}
			pb.Interval = time.Duration(n) * time.Millisecond
		}
		if pb.Interval <= 0 {
			pb.Interval = time.Second
		}
		if v := r.URL.Query().Get("loop"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid loop %q", v))
				return
			}
			pb.Loop = b
		}
		h.Serve(w, r, clientIP(r, deps.TrustProxy), pb)
	}
}
