// Package stream plays a frame store back over Server-Sent Events. Clients
// connect via GET /api/v1/stream/frames and receive one message per frame as
// the store steps through its timestamps.
//
// Each message is a named event whose data repeats the name in "type":
//
//	event: frame
//	id: 0
//	data: {"type":"frame","index":0,"t":"2024-01-18T11:00:00Z","image":{...},"model":{...}}
//
// The first event is always metadata describing the loaded range:
//
//	event: metadata
//	data: {"type":"metadata","source_id":13,"geometry":"sphere","count":4,...}
//
// A non-looping playback ends with an end event; a store that fails to
// populate ends with an error event. Keep-alive comments (:\n\n) are sent
// every KeepaliveInterval, including while the store loads.
//
// Frame ids are frame indexes. A reconnect carrying Last-Event-ID resumes
// with the following frame.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/helio/sungo/internal/frames"
	"github.com/helio/sungo/internal/metrics"
	"github.com/helio/sungo/internal/render"
	"github.com/helio/sungo/internal/source"
)

// Config holds streaming limits.
type Config struct {
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	MaxConcurrent      int           // Max concurrent streams in total (default: 200).
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
}

// Playback describes one stream request.
type Playback struct {
	Options frames.Options
	// Interval is the wall-clock time between frames.
	Interval time.Duration
	// Loop restarts from the first frame instead of ending.
	Loop bool
}

// Handler manages SSE playback connections.
type Handler struct {
	deps   frames.Deps
	config Config
	slots  *playbackSlots
	logger *slog.Logger
}

// NewHandler creates a new streaming handler. Each connection gets its own
// frame store built from deps.
func NewHandler(deps frames.Deps, config Config, logger *slog.Logger) *Handler {
	if config.MaxConcurrentPerIP < 1 {
		config.MaxConcurrentPerIP = 10
	}
	if config.MaxConcurrent < config.MaxConcurrentPerIP {
		config.MaxConcurrent = max(200, config.MaxConcurrentPerIP)
	}
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	return &Handler{
		deps:   deps,
		config: config,
		slots:  newPlaybackSlots(config.MaxConcurrentPerIP, config.MaxConcurrent),
		logger: logger,
	}
}

// Serve streams pb to the client identified by ip. Request parsing is the
// caller's job.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request, ip string, pb Playback) {
	if why := h.slots.take(ip); why != admitted {
		h.refuse(w, ip, why)
		return
	}

	metrics.IncStreamConnections("connect")
	metrics.IncStreamsActive()

	startTime := time.Now()
	logger := h.logger.With("remote_ip", ip, "source_id", pb.Options.Source)
	logger.Info("stream connected",
		"user_agent", r.Header.Get("User-Agent"),
		"interval_ms", pb.Interval.Milliseconds(),
		"loop", pb.Loop,
	)

	defer func() {
		h.slots.give(ip)
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		logger.Info("stream disconnected",
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	// Verify flusher support (required for SSE).
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Clear the server's WriteTimeout for this connection; each send sets
	// its own deadline.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		logger.Debug("could not clear write deadline", "error", err)
	}

	ew := &eventWriter{w: w, flusher: flusher, rc: rc, logger: logger}
	defer func() {
		logger.Debug("stream totals", "events_sent", ew.events, "bytes_sent", ew.bytes)
	}()

	// Jittered retry interval (3-7s) spreads reconnects after a restart.
	if err := ew.write(fmt.Appendf(nil, "retry: %d\n\n", 3000+rand.Intn(4000))); err != nil {
		return
	}

	ctx := r.Context()
	store := frames.New(ctx, pb.Options, h.deps)
	defer store.Dispose()

	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	// Wait for population, keeping the connection alive meanwhile.
	readyCh := make(chan error, 1)
	go func() { readyCh <- store.Ready(ctx) }()
wait:
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-readyCh:
			if err != nil {
				metrics.IncStreamErrors("populate")
				logger.Warn("stream store failed", "error", err)
				ew.event("error", -1, errorMessage{Type: "error", Error: err.Error()})
				return
			}
			break wait
		case <-keepaliveTicker.C:
			if err := ew.comment(); err != nil {
				metrics.IncStreamErrors("send_error")
				return
			}
		}
	}

	count := store.Count()
	meta := metadataMessage{
		Type:     "metadata",
		SourceID: store.Source(),
		Geometry: store.Geometry(),
		Count:    count,
		Range:    store.Range(),
		Interval: pb.Interval.Milliseconds(),
		Loop:     pb.Loop,
	}
	if err := ew.event("metadata", -1, meta); err != nil {
		metrics.IncStreamErrors("send_error")
		logger.Warn("stream send error (metadata)", "error", err)
		return
	}

	ticker := time.NewTicker(pb.Interval)
	defer ticker.Stop()

	index, ok := resumeIndex(r.Header.Get("Last-Event-ID"), count, pb.Loop)
	if !ok {
		ew.event("end", -1, endMessage{Type: "end"})
		return
	}
	if index > 0 {
		logger.Info("stream resumed", "index", index)
	}
	for {
		msg, err := playFrame(store, index)
		if err != nil {
			metrics.IncStreamErrors("swap")
			logger.Warn("stream frame swap failed", "index", index, "error", err)
			ew.event("error", -1, errorMessage{Type: "error", Error: err.Error()})
			return
		}
		if err := ew.event("frame", index, msg); err != nil {
			metrics.IncStreamErrors("send_error")
			logger.Warn("stream send error", "error", err)
			return
		}
		keepaliveTicker.Reset(h.config.KeepaliveInterval)

		index++
		if index == count {
			if !pb.Loop {
				ew.event("end", -1, endMessage{Type: "end"})
				return
			}
			index = 0
		}

	next:
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				break next
			case <-keepaliveTicker.C:
				if err := ew.comment(); err != nil {
					metrics.IncStreamErrors("send_error")
					logger.Warn("stream keepalive error", "error", err)
					return
				}
			}
		}
	}
}

// refuse answers a playback that got no slot.
func (h *Handler) refuse(w http.ResponseWriter, ip string, why refusal) {
	metrics.IncStreamErrors("limit_" + string(why))
	h.logger.Warn("stream refused",
		"remote_ip", ip,
		"reason", string(why),
		"ip_streams", h.slots.held(ip),
		"total_streams", h.slots.total(),
	)
	msg, retry := "too many concurrent streams from this address", "30"
	if why == refusedTotal {
		msg, retry = "server is at stream capacity", "10"
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", retry)
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// resumeIndex returns the frame to play first given a Last-Event-ID value.
// It reports false when a non-looping playback has nothing left to play.
func resumeIndex(lastID string, count int, loop bool) (int, bool) {
	last, err := strconv.Atoi(lastID)
	if err != nil || last < 0 || last >= count {
		return 0, true
	}
	next := last + 1
	if next < count {
		return next, true
	}
	return 0, loop
}

// stateful is implemented by models that can report their state.
type stateful interface {
	State() render.ModelState
}

// playFrame shows the frame at index and describes it. Frames are stepped by
// position so images sharing a timestamp each get their turn.
func playFrame(store *frames.Store, index int) (frameMessage, error) {
	info, err := store.ShowFrame(index)
	if err != nil {
		return frameMessage{}, err
	}
	msg := frameMessage{
		Type:  "frame",
		Index: index,
		T:     info.Date.UTC().Format(time.RFC3339),
		Image: info,
	}
	if m, ok := store.Model().(stateful); ok {
		st := m.State()
		msg.Model = &st
	}
	return msg, nil
}

// SSE message payload types.

type metadataMessage struct {
	Type     string           `json:"type"`
	SourceID int              `json:"source_id"`
	Geometry source.Geometry  `json:"geometry"`
	Count    int              `json:"count"`
	Range    frames.DateRange `json:"range"`
	Interval int64            `json:"interval_ms"`
	Loop     bool             `json:"loop"`
}

type frameMessage struct {
	Type  string             `json:"type"`
	Index int                `json:"index"`
	T     string             `json:"t"`
	Image frames.Info        `json:"image"`
	Model *render.ModelState `json:"model,omitempty"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type endMessage struct {
	Type string `json:"type"`
}
