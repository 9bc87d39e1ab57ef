package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/helio/sungo/internal/auth"
	"github.com/helio/sungo/internal/frames"
	"github.com/helio/sungo/internal/health"
	"github.com/helio/sungo/internal/helioviewer"
	"github.com/helio/sungo/internal/metadata"
	"github.com/helio/sungo/internal/metrics"
	"github.com/helio/sungo/internal/source"
	"github.com/helio/sungo/internal/stream"
)

// ImageSource finds single images and their headers. *helioviewer.Client
// satisfies it.
type ImageSource interface {
	ClosestImage(ctx context.Context, source int, date time.Time) (helioviewer.Image, error)
	FetchHeader(ctx context.Context, id int64, override time.Time) (metadata.Header, error)
	ImageURL(id int64, scale float64, format string) string
}

// Deps are the collaborators the handlers use.
type Deps struct {
	Images  ImageSource
	Frames  frames.Deps
	Quality source.Quality
	// Cadence is the frame query step when a request gives none.
	Cadence time.Duration
	// TrustProxy makes request logs use X-Forwarded-For / X-Real-IP.
	TrustProxy bool
	// Ready reports whether the service can take traffic; nil means always.
	Ready func() error

	Stream stream.Config
	// StreamInterval is the playback step when a request gives none.
	StreamInterval time.Duration
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, logger *slog.Logger, authCfg auth.Config, deps Deps) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           NewHandler(logger, authCfg, deps),
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			// Frame queries wait for a full store population.
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  120 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler returns the routed handler with its middleware chain.
func NewHandler(logger *slog.Logger, authCfg auth.Config, deps Deps) http.Handler {
	logger = logger.With("component", "api")
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(deps.Ready))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/v1/sources", sourcesHandler(logger))
	mux.HandleFunc("GET /api/v1/distance", distanceHandler())
	mux.HandleFunc("GET /api/v1/params", paramsHandler(logger, deps))
	mux.HandleFunc("GET /api/v1/frames", framesHandler(logger, deps))
	mux.HandleFunc("GET /api/v1/stream/frames",
		streamFramesHandler(stream.NewHandler(deps.Frames, deps.Stream, logger), deps))

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(authCfg)(handler)
	handler = loggingMiddleware(logger, deps.TrustProxy)(handler)
	handler = metrics.Middleware(handler)
	return handler
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_ip", clientIP(r, trustProxy),
			)
		})
	}
}
