// Package config assembles the runtime configuration: defaults, then an
// optional TOML file, then SUNGO_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/helio/sungo/internal/helioviewer"
	"github.com/helio/sungo/internal/source"
)

// Config is the resolved configuration.
type Config struct {
	HTTPAddr    string
	TrustProxy  bool
	AuthEnabled bool
	AuthToken   string

	HelioviewerURL string
	HTTPTimeout    time.Duration

	// ModelPath is the sphere mesh, a local file or URL.
	ModelPath      string
	WatchAssets    bool
	MaxTextureSize int

	Quality string
	Cadence time.Duration

	// Playback streams.
	StreamMaxPerIP  int
	StreamMaxTotal  int
	StreamKeepalive time.Duration
	StreamInterval  time.Duration

	LogLevel string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTPAddr:        ":8080",
		HelioviewerURL:  helioviewer.DefaultAPIURL,
		HTTPTimeout:     30 * time.Second,
		ModelPath:       "assets/sun_model.glb",
		WatchAssets:     true,
		MaxTextureSize:  4096,
		Quality:         "default",
		Cadence:         time.Hour,
		StreamMaxPerIP:  10,
		StreamMaxTotal:  200,
		StreamKeepalive: 30 * time.Second,
		StreamInterval:  time.Second,
		LogLevel:        "info",
	}
}

// Load builds the configuration from defaults, the TOML file at path (skipped
// when path is empty) and the environment, then validates it.
func Load(path string, logger *slog.Logger) (Config, error) {
	cfg := Default()
	if path != "" {
		fc, err := LoadFileConfig(path)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		if err := ApplyFileConfig(&cfg, fc); err != nil {
			return cfg, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := ApplyEnv(&cfg, logger); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// QualitySetting returns the parsed quality preset.
func (c Config) QualitySetting() source.Quality {
	q, err := source.ParseQuality(c.Quality)
	if err != nil {
		return source.Default
	}
	return q
}

// SlogLevel returns the configured log level.
func (c Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Validate checks for values no component can run with.
func (c Config) Validate() error {
	var errs []error
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http address is required"))
	}
	if c.AuthEnabled && c.AuthToken == "" {
		errs = append(errs, errors.New("auth token is required when auth is enabled"))
	}
	if !strings.HasPrefix(c.HelioviewerURL, "http://") && !strings.HasPrefix(c.HelioviewerURL, "https://") {
		errs = append(errs, fmt.Errorf("helioviewer url %q must be http or https", c.HelioviewerURL))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("http timeout must be positive"))
	}
	if c.ModelPath == "" {
		errs = append(errs, errors.New("model path is required"))
	}
	if c.MaxTextureSize < 0 {
		errs = append(errs, errors.New("max texture size must not be negative"))
	}
	if _, err := source.ParseQuality(c.Quality); err != nil {
		errs = append(errs, err)
	}
	if c.Cadence < 0 {
		errs = append(errs, errors.New("cadence must not be negative"))
	}
	if c.StreamMaxPerIP < 1 {
		errs = append(errs, errors.New("stream max per ip must be at least 1"))
	}
	if c.StreamMaxTotal < c.StreamMaxPerIP {
		errs = append(errs, errors.New("stream max total must be at least stream max per ip"))
	}
	if c.StreamKeepalive <= 0 {
		errs = append(errs, errors.New("stream keepalive must be positive"))
	}
	if c.StreamInterval <= 0 {
		errs = append(errs, errors.New("stream interval must be positive"))
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}
	return errors.Join(errs...)
}

// LogValue masks the auth token when the config is logged.
func (c Config) LogValue() slog.Value {
	token := ""
	if c.AuthToken != "" {
		token = "*****"
	}
	return slog.GroupValue(
		slog.String("http_addr", c.HTTPAddr),
		slog.Bool("trust_proxy", c.TrustProxy),
		slog.Bool("auth_enabled", c.AuthEnabled),
		slog.String("auth_token", token),
		slog.String("helioviewer_url", c.HelioviewerURL),
		slog.Float64("http_timeout_seconds", c.HTTPTimeout.Seconds()),
		slog.String("model_path", c.ModelPath),
		slog.Bool("watch_assets", c.WatchAssets),
		slog.Int("max_texture_size", c.MaxTextureSize),
		slog.String("quality", c.Quality),
		slog.Float64("cadence_seconds", c.Cadence.Seconds()),
		slog.Int("stream_max_per_ip", c.StreamMaxPerIP),
		slog.Int("stream_max_total", c.StreamMaxTotal),
		slog.Float64("stream_keepalive_seconds", c.StreamKeepalive.Seconds()),
		slog.Float64("stream_interval_seconds", c.StreamInterval.Seconds()),
		slog.String("log_level", c.LogLevel),
	)
}
