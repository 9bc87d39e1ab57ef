package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// ApplyEnv overrides cfg from SUNGO_* variables. Malformed values are logged
// and ignored, except SUNGO_AUTH_ENABLED which is an error.
func ApplyEnv(cfg *Config, logger *slog.Logger) error {
	if v := os.Getenv("SUNGO_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}

	if v := os.Getenv("SUNGO_TRUST_PROXY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid SUNGO_TRUST_PROXY value, using default", "value", v, "default", cfg.TrustProxy)
		} else {
			cfg.TrustProxy = b
		}
	}

	if v := os.Getenv("SUNGO_AUTH_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.New("SUNGO_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.AuthEnabled = b
	}
	if v := os.Getenv("SUNGO_AUTH_TOKEN"); v != "" {
		cfg.AuthToken = v
	}

	if v := os.Getenv("SUNGO_HELIOVIEWER_URL"); v != "" {
		cfg.HelioviewerURL = v
	}

	if v := os.Getenv("SUNGO_HTTP_TIMEOUT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SUNGO_HTTP_TIMEOUT value, using default", "value", v, "default", cfg.HTTPTimeout.Seconds())
		} else {
			cfg.HTTPTimeout = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("SUNGO_MODEL_PATH"); v != "" {
		cfg.ModelPath = v
	}

	if v := os.Getenv("SUNGO_WATCH_ASSETS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid SUNGO_WATCH_ASSETS value, using default", "value", v, "default", cfg.WatchAssets)
		} else {
			cfg.WatchAssets = b
		}
	}

	if v := os.Getenv("SUNGO_MAX_TEXTURE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			logger.Warn("invalid SUNGO_MAX_TEXTURE_SIZE value, using default", "value", v, "default", cfg.MaxTextureSize)
		} else {
			cfg.MaxTextureSize = n
		}
	}

	if v := os.Getenv("SUNGO_QUALITY"); v != "" {
		cfg.Quality = v
	}

	if v := os.Getenv("SUNGO_CADENCE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			logger.Warn("invalid SUNGO_CADENCE value, using default", "value", v, "default", cfg.Cadence.Seconds())
		} else {
			cfg.Cadence = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("SUNGO_STREAM_MAX_PER_IP"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SUNGO_STREAM_MAX_PER_IP value, using default", "value", v, "default", cfg.StreamMaxPerIP)
		} else {
			cfg.StreamMaxPerIP = n
		}
	}

	if v := os.Getenv("SUNGO_STREAM_MAX_TOTAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SUNGO_STREAM_MAX_TOTAL value, using default", "value", v, "default", cfg.StreamMaxTotal)
		} else {
			cfg.StreamMaxTotal = n
		}
	}

	if v := os.Getenv("SUNGO_STREAM_KEEPALIVE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SUNGO_STREAM_KEEPALIVE value, using default", "value", v, "default", cfg.StreamKeepalive.Seconds())
		} else {
			cfg.StreamKeepalive = time.Duration(n) * time.Second
		}
	}

	// Milliseconds between played frames.
	if v := os.Getenv("SUNGO_STREAM_INTERVAL_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid SUNGO_STREAM_INTERVAL_MS value, using default", "value", v, "default", cfg.StreamInterval.Milliseconds())
		} else {
			cfg.StreamInterval = time.Duration(n) * time.Millisecond
		}
	}

	if v := os.Getenv("SUNGO_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return nil
}
