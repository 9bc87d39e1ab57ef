package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config with TOML-friendly types: durations are strings
// and optional booleans are pointers so "false" can be told from "unset".
type FileConfig struct {
	HTTP struct {
		Addr       string `toml:"addr"`
		TrustProxy *bool  `toml:"trust_proxy"`
	} `toml:"http"`
	Auth struct {
		Enabled *bool  `toml:"enabled"`
		Token   string `toml:"token"`
	} `toml:"auth"`
	Helioviewer struct {
		URL     string `toml:"url"`
		Timeout string `toml:"timeout"`
	} `toml:"helioviewer"`
	Assets struct {
		ModelPath      string `toml:"model_path"`
		Watch          *bool  `toml:"watch"`
		MaxTextureSize int    `toml:"max_texture_size"`
	} `toml:"assets"`
	Frames struct {
		Quality string `toml:"quality"`
		Cadence string `toml:"cadence"`
	} `toml:"frames"`
	Stream struct {
		MaxPerIP  int    `toml:"max_per_ip"`
		MaxTotal  int    `toml:"max_total"`
		Keepalive string `toml:"keepalive"`
		Interval  string `toml:"interval"`
	} `toml:"stream"`
	LogLevel string `toml:"log_level"`
}

// LoadFileConfig reads and parses the TOML file at path. Unknown keys are
// rejected so typos surface at startup.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	dec := toml.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// ApplyFileConfig copies the values set in fc onto cfg.
func ApplyFileConfig(cfg *Config, fc FileConfig) error {
	setString(fc.HTTP.Addr, &cfg.HTTPAddr)
	setBool(fc.HTTP.TrustProxy, &cfg.TrustProxy)
	setBool(fc.Auth.Enabled, &cfg.AuthEnabled)
	setString(fc.Auth.Token, &cfg.AuthToken)
	setString(fc.Helioviewer.URL, &cfg.HelioviewerURL)
	setString(fc.Assets.ModelPath, &cfg.ModelPath)
	setBool(fc.Assets.Watch, &cfg.WatchAssets)
	if fc.Assets.MaxTextureSize != 0 {
		cfg.MaxTextureSize = fc.Assets.MaxTextureSize
	}
	setString(fc.Frames.Quality, &cfg.Quality)
	if fc.Stream.MaxPerIP != 0 {
		cfg.StreamMaxPerIP = fc.Stream.MaxPerIP
	}
	if fc.Stream.MaxTotal != 0 {
		cfg.StreamMaxTotal = fc.Stream.MaxTotal
	}
	setString(fc.LogLevel, &cfg.LogLevel)

	if err := setDuration("helioviewer.timeout", fc.Helioviewer.Timeout, &cfg.HTTPTimeout); err != nil {
		return err
	}
	if err := setDuration("frames.cadence", fc.Frames.Cadence, &cfg.Cadence); err != nil {
		return err
	}
	if err := setDuration("stream.keepalive", fc.Stream.Keepalive, &cfg.StreamKeepalive); err != nil {
		return err
	}
	if err := setDuration("stream.interval", fc.Stream.Interval, &cfg.StreamInterval); err != nil {
		return err
	}
	return nil
}

func setString(v string, dst *string) {
	if v != "" {
		*dst = v
	}
}

func setBool(v *bool, dst *bool) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(key, v string, dst *time.Duration) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}
