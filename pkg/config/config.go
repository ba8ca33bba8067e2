// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every setting except the upstream credential.
const EnvPrefix = "PREDICTION_PROXY"

// Supported values for LogFormat.
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

// MaxBodyBytesLimit is the largest accepted MaxBodyBytes.
const MaxBodyBytesLimit int64 = 1 << 30

// Config captures runtime settings for the proxy. It is read once at startup
// and treated as immutable afterwards. Every field except APIToken is read
// only from its PREDICTION_PROXY_ prefixed variable; split_words derives the
// suffix from the field name (ListenAddr -> LISTEN_ADDR).
type Config struct {
	ListenAddr              string        `split_words:"true" default:"0.0.0.0:8080"`
	MetricsAddr             string        `split_words:"true" default:"127.0.0.1:9090"`
	UpstreamURL             string        `split_words:"true" default:"https://api.replicate.com/v1/predictions"`
	DefaultVersion          string        `split_words:"true"`
	RequestTimeout          time.Duration `split_words:"true" default:"60s"`
	MaxBodyBytes            int64         `split_words:"true" default:"10485760"`
	UpstreamInsecure        bool          `split_words:"true" default:"false"`
	LogLevel                string        `split_words:"true" default:"info"`
	LogFormat               string        `split_words:"true" default:"json"`
	ServerReadTimeout       time.Duration `split_words:"true" default:"30s"`
	ServerWriteTimeout      time.Duration `split_words:"true" default:"90s"`
	ServerIdleTimeout       time.Duration `split_words:"true" default:"120s"`
	GracefulShutdownTimeout time.Duration `split_words:"true" default:"10s"`

	// APIToken is read from REPLICATE_API_TOKEN, without the prefix.
	APIToken string `ignored:"true"`
	// Upstream is UpstreamURL after parsing and validation.
	Upstream *url.URL `ignored:"true"`
}

// credentials is processed without a prefix so the token keeps the name used
// by the hosted worker deployments.
type credentials struct {
	APIToken string `envconfig:"REPLICATE_API_TOKEN"`
}

// Load reads configuration from environment variables and validates it.
// A missing APIToken is not an error here: the proxy reports it per request.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}

	var creds credentials
	if err := envconfig.Process("", &creds); err != nil {
		return Config{}, fmt.Errorf("read credentials: %w", err)
	}

	cfg.APIToken = strings.TrimSpace(creds.APIToken)
	cfg.DefaultVersion = strings.TrimSpace(cfg.DefaultVersion)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the invariants Load relies on and fills in Upstream.
// Callers that build a Config by hand (tests, embedding) should call it too.
func (c *Config) Validate() error {
	raw := strings.TrimSpace(c.UpstreamURL)
	if raw == "" {
		return errors.New(EnvPrefix + "_UPSTREAM_URL must not be empty")
	}

	upstream, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s_UPSTREAM_URL: %w", EnvPrefix, err)
	}
	if !upstream.IsAbs() || upstream.Host == "" {
		return errors.New(EnvPrefix + "_UPSTREAM_URL must be absolute (scheme://host/path)")
	}
	c.UpstreamURL = raw
	c.Upstream = upstream

	if strings.TrimSpace(c.ListenAddr) == "" {
		return errors.New(EnvPrefix + "_LISTEN_ADDR must not be empty")
	}
	if c.MaxBodyBytes <= 0 || c.MaxBodyBytes > MaxBodyBytesLimit {
		return fmt.Errorf("%s_MAX_BODY_BYTES must be in (0, %d], got %d", EnvPrefix, MaxBodyBytesLimit, c.MaxBodyBytes)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("%s_REQUEST_TIMEOUT must not be negative, got %s", EnvPrefix, c.RequestTimeout)
	}

	switch c.LogFormat {
	case "":
		c.LogFormat = LogFormatJSON
	case LogFormatJSON, LogFormatConsole:
	default:
		return fmt.Errorf("%s_LOG_FORMAT must be %q or %q, got %q", EnvPrefix, LogFormatJSON, LogFormatConsole, c.LogFormat)
	}

	return nil
}

// HasCredential reports whether an upstream token was configured.
func (c Config) HasCredential() bool {
	return c.APIToken != ""
}
