// Package config loads the runtime settings of ntlsync from NTL_* environment variables.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/v2"

	"github.com/fclairamb/ntlsync/internal/apperrors"
	"github.com/fclairamb/ntlsync/internal/tree"
)

// EnvPrefix prefixes every environment variable read by ntlsync.
const EnvPrefix = "NTL_"

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Defaults.
const (
	DefaultHTTPTimeout  = 60 * time.Second
	DefaultRateInterval = 250 * time.Millisecond
	DefaultMaxRetries   = 3
)

var usernamePattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+$`)

// Config holds the settings not exposed as flags.
type Config struct {
	// HTTPTimeout bounds every portal request (NTL_HTTP_TIMEOUT).
	HTTPTimeout time.Duration `koanf:"http_timeout"`
	// RateInterval is the minimum delay between two portal requests (NTL_RATE_INTERVAL).
	RateInterval time.Duration `koanf:"rate_interval"`
	// MaxRetries is how many times a throttled request is attempted (NTL_MAX_RETRIES).
	MaxRetries int `koanf:"max_retries"`
	// History commits the state file to git after every save (NTL_HISTORY).
	History bool `koanf:"history"`
	// LogFormat is text or json (NTL_LOG_FORMAT).
	LogFormat string `koanf:"log_format"`
	// BaseURL is the portal (NTL_BASE_URL).
	BaseURL string `koanf:"base_url"`
}

// Default returns the configuration used when no variable is set.
func Default() *Config {
	return &Config{
		HTTPTimeout:  DefaultHTTPTimeout,
		RateInterval: DefaultRateInterval,
		MaxRetries:   DefaultMaxRetries,
		LogFormat:    LogFormatText,
		BaseURL:      tree.DefaultBaseURL,
	}
}

// Option configures Load.
type Option func(*env.Opt)

// WithEnviron reads variables from environ instead of the process environment.
func WithEnviron(environ func() []string) Option {
	return func(o *env.Opt) {
		o.EnvironFunc = environ
	}
}

// Load reads the NTL_* variables over the defaults and validates the result.
func Load(opts ...Option) (*Config, error) {
	envOpt := env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(k, v string) (string, any) {
			return strings.ToLower(strings.TrimPrefix(k, EnvPrefix)), strings.TrimSpace(v)
		},
	}
	for _, opt := range opts {
		opt(&envOpt)
	}

	k := koanf.New(".")
	if err := k.Load(env.Provider(".", envOpt), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.HTTPTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.RateInterval, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxRetries, validation.Required, validation.Min(1)),
		validation.Field(&c.LogFormat, validation.In(LogFormatText, LogFormatJSON)),
		validation.Field(&c.BaseURL, validation.Required,
			validation.Match(regexp.MustCompile(`^https?://`)).Error("must be an http(s) URL")),
	)
}

// Credentials are the portal login.
type Credentials struct {
	Username string
	Password string
}

// Validate checks that both values are present and the username carries its domain.
func (c *Credentials) Validate() error {
	if c.Username == "" {
		return apperrors.ErrUsernameRequired
	}
	if c.Password == "" {
		return apperrors.ErrPasswordRequired
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Username,
			validation.Match(usernamePattern).Error("must include the domain, e.g. user@student.main.ntu.edu.sg")),
	)
}
