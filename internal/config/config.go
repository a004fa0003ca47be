// Package config loads, validates, and normalises site configuration.
//
// Values are layered: defaults, then YAML files, then environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort             = 8080
	defaultShutdownTimeout  = 15 * time.Second
	defaultBasePath         = "/devdirect-website"
	defaultTrustedSuffix    = ".supabase.co"
	defaultStorageHealth    = "/storage/v1/version"
	defaultReadinessTimeout = 2 * time.Second
	defaultSessionTTL       = 30 * time.Minute
	defaultSessionCookie    = "devdirect_session"
	defaultRateLimitWindow  = 60 * time.Second
	defaultRateLimitMax     = 300
	defaultMetricsEnabled   = true
	defaultSettingsPath     = "data/settings.json"
	defaultRedisPrefix      = "devdirect:"

	defaultConfigEnvVar    = "DEVDIRECT_CONFIG"
	envPort                = "PORT"
	envShutdownTimeout     = "SHUTDOWN_TIMEOUT_MS"
	envBasePath            = "BASE_PATH"
	envGitSHA              = "GIT_SHA"
	envStorageURL          = "SUPABASE_URL"
	envStorageURLPublic    = "NEXT_PUBLIC_SUPABASE_URL"
	envTrustedSuffix       = "STORAGE_TRUSTED_SUFFIX"
	envReadinessTimeout    = "READINESS_TIMEOUT_MS"
	envSettingsStore       = "SETTINGS_STORE"
	envSettingsPath        = "SETTINGS_PATH"
	envSettingsRedisAddr   = "SETTINGS_REDIS_ADDR"
	envSettingsRedisPrefix = "SETTINGS_REDIS_PREFIX"
	envSessionTTL          = "SESSION_TTL_MS"
	envCorsAllowedOrigins  = "CORS_ALLOWED_ORIGINS"
	envRateLimitWindow     = "RATE_LIMIT_WINDOW_MS"
	envRateLimitMax        = "RATE_LIMIT_MAX"
	envMetricsEnabled      = "METRICS_ENABLED"
)

// Settings store kinds.
const (
	StoreNone   = "none"
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Config captures runtime configuration for the site.
type Config struct {
	Version   string          `yaml:"version"`
	HTTP      HTTPConfig      `yaml:"http"`
	Storage   StorageConfig   `yaml:"storage"`
	Settings  SettingsConfig  `yaml:"settings"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	CORS      CORSConfig      `yaml:"cors"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// HTTPConfig configures listener behaviour.
type HTTPConfig struct {
	Port            int      `yaml:"port"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout"`
	BasePath        string   `yaml:"basePath"`
}

// StorageConfig describes the hosted media storage the site trusts.
type StorageConfig struct {
	BaseURL          string   `yaml:"baseURL"`
	TrustedSuffix    string   `yaml:"trustedSuffix"`
	HealthPath       string   `yaml:"healthPath"`
	ReadinessTimeout Duration `yaml:"readinessTimeout"`
}

// SettingsConfig selects the key-value store company settings are read from.
// The memory store starts empty and can only be filled in-process, so it is
// meant for embedding and tests; from configuration alone it serves defaults.
type SettingsConfig struct {
	Store       string `yaml:"store"`
	Path        string `yaml:"path"`
	RedisAddr   string `yaml:"redisAddr"`
	RedisPrefix string `yaml:"redisPrefix"`
}

// SessionsConfig controls visitor sessions that own a service selection.
type SessionsConfig struct {
	TTL        Duration `yaml:"ttl"`
	CookieName string   `yaml:"cookieName"`
}

// CORSConfig captures allowed origins for the JSON API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// RateLimitConfig captures per-client throttling.
type RateLimitConfig struct {
	Window Duration `yaml:"window"`
	Max    int      `yaml:"max"`
}

// MetricsConfig toggles metrics exposure.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Duration is a YAML-friendly wrapper over time.Duration supporting numeric millisecond inputs.
type Duration time.Duration

// AsDuration returns the underlying time.Duration.
func (d Duration) AsDuration() time.Duration {
	return time.Duration(d)
}

// MarshalYAML encodes the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.AsDuration().String(), nil
}

// UnmarshalYAML decodes Go duration strings or millisecond integers.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("unsupported duration node kind: %v", value.Kind)
	}

	txt := strings.TrimSpace(value.Value)
	if txt == "" {
		*d = 0
		return nil
	}
	if ms, err := strconv.Atoi(txt); err == nil {
		if ms < 0 {
			return fmt.Errorf("duration must be non-negative, got %d", ms)
		}
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	parsed, err := time.ParseDuration(txt)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", txt, err)
	}
	if parsed < 0 {
		return fmt.Errorf("duration must be non-negative, got %s", parsed)
	}
	*d = Duration(parsed)
	return nil
}

// DurationFrom constructs a Duration from a time.Duration.
func DurationFrom(d time.Duration) Duration {
	return Duration(d)
}

// Default returns baseline configuration values.
func Default() Config {
	return Config{
		Version: os.Getenv(envGitSHA),
		HTTP: HTTPConfig{
			Port:            defaultPort,
			ShutdownTimeout: DurationFrom(defaultShutdownTimeout),
			BasePath:        defaultBasePath,
		},
		Storage: StorageConfig{
			TrustedSuffix:    defaultTrustedSuffix,
			HealthPath:       defaultStorageHealth,
			ReadinessTimeout: DurationFrom(defaultReadinessTimeout),
		},
		Settings: SettingsConfig{
			Store:       StoreNone,
			Path:        defaultSettingsPath,
			RedisPrefix: defaultRedisPrefix,
		},
		Sessions: SessionsConfig{
			TTL:        DurationFrom(defaultSessionTTL),
			CookieName: defaultSessionCookie,
		},
		RateLimit: RateLimitConfig{
			Window: DurationFrom(defaultRateLimitWindow),
			Max:    defaultRateLimitMax,
		},
		Metrics: MetricsConfig{Enabled: defaultMetricsEnabled},
	}
}

// Option customises the load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	paths     []string
	lookupEnv func(string) (string, bool)
}

// WithPath adds a YAML config path to attempt loading.
func WithPath(path string) Option {
	return func(o *loaderOptions) {
		if strings.TrimSpace(path) != "" {
			o.paths = append(o.paths, path)
		}
	}
}

// WithLookupEnv overrides the environment lookup function.
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(o *loaderOptions) {
		o.lookupEnv = fn
	}
}

// Load builds a Config from defaults, YAML files, and environment overrides (in that order).
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{lookupEnv: os.LookupEnv}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if envPath, ok := options.lookupEnv(defaultConfigEnvVar); ok && strings.TrimSpace(envPath) != "" {
		options.paths = append([]string{strings.TrimSpace(envPath)}, options.paths...)
	}

	cfg := Default()

	for _, path := range options.paths {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			continue
		case err != nil:
			return cfg, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("decode config %q: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&cfg, options.lookupEnv); err != nil {
		return cfg, err
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) (string, bool) {
		val, ok := lookup(key)
		val = strings.TrimSpace(val)
		return val, ok && val != ""
	}

	if val, ok := get(envPort); ok {
		port, err := strconv.Atoi(val)
		if err != nil || port <= 0 {
			return fmt.Errorf("invalid %s value: %s", envPort, val)
		}
		cfg.HTTP.Port = port
	}

	if val, ok := get(envShutdownTimeout); ok {
		timeout, err := parsePositiveDurationMillis(val)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", envShutdownTimeout, err)
		}
		cfg.HTTP.ShutdownTimeout = DurationFrom(timeout)
	}

	if val, ok := get(envBasePath); ok {
		cfg.HTTP.BasePath = val
	}

	if val, ok := get(envGitSHA); ok {
		cfg.Version = val
	}

	if val, ok := get(envStorageURLPublic); ok {
		cfg.Storage.BaseURL = val
	}
	if val, ok := get(envStorageURL); ok {
		cfg.Storage.BaseURL = val
	}

	if val, ok := get(envTrustedSuffix); ok {
		cfg.Storage.TrustedSuffix = val
	}

	if val, ok := get(envReadinessTimeout); ok {
		timeout, err := parsePositiveDurationMillis(val)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", envReadinessTimeout, err)
		}
		cfg.Storage.ReadinessTimeout = DurationFrom(timeout)
	}

	if val, ok := get(envSettingsStore); ok {
		cfg.Settings.Store = strings.ToLower(val)
	}
	if val, ok := get(envSettingsPath); ok {
		cfg.Settings.Path = val
	}
	if val, ok := get(envSettingsRedisAddr); ok {
		cfg.Settings.RedisAddr = val
	}
	if val, ok := lookup(envSettingsRedisPrefix); ok {
		cfg.Settings.RedisPrefix = strings.TrimSpace(val)
	}

	if val, ok := get(envSessionTTL); ok {
		ttl, err := parsePositiveDurationMillis(val)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", envSessionTTL, err)
		}
		cfg.Sessions.TTL = DurationFrom(ttl)
	}

	if val, ok := get(envCorsAllowedOrigins); ok {
		cfg.CORS.AllowedOrigins = splitAndTrim(val)
	}

	if val, ok := get(envRateLimitWindow); ok {
		window, err := parsePositiveDurationMillis(val)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", envRateLimitWindow, err)
		}
		cfg.RateLimit.Window = DurationFrom(window)
	}

	if val, ok := get(envRateLimitMax); ok {
		max, err := strconv.Atoi(val)
		if err != nil || max <= 0 {
			return fmt.Errorf("invalid %s: %s", envRateLimitMax, val)
		}
		cfg.RateLimit.Max = max
	}

	if val, ok := get(envMetricsEnabled); ok {
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", envMetricsEnabled, err)
		}
		cfg.Metrics.Enabled = enabled
	}

	return nil
}

// normalize fills in defaults that may be missing after YAML/env overrides.
func (cfg *Config) normalize() {
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = defaultPort
	}
	if cfg.HTTP.ShutdownTimeout.AsDuration() <= 0 {
		cfg.HTTP.ShutdownTimeout = DurationFrom(defaultShutdownTimeout)
	}
	cfg.HTTP.BasePath = strings.TrimRight(strings.TrimSpace(cfg.HTTP.BasePath), "/")
	if cfg.HTTP.BasePath != "" {
		cfg.HTTP.BasePath = ensureLeadingSlash(cfg.HTTP.BasePath)
	}

	if strings.TrimSpace(cfg.Storage.TrustedSuffix) == "" {
		cfg.Storage.TrustedSuffix = defaultTrustedSuffix
	}
	if strings.TrimSpace(cfg.Storage.HealthPath) == "" {
		cfg.Storage.HealthPath = defaultStorageHealth
	} else {
		cfg.Storage.HealthPath = ensureLeadingSlash(cfg.Storage.HealthPath)
	}
	if cfg.Storage.ReadinessTimeout.AsDuration() <= 0 {
		cfg.Storage.ReadinessTimeout = DurationFrom(defaultReadinessTimeout)
	}

	cfg.Settings.Store = strings.ToLower(strings.TrimSpace(cfg.Settings.Store))
	if cfg.Settings.Store == "" {
		cfg.Settings.Store = StoreNone
	}

	if cfg.Sessions.TTL.AsDuration() <= 0 {
		cfg.Sessions.TTL = DurationFrom(defaultSessionTTL)
	}
	if strings.TrimSpace(cfg.Sessions.CookieName) == "" {
		cfg.Sessions.CookieName = defaultSessionCookie
	}

	if cfg.RateLimit.Window.AsDuration() <= 0 {
		cfg.RateLimit.Window = DurationFrom(defaultRateLimitWindow)
	}
	if cfg.RateLimit.Max <= 0 {
		cfg.RateLimit.Max = defaultRateLimitMax
	}
}

// Validate performs semantic validation on the configuration.
func (cfg Config) Validate() error {
	var errs []error

	if cfg.HTTP.Port <= 0 {
		errs = append(errs, errors.New("http.port must be positive"))
	}
	if cfg.HTTP.ShutdownTimeout.AsDuration() <= 0 {
		errs = append(errs, errors.New("http.shutdownTimeout must be positive"))
	}

	if cfg.Storage.BaseURL != "" {
		if _, err := url.ParseRequestURI(cfg.Storage.BaseURL); err != nil {
			errs = append(errs, fmt.Errorf("storage.baseURL invalid: %w", err))
		}
	}

	switch cfg.Settings.Store {
	case StoreNone, StoreMemory:
	case StoreFile, StoreSQLite:
		if strings.TrimSpace(cfg.Settings.Path) == "" {
			errs = append(errs, fmt.Errorf("settings.path is required for the %s store", cfg.Settings.Store))
		}
	case StoreRedis:
		if strings.TrimSpace(cfg.Settings.RedisAddr) == "" {
			errs = append(errs, errors.New("settings.redisAddr is required for the redis store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown settings.store %q", cfg.Settings.Store))
	}

	if cfg.Sessions.TTL.AsDuration() <= 0 {
		errs = append(errs, errors.New("sessions.ttl must be positive"))
	}
	if cfg.RateLimit.Max <= 0 {
		errs = append(errs, errors.New("rateLimit.max must be positive"))
	}
	if cfg.RateLimit.Window.AsDuration() <= 0 {
		errs = append(errs, errors.New("rateLimit.window must be positive"))
	}

	return errors.Join(errs...)
}

func parsePositiveDurationMillis(value string) (time.Duration, error) {
	ms, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	if ms <= 0 {
		return 0, fmt.Errorf("value must be positive: %d", ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func splitAndTrim(value string) []string {
	parts := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ' ' || r == ';'
	})
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func ensureLeadingSlash(path string) string {
	if strings.HasPrefix(path, "/") {
		return path
	}
	return "/" + path
}
