// Package config is the viper-backed layered configuration for the
// executor: environment variables override a config file, which overrides
// the defaults below, mirroring the teacher's config-loading idiom
// (internal/config/config.go's env-prefix-over-file-over-default layering).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/alirezaght/arazzo/internal/policy"
	"github.com/alirezaght/arazzo/internal/retry"
	"github.com/alirezaght/arazzo/internal/scheduler"
	"github.com/alirezaght/arazzo/internal/secret"
)

// Config is the process-wide configuration for any arazzorun collaborator
// (CLI, serve HTTP surface, or an embedder driving the scheduler directly).
type Config struct {
	// Database is the DSN the sqlite store opens (a file path; "sqlite"
	// driver is used unless UseCGOSQLite is set).
	Database     string `mapstructure:"database"`
	UseCGOSQLite bool   `mapstructure:"use_cgo_sqlite"`

	GlobalConcurrency    int            `mapstructure:"global_concurrency"`
	PerSourceConcurrency map[string]int `mapstructure:"per_source_concurrency"`
	PollInterval         time.Duration  `mapstructure:"poll_interval"`
	RunTimeout           time.Duration  `mapstructure:"run_timeout"`

	Policy Policy `mapstructure:"policy"`
	Retry  Retry  `mapstructure:"retry"`
	Secret Secret `mapstructure:"secret"`

	Telemetry Telemetry `mapstructure:"telemetry"`

	// APIAddr is the listen address for the `serve` subcommand's gin
	// introspection surface (internal/httpapi). Empty means ":8585".
	APIAddr string `mapstructure:"api_addr"`
}

// Policy mirrors policy.Config with viper-friendly tags; ToPolicyConfig
// converts it to the gate's own type.
type Policy struct {
	AllowSchemes          []string `mapstructure:"allow_schemes"`
	AllowHosts            []string `mapstructure:"allow_hosts"`
	DenyPrivateIPLiterals bool     `mapstructure:"deny_private_ip_literals"`
	MaxRequestBodyBytes   int      `mapstructure:"max_request_body_bytes"`
	MaxResponseBodyBytes  int      `mapstructure:"max_response_body_bytes"`
	AllowRedirects        bool     `mapstructure:"allow_redirects"`
}

func (p Policy) ToPolicyConfig() policy.Config {
	c := policy.DefaultConfig()
	if len(p.AllowSchemes) > 0 {
		c.AllowSchemes = p.AllowSchemes
	}
	if len(p.AllowHosts) > 0 {
		c.AllowHosts = p.AllowHosts
	}
	c.DenyPrivateIPLiterals = p.DenyPrivateIPLiterals
	if p.MaxRequestBodyBytes > 0 {
		c.MaxRequestBodyBytes = p.MaxRequestBodyBytes
	}
	if p.MaxResponseBodyBytes > 0 {
		c.MaxResponseBodyBytes = p.MaxResponseBodyBytes
	}
	c.AllowRedirects = p.AllowRedirects
	return c
}

// Retry mirrors retry.Config.
type Retry struct {
	GlobalMaxAttempts int           `mapstructure:"global_max_attempts"`
	BaseDelay         time.Duration `mapstructure:"base_delay"`
	Factor            float64       `mapstructure:"factor"`
	MaxDelay          time.Duration `mapstructure:"max_delay"`
}

func (r Retry) ToRetryConfig() retry.Config {
	c := retry.DefaultConfig()
	if r.GlobalMaxAttempts > 0 {
		c.GlobalMaxAttempts = r.GlobalMaxAttempts
	}
	if r.BaseDelay > 0 {
		c.BaseDelay = r.BaseDelay
	}
	if r.Factor > 0 {
		c.Factor = r.Factor
	}
	if r.MaxDelay > 0 {
		c.MaxDelay = r.MaxDelay
	}
	return c
}

// Secret configures which built-in secret providers are composed, in
// first-match order, and the caching layer wrapping them (spec.md §4.7).
type Secret struct {
	EnvPrefix    string        `mapstructure:"env_prefix"`
	FileBaseDir  string        `mapstructure:"file_base_dir"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	CacheEntries int           `mapstructure:"cache_entries"`
}

func (s Secret) ToCacheConfig() secret.CacheConfig {
	c := secret.DefaultCacheConfig()
	if s.CacheTTL > 0 {
		c.TTL = s.CacheTTL
	}
	if s.CacheEntries > 0 {
		c.Capacity = s.CacheEntries
	}
	return c
}

// Telemetry configures the OTLP/HTTP trace exporter wired up by
// internal/telemetry, mirroring the shape of the teacher's
// pkg/faker/telemetry.Tracer constructor.
type Telemetry struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// ToSchedulerConfig converts the concurrency/timing fields to a
// scheduler.Config, filling in the package defaults for anything zero.
func (c Config) ToSchedulerConfig() scheduler.Config {
	sc := scheduler.DefaultConfig()
	if c.GlobalConcurrency > 0 {
		sc.GlobalConcurrency = c.GlobalConcurrency
	}
	if len(c.PerSourceConcurrency) > 0 {
		sc.PerSourceConcurrency = c.PerSourceConcurrency
	}
	if c.PollInterval > 0 {
		sc.PollInterval = c.PollInterval
	}
	if c.RunTimeout > 0 {
		sc.RunTimeout = c.RunTimeout
	}
	return sc
}

// Defaults returns the built-in configuration before any file/env overlay
// is applied.
func Defaults() Config {
	return Config{
		Database:          "arazzorun.db",
		GlobalConcurrency: scheduler.DefaultGlobalConcurrency,
		PollInterval:      scheduler.DefaultPollInterval,
		RunTimeout:        scheduler.DefaultRunTimeout,
		Policy: Policy{
			AllowSchemes:          []string{"https"},
			DenyPrivateIPLiterals: true,
		},
		Retry: Retry{
			GlobalMaxAttempts: retry.DefaultConfig().GlobalMaxAttempts,
			BaseDelay:         retry.DefaultConfig().BaseDelay,
			Factor:            retry.DefaultConfig().Factor,
			MaxDelay:          retry.DefaultConfig().MaxDelay,
		},
		Secret: Secret{
			EnvPrefix:    "",
			CacheTTL:     60 * time.Second,
			CacheEntries: 256,
		},
		Telemetry: Telemetry{
			Enabled:     false,
			ServiceName: "arazzorun",
			Environment: "development",
			SampleRate:  1.0,
		},
		APIAddr: "",
	}
}

// bindEnvVars binds ARAZZORUN_-prefixed environment variables to their
// config keys, following the teacher's bindEnvVars pattern of explicit
// per-key bindings rather than a single AutomaticEnv prefix (so nested
// keys with underscores in their own names, e.g. database, are unambiguous).
func bindEnvVars(v *viper.Viper) {
	v.BindEnv("database", "ARAZZORUN_DATABASE", "DATABASE_URL")
	v.BindEnv("use_cgo_sqlite", "ARAZZORUN_USE_CGO_SQLITE")
	v.BindEnv("global_concurrency", "ARAZZORUN_GLOBAL_CONCURRENCY")
	v.BindEnv("poll_interval", "ARAZZORUN_POLL_INTERVAL")
	v.BindEnv("run_timeout", "ARAZZORUN_RUN_TIMEOUT")
	v.BindEnv("api_addr", "ARAZZORUN_API_ADDR")

	v.BindEnv("policy.allow_hosts", "ARAZZORUN_ALLOW_HOSTS")
	v.BindEnv("policy.allow_schemes", "ARAZZORUN_ALLOW_SCHEMES")
	v.BindEnv("policy.deny_private_ip_literals", "ARAZZORUN_DENY_PRIVATE_IPS")
	v.BindEnv("policy.allow_redirects", "ARAZZORUN_ALLOW_REDIRECTS")

	v.BindEnv("retry.global_max_attempts", "ARAZZORUN_RETRY_MAX_ATTEMPTS")
	v.BindEnv("retry.base_delay", "ARAZZORUN_RETRY_BASE_DELAY")
	v.BindEnv("retry.factor", "ARAZZORUN_RETRY_FACTOR")
	v.BindEnv("retry.max_delay", "ARAZZORUN_RETRY_MAX_DELAY")

	v.BindEnv("secret.env_prefix", "ARAZZORUN_SECRET_ENV_PREFIX")
	v.BindEnv("secret.file_base_dir", "ARAZZORUN_SECRET_FILE_BASE_DIR")
	v.BindEnv("secret.cache_ttl", "ARAZZORUN_SECRET_CACHE_TTL")
	v.BindEnv("secret.cache_entries", "ARAZZORUN_SECRET_CACHE_ENTRIES")

	v.BindEnv("telemetry.enabled", "ARAZZORUN_TELEMETRY_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT")
	v.BindEnv("telemetry.endpoint", "ARAZZORUN_TELEMETRY_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	v.BindEnv("telemetry.service_name", "ARAZZORUN_TELEMETRY_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.environment", "ARAZZORUN_TELEMETRY_ENVIRONMENT")
	v.BindEnv("telemetry.sample_rate", "ARAZZORUN_TELEMETRY_SAMPLE_RATE")
}

// Load reads cfgFile (if non-empty) plus any ARAZZORUN_*-prefixed
// environment variables on top of Defaults(). A missing cfgFile path is
// not an error; a malformed one is.
func Load(cfgFile string) (Config, error) {
	cfg := Defaults()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvVars(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("reading config file %s: %w", cfgFile, err)
			}
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}

	if cfg.GlobalConcurrency <= 0 {
		cfg.GlobalConcurrency = Defaults().GlobalConcurrency
	}
	return cfg, nil
}
