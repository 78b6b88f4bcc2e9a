package config

import (
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"

	"github.com/fireflyframework/resilient-gateway/internal/circuitbreaker"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type HealthCheckConfig struct {
	Interval string `mapstructure:"interval"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// BreakerConfig mirrors circuitbreaker.Config with string durations so it
// reads naturally from yaml ("60s") and environment variables.
type BreakerConfig struct {
	FailureRateThreshold float64 `mapstructure:"failure_rate_threshold"`
	MinimumCalls         int     `mapstructure:"minimum_calls"`
	SlidingWindowSize    int     `mapstructure:"sliding_window_size"`
	OpenStateWait        string  `mapstructure:"open_state_wait"`
	HalfOpenMaxCalls     int     `mapstructure:"half_open_max_calls"`
	CallTimeout          string  `mapstructure:"call_timeout"`
	AutoHalfOpen         *bool   `mapstructure:"auto_half_open"`
}

// UpstreamConfig declares one dependency. An optional breaker section
// overrides the gateway-wide defaults field by field.
type UpstreamConfig struct {
	Name    string         `mapstructure:"name"`
	URL     string         `mapstructure:"url"`
	Breaker *BreakerConfig `mapstructure:"breaker"`
}

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	HealthCheck HealthCheckConfig `mapstructure:"health_check"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Breaker     BreakerConfig     `mapstructure:"breaker"`
	Upstreams   []UpstreamConfig  `mapstructure:"upstreams"`
}

func Load() (*Config, error) {
	viper.SetDefault("server.environment", EnvDev)
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("health_check.interval", "10s")
	viper.SetDefault("logging.level", LogLevelInfo)
	viper.SetDefault("breaker.failure_rate_threshold", 50.0)
	viper.SetDefault("breaker.minimum_calls", 5)
	viper.SetDefault("breaker.sliding_window_size", 10)
	viper.SetDefault("breaker.open_state_wait", "60s")
	viper.SetDefault("breaker.half_open_max_calls", 3)
	viper.SetDefault("breaker.call_timeout", "10s")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Error("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", viper.ConfigFileUsed()))
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

// DefaultBreaker returns the validated gateway-wide breaker policy.
func (c *Config) DefaultBreaker() (circuitbreaker.Config, error) {
	return c.Breaker.toBreaker()
}

// BreakerFor resolves the effective breaker policy for one upstream:
// the gateway-wide defaults with the upstream's overrides applied on top.
// The result is validated before being returned.
func (c *Config) BreakerFor(u UpstreamConfig) (circuitbreaker.Config, error) {
	merged := c.Breaker.merge(u.Breaker)
	return merged.toBreaker()
}

func (b BreakerConfig) merge(override *BreakerConfig) BreakerConfig {
	if override == nil {
		return b
	}

	if override.FailureRateThreshold != 0 {
		b.FailureRateThreshold = override.FailureRateThreshold
	}
	if override.MinimumCalls != 0 {
		b.MinimumCalls = override.MinimumCalls
	}
	if override.SlidingWindowSize != 0 {
		b.SlidingWindowSize = override.SlidingWindowSize
	}
	if override.OpenStateWait != "" {
		b.OpenStateWait = override.OpenStateWait
	}
	if override.HalfOpenMaxCalls != 0 {
		b.HalfOpenMaxCalls = override.HalfOpenMaxCalls
	}
	if override.CallTimeout != "" {
		b.CallTimeout = override.CallTimeout
	}
	if override.AutoHalfOpen != nil {
		b.AutoHalfOpen = override.AutoHalfOpen
	}

	return b
}

func (b BreakerConfig) toBreaker() (circuitbreaker.Config, error) {
	cfg := circuitbreaker.DefaultConfig()

	cfg.FailureRateThreshold = b.FailureRateThreshold
	cfg.MinimumCalls = b.MinimumCalls
	cfg.SlidingWindowSize = b.SlidingWindowSize
	cfg.HalfOpenMaxCalls = b.HalfOpenMaxCalls

	if b.OpenStateWait != "" {
		wait, err := time.ParseDuration(b.OpenStateWait)
		if err != nil {
			return circuitbreaker.Config{}, err
		}
		cfg.OpenStateWait = wait
	}

	if b.CallTimeout != "" {
		timeout, err := time.ParseDuration(b.CallTimeout)
		if err != nil {
			return circuitbreaker.Config{}, err
		}
		cfg.CallTimeout = timeout
	}

	if b.AutoHalfOpen != nil {
		cfg.AutoHalfOpen = *b.AutoHalfOpen
	}

	if err := cfg.Validate(); err != nil {
		return circuitbreaker.Config{}, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.HealthCheck,
			validation.Required,
			validation.By(func(value interface{}) error {
				hc, ok := value.(HealthCheckConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a HealthCheckConfig")
				}
				return validation.ValidateStruct(&hc,
					validation.Field(&hc.Interval,
						validation.Required,
						validation.By(validateDuration),
					),
				)
			}),
		),
		validation.Field(&c.Breaker,
			validation.Required,
			validation.By(validateBreakerSection),
		),
		validation.Field(&c.Upstreams,
			validation.Required,
			validation.Length(1, 0),
			validation.Each(validation.By(validateUpstreamConfig)),
		),
	)
}

func validateBreakerSection(value interface{}) error {
	var bc BreakerConfig
	switch v := value.(type) {
	case BreakerConfig:
		bc = v
	case *BreakerConfig:
		if v == nil {
			return nil
		}
		bc = *v
	default:
		return validation.NewError("validation_invalid_type", "must be a BreakerConfig")
	}

	if _, err := bc.toBreaker(); err != nil {
		return validation.NewError("validation_invalid_breaker", err.Error())
	}

	return nil
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if _, err := time.ParseDuration(durationStr); err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}

	return nil
}

func validateUpstreamConfig(value interface{}) error {
	up, ok := value.(UpstreamConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be an UpstreamConfig")
	}

	if up.Name == "" {
		return validation.NewError("validation_empty_name", "upstream name cannot be empty")
	}

	if strings.Contains(up.Name, "/") {
		return validation.NewError("validation_invalid_name", "upstream name cannot contain '/'")
	}

	if up.URL == "" {
		return validation.NewError("validation_empty_url", "upstream URL cannot be empty")
	}

	parsedURL, err := url.Parse(up.URL)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	// Overrides are partial, so only the syntax is checked here; the
	// merged policy is validated in BreakerFor.
	if up.Breaker != nil {
		if up.Breaker.OpenStateWait != "" {
			if err := validateDuration(up.Breaker.OpenStateWait); err != nil {
				return err
			}
		}
		if up.Breaker.CallTimeout != "" {
			if err := validateDuration(up.Breaker.CallTimeout); err != nil {
				return err
			}
		}
	}

	return nil
}
