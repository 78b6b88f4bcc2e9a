package circuitbreaker

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config holds the tunables for a single circuit breaker. Use
// DefaultConfig for the stock values and Validate before handing the
// config to a breaker.
type Config struct {
	// FailureRateThreshold is the windowed failure percentage (0-100)
	// that opens the circuit.
	FailureRateThreshold float64 `mapstructure:"failure_rate_threshold"`

	// MinimumCalls is the number of windowed calls required before the
	// failure rate is trusted.
	MinimumCalls int `mapstructure:"minimum_calls"`

	// SlidingWindowSize is the capacity of the outcome window.
	SlidingWindowSize int `mapstructure:"sliding_window_size"`

	// OpenStateWait is the cool-down spent in the open state before a
	// probe call is allowed through.
	OpenStateWait time.Duration `mapstructure:"open_state_wait"`

	// HalfOpenMaxCalls bounds the probe calls admitted while half-open
	// and doubles as the success count required for promotion.
	HalfOpenMaxCalls int `mapstructure:"half_open_max_calls"`

	// CallTimeout bounds every admitted call.
	CallTimeout time.Duration `mapstructure:"call_timeout"`

	// AutoHalfOpen controls whether an open breaker probes on its own
	// once OpenStateWait has elapsed. When false, only an explicit
	// administrative transition leaves the open state.
	AutoHalfOpen bool `mapstructure:"auto_half_open"`
}

func DefaultConfig() Config {
	return Config{
		FailureRateThreshold: 50.0,
		MinimumCalls:         5,
		SlidingWindowSize:    10,
		OpenStateWait:        60 * time.Second,
		HalfOpenMaxCalls:     3,
		CallTimeout:          10 * time.Second,
		AutoHalfOpen:         true,
	}
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.FailureRateThreshold,
			validation.Min(0.0),
			validation.Max(100.0),
		),
		validation.Field(&c.MinimumCalls,
			validation.Required,
			validation.Min(1),
		),
		validation.Field(&c.SlidingWindowSize,
			validation.Required,
			validation.Min(1),
		),
		validation.Field(&c.OpenStateWait,
			validation.Required,
			validation.By(validatePositiveDuration),
		),
		validation.Field(&c.HalfOpenMaxCalls,
			validation.Required,
			validation.Min(1),
		),
		validation.Field(&c.CallTimeout,
			validation.Required,
			validation.By(validatePositiveDuration),
		),
	)
}

func validatePositiveDuration(value interface{}) error {
	d, ok := value.(time.Duration)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a duration")
	}

	if d <= 0 {
		return validation.NewError("validation_invalid_duration", "must be a positive duration")
	}

	return nil
}
