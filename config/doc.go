// Package config loads and validates the gateway configuration from a
// yaml file and environment variables using viper. Circuit breaker
// tunables are declared once as gateway-wide defaults and may be
// overridden per upstream; every value is validated with ozzo-validation
// before the gateway starts.
package config
