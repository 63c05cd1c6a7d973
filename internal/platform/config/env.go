// Package config loads pricedesk process configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix namespaces every pricedesk environment variable. Struct tags name
// variables without it.
const EnvPrefix = "PRICEDESK_"

// ParseEnv loads configuration from prefixed environment variables.
func ParseEnv(target any) error {
	return ParseEnvFrom(target, nil)
}

// ParseEnvFrom loads configuration from environment. A nil map reads the
// process environment.
func ParseEnvFrom(target any, environment map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environment != nil {
		opts.Environment = environment
	}
	if err := env.ParseWithOptions(target, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
