// Package config loads referralpro service configuration.
//
// All services read REFERRALPRO_-prefixed environment variables into tagged
// structs; command packages layer flag overrides on top of the parsed
// defaults.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
