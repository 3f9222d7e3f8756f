// Package config binds `env`-tagged structs to environment variables.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Load fills cfg from the process environment.
func Load(cfg any) error {
	return LoadEnviron(cfg, nil)
}

// LoadEnviron fills cfg from environ instead of the process environment.
// A nil map means the process environment.
func LoadEnviron(cfg any, environ map[string]string) error {
	var opts env.Options
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}
