package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// envOverrides are the environment-level switches the engine consumes.
// They take precedence over the config file.
type envOverrides struct {
	Production *bool   `env:"ADDONGATE_PRODUCTION"`
	TestMode   *bool   `env:"ADDONGATE_TEST_MODE"`
	SkipAuth   *bool   `env:"ADDONGATE_SKIP_AUTH"`
	Record     *bool   `env:"ADDONGATE_RECORD"`
	RecordPath *string `env:"ADDONGATE_RECORD_PATH"`
	Secret     *string `env:"ADDONGATE_SECRET"`
	Listen     *string `env:"ADDONGATE_LISTEN"`
}

// ApplyEnv layers environment variable overrides onto cfg.
func ApplyEnv(cfg *Config) error {
	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if ov.Production != nil {
		cfg.Service.Production = *ov.Production
	}
	if ov.TestMode != nil {
		cfg.Service.TestMode = *ov.TestMode
	}
	if ov.SkipAuth != nil {
		cfg.Auth.Skip = *ov.SkipAuth
	}
	if ov.Record != nil {
		cfg.Record.Enabled = *ov.Record
	}
	if ov.RecordPath != nil {
		cfg.Record.Path = *ov.RecordPath
	}
	if ov.Secret != nil {
		cfg.Auth.Secret = *ov.Secret
	}
	if ov.Listen != nil {
		cfg.API.Listen = *ov.Listen
	}
	return nil
}
