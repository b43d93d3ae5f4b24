package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads and parses configuration from a YAML file, applies defaults,
// then layers environment overrides on top.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	// A sidecar lock file pins the config's hash; refuse to start if the
	// file changed since it was locked.
	if lock, lerr := os.ReadFile(LockPath(absPath)); lerr == nil {
		expected := strings.TrimSpace(string(lock))
		if err := VerifyFileHash(absPath, expected); err != nil {
			return nil, fmt.Errorf("config integrity check failed: %w", err)
		}
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Service.Name == "" {
		return fmt.Errorf("service.name is empty")
	}
	if cfg.Storage.Path == "" {
		return fmt.Errorf("storage.path is empty")
	}
	if cfg.Record.Enabled && cfg.Service.Production {
		// Recording is a development aid; refuse rather than silently drop it.
		return fmt.Errorf("record.enabled is not allowed in production")
	}
	if !cfg.Auth.Skip && !cfg.Service.TestMode && cfg.Auth.Secret == "" && cfg.Service.Production {
		return fmt.Errorf("auth.secret is required in production")
	}
	return nil
}
