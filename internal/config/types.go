package config

import "time"

// Config represents the complete addongate configuration.
type Config struct {
	Service   ServiceConfig `yaml:"service"`
	Storage   StorageConfig `yaml:"storage"`
	API       APIConfig     `yaml:"api,omitempty"`
	Auth      AuthConfig    `yaml:"auth"`
	Record    RecordConfig  `yaml:"record,omitempty"`
	AddonsDir string        `yaml:"addons_dir"`
	Cache     CacheConfig   `yaml:"cache,omitempty"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name       string `yaml:"name"`
	LogLevel   string `yaml:"log_level"`
	Production bool   `yaml:"production"`
	TestMode   bool   `yaml:"test_mode"`
}

// StorageConfig defines the durable store settings.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Listen string `yaml:"listen"`
}

// AuthConfig defines signature verification settings.
type AuthConfig struct {
	// Secret is the shared HMAC secret used to verify request signatures.
	Secret string `yaml:"secret"`
	// Skip disables signature enforcement (the explicit skip-auth override).
	Skip bool `yaml:"skip"`
}

// RecordConfig defines request recording settings. Recording is forced off
// when the deployment is flagged as production.
type RecordConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

// CacheConfig defines default cache behaviour for addons that do not
// declare their own options.
type CacheConfig struct {
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "addongate",
			LogLevel: "info",
		},
		Storage: StorageConfig{
			Path: "./data/addongate.db",
		},
		API: APIConfig{
			Listen: "127.0.0.1:7700",
		},
		AddonsDir: "./addons",
		Cache: CacheConfig{
			DefaultTTL: time.Hour,
		},
	}
}
