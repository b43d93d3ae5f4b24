package addon

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CacheDecl declares an addon's default cache options.
type CacheDecl struct {
	TTL time.Duration `yaml:"ttl,omitempty" json:"ttl,omitempty"`
}

// Manifest describes an addon to the platform and to clients.
type Manifest struct {
	ID          string    `yaml:"id" json:"id"`
	Name        string    `yaml:"name" json:"name"`
	Version     string    `yaml:"version" json:"version"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
	Actions     []string  `yaml:"actions,omitempty" json:"actions,omitempty"`
	Cache       CacheDecl `yaml:"cache,omitempty" json:"cache,omitempty"`
}

// Validate checks the manifest's required fields.
func (m Manifest) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("manifest id is empty")
	}
	if strings.ContainsAny(m.ID, " /\\") {
		return fmt.Errorf("manifest id %q contains invalid characters", m.ID)
	}
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("manifest name is empty")
	}
	if strings.TrimSpace(m.Version) == "" {
		return fmt.Errorf("manifest version is empty")
	}
	return nil
}

// LoadManifest reads and validates a manifest.yaml file.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, fmt.Errorf("invalid manifest %s: %w", path, err)
	}
	return m, nil
}
