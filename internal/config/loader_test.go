package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
service:
  name: addongate
  log_level: debug
storage:
  path: ./data/test.db
api:
  listen: 127.0.0.1:9900
auth:
  secret: hunter2
addons_dir: ./my-addons
cache:
  default_ttl: 30m
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Service.Name != "addongate" {
		t.Errorf("service.name = %q", cfg.Service.Name)
	}
	if cfg.Service.LogLevel != "debug" {
		t.Errorf("service.log_level = %q", cfg.Service.LogLevel)
	}
	if cfg.API.Listen != "127.0.0.1:9900" {
		t.Errorf("api.listen = %q", cfg.API.Listen)
	}
	if cfg.Auth.Secret != "hunter2" {
		t.Errorf("auth.secret not loaded")
	}
	if cfg.AddonsDir != "./my-addons" {
		t.Errorf("addons_dir = %q", cfg.AddonsDir)
	}
	if cfg.Cache.DefaultTTL != 30*time.Minute {
		t.Errorf("cache.default_ttl = %v", cfg.Cache.DefaultTTL)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "service:\n  name: minimal\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Storage.Path != "./data/addongate.db" {
		t.Errorf("storage.path default = %q", cfg.Storage.Path)
	}
	if cfg.API.Listen != "127.0.0.1:7700" {
		t.Errorf("api.listen default = %q", cfg.API.Listen)
	}
	if cfg.Cache.DefaultTTL != time.Hour {
		t.Errorf("cache.default_ttl default = %v", cfg.Cache.DefaultTTL)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "service: [not a map\n")
	if _, err := Load(path); err == nil {
		t.Fatal("Load() expected parse error")
	}
}

func TestValidateRejectsRecordingInProduction(t *testing.T) {
	path := writeConfig(t, `
service:
  name: addongate
  production: true
auth:
  secret: hunter2
record:
  enabled: true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("Load() expected error for record.enabled in production")
	}
}

func TestValidateRequiresSecretInProduction(t *testing.T) {
	path := writeConfig(t, `
service:
  name: addongate
  production: true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("Load() expected error for missing secret in production")
	}
}

func TestValidateSkipAuthWaivesSecret(t *testing.T) {
	path := writeConfig(t, `
service:
  name: addongate
  production: true
auth:
  skip: true
`)
	if _, err := Load(path); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ADDONGATE_PRODUCTION", "true")
	t.Setenv("ADDONGATE_TEST_MODE", "true")
	t.Setenv("ADDONGATE_SECRET", "env-secret")
	t.Setenv("ADDONGATE_LISTEN", "0.0.0.0:8080")

	path := writeConfig(t, `
service:
  name: addongate
auth:
  secret: file-secret
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !cfg.Service.Production {
		t.Error("ADDONGATE_PRODUCTION not applied")
	}
	if !cfg.Service.TestMode {
		t.Error("ADDONGATE_TEST_MODE not applied")
	}
	if cfg.Auth.Secret != "env-secret" {
		t.Errorf("auth.secret = %q, want env override", cfg.Auth.Secret)
	}
	if cfg.API.Listen != "0.0.0.0:8080" {
		t.Errorf("api.listen = %q, want env override", cfg.API.Listen)
	}
}

func TestEnvOverridesAbsentLeaveFileValues(t *testing.T) {
	path := writeConfig(t, `
service:
  name: addongate
auth:
  secret: file-secret
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.Secret != "file-secret" {
		t.Errorf("auth.secret = %q, want file value", cfg.Auth.Secret)
	}
	if cfg.Service.Production {
		t.Error("production flipped without override")
	}
}

func TestEnvRecordToggle(t *testing.T) {
	t.Setenv("ADDONGATE_RECORD", "true")
	t.Setenv("ADDONGATE_RECORD_PATH", "/tmp/records")

	path := writeConfig(t, "service:\n  name: addongate\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Record.Enabled {
		t.Error("ADDONGATE_RECORD not applied")
	}
	if cfg.Record.Path != "/tmp/records" {
		t.Errorf("record.path = %q", cfg.Record.Path)
	}
}
