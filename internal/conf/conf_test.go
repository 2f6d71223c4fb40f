// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package conf

import (
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestReadConfig_MergesSecrets(t *testing.T) {
	dir := t.TempDir()
	configPath := writeFile(t, dir, "conf.yaml", `
keystone:
  url: https://identity.example.com/v3
  username: admin
  userDomainName: Default
  interface: public
gateway:
  requestTimeout: 15s
session:
  backend: file
  path: /tmp/session.json
logging:
  level: debug
  format: json
monitoring:
  port: 2112
  labels:
    app: consolegw
`)
	secretsPath := writeFile(t, dir, "secrets.yaml", `
keystone:
  password: secret
  username: operator
`)

	c, err := ReadConfig(configPath, secretsPath)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	keystone := c.GetKeystoneConfig()
	if keystone.URL != "https://identity.example.com/v3" || keystone.UserDomainName != "Default" {
		t.Errorf("expected config values to be kept, got %+v", keystone)
	}
	if keystone.Username != "operator" || keystone.Password != "secret" {
		t.Errorf("expected secrets to override the config, got %+v", keystone)
	}
	if c.GetGatewayConfig().RequestTimeoutDuration() != 15*time.Second {
		t.Errorf("unexpected request timeout %v", c.GetGatewayConfig().RequestTimeoutDuration())
	}
	if c.GetGatewayConfig().CatalogFetchTimeoutDuration() != 10*time.Second {
		t.Errorf("expected the default catalog timeout, got %v", c.GetGatewayConfig().CatalogFetchTimeoutDuration())
	}
	if c.GetLoggingConfig().LevelStr != "debug" || c.GetSessionConfig().Path != "/tmp/session.json" {
		t.Errorf("unexpected config: %+v", c)
	}
	monitoring := c.GetMonitoringConfig()
	if monitoring.Port != 2112 || !reflect.DeepEqual(monitoring.Labels, map[string]string{"app": "consolegw"}) {
		t.Errorf("unexpected monitoring config: %+v", monitoring)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("expected a valid config, got %v", err)
	}
}

func TestReadConfig_MissingSecrets(t *testing.T) {
	dir := t.TempDir()
	configPath := writeFile(t, dir, "conf.yaml", "keystone:\n  url: https://identity.example.com/v3\n")
	c, err := ReadConfig(configPath, filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.GetKeystoneConfig().URL == "" {
		t.Error("expected the config to be read")
	}
	if _, err := ReadConfig(filepath.Join(dir, "missing.yaml"), ""); err == nil {
		t.Error("expected an error for a missing config file")
	}
}

func TestGetConfigOrDie_Env(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CONSOLEGW_CONFIG", writeFile(t, dir, "conf.yaml", "keystone:\n  url: https://a/v3\n"))
	t.Setenv("CONSOLEGW_SECRETS", writeFile(t, dir, "secrets.yaml", "keystone:\n  url: https://b/v3\n"))
	if got := GetConfigOrDie().GetKeystoneConfig().URL; got != "https://b/v3" {
		t.Errorf("expected the secrets url, got %q", got)
	}
}

func TestMergeMaps(t *testing.T) {
	dst := map[string]any{
		"a": map[string]any{"b": 1, "c": 2},
		"d": "keep",
	}
	src := map[string]any{
		"a": map[string]any{"c": 3},
		"d": nil,
		"e": []any{"x"},
	}
	expected := map[string]any{
		"a": map[string]any{"b": 1, "c": 3},
		"d": "keep",
		"e": []any{"x"},
	}
	if got := mergeMaps(dst, src); !reflect.DeepEqual(got, expected) {
		t.Errorf("expected %v, got %v", expected, got)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{"minimal", "keystone:\n  url: https://k/v3\n", false},
		{"missing url", "keystone:\n  username: admin\n", true},
		{"url from secret", "keystone:\n  secretRef:\n    namespace: default\n    name: keystone\n", false},
		{"relative url", "keystone:\n  url: /v3\n", true},
		{"bad interface", "keystone:\n  url: https://k/v3\n  interface: private\n", true},
		{"sso cert without key", "keystone:\n  url: https://k/v3\n  sso:\n    cert: abc\n", true},
		{"bad timeout", "keystone:\n  url: https://k/v3\ngateway:\n  requestTimeout: soon\n", true},
		{"negative timeout", "keystone:\n  url: https://k/v3\ngateway:\n  catalogFetchTimeout: -1s\n", true},
		{"unknown backend", "keystone:\n  url: https://k/v3\nsession:\n  backend: s3\n", true},
		{"secret backend without ref", "keystone:\n  url: https://k/v3\nsession:\n  backend: secret\n", true},
		{"db backend", "keystone:\n  url: https://k/v3\nsession:\n  backend: db\n  db:\n    host: localhost\n    database: sessions\n", false},
		{"db backend without host", "keystone:\n  url: https://k/v3\nsession:\n  backend: db\n", true},
		{"keyring backend", "keystone:\n  url: https://k/v3\nsession:\n  backend: keyring\n", false},
		{"bad port", "keystone:\n  url: https://k/v3\nmonitoring:\n  port: 70000\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewConfigFromBytes([]byte(tt.yaml))
			if err != nil {
				t.Fatalf("expected no parse error, got %v", err)
			}
			err = c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("expected error: %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDBConfig_URL(t *testing.T) {
	c := DBConfig{Host: "db.example.com\n", Port: "5432", User: "consolegw", Password: "secret\n", Database: "sessions"}
	got, err := c.URL()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	u, err := url.Parse(got)
	if err != nil {
		t.Fatalf("expected a valid url, got %q: %v", got, err)
	}
	password, _ := u.User.Password()
	if u.Hostname() != "db.example.com" || u.Port() != "5432" || password != "secret" {
		t.Errorf("expected trimmed connection values, got %q", got)
	}
	if !strings.HasSuffix(u.Path, "sessions") {
		t.Errorf("expected the database in the path, got %q", got)
	}
}
