// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package conf

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sapcc/go-bits/easypg"
	"github.com/sapcc/go-bits/osext"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigPath  = "/etc/config/conf.yaml"
	defaultSecretsPath = "/etc/secrets/secrets.yaml"
)

// Configuration for single-sign-on (SSO).
type SSOConfig struct {
	Cert    string `yaml:"cert,omitempty"`
	CertKey string `yaml:"certKey,omitempty"`

	// If the certificate is self-signed, we need to skip verification.
	SelfSigned bool `yaml:"selfSigned,omitempty"`
}

// Reference to a kubernetes secret.
type SecretRefConfig struct {
	Namespace string `yaml:"namespace"`
	Name      string `yaml:"name"`
}

// Whether the reference names a secret.
func (r SecretRefConfig) IsSet() bool {
	return r.Name != ""
}

// Database configuration.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// Connection URL of the database. Values mounted from secrets often end
// with a newline, which is stripped.
func (c DBConfig) URL() (string, error) {
	strip := strings.TrimSpace
	dbURL, err := easypg.URLFrom(easypg.URLParts{
		HostName:          strip(c.Host),
		Port:              strip(c.Port),
		UserName:          strip(c.User),
		Password:          strip(c.Password),
		ConnectionOptions: "sslmode=disable",
		DatabaseName:      strip(c.Database),
	})
	if err != nil {
		return "", err
	}
	return dbURL.String(), nil
}

// Configuration for the keystone authentication.
type KeystoneConfig struct {
	// The URL of the keystone v3 API.
	URL string `yaml:"url"`
	// The region to select after login. If empty, the first region
	// of the catalog is used.
	Region string `yaml:"region,omitempty"`
	// The endpoint interface to use for service requests.
	Interface string `yaml:"interface,omitempty"`
	// The OpenStack username (OS_USERNAME in openstack cli).
	Username string `yaml:"username,omitempty"`
	// The OpenStack password (OS_PASSWORD in openstack cli).
	Password string `yaml:"password,omitempty"`
	// The OpenStack user domain name (OS_USER_DOMAIN_NAME in openstack cli).
	UserDomainName string `yaml:"userDomainName,omitempty"`
	// The project to scope to after login.
	ProjectID string `yaml:"projectID,omitempty"`
	// The SSO certificate to use. If none is given, we won't
	// use SSO to connect to the openstack services.
	SSO SSOConfig `yaml:"sso,omitempty"`
	// If set, the keystone url and user credentials are read from this
	// kubernetes secret instead.
	SecretRef SecretRefConfig `yaml:"secretRef,omitempty"`
}

// Configuration for requests to the openstack services.
type GatewayConfig struct {
	// Timeout for requests without deadline, e.g. "30s".
	RequestTimeout string `yaml:"requestTimeout,omitempty"`
	// Timeout for a catalog fetch, e.g. "10s".
	CatalogFetchTimeout string `yaml:"catalogFetchTimeout,omitempty"`
	// Version segment in the catalog urls that version overrides replace.
	CatalogVersion string `yaml:"catalogVersion,omitempty"`
	// Whether failed requests are logged with their response body.
	LogResponseBodies bool `yaml:"logResponseBodies,omitempty"`
}

// Parsed request timeout, 30 seconds by default.
func (c GatewayConfig) RequestTimeoutDuration() time.Duration {
	return parseDurationOr(c.RequestTimeout, 30*time.Second)
}

// Parsed catalog fetch timeout, 10 seconds by default.
func (c GatewayConfig) CatalogFetchTimeoutDuration() time.Duration {
	return parseDurationOr(c.CatalogFetchTimeout, 10*time.Second)
}

// Supported session backends.
const (
	SessionBackendFile    = "file"
	SessionBackendSecret  = "secret"
	SessionBackendKeyring = "keyring"
	SessionBackendDB      = "db"
)

// Configuration for where sessions are persisted.
type SessionConfig struct {
	// One of file, secret, keyring or db. Defaults to file.
	Backend string `yaml:"backend,omitempty"`
	// Name of the session, used as key by the keyring and db backends.
	Name string `yaml:"name,omitempty"`
	// Path of the session file for the file backend.
	Path string `yaml:"path,omitempty"`
	// Secret that holds the session for the secret backend.
	SecretRef SecretRefConfig `yaml:"secretRef,omitempty"`
	// Keyring service for the keyring backend.
	KeyringService string `yaml:"keyringService,omitempty"`
	// Database for the db backend.
	DB DBConfig `yaml:"db,omitempty"`
}

// Configuration for structured logging.
type LoggingConfig struct {
	// The log level, one of debug, info, warn, error.
	LevelStr string `yaml:"level"`
	// The log format, either text or json.
	Format string `yaml:"format"`
}

// Configuration for the monitoring module.
type MonitoringConfig struct {
	// The labels to add to all metrics.
	Labels map[string]string `yaml:"labels"`

	// The port to expose the metrics on.
	Port int `yaml:"port"`
}

// Configuration for the console gateway.
type Config interface {
	GetKeystoneConfig() KeystoneConfig
	GetGatewayConfig() GatewayConfig
	GetSessionConfig() SessionConfig
	GetLoggingConfig() LoggingConfig
	GetMonitoringConfig() MonitoringConfig
	// Check if the configuration is valid.
	Validate() error
}

type config struct {
	KeystoneConfig   `yaml:"keystone"`
	GatewayConfig    `yaml:"gateway"`
	SessionConfig    `yaml:"session"`
	LoggingConfig    `yaml:"logging"`
	MonitoringConfig `yaml:"monitoring"`
}

// Create a new configuration from the config and secrets yaml files.
//
// The paths default to /etc/config/conf.yaml and /etc/secrets/secrets.yaml
// and can be overridden with CONSOLEGW_CONFIG and CONSOLEGW_SECRETS.
// The values read from the secrets will override the values in the config.
// A missing secrets file is not an error.
func GetConfigOrDie() Config {
	c, err := ReadConfig(
		osext.GetenvOrDefault("CONSOLEGW_CONFIG", defaultConfigPath),
		osext.GetenvOrDefault("CONSOLEGW_SECRETS", defaultSecretsPath),
	)
	if err != nil {
		panic(err)
	}
	return c
}

// Read the configuration from the given config and secrets files.
func ReadConfig(configPath, secretsPath string) (Config, error) {
	// Note: We need to read the config as a raw map first, to avoid golang
	// unmarshalling default values for the fields.
	base, err := readRawConfig(configPath)
	if err != nil {
		return nil, err
	}
	override, err := readRawConfig(secretsPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return newConfigFromMaps(base, override)
}

// Create a new configuration from yaml bytes, e.g. in tests.
func NewConfigFromBytes(data []byte) (Config, error) {
	base, err := readRawConfigFromBytes(data)
	if err != nil {
		return nil, err
	}
	return newConfigFromMaps(base, nil)
}

func newConfigFromMaps(base, override map[string]any) (Config, error) {
	if base == nil {
		base = map[string]any{}
	}
	// Marshal again, and then unmarshal into the config struct.
	merged, err := yaml.Marshal(mergeMaps(base, override))
	if err != nil {
		return nil, err
	}
	var c config
	if err := yaml.Unmarshal(merged, &c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &c, nil
}

// Read the yaml as a map from the given file path.
func readRawConfig(filepath string) (map[string]any, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}
	return readRawConfigFromBytes(data)
}

func readRawConfigFromBytes(data []byte) (map[string]any, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return raw, nil
}

// mergeMaps recursively overrides dst with src (in-place)
func mergeMaps(dst, src map[string]any) map[string]any {
	result := dst
	for k, v := range src {
		if v == nil {
			// If src value is nil, skip override
			continue
		}
		if dstVal, ok := dst[k]; ok {
			// If both are maps, merge recursively
			dstMap, dstIsMap := dstVal.(map[string]any)
			srcMap, srcIsMap := v.(map[string]any)
			if dstIsMap && srcIsMap {
				result[k] = mergeMaps(dstMap, srcMap)
				continue
			}
		}
		// Otherwise, override
		result[k] = v
	}
	return result
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func (c *config) GetKeystoneConfig() KeystoneConfig     { return c.KeystoneConfig }
func (c *config) GetGatewayConfig() GatewayConfig       { return c.GatewayConfig }
func (c *config) GetSessionConfig() SessionConfig       { return c.SessionConfig }
func (c *config) GetLoggingConfig() LoggingConfig       { return c.LoggingConfig }
func (c *config) GetMonitoringConfig() MonitoringConfig { return c.MonitoringConfig }
