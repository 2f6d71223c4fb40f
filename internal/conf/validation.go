// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package conf

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"time"
)

var validInterfaces = []string{"admin", "internal", "public"}

// Check if the configuration is valid.
func (c *config) Validate() error {
	if err := c.KeystoneConfig.validate(); err != nil {
		return err
	}
	if err := c.GatewayConfig.validate(); err != nil {
		return err
	}
	if err := c.SessionConfig.validate(); err != nil {
		return err
	}
	if c.MonitoringConfig.Port < 0 || c.MonitoringConfig.Port > 65535 {
		return fmt.Errorf("invalid monitoring port %d", c.MonitoringConfig.Port)
	}
	return nil
}

func (c KeystoneConfig) validate() error {
	if c.SecretRef.IsSet() {
		// The url is read from the secret.
		return validateInterface(c.Interface)
	}
	if c.URL == "" {
		return errors.New("keystone url is required, either directly or through a secret reference")
	}
	u, err := url.Parse(c.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid keystone url %q", c.URL)
	}
	if (c.SSO.Cert == "") != (c.SSO.CertKey == "") {
		return errors.New("sso cert and certKey must be given together")
	}
	return validateInterface(c.Interface)
}

func validateInterface(iface string) error {
	if iface != "" && !slices.Contains(validInterfaces, iface) {
		return fmt.Errorf("invalid interface %q, expected one of %v", iface, validInterfaces)
	}
	return nil
}

func (c GatewayConfig) validate() error {
	for name, value := range map[string]string{
		"requestTimeout":      c.RequestTimeout,
		"catalogFetchTimeout": c.CatalogFetchTimeout,
	} {
		if value == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid gateway %s %q: %w", name, value, err)
		}
		if d <= 0 {
			return fmt.Errorf("gateway %s must be positive, got %s", name, value)
		}
	}
	return nil
}

func (c SessionConfig) validate() error {
	switch c.Backend {
	case "", SessionBackendFile:
		return nil
	case SessionBackendSecret:
		if !c.SecretRef.IsSet() {
			return errors.New("session backend secret requires a secretRef")
		}
	case SessionBackendKeyring:
		return nil
	case SessionBackendDB:
		if c.DB.Host == "" || c.DB.Database == "" {
			return errors.New("session backend db requires a host and database")
		}
	default:
		return fmt.Errorf("unknown session backend %q", c.Backend)
	}
	return nil
}
