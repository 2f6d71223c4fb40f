// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package sso

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cobaltcore-dev/consolegw/internal/conf"
)

// Custom HTTP round tripper that logs each request.
type requestLogger struct {
	T http.RoundTripper
}

// RoundTrip logs the request URL and outcome. Headers are never logged,
// they carry the keystone tokens.
func (lrt *requestLogger) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := lrt.T.RoundTrip(req)
	if err != nil {
		slog.Debug("http request failed", "method", req.Method, "url", req.URL.String(), "error", err)
		return nil, err
	}
	slog.Debug("http request", "method", req.Method, "url", req.URL.String(),
		"status", resp.StatusCode, "duration", time.Since(start))
	return resp, nil
}

// Create a new HTTP client with the given SSO configuration
// and logging for each request. The client has no timeout of its own,
// requests are bounded through their context.
func NewHTTPClient(conf conf.SSOConfig) (*http.Client, error) {
	if conf.Cert == "" {
		// Disable SSO if no certificate is provided.
		slog.Debug("making http requests without SSO")
		return &http.Client{Transport: &requestLogger{T: http.DefaultTransport}}, nil
	}
	// If we have a public key, we also need a private key.
	if conf.CertKey == "" {
		return nil, errors.New("missing cert key for SSO")
	}
	cert, err := tls.X509KeyPair(
		[]byte(conf.Cert),
		[]byte(conf.CertKey),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}
	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	if cert.Leaf != nil {
		caCertPool.AddCert(cert.Leaf)
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			Certificates: []tls.Certificate{cert},
			RootCAs:      caCertPool,
			MinVersion:   tls.VersionTLS12,
			// If the cert is self signed, skip verification.
			//nolint:gosec
			InsecureSkipVerify: conf.SelfSigned,
		},
	}
	return &http.Client{Transport: &requestLogger{T: transport}}, nil
}
