// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cobaltcore-dev/consolegw/pkg/gateway"
	"github.com/cobaltcore-dev/consolegw/pkg/keystone"
	"github.com/prometheus/client_golang/prometheus"
)

// Options to construct a console client.
type Options struct {
	// URL of the keystone v3 API.
	KeystoneEndpoint string
	// Domain of users that log in with a password.
	UserDomainName string
	// Endpoint interface used for service requests, defaults to "internal".
	Interface string
	// Version segment of the catalog urls, defaults to "v3".
	CatalogVersion string
	// Optional HTTP client shared by identity and service requests.
	HTTPClient *http.Client
	// Upper bound for requests whose context has no deadline.
	RequestTimeout time.Duration
	// Upper bound for a shared catalog fetch.
	CatalogTimeout time.Duration
	// Receives failed service requests. Defaults to a LogSink.
	Diagnostics gateway.DiagnosticsSink
	// If set, identity and gateway metrics are registered here.
	Registerer prometheus.Registerer
}

// Client bundles the identity resolver and the request gateway of a session.
type Client struct {
	identity *keystone.IdentityResolver
	gateway  *gateway.Gateway
	methods  *gateway.MethodTable
	opts     Options
}

// Create a new client with empty credentials and no catalog.
func New(opts Options) (*Client, error) {
	return newClient(opts, keystone.NewCredentialStore(), keystone.NewCatalog())
}

func newClient(opts Options, store *keystone.CredentialStore, catalog *keystone.Catalog) (*Client, error) {
	if opts.KeystoneEndpoint == "" {
		return nil, errors.New("no keystone endpoint configured")
	}
	keystoneOpts := keystone.Opts{
		URL:            opts.KeystoneEndpoint,
		UserDomainName: opts.UserDomainName,
		HTTPClient:     opts.HTTPClient,
		Timeout:        opts.RequestTimeout,
		CatalogTimeout: opts.CatalogTimeout,
	}
	gatewayOpts := gateway.Opts{
		HTTPClient:  opts.HTTPClient,
		Interface:   opts.Interface,
		Timeout:     opts.RequestTimeout,
		Diagnostics: opts.Diagnostics,
	}
	if gatewayOpts.Diagnostics == nil {
		gatewayOpts.Diagnostics = gateway.LogSink{}
	}
	if opts.Registerer != nil {
		keystoneOpts.Monitor = keystone.NewMonitor(opts.Registerer)
		gatewayOpts.Monitor = gateway.NewMonitor(opts.Registerer)
		gatewayOpts.Diagnostics = gateway.MultiSink{
			gatewayOpts.Diagnostics,
			gateway.MetricsSink{Monitor: gatewayOpts.Monitor},
		}
	}
	identity, err := keystone.NewIdentityResolver(keystoneOpts, store, catalog)
	if err != nil {
		return nil, err
	}
	resolver := gateway.NewEndpointResolver(identity, opts.CatalogVersion)
	return &Client{
		identity: identity,
		gateway:  gateway.New(resolver, store, gatewayOpts),
		methods:  knownMethods(),
		opts:     opts,
	}, nil
}

// Identity resolver of the session, used to log in, scope and renew.
func (c *Client) Identity() *keystone.IdentityResolver {
	return c.identity
}

// Credential store of the session.
func (c *Client) Credentials() *keystone.CredentialStore {
	return c.identity.Credentials()
}

// Request gateway of the session.
func (c *Client) Gateway() *gateway.Gateway {
	return c.gateway
}

// Metadata of the methods the known services expose.
func (c *Client) Methods() *gateway.MethodTable {
	return c.methods
}

// Select the region whose endpoints are used. This does not refetch the
// catalog.
func (c *Client) SetActiveRegion(region string) {
	c.identity.Credentials().SetActiveRegion(region)
}

// Drop all tokens and the cached catalog. The region selection is kept.
func (c *Client) Logout() {
	c.identity.Credentials().Clear()
	c.identity.Catalog().Invalidate()
	slog.Info("logged out", "keystone", c.identity.Endpoint())
}

var defaultClient atomic.Pointer[Client]

// Create a client and make it the default client of the process.
// Components should receive their client explicitly; the default client is
// meant for top level wiring only.
func Init(opts Options) (*Client, error) {
	c, err := New(opts)
	if err != nil {
		return nil, err
	}
	defaultClient.Store(c)
	return c, nil
}

// Get the default client. Returns false if Init was not called yet.
func Default() (*Client, bool) {
	c := defaultClient.Load()
	return c, c != nil
}

// Authenticate with username and password and, if a project is given,
// scope to it. The scope result is empty without a project.
func (c *Client) Login(ctx context.Context, username, password, projectID string) (keystone.ScopeResult, error) {
	if _, err := c.identity.Authenticate(ctx, username, password); err != nil {
		return keystone.ScopeResult{}, err
	}
	if projectID == "" {
		return keystone.ScopeResult{}, nil
	}
	return c.identity.ExchangeTokenForScope(ctx, projectID)
}
