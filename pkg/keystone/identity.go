// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package keystone

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gophercloud/gophercloud/v2"
	"github.com/gophercloud/gophercloud/v2/openstack"
	"github.com/gophercloud/gophercloud/v2/openstack/identity/v3/tokens"
)

// Options for the identity resolver.
type Opts struct {
	// URL of the keystone v3 API, e.g. https://identity.example.com/v3
	URL string
	// Domain of the users that authenticate with a password.
	UserDomainName string
	// Optional HTTP client to use for requests.
	HTTPClient *http.Client
	// Upper bound for identity requests whose context has no deadline.
	Timeout time.Duration
	// Upper bound for a catalog fetch. Since a fetch is shared between
	// callers, it is not bound by the deadline of the caller that started it.
	CatalogTimeout time.Duration
	// Optional metrics.
	Monitor Monitor
}

// Identity information returned by keystone with a token.
type User struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DomainID   string `json:"domainId,omitempty"`
	DomainName string `json:"domainName,omitempty"`
}

// Project a token is scoped to.
type Project struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DomainID   string `json:"domainId,omitempty"`
	DomainName string `json:"domainName,omitempty"`
}

// Result of exchanging a token for a project scoped one.
type ScopeResult struct {
	User    User
	Project Project
	// All role names keystone returned, in the order it returned them.
	Roles []string
	// The effective role of the user, see HighestRole.
	Role  string
	Token Token
}

// IdentityResolver authenticates against keystone, maintains the session
// tokens in the credential store and fetches the service catalog.
type IdentityResolver struct {
	// Keystone v3 service client.
	identity *gophercloud.ServiceClient
	// Credentials of the session.
	store *CredentialStore
	// Service catalog of the session.
	catalog *Catalog
	opts    Opts
}

// Create a new identity resolver that keeps its state in the given
// credential store and catalog.
func NewIdentityResolver(opts Opts, store *CredentialStore, catalog *Catalog) (*IdentityResolver, error) {
	provider, err := openstack.NewClient(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid keystone url %q: %w", opts.URL, err)
	}
	if opts.HTTPClient != nil {
		provider.HTTPClient = *opts.HTTPClient
	}
	identity, err := openstack.NewIdentityV3(provider, gophercloud.EndpointOpts{})
	if err != nil {
		return nil, err
	}
	return &IdentityResolver{identity: identity, store: store, catalog: catalog, opts: opts}, nil
}

// Base URL of the keystone v3 API.
func (r *IdentityResolver) Endpoint() string {
	return r.identity.Endpoint
}

// The credential store this resolver writes to.
func (r *IdentityResolver) Credentials() *CredentialStore {
	return r.store
}

// The catalog this resolver fills.
func (r *IdentityResolver) Catalog() *Catalog {
	return r.catalog
}

// Authenticate with username and password and store the unscoped token.
// On failure, the stored credentials are left untouched.
func (r *IdentityResolver) Authenticate(ctx context.Context, username, password string) (Token, error) {
	slog.Info("authenticating against keystone", "url", r.identity.Endpoint, "user", username)
	opts := tokens.AuthOptions{
		Username:   username,
		Password:   password,
		DomainName: r.opts.UserDomainName,
	}
	token, _, err := r.createToken(ctx, "authenticate", &opts)
	if err != nil {
		return Token{}, err
	}
	r.store.setUnscopedToken(token)
	slog.Info("authenticated against keystone", "user", username, "expiresAt", token.ExpiresAt)
	return token, nil
}

// Exchange the unscoped token for a token scoped to the given project.
// The scoped token and project are stored, and the catalog is refreshed
// with the new token. If only the refresh fails, the scope result is
// returned together with an error wrapping ErrCatalogFetchFailed.
func (r *IdentityResolver) ExchangeTokenForScope(ctx context.Context, projectID string) (ScopeResult, error) {
	unscoped, ok := r.store.UnscopedToken()
	if !ok {
		return ScopeResult{}, fmt.Errorf("%w: %w: no unscoped token to exchange", ErrAuthenticationFailed, ErrNoCredentials)
	}
	slog.Info("scoping token", "project", projectID)
	opts := tokens.AuthOptions{
		TokenID: unscoped.ID,
		Scope:   tokens.Scope{ProjectID: projectID},
	}
	token, body, err := r.createToken(ctx, "scope", &opts)
	if err != nil {
		return ScopeResult{}, err
	}
	roles := body.roleNames()
	result := ScopeResult{
		User:    body.Token.User.toUser(),
		Project: body.Token.Project.toProject(),
		Roles:   roles,
		Role:    HighestRole(roles),
		Token:   token,
	}
	if result.Project.ID == "" {
		result.Project.ID = projectID
	}
	r.store.setScopedToken(token, projectID)
	slog.Info("scoped token", "project", projectID, "user", result.User.Name, "role", result.Role)

	// Without a fresh catalog the new scope cannot resolve any endpoint.
	if _, err := r.FetchServiceCatalog(ctx); err != nil {
		return result, err
	}
	return result, nil
}

// Renew the unscoped token, using the current one as proof of identity.
// A failed renewal leaves the current token in place.
func (r *IdentityResolver) RenewUnscopedToken(ctx context.Context) (Token, error) {
	current, ok := r.store.UnscopedToken()
	if !ok {
		return Token{}, fmt.Errorf("%w: %w: no unscoped token to renew", ErrAuthenticationFailed, ErrNoCredentials)
	}
	token, _, err := r.createToken(ctx, "renew_unscoped", &tokens.AuthOptions{TokenID: current.ID})
	if err != nil {
		slog.Warn("failed to renew unscoped token, keeping the current one", "error", err)
		return Token{}, err
	}
	r.store.setUnscopedToken(token)
	slog.Info("renewed unscoped token", "expiresAt", token.ExpiresAt)
	return token, nil
}

// Renew the scoped token for the active project.
// A failed renewal leaves the current token in place.
func (r *IdentityResolver) RenewScopedToken(ctx context.Context) (Token, error) {
	creds := r.store.Snapshot()
	if creds.ScopedToken == nil {
		return Token{}, fmt.Errorf("%w: %w: no scoped token to renew", ErrAuthenticationFailed, ErrNoCredentials)
	}
	opts := tokens.AuthOptions{
		TokenID: creds.ScopedToken.ID,
		Scope:   tokens.Scope{ProjectID: creds.ActiveProjectID},
	}
	token, _, err := r.createToken(ctx, "renew_scoped", &opts)
	if err != nil {
		slog.Warn("failed to renew scoped token, keeping the current one", "error", err)
		return Token{}, err
	}
	r.store.setScopedToken(token, creds.ActiveProjectID)
	slog.Info("renewed scoped token", "project", creds.ActiveProjectID, "expiresAt", token.ExpiresAt)
	return token, nil
}

// Fetch the service catalog with the active token and replace the stored
// catalog with it. Concurrent fetches for the same token are merged.
func (r *IdentityResolver) FetchServiceCatalog(ctx context.Context) (ServiceCatalog, error) {
	st, err := r.catalog.fetch(ctx, r.catalogKey(), r.fetchCatalog)
	if err != nil {
		return nil, err
	}
	return st.catalog, nil
}

// Get the region map, fetching the catalog first if there is none yet.
func (r *IdentityResolver) RegionMap(ctx context.Context) (RegionMap, error) {
	st, err := r.catalog.fetchMissing(ctx, r.catalogKey(), r.fetchCatalog)
	if err != nil {
		return RegionMap{}, err
	}
	return st.index, nil
}

// Get the services of the active region, fetching the catalog first if
// there is none yet. The region that was actually used is returned as well.
func (r *IdentityResolver) ActiveServices(ctx context.Context) (ServicesByName, string, error) {
	index, err := r.RegionMap(ctx)
	if err != nil {
		return nil, "", err
	}
	services, region := ResolveActiveServices(index, r.store.ActiveRegion())
	return services, region, nil
}

// Catalog fetches are shared between callers that use the same token.
func (r *IdentityResolver) catalogKey() string {
	token, _ := r.store.activeToken()
	return "catalog/" + token.ID
}

func (r *IdentityResolver) fetchCatalog(ctx context.Context) (ServiceCatalog, error) {
	ctx, cancel := withTimeout(ctx, r.opts.CatalogTimeout)
	defer cancel()
	headers := map[string]string{}
	if token, ok := r.store.activeToken(); ok {
		headers["X-Auth-Token"] = token.ID
	} else {
		slog.Warn("fetching service catalog without a token")
	}
	url := r.identity.ServiceURL("auth", "catalog")
	slog.Info("fetching service catalog", "url", url)
	start := time.Now()
	var body struct {
		Catalog *ServiceCatalog `json:"catalog"`
	}
	_, err := r.identity.Get(ctx, url, &body, &gophercloud.RequestOpts{
		MoreHeaders: headers,
		OkCodes:     []int{http.StatusOK},
	})
	r.opts.Monitor.observe("catalog", start, err)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCatalogFetchFailed, err)
	}
	if body.Catalog == nil {
		return nil, fmt.Errorf("%w: response has no catalog", ErrCatalogFetchFailed)
	}
	slog.Info("fetched service catalog", "services", len(*body.Catalog))
	return *body.Catalog, nil
}

// Submit a token request and extract the token from the response.
func (r *IdentityResolver) createToken(ctx context.Context, operation string, opts tokens.AuthOptionsBuilder) (Token, tokenBody, error) {
	ctx, cancel := withTimeout(ctx, r.opts.Timeout)
	defer cancel()
	start := time.Now()
	result := tokens.Create(ctx, r.identity, opts)
	r.opts.Monitor.observe(operation, start, result.Err)
	if result.Err != nil {
		return Token{}, tokenBody{}, fmt.Errorf("%w: %w", ErrAuthenticationFailed, result.Err)
	}
	// The token itself is in the header, the body only has its metadata.
	id, err := result.ExtractTokenID()
	if err != nil {
		return Token{}, tokenBody{}, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}
	if id == "" {
		return Token{}, tokenBody{}, fmt.Errorf("%w: no X-Subject-Token in response", ErrAuthenticationFailed)
	}
	var body tokenBody
	if err := result.ExtractInto(&body); err != nil {
		return Token{}, tokenBody{}, fmt.Errorf("%w: malformed token response: %w", ErrAuthenticationFailed, err)
	}
	return Token{ID: id, IssuedAt: body.Token.IssuedAt, ExpiresAt: body.Token.ExpiresAt}, body, nil
}

// Token metadata in the response body of POST /v3/auth/tokens.
type tokenBody struct {
	Token struct {
		IssuedAt  time.Time `json:"issued_at"`
		ExpiresAt time.Time `json:"expires_at"`
		Roles     []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"roles"`
		User    scopeObject `json:"user"`
		Project scopeObject `json:"project"`
	} `json:"token"`
}

// Users and projects share the same shape in keystone responses.
type scopeObject struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Domain struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"domain"`
}

func (o scopeObject) toUser() User {
	return User{ID: o.ID, Name: o.Name, DomainID: o.Domain.ID, DomainName: o.Domain.Name}
}

func (o scopeObject) toProject() Project {
	return Project{ID: o.ID, Name: o.Name, DomainID: o.Domain.ID, DomainName: o.Domain.Name}
}

func (b tokenBody) roleNames() []string {
	names := make([]string, 0, len(b.Token.Roles))
	for _, role := range b.Token.Roles {
		names = append(names, role.Name)
	}
	return names
}

// Check if the error means that keystone rejected the credentials,
// as opposed to keystone not being reachable.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed) &&
		gophercloud.ResponseCodeIs(err, http.StatusUnauthorized)
}

// Apply the timeout if the context has no deadline yet.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
