// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/majewsky/gg/option"
)

// Endpoint interface used when a request does not name one.
const DefaultInterface = "internal"

// Configuration of the request gateway.
type Opts struct {
	// Defaults to http.DefaultClient.
	HTTPClient *http.Client
	// Interface used for requests that do not name one.
	Interface string
	// Applied to requests whose context has no deadline. Zero disables it.
	Timeout time.Duration
	// Receives every failed call. Optional.
	Diagnostics DiagnosticsSink
	// Optional.
	Monitor Monitor
}

// Request to a service behind the gateway.
type Request struct {
	// Logical name of the service in the catalog, e.g. "nova".
	Service string
	// Endpoint interface, defaults to the gateway interface.
	Interface option.Option[string]
	// Path relative to the service endpoint.
	Path string
	// Replaces the catalog version in the endpoint URL.
	Version option.Option[string]
	// Explicit base URL, skips the catalog lookup.
	Endpoint option.Option[string]
	Query    url.Values
	Header   http.Header
	// Sent as is if it is an io.Reader or []byte, encoded as JSON otherwise.
	Body any
	// Authenticate the normalized family with the unscoped token.
	Unscoped bool
}

// Gateway composes endpoint resolution, authentication and error
// normalization into requests against OpenStack services.
//
// The raw family (Get, Post, ...) attaches no credentials and returns the
// response for any status. The basic family (BasicGet, BasicPost, ...)
// attaches the current token, decodes JSON and turns failures into
// UpstreamRequestFailedError values.
type Gateway struct {
	resolver *EndpointResolver
	creds    CredentialSource
	client   *http.Client
	opts     Opts
}

// Create a new request gateway.
func New(resolver *EndpointResolver, creds CredentialSource, opts Opts) *Gateway {
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	if opts.Interface == "" {
		opts.Interface = DefaultInterface
	}
	return &Gateway{resolver: resolver, creds: creds, client: client, opts: opts}
}

// Get the endpoint resolver used by the gateway.
func (g *Gateway) Resolver() *EndpointResolver {
	return g.resolver
}

// Build the full URL of the request.
func (g *Gateway) URL(ctx context.Context, r Request) (string, error) {
	base, ok := r.Endpoint.Unpack()
	if !ok {
		var err error
		base, err = g.resolver.Resolve(ctx, r.Service, r.Interface.UnwrapOr(g.opts.Interface), r.Version)
		if err != nil {
			return "", err
		}
	}
	joined := base
	if r.Path != "" {
		joined = strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(r.Path, "/")
	}
	if len(r.Query) == 0 {
		return joined, nil
	}
	u, err := url.Parse(joined)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", joined, err)
	}
	query := u.Query()
	for key, values := range r.Query {
		for _, v := range values {
			query.Add(key, v)
		}
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

func (g *Gateway) Get(ctx context.Context, r Request) (*http.Response, error) {
	return g.Do(ctx, http.MethodGet, r)
}

func (g *Gateway) Post(ctx context.Context, r Request) (*http.Response, error) {
	return g.Do(ctx, http.MethodPost, r)
}

func (g *Gateway) Put(ctx context.Context, r Request) (*http.Response, error) {
	return g.Do(ctx, http.MethodPut, r)
}

func (g *Gateway) Patch(ctx context.Context, r Request) (*http.Response, error) {
	return g.Do(ctx, http.MethodPatch, r)
}

func (g *Gateway) Delete(ctx context.Context, r Request) (*http.Response, error) {
	return g.Do(ctx, http.MethodDelete, r)
}

// Send the request and return the response regardless of its status code.
// Only the headers of the request are sent, no credentials are added.
// The caller must close the response body.
func (g *Gateway) Do(ctx context.Context, method string, r Request) (*http.Response, error) {
	u, err := g.URL(ctx, r)
	if err != nil {
		return nil, err
	}
	ctx, cancel := withTimeout(ctx, g.opts.Timeout)
	req, requestID, err := newHTTPRequest(ctx, method, u, r)
	if err != nil {
		cancel()
		return nil, err
	}
	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		cancel()
		g.opts.Monitor.observe(serviceLabel(r), method, 0, start)
		err = NormalizeError(method, u, requestID, 0, nil, err)
		g.report(ctx, Diagnostic{Service: r.Service, Method: method, URL: u, RequestID: requestID, Err: err})
		return nil, err
	}
	g.opts.Monitor.observe(serviceLabel(r), method, resp.StatusCode, start)
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (g *Gateway) BasicGet(ctx context.Context, r Request, result any) error {
	return g.DoBasic(ctx, http.MethodGet, r, result)
}

func (g *Gateway) BasicPost(ctx context.Context, r Request, result any) error {
	return g.DoBasic(ctx, http.MethodPost, r, result)
}

func (g *Gateway) BasicPut(ctx context.Context, r Request, result any) error {
	return g.DoBasic(ctx, http.MethodPut, r, result)
}

func (g *Gateway) BasicPatch(ctx context.Context, r Request, result any) error {
	return g.DoBasic(ctx, http.MethodPatch, r, result)
}

func (g *Gateway) BasicDelete(ctx context.Context, r Request, result any) error {
	return g.DoBasic(ctx, http.MethodDelete, r, result)
}

// Send the request with the current token attached and decode the JSON
// response into result, which may be nil. Non-2xx responses are returned
// as UpstreamRequestFailedError and reported to the diagnostics sink.
func (g *Gateway) DoBasic(ctx context.Context, method string, r Request, result any) error {
	header := AuthHeaders(g.creds.Snapshot(), !r.Unscoped)
	for key, values := range r.Header {
		header[key] = values
	}
	r.Header = header
	if header.Get(HeaderRequestID) == "" {
		header.Set(HeaderRequestID, newRequestID())
	}
	requestID := header.Get(HeaderRequestID)

	resp, err := g.Do(ctx, method, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		err = fmt.Errorf("failed to read response body: %w", err)
		g.report(ctx, Diagnostic{
			Service: r.Service, Method: method, URL: resp.Request.URL.String(),
			RequestID: requestID, StatusCode: resp.StatusCode, Err: err,
		})
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		u := resp.Request.URL.String()
		err := NormalizeError(method, u, requestID, resp.StatusCode, body, nil)
		g.report(ctx, Diagnostic{
			Service: r.Service, Method: method, URL: u, RequestID: requestID,
			StatusCode: resp.StatusCode, Body: body, Err: err,
		})
		return err
	}
	if result == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to decode response of %s %s: %w", method, resp.Request.URL, err)
	}
	return nil
}

// Upper bound for the pages followed by BasicGetAll.
const maxPages = 1000

// Get all items of a paginated collection. The items are read from the
// given key of the response, the next page from the links the services
// return, e.g. "servers_links" for nova or "links.next" for keystone.
func (g *Gateway) BasicGetAll(ctx context.Context, r Request, key string) ([]json.RawMessage, error) {
	var all []json.RawMessage
	visited := make(map[string]bool)
	for page := 0; ; page++ {
		if page == maxPages {
			return nil, fmt.Errorf("%w: more than %d pages of %s", ErrPaginationLoop, maxPages, key)
		}
		current, err := g.URL(ctx, r)
		if err != nil {
			return nil, err
		}
		visited[current] = true
		var body map[string]json.RawMessage
		if err := g.BasicGet(ctx, r, &body); err != nil {
			return nil, err
		}
		if raw, ok := body[key]; ok {
			var items []json.RawMessage
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, fmt.Errorf("failed to decode %s on page %d: %w", key, page, err)
			}
			all = append(all, items...)
		}
		next := nextLink(body, key)
		if next == "" {
			return all, nil
		}
		if visited[next] {
			return nil, fmt.Errorf("%w: %s on page %d links to %s again", ErrPaginationLoop, key, page, next)
		}
		slog.Debug("following pagination link", "service", r.Service, "next", next)
		r.Endpoint = option.Some(next)
		r.Path = ""
		r.Query = nil
	}
}

func nextLink(body map[string]json.RawMessage, key string) string {
	type link struct {
		Rel  string `json:"rel"`
		Href string `json:"href"`
	}
	var links []link
	if raw, ok := body[key+"_links"]; ok && json.Unmarshal(raw, &links) == nil {
		for _, l := range links {
			if l.Rel == "next" {
				return l.Href
			}
		}
	}
	raw, ok := body["links"]
	if !ok {
		return ""
	}
	var keystoneLinks struct {
		Next *string `json:"next"`
	}
	if json.Unmarshal(raw, &keystoneLinks) == nil && keystoneLinks.Next != nil {
		return *keystoneLinks.Next
	}
	links = nil
	if json.Unmarshal(raw, &links) == nil {
		for _, l := range links {
			if l.Rel == "next" {
				return l.Href
			}
		}
	}
	return ""
}

func (g *Gateway) report(ctx context.Context, d Diagnostic) {
	if g.opts.Diagnostics != nil {
		g.opts.Diagnostics.Report(ctx, d)
	}
}

func newHTTPRequest(ctx context.Context, method, u string, r Request) (*http.Request, string, error) {
	var body io.Reader
	contentType := ""
	switch b := r.Body.(type) {
	case nil:
	case io.Reader:
		body = b
	case []byte:
		body = bytes.NewReader(b)
	default:
		buf, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(buf)
		contentType = "application/json"
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, "", err
	}
	for key, values := range r.Header {
		req.Header[key] = values
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	return req, req.Header.Get(HeaderRequestID), nil
}

func serviceLabel(r Request) string {
	if r.Service == "" {
		return "unknown"
	}
	return r.Service
}

// Cancels the request timeout once the caller is done with the body.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// Check whether the error is a normalized upstream failure with the given
// status code.
func IsStatus(err error, statusCode int) bool {
	var upstreamErr *UpstreamRequestFailedError
	return errors.As(err, &upstreamErr) && upstreamErr.StatusCode == statusCode
}
