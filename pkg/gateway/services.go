// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"

	"github.com/majewsky/gg/option"
)

// EndpointProvider resolves the base URL of a service on demand.
type EndpointProvider interface {
	Endpoint(ctx context.Context) (string, error)
}

// Service is a handle on one service of the catalog, bound to a gateway.
type Service struct {
	Name      string
	Interface string
	Version   option.Option[string]

	gateway *Gateway
}

// Get a handle on the service with the given name. An empty interface
// selects the interface of the gateway.
func (g *Gateway) Service(name, iface string, version option.Option[string]) Service {
	if iface == "" {
		iface = g.opts.Interface
	}
	return Service{Name: name, Interface: iface, Version: version, gateway: g}
}

// Resolve the base URL of the service in the active region.
func (s Service) Endpoint(ctx context.Context) (string, error) {
	return s.gateway.resolver.Resolve(ctx, s.Name, s.Interface, s.Version)
}

// Build a request against a path of the service.
func (s Service) Request(path string) Request {
	return Request{
		Service:   s.Name,
		Interface: option.Some(s.Interface),
		Version:   s.Version,
		Path:      path,
	}
}

// Get a path of the service and decode the JSON response into result.
func (s Service) Get(ctx context.Context, path string, result any) error {
	return s.gateway.BasicGet(ctx, s.Request(path), result)
}

// Post body to a path of the service and decode the JSON response into result.
func (s Service) Post(ctx context.Context, path string, body, result any) error {
	r := s.Request(path)
	r.Body = body
	return s.gateway.BasicPost(ctx, r, result)
}

// Delete a resource of the service.
func (s Service) Delete(ctx context.Context, path string) error {
	return s.gateway.BasicDelete(ctx, s.Request(path), nil)
}
