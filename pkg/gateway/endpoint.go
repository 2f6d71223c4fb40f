// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"strings"

	"github.com/cobaltcore-dev/consolegw/pkg/keystone"
	"github.com/majewsky/gg/option"
)

// The catalog version that is rewritten when a version override is given.
const DefaultCatalogVersion = "v3"

// ServiceLookup provides the services of the active region.
// It is implemented by keystone.IdentityResolver, which fetches the catalog
// on first use.
type ServiceLookup interface {
	ActiveServices(ctx context.Context) (keystone.ServicesByName, string, error)
}

// EndpointResolver turns a logical service name into a base URL.
type EndpointResolver struct {
	lookup ServiceLookup
	// Version advertised by the catalog urls, e.g. "v3".
	catalogVersion string
}

// Create a new endpoint resolver. The catalog version is the version
// segment that a version override replaces in catalog urls.
func NewEndpointResolver(lookup ServiceLookup, catalogVersion string) *EndpointResolver {
	if catalogVersion == "" {
		catalogVersion = DefaultCatalogVersion
	}
	return &EndpointResolver{lookup: lookup, catalogVersion: catalogVersion}
}

// Resolve the base URL of the service with the given interface in the
// active region. If a version is given, the catalog version in the URL is
// replaced with it.
func (r *EndpointResolver) Resolve(ctx context.Context, service, iface string, version option.Option[string]) (string, error) {
	services, region, err := r.lookup.ActiveServices(ctx)
	if err != nil {
		return "", err
	}
	ref, ok := services[service][iface]
	if !ok || ref.URL == "" {
		return "", &EndpointNotAvailableError{Service: service, Interface: iface, Region: region}
	}
	if v, ok := version.Unpack(); ok {
		return RewriteVersion(ref.URL, r.catalogVersion, v), nil
	}
	return ref.URL, nil
}

// Replace the version segment in the URL: a trailing /v3 becomes /v4, and
// the first /v3/ becomes /v4/. Versions may be given with or without the
// leading "v". URLs without the version segment are returned unchanged.
func RewriteVersion(url, from, to string) string {
	oldSegment := "/" + normalizeVersion(from)
	newSegment := "/" + normalizeVersion(to)
	if strings.HasSuffix(url, oldSegment) {
		return strings.TrimSuffix(url, oldSegment) + newSegment
	}
	return strings.Replace(url, oldSegment+"/", newSegment+"/", 1)
}

func normalizeVersion(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}
