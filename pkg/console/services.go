// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"net/http"

	"github.com/cobaltcore-dev/consolegw/pkg/gateway"
	"github.com/majewsky/gg/option"
)

// KnownService describes a service the console talks to.
type KnownService struct {
	// Name of the service in the catalog.
	Name string
	// Type of the service in the catalog.
	Type string
	// Endpoint interface, empty for the client default.
	Interface string
	// API version the console uses if it differs from the catalog version.
	Version option.Option[string]
	Methods []gateway.MethodInfo
}

// KnownServices lists the services the console talks to by name.
var KnownServices = map[string]KnownService{
	"keystone": {
		Name: "keystone",
		Type: "identity",
		Methods: []gateway.MethodInfo{
			{Name: "getProjects", Verb: http.MethodGet, Path: "auth/projects", Description: "Projects the user can scope to"},
			{Name: "getRegions", Verb: http.MethodGet, Path: "regions"},
			{Name: "getUsers", Verb: http.MethodGet, Path: "users"},
		},
	},
	"nova": {
		Name: "nova",
		Type: "compute",
		Methods: []gateway.MethodInfo{
			{Name: "getFlavors", Verb: http.MethodGet, Path: "flavors/detail"},
			{Name: "getInstances", Verb: http.MethodGet, Path: "servers/detail"},
			{Name: "deleteInstance", Verb: http.MethodDelete, Path: "servers/{id}"},
			{Name: "getHypervisors", Verb: http.MethodGet, Path: "os-hypervisors/detail"},
		},
	},
	"neutron": {
		Name:    "neutron",
		Type:    "network",
		Version: option.Some("v2.0"),
		Methods: []gateway.MethodInfo{
			{Name: "getNetworks", Verb: http.MethodGet, Path: "networks"},
			{Name: "getSubnets", Verb: http.MethodGet, Path: "subnets"},
			{Name: "getRouters", Verb: http.MethodGet, Path: "routers"},
		},
	},
	"cinderv3": {
		Name: "cinderv3",
		Type: "volumev3",
		Methods: []gateway.MethodInfo{
			{Name: "getVolumes", Verb: http.MethodGet, Path: "volumes/detail"},
			{Name: "getSnapshots", Verb: http.MethodGet, Path: "snapshots/detail"},
			{Name: "getQuotas", Verb: http.MethodGet, Path: "os-quota-sets/{projectId}"},
		},
	},
	"glance": {
		Name:    "glance",
		Type:    "image",
		Version: option.Some("v2"),
		Methods: []gateway.MethodInfo{
			{Name: "getImages", Verb: http.MethodGet, Path: "images"},
			{Name: "deleteImage", Verb: http.MethodDelete, Path: "images/{id}"},
		},
	},
	"qbert": {
		Name:    "qbert",
		Type:    "qbert",
		Version: option.Some("v4"),
		Methods: []gateway.MethodInfo{
			{Name: "getClusters", Verb: http.MethodGet, Path: "clusters", Description: "Kubernetes clusters"},
			{Name: "getNodes", Verb: http.MethodGet, Path: "nodes"},
			{Name: "getCloudProviders", Verb: http.MethodGet, Path: "cloudProviders"},
		},
	},
	"resmgr": {
		Name:    "resmgr",
		Type:    "resmgr",
		Version: option.Some("v1"),
		Methods: []gateway.MethodInfo{
			{Name: "getHosts", Verb: http.MethodGet, Path: "hosts"},
			{Name: "getRoles", Verb: http.MethodGet, Path: "roles"},
		},
	},
	"appbert": {
		Name: "appbert",
		Type: "appbert",
		Methods: []gateway.MethodInfo{
			{Name: "getPackages", Verb: http.MethodGet, Path: "packages"},
		},
	},
	"murano": {
		Name: "murano",
		Type: "application-catalog",
		Methods: []gateway.MethodInfo{
			{Name: "getApplications", Verb: http.MethodGet, Path: "catalog/packages"},
			{Name: "getEnvironments", Verb: http.MethodGet, Path: "environments"},
		},
	},
}

// Get a handle on the service with the given name. Known services carry
// their interface and version, any other name resolves with the defaults.
func (c *Client) Service(name string) gateway.Service {
	known, ok := KnownServices[name]
	if !ok {
		return c.gateway.Service(name, "", option.None[string]())
	}
	return c.gateway.Service(known.Name, known.Interface, known.Version)
}

// Get handles on all known services, keyed by name.
func (c *Client) Services() map[string]gateway.EndpointProvider {
	result := make(map[string]gateway.EndpointProvider, len(KnownServices))
	for name := range KnownServices {
		result[name] = c.Service(name)
	}
	return result
}

func knownMethods() *gateway.MethodTable {
	table := gateway.NewMethodTable()
	for name, svc := range KnownServices {
		for _, m := range svc.Methods {
			m.Service = name
			table.MustRegister(m)
		}
	}
	return table
}
