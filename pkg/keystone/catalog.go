// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package keystone

// Service catalog as returned by GET /v3/auth/catalog.
type ServiceCatalog []CatalogEntry

// A service in the catalog with all its endpoints.
type CatalogEntry struct {
	ID        string     `json:"id,omitempty"`
	Name      string     `json:"name"`
	Type      string     `json:"type"`
	Endpoints []Endpoint `json:"endpoints"`
}

// A single endpoint of a service.
type Endpoint struct {
	ID     string `json:"id"`
	Region string `json:"region"`
	// The region id is the newer field, some deployments only set one of both.
	RegionID string `json:"region_id,omitempty"`
	// Interface is one of "admin", "internal" or "public".
	Interface string `json:"interface"`
	URL       string `json:"url"`
}

// Name of the region this endpoint belongs to.
func (e Endpoint) RegionName() string {
	if e.Region != "" {
		return e.Region
	}
	return e.RegionID
}

// Reference to a concrete endpoint, as stored in the region map.
type EndpointRef struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	Type string `json:"type"`
}

// Interface name -> endpoint reference.
type InterfaceMap map[string]EndpointRef

// Service name -> interfaces.
type ServicesByName map[string]InterfaceMap

// RegionMap indexes a service catalog by region, service name and interface.
// It remembers the order in which regions were first encountered, so that
// the fallback region is stable across calls.
type RegionMap struct {
	order    []string
	byRegion map[string]ServicesByName
}

// Regions in the order they first appear in the catalog.
func (m RegionMap) Regions() []string {
	return append([]string(nil), m.order...)
}

// Get the services of a region.
func (m RegionMap) Region(region string) (ServicesByName, bool) {
	services, ok := m.byRegion[region]
	return services, ok
}

// Check if the map contains no regions at all.
func (m RegionMap) Empty() bool {
	return len(m.order) == 0
}

// Build the region map for the given catalog. The catalog is not modified.
// If the same (region, service, interface) triple occurs more than once, the
// endpoint that comes last in the catalog wins.
func IndexByRegion(catalog ServiceCatalog) RegionMap {
	m := RegionMap{byRegion: make(map[string]ServicesByName)}
	for _, service := range catalog {
		for _, endpoint := range service.Endpoints {
			region := endpoint.RegionName()
			services, ok := m.byRegion[region]
			if !ok {
				services = make(ServicesByName)
				m.byRegion[region] = services
				m.order = append(m.order, region)
			}
			interfaces, ok := services[service.Name]
			if !ok {
				interfaces = make(InterfaceMap)
				services[service.Name] = interfaces
			}
			interfaces[endpoint.Interface] = EndpointRef{
				ID:   endpoint.ID,
				URL:  endpoint.URL,
				Type: service.Type,
			}
		}
	}
	return m
}

// Get the services of the active region. If no region is active, or the
// active region is not in the catalog, the first region of the catalog is
// used instead. The region that was actually used is returned as well.
func ResolveActiveServices(m RegionMap, activeRegion string) (ServicesByName, string) {
	if activeRegion != "" {
		if services, ok := m.byRegion[activeRegion]; ok {
			return services, activeRegion
		}
	}
	if len(m.order) == 0 {
		return ServicesByName{}, ""
	}
	first := m.order[0]
	return m.byRegion[first], first
}
