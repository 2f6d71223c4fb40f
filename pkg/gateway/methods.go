// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// MethodInfo describes a call that a service client exposes, for tooling
// that lists what a client can do.
type MethodInfo struct {
	Service     string
	Name        string
	Verb        string
	Path        string
	Description string
}

// MethodTable is a concurrency safe table of method metadata.
type MethodTable struct {
	mu      sync.RWMutex
	methods map[string]map[string]MethodInfo
}

func NewMethodTable() *MethodTable {
	return &MethodTable{methods: make(map[string]map[string]MethodInfo)}
}

// Register a method. Names are unique per service.
func (t *MethodTable) Register(m MethodInfo) error {
	if m.Service == "" || m.Name == "" {
		return fmt.Errorf("method needs a service and a name: %+v", m)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	byName, ok := t.methods[m.Service]
	if !ok {
		byName = make(map[string]MethodInfo)
		t.methods[m.Service] = byName
	}
	if _, exists := byName[m.Name]; exists {
		return fmt.Errorf("method %s.%s is already registered", m.Service, m.Name)
	}
	byName[m.Name] = m
	return nil
}

// Register a method and panic if it is already registered.
func (t *MethodTable) MustRegister(methods ...MethodInfo) {
	for _, m := range methods {
		if err := t.Register(m); err != nil {
			panic(err)
		}
	}
}

func (t *MethodTable) Lookup(service, name string) (MethodInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.methods[service][name]
	return m, ok
}

// Get the methods of a service sorted by name. An empty service lists the
// methods of all services.
func (t *MethodTable) List(service string) []MethodInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var result []MethodInfo
	for svc, byName := range t.methods {
		if service != "" && svc != service {
			continue
		}
		for _, m := range byName {
			result = append(result, m)
		}
	}
	slices.SortFunc(result, func(a, b MethodInfo) int {
		if c := strings.Compare(a.Service, b.Service); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return result
}

// Get the names of all services with registered methods.
func (t *MethodTable) Services() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	services := make([]string, 0, len(t.methods))
	for svc := range t.methods {
		services = append(services, svc)
	}
	slices.Sort(services)
	return services
}
