// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package keystone

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	testlibKeystone "github.com/cobaltcore-dev/consolegw/testlib/keystone"
	"go.uber.org/goleak"
)

func TestCatalog_ReplaceAndInvalidate(t *testing.T) {
	catalog := NewCatalog()
	if _, _, ok := catalog.Current(); ok {
		t.Fatal("expected no catalog initially")
	}
	catalog.Replace(testCatalog())
	entries, index, ok := catalog.Current()
	if !ok || len(entries) != 2 {
		t.Fatalf("expected the replaced catalog, got %+v", entries)
	}
	if _, ok := index.Region("r2"); !ok {
		t.Error("expected the region map to be derived from the catalog")
	}
	catalog.Invalidate()
	if _, _, ok := catalog.Current(); ok {
		t.Error("expected no catalog after invalidation")
	}
}

func TestCatalog_StaleFetchDoesNotOverwrite(t *testing.T) {
	catalog := NewCatalog()
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error)
	go func() {
		_, err := catalog.fetch(context.Background(), "old", func(context.Context) (ServiceCatalog, error) {
			close(started)
			<-release
			return ServiceCatalog{{Name: "old"}}, nil
		})
		done <- err
	}()
	<-started
	catalog.Replace(ServiceCatalog{{Name: "new"}})
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	entries, _, _ := catalog.Current()
	if len(entries) != 1 || entries[0].Name != "new" {
		t.Errorf("expected the newer catalog to be kept, got %+v", entries)
	}
}

func TestCatalog_FetchMissingReusesLoadedCatalog(t *testing.T) {
	catalog := NewCatalog()
	fetches := 0
	fetch := func(context.Context) (ServiceCatalog, error) {
		fetches++
		return ServiceCatalog{{Name: "fetched"}}, nil
	}
	if _, err := catalog.fetchMissing(context.Background(), "k", fetch); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if fetches != 1 {
		t.Fatalf("expected one fetch for an empty catalog, got %d", fetches)
	}

	// A catalog stored by a concurrent fetch after the caller found none
	// must be returned instead of fetching again.
	catalog.Replace(ServiceCatalog{{Name: "concurrent"}})
	st, err := catalog.do(context.Background(), "missing:k", true, fetch)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if fetches != 1 || len(st.catalog) != 1 || st.catalog[0].Name != "concurrent" {
		t.Errorf("expected the loaded catalog to be reused, got %d fetches and %+v", fetches, st.catalog)
	}

	// An explicit fetch always goes to the server.
	if _, err := catalog.fetch(context.Background(), "k", fetch); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if fetches != 2 {
		t.Errorf("expected a forced fetch, got %d fetches", fetches)
	}
}

func setupSingleFlight(t *testing.T) (*testlibKeystone.Server, *IdentityResolver, *http.Transport) {
	t.Helper()
	transport := &http.Transport{}
	server, resolver := setupIdentityResolver(t, Opts{HTTPClient: &http.Client{Transport: transport}})
	if _, err := resolver.Authenticate(t.Context(), "admin", "secret"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	server.Configure(func(s *testlibKeystone.Server) { s.CatalogDelay = 100 * time.Millisecond })
	return server, resolver, transport
}

func TestIdentityResolver_SingleFlightCatalogFetch(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	server, resolver, transport := setupSingleFlight(t)
	defer server.Close()
	defer transport.CloseIdleConnections()

	const callers = 5
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			services, _, err := resolver.ActiveServices(t.Context())
			if err == nil && services["nova"]["admin"].URL == "" {
				err = errors.New("nova endpoint missing")
			}
			errs[i] = err
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d: expected no error, got %v", i, err)
		}
	}
	if got := server.CatalogRequests(); got != 1 {
		t.Errorf("expected exactly 1 catalog request, got %d", got)
	}
}

func TestIdentityResolver_SingleFlightCatalogFetch_Failure(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	server, resolver, transport := setupSingleFlight(t)
	defer server.Close()
	defer transport.CloseIdleConnections()
	server.Configure(func(s *testlibKeystone.Server) { s.CatalogStatus = http.StatusBadGateway })

	const callers = 5
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, errs[i] = resolver.ActiveServices(t.Context())
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, ErrCatalogFetchFailed) {
			t.Errorf("caller %d: expected catalog fetch failure, got %v", i, err)
		}
		if err != nil && err.Error() != errs[0].Error() {
			t.Errorf("caller %d: expected the same error for all callers, got %v", i, err)
		}
	}
	if got := server.CatalogRequests(); got != 1 {
		t.Errorf("expected exactly 1 catalog request, got %d", got)
	}
}

func TestIdentityResolver_CancelledCallerStillFillsCache(t *testing.T) {
	server, resolver, _ := setupSingleFlight(t)

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	_, _, err := resolver.ActiveServices(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	// The fetch keeps running for the benefit of other callers.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, _, ok := resolver.Catalog().Current(); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expected the catalog to be filled by the detached fetch")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, _, err := resolver.ActiveServices(t.Context()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := server.CatalogRequests(); got != 1 {
		t.Errorf("expected exactly 1 catalog request, got %d", got)
	}
}
