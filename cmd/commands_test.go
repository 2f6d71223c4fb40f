// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cobaltcore-dev/consolegw/internal/conf"
	"github.com/cobaltcore-dev/consolegw/internal/monitoring"
	"github.com/cobaltcore-dev/consolegw/pkg/console"
	"github.com/cobaltcore-dev/consolegw/pkg/gateway"
	"github.com/cobaltcore-dev/consolegw/pkg/session"
	testlibKeystone "github.com/cobaltcore-dev/consolegw/testlib/keystone"
	"github.com/spf13/cobra"
)

type cliEnv struct {
	keystone    *testlibKeystone.Server
	services    *httptest.Server
	configPath  string
	sessionPath string
}

func setupCLI(t *testing.T) cliEnv {
	t.Helper()
	services := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"path":%q,"token":%q}`, r.URL.Path, r.Header.Get(gateway.HeaderAuthToken))
	}))
	t.Cleanup(services.Close)

	ks := testlibKeystone.NewServer(t)
	endpoint := func(id, region, path string) testlibKeystone.Endpoint {
		return testlibKeystone.Endpoint{ID: id, Region: region, Interface: "internal", URL: services.URL + path}
	}
	ks.Catalog = []testlibKeystone.Service{
		{ID: "s1", Name: "nova", Type: "compute", Endpoints: []testlibKeystone.Endpoint{
			endpoint("e1", "r1", "/r1/nova/v3"),
			endpoint("e2", "r2", "/r2/nova/v3"),
		}},
		{ID: "s2", Name: "qbert", Type: "qbert", Endpoints: []testlibKeystone.Endpoint{
			endpoint("e3", "r1", "/r1/qbert/v3"),
		}},
	}

	dir := t.TempDir()
	sessionPath := filepath.Join(dir, "session.json")
	configPath := filepath.Join(dir, "conf.yaml")
	config := fmt.Sprintf(`
keystone:
  url: %s
  userDomainName: Default
gateway:
  requestTimeout: 5s
session:
  backend: file
  path: %s
logging:
  level: error
`, ks.IdentityURL(), sessionPath)
	if err := os.WriteFile(configPath, []byte(config), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv(passwordEnv, "secret")
	return cliEnv{keystone: ks, services: services, configPath: configPath, sessionPath: sessionPath}
}

// Run the command line with the test config and return its output.
func (e cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	root := newRootCommand()
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := root.ExecuteContext(t.Context())
	return buf.String(), err
}

func (e cliEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	if err != nil {
		t.Fatalf("%v: expected no error, got %v\n%s", args, err, out)
	}
	return out
}

func TestCommands_SessionLifecycle(t *testing.T) {
	env := setupCLI(t)

	out := env.mustRun(t, "login", "--username", "admin", "--project", "p1")
	if !strings.Contains(out, "in project project-p1") {
		t.Errorf("unexpected login output %q", out)
	}
	if _, err := os.Stat(env.sessionPath); err != nil {
		t.Fatalf("expected the session to be stored, got %v", err)
	}

	out = env.mustRun(t, "regions")
	if !strings.Contains(out, "r1") || !strings.Contains(out, "r2") {
		t.Errorf("expected both regions, got %q", out)
	}
	catalogRequests := env.keystone.CatalogRequests()

	env.mustRun(t, "region", "r2")
	out = env.mustRun(t, "resolve", "nova")
	if strings.TrimSpace(out) != env.services.URL+"/r2/nova/v3" {
		t.Errorf("expected the r2 nova endpoint, got %q", out)
	}
	if got := env.keystone.CatalogRequests(); got != catalogRequests {
		t.Errorf("expected the stored catalog to be reused, got %d new requests", got-catalogRequests)
	}

	env.mustRun(t, "region", "r1")
	out = env.mustRun(t, "resolve", "qbert")
	if strings.TrimSpace(out) != env.services.URL+"/r1/qbert/v4" {
		t.Errorf("expected the versioned qbert endpoint, got %q", out)
	}
	out = env.mustRun(t, "resolve", "nova", "--version", "v2.1")
	if strings.TrimSpace(out) != env.services.URL+"/r1/nova/v2.1" {
		t.Errorf("expected the version override, got %q", out)
	}

	out = env.mustRun(t, "get", "nova", "servers/detail")
	if !strings.Contains(out, `"/r1/nova/v3/servers/detail"`) {
		t.Errorf("unexpected get output %q", out)
	}

	out = env.mustRun(t, "catalog")
	if !strings.Contains(out, "qbert") || !strings.Contains(out, "/r2/nova/v3") {
		t.Errorf("unexpected catalog output %q", out)
	}

	env.mustRun(t, "renew")
	env.mustRun(t, "logout")
	if _, err := os.Stat(env.sessionPath); !os.IsNotExist(err) {
		t.Errorf("expected the session file to be removed, got %v", err)
	}
	if _, err := env.run(t, "resolve", "nova"); err == nil || !strings.Contains(err.Error(), "not logged in") {
		t.Errorf("expected not logged in error, got %v", err)
	}
	// Logging out twice is fine.
	env.mustRun(t, "logout")
}

func TestCommands_Errors(t *testing.T) {
	env := setupCLI(t)
	env.mustRun(t, "login", "--username", "admin", "--project", "p1")

	if _, err := env.run(t, "region", "nowhere"); err == nil || !strings.Contains(err.Error(), "unknown region") {
		t.Errorf("expected unknown region error, got %v", err)
	}
	if _, err := env.run(t, "resolve", "murano"); err == nil || !strings.Contains(err.Error(), "murano") {
		t.Errorf("expected endpoint not available error, got %v", err)
	}

	t.Setenv(passwordEnv, "wrong")
	if _, err := env.run(t, "login", "--username", "admin"); err == nil {
		t.Error("expected login with a wrong password to fail")
	}
	if _, err := env.run(t, "login"); err == nil || !strings.Contains(err.Error(), "no username") {
		t.Errorf("expected missing username error, got %v", err)
	}
}

func TestCommands_Methods(t *testing.T) {
	env := setupCLI(t)
	out := env.mustRun(t, "methods", "qbert")
	if !strings.Contains(out, "getClusters") || strings.Contains(out, "nova") {
		t.Errorf("unexpected methods output %q", out)
	}
	if _, err := env.run(t, "methods", "unknown"); err == nil {
		t.Error("expected an error for an unknown service")
	}
}

func loggedInClient(t *testing.T, ks *testlibKeystone.Server) *console.Client {
	t.Helper()
	c, err := console.New(console.Options{KeystoneEndpoint: ks.IdentityURL(), RequestTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := c.Login(t.Context(), "admin", "secret", "p1"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return c
}

func TestRenewTokens(t *testing.T) {
	ks := testlibKeystone.NewServer(t)
	ks.Configure(func(s *testlibKeystone.Server) { s.TokenTTL = 5 * time.Minute })
	c := loggedInClient(t, ks)
	before := c.Credentials().Snapshot()

	renewed, err := renewTokens(t.Context(), c, time.Minute, false)
	if err != nil || renewed {
		t.Errorf("expected fresh tokens to be kept, got renewed=%v err=%v", renewed, err)
	}
	renewed, err = renewTokens(t.Context(), c, 10*time.Minute, false)
	if err != nil || !renewed {
		t.Fatalf("expected expiring tokens to be renewed, got renewed=%v err=%v", renewed, err)
	}
	after := c.Credentials().Snapshot()
	if after.UnscopedToken.ID == before.UnscopedToken.ID || after.ScopedToken.ID == before.ScopedToken.ID {
		t.Error("expected both tokens to be replaced")
	}
	if after.ActiveProjectID != "p1" {
		t.Errorf("expected the project to be kept, got %q", after.ActiveProjectID)
	}

	c.Logout()
	if _, err := renewTokens(t.Context(), c, time.Minute, true); err == nil {
		t.Error("expected an error without tokens")
	}
}

func TestRunKeepalive(t *testing.T) {
	ks := testlibKeystone.NewServer(t)
	ks.Configure(func(s *testlibKeystone.Server) { s.TokenTTL = 5 * time.Minute })
	c := loggedInClient(t, ks)
	store := session.FileStore{Path: filepath.Join(t.TempDir(), "session.json")}
	if err := store.Save(t.Context(), c.Serialize()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	config, err := conf.NewConfigFromBytes([]byte("keystone:\n  url: " + ks.IdentityURL() + "\n"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	a := &app{
		config:   config,
		registry: monitoring.NewRegistry(conf.MonitoringConfig{}),
		store:    store,
	}

	ctx, cancel := context.WithTimeout(t.Context(), 200*time.Millisecond)
	defer cancel()
	if err := runKeepalive(ctx, a, 20*time.Millisecond, 10*time.Minute); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	stored, err := store.Load(t.Context())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if stored.ScopedToken == nil || stored.ScopedToken.ID == c.Credentials().Snapshot().ScopedToken.ID {
		t.Error("expected the renewed scoped token to be persisted")
	}
}

func TestKeepaliveOnce_PersistsPartialRenewal(t *testing.T) {
	ks := testlibKeystone.NewServer(t)
	ks.Configure(func(s *testlibKeystone.Server) { s.TokenTTL = 5 * time.Minute })
	c := loggedInClient(t, ks)
	store := session.FileStore{Path: filepath.Join(t.TempDir(), "session.json")}
	a := &app{store: store}

	// The server does not know this scoped token, so only the unscoped
	// token can be renewed.
	creds := c.Credentials().Snapshot()
	scoped := *creds.ScopedToken
	scoped.ID = "unknown"
	creds.ScopedToken = &scoped
	c.Credentials().Restore(creds)

	keepaliveOnce(t.Context(), a, c, 10*time.Minute)

	stored, err := store.Load(t.Context())
	if err != nil {
		t.Fatalf("expected the session to be persisted, got %v", err)
	}
	if stored.UnscopedToken == nil || stored.UnscopedToken.ID == creds.UnscopedToken.ID {
		t.Error("expected the renewed unscoped token to be persisted")
	}
	if stored.ScopedToken == nil || stored.ScopedToken.ID != "unknown" {
		t.Errorf("expected the scoped token to be kept, got %+v", stored.ScopedToken)
	}
}

func TestReadPassword_EnvironmentOverridesConfig(t *testing.T) {
	cmd := &cobra.Command{}
	t.Setenv(passwordEnv, "from-env")
	password, err := readPassword(cmd, "from-config")
	if err != nil || password != "from-env" {
		t.Errorf("expected the environment to win, got %q, %v", password, err)
	}
	t.Setenv(passwordEnv, "")
	password, err = readPassword(cmd, "from-config")
	if err != nil || password != "from-config" {
		t.Errorf("expected the config as fallback, got %q, %v", password, err)
	}
}
