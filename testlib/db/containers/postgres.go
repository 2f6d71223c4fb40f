// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package containers

import (
	"database/sql"
	"log/slog"
	"testing"

	"github.com/cobaltcore-dev/consolegw/internal/conf"
	_ "github.com/lib/pq"
	"github.com/ory/dockertest"
	"github.com/ory/dockertest/docker"
)

const (
	postgresUser     = "consolegw"
	postgresPassword = "consolegw"
	postgresDatabase = "consolegw"
	// Seconds after which docker kills a container that was not purged.
	postgresExpiry = 120
)

// Postgres container started through the local docker daemon.
type Postgres struct {
	pool     *dockertest.Pool
	resource *dockertest.Resource
}

// Start a postgres container and wait until it accepts connections.
// The container is purged when the test ends.
func StartPostgres(t *testing.T) *Postgres {
	t.Helper()
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("failed to create docker pool: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Fatalf("failed to reach docker: %v", err)
	}
	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "17",
		Env: []string{
			"POSTGRES_USER=" + postgresUser,
			"POSTGRES_PASSWORD=" + postgresPassword,
			"POSTGRES_DB=" + postgresDatabase,
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("failed to start postgres: %v", err)
	}
	p := &Postgres{pool: pool, resource: resource}
	t.Cleanup(p.purge)
	if err := resource.Expire(postgresExpiry); err != nil {
		t.Fatalf("failed to set container expiry: %v", err)
	}

	dbURL, err := p.Config().URL()
	if err != nil {
		t.Fatalf("invalid postgres url: %v", err)
	}
	sqlDB, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("failed to open postgres: %v", err)
	}
	defer sqlDB.Close()
	if err := pool.Retry(sqlDB.Ping); err != nil {
		t.Fatalf("postgres did not become ready: %v", err)
	}
	return p
}

// Connection settings of the container.
func (p *Postgres) Config() conf.DBConfig {
	return conf.DBConfig{
		Host:     "localhost",
		Port:     p.resource.GetPort("5432/tcp"),
		User:     postgresUser,
		Password: postgresPassword,
		Database: postgresDatabase,
	}
}

func (p *Postgres) purge() {
	if err := p.pool.Purge(p.resource); err != nil {
		slog.Warn("failed to purge postgres container", "error", err)
	}
}
