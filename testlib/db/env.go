// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"database/sql"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/cobaltcore-dev/consolegw/internal/db"
	"github.com/cobaltcore-dev/consolegw/testlib/db/containers"
	"github.com/go-gorp/gorp"
	_ "github.com/mattn/go-sqlite3"
)

// Database of a single test.
type DBEnv struct {
	*db.DB
	// Either "sqlite3" or "postgres".
	Driver string
}

// Set up an empty database for the test, closed when the test ends.
// Sqlite is used unless POSTGRES_CONTAINER=1 is set, then the test runs
// against a throwaway postgres container.
func SetupDBEnv(t *testing.T) DBEnv {
	t.Helper()
	var env DBEnv
	if os.Getenv("POSTGRES_CONTAINER") == "1" {
		env = postgresEnv(t)
	} else {
		env = sqliteEnv(t)
	}
	if testing.Verbose() {
		env.TraceOn("[gorp]", log.New(os.Stdout, t.Name()+" ", log.Lmicroseconds))
	}
	t.Cleanup(env.Close)
	return env
}

func sqliteEnv(t *testing.T) DBEnv {
	t.Helper()
	sqlDB, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("failed to open sqlite database: %v", err)
	}
	dbMap := &gorp.DbMap{Db: sqlDB, Dialect: gorp.SqliteDialect{}}
	return DBEnv{DB: &db.DB{DbMap: dbMap}, Driver: "sqlite3"}
}

func postgresEnv(t *testing.T) DBEnv {
	t.Helper()
	container := containers.StartPostgres(t)
	pg, err := db.NewPostgresDB(t.Context(), container.Config(), db.Monitor{})
	if err != nil {
		t.Fatalf("failed to connect to postgres container: %v", err)
	}
	return DBEnv{DB: &pg, Driver: "postgres"}
}
