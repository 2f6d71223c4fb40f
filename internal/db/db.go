// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cobaltcore-dev/consolegw/internal/conf"
	"github.com/go-gorp/gorp"
	_ "github.com/lib/pq"
)

// Wrapper around gorp.DbMap that adds some convenience functions.
type DB struct {
	*gorp.DbMap
	DBConfig conf.DBConfig
}

type Table interface {
	TableName() string
}

// Create a new postgres database and wait until it is connected.
func NewPostgresDB(ctx context.Context, c conf.DBConfig, monitor Monitor) (DB, error) {
	dbURL, err := c.URL()
	if err != nil {
		return DB{}, err
	}
	slog.Info("connecting to database", "host", c.Host, "database", c.Database)
	sqlDB, err := sql.Open("postgres", dbURL)
	if err != nil {
		return DB{}, err
	}

	// Give up after 10 attempts, one second apart.
	maxRetries := 10
	for i := range maxRetries {
		err = sqlDB.PingContext(ctx)
		monitor.countConnectionAttempt(err)
		if err == nil {
			break
		}
		if i == maxRetries-1 {
			sqlDB.Close()
			return DB{}, fmt.Errorf("giving up connecting to database: %w", err)
		}
		slog.Error("failed to connect to database, retrying...", "error", err)
		select {
		case <-ctx.Done():
			sqlDB.Close()
			return DB{}, ctx.Err()
		case <-time.After(time.Second):
		}
	}

	sqlDB.SetMaxOpenConns(16)
	dbMap := &gorp.DbMap{Db: sqlDB, Dialect: gorp.PostgresDialect{}}
	slog.Info("database is ready")
	return DB{DBConfig: c, DbMap: dbMap}, nil
}

// Adds missing functionality to gorp.DbMap which creates one table.
func (d *DB) CreateTable(table ...*gorp.TableMap) error {
	tx, err := d.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	for _, t := range table {
		slog.Info("creating table", "table", t.TableName)
		sql := t.SqlForCreate(true) // true means to add IF NOT EXISTS
		if _, err := tx.Exec(sql); err != nil {
			return errors.Join(fmt.Errorf("failed to create table %s: %w", t.TableName, err), tx.Rollback())
		}
	}
	return tx.Commit()
}

// Adds a Model table to the database.
func (d *DB) AddTable(t Table) *gorp.TableMap {
	slog.Debug("adding table", "table", t.TableName())
	return d.AddTableWithName(t, t.TableName())
}

// Convenience function to the database connection.
func (d *DB) Close() {
	if err := d.DbMap.Db.Close(); err != nil {
		slog.Error("failed to close database connection", "error", err)
	}
}

// Database or transaction that supports update and insert methods.
type upsertable interface {
	Update(list ...any) (int64, error)
	Insert(list ...any) error
}

// Upsert a model into the database (Insert if possible, otherwise Update).
func Upsert(u upsertable, model any) error {
	err := u.Insert(model)
	if err == nil {
		return nil
	}
	if !isUniqueViolation(err) {
		return err
	}
	_, err = u.Update(model)
	return err
}

// Postgres and sqlite report unique constraint violations differently.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
