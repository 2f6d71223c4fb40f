// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"time"

	"github.com/cobaltcore-dev/consolegw/internal/db"
	"github.com/cobaltcore-dev/consolegw/pkg/console"
)

// Session row in the database.
type sessionRecord struct {
	Name      string    `db:"name,primarykey"`
	Data      string    `db:"data"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (sessionRecord) TableName() string { return "consolegw_sessions" }

// DBStore keeps named sessions in a SQL table.
type DBStore struct {
	db   *db.DB
	name string
}

// Create a store for the session with the given name.
// The sessions table is created if it does not exist yet.
func NewDBStore(d *db.DB, name string) (*DBStore, error) {
	if err := d.CreateTable(d.AddTable(sessionRecord{})); err != nil {
		return nil, err
	}
	return &DBStore{db: d, name: name}, nil
}

func (s *DBStore) Load(ctx context.Context) (console.Snapshot, error) {
	obj, err := s.db.WithContext(ctx).Get(sessionRecord{}, s.name)
	if err != nil {
		return console.Snapshot{}, err
	}
	if obj == nil {
		return console.Snapshot{}, ErrNoSession
	}
	return decode([]byte(obj.(*sessionRecord).Data))
}

func (s *DBStore) Save(ctx context.Context, snapshot console.Snapshot) error {
	data, err := encode(snapshot)
	if err != nil {
		return err
	}
	record := &sessionRecord{Name: s.name, Data: string(data), UpdatedAt: time.Now().UTC()}
	return db.Upsert(s.db.WithContext(ctx), record)
}

func (s *DBStore) Delete(ctx context.Context) error {
	_, err := s.db.WithContext(ctx).Delete(&sessionRecord{Name: s.name})
	return err
}
