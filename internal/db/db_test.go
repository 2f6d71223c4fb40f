// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package db_test

import (
	"testing"

	"github.com/cobaltcore-dev/consolegw/internal/db"
	testlibDB "github.com/cobaltcore-dev/consolegw/testlib/db"
)

type mockRecord struct {
	Name  string `db:"name,primarykey"`
	Value string `db:"value"`
}

func (mockRecord) TableName() string { return "mock_records" }

func TestDB_CreateTableAndUpsert(t *testing.T) {
	env := testlibDB.SetupDBEnv(t)
	if err := env.CreateTable(env.AddTable(mockRecord{})); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	// Creating the table again is a no-op.
	if err := env.CreateTable(env.AddTable(mockRecord{})); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := db.Upsert(env, &mockRecord{Name: "a", Value: "1"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := db.Upsert(env, &mockRecord{Name: "a", Value: "2"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	var records []mockRecord
	if _, err := env.Select(&records, "SELECT * FROM mock_records"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(records) != 1 || records[0].Value != "2" {
		t.Errorf("expected the record to be updated, got %+v", records)
	}
}
