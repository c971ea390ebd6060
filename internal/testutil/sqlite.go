// Package testutil provides an in-memory store with the production schema
// translated to SQLite, for repository, service and HTTP tests.
package testutil

import (
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

var schema = []string{
	`CREATE TABLE agencies (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL,
		address1     TEXT NOT NULL,
		address2     TEXT NOT NULL DEFAULT '',
		state        TEXT NOT NULL,
		city         TEXT NOT NULL,
		phone_number TEXT NOT NULL,
		created_at   DATETIME NOT NULL,
		updated_at   DATETIME NOT NULL
	)`,
	`CREATE TABLE clients (
		id           TEXT PRIMARY KEY,
		agency_id    TEXT NOT NULL,
		name         TEXT NOT NULL,
		email        TEXT NOT NULL,
		phone_number TEXT NOT NULL,
		total_bill   DECIMAL(18, 2) NOT NULL,
		created_at   DATETIME NOT NULL,
		updated_at   DATETIME NOT NULL
	)`,
	`CREATE INDEX idx_clients_agency ON clients (agency_id, total_bill)`,
	`CREATE TABLE outbox (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		aggregate    TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		topic        TEXT NOT NULL,
		payload      BLOB NOT NULL,
		attempts     INTEGER NOT NULL DEFAULT 0,
		created_at   DATETIME NOT NULL,
		published_at DATETIME NULL
	)`,
	`CREATE TABLE bootstrap_claim (
		id         INTEGER PRIMARY KEY,
		claimed_at DATETIME NOT NULL
	)`,
}

// NewDB opens a fresh in-memory database with the schema applied. The pool
// is pinned to one connection because every SQLite :memory: connection is
// its own database.
func NewDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := sqlx.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return db
}
