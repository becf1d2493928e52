// Copyright 2023 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	"github.com/juju/errors"

	coredatabase "github.com/clustervision/luna2-daemon-sub002/core/database"
)

// driverName is the name registered by github.com/mattn/go-sqlite3,
// which is imported by this package for its error types.
const driverName = "sqlite3"

// Open opens the controller database at the input path. Writers are
// serialised through a single connection.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.NotValidf("empty database path")
	}
	return open(fmt.Sprintf("file:%s?%s", path, dsnParams(false)))
}

// OpenInMemory opens a private in-memory database with the input name.
// It is intended for tests.
func OpenInMemory(name string) (*sql.DB, error) {
	return open(fmt.Sprintf("file:%s?%s", url.PathEscape(name), dsnParams(true)))
}

func open(dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, errors.Annotatef(err, "opening database")
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Annotatef(err, "pinging database")
	}
	return db, nil
}

func dsnParams(inMemory bool) string {
	v := url.Values{}
	v.Set("_foreign_keys", "on")
	v.Set("_busy_timeout", "5000")
	v.Set("_txlock", "immediate")
	if inMemory {
		v.Set("mode", "memory")
		v.Set("cache", "shared")
	} else {
		v.Set("_journal_mode", "WAL")
	}
	return v.Encode()
}

// ApplyDDL runs each of the input statements in a single transaction.
// Statements are expected to be idempotent.
func ApplyDDL(ctx context.Context, runner coredatabase.TxnRunner, ddl []string) error {
	err := runner.StdTxn(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for i, stmt := range ddl {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return errors.Annotatef(err, "applying schema statement %d", i)
			}
		}
		return nil
	})
	return errors.Trace(err)
}
