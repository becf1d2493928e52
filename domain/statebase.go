// Copyright 2023 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package domain

import (
	"context"
	"sync"

	"github.com/canonical/sqlair"
	"github.com/juju/errors"

	coredatabase "github.com/clustervision/luna2-daemon-sub002/core/database"
)

// StateBase defines a base struct for requesting a database. This will
// cache the database for the lifetime of the state and prepared
// statements by query text.
type StateBase struct {
	getDB coredatabase.TxnRunnerFactory

	mu         sync.Mutex
	statements map[string]*sqlair.Statement
}

// NewStateBase returns a new StateBase.
func NewStateBase(getDB coredatabase.TxnRunnerFactory) *StateBase {
	return &StateBase{
		getDB:      getDB,
		statements: make(map[string]*sqlair.Statement),
	}
}

// DB returns the database for a given namespace.
func (st *StateBase) DB(ctx context.Context) (coredatabase.TxnRunner, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	if st.getDB == nil {
		return nil, errors.New("nil getDB")
	}
	db, err := st.getDB()
	if err != nil {
		return nil, errors.Trace(err)
	}
	return db, nil
}

// Prepare prepares a SQLair query. If the query has been prepared
// previously it is retrieved from the statement cache.
//
// Note that because the type samples are not considered when retrieving
// a query from the cache, it is an error to prepare two identical queries
// with different type samples.
func (st *StateBase) Prepare(query string, typeSamples ...any) (*sqlair.Statement, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if stmt, ok := st.statements[query]; ok {
		return stmt, nil
	}

	stmt, err := sqlair.Prepare(query, typeSamples...)
	if err != nil {
		return nil, errors.Trace(err)
	}
	st.statements[query] = stmt
	return stmt, nil
}
