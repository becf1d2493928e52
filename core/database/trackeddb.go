// Copyright 2023 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package database

import (
	"context"
	"database/sql"

	"github.com/canonical/sqlair"
)

// TxnRunner defines an interface for running transactions against the
// controller database. Retry semantics are applied automatically based on
// transient failures.
type TxnRunner interface {
	// Txn executes the input function against the database using sqlair,
	// within a transaction that depends on the input context.
	// This is the function that almost all downstream database consumers
	// should use.
	Txn(context.Context, func(context.Context, *sqlair.TX) error) error

	// StdTxn executes the input function against the database within a
	// plain database/sql transaction. It is used by consumers that need
	// to work with tables whose columns are only known at runtime.
	StdTxn(context.Context, func(context.Context, *sql.Tx) error) error
}

// TxnRunnerFactory returns a TxnRunner to use for a single unit of work.
type TxnRunnerFactory func() (TxnRunner, error)
