// Copyright 2023 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/canonical/sqlair"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/retry"

	coredatabase "github.com/clustervision/luna2-daemon-sub002/core/database"
)

const (
	defaultRetryAttempts = 50
	defaultRetryDelay    = 10 * time.Millisecond
	defaultMaxRetryDelay = time.Second
)

// Logger is the logging interface used by the transaction runner.
type Logger interface {
	Tracef(string, ...interface{})
	Warningf(string, ...interface{})
}

// Option configures a transaction runner.
type Option func(*txnRunner)

// WithClock sets the clock used when backing off between retries.
func WithClock(clock clock.Clock) Option {
	return func(r *txnRunner) {
		r.clock = clock
	}
}

// WithLogger sets the logger used to report retried transactions.
func WithLogger(logger Logger) Option {
	return func(r *txnRunner) {
		r.logger = logger
	}
}

// WithRetryAttempts sets the number of attempts made before a transaction
// that keeps failing transiently is abandoned.
func WithRetryAttempts(attempts int) Option {
	return func(r *txnRunner) {
		r.attempts = attempts
	}
}

type txnRunner struct {
	db       *sqlair.DB
	clock    clock.Clock
	logger   Logger
	attempts int
}

// NewTxnRunner returns a transaction runner for the input database.
// Transactions that fail with a transient error are retried with an
// exponential backoff; any other error is returned immediately.
func NewTxnRunner(db *sql.DB, opts ...Option) coredatabase.TxnRunner {
	r := &txnRunner{
		db:       sqlair.NewDB(db),
		clock:    clock.WallClock,
		logger:   noopLogger{},
		attempts: defaultRetryAttempts,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Txn executes the input function against the tracked database, using
// the sqlair package.
func (r *txnRunner) Txn(ctx context.Context, fn func(context.Context, *sqlair.TX) error) error {
	return r.retry(ctx, func() error {
		if err := ctx.Err(); err != nil {
			return errors.Trace(err)
		}

		tx, err := r.db.Begin(ctx, nil)
		if err != nil {
			return errors.Trace(err)
		}
		if err := fn(ctx, tx); err != nil {
			if rErr := tx.Rollback(); rErr != nil && !errors.Is(rErr, sql.ErrTxDone) {
				r.logger.Warningf("failed to rollback transaction: %v", rErr)
			}
			return errors.Trace(err)
		}
		return errors.Trace(tx.Commit())
	})
}

// StdTxn executes the input function against the tracked database,
// within a standard library transaction.
func (r *txnRunner) StdTxn(ctx context.Context, fn func(context.Context, *sql.Tx) error) error {
	return r.retry(ctx, func() error {
		if err := ctx.Err(); err != nil {
			return errors.Trace(err)
		}

		tx, err := r.db.PlainDB().BeginTx(ctx, nil)
		if err != nil {
			return errors.Trace(err)
		}
		if err := fn(ctx, tx); err != nil {
			if rErr := tx.Rollback(); rErr != nil && !errors.Is(rErr, sql.ErrTxDone) {
				r.logger.Warningf("failed to rollback transaction: %v", rErr)
			}
			return errors.Trace(err)
		}
		return errors.Trace(tx.Commit())
	})
}

func (r *txnRunner) retry(ctx context.Context, fn func() error) error {
	err := retry.Call(retry.CallArgs{
		Func: fn,
		IsFatalError: func(err error) bool {
			return !IsErrRetryable(err)
		},
		NotifyFunc: func(err error, attempt int) {
			r.logger.Tracef("retrying transaction (attempt %d): %v", attempt, err)
		},
		Attempts:    r.attempts,
		Delay:       defaultRetryDelay,
		BackoffFunc: retry.ExpBackoff(defaultRetryDelay, defaultMaxRetryDelay, 1.5, true),
		Clock:       r.clock,
		Stop:        ctx.Done(),
	})
	if err != nil {
		return errors.Trace(retry.LastError(err))
	}
	return nil
}

type noopLogger struct{}

func (noopLogger) Tracef(string, ...interface{})   {}
func (noopLogger) Warningf(string, ...interface{}) {}
