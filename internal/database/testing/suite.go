// Copyright 2022 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package testing

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	coredatabase "github.com/clustervision/luna2-daemon-sub002/core/database"
	"github.com/clustervision/luna2-daemon-sub002/internal/database"
)

// DatabaseSuite is used to provide a private in-memory sqlite database
// to tests.
type DatabaseSuite struct {
	testing.IsolationSuite

	db        *sql.DB
	txnRunner coredatabase.TxnRunner
}

// SetUpTest opens a new database for each test.
func (s *DatabaseSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)

	var err error
	s.db, err = database.OpenInMemory("test-" + uuid.NewString())
	c.Assert(err, jc.ErrorIsNil)

	s.txnRunner = database.NewTxnRunner(s.db)
}

// TearDownTest closes the database.
func (s *DatabaseSuite) TearDownTest(c *gc.C) {
	if s.db != nil {
		err := s.db.Close()
		c.Check(err, jc.ErrorIsNil)
		s.db = nil
	}
	s.IsolationSuite.TearDownTest(c)
}

// DB returns the raw database handle.
func (s *DatabaseSuite) DB() *sql.DB {
	return s.db
}

// TxnRunner returns the transaction runner attached to the database.
func (s *DatabaseSuite) TxnRunner() coredatabase.TxnRunner {
	return s.txnRunner
}

// TxnRunnerFactory returns a factory that always supplies the suite's
// transaction runner.
func (s *DatabaseSuite) TxnRunnerFactory() coredatabase.TxnRunnerFactory {
	return TxnRunnerFactory(s.txnRunner)
}

// ApplyDDL applies the input schema to the database.
func (s *DatabaseSuite) ApplyDDL(c *gc.C, ddl []string) {
	err := database.ApplyDDL(context.Background(), s.txnRunner, ddl)
	c.Assert(err, jc.ErrorIsNil)
}

// TxnRunnerFactory returns a factory that returns the given runner.
func TxnRunnerFactory(runner coredatabase.TxnRunner) coredatabase.TxnRunnerFactory {
	return func() (coredatabase.TxnRunner, error) {
		return runner, nil
	}
}
