// Copyright 2023 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package testing

import (
	"context"
	"database/sql"
	"strconv"

	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/clustervision/luna2-daemon-sub002/domain/schema"
	databasetesting "github.com/clustervision/luna2-daemon-sub002/internal/database/testing"
)

// ControllerSuite is used to provide a sql.DB reference to tests.
// It is pre-populated with the controller schema.
type ControllerSuite struct {
	databasetesting.DatabaseSuite
}

// SetUpTest is responsible for setting up a testing database suite
// initialised with the controller schema.
func (s *ControllerSuite) SetUpTest(c *gc.C) {
	s.DatabaseSuite.SetUpTest(c)
	s.DatabaseSuite.ApplyDDL(c, schema.ControllerDDL())
}

// Exec runs the input statement against the controller database.
func (s *ControllerSuite) Exec(c *gc.C, query string, args ...any) {
	err := s.TxnRunner().StdTxn(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	})
	c.Assert(err, jc.ErrorIsNil)
}

// SeedControllers inserts the input controller hostnames into the roster
// with sequential addresses starting at 10.141.255.254.
func (s *ControllerSuite) SeedControllers(c *gc.C, hostnames ...string) {
	for i, hostname := range hostnames {
		s.Exec(c, `INSERT INTO controller (hostname, ipv4) VALUES (?, ?)`,
			hostname, "10.141.255."+strconv.Itoa(254-i))
	}
}
