// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package state

import (
	"context"

	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/clustervision/luna2-daemon-sub002/domain/records"
	recordserrors "github.com/clustervision/luna2-daemon-sub002/domain/records/errors"
	"github.com/clustervision/luna2-daemon-sub002/domain/schema/testing"
	"github.com/clustervision/luna2-daemon-sub002/internal/database"
)

type stateSuite struct {
	testing.ControllerSuite
}

var _ = gc.Suite(&stateSuite{})

func (s *stateSuite) TestColumns(c *gc.C) {
	st := NewState(s.TxnRunnerFactory())

	columns, err := st.Columns(context.Background(), "dnsentry")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(columns, jc.DeepEquals, []string{"id", "host", "networkid", "ipaddress"})

	key, err := st.NaturalKey(context.Background(), "dnsentry")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(key, jc.DeepEquals, []string{"host", "networkid"})
}

func (s *stateSuite) TestNotTracked(c *gc.C) {
	st := NewState(s.TxnRunnerFactory())

	_, err := st.Dump(context.Background(), "queue")
	c.Check(err, jc.ErrorIs, recordserrors.TableNotTracked)
}

func (s *stateSuite) TestDumpOrdersByNaturalKey(c *gc.C) {
	st := NewState(s.TxnRunnerFactory())

	s.Exec(c, `INSERT INTO node (id, name, status) VALUES (1, 'node002', 'installed')`)
	s.Exec(c, `INSERT INTO node (id, name, status) VALUES (2, 'node001', '')`)

	table, err := st.Dump(context.Background(), "node")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(table.Name, gc.Equals, "node")
	c.Check(table.Columns, jc.DeepEquals, []string{"id", "name", "groupid", "osimageid", "status", "comment"})
	c.Check(table.Rows, jc.DeepEquals, [][]any{
		{int64(2), "node001", nil, nil, "", ""},
		{int64(1), "node002", nil, nil, "installed", ""},
	})
}

func (s *stateSuite) TestReplace(c *gc.C) {
	st := NewState(s.TxnRunnerFactory())
	ctx := context.Background()

	s.Exec(c, `INSERT INTO network (id, name, network, subnet) VALUES (1, 'cluster', '10.141.0.0', '16')`)
	s.Exec(c, `INSERT INTO network (id, name, network, subnet) VALUES (2, 'ipmi', '10.148.0.0', '16')`)

	source := records.Table{
		Name:    "network",
		Columns: []string{"id", "name", "network", "subnet", "gateway", "zone", "dhcp"},
		Rows: [][]any{
			{int64(1), "cluster", "10.141.0.0", "16", "10.141.255.254", "internal", true},
		},
	}
	err := st.Replace(ctx, source)
	c.Assert(err, jc.ErrorIsNil)

	table, err := st.Dump(ctx, "network")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(table.Rows, jc.DeepEquals, source.Rows)

	want, err := records.Fingerprint(source)
	c.Assert(err, jc.ErrorIsNil)
	got, err := records.Fingerprint(table)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(got, gc.Equals, want)
}

func (s *stateSuite) TestReplaceColumnMismatch(c *gc.C) {
	st := NewState(s.TxnRunnerFactory())

	s.Exec(c, `INSERT INTO network (id, name) VALUES (1, 'cluster')`)

	err := st.Replace(context.Background(), records.Table{
		Name:    "network",
		Columns: []string{"id", "name"},
	})
	c.Check(err, jc.ErrorIs, recordserrors.ColumnMismatch)

	// The failed import leaves the table untouched.
	table, err := st.Dump(context.Background(), "network")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(table.Rows, gc.HasLen, 1)
}

func (s *stateSuite) TestUpsert(c *gc.C) {
	st := NewState(s.TxnRunnerFactory())
	ctx := context.Background()

	row, err := st.Upsert(ctx, "nodeinterface", map[string]any{
		"nodeid": 3, "interface": "BOOTIF", "macaddress": "aa:bb:cc:dd:ee:ff",
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Check(row["macaddress"], gc.Equals, "aa:bb:cc:dd:ee:ff")
	c.Check(row["id"], gc.NotNil)

	row, err = st.Upsert(ctx, "nodeinterface", map[string]any{
		"nodeid": 3, "interface": "BOOTIF", "macaddress": "11:22:33:44:55:66",
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Check(row["macaddress"], gc.Equals, "11:22:33:44:55:66")

	table, err := st.Dump(ctx, "nodeinterface")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(table.Rows, gc.HasLen, 1)
}

func (s *stateSuite) TestUpsertInvalid(c *gc.C) {
	st := NewState(s.TxnRunnerFactory())
	ctx := context.Background()

	_, err := st.Upsert(ctx, "node", map[string]any{"status": "x"})
	c.Check(err, gc.ErrorMatches, `node record without "name" not valid`)

	_, err = st.Upsert(ctx, "node", map[string]any{"name": "node001", "bogus": 1})
	c.Check(err, gc.ErrorMatches, `column "bogus" of table "node" not valid`)
}

func (s *stateSuite) TestUpsertCollidingIDIsNotValid(c *gc.C) {
	st := NewState(s.TxnRunnerFactory())
	ctx := context.Background()

	_, err := st.Upsert(ctx, "node", map[string]any{"id": 4, "name": "node001"})
	c.Assert(err, jc.ErrorIsNil)

	_, err = st.Upsert(ctx, "node", map[string]any{"id": 4, "name": "node002"})
	c.Check(err, jc.ErrorIs, errors.NotValid)
	c.Check(database.IsErrConstraintUnique(err), jc.IsTrue)

	_, err = st.Upsert(ctx, "node", map[string]any{"name": "node002"})
	c.Assert(err, jc.ErrorIsNil)
	table, err := st.Dump(ctx, "node")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(table.Rows, gc.HasLen, 2)
}

func (s *stateSuite) TestDelete(c *gc.C) {
	st := NewState(s.TxnRunnerFactory())
	ctx := context.Background()

	_, err := st.Upsert(ctx, "user", map[string]any{"username": "root", "roles": "admin"})
	c.Assert(err, jc.ErrorIsNil)

	c.Assert(st.Delete(ctx, "user", map[string]any{"username": "root"}), jc.ErrorIsNil)
	c.Assert(st.Delete(ctx, "user", map[string]any{"username": "root"}), jc.ErrorIsNil)

	table, err := st.Dump(ctx, "user")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(table.Rows, gc.HasLen, 0)
}
