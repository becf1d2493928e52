// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"github.com/juju/worker/v4/workertest"
	gc "gopkg.in/check.v1"

	"github.com/clustervision/luna2-daemon-sub002/core/status"
	"github.com/clustervision/luna2-daemon-sub002/domain/ha"
	"github.com/clustervision/luna2-daemon-sub002/domain/schema"
	"github.com/clustervision/luna2-daemon-sub002/internal/config"
	"github.com/clustervision/luna2-daemon-sub002/internal/database"
)

type agentSuite struct {
	testing.IsolationSuite

	db  *sql.DB
	cfg config.Config
}

var _ = gc.Suite(&agentSuite{})

func (s *agentSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)

	db, err := database.OpenInMemory(c.TestName())
	c.Assert(err, jc.ErrorIsNil)
	s.db = db
	s.AddCleanup(func(c *gc.C) { _ = db.Close() })

	cfg := config.Default()
	cfg.Hostname = "ctl1"
	cfg.ListenAddress = "127.0.0.1:0"
	cfg.ControlSocket = filepath.Join(c.MkDir(), "lunad.socket")
	cfg.Secret = "s3cret"
	cfg.Controllers = []config.Controller{
		{Hostname: "ctl1", IPv4: "127.0.0.1", ServerPort: 7050},
		{Hostname: "ctl2", IPv4: "127.0.0.2", ServerPort: 7050},
	}
	s.cfg = cfg
}

func (s *agentSuite) startAgent(c *gc.C) *Agent {
	clk := testclock.NewClock(time.Now())
	a, err := NewAgent(context.Background(), s.cfg, clk, s.db)
	c.Assert(err, jc.ErrorIsNil)
	s.AddCleanup(func(c *gc.C) { workertest.DirtyKill(c, a) })
	return a
}

func (s *agentSuite) TestStartsAndStops(c *gc.C) {
	a := s.startAgent(c)
	c.Check(a.Hostname(), gc.Equals, "ctl1")
	c.Check(a.PeerAddr(), gc.NotNil)
	workertest.CheckAlive(c, a)
	workertest.CleanKill(c, a)
}

func (s *agentSuite) TestControlSocketReportsHAState(c *gc.C) {
	s.cfg.HA.Enabled = true
	s.cfg.HA.Master = true
	a := s.startAgent(c)
	defer workertest.CleanKill(c, a)

	httpClient := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", s.cfg.ControlSocket)
			},
		},
	}
	resp, err := httpClient.Get("http://localhost/ha")
	c.Assert(err, jc.ErrorIsNil)
	defer resp.Body.Close()
	c.Assert(resp.StatusCode, gc.Equals, http.StatusOK)

	var got map[string]bool
	c.Assert(json.NewDecoder(resp.Body).Decode(&got), jc.ErrorIsNil)
	c.Check(got, jc.DeepEquals, map[string]bool{
		"enabled": true,
		"master":  true,
		"insync":  false,
		"shadow":  false,
	})
}

func (s *agentSuite) TestOverruleRaisesFlag(c *gc.C) {
	s.cfg.HA.Enabled = true
	s.cfg.HA.Overrule = true
	a := s.startAgent(c)
	defer workertest.CleanKill(c, a)

	var overrule bool
	err := s.db.QueryRow(`SELECT overrule FROM ha`).Scan(&overrule)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(overrule, jc.IsTrue)
}

func (s *agentSuite) TestInterruptedTasksAreReported(c *gc.C) {
	ctx := context.Background()
	runner := database.NewTxnRunner(s.db)
	c.Assert(database.ApplyDDL(ctx, runner, schema.ControllerDDL()), jc.ErrorIsNil)
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO queue (subsystem, task, param, request_id, status, created_at, expires_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		"housekeeper", "dns:reload", "", "req-1", status.InProgress.String(), now, now.Add(time.Hour))
	c.Assert(err, jc.ErrorIsNil)

	a := s.startAgent(c)
	defer workertest.CleanKill(c, a)

	messages, err := a.controlPlane.Poll(ctx, "req-1")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(messages, gc.HasLen, 2)
	c.Assert(messages[0].Result, gc.NotNil)
	c.Check(*messages[0].Result, jc.DeepEquals, status.Result{
		Actor:   "ctl1",
		Command: "dns:reload",
		Detail:  interruptedDetail,
	})
	c.Check(messages[0].Origin, gc.Equals, "housekeeper")
	c.Check(messages[1].IsEOF(), jc.IsTrue)
}

func (s *agentSuite) TestUnknownHostname(c *gc.C) {
	s.cfg.Hostname = "ctl9"
	_, err := NewAgent(context.Background(), s.cfg, testclock.NewClock(time.Now()), s.db)
	c.Assert(err, jc.ErrorIs, errors.NotFound)
	c.Check(err, gc.ErrorMatches, `controller "ctl9" in roster not found`)
}

func (s *agentSuite) TestIdentifyByAddress(c *gc.C) {
	roster := []ha.Controller{
		{Hostname: "ctl1", IPv4: "10.141.255.254"},
		{Hostname: "ctl2", IPv4: "10.141.255.253"},
	}
	me, err := identify(roster, "ctl2")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(me.Hostname, gc.Equals, "ctl2")
}

type mainSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&mainSuite{})

func (s *mainSuite) TestHelp(c *gc.C) {
	c.Check(Main([]string{"--help"}), gc.Equals, 0)
}

func (s *mainSuite) TestBadFlag(c *gc.C) {
	c.Check(Main([]string{"--bogus"}), gc.Equals, 2)
}

func (s *mainSuite) TestUnexpectedArgument(c *gc.C) {
	c.Check(Main([]string{"extra"}), gc.Equals, 2)
}

func (s *mainSuite) TestMissingConfig(c *gc.C) {
	path := filepath.Join(c.MkDir(), "missing.yaml")
	c.Check(Main([]string{"--config", path}), gc.Equals, 1)
}
