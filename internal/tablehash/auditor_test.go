// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package tablehash

import (
	"context"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/mock/gomock"
	gc "gopkg.in/check.v1"

	"github.com/clustervision/luna2-daemon-sub002/domain/ha"
	"github.com/clustervision/luna2-daemon-sub002/domain/records"
	"github.com/clustervision/luna2-daemon-sub002/internal/controlplane"
	"github.com/clustervision/luna2-daemon-sub002/internal/peer"
	"github.com/clustervision/luna2-daemon-sub002/internal/worker/taskexec"
)

type auditorSuite struct {
	testing.IsolationSuite

	ha      *MockHAState
	roster  *MockRoster
	records *MockRecords
	peers   *MockPeers
	tasks   *MockSubmitter
	metrics *Collector
}

var _ = gc.Suite(&auditorSuite{})

var (
	ctl1   = ha.Controller{Hostname: "ctl1", IPv4: "10.141.255.254"}
	ctl2   = ha.Controller{Hostname: "ctl2", IPv4: "10.141.255.253"}
	ctl3   = ha.Controller{Hostname: "ctl3", IPv4: "10.141.255.252", Shadow: true}
	ctl4   = ha.Controller{Hostname: "ctl4", IPv4: "10.141.255.251"}
	beacon = ha.Controller{Hostname: "controller", IPv4: "10.141.255.250", Beacon: true}
)

func (s *auditorSuite) setupMocks(c *gc.C) *gomock.Controller {
	ctrl := gomock.NewController(c)
	s.ha = NewMockHAState(ctrl)
	s.roster = NewMockRoster(ctrl)
	s.records = NewMockRecords(ctrl)
	s.peers = NewMockPeers(ctrl)
	s.tasks = NewMockSubmitter(ctrl)
	s.metrics = NewMetricsCollector()
	return ctrl
}

func (s *auditorSuite) newAuditor(c *gc.C) *Auditor {
	a, err := NewAuditor(Config{
		Hostname: "ctl2",
		HA:       s.ha,
		Roster:   s.roster,
		Records:  s.records,
		Peers:    s.peers,
		Tasks:    s.tasks,
		Logger:   loggo.GetLogger("test"),
		Metrics:  s.metrics,
	})
	c.Assert(err, jc.ErrorIsNil)
	return a
}

func (s *auditorSuite) TestSkippedWhenIneligible(c *gc.C) {
	defer s.setupMocks(c).Finish()

	a := s.newAuditor(c)
	for _, state := range []ha.State{
		{Enabled: false},
		{Enabled: true, Master: true},
		{Enabled: true, Shadow: true},
	} {
		s.ha.EXPECT().Status(gomock.Any()).Return(state, nil)
		report, err := a.Audit(context.Background())
		c.Assert(err, jc.ErrorIsNil)
		c.Check(report.Skipped, jc.IsTrue)
	}
}

func (s *auditorSuite) TestInSync(c *gc.C) {
	defer s.setupMocks(c).Finish()

	sums := map[string]string{"node": "a", "groups": "b"}
	s.ha.EXPECT().Status(gomock.Any()).Return(ha.State{Enabled: true, InSync: true}, nil)
	s.roster.EXPECT().Controllers(gomock.Any()).Return([]ha.Controller{ctl1, ctl2, beacon}, nil)
	s.records.EXPECT().Checksums(gomock.Any()).Return(sums, nil)
	s.records.EXPECT().Tables().Return([]string{"groups", "node"})
	s.peers.EXPECT().Checksums(gomock.Any(), ctl1).Return(sums, nil)
	s.peers.EXPECT().Ping(gomock.Any(), ctl1).Return(peer.PingResponse{Hostname: "ctl1"}, nil)

	report, err := s.newAuditor(c).Audit(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(report, gc.DeepEquals, Report{})
}

func (s *auditorSuite) TestRepairFromFirstDisagreeingPeer(c *gc.C) {
	defer s.setupMocks(c).Finish()

	content := records.Table{Name: "node", Columns: []string{"id", "name"}, Rows: [][]any{{int64(1), "node001"}}}

	s.ha.EXPECT().Status(gomock.Any()).Return(ha.State{Enabled: true, InSync: true}, nil)
	s.roster.EXPECT().Controllers(gomock.Any()).Return([]ha.Controller{ctl1, ctl2, ctl3, beacon}, nil)
	s.records.EXPECT().Checksums(gomock.Any()).Return(map[string]string{"node": "old", "groups": "g"}, nil)
	s.records.EXPECT().Tables().Return([]string{"groups", "node"})
	s.peers.EXPECT().Checksums(gomock.Any(), ctl1).Return(map[string]string{"node": "new", "groups": "g"}, nil)
	s.peers.EXPECT().Checksums(gomock.Any(), ctl3).Return(map[string]string{"node": "other", "groups": "g"}, nil)
	s.peers.EXPECT().Ping(gomock.Any(), ctl1).Return(peer.PingResponse{Hostname: "ctl1"}, nil)
	s.peers.EXPECT().Ping(gomock.Any(), ctl3).Return(peer.PingResponse{}, errors.New("timeout"))
	s.peers.EXPECT().Table(gomock.Any(), ctl1, "node").Return(content, nil)
	s.records.EXPECT().Replace(gomock.Any(), content).Return(nil)
	for _, task := range []string{taskexec.DNSReload, taskexec.DHCPRestart, taskexec.DHCP6Restart} {
		s.tasks.EXPECT().Submit(gomock.Any(), controlplane.SubmitArgs{Lane: ReloadLane, Task: task}).
			Return(controlplane.SubmitResult{RequestID: "r", Outcome: "added"}, nil)
	}

	report, err := s.newAuditor(c).Audit(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(report.Mismatched, jc.DeepEquals, []string{"node"})
	c.Check(report.Repaired, jc.DeepEquals, []string{"node"})
	c.Check(testutil.ToFloat64(s.metrics.repairs.WithLabelValues("node")), gc.Equals, 1.0)
}

func (s *auditorSuite) TestRepairPrefersMaster(c *gc.C) {
	defer s.setupMocks(c).Finish()

	content := records.Table{Name: "node", Columns: []string{"id", "name"}, Rows: [][]any{{int64(1), "node001"}}}

	s.ha.EXPECT().Status(gomock.Any()).Return(ha.State{Enabled: true, InSync: true}, nil)
	s.roster.EXPECT().Controllers(gomock.Any()).Return([]ha.Controller{ctl1, ctl2, ctl4}, nil)
	s.records.EXPECT().Checksums(gomock.Any()).Return(map[string]string{"node": "old"}, nil)
	s.records.EXPECT().Tables().Return([]string{"node"})
	s.peers.EXPECT().Checksums(gomock.Any(), ctl1).Return(map[string]string{"node": "stale"}, nil)
	s.peers.EXPECT().Checksums(gomock.Any(), ctl4).Return(map[string]string{"node": "new"}, nil)
	s.peers.EXPECT().Ping(gomock.Any(), ctl1).Return(peer.PingResponse{Hostname: "ctl1"}, nil)
	s.peers.EXPECT().Ping(gomock.Any(), ctl4).Return(peer.PingResponse{Hostname: "ctl4", Master: true}, nil)
	s.peers.EXPECT().Table(gomock.Any(), ctl4, "node").Return(content, nil)
	s.records.EXPECT().Replace(gomock.Any(), content).Return(nil)
	s.tasks.EXPECT().Submit(gomock.Any(), gomock.Any()).
		Return(controlplane.SubmitResult{RequestID: "r", Outcome: "added"}, nil).Times(3)

	report, err := s.newAuditor(c).Audit(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(report.Repaired, jc.DeepEquals, []string{"node"})
}

func (s *auditorSuite) TestUnreachablePeerIgnored(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.ha.EXPECT().Status(gomock.Any()).Return(ha.State{Enabled: true}, nil)
	s.roster.EXPECT().Controllers(gomock.Any()).Return([]ha.Controller{ctl1, ctl2}, nil)
	s.records.EXPECT().Checksums(gomock.Any()).Return(map[string]string{"node": "a"}, nil)
	s.records.EXPECT().Tables().Return([]string{"node"})
	s.peers.EXPECT().Checksums(gomock.Any(), ctl1).Return(nil, errors.New("connection refused"))

	report, err := s.newAuditor(c).Audit(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(report.Mismatched, gc.HasLen, 0)
}

func (s *auditorSuite) TestFailedFetchNotRepaired(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.ha.EXPECT().Status(gomock.Any()).Return(ha.State{Enabled: true}, nil)
	s.roster.EXPECT().Controllers(gomock.Any()).Return([]ha.Controller{ctl1, ctl2}, nil)
	s.records.EXPECT().Checksums(gomock.Any()).Return(map[string]string{"node": "a"}, nil)
	s.records.EXPECT().Tables().Return([]string{"node"})
	s.peers.EXPECT().Checksums(gomock.Any(), ctl1).Return(map[string]string{"node": "b"}, nil)
	s.peers.EXPECT().Ping(gomock.Any(), ctl1).Return(peer.PingResponse{Hostname: "ctl1"}, nil)
	s.peers.EXPECT().Table(gomock.Any(), ctl1, "node").Return(records.Table{}, errors.New("timeout"))

	report, err := s.newAuditor(c).Audit(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Check(report.Mismatched, jc.DeepEquals, []string{"node"})
	c.Check(report.Repaired, gc.HasLen, 0)
}
