// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package service

import (
	"context"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"go.uber.org/mock/gomock"
	gc "gopkg.in/check.v1"

	"github.com/clustervision/luna2-daemon-sub002/domain/maintenance"
)

type serviceSuite struct {
	testing.IsolationSuite

	state *MockState
	clock *testclock.Clock
	now   time.Time
}

var _ = gc.Suite(&serviceSuite{})

func (s *serviceSuite) setupMocks(c *gc.C) *gomock.Controller {
	ctrl := gomock.NewController(c)

	s.state = NewMockState(ctrl)
	s.now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.clock = testclock.NewClock(s.now)

	return ctrl
}

func (s *serviceSuite) TestReleaseHoldsOlderThan(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.state.EXPECT().DeleteHoldsBefore(gomock.Any(), s.now.Add(-10*time.Minute)).Return(int64(2), nil)

	removed, err := NewService(s.state, s.clock).ReleaseHoldsOlderThan(context.Background(), 10*time.Minute)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(removed, gc.Equals, int64(2))
}

func (s *serviceSuite) TestReplaceSwitchPortsStamps(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.state.EXPECT().ReplaceSwitchPorts(gomock.Any(), []maintenance.SwitchPort{
		{MACAddress: "aa:aa", Switch: "switch01", Port: "1", Updated: s.now},
	}).Return(nil)

	err := NewService(s.state, s.clock).ReplaceSwitchPorts(context.Background(), []maintenance.SwitchPort{
		{MACAddress: "aa:aa", Switch: "switch01", Port: "1"},
	})
	c.Assert(err, jc.ErrorIsNil)
}

func (s *serviceSuite) TestReplaceSwitchPortsInvalid(c *gc.C) {
	defer s.setupMocks(c).Finish()

	err := NewService(s.state, s.clock).ReplaceSwitchPorts(context.Background(), []maintenance.SwitchPort{{Switch: "switch01"}})
	c.Check(err, jc.ErrorIs, errors.NotValid)
}

func (s *serviceSuite) TestHoldIP(c *gc.C) {
	defer s.setupMocks(c).Finish()

	s.state.EXPECT().HoldIP(gomock.Any(), "10.141.0.10", "node001", s.now).Return(nil)

	err := NewService(s.state, s.clock).HoldIP(context.Background(), "10.141.0.10", "node001")
	c.Assert(err, jc.ErrorIsNil)
}
