// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package taskexec

import (
	"context"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"go.uber.org/mock/gomock"
	gc "gopkg.in/check.v1"

	"github.com/clustervision/luna2-daemon-sub002/core/status"
	"github.com/clustervision/luna2-daemon-sub002/domain/taskqueue"
	"github.com/clustervision/luna2-daemon-sub002/internal/command"
	"github.com/clustervision/luna2-daemon-sub002/internal/servicecontrol"
)

type executorSuite struct {
	testing.IsolationSuite

	statusLog *MockStatusLog
	services  *MockServiceController
	commands  *MockCommandRunner
}

var _ = gc.Suite(&executorSuite{})

func (s *executorSuite) setupMocks(c *gc.C) *gomock.Controller {
	ctrl := gomock.NewController(c)
	s.statusLog = NewMockStatusLog(ctrl)
	s.services = NewMockServiceController(ctrl)
	s.commands = NewMockCommandRunner(ctrl)
	return ctrl
}

func (s *executorSuite) newExecutor(c *gc.C) *Executor {
	e, err := NewExecutor(Config{
		Hostname:  "ctl1",
		StatusLog: s.statusLog,
		Services:  s.services,
		Commands:  s.commands,
		Units:     Services{DHCP: "dhcpd", DHCP6: "dhcpd6", DNS: "named"},
		Images:    ImageCommands{Pack: "luna-image pack", Cleanup: "luna-image cleanup"},
		Logger:    loggo.GetLogger("test"),
	})
	c.Assert(err, jc.ErrorIsNil)
	return e
}

func (s *executorSuite) expectStartAndFinish(task taskqueue.Task) {
	s.statusLog.EXPECT().Append(gomock.Any(), task.RequestID, task.Subsystem, "started "+task.Task).Return(nil)
	s.statusLog.EXPECT().Finish(gomock.Any(), task.RequestID, task.Subsystem).Return(nil)
}

func (s *executorSuite) TestDNSReload(c *gc.C) {
	defer s.setupMocks(c).Finish()

	task := taskqueue.Task{ID: 1, Subsystem: "housekeeper", Task: DNSReload, RequestID: "r1"}
	s.expectStartAndFinish(task)
	s.services.EXPECT().Control(gomock.Any(), "named", servicecontrol.Reload).Return("reload done", nil)
	s.statusLog.EXPECT().AppendResult(gomock.Any(), "r1", "housekeeper", status.Result{
		Actor:   "ctl1",
		Command: DNSReload,
		Success: true,
		Detail:  "reload done",
	}).Return(nil)

	err := s.newExecutor(c).Execute(context.Background(), task)
	c.Assert(err, jc.ErrorIsNil)
}

func (s *executorSuite) TestServiceTask(c *gc.C) {
	defer s.setupMocks(c).Finish()

	task := taskqueue.Task{ID: 2, Subsystem: "service", Task: "service:dhcp6:stop", RequestID: "r2"}
	s.expectStartAndFinish(task)
	s.services.EXPECT().Control(gomock.Any(), "dhcpd6", servicecontrol.Stop).Return("stop done", nil)
	s.statusLog.EXPECT().AppendResult(gomock.Any(), "r2", "service", gomock.Any()).Return(nil)

	err := s.newExecutor(c).Execute(context.Background(), task)
	c.Assert(err, jc.ErrorIsNil)
}

func (s *executorSuite) TestServiceFailureReported(c *gc.C) {
	defer s.setupMocks(c).Finish()

	task := taskqueue.Task{ID: 3, Subsystem: "housekeeper", Task: DHCPRestart, RequestID: "r3"}
	s.expectStartAndFinish(task)
	s.services.EXPECT().Control(gomock.Any(), "dhcpd", servicecontrol.Restart).Return("", errors.New("unit failed"))
	s.statusLog.EXPECT().AppendResult(gomock.Any(), "r3", "housekeeper", gomock.Any()).DoAndReturn(
		func(_ context.Context, _, _ string, result status.Result) error {
			c.Check(result.Success, jc.IsFalse)
			c.Check(result.Detail, gc.Equals, "unit failed")
			return nil
		})

	err := s.newExecutor(c).Execute(context.Background(), task)
	c.Check(err, gc.ErrorMatches, "unit failed")
}

func (s *executorSuite) TestUnknownServiceAlias(c *gc.C) {
	defer s.setupMocks(c).Finish()

	task := taskqueue.Task{ID: 4, Subsystem: "service", Task: "service:sshd:restart", RequestID: "r4"}
	s.expectStartAndFinish(task)
	s.statusLog.EXPECT().AppendResult(gomock.Any(), "r4", "service", gomock.Any()).Return(nil)

	err := s.newExecutor(c).Execute(context.Background(), task)
	c.Check(err, jc.ErrorIs, errors.NotValid)
}

func (s *executorSuite) TestUnknownTask(c *gc.C) {
	defer s.setupMocks(c).Finish()

	task := taskqueue.Task{ID: 5, Subsystem: "housekeeper", Task: "node:reboot", RequestID: "r5"}
	s.expectStartAndFinish(task)
	s.statusLog.EXPECT().AppendResult(gomock.Any(), "r5", "housekeeper", gomock.Any()).Return(nil)

	err := s.newExecutor(c).Execute(context.Background(), task)
	c.Check(err, jc.ErrorIs, errors.NotValid)
}

func (s *executorSuite) TestImagePack(c *gc.C) {
	defer s.setupMocks(c).Finish()

	task := taskqueue.Task{ID: 6, Subsystem: "image", Task: ImagePack, Param: "compute", RequestID: "r6"}
	s.expectStartAndFinish(task)
	s.commands.EXPECT().Run(gomock.Any(), "luna-image pack", "compute").Return(command.Result{
		Stdout: "packing compute\nimage compute packed\n",
	}, nil)
	s.statusLog.EXPECT().AppendResult(gomock.Any(), "r6", "image", status.Result{
		Actor:   "compute",
		Command: ImagePack,
		Success: true,
		Detail:  "image compute packed",
	}).Return(nil)

	err := s.newExecutor(c).Execute(context.Background(), task)
	c.Assert(err, jc.ErrorIsNil)
}

func (s *executorSuite) TestImageWithoutName(c *gc.C) {
	defer s.setupMocks(c).Finish()

	task := taskqueue.Task{ID: 7, Subsystem: "image", Task: ImageCleanup, RequestID: "r7"}
	s.expectStartAndFinish(task)
	s.statusLog.EXPECT().AppendResult(gomock.Any(), "r7", "image", gomock.Any()).Return(nil)

	err := s.newExecutor(c).Execute(context.Background(), task)
	c.Check(err, jc.ErrorIs, errors.NotValid)
}

func (s *executorSuite) TestImageCommandNotConfigured(c *gc.C) {
	defer s.setupMocks(c).Finish()

	task := taskqueue.Task{ID: 8, Subsystem: "image", Task: ImageSync, Param: "compute", RequestID: "r8"}
	s.expectStartAndFinish(task)
	s.statusLog.EXPECT().AppendResult(gomock.Any(), "r8", "image", gomock.Any()).Return(nil)

	err := s.newExecutor(c).Execute(context.Background(), task)
	c.Check(err, jc.ErrorIs, errors.NotSupported)
}

func (s *executorSuite) TestFinishOnPanic(c *gc.C) {
	defer s.setupMocks(c).Finish()

	task := taskqueue.Task{ID: 9, Subsystem: "housekeeper", Task: DNSReload, RequestID: "r9"}
	s.expectStartAndFinish(task)
	s.services.EXPECT().Control(gomock.Any(), "named", servicecontrol.Reload).DoAndReturn(
		func(context.Context, string, servicecontrol.Action) (string, error) {
			panic("boom")
		})

	e := s.newExecutor(c)
	c.Check(func() { _ = e.Execute(context.Background(), task) }, gc.PanicMatches, "boom")
}
