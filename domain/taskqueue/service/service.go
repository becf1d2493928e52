// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package service

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/clustervision/luna2-daemon-sub002/core/status"
	"github.com/clustervision/luna2-daemon-sub002/domain/taskqueue"
)

var logger = loggo.GetLogger("luna.domain.taskqueue")

// State describes retrieval and persistence methods for the task queue.
type State interface {
	// Enqueue adds the input task unless force is false and an equivalent
	// task was created after dedupSince.
	Enqueue(ctx context.Context, task taskqueue.Task, dedupSince time.Time, force bool) (taskqueue.EnqueueResult, error)

	// Next returns the id of the head of the input lane.
	Next(ctx context.Context, subsystem string, now time.Time) (int64, error)

	// UpdateStatus sets the status of the input task.
	UpdateStatus(ctx context.Context, id int64, taskStatus status.Status) error

	// Remove deletes the input task.
	Remove(ctx context.Context, id int64) error

	// GetDetails returns the input task.
	GetDetails(ctx context.Context, id int64) (taskqueue.Task, error)

	// ReassignLane moves the input task to another lane.
	ReassignLane(ctx context.Context, id int64, subsystem string) error

	// Lanes returns every lane with a visible task.
	Lanes(ctx context.Context, now time.Time) ([]string, error)

	// ExpireStale removes queued tasks that expired at or before now.
	ExpireStale(ctx context.Context, now time.Time) ([]taskqueue.Task, error)

	// RemoveInProgress removes every task marked in progress.
	RemoveInProgress(ctx context.Context) ([]taskqueue.Task, error)
}

// Service provides the API for working with the task queue.
type Service struct {
	st     State
	policy taskqueue.Policy
	clock  clock.Clock
}

// NewService returns a new service reference wrapping the input state.
func NewService(st State, policy taskqueue.Policy, clock clock.Clock) *Service {
	return &Service{
		st:     st,
		policy: policy,
		clock:  clock,
	}
}

// Enqueue adds a task to its lane. An equivalent task enqueued within
// the dedup window is returned with a [taskqueue.Duplicate] outcome
// instead, unless Force is set.
func (s *Service) Enqueue(ctx context.Context, args taskqueue.EnqueueArgs) (taskqueue.EnqueueResult, error) {
	if args.Subsystem == "" {
		return taskqueue.EnqueueResult{}, errors.NotValidf("empty subsystem")
	}
	if args.Task == "" {
		return taskqueue.EnqueueResult{}, errors.NotValidf("empty task")
	}
	if args.RequestID == "" {
		return taskqueue.EnqueueResult{}, errors.NotValidf("empty request id")
	}

	now := s.clock.Now().UTC()
	task := taskqueue.Task{
		Subsystem: args.Subsystem,
		Task:      args.Task,
		Param:     args.Param,
		RequestID: args.RequestID,
		Status:    status.Queued,
		Created:   now,
		Expires:   now.Add(s.policy.ExpireAfter),
	}
	result, err := s.st.Enqueue(ctx, task, now.Add(-s.policy.DedupWindow), args.Force)
	if err != nil {
		return taskqueue.EnqueueResult{}, errors.Annotatef(err, "enqueueing %s in lane %q", args.Task, args.Subsystem)
	}
	if result.Outcome == taskqueue.Duplicate {
		logger.Debugf("%s in lane %q already queued as task %d", args.Task, args.Subsystem, result.ID)
	}
	return result, nil
}

// Next returns the id of the task at the head of the input lane. If the
// lane has no visible task an error satisfying
// [taskqueueerrors.LaneEmpty] is returned.
func (s *Service) Next(ctx context.Context, subsystem string) (int64, error) {
	id, err := s.st.Next(ctx, subsystem, s.clock.Now().UTC())
	return id, errors.Trace(err)
}

// MarkInProgress records that a drainer is about to execute the task.
func (s *Service) MarkInProgress(ctx context.Context, id int64) error {
	return errors.Trace(s.st.UpdateStatus(ctx, id, status.InProgress))
}

// Remove deletes the input task. Removing an absent task is a no-op.
func (s *Service) Remove(ctx context.Context, id int64) error {
	return errors.Trace(s.st.Remove(ctx, id))
}

// GetDetails returns the input task. If the task does not exist an error
// satisfying [taskqueueerrors.TaskNotFound] is returned.
func (s *Service) GetDetails(ctx context.Context, id int64) (taskqueue.Task, error) {
	task, err := s.st.GetDetails(ctx, id)
	return task, errors.Trace(err)
}

// ReassignLane moves the input task to another lane.
func (s *Service) ReassignLane(ctx context.Context, id int64, subsystem string) error {
	if subsystem == "" {
		return errors.NotValidf("empty subsystem")
	}
	return errors.Trace(s.st.ReassignLane(ctx, id, subsystem))
}

// Lanes returns every lane that currently has a visible task.
func (s *Service) Lanes(ctx context.Context) ([]string, error) {
	lanes, err := s.st.Lanes(ctx, s.clock.Now().UTC())
	return lanes, errors.Trace(err)
}

// ExpireStale removes queued tasks whose expiry has passed and returns
// them so that their requesters can be told.
func (s *Service) ExpireStale(ctx context.Context) ([]taskqueue.Task, error) {
	tasks, err := s.st.ExpireStale(ctx, s.clock.Now().UTC())
	if err != nil {
		return nil, errors.Trace(err)
	}
	for _, t := range tasks {
		logger.Infof("task %d (%s in lane %q) expired before dispatch", t.ID, t.Task, t.Subsystem)
	}
	return tasks, nil
}

// RecoverInterrupted removes tasks left in progress by a previous run of
// the controller. It must only be called before any drainer starts.
func (s *Service) RecoverInterrupted(ctx context.Context) ([]taskqueue.Task, error) {
	tasks, err := s.st.RemoveInProgress(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	for _, t := range tasks {
		logger.Warningf("task %d (%s in lane %q) interrupted by restart", t.ID, t.Task, t.Subsystem)
	}
	return tasks, nil
}
