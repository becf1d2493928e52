// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package controlplane is the contract offered to the API layer: task
// submission, request feed polling and the HA status snapshot.
package controlplane

import (
	"context"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/clustervision/luna2-daemon-sub002/core/status"
	"github.com/clustervision/luna2-daemon-sub002/domain/ha"
	haerrors "github.com/clustervision/luna2-daemon-sub002/domain/ha/errors"
	"github.com/clustervision/luna2-daemon-sub002/domain/taskqueue"
)

var logger = loggo.GetLogger("luna.controlplane")

// Queue accepts tasks.
type Queue interface {
	Enqueue(ctx context.Context, args taskqueue.EnqueueArgs) (taskqueue.EnqueueResult, error)
}

// Dispatcher starts the drainer of a lane.
type Dispatcher interface {
	Dispatch(ctx context.Context, lane string, id int64) error
}

// StatusLog serves request feeds.
type StatusLog interface {
	Poll(ctx context.Context, requestID string) ([]status.Message, error)
}

// HAState reports the HA state of the controller.
type HAState interface {
	Status(ctx context.Context) (ha.State, error)
}

// SubmitArgs describes a task to run.
type SubmitArgs struct {
	Lane  string
	Task  string
	Param string
	Force bool
}

// SubmitResult is the acknowledgement of a submission. For a duplicate
// the request id of the already queued task is returned, whose feed the
// caller should poll instead.
type SubmitResult struct {
	RequestID string
	TaskID    int64
	Outcome   taskqueue.Outcome
}

// HAStatus is a read only snapshot of the HA state.
type HAStatus struct {
	Enabled bool `json:"enabled"`
	Master  bool `json:"master"`
	InSync  bool `json:"insync"`
	Shadow  bool `json:"shadow"`
}

// ControlPlane implements the exposed contract.
type ControlPlane struct {
	queue      Queue
	dispatcher Dispatcher
	statusLog  StatusLog
	ha         HAState
	newID      func() string
}

// New returns a control plane over the input collaborators.
func New(queue Queue, dispatcher Dispatcher, statusLog StatusLog, haState HAState) *ControlPlane {
	return &ControlPlane{
		queue:      queue,
		dispatcher: dispatcher,
		statusLog:  statusLog,
		ha:         haState,
		newID:      uuid.NewString,
	}
}

// Submit enqueues a task under a new request id and hands it to the
// dispatcher. A dispatch failure is not returned; the tasks loop kicks
// every lane with visible work.
func (c *ControlPlane) Submit(ctx context.Context, args SubmitArgs) (SubmitResult, error) {
	res, err := c.queue.Enqueue(ctx, taskqueue.EnqueueArgs{
		Subsystem: args.Lane,
		Task:      args.Task,
		Param:     args.Param,
		RequestID: c.newID(),
		Force:     args.Force,
	})
	if err != nil {
		return SubmitResult{}, errors.Trace(err)
	}
	if res.Outcome == taskqueue.Added {
		if err := c.dispatcher.Dispatch(ctx, args.Lane, res.ID); err != nil {
			logger.Warningf("dispatching task %d in lane %q: %v", res.ID, args.Lane, err)
		}
	}
	return SubmitResult{
		RequestID: res.RequestID,
		TaskID:    res.ID,
		Outcome:   res.Outcome,
	}, nil
}

// Poll returns the unread messages of a request.
func (c *ControlPlane) Poll(ctx context.Context, requestID string) ([]status.Message, error) {
	if requestID == "" {
		return nil, errors.NotValidf("empty request id")
	}
	msgs, err := c.statusLog.Poll(ctx, requestID)
	return msgs, errors.Trace(err)
}

// GetHAStatus returns the HA snapshot. A controller whose HA state was
// never initialised reports HA as disabled.
func (c *ControlPlane) GetHAStatus(ctx context.Context) (HAStatus, error) {
	state, err := c.ha.Status(ctx)
	if errors.Is(err, haerrors.StateNotInitialised) {
		return HAStatus{}, nil
	} else if err != nil {
		return HAStatus{}, errors.Trace(err)
	}
	return HAStatus{
		Enabled: state.Enabled,
		Master:  state.Master,
		InSync:  state.InSync,
		Shadow:  state.Shadow,
	}, nil
}
