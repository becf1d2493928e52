// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package dispatcher

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/worker/v4/catacomb"

	"github.com/clustervision/luna2-daemon-sub002/domain/taskqueue"
	taskqueueerrors "github.com/clustervision/luna2-daemon-sub002/domain/taskqueue/errors"
)

type drainerConfig struct {
	lane     string
	queue    Queue
	executor Executor
	clock    clock.Clock
	logger   Logger
	metrics  *Collector
	backoff  time.Duration

	// done hands the lane back to the dispatcher.
	done func(abort <-chan struct{})
}

// drainer executes the tasks of one lane in id order until the lane is
// empty.
type drainer struct {
	catacomb catacomb.Catacomb
	config   drainerConfig
	kicked   chan struct{}

	// executed holds the tasks that ran but are still queued because
	// their removal failed. They are never executed again.
	executed map[int64]bool
}

func newDrainer(config drainerConfig) (*drainer, error) {
	dr := &drainer{
		config:   config,
		kicked:   make(chan struct{}, 1),
		executed: make(map[int64]bool),
	}
	if err := catacomb.Invoke(catacomb.Plan{
		Site: &dr.catacomb,
		Work: dr.loop,
	}); err != nil {
		return nil, errors.Trace(err)
	}
	return dr, nil
}

// Kill is part of the worker.Worker interface.
func (dr *drainer) Kill() {
	dr.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (dr *drainer) Wait() error {
	return dr.catacomb.Wait()
}

func (dr *drainer) kick() {
	select {
	case dr.kicked <- struct{}{}:
	default:
	}
}

func (dr *drainer) pending() bool {
	select {
	case <-dr.kicked:
		return true
	default:
		return false
	}
}

func (dr *drainer) loop() error {
	ctx := dr.catacomb.Context(context.Background())
	lane := dr.config.lane
	for {
		select {
		case <-dr.catacomb.Dying():
			return dr.catacomb.ErrDying()
		default:
		}

		id, err := dr.config.queue.Next(ctx, lane)
		if errors.Is(err, taskqueueerrors.LaneEmpty) {
			if dr.pending() {
				continue
			}
			dr.config.done(dr.catacomb.Dying())
			return nil
		} else if err != nil {
			dr.config.logger.Errorf("lane %q: finding next task: %v", lane, err)
			if err := dr.pause(); err != nil {
				return err
			}
			continue
		}

		task, err := dr.config.queue.GetDetails(ctx, id)
		if errors.Is(err, taskqueueerrors.TaskNotFound) {
			delete(dr.executed, id)
			continue
		} else if err != nil {
			dr.config.logger.Errorf("lane %q: reading task %d: %v", lane, id, err)
			if err := dr.pause(); err != nil {
				return err
			}
			continue
		}
		if task.Subsystem != lane {
			dr.config.logger.Warningf("lane %q: task %d moved to lane %q, backing off", lane, id, task.Subsystem)
			if err := dr.pause(); err != nil {
				return err
			}
			continue
		}

		if err := dr.run(ctx, task); err != nil {
			dr.config.logger.Errorf("lane %q: %v", lane, err)
			if err := dr.pause(); err != nil {
				return err
			}
		}
	}
}

// run executes a single task and removes it from the queue. A failing
// task is removed like any other so that it cannot block its lane. The
// task runs to completion even if the drainer is asked to stop.
func (dr *drainer) run(ctx context.Context, task taskqueue.Task) error {
	if !dr.executed[task.ID] {
		err := dr.config.queue.MarkInProgress(ctx, task.ID)
		if errors.Is(err, taskqueueerrors.TaskNotFound) {
			return nil
		} else if err != nil {
			return errors.Annotatef(err, "marking task %d in progress", task.ID)
		}

		outcome := "ok"
		dr.config.logger.Debugf("lane %q: executing task %d (%s)", task.Subsystem, task.ID, task.Task)
		if err := dr.execute(context.WithoutCancel(ctx), task); err != nil {
			dr.config.logger.Errorf("lane %q: task %d (%s) failed: %v", task.Subsystem, task.ID, task.Task, err)
			outcome = "failed"
		}
		dr.config.metrics.taskDone(task.Subsystem, outcome)
		dr.executed[task.ID] = true
	}

	if err := dr.config.queue.Remove(context.WithoutCancel(ctx), task.ID); err != nil {
		return errors.Annotatef(err, "removing task %d", task.ID)
	}
	delete(dr.executed, task.ID)
	return nil
}

func (dr *drainer) execute(ctx context.Context, task taskqueue.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return dr.config.executor.Execute(ctx, task)
}

func (dr *drainer) pause() error {
	select {
	case <-dr.catacomb.Dying():
		return dr.catacomb.ErrDying()
	case <-dr.config.clock.After(dr.config.backoff):
		return nil
	}
}
