// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package dispatcher drains the lanes of the task queue. At most one
// drainer runs per lane; drainers are children of the dispatcher and
// exit once their lane is empty.
package dispatcher

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/worker/v4/catacomb"

	"github.com/clustervision/luna2-daemon-sub002/domain/taskqueue"
	taskqueueerrors "github.com/clustervision/luna2-daemon-sub002/domain/taskqueue/errors"
)

const (
	// ErrStopped is returned when work is handed to a dispatcher that
	// is shutting down.
	ErrStopped = errors.ConstError("dispatcher stopped")

	defaultMaxLanes    = 16
	defaultRaceBackoff = 10 * time.Second
)

// Logger represents the logging methods called.
type Logger interface {
	Errorf(message string, args ...any)
	Warningf(message string, args ...any)
	Infof(message string, args ...any)
	Debugf(message string, args ...any)
	Tracef(message string, args ...any)
}

// Queue is the task queue as seen by drainers.
type Queue interface {
	Next(ctx context.Context, subsystem string) (int64, error)
	GetDetails(ctx context.Context, id int64) (taskqueue.Task, error)
	MarkInProgress(ctx context.Context, id int64) error
	Remove(ctx context.Context, id int64) error
}

// Executor runs the operation of a task and reports its outcome to the
// task's requester.
type Executor interface {
	Execute(ctx context.Context, task taskqueue.Task) error
}

// Config holds the dependencies of a dispatcher.
type Config struct {
	Queue    Queue
	Executor Executor
	Clock    clock.Clock
	Logger   Logger

	// Metrics is optional.
	Metrics *Collector

	// MaxLanes bounds the number of lanes drained at the same time.
	// Further lanes wait for a drainer to finish.
	MaxLanes int

	// RaceBackoff is how long a drainer waits after it fetched a task
	// that was moved to another lane.
	RaceBackoff time.Duration
}

// Validate returns an error if the config cannot be used.
func (config Config) Validate() error {
	if config.Queue == nil {
		return errors.NotValidf("nil Queue")
	}
	if config.Executor == nil {
		return errors.NotValidf("nil Executor")
	}
	if config.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if config.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	if config.MaxLanes < 0 {
		return errors.NotValidf("negative MaxLanes")
	}
	if config.RaceBackoff < 0 {
		return errors.NotValidf("negative RaceBackoff")
	}
	return nil
}

// Dispatcher owns the lane drainers.
type Dispatcher struct {
	catacomb catacomb.Catacomb
	config   Config

	kicks    chan string
	finished chan string

	// Owned by the loop goroutine.
	drainers map[string]*drainer
	waiting  []string
}

// NewDispatcher starts a dispatcher.
func NewDispatcher(config Config) (*Dispatcher, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if config.MaxLanes == 0 {
		config.MaxLanes = defaultMaxLanes
	}
	if config.RaceBackoff == 0 {
		config.RaceBackoff = defaultRaceBackoff
	}
	d := &Dispatcher{
		config:   config,
		kicks:    make(chan string),
		finished: make(chan string),
		drainers: make(map[string]*drainer),
	}
	if err := catacomb.Invoke(catacomb.Plan{
		Site: &d.catacomb,
		Work: d.loop,
	}); err != nil {
		return nil, errors.Trace(err)
	}
	return d, nil
}

// Kill is part of the worker.Worker interface.
func (d *Dispatcher) Kill() {
	d.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (d *Dispatcher) Wait() error {
	return d.catacomb.Wait()
}

// Dispatch is called after a task was enqueued. A drainer is started for
// the lane only if the task is at the head of it; otherwise a drainer
// is already responsible for the lane.
func (d *Dispatcher) Dispatch(ctx context.Context, lane string, id int64) error {
	head, err := d.config.Queue.Next(ctx, lane)
	if errors.Is(err, taskqueueerrors.LaneEmpty) {
		// Already drained.
		return nil
	} else if err != nil {
		return errors.Annotatef(err, "finding head of lane %q", lane)
	}
	if head != id {
		d.config.Logger.Tracef("task %d is behind %d in lane %q", id, head, lane)
		return nil
	}
	return d.Kick(lane)
}

// Kick makes sure a drainer runs for the lane.
func (d *Dispatcher) Kick(lane string) error {
	select {
	case d.kicks <- lane:
		return nil
	case <-d.catacomb.Dying():
		return ErrStopped
	}
}

func (d *Dispatcher) loop() error {
	for {
		select {
		case <-d.catacomb.Dying():
			return d.catacomb.ErrDying()
		case lane := <-d.kicks:
			if err := d.kick(lane); err != nil {
				return errors.Trace(err)
			}
		case lane := <-d.finished:
			if err := d.finish(lane); err != nil {
				return errors.Trace(err)
			}
		}
	}
}

func (d *Dispatcher) kick(lane string) error {
	if dr, ok := d.drainers[lane]; ok {
		dr.kick()
		return nil
	}
	if len(d.drainers) >= d.config.MaxLanes {
		for _, w := range d.waiting {
			if w == lane {
				return nil
			}
		}
		d.config.Logger.Debugf("lane %q waits for a free drainer", lane)
		d.waiting = append(d.waiting, lane)
		return nil
	}
	return d.start(lane)
}

func (d *Dispatcher) finish(lane string) error {
	dr, ok := d.drainers[lane]
	if !ok {
		return errors.Errorf("unknown drainer for lane %q finished", lane)
	}
	delete(d.drainers, lane)
	d.config.Metrics.drainerStopped()

	// A kick that arrived after the drainer found its lane empty.
	if dr.pending() {
		return d.start(lane)
	}
	if len(d.waiting) > 0 {
		next := d.waiting[0]
		d.waiting = d.waiting[1:]
		return d.start(next)
	}
	return nil
}

func (d *Dispatcher) start(lane string) error {
	dr, err := newDrainer(drainerConfig{
		lane:     lane,
		queue:    d.config.Queue,
		executor: d.config.Executor,
		clock:    d.config.Clock,
		logger:   d.config.Logger,
		metrics:  d.config.Metrics,
		backoff:  d.config.RaceBackoff,
		done: func(abort <-chan struct{}) {
			select {
			case d.finished <- lane:
			case <-abort:
			}
		},
	})
	if err != nil {
		return errors.Trace(err)
	}
	if err := d.catacomb.Add(dr); err != nil {
		return errors.Trace(err)
	}
	d.drainers[lane] = dr
	d.config.Metrics.drainerStarted(lane)
	d.config.Logger.Debugf("started drainer for lane %q", lane)
	return nil
}
