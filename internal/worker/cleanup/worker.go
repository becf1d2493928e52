// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package cleanup reaps expired records: status messages, liveness
// pings, reserved address holds and queued tasks that were never
// dispatched.
package cleanup

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/worker/v4/catacomb"

	"github.com/clustervision/luna2-daemon-sub002/core/status"
	"github.com/clustervision/luna2-daemon-sub002/domain/taskqueue"
)

const (
	defaultInterval        = time.Minute
	defaultStatusRetention = time.Hour
	defaultPingRetention   = 6 * time.Hour
	defaultHoldRetention   = 10 * time.Minute

	// ExpiredDetail is reported for a task that expired in its lane.
	ExpiredDetail = "task expired before dispatch"
)

// Logger represents the logging methods called.
type Logger interface {
	Warningf(message string, args ...any)
	Debugf(message string, args ...any)
}

// StatusLog is the status message feed.
type StatusLog interface {
	ReapOlderThan(ctx context.Context, age time.Duration) (int64, error)
	AppendResult(ctx context.Context, requestID, origin string, result status.Result) error
	Finish(ctx context.Context, requestID, origin string) error
}

// Pings holds liveness probe records.
type Pings interface {
	ReapPings(ctx context.Context, age time.Duration) (int64, error)
}

// Holds holds reserved address holds.
type Holds interface {
	ReleaseHoldsOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

// Queue is the task queue.
type Queue interface {
	ExpireStale(ctx context.Context) ([]taskqueue.Task, error)
}

// Config holds the dependencies of the worker.
type Config struct {
	Hostname  string
	StatusLog StatusLog
	Pings     Pings
	Holds     Holds
	Queue     Queue
	Clock     clock.Clock
	Logger    Logger

	Interval        time.Duration
	StatusRetention time.Duration
	PingRetention   time.Duration
	HoldRetention   time.Duration
}

// Validate returns an error if the config cannot be used.
func (config Config) Validate() error {
	if config.Hostname == "" {
		return errors.NotValidf("empty Hostname")
	}
	if config.StatusLog == nil {
		return errors.NotValidf("nil StatusLog")
	}
	if config.Pings == nil {
		return errors.NotValidf("nil Pings")
	}
	if config.Holds == nil {
		return errors.NotValidf("nil Holds")
	}
	if config.Queue == nil {
		return errors.NotValidf("nil Queue")
	}
	if config.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if config.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	for _, d := range []time.Duration{
		config.Interval, config.StatusRetention, config.PingRetention, config.HoldRetention,
	} {
		if d < 0 {
			return errors.NotValidf("negative duration %v", d)
		}
	}
	return nil
}

// Worker runs the cleanup on an interval.
type Worker struct {
	catacomb catacomb.Catacomb
	config   Config
}

// NewWorker starts the worker.
func NewWorker(config Config) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if config.Interval == 0 {
		config.Interval = defaultInterval
	}
	if config.StatusRetention == 0 {
		config.StatusRetention = defaultStatusRetention
	}
	if config.PingRetention == 0 {
		config.PingRetention = defaultPingRetention
	}
	if config.HoldRetention == 0 {
		config.HoldRetention = defaultHoldRetention
	}
	w := &Worker{config: config}
	if err := catacomb.Invoke(catacomb.Plan{
		Site: &w.catacomb,
		Work: w.loop,
	}); err != nil {
		return nil, errors.Trace(err)
	}
	return w, nil
}

// Kill is part of the worker.Worker interface.
func (w *Worker) Kill() {
	w.catacomb.Kill(nil)
}

// Wait is part of the worker.Worker interface.
func (w *Worker) Wait() error {
	return w.catacomb.Wait()
}

func (w *Worker) loop() error {
	timer := w.config.Clock.NewTimer(w.config.Interval)
	defer timer.Stop()

	ctx := w.catacomb.Context(context.Background())
	for {
		select {
		case <-w.catacomb.Dying():
			return w.catacomb.ErrDying()
		case <-timer.Chan():
			w.cleanup(ctx)
			timer.Reset(w.config.Interval)
		}
	}
}

// cleanup runs every step; a failing step does not prevent the others.
func (w *Worker) cleanup(ctx context.Context) {
	if n, err := w.config.StatusLog.ReapOlderThan(ctx, w.config.StatusRetention); err != nil {
		w.config.Logger.Warningf("reaping status messages: %v", err)
	} else if n > 0 {
		w.config.Logger.Debugf("reaped %d status messages", n)
	}

	if n, err := w.config.Pings.ReapPings(ctx, w.config.PingRetention); err != nil {
		w.config.Logger.Warningf("reaping pings: %v", err)
	} else if n > 0 {
		w.config.Logger.Debugf("reaped %d ping records", n)
	}

	if n, err := w.config.Holds.ReleaseHoldsOlderThan(ctx, w.config.HoldRetention); err != nil {
		w.config.Logger.Warningf("releasing reserved addresses: %v", err)
	} else if n > 0 {
		w.config.Logger.Debugf("released %d reserved addresses", n)
	}

	expired, err := w.config.Queue.ExpireStale(ctx)
	if err != nil {
		w.config.Logger.Warningf("expiring tasks: %v", err)
		return
	}
	for _, task := range expired {
		if err := w.reportExpired(ctx, task); err != nil {
			w.config.Logger.Warningf("reporting expired task %d: %v", task.ID, err)
		}
	}
}

func (w *Worker) reportExpired(ctx context.Context, task taskqueue.Task) error {
	if task.RequestID == "" {
		return nil
	}
	err := w.config.StatusLog.AppendResult(ctx, task.RequestID, task.Subsystem, status.Result{
		Actor:   w.config.Hostname,
		Command: task.Task,
		Detail:  ExpiredDetail,
	})
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(w.config.StatusLog.Finish(ctx, task.RequestID, task.Subsystem))
}
