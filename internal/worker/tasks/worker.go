// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package tasks periodically restarts the drainers of lanes that still
// hold tasks, so that work stranded by a lost hand-off is picked up.
package tasks

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/worker/v4/catacomb"
)

const defaultInterval = 5 * time.Second

// Logger represents the logging methods called.
type Logger interface {
	Warningf(message string, args ...any)
	Tracef(message string, args ...any)
}

// Queue reports the lanes with visible tasks.
type Queue interface {
	Lanes(ctx context.Context) ([]string, error)
}

// Dispatcher starts lane drainers.
type Dispatcher interface {
	Kick(lane string) error
}

// Config holds the dependencies of the worker.
type Config struct {
	Queue      Queue
	Dispatcher Dispatcher
	Clock      clock.Clock
	Logger     Logger
	Interval   time.Duration
}

// Validate returns an error if the config cannot be used.
func (config Config) Validate() error {
	if config.Queue == nil {
		return errors.NotValidf("nil Queue")
	}
	if config.Dispatcher == nil {
		return errors.NotValidf("nil Dispatcher")
	}
	if config.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if config.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	if config.Interval < 0 {
		return errors.NotValidf("negative Interval")
	}
	return nil
}

// Worker re-kicks lanes on an interval.
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
			w.kickLanes(ctx)
			timer.Reset(w.config.Interval)
		}
	}
}

func (w *Worker) kickLanes(ctx context.Context) {
	lanes, err := w.config.Queue.Lanes(ctx)
	if err != nil {
		w.config.Logger.Warningf("listing lanes: %v", err)
		return
	}
	for _, lane := range lanes {
		w.config.Logger.Tracef("kicking lane %q", lane)
		if err := w.config.Dispatcher.Kick(lane); err != nil {
			w.config.Logger.Warningf("kicking lane %q: %v", lane, err)
		}
	}
}
