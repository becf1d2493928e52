// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package configaudit renders node and image configuration and raises
// the degraded flag while any rendering carries the invalid marker.
package configaudit

import (
	"context"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/worker/v4/catacomb"

	"github.com/clustervision/luna2-daemon-sub002/domain/maintenance"
	"github.com/clustervision/luna2-daemon-sub002/internal/command"
)

const (
	defaultInterval = 10 * time.Minute

	// InvalidMarker is written by the renderers in place of a value
	// that could not be resolved.
	InvalidMarker = "!!Invalid!!"
)

// Logger represents the logging methods called.
type Logger interface {
	Errorf(message string, args ...any)
	Warningf(message string, args ...any)
	Infof(message string, args ...any)
	Debugf(message string, args ...any)
}

// CommandRunner runs the renderers.
type CommandRunner interface {
	Run(ctx context.Context, cmd string, args ...string) (command.Result, error)
}

// Flags stores the degraded flag.
type Flags interface {
	Flag(ctx context.Context, name string) (bool, error)
	SetFlag(ctx context.Context, name string, value bool) error
}

// Config holds the dependencies of the worker.
type Config struct {
	// Commands print rendered configuration on standard output.
	Commands []string
	Runner   CommandRunner
	Flags    Flags
	Clock    clock.Clock
	Logger   Logger

	// Metrics is optional.
	Metrics  *Collector
	Interval time.Duration
}

// Validate returns an error if the config cannot be used.
func (config Config) Validate() error {
	if len(config.Commands) == 0 {
		return errors.NotValidf("empty Commands")
	}
	for _, cmd := range config.Commands {
		if err := command.Validate(cmd); err != nil {
			return errors.Trace(err)
		}
	}
	if config.Runner == nil {
		return errors.NotValidf("nil Runner")
	}
	if config.Flags == nil {
		return errors.NotValidf("nil Flags")
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

// Worker audits rendered configuration on an interval.
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
	ctx := w.catacomb.Context(context.Background())

	degraded, err := w.config.Flags.Flag(ctx, maintenance.ConfigDegraded)
	if err != nil {
		w.config.Logger.Warningf("reading %s flag: %v", maintenance.ConfigDegraded, err)
	}
	w.config.Metrics.setDegraded(degraded)

	timer := w.config.Clock.NewTimer(w.config.Interval)
	defer timer.Stop()

	for {
		select {
		case <-w.catacomb.Dying():
			return w.catacomb.ErrDying()
		case <-timer.Chan():
			degraded = w.audit(ctx, degraded)
			timer.Reset(w.config.Interval)
		}
	}
}

// audit renders every configuration and returns the new degraded
// state. Only a change of state is logged.
func (w *Worker) audit(ctx context.Context, degraded bool) bool {
	var invalid []string
	for _, cmd := range w.config.Commands {
		result, err := w.config.Runner.Run(ctx, cmd)
		if err != nil {
			w.config.Logger.Warningf("rendering configuration: %v", err)
			continue
		}
		if strings.Contains(result.Stdout, InvalidMarker) {
			invalid = append(invalid, cmd)
		}
	}
	w.config.Metrics.audited()

	now := len(invalid) > 0
	if now == degraded {
		return degraded
	}
	if err := w.config.Flags.SetFlag(ctx, maintenance.ConfigDegraded, now); err != nil {
		w.config.Logger.Errorf("setting %s flag: %v", maintenance.ConfigDegraded, err)
		return degraded
	}
	w.config.Metrics.setDegraded(now)
	if now {
		w.config.Logger.Warningf("configuration is degraded: invalid values rendered by %s", strings.Join(invalid, ", "))
	} else {
		w.config.Logger.Infof("configuration is no longer degraded")
	}
	return now
}
