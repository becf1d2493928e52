// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package hajournal drives the HA synchronisation protocol and the
// table-hash audit of a controller that takes part in HA.
package hajournal

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/worker/v4/catacomb"

	"github.com/clustervision/luna2-daemon-sub002/domain/ha"
	"github.com/clustervision/luna2-daemon-sub002/internal/hasync"
	"github.com/clustervision/luna2-daemon-sub002/internal/tablehash"
)

const (
	defaultInterval      = 5 * time.Second
	defaultAuditInterval = time.Hour
)

// Logger represents the logging methods called.
type Logger interface {
	Warningf(message string, args ...any)
	Infof(message string, args ...any)
	Debugf(message string, args ...any)
}

// HAState reports whether HA is enabled.
type HAState interface {
	Status(ctx context.Context) (ha.State, error)
}

// Syncer runs one round of the synchronisation protocol.
type Syncer interface {
	Tick(ctx context.Context) (hasync.Result, error)
}

// Auditor compares the tracked tables with the peers.
type Auditor interface {
	Audit(ctx context.Context) (tablehash.Report, error)
}

// Config holds the dependencies of the worker.
type Config struct {
	HA     HAState
	Syncer Syncer

	// Auditor is optional; without it no audit runs.
	Auditor Auditor

	Clock         clock.Clock
	Logger        Logger
	Interval      time.Duration
	AuditInterval time.Duration
}

// Validate returns an error if the config cannot be used.
func (config Config) Validate() error {
	if config.HA == nil {
		return errors.NotValidf("nil HA")
	}
	if config.Syncer == nil {
		return errors.NotValidf("nil Syncer")
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
	if config.AuditInterval < 0 {
		return errors.NotValidf("negative AuditInterval")
	}
	return nil
}

// Worker runs the protocol while HA is enabled. It finishes without
// error once HA is found disabled.
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
	if config.AuditInterval == 0 {
		config.AuditInterval = defaultAuditInterval
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

	state, err := w.config.HA.Status(ctx)
	if err != nil {
		return errors.Annotate(err, "reading ha state")
	}
	if !state.Enabled {
		w.config.Logger.Infof("ha is disabled; not synchronising")
		return nil
	}

	timer := w.config.Clock.NewTimer(w.config.Interval)
	defer timer.Stop()

	var auditTimer clock.Timer
	var auditChan <-chan time.Time
	if w.config.Auditor != nil {
		auditTimer = w.config.Clock.NewTimer(w.config.AuditInterval)
		defer auditTimer.Stop()
		auditChan = auditTimer.Chan()
	}

	for {
		select {
		case <-w.catacomb.Dying():
			return w.catacomb.ErrDying()

		case <-timer.Chan():
			result, err := w.config.Syncer.Tick(ctx)
			if err != nil {
				w.config.Logger.Warningf("ha sync: %v", err)
			} else if !result.Enabled {
				w.config.Logger.Infof("ha has been disabled; stopping synchronisation")
				return nil
			} else if result.Pushed > 0 || result.Applied > 0 {
				w.config.Logger.Debugf("ha sync pushed %d and applied %d journal entries", result.Pushed, result.Applied)
			}
			timer.Reset(w.config.Interval)

		case <-auditChan:
			report, err := w.config.Auditor.Audit(ctx)
			if err != nil {
				w.config.Logger.Warningf("table audit: %v", err)
			} else if len(report.Repaired) > 0 {
				w.config.Logger.Infof("table audit repaired %v", report.Repaired)
			}
			auditTimer.Reset(w.config.AuditInterval)
		}
	}
}
