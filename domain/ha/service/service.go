// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package service

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/clustervision/luna2-daemon-sub002/domain/ha"
)

var logger = loggo.GetLogger("luna.domain.ha")

// State describes retrieval and persistence methods for HA state.
type State interface {
	// EnsureState creates the HA state row if it is missing.
	EnsureState(ctx context.Context, initial ha.State) error

	// GetState returns the HA state.
	GetState(ctx context.Context) (ha.State, error)

	// SetRole records the master flag, honouring the demotion guard.
	SetRole(ctx context.Context, master bool, guard *time.Time, now time.Time) error

	// SetFlag sets one boolean of the HA state.
	SetFlag(ctx context.Context, flag ha.Flag, value bool, now time.Time) error

	// Controllers returns the roster.
	Controllers(ctx context.Context) ([]ha.Controller, error)

	// UpsertControllers writes roster entries.
	UpsertControllers(ctx context.Context, controllers []ha.Controller) error

	// RecordPing records a received liveness probe.
	RecordPing(ctx context.Context, hostname string, at time.Time) error

	// CountPingsSince counts controllers that probed after the input time.
	CountPingsSince(ctx context.Context, since time.Time) (int, error)

	// DeletePingsBefore removes ping records older than the input time.
	DeletePingsBefore(ctx context.Context, before time.Time) (int64, error)
}

// Service provides the API for HA role and liveness management.
type Service struct {
	st    State
	clock clock.Clock
}

// NewService returns a new service reference wrapping the input state.
func NewService(st State, clock clock.Clock) *Service {
	return &Service{
		st:    st,
		clock: clock,
	}
}

// Initialise creates the HA state on first boot. HA starts out of sync
// so that a joining controller bootstraps before participating.
func (s *Service) Initialise(ctx context.Context, enabled, master, shadow bool) error {
	err := s.st.EnsureState(ctx, ha.State{
		Enabled: enabled,
		Master:  master,
		Shadow:  shadow,
		Updated: s.clock.Now().UTC(),
	})
	return errors.Trace(err)
}

// Status returns a snapshot of the HA state.
func (s *Service) Status(ctx context.Context) (ha.State, error) {
	st, err := s.st.GetState(ctx)
	return st, errors.Trace(err)
}

// IsMaster reports whether this controller holds the master role.
func (s *Service) IsMaster(ctx context.Context) (bool, error) {
	st, err := s.st.GetState(ctx)
	if err != nil {
		return false, errors.Trace(err)
	}
	return st.Master, nil
}

// SetRole records the master flag. A demotion carrying a guard timestamp
// is rejected with [haerrors.StaleRoleChange] if the state changed after
// the guard.
func (s *Service) SetRole(ctx context.Context, master bool, guard *time.Time) error {
	if err := s.st.SetRole(ctx, master, guard, s.clock.Now().UTC()); err != nil {
		return errors.Trace(err)
	}
	logger.Infof("master role set to %t", master)
	return nil
}

// SetInSync sets the externally visible health flag.
func (s *Service) SetInSync(ctx context.Context, insync bool) error {
	return errors.Trace(s.st.SetFlag(ctx, ha.FlagInSync, insync, s.clock.Now().UTC()))
}

// SetFlag sets any of the boolean HA flags.
func (s *Service) SetFlag(ctx context.Context, flag ha.Flag, value bool) error {
	return errors.Trace(s.st.SetFlag(ctx, flag, value, s.clock.Now().UTC()))
}

// Controllers returns the controller roster.
func (s *Service) Controllers(ctx context.Context) ([]ha.Controller, error) {
	roster, err := s.st.Controllers(ctx)
	return roster, errors.Trace(err)
}

// SeedControllers writes the input roster entries, replacing existing
// entries with the same hostname.
func (s *Service) SeedControllers(ctx context.Context, controllers []ha.Controller) error {
	for _, ctrl := range controllers {
		if ctrl.Hostname == "" {
			return errors.NotValidf("controller with empty hostname")
		}
		if ctrl.IPv4 == "" && ctrl.IPv6 == "" {
			return errors.NotValidf("controller %q without address", ctrl.Hostname)
		}
	}
	return errors.Trace(s.st.UpsertControllers(ctx, controllers))
}

// RecordPing records that the input controller probed this one.
func (s *Service) RecordPing(ctx context.Context, hostname string) error {
	return errors.Trace(s.st.RecordPing(ctx, hostname, s.clock.Now().UTC()))
}

// VerifyPings reports whether any peer probed this controller within the
// input window.
func (s *Service) VerifyPings(ctx context.Context, window time.Duration) (bool, error) {
	count, err := s.st.CountPingsSince(ctx, s.clock.Now().UTC().Add(-window))
	if err != nil {
		return false, errors.Trace(err)
	}
	return count > 0, nil
}

// ReapPings removes ping records older than the input age.
func (s *Service) ReapPings(ctx context.Context, age time.Duration) (int64, error) {
	removed, err := s.st.DeletePingsBefore(ctx, s.clock.Now().UTC().Add(-age))
	return removed, errors.Trace(err)
}
