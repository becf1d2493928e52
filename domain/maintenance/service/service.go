// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package service

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/clustervision/luna2-daemon-sub002/domain/maintenance"
)

// State describes persistence of the maintenance data.
type State interface {
	HoldIP(ctx context.Context, ip, holder string, at time.Time) error
	HeldIPs(ctx context.Context) ([]string, error)
	DeleteHoldsBefore(ctx context.Context, before time.Time) (int64, error)
	ReplaceSwitchPorts(ctx context.Context, ports []maintenance.SwitchPort) error
	SwitchPorts(ctx context.Context) ([]maintenance.SwitchPort, error)
	SetFlag(ctx context.Context, name string, value bool, at time.Time) error
	Flag(ctx context.Context, name string) (bool, error)
}

// Service provides the API for controller maintenance data.
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

// HoldIP reserves an address for the holder until it is released by age.
func (s *Service) HoldIP(ctx context.Context, ip, holder string) error {
	if ip == "" {
		return errors.NotValidf("empty ip address")
	}
	return errors.Trace(s.st.HoldIP(ctx, ip, holder, s.clock.Now().UTC()))
}

// HeldIPs returns the reserved addresses.
func (s *Service) HeldIPs(ctx context.Context) ([]string, error) {
	ips, err := s.st.HeldIPs(ctx)
	return ips, errors.Trace(err)
}

// ReleaseHoldsOlderThan releases holds older than the input age.
func (s *Service) ReleaseHoldsOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	removed, err := s.st.DeleteHoldsBefore(ctx, s.clock.Now().UTC().Add(-age))
	return removed, errors.Trace(err)
}

// ReplaceSwitchPorts stores a freshly discovered switch port map.
func (s *Service) ReplaceSwitchPorts(ctx context.Context, ports []maintenance.SwitchPort) error {
	now := s.clock.Now().UTC()
	stamped := make([]maintenance.SwitchPort, len(ports))
	for i, p := range ports {
		if p.MACAddress == "" {
			return errors.NotValidf("switch port without mac address")
		}
		p.Updated = now
		stamped[i] = p
	}
	return errors.Trace(s.st.ReplaceSwitchPorts(ctx, stamped))
}

// SwitchPorts returns the switch port map.
func (s *Service) SwitchPorts(ctx context.Context) ([]maintenance.SwitchPort, error) {
	ports, err := s.st.SwitchPorts(ctx)
	return ports, errors.Trace(err)
}

// SetFlag records a named controller flag.
func (s *Service) SetFlag(ctx context.Context, name string, value bool) error {
	return errors.Trace(s.st.SetFlag(ctx, name, value, s.clock.Now().UTC()))
}

// Flag returns a named controller flag.
func (s *Service) Flag(ctx context.Context, name string) (bool, error) {
	value, err := s.st.Flag(ctx, name)
	return value, errors.Trace(err)
}
