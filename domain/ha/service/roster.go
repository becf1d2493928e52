// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package service

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/clustervision/luna2-daemon-sub002/domain/ha"
)

// RosterSource supplies the controller roster.
type RosterSource interface {
	Controllers(ctx context.Context) ([]ha.Controller, error)
}

// RosterCache holds a copy of the controller roster for a bounded time.
// Consumers receive the cache explicitly and call Controllers on every
// use, so a roster change is seen within one TTL.
type RosterCache struct {
	source RosterSource
	clock  clock.Clock
	ttl    time.Duration

	mu      sync.Mutex
	roster  []ha.Controller
	fetched time.Time
}

// NewRosterCache returns a cache over the input source.
func NewRosterCache(source RosterSource, clock clock.Clock, ttl time.Duration) *RosterCache {
	return &RosterCache{
		source: source,
		clock:  clock,
		ttl:    ttl,
	}
}

// Controllers returns the cached roster, refreshing it from the source
// when it is older than the TTL.
func (c *RosterCache) Controllers(ctx context.Context) ([]ha.Controller, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if c.roster != nil && now.Sub(c.fetched) < c.ttl {
		return copyRoster(c.roster), nil
	}

	roster, err := c.source.Controllers(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if roster == nil {
		roster = []ha.Controller{}
	}
	c.roster = roster
	c.fetched = now
	return copyRoster(roster), nil
}

func copyRoster(roster []ha.Controller) []ha.Controller {
	return append([]ha.Controller(nil), roster...)
}
