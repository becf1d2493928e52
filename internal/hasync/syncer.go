// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package hasync runs the HA synchronisation protocol between
// controllers: liveness probing in both directions, the in sync flag,
// journal push and pull, and the application of received entries.
package hasync

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"golang.org/x/sync/errgroup"

	"github.com/clustervision/luna2-daemon-sub002/domain/ha"
	"github.com/clustervision/luna2-daemon-sub002/domain/journal"
	"github.com/clustervision/luna2-daemon-sub002/internal/peer"
)

const defaultPingWindow = 2 * time.Minute

// Logger represents the logging methods called.
type Logger interface {
	Warningf(message string, args ...any)
	Infof(message string, args ...any)
	Debugf(message string, args ...any)
}

// HAService manages the local HA state.
type HAService interface {
	Status(ctx context.Context) (ha.State, error)
	SetInSync(ctx context.Context, insync bool) error
	SetRole(ctx context.Context, master bool, guard *time.Time) error
	SetFlag(ctx context.Context, flag ha.Flag, value bool) error
	VerifyPings(ctx context.Context, window time.Duration) (bool, error)
}

// Roster returns the known controllers.
type Roster interface {
	Controllers(ctx context.Context) ([]ha.Controller, error)
}

// Journal is the local journal outbox and inbox.
type Journal interface {
	Pending(ctx context.Context, target string) ([]journal.Entry, error)
	Acknowledge(ctx context.Context, target string, uuids []string) error
	Receive(ctx context.Context, entries []journal.Entry) (int, error)
	HandleRequests(ctx context.Context) (int, error)
}

// Peers is the transport to other controllers.
type Peers interface {
	Ping(ctx context.Context, target ha.Controller) (peer.PingResponse, error)
	PushJournal(ctx context.Context, target ha.Controller, entries []journal.Entry) error
	PullJournal(ctx context.Context, target ha.Controller) ([]journal.Entry, error)
	AckJournal(ctx context.Context, target ha.Controller, uuids []string) error
	SetRole(ctx context.Context, target ha.Controller, change peer.RoleChange) error
}

// Config holds the dependencies of a syncer.
type Config struct {
	Hostname string
	HA       HAService
	Roster   Roster
	Journal  Journal
	Peers    Peers
	Clock    clock.Clock
	Logger   Logger

	// PingWindow is how recent a probe from a peer must be for this
	// controller to consider itself reachable.
	PingWindow time.Duration
}

// Validate returns an error if the config cannot be used.
func (c Config) Validate() error {
	if c.Hostname == "" {
		return errors.NotValidf("empty Hostname")
	}
	if c.HA == nil {
		return errors.NotValidf("nil HA")
	}
	if c.Roster == nil {
		return errors.NotValidf("nil Roster")
	}
	if c.Journal == nil {
		return errors.NotValidf("nil Journal")
	}
	if c.Peers == nil {
		return errors.NotValidf("nil Peers")
	}
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if c.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	if c.PingWindow < 0 {
		return errors.NotValidf("negative PingWindow")
	}
	return nil
}

// Syncer runs the synchronisation protocol of one controller.
type Syncer struct {
	config Config
}

// NewSyncer returns a syncer for the config.
func NewSyncer(config Config) (*Syncer, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if config.PingWindow == 0 {
		config.PingWindow = defaultPingWindow
	}
	return &Syncer{config: config}, nil
}

// Result describes one tick.
type Result struct {
	// Enabled is false when HA is administratively disabled; nothing
	// else was done.
	Enabled bool

	// Reachable reports that every liveness peer answered a probe.
	Reachable bool

	// Pinged reports that a peer probed this controller recently.
	Pinged bool

	// Pulled reports a successful pull from every peer.
	Pulled bool

	// InSync is the health flag after the tick.
	InSync bool

	// Pushed and Applied count journal entries.
	Pushed  int
	Applied int
}

// Tick runs one round of the protocol.
//
// A controller that is out of sync pulls the journals of its peers and
// becomes in sync once that pull succeeded and liveness holds in both
// directions. An in sync master tolerates a one way partition. An in
// sync non master that stops being probed or cannot reach its peers
// marks itself out of sync and falls back to pulling. A raised overrule
// flag makes this controller take over the master role first; the flag
// is cleared once handled.
func (s *Syncer) Tick(ctx context.Context) (Result, error) {
	state, err := s.config.HA.Status(ctx)
	if err != nil {
		return Result{}, errors.Trace(err)
	}
	if !state.Enabled {
		return Result{}, nil
	}
	result := Result{Enabled: true, InSync: state.InSync}

	if state.Overrule {
		if !state.Master {
			if err := s.TakeOver(ctx); err != nil {
				return result, errors.Annotate(err, "taking over master role")
			}
			s.config.Logger.Infof("took over master role on overrule")
			state.Master = true
		}
		if err := s.config.HA.SetFlag(ctx, ha.FlagOverrule, false); err != nil {
			return result, errors.Trace(err)
		}
	}

	roster, err := s.config.Roster.Controllers(ctx)
	if err != nil {
		return result, errors.Trace(err)
	}
	peers := ha.Peers(roster, s.config.Hostname)
	liveness := livenessPeers(peers)

	if err := s.PingControllers(ctx, liveness); err != nil {
		s.config.Logger.Warningf("liveness: %v", err)
	} else {
		result.Reachable = true
	}
	if len(liveness) == 0 {
		result.Pinged = true
	} else if result.Pinged, err = s.config.HA.VerifyPings(ctx, s.config.PingWindow); err != nil {
		return result, errors.Trace(err)
	}

	if result.Reachable && !result.Pinged {
		s.config.Logger.Warningf("peers are reachable but have not probed this controller: suspected one way partition")
	}

	insync := state.InSync
	switch {
	case !state.InSync:
		if err := s.Pull(ctx, peers); err != nil {
			s.config.Logger.Warningf("pulling journals: %v", err)
		} else {
			result.Pulled = true
		}
		insync = result.Pulled && result.Reachable && result.Pinged
	case state.Master:
		// The master stays in sync to avoid failover thrash.
		if !result.Reachable || !result.Pinged {
			s.config.Logger.Warningf("master keeps in sync despite degraded liveness")
		}
	case !result.Reachable || !result.Pinged:
		insync = false
		if result.Reachable {
			if err := s.Pull(ctx, peers); err != nil {
				s.config.Logger.Warningf("fallback pull: %v", err)
			} else {
				result.Pulled = true
			}
		}
	}
	if insync != state.InSync {
		if err := s.config.HA.SetInSync(ctx, insync); err != nil {
			return result, errors.Trace(err)
		}
		s.config.Logger.Infof("in sync changed to %t", insync)
	}
	result.InSync = insync

	result.Pushed = s.Push(ctx, peers)

	applied, err := s.config.Journal.HandleRequests(ctx)
	result.Applied = applied
	if err != nil {
		return result, errors.Annotate(err, "applying journal")
	}
	return result, nil
}

// livenessPeers excludes shadow controllers, which take no part in the
// liveness quorum.
func livenessPeers(peers []ha.Controller) []ha.Controller {
	var out []ha.Controller
	for _, p := range peers {
		if !p.Shadow {
			out = append(out, p)
		}
	}
	return out
}

// PingControllers probes every peer concurrently. The first failure
// cancels the remaining probes and is returned.
func (s *Syncer) PingControllers(ctx context.Context, peers []ha.Controller) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range peers {
		p := p
		g.Go(func() error {
			if _, err := s.config.Peers.Ping(gctx, p); err != nil {
				return errors.Annotatef(err, "probing %s", p.Hostname)
			}
			return nil
		})
	}
	return g.Wait()
}

// Push ships the pending journal entries of every peer. Entries are
// removed from the outbox only once the peer accepted them. It returns
// the number of entries delivered.
func (s *Syncer) Push(ctx context.Context, peers []ha.Controller) int {
	var pushed int
	for _, p := range peers {
		entries, err := s.config.Journal.Pending(ctx, p.Hostname)
		if err != nil {
			s.config.Logger.Warningf("reading journal for %s: %v", p.Hostname, err)
			continue
		}
		if len(entries) == 0 {
			continue
		}
		if err := s.config.Peers.PushJournal(ctx, p, entries); err != nil {
			s.config.Logger.Warningf("pushing %d journal entries to %s: %v", len(entries), p.Hostname, err)
			continue
		}
		if err := s.config.Journal.Acknowledge(ctx, p.Hostname, uuids(entries)); err != nil {
			s.config.Logger.Warningf("acknowledging journal of %s: %v", p.Hostname, err)
			continue
		}
		pushed += len(entries)
	}
	return pushed
}

// Pull fetches, stores and acknowledges the entries every peer holds
// for this controller. It fails if any peer fails.
func (s *Syncer) Pull(ctx context.Context, peers []ha.Controller) error {
	for _, p := range peers {
		entries, err := s.config.Peers.PullJournal(ctx, p)
		if err != nil {
			return errors.Annotatef(err, "pulling from %s", p.Hostname)
		}
		if len(entries) == 0 {
			continue
		}
		received, err := s.config.Journal.Receive(ctx, entries)
		if err != nil {
			return errors.Annotatef(err, "storing journal of %s", p.Hostname)
		}
		if err := s.config.Peers.AckJournal(ctx, p, uuids(entries)); err != nil {
			return errors.Annotatef(err, "acknowledging pull from %s", p.Hostname)
		}
		s.config.Logger.Debugf("pulled %d new of %d journal entries from %s", received, len(entries), p.Hostname)
	}
	return nil
}

// TakeOver makes this controller the master and demotes every peer. The
// demotions carry the time of the local promotion, so a peer that
// changed its role since then keeps it.
func (s *Syncer) TakeOver(ctx context.Context) error {
	guard := s.config.Clock.Now().UTC()
	if err := s.config.HA.SetRole(ctx, true, nil); err != nil {
		return errors.Trace(err)
	}
	roster, err := s.config.Roster.Controllers(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	for _, p := range ha.Peers(roster, s.config.Hostname) {
		err := s.config.Peers.SetRole(ctx, p, peer.RoleChange{Master: false, Guard: &guard})
		if err != nil {
			s.config.Logger.Warningf("demoting %s: %v", p.Hostname, err)
		}
	}
	return nil
}

func uuids(entries []journal.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.UUID
	}
	return out
}
