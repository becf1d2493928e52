// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/clustervision/luna2-daemon-sub002/domain/ha"
	"github.com/clustervision/luna2-daemon-sub002/domain/journal"
	journalerrors "github.com/clustervision/luna2-daemon-sub002/domain/journal/errors"
	"github.com/clustervision/luna2-daemon-sub002/internal/database"
)

var logger = loggo.GetLogger("luna.domain.journal")

// batchSize bounds the entries moved in one push, pull or apply round.
const batchSize = 500

// State describes retrieval and persistence methods for the journal.
type State interface {
	// Record writes the entry to the outbox of every target and stamps
	// its object.
	Record(ctx context.Context, entry journal.Entry, targets []string) error

	// Pending returns outbox entries addressed to the target.
	Pending(ctx context.Context, target string, limit int) ([]journal.Pending, error)

	// Acknowledge deletes delivered outbox entries.
	Acknowledge(ctx context.Context, target string, uuids []string) error

	// Receive stores entries in the inbox, ignoring known ones.
	Receive(ctx context.Context, entries []journal.Entry, receivedAt time.Time) (int, error)

	// Inbox returns received entries in arrival order.
	Inbox(ctx context.Context, limit int) ([]int64, []journal.Entry, error)

	// AppliedStamp returns the stamp of the last mutation of an object.
	AppliedStamp(ctx context.Context, object string) (string, time.Time, bool, error)

	// Complete removes an inbox entry, optionally stamping its object.
	Complete(ctx context.Context, id int64, entry journal.Entry, stamp bool) error
}

// Roster supplies the controller roster.
type Roster interface {
	Controllers(ctx context.Context) ([]ha.Controller, error)
}

// Service records local mutations for replication and replays mutations
// received from peers.
type Service struct {
	st     State
	roster Roster
	origin string
	clock  clock.Clock

	mu       sync.Mutex
	appliers map[string]journal.Applier
}

// NewService returns a new service reference. Origin is the hostname of
// the local controller.
func NewService(st State, roster Roster, origin string, clock clock.Clock) *Service {
	return &Service{
		st:       st,
		roster:   roster,
		origin:   origin,
		clock:    clock,
		appliers: make(map[string]journal.Applier),
	}
}

// RegisterApplier registers the applier that replays entries of the
// input operation.
func (s *Service) RegisterApplier(operation string, applier journal.Applier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.appliers[operation]; ok {
		return errors.Annotatef(journalerrors.AlreadyRegistered, "operation %q", operation)
	}
	s.appliers[operation] = applier
	return nil
}

// Record journals a locally accepted mutation for every peer of the
// roster. The object is stamped so that older replayed mutations of it
// lose against the local one.
func (s *Service) Record(ctx context.Context, operation, object, payload string) (journal.Entry, error) {
	if operation == "" {
		return journal.Entry{}, errors.NotValidf("empty operation")
	}
	if object == "" {
		return journal.Entry{}, errors.NotValidf("empty object")
	}

	roster, err := s.roster.Controllers(ctx)
	if err != nil {
		return journal.Entry{}, errors.Annotatef(err, "getting roster")
	}
	var targets []string
	for _, peer := range ha.Peers(roster, s.origin) {
		targets = append(targets, peer.Hostname)
	}

	entry := journal.Entry{
		UUID:       uuid.NewString(),
		Origin:     s.origin,
		Operation:  operation,
		Object:     object,
		Payload:    payload,
		OriginTime: s.clock.Now().UTC(),
	}
	if err := s.st.Record(ctx, entry, targets); err != nil {
		return journal.Entry{}, errors.Annotatef(err, "recording %s of %q", operation, object)
	}
	logger.Tracef("recorded %s of %q for %v", operation, object, targets)
	return entry, nil
}

// Pending returns the entries not yet acknowledged by the input peer, in
// the order they were recorded.
func (s *Service) Pending(ctx context.Context, target string) ([]journal.Entry, error) {
	pending, err := s.st.Pending(ctx, target, batchSize)
	if err != nil {
		return nil, errors.Trace(err)
	}
	entries := make([]journal.Entry, len(pending))
	for i, p := range pending {
		entries[i] = p.Entry
	}
	return entries, nil
}

// Acknowledge removes entries delivered to the input peer.
func (s *Service) Acknowledge(ctx context.Context, target string, uuids []string) error {
	return errors.Trace(s.st.Acknowledge(ctx, target, uuids))
}

// Receive stores entries shipped by a peer for later application.
// Entries that were already received are ignored.
func (s *Service) Receive(ctx context.Context, entries []journal.Entry) (int, error) {
	for _, entry := range entries {
		if entry.UUID == "" || entry.Origin == "" || entry.Operation == "" {
			return 0, errors.NotValidf("journal entry %+v", entry)
		}
	}
	stored, err := s.st.Receive(ctx, entries, s.clock.Now().UTC())
	return stored, errors.Trace(err)
}

// HandleRequests applies received entries in arrival order, so entries of
// one origin are applied in the order they were produced. An entry that
// is not newer than the last applied mutation of its object is dropped.
// Entries that fail with a data error, such as a unique constraint
// violation, are dropped and left to the table audit; any other failure
// stops the round so the entry is retried first next time.
func (s *Service) HandleRequests(ctx context.Context) (int, error) {
	ids, entries, err := s.st.Inbox(ctx, batchSize)
	if err != nil {
		return 0, errors.Trace(err)
	}

	var applied int
	for i, entry := range entries {
		ok, err := s.apply(ctx, entry)
		if err != nil {
			if !isDataError(err) {
				return applied, errors.Annotatef(err, "applying %s of %q from %q", entry.Operation, entry.Object, entry.Origin)
			}
			logger.Warningf("dropping %s of %q from %q: %v", entry.Operation, entry.Object, entry.Origin, err)
		}
		if err := s.st.Complete(ctx, ids[i], entry, ok); err != nil {
			return applied, errors.Trace(err)
		}
		if ok {
			applied++
		}
	}
	return applied, nil
}

func (s *Service) apply(ctx context.Context, entry journal.Entry) (bool, error) {
	s.mu.Lock()
	applier, ok := s.appliers[entry.Operation]
	s.mu.Unlock()
	if !ok {
		return false, errors.Annotatef(journalerrors.UnknownOperation, "%q", entry.Operation)
	}

	origin, originTime, found, err := s.st.AppliedStamp(ctx, entry.Object)
	if err != nil {
		return false, errors.Trace(err)
	}
	if found && !entry.Newer(origin, originTime) {
		logger.Debugf("skipping %s of %q from %q: superseded by %q at %s",
			entry.Operation, entry.Object, entry.Origin, origin, originTime)
		return false, nil
	}

	if err := applier.Apply(ctx, entry); err != nil {
		return false, errors.Trace(err)
	}
	return true, nil
}

func isDataError(err error) bool {
	return errors.Is(err, journalerrors.UnknownOperation) ||
		errors.Is(err, errors.NotValid) ||
		errors.Is(err, errors.NotFound) ||
		database.IsErrConstraintUnique(err)
}
