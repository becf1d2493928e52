// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package state

import (
	"context"
	"time"

	"github.com/canonical/sqlair"
	"github.com/juju/errors"

	coredatabase "github.com/clustervision/luna2-daemon-sub002/core/database"
	"github.com/clustervision/luna2-daemon-sub002/domain"
	"github.com/clustervision/luna2-daemon-sub002/domain/journal"
)

// State is used to access the journal outbox, the inbox of received
// entries and the applied stamps.
type State struct {
	*domain.StateBase
}

// NewState returns a new state reference.
func NewState(factory coredatabase.TxnRunnerFactory) *State {
	return &State{
		StateBase: domain.NewStateBase(factory),
	}
}

// Record writes the entry to the outbox of every input target and stamps
// the entry's object as applied at the entry's origin time, in a single
// transaction.
func (st *State) Record(ctx context.Context, entry journal.Entry, targets []string) error {
	db, err := st.DB(ctx)
	if err != nil {
		return errors.Trace(err)
	}

	outboxStmt, err := st.Prepare(`
INSERT INTO journal (uuid, origin, target, operation, object, payload, origin_time)
VALUES ($outboxRow.uuid, $outboxRow.origin, $outboxRow.target, $outboxRow.operation,
        $outboxRow.object, $outboxRow.payload, $outboxRow.origin_time)
ON CONFLICT (uuid, target) DO NOTHING`, outboxRow{})
	if err != nil {
		return errors.Annotatef(err, "preparing record statement")
	}
	stampStmt, err := st.prepareStamp()
	if err != nil {
		return errors.Trace(err)
	}

	err = db.Txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		for _, target := range targets {
			row := outboxRow{
				UUID:       entry.UUID,
				Origin:     entry.Origin,
				Target:     target,
				Operation:  entry.Operation,
				Object:     entry.Object,
				Payload:    entry.Payload,
				OriginTime: entry.OriginTime.UTC(),
			}
			if err := tx.Query(ctx, outboxStmt, row).Run(); err != nil {
				return errors.Annotatef(err, "recording entry for %q", target)
			}
		}
		stamp := appliedRow{
			Object:     entry.Object,
			Origin:     entry.Origin,
			OriginTime: entry.OriginTime.UTC(),
		}
		return errors.Trace(tx.Query(ctx, stampStmt, stamp).Run())
	})
	return errors.Trace(err)
}

// Pending returns up to limit outbox entries addressed to the input
// target, in the order they were recorded.
func (st *State) Pending(ctx context.Context, target string, limit int) ([]journal.Pending, error) {
	db, err := st.DB(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}

	arg := targetBatch{Target: target, Limit: limit}
	stmt, err := st.Prepare(`
SELECT &outboxRow.*
FROM   journal
WHERE  target = $targetBatch.target
ORDER BY id
LIMIT  $targetBatch.limit`, outboxRow{}, arg)
	if err != nil {
		return nil, errors.Annotatef(err, "preparing pending statement")
	}

	var rows []outboxRow
	err = db.Txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		err := tx.Query(ctx, stmt, arg).GetAll(&rows)
		if errors.Is(err, sqlair.ErrNoRows) {
			return nil
		}
		return errors.Trace(err)
	})
	if err != nil {
		return nil, errors.Trace(err)
	}

	pending := make([]journal.Pending, len(rows))
	for i, row := range rows {
		pending[i] = row.toPending()
	}
	return pending, nil
}

// Acknowledge deletes the outbox entries of the input target with the
// input uuids. Unknown uuids are ignored.
func (st *State) Acknowledge(ctx context.Context, target string, uuids []string) error {
	db, err := st.DB(ctx)
	if err != nil {
		return errors.Trace(err)
	}

	stmt, err := st.Prepare(`
DELETE FROM journal
WHERE  target = $ack.target
AND    uuid = $ack.uuid`, ack{})
	if err != nil {
		return errors.Annotatef(err, "preparing acknowledge statement")
	}

	err = db.Txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		for _, uuid := range uuids {
			if err := tx.Query(ctx, stmt, ack{Target: target, UUID: uuid}).Run(); err != nil {
				return errors.Annotatef(err, "acknowledging %q for %q", uuid, target)
			}
		}
		return nil
	})
	return errors.Trace(err)
}

// Receive stores the input entries in the inbox. Entries already in the
// inbox are ignored. It returns the number of entries stored.
func (st *State) Receive(ctx context.Context, entries []journal.Entry, receivedAt time.Time) (int, error) {
	db, err := st.DB(ctx)
	if err != nil {
		return 0, errors.Trace(err)
	}

	stmt, err := st.Prepare(`
INSERT INTO journal_inbox (uuid, origin, operation, object, payload, origin_time, received_at)
VALUES ($inboxRow.uuid, $inboxRow.origin, $inboxRow.operation, $inboxRow.object,
        $inboxRow.payload, $inboxRow.origin_time, $inboxRow.received_at)
ON CONFLICT (uuid) DO NOTHING`, inboxRow{})
	if err != nil {
		return 0, errors.Annotatef(err, "preparing receive statement")
	}

	var stored int
	err = db.Txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		stored = 0
		for _, entry := range entries {
			row := inboxRow{
				UUID:       entry.UUID,
				Origin:     entry.Origin,
				Operation:  entry.Operation,
				Object:     entry.Object,
				Payload:    entry.Payload,
				OriginTime: entry.OriginTime.UTC(),
				ReceivedAt: receivedAt.UTC(),
			}
			var outcome sqlair.Outcome
			if err := tx.Query(ctx, stmt, row).Get(&outcome); err != nil {
				return errors.Annotatef(err, "receiving %q", entry.UUID)
			}
			n, err := outcome.Result().RowsAffected()
			if err != nil {
				return errors.Trace(err)
			}
			stored += int(n)
		}
		return nil
	})
	return stored, errors.Trace(err)
}

// Inbox returns up to limit received entries in arrival order, with the
// inbox row id of each.
func (st *State) Inbox(ctx context.Context, limit int) ([]int64, []journal.Entry, error) {
	db, err := st.DB(ctx)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}

	arg := batchLimit{Limit: limit}
	stmt, err := st.Prepare(`
SELECT &inboxRow.*
FROM   journal_inbox
ORDER BY id
LIMIT  $batchLimit.limit`, inboxRow{}, arg)
	if err != nil {
		return nil, nil, errors.Annotatef(err, "preparing inbox statement")
	}

	var rows []inboxRow
	err = db.Txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		err := tx.Query(ctx, stmt, arg).GetAll(&rows)
		if errors.Is(err, sqlair.ErrNoRows) {
			return nil
		}
		return errors.Trace(err)
	})
	if err != nil {
		return nil, nil, errors.Trace(err)
	}

	ids := make([]int64, len(rows))
	entries := make([]journal.Entry, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
		entries[i] = row.toEntry()
	}
	return ids, entries, nil
}

// AppliedStamp returns the origin and origin time of the last mutation
// applied to the input object. The boolean is false if the object has
// never been stamped.
func (st *State) AppliedStamp(ctx context.Context, object string) (string, time.Time, bool, error) {
	db, err := st.DB(ctx)
	if err != nil {
		return "", time.Time{}, false, errors.Trace(err)
	}

	arg := objectKey{Object: object}
	stmt, err := st.Prepare(`
SELECT &appliedRow.*
FROM   journal_applied
WHERE  object = $objectKey.object`, appliedRow{}, arg)
	if err != nil {
		return "", time.Time{}, false, errors.Annotatef(err, "preparing applied stamp statement")
	}

	var (
		row   appliedRow
		found bool
	)
	err = db.Txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		err := tx.Query(ctx, stmt, arg).Get(&row)
		if errors.Is(err, sqlair.ErrNoRows) {
			found = false
			return nil
		} else if err != nil {
			return errors.Trace(err)
		}
		found = true
		return nil
	})
	if err != nil {
		return "", time.Time{}, false, errors.Trace(err)
	}
	return row.Origin, row.OriginTime, found, nil
}

// Complete removes the input inbox row and, if stamp is true, records
// the entry as the applied mutation of its object.
func (st *State) Complete(ctx context.Context, id int64, entry journal.Entry, stamp bool) error {
	db, err := st.DB(ctx)
	if err != nil {
		return errors.Trace(err)
	}

	deleteStmt, err := st.Prepare(`DELETE FROM journal_inbox WHERE id = $inboxID.id`, inboxID{})
	if err != nil {
		return errors.Annotatef(err, "preparing complete statement")
	}
	stampStmt, err := st.prepareStamp()
	if err != nil {
		return errors.Trace(err)
	}

	err = db.Txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		if err := tx.Query(ctx, deleteStmt, inboxID{ID: id}).Run(); err != nil {
			return errors.Trace(err)
		}
		if !stamp {
			return nil
		}
		row := appliedRow{
			Object:     entry.Object,
			Origin:     entry.Origin,
			OriginTime: entry.OriginTime.UTC(),
		}
		return errors.Trace(tx.Query(ctx, stampStmt, row).Run())
	})
	return errors.Trace(err)
}

func (st *State) prepareStamp() (*sqlair.Statement, error) {
	stmt, err := st.Prepare(`
INSERT INTO journal_applied (object, origin, origin_time)
VALUES ($appliedRow.object, $appliedRow.origin, $appliedRow.origin_time)
ON CONFLICT (object) DO UPDATE SET
    origin = excluded.origin,
    origin_time = excluded.origin_time`, appliedRow{})
	return stmt, errors.Annotatef(err, "preparing stamp statement")
}
