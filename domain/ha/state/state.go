// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package state

import (
	"context"
	"fmt"
	"time"

	"github.com/canonical/sqlair"
	"github.com/juju/errors"

	coredatabase "github.com/clustervision/luna2-daemon-sub002/core/database"
	"github.com/clustervision/luna2-daemon-sub002/domain"
	"github.com/clustervision/luna2-daemon-sub002/domain/ha"
	haerrors "github.com/clustervision/luna2-daemon-sub002/domain/ha/errors"
)

// State is used to access the HA state, the controller roster and the
// record of received liveness probes.
type State struct {
	*domain.StateBase
}

// NewState returns a new state reference.
func NewState(factory coredatabase.TxnRunnerFactory) *State {
	return &State{
		StateBase: domain.NewStateBase(factory),
	}
}

// EnsureState creates the HA state row if it does not exist. An existing
// row is left untouched.
func (st *State) EnsureState(ctx context.Context, initial ha.State) error {
	db, err := st.DB(ctx)
	if err != nil {
		return errors.Trace(err)
	}

	row := haRow{
		Enabled:    initial.Enabled,
		Master:     initial.Master,
		InSync:     initial.InSync,
		Shadow:     initial.Shadow,
		SharedIP:   initial.SharedIP,
		SyncImages: initial.SyncImages,
		Overrule:   initial.Overrule,
		UpdatedAt:  initial.Updated.UTC(),
	}
	stmt, err := st.Prepare(`
INSERT INTO ha (id, enabled, master, insync, shadow, sharedip, syncimages, overrule, updated_at)
VALUES (0, $haRow.enabled, $haRow.master, $haRow.insync, $haRow.shadow,
        $haRow.sharedip, $haRow.syncimages, $haRow.overrule, $haRow.updated_at)
ON CONFLICT (id) DO NOTHING`, row)
	if err != nil {
		return errors.Annotatef(err, "preparing ensure ha state statement")
	}

	err = db.Txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		return errors.Trace(tx.Query(ctx, stmt, row).Run())
	})
	return errors.Trace(err)
}

// GetState returns the HA state. If the row has not been created an
// error satisfying [haerrors.StateNotInitialised] is returned.
func (st *State) GetState(ctx context.Context) (ha.State, error) {
	db, err := st.DB(ctx)
	if err != nil {
		return ha.State{}, errors.Trace(err)
	}

	stmt, err := st.Prepare(`SELECT &haRow.* FROM ha WHERE id = 0`, haRow{})
	if err != nil {
		return ha.State{}, errors.Annotatef(err, "preparing get ha state statement")
	}

	var row haRow
	err = db.Txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		return getRow(ctx, tx, stmt, &row)
	})
	if err != nil {
		return ha.State{}, errors.Trace(err)
	}
	return row.toState(), nil
}

// SetRole records whether this controller is the master. When demoting
// with a non-nil guard, the change is rejected with
// [haerrors.StaleRoleChange] if the state was updated after the guard.
func (st *State) SetRole(ctx context.Context, master bool, guard *time.Time, now time.Time) error {
	db, err := st.DB(ctx)
	if err != nil {
		return errors.Trace(err)
	}

	getStmt, err := st.Prepare(`SELECT &haRow.* FROM ha WHERE id = 0`, haRow{})
	if err != nil {
		return errors.Annotatef(err, "preparing get ha state statement")
	}
	change := roleChange{Master: master, UpdatedAt: now.UTC()}
	setStmt, err := st.Prepare(`
UPDATE ha
SET    master = $roleChange.master,
       updated_at = $roleChange.updated_at
WHERE  id = 0`, change)
	if err != nil {
		return errors.Annotatef(err, "preparing set role statement")
	}

	err = db.Txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		var current haRow
		if err := getRow(ctx, tx, getStmt, &current); err != nil {
			return errors.Trace(err)
		}
		if !master && guard != nil && current.UpdatedAt.After(guard.UTC()) {
			return errors.Annotatef(haerrors.StaleRoleChange,
				"state updated at %s, after guard %s",
				current.UpdatedAt.Format(time.RFC3339Nano), guard.UTC().Format(time.RFC3339Nano))
		}
		return errors.Trace(tx.Query(ctx, setStmt, change).Run())
	})
	return errors.Trace(err)
}

// SetFlag sets one boolean of the HA state.
func (st *State) SetFlag(ctx context.Context, flag ha.Flag, value bool, now time.Time) error {
	if err := flag.Validate(); err != nil {
		return errors.Trace(err)
	}

	db, err := st.DB(ctx)
	if err != nil {
		return errors.Trace(err)
	}

	change := flagChange{Value: value, UpdatedAt: now.UTC()}
	// flag has been validated as a column name.
	stmt, err := st.Prepare(fmt.Sprintf(`
UPDATE ha
SET    %s = $flagChange.value,
       updated_at = $flagChange.updated_at
WHERE  id = 0`, string(flag)), change)
	if err != nil {
		return errors.Annotatef(err, "preparing set %s statement", flag)
	}

	err = db.Txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		var outcome sqlair.Outcome
		if err := tx.Query(ctx, stmt, change).Get(&outcome); err != nil {
			return errors.Trace(err)
		}
		affected, err := outcome.Result().RowsAffected()
		if err != nil {
			return errors.Trace(err)
		}
		if affected == 0 {
			return errors.Trace(haerrors.StateNotInitialised)
		}
		return nil
	})
	return errors.Trace(err)
}

// Controllers returns the roster ordered by hostname.
func (st *State) Controllers(ctx context.Context) ([]ha.Controller, error) {
	db, err := st.DB(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}

	stmt, err := st.Prepare(`
SELECT &controllerRow.*
FROM   controller
ORDER BY hostname`, controllerRow{})
	if err != nil {
		return nil, errors.Annotatef(err, "preparing roster statement")
	}

	var rows []controllerRow
	err = db.Txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		err := tx.Query(ctx, stmt).GetAll(&rows)
		if errors.Is(err, sqlair.ErrNoRows) {
			return nil
		}
		return errors.Trace(err)
	})
	if err != nil {
		return nil, errors.Trace(err)
	}

	roster := make([]ha.Controller, len(rows))
	for i, row := range rows {
		roster[i] = row.toController()
	}
	return roster, nil
}

// UpsertControllers inserts or updates the input roster entries by
// hostname.
func (st *State) UpsertControllers(ctx context.Context, controllers []ha.Controller) error {
	db, err := st.DB(ctx)
	if err != nil {
		return errors.Trace(err)
	}

	stmt, err := st.Prepare(`
INSERT INTO controller (hostname, ipv4, ipv6, beacon, shadow, serverport, domain)
VALUES ($controllerRow.hostname, $controllerRow.ipv4, $controllerRow.ipv6, $controllerRow.beacon,
        $controllerRow.shadow, $controllerRow.serverport, $controllerRow.domain)
ON CONFLICT (hostname) DO UPDATE SET
    ipv4 = excluded.ipv4,
    ipv6 = excluded.ipv6,
    beacon = excluded.beacon,
    shadow = excluded.shadow,
    serverport = excluded.serverport,
    domain = excluded.domain`, controllerRow{})
	if err != nil {
		return errors.Annotatef(err, "preparing upsert controller statement")
	}

	err = db.Txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		for _, ctrl := range controllers {
			row := controllerRow{
				Hostname:   ctrl.Hostname,
				IPv4:       ctrl.IPv4,
				IPv6:       ctrl.IPv6,
				Beacon:     ctrl.Beacon,
				Shadow:     ctrl.Shadow,
				ServerPort: ctrl.ServerPort,
				Domain:     ctrl.Domain,
			}
			if err := tx.Query(ctx, stmt, row).Run(); err != nil {
				return errors.Annotatef(err, "upserting controller %q", ctrl.Hostname)
			}
		}
		return nil
	})
	return errors.Trace(err)
}

// RecordPing records that a liveness probe was received from the input
// controller.
func (st *State) RecordPing(ctx context.Context, hostname string, at time.Time) error {
	db, err := st.DB(ctx)
	if err != nil {
		return errors.Trace(err)
	}

	row := pingRow{Hostname: hostname, ReceivedAt: at.UTC()}
	stmt, err := st.Prepare(`
INSERT INTO ping (hostname, received_at)
VALUES ($pingRow.hostname, $pingRow.received_at)
ON CONFLICT (hostname) DO UPDATE SET received_at = excluded.received_at`, row)
	if err != nil {
		return errors.Annotatef(err, "preparing record ping statement")
	}

	err = db.Txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		return errors.Trace(tx.Query(ctx, stmt, row).Run())
	})
	return errors.Trace(err)
}

// CountPingsSince returns the number of controllers that probed this one
// after the input time.
func (st *State) CountPingsSince(ctx context.Context, since time.Time) (int, error) {
	db, err := st.DB(ctx)
	if err != nil {
		return 0, errors.Trace(err)
	}

	arg := cutoff{Time: since.UTC()}
	stmt, err := st.Prepare(`
SELECT COUNT(*) AS &pingCount.count
FROM   ping
WHERE  received_at > $cutoff.time`, pingCount{}, arg)
	if err != nil {
		return 0, errors.Annotatef(err, "preparing count pings statement")
	}

	var count pingCount
	err = db.Txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		return errors.Trace(tx.Query(ctx, stmt, arg).Get(&count))
	})
	return count.Count, errors.Trace(err)
}

// DeletePingsBefore removes ping records received before the input time.
func (st *State) DeletePingsBefore(ctx context.Context, before time.Time) (int64, error) {
	db, err := st.DB(ctx)
	if err != nil {
		return 0, errors.Trace(err)
	}

	arg := cutoff{Time: before.UTC()}
	stmt, err := st.Prepare(`DELETE FROM ping WHERE received_at < $cutoff.time`, arg)
	if err != nil {
		return 0, errors.Annotatef(err, "preparing delete pings statement")
	}

	var removed int64
	err = db.Txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		var outcome sqlair.Outcome
		if err := tx.Query(ctx, stmt, arg).Get(&outcome); err != nil {
			return errors.Trace(err)
		}
		n, err := outcome.Result().RowsAffected()
		if err != nil {
			return errors.Trace(err)
		}
		removed = n
		return nil
	})
	return removed, errors.Trace(err)
}

func getRow(ctx context.Context, tx *sqlair.TX, stmt *sqlair.Statement, row *haRow) error {
	err := tx.Query(ctx, stmt).Get(row)
	if errors.Is(err, sqlair.ErrNoRows) {
		return errors.Trace(haerrors.StateNotInitialised)
	}
	return errors.Trace(err)
}
