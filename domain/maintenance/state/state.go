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
	"github.com/clustervision/luna2-daemon-sub002/domain/maintenance"
)

// State is used to access reserved IP holds, the switch port map and
// controller flags.
type State struct {
	*domain.StateBase
}

// NewState returns a new state reference.
func NewState(factory coredatabase.TxnRunnerFactory) *State {
	return &State{
		StateBase: domain.NewStateBase(factory),
	}
}

// HoldIP reserves the input address for the holder. An existing hold is
// renewed.
func (st *State) HoldIP(ctx context.Context, ip, holder string, at time.Time) error {
	db, err := st.DB(ctx)
	if err != nil {
		return errors.Trace(err)
	}

	row := reservedIP{IPAddress: ip, Holder: holder, CreatedAt: at.UTC()}
	stmt, err := st.Prepare(`
INSERT INTO reserved_ip (ipaddress, holder, created_at)
VALUES ($reservedIP.ipaddress, $reservedIP.holder, $reservedIP.created_at)
ON CONFLICT (ipaddress) DO UPDATE SET
    holder = excluded.holder,
    created_at = excluded.created_at`, row)
	if err != nil {
		return errors.Annotatef(err, "preparing hold ip statement")
	}

	err = db.Txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		return errors.Trace(tx.Query(ctx, stmt, row).Run())
	})
	return errors.Trace(err)
}

// HeldIPs returns the reserved addresses ordered by address.
func (st *State) HeldIPs(ctx context.Context) ([]string, error) {
	db, err := st.DB(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}

	stmt, err := st.Prepare(`
SELECT &reservedIP.*
FROM   reserved_ip
ORDER BY ipaddress`, reservedIP{})
	if err != nil {
		return nil, errors.Annotatef(err, "preparing held ips statement")
	}

	var rows []reservedIP
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

	ips := make([]string, len(rows))
	for i, row := range rows {
		ips[i] = row.IPAddress
	}
	return ips, nil
}

// DeleteHoldsBefore releases holds created before the input time.
func (st *State) DeleteHoldsBefore(ctx context.Context, before time.Time) (int64, error) {
	db, err := st.DB(ctx)
	if err != nil {
		return 0, errors.Trace(err)
	}

	arg := cutoff{Time: before.UTC()}
	stmt, err := st.Prepare(`DELETE FROM reserved_ip WHERE created_at < $cutoff.time`, arg)
	if err != nil {
		return 0, errors.Annotatef(err, "preparing release holds statement")
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

// ReplaceSwitchPorts swaps the switch port map for the input entries.
func (st *State) ReplaceSwitchPorts(ctx context.Context, ports []maintenance.SwitchPort) error {
	db, err := st.DB(ctx)
	if err != nil {
		return errors.Trace(err)
	}

	clearStmt, err := st.Prepare(`DELETE FROM switchport`)
	if err != nil {
		return errors.Annotatef(err, "preparing clear switch ports statement")
	}
	insertStmt, err := st.Prepare(`
INSERT INTO switchport (macaddress, switch, port, updated_at)
VALUES ($switchPort.macaddress, $switchPort.switch, $switchPort.port, $switchPort.updated_at)
ON CONFLICT (macaddress) DO UPDATE SET
    switch = excluded.switch,
    port = excluded.port,
    updated_at = excluded.updated_at`, switchPort{})
	if err != nil {
		return errors.Annotatef(err, "preparing insert switch port statement")
	}

	err = db.Txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		if err := tx.Query(ctx, clearStmt).Run(); err != nil {
			return errors.Trace(err)
		}
		for _, p := range ports {
			row := switchPort{
				MACAddress: p.MACAddress,
				Switch:     p.Switch,
				Port:       p.Port,
				UpdatedAt:  p.Updated.UTC(),
			}
			if err := tx.Query(ctx, insertStmt, row).Run(); err != nil {
				return errors.Annotatef(err, "inserting %q", p.MACAddress)
			}
		}
		return nil
	})
	return errors.Trace(err)
}

// SwitchPorts returns the switch port map ordered by MAC address.
func (st *State) SwitchPorts(ctx context.Context) ([]maintenance.SwitchPort, error) {
	db, err := st.DB(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}

	stmt, err := st.Prepare(`
SELECT &switchPort.*
FROM   switchport
ORDER BY macaddress`, switchPort{})
	if err != nil {
		return nil, errors.Annotatef(err, "preparing switch ports statement")
	}

	var rows []switchPort
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

	ports := make([]maintenance.SwitchPort, len(rows))
	for i, row := range rows {
		ports[i] = maintenance.SwitchPort{
			MACAddress: row.MACAddress,
			Switch:     row.Switch,
			Port:       row.Port,
			Updated:    row.UpdatedAt,
		}
	}
	return ports, nil
}

// SetFlag records a named controller flag.
func (st *State) SetFlag(ctx context.Context, name string, value bool, at time.Time) error {
	db, err := st.DB(ctx)
	if err != nil {
		return errors.Trace(err)
	}

	row := flag{Name: name, Value: value, UpdatedAt: at.UTC()}
	stmt, err := st.Prepare(`
INSERT INTO flag (name, value, updated_at)
VALUES ($flag.name, $flag.value, $flag.updated_at)
ON CONFLICT (name) DO UPDATE SET
    value = excluded.value,
    updated_at = excluded.updated_at`, row)
	if err != nil {
		return errors.Annotatef(err, "preparing set flag statement")
	}

	err = db.Txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		return errors.Trace(tx.Query(ctx, stmt, row).Run())
	})
	return errors.Trace(err)
}

// Flag returns the value of a named controller flag. A flag that was
// never set is false.
func (st *State) Flag(ctx context.Context, name string) (bool, error) {
	db, err := st.DB(ctx)
	if err != nil {
		return false, errors.Trace(err)
	}

	arg := flagName{Name: name}
	stmt, err := st.Prepare(`SELECT &flag.* FROM flag WHERE name = $flagName.name`, flag{}, arg)
	if err != nil {
		return false, errors.Annotatef(err, "preparing flag statement")
	}

	var row flag
	err = db.Txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		err := tx.Query(ctx, stmt, arg).Get(&row)
		if errors.Is(err, sqlair.ErrNoRows) {
			row = flag{}
			return nil
		}
		return errors.Trace(err)
	})
	return row.Value, errors.Trace(err)
}
