// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package state

import (
	"context"
	"encoding/json"
	"time"

	"github.com/canonical/sqlair"
	"github.com/juju/errors"

	coredatabase "github.com/clustervision/luna2-daemon-sub002/core/database"
	"github.com/clustervision/luna2-daemon-sub002/core/status"
	"github.com/clustervision/luna2-daemon-sub002/domain"
)

// State is used to access the status log.
type State struct {
	*domain.StateBase
}

// NewState returns a new state reference.
func NewState(factory coredatabase.TxnRunnerFactory) *State {
	return &State{
		StateBase: domain.NewStateBase(factory),
	}
}

// Append adds the input message to its request's feed.
func (st *State) Append(ctx context.Context, msg status.Message) error {
	db, err := st.DB(ctx)
	if err != nil {
		return errors.Trace(err)
	}

	row := statusRow{
		RequestID: msg.RequestID,
		Origin:    msg.Origin,
		Message:   msg.Text,
		CreatedAt: msg.Created.UTC(),
	}
	if msg.Result != nil {
		data, err := json.Marshal(msg.Result)
		if err != nil {
			return errors.Annotatef(err, "encoding result")
		}
		row.Result = string(data)
	}

	stmt, err := st.Prepare(`
INSERT INTO status (request_id, origin, message, result, read, created_at)
VALUES ($statusRow.request_id, $statusRow.origin, $statusRow.message,
        $statusRow.result, FALSE, $statusRow.created_at)`, row)
	if err != nil {
		return errors.Annotatef(err, "preparing append statement")
	}

	err = db.Txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		return errors.Trace(tx.Query(ctx, stmt, row).Run())
	})
	return errors.Trace(err)
}

// Poll returns the unread messages of the input request in the order
// they were appended and marks them read in the same transaction. If the
// feed holds the EOF sentinel, the whole history of the request is
// deleted once it has been read.
func (st *State) Poll(ctx context.Context, id string) ([]status.Message, error) {
	db, err := st.DB(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}

	req := requestID{RequestID: id}
	selectStmt, err := st.Prepare(`
SELECT &statusRow.*
FROM   status
WHERE  request_id = $requestID.request_id
AND    read = FALSE
ORDER BY id`, statusRow{}, req)
	if err != nil {
		return nil, errors.Annotatef(err, "preparing poll statement")
	}
	markStmt, err := st.Prepare(`
UPDATE status
SET    read = TRUE
WHERE  id = $messageID.id`, messageID{})
	if err != nil {
		return nil, errors.Annotatef(err, "preparing mark read statement")
	}
	clearStmt, err := st.Prepare(`
DELETE FROM status
WHERE  request_id = $requestID.request_id`, req)
	if err != nil {
		return nil, errors.Annotatef(err, "preparing clear statement")
	}

	var rows []statusRow
	err = db.Txn(ctx, func(ctx context.Context, tx *sqlair.TX) error {
		rows = nil
		err := tx.Query(ctx, selectStmt, req).GetAll(&rows)
		if errors.Is(err, sqlair.ErrNoRows) {
			return nil
		} else if err != nil {
			return errors.Trace(err)
		}

		var eof bool
		for _, row := range rows {
			if row.Message == status.EOF {
				eof = true
			}
			if err := tx.Query(ctx, markStmt, messageID{ID: row.ID}).Run(); err != nil {
				return errors.Annotatef(err, "marking message %d read", row.ID)
			}
		}
		if eof {
			if err := tx.Query(ctx, clearStmt, req).Run(); err != nil {
				return errors.Annotatef(err, "clearing request %q", id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}

	messages := make([]status.Message, 0, len(rows))
	for _, row := range rows {
		msg := status.Message{
			RequestID: row.RequestID,
			Origin:    row.Origin,
			Text:      row.Message,
			Created:   row.CreatedAt,
		}
		if row.Result != "" {
			var result status.Result
			if err := json.Unmarshal([]byte(row.Result), &result); err != nil {
				return nil, errors.Annotatef(err, "decoding result of message %d", row.ID)
			}
			msg.Result = &result
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// DeleteOlderThan removes every message created before the input time,
// read or not, and returns how many were removed.
func (st *State) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	db, err := st.DB(ctx)
	if err != nil {
		return 0, errors.Trace(err)
	}

	arg := cutoff{Before: before.UTC()}
	stmt, err := st.Prepare(`
DELETE FROM status
WHERE  created_at < $cutoff.before`, arg)
	if err != nil {
		return 0, errors.Annotatef(err, "preparing reap statement")
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
