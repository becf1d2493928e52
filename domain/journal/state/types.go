// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package state

import (
	"time"

	"github.com/clustervision/luna2-daemon-sub002/domain/journal"
)

// outboxRow represents a row of the journal table.
type outboxRow struct {
	ID         int64     `db:"id"`
	UUID       string    `db:"uuid"`
	Origin     string    `db:"origin"`
	Target     string    `db:"target"`
	Operation  string    `db:"operation"`
	Object     string    `db:"object"`
	Payload    string    `db:"payload"`
	OriginTime time.Time `db:"origin_time"`
}

func (r outboxRow) toPending() journal.Pending {
	return journal.Pending{
		ID:     r.ID,
		Target: r.Target,
		Entry: journal.Entry{
			UUID:       r.UUID,
			Origin:     r.Origin,
			Operation:  r.Operation,
			Object:     r.Object,
			Payload:    r.Payload,
			OriginTime: r.OriginTime,
		},
	}
}

// inboxRow represents a row of the journal_inbox table.
type inboxRow struct {
	ID         int64     `db:"id"`
	UUID       string    `db:"uuid"`
	Origin     string    `db:"origin"`
	Operation  string    `db:"operation"`
	Object     string    `db:"object"`
	Payload    string    `db:"payload"`
	OriginTime time.Time `db:"origin_time"`
	ReceivedAt time.Time `db:"received_at"`
}

func (r inboxRow) toEntry() journal.Entry {
	return journal.Entry{
		UUID:       r.UUID,
		Origin:     r.Origin,
		Operation:  r.Operation,
		Object:     r.Object,
		Payload:    r.Payload,
		OriginTime: r.OriginTime,
	}
}

// appliedRow represents a row of the journal_applied table.
type appliedRow struct {
	Object     string    `db:"object"`
	Origin     string    `db:"origin"`
	OriginTime time.Time `db:"origin_time"`
}

type targetBatch struct {
	Target string `db:"target"`
	Limit  int    `db:"limit"`
}

type ack struct {
	Target string `db:"target"`
	UUID   string `db:"uuid"`
}

type inboxID struct {
	ID int64 `db:"id"`
}

type batchLimit struct {
	Limit int `db:"limit"`
}

type objectKey struct {
	Object string `db:"object"`
}
