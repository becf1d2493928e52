// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package state

import "time"

// statusRow represents a row of the status table.
type statusRow struct {
	ID        int64     `db:"id"`
	RequestID string    `db:"request_id"`
	Origin    string    `db:"origin"`
	Message   string    `db:"message"`
	Result    string    `db:"result"`
	Read      bool      `db:"read"`
	CreatedAt time.Time `db:"created_at"`
}

type requestID struct {
	RequestID string `db:"request_id"`
}

type messageID struct {
	ID int64 `db:"id"`
}

type cutoff struct {
	Before time.Time `db:"before"`
}
