// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package state

import (
	"time"

	"github.com/clustervision/luna2-daemon-sub002/core/status"
	"github.com/clustervision/luna2-daemon-sub002/domain/taskqueue"
)

// queueTask represents a row of the queue table.
type queueTask struct {
	ID        int64     `db:"id"`
	Subsystem string    `db:"subsystem"`
	Task      string    `db:"task"`
	Param     string    `db:"param"`
	RequestID string    `db:"request_id"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	ExpiresAt time.Time `db:"expires_at"`
}

func (t queueTask) toTask() taskqueue.Task {
	return taskqueue.Task{
		ID:        t.ID,
		Subsystem: t.Subsystem,
		Task:      t.Task,
		Param:     t.Param,
		RequestID: t.RequestID,
		Status:    status.Status(t.Status),
		Created:   t.CreatedAt,
		Expires:   t.ExpiresAt,
	}
}

type taskID struct {
	ID int64 `db:"id"`
}

type taskStatus struct {
	ID     int64  `db:"id"`
	Status string `db:"status"`
}

type taskLane struct {
	ID        int64  `db:"id"`
	Subsystem string `db:"subsystem"`
}

type dedupKey struct {
	Subsystem string    `db:"subsystem"`
	Task      string    `db:"task"`
	Since     time.Time `db:"since"`
}

type laneHead struct {
	Subsystem string    `db:"subsystem"`
	Now       time.Time `db:"now"`
}

type lane struct {
	Subsystem string `db:"subsystem"`
}

type instant struct {
	Now time.Time `db:"now"`
}
