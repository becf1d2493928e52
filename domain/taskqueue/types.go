// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package taskqueue

import (
	"time"

	"github.com/clustervision/luna2-daemon-sub002/core/status"
)

// Outcome describes what happened to an enqueue request.
type Outcome string

const (
	// Added is returned when a new task row was inserted.
	Added Outcome = "added"

	// Duplicate is returned when an equivalent task was already queued
	// within the dedup window; the existing task is returned instead.
	Duplicate Outcome = "duplicate"
)

// Task is a unit of work in a lane of the queue.
type Task struct {
	// ID orders tasks within a lane.
	ID int64

	// Subsystem is the lane the task belongs to.
	Subsystem string

	// Task names the operation to run, e.g. "dns:reload".
	Task string

	// Param is an opaque operation parameter.
	Param string

	// RequestID ties the task to its status log feed.
	RequestID string

	// Status is either queued or in progress.
	Status status.Status

	// Created is when the task was accepted.
	Created time.Time

	// Expires is when the task stops being visible to the lane head.
	Expires time.Time
}

// EnqueueArgs holds the arguments for adding a task.
type EnqueueArgs struct {
	Subsystem string
	Task      string
	Param     string
	RequestID string

	// Force inserts the task even if an equivalent one is within the
	// dedup window.
	Force bool
}

// EnqueueResult is the outcome of adding a task. For a duplicate, ID and
// RequestID identify the existing task.
type EnqueueResult struct {
	ID        int64
	RequestID string
	Outcome   Outcome
}

// Policy holds the time based rules of the queue.
type Policy struct {
	// DedupWindow is how long an enqueued (subsystem, task) pair
	// suppresses identical requests.
	DedupWindow time.Duration

	// ExpireAfter is how long a task stays visible to its lane. It is
	// stored with the task as an explicit expiry timestamp.
	ExpireAfter time.Duration
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		DedupWindow: 10 * time.Minute,
		ExpireAfter: 10 * time.Minute,
	}
}
