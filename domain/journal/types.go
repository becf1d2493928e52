// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package journal

import (
	"context"
	"time"
)

// Entry is a locally accepted mutation to be replayed on peers.
type Entry struct {
	// UUID identifies the entry across controllers.
	UUID string `json:"uuid"`

	// Origin is the hostname of the controller that accepted the
	// mutation.
	Origin string `json:"origin"`

	// Operation names the applier that replays the entry.
	Operation string `json:"operation"`

	// Object is the key of the mutated record, e.g. "node/node001".
	Object string `json:"object"`

	// Payload is the operation argument.
	Payload string `json:"payload"`

	// OriginTime is when the origin accepted the mutation.
	OriginTime time.Time `json:"origin-time"`
}

// Newer reports whether e wins over a mutation of the same object stamped
// with the input origin and time. Later origin times win; equal times are
// decided by the greater origin hostname.
func (e Entry) Newer(origin string, originTime time.Time) bool {
	if e.OriginTime.After(originTime) {
		return true
	}
	if e.OriginTime.Before(originTime) {
		return false
	}
	return e.Origin > origin
}

// Pending is an outbox entry addressed to a single peer.
type Pending struct {
	ID     int64
	Target string
	Entry
}

// Applier replays an entry locally.
type Applier interface {
	Apply(ctx context.Context, entry Entry) error
}

// ApplierFunc adapts a function to the Applier interface.
type ApplierFunc func(ctx context.Context, entry Entry) error

// Apply calls f.
func (f ApplierFunc) Apply(ctx context.Context, entry Entry) error {
	return f(ctx, entry)
}
