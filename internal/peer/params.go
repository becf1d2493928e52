// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package peer

import (
	"time"

	"github.com/clustervision/luna2-daemon-sub002/domain/journal"
)

// PingResponse is returned by a peer's liveness endpoint.
type PingResponse struct {
	Hostname string `json:"hostname"`
	Master   bool   `json:"master"`
	InSync   bool   `json:"insync"`
}

// ChecksumsResponse holds the fingerprint of every tracked table of a
// peer.
type ChecksumsResponse struct {
	Checksums map[string]string `json:"checksums"`
}

// JournalBatch carries journal entries between controllers.
type JournalBatch struct {
	Origin  string          `json:"origin"`
	Entries []journal.Entry `json:"entries"`
}

// AckRequest acknowledges pulled journal entries.
type AckRequest struct {
	UUIDs []string `json:"uuids"`
}

// RoleChange asks a peer to change its master role. Guard protects a
// demotion against being applied after a more recent local change.
type RoleChange struct {
	Master bool       `json:"master"`
	Guard  *time.Time `json:"guard,omitempty"`
}

// ErrorResponse is the body of every failed peer request.
type ErrorResponse struct {
	Error string `json:"error"`
}

const (
	pathPing      = "/ping"
	pathChecksums = "/tables/checksums"
	pathTable     = "/tables/{name}"
	pathJournal   = "/journal"
	pathPull      = "/journal/{host}"
	pathAck       = "/journal/{host}/ack"
	pathRole      = "/ha/role"

	contentTypeJSON = "application/json"
	contentTypeCBOR = "application/cbor"
)
