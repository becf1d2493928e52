// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package errors

import "github.com/juju/errors"

const (
	// TableNotTracked is returned for a table that is not replicated.
	TableNotTracked = errors.ConstError("table not tracked")

	// NoNaturalKey is returned when none of the natural key candidates
	// exist in a table.
	NoNaturalKey = errors.ConstError("no natural key")

	// ColumnMismatch is returned when imported rows do not have the
	// columns of the local table.
	ColumnMismatch = errors.ConstError("column mismatch")

	// RecordNotFound is returned when the record addressed by a natural
	// key does not exist.
	RecordNotFound = errors.ConstError("record not found")
)
