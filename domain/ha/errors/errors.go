// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package errors

import "github.com/juju/errors"

const (
	// StaleRoleChange is returned when a demotion carries a guard
	// timestamp older than the last recorded update of the HA state.
	StaleRoleChange = errors.ConstError("stale role change")

	// StateNotInitialised is returned when the HA state row has not been
	// created yet.
	StateNotInitialised = errors.ConstError("ha state not initialised")

	// IdentityNotFound is returned when none of the local addresses
	// matches a non-beacon controller of the roster.
	IdentityNotFound = errors.ConstError("controller identity not found")
)
