// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package errors

import "github.com/juju/errors"

const (
	// UnknownOperation is returned when no applier is registered for the
	// operation of a received entry.
	UnknownOperation = errors.ConstError("unknown journal operation")

	// AlreadyRegistered is returned when a second applier is registered
	// for an operation.
	AlreadyRegistered = errors.ConstError("applier already registered")
)
