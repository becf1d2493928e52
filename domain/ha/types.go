// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package ha

import (
	"time"

	"github.com/juju/errors"
)

// Controller is a member of the controller roster.
type Controller struct {
	Hostname   string
	IPv4       string
	IPv6       string
	Beacon     bool
	Shadow     bool
	ServerPort int
	Domain     string
}

// State is the persisted HA state of the local controller.
type State struct {
	Enabled    bool
	Master     bool
	InSync     bool
	Shadow     bool
	SharedIP   bool
	SyncImages bool
	Overrule   bool
	Updated    time.Time
}

// Flag names a boolean of the HA state that can be set on its own.
type Flag string

const (
	FlagEnabled    Flag = "enabled"
	FlagInSync     Flag = "insync"
	FlagShadow     Flag = "shadow"
	FlagSharedIP   Flag = "sharedip"
	FlagSyncImages Flag = "syncimages"
	FlagOverrule   Flag = "overrule"
)

// Validate returns an error if the flag is not known.
func (f Flag) Validate() error {
	switch f {
	case FlagEnabled, FlagInSync, FlagShadow, FlagSharedIP, FlagSyncImages, FlagOverrule:
		return nil
	}
	return errors.NotValidf("ha flag %q", string(f))
}
