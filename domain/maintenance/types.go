// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package maintenance

import "time"

// SwitchPort maps a MAC address to the switch port it was seen on.
type SwitchPort struct {
	MACAddress string
	Switch     string
	Port       string
	Updated    time.Time
}

// ConfigDegraded is the flag set while materialised configuration holds
// invalid values.
const ConfigDegraded = "config-degraded"
