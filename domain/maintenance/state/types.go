// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package state

import "time"

type reservedIP struct {
	IPAddress string    `db:"ipaddress"`
	Holder    string    `db:"holder"`
	CreatedAt time.Time `db:"created_at"`
}

type switchPort struct {
	MACAddress string    `db:"macaddress"`
	Switch     string    `db:"switch"`
	Port       string    `db:"port"`
	UpdatedAt  time.Time `db:"updated_at"`
}

type flag struct {
	Name      string    `db:"name"`
	Value     bool      `db:"value"`
	UpdatedAt time.Time `db:"updated_at"`
}

type flagName struct {
	Name string `db:"name"`
}

type cutoff struct {
	Time time.Time `db:"time"`
}
