// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package state

import (
	"time"

	"github.com/clustervision/luna2-daemon-sub002/domain/ha"
)

// haRow represents the singleton row of the ha table.
type haRow struct {
	Enabled    bool      `db:"enabled"`
	Master     bool      `db:"master"`
	InSync     bool      `db:"insync"`
	Shadow     bool      `db:"shadow"`
	SharedIP   bool      `db:"sharedip"`
	SyncImages bool      `db:"syncimages"`
	Overrule   bool      `db:"overrule"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r haRow) toState() ha.State {
	return ha.State{
		Enabled:    r.Enabled,
		Master:     r.Master,
		InSync:     r.InSync,
		Shadow:     r.Shadow,
		SharedIP:   r.SharedIP,
		SyncImages: r.SyncImages,
		Overrule:   r.Overrule,
		Updated:    r.UpdatedAt,
	}
}

type roleChange struct {
	Master    bool      `db:"master"`
	UpdatedAt time.Time `db:"updated_at"`
}

type flagChange struct {
	Value     bool      `db:"value"`
	UpdatedAt time.Time `db:"updated_at"`
}

// controllerRow represents a row of the controller roster.
type controllerRow struct {
	Hostname   string `db:"hostname"`
	IPv4       string `db:"ipv4"`
	IPv6       string `db:"ipv6"`
	Beacon     bool   `db:"beacon"`
	Shadow     bool   `db:"shadow"`
	ServerPort int    `db:"serverport"`
	Domain     string `db:"domain"`
}

func (r controllerRow) toController() ha.Controller {
	return ha.Controller{
		Hostname:   r.Hostname,
		IPv4:       r.IPv4,
		IPv6:       r.IPv6,
		Beacon:     r.Beacon,
		Shadow:     r.Shadow,
		ServerPort: r.ServerPort,
		Domain:     r.Domain,
	}
}

type pingRow struct {
	Hostname   string    `db:"hostname"`
	ReceivedAt time.Time `db:"received_at"`
}

type pingCount struct {
	Count int `db:"count"`
}

type cutoff struct {
	Time time.Time `db:"time"`
}
