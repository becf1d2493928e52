// Copyright 2022 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package schema

// TrackedTables returns the tables that hold replicated provisioning data.
// The order is the order in which they are audited and repaired; parents
// come before the tables that reference them.
func TrackedTables() []string {
	return []string{
		"network",
		"osimage",
		"groups",
		"node",
		"nodeinterface",
		"groupinterface",
		"ipaddress",
		"dnsentry",
		"switch",
		"otherdevices",
		"user",
	}
}

// NaturalKeys is the priority list of column sets used to order the rows
// of a tracked table. The first set whose columns all exist in the table
// is its natural key.
var NaturalKeys = [][]string{
	{"name"},
	{"tablerefid", "tableref"},
	{"host", "networkid"},
	{"nodeid", "interface"},
	{"groupid", "interface"},
	{"username"},
}

func trackedSchema() string {
	return `
CREATE TABLE IF NOT EXISTS network (
    id          INTEGER PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    network     TEXT NOT NULL DEFAULT '',
    subnet      TEXT NOT NULL DEFAULT '',
    gateway     TEXT NOT NULL DEFAULT '',
    zone        TEXT NOT NULL DEFAULT 'internal',
    dhcp        BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS osimage (
    id            INTEGER PRIMARY KEY,
    name          TEXT NOT NULL UNIQUE,
    kernelfile    TEXT NOT NULL DEFAULT '',
    initrdfile    TEXT NOT NULL DEFAULT '',
    path          TEXT NOT NULL DEFAULT '',
    distribution  TEXT NOT NULL DEFAULT '',
    osrelease     TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS groups (
    id                INTEGER PRIMARY KEY,
    name              TEXT NOT NULL UNIQUE,
    osimageid         INTEGER,
    provision_method  TEXT NOT NULL DEFAULT 'torrent',
    setupbmc          BOOLEAN NOT NULL DEFAULT FALSE,
    comment           TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS node (
    id          INTEGER PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    groupid     INTEGER,
    osimageid   INTEGER,
    status      TEXT NOT NULL DEFAULT '',
    comment     TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS nodeinterface (
    id          INTEGER PRIMARY KEY,
    nodeid      INTEGER NOT NULL,
    interface   TEXT NOT NULL,
    macaddress  TEXT NOT NULL DEFAULT '',
    UNIQUE (nodeid, interface)
);

CREATE TABLE IF NOT EXISTS groupinterface (
    id          INTEGER PRIMARY KEY,
    groupid     INTEGER NOT NULL,
    interface   TEXT NOT NULL,
    networkid   INTEGER,
    UNIQUE (groupid, interface)
);

CREATE TABLE IF NOT EXISTS ipaddress (
    id          INTEGER PRIMARY KEY,
    tablerefid  INTEGER NOT NULL,
    tableref    TEXT NOT NULL,
    ipaddress   TEXT NOT NULL,
    networkid   INTEGER,
    UNIQUE (tablerefid, tableref)
);

CREATE TABLE IF NOT EXISTS dnsentry (
    id          INTEGER PRIMARY KEY,
    host        TEXT NOT NULL,
    networkid   INTEGER NOT NULL,
    ipaddress   TEXT NOT NULL DEFAULT '',
    UNIQUE (host, networkid)
);

CREATE TABLE IF NOT EXISTS switch (
    id          INTEGER PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    oid         TEXT NOT NULL DEFAULT '',
    read        TEXT NOT NULL DEFAULT 'public'
);

CREATE TABLE IF NOT EXISTS otherdevices (
    id          INTEGER PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    macaddress  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS user (
    id          INTEGER PRIMARY KEY,
    username    TEXT NOT NULL UNIQUE,
    roles       TEXT NOT NULL DEFAULT ''
);
`
}
