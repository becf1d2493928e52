// Copyright 2022 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package schema

// ControllerDDL is used to create the controller database schema at
// first boot. Every statement is idempotent so it is applied on each start.
func ControllerDDL() []string {
	schemas := []func() string{
		queueSchema,
		statusSchema,
		controllerSchema,
		haSchema,
		journalSchema,
		maintenanceSchema,
		// Tracked tables hold the provisioning data that is replicated
		// between controllers and audited for drift.
		trackedSchema,
	}

	var ddl []string
	for _, fn := range schemas {
		ddl = append(ddl, fn())
	}
	return ddl
}

func queueSchema() string {
	return `
CREATE TABLE IF NOT EXISTS queue (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    subsystem   TEXT NOT NULL,
    task        TEXT NOT NULL,
    param       TEXT NOT NULL DEFAULT '',
    request_id  TEXT NOT NULL,
    status      TEXT NOT NULL,
    created_at  DATETIME NOT NULL,
    expires_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_queue_subsystem
ON queue (subsystem, id);

CREATE INDEX IF NOT EXISTS idx_queue_subsystem_task
ON queue (subsystem, task);
`
}

func statusSchema() string {
	return `
CREATE TABLE IF NOT EXISTS status (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    request_id  TEXT NOT NULL,
    origin      TEXT NOT NULL,
    message     TEXT NOT NULL,
    result      TEXT NOT NULL DEFAULT '',
    read        BOOLEAN NOT NULL DEFAULT FALSE,
    created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_status_request
ON status (request_id, id);
`
}

func controllerSchema() string {
	return `
CREATE TABLE IF NOT EXISTS controller (
    hostname    TEXT PRIMARY KEY,
    ipv4        TEXT NOT NULL DEFAULT '',
    ipv6        TEXT NOT NULL DEFAULT '',
    beacon      BOOLEAN NOT NULL DEFAULT FALSE,
    shadow      BOOLEAN NOT NULL DEFAULT FALSE,
    serverport  INTEGER NOT NULL DEFAULT 7050,
    domain      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS ping (
    hostname    TEXT PRIMARY KEY,
    received_at DATETIME NOT NULL
);
`
}

func haSchema() string {
	return `
CREATE TABLE IF NOT EXISTS ha (
    id          INTEGER PRIMARY KEY CHECK (id = 0),
    enabled     BOOLEAN NOT NULL DEFAULT FALSE,
    master      BOOLEAN NOT NULL DEFAULT FALSE,
    insync      BOOLEAN NOT NULL DEFAULT FALSE,
    shadow      BOOLEAN NOT NULL DEFAULT FALSE,
    sharedip    BOOLEAN NOT NULL DEFAULT FALSE,
    syncimages  BOOLEAN NOT NULL DEFAULT FALSE,
    overrule    BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at  DATETIME NOT NULL
);
`
}

func journalSchema() string {
	return `
-- Outbound entries, one row per target controller.
CREATE TABLE IF NOT EXISTS journal (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    uuid        TEXT NOT NULL,
    origin      TEXT NOT NULL,
    target      TEXT NOT NULL,
    operation   TEXT NOT NULL,
    object      TEXT NOT NULL,
    payload     TEXT NOT NULL DEFAULT '',
    origin_time DATETIME NOT NULL,
    UNIQUE (uuid, target)
);

CREATE INDEX IF NOT EXISTS idx_journal_target
ON journal (target, id);

-- Received entries awaiting local application.
CREATE TABLE IF NOT EXISTS journal_inbox (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    uuid        TEXT NOT NULL UNIQUE,
    origin      TEXT NOT NULL,
    operation   TEXT NOT NULL,
    object      TEXT NOT NULL,
    payload     TEXT NOT NULL DEFAULT '',
    origin_time DATETIME NOT NULL,
    received_at DATETIME NOT NULL
);

-- The winning origin stamp per replicated object.
CREATE TABLE IF NOT EXISTS journal_applied (
    object      TEXT PRIMARY KEY,
    origin      TEXT NOT NULL,
    origin_time DATETIME NOT NULL
);
`
}

func maintenanceSchema() string {
	return `
CREATE TABLE IF NOT EXISTS reserved_ip (
    ipaddress   TEXT PRIMARY KEY,
    holder      TEXT NOT NULL DEFAULT '',
    created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS switchport (
    macaddress  TEXT PRIMARY KEY,
    switch      TEXT NOT NULL,
    port        TEXT NOT NULL,
    updated_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS flag (
    name        TEXT PRIMARY KEY,
    value       BOOLEAN NOT NULL,
    updated_at  DATETIME NOT NULL
);
`
}
