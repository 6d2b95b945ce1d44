package store

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS transport_orders (
    id                 INTEGER PRIMARY KEY,
    name               TEXT NOT NULL UNIQUE,
    state              TEXT NOT NULL,
    order_type         TEXT NOT NULL DEFAULT '-',
    intended_vehicle   TEXT NOT NULL DEFAULT '',
    processing_vehicle TEXT NOT NULL DEFAULT '',
    wrapping_sequence  TEXT NOT NULL DEFAULT '',
    dispensable        INTEGER NOT NULL DEFAULT 0,
    created_at         TEXT NOT NULL,
    finished_at        TEXT,
    snapshot           TEXT NOT NULL,
    updated_at         TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_transport_orders_state ON transport_orders(state);
CREATE INDEX IF NOT EXISTS idx_transport_orders_sequence ON transport_orders(wrapping_sequence);

CREATE TABLE IF NOT EXISTS order_sequences (
    id          INTEGER PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    complete    INTEGER NOT NULL DEFAULT 0,
    finished    INTEGER NOT NULL DEFAULT 0,
    snapshot    TEXT NOT NULL,
    updated_at  TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);

CREATE TABLE IF NOT EXISTS object_history (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    object_kind TEXT NOT NULL,
    object_name TEXT NOT NULL,
    seq         INTEGER NOT NULL,
    event_code  TEXT NOT NULL,
    supplement  TEXT NOT NULL DEFAULT '',
    occurred_at TEXT NOT NULL,
    UNIQUE (object_kind, object_name, seq)
);

CREATE TABLE IF NOT EXISTS order_rejections (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    order_name  TEXT NOT NULL,
    vehicle     TEXT NOT NULL,
    reason      TEXT NOT NULL DEFAULT '',
    rejected_at TEXT NOT NULL,
    UNIQUE (order_name, vehicle, rejected_at)
);

CREATE TABLE IF NOT EXISTS outbox (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    topic       TEXT NOT NULL,
    payload     BLOB NOT NULL,
    msg_type    TEXT NOT NULL DEFAULT '',
    station_id  TEXT NOT NULL DEFAULT '',
    retries     INTEGER NOT NULL DEFAULT 0,
    created_at  TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    sent_at     TEXT
);
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(sent_at);

CREATE TABLE IF NOT EXISTS audit_log (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_type TEXT NOT NULL,
    entity_name TEXT NOT NULL DEFAULT '',
    action      TEXT NOT NULL,
    old_value   TEXT NOT NULL DEFAULT '',
    new_value   TEXT NOT NULL DEFAULT '',
    actor       TEXT NOT NULL DEFAULT 'system',
    created_at  TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_type, entity_name);

CREATE TABLE IF NOT EXISTS admin_users (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at    TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
`
