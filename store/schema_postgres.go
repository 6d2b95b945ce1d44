package store

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS transport_orders (
    id                 BIGINT PRIMARY KEY,
    name               TEXT NOT NULL UNIQUE,
    state              TEXT NOT NULL,
    order_type         TEXT NOT NULL DEFAULT '-',
    intended_vehicle   TEXT NOT NULL DEFAULT '',
    processing_vehicle TEXT NOT NULL DEFAULT '',
    wrapping_sequence  TEXT NOT NULL DEFAULT '',
    dispensable        BOOLEAN NOT NULL DEFAULT FALSE,
    created_at         TIMESTAMPTZ NOT NULL,
    finished_at        TIMESTAMPTZ,
    snapshot           JSONB NOT NULL,
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_transport_orders_state ON transport_orders(state);
CREATE INDEX IF NOT EXISTS idx_transport_orders_sequence ON transport_orders(wrapping_sequence);

CREATE TABLE IF NOT EXISTS order_sequences (
    id          BIGINT PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    complete    BOOLEAN NOT NULL DEFAULT FALSE,
    finished    BOOLEAN NOT NULL DEFAULT FALSE,
    snapshot    JSONB NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS object_history (
    id          BIGSERIAL PRIMARY KEY,
    object_kind TEXT NOT NULL,
    object_name TEXT NOT NULL,
    seq         BIGINT NOT NULL,
    event_code  TEXT NOT NULL,
    supplement  TEXT NOT NULL DEFAULT '',
    occurred_at TIMESTAMPTZ NOT NULL,
    UNIQUE (object_kind, object_name, seq)
);

CREATE TABLE IF NOT EXISTS order_rejections (
    id          BIGSERIAL PRIMARY KEY,
    order_name  TEXT NOT NULL,
    vehicle     TEXT NOT NULL,
    reason      TEXT NOT NULL DEFAULT '',
    rejected_at TIMESTAMPTZ NOT NULL,
    UNIQUE (order_name, vehicle, rejected_at)
);

CREATE TABLE IF NOT EXISTS outbox (
    id          BIGSERIAL PRIMARY KEY,
    topic       TEXT NOT NULL,
    payload     BYTEA NOT NULL,
    msg_type    TEXT NOT NULL DEFAULT '',
    station_id  TEXT NOT NULL DEFAULT '',
    retries     INTEGER NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    sent_at     TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(sent_at) WHERE sent_at IS NULL;

CREATE TABLE IF NOT EXISTS audit_log (
    id          BIGSERIAL PRIMARY KEY,
    entity_type TEXT NOT NULL,
    entity_name TEXT NOT NULL DEFAULT '',
    action      TEXT NOT NULL,
    old_value   TEXT NOT NULL DEFAULT '',
    new_value   TEXT NOT NULL DEFAULT '',
    actor       TEXT NOT NULL DEFAULT 'system',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_type, entity_name);

CREATE TABLE IF NOT EXISTS admin_users (
    id            BIGSERIAL PRIMARY KEY,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
