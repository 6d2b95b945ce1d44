package store

import (
	"fmt"
	"time"
)

// Audit entity types.
const (
	AuditOrder    = "transport_order"
	AuditSequence = "order_sequence"
)

// AuditEntry is one operator-facing record of a change. Unlike object
// history it survives removal of the object from the pool.
type AuditEntry struct {
	ID         int64     `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityName string    `json:"entity_name"`
	Action     string    `json:"action"`
	OldValue   string    `json:"old_value"`
	NewValue   string    `json:"new_value"`
	Actor      string    `json:"actor"`
	CreatedAt  time.Time `json:"created_at"`
}

const auditCols = `id, entity_type, entity_name, action, old_value, new_value, actor, created_at`

func (db *DB) AppendAudit(entityType, entityName, action, oldValue, newValue, actor string) error {
	_, err := db.Exec(db.Q(`INSERT INTO audit_log (entity_type, entity_name, action, old_value, new_value, actor) VALUES (?, ?, ?, ?, ?, ?)`),
		entityType, entityName, action, oldValue, newValue, actor)
	if err != nil {
		return fmt.Errorf("append audit for %s %s: %w", entityType, entityName, err)
	}
	return nil
}

// ListAuditLog returns the newest entries first.
func (db *DB) ListAuditLog(limit int) ([]*AuditEntry, error) {
	return db.queryAudit(`SELECT `+auditCols+` FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
}

// ListEntityAudit returns one entity's entries, newest first.
func (db *DB) ListEntityAudit(entityType, entityName string) ([]*AuditEntry, error) {
	return db.queryAudit(`SELECT `+auditCols+` FROM audit_log WHERE entity_type=? AND entity_name=? ORDER BY id DESC`, entityType, entityName)
}

func (db *DB) queryAudit(query string, args ...any) ([]*AuditEntry, error) {
	rows, err := db.Query(db.Q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		e := &AuditEntry{}
		var createdAt any
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityName, &e.Action, &e.OldValue, &e.NewValue, &e.Actor, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
