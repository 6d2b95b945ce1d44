package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"fleetkernel/order"
)

func (db *DB) SaveOrderSequence(s *order.OrderSequence) error {
	snap, err := json.Marshal(s.Snapshot())
	if err != nil {
		return fmt.Errorf("marshal sequence %s: %w", s.Name(), err)
	}
	return db.inTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(db.Q(`INSERT INTO order_sequences (id, name, complete, finished, snapshot, updated_at) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (name) DO UPDATE SET complete=excluded.complete, finished=excluded.finished,
				snapshot=excluded.snapshot, updated_at=excluded.updated_at`),
			s.ID(), s.Name(), s.IsComplete(), s.IsFinished(), string(snap), db.ts(time.Now()))
		if err != nil {
			return fmt.Errorf("upsert sequence %s: %w", s.Name(), err)
		}
		return db.appendHistory(tx, order.KindOrderSequence, s.Name(), s.History().Entries())
	})
}

func (db *DB) LoadOrderSequences() ([]*order.OrderSequence, error) {
	rows, err := db.Query(`SELECT name, snapshot FROM order_sequences ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*order.OrderSequence
	for rows.Next() {
		var name, raw string
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, err
		}
		var snap order.OrderSequenceSnapshot
		if err := json.Unmarshal([]byte(raw), &snap); err != nil {
			return nil, fmt.Errorf("decode sequence %s: %w", name, err)
		}
		s, err := order.RestoreOrderSequence(snap)
		if err != nil {
			return nil, fmt.Errorf("restore sequence %s: %w", name, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (db *DB) DeleteOrderSequence(name string) error {
	return db.inTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(db.Q(`DELETE FROM order_sequences WHERE name=?`), name); err != nil {
			return fmt.Errorf("delete sequence %s: %w", name, err)
		}
		if _, err := tx.Exec(db.Q(`DELETE FROM object_history WHERE object_kind=? AND object_name=?`), string(order.KindOrderSequence), name); err != nil {
			return fmt.Errorf("delete history of %s: %w", name, err)
		}
		return nil
	})
}
