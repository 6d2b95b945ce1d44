package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"fleetkernel/order"
)

// OrderRow is the indexed projection of a persisted transport order.
type OrderRow struct {
	ID                int64       `json:"id"`
	Name              string      `json:"name"`
	State             order.State `json:"state"`
	Type              string      `json:"type"`
	IntendedVehicle   string      `json:"intended_vehicle"`
	ProcessingVehicle string      `json:"processing_vehicle"`
	WrappingSequence  string      `json:"wrapping_sequence"`
	Dispensable       bool        `json:"dispensable"`
	CreatedAt         time.Time   `json:"created_at"`
	FinishedAt        *time.Time  `json:"finished_at,omitempty"`
}

type HistoryRow struct {
	Seq        uint64    `json:"seq"`
	EventCode  string    `json:"event_code"`
	Supplement string    `json:"supplement"`
	OccurredAt time.Time `json:"occurred_at"`
}

type RejectionRow struct {
	OrderName  string    `json:"order_name"`
	Vehicle    string    `json:"vehicle"`
	Reason     string    `json:"reason"`
	RejectedAt time.Time `json:"rejected_at"`
}

// SaveTransportOrder upserts the order row and appends any history entries
// and rejections not yet persisted.
func (db *DB) SaveTransportOrder(o *order.TransportOrder) error {
	snap, err := json.Marshal(o.Snapshot())
	if err != nil {
		return fmt.Errorf("marshal order %s: %w", o.Name(), err)
	}
	// finished_at drives retention; FAILED and UNROUTABLE orders carry no
	// finished time of their own, so the first save in a final state stamps it.
	var finished any
	if o.State().IsFinal() {
		at := o.FinishedTime()
		if at.Equal(order.InfiniteFuture) {
			at = time.Now()
		}
		finished = db.ts(at)
	}
	return db.inTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(db.Q(`INSERT INTO transport_orders (id, name, state, order_type, intended_vehicle, processing_vehicle, wrapping_sequence, dispensable, created_at, finished_at, snapshot, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (name) DO UPDATE SET state=excluded.state, order_type=excluded.order_type,
				intended_vehicle=excluded.intended_vehicle, processing_vehicle=excluded.processing_vehicle,
				wrapping_sequence=excluded.wrapping_sequence, dispensable=excluded.dispensable,
				finished_at=COALESCE(transport_orders.finished_at, excluded.finished_at), snapshot=excluded.snapshot, updated_at=excluded.updated_at`),
			o.ID(), o.Name(), string(o.State()), o.Type(), o.IntendedVehicle(), o.ProcessingVehicle(),
			o.WrappingSequence(), o.IsDispensable(), db.ts(o.CreationTime()), finished, string(snap), db.ts(time.Now()))
		if err != nil {
			return fmt.Errorf("upsert order %s: %w", o.Name(), err)
		}
		if err := db.appendHistory(tx, order.KindTransportOrder, o.Name(), o.History().Entries()); err != nil {
			return err
		}
		for _, r := range o.Rejections() {
			_, err := tx.Exec(db.Q(`INSERT INTO order_rejections (order_name, vehicle, reason, rejected_at) VALUES (?, ?, ?, ?)
				ON CONFLICT (order_name, vehicle, rejected_at) DO NOTHING`),
				o.Name(), r.Vehicle(), r.Reason(), db.ts(r.Timestamp()))
			if err != nil {
				return fmt.Errorf("insert rejection for %s: %w", o.Name(), err)
			}
		}
		return nil
	})
}

func (db *DB) appendHistory(tx *sql.Tx, kind order.Kind, name string, entries []order.HistoryEntry) error {
	for _, e := range entries {
		_, err := tx.Exec(db.Q(`INSERT INTO object_history (object_kind, object_name, seq, event_code, supplement, occurred_at) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (object_kind, object_name, seq) DO NOTHING`),
			string(kind), name, int64(e.Seq), e.EventCode, e.Supplement, db.ts(e.Timestamp))
		if err != nil {
			return fmt.Errorf("insert history for %s: %w", name, err)
		}
	}
	return nil
}

// LoadTransportOrders restores every persisted order from its snapshot,
// ordered by id.
func (db *DB) LoadTransportOrders() ([]*order.TransportOrder, error) {
	rows, err := db.Query(`SELECT name, snapshot FROM transport_orders ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*order.TransportOrder
	for rows.Next() {
		var name, raw string
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, err
		}
		var snap order.TransportOrderSnapshot
		if err := json.Unmarshal([]byte(raw), &snap); err != nil {
			return nil, fmt.Errorf("decode order %s: %w", name, err)
		}
		o, err := order.RestoreTransportOrder(snap)
		if err != nil {
			return nil, fmt.Errorf("restore order %s: %w", name, err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

const orderSelectCols = `id, name, state, order_type, intended_vehicle, processing_vehicle, wrapping_sequence, dispensable, created_at, finished_at`

func scanOrderRow(sc interface{ Scan(...any) error }) (*OrderRow, error) {
	var r OrderRow
	var state string
	var createdAt, finishedAt any
	if err := sc.Scan(&r.ID, &r.Name, &state, &r.Type, &r.IntendedVehicle, &r.ProcessingVehicle,
		&r.WrappingSequence, &r.Dispensable, &createdAt, &finishedAt); err != nil {
		return nil, err
	}
	r.State = order.State(state)
	r.CreatedAt = parseTime(createdAt)
	r.FinishedAt = parseTimePtr(finishedAt)
	return &r, nil
}

func (db *DB) GetOrderRow(name string) (*OrderRow, error) {
	row := db.QueryRow(db.Q(`SELECT `+orderSelectCols+` FROM transport_orders WHERE name=?`), name)
	return scanOrderRow(row)
}

// ListFinishedOrdersBefore returns final orders whose finish time is older
// than cutoff, oldest first.
func (db *DB) ListFinishedOrdersBefore(cutoff time.Time) ([]*OrderRow, error) {
	rows, err := db.Query(db.Q(`SELECT `+orderSelectCols+` FROM transport_orders WHERE finished_at IS NOT NULL AND finished_at < ? ORDER BY finished_at`), db.ts(cutoff))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*OrderRow
	for rows.Next() {
		r, err := scanOrderRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// OrderSnapshotJSON returns the raw persisted snapshot of an order.
func (db *DB) OrderSnapshotJSON(name string) ([]byte, error) {
	var raw string
	err := db.QueryRow(db.Q(`SELECT snapshot FROM transport_orders WHERE name=?`), name).Scan(&raw)
	if err != nil {
		return nil, err
	}
	return []byte(raw), nil
}

func (db *DB) DeleteTransportOrder(name string) error {
	return db.inTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(db.Q(`DELETE FROM transport_orders WHERE name=?`), name); err != nil {
			return fmt.Errorf("delete order %s: %w", name, err)
		}
		if _, err := tx.Exec(db.Q(`DELETE FROM object_history WHERE object_kind=? AND object_name=?`), string(order.KindTransportOrder), name); err != nil {
			return fmt.Errorf("delete history of %s: %w", name, err)
		}
		if _, err := tx.Exec(db.Q(`DELETE FROM order_rejections WHERE order_name=?`), name); err != nil {
			return fmt.Errorf("delete rejections of %s: %w", name, err)
		}
		return nil
	})
}

func (db *DB) ListObjectHistory(kind order.Kind, name string) ([]*HistoryRow, error) {
	rows, err := db.Query(db.Q(`SELECT seq, event_code, supplement, occurred_at FROM object_history WHERE object_kind=? AND object_name=? ORDER BY seq`), string(kind), name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*HistoryRow
	for rows.Next() {
		var h HistoryRow
		var seq int64
		var at any
		if err := rows.Scan(&seq, &h.EventCode, &h.Supplement, &at); err != nil {
			return nil, err
		}
		h.Seq = uint64(seq)
		h.OccurredAt = parseTime(at)
		out = append(out, &h)
	}
	return out, rows.Err()
}

func (db *DB) ListRejections(orderName string) ([]*RejectionRow, error) {
	rows, err := db.Query(db.Q(`SELECT order_name, vehicle, reason, rejected_at FROM order_rejections WHERE order_name=? ORDER BY rejected_at`), orderName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*RejectionRow
	for rows.Next() {
		var r RejectionRow
		var at any
		if err := rows.Scan(&r.OrderName, &r.Vehicle, &r.Reason, &at); err != nil {
			return nil, err
		}
		r.RejectedAt = parseTime(at)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// CountOrdersByState returns the number of persisted orders per state.
func (db *DB) CountOrdersByState() (map[order.State]int, error) {
	rows, err := db.Query(`SELECT state, COUNT(*) FROM transport_orders GROUP BY state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[order.State]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		out[order.State(state)] = n
	}
	return out, rows.Err()
}
