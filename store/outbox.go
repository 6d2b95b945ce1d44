package store

import (
	"fmt"
	"time"
)

// MaxOutboxRetries is the number of failed publishes after which a message
// is parked. Parked messages stay in the table for inspection but are no
// longer handed to the drainer.
const MaxOutboxRetries = 25

// OutboxMessage is a protocol envelope waiting to be published.
type OutboxMessage struct {
	ID        int64
	Topic     string
	Payload   []byte
	MsgType   string
	StationID string
	Retries   int
	CreatedAt time.Time
	SentAt    *time.Time
}

func (db *DB) EnqueueOutbox(topic string, payload []byte, msgType, stationID string) error {
	if _, err := db.Exec(db.Q(`INSERT INTO outbox (topic, payload, msg_type, station_id) VALUES (?, ?, ?, ?)`),
		topic, payload, msgType, stationID); err != nil {
		return fmt.Errorf("enqueue %s on %s: %w", msgType, topic, err)
	}
	return nil
}

// ListPendingOutbox returns unsent, unparked messages oldest first.
func (db *DB) ListPendingOutbox(limit int) ([]*OutboxMessage, error) {
	rows, err := db.Query(db.Q(`SELECT id, topic, payload, msg_type, station_id, retries, created_at FROM outbox
		WHERE sent_at IS NULL AND retries < ? ORDER BY id LIMIT ?`), MaxOutboxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending outbox: %w", err)
	}
	defer rows.Close()

	var msgs []*OutboxMessage
	for rows.Next() {
		m := &OutboxMessage{}
		var createdAt any
		if err := rows.Scan(&m.ID, &m.Topic, &m.Payload, &m.MsgType, &m.StationID, &m.Retries, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt = parseTime(createdAt)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (db *DB) AckOutbox(id int64) error {
	_, err := db.Exec(db.Q(`UPDATE outbox SET sent_at=datetime('now','localtime') WHERE id=?`), id)
	return err
}

func (db *DB) IncrementOutboxRetries(id int64) error {
	_, err := db.Exec(db.Q(`UPDATE outbox SET retries=retries+1 WHERE id=?`), id)
	return err
}

// PendingOutboxCount counts messages the drainer will still try to send.
func (db *DB) PendingOutboxCount() (int, error) {
	var n int
	err := db.QueryRow(db.Q(`SELECT COUNT(*) FROM outbox WHERE sent_at IS NULL AND retries < ?`), MaxOutboxRetries).Scan(&n)
	return n, err
}

// PurgeSentOutbox deletes delivered messages sent before cutoff.
func (db *DB) PurgeSentOutbox(cutoff time.Time) (int64, error) {
	res, err := db.Exec(db.Q(`DELETE FROM outbox WHERE sent_at IS NOT NULL AND sent_at < ?`), db.localTS(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge outbox: %w", err)
	}
	return res.RowsAffected()
}
