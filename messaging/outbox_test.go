package messaging

import (
	"errors"
	"path/filepath"
	"testing"

	"fleetkernel/config"
	"fleetkernel/protocol"
	"fleetkernel/store"
)

type mockPublisher struct {
	connected bool
	fail      map[string]bool
	published []string
}

func (m *mockPublisher) Publish(topic string, payload []byte) error {
	if m.fail[topic] {
		return errors.New("broker unavailable")
	}
	m.published = append(m.published, topic)
	return nil
}

func (m *mockPublisher) IsConnected() bool { return m.connected }

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "outbox.db")},
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOutboxSenderAndDrain(t *testing.T) {
	db := testDB(t)
	sender := NewOutboxSender(db, "kernel-1")

	for _, topic := range []string{"fleet.commands", "fleet.events"} {
		env, err := protocol.NewEnvelope(protocol.TypeOrderUpdate, protocol.Address{Role: protocol.RoleKernel}, protocol.Address{Role: protocol.RoleClient}, &protocol.OrderUpdate{Name: "TOrder-1"})
		if err != nil {
			t.Fatalf("NewEnvelope: %v", err)
		}
		if err := sender.Send(topic, env); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	pending, _ := db.ListPendingOutbox(10)
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}
	if pending[0].MsgType != protocol.TypeOrderUpdate || pending[0].StationID != "kernel-1" {
		t.Errorf("pending[0] = %+v", pending[0])
	}

	pub := &mockPublisher{connected: true, fail: map[string]bool{"fleet.events": true}}
	d := NewOutboxDrainer(db, pub, 0)
	if sent := d.drain(); sent != 1 {
		t.Errorf("sent = %d, want 1", sent)
	}
	if len(pub.published) != 1 || pub.published[0] != "fleet.commands" {
		t.Errorf("published = %v", pub.published)
	}
	left, _ := db.ListPendingOutbox(10)
	if len(left) != 1 || left[0].Retries != 1 {
		t.Fatalf("left = %+v, want one message with one retry", left)
	}

	pub.fail = nil
	if sent := d.drain(); sent != 1 {
		t.Errorf("second drain sent = %d, want 1", sent)
	}
	if n, _ := db.PendingOutboxCount(); n != 0 {
		t.Errorf("pending after drain = %d, want 0", n)
	}
}

func TestDrainSkipsWhenDisconnected(t *testing.T) {
	db := testDB(t)
	db.EnqueueOutbox("fleet.events", []byte(`{}`), protocol.TypeOrderUpdate, "kernel-1")

	pub := &mockPublisher{}
	d := NewOutboxDrainer(db, pub, 0)
	if sent := d.drain(); sent != 0 {
		t.Errorf("sent = %d, want 0", sent)
	}
	if len(pub.published) != 0 {
		t.Errorf("published while disconnected: %v", pub.published)
	}
}
