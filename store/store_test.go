package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"fleetkernel/config"
	"fleetkernel/order"
)

// testDB creates a temporary SQLite database for testing.
func testDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	db, err := Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: dbPath},
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
		os.Remove(dbPath)
	})
	return db
}

func testOrder(t *testing.T, id int64, name string) *order.TransportOrder {
	t.Helper()
	dest, err := order.NewDestination(order.Ref{Kind: order.KindLocation, Name: "Rack-1"}, "Load")
	if err != nil {
		t.Fatalf("destination: %v", err)
	}
	o, err := order.NewTransportOrder(id, name, []*order.DriveOrder{order.NewDriveOrder(dest)})
	if err != nil {
		t.Fatalf("new order: %v", err)
	}
	return o.WithType(order.TypeTransport).WithIntendedVehicle("V1").
		WithHistoryEntry(order.NewHistoryEntry(order.HistOrderCreated, ""))
}

func mustState(t *testing.T, o *order.TransportOrder, states ...order.State) *order.TransportOrder {
	t.Helper()
	for _, s := range states {
		next, err := o.WithState(s)
		if err != nil {
			t.Fatalf("state %s: %v", s, err)
		}
		o = next
	}
	return o
}

// --- Transport order tests ---

func TestTransportOrderRoundTrip(t *testing.T) {
	db := testDB(t)

	o := mustState(t, testOrder(t, 7, "TOrder-1"), order.StateActive, order.StateDispatchable)
	if err := db.SaveTransportOrder(o); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := db.LoadTransportOrders()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("len = %d, want 1", len(loaded))
	}
	got := loaded[0]
	if got.Name() != "TOrder-1" || got.ID() != 7 {
		t.Errorf("got %s/%d, want TOrder-1/7", got.Name(), got.ID())
	}
	if got.State() != order.StateDispatchable {
		t.Errorf("State = %s, want dispatchable", got.State())
	}
	if got.IntendedVehicle() != "V1" {
		t.Errorf("IntendedVehicle = %q, want V1", got.IntendedVehicle())
	}
	if got.History().Len() != o.History().Len() {
		t.Errorf("history len = %d, want %d", got.History().Len(), o.History().Len())
	}
	if !got.Deadline().Equal(order.InfiniteFuture) {
		t.Errorf("Deadline = %v, want infinite future", got.Deadline())
	}

	row, err := db.GetOrderRow("TOrder-1")
	if err != nil {
		t.Fatalf("get row: %v", err)
	}
	if row.Type != order.TypeTransport {
		t.Errorf("Type = %q, want %q", row.Type, order.TypeTransport)
	}
	if row.FinishedAt != nil {
		t.Error("FinishedAt should be nil for a non-final order")
	}
}

func TestSaveTransportOrderUpserts(t *testing.T) {
	db := testDB(t)

	o := testOrder(t, 1, "TOrder-1")
	if err := db.SaveTransportOrder(o); err != nil {
		t.Fatalf("save raw: %v", err)
	}
	o = mustState(t, o, order.StateActive, order.StateDispatchable)
	o = o.WithRejection(order.NewRejection("V2", "battery low"))
	if err := db.SaveTransportOrder(o); err != nil {
		t.Fatalf("save dispatchable: %v", err)
	}

	loaded, _ := db.LoadTransportOrders()
	if len(loaded) != 1 {
		t.Fatalf("len = %d, want 1", len(loaded))
	}

	hist, err := db.ListObjectHistory(order.KindTransportOrder, "TOrder-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != o.History().Len() {
		t.Errorf("history rows = %d, want %d", len(hist), o.History().Len())
	}
	if hist[0].EventCode != order.HistOrderCreated {
		t.Errorf("first event = %q, want %q", hist[0].EventCode, order.HistOrderCreated)
	}

	// Saving again must not duplicate rows.
	if err := db.SaveTransportOrder(o); err != nil {
		t.Fatalf("resave: %v", err)
	}
	hist2, _ := db.ListObjectHistory(order.KindTransportOrder, "TOrder-1")
	if len(hist2) != len(hist) {
		t.Errorf("history rows after resave = %d, want %d", len(hist2), len(hist))
	}
	rejs, err := db.ListRejections("TOrder-1")
	if err != nil {
		t.Fatalf("rejections: %v", err)
	}
	if len(rejs) != 1 || rejs[0].Vehicle != "V2" || rejs[0].Reason != "battery low" {
		t.Errorf("rejections = %+v, want one from V2", rejs)
	}
}

func TestFinishedOrdersAndDelete(t *testing.T) {
	db := testDB(t)

	done := mustState(t, testOrder(t, 1, "TOrder-1"), order.StateFailed)
	open := mustState(t, testOrder(t, 2, "TOrder-2"), order.StateActive)
	db.SaveTransportOrder(done)
	db.SaveTransportOrder(open)

	old, err := db.ListFinishedOrdersBefore(time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("list finished: %v", err)
	}
	if len(old) != 1 || old[0].Name != "TOrder-1" {
		t.Fatalf("finished = %+v, want TOrder-1 only", old)
	}
	if old[0].FinishedAt == nil {
		t.Fatal("FinishedAt should be stamped for a failed order")
	}
	none, _ := db.ListFinishedOrdersBefore(time.Now().Add(-time.Hour))
	if len(none) != 0 {
		t.Errorf("finished before an hour ago = %d, want 0", len(none))
	}

	counts, err := db.CountOrdersByState()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts[order.StateFailed] != 1 || counts[order.StateActive] != 1 {
		t.Errorf("counts = %v", counts)
	}

	if err := db.DeleteTransportOrder("TOrder-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	loaded, _ := db.LoadTransportOrders()
	if len(loaded) != 1 || loaded[0].Name() != "TOrder-2" {
		t.Errorf("remaining = %d orders, want TOrder-2", len(loaded))
	}
	hist, _ := db.ListObjectHistory(order.KindTransportOrder, "TOrder-1")
	if len(hist) != 0 {
		t.Errorf("history after delete = %d, want 0", len(hist))
	}
}

// --- Sequence tests ---

func TestOrderSequenceRoundTrip(t *testing.T) {
	db := testDB(t)

	s, err := order.NewOrderSequence(3, "Seq-1")
	if err != nil {
		t.Fatalf("new sequence: %v", err)
	}
	s = s.WithFailureFatal(true)
	s, err = s.WithOrder("TOrder-1")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	s = s.WithComplete()
	if err := db.SaveOrderSequence(s); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := db.LoadOrderSequences()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("len = %d, want 1", len(loaded))
	}
	got := loaded[0]
	if got.Name() != "Seq-1" || got.ID() != 3 {
		t.Errorf("got %s/%d", got.Name(), got.ID())
	}
	if !got.IsComplete() || !got.IsFailureFatal() {
		t.Error("complete and failure-fatal flags should survive")
	}
	if len(got.Orders()) != 1 || got.Orders()[0] != "TOrder-1" {
		t.Errorf("Orders = %v", got.Orders())
	}

	if err := db.DeleteOrderSequence("Seq-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	loaded, _ = db.LoadOrderSequences()
	if len(loaded) != 0 {
		t.Errorf("len after delete = %d, want 0", len(loaded))
	}
}

// --- Outbox tests ---

func TestOutboxCRUD(t *testing.T) {
	db := testDB(t)

	if err := db.EnqueueOutbox("fleet/commands", []byte(`{"test":true}`), "vehicle.command", "kernel-1"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	db.EnqueueOutbox("fleet/events", []byte(`{"test":2}`), "order.update", "kernel-1")

	msgs, err := db.ListPendingOutbox(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	if msgs[0].Topic != "fleet/commands" {
		t.Errorf("topic = %q, want %q", msgs[0].Topic, "fleet/commands")
	}
	if msgs[0].StationID != "kernel-1" {
		t.Errorf("station_id = %q, want kernel-1", msgs[0].StationID)
	}
	if n, _ := db.PendingOutboxCount(); n != 2 {
		t.Errorf("pending count = %d, want 2", n)
	}

	db.AckOutbox(msgs[0].ID)
	msgs2, _ := db.ListPendingOutbox(10)
	if len(msgs2) != 1 {
		t.Errorf("pending after ack = %d, want 1", len(msgs2))
	}

	db.IncrementOutboxRetries(msgs2[0].ID)
	msgs3, _ := db.ListPendingOutbox(10)
	if msgs3[0].Retries != 1 {
		t.Errorf("retries = %d, want 1", msgs3[0].Retries)
	}

	purged, err := db.PurgeSentOutbox(time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}
	if n, _ := db.PendingOutboxCount(); n != 1 {
		t.Errorf("pending after purge = %d, want 1", n)
	}
}

// --- Audit tests ---

func TestAuditLog(t *testing.T) {
	db := testDB(t)

	db.AppendAudit("transport_order", "TOrder-1", "created", "", "raw", "system")
	db.AppendAudit("transport_order", "TOrder-1", "state", "raw", "active", "system")
	db.AppendAudit("order_sequence", "Seq-1", "completed", "", "", "admin")

	entries, err := db.ListAuditLog(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("len = %d, want 3", len(entries))
	}
	if entries[0].Action != "completed" {
		t.Errorf("first entry action = %q, want %q", entries[0].Action, "completed")
	}

	orderEntries, _ := db.ListEntityAudit("transport_order", "TOrder-1")
	if len(orderEntries) != 2 {
		t.Errorf("order entries = %d, want 2", len(orderEntries))
	}
}

// --- Admin users ---

func TestAdminUsers(t *testing.T) {
	db := testDB(t)

	exists, err := db.AdminUserExists()
	if err != nil || exists {
		t.Fatalf("exists = %v, err = %v, want false", exists, err)
	}
	if err := db.CreateAdminUser("admin", "hash"); err != nil {
		t.Fatalf("create: %v", err)
	}
	u, err := db.GetAdminUser("admin")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if u.PasswordHash != "hash" {
		t.Errorf("PasswordHash = %q, want hash", u.PasswordHash)
	}
	if u.CreatedAt.IsZero() {
		t.Error("CreatedAt should be parsed")
	}
}

// --- Dialect tests ---

func TestRebind(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"SELECT * FROM t WHERE a=? AND b=?", "SELECT * FROM t WHERE a=$1 AND b=$2"},
		{"INSERT INTO t (a) VALUES (?)", "INSERT INTO t (a) VALUES ($1)"},
		{"SELECT 1", "SELECT 1"},
	}
	for _, tt := range tests {
		got := Rebind(tt.input)
		if got != tt.want {
			t.Errorf("Rebind(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
