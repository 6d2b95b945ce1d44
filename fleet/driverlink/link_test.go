package driverlink

import (
	"errors"
	"testing"
	"time"

	"fleetkernel/fleet"
	"fleetkernel/order"
	"fleetkernel/protocol"
)

type sent struct {
	topic string
	env   *protocol.Envelope
}

type mockSender struct {
	msgs []sent
	err  error
}

func (m *mockSender) Send(topic string, env *protocol.Envelope) error {
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, sent{topic, env})
	return nil
}

type mockEmitter struct {
	progress  []string
	rejected  []string
	withdrawn []string
	statuses  []fleet.VehicleStatus
}

func (m *mockEmitter) EmitDriveOrderProgress(vehicle, orderName string, index int, state order.DriveOrderState) {
	m.progress = append(m.progress, vehicle+"/"+orderName+"/"+string(state))
}
func (m *mockEmitter) EmitOrderRejected(vehicle, orderName, reason string) {
	m.rejected = append(m.rejected, vehicle+"/"+orderName+"/"+reason)
}
func (m *mockEmitter) EmitWithdrawalConfirmed(vehicle, orderName string) {
	m.withdrawn = append(m.withdrawn, vehicle+"/"+orderName)
}
func (m *mockEmitter) EmitVehicleStatusChanged(status fleet.VehicleStatus) {
	m.statuses = append(m.statuses, status)
}

func testOrder(t *testing.T) *order.TransportOrder {
	t.Helper()
	d, err := order.NewDestination(order.Ref{Kind: order.KindLocation, Name: "Rack-1"}, "Load")
	if err != nil {
		t.Fatalf("destination: %v", err)
	}
	o, err := order.NewTransportOrder(1, "T1", []*order.DriveOrder{order.NewDriveOrder(d)})
	if err != nil {
		t.Fatalf("order: %v", err)
	}
	return o
}

func newLink(sender Sender) (*Link, *mockEmitter) {
	l := New(Config{Vehicles: []string{"V1", "V2"}, CommandsTopic: "fleet.commands", StationID: "kernel-1"}, sender)
	em := &mockEmitter{}
	l.SetProgressEmitter(em)
	return l, em
}

func TestAssignSendsCommand(t *testing.T) {
	s := &mockSender{}
	l, _ := newLink(s)

	if err := l.Assign("V1", testOrder(t)); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if len(s.msgs) != 1 {
		t.Fatalf("sent %d messages, want 1", len(s.msgs))
	}
	msg := s.msgs[0]
	if msg.topic != "fleet.commands" || msg.env.Type != protocol.TypeVehicleCommand {
		t.Errorf("sent %s on %s", msg.env.Type, msg.topic)
	}
	if msg.env.Dst.Node != "V1" || msg.env.Src.Node != "kernel-1" {
		t.Errorf("addresses src=%+v dst=%+v", msg.env.Src, msg.env.Dst)
	}

	var cmd protocol.VehicleCommand
	if err := msg.env.DecodePayload(&cmd); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if cmd.Command != protocol.CommandAssign || cmd.Order != "T1" || len(cmd.DriveOrders) != 1 {
		t.Errorf("command = %+v", cmd)
	}
	if cmd.DriveOrders[0].Destination.Operation != "Load" {
		t.Errorf("drive order = %+v", cmd.DriveOrders[0])
	}

	vs, _ := l.Vehicles()
	if vs[0].CurrentOrder != "T1" {
		t.Errorf("V1 current order = %q, want T1", vs[0].CurrentOrder)
	}
}

func TestWithdrawSendsCommand(t *testing.T) {
	s := &mockSender{}
	l, _ := newLink(s)

	if err := l.Withdraw("V2", "T9", true); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	var cmd protocol.VehicleCommand
	if err := s.msgs[0].env.DecodePayload(&cmd); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if cmd.Command != protocol.CommandWithdraw || !cmd.Immediate || cmd.Order != "T9" {
		t.Errorf("command = %+v", cmd)
	}
}

func TestSendErrors(t *testing.T) {
	l, _ := newLink(&mockSender{err: errors.New("outbox full")})
	if err := l.Assign("V1", testOrder(t)); err == nil {
		t.Error("expected sender error to surface")
	}
	if err := l.Withdraw("V7", "T1", false); err == nil {
		t.Error("expected error for unknown vehicle")
	}
}

func TestReportsReachEmitter(t *testing.T) {
	l, em := newLink(&mockSender{})
	ing := protocol.NewIngestor(l, nil)
	src := protocol.Address{Role: protocol.RoleVehicle, Node: "V1"}
	dst := protocol.Address{Role: protocol.RoleKernel}

	feed := func(msgType string, payload any) {
		env, err := protocol.NewEnvelope(msgType, src, dst, payload)
		if err != nil {
			t.Fatalf("NewEnvelope: %v", err)
		}
		data, _ := env.Encode()
		ing.HandleRaw(data)
	}

	feed(protocol.TypeVehicleStatus, &protocol.VehicleStatus{Vehicle: "V1", State: fleet.VehicleIdle, Point: "P3", EnergyLevel: 80, Available: true})
	feed(protocol.TypeVehicleProgress, &protocol.VehicleProgress{Vehicle: "V1", Order: "T1", State: order.DriveTravelling})
	feed(protocol.TypeVehicleRejection, &protocol.VehicleRejection{Vehicle: "V1", Order: "T2", Reason: "blocked"})
	feed(protocol.TypeVehicleWithdrawn, &protocol.VehicleWithdrawn{Vehicle: "V1", Order: "T3"})
	feed(protocol.TypeVehicleProgress, &protocol.VehicleProgress{Vehicle: "ghost", Order: "T1", State: order.DriveFinished})

	if len(em.statuses) != 1 || em.statuses[0].Point != "P3" {
		t.Errorf("statuses = %+v", em.statuses)
	}
	if len(em.progress) != 1 || em.progress[0] != "V1/T1/travelling" {
		t.Errorf("progress = %v", em.progress)
	}
	if len(em.rejected) != 1 || em.rejected[0] != "V1/T2/blocked" {
		t.Errorf("rejected = %v", em.rejected)
	}
	if len(em.withdrawn) != 1 || em.withdrawn[0] != "V1/T3" {
		t.Errorf("withdrawn = %v", em.withdrawn)
	}

	vs, _ := l.Vehicles()
	if !vs[0].Idle() || vs[0].EnergyLevel != 80 {
		t.Errorf("V1 = %+v", vs[0])
	}
}

func TestStaleVehiclesUnavailable(t *testing.T) {
	l := New(Config{Vehicles: []string{"V1"}, StaleAfter: time.Minute}, &mockSender{})
	l.HandleVehicleStatus(nil, &protocol.VehicleStatus{Vehicle: "V1", State: fleet.VehicleIdle, Available: true})

	vs, _ := l.Vehicles()
	if !vs[0].Available {
		t.Fatal("fresh vehicle should be available")
	}

	l.mu.Lock()
	l.vehicles["V1"].lastSeen = time.Now().Add(-2 * time.Minute)
	l.mu.Unlock()

	vs, _ = l.Vehicles()
	if vs[0].Available || vs[0].State != fleet.VehicleUnknown {
		t.Errorf("stale vehicle = %+v", vs[0])
	}
}
