package loopback

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"fleetkernel/fleet"
	"fleetkernel/order"
	"fleetkernel/plant"
	"fleetkernel/routing"
)

type recordingEmitter struct {
	mu       sync.Mutex
	events   []string
	statuses []fleet.VehicleStatus
}

func (e *recordingEmitter) EmitDriveOrderProgress(vehicle, orderName string, index int, state order.DriveOrderState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, fmt.Sprintf("progress %s %s %d %s", vehicle, orderName, index, state))
}

func (e *recordingEmitter) EmitOrderRejected(vehicle, orderName, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, fmt.Sprintf("rejected %s %s %s", vehicle, orderName, reason))
}

func (e *recordingEmitter) EmitWithdrawalConfirmed(vehicle, orderName string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, fmt.Sprintf("withdrawn %s %s", vehicle, orderName))
}

func (e *recordingEmitter) EmitVehicleStatusChanged(status fleet.VehicleStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statuses = append(e.statuses, status)
}

func setup(t *testing.T) (*Backend, *recordingEmitter, *plant.Model) {
	t.Helper()
	model, err := plant.Load("../../plant/testdata/plant.yaml")
	if err != nil {
		t.Fatalf("load plant: %v", err)
	}
	b := New(Config{Vehicles: model.Vehicles, EnergyPerStep: 1})
	em := &recordingEmitter{}
	b.SetProgressEmitter(em)
	return b, em, model
}

// assigned builds an order over the given destinations, routes it from the
// vehicle's position and walks it to BEING_PROCESSED.
func assigned(t *testing.T, model *plant.Model, vehicle, name string, dests ...order.Destination) *order.TransportOrder {
	t.Helper()
	var dos []*order.DriveOrder
	for _, d := range dests {
		dos = append(dos, order.NewDriveOrder(d))
	}
	o, err := order.NewTransportOrder(1, name, dos)
	if err != nil {
		t.Fatalf("new order: %v", err)
	}
	v, _ := model.Vehicle(vehicle)
	routes, err := routing.NewRouter(model).Route(context.Background(), v.InitialPoint, o)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	dos = o.AllDriveOrders()
	for i, r := range routes {
		if dos[i], err = dos[i].WithRoute(r); err != nil {
			t.Fatalf("with route: %v", err)
		}
	}
	if o, err = o.WithDriveOrders(dos); err != nil {
		t.Fatalf("with drive orders: %v", err)
	}
	for _, s := range []order.State{order.StateActive, order.StateDispatchable} {
		if o, err = o.WithState(s); err != nil {
			t.Fatalf("state %s: %v", s, err)
		}
	}
	if o, err = o.WithAssignment(vehicle); err != nil {
		t.Fatalf("assign: %v", err)
	}
	return o
}

func dest(t *testing.T, location, op string) order.Destination {
	t.Helper()
	d, err := order.NewDestination(order.Ref{Kind: order.KindLocation, Name: location}, op)
	if err != nil {
		t.Fatalf("destination: %v", err)
	}
	return d
}

func ticks(b *Backend, n int) {
	for i := 0; i < n; i++ {
		b.tick()
	}
}

func status(t *testing.T, b *Backend, name string) fleet.VehicleStatus {
	t.Helper()
	vs, err := b.Vehicles()
	if err != nil {
		t.Fatalf("Vehicles: %v", err)
	}
	for _, v := range vs {
		if v.Name == name {
			return v
		}
	}
	t.Fatalf("vehicle %s not listed", name)
	return fleet.VehicleStatus{}
}

func TestVehiclesListed(t *testing.T) {
	b, _, _ := setup(t)
	vs, _ := b.Vehicles()
	if len(vs) != 2 || vs[0].Name != "V1" || vs[1].Name != "V2" {
		t.Fatalf("vehicles = %+v", vs)
	}
	if !vs[0].Idle() || vs[0].Point != "P1" {
		t.Errorf("V1 = %+v, want idle at P1", vs[0])
	}
}

func TestDrivesThroughAllDriveOrders(t *testing.T) {
	b, em, model := setup(t)
	o := assigned(t, model, "V1", "T1", dest(t, "Rack-1", "Load"), dest(t, "Charger", order.OpNop))

	if err := b.Assign("V1", o); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if s := status(t, b, "V1"); s.CurrentOrder != "T1" || s.State != fleet.VehicleExecuting {
		t.Fatalf("status after assign = %+v", s)
	}

	ticks(b, 9)

	want := []string{
		"progress V1 T1 0 travelling",
		"progress V1 T1 0 operating",
		"progress V1 T1 0 finished",
		"progress V1 T1 1 travelling",
		"progress V1 T1 1 finished",
	}
	if fmt.Sprint(em.events) != fmt.Sprint(want) {
		t.Errorf("events = %v\nwant %v", em.events, want)
	}
	s := status(t, b, "V1")
	if !s.Idle() || s.Point != "P4" {
		t.Errorf("final status = %+v, want idle at P4", s)
	}
	if s.EnergyLevel != 97 {
		t.Errorf("energy = %v, want 97", s.EnergyLevel)
	}
}

func TestRejectsWhenUnavailable(t *testing.T) {
	b, em, model := setup(t)
	if err := b.SetAvailability("V1", false); err != nil {
		t.Fatalf("SetAvailability: %v", err)
	}
	o := assigned(t, model, "V1", "T1", dest(t, "Rack-1", "Load"))
	if err := b.Assign("V1", o); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	ticks(b, 1)

	if len(em.events) != 1 || em.events[0] != "rejected V1 T1 vehicle unavailable" {
		t.Errorf("events = %v", em.events)
	}
	if s := status(t, b, "V1"); s.CurrentOrder != "" {
		t.Errorf("vehicle still holds %s", s.CurrentOrder)
	}
}

func TestWithdrawAfterCurrentStep(t *testing.T) {
	b, em, model := setup(t)
	o := assigned(t, model, "V1", "T1", dest(t, "Rack-1", "Load"))
	if err := b.Assign("V1", o); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	ticks(b, 1)
	if err := b.Withdraw("V1", "T1", false); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	ticks(b, 1)

	want := []string{"progress V1 T1 0 travelling", "withdrawn V1 T1"}
	if fmt.Sprint(em.events) != fmt.Sprint(want) {
		t.Errorf("events = %v, want %v", em.events, want)
	}
	if s := status(t, b, "V1"); s.Point != "P2" || !s.Idle() {
		t.Errorf("status = %+v, want idle at P2", s)
	}
}

func TestWithdrawImmediate(t *testing.T) {
	b, em, model := setup(t)
	o := assigned(t, model, "V1", "T1", dest(t, "Rack-1", "Load"))
	if err := b.Assign("V1", o); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if err := b.Withdraw("V1", "T1", true); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if s := status(t, b, "V1"); !s.Idle() {
		t.Errorf("vehicle should stop at once, status = %+v", s)
	}
	ticks(b, 2)
	if len(em.events) != 1 || em.events[0] != "withdrawn V1 T1" {
		t.Errorf("events = %v", em.events)
	}
}

func TestAssignErrors(t *testing.T) {
	b, _, model := setup(t)
	o := assigned(t, model, "V1", "T1", dest(t, "Rack-1", "Load"))
	if err := b.Assign("V9", o); err == nil {
		t.Error("expected error for unknown vehicle")
	}
	if err := b.Assign("V1", o); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	other := assigned(t, model, "V1", "T2", dest(t, "Charger", order.OpNop))
	if err := b.Assign("V1", other); err == nil {
		t.Error("expected error for busy vehicle")
	}
}
