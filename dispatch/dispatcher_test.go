package dispatch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"fleetkernel/fleet"
	"fleetkernel/kernel"
	"fleetkernel/order"
	"fleetkernel/plant"
	"fleetkernel/routing"
)

// --- Mock emitter ---

type mockEmitter struct {
	assigned    []string
	unroutable  []string
	withdrawals []string
	failed      []string
}

func (m *mockEmitter) EmitOrderAssigned(o *order.TransportOrder, vehicle string) {
	m.assigned = append(m.assigned, o.Name()+"->"+vehicle)
}
func (m *mockEmitter) EmitOrderUnroutable(orderName, _ string) {
	m.unroutable = append(m.unroutable, orderName)
}
func (m *mockEmitter) EmitWithdrawalRequested(orderName, vehicle string, immediate bool) {
	m.withdrawals = append(m.withdrawals, fmt.Sprintf("%s@%s/%v", orderName, vehicle, immediate))
}
func (m *mockEmitter) EmitDispatchFailed(orderName, vehicle, _ string) {
	m.failed = append(m.failed, orderName+"->"+vehicle)
}

// --- Mock fleet backend ---

type mockBackend struct {
	vehicles  []*fleet.VehicleStatus
	assigned  []string
	withdrawn []string
	assignErr error
}

func (m *mockBackend) find(name string) *fleet.VehicleStatus {
	for _, v := range m.vehicles {
		if v.Name == name {
			return v
		}
	}
	return nil
}

func (m *mockBackend) Vehicles() ([]fleet.VehicleStatus, error) {
	out := make([]fleet.VehicleStatus, 0, len(m.vehicles))
	for _, v := range m.vehicles {
		out = append(out, *v)
	}
	return out, nil
}

func (m *mockBackend) Assign(vehicle string, o *order.TransportOrder) error {
	if m.assignErr != nil {
		return m.assignErr
	}
	m.assigned = append(m.assigned, o.Name()+"->"+vehicle)
	v := m.find(vehicle)
	v.CurrentOrder = o.Name()
	v.State = fleet.VehicleExecuting
	return nil
}

func (m *mockBackend) Withdraw(vehicle, orderName string, immediate bool) error {
	m.withdrawn = append(m.withdrawn, fmt.Sprintf("%s@%s/%v", orderName, vehicle, immediate))
	return nil
}

func (m *mockBackend) Ping() error  { return nil }
func (m *mockBackend) Name() string { return "mock" }

// free marks the vehicle idle again, as a driver would after an order ends.
func (m *mockBackend) free(vehicle string) {
	v := m.find(vehicle)
	v.CurrentOrder = ""
	v.State = fleet.VehicleIdle
}

// --- Test helpers ---

const testPlant = `
name: dispatch-test
points:
  - {name: P1}
  - {name: P2}
  - {name: P3}
  - {name: P9}
paths:
  - {name: P1--P2, source: P1, destination: P2, length: 1000, max_reverse_velocity: 500}
  - {name: P2--P3, source: P2, destination: P3, length: 1000, max_reverse_velocity: 500}
locations:
  - {name: A, links: [P2]}
  - {name: B, links: [P3]}
  - {name: Far, links: [P9]}
vehicles:
  - {name: V1, accepted_types: ["*"], initial_point: P1}
  - {name: V2, accepted_types: [Transport], initial_point: P3}
`

type fixture struct {
	pool    *kernel.Pool
	backend *mockBackend
	emitter *mockEmitter
	d       *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	model, err := plant.Parse([]byte(testPlant))
	if err != nil {
		t.Fatalf("parse plant: %v", err)
	}
	pool := kernel.NewPool(model, nil)
	backend := &mockBackend{vehicles: []*fleet.VehicleStatus{
		{Name: "V1", State: fleet.VehicleIdle, Point: "P1", Available: true},
		{Name: "V2", State: fleet.VehicleIdle, Point: "P3", Available: true},
	}}
	emitter := &mockEmitter{}
	d := NewDispatcher(pool, backend, routing.NewRouter(model), model, emitter, time.Minute)
	return &fixture{pool: pool, backend: backend, emitter: emitter, d: d}
}

// dispatchable creates an order over the given locations and activates it.
func (f *fixture) dispatchable(t *testing.T, c kernel.TransportOrderCreation, locations ...string) *order.TransportOrder {
	t.Helper()
	for _, l := range locations {
		c.Destinations = append(c.Destinations, kernel.DestinationCreation{LocationName: l, Operation: order.OpNop})
	}
	o, err := f.pool.CreateTransportOrder(c)
	if err != nil {
		t.Fatalf("create %s: %v", c.Name, err)
	}
	o, err = f.pool.ActivateTransportOrder(o.Name())
	if err != nil {
		t.Fatalf("activate %s: %v", c.Name, err)
	}
	return o
}

func (f *fixture) state(t *testing.T, name string) order.State {
	t.Helper()
	o, err := f.pool.TransportOrder(name)
	if err != nil {
		t.Fatalf("lookup %s: %v", name, err)
	}
	return o.State()
}

// finish reports every drive order of name as finished by vehicle.
func (f *fixture) finish(t *testing.T, vehicle, name string) {
	t.Helper()
	o, _ := f.pool.TransportOrder(name)
	for i := range o.AllDriveOrders() {
		if err := f.d.HandleDriveOrderProgress(vehicle, name, i, order.DriveTravelling); err != nil {
			t.Fatalf("travelling %s/%d: %v", name, i, err)
		}
		if err := f.d.HandleDriveOrderProgress(vehicle, name, i, order.DriveFinished); err != nil {
			t.Fatalf("finished %s/%d: %v", name, i, err)
		}
	}
	f.backend.free(vehicle)
}

// --- Tests ---

func TestDispatch_AssignsAndRoutes(t *testing.T) {
	f := newFixture(t)
	f.dispatchable(t, kernel.TransportOrderCreation{Name: "T1"}, "B", "A")

	if n := f.d.Dispatch(context.Background()); n != 1 {
		t.Fatalf("assigned = %d, want 1", n)
	}
	o, _ := f.pool.TransportOrder("T1")
	if o.State() != order.StateBeingProcessed || o.ProcessingVehicle() != "V1" {
		t.Fatalf("order = %s on %q", o.State(), o.ProcessingVehicle())
	}
	dos := o.AllDriveOrders()
	if dos[0].Route() == nil || dos[0].Route().FinalDestinationPoint() != "P3" {
		t.Errorf("first route = %+v", dos[0].Route())
	}
	if dos[1].Route() == nil || dos[1].Route().FinalDestinationPoint() != "P2" {
		t.Errorf("second route = %+v", dos[1].Route())
	}
	if len(f.backend.assigned) != 1 || f.emitter.assigned[0] != "T1->V1" {
		t.Errorf("backend=%v emitter=%v", f.backend.assigned, f.emitter.assigned)
	}
}

func TestDispatch_DeadlineOrder(t *testing.T) {
	f := newFixture(t)
	f.backend.vehicles = f.backend.vehicles[:1]
	f.dispatchable(t, kernel.TransportOrderCreation{Name: "Late"}, "A")
	f.dispatchable(t, kernel.TransportOrderCreation{Name: "Urgent", Deadline: time.Now().Add(time.Minute)}, "A")

	f.d.Dispatch(context.Background())

	if got := f.state(t, "Urgent"); got != order.StateBeingProcessed {
		t.Errorf("Urgent = %s, want being_processed", got)
	}
	if got := f.state(t, "Late"); got != order.StateDispatchable {
		t.Errorf("Late = %s, want dispatchable", got)
	}
}

func TestDispatch_VehicleAcceptsType(t *testing.T) {
	f := newFixture(t)
	f.backend.find("V1").Available = false
	f.dispatchable(t, kernel.TransportOrderCreation{Name: "Plain"}, "A")
	f.dispatchable(t, kernel.TransportOrderCreation{Name: "Typed", Type: order.TypeTransport}, "A")

	f.d.Dispatch(context.Background())

	if got := f.state(t, "Plain"); got != order.StateDispatchable {
		t.Errorf("Plain = %s, V2 does not accept it", got)
	}
	o, _ := f.pool.TransportOrder("Typed")
	if o.ProcessingVehicle() != "V2" {
		t.Errorf("Typed processed by %q, want V2", o.ProcessingVehicle())
	}
}

func TestDispatch_IntendedVehicle(t *testing.T) {
	f := newFixture(t)
	f.dispatchable(t, kernel.TransportOrderCreation{Name: "T1", Type: order.TypeTransport, IntendedVehicle: "V2"}, "A")

	f.d.Dispatch(context.Background())

	o, _ := f.pool.TransportOrder("T1")
	if o.ProcessingVehicle() != "V2" {
		t.Errorf("processing vehicle = %q, want V2", o.ProcessingVehicle())
	}
}

func TestDispatch_Unroutable(t *testing.T) {
	f := newFixture(t)
	f.dispatchable(t, kernel.TransportOrderCreation{Name: "T1"}, "Far")

	f.d.Dispatch(context.Background())

	if got := f.state(t, "T1"); got != order.StateUnroutable {
		t.Errorf("state = %s, want unroutable", got)
	}
	if len(f.emitter.unroutable) != 1 {
		t.Errorf("unroutable events = %v", f.emitter.unroutable)
	}
}

func TestDispatch_BackendFailureRequeues(t *testing.T) {
	f := newFixture(t)
	f.backend.assignErr = fmt.Errorf("driver offline")
	f.dispatchable(t, kernel.TransportOrderCreation{Name: "T1"}, "A")

	f.d.Dispatch(context.Background())

	o, _ := f.pool.TransportOrder("T1")
	if o.State() != order.StateDispatchable || o.ProcessingVehicle() != "" {
		t.Fatalf("order = %s on %q, want dispatchable and unassigned", o.State(), o.ProcessingVehicle())
	}
	if rs := o.Rejections(); len(rs) != 1 || rs[0].Vehicle() != "V1" {
		t.Errorf("rejections = %+v", rs)
	}
	if len(f.emitter.failed) != 1 {
		t.Errorf("dispatch failures = %v", f.emitter.failed)
	}
}

func TestProgressFinishesOrder(t *testing.T) {
	f := newFixture(t)
	f.dispatchable(t, kernel.TransportOrderCreation{Name: "T1"}, "A", "B")
	f.d.Dispatch(context.Background())

	// Reports from the wrong vehicle or for the wrong drive order are dropped.
	if err := f.d.HandleDriveOrderProgress("V2", "T1", 0, order.DriveFinished); err != nil {
		t.Fatalf("foreign report: %v", err)
	}
	if err := f.d.HandleDriveOrderProgress("V1", "T1", 1, order.DriveFinished); err != nil {
		t.Fatalf("stale report: %v", err)
	}
	o, _ := f.pool.TransportOrder("T1")
	if o.CurrentDriveOrderIndex() != 0 {
		t.Fatalf("index = %d, want 0", o.CurrentDriveOrderIndex())
	}

	f.finish(t, "V1", "T1")
	if got := f.state(t, "T1"); got != order.StateFinished {
		t.Errorf("state = %s, want finished", got)
	}
}

func TestRejectionRequeues(t *testing.T) {
	f := newFixture(t)
	f.dispatchable(t, kernel.TransportOrderCreation{Name: "T1"}, "A")
	f.d.Dispatch(context.Background())

	if err := f.d.HandleRejection("V1", "T1", "obstacle"); err != nil {
		t.Fatalf("HandleRejection: %v", err)
	}
	if got := f.state(t, "T1"); got != order.StateDispatchable {
		t.Errorf("state = %s, want dispatchable", got)
	}
}

func TestWithdraw_NoVehicleFailsAtOnce(t *testing.T) {
	f := newFixture(t)
	f.dispatchable(t, kernel.TransportOrderCreation{Name: "T1"}, "A")

	if err := f.d.WithdrawOrder("T1", false); err != nil {
		t.Fatalf("WithdrawOrder: %v", err)
	}
	if got := f.state(t, "T1"); got != order.StateFailed {
		t.Errorf("state = %s, want failed", got)
	}
	if len(f.backend.withdrawn) != 0 {
		t.Errorf("backend told to withdraw: %v", f.backend.withdrawn)
	}
}

func TestWithdraw_WaitsForConfirmation(t *testing.T) {
	f := newFixture(t)
	f.dispatchable(t, kernel.TransportOrderCreation{Name: "T1"}, "A")
	f.d.Dispatch(context.Background())

	if err := f.d.WithdrawOrder("T1", true); err != nil {
		t.Fatalf("WithdrawOrder: %v", err)
	}
	if got := f.state(t, "T1"); got != order.StateWithdrawn {
		t.Fatalf("state = %s, want withdrawn", got)
	}
	if len(f.backend.withdrawn) != 1 || f.backend.withdrawn[0] != "T1@V1/true" {
		t.Errorf("backend withdrawals = %v", f.backend.withdrawn)
	}

	// Progress while withdrawing is ignored.
	if err := f.d.HandleDriveOrderProgress("V1", "T1", 0, order.DriveFinished); err != nil {
		t.Fatalf("progress: %v", err)
	}
	if err := f.d.HandleWithdrawalConfirmed("V1", "T1"); err != nil {
		t.Fatalf("HandleWithdrawalConfirmed: %v", err)
	}
	if got := f.state(t, "T1"); got != order.StateFailed {
		t.Errorf("state = %s, want failed", got)
	}
}

func TestSequencePinsVehicle(t *testing.T) {
	f := newFixture(t)
	// Both vehicles accept transport orders, so only the pin keeps O2 on V1.
	if _, err := f.pool.CreateOrderSequence(kernel.OrderSequenceCreation{Name: "S", Type: order.TypeTransport}); err != nil {
		t.Fatalf("create sequence: %v", err)
	}
	f.dispatchable(t, kernel.TransportOrderCreation{Name: "O1", Type: order.TypeTransport, WrappingSequence: "S"}, "A")
	f.dispatchable(t, kernel.TransportOrderCreation{Name: "O2", Type: order.TypeTransport, WrappingSequence: "S"}, "B")

	f.d.Dispatch(context.Background())
	if got := f.state(t, "O2"); got != order.StateDispatchable {
		t.Fatalf("O2 = %s, must wait for O1", got)
	}
	seq, _ := f.pool.OrderSequence("S")
	if seq.ProcessingVehicle() != "V1" {
		t.Fatalf("sequence bound to %q, want V1", seq.ProcessingVehicle())
	}

	f.finish(t, "V1", "O1")
	f.backend.find("V1").Available = false
	f.d.Dispatch(context.Background())
	if got := f.state(t, "O2"); got != order.StateDispatchable {
		t.Fatalf("O2 = %s, must wait for pinned V1 while V2 is idle", got)
	}

	f.backend.find("V1").Available = true
	f.d.Dispatch(context.Background())
	o, _ := f.pool.TransportOrder("O2")
	if o.ProcessingVehicle() != "V1" {
		t.Errorf("O2 processed by %q, want V1", o.ProcessingVehicle())
	}
}

func TestFailureCascade(t *testing.T) {
	f := newFixture(t)
	if _, err := f.pool.CreateOrderSequence(kernel.OrderSequenceCreation{Name: "S", FailureFatal: true}); err != nil {
		t.Fatalf("create sequence: %v", err)
	}
	for _, name := range []string{"O1", "O2", "O3"} {
		f.dispatchable(t, kernel.TransportOrderCreation{Name: name, WrappingSequence: "S"}, "A")
	}
	if _, err := f.pool.CompleteSequence("S"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	f.d.Dispatch(context.Background())
	f.finish(t, "V1", "O1")
	f.d.Dispatch(context.Background())

	failed, err := f.pool.Fail("O2")
	if err != nil {
		t.Fatalf("fail O2: %v", err)
	}
	f.d.HandleOrderFinal(failed)

	if got := f.state(t, "O3"); got != order.StateFailed {
		t.Errorf("O3 = %s, want failed", got)
	}
	seq, _ := f.pool.OrderSequence("S")
	if !seq.IsComplete() || !seq.IsFinished() {
		t.Errorf("sequence complete=%v finished=%v", seq.IsComplete(), seq.IsFinished())
	}
	if len(seq.Orders()) != 3 {
		t.Errorf("members = %v, none may be dropped", seq.Orders())
	}
}

func TestFailureCascadeWaitsForWithdrawal(t *testing.T) {
	f := newFixture(t)
	if _, err := f.pool.CreateOrderSequence(kernel.OrderSequenceCreation{Name: "S", FailureFatal: true}); err != nil {
		t.Fatalf("create sequence: %v", err)
	}
	for _, name := range []string{"O1", "O2", "O3"} {
		f.dispatchable(t, kernel.TransportOrderCreation{Name: name, WrappingSequence: "S"}, "A")
	}
	f.d.Dispatch(context.Background())

	failed, err := f.pool.Fail("O1")
	if err != nil {
		t.Fatalf("fail O1: %v", err)
	}
	// O2 was handed out before the cascade ran.
	if _, err := f.pool.AssignVehicle("O2", "V1"); err != nil {
		t.Fatalf("assign O2: %v", err)
	}
	f.d.HandleOrderFinal(failed)

	if got := f.state(t, "O2"); got != order.StateWithdrawn {
		t.Fatalf("O2 = %s, want withdrawn", got)
	}
	if got := f.state(t, "O3"); got != order.StateFailed {
		t.Errorf("O3 = %s, want failed", got)
	}
	if len(f.backend.withdrawn) != 1 || f.backend.withdrawn[0] != "O2@V1/true" {
		t.Errorf("withdrawals = %v", f.backend.withdrawn)
	}
	seq, _ := f.pool.OrderSequence("S")
	if !seq.IsComplete() || seq.IsFinished() {
		t.Fatalf("sequence complete=%v finished=%v, want complete and unfinished", seq.IsComplete(), seq.IsFinished())
	}

	if err := f.d.HandleWithdrawalConfirmed("V1", "O2"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if got := f.state(t, "O2"); got != order.StateFailed {
		t.Errorf("O2 = %s, want failed", got)
	}
	seq, _ = f.pool.OrderSequence("S")
	if !seq.IsFinished() {
		t.Error("sequence not finished after the last withdrawal was confirmed")
	}
}

func TestFailureWithoutFatalFlag(t *testing.T) {
	f := newFixture(t)
	if _, err := f.pool.CreateOrderSequence(kernel.OrderSequenceCreation{Name: "S"}); err != nil {
		t.Fatalf("create sequence: %v", err)
	}
	f.dispatchable(t, kernel.TransportOrderCreation{Name: "O1", WrappingSequence: "S"}, "A")
	f.dispatchable(t, kernel.TransportOrderCreation{Name: "O2", WrappingSequence: "S"}, "A")

	failed, err := f.pool.Fail("O1")
	if err != nil {
		t.Fatalf("fail O1: %v", err)
	}
	f.d.HandleOrderFinal(failed)

	if got := f.state(t, "O2"); got != order.StateDispatchable {
		t.Errorf("O2 = %s, want dispatchable", got)
	}
}

func TestDispensableDisplaced(t *testing.T) {
	f := newFixture(t)
	f.backend.vehicles = f.backend.vehicles[:1]
	f.dispatchable(t, kernel.TransportOrderCreation{Name: "Filler", Dispensable: true}, "A")
	f.d.Dispatch(context.Background())

	f.dispatchable(t, kernel.TransportOrderCreation{Name: "Real", IntendedVehicle: "V1"}, "B")
	f.d.Dispatch(context.Background())

	if got := f.state(t, "Filler"); got != order.StateWithdrawn {
		t.Fatalf("Filler = %s, want withdrawn", got)
	}
	if len(f.backend.withdrawn) != 1 || f.backend.withdrawn[0] != "Filler@V1/false" {
		t.Errorf("withdrawals = %v", f.backend.withdrawn)
	}

	if err := f.d.HandleWithdrawalConfirmed("V1", "Filler"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	f.backend.free("V1")
	f.d.Dispatch(context.Background())
	o, _ := f.pool.TransportOrder("Real")
	if o.ProcessingVehicle() != "V1" {
		t.Errorf("Real processed by %q, want V1", o.ProcessingVehicle())
	}
}
