// Package dispatch assigns DISPATCHABLE transport orders to vehicles, feeds
// vehicle reports back into the kernel and drives the sequence failure
// cascade.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"fleetkernel/fleet"
	"fleetkernel/kernel"
	"fleetkernel/order"
	"fleetkernel/plant"
	"fleetkernel/routing"
)

// Router computes routes for an order's drive orders.
type Router interface {
	Route(ctx context.Context, from string, o *order.TransportOrder) ([]*order.Route, error)
	CheckRoutability(o *order.TransportOrder) error
}

// VehicleCatalog describes the vehicles of the plant.
type VehicleCatalog interface {
	Vehicle(name string) (plant.Vehicle, bool)
}

type Dispatcher struct {
	pool     *kernel.Pool
	backend  fleet.Backend
	router   Router
	vehicles VehicleCatalog
	emitter  Emitter

	// round serializes dispatch rounds.
	round sync.Mutex

	interval time.Duration
	trigger  chan struct{}
	stopChan chan struct{}
}

func NewDispatcher(pool *kernel.Pool, backend fleet.Backend, router Router, vehicles VehicleCatalog, emitter Emitter, interval time.Duration) *Dispatcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Dispatcher{
		pool:     pool,
		backend:  backend,
		router:   router,
		vehicles: vehicles,
		emitter:  emitter,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		stopChan: make(chan struct{}),
	}
}

// Start runs dispatch rounds on a ticker and whenever Trigger is called.
func (d *Dispatcher) Start() {
	go d.run()
}

func (d *Dispatcher) Stop() {
	select {
	case d.stopChan <- struct{}{}:
	default:
	}
}

// Trigger requests a dispatch round without waiting for it.
func (d *Dispatcher) Trigger() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) run() {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopChan:
			return
		case <-ticker.C:
			d.Dispatch(context.Background())
		case <-d.trigger:
			d.Dispatch(context.Background())
		}
	}
}

// Dispatch runs one round: DISPATCHABLE orders, earliest deadline first, are
// matched with idle vehicles. It returns the number of orders assigned.
func (d *Dispatcher) Dispatch(ctx context.Context) int {
	d.round.Lock()
	defer d.round.Unlock()

	statuses, err := d.backend.Vehicles()
	if err != nil {
		log.Printf("dispatch: list vehicles from %s: %v", d.backend.Name(), err)
		return 0
	}
	byName := make(map[string]fleet.VehicleStatus, len(statuses))
	for _, s := range statuses {
		byName[s.Name] = s
	}

	orders := d.pool.TransportOrders(kernel.InState(order.StateDispatchable))
	sort.SliceStable(orders, func(i, j int) bool {
		a, b := orders[i], orders[j]
		if !a.Deadline().Equal(b.Deadline()) {
			return a.Deadline().Before(b.Deadline())
		}
		if !a.CreationTime().Equal(b.CreationTime()) {
			return a.CreationTime().Before(b.CreationTime())
		}
		return a.ID() < b.ID()
	})

	assigned := 0
	for _, o := range orders {
		if ctx.Err() != nil {
			break
		}
		vehicle, ok := d.selectVehicle(o, statuses, byName)
		if !ok {
			continue
		}
		if d.assign(ctx, o, byName[vehicle]) {
			assigned++
			s := byName[vehicle]
			s.CurrentOrder = o.Name()
			s.State = fleet.VehicleExecuting
			byName[vehicle] = s
		}
	}
	return assigned
}

// selectVehicle picks the vehicle for o: the order's intended vehicle, the
// vehicle its sequence is bound to, or the first idle vehicle accepting the
// order's type.
func (d *Dispatcher) selectVehicle(o *order.TransportOrder, statuses []fleet.VehicleStatus, byName map[string]fleet.VehicleStatus) (string, bool) {
	required := o.IntendedVehicle()
	if seqName := o.WrappingSequence(); seqName != "" {
		seq, err := d.pool.OrderSequence(seqName)
		if err != nil {
			log.Printf("dispatch: order %s: %v", o.Name(), err)
			return "", false
		}
		if seq.NextUnfinishedOrder() != o.Name() || d.sequenceFailed(seq) {
			return "", false
		}
		if pinned := kernel.SequenceVehicle(seq); pinned != "" {
			if required != "" && required != pinned {
				log.Printf("dispatch: order %s wants %s but sequence %s is bound to %s", o.Name(), required, seq.Name(), pinned)
				return "", false
			}
			required = pinned
		}
	}

	if required != "" {
		s, ok := byName[required]
		if !ok || !d.accepts(required, o.Type()) {
			return "", false
		}
		if !s.Idle() {
			d.displaceDispensable(s)
			return "", false
		}
		return required, true
	}

	for _, s := range statuses {
		cur := byName[s.Name]
		if cur.Idle() && d.accepts(s.Name, o.Type()) && !d.reserved(s.Name) {
			return s.Name, true
		}
	}
	return "", false
}

// reserved reports whether a vehicle is bound to a sequence that still has
// work left, so that free orders do not interleave with it.
func (d *Dispatcher) reserved(vehicle string) bool {
	for _, seq := range d.pool.OrderSequences() {
		if seq.IsFinished() || seq.ProcessingVehicle() != vehicle {
			continue
		}
		if seq.NextUnfinishedOrder() != "" {
			return true
		}
	}
	return false
}

func (d *Dispatcher) accepts(vehicle, typ string) bool {
	v, ok := d.vehicles.Vehicle(vehicle)
	if !ok {
		return typ == order.TypeNone
	}
	return v.Accepts(typ)
}

// displaceDispensable withdraws the order a busy vehicle is working on if
// that order is dispensable.
func (d *Dispatcher) displaceDispensable(s fleet.VehicleStatus) {
	if s.CurrentOrder == "" {
		return
	}
	cur, err := d.pool.TransportOrder(s.CurrentOrder)
	if err != nil || !cur.IsDispensable() || cur.State() != order.StateBeingProcessed {
		return
	}
	log.Printf("dispatch: withdrawing dispensable order %s from %s", cur.Name(), s.Name)
	if err := d.WithdrawOrder(cur.Name(), false); err != nil {
		log.Printf("dispatch: withdraw dispensable %s: %v", cur.Name(), err)
	}
}

// assign routes o from the vehicle's position, claims it and hands it to the
// backend. A backend failure is recorded as a rejection so the order returns
// to DISPATCHABLE.
func (d *Dispatcher) assign(ctx context.Context, o *order.TransportOrder, v fleet.VehicleStatus) bool {
	name := o.Name()
	if err := d.router.CheckRoutability(o); err != nil {
		d.unroutable(name, err)
		return false
	}
	routes, err := d.router.Route(ctx, v.Point, o)
	if err != nil {
		if errors.Is(err, routing.ErrUnroutable) {
			d.unroutable(name, err)
		} else {
			log.Printf("dispatch: route %s: %v", name, err)
		}
		return false
	}
	if _, err := d.pool.SetRoutes(name, routes); err != nil {
		log.Printf("dispatch: set routes on %s: %v", name, err)
		return false
	}
	claimed, err := d.pool.AssignVehicle(name, v.Name)
	if err != nil {
		log.Printf("dispatch: assign %s to %s: %v", name, v.Name, err)
		return false
	}
	if err := d.backend.Assign(v.Name, claimed); err != nil {
		log.Printf("dispatch: hand %s to %s: %v", name, v.Name, err)
		d.emitter.EmitDispatchFailed(name, v.Name, err.Error())
		if _, rerr := d.pool.RecordRejection(name, v.Name, err.Error()); rerr != nil {
			log.Printf("dispatch: requeue %s: %v", name, rerr)
		}
		return false
	}
	log.Printf("dispatch: order %s assigned to %s", name, v.Name)
	d.emitter.EmitOrderAssigned(claimed, v.Name)
	return true
}

func (d *Dispatcher) unroutable(name string, cause error) {
	log.Printf("dispatch: order %s unroutable: %v", name, cause)
	if _, err := d.pool.MarkUnroutable(name); err != nil {
		log.Printf("dispatch: mark %s unroutable: %v", name, err)
		return
	}
	d.emitter.EmitOrderUnroutable(name, cause.Error())
}

// WithdrawOrder withdraws an order. An order without a processing vehicle
// fails at once; otherwise the vehicle is told to stop and the order fails
// when the vehicle confirms.
func (d *Dispatcher) WithdrawOrder(name string, immediate bool) error {
	before, err := d.pool.TransportOrder(name)
	if err != nil {
		return err
	}
	vehicle := ""
	if before.State() == order.StateBeingProcessed {
		vehicle = before.ProcessingVehicle()
	}
	if _, err := d.pool.Withdraw(name); err != nil {
		return err
	}
	d.emitter.EmitWithdrawalRequested(name, vehicle, immediate)

	if vehicle == "" {
		_, err := d.pool.ConfirmWithdrawal(name)
		return err
	}
	if err := d.backend.Withdraw(vehicle, name, immediate); err != nil {
		log.Printf("dispatch: tell %s to drop %s: %v", vehicle, name, err)
		if _, cerr := d.pool.ConfirmWithdrawal(name); cerr != nil {
			return fmt.Errorf("confirm withdrawal of %s: %w", name, cerr)
		}
	}
	return nil
}

// HandleDriveOrderProgress applies a vehicle's report on the drive order at
// index. Reports for orders the vehicle no longer processes are dropped.
func (d *Dispatcher) HandleDriveOrderProgress(vehicle, name string, index int, state order.DriveOrderState) error {
	o, err := d.pool.TransportOrder(name)
	if err != nil {
		return err
	}
	if o.State() != order.StateBeingProcessed || o.ProcessingVehicle() != vehicle {
		log.Printf("dispatch: ignoring %s progress from %s on %s (%s)", state, vehicle, name, o.State())
		return nil
	}
	if index != o.CurrentDriveOrderIndex() {
		log.Printf("dispatch: stale progress from %s on %s: index %d, current %d", vehicle, name, index, o.CurrentDriveOrderIndex())
		return nil
	}
	cur := o.CurrentDriveOrder()
	if cur != nil && cur.State() == state {
		return nil
	}
	next, err := d.pool.UpdateCurrentDriveOrderState(name, state)
	if err != nil {
		return fmt.Errorf("update %s drive order %d: %w", name, index, err)
	}
	if next.State().IsFinal() {
		d.Trigger()
	}
	return nil
}

// HandleRejection records a vehicle declining an order.
func (d *Dispatcher) HandleRejection(vehicle, name, reason string) error {
	if _, err := d.pool.RecordRejection(name, vehicle, reason); err != nil {
		return fmt.Errorf("record rejection of %s by %s: %w", name, vehicle, err)
	}
	log.Printf("dispatch: %s rejected %s: %s", vehicle, name, reason)
	d.Trigger()
	return nil
}

// HandleWithdrawalConfirmed finishes a withdrawal once the vehicle has
// stopped working on the order.
func (d *Dispatcher) HandleWithdrawalConfirmed(vehicle, name string) error {
	o, err := d.pool.TransportOrder(name)
	if err != nil {
		return err
	}
	if o.State() != order.StateWithdrawn {
		return nil
	}
	if _, err := d.pool.ConfirmWithdrawal(name); err != nil {
		return fmt.Errorf("confirm withdrawal of %s by %s: %w", name, vehicle, err)
	}
	d.Trigger()
	return nil
}

// HandleOrderFinal runs the failure cascade when a member of a failure-fatal
// sequence fails. Every later member that is not final yet is failed and the
// sequence is completed. It is finished here only when no later member is
// still waiting for a withdrawal confirmation; otherwise the pool finishes it
// once the last of them fails.
func (d *Dispatcher) HandleOrderFinal(o *order.TransportOrder) {
	if o.State() != order.StateFailed || o.WrappingSequence() == "" {
		return
	}
	seq, err := d.pool.OrderSequence(o.WrappingSequence())
	if err != nil || !seq.IsFailureFatal() || seq.IsFinished() {
		return
	}
	members := seq.Orders()
	idx := seq.IndexOf(o.Name())
	if idx < 0 {
		return
	}
	log.Printf("dispatch: %s failed, failing the rest of sequence %s", o.Name(), seq.Name())
	for _, name := range members[idx+1:] {
		m, err := d.pool.TransportOrder(name)
		if err != nil || m.State().IsFinal() {
			continue
		}
		switch m.State() {
		case order.StateBeingProcessed:
			err = d.WithdrawOrder(name, true)
		case order.StateWithdrawn:
			// the vehicle's confirmation fails it
		default:
			_, err = d.pool.Fail(name)
		}
		if err != nil {
			log.Printf("dispatch: cascade %s: %v", name, err)
		}
	}
	if _, err := d.pool.CompleteSequence(seq.Name()); err != nil {
		log.Printf("dispatch: complete sequence %s: %v", seq.Name(), err)
		return
	}
	for _, name := range members[idx+1:] {
		if m, err := d.pool.TransportOrder(name); err == nil && !m.State().IsFinal() {
			log.Printf("dispatch: sequence %s waits for %s (%s)", seq.Name(), name, m.State())
			return
		}
	}
	cur, err := d.pool.OrderSequence(seq.Name())
	if err != nil || cur.IsFinished() {
		return
	}
	if _, err := d.pool.FinishSequence(seq.Name()); err != nil {
		log.Printf("dispatch: finish sequence %s: %v", seq.Name(), err)
	}
}

// sequenceFailed reports whether a failure-fatal sequence has a failed
// member, in which case its remaining members wait for the cascade.
func (d *Dispatcher) sequenceFailed(seq *order.OrderSequence) bool {
	if !seq.IsFailureFatal() {
		return false
	}
	for _, name := range seq.Orders() {
		if m, err := d.pool.TransportOrder(name); err == nil && m.State() == order.StateFailed {
			return true
		}
	}
	return false
}
