package kernel

import (
	"fmt"

	"fleetkernel/order"
)

// CreateTransportOrder registers a new RAW order. Destinations and the
// intended vehicle are resolved against the plant model; dependencies and the
// wrapping sequence must already exist.
func (p *Pool) CreateTransportOrder(c TransportOrderCreation) (*order.TransportOrder, error) {
	if len(c.Destinations) == 0 {
		return nil, order.NewIllegalArgumentError("destinations", "transport order needs at least one destination")
	}
	dos := make([]*order.DriveOrder, 0, len(c.Destinations))
	for i, dc := range c.Destinations {
		ref, err := p.resolve(dc.LocationName)
		if err != nil {
			return nil, fmt.Errorf("destination %d: %w", i, err)
		}
		dest, err := order.NewDestination(ref, dc.Operation)
		if err != nil {
			return nil, fmt.Errorf("destination %d: %w", i, err)
		}
		dos = append(dos, order.NewDriveOrder(dest.WithProperties(dc.Properties)))
	}
	if c.IntendedVehicle != "" {
		if err := p.checkVehicle(c.IntendedVehicle); err != nil {
			return nil, err
		}
	}
	typ := c.Type
	if typ == "" {
		typ = order.TypeNone
	}

	var se *sequenceEntry
	var seq *order.OrderSequence
	if c.WrappingSequence != "" {
		if se = p.sequenceEntry(c.WrappingSequence); se == nil {
			return nil, order.NewUnknownObjectError(order.KindOrderSequence, c.WrappingSequence)
		}
		se.mu.Lock()
		if se.removed {
			se.mu.Unlock()
			return nil, order.NewUnknownObjectError(order.KindOrderSequence, c.WrappingSequence)
		}
		seq = se.cur.Load()
		if err := checkSequenceMember(seq, typ, c.IntendedVehicle); err != nil {
			se.mu.Unlock()
			return nil, err
		}
	}
	unlockSeq := func() {
		if se != nil {
			se.mu.Unlock()
		}
	}

	p.mu.Lock()
	name := c.Name
	if c.IncompleteName || name == "" {
		prefix := name
		if prefix == "" {
			prefix = "TOrder-"
		}
		name = uniqueName(prefix, func(n string) bool { _, ok := p.orders[n]; return ok })
	} else if _, ok := p.orders[name]; ok {
		p.mu.Unlock()
		unlockSeq()
		return nil, order.NewObjectExistsError(order.KindTransportOrder, name)
	}
	for _, d := range c.Dependencies {
		if _, ok := p.orders[d]; !ok {
			p.mu.Unlock()
			unlockSeq()
			return nil, order.NewUnknownObjectError(order.KindTransportOrder, d)
		}
	}

	o, err := order.NewTransportOrder(p.nextID.Add(1), name, dos)
	if err == nil {
		o, err = o.WithDependencies(c.Dependencies)
	}
	var nextSeq *order.OrderSequence
	if err == nil && seq != nil {
		nextSeq, err = seq.WithOrder(name)
	}
	if err != nil {
		p.mu.Unlock()
		unlockSeq()
		return nil, err
	}
	o = o.WithType(typ).
		WithIntendedVehicle(c.IntendedVehicle).
		WithWrappingSequence(c.WrappingSequence).
		WithDeadline(c.Deadline).
		WithDispensable(c.Dispensable).
		WithPeripheralReservationToken(c.PeripheralReservationToken).
		WithProperties(c.Properties).
		WithHistoryEntry(order.NewHistoryEntry(order.HistOrderCreated, ""))

	entry := &orderEntry{}
	entry.cur.Store(o)
	p.orders[name] = entry
	p.mu.Unlock()

	var b batch
	b.emit(func(e Emitter) { e.EmitOrderCreated(o) })
	if nextSeq != nil {
		se.cur.Store(nextSeq)
		b.sequenceChanged(nextSeq)
	}
	unlockSeq()
	p.flush(&b)
	p.logFn("kernel: created transport order %s (%d drive orders)", name, len(dos))
	return o, nil
}

func (p *Pool) resolve(name string) (order.Ref, error) {
	if p.resolver == nil {
		return order.Ref{Kind: order.KindLocation, Name: name}, nil
	}
	return p.resolver.Resolve(name)
}

func (p *Pool) checkVehicle(name string) error {
	if p.resolver == nil {
		return nil
	}
	ref, err := p.resolver.Resolve(name)
	if err != nil {
		return err
	}
	if ref.Kind != order.KindVehicle {
		return order.NewIllegalArgumentError("intendedVehicle", "%s is not a vehicle", ref)
	}
	return nil
}

// checkSequenceMember validates an order joining seq.
func checkSequenceMember(seq *order.OrderSequence, typ, intendedVehicle string) error {
	if seq.IsComplete() {
		return order.NewIllegalArgumentError("wrappingSequence", "sequence %q is complete", seq.Name())
	}
	if seq.Type() != order.TypeNone && seq.Type() != typ {
		return order.NewIllegalArgumentError("type", "sequence %q has type %q, order has %q", seq.Name(), seq.Type(), typ)
	}
	if seq.IntendedVehicle() != "" && intendedVehicle != "" && seq.IntendedVehicle() != intendedVehicle {
		return order.NewIllegalArgumentError("intendedVehicle", "sequence %q is intended for %q", seq.Name(), seq.IntendedVehicle())
	}
	return nil
}

// dependencyStatus reports whether every dependency of o is final, and which
// dependencies do not exist.
func (p *Pool) dependencyStatus(o *order.TransportOrder) (satisfied bool, missing []string) {
	satisfied = true
	for _, d := range o.Dependencies() {
		e := p.orderEntry(d)
		if e == nil {
			missing = append(missing, d)
			satisfied = false
			continue
		}
		if !e.cur.Load().State().IsFinal() {
			satisfied = false
		}
	}
	return satisfied, missing
}

// ActivateTransportOrder moves a RAW order to ACTIVE and, if all of its
// dependencies are final, straight on to DISPATCHABLE. Otherwise the order
// waits for its dependencies.
func (p *Pool) ActivateTransportOrder(name string) (*order.TransportOrder, error) {
	oe := p.orderEntry(name)
	if oe == nil {
		return nil, order.NewUnknownObjectError(order.KindTransportOrder, name)
	}
	p.watcher.register(name, oe.cur.Load().Dependencies())

	var missing []string
	o, err := p.mutateOrder(name, func(o *order.TransportOrder, _ *order.OrderSequence) (*order.TransportOrder, *order.OrderSequence, error) {
		active, err := o.WithState(order.StateActive)
		if err != nil {
			return nil, nil, err
		}
		var ok bool
		ok, missing = p.dependencyStatus(active)
		if !ok {
			return active, nil, nil
		}
		next, err := active.WithState(order.StateDispatchable)
		return next, nil, err
	})
	if err != nil {
		if cur, _ := p.TransportOrder(name); cur == nil || cur.State() != order.StateActive {
			p.watcher.forget(name)
		}
		return nil, err
	}
	if o.State() != order.StateActive {
		p.watcher.forget(name)
	}
	for _, d := range missing {
		p.logFn("kernel: order %s depends on unknown order %s", name, d)
		p.emitter.EmitDependencyUnresolved(name, d)
	}
	return o, nil
}

// recheckDependencies promotes an ACTIVE order whose dependencies have all
// become final. Repeated calls are harmless.
func (p *Pool) recheckDependencies(name string) {
	o, err := p.mutateOrder(name, func(o *order.TransportOrder, _ *order.OrderSequence) (*order.TransportOrder, *order.OrderSequence, error) {
		if o.State() != order.StateActive {
			return o, nil, nil
		}
		if ok, _ := p.dependencyStatus(o); !ok {
			return o, nil, nil
		}
		next, err := o.WithState(order.StateDispatchable)
		return next, nil, err
	})
	if err != nil {
		p.logFn("kernel: recheck dependencies of %s: %v", name, err)
		return
	}
	// RAW orders register before activation locks them.
	if st := o.State(); st != order.StateActive && st != order.StateRaw {
		p.watcher.forget(name)
	}
}

// UpdateTransportOrderState applies a plain lifecycle transition. ACTIVE to
// DISPATCHABLE is refused while dependencies are pending.
func (p *Pool) UpdateTransportOrderState(name string, s order.State) (*order.TransportOrder, error) {
	if s == order.StateActive {
		return p.ActivateTransportOrder(name)
	}
	o, err := p.mutateOrder(name, func(o *order.TransportOrder, _ *order.OrderSequence) (*order.TransportOrder, *order.OrderSequence, error) {
		if s == order.StateDispatchable && o.State() == order.StateActive {
			if ok, _ := p.dependencyStatus(o); !ok {
				return nil, nil, &order.IllegalTransitionError{Object: "transport order " + name, From: string(o.State()), To: string(s), Reason: "dependencies pending"}
			}
		}
		next, err := o.WithState(s)
		return next, nil, err
	})
	if err == nil && o.State() != order.StateActive {
		p.watcher.forget(name)
	}
	return o, err
}

// AssignVehicle claims a DISPATCHABLE order for vehicle. A sequence member
// must be its sequence's next unfinished order; the first assignment of a
// sequence without an intended vehicle pins the vehicle for the remaining
// members.
func (p *Pool) AssignVehicle(name, vehicle string) (*order.TransportOrder, error) {
	return p.mutateOrder(name, func(o *order.TransportOrder, seq *order.OrderSequence) (*order.TransportOrder, *order.OrderSequence, error) {
		if seq != nil {
			if next := seq.NextUnfinishedOrder(); next != name {
				return nil, nil, order.NewIllegalArgumentError("order", "%q is not next in sequence %q (next is %q)", name, seq.Name(), next)
			}
			if pinned := SequenceVehicle(seq); pinned != "" && pinned != vehicle {
				return nil, nil, order.NewIllegalArgumentError("vehicle", "sequence %q is bound to %q", seq.Name(), pinned)
			}
		}
		next, err := o.WithAssignment(vehicle)
		if err != nil {
			return nil, nil, err
		}
		if seq != nil {
			seq = seq.WithProcessingVehicle(vehicle)
		}
		return next, seq, nil
	})
}

// SequenceVehicle is the vehicle a sequence is bound to, if any.
func SequenceVehicle(seq *order.OrderSequence) string {
	if seq.IntendedVehicle() != "" {
		return seq.IntendedVehicle()
	}
	return seq.ProcessingVehicle()
}

// SetRoutes attaches one route per drive order. A nil entry keeps the drive
// order's current route.
func (p *Pool) SetRoutes(name string, routes []*order.Route) (*order.TransportOrder, error) {
	return p.mutateOrder(name, func(o *order.TransportOrder, _ *order.OrderSequence) (*order.TransportOrder, *order.OrderSequence, error) {
		dos := o.AllDriveOrders()
		if len(routes) != len(dos) {
			return nil, nil, order.NewIllegalArgumentError("routes", "expected %d routes, got %d", len(dos), len(routes))
		}
		for i, r := range routes {
			if r == nil {
				continue
			}
			d, err := dos[i].WithRoute(r)
			if err != nil {
				return nil, nil, err
			}
			dos[i] = d
		}
		next, err := o.WithDriveOrders(dos)
		return next, nil, err
	})
}

// UpdateCurrentDriveOrderState folds a vehicle's progress report into the
// order and, through it, into the order's sequence.
func (p *Pool) UpdateCurrentDriveOrderState(name string, s order.DriveOrderState) (*order.TransportOrder, error) {
	return p.mutateOrder(name, func(o *order.TransportOrder, _ *order.OrderSequence) (*order.TransportOrder, *order.OrderSequence, error) {
		next, err := o.WithCurrentDriveOrderState(s)
		return next, nil, err
	})
}

// RecordRejection logs a vehicle declining the order. An order the vehicle
// has not started yet goes back to DISPATCHABLE.
func (p *Pool) RecordRejection(name, vehicle, reason string) (*order.TransportOrder, error) {
	r := order.NewRejection(vehicle, reason)
	return p.mutateOrder(name, func(o *order.TransportOrder, _ *order.OrderSequence) (*order.TransportOrder, *order.OrderSequence, error) {
		if o.State() == order.StateBeingProcessed && o.ProcessingVehicle() == vehicle {
			next, err := o.WithRejectionRequeue(r)
			return next, nil, err
		}
		if o.State().IsFinal() {
			return nil, nil, &order.IllegalTransitionError{Object: "transport order " + name, From: string(o.State()), To: string(o.State()), Reason: "rejection of a final order"}
		}
		return o.WithRejection(r), nil, nil
	})
}

// Withdraw marks the order WITHDRAWN. The order stays there until the vehicle
// confirms with ConfirmWithdrawal.
func (p *Pool) Withdraw(name string) (*order.TransportOrder, error) {
	o, err := p.mutateOrder(name, func(o *order.TransportOrder, _ *order.OrderSequence) (*order.TransportOrder, *order.OrderSequence, error) {
		next, err := o.WithState(order.StateWithdrawn)
		return next, nil, err
	})
	if err == nil {
		p.watcher.forget(name)
	}
	return o, err
}

// ConfirmWithdrawal finalizes a WITHDRAWN order as FAILED.
func (p *Pool) ConfirmWithdrawal(name string) (*order.TransportOrder, error) {
	return p.mutateOrder(name, func(o *order.TransportOrder, _ *order.OrderSequence) (*order.TransportOrder, *order.OrderSequence, error) {
		if o.State() != order.StateWithdrawn {
			return nil, nil, &order.IllegalTransitionError{Object: "transport order " + name, From: string(o.State()), To: string(order.StateFailed), Reason: "not withdrawn"}
		}
		next, err := o.WithState(order.StateFailed)
		return next, nil, err
	})
}

func (p *Pool) MarkUnroutable(name string) (*order.TransportOrder, error) {
	return p.finalize(name, order.StateUnroutable)
}

func (p *Pool) Fail(name string) (*order.TransportOrder, error) {
	return p.finalize(name, order.StateFailed)
}

func (p *Pool) finalize(name string, s order.State) (*order.TransportOrder, error) {
	o, err := p.mutateOrder(name, func(o *order.TransportOrder, _ *order.OrderSequence) (*order.TransportOrder, *order.OrderSequence, error) {
		next, err := o.WithState(s)
		return next, nil, err
	})
	if err == nil {
		p.watcher.forget(name)
		p.logFn("kernel: order %s is %s", name, s)
	}
	return o, err
}

// DeleteTransportOrder removes a final order. A sequence that contains it
// loses the member reference and is otherwise untouched.
func (p *Pool) DeleteTransportOrder(name string) error {
	oe := p.orderEntry(name)
	if oe == nil {
		return order.NewUnknownObjectError(order.KindTransportOrder, name)
	}
	var se *sequenceEntry
	if seqName := oe.cur.Load().WrappingSequence(); seqName != "" {
		se = p.sequenceEntry(seqName)
	}

	oe.mu.Lock()
	if oe.removed {
		oe.mu.Unlock()
		return order.NewUnknownObjectError(order.KindTransportOrder, name)
	}
	cur := oe.cur.Load()
	if !cur.State().IsFinal() {
		oe.mu.Unlock()
		return order.NewIllegalArgumentError("order", "%q is %s, only final orders can be removed", name, cur.State())
	}
	oe.removed = true

	var b batch
	if se != nil && cur.WrappingSequence() != "" {
		se.mu.Lock()
		if !se.removed {
			next := se.cur.Load().RemoveOrder(name)
			se.cur.Store(next)
			b.sequenceChanged(next)
		}
		se.mu.Unlock()
	}
	p.mu.Lock()
	delete(p.orders, name)
	p.mu.Unlock()
	oe.mu.Unlock()

	p.watcher.forget(name)
	b.emit(func(e Emitter) { e.EmitOrderRemoved(name) })
	p.flush(&b)
	return nil
}
