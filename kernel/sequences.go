package kernel

import (
	"fleetkernel/order"
)

// CreateOrderSequence registers a new, empty sequence.
func (p *Pool) CreateOrderSequence(c OrderSequenceCreation) (*order.OrderSequence, error) {
	if c.IntendedVehicle != "" {
		if err := p.checkVehicle(c.IntendedVehicle); err != nil {
			return nil, err
		}
	}
	p.mu.Lock()
	name := c.Name
	if c.IncompleteName || name == "" {
		prefix := name
		if prefix == "" {
			prefix = "OrderSeq-"
		}
		name = uniqueName(prefix, func(n string) bool { _, ok := p.sequences[n]; return ok })
	} else if _, ok := p.sequences[name]; ok {
		p.mu.Unlock()
		return nil, order.NewObjectExistsError(order.KindOrderSequence, name)
	}
	s, err := order.NewOrderSequence(p.nextID.Add(1), name)
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	s = s.WithType(c.Type).
		WithIntendedVehicle(c.IntendedVehicle).
		WithFailureFatal(c.FailureFatal).
		WithProperties(c.Properties).
		WithHistoryEntry(order.NewHistoryEntry(order.HistSequenceCreated, ""))
	entry := &sequenceEntry{}
	entry.cur.Store(s)
	p.sequences[name] = entry
	p.mu.Unlock()

	var b batch
	b.sequenceChanged(s)
	p.flush(&b)
	p.logFn("kernel: created order sequence %s", name)
	return s, nil
}

// AppendToSequence makes an existing order without a sequence the last member
// of the named sequence.
func (p *Pool) AppendToSequence(seqName, orderName string) (*order.OrderSequence, error) {
	oe := p.orderEntry(orderName)
	if oe == nil {
		return nil, order.NewUnknownObjectError(order.KindTransportOrder, orderName)
	}
	se := p.sequenceEntry(seqName)
	if se == nil {
		return nil, order.NewUnknownObjectError(order.KindOrderSequence, seqName)
	}

	oe.mu.Lock()
	se.mu.Lock()
	unlock := func() {
		se.mu.Unlock()
		oe.mu.Unlock()
	}
	if oe.removed {
		unlock()
		return nil, order.NewUnknownObjectError(order.KindTransportOrder, orderName)
	}
	if se.removed {
		unlock()
		return nil, order.NewUnknownObjectError(order.KindOrderSequence, seqName)
	}
	o := oe.cur.Load()
	seq := se.cur.Load()
	if o.WrappingSequence() != "" {
		unlock()
		return nil, order.NewIllegalArgumentError("order", "%q already belongs to sequence %q", orderName, o.WrappingSequence())
	}
	if o.State() != order.StateRaw {
		unlock()
		return nil, order.NewIllegalArgumentError("order", "%q is %s, only raw orders can join a sequence", orderName, o.State())
	}
	if err := checkSequenceMember(seq, o.Type(), o.IntendedVehicle()); err != nil {
		unlock()
		return nil, err
	}
	nextSeq, err := seq.WithOrder(orderName)
	if err != nil {
		unlock()
		return nil, err
	}
	nextOrder := o.WithWrappingSequence(seqName)
	oe.cur.Store(nextOrder)
	se.cur.Store(nextSeq)

	var b batch
	b.orderChanged(o, nextOrder)
	b.sequenceChanged(nextSeq)
	unlock()
	p.flush(&b)
	return nextSeq, nil
}

// CompleteSequence seals the sequence. If every member is already final the
// sequence is finished as well.
func (p *Pool) CompleteSequence(name string) (*order.OrderSequence, error) {
	return p.mutateSequence(name, func(s *order.OrderSequence) (*order.OrderSequence, error) {
		s = s.WithComplete()
		if s.AllMembersPassed() {
			return s.WithFinished()
		}
		return s, nil
	})
}

// FinishSequence marks a complete sequence finished regardless of its
// members, as the last step of a failure cascade.
func (p *Pool) FinishSequence(name string) (*order.OrderSequence, error) {
	return p.mutateSequence(name, func(s *order.OrderSequence) (*order.OrderSequence, error) {
		return s.WithFinished()
	})
}

// SetSequenceFailureFatal toggles whether a failed member fails the rest of
// the sequence.
func (p *Pool) SetSequenceFailureFatal(name string, fatal bool) (*order.OrderSequence, error) {
	return p.mutateSequence(name, func(s *order.OrderSequence) (*order.OrderSequence, error) {
		if s.IsFailureFatal() == fatal {
			return s, nil
		}
		return s.WithFailureFatal(fatal), nil
	})
}

// DeleteOrderSequence removes the sequence. Member orders survive with their
// back-reference cleared.
func (p *Pool) DeleteOrderSequence(name string) error {
	se := p.sequenceEntry(name)
	if se == nil {
		return order.NewUnknownObjectError(order.KindOrderSequence, name)
	}
	se.mu.Lock()
	if se.removed {
		se.mu.Unlock()
		return order.NewUnknownObjectError(order.KindOrderSequence, name)
	}
	se.removed = true
	members := se.cur.Load().Orders()
	p.mu.Lock()
	delete(p.sequences, name)
	p.mu.Unlock()
	se.mu.Unlock()

	var b batch
	for _, m := range members {
		oe := p.orderEntry(m)
		if oe == nil {
			continue
		}
		oe.mu.Lock()
		if cur := oe.cur.Load(); !oe.removed && cur.WrappingSequence() == name {
			next := cur.WithWrappingSequence("")
			oe.cur.Store(next)
			b.orderChanged(cur, next)
		}
		oe.mu.Unlock()
	}
	b.emit(func(e Emitter) { e.EmitSequenceRemoved(name) })
	p.flush(&b)
	return nil
}
