package kernel

import (
	"fmt"

	"fleetkernel/order"
)

// Restore loads previously persisted objects into an empty pool. No events
// are emitted for restored objects. ACTIVE orders resume waiting on their
// dependencies.
func (p *Pool) Restore(orders []*order.TransportOrder, sequences []*order.OrderSequence) error {
	p.mu.Lock()
	if len(p.orders) > 0 || len(p.sequences) > 0 {
		p.mu.Unlock()
		return fmt.Errorf("restore into non-empty pool")
	}
	var maxID int64
	for _, s := range sequences {
		if _, ok := p.sequences[s.Name()]; ok {
			p.mu.Unlock()
			return order.NewObjectExistsError(order.KindOrderSequence, s.Name())
		}
		e := &sequenceEntry{}
		e.cur.Store(s)
		p.sequences[s.Name()] = e
		maxID = max(maxID, s.ID())
	}
	var active []*order.TransportOrder
	for _, o := range orders {
		if _, ok := p.orders[o.Name()]; ok {
			p.mu.Unlock()
			return order.NewObjectExistsError(order.KindTransportOrder, o.Name())
		}
		e := &orderEntry{}
		e.cur.Store(o)
		p.orders[o.Name()] = e
		maxID = max(maxID, o.ID())
		if o.State() == order.StateActive {
			active = append(active, o)
		}
	}
	p.nextID.Store(maxID)
	p.mu.Unlock()

	for _, o := range active {
		p.watcher.register(o.Name(), o.Dependencies())
		p.recheckDependencies(o.Name())
	}
	p.logFn("kernel: restored %d orders, %d sequences", len(orders), len(sequences))
	return nil
}
