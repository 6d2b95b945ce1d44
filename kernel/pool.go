// Package kernel is the authoritative registry of transport orders and order
// sequences. It stores immutable values behind per-object locks and applies
// every cross-entity rule: dependency gating, sequence bookkeeping and
// vehicle pinning.
//
// Lock order: a transport order's lock before its sequence's lock, and any
// object lock before the registry lock. The registry lock is never held while
// waiting for an object lock.
package kernel

import (
	"log"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"fleetkernel/order"
)

type orderEntry struct {
	mu      sync.Mutex
	cur     atomic.Pointer[order.TransportOrder]
	removed bool // guarded by mu
}

type sequenceEntry struct {
	mu      sync.Mutex
	cur     atomic.Pointer[order.OrderSequence]
	removed bool // guarded by mu
}

// Pool is the copy-on-write object registry. Readers never block writers;
// writers lock only the objects they touch.
type Pool struct {
	mu        sync.RWMutex
	orders    map[string]*orderEntry
	sequences map[string]*sequenceEntry

	nextID   atomic.Int64
	resolver Resolver
	emitter  Emitter
	watcher  *dependencyWatcher
	logFn    LogFunc
}

func NewPool(resolver Resolver, emitter Emitter) *Pool {
	if emitter == nil {
		emitter = noopEmitter{}
	}
	return &Pool{
		orders:    make(map[string]*orderEntry),
		sequences: make(map[string]*sequenceEntry),
		resolver:  resolver,
		emitter:   emitter,
		watcher:   newDependencyWatcher(),
		logFn:     log.Printf,
	}
}

// SetEmitter replaces the emitter. Call before the pool is shared.
func (p *Pool) SetEmitter(e Emitter) {
	if e == nil {
		e = noopEmitter{}
	}
	p.emitter = e
}

// SetLogFunc replaces the log hook. Call before the pool is shared.
func (p *Pool) SetLogFunc(fn LogFunc) {
	if fn != nil {
		p.logFn = fn
	}
}

func (p *Pool) orderEntry(name string) *orderEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.orders[name]
}

func (p *Pool) sequenceEntry(name string) *sequenceEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sequences[name]
}

// batch collects the notifications of one mutation. They go out after every
// lock of the mutation has been released.
type batch struct {
	events []func(Emitter)
	finals []string
}

func (b *batch) emit(fn func(Emitter)) {
	b.events = append(b.events, fn)
}

func (b *batch) orderChanged(old, cur *order.TransportOrder) {
	b.emit(func(e Emitter) { e.EmitOrderUpdated(cur) })
	if old.State() != cur.State() {
		oldState := old.State()
		b.emit(func(e Emitter) { e.EmitOrderStateChanged(cur, oldState) })
		if cur.State() == order.StateDispatchable {
			b.emit(func(e Emitter) { e.EmitOrderDispatchable(cur) })
		}
		if cur.State().IsFinal() {
			b.emit(func(e Emitter) { e.EmitOrderFinal(cur) })
			b.finals = append(b.finals, cur.Name())
		}
	}
	if old.ProcessingVehicle() != cur.ProcessingVehicle() {
		oldVehicle := old.ProcessingVehicle()
		b.emit(func(e Emitter) { e.EmitOrderProcessingVehicleChanged(cur, oldVehicle) })
	}
}

func (b *batch) sequenceChanged(s *order.OrderSequence) {
	b.emit(func(e Emitter) { e.EmitSequenceUpdated(s) })
}

func (p *Pool) flush(b *batch) {
	for _, fn := range b.events {
		fn(p.emitter)
	}
	for _, name := range b.finals {
		for _, waiter := range p.watcher.release(name) {
			p.recheckDependencies(waiter)
		}
	}
}

// orderMutation derives the next value of an order. seq is the order's
// wrapping sequence, nil if it has none; a non-nil returned sequence replaces
// it.
type orderMutation func(o *order.TransportOrder, seq *order.OrderSequence) (*order.TransportOrder, *order.OrderSequence, error)

// mutateOrder applies fn to the named order as one serialized step under the
// order's lock and its sequence's lock. When the order reaches a final state
// the sequence's finished index and finished flag follow in the same step.
func (p *Pool) mutateOrder(name string, fn orderMutation) (*order.TransportOrder, error) {
	oe := p.orderEntry(name)
	if oe == nil {
		return nil, order.NewUnknownObjectError(order.KindTransportOrder, name)
	}
	var se *sequenceEntry
	if seqName := oe.cur.Load().WrappingSequence(); seqName != "" {
		se = p.sequenceEntry(seqName)
	}

	oe.mu.Lock()
	if oe.removed {
		oe.mu.Unlock()
		return nil, order.NewUnknownObjectError(order.KindTransportOrder, name)
	}
	cur := oe.cur.Load()
	if se != nil && cur.WrappingSequence() == "" {
		se = nil
	}
	var seq *order.OrderSequence
	if se != nil {
		se.mu.Lock()
		if se.removed {
			se.mu.Unlock()
			se = nil
		} else {
			seq = se.cur.Load()
		}
	}
	unlock := func() {
		if se != nil {
			se.mu.Unlock()
		}
		oe.mu.Unlock()
	}

	next, nextSeq, err := fn(cur, seq)
	if err != nil {
		unlock()
		return nil, err
	}
	if seq == nil {
		nextSeq = nil
	} else if nextSeq == nil {
		nextSeq = seq
	}
	if nextSeq != nil && next.State().IsFinal() && !cur.State().IsFinal() {
		if nextSeq, err = p.advanceSequence(nextSeq, next); err != nil {
			unlock()
			return nil, err
		}
	}

	var b batch
	if next != cur {
		oe.cur.Store(next)
		b.orderChanged(cur, next)
	}
	if nextSeq != nil && nextSeq != seq {
		se.cur.Store(nextSeq)
		b.sequenceChanged(nextSeq)
	}
	unlock()
	p.flush(&b)
	return next, nil
}

// advanceSequence moves the finished index over every leading member that is
// in a final state and finishes a complete sequence once its last member is
// passed. changed is the new value of a member not yet visible in the pool.
func (p *Pool) advanceSequence(seq *order.OrderSequence, changed *order.TransportOrder) (*order.OrderSequence, error) {
	members := seq.Orders()
	idx := seq.FinishedIndex()
	for idx+1 < len(members) {
		m := members[idx+1]
		var st order.State
		if m == changed.Name() {
			st = changed.State()
		} else if e := p.orderEntry(m); e != nil {
			st = e.cur.Load().State()
		} else {
			idx++
			continue
		}
		if !st.IsFinal() {
			break
		}
		idx++
	}
	var err error
	if idx != seq.FinishedIndex() {
		if seq, err = seq.WithFinishedIndex(idx); err != nil {
			return nil, err
		}
	}
	if seq.IsComplete() && seq.AllMembersPassed() {
		return seq.WithFinished()
	}
	return seq, nil
}

// mutateSequence applies fn to the named sequence under its lock.
func (p *Pool) mutateSequence(name string, fn func(*order.OrderSequence) (*order.OrderSequence, error)) (*order.OrderSequence, error) {
	se := p.sequenceEntry(name)
	if se == nil {
		return nil, order.NewUnknownObjectError(order.KindOrderSequence, name)
	}
	se.mu.Lock()
	if se.removed {
		se.mu.Unlock()
		return nil, order.NewUnknownObjectError(order.KindOrderSequence, name)
	}
	cur := se.cur.Load()
	next, err := fn(cur)
	if err != nil {
		se.mu.Unlock()
		return nil, err
	}
	var b batch
	if next != cur {
		se.cur.Store(next)
		b.sequenceChanged(next)
	}
	se.mu.Unlock()
	p.flush(&b)
	return next, nil
}

// uniqueName appends a random suffix to prefix until the name is free.
// Callers hold the registry lock.
func uniqueName(prefix string, taken func(string) bool) string {
	for {
		n := prefix + strings.ToUpper(uuid.NewString()[:8])
		if !taken(n) {
			return n
		}
	}
}

// TransportOrder returns the current value of the named order.
func (p *Pool) TransportOrder(name string) (*order.TransportOrder, error) {
	oe := p.orderEntry(name)
	if oe == nil {
		return nil, order.NewUnknownObjectError(order.KindTransportOrder, name)
	}
	return oe.cur.Load(), nil
}

// TransportOrders returns the orders matching filter, by id.
func (p *Pool) TransportOrders(filter OrderFilter) []*order.TransportOrder {
	p.mu.RLock()
	out := make([]*order.TransportOrder, 0, len(p.orders))
	for _, e := range p.orders {
		o := e.cur.Load()
		if filter == nil || filter(o) {
			out = append(out, o)
		}
	}
	p.mu.RUnlock()
	slices.SortFunc(out, func(a, b *order.TransportOrder) int { return compareID(a.ID(), b.ID()) })
	return out
}

func (p *Pool) OrderSequence(name string) (*order.OrderSequence, error) {
	se := p.sequenceEntry(name)
	if se == nil {
		return nil, order.NewUnknownObjectError(order.KindOrderSequence, name)
	}
	return se.cur.Load(), nil
}

func (p *Pool) OrderSequences() []*order.OrderSequence {
	p.mu.RLock()
	out := make([]*order.OrderSequence, 0, len(p.sequences))
	for _, e := range p.sequences {
		out = append(out, e.cur.Load())
	}
	p.mu.RUnlock()
	slices.SortFunc(out, func(a, b *order.OrderSequence) int { return compareID(a.ID(), b.ID()) })
	return out
}

func compareID(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
