package orderstate

import (
	"context"
	"log"
	"sort"

	"fleetkernel/kernel"
	"fleetkernel/order"
)

// Source is the authoritative order pool the cache falls back to.
type Source interface {
	TransportOrder(name string) (*order.TransportOrder, error)
	TransportOrders(filter kernel.OrderFilter) []*order.TransportOrder
}

// Manager keeps the Redis mirror in step with the pool. Reads prefer Redis
// and fall back to the pool.
type Manager struct {
	pool  Source
	redis *RedisStore
}

func NewManager(pool Source, redis *RedisStore) *Manager {
	return &Manager{pool: pool, redis: redis}
}

// Refresh writes the current view of o.
func (m *Manager) Refresh(o *order.TransportOrder) {
	ctx := context.Background()
	var previous string
	if cached, err := m.redis.GetOrder(ctx, o.Name()); err == nil && cached != nil {
		previous = cached.ProcessingVehicle
	}
	if err := m.redis.PutOrder(ctx, fromOrder(o), previous); err != nil {
		log.Printf("orderstate: refresh %s: %v", o.Name(), err)
	}
}

// Remove drops a deleted order from the cache.
func (m *Manager) Remove(name string) {
	ctx := context.Background()
	var vehicle string
	if cached, err := m.redis.GetOrder(ctx, name); err == nil && cached != nil {
		vehicle = cached.ProcessingVehicle
	}
	if err := m.redis.RemoveOrder(ctx, name, vehicle); err != nil {
		log.Printf("orderstate: remove %s: %v", name, err)
	}
}

// GetOrderState reads an order from Redis, falling back to the pool.
func (m *Manager) GetOrderState(name string) (*OrderState, error) {
	st, err := m.redis.GetOrder(context.Background(), name)
	if err == nil && st != nil {
		return st, nil
	}
	o, err := m.pool.TransportOrder(name)
	if err != nil {
		return nil, err
	}
	return fromOrder(o), nil
}

// VehicleOrder returns the order a vehicle is processing, or "".
func (m *Manager) VehicleOrder(vehicle string) string {
	name, err := m.redis.VehicleOrder(context.Background(), vehicle)
	if err == nil {
		return name
	}
	for _, o := range m.pool.TransportOrders(kernel.InState(order.StateBeingProcessed, order.StateWithdrawn)) {
		if o.ProcessingVehicle() == vehicle {
			return o.Name()
		}
	}
	return ""
}

// ActiveOrders lists every non-final order, sorted by name.
func (m *Manager) ActiveOrders() ([]*OrderState, error) {
	ctx := context.Background()
	var out []*OrderState
	names, err := m.redis.ActiveOrderNames(ctx)
	if err == nil && len(names) > 0 {
		for _, name := range names {
			st, err := m.GetOrderState(name)
			if err == nil {
				out = append(out, st)
			}
		}
	} else {
		for _, o := range m.pool.TransportOrders(func(o *order.TransportOrder) bool { return !o.State().IsFinal() }) {
			out = append(out, fromOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// SyncFromPool rebuilds the cache from the pool. Called on startup.
func (m *Manager) SyncFromPool() error {
	ctx := context.Background()
	if err := m.redis.FlushAll(ctx); err != nil {
		return err
	}
	orders := m.pool.TransportOrders(nil)
	for _, o := range orders {
		if err := m.redis.PutOrder(ctx, fromOrder(o), ""); err != nil {
			log.Printf("orderstate: sync %s: %v", o.Name(), err)
		}
	}
	log.Printf("orderstate: synced %d orders to redis", len(orders))
	return nil
}
