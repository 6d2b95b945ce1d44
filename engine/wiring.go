package engine

import (
	"fmt"

	"fleetkernel/store"
)

func (e *Engine) wireEventHandlers() {
	// Every order change is persisted and mirrored to the cache
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(OrderEvent)
		if evt.Type == EventOrderCreated {
			e.metrics.ordersCreated.Inc()
			e.db.AppendAudit(store.AuditOrder, ev.Order.Name(), "created", "", string(ev.Order.State()), "kernel")
		}
		e.persistOrder(ev.Order.Name())
	}, EventOrderCreated, EventOrderUpdated)

	// State changes: audit, metrics and a client notification
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(OrderStateChangedEvent)
		o := ev.Order
		e.metrics.transitions.WithLabelValues(string(o.State())).Inc()
		e.db.AppendAudit(store.AuditOrder, o.Name(), "state", string(ev.OldState), string(o.State()), "kernel")
		e.handler.PublishOrderUpdate(o, ev.OldState, "")
	}, EventOrderStateChanged)

	// New work for the dispatcher
	e.Events.SubscribeTypes(func(evt Event) {
		e.dispatcher.Trigger()
	}, EventOrderDispatchable)

	// Final orders release their vehicle and may fail the rest of a sequence
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(OrderEvent)
		e.metrics.ordersFinal.WithLabelValues(string(ev.Order.State())).Inc()
		e.logFn("engine: order %s reached %s", ev.Order.Name(), ev.Order.State())
		e.dispatcher.HandleOrderFinal(ev.Order)
		e.dispatcher.Trigger()
	}, EventOrderFinal)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(OrderVehicleChangedEvent)
		e.db.AppendAudit(store.AuditOrder, ev.Order.Name(), "vehicle", ev.OldVehicle, ev.Order.ProcessingVehicle(), "kernel")
	}, EventOrderVehicleChanged)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(OrderRemovedEvent)
		e.persistMu.Lock()
		defer e.persistMu.Unlock()
		if err := e.db.DeleteTransportOrder(ev.Name); err != nil {
			e.logFn("engine: delete order %s: %v", ev.Name, err)
		}
		if e.orderState != nil {
			e.orderState.Remove(ev.Name)
		}
		e.db.AppendAudit(store.AuditOrder, ev.Name, "removed", "", "", "kernel")
	}, EventOrderRemoved)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(SequenceEvent)
		e.persistSequence(ev.Sequence.Name())
	}, EventSequenceUpdated)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(SequenceRemovedEvent)
		e.persistMu.Lock()
		defer e.persistMu.Unlock()
		if err := e.db.DeleteOrderSequence(ev.Name); err != nil {
			e.logFn("engine: delete sequence %s: %v", ev.Name, err)
		}
		e.db.AppendAudit(store.AuditSequence, ev.Name, "removed", "", "", "kernel")
	}, EventSequenceRemoved)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(DependencyUnresolvedEvent)
		e.logFn("engine: order %s waits on unknown dependency %s", ev.OrderName, ev.Dependency)
	}, EventDependencyUnresolved)

	// Dispatch outcomes: audit and metrics
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(OrderAssignedEvent)
		e.metrics.assignments.Inc()
		e.db.AppendAudit(store.AuditOrder, ev.Order.Name(), "assigned", "", ev.Vehicle, "dispatcher")
	}, EventOrderAssigned)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(OrderUnroutableEvent)
		e.db.AppendAudit(store.AuditOrder, ev.OrderName, "unroutable", "", ev.Detail, "dispatcher")
	}, EventOrderUnroutable)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(WithdrawalRequestedEvent)
		e.db.AppendAudit(store.AuditOrder, ev.OrderName, "withdraw", ev.Vehicle, fmt.Sprintf("immediate=%t", ev.Immediate), "dispatcher")
	}, EventWithdrawalRequested)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(DispatchFailedEvent)
		e.metrics.dispatchFailures.Inc()
		e.logFn("engine: assign %s to %s failed: %s", ev.OrderName, ev.Vehicle, ev.Detail)
		e.db.AppendAudit(store.AuditOrder, ev.OrderName, "dispatch_failed", ev.Vehicle, ev.Detail, "dispatcher")
	}, EventDispatchFailed)

	// Vehicle reports feed back into the kernel through the dispatcher
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(DriveOrderProgressEvent)
		if err := e.dispatcher.HandleDriveOrderProgress(ev.Vehicle, ev.OrderName, ev.Index, ev.State); err != nil {
			e.logFn("engine: progress from %s for %s: %v", ev.Vehicle, ev.OrderName, err)
		}
	}, EventDriveOrderProgress)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(OrderRejectedEvent)
		e.metrics.rejections.Inc()
		if err := e.dispatcher.HandleRejection(ev.Vehicle, ev.OrderName, ev.Reason); err != nil {
			e.logFn("engine: rejection from %s for %s: %v", ev.Vehicle, ev.OrderName, err)
		}
	}, EventOrderRejected)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(WithdrawalConfirmedEvent)
		if err := e.dispatcher.HandleWithdrawalConfirmed(ev.Vehicle, ev.OrderName); err != nil {
			e.logFn("engine: withdrawal confirmation from %s for %s: %v", ev.Vehicle, ev.OrderName, err)
		}
	}, EventWithdrawalConfirmed)

	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(VehicleStatusEvent)
		e.metrics.vehicleEnergy.WithLabelValues(ev.Status.Name).Set(ev.Status.EnergyLevel)
		if ev.Status.Idle() {
			e.dispatcher.Trigger()
		}
	}, EventVehicleStatusChanged)

	// Connectivity
	e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(ConnectionEvent)
		e.logFn("engine: %s: %s", evt.Type, ev.Detail)
		if evt.Type == EventFleetConnected {
			e.dispatcher.Trigger()
		}
	}, EventFleetConnected, EventFleetDisconnected, EventMessagingConnected, EventMessagingDisconnected)
}

// persistOrder saves the pool's current value of the order, which may be
// newer than the event that triggered the save.
func (e *Engine) persistOrder(name string) {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()
	o, err := e.pool.TransportOrder(name)
	if err != nil {
		return
	}
	if err := e.db.SaveTransportOrder(o); err != nil {
		e.logFn("engine: save order %s: %v", name, err)
	}
	if e.orderState != nil {
		e.orderState.Refresh(o)
	}
}

func (e *Engine) persistSequence(name string) {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()
	s, err := e.pool.OrderSequence(name)
	if err != nil {
		return
	}
	if err := e.db.SaveOrderSequence(s); err != nil {
		e.logFn("engine: save sequence %s: %v", name, err)
	}
}
