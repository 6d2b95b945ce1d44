package engine

import (
	"fleetkernel/fleet"
	"fleetkernel/order"
)

// kernelEmitter bridges the kernel pool's emitter interface to the EventBus.
type kernelEmitter struct {
	bus *EventBus
}

func (e *kernelEmitter) EmitOrderCreated(o *order.TransportOrder) {
	e.bus.Emit(Event{Type: EventOrderCreated, Payload: OrderEvent{Order: o}})
}

func (e *kernelEmitter) EmitOrderStateChanged(o *order.TransportOrder, oldState order.State) {
	e.bus.Emit(Event{Type: EventOrderStateChanged, Payload: OrderStateChangedEvent{Order: o, OldState: oldState}})
}

func (e *kernelEmitter) EmitOrderDispatchable(o *order.TransportOrder) {
	e.bus.Emit(Event{Type: EventOrderDispatchable, Payload: OrderEvent{Order: o}})
}

func (e *kernelEmitter) EmitOrderFinal(o *order.TransportOrder) {
	e.bus.Emit(Event{Type: EventOrderFinal, Payload: OrderEvent{Order: o}})
}

func (e *kernelEmitter) EmitOrderProcessingVehicleChanged(o *order.TransportOrder, oldVehicle string) {
	e.bus.Emit(Event{Type: EventOrderVehicleChanged, Payload: OrderVehicleChangedEvent{Order: o, OldVehicle: oldVehicle}})
}

func (e *kernelEmitter) EmitOrderUpdated(o *order.TransportOrder) {
	e.bus.Emit(Event{Type: EventOrderUpdated, Payload: OrderEvent{Order: o}})
}

func (e *kernelEmitter) EmitOrderRemoved(name string) {
	e.bus.Emit(Event{Type: EventOrderRemoved, Payload: OrderRemovedEvent{Name: name}})
}

func (e *kernelEmitter) EmitSequenceUpdated(s *order.OrderSequence) {
	e.bus.Emit(Event{Type: EventSequenceUpdated, Payload: SequenceEvent{Sequence: s}})
}

func (e *kernelEmitter) EmitSequenceRemoved(name string) {
	e.bus.Emit(Event{Type: EventSequenceRemoved, Payload: SequenceRemovedEvent{Name: name}})
}

func (e *kernelEmitter) EmitDependencyUnresolved(orderName, dependency string) {
	e.bus.Emit(Event{Type: EventDependencyUnresolved, Payload: DependencyUnresolvedEvent{OrderName: orderName, Dependency: dependency}})
}

// dispatchEmitter bridges the dispatch package's emitter interface to the EventBus.
type dispatchEmitter struct {
	bus *EventBus
}

func (e *dispatchEmitter) EmitOrderAssigned(o *order.TransportOrder, vehicle string) {
	e.bus.Emit(Event{Type: EventOrderAssigned, Payload: OrderAssignedEvent{Order: o, Vehicle: vehicle}})
}

func (e *dispatchEmitter) EmitOrderUnroutable(orderName, detail string) {
	e.bus.Emit(Event{Type: EventOrderUnroutable, Payload: OrderUnroutableEvent{OrderName: orderName, Detail: detail}})
}

func (e *dispatchEmitter) EmitWithdrawalRequested(orderName, vehicle string, immediate bool) {
	e.bus.Emit(Event{Type: EventWithdrawalRequested, Payload: WithdrawalRequestedEvent{
		OrderName: orderName,
		Vehicle:   vehicle,
		Immediate: immediate,
	}})
}

func (e *dispatchEmitter) EmitDispatchFailed(orderName, vehicle, detail string) {
	e.bus.Emit(Event{Type: EventDispatchFailed, Payload: DispatchFailedEvent{
		OrderName: orderName,
		Vehicle:   vehicle,
		Detail:    detail,
	}})
}

// fleetEmitter bridges vehicle reports from the fleet backend to the EventBus.
type fleetEmitter struct {
	bus *EventBus
}

func (e *fleetEmitter) EmitDriveOrderProgress(vehicle, orderName string, index int, state order.DriveOrderState) {
	e.bus.Emit(Event{Type: EventDriveOrderProgress, Payload: DriveOrderProgressEvent{
		Vehicle:   vehicle,
		OrderName: orderName,
		Index:     index,
		State:     state,
	}})
}

func (e *fleetEmitter) EmitOrderRejected(vehicle, orderName, reason string) {
	e.bus.Emit(Event{Type: EventOrderRejected, Payload: OrderRejectedEvent{Vehicle: vehicle, OrderName: orderName, Reason: reason}})
}

func (e *fleetEmitter) EmitWithdrawalConfirmed(vehicle, orderName string) {
	e.bus.Emit(Event{Type: EventWithdrawalConfirmed, Payload: WithdrawalConfirmedEvent{Vehicle: vehicle, OrderName: orderName}})
}

func (e *fleetEmitter) EmitVehicleStatusChanged(status fleet.VehicleStatus) {
	e.bus.Emit(Event{Type: EventVehicleStatusChanged, Payload: VehicleStatusEvent{Status: status}})
}
