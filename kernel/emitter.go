package kernel

import "fleetkernel/order"

// Emitter is the interface adapters must satisfy to bridge pool events to the
// engine. The pool calls it after releasing its locks, in mutation order.
type Emitter interface {
	EmitOrderCreated(o *order.TransportOrder)
	EmitOrderStateChanged(o *order.TransportOrder, oldState order.State)
	EmitOrderDispatchable(o *order.TransportOrder)
	EmitOrderFinal(o *order.TransportOrder)
	EmitOrderProcessingVehicleChanged(o *order.TransportOrder, oldVehicle string)
	EmitOrderUpdated(o *order.TransportOrder)
	EmitOrderRemoved(name string)
	EmitSequenceUpdated(s *order.OrderSequence)
	EmitSequenceRemoved(name string)
	EmitDependencyUnresolved(orderName, dependency string)
}

type noopEmitter struct{}

func (noopEmitter) EmitOrderCreated(*order.TransportOrder)                          {}
func (noopEmitter) EmitOrderStateChanged(*order.TransportOrder, order.State)        {}
func (noopEmitter) EmitOrderDispatchable(*order.TransportOrder)                     {}
func (noopEmitter) EmitOrderFinal(*order.TransportOrder)                            {}
func (noopEmitter) EmitOrderProcessingVehicleChanged(*order.TransportOrder, string) {}
func (noopEmitter) EmitOrderUpdated(*order.TransportOrder)                          {}
func (noopEmitter) EmitOrderRemoved(string)                                         {}
func (noopEmitter) EmitSequenceUpdated(*order.OrderSequence)                        {}
func (noopEmitter) EmitSequenceRemoved(string)                                      {}
func (noopEmitter) EmitDependencyUnresolved(string, string)                         {}
