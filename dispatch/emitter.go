package dispatch

import "fleetkernel/order"

// Emitter is the interface adapters must satisfy to bridge dispatch events to the engine.
type Emitter interface {
	EmitOrderAssigned(o *order.TransportOrder, vehicle string)
	EmitOrderUnroutable(orderName, detail string)
	EmitWithdrawalRequested(orderName, vehicle string, immediate bool)
	EmitDispatchFailed(orderName, vehicle, detail string)
}
