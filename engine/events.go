package engine

import (
	"fleetkernel/fleet"
	"fleetkernel/order"
)

const (
	// Kernel
	EventOrderCreated EventType = iota + 1
	EventOrderUpdated
	EventOrderStateChanged
	EventOrderDispatchable
	EventOrderFinal
	EventOrderVehicleChanged
	EventOrderRemoved
	EventSequenceUpdated
	EventSequenceRemoved
	EventDependencyUnresolved

	// Dispatch
	EventOrderAssigned
	EventOrderUnroutable
	EventWithdrawalRequested
	EventDispatchFailed

	// Fleet
	EventDriveOrderProgress
	EventOrderRejected
	EventWithdrawalConfirmed
	EventVehicleStatusChanged

	// Connectivity
	EventFleetConnected
	EventFleetDisconnected
	EventMessagingConnected
	EventMessagingDisconnected
)

var eventNames = map[EventType]string{
	EventOrderCreated:          "order-created",
	EventOrderUpdated:          "order-updated",
	EventOrderStateChanged:     "order-state-changed",
	EventOrderDispatchable:     "order-dispatchable",
	EventOrderFinal:            "order-final",
	EventOrderVehicleChanged:   "order-vehicle-changed",
	EventOrderRemoved:          "order-removed",
	EventSequenceUpdated:       "sequence-updated",
	EventSequenceRemoved:       "sequence-removed",
	EventDependencyUnresolved:  "dependency-unresolved",
	EventOrderAssigned:         "order-assigned",
	EventOrderUnroutable:       "order-unroutable",
	EventWithdrawalRequested:   "withdrawal-requested",
	EventDispatchFailed:        "dispatch-failed",
	EventDriveOrderProgress:    "drive-order-progress",
	EventOrderRejected:         "order-rejected",
	EventWithdrawalConfirmed:   "withdrawal-confirmed",
	EventVehicleStatusChanged:  "vehicle-status",
	EventFleetConnected:        "fleet-connected",
	EventFleetDisconnected:     "fleet-disconnected",
	EventMessagingConnected:    "messaging-connected",
	EventMessagingDisconnected: "messaging-disconnected",
}

// String is the SSE event name.
func (t EventType) String() string {
	if n, ok := eventNames[t]; ok {
		return n
	}
	return "unknown"
}

// --- Event payloads ---

type OrderEvent struct {
	Order *order.TransportOrder
}

type OrderStateChangedEvent struct {
	Order    *order.TransportOrder
	OldState order.State
}

type OrderVehicleChangedEvent struct {
	Order      *order.TransportOrder
	OldVehicle string
}

type OrderRemovedEvent struct {
	Name string
}

type SequenceEvent struct {
	Sequence *order.OrderSequence
}

type SequenceRemovedEvent struct {
	Name string
}

type DependencyUnresolvedEvent struct {
	OrderName  string
	Dependency string
}

type OrderAssignedEvent struct {
	Order   *order.TransportOrder
	Vehicle string
}

type OrderUnroutableEvent struct {
	OrderName string
	Detail    string
}

type WithdrawalRequestedEvent struct {
	OrderName string
	Vehicle   string
	Immediate bool
}

type DispatchFailedEvent struct {
	OrderName string
	Vehicle   string
	Detail    string
}

type DriveOrderProgressEvent struct {
	Vehicle   string
	OrderName string
	Index     int
	State     order.DriveOrderState
}

type OrderRejectedEvent struct {
	Vehicle   string
	OrderName string
	Reason    string
}

type WithdrawalConfirmedEvent struct {
	Vehicle   string
	OrderName string
}

type VehicleStatusEvent struct {
	Status fleet.VehicleStatus
}

type ConnectionEvent struct {
	Detail string
}
