// Package orderstate mirrors the kernel's order pool into Redis so that other
// processes can read order state without going through the kernel.
package orderstate

import (
	"time"

	"fleetkernel/order"
)

// OrderState is the cached view of one transport order.
type OrderState struct {
	Name              string            `json:"name"`
	State             order.State       `json:"state"`
	Type              string            `json:"type"`
	ProcessingVehicle string            `json:"processing_vehicle,omitempty"`
	IntendedVehicle   string            `json:"intended_vehicle,omitempty"`
	WrappingSequence  string            `json:"wrapping_sequence,omitempty"`
	CurrentDriveOrder int               `json:"current_drive_order"`
	DriveOrders       []DriveOrderState `json:"drive_orders"`
	Deadline          time.Time         `json:"deadline"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

type DriveOrderState struct {
	Destination string                `json:"destination"`
	Operation   string                `json:"operation"`
	State       order.DriveOrderState `json:"state"`
}

func fromOrder(o *order.TransportOrder) *OrderState {
	dos := o.AllDriveOrders()
	items := make([]DriveOrderState, len(dos))
	for i, d := range dos {
		items[i] = DriveOrderState{
			Destination: d.Destination().Target().Name,
			Operation:   d.Destination().Operation(),
			State:       d.State(),
		}
	}
	return &OrderState{
		Name:              o.Name(),
		State:             o.State(),
		Type:              o.Type(),
		ProcessingVehicle: o.ProcessingVehicle(),
		IntendedVehicle:   o.IntendedVehicle(),
		WrappingSequence:  o.WrappingSequence(),
		CurrentDriveOrder: o.CurrentDriveOrderIndex(),
		DriveOrders:       items,
		Deadline:          o.Deadline(),
		UpdatedAt:         time.Now().UTC(),
	}
}
