package protocol

import (
	"time"

	"fleetkernel/kernel"
	"fleetkernel/order"
)

// --- Client -> Kernel payloads ---

type DestinationTO struct {
	LocationName string            `json:"location_name"`
	Operation    string            `json:"operation"`
	Properties   map[string]string `json:"properties,omitempty"`
}

// TransportOrderCreationTO describes a new transport order.
type TransportOrderCreationTO struct {
	Name                       string            `json:"name"`
	IncompleteName             bool              `json:"incomplete_name,omitempty"`
	Type                       string            `json:"type,omitempty"`
	Destinations               []DestinationTO   `json:"destinations"`
	IntendedVehicle            string            `json:"intended_vehicle,omitempty"`
	Dependencies               []string          `json:"dependencies,omitempty"`
	WrappingSequence           string            `json:"wrapping_sequence,omitempty"`
	Deadline                   *time.Time        `json:"deadline,omitempty"`
	Dispensable                bool              `json:"dispensable,omitempty"`
	PeripheralReservationToken string            `json:"peripheral_reservation_token,omitempty"`
	Properties                 map[string]string `json:"properties,omitempty"`
}

// Creation converts the wire form into a kernel creation request.
func (to *TransportOrderCreationTO) Creation() kernel.TransportOrderCreation {
	c := kernel.TransportOrderCreation{
		Name:                       to.Name,
		IncompleteName:             to.IncompleteName,
		Type:                       to.Type,
		IntendedVehicle:            to.IntendedVehicle,
		Dependencies:               to.Dependencies,
		WrappingSequence:           to.WrappingSequence,
		Dispensable:                to.Dispensable,
		PeripheralReservationToken: to.PeripheralReservationToken,
		Properties:                 to.Properties,
	}
	if to.Deadline != nil {
		c.Deadline = *to.Deadline
	}
	for _, d := range to.Destinations {
		c.Destinations = append(c.Destinations, kernel.DestinationCreation{
			LocationName: d.LocationName,
			Operation:    d.Operation,
			Properties:   d.Properties,
		})
	}
	return c
}

// OrderSequenceCreationTO describes a new order sequence.
type OrderSequenceCreationTO struct {
	Name            string            `json:"name"`
	IncompleteName  bool              `json:"incomplete_name,omitempty"`
	Type            string            `json:"type,omitempty"`
	IntendedVehicle string            `json:"intended_vehicle,omitempty"`
	FailureFatal    bool              `json:"failure_fatal,omitempty"`
	Properties      map[string]string `json:"properties,omitempty"`
}

func (to *OrderSequenceCreationTO) Creation() kernel.OrderSequenceCreation {
	return kernel.OrderSequenceCreation{
		Name:            to.Name,
		IncompleteName:  to.IncompleteName,
		Type:            to.Type,
		IntendedVehicle: to.IntendedVehicle,
		FailureFatal:    to.FailureFatal,
		Properties:      to.Properties,
	}
}

// OrderWithdraw asks the kernel to withdraw an order.
type OrderWithdraw struct {
	Name      string `json:"name"`
	Immediate bool   `json:"immediate,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// SequenceComplete seals a sequence.
type SequenceComplete struct {
	Name string `json:"name"`
}

// --- Kernel -> Client payloads ---

type OrderAccepted struct {
	Name  string      `json:"name"`
	State order.State `json:"state"`
}

type SequenceAccepted struct {
	Name string `json:"name"`
}

// OrderUpdate reports a transport order state change.
type OrderUpdate struct {
	Name     string      `json:"name"`
	OldState order.State `json:"old_state"`
	State    order.State `json:"state"`
	Vehicle  string      `json:"vehicle,omitempty"`
	Detail   string      `json:"detail,omitempty"`
}

type OrderError struct {
	Name   string `json:"name,omitempty"`
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// --- Kernel -> Vehicle payloads ---

// VehicleCommand hands an order to a vehicle driver or withdraws it.
type VehicleCommand struct {
	Vehicle     string                     `json:"vehicle"`
	Order       string                     `json:"order"`
	Command     string                     `json:"command"`
	Immediate   bool                       `json:"immediate,omitempty"`
	DriveOrders []order.DriveOrderSnapshot `json:"drive_orders,omitempty"`
}

// --- Vehicle -> Kernel payloads ---

// VehicleProgress reports the state of the vehicle's current drive order.
type VehicleProgress struct {
	Vehicle string                `json:"vehicle"`
	Order   string                `json:"order"`
	Index   int                   `json:"index"`
	State   order.DriveOrderState `json:"state"`
}

type VehicleRejection struct {
	Vehicle string `json:"vehicle"`
	Order   string `json:"order"`
	Reason  string `json:"reason"`
}

type VehicleWithdrawn struct {
	Vehicle string `json:"vehicle"`
	Order   string `json:"order"`
}

type VehicleStatus struct {
	Vehicle      string  `json:"vehicle"`
	State        string  `json:"state"`
	Point        string  `json:"point,omitempty"`
	EnergyLevel  float64 `json:"energy_level"`
	CurrentOrder string  `json:"current_order,omitempty"`
	Available    bool    `json:"available"`
}
