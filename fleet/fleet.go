package fleet

import "fleetkernel/order"

// Backend is the kernel's view of the vehicle drivers. Implementations either
// simulate vehicles in process or relay commands to remote drivers.
type Backend interface {
	// Vehicles lists every vehicle known to the backend with its last status.
	Vehicles() ([]VehicleStatus, error)

	// Assign hands a BEING_PROCESSED order, routes included, to the vehicle.
	Assign(vehicle string, o *order.TransportOrder) error

	// Withdraw tells the vehicle to stop working on an order. With immediate
	// set the vehicle aborts its current movement.
	Withdraw(vehicle, orderName string, immediate bool) error

	// Ping checks connectivity to the drivers.
	Ping() error

	// Name returns a human-readable name for this backend (e.g. "loopback").
	Name() string
}

// Vehicle states reported in VehicleStatus.State.
const (
	VehicleUnknown   = "unknown"
	VehicleIdle      = "idle"
	VehicleExecuting = "executing"
	VehicleError     = "error"
)

// VehicleStatus is the last known state of a vehicle.
type VehicleStatus struct {
	Name         string  `json:"name"`
	State        string  `json:"state"`
	Point        string  `json:"point,omitempty"`
	EnergyLevel  float64 `json:"energy_level"`
	CurrentOrder string  `json:"current_order,omitempty"`
	Available    bool    `json:"available"`
}

// Idle reports whether the vehicle can take a new order.
func (s VehicleStatus) Idle() bool {
	return s.Available && s.State == VehicleIdle && s.CurrentOrder == ""
}
