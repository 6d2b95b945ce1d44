package fleet

import "fleetkernel/order"

// ProgressEmitter receives vehicle reports from a backend.
type ProgressEmitter interface {
	EmitDriveOrderProgress(vehicle, orderName string, index int, state order.DriveOrderState)
	EmitOrderRejected(vehicle, orderName, reason string)
	EmitWithdrawalConfirmed(vehicle, orderName string)
	EmitVehicleStatusChanged(status VehicleStatus)
}

// ReportingBackend is a Backend that pushes vehicle reports to an emitter.
type ReportingBackend interface {
	Backend
	SetProgressEmitter(e ProgressEmitter)
}
