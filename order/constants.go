package order

// Order types. TypeAny on a vehicle accepts every order.
const (
	TypeAny       = "*"
	TypeNone      = "-"
	TypeCharge    = "Charge"
	TypePark      = "Park"
	TypeTransport = "Transport"
)

// Reserved destination operations.
const (
	OpNop  = "NOP"
	OpPark = "PARK"
	OpMove = "MOVE"
)

// Transport order history codes.
const (
	HistOrderCreated                  = "ORDER_CREATED"
	HistOrderActivated                = "ORDER_ACTIVATED"
	HistOrderDispatchable             = "ORDER_DISPATCHABLE"
	HistOrderAssignedToVehicle        = "ORDER_ASSIGNED_TO_VEHICLE"
	HistOrderProcessingVehicleChanged = "ORDER_PROCESSING_VEHICLE_CHANGED"
	HistOrderDriveOrderFinished       = "ORDER_DRIVE_ORDER_FINISHED"
	HistOrderWithdrawn                = "ORDER_WITHDRAWN"
	HistOrderRejected                 = "ORDER_REJECTED"
	HistOrderReachedFinalState        = "ORDER_REACHED_FINAL_STATE"
)

// Order sequence history codes.
const (
	HistSequenceCreated                  = "SEQUENCE_CREATED"
	HistSequenceOrderAppended            = "SEQUENCE_ORDER_APPENDED"
	HistSequenceOrderRemoved             = "SEQUENCE_ORDER_REMOVED"
	HistSequenceCompleted                = "SEQUENCE_COMPLETED"
	HistSequenceFinished                 = "SEQUENCE_FINISHED"
	HistSequenceProcessingVehicleChanged = "SEQUENCE_PROCESSING_VEHICLE_CHANGED"
)
