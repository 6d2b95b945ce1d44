package protocol

// Message type constants for the kernel protocol.
const (
	// Client -> Kernel (published on orders topic)
	TypeOrderCreate      = "order.create"
	TypeOrderWithdraw    = "order.withdraw"
	TypeSequenceCreate   = "sequence.create"
	TypeSequenceComplete = "sequence.complete"

	// Kernel -> Client (published on events topic)
	TypeOrderAccepted    = "order.accepted"
	TypeOrderUpdate      = "order.update"
	TypeOrderError       = "order.error"
	TypeSequenceAccepted = "sequence.accepted"

	// Kernel -> Vehicle driver (published on commands topic)
	TypeVehicleCommand = "vehicle.command"

	// Vehicle driver -> Kernel (published on reports topic)
	TypeVehicleProgress  = "vehicle.progress"
	TypeVehicleRejection = "vehicle.rejection"
	TypeVehicleWithdrawn = "vehicle.withdrawn"
	TypeVehicleStatus    = "vehicle.status"
)

// Roles for Address.Role.
const (
	RoleClient  = "client"
	RoleKernel  = "kernel"
	RoleVehicle = "vehicle"
)

// Error codes carried by order.error.
const (
	ErrCodeUnknownObject   = "unknown_object"
	ErrCodeObjectExists    = "object_exists"
	ErrCodeIllegalArgument = "illegal_argument"
	ErrCodeInternal        = "internal_error"
)

// Vehicle commands.
const (
	CommandAssign   = "assign"
	CommandWithdraw = "withdraw"
)

// Protocol version.
const Version = 1
