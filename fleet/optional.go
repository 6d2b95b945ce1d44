package fleet

// AvailabilityController toggles whether a vehicle takes new orders.
// Web handlers type-assert Backend to this interface.
type AvailabilityController interface {
	SetAvailability(vehicle string, available bool) error
}
