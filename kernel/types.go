package kernel

import (
	"time"

	"fleetkernel/order"
)

// Resolver maps a plant object name to a typed reference.
type Resolver interface {
	Resolve(name string) (order.Ref, error)
}

// LogFunc is the logging hook used by the pool.
type LogFunc func(format string, args ...any)

// DestinationCreation describes one drive order of a new transport order.
type DestinationCreation struct {
	LocationName string
	Operation    string
	Properties   map[string]string
}

// TransportOrderCreation carries everything a client supplies for a new
// transport order. With IncompleteName set, Name is used as a prefix and a
// unique suffix is generated.
type TransportOrderCreation struct {
	Name                       string
	IncompleteName             bool
	Type                       string
	Destinations               []DestinationCreation
	IntendedVehicle            string
	Dependencies               []string
	WrappingSequence           string
	Deadline                   time.Time
	Dispensable                bool
	PeripheralReservationToken string
	Properties                 map[string]string
}

// OrderSequenceCreation carries the client parameters of a new sequence.
type OrderSequenceCreation struct {
	Name            string
	IncompleteName  bool
	Type            string
	IntendedVehicle string
	FailureFatal    bool
	Properties      map[string]string
}

// OrderFilter selects transport orders in lookups. Nil matches everything.
type OrderFilter func(*order.TransportOrder) bool

// InState matches orders in any of the given states.
func InState(states ...order.State) OrderFilter {
	return func(o *order.TransportOrder) bool {
		for _, s := range states {
			if o.State() == s {
				return true
			}
		}
		return false
	}
}
