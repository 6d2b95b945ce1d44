package order

import "time"

// Rejection records a vehicle declining a transport order.
type Rejection struct {
	vehicle   string
	reason    string
	timestamp time.Time
}

func NewRejection(vehicle, reason string) Rejection {
	return Rejection{vehicle: vehicle, reason: reason, timestamp: time.Now().UTC()}
}

func (r Rejection) Vehicle() string      { return r.vehicle }
func (r Rejection) Reason() string       { return r.reason }
func (r Rejection) Timestamp() time.Time { return r.timestamp }
