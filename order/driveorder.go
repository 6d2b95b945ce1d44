package order

// DriveOrderState is the progress of one leg of a transport order.
type DriveOrderState string

const (
	DrivePristine   DriveOrderState = "pristine"
	DriveTravelling DriveOrderState = "travelling"
	DriveOperating  DriveOrderState = "operating"
	DriveFinished   DriveOrderState = "finished"
	DriveFailed     DriveOrderState = "failed"
)

func (s DriveOrderState) IsFinal() bool {
	return s == DriveFinished || s == DriveFailed
}

func (s DriveOrderState) valid() bool {
	switch s {
	case DrivePristine, DriveTravelling, DriveOperating, DriveFinished, DriveFailed:
		return true
	}
	return false
}

var driveTransitions = map[DriveOrderState][]DriveOrderState{
	DrivePristine:   {DriveTravelling, DriveOperating, DriveFinished, DriveFailed},
	DriveTravelling: {DriveOperating, DriveFinished, DriveFailed},
	DriveOperating:  {DriveTravelling, DriveFinished, DriveFailed},
}

// DriveOrder is one travel-plus-operation leg.
type DriveOrder struct {
	destination    Destination
	transportOrder string
	route          *Route
	state          DriveOrderState
}

func NewDriveOrder(dest Destination) *DriveOrder {
	return &DriveOrder{destination: dest, state: DrivePristine}
}

func (d *DriveOrder) Destination() Destination { return d.destination }
func (d *DriveOrder) TransportOrder() string   { return d.transportOrder }
func (d *DriveOrder) Route() *Route            { return d.route }
func (d *DriveOrder) State() DriveOrderState   { return d.state }

func (d *DriveOrder) WithTransportOrder(name string) *DriveOrder {
	c := *d
	c.transportOrder = name
	return &c
}

func (d *DriveOrder) WithRoute(r *Route) (*DriveOrder, error) {
	if d.state.IsFinal() {
		return nil, &IllegalTransitionError{Object: "drive order " + d.destination.target.Name, From: string(d.state), To: string(d.state), Reason: "route change on a terminal drive order"}
	}
	c := *d
	c.route = r
	return &c, nil
}

// WithState moves the drive order along its state machine. TRAVELLING needs a
// route; going straight to OPERATING or FINISHED does not.
func (d *DriveOrder) WithState(s DriveOrderState) (*DriveOrder, error) {
	if !s.valid() {
		return nil, NewIllegalArgumentError("state", "unknown drive order state %q", s)
	}
	if s == d.state && !s.IsFinal() {
		return d, nil
	}
	if !containsDriveState(driveTransitions[d.state], s) {
		return nil, &IllegalTransitionError{Object: "drive order " + d.destination.target.Name, From: string(d.state), To: string(s)}
	}
	if s == DriveTravelling && d.route == nil {
		return nil, &IllegalTransitionError{Object: "drive order " + d.destination.target.Name, From: string(d.state), To: string(s), Reason: "no route"}
	}
	c := *d
	c.state = s
	return &c, nil
}

func containsDriveState(list []DriveOrderState, s DriveOrderState) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
