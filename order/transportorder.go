package order

import (
	"slices"
	"time"
)

// State is the lifecycle state of a transport order.
type State string

const (
	StateRaw            State = "raw"
	StateActive         State = "active"
	StateDispatchable   State = "dispatchable"
	StateBeingProcessed State = "being_processed"
	StateWithdrawn      State = "withdrawn"
	StateFinished       State = "finished"
	StateFailed         State = "failed"
	StateUnroutable     State = "unroutable"
)

// IsFinal reports whether no further transition leaves s.
func (s State) IsFinal() bool {
	return s == StateFinished || s == StateFailed || s == StateUnroutable
}

func (s State) valid() bool {
	switch s {
	case StateRaw, StateActive, StateDispatchable, StateBeingProcessed,
		StateWithdrawn, StateFinished, StateFailed, StateUnroutable:
		return true
	}
	return false
}

// AllStates lists every transport order state in lifecycle order.
var AllStates = []State{
	StateRaw, StateActive, StateDispatchable, StateBeingProcessed,
	StateWithdrawn, StateFinished, StateFailed, StateUnroutable,
}

func transitionAllowed(from, to State) bool {
	if from.IsFinal() {
		return false
	}
	switch to {
	case StateActive:
		return from == StateRaw
	case StateDispatchable:
		return from == StateActive || from == StateBeingProcessed
	case StateBeingProcessed:
		return from == StateDispatchable
	case StateWithdrawn:
		return from != StateWithdrawn
	case StateFailed, StateUnroutable:
		return true
	case StateFinished:
		return from == StateBeingProcessed
	}
	return false
}

// TransportOrder is the client-visible unit of work. Values are immutable;
// every With method returns a new order.
type TransportOrder struct {
	id         int64
	name       string
	properties map[string]string
	history    History

	typ                        string
	driveOrders                []*DriveOrder
	currentDriveOrderIndex     int
	state                      State
	dependencies               []string
	intendedVehicle            string
	processingVehicle          string
	wrappingSequence           string
	dispensable                bool
	peripheralReservationToken string
	creationTime               time.Time
	deadline                   time.Time
	finishedTime               time.Time
	rejections                 []Rejection
}

// NewTransportOrder builds a RAW order owning the given drive orders.
func NewTransportOrder(id int64, name string, driveOrders []*DriveOrder) (*TransportOrder, error) {
	if name == "" {
		return nil, NewIllegalArgumentError("name", "must not be empty")
	}
	if len(driveOrders) == 0 {
		return nil, NewIllegalArgumentError("driveOrders", "transport order %q has no drive orders", name)
	}
	dos := make([]*DriveOrder, len(driveOrders))
	for i, d := range driveOrders {
		if d == nil {
			return nil, NewIllegalArgumentError("driveOrders", "drive order %d is nil", i)
		}
		dos[i] = d.WithTransportOrder(name)
	}
	return &TransportOrder{
		id:                     id,
		name:                   name,
		typ:                    TypeNone,
		driveOrders:            dos,
		currentDriveOrderIndex: -1,
		state:                  StateRaw,
		creationTime:           time.Now().UTC(),
		deadline:               InfiniteFuture,
		finishedTime:           InfiniteFuture,
	}, nil
}

func (o *TransportOrder) clone() *TransportOrder {
	c := *o
	return &c
}

func (o *TransportOrder) ID() int64                          { return o.id }
func (o *TransportOrder) Name() string                       { return o.name }
func (o *TransportOrder) Ref() Ref                           { return Ref{Kind: KindTransportOrder, Name: o.name} }
func (o *TransportOrder) Properties() map[string]string      { return cloneProps(o.properties) }
func (o *TransportOrder) Property(key string) string         { return o.properties[key] }
func (o *TransportOrder) History() History                   { return o.history }
func (o *TransportOrder) Type() string                       { return o.typ }
func (o *TransportOrder) CurrentDriveOrderIndex() int        { return o.currentDriveOrderIndex }
func (o *TransportOrder) State() State                       { return o.state }
func (o *TransportOrder) HasState(s State) bool              { return o.state == s }
func (o *TransportOrder) Dependencies() []string             { return slices.Clone(o.dependencies) }
func (o *TransportOrder) IntendedVehicle() string            { return o.intendedVehicle }
func (o *TransportOrder) ProcessingVehicle() string          { return o.processingVehicle }
func (o *TransportOrder) WrappingSequence() string           { return o.wrappingSequence }
func (o *TransportOrder) IsDispensable() bool                { return o.dispensable }
func (o *TransportOrder) PeripheralReservationToken() string { return o.peripheralReservationToken }
func (o *TransportOrder) CreationTime() time.Time            { return o.creationTime }
func (o *TransportOrder) Deadline() time.Time                { return o.deadline }
func (o *TransportOrder) FinishedTime() time.Time            { return o.finishedTime }
func (o *TransportOrder) Rejections() []Rejection            { return slices.Clone(o.rejections) }

func (o *TransportOrder) AllDriveOrders() []*DriveOrder { return slices.Clone(o.driveOrders) }

// CurrentDriveOrder is nil before dispatch and after the last drive order.
func (o *TransportOrder) CurrentDriveOrder() *DriveOrder {
	if o.currentDriveOrderIndex < 0 || o.currentDriveOrderIndex >= len(o.driveOrders) {
		return nil
	}
	return o.driveOrders[o.currentDriveOrderIndex]
}

// DependsOn reports whether name is among the order's dependencies.
func (o *TransportOrder) DependsOn(name string) bool {
	return containsString(o.dependencies, name)
}

func (o *TransportOrder) WithHistoryEntry(e HistoryEntry) *TransportOrder {
	c := o.clone()
	c.history = o.history.With(e)
	return c
}

func (o *TransportOrder) WithProperty(key, value string) *TransportOrder {
	c := o.clone()
	c.properties = withProp(o.properties, key, value)
	return c
}

func (o *TransportOrder) WithProperties(props map[string]string) *TransportOrder {
	c := o.clone()
	c.properties = cloneProps(props)
	return c
}

func (o *TransportOrder) WithType(typ string) *TransportOrder {
	c := o.clone()
	c.typ = typ
	if typ == "" {
		c.typ = TypeNone
	}
	return c
}

// WithDependencies replaces the dependency set. Duplicates collapse and an
// order may not depend on itself.
func (o *TransportOrder) WithDependencies(deps []string) (*TransportOrder, error) {
	set := make([]string, 0, len(deps))
	for _, d := range deps {
		if d == "" {
			return nil, NewIllegalArgumentError("dependencies", "empty order name")
		}
		if d == o.name {
			return nil, NewIllegalArgumentError("dependencies", "order %q depends on itself", o.name)
		}
		if !containsString(set, d) {
			set = append(set, d)
		}
	}
	slices.Sort(set)
	c := o.clone()
	c.dependencies = set
	return c, nil
}

func (o *TransportOrder) WithIntendedVehicle(vehicle string) *TransportOrder {
	c := o.clone()
	c.intendedVehicle = vehicle
	return c
}

func (o *TransportOrder) WithWrappingSequence(seq string) *TransportOrder {
	c := o.clone()
	c.wrappingSequence = seq
	return c
}

func (o *TransportOrder) WithDispensable(dispensable bool) *TransportOrder {
	c := o.clone()
	c.dispensable = dispensable
	return c
}

func (o *TransportOrder) WithPeripheralReservationToken(token string) *TransportOrder {
	c := o.clone()
	c.peripheralReservationToken = token
	return c
}

func (o *TransportOrder) WithCreationTime(t time.Time) *TransportOrder {
	c := o.clone()
	c.creationTime = t
	return c
}

// WithDeadline sets the deadline; the zero time means no deadline.
func (o *TransportOrder) WithDeadline(t time.Time) *TransportOrder {
	c := o.clone()
	c.deadline = t
	if t.IsZero() {
		c.deadline = InfiniteFuture
	}
	return c
}

// WithState applies a lifecycle transition. Entering a final state appends
// ORDER_REACHED_FINAL_STATE; FINISHED additionally requires every drive order
// to be finished and stamps the finished time. FINISHED is normally reached
// through WithCurrentDriveOrderState.
func (o *TransportOrder) WithState(s State) (*TransportOrder, error) {
	if !s.valid() {
		return nil, NewIllegalArgumentError("state", "unknown transport order state %q", s)
	}
	if !transitionAllowed(o.state, s) {
		return nil, &IllegalTransitionError{Object: "transport order " + o.name, From: string(o.state), To: string(s)}
	}
	if s == StateFinished {
		for _, d := range o.driveOrders {
			if d.state != DriveFinished {
				return nil, &IllegalTransitionError{Object: "transport order " + o.name, From: string(o.state), To: string(s), Reason: "unfinished drive orders"}
			}
		}
	}
	return o.withState(s), nil
}

func (o *TransportOrder) withState(s State) *TransportOrder {
	c := o.clone()
	c.state = s
	switch s {
	case StateActive:
		c.history = c.history.With(NewHistoryEntry(HistOrderActivated, ""))
	case StateDispatchable:
		c.history = c.history.With(NewHistoryEntry(HistOrderDispatchable, ""))
	case StateWithdrawn:
		c.history = c.history.With(NewHistoryEntry(HistOrderWithdrawn, ""))
	}
	if s.IsFinal() {
		if s == StateFinished {
			c.finishedTime = time.Now().UTC()
		}
		c.history = c.history.With(NewHistoryEntry(HistOrderReachedFinalState, string(s)))
	}
	return c
}

// WithProcessingVehicle sets or clears the executing vehicle. A change appends
// ORDER_PROCESSING_VEHICLE_CHANGED with the vehicle name, empty when cleared.
func (o *TransportOrder) WithProcessingVehicle(vehicle string) *TransportOrder {
	if vehicle == o.processingVehicle {
		return o
	}
	c := o.clone()
	c.processingVehicle = vehicle
	c.history = c.history.With(NewHistoryEntry(HistOrderProcessingVehicleChanged, vehicle))
	return c
}

// WithAssignment claims a DISPATCHABLE order for vehicle: BEING_PROCESSED,
// processing vehicle set and the first drive order made current.
func (o *TransportOrder) WithAssignment(vehicle string) (*TransportOrder, error) {
	if vehicle == "" {
		return nil, NewIllegalArgumentError("vehicle", "must not be empty")
	}
	if o.intendedVehicle != "" && o.intendedVehicle != vehicle {
		return nil, NewIllegalArgumentError("vehicle", "order %q is intended for %q, not %q", o.name, o.intendedVehicle, vehicle)
	}
	c, err := o.WithState(StateBeingProcessed)
	if err != nil {
		return nil, err
	}
	c = c.WithProcessingVehicle(vehicle)
	c.currentDriveOrderIndex = 0
	c.history = c.history.With(NewHistoryEntry(HistOrderAssignedToVehicle, vehicle))
	return c, nil
}

// WithCurrentDriveOrderIndex moves the current drive order pointer.
func (o *TransportOrder) WithCurrentDriveOrderIndex(i int) (*TransportOrder, error) {
	if i < -1 || i >= len(o.driveOrders) {
		return nil, NewIllegalArgumentError("index", "%d out of range [-1,%d]", i, len(o.driveOrders)-1)
	}
	c := o.clone()
	c.currentDriveOrderIndex = i
	return c, nil
}

// WithCurrentDriveOrderState applies s to the current drive order and folds
// the result into the order: FINISHED advances to the next drive order or
// finishes the order, FAILED fails it.
func (o *TransportOrder) WithCurrentDriveOrderState(s DriveOrderState) (*TransportOrder, error) {
	if o.state != StateBeingProcessed {
		return nil, &IllegalTransitionError{Object: "transport order " + o.name, From: string(o.state), To: string(o.state), Reason: "drive order update while not being processed"}
	}
	cur := o.CurrentDriveOrder()
	if cur == nil {
		return nil, NewIllegalArgumentError("state", "transport order %q has no current drive order", o.name)
	}
	next, err := cur.WithState(s)
	if err != nil {
		return nil, err
	}
	c := o.clone()
	c.driveOrders = slices.Clone(o.driveOrders)
	c.driveOrders[o.currentDriveOrderIndex] = next

	switch s {
	case DriveFinished:
		c.history = c.history.With(NewHistoryEntry(HistOrderDriveOrderFinished, next.destination.target.Name))
		if c.currentDriveOrderIndex < len(c.driveOrders)-1 {
			c.currentDriveOrderIndex++
			return c, nil
		}
		return c.withState(StateFinished), nil
	case DriveFailed:
		return c.withState(StateFailed), nil
	}
	return c, nil
}

// WithDriveOrders replaces the drive orders, typically with routed copies.
// Destinations must match the existing ones one-for-one.
func (o *TransportOrder) WithDriveOrders(dos []*DriveOrder) (*TransportOrder, error) {
	if len(dos) != len(o.driveOrders) {
		return nil, NewIllegalArgumentError("driveOrders", "expected %d drive orders, got %d", len(o.driveOrders), len(dos))
	}
	out := make([]*DriveOrder, len(dos))
	for i, d := range dos {
		if d == nil || !d.destination.Equal(o.driveOrders[i].destination) {
			return nil, NewIllegalArgumentError("driveOrders", "drive order %d does not match destination %s", i, o.driveOrders[i].destination.target)
		}
		out[i] = d.WithTransportOrder(o.name)
	}
	c := o.clone()
	c.driveOrders = out
	return c, nil
}

// WithRejection appends r to the rejection log and records it in the history.
func (o *TransportOrder) WithRejection(r Rejection) *TransportOrder {
	c := o.clone()
	c.rejections = append(slices.Clone(o.rejections), r)
	c.history = c.history.With(NewHistoryEntry(HistOrderRejected, r.vehicle+": "+r.reason))
	return c
}

// WithRejectionRequeue records a rejection and puts the order back up for
// dispatch. Only allowed while no drive order has started.
func (o *TransportOrder) WithRejectionRequeue(r Rejection) (*TransportOrder, error) {
	if o.state != StateBeingProcessed {
		return nil, &IllegalTransitionError{Object: "transport order " + o.name, From: string(o.state), To: string(StateDispatchable)}
	}
	if o.currentDriveOrderIndex > 0 || (o.CurrentDriveOrder() != nil && o.CurrentDriveOrder().state != DrivePristine) {
		return nil, &IllegalTransitionError{Object: "transport order " + o.name, From: string(o.state), To: string(StateDispatchable), Reason: "execution already started"}
	}
	c := o.WithRejection(r).withState(StateDispatchable)
	c = c.WithProcessingVehicle("")
	c.currentDriveOrderIndex = -1
	return c, nil
}
