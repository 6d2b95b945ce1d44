package order

import (
	"fmt"
	"slices"
	"time"
)

// Snapshots carry the full attribute set of an object in a plain, JSON
// friendly form. Restoring a snapshot yields an equal value.

type StepSnapshot struct {
	Path             string      `json:"path,omitempty"`
	SourcePoint      string      `json:"source_point,omitempty"`
	DestinationPoint string      `json:"destination_point"`
	Orientation      Orientation `json:"orientation"`
	RouteIndex       int         `json:"route_index"`
	ExecutionAllowed bool        `json:"execution_allowed"`
}

type RouteSnapshot struct {
	Steps []StepSnapshot `json:"steps"`
	Cost  int64          `json:"cost"`
}

type DestinationSnapshot struct {
	Target     Ref               `json:"target"`
	Operation  string            `json:"operation"`
	Properties map[string]string `json:"properties,omitempty"`
}

type DriveOrderSnapshot struct {
	Destination    DestinationSnapshot `json:"destination"`
	TransportOrder string              `json:"transport_order,omitempty"`
	Route          *RouteSnapshot      `json:"route,omitempty"`
	State          DriveOrderState     `json:"state"`
}

type RejectionSnapshot struct {
	Vehicle   string    `json:"vehicle"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

type TransportOrderSnapshot struct {
	ID                         int64                `json:"id"`
	Name                       string               `json:"name"`
	Properties                 map[string]string    `json:"properties,omitempty"`
	History                    []HistoryEntry       `json:"history"`
	Type                       string               `json:"type"`
	DriveOrders                []DriveOrderSnapshot `json:"drive_orders"`
	CurrentDriveOrderIndex     int                  `json:"current_drive_order_index"`
	State                      State                `json:"state"`
	Dependencies               []string             `json:"dependencies,omitempty"`
	IntendedVehicle            string               `json:"intended_vehicle,omitempty"`
	ProcessingVehicle          string               `json:"processing_vehicle,omitempty"`
	WrappingSequence           string               `json:"wrapping_sequence,omitempty"`
	Dispensable                bool                 `json:"dispensable"`
	PeripheralReservationToken string               `json:"peripheral_reservation_token,omitempty"`
	CreationTime               time.Time            `json:"creation_time"`
	Deadline                   time.Time            `json:"deadline"`
	FinishedTime               time.Time            `json:"finished_time"`
	Rejections                 []RejectionSnapshot  `json:"rejections,omitempty"`
}

type OrderSequenceSnapshot struct {
	ID                int64             `json:"id"`
	Name              string            `json:"name"`
	Properties        map[string]string `json:"properties,omitempty"`
	History           []HistoryEntry    `json:"history"`
	Type              string            `json:"type"`
	Orders            []string          `json:"orders"`
	FinishedIndex     int               `json:"finished_index"`
	Complete          bool              `json:"complete"`
	Finished          bool              `json:"finished"`
	FailureFatal      bool              `json:"failure_fatal"`
	IntendedVehicle   string            `json:"intended_vehicle,omitempty"`
	ProcessingVehicle string            `json:"processing_vehicle,omitempty"`
}

func (s Step) Snapshot() StepSnapshot {
	return StepSnapshot{
		Path:             s.path,
		SourcePoint:      s.sourcePoint,
		DestinationPoint: s.destinationPoint,
		Orientation:      s.orientation,
		RouteIndex:       s.routeIndex,
		ExecutionAllowed: s.executionAllowed,
	}
}

func (r *Route) Snapshot() RouteSnapshot {
	steps := make([]StepSnapshot, len(r.steps))
	for i, s := range r.steps {
		steps[i] = s.Snapshot()
	}
	return RouteSnapshot{Steps: steps, Cost: r.cost}
}

func RestoreRoute(snap RouteSnapshot) (*Route, error) {
	steps := make([]Step, len(snap.Steps))
	for i, ss := range snap.Steps {
		s, err := NewStep(ss.Path, ss.SourcePoint, ss.DestinationPoint, ss.Orientation, ss.RouteIndex, ss.ExecutionAllowed)
		if err != nil {
			return nil, fmt.Errorf("restore step %d: %w", i, err)
		}
		steps[i] = s
	}
	return NewRoute(steps, snap.Cost)
}

func (d Destination) Snapshot() DestinationSnapshot {
	return DestinationSnapshot{Target: d.target, Operation: d.operation, Properties: cloneProps(d.properties)}
}

func RestoreDestination(snap DestinationSnapshot) (Destination, error) {
	d, err := NewDestination(snap.Target, snap.Operation)
	if err != nil {
		return Destination{}, err
	}
	return d.WithProperties(snap.Properties), nil
}

func (d *DriveOrder) Snapshot() DriveOrderSnapshot {
	snap := DriveOrderSnapshot{
		Destination:    d.destination.Snapshot(),
		TransportOrder: d.transportOrder,
		State:          d.state,
	}
	if d.route != nil {
		r := d.route.Snapshot()
		snap.Route = &r
	}
	return snap
}

func RestoreDriveOrder(snap DriveOrderSnapshot) (*DriveOrder, error) {
	dest, err := RestoreDestination(snap.Destination)
	if err != nil {
		return nil, err
	}
	if !snap.State.valid() {
		return nil, NewIllegalArgumentError("state", "unknown drive order state %q", snap.State)
	}
	d := &DriveOrder{destination: dest, transportOrder: snap.TransportOrder, state: snap.State}
	if snap.Route != nil {
		if d.route, err = RestoreRoute(*snap.Route); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (r Rejection) Snapshot() RejectionSnapshot {
	return RejectionSnapshot{Vehicle: r.vehicle, Reason: r.reason, Timestamp: r.timestamp}
}

func RestoreRejection(snap RejectionSnapshot) Rejection {
	return Rejection{vehicle: snap.Vehicle, reason: snap.Reason, timestamp: snap.Timestamp}
}

func (o *TransportOrder) Snapshot() TransportOrderSnapshot {
	dos := make([]DriveOrderSnapshot, len(o.driveOrders))
	for i, d := range o.driveOrders {
		dos[i] = d.Snapshot()
	}
	var rejs []RejectionSnapshot
	for _, r := range o.rejections {
		rejs = append(rejs, r.Snapshot())
	}
	return TransportOrderSnapshot{
		ID:                         o.id,
		Name:                       o.name,
		Properties:                 cloneProps(o.properties),
		History:                    o.history.Entries(),
		Type:                       o.typ,
		DriveOrders:                dos,
		CurrentDriveOrderIndex:     o.currentDriveOrderIndex,
		State:                      o.state,
		Dependencies:               slices.Clone(o.dependencies),
		IntendedVehicle:            o.intendedVehicle,
		ProcessingVehicle:          o.processingVehicle,
		WrappingSequence:           o.wrappingSequence,
		Dispensable:                o.dispensable,
		PeripheralReservationToken: o.peripheralReservationToken,
		CreationTime:               o.creationTime,
		Deadline:                   o.deadline,
		FinishedTime:               o.finishedTime,
		Rejections:                 rejs,
	}
}

// RestoreTransportOrder rebuilds an order from its snapshot without replaying
// transitions.
func RestoreTransportOrder(snap TransportOrderSnapshot) (*TransportOrder, error) {
	if snap.Name == "" {
		return nil, NewIllegalArgumentError("name", "must not be empty")
	}
	if len(snap.DriveOrders) == 0 {
		return nil, NewIllegalArgumentError("driveOrders", "transport order %q has no drive orders", snap.Name)
	}
	if !snap.State.valid() {
		return nil, NewIllegalArgumentError("state", "unknown transport order state %q", snap.State)
	}
	if snap.CurrentDriveOrderIndex < -1 || snap.CurrentDriveOrderIndex >= len(snap.DriveOrders) {
		return nil, NewIllegalArgumentError("currentDriveOrderIndex", "%d out of range", snap.CurrentDriveOrderIndex)
	}
	dos := make([]*DriveOrder, len(snap.DriveOrders))
	for i, ds := range snap.DriveOrders {
		d, err := RestoreDriveOrder(ds)
		if err != nil {
			return nil, fmt.Errorf("restore %s drive order %d: %w", snap.Name, i, err)
		}
		dos[i] = d.WithTransportOrder(snap.Name)
	}
	rejs := make([]Rejection, 0, len(snap.Rejections))
	for _, r := range snap.Rejections {
		rejs = append(rejs, RestoreRejection(r))
	}
	typ := snap.Type
	if typ == "" {
		typ = TypeNone
	}
	return &TransportOrder{
		id:                         snap.ID,
		name:                       snap.Name,
		properties:                 cloneProps(snap.Properties),
		history:                    RestoreHistory(snap.History),
		typ:                        typ,
		driveOrders:                dos,
		currentDriveOrderIndex:     snap.CurrentDriveOrderIndex,
		state:                      snap.State,
		dependencies:               slices.Clone(snap.Dependencies),
		intendedVehicle:            snap.IntendedVehicle,
		processingVehicle:          snap.ProcessingVehicle,
		wrappingSequence:           snap.WrappingSequence,
		dispensable:                snap.Dispensable,
		peripheralReservationToken: snap.PeripheralReservationToken,
		creationTime:               snap.CreationTime,
		deadline:                   orInfinite(snap.Deadline),
		finishedTime:               orInfinite(snap.FinishedTime),
		rejections:                 rejs,
	}, nil
}

func (s *OrderSequence) Snapshot() OrderSequenceSnapshot {
	return OrderSequenceSnapshot{
		ID:                s.id,
		Name:              s.name,
		Properties:        cloneProps(s.properties),
		History:           s.history.Entries(),
		Type:              s.typ,
		Orders:            slices.Clone(s.orders),
		FinishedIndex:     s.finishedIndex,
		Complete:          s.complete,
		Finished:          s.finished,
		FailureFatal:      s.failureFatal,
		IntendedVehicle:   s.intendedVehicle,
		ProcessingVehicle: s.processingVehicle,
	}
}

func RestoreOrderSequence(snap OrderSequenceSnapshot) (*OrderSequence, error) {
	if snap.Name == "" {
		return nil, NewIllegalArgumentError("name", "must not be empty")
	}
	if snap.FinishedIndex < -1 || snap.FinishedIndex > len(snap.Orders)-1 {
		return nil, NewIllegalArgumentError("finishedIndex", "%d out of range [-1,%d]", snap.FinishedIndex, len(snap.Orders)-1)
	}
	if snap.Finished && !snap.Complete {
		return nil, NewIllegalArgumentError("finished", "sequence %q is finished but not complete", snap.Name)
	}
	typ := snap.Type
	if typ == "" {
		typ = TypeNone
	}
	return &OrderSequence{
		id:                snap.ID,
		name:              snap.Name,
		properties:        cloneProps(snap.Properties),
		history:           RestoreHistory(snap.History),
		typ:               typ,
		orders:            slices.Clone(snap.Orders),
		finishedIndex:     snap.FinishedIndex,
		complete:          snap.Complete,
		finished:          snap.Finished,
		failureFatal:      snap.FailureFatal,
		intendedVehicle:   snap.IntendedVehicle,
		processingVehicle: snap.ProcessingVehicle,
	}, nil
}

func orInfinite(t time.Time) time.Time {
	if t.IsZero() {
		return InfiniteFuture
	}
	return t
}
