package order

import "slices"

// OrderSequence is an ordered chain of transport orders executed by one
// vehicle. Insertion order is execution order.
type OrderSequence struct {
	id         int64
	name       string
	properties map[string]string
	history    History

	typ               string
	orders            []string
	finishedIndex     int
	complete          bool
	finished          bool
	failureFatal      bool
	intendedVehicle   string
	processingVehicle string
}

func NewOrderSequence(id int64, name string) (*OrderSequence, error) {
	if name == "" {
		return nil, NewIllegalArgumentError("name", "must not be empty")
	}
	return &OrderSequence{id: id, name: name, typ: TypeNone, finishedIndex: -1}, nil
}

func (s *OrderSequence) clone() *OrderSequence {
	c := *s
	return &c
}

func (s *OrderSequence) ID() int64                     { return s.id }
func (s *OrderSequence) Name() string                  { return s.name }
func (s *OrderSequence) Ref() Ref                      { return Ref{Kind: KindOrderSequence, Name: s.name} }
func (s *OrderSequence) Properties() map[string]string { return cloneProps(s.properties) }
func (s *OrderSequence) Property(key string) string    { return s.properties[key] }
func (s *OrderSequence) History() History              { return s.history }
func (s *OrderSequence) Type() string                  { return s.typ }
func (s *OrderSequence) Orders() []string              { return slices.Clone(s.orders) }
func (s *OrderSequence) Len() int                      { return len(s.orders) }
func (s *OrderSequence) FinishedIndex() int            { return s.finishedIndex }
func (s *OrderSequence) IsComplete() bool              { return s.complete }
func (s *OrderSequence) IsFinished() bool              { return s.finished }
func (s *OrderSequence) IsFailureFatal() bool          { return s.failureFatal }
func (s *OrderSequence) IntendedVehicle() string       { return s.intendedVehicle }
func (s *OrderSequence) ProcessingVehicle() string     { return s.processingVehicle }

// IndexOf returns the position of the named member, or -1.
func (s *OrderSequence) IndexOf(order string) int {
	return slices.Index(s.orders, order)
}

// NextUnfinishedOrder returns the member right after the finished index, or
// "" when the sequence is finished or the finished index is the last member.
func (s *OrderSequence) NextUnfinishedOrder() string {
	if s.finished || s.finishedIndex+1 >= len(s.orders) {
		return ""
	}
	return s.orders[s.finishedIndex+1]
}

func (s *OrderSequence) WithHistoryEntry(e HistoryEntry) *OrderSequence {
	c := s.clone()
	c.history = s.history.With(e)
	return c
}

func (s *OrderSequence) WithProperty(key, value string) *OrderSequence {
	c := s.clone()
	c.properties = withProp(s.properties, key, value)
	return c
}

func (s *OrderSequence) WithProperties(props map[string]string) *OrderSequence {
	c := s.clone()
	c.properties = cloneProps(props)
	return c
}

func (s *OrderSequence) WithType(typ string) *OrderSequence {
	c := s.clone()
	c.typ = typ
	if typ == "" {
		c.typ = TypeNone
	}
	return c
}

func (s *OrderSequence) WithIntendedVehicle(vehicle string) *OrderSequence {
	c := s.clone()
	c.intendedVehicle = vehicle
	return c
}

func (s *OrderSequence) WithProcessingVehicle(vehicle string) *OrderSequence {
	if vehicle == s.processingVehicle {
		return s
	}
	c := s.clone()
	c.processingVehicle = vehicle
	c.history = c.history.With(NewHistoryEntry(HistSequenceProcessingVehicleChanged, vehicle))
	return c
}

func (s *OrderSequence) WithFailureFatal(fatal bool) *OrderSequence {
	c := s.clone()
	c.failureFatal = fatal
	return c
}

// WithOrder appends a member. Complete sequences and duplicates are rejected.
func (s *OrderSequence) WithOrder(order string) (*OrderSequence, error) {
	if order == "" {
		return nil, NewIllegalArgumentError("order", "must not be empty")
	}
	if s.complete {
		return nil, NewIllegalArgumentError("order", "sequence %q is complete", s.name)
	}
	if slices.Contains(s.orders, order) {
		return nil, NewIllegalArgumentError("order", "%q is already a member of sequence %q", order, s.name)
	}
	c := s.clone()
	c.orders = insertString(s.orders, order)
	c.history = c.history.With(NewHistoryEntry(HistSequenceOrderAppended, order))
	return c, nil
}

// RemoveOrder drops a member reference, keeping the finished index pointing
// at the same logical member. Flags are left alone.
func (s *OrderSequence) RemoveOrder(order string) *OrderSequence {
	i := slices.Index(s.orders, order)
	if i < 0 {
		return s
	}
	c := s.clone()
	c.orders = removeString(s.orders, order)
	if i <= s.finishedIndex {
		c.finishedIndex--
	}
	c.history = c.history.With(NewHistoryEntry(HistSequenceOrderRemoved, order))
	return c
}

// WithFinishedIndex moves the finished index forward. It must lie within
// [-1, size-1] of the current member list and never move back.
func (s *OrderSequence) WithFinishedIndex(i int) (*OrderSequence, error) {
	if i < -1 || i > len(s.orders)-1 {
		return nil, NewIllegalArgumentError("finishedIndex", "%d out of range [-1,%d]", i, len(s.orders)-1)
	}
	if i < s.finishedIndex {
		return nil, NewIllegalArgumentError("finishedIndex", "%d is behind current index %d", i, s.finishedIndex)
	}
	c := s.clone()
	c.finishedIndex = i
	return c, nil
}

// WithComplete seals the sequence against further appends.
func (s *OrderSequence) WithComplete() *OrderSequence {
	if s.complete {
		return s
	}
	c := s.clone()
	c.complete = true
	c.history = c.history.With(NewHistoryEntry(HistSequenceCompleted, ""))
	return c
}

// WithFinished marks a complete sequence finished.
func (s *OrderSequence) WithFinished() (*OrderSequence, error) {
	if s.finished {
		return s, nil
	}
	if !s.complete {
		return nil, &IllegalTransitionError{Object: "order sequence " + s.name, From: "incomplete", To: "finished"}
	}
	c := s.clone()
	c.finished = true
	c.history = c.history.With(NewHistoryEntry(HistSequenceFinished, ""))
	return c, nil
}

// AllMembersPassed reports whether the finished index is on the last member.
func (s *OrderSequence) AllMembersPassed() bool {
	return s.finishedIndex == len(s.orders)-1
}
