package order

// Orientation is the direction a vehicle traverses a path in.
type Orientation string

const (
	OrientationForward   Orientation = "forward"
	OrientationBackward  Orientation = "backward"
	OrientationUndefined Orientation = "undefined"
)

func (o Orientation) valid() bool {
	switch o {
	case OrientationForward, OrientationBackward, OrientationUndefined:
		return true
	}
	return false
}

// Step is one hop of a route. Path is empty when the vehicle does not need
// to move, e.g. for the first step from its current position.
type Step struct {
	path             string
	sourcePoint      string
	destinationPoint string
	orientation      Orientation
	routeIndex       int
	executionAllowed bool
}

func NewStep(path, sourcePoint, destinationPoint string, orientation Orientation, routeIndex int, executionAllowed bool) (Step, error) {
	if destinationPoint == "" {
		return Step{}, NewIllegalArgumentError("destinationPoint", "must not be empty")
	}
	if routeIndex < 0 {
		return Step{}, NewIllegalArgumentError("routeIndex", "%d is negative", routeIndex)
	}
	if orientation == "" {
		orientation = OrientationUndefined
	}
	if !orientation.valid() {
		return Step{}, NewIllegalArgumentError("orientation", "unknown orientation %q", orientation)
	}
	return Step{
		path:             path,
		sourcePoint:      sourcePoint,
		destinationPoint: destinationPoint,
		orientation:      orientation,
		routeIndex:       routeIndex,
		executionAllowed: executionAllowed,
	}, nil
}

func (s Step) Path() string             { return s.path }
func (s Step) SourcePoint() string      { return s.sourcePoint }
func (s Step) DestinationPoint() string { return s.destinationPoint }
func (s Step) Orientation() Orientation { return s.orientation }
func (s Step) RouteIndex() int          { return s.routeIndex }
func (s Step) IsExecutionAllowed() bool { return s.executionAllowed }

func (s Step) WithExecutionAllowed(allowed bool) Step {
	s.executionAllowed = allowed
	return s
}

// Route is a computed, non-empty sequence of steps with its aggregate cost.
type Route struct {
	steps []Step
	cost  int64
}

func NewRoute(steps []Step, cost int64) (*Route, error) {
	if len(steps) == 0 {
		return nil, NewIllegalArgumentError("steps", "route must have at least one step")
	}
	for i, s := range steps {
		if s.routeIndex != i {
			return nil, NewIllegalArgumentError("steps", "step %d has route index %d", i, s.routeIndex)
		}
	}
	return &Route{steps: append([]Step(nil), steps...), cost: cost}, nil
}

func (r *Route) Steps() []Step { return append([]Step(nil), r.steps...) }
func (r *Route) Cost() int64   { return r.cost }
func (r *Route) Len() int      { return len(r.steps) }
func (r *Route) Step(i int) Step {
	return r.steps[i]
}

func (r *Route) FinalDestinationPoint() string {
	return r.steps[len(r.steps)-1].destinationPoint
}

// WithStep replaces the step at i. The replacement must keep its route index.
func (r *Route) WithStep(i int, s Step) (*Route, error) {
	if i < 0 || i >= len(r.steps) {
		return nil, NewIllegalArgumentError("index", "%d out of range [0,%d]", i, len(r.steps)-1)
	}
	if s.routeIndex != i {
		return nil, NewIllegalArgumentError("step", "route index %d does not match position %d", s.routeIndex, i)
	}
	steps := append([]Step(nil), r.steps...)
	steps[i] = s
	return &Route{steps: steps, cost: r.cost}, nil
}
