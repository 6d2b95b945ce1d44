// Package routing computes routes for transport orders over the plant model.
package routing

import (
	"container/heap"
	"context"
	"errors"
	"fmt"

	"fleetkernel/order"
	"fleetkernel/plant"
)

// ErrUnroutable reports that no path satisfies an order's destinations.
var ErrUnroutable = errors.New("unroutable")

// Router finds shortest routes by path length.
type Router struct {
	model *plant.Model
}

func NewRouter(model *plant.Model) *Router {
	return &Router{model: model}
}

// Route computes one route per drive order of o, starting at point from and
// chaining each leg from the previous leg's end. Drive orders that are
// already final get a nil entry.
func (r *Router) Route(ctx context.Context, from string, o *order.TransportOrder) ([]*order.Route, error) {
	dos := o.AllDriveOrders()
	routes := make([]*order.Route, len(dos))
	pos := from
	for i, d := range dos {
		if d.State().IsFinal() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		route, err := r.routeTo(pos, d.Destination())
		if err != nil {
			return nil, fmt.Errorf("route %s drive order %d: %w", o.Name(), i, err)
		}
		routes[i] = route
		pos = route.FinalDestinationPoint()
	}
	return routes, nil
}

// CheckRoutability reports whether every leg after the first can be reached
// from the leg before it. The first leg depends on the vehicle and is only
// checked for having a routable target.
func (r *Router) CheckRoutability(o *order.TransportOrder) error {
	var prev []string
	for i, d := range o.AllDriveOrders() {
		targets, err := r.targets(d.Destination())
		if err != nil {
			return fmt.Errorf("check %s drive order %d: %w", o.Name(), i, err)
		}
		if prev != nil && !r.anyReachable(prev, targets) {
			return fmt.Errorf("check %s drive order %d: %w", o.Name(), i, ErrUnroutable)
		}
		prev = targets
	}
	return nil
}

func (r *Router) targets(dest order.Destination) ([]string, error) {
	targets, err := r.model.TargetPoints(dest.Target())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnroutable, err)
	}
	if dest.Target().Kind == order.KindLocation {
		loc, _ := r.model.Location(dest.Target().Name)
		op := dest.Operation()
		if op != order.OpNop && op != order.OpMove && op != order.OpPark && !loc.AllowsOperation(op) {
			return nil, fmt.Errorf("%w: operation %q not allowed at %s", ErrUnroutable, op, loc.Name)
		}
	}
	return targets, nil
}

func (r *Router) anyReachable(from, to []string) bool {
	for _, f := range from {
		dist, _ := r.shortest(f)
		for _, t := range to {
			if _, ok := dist[t]; ok {
				return true
			}
		}
	}
	return false
}

// routeTo builds the cheapest route from point to any target point of dest.
func (r *Router) routeTo(from string, dest order.Destination) (*order.Route, error) {
	targets, err := r.targets(dest)
	if err != nil {
		return nil, err
	}
	dist, prev := r.shortest(from)
	best := ""
	for _, t := range targets {
		d, ok := dist[t]
		if !ok {
			continue
		}
		if best == "" || d < dist[best] {
			best = t
		}
	}
	if best == "" {
		return nil, fmt.Errorf("%w: no path from %s to %s", ErrUnroutable, from, dest.Target())
	}

	var edges []plant.Edge
	for p := best; p != from; {
		e := prev[p]
		edges = append(edges, e)
		p = e.From
	}
	if len(edges) == 0 {
		s, err := order.NewStep("", "", from, order.OrientationUndefined, 0, true)
		if err != nil {
			return nil, err
		}
		return order.NewRoute([]order.Step{s}, 0)
	}
	steps := make([]order.Step, 0, len(edges))
	for i := len(edges) - 1; i >= 0; i-- {
		e := edges[i]
		orientation := order.OrientationForward
		if e.Reverse {
			orientation = order.OrientationBackward
		}
		s, err := order.NewStep(e.Path, e.From, e.To, orientation, len(steps), true)
		if err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return order.NewRoute(steps, dist[best])
}

// shortest runs Dijkstra from source and returns distances plus, per point,
// the edge it was reached by.
func (r *Router) shortest(source string) (map[string]int64, map[string]plant.Edge) {
	dist := map[string]int64{source: 0}
	prev := make(map[string]plant.Edge)
	done := make(map[string]bool)
	q := &queue{{point: source}}
	for q.Len() > 0 {
		it := heap.Pop(q).(item)
		if done[it.point] {
			continue
		}
		done[it.point] = true
		for _, e := range r.model.EdgesFrom(it.point) {
			nd := it.cost + e.Length
			if d, ok := dist[e.To]; ok && d <= nd {
				continue
			}
			dist[e.To] = nd
			prev[e.To] = e
			heap.Push(q, item{point: e.To, cost: nd})
		}
	}
	return dist, prev
}

type item struct {
	point string
	cost  int64
}

type queue []item

func (q queue) Len() int { return len(q) }
func (q queue) Less(i, j int) bool {
	if q[i].cost != q[j].cost {
		return q[i].cost < q[j].cost
	}
	return q[i].point < q[j].point
}
func (q queue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *queue) Push(x any)   { *q = append(*q, x.(item)) }
func (q *queue) Pop() any {
	old := *q
	it := old[len(old)-1]
	*q = old[:len(old)-1]
	return it
}
