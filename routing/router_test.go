package routing

import (
	"context"
	"errors"
	"testing"

	"fleetkernel/order"
	"fleetkernel/plant"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRouter(t *testing.T) *Router {
	t.Helper()
	m, err := plant.Load("../plant/testdata/plant.yaml")
	require.NoError(t, err)
	return NewRouter(m)
}

func newOrder(t *testing.T, targets ...order.Ref) *order.TransportOrder {
	t.Helper()
	var dos []*order.DriveOrder
	for _, ref := range targets {
		d, err := order.NewDestination(ref, order.OpNop)
		require.NoError(t, err)
		dos = append(dos, order.NewDriveOrder(d))
	}
	o, err := order.NewTransportOrder(1, "TO-1", dos)
	require.NoError(t, err)
	return o
}

func loc(name string) order.Ref   { return order.Ref{Kind: order.KindLocation, Name: name} }
func point(name string) order.Ref { return order.Ref{Kind: order.KindPoint, Name: name} }

func TestRoute_ShortestPath(t *testing.T) {
	r := testRouter(t)

	routes, err := r.Route(context.Background(), "P1", newOrder(t, loc("Charger")))

	require.NoError(t, err)
	require.Len(t, routes, 1)
	route := routes[0]
	assert.Equal(t, int64(3000), route.Cost())
	assert.Equal(t, "P4", route.FinalDestinationPoint())
	var paths []string
	for _, s := range route.Steps() {
		paths = append(paths, s.Path())
	}
	assert.Equal(t, []string{"P1--P2", "P2--P3", "P3--P4"}, paths)
}

func TestRoute_ChainsLegsAndReverses(t *testing.T) {
	r := testRouter(t)

	routes, err := r.Route(context.Background(), "P1", newOrder(t, loc("Rack-1"), point("P1")))

	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, "P3", routes[0].FinalDestinationPoint())
	back := routes[1].Steps()
	require.NotEmpty(t, back)
	last := back[len(back)-1]
	assert.Equal(t, "P1--P2", last.Path())
	assert.Equal(t, order.OrientationBackward, last.Orientation())
}

func TestRoute_AlreadyThere(t *testing.T) {
	r := testRouter(t)

	routes, err := r.Route(context.Background(), "P3", newOrder(t, loc("Rack-1")))

	require.NoError(t, err)
	steps := routes[0].Steps()
	require.Len(t, steps, 1)
	assert.Empty(t, steps[0].Path())
	assert.Equal(t, int64(0), routes[0].Cost())
}

func TestRoute_Unreachable(t *testing.T) {
	r := testRouter(t)

	_, err := r.Route(context.Background(), "P1", newOrder(t, loc("Island")))

	assert.True(t, errors.Is(err, ErrUnroutable))
}

func TestCheckRoutability(t *testing.T) {
	r := testRouter(t)

	assert.NoError(t, r.CheckRoutability(newOrder(t, loc("Rack-1"), loc("Charger"))))
	assert.ErrorIs(t, r.CheckRoutability(newOrder(t, loc("Charger"), loc("Island"))), ErrUnroutable)
	assert.ErrorIs(t, r.CheckRoutability(newOrder(t, point("nowhere"))), ErrUnroutable)
}

func TestRoute_OperationNotAllowed(t *testing.T) {
	r := testRouter(t)
	d, err := order.NewDestination(loc("Rack-1"), "Charge")
	require.NoError(t, err)
	o, err := order.NewTransportOrder(1, "TO-1", []*order.DriveOrder{order.NewDriveOrder(d)})
	require.NoError(t, err)

	_, err = r.Route(context.Background(), "P1", o)

	assert.ErrorIs(t, err, ErrUnroutable)
}
