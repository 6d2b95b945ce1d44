package order_test

import (
	"testing"

	"fleetkernel/order"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDestination_AcceptsPointsAndLocations(t *testing.T) {
	for _, kind := range []order.Kind{order.KindPoint, order.KindLocation} {
		d, err := order.NewDestination(order.Ref{Kind: kind, Name: "X"}, "Load")
		require.NoError(t, err)
		assert.Equal(t, kind, d.Target().Kind)
		assert.Equal(t, "Load", d.Operation())
	}
}

func TestNewDestination_RejectsOtherKinds(t *testing.T) {
	for _, kind := range []order.Kind{order.KindPath, order.KindVehicle, order.KindTransportOrder, ""} {
		_, err := order.NewDestination(order.Ref{Kind: kind, Name: "X"}, order.OpMove)
		assert.ErrorIs(t, err, order.ErrIllegalArgument, "kind %q", kind)
	}
}

func TestDestination_PropertiesAreCopied(t *testing.T) {
	d, err := order.NewDestination(order.Ref{Kind: order.KindLocation, Name: "Rack-1"}, "Unload")
	require.NoError(t, err)

	props := map[string]string{"height": "2"}
	d2 := d.WithProperties(props)
	props["height"] = "9"
	d3 := d2.WithProperty("speed", "slow")

	assert.Equal(t, "2", d2.Property("height"))
	assert.Empty(t, d2.Property("speed"))
	assert.Equal(t, "slow", d3.Property("speed"))
	assert.Empty(t, d.Properties())
}
