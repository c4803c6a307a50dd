package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stopgraph/internal/transit"
)

func TestAttachRoutes(t *testing.T) {
	routes := []transit.Route{
		{ID: "R1", Type: "rail", Num: "1", Stops: []transit.RouteStop{{ID: "A"}, {ID: "B"}, {ID: "A"}}},
		{ID: "R2", Type: "rail", Num: "2", Stops: []transit.RouteStop{{ID: "B"}}},
	}
	in := stops("A", "B", "C")
	in[2].Routes = []transit.RouteRef{{ID: "STALE"}}

	out, err := AttachRoutes(routes, in)
	require.NoError(t, err)

	assert.Equal(t, []transit.RouteRef{{ID: "R1", Type: "rail", Num: "1"}}, byID(t, out, "A").Routes)
	assert.Equal(t, []transit.RouteRef{
		{ID: "R1", Type: "rail", Num: "1"},
		{ID: "R2", Type: "rail", Num: "2"},
	}, byID(t, out, "B").Routes)
	assert.Empty(t, byID(t, out, "C").Routes)
	assert.Len(t, in[2].Routes, 1, "input must not be modified")
}

func TestAttachRoutesMissingStop(t *testing.T) {
	_, err := AttachRoutes([]transit.Route{route("R1", "A", "Z")}, stops("A"))
	assert.ErrorIs(t, err, ErrIntegrity)
}
