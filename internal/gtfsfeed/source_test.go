package gtfsfeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/jamespfennell/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stopgraph/internal/catalog"
)

func testFeed() *gtfs.Static {
	a := &gtfs.Stop{Id: "A", Code: "1", Name: "Airport"}
	b := &gtfs.Stop{Id: "B", Code: "2", Name: "Bay Street"}
	c := &gtfs.Stop{Id: "C", Code: "3", Name: "Central"}
	red := &gtfs.Route{Id: "RED", ShortName: "R", LongName: "Red Line"}

	return &gtfs.Static{
		Stops:  []gtfs.Stop{*a, *b, *c},
		Routes: []gtfs.Route{*red},
		Trips: []gtfs.ScheduledTrip{
			{
				ID:    "short",
				Route: red,
				StopTimes: []gtfs.ScheduledStopTime{
					{Stop: a, StopSequence: 1},
					{Stop: b, StopSequence: 2},
				},
			},
			{
				ID:    "full",
				Route: red,
				StopTimes: []gtfs.ScheduledStopTime{
					{Stop: c, StopSequence: 3},
					{Stop: a, StopSequence: 1},
					{Stop: b, StopSequence: 2},
				},
			},
			{ID: "no-route"},
		},
	}
}

func TestRoutes(t *testing.T) {
	routes, err := Routes(testFeed(), nil)
	require.NoError(t, err)
	require.Len(t, routes, 1)

	r := routes[0]
	assert.Equal(t, "RED", r.ID, "trips without a direction keep the bare route id")
	assert.Equal(t, "R", r.Num)
	assert.Equal(t, "Red Line", r.Name)
	assert.Equal(t, "C", r.DestinationID)
	require.Len(t, r.Stops, 3, "longest trip wins")
	assert.Equal(t, []string{"A", "B", "C"}, []string{r.Stops[0].ID, r.Stops[1].ID, r.Stops[2].ID})
	for _, rs := range r.Stops {
		assert.False(t, rs.NoBoarding)
	}

	t.Run("explicit no pickup marks the stop", func(t *testing.T) {
		routes, err := Routes(testFeed(), NoPickup{"full": {2: true}})
		require.NoError(t, err)
		assert.True(t, routes[0].Stops[1].NoBoarding)
		assert.False(t, routes[0].Stops[0].NoBoarding)
	})

	t.Run("direction ids follow the feed values", func(t *testing.T) {
		feed := testFeed()
		feed.Trips[0].DirectionId = gtfs.DirectionID_False
		feed.Trips[1].DirectionId = gtfs.DirectionID_True

		routes, err := Routes(feed, nil)
		require.NoError(t, err)
		require.Len(t, routes, 2)
		assert.Equal(t, "RED:0", routes[0].ID)
		assert.Equal(t, "RED:1", routes[1].ID)
	})

	t.Run("stop time without a stop is an error", func(t *testing.T) {
		feed := testFeed()
		feed.Trips[1].StopTimes[0].Stop = nil

		_, err := Routes(feed, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "trip full")
	})
}

func TestStops(t *testing.T) {
	stops := Stops(testFeed())
	require.Len(t, stops, 3)
	assert.Equal(t, "B", stops[1].ID)
	assert.Equal(t, "2", stops[1].Code)
	assert.Equal(t, "Bay Street", stops[1].Name)
	assert.Equal(t, "bay street", stops[1].Keywords)
}

func TestSourceErrors(t *testing.T) {
	target, err := catalog.Default().Lookup("intra", "rail")
	require.NoError(t, err)

	t.Run("no source configured", func(t *testing.T) {
		_, err := NewSource("", 0).FetchRoutes(context.Background(), target)
		assert.Error(t, err)
	})

	t.Run("missing local file", func(t *testing.T) {
		_, err := NewSource(filepath.Join(t.TempDir(), "feed.zip"), 0).FetchStops(context.Background(), target)
		assert.Error(t, err)
	})

	t.Run("download failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		_, err := NewSource(server.URL+"/feed.zip", 0).FetchRoutes(context.Background(), target)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "503")
	})

	t.Run("cached feed is reused", func(t *testing.T) {
		src := NewSource("unused.zip", 0)
		src.feeds["unused.zip"] = cachedFeed{feed: testFeed(), noPickup: NoPickup{}, loadedAt: time.Now()}

		routes, err := src.FetchRoutes(context.Background(), target)
		require.NoError(t, err)
		assert.Len(t, routes, 1)

		src.Reset()
		_, err = src.FetchRoutes(context.Background(), target)
		assert.Error(t, err)
	})

	t.Run("expired feed is reloaded", func(t *testing.T) {
		src := NewSource("unused.zip", 0)
		src.feeds["unused.zip"] = cachedFeed{feed: testFeed(), loadedAt: time.Now().Add(-2 * src.TTL)}

		_, err := src.FetchRoutes(context.Background(), target)
		assert.Error(t, err, "reload of the missing file fails")
	})
}
