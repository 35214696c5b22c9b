package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krakflow/krakflow_core/internal/gtfs"
	"github.com/krakflow/krakflow_core/internal/models"
)

// A three-stop tram line plus a detached two-stop bus shuttle, so the build
// exercises both multiple modes and connectivity repair.
func fixtureFeed() *gtfs.Feed {
	return &gtfs.Feed{
		Stops: []gtfs.Stop{
			{ID: "A", Name: "Rondo Mogilskie", Lat: 50.0660, Lon: 19.9610},
			{ID: "B", Name: "Teatr Slowackiego", Lat: 50.0650, Lon: 19.9430},
			{ID: "C", Name: "Dworzec Glowny", Lat: 50.0680, Lon: 19.9470},
			{ID: "D", Name: "Salwator", Lat: 50.0530, Lon: 19.9150},
			{ID: "E", Name: "Kopiec Kosciuszki", Lat: 50.0550, Lon: 19.8930},
		},
		Routes: []gtfs.Route{
			{ID: "R1", Type: 0, ShortName: "4", LongName: "Tram line"},
			{ID: "R2", Type: 3, ShortName: "100", LongName: "Shuttle"},
		},
		Trips: []gtfs.Trip{
			{ID: "T1", RouteID: "R1"},
			{ID: "T2", RouteID: "R2"},
		},
		StopTimes: []gtfs.StopTime{
			{TripID: "T1", StopID: "A", StopSequence: 1, ArrivalSeconds: 28800, DepartureSeconds: 28800},
			{TripID: "T1", StopID: "B", StopSequence: 2, ArrivalSeconds: 28980, DepartureSeconds: 28980},
			{TripID: "T1", StopID: "C", StopSequence: 3, ArrivalSeconds: 29100, DepartureSeconds: 29100},
			{TripID: "T2", StopID: "D", StopSequence: 1, ArrivalSeconds: 30000, DepartureSeconds: 30000},
			{TripID: "T2", StopID: "E", StopSequence: 2, ArrivalSeconds: 30240, DepartureSeconds: 30240},
		},
	}
}

func TestBuildTransitEdges(t *testing.T) {
	graphs, err := NewBuilder().Build(fixtureFeed())
	require.NoError(t, err)

	tram := graphs["tram"]
	require.NotNil(t, tram)

	ab := tram.FindEdge("A", "B", "T1")
	require.NotNil(t, ab)
	assert.Equal(t, 180.0, ab.DefaultWeight, "weight is the arrival delta in seconds")
	assert.Equal(t, ab.DefaultWeight, ab.Weight)
	assert.Equal(t, "R1", ab.RouteID)
	assert.Equal(t, "4", ab.RouteShortName)
	assert.Greater(t, ab.DistanceKm, 0.0)
	assert.Greater(t, ab.SpeedKmh, 0.0)

	bc := tram.FindEdge("B", "C", "T1")
	require.NotNil(t, bc)
	assert.Equal(t, 120.0, bc.DefaultWeight)
}

func TestBuildSkipsNonPositiveSegments(t *testing.T) {
	feed := fixtureFeed()
	// B arrives before A departs, so A->B must be dropped.
	feed.StopTimes[1].ArrivalSeconds = 28700

	graphs, err := NewBuilder().Build(feed)
	require.NoError(t, err)

	tram := graphs["tram"]
	assert.Nil(t, tram.FindEdge("A", "B", "T1"))
	assert.NotNil(t, tram.FindEdge("B", "C", "T1"))
}

func TestBuildWalkingGraphMirrorsTransitPairs(t *testing.T) {
	graphs, err := NewBuilder().Build(fixtureFeed())
	require.NoError(t, err)

	walking := graphs[models.ModeWalking]
	require.NotNil(t, walking)

	forward := walking.EdgesBetween("A", "B")
	backward := walking.EdgesBetween("B", "A")
	require.Len(t, forward, 1)
	require.Len(t, backward, 1)
	assert.Equal(t, forward[0].DefaultWeight, backward[0].DefaultWeight)
	assert.Equal(t, 5.0, forward[0].SpeedKmh)
	assert.False(t, forward[0].Impacted())
}

func TestBuildBikeGraphUsesWalkingSpeedWithoutParkings(t *testing.T) {
	graphs, err := NewBuilder().Build(fixtureFeed())
	require.NoError(t, err)

	bike := graphs[models.ModeBike]
	require.NotNil(t, bike)

	edges := bike.EdgesBetween("A", "B")
	require.Len(t, edges, 1)
	assert.Equal(t, 5.0, edges[0].SpeedKmh)
}

func TestBuildBikeGraphSpeedsUpAccessibleEdges(t *testing.T) {
	builder := NewBuilder()
	graphs, err := builder.Build(fixtureFeed())
	require.NoError(t, err)

	walking := graphs[models.ModeWalking]
	parkings := []models.BikeParking{
		{Latitude: 50.0660, Longitude: 19.9610},
		{Latitude: 50.0650, Longitude: 19.9430},
	}
	builder.MarkBikeAccessible(walking, parkings)
	bike := builder.BuildBikeGraph(walking)

	ab := bike.EdgesBetween("A", "B")
	require.Len(t, ab, 1)
	assert.Equal(t, 20.0, ab[0].SpeedKmh)

	// C has no parking nearby, so B->C stays at walking speed.
	bc := bike.EdgesBetween("B", "C")
	require.Len(t, bc, 1)
	assert.Equal(t, 5.0, bc[0].SpeedKmh)
}

func TestBuildRepairsConnectivity(t *testing.T) {
	graphs, err := NewBuilder().Build(fixtureFeed())
	require.NoError(t, err)

	for mode, g := range graphs {
		assert.Len(t, g.WeaklyConnectedComponents(), 1, "mode %s must be weakly connected", mode)
	}

	// The walking graph spans both lines only through connector edges.
	walking := graphs[models.ModeWalking]
	connectors := 0
	walking.Edges(func(e *models.Edge) bool {
		if e.Connector {
			connectors++
			assert.Equal(t, 5.0, e.SpeedKmh)
		}
		return true
	})
	assert.Equal(t, 2, connectors)
}

func TestBuildEmptyFeedFails(t *testing.T) {
	feed := &gtfs.Feed{Stops: []gtfs.Stop{{ID: "A", Lat: 50, Lon: 19}}}
	_, err := NewBuilder().Build(feed)
	assert.ErrorIs(t, err, models.ErrFeedInvalid)
}
