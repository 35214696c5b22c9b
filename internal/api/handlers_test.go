package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krakflow/krakflow_core/internal/graph"
	"github.com/krakflow/krakflow_core/internal/gtfs"
	"github.com/krakflow/krakflow_core/internal/models"
)

func testFeed() *gtfs.Feed {
	return &gtfs.Feed{
		Stops: []gtfs.Stop{
			{ID: "A", Name: "Rondo Mogilskie", Lat: 50.0660, Lon: 19.9610},
			{ID: "B", Name: "Teatr Slowackiego", Lat: 50.0650, Lon: 19.9430},
			{ID: "C", Name: "Dworzec Glowny", Lat: 50.0680, Lon: 19.9470},
		},
		Routes: []gtfs.Route{{ID: "R1", Type: 0, ShortName: "4"}},
		Trips:  []gtfs.Trip{{ID: "T1", RouteID: "R1"}},
		StopTimes: []gtfs.StopTime{
			{TripID: "T1", StopID: "A", StopSequence: 1, ArrivalSeconds: 28800, DepartureSeconds: 28800},
			{TripID: "T1", StopID: "B", StopSequence: 2, ArrivalSeconds: 28980, DepartureSeconds: 28980},
			{TripID: "T1", StopID: "C", StopSequence: 3, ArrivalSeconds: 29100, DepartureSeconds: 29100},
		},
	}
}

func testApp(t *testing.T) *fiber.App {
	t.Helper()
	graphs, err := graph.NewBuilder().Build(testFeed())
	require.NoError(t, err)
	store := graph.NewStore(graphs, graph.NewBuilder())

	app := fiber.New()
	NewHandler(store, nil, nil, nil).Register(app)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	var decoded map[string]interface{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp, decoded
}

func TestHealthRoute(t *testing.T) {
	app := testApp(t)
	resp, body := doJSON(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestModesRoute(t *testing.T) {
	app := testApp(t)
	resp, body := doJSON(t, app, http.MethodGet, "/transport/modes", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.ElementsMatch(t, []interface{}{"bike", "tram", "walking"}, body["modes"])
}

func TestGraphsRoute(t *testing.T) {
	app := testApp(t)

	t.Run("all modes", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodGet, "/transport/graphs", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		graphs := body["graphs"].(map[string]interface{})
		assert.Len(t, graphs, 3)
	})

	t.Run("single mode", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodGet, "/transport/graphs?mode=tram", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		graphs := body["graphs"].(map[string]interface{})
		require.Contains(t, graphs, "tram")
		tram := graphs["tram"].(map[string]interface{})
		assert.NotEmpty(t, tram["nodes"])
		assert.NotEmpty(t, tram["edges"])
	})

	t.Run("unknown mode", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodGet, "/transport/graphs?mode=zeppelin", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestPlanRouteRoute(t *testing.T) {
	app := testApp(t)

	t.Run("clean route", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodGet, "/transport/routes?mode=tram&source=A&target=C", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, false, body["incident_detected"])
		assert.Nil(t, body["suggested_path"])
		defaultPath := body["default_path"].(map[string]interface{})
		assert.Equal(t, []interface{}{"A", "B", "C"}, defaultPath["nodes"])
	})

	t.Run("missing params", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodGet, "/transport/routes?mode=tram", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown node", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodGet, "/transport/routes?mode=tram&source=A&target=Z", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown mode", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodGet, "/transport/routes?mode=zeppelin&source=A&target=C", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestUpdateEdgeRoute(t *testing.T) {
	app := testApp(t)

	t.Run("by weight", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodPatch, "/transport/graphs/tram/edges/A/B",
			map[string]interface{}{"key": "T1", "weight": 500})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		edge := body["edge"].(map[string]interface{})
		assert.Equal(t, 500.0, edge["weight"])
		assert.Equal(t, 180.0, edge["default_weight"])
	})

	t.Run("invalid weight", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodPatch, "/transport/graphs/tram/edges/A/B",
			map[string]interface{}{"weight": -1})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown edge", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodPatch, "/transport/graphs/tram/edges/A/Z",
			map[string]interface{}{"weight": 100})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("unknown key reports known keys", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodPatch, "/transport/graphs/tram/edges/A/B",
			map[string]interface{}{"key": "nope", "weight": 100})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Contains(t, body["error"], "T1")
	})
}

func TestNearestLookupRoute(t *testing.T) {
	app := testApp(t)

	t.Run("finds transit edge", func(t *testing.T) {
		resp, body := doJSON(t, app, http.MethodPost, "/transport/graphs/nearest/lookup",
			map[string]interface{}{"latitude": 50.062, "longitude": 19.938})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		edge := body["edge"].(map[string]interface{})
		assert.Equal(t, "tram", edge["mode"])
		assert.NotNil(t, edge["distance_to_point_km"])
	})

	t.Run("missing coordinates", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodPost, "/transport/graphs/nearest/lookup",
			map[string]interface{}{"latitude": 50.062})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestUpdateNearestEdgeRoute(t *testing.T) {
	app := testApp(t)

	resp, body := doJSON(t, app, http.MethodPatch, "/transport/graphs/nearest",
		map[string]interface{}{"latitude": 50.062, "longitude": 19.938, "weight": 1234})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	edge := body["edge"].(map[string]interface{})
	assert.Equal(t, 1234.0, edge["weight"])
	assert.NotEqual(t, models.ModeWalking, edge["mode"])
	assert.NotEqual(t, models.ModeBike, edge["mode"])

	t.Run("weight required", func(t *testing.T) {
		resp, _ := doJSON(t, app, http.MethodPatch, "/transport/graphs/nearest",
			map[string]interface{}{"latitude": 50.062, "longitude": 19.938})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestIncidentRoutesWithoutStore(t *testing.T) {
	app := testApp(t)
	resp, _ := doJSON(t, app, http.MethodGet, "/api/v1/incidents/", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodPost, "/api/v1/incidents/",
		map[string]interface{}{"latitude": 50.0, "longitude": 19.9, "category": "Traffic"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestPostRoutesWithoutStore(t *testing.T) {
	app := testApp(t)
	resp, _ := doJSON(t, app, http.MethodGet, "/api/v1/posts/", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestVisualizerRoute(t *testing.T) {
	app := testApp(t)
	req := httptest.NewRequest(http.MethodGet, "/transport/visualizer", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
}

func TestStreamRequiresUpgrade(t *testing.T) {
	app := testApp(t)
	req := httptest.NewRequest(http.MethodGet, "/transport/graphs/stream", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}
