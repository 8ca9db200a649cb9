package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cerradolab/vegetation.report/internal/config"
	"github.com/cerradolab/vegetation.report/internal/db"
	"github.com/cerradolab/vegetation.report/internal/delta"
	"github.com/cerradolab/vegetation.report/internal/monitoring"
	"github.com/cerradolab/vegetation.report/internal/raster"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

func newTestServer(t *testing.T) (*Server, *db.DB) {
	t.Helper()

	database, err := db.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.MigrateUp("../db/migrations"))

	table, err := delta.NewTransitionTable(100, map[string][]int{
		"loss":         {315, 321},
		"regeneration": {1503},
	})
	require.NoError(t, err)

	return NewServer(database, config.EmptyTuningConfig(), table, "ha"), database
}

// testSnapshot builds a 2x2 snapshot with 30m pixels in SIRGAS UTM 22S.
func testSnapshot(name string, year int, px []uint8) *raster.Snapshot {
	nodata := uint8(255)
	return &raster.Snapshot{
		Name:      name,
		Year:      year,
		Format:    "png",
		Width:     2,
		Height:    2,
		Bands:     1,
		SRID:      31982,
		Transform: raster.GeoTransform{500000, 30, 0, 8200000, 0, -30},
		NoData:    &nodata,
		Pixels:    px,
	}
}

func doRequest(t *testing.T, mux *http.ServeMux, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), into))
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv.ServeMux(), http.MethodGet, "/api/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "ok", resp["status"])
	assert.Contains(t, resp["version"], "vegetation.report")
}

func TestRasterEndpoints(t *testing.T) {
	srv, database := newTestServer(t)
	mux := srv.ServeMux()
	ctx := t.Context()

	rec := doRequest(t, mux, http.MethodGet, "/api/rasters", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	a := testSnapshot("cerrado", 2018, []uint8{3, 3, 3, 3})
	b := testSnapshot("cerrado", 2022, []uint8{15, 3, 3, 3})
	require.NoError(t, database.InsertRaster(ctx, a))
	require.NoError(t, database.InsertRaster(ctx, b))

	rec = doRequest(t, mux, http.MethodGet, "/api/rasters", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var infos []db.RasterInfo
	decodeJSON(t, rec, &infos)
	require.Len(t, infos, 2)
	assert.Equal(t, 2022, infos[0].Year)

	rec = doRequest(t, mux, http.MethodGet, fmt.Sprintf("/api/rasters/%d/stats", a.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats struct {
		ID    int64 `json:"id"`
		Year  int   `json:"year"`
		SRID  int   `json:"srid"`
		Stats struct {
			Count int64   `json:"count"`
			Mean  float64 `json:"mean"`
		} `json:"stats"`
	}
	decodeJSON(t, rec, &stats)
	assert.Equal(t, a.ID, stats.ID)
	assert.Equal(t, 2018, stats.Year)
	assert.Equal(t, 31982, stats.SRID)
	assert.EqualValues(t, 4, stats.Stats.Count)
	assert.InDelta(t, 3.0, stats.Stats.Mean, 1e-9)

	rec = doRequest(t, mux, http.MethodGet, "/api/rasters/9999/stats", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, mux, http.MethodGet, "/api/rasters/abc/stats", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, mux, http.MethodDelete, fmt.Sprintf("/api/rasters/%d", b.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(t, mux, http.MethodDelete, fmt.Sprintf("/api/rasters/%d", b.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProcessEndToEnd(t *testing.T) {
	srv, database := newTestServer(t)
	mux := srv.ServeMux()
	ctx := t.Context()

	a := testSnapshot("cerrado", 2018, []uint8{3, 3, 3, 3})
	b := testSnapshot("cerrado", 2022, []uint8{15, 3, 3, 3})
	require.NoError(t, database.InsertRaster(ctx, a))
	require.NoError(t, database.InsertRaster(ctx, b))
	require.NoError(t, database.UpsertLegend(ctx, []db.LegendEntry{
		{Code: 3, Name: "Forest", ColorHex: "#1f8d49"},
		{Code: 15, Name: "Pasture", ColorHex: "#edde8e"},
	}))

	rec := doRequest(t, mux, http.MethodPost, "/api/process", map[string]int64{
		"raster_t1": a.ID,
		"raster_t2": b.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var proc struct {
		RunID    string `json:"run_id"`
		Hotspots int    `json:"hotspots"`
	}
	decodeJSON(t, rec, &proc)
	_, err := uuid.Parse(proc.RunID)
	require.NoError(t, err)
	require.Equal(t, 1, proc.Hotspots)

	run, err := database.GetRun(ctx, proc.RunID)
	require.NoError(t, err)
	assert.Equal(t, string(delta.StateCommitted), run.State)
	assert.Equal(t, 1, run.HotspotCount)

	rec = doRequest(t, mux, http.MethodGet, "/api/hotspots", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Units    string          `json:"units"`
		Hotspots []db.HotspotRow `json:"hotspots"`
	}
	decodeJSON(t, rec, &listing)
	assert.Equal(t, "ha", listing.Units)
	require.Len(t, listing.Hotspots, 1)
	hs := listing.Hotspots[0]
	assert.Equal(t, 315, hs.TransitionCode)
	assert.Equal(t, "loss", hs.Category)
	assert.Equal(t, "Forest", hs.OriginName)
	assert.Equal(t, "Pasture", hs.DestName)
	assert.InDelta(t, 0.09, hs.AreaHa, 1e-9)

	// One 30m pixel is 900 m2.
	rec = doRequest(t, mux, http.MethodGet, "/api/hotspots?units=m2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeJSON(t, rec, &listing)
	assert.Equal(t, "m2", listing.Units)
	require.Len(t, listing.Hotspots, 1)
	assert.InDelta(t, 900.0, listing.Hotspots[0].AreaHa, 1e-9)

	rec = doRequest(t, mux, http.MethodGet, "/api/hotspots/geojson", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))
	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Properties map[string]interface{} `json:"properties"`
		} `json:"features"`
	}
	decodeJSON(t, rec, &fc)
	require.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 1)
	assert.EqualValues(t, 315, fc.Features[0].Properties["transition_code"])

	rec = doRequest(t, mux, http.MethodGet, "/api/stats?year_start=2018&year_end=2022", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats struct {
		Units string        `json:"units"`
		Stats []db.LossStat `json:"stats"`
	}
	decodeJSON(t, rec, &stats)
	require.Len(t, stats.Stats, 1)
	assert.Equal(t, 3, stats.Stats[0].ClassOrigin)
	assert.Equal(t, 15, stats.Stats[0].ClassDest)
	assert.InDelta(t, 0.09, stats.Stats[0].TotalAreaHa, 1e-9)

	rec = doRequest(t, mux, http.MethodGet, "/api/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summaries []db.PairSummary
	decodeJSON(t, rec, &summaries)
	require.Len(t, summaries, 1)
	assert.Equal(t, 2018, summaries[0].YearStart)
	assert.Equal(t, 2022, summaries[0].YearEnd)

	rec = doRequest(t, mux, http.MethodGet, "/api/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []db.Run
	decodeJSON(t, rec, &runs)
	require.Len(t, runs, 1)
	assert.Equal(t, string(delta.StateCommitted), runs[0].State)
}

func TestProcessValidation(t *testing.T) {
	srv, database := newTestServer(t)
	mux := srv.ServeMux()
	ctx := t.Context()

	a := testSnapshot("cerrado", 2018, []uint8{3, 3, 3, 3})
	require.NoError(t, database.InsertRaster(ctx, a))

	rec := doRequest(t, mux, http.MethodPost, "/api/process", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, mux, http.MethodPost, "/api/process", map[string]int64{"raster_t1": a.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, mux, http.MethodPost, "/api/process", map[string]int64{
		"raster_t1": a.ID, "raster_t2": a.ID,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, mux, http.MethodPost, "/api/process", map[string]int64{
		"raster_t1": a.ID, "raster_t2": 9999,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProcessProjectionMismatchAbortsRun(t *testing.T) {
	srv, database := newTestServer(t)
	mux := srv.ServeMux()
	ctx := t.Context()

	a := testSnapshot("cerrado", 2018, []uint8{3, 3, 3, 3})
	b := testSnapshot("cerrado", 2022, []uint8{15, 3, 3, 3})
	b.SRID = 4326
	require.NoError(t, database.InsertRaster(ctx, a))
	require.NoError(t, database.InsertRaster(ctx, b))

	rec := doRequest(t, mux, http.MethodPost, "/api/process", map[string]int64{
		"raster_t1": a.ID, "raster_t2": b.ID,
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	runs, err := database.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, string(delta.StateAborted), runs[0].State)
	require.NotNil(t, runs[0].Error)
	assert.Contains(t, *runs[0].Error, "projection")
}

func TestProcessRejectsActiveRun(t *testing.T) {
	srv, database := newTestServer(t)
	mux := srv.ServeMux()
	ctx := t.Context()

	a := testSnapshot("cerrado", 2018, []uint8{3, 3, 3, 3})
	b := testSnapshot("cerrado", 2022, []uint8{15, 3, 3, 3})
	require.NoError(t, database.InsertRaster(ctx, a))
	require.NoError(t, database.InsertRaster(ctx, b))

	require.NoError(t, database.CreateRun(ctx, uuid.New().String(), a.ID, b.ID))

	rec := doRequest(t, mux, http.MethodPost, "/api/process", map[string]int64{
		"raster_t1": a.ID, "raster_t2": b.ID,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHotspotParamValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.ServeMux()

	rec := doRequest(t, mux, http.MethodGet, "/api/hotspots?units=acres", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, mux, http.MethodGet, "/api/hotspots?transition=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, mux, http.MethodGet, "/api/hotspots/geojson?tolerance=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, mux, http.MethodGet, "/api/stats?year_start=nope", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLegendEndpoint(t *testing.T) {
	srv, database := newTestServer(t)
	mux := srv.ServeMux()

	rec := doRequest(t, mux, http.MethodGet, "/api/legend", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	require.NoError(t, database.UpsertLegend(t.Context(), []db.LegendEntry{
		{Code: 3, Name: "Forest", ColorHex: "#1f8d49"},
	}))

	rec = doRequest(t, mux, http.MethodGet, "/api/legend", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var legend []db.LegendEntry
	decodeJSON(t, rec, &legend)
	require.Len(t, legend, 1)
	assert.Equal(t, "Forest", legend[0].Name)
}
