// Package api exposes the hotspot service over HTTP: the raster
// catalogue, the job trigger, and the hotspot query/GeoJSON/statistics
// surface.
package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/cerradolab/vegetation.report/internal/config"
	"github.com/cerradolab/vegetation.report/internal/db"
	"github.com/cerradolab/vegetation.report/internal/delta"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	db    *db.DB
	cfg   *config.TuningConfig
	table *delta.TransitionTable
	units string
}

// NewServer wires the store, tuning config, and transition table into a
// request handler. units is the default area unit for responses; clients
// may override per request with ?units=.
func NewServer(database *db.DB, cfg *config.TuningConfig, table *delta.TransitionTable, units string) *Server {
	return &Server{
		db:    database,
		cfg:   cfg,
		table: table,
		units: units,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/rasters", s.listRasters)
	mux.HandleFunc("GET /api/rasters/{id}/stats", s.showRasterStats)
	mux.HandleFunc("DELETE /api/rasters/{id}", s.deleteRaster)
	mux.HandleFunc("POST /api/process", s.triggerProcess)
	mux.HandleFunc("GET /api/hotspots", s.listHotspots)
	mux.HandleFunc("GET /api/hotspots/geojson", s.hotspotGeoJSON)
	mux.HandleFunc("GET /api/stats", s.showLossStats)
	mux.HandleFunc("GET /api/summary", s.showSummary)
	mux.HandleFunc("GET /api/legend", s.showLegend)
	mux.HandleFunc("GET /api/runs", s.listRuns)
	mux.HandleFunc("GET /api/healthz", s.healthz)
	return mux
}
