package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/cerradolab/vegetation.report/internal/db"
	"github.com/cerradolab/vegetation.report/internal/delta"
	"github.com/cerradolab/vegetation.report/internal/httputil"
	"github.com/cerradolab/vegetation.report/internal/units"
	"github.com/cerradolab/vegetation.report/internal/version"
)

// requestUnits resolves the area unit for a request: ?units= when given,
// the server default otherwise.
func (s *Server) requestUnits(r *http.Request) (string, error) {
	u := r.URL.Query().Get("units")
	if u == "" {
		return s.units, nil
	}
	if !units.IsValid(u) {
		return "", fmt.Errorf("invalid units %q, valid: %s", u, units.GetValidUnitsString())
	}
	return u, nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (*int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %q parameter", name)
	}
	return &v, nil
}

func (s *Server) listRasters(w http.ResponseWriter, r *http.Request) {
	rasters, err := s.db.ListRasters(r.Context())
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list rasters: %v", err))
		return
	}
	if rasters == nil {
		rasters = []db.RasterInfo{}
	}
	httputil.WriteJSONOK(w, rasters)
}

func (s *Server) showRasterStats(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		httputil.BadRequest(w, "invalid raster id")
		return
	}

	snap, err := s.db.GetRaster(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		httputil.NotFound(w, fmt.Sprintf("raster %d not found", id))
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load raster: %v", err))
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"id":    snap.ID,
		"name":  snap.Name,
		"year":  snap.Year,
		"srid":  snap.SRID,
		"stats": snap.Stats(),
	})
}

func (s *Server) deleteRaster(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		httputil.BadRequest(w, "invalid raster id")
		return
	}

	err = s.db.DeleteRaster(r.Context(), id)
	switch {
	case errors.Is(err, db.ErrNotFound):
		httputil.NotFound(w, fmt.Sprintf("raster %d not found", id))
	case errors.Is(err, db.ErrRasterInUse):
		httputil.Conflict(w, fmt.Sprintf("raster %d is referenced by runs", id))
	case err != nil:
		httputil.InternalServerError(w, fmt.Sprintf("failed to delete raster: %v", err))
	default:
		httputil.WriteJSONOK(w, map[string]int64{"deleted": id})
	}
}

// engineErrorStatus maps pipeline failures onto HTTP status codes:
// incomparable inputs are the client's problem, size limits are a bad
// request, everything else is on us.
func engineErrorStatus(err error) int {
	switch {
	case errors.Is(err, delta.ErrMissingProjection),
		errors.Is(err, delta.ErrProjectionMismatch),
		errors.Is(err, delta.ErrRotatedGrid),
		errors.Is(err, delta.ErrDisjointExtent),
		errors.Is(err, delta.ErrClassRange):
		return http.StatusUnprocessableEntity
	case errors.Is(err, delta.ErrTooLarge):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) triggerProcess(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RasterT1          int64    `json:"raster_t1"`
		RasterT2          int64    `json:"raster_t2"`
		SimplifyTolerance *float64 `json:"simplify_tolerance"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, "invalid request body")
		return
	}
	if req.RasterT1 <= 0 || req.RasterT2 <= 0 {
		httputil.BadRequest(w, "raster_t1 and raster_t2 are required")
		return
	}
	if req.RasterT1 == req.RasterT2 {
		httputil.BadRequest(w, "raster_t1 and raster_t2 must differ")
		return
	}

	a, err := s.db.GetRaster(r.Context(), req.RasterT1)
	if err != nil {
		s.writeRasterLoadError(w, req.RasterT1, err)
		return
	}
	b, err := s.db.GetRaster(r.Context(), req.RasterT2)
	if err != nil {
		s.writeRasterLoadError(w, req.RasterT2, err)
		return
	}

	opts := delta.OptionsFromConfig(s.cfg)
	if req.SimplifyTolerance != nil {
		opts.SimplifyTolerance = *req.SimplifyTolerance
	}

	job := delta.NewJob(a, b, s.table, s.db, opts)
	if err := s.db.CreateRun(r.Context(), job.RunID, a.ID, b.ID); err != nil {
		if errors.Is(err, db.ErrRunActive) {
			httputil.Conflict(w, err.Error())
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("failed to create run: %v", err))
		return
	}

	ctx := r.Context()
	if timeout := s.cfg.GetJobTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	count, err := job.Run(ctx)
	if err != nil {
		// The run row outlives the failed job as the audit trail; a
		// background context so an expired request deadline cannot block
		// the bookkeeping write.
		if ferr := s.db.FinishRun(context.Background(), job.RunID, delta.StateAborted, 0, err.Error()); ferr != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to record aborted run: %v", ferr))
			return
		}
		httputil.WriteJSONError(w, engineErrorStatus(err), err.Error())
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"run_id":   job.RunID,
		"hotspots": count,
	})
}

func (s *Server) writeRasterLoadError(w http.ResponseWriter, id int64, err error) {
	if errors.Is(err, db.ErrNotFound) {
		httputil.NotFound(w, fmt.Sprintf("raster %d not found", id))
		return
	}
	httputil.InternalServerError(w, fmt.Sprintf("failed to load raster %d: %v", id, err))
}

// hotspotFilter builds the store filter from query parameters.
func hotspotFilter(r *http.Request) (db.HotspotFilter, error) {
	var f db.HotspotFilter
	var err error
	if f.Transition, err = queryInt(r, "transition"); err != nil {
		return f, err
	}
	if f.YearStart, err = queryInt(r, "year_start"); err != nil {
		return f, err
	}
	if f.YearEnd, err = queryInt(r, "year_end"); err != nil {
		return f, err
	}
	if c := r.URL.Query().Get("category"); c != "" {
		f.Category = &c
	}
	if limit, err := queryInt(r, "limit"); err != nil {
		return f, err
	} else if limit != nil {
		f.Limit = *limit
	}
	return f, nil
}

func (s *Server) listHotspots(w http.ResponseWriter, r *http.Request) {
	u, err := s.requestUnits(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	filter, err := hotspotFilter(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	rows, err := s.db.QueryHotspots(r.Context(), filter)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to query hotspots: %v", err))
		return
	}
	if rows == nil {
		rows = []db.HotspotRow{}
	}

	// Areas are stored in hectares; convert for transport only.
	for i := range rows {
		rows[i].AreaHa = units.ConvertArea(rows[i].AreaHa, u)
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"units":    u,
		"hotspots": rows,
	})
}

func (s *Server) hotspotGeoJSON(w http.ResponseWriter, r *http.Request) {
	filter, err := hotspotFilter(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	tolerance := 0.0
	if raw := r.URL.Query().Get("tolerance"); raw != "" {
		tolerance, err = strconv.ParseFloat(raw, 64)
		if err != nil || tolerance < 0 {
			httputil.BadRequest(w, "invalid 'tolerance' parameter")
			return
		}
	}

	payload, err := s.db.HotspotGeoJSON(r.Context(), filter, tolerance)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to build geojson: %v", err))
		return
	}
	httputil.WriteGeoJSON(w, payload)
}

func (s *Server) showLossStats(w http.ResponseWriter, r *http.Request) {
	u, err := s.requestUnits(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	yearStart := 0
	yearEnd := 9999
	if v, err := queryInt(r, "year_start"); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	} else if v != nil {
		yearStart = *v
	}
	if v, err := queryInt(r, "year_end"); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	} else if v != nil {
		yearEnd = *v
	}

	stats, err := s.db.LossStats(r.Context(), yearStart, yearEnd)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to compute stats: %v", err))
		return
	}
	if stats == nil {
		stats = []db.LossStat{}
	}
	for i := range stats {
		stats[i].TotalAreaHa = units.ConvertArea(stats[i].TotalAreaHa, u)
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"units":      u,
		"year_start": yearStart,
		"year_end":   yearEnd,
		"stats":      stats,
	})
}

func (s *Server) showSummary(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.db.PairSummaries(r.Context())
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to compute summary: %v", err))
		return
	}
	if summaries == nil {
		summaries = []db.PairSummary{}
	}
	httputil.WriteJSONOK(w, summaries)
}

func (s *Server) showLegend(w http.ResponseWriter, r *http.Request) {
	legend, err := s.db.ListLegend(r.Context())
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list legend: %v", err))
		return
	}
	if legend == nil {
		legend = []db.LegendEntry{}
	}
	httputil.WriteJSONOK(w, legend)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v, err := queryInt(r, "limit"); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	} else if v != nil {
		limit = *v
	}

	runs, err := s.db.ListRuns(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list runs: %v", err))
		return
	}
	if runs == nil {
		runs = []db.Run{}
	}
	httputil.WriteJSONOK(w, runs)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("database unreachable: %v", err))
		return
	}
	httputil.WriteJSONOK(w, map[string]string{
		"status":  "ok",
		"version": version.String(),
	})
}
