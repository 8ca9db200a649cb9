package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cerradolab/vegetation.report/internal/delta"
	"github.com/cerradolab/vegetation.report/internal/geom"
)

// HotspotFilter narrows hotspot queries. Nil fields are unconstrained.
type HotspotFilter struct {
	Transition *int
	Category   *string
	YearStart  *int
	YearEnd    *int
	Limit      int
}

const defaultHotspotLimit = 1000

// where renders the filter into a WHERE clause and its arguments.
func (f HotspotFilter) where() (string, []interface{}) {
	var clauses []string
	var args []interface{}
	if f.Transition != nil {
		clauses = append(clauses, "h.transition_code = ?")
		args = append(args, *f.Transition)
	}
	if f.Category != nil {
		clauses = append(clauses, "h.category = ?")
		args = append(args, *f.Category)
	}
	if f.YearStart != nil {
		clauses = append(clauses, "h.year_start = ?")
		args = append(args, *f.YearStart)
	}
	if f.YearEnd != nil {
		clauses = append(clauses, "h.year_end = ?")
		args = append(args, *f.YearEnd)
	}
	if len(clauses) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func (f HotspotFilter) limit() int {
	if f.Limit <= 0 {
		return defaultHotspotLimit
	}
	return f.Limit
}

// HotspotRow is a stored hotspot joined with legend names for display.
type HotspotRow struct {
	ID             int64           `json:"id"`
	RunID          string          `json:"run_id"`
	YearStart      int             `json:"year_start"`
	YearEnd        int             `json:"year_end"`
	ClassOrigin    int             `json:"class_origin"`
	ClassDest      int             `json:"class_dest"`
	OriginName     string          `json:"origin_name,omitempty"`
	DestName       string          `json:"dest_name,omitempty"`
	OriginColor    string          `json:"origin_color,omitempty"`
	DestColor      string          `json:"dest_color,omitempty"`
	TransitionCode int             `json:"transition_code"`
	Category       string          `json:"category"`
	PixelCount     int             `json:"pixel_count"`
	AreaHa         float64         `json:"area_ha"`
	Geometry       json.RawMessage `json:"geometry"`
}

// CommitHotspots writes a run's full hotspot set and marks the run
// committed, all in one transaction. This is the delta.Sink the pipeline
// drives: a failure anywhere rolls back every row, so a run is either
// fully committed or absent.
func (db *DB) CommitHotspots(ctx context.Context, runID string, hotspots []delta.Hotspot) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit hotspots: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO hotspots (run_id, year_start, year_end, class_origin, class_dest,
			transition_code, category, pixel_count, area_ha, geometry)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("commit hotspots: %w", err)
	}
	defer stmt.Close()

	for i := range hotspots {
		h := &hotspots[i]
		geometry, err := json.Marshal(h.Geometry)
		if err != nil {
			return fmt.Errorf("encode hotspot geometry: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, runID, h.YearStart, h.YearEnd,
			h.ClassOrigin, h.ClassDest, h.TransitionCode, h.Category,
			h.PixelCount, h.AreaHa, string(geometry)); err != nil {
			return fmt.Errorf("insert hotspot: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE runs SET state = ?, hotspot_count = ?, finished_at = CURRENT_TIMESTAMP
		WHERE run_id = ?`,
		string(delta.StateCommitted), len(hotspots), runID)
	if err != nil {
		return fmt.Errorf("commit run %s: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}

	return tx.Commit()
}

// QueryHotspots returns filtered hotspots ordered by area descending, the
// largest changes first.
func (db *DB) QueryHotspots(ctx context.Context, filter HotspotFilter) ([]HotspotRow, error) {
	where, args := filter.where()
	query := fmt.Sprintf(`
		SELECT h.id, h.run_id, h.year_start, h.year_end, h.class_origin, h.class_dest,
			COALESCE(lo.name, ''), COALESCE(ld.name, ''),
			COALESCE(lo.color_hex, ''), COALESCE(ld.color_hex, ''),
			h.transition_code, h.category, h.pixel_count, h.area_ha, h.geometry
		FROM hotspots h
		LEFT JOIN legend lo ON lo.code = h.class_origin
		LEFT JOIN legend ld ON ld.code = h.class_dest
		%s
		ORDER BY h.area_ha DESC, h.id
		LIMIT ?`, where)
	args = append(args, filter.limit())

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query hotspots: %w", err)
	}
	defer rows.Close()

	var out []HotspotRow
	for rows.Next() {
		var h HotspotRow
		var geometry string
		if err := rows.Scan(&h.ID, &h.RunID, &h.YearStart, &h.YearEnd,
			&h.ClassOrigin, &h.ClassDest, &h.OriginName, &h.DestName,
			&h.OriginColor, &h.DestColor, &h.TransitionCode, &h.Category, &h.PixelCount, &h.AreaHa,
			&geometry); err != nil {
			return nil, fmt.Errorf("scan hotspot row: %w", err)
		}
		h.Geometry = json.RawMessage(geometry)
		out = append(out, h)
	}
	return out, rows.Err()
}

// HotspotGeoJSON renders filtered hotspots as a FeatureCollection.
// tolerance > 0 re-simplifies geometry server side for lighter payloads;
// areas are stored numbers and do not move.
func (db *DB) HotspotGeoJSON(ctx context.Context, filter HotspotFilter, tolerance float64) ([]byte, error) {
	hotspots, err := db.QueryHotspots(ctx, filter)
	if err != nil {
		return nil, err
	}

	fc := geom.NewFeatureCollection()
	for _, h := range hotspots {
		var poly geom.Polygon
		if err := json.Unmarshal(h.Geometry, &poly); err != nil {
			return nil, fmt.Errorf("hotspot %d geometry: %w", h.ID, err)
		}
		if tolerance > 0 {
			poly = poly.Simplify(tolerance)
		}
		props := map[string]interface{}{
			"id":              h.ID,
			"run_id":          h.RunID,
			"year_start":      h.YearStart,
			"year_end":        h.YearEnd,
			"class_origin":    h.ClassOrigin,
			"class_dest":      h.ClassDest,
			"origin_name":     h.OriginName,
			"dest_name":       h.DestName,
			"dest_color":      h.DestColor,
			"transition_code": h.TransitionCode,
			"category":        h.Category,
			"area_ha":         h.AreaHa,
		}
		if err := fc.Append(poly, props); err != nil {
			return nil, fmt.Errorf("hotspot %d geometry: %w", h.ID, err)
		}
	}
	return json.Marshal(fc)
}
