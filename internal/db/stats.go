package db

import (
	"context"
	"fmt"
)

// LossStat aggregates hotspots for one class transition within a year
// range.
type LossStat struct {
	ClassOrigin int     `json:"class_origin"`
	ClassDest   int     `json:"class_dest"`
	OriginName  string  `json:"origin_name,omitempty"`
	DestName    string  `json:"dest_name,omitempty"`
	Category    string  `json:"category"`
	Count       int     `json:"count"`
	TotalAreaHa float64 `json:"total_area_ha"`
}

// LossStats totals hotspot count and area per class transition for runs
// whose period falls inside [yearStart, yearEnd]. Largest total first.
func (db *DB) LossStats(ctx context.Context, yearStart, yearEnd int) ([]LossStat, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT h.class_origin, h.class_dest,
			COALESCE(lo.name, ''), COALESCE(ld.name, ''),
			h.category, COUNT(*), SUM(h.area_ha)
		FROM hotspots h
		LEFT JOIN legend lo ON lo.code = h.class_origin
		LEFT JOIN legend ld ON ld.code = h.class_dest
		WHERE h.year_start >= ? AND h.year_end <= ?
		GROUP BY h.class_origin, h.class_dest, h.category
		ORDER BY SUM(h.area_ha) DESC`, yearStart, yearEnd)
	if err != nil {
		return nil, fmt.Errorf("loss stats: %w", err)
	}
	defer rows.Close()

	var out []LossStat
	for rows.Next() {
		var s LossStat
		if err := rows.Scan(&s.ClassOrigin, &s.ClassDest, &s.OriginName,
			&s.DestName, &s.Category, &s.Count, &s.TotalAreaHa); err != nil {
			return nil, fmt.Errorf("scan loss stat: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// PairSummary rolls up hotspots per compared year pair.
type PairSummary struct {
	YearStart   int     `json:"year_start"`
	YearEnd     int     `json:"year_end"`
	Count       int     `json:"count"`
	TotalAreaHa float64 `json:"total_area_ha"`
}

// PairSummaries returns one rollup row per (year_start, year_end) pair,
// newest period first.
func (db *DB) PairSummaries(ctx context.Context) ([]PairSummary, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT year_start, year_end, COUNT(*), SUM(area_ha)
		FROM hotspots
		GROUP BY year_start, year_end
		ORDER BY year_end DESC, year_start DESC`)
	if err != nil {
		return nil, fmt.Errorf("pair summaries: %w", err)
	}
	defer rows.Close()

	var out []PairSummary
	for rows.Next() {
		var s PairSummary
		if err := rows.Scan(&s.YearStart, &s.YearEnd, &s.Count, &s.TotalAreaHa); err != nil {
			return nil, fmt.Errorf("scan pair summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
