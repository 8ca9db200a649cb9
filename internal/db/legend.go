package db

import (
	"context"
	"fmt"
)

// LegendEntry labels a land-cover class code for display.
type LegendEntry struct {
	Code     int    `json:"code"`
	Name     string `json:"name"`
	ColorHex string `json:"color_hex"`
}

// ListLegend returns all legend entries ordered by class code.
func (db *DB) ListLegend(ctx context.Context) ([]LegendEntry, error) {
	rows, err := db.QueryContext(ctx, "SELECT code, name, color_hex FROM legend ORDER BY code")
	if err != nil {
		return nil, fmt.Errorf("list legend: %w", err)
	}
	defer rows.Close()

	var out []LegendEntry
	for rows.Next() {
		var e LegendEntry
		if err := rows.Scan(&e.Code, &e.Name, &e.ColorHex); err != nil {
			return nil, fmt.Errorf("scan legend row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpsertLegend inserts or replaces legend entries in one transaction.
func (db *DB) UpsertLegend(ctx context.Context, entries []LegendEntry) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert legend: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO legend (code, name, color_hex) VALUES (?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET name = excluded.name, color_hex = excluded.color_hex`)
	if err != nil {
		return fmt.Errorf("upsert legend: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.Code, e.Name, e.ColorHex); err != nil {
			return fmt.Errorf("upsert legend code %d: %w", e.Code, err)
		}
	}
	return tx.Commit()
}
