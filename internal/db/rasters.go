package db

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cerradolab/vegetation.report/internal/raster"
)

// rasterMetadata is the JSON stored in the rasters.metadata column:
// everything a Snapshot needs that has no column of its own.
type rasterMetadata struct {
	Transform raster.GeoTransform `json:"transform"`
	NoData    *uint8              `json:"nodata,omitempty"`
}

// RasterInfo is a catalogue row without the pixel payload. CreatedAt is
// the SQLite timestamp text as stored.
type RasterInfo struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Year      int    `json:"year"`
	Format    string `json:"format"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Bands     int    `json:"bands"`
	SRID      int    `json:"srid"`
	CreatedAt string `json:"created_at"`
}

// InsertRaster stores a snapshot, compressing the class band, and fills
// in the assigned ID.
func (db *DB) InsertRaster(ctx context.Context, s *raster.Snapshot) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("raster %q: %w", s.Name, err)
	}

	meta, err := json.Marshal(rasterMetadata{Transform: s.Transform, NoData: s.NoData})
	if err != nil {
		return fmt.Errorf("encode raster metadata: %w", err)
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(s.Pixels); err != nil {
		return fmt.Errorf("compress pixels: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compress pixels: %w", err)
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO rasters (name, year, format, width, height, bands, srid, metadata, pixels)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Name, s.Year, s.Format, s.Width, s.Height, s.Bands, s.SRID, string(meta), buf.Bytes(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("raster %q year %d already ingested: %w", s.Name, s.Year, err)
		}
		return fmt.Errorf("insert raster: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("raster id: %w", err)
	}
	s.ID = id
	return nil
}

// ListRasters returns the catalogue, newest first, without pixel data.
func (db *DB) ListRasters(ctx context.Context) ([]RasterInfo, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, year, format, width, height, bands, srid, created_at
		FROM rasters ORDER BY year DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list rasters: %w", err)
	}
	defer rows.Close()

	var out []RasterInfo
	for rows.Next() {
		var r RasterInfo
		if err := rows.Scan(&r.ID, &r.Name, &r.Year, &r.Format, &r.Width,
			&r.Height, &r.Bands, &r.SRID, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan raster row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRaster loads a full snapshot, inflating the pixel blob.
func (db *DB) GetRaster(ctx context.Context, id int64) (*raster.Snapshot, error) {
	var (
		s      raster.Snapshot
		meta   string
		packed []byte
	)
	err := db.QueryRowContext(ctx, `
		SELECT id, name, year, format, width, height, bands, srid, metadata, pixels
		FROM rasters WHERE id = ?`, id).Scan(
		&s.ID, &s.Name, &s.Year, &s.Format, &s.Width, &s.Height, &s.Bands,
		&s.SRID, &meta, &packed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("raster %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get raster %d: %w", id, err)
	}

	var m rasterMetadata
	if err := json.Unmarshal([]byte(meta), &m); err != nil {
		return nil, fmt.Errorf("raster %d metadata: %w", id, err)
	}
	s.Transform = m.Transform
	s.NoData = m.NoData

	zr, err := gzip.NewReader(bytes.NewReader(packed))
	if err != nil {
		return nil, fmt.Errorf("raster %d pixels: %w", id, err)
	}
	s.Pixels = make([]byte, s.Width*s.Height)
	if _, err := io.ReadFull(zr, s.Pixels); err != nil {
		return nil, fmt.Errorf("raster %d pixels: %w", id, err)
	}
	if err := zr.Close(); err != nil {
		return nil, fmt.Errorf("raster %d pixels: %w", id, err)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("raster %d: %w", id, err)
	}
	return &s, nil
}

// DeleteRaster removes a catalogue entry. A raster referenced by runs is
// protected by the foreign key and reported as ErrRasterInUse.
func (db *DB) DeleteRaster(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, "DELETE FROM rasters WHERE id = ?", id)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return fmt.Errorf("raster %d: %w", id, ErrRasterInUse)
		}
		return fmt.Errorf("delete raster %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("raster %d: %w", id, ErrNotFound)
	}
	return nil
}
