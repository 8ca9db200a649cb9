package db

import (
	"path/filepath"
	"testing"

	"github.com/cerradolab/vegetation.report/internal/raster"
)

// setupTestDB opens a fresh migrated database in a temp dir.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := NewDB(path)
	if err != nil {
		t.Fatalf("failed to create test DB: %v", err)
	}
	if err := db.MigrateUp("migrations"); err != nil {
		t.Fatalf("failed to migrate test DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// testSnapshot builds a small georeferenced snapshot for store tests.
func testSnapshot(name string, year int) *raster.Snapshot {
	nodata := uint8(255)
	return &raster.Snapshot{
		Name:      name,
		Year:      year,
		Format:    "GTiff",
		Width:     3,
		Height:    2,
		Bands:     1,
		SRID:      31982,
		Transform: raster.GeoTransform{500000, 30, 0, 8200000, 0, -30},
		NoData:    &nodata,
		Pixels:    []uint8{3, 3, 15, 3, 255, 15},
	}
}

func intPtr(v int) *int {
	return &v
}

func strPtr(s string) *string {
	return &s
}
