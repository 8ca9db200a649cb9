// Package db is the SQLite store behind the hotspot service: the raster
// catalogue, the class legend, committed hotspots, and run bookkeeping.
// Schema is owned by golang-migrate migrations under migrations/.
package db

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrRunActive indicates a run for the same raster pair is still in
// flight; a second trigger for the pair is rejected until it finishes.
var ErrRunActive = errors.New("run already active for raster pair")

// ErrRasterInUse indicates a raster is referenced by at least one run and
// cannot be deleted.
var ErrRasterInUse = errors.New("raster referenced by runs")

type DB struct {
	*sql.DB
}

// NewDB opens (creating if needed) the SQLite database at path. WAL mode
// keeps readers unblocked during hotspot commits; the busy timeout covers
// the brief write lock a commit takes.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	return &DB{db}, nil
}
