package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cerradolab/vegetation.report/internal/api"
	"github.com/cerradolab/vegetation.report/internal/config"
	"github.com/cerradolab/vegetation.report/internal/db"
	"github.com/cerradolab/vegetation.report/internal/delta"
	"github.com/cerradolab/vegetation.report/internal/raster"
	"github.com/cerradolab/vegetation.report/internal/units"
	"github.com/cerradolab/vegetation.report/internal/version"
)

var (
	listen     = flag.String("listen", envDefault("VR_LISTEN", ":8080"), "Listen address")
	dbFile     = flag.String("db", envDefault("VR_DB", "vegetation.db"), "SQLite database file")
	configPath = flag.String("config", envDefault("VR_CONFIG", config.DefaultConfigPath), "Tuning config JSON file")
	defaultUnits = flag.String("units", envDefault("VR_UNITS", "ha"), "Default area units for API responses")

	migrateCmd    = flag.String("migrate", "", "Run migrations and exit: up, down, or version")
	migrationsDir = flag.String("migrations", db.DefaultMigrationsDir, "Migrations directory")

	ingestPath = flag.String("ingest", "", "Ingest a raster file and exit")
	ingestName = flag.String("name", "", "Raster name for -ingest")
	ingestYear = flag.Int("year", 0, "Raster year for -ingest (overrides sidecar)")

	legendPath  = flag.String("legend", "", "Upsert legend entries from a JSON file and exit")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	// Optional local overrides; absence is not an error.
	_ = godotenv.Load()
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	if *migrateCmd != "" {
		if err := runMigrate(database, *migrateCmd, *migrationsDir); err != nil {
			log.Fatalf("migration failed: %v", err)
		}
		return
	}

	// Everything past this point needs the schema in place.
	if err := database.MigrateUp(*migrationsDir); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	if *ingestPath != "" {
		if err := runIngest(database, *ingestPath, *ingestName, *ingestYear); err != nil {
			log.Fatalf("ingest failed: %v", err)
		}
		return
	}

	if *legendPath != "" {
		if err := runLegend(database, *legendPath); err != nil {
			log.Fatalf("legend load failed: %v", err)
		}
		return
	}

	if err := serve(database); err != nil {
		log.Fatal(err)
	}
}

func runMigrate(database *db.DB, cmd, dir string) error {
	switch cmd {
	case "up":
		return database.MigrateUp(dir)
	case "down":
		return database.MigrateDown(dir)
	case "version":
		v, dirty, err := database.MigrateVersion(dir)
		if err != nil {
			return err
		}
		log.Printf("schema version %d (dirty=%v)", v, dirty)
		return nil
	default:
		return fmt.Errorf("unknown migrate command %q (want up, down, or version)", cmd)
	}
}

func runIngest(database *db.DB, path, name string, year int) error {
	snap, err := raster.DecodeFile(path)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if name != "" {
		snap.Name = name
	}
	if year != 0 {
		snap.Year = year
	}
	if snap.Name == "" {
		return fmt.Errorf("raster name is required (use -name)")
	}
	if snap.Year == 0 {
		return fmt.Errorf("raster year is required (use -year or a sidecar)")
	}

	if err := database.InsertRaster(context.Background(), snap); err != nil {
		return err
	}
	log.Printf("ingested raster %d: %s %d (%dx%d, srid %d)",
		snap.ID, snap.Name, snap.Year, snap.Width, snap.Height, snap.SRID)
	return nil
}

func runLegend(database *db.DB, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var entries []db.LegendEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse legend file: %w", err)
	}
	if err := database.UpsertLegend(context.Background(), entries); err != nil {
		return err
	}
	log.Printf("upserted %d legend entries", len(entries))
	return nil
}

func serve(database *db.DB) error {
	if !units.IsValid(*defaultUnits) {
		return fmt.Errorf("invalid units %q, valid: %s", *defaultUnits, units.GetValidUnitsString())
	}

	cfg, err := config.LoadTuningConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config %s: %w", *configPath, err)
	}

	table, err := delta.NewTransitionTable(cfg.GetClassSpace(), cfg.GetTransitionCategories())
	if err != nil {
		return fmt.Errorf("invalid transition categories: %w", err)
	}

	srv := api.NewServer(database, cfg, table, *defaultUnits)

	mux := http.NewServeMux()
	mux.Handle("/api/", srv.ServeMux())

	server := &http.Server{
		Addr:    *listen,
		Handler: api.LoggingMiddleware(mux),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("%s listening on %s", version.String(), *listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
