// Command loss-report renders an HTML bar chart of vegetation loss per
// class transition from a processed database.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/cerradolab/vegetation.report/internal/db"
)

func main() {
	dbFile := flag.String("db", "vegetation.db", "SQLite database file")
	output := flag.String("o", "loss-report.html", "output HTML path")
	yearStart := flag.Int("year-start", 0, "earliest period start to include")
	yearEnd := flag.Int("year-end", 9999, "latest period end to include")
	flag.Parse()

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	stats, err := database.LossStats(context.Background(), *yearStart, *yearEnd)
	if err != nil {
		log.Fatalf("failed to query stats: %v", err)
	}
	if len(stats) == 0 {
		log.Fatal("no hotspots in the requested window; run a comparison first")
	}

	labels := make([]string, 0, len(stats))
	areas := make([]opts.BarData, 0, len(stats))
	counts := make([]opts.BarData, 0, len(stats))
	for _, s := range stats {
		labels = append(labels, transitionLabel(s))
		areas = append(areas, opts.BarData{Value: s.TotalAreaHa})
		counts = append(counts, opts.BarData{Value: s.Count})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Vegetation Loss", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Vegetation change by class transition",
			Subtitle: fmt.Sprintf("periods starting %d through %d, area in hectares", *yearStart, *yearEnd),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Rotate: 30, Show: opts.Bool(true)}}),
	)
	bar.SetXAxis(labels).
		AddSeries("area (ha)", areas).
		AddSeries("hotspots", counts)

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("failed to create %s: %v", *output, err)
	}
	defer f.Close()
	if err := bar.Render(f); err != nil {
		log.Fatalf("failed to render chart: %v", err)
	}
	log.Printf("✓ Created: %s (%d transitions)", *output, len(stats))
}

// transitionLabel prefers legend names and falls back to class codes.
func transitionLabel(s db.LossStat) string {
	origin := s.OriginName
	if origin == "" {
		origin = fmt.Sprintf("class %d", s.ClassOrigin)
	}
	dest := s.DestName
	if dest == "" {
		dest = fmt.Sprintf("class %d", s.ClassDest)
	}
	return fmt.Sprintf("%s > %s", origin, dest)
}
