package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"orefield/internal/config"
	"orefield/internal/entities"
	"orefield/internal/events"
	"orefield/internal/level"
	"orefield/internal/placement"
	"orefield/internal/world"
)

func main() {
	var (
		cfgPath    = flag.String("config", "", "configuration file (defaults when empty)")
		levels     = flag.Int("levels", 30, "number of consecutive levels to generate")
		startLevel = flag.Int("start", 0, "first level to generate (0 uses the configured start level)")
		seed       = flag.Int64("seed", 0, "generation seed override (0 keeps the configured seed)")
		planar     = flag.Bool("planar", false, "measure spacing on the horizontal plane only")
		linear     = flag.Bool("linear", false, "disable the spatial grid and scan every placed point")
		previewDir = flag.String("preview", "", "directory for per-level preview PNGs")
		scale      = flag.Float64("scale", 4, "preview pixels per world unit")
		verbose    = flag.Bool("v", false, "log generation progress")
	)
	flag.Parse()

	if *levels <= 0 {
		fmt.Fprintln(os.Stderr, "levels must be positive")
		os.Exit(1)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *startLevel > 0 {
		cfg.Generation.StartLevel = *startLevel
	}
	if *seed != 0 {
		cfg.Generation.Seed = *seed
	}
	if *planar {
		cfg.Placement.DistanceMode = config.DistanceModePlanar
	}
	if *linear {
		cfg.Placement.UseSpatialIndex = false
	}

	logOut := io.Discard
	if *verbose {
		logOut = os.Stderr
	}
	queue := events.NewQueue(0)
	objects := entities.NewManager(entities.TemplatesFromCatalog(cfg.Catalog), queue)
	coord, err := level.New(level.Options{
		Config:  cfg,
		Spawner: objects,
		Events:  queue,
		Logger:  log.New(logOut, "oreprofile ", log.LstdFlags|log.Lmicroseconds),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "create coordinator: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	fmt.Println("== Level Generation Profile ==")
	fmt.Printf("Seed: %d, distance: %s, spatial index: %v\n", cfg.Generation.Seed, cfg.Placement.DistanceMode, cfg.Placement.UseSpatialIndex)
	fmt.Printf("%6s %5s %8s %6s %6s %7s %9s %7s %8s %8s %10s\n",
		"level", "stage", "unlocked", "ores", "topup", "hazards", "attempted", "placed", "skipped", "samples", "duration")

	var (
		totalAttempted int
		totalPlaced    int
		totalSkipped   int
		totalSamples   int
		totalDuration  time.Duration
	)
	startWall := time.Now()
	for i := 0; i < *levels; i++ {
		if i > 0 {
			coord.AdvanceLevel()
		}
		started := time.Now()
		if err := coord.StartLevel(); err != nil {
			fmt.Fprintf(os.Stderr, "start level %d: %v\n", coord.CurrentLevel(), err)
			os.Exit(1)
		}
		if err := coord.Run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "run level %d: %v\n", coord.CurrentLevel(), err)
			os.Exit(1)
		}
		elapsed := time.Since(started)
		queue.Drain(0)

		st := coord.Status()
		q := st.Quotas
		fmt.Printf("%6d %5d %8d %6d %6d %7d %9d %7d %8d %8d %10s\n",
			st.Level, st.Stage, q.Unlocked, q.OreAttempts()-q.TopUp, q.TopUp, q.Hazards,
			st.Stats.Attempted, st.Stats.Placed, st.Stats.Skipped, st.Stats.SamplerAttempts, elapsed.Round(time.Microsecond))

		totalAttempted += st.Stats.Attempted
		totalPlaced += st.Stats.Placed
		totalSkipped += st.Stats.Skipped
		totalSamples += st.Stats.SamplerAttempts
		totalDuration += elapsed

		if *previewDir != "" {
			if err := savePreview(coord, *previewDir, *scale, cfg.Placement); err != nil {
				fmt.Fprintf(os.Stderr, "preview level %d: %v\n", st.Level, err)
				os.Exit(1)
			}
		}
	}
	wall := time.Since(startWall)

	fmt.Printf("Levels: %d\n", *levels)
	fmt.Printf("Attempted: %d, Placed: %d, Skipped: %d\n", totalAttempted, totalPlaced, totalSkipped)
	if totalAttempted > 0 {
		fmt.Printf("Skip ratio: %.2f%%\n", float64(totalSkipped)/float64(totalAttempted)*100)
		fmt.Printf("Average sampler draws per placement attempt: %.2f\n", float64(totalSamples)/float64(totalAttempted))
	}
	fmt.Printf("Average per-level duration: %s\n", totalDuration/time.Duration(*levels))
	fmt.Printf("Wall clock duration: %s\n", wall)
	fmt.Printf("Live objects after final level: %d\n", objects.Len())
}

func savePreview(coord *level.Coordinator, dir string, scale float64, placementCfg config.PlacementConfig) error {
	s := coord.Session()
	if s == nil {
		return nil
	}
	markers := make([]world.Marker, 0, len(s.Points()))
	for _, p := range s.Points() {
		markers = append(markers, world.Marker{
			Position: p.Position,
			Hazard:   p.Category.Kind == placement.KindHazard,
			Category: p.Category.Index,
		})
	}
	path := filepath.Join(dir, fmt.Sprintf("level-%03d.png", s.Level()))
	return world.SavePreview(path, s.Surfaces(), markers, world.PreviewOptions{
		PixelsPerUnit: scale,
		BandMin:       placementCfg.MinSpawnHeight,
		BandMax:       placementCfg.MaxSpawnHeight,
	})
}
