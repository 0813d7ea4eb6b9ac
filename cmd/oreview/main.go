package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/gdamore/tcell/v2"

	"orefield/internal/config"
	"orefield/internal/entities"
	"orefield/internal/events"
	"orefield/internal/level"
)

func main() {
	var (
		cfgPath = flag.String("config", "", "configuration file (defaults when empty)")
		rate    = flag.Int("rate", 1, "placement attempts per frame")
		mute    = flag.Bool("mute", false, "disable the level completion chime")
		logPath = flag.String("log", "", "write generator logs to this file")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	var logOut io.Writer = io.Discard
	if *logPath != "" {
		f, err := os.Create(*logPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open log: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	logger := log.New(logOut, "oreview ", log.LstdFlags|log.Lmicroseconds)

	queue := events.NewQueue(0)
	objects := entities.NewManager(entities.TemplatesFromCatalog(cfg.Catalog), queue)
	coord, err := level.New(level.Options{
		Config:  cfg,
		Spawner: objects,
		Events:  queue,
		Logger:  logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "create coordinator: %v\n", err)
		os.Exit(1)
	}

	sound, err := newChime(!*mute)
	if err != nil {
		logger.Printf("audio disabled: %v", err)
	}
	defer sound.close()

	screen, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	if err := screen.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer screen.Fini()

	v := newViewer(screen, coord, queue, *rate)
	v.onCompleted = sound.play
	v.run()
}
