package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orefield/internal/config"
	"orefield/internal/server"
)

func main() {
	var (
		cfgPath      string
		writeDefault bool
	)
	flag.StringVar(&cfgPath, "config", "", "path to level generator configuration file (.json or .yaml)")
	flag.BoolVar(&writeDefault, "write-default", false, "write the default configuration to -config and exit")
	flag.Parse()

	if writeDefault {
		if cfgPath == "" {
			log.Fatalf("-write-default requires -config")
		}
		if err := config.WriteDefault(cfgPath); err != nil {
			log.Fatalf("write default config: %v", err)
		}
		log.Printf("wrote default configuration to %s", cfgPath)
		return
	}

	if wrote, err := writeConfigFromEnv(cfgPath); err != nil {
		log.Fatalf("sync config from environment: %v", err)
	} else if wrote {
		log.Printf("wrote configuration from environment to %s", cfgPath)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	srv, err := server.New(cfg)
	if err != nil {
		log.Fatalf("initialise level server: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server exited with error: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}

		// Ensure the process terminates if shutdown stalls.
		time.AfterFunc(10*time.Second, func() {
			log.Printf("forced shutdown after timeout")
			os.Exit(1)
		})
	}()

	return ctx, cancel
}
