package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"edgecounter/internal/app"
	"edgecounter/internal/config"
	"edgecounter/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	port := flag.Int("port", 0, "display server port (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port > 0 {
		cfg.DisplayPort = *port
	}

	l, err := logger.New(cfg.LogDirectory)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer l.Close()

	application, err := app.NewApp(cfg, l)
	if err != nil {
		l.Error("Failed to initialize: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		l.Error("Edge counter failed: %v", err)
		l.Close()
		os.Exit(1)
	}
}
