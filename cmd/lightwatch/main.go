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
	port := flag.Int("port", 8081, "display server port")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.DisplayPort = *port

	l, err := logger.New(cfg.LogDirectory)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer l.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.NewLightApp(cfg, l).Run(ctx); err != nil {
		l.Error("Light watcher failed: %v", err)
		l.Close()
		os.Exit(1)
	}
}
