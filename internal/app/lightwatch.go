package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"edgecounter/internal/config"
	"edgecounter/internal/logger"
	"edgecounter/internal/route"
	"edgecounter/internal/service/indicator"
	"edgecounter/internal/service/source"
	"edgecounter/internal/service/transport"
	"edgecounter/internal/service/vision"
	ws "edgecounter/internal/service/websocket"
	"edgecounter/internal/timeutil"
)

// LightApp polls a snapshot URL and publishes the indicator light state.
type LightApp struct {
	config    *config.Config
	logger    *logger.Logger
	source    *source.HTTPSource
	transport *transport.Client
	watcher   *indicator.Watcher
	hub       *ws.HubService
	router    http.Handler
}

// NewLightApp builds the indicator watcher from cfg.Light and cfg.MQTT.
func NewLightApp(cfg *config.Config, log *logger.Logger) *LightApp {
	clock := timeutil.RealClock{}
	a := &LightApp{config: cfg, logger: log}

	a.source = source.NewHTTPSource(cfg.Light.SourceURL, clock)
	a.hub = ws.NewHubService(log)
	a.transport = transport.New(
		transport.PahoDialer(transport.PahoOptions{
			Broker:   cfg.MQTT.Address(),
			ClientID: cfg.MQTT.ClientID + "-lightwatch",
		}),
		log,
		transport.WithRetryInterval(cfg.MQTT.RetryInterval),
	)
	a.watcher = indicator.NewWatcher(
		a.source,
		vision.GreenLightClassifier{PixelThreshold: cfg.Light.PixelThreshold},
		a.transport,
		a.hub,
		cfg.Light.Topic,
		cfg.Light.Interval,
		clock,
		log,
	)
	a.router = route.SetupRoutes(route.Deps{
		Hub:       a.hub,
		Logger:    log,
		StaticDir: cfg.StaticDir,
		Started:   time.Now(),
	})
	return a
}

// Run blocks until ctx ends.
func (a *LightApp) Run(ctx context.Context) error {
	defer a.source.Close()

	if err := a.source.Open(ctx); err != nil {
		return err
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", a.config.DisplayPort))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", a.config.DisplayPort, err)
	}

	if err := a.transport.Start(ctx); err != nil {
		listener.Close()
		return err
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	go a.hub.Run(hubCtx)

	server := &http.Server{Handler: a.router}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Display server failed: %v", err)
		}
	}()

	a.logger.Info("Light watcher running: %s -> %s every %v", a.config.Light.SourceURL, a.config.Light.Topic, a.config.Light.Interval)
	a.logger.Info("Display: http://localhost:%d", a.config.DisplayPort)

	runErr := a.watcher.Run(ctx)

	if err := a.transport.Close(); err != nil {
		a.logger.Warning("Error closing transport: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warning("Error stopping display server: %v", err)
	}
	stopHub()

	a.logger.Info("Light watcher stopped")
	return runErr
}
