package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"edgecounter/internal/config"
	"edgecounter/internal/logger"
	"edgecounter/internal/repository"
	"edgecounter/internal/repository/sqlite"
	"edgecounter/internal/route"
	"edgecounter/internal/service/pipeline"
	"edgecounter/internal/service/readings"
	"edgecounter/internal/service/recorder"
	"edgecounter/internal/service/source"
	"edgecounter/internal/service/storage"
	"edgecounter/internal/service/transport"
	"edgecounter/internal/service/vision"
	ws "edgecounter/internal/service/websocket"
	"edgecounter/internal/timeutil"
)

const shutdownTimeout = 5 * time.Second

// App is the counting pipeline with its display server.
type App struct {
	config    *config.Config
	logger    *logger.Logger
	clock     timeutil.Clock
	db        *sqlite.DB
	source    source.Source
	detector  *vision.Detector
	transport *transport.Client
	readings  *readings.Store
	state     *pipeline.SharedState
	scheduler *pipeline.Scheduler
	recorder  recorder.Recorder
	artifacts *storage.ArtifactService
	hub       *ws.HubService
	router    http.Handler

	closeSource sync.Once
}

// NewApp builds every component from cfg. Nothing is opened or connected yet
// apart from the database.
func NewApp(cfg *config.Config, log *logger.Logger) (*App, error) {
	clock := timeutil.RealClock{}
	a := &App{config: cfg, logger: log, clock: clock}

	var (
		recordRepo   repository.RecordRepository
		artifactRepo repository.ArtifactRepository
	)
	if cfg.Store.Backend == config.BackendSQLite {
		db, err := sqlite.New(cfg.Store.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		a.db = db
		recordRepo = sqlite.NewRecordRepository(db)
		artifactRepo = sqlite.NewArtifactRepository(db)
	}

	rec, err := recorder.New(cfg, recordRepo)
	if err != nil {
		a.closeDB()
		return nil, err
	}
	a.recorder = rec

	channels := make([]string, len(cfg.MQTT.Channels))
	for i, ch := range cfg.MQTT.Channels {
		channels[i] = ch.Name
	}
	a.readings = readings.NewStore(channels, log, clock)
	a.state = pipeline.NewSharedState(cfg.HistoryWindow, a.readings)

	a.source = newSource(cfg.CameraDevice, clock)
	a.detector = vision.NewDetector(cfg.ModelPath, cfg.ModelConfigPath, cfg.DetectionThreshold, log)
	a.artifacts = storage.NewArtifactService(cfg, log, artifactRepo, clock)
	a.hub = ws.NewHubService(log)

	a.transport = transport.New(
		transport.PahoDialer(transport.PahoOptions{
			Broker:   cfg.MQTT.Address(),
			ClientID: cfg.MQTT.ClientID,
		}),
		log,
		transport.WithRetryInterval(cfg.MQTT.RetryInterval),
		transport.WithStateListener(func(s transport.State) {
			log.Info("Broker %s: %s", cfg.MQTT.Address(), s)
		}),
	)

	a.scheduler = pipeline.NewScheduler(pipeline.Config{
		FastInterval:     cfg.FastInterval,
		MediumInterval:   cfg.MediumInterval,
		SlowInterval:     cfg.SlowInterval,
		LabelFilter:      cfg.LabelFilter,
		ObservationTopic: cfg.MQTT.ObservationTopic,
		ArtifactTopic:    cfg.MQTT.ArtifactTopic,
		ArtifactEncoding: cfg.ArtifactEncoding,
		SourceName:       cfg.CameraDevice,
	}, pipeline.Deps{
		Source:    a.source,
		Detector:  a.detector,
		Annotator: vision.Annotator{},
		Publisher: a.transport,
		Recorder:  a.recorder,
		Display:   a.hub,
		Artifacts: a.artifacts,
		Clock:     clock,
		Logger:    log,
	}, a.state)

	a.router = route.SetupRoutes(route.Deps{
		Hub:       a.hub,
		State:     a.state,
		Transport: a.transport,
		Artifacts: a.artifacts,
		Logger:    log,
		StaticDir: cfg.StaticDir,
		Started:   time.Now(),
	})

	return a, nil
}

// newSource picks the sample source for device: an http(s) snapshot URL, a
// directory of images, or anything gocv can open.
func newSource(device string, clock timeutil.Clock) source.Source {
	if strings.HasPrefix(device, "http://") || strings.HasPrefix(device, "https://") {
		return source.NewHTTPSource(device, clock)
	}
	if info, err := os.Stat(device); err == nil && info.IsDir() {
		return source.NewDirSource(device, clock)
	}
	return vision.NewCamera(device, clock)
}

// Run opens the source, starts every service and blocks until ctx ends. An
// unavailable source is returned before the scheduler starts.
func (a *App) Run(ctx context.Context) error {
	defer a.closeDB()
	defer a.closeSourceOnce()

	if err := a.source.Open(ctx); err != nil {
		return err
	}

	created, err := a.recorder.EnsureSchema()
	if err != nil {
		a.logger.Error("Error preparing %s store, will retry on append: %v", a.config.Store.Backend, err)
	} else if created {
		a.logger.Info("Created %s store", a.config.Store.Backend)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", a.config.DisplayPort))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", a.config.DisplayPort, err)
	}

	for _, ch := range a.config.MQTT.Channels {
		name := ch.Name
		a.transport.Subscribe(ch.Topic, func(_ string, payload []byte) {
			_ = a.readings.Update(name, payload)
		})
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

	a.logger.Info("Edge counter running")
	a.logger.Info("Display: http://localhost:%d", a.config.DisplayPort)
	a.logger.Info("Broker: %s", a.config.MQTT.Address())
	a.logger.Info("Store: %s", a.config.Store.Backend)
	a.logger.Info("Artifacts: %s", a.config.ArtifactDirectory)

	// Returns after ctx ends and every in-flight tick has finished.
	schedErr := a.scheduler.Run(ctx)

	if err := a.transport.Close(); err != nil {
		a.logger.Warning("Error closing transport: %v", err)
	}
	a.closeSourceOnce()
	if err := a.recorder.Close(); err != nil {
		a.logger.Warning("Error closing recorder: %v", err)
	}
	a.detector.Close()
	a.closeDB()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warning("Error stopping display server: %v", err)
	}
	stopHub()

	a.logger.Info("Edge counter stopped")
	return schedErr
}

func (a *App) closeSourceOnce() {
	a.closeSource.Do(func() {
		if err := a.source.Close(); err != nil {
			a.logger.Warning("Error closing source: %v", err)
		}
	})
}

func (a *App) closeDB() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warning("Error closing database: %v", err)
	}
	a.db = nil
}
