// Package pipeline runs the capture, aggregate and persist jobs over one
// shared state.
package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"edgecounter/internal/dto"
	"edgecounter/internal/logger"
	"edgecounter/internal/model"
	"edgecounter/internal/service/observation"
	"edgecounter/internal/service/recorder"
	"edgecounter/internal/service/source"
	"edgecounter/internal/timeutil"
)

// Config holds job cadences and output topics.
type Config struct {
	FastInterval   time.Duration
	MediumInterval time.Duration
	SlowInterval   time.Duration

	LabelFilter string
	// Reduce overrides the label count when set.
	Reduce observation.ReduceFunc

	ObservationTopic string
	ArtifactTopic    string
	ArtifactEncoding string
	SourceName       string
}

// Deps are the collaborators of the jobs. Annotator, Display and Artifacts
// may be nil.
type Deps struct {
	Source    source.Source
	Detector  Detector
	Annotator Annotator
	Publisher Publisher
	Recorder  recorder.Recorder
	Display   Display
	Artifacts ArtifactSaver
	Clock     timeutil.Clock
	Logger    *logger.Logger
}

// Scheduler owns the three recurring jobs.
type Scheduler struct {
	cfg   Config
	deps  Deps
	state *SharedState
}

// NewScheduler wires the jobs to state.
func NewScheduler(cfg Config, deps Deps, state *SharedState) *Scheduler {
	if deps.Clock == nil {
		deps.Clock = timeutil.RealClock{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.Discard()
	}
	if cfg.Reduce == nil {
		cfg.Reduce = observation.CountLabel(cfg.LabelFilter)
	}
	return &Scheduler{cfg: cfg, deps: deps, state: state}
}

// State returns the shared state.
func (s *Scheduler) State() *SharedState {
	return s.state
}

// Run starts every job and blocks until ctx ends and all in-flight ticks return.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.deps.Source == nil || s.deps.Detector == nil || s.deps.Publisher == nil || s.deps.Recorder == nil {
		return fmt.Errorf("scheduler requires a source, detector, publisher and recorder")
	}

	var wg sync.WaitGroup
	jobs := []struct {
		name     string
		interval time.Duration
		fn       func(context.Context)
	}{
		{"capture", s.cfg.FastInterval, s.CaptureTick},
		{"aggregate", s.cfg.MediumInterval, func(context.Context) { s.AggregateTick() }},
		{"persist", s.cfg.SlowInterval, func(context.Context) { s.PersistTick() }},
	}

	for _, job := range jobs {
		wg.Add(1)
		go s.runJob(ctx, &wg, job.name, job.interval, job.fn)
	}

	s.deps.Logger.Info("Scheduler started: capture=%v aggregate=%v persist=%v",
		s.cfg.FastInterval, s.cfg.MediumInterval, s.cfg.SlowInterval)
	wg.Wait()
	s.deps.Logger.Info("Scheduler stopped")
	return nil
}

// runJob runs fn once, then on every tick. Ticks that arrive while fn is
// running are dropped by the ticker.
func (s *Scheduler) runJob(ctx context.Context, wg *sync.WaitGroup, name string, interval time.Duration, fn func(context.Context)) {
	defer wg.Done()

	if ctx.Err() != nil {
		return
	}
	s.safeTick(ctx, name, fn)

	ticker := s.deps.Clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if ctx.Err() != nil {
				return
			}
			s.safeTick(ctx, name, fn)
		}
	}
}

func (s *Scheduler) safeTick(ctx context.Context, name string, fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			s.deps.Logger.Error("Recovered panic in %s job: %v\n%s", name, r, debug.Stack())
		}
	}()
	fn(ctx)
}

// CaptureTick reads one sample, detects, stores the result and feeds the
// display, the artifact directory and the artifact topic.
func (s *Scheduler) CaptureTick(ctx context.Context) {
	sample, err := s.deps.Source.Next(ctx)
	if err != nil {
		s.deps.Logger.Warning("Capture failed: %v", err)
		return
	}

	detections, err := s.deps.Detector.Detect(ctx, sample)
	if err != nil {
		s.deps.Logger.Warning("Detection failed for frame %d: %v", sample.Seq, err)
		detections = nil
	}
	obs := s.cfg.Reduce(detections)

	s.state.SetLatest(CaptureResult{
		Seq:         sample.Seq,
		CapturedAt:  sample.CapturedAt,
		Detections:  detections,
		Observation: obs,
	})

	frame := sample.Data
	if s.deps.Annotator != nil {
		annotated, err := s.deps.Annotator.Annotate(sample.Data, detections)
		if err != nil {
			s.deps.Logger.Warning("Annotation failed for frame %d: %v", sample.Seq, err)
		} else {
			frame = annotated
		}
	}

	if s.deps.Display != nil {
		s.deps.Display.Broadcast(dto.DisplayMessage{
			Type:        dto.MessageFrame,
			Source:      s.cfg.SourceName,
			Image:       base64.StdEncoding.EncodeToString(frame),
			Observation: obs,
			Smoothed:    s.state.Smoothed(),
			Timestamp:   sample.CapturedAt.Unix(),
		})
	}

	if s.deps.Artifacts != nil {
		if _, err := s.deps.Artifacts.MaybeSave(sample.CapturedAt, frame, obs); err != nil {
			s.deps.Logger.Error("Error saving artifact: %v", err)
		}
	}

	if s.cfg.ArtifactTopic != "" {
		payload, err := EncodeArtifact(s.cfg.ArtifactEncoding, sample.Seq, sample.CapturedAt, obs, frame)
		if err != nil {
			s.deps.Logger.Error("Error encoding artifact: %v", err)
			return
		}
		s.deps.Publisher.Publish(s.cfg.ArtifactTopic, payload)
	}
}

// AggregateTick folds the newest unconsumed capture into the history and
// publishes the smoothed value.
func (s *Scheduler) AggregateTick() {
	res, ok := s.state.TakeFresh()
	if !ok {
		return
	}

	smoothed := s.state.PushObservation(res.Observation)
	s.deps.Publisher.Publish(s.cfg.ObservationTopic, []byte(model.FormatValue(smoothed)))

	if s.deps.Display != nil {
		s.deps.Display.Broadcast(dto.DisplayMessage{
			Type:        dto.MessageSummary,
			Source:      s.cfg.SourceName,
			Observation: res.Observation,
			Smoothed:    smoothed,
			Timestamp:   s.deps.Clock.Now().Unix(),
		})
	}
}

// PersistTick appends one fused record. Nothing is written before the first observation.
func (s *Scheduler) PersistTick() {
	snap := s.state.Snapshot()
	if snap.HistoryLength == 0 {
		return
	}

	rec := model.NewFusedRecord(s.deps.Clock.Now(), snap.Smoothed, snap.Readings)
	if err := s.deps.Recorder.Append(rec); err != nil {
		s.deps.Logger.Error("Error appending record, will retry next tick: %v", err)
	}
}
