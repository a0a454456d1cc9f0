// Package indicator polls an image source and publishes whether an indicator
// light is on.
package indicator

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"edgecounter/internal/dto"
	"edgecounter/internal/logger"
	"edgecounter/internal/model"
	"edgecounter/internal/service/source"
	"edgecounter/internal/timeutil"
)

// Published states.
const (
	StateOn  = "ON"
	StateOff = "OFF"
)

// Classifier decides from an encoded frame whether the light is on.
type Classifier interface {
	Classify(data []byte) (on bool, pixels int, err error)
}

// Publisher sends a payload on a topic.
type Publisher interface {
	Publish(topic string, payload []byte)
}

// Display shows the latest frame and state. It must not block.
type Display interface {
	Broadcast(msg dto.DisplayMessage)
}

// Watcher runs poll, classify and publish on a fixed interval.
type Watcher struct {
	source     source.Source
	classifier Classifier
	publisher  Publisher
	display    Display
	topic      string
	interval   time.Duration
	clock      timeutil.Clock
	logger     *logger.Logger

	mu   sync.RWMutex
	last string
}

// NewWatcher creates a watcher. display may be nil.
func NewWatcher(src source.Source, classifier Classifier, publisher Publisher, display Display,
	topic string, interval time.Duration, clock timeutil.Clock, log *logger.Logger) *Watcher {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Watcher{
		source:     src,
		classifier: classifier,
		publisher:  publisher,
		display:    display,
		topic:      topic,
		interval:   interval,
		clock:      clock,
		logger:     log,
	}
}

// Run polls once immediately and then every interval until ctx ends.
func (w *Watcher) Run(ctx context.Context) error {
	w.Tick(ctx)

	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			w.Tick(ctx)
		}
	}
}

// Tick performs one poll. Fetch and classification errors are logged and the
// tick is skipped.
func (w *Watcher) Tick(ctx context.Context) {
	sample, err := w.source.Next(ctx)
	if err != nil {
		w.logger.Warning("Snapshot fetch failed: %v", err)
		return
	}

	on, pixels, err := w.classifier.Classify(sample.Data)
	if err != nil {
		w.logger.Warning("Classification failed: %v", err)
		return
	}

	state := StateOff
	if on {
		state = StateOn
	}

	w.mu.Lock()
	changed := w.last != state
	w.last = state
	w.mu.Unlock()

	if changed {
		w.logger.Info("Light is %s (%d matching pixels)", state, pixels)
	}
	w.publisher.Publish(w.topic, []byte(state))

	if w.display != nil {
		w.display.Broadcast(w.message(sample, state, pixels))
	}
}

func (w *Watcher) message(sample model.Sample, state string, pixels int) dto.DisplayMessage {
	return dto.DisplayMessage{
		Type:        dto.MessageState,
		Source:      w.topic,
		Image:       base64.StdEncoding.EncodeToString(sample.Data),
		Observation: float64(pixels),
		State:       state,
		Timestamp:   sample.CapturedAt.Unix(),
	}
}

// Last returns the most recently published state, or "" before the first poll.
func (w *Watcher) Last() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.last
}
