package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"edgecounter/internal/dto"
	"edgecounter/internal/model"
	"edgecounter/internal/service/readings"
	"edgecounter/internal/service/source"
	"edgecounter/internal/timeutil"
)

type fakeSource struct {
	mu    sync.Mutex
	seq   uint64
	clock timeutil.Clock
	fail  bool
}

func (s *fakeSource) Open(context.Context) error { return nil }
func (s *fakeSource) Close() error               { return nil }

func (s *fakeSource) Next(context.Context) (model.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return model.Sample{}, source.ErrReadFailure
	}
	s.seq++
	return model.Sample{Seq: s.seq, CapturedAt: s.clock.Now(), Width: 4, Height: 4, Data: []byte("jpeg")}, nil
}

// fakeDetector returns counts[i] people on the i-th call, repeating the last count.
type fakeDetector struct {
	mu     sync.Mutex
	counts []int
	calls  int
	panics bool
}

func (d *fakeDetector) Detect(context.Context, model.Sample) ([]model.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.panics {
		d.panics = false
		panic("model exploded")
	}
	n := d.counts[len(d.counts)-1]
	if d.calls < len(d.counts) {
		n = d.counts[d.calls]
	}
	d.calls++

	dets := make([]model.Detection, 0, n+1)
	for i := 0; i < n; i++ {
		dets = append(dets, model.Detection{Label: "person", Confidence: 0.9})
	}
	dets = append(dets, model.Detection{Label: "chair", Confidence: 0.8})
	return dets, nil
}

type published struct {
	topic   string
	payload string
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []published
}

func (p *fakePublisher) Publish(topic string, payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, published{topic, string(payload)})
}

func (p *fakePublisher) on(topic string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, m := range p.messages {
		if m.topic == topic {
			out = append(out, m.payload)
		}
	}
	return out
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []model.FusedRecord
	fail    bool
}

func (r *fakeRecorder) EnsureSchema() (bool, error) { return false, nil }
func (r *fakeRecorder) Close() error                { return nil }

func (r *fakeRecorder) Append(rec model.FusedRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("disk full")
	}
	r.records = append(r.records, rec)
	return nil
}

func (r *fakeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

type fakeDisplay struct {
	mu       sync.Mutex
	messages []dto.DisplayMessage
}

func (d *fakeDisplay) Broadcast(msg dto.DisplayMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, msg)
}

const (
	observationTopic = "camera_detect_topic/6538"
	artifactTopic    = "camera_detect_topic/image1"
)

type harness struct {
	clock     *timeutil.MockClock
	source    *fakeSource
	detector  *fakeDetector
	publisher *fakePublisher
	recorder  *fakeRecorder
	display   *fakeDisplay
	readings  *readings.Store
	sched     *Scheduler
}

func newHarness(window int, counts ...int) *harness {
	clock := timeutil.NewMockClock(time.Date(2024, 11, 3, 14, 5, 0, 0, time.Local))
	h := &harness{
		clock:     clock,
		source:    &fakeSource{clock: clock},
		detector:  &fakeDetector{counts: counts},
		publisher: &fakePublisher{},
		recorder:  &fakeRecorder{},
		display:   &fakeDisplay{},
		readings:  readings.NewStore([]string{"temperature", "humidity"}, nil, clock),
	}
	h.sched = NewScheduler(Config{
		FastInterval:     500 * time.Millisecond,
		MediumInterval:   time.Second,
		SlowInterval:     5 * time.Second,
		LabelFilter:      "person",
		ObservationTopic: observationTopic,
		ArtifactTopic:    artifactTopic,
		ArtifactEncoding: "base64",
	}, Deps{
		Source:    h.source,
		Detector:  h.detector,
		Publisher: h.publisher,
		Recorder:  h.recorder,
		Display:   h.display,
		Clock:     clock,
	}, NewSharedState(window, h.readings))
	return h
}

func TestScheduler_SmoothedCountPublished(t *testing.T) {
	h := newHarness(25, 3)
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		h.sched.CaptureTick(ctx)
		h.sched.AggregateTick()
	}

	state := h.sched.State()
	require.Equal(t, 25, state.HistoryLen())
	require.InDelta(t, 3.0, state.Smoothed(), 1e-9)

	values := h.publisher.on(observationTopic)
	require.Len(t, values, 30)
	require.Contains(t, values, "3.0")
	require.Len(t, h.publisher.on(artifactTopic), 30)
	require.Equal(t, "anBlZw==", h.publisher.on(artifactTopic)[0])
}

func TestScheduler_AggregateConsumesEachCaptureOnce(t *testing.T) {
	h := newHarness(25, 1)

	h.sched.AggregateTick()
	require.Equal(t, 0, h.sched.State().HistoryLen(), "no capture yet")

	h.sched.CaptureTick(context.Background())
	h.sched.AggregateTick()
	h.sched.AggregateTick()
	h.sched.AggregateTick()

	require.Equal(t, 1, h.sched.State().HistoryLen())
	require.Len(t, h.publisher.on(observationTopic), 1)
}

func TestScheduler_PersistFusesReadings(t *testing.T) {
	h := newHarness(25, 2, 4)
	ctx := context.Background()

	h.sched.PersistTick()
	require.Equal(t, 0, h.recorder.count(), "persist must wait for the first observation")

	for i := 0; i < 2; i++ {
		h.sched.CaptureTick(ctx)
		h.sched.AggregateTick()
	}
	require.NoError(t, h.readings.Update("temperature", []byte("21.5")))
	require.ErrorIs(t, h.readings.Update("humidity", []byte("damp")), readings.ErrParse)

	h.sched.PersistTick()
	require.Equal(t, 1, h.recorder.count())

	want := []string{"2024-11-03 14:05:00", "3.0", "21.5", "N/A"}
	if diff := cmp.Diff(want, h.recorder.records[0].Row()); diff != "" {
		t.Errorf("Row mismatch (-want +got):\n%s", diff)
	}
}

func TestScheduler_PersistErrorIsRetried(t *testing.T) {
	h := newHarness(25, 1)
	h.sched.CaptureTick(context.Background())
	h.sched.AggregateTick()

	h.recorder.fail = true
	h.sched.PersistTick()
	require.Equal(t, 0, h.recorder.count())

	h.recorder.fail = false
	h.sched.PersistTick()
	require.Equal(t, 1, h.recorder.count())
}

func TestScheduler_CaptureFailuresSkipTick(t *testing.T) {
	h := newHarness(25, 2)
	h.source.fail = true

	h.sched.CaptureTick(context.Background())
	_, ok := h.sched.State().Latest()
	require.False(t, ok)
	require.Empty(t, h.publisher.on(artifactTopic))
	require.Empty(t, h.display.messages)
}

func TestScheduler_DisplayMessages(t *testing.T) {
	h := newHarness(25, 2)

	h.sched.CaptureTick(context.Background())
	h.sched.AggregateTick()

	require.Len(t, h.display.messages, 2)
	frame, summary := h.display.messages[0], h.display.messages[1]
	require.Equal(t, dto.MessageFrame, frame.Type)
	require.Equal(t, 2.0, frame.Observation)
	require.NotEmpty(t, frame.Image)
	require.Equal(t, dto.MessageSummary, summary.Type)
	require.Equal(t, 2.0, summary.Smoothed)
}

func TestScheduler_RunAndShutdown(t *testing.T) {
	h := newHarness(25, 3)
	h.detector.panics = true

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.sched.Run(ctx) }()

	require.Eventually(t, func() bool { return h.clock.TickerCount() == 3 }, 2*time.Second, time.Millisecond)

	for i := 0; i < 20; i++ {
		h.clock.Advance(500 * time.Millisecond)
		time.Sleep(2 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return len(h.publisher.on(observationTopic)) > 0 && h.recorder.count() > 0
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	require.Equal(t, 0, h.clock.TickerCount())
}

func TestScheduler_RunRequiresDeps(t *testing.T) {
	s := NewScheduler(Config{}, Deps{}, NewSharedState(1, nil))
	require.Error(t, s.Run(context.Background()))
}

// lateReadings pushes an observation while the persist job is collecting
// readings, so the record must already hold the earlier history state.
type lateReadings struct {
	state *SharedState
}

func (r *lateReadings) Snapshot() []model.ReadingValue {
	r.state.PushObservation(10)
	return []model.ReadingValue{{Channel: "temperature", Value: 21.5, Valid: true}}
}

func TestScheduler_PersistUsesOneSnapshot(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2024, 11, 3, 14, 5, 0, 0, time.Local))
	late := &lateReadings{}
	state := NewSharedState(25, late)
	late.state = state
	rec := &fakeRecorder{}

	sched := NewScheduler(Config{SlowInterval: 5 * time.Second}, Deps{
		Source:    &fakeSource{clock: clock},
		Detector:  &fakeDetector{},
		Publisher: &fakePublisher{},
		Recorder:  rec,
		Clock:     clock,
	}, state)

	state.PushObservation(2)
	state.PushObservation(4)
	sched.PersistTick()

	require.Equal(t, 1, rec.count())
	want := []string{"2024-11-03 14:05:00", "3.0", "21.5"}
	if diff := cmp.Diff(want, rec.records[0].Row()); diff != "" {
		t.Errorf("Row mismatch (-want +got):\n%s", diff)
	}
}
