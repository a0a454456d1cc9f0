package indicator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"edgecounter/internal/dto"
	"edgecounter/internal/model"
	"edgecounter/internal/service/source"
	"edgecounter/internal/timeutil"
)

type scriptedSource struct {
	mu     sync.Mutex
	frames []string
	i      int
}

func (s *scriptedSource) Open(context.Context) error { return nil }
func (s *scriptedSource) Close() error               { return nil }

func (s *scriptedSource) Next(context.Context) (model.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.frames[s.i%len(s.frames)]
	s.i++
	if f == "" {
		return model.Sample{}, source.ErrReadFailure
	}
	return model.Sample{Seq: uint64(s.i), Data: []byte(f)}, nil
}

// byteClassifier counts 'g' bytes as green pixels.
type byteClassifier struct{ threshold int }

func (c byteClassifier) Classify(data []byte) (bool, int, error) {
	if string(data) == "corrupt" {
		return false, 0, errors.New("decode failed")
	}
	n := 0
	for _, b := range data {
		if b == 'g' {
			n++
		}
	}
	return n > c.threshold, n, nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	payloads []string
}

func (p *recordingPublisher) Publish(topic string, payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, topic+"="+string(payload))
}

func (p *recordingPublisher) all() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.payloads...)
}

type recordingDisplay struct {
	mu   sync.Mutex
	msgs []dto.DisplayMessage
}

func (d *recordingDisplay) Broadcast(msg dto.DisplayMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.msgs = append(d.msgs, msg)
}

func TestWatcher_Tick(t *testing.T) {
	src := &scriptedSource{frames: []string{"gggg", "rr", "", "corrupt", "ggg"}}
	pub := &recordingPublisher{}
	disp := &recordingDisplay{}
	w := NewWatcher(src, byteClassifier{threshold: 2}, pub, disp, "esp_cam_air/6552", 5*time.Second, nil, nil)

	for i := 0; i < 5; i++ {
		w.Tick(context.Background())
	}

	require.Equal(t, []string{
		"esp_cam_air/6552=ON",
		"esp_cam_air/6552=OFF",
		"esp_cam_air/6552=ON",
	}, pub.all())
	require.Equal(t, StateOn, w.Last())
	require.Len(t, disp.msgs, 3)
	require.Equal(t, dto.MessageState, disp.msgs[1].Type)
	require.Equal(t, StateOff, disp.msgs[1].State)
}

func TestWatcher_RunPollsOnInterval(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	src := &scriptedSource{frames: []string{"ggg"}}
	pub := &recordingPublisher{}
	w := NewWatcher(src, byteClassifier{threshold: 2}, pub, nil, "light", 5*time.Second, clock, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return clock.TickerCount() == 1 }, time.Second, time.Millisecond)
	require.Len(t, pub.all(), 1)

	clock.Advance(5 * time.Second)
	require.Eventually(t, func() bool { return len(pub.all()) == 2 }, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
