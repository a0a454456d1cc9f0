package readings

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"edgecounter/internal/model"
	"edgecounter/internal/timeutil"
)

func TestStore_Update(t *testing.T) {
	s := NewStore([]string{"temperature", "humidity"}, nil, nil)

	tests := []struct {
		name    string
		payload string
		wantErr error
		want    float64
		set     bool
	}{
		{"plain", "21.5", nil, 21.5, true},
		{"whitespace", "  22\n", nil, 22, true},
		{"garbage keeps prior", "warm", ErrParse, 22, true},
		{"nan rejected", "NaN", ErrParse, 22, true},
		{"inf rejected", "+Inf", ErrParse, 22, true},
		{"negative", "-3.25", nil, -3.25, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Update("temperature", []byte(tt.payload))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Update(%q) error = %v, expected %v", tt.payload, err, tt.wantErr)
			}
			got, ok := s.Read("temperature")
			if ok != tt.set || got != tt.want {
				t.Errorf("Read = (%v, %v), expected (%v, %v)", got, ok, tt.want, tt.set)
			}
		})
	}
}

func TestStore_ParseErrorOnUnsetChannel(t *testing.T) {
	s := NewStore([]string{"humidity"}, nil, nil)

	if err := s.Update("humidity", []byte("")); !errors.Is(err, ErrParse) {
		t.Fatalf("Expected ErrParse, got %v", err)
	}
	if _, ok := s.Read("humidity"); ok {
		t.Errorf("Expected humidity to remain unset")
	}
}

func TestStore_UnknownChannel(t *testing.T) {
	s := NewStore([]string{"temperature"}, nil, nil)

	if err := s.Update("pressure", []byte("1013")); !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("Expected ErrUnknownChannel, got %v", err)
	}
	if _, ok := s.Read("pressure"); ok {
		t.Errorf("Unknown channel should never read as set")
	}
}

func TestStore_SnapshotOrderAndTimestamps(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s := NewStore([]string{"temperature", "humidity", "temperature"}, nil, clock)

	if err := s.Update("humidity", []byte("40")); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	want := []model.ReadingValue{
		{Channel: "temperature"},
		{Channel: "humidity", Value: 40, Valid: true},
	}
	if diff := cmp.Diff(want, s.Snapshot()); diff != "" {
		t.Errorf("Snapshot mismatch (-want +got):\n%s", diff)
	}

	latest := s.Latest("humidity")
	if latest == nil || !latest.ReceivedAt.Equal(clock.Now()) {
		t.Errorf("Expected ReceivedAt %v, got %+v", clock.Now(), latest)
	}
}

func TestStore_ConcurrentUpdateAndSnapshot(t *testing.T) {
	s := NewStore([]string{"temperature"}, nil, nil)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_ = s.Update("temperature", []byte("20.5"))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := s.Snapshot()
			if snap[0].Valid && snap[0].Value != 20.5 {
				t.Errorf("Torn read: %v", snap[0].Value)
				return
			}
		}
	}()
	wg.Wait()
}
