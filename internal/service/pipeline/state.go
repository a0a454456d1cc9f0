package pipeline

import (
	"sync"
	"time"

	"edgecounter/internal/model"
	"edgecounter/internal/service/observation"
)

// CaptureResult is what the capture job leaves for the aggregate job.
type CaptureResult struct {
	Seq         uint64
	CapturedAt  time.Time
	Detections  []model.Detection
	Observation float64
}

// Snapshot is a consistent copy of the shared state for status reporting.
type Snapshot struct {
	Latest        CaptureResult
	HasLatest     bool
	HistoryLength int
	Smoothed      float64
	Readings      []model.ReadingValue
}

// SharedState is the state the three jobs share. The latest capture result and
// the history sit behind one RWMutex; readings live in their own lock-free slots.
type SharedState struct {
	mu          sync.RWMutex
	latest      CaptureResult
	hasLatest   bool
	consumedSeq uint64
	history     *observation.History
	readings    ReadingSource
}

// NewSharedState creates state with a history window of window observations.
func NewSharedState(window int, readings ReadingSource) *SharedState {
	return &SharedState{
		history:  observation.NewHistory(window),
		readings: readings,
	}
}

// SetLatest replaces the latest capture result. Called by the capture job.
func (s *SharedState) SetLatest(r CaptureResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = r
	s.hasLatest = true
}

// Latest returns the latest capture result, if any.
func (s *SharedState) Latest() (CaptureResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.hasLatest
}

// TakeFresh returns the latest capture result once. Later calls report false
// until a newer result is stored.
func (s *SharedState) TakeFresh() (CaptureResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasLatest || s.latest.Seq == s.consumedSeq {
		return CaptureResult{}, false
	}
	s.consumedSeq = s.latest.Seq
	return s.latest, true
}

// PushObservation appends v to the history and returns the new smoothed value.
func (s *SharedState) PushObservation(v float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.Push(v)
	return s.history.Smoothed()
}

// Smoothed returns the mean of the history, 0 when empty.
func (s *SharedState) Smoothed() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Smoothed()
}

// HistoryLen returns the number of observations in the history.
func (s *SharedState) HistoryLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Len()
}

// Readings returns the current reading snapshot.
func (s *SharedState) Readings() []model.ReadingValue {
	if s.readings == nil {
		return nil
	}
	return s.readings.Snapshot()
}

// Snapshot copies the whole state.
func (s *SharedState) Snapshot() Snapshot {
	s.mu.RLock()
	snap := Snapshot{
		Latest:        s.latest,
		HasLatest:     s.hasLatest,
		HistoryLength: s.history.Len(),
		Smoothed:      s.history.Smoothed(),
	}
	s.mu.RUnlock()
	snap.Readings = s.Readings()
	return snap
}
