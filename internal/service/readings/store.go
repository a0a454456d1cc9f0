// Package readings keeps the last value received on each external channel.
package readings

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"

	"edgecounter/internal/logger"
	"edgecounter/internal/model"
	"edgecounter/internal/timeutil"
)

var (
	// ErrParse is returned when a payload is not a finite decimal number.
	ErrParse = errors.New("reading is not a finite number")
	// ErrUnknownChannel is returned for a channel that was not configured.
	ErrUnknownChannel = errors.New("unknown reading channel")
)

// Store holds one lock-free slot per configured channel. Slots are only
// replaced, never cleared.
type Store struct {
	order  []string
	slots  map[string]*atomic.Pointer[model.ExternalReading]
	logger *logger.Logger
	clock  timeutil.Clock
}

// NewStore creates a store for the given channels, in their configured order.
func NewStore(channels []string, log *logger.Logger, clock timeutil.Clock) *Store {
	if log == nil {
		log = logger.Discard()
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	s := &Store{
		order:  make([]string, 0, len(channels)),
		slots:  make(map[string]*atomic.Pointer[model.ExternalReading], len(channels)),
		logger: log,
		clock:  clock,
	}
	for _, name := range channels {
		if _, dup := s.slots[name]; dup {
			continue
		}
		s.order = append(s.order, name)
		s.slots[name] = &atomic.Pointer[model.ExternalReading]{}
	}
	return s
}

// Channels returns the channel names in configured order.
func (s *Store) Channels() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Update parses raw and replaces the channel's slot. On a parse error the
// previous value is kept.
func (s *Store) Update(channel string, raw []byte) error {
	slot, ok := s.slots[channel]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
	}

	text := strings.TrimSpace(string(raw))
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		s.logger.Warning("Ignoring %s reading %q: not a number", channel, text)
		return fmt.Errorf("%w: %s=%q", ErrParse, channel, text)
	}

	slot.Store(&model.ExternalReading{
		Channel:    channel,
		Value:      v,
		ReceivedAt: s.clock.Now(),
	})
	return nil
}

// Read returns the channel's last value and whether one was ever received.
func (s *Store) Read(channel string) (float64, bool) {
	r := s.Latest(channel)
	if r == nil {
		return 0, false
	}
	return r.Value, true
}

// Latest returns the full last reading of the channel, or nil.
func (s *Store) Latest(channel string) *model.ExternalReading {
	slot, ok := s.slots[channel]
	if !ok {
		return nil
	}
	return slot.Load()
}

// Snapshot returns every slot in configured order.
func (s *Store) Snapshot() []model.ReadingValue {
	out := make([]model.ReadingValue, 0, len(s.order))
	for _, name := range s.order {
		rv := model.ReadingValue{Channel: name}
		if r := s.slots[name].Load(); r != nil {
			rv.Value = r.Value
			rv.Valid = true
		}
		out = append(out, rv)
	}
	return out
}
