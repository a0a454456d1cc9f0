package model

import "time"

// ExternalReading is the latest value received for one external channel.
type ExternalReading struct {
	Channel    string    `json:"channel"`
	Value      float64   `json:"value"`
	ReceivedAt time.Time `json:"received_at"`
}

// ReadingValue is one channel cell of a fused record. Valid is false when the
// channel has never reported.
type ReadingValue struct {
	Channel string
	Value   float64
	Valid   bool
}
