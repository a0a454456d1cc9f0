package dto

// Display message types.
const (
	MessageFrame   = "frame"
	MessageSummary = "summary"
	MessageState   = "state"
)

// DisplayMessage is broadcast to dashboard viewers over the websocket.
// Image is the base64 JPEG and is only set on frame messages.
type DisplayMessage struct {
	Type        string  `json:"type"`
	Source      string  `json:"source,omitempty"`
	Image       string  `json:"image,omitempty"`
	Observation float64 `json:"observation"`
	Smoothed    float64 `json:"smoothed"`
	State       string  `json:"state,omitempty"`
	Timestamp   int64   `json:"timestamp"`
}
