package model

import "time"

// Artifact is a saved frame in the artifact directory.
type Artifact struct {
	ID          int64     `json:"id"`
	Filename    string    `json:"filename"`
	FilePath    string    `json:"filepath"`
	CapturedAt  time.Time `json:"captured_at"`
	FileSize    int64     `json:"filesize"`
	Observation float64   `json:"observation"`
}
