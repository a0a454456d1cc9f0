package dto

// StatusResponse is served by /api/status.
type StatusResponse struct {
	Transport     string             `json:"transport"`
	UptimeSeconds float64            `json:"uptime_s"`
	LastSeq       uint64             `json:"last_seq"`
	LastCapture   int64              `json:"last_capture"`
	Observation   float64            `json:"observation"`
	HistoryLength int                `json:"history_length"`
	Smoothed      float64            `json:"smoothed"`
	Readings      map[string]float64 `json:"readings"`
	Viewers       int                `json:"viewers"`
}

// ArtifactList is served by /api/artifacts.
type ArtifactList struct {
	Directory string         `json:"directory"`
	Artifacts []ArtifactInfo `json:"artifacts"`
}

// ArtifactInfo describes one saved frame.
type ArtifactInfo struct {
	Name        string  `json:"name"`
	CapturedAt  int64   `json:"captured_at"`
	Size        int64   `json:"size"`
	Observation float64 `json:"observation"`
}
