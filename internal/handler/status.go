package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"edgecounter/internal/dto"
	"edgecounter/internal/service/pipeline"
	"edgecounter/internal/service/transport"
)

// TransportStatus reports the broker connection state.
type TransportStatus interface {
	State() transport.State
}

// ViewerCounter reports how many dashboard viewers are connected.
type ViewerCounter interface {
	GetClientCount() int
}

// StatusHandler serves the pipeline state as JSON.
func StatusHandler(state *pipeline.SharedState, tr TransportStatus, viewers ViewerCounter, started time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		snap := state.Snapshot()
		resp := dto.StatusResponse{
			Transport:     tr.State().String(),
			UptimeSeconds: time.Since(started).Seconds(),
			HistoryLength: snap.HistoryLength,
			Smoothed:      snap.Smoothed,
			Readings:      make(map[string]float64),
			Viewers:       viewers.GetClientCount(),
		}
		if snap.HasLatest {
			resp.LastSeq = snap.Latest.Seq
			resp.LastCapture = snap.Latest.CapturedAt.Unix()
			resp.Observation = snap.Latest.Observation
		}
		for _, rv := range snap.Readings {
			if rv.Valid {
				resp.Readings[rv.Channel] = rv.Value
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			http.Error(w, "Failed to encode JSON", http.StatusInternalServerError)
		}
	}
}
