package handler

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strconv"

	"edgecounter/internal/dto"
	"edgecounter/internal/logger"
	"edgecounter/internal/model"
)

// ArtifactLister lists saved frames, newest first.
type ArtifactLister interface {
	Dir() string
	List(limit int) ([]model.Artifact, error)
}

// ListArtifactsHandler serves the saved frames as JSON. ?limit=N caps the list.
func ListArtifactsHandler(artifacts ArtifactLister, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := atoiDefault(r.URL.Query().Get("limit"), 50)

		list, err := artifacts.List(limit)
		if err != nil {
			logger.Error("Error listing artifacts: %v", err)
			http.Error(w, "Failed to list artifacts", http.StatusInternalServerError)
			return
		}

		data := dto.ArtifactList{
			Directory: artifacts.Dir(),
			Artifacts: make([]dto.ArtifactInfo, 0, len(list)),
		}
		for _, a := range list {
			data.Artifacts = append(data.Artifacts, dto.ArtifactInfo{
				Name:        a.Filename,
				CapturedAt:  a.CapturedAt.Unix(),
				Size:        a.FileSize,
				Observation: a.Observation,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, "Failed to encode JSON", http.StatusInternalServerError)
		}
	}
}

// ViewArtifactHandler serves one saved frame by name.
func ViewArtifactHandler(artifacts ArtifactLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		if name == "" {
			http.Error(w, "Name parameter is required", http.StatusBadRequest)
			return
		}
		http.ServeFile(w, r, filepath.Join(artifacts.Dir(), filepath.Base(name)))
	}
}

func atoiDefault(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return def
}
