package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"edgecounter/internal/config"
	"edgecounter/internal/logger"
	"edgecounter/internal/model"
	"edgecounter/internal/repository"
	"edgecounter/internal/timeutil"
)

const (
	artifactPrefix = "frame_"
	artifactExt    = ".jpg"
)

// ArtifactService writes annotated frames to the artifact directory, at most
// once per save interval, and indexes them when a repository is available.
type ArtifactService struct {
	dir      string
	interval time.Duration
	last     time.Time
	mu       sync.Mutex
	logger   *logger.Logger
	repo     repository.ArtifactRepository
}

// NewArtifactService creates the saver. The first frame is written one full
// interval after construction.
func NewArtifactService(cfg *config.Config, logger *logger.Logger, repo repository.ArtifactRepository, clock timeutil.Clock) *ArtifactService {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &ArtifactService{
		dir:      cfg.ArtifactDirectory,
		interval: cfg.ArtifactSaveInterval,
		last:     clock.Now(),
		logger:   logger,
		repo:     repo,
	}
}

// Dir returns the artifact directory.
func (s *ArtifactService) Dir() string {
	return s.dir
}

// MaybeSave writes data as frame_<unix>.jpg when at least one interval has
// passed since the last save. It returns nil when the frame was skipped.
func (s *ArtifactService) MaybeSave(at time.Time, data []byte, observation float64) (*model.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if at.Sub(s.last) < s.interval {
		return nil, nil
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	filename := fmt.Sprintf("%s%d%s", artifactPrefix, at.Unix(), artifactExt)
	fullpath := filepath.Join(s.dir, filename)
	if err := os.WriteFile(fullpath, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", filename, err)
	}
	s.last = at

	artifact := &model.Artifact{
		Filename:    filename,
		FilePath:    fullpath,
		CapturedAt:  at,
		FileSize:    int64(len(data)),
		Observation: observation,
	}

	if s.repo != nil {
		id, err := s.repo.Insert(artifact)
		if err != nil {
			s.logger.Error("Error indexing artifact %s: %v", filename, err)
		} else {
			artifact.ID = id
		}
	}

	s.logger.Info("Saved artifact %s (%d bytes)", filename, artifact.FileSize)
	return artifact, nil
}

// List returns saved artifacts, newest first. Without an index the directory is scanned.
func (s *ArtifactService) List(limit int) ([]model.Artifact, error) {
	if s.repo != nil {
		return s.repo.List(limit)
	}

	artifacts, err := ScanDir(s.dir)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(artifacts) > limit {
		artifacts = artifacts[:limit]
	}
	return artifacts, nil
}

// ParseArtifactName returns the capture time encoded in a frame_<unix>.jpg name.
func ParseArtifactName(name string) (time.Time, error) {
	if !strings.HasPrefix(name, artifactPrefix) || !strings.HasSuffix(name, artifactExt) {
		return time.Time{}, fmt.Errorf("not an artifact name: %s", name)
	}
	unix, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, artifactPrefix), artifactExt), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp in %s: %w", name, err)
	}
	return time.Unix(unix, 0), nil
}

// ScanDir lists the artifacts found in dir, newest first. A missing directory
// is empty.
func ScanDir(dir string) ([]model.Artifact, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact directory: %w", err)
	}

	var artifacts []model.Artifact
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		capturedAt, err := ParseArtifactName(e.Name())
		if err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		artifacts = append(artifacts, model.Artifact{
			Filename:   e.Name(),
			FilePath:   filepath.Join(dir, e.Name()),
			CapturedAt: capturedAt,
			FileSize:   info.Size(),
		})
	}

	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].CapturedAt.After(artifacts[j].CapturedAt)
	})
	return artifacts, nil
}
