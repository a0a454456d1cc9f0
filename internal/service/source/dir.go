package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"edgecounter/internal/model"
	"edgecounter/internal/timeutil"
)

// DirSource replays the images of a directory in name order, looping forever.
type DirSource struct {
	dir   string
	clock timeutil.Clock
	files []string
	next  int
	seq   uint64
}

// NewDirSource creates a source over dir.
func NewDirSource(dir string, clock timeutil.Clock) *DirSource {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &DirSource{dir: dir, clock: clock}
}

// Open lists the directory. A directory without images is unavailable.
func (s *DirSource) Open(ctx context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	s.files = s.files[:0]
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			s.files = append(s.files, filepath.Join(s.dir, e.Name()))
		}
	}
	sort.Strings(s.files)

	if len(s.files) == 0 {
		return fmt.Errorf("%w: no images in %s", ErrDeviceUnavailable, s.dir)
	}
	return nil
}

func (s *DirSource) Next(ctx context.Context) (model.Sample, error) {
	if len(s.files) == 0 {
		return model.Sample{}, fmt.Errorf("%w: source not open", ErrReadFailure)
	}
	if err := ctx.Err(); err != nil {
		return model.Sample{}, fmt.Errorf("%w: %v", ErrReadFailure, err)
	}

	path := s.files[s.next]
	s.next = (s.next + 1) % len(s.files)

	data, err := os.ReadFile(path)
	if err != nil {
		return model.Sample{}, fmt.Errorf("%w: %v", ErrReadFailure, err)
	}
	w, h, err := decodeSize(data)
	if err != nil {
		return model.Sample{}, err
	}

	s.seq++
	return model.Sample{
		Seq:        s.seq,
		CapturedAt: s.clock.Now(),
		Width:      w,
		Height:     h,
		Data:       data,
	}, nil
}

func (s *DirSource) Close() error {
	s.files = nil
	return nil
}
