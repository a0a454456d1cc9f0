package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"edgecounter/internal/model"
	"edgecounter/internal/timeutil"
)

const maxSnapshotSize = 16 << 20

// HTTPSource fetches one snapshot per Next from a camera's capture URL.
type HTTPSource struct {
	url    string
	client *http.Client
	clock  timeutil.Clock
	seq    atomic.Uint64
}

// NewHTTPSource creates a source for url with a 10s request timeout.
func NewHTTPSource(url string, clock timeutil.Clock) *HTTPSource {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &HTTPSource{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		clock:  clock,
	}
}

// Open validates the URL. The camera itself is only contacted by Next, so an
// offline camera shows up as read failures rather than a startup error.
func (s *HTTPSource) Open(ctx context.Context) error {
	if _, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	return nil
}

func (s *HTTPSource) Next(ctx context.Context) (model.Sample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return model.Sample{}, fmt.Errorf("%w: %v", ErrReadFailure, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return model.Sample{}, fmt.Errorf("%w: %v", ErrReadFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.Sample{}, fmt.Errorf("%w: %s returned %s", ErrReadFailure, s.url, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotSize))
	if err != nil {
		return model.Sample{}, fmt.Errorf("%w: %v", ErrReadFailure, err)
	}

	w, h, err := decodeSize(data)
	if err != nil {
		return model.Sample{}, err
	}

	return model.Sample{
		Seq:        s.seq.Add(1),
		CapturedAt: s.clock.Now(),
		Width:      w,
		Height:     h,
		Data:       data,
	}, nil
}

func (s *HTTPSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
