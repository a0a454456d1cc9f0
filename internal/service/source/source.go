// Package source provides sample sources that yield JPEG frames.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"edgecounter/internal/model"
)

var (
	// ErrDeviceUnavailable is returned by Open when the device cannot be opened.
	ErrDeviceUnavailable = errors.New("sample device unavailable")
	// ErrReadFailure is returned by Next when one sample could not be read.
	ErrReadFailure = errors.New("sample read failed")
)

// Source yields samples. Only one goroutine calls Next.
type Source interface {
	Open(ctx context.Context) error
	Next(ctx context.Context) (model.Sample, error)
	Close() error
}

// decodeSize returns the pixel dimensions of an encoded image.
func decodeSize(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: not an image: %v", ErrReadFailure, err)
	}
	return cfg.Width, cfg.Height, nil
}
