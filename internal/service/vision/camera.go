// Package vision holds the OpenCV-backed pieces: camera capture, the SSD
// detector, frame annotation and colour classification.
package vision

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"gocv.io/x/gocv"

	"edgecounter/internal/model"
	"edgecounter/internal/service/source"
	"edgecounter/internal/timeutil"
)

// Camera reads frames from a device index, stream URL or video file.
type Camera struct {
	device  string
	clock   timeutil.Clock
	capture *gocv.VideoCapture
	frame   gocv.Mat
	seq     uint64
	once    sync.Once
}

// NewCamera creates a camera. A device made only of digits is a device index.
func NewCamera(device string, clock timeutil.Clock) *Camera {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Camera{device: device, clock: clock}
}

func (c *Camera) Open(ctx context.Context) error {
	var dev interface{} = c.device
	if idx, err := strconv.Atoi(c.device); err == nil {
		dev = idx
	}

	capture, err := gocv.OpenVideoCapture(dev)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", source.ErrDeviceUnavailable, c.device, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("%w: %s", source.ErrDeviceUnavailable, c.device)
	}

	c.capture = capture
	c.frame = gocv.NewMat()
	return nil
}

func (c *Camera) Next(ctx context.Context) (model.Sample, error) {
	if c.capture == nil {
		return model.Sample{}, fmt.Errorf("%w: camera not open", source.ErrReadFailure)
	}
	if ok := c.capture.Read(&c.frame); !ok || c.frame.Empty() {
		return model.Sample{}, fmt.Errorf("%w: no frame from %s", source.ErrReadFailure, c.device)
	}

	buf, err := gocv.IMEncode(".jpg", c.frame)
	if err != nil {
		return model.Sample{}, fmt.Errorf("%w: encode: %v", source.ErrReadFailure, err)
	}
	defer buf.Close()
	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())

	c.seq++
	return model.Sample{
		Seq:        c.seq,
		CapturedAt: c.clock.Now(),
		Width:      c.frame.Cols(),
		Height:     c.frame.Rows(),
		Data:       data,
	}, nil
}

// Close releases the device. Only the first call has an effect.
func (c *Camera) Close() error {
	var err error
	c.once.Do(func() {
		if c.capture == nil {
			return
		}
		c.frame.Close()
		err = c.capture.Close()
	})
	return err
}
