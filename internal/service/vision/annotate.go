package vision

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"edgecounter/internal/model"
)

var boxColor = color.RGBA{R: 0, G: 255, B: 0, A: 0}

// Annotator draws detection boxes and labels onto frames.
type Annotator struct{}

// Annotate returns data re-encoded as JPEG with every detection outlined.
func (Annotator) Annotate(data []byte, detections []model.Detection) ([]byte, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, fmt.Errorf("decoded image is empty")
	}

	for _, det := range detections {
		if err := gocv.Rectangle(&mat, det.Box, boxColor, 2); err != nil {
			return nil, fmt.Errorf("failed to draw rectangle: %w", err)
		}

		label := fmt.Sprintf("%s: %.2f", det.Label, det.Confidence)
		pt := image.Pt(det.Box.Min.X, det.Box.Min.Y-10)
		if err := gocv.PutText(&mat, label, pt, gocv.FontHersheySimplex, 0.5, boxColor, 2); err != nil {
			return nil, fmt.Errorf("failed to draw text: %w", err)
		}
	}

	buf, err := gocv.IMEncode(".jpg", mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()
	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}
