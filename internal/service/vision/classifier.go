package vision

import (
	"fmt"

	"gocv.io/x/gocv"
)

// GreenLightClassifier reports whether a frame shows enough pixels in the
// green HSV band [40,70,70]..[80,255,255].
type GreenLightClassifier struct {
	PixelThreshold int
}

// Classify returns true when more than PixelThreshold pixels fall in the band.
// The matching pixel count is returned alongside.
func (c GreenLightClassifier) Classify(data []byte) (bool, int, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return false, 0, fmt.Errorf("failed to decode image: %w", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return false, 0, fmt.Errorf("decoded image is empty")
	}

	hsv := gocv.NewMat()
	defer hsv.Close()
	if err := gocv.CvtColor(mat, &hsv, gocv.ColorBGRToHSV); err != nil {
		return false, 0, fmt.Errorf("failed to convert to HSV: %w", err)
	}

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.InRangeWithScalar(hsv, gocv.NewScalar(40, 70, 70, 0), gocv.NewScalar(80, 255, 255, 0), &mask)

	n := gocv.CountNonZero(mask)
	return n > c.PixelThreshold, n, nil
}
