// Package observation turns detection sets into scalar observations and keeps
// the bounded rolling history used for smoothing.
package observation

import "edgecounter/internal/model"

// ReduceFunc derives one scalar observation from a detection set.
type ReduceFunc func(detections []model.Detection) float64

// Reduce counts the detections whose label equals labelFilter.
// An empty filter counts every detection.
func Reduce(detections []model.Detection, labelFilter string) float64 {
	n := 0
	for _, d := range detections {
		if labelFilter == "" || d.Label == labelFilter {
			n++
		}
	}
	return float64(n)
}

// CountLabel returns a ReduceFunc counting detections labelled label.
func CountLabel(label string) ReduceFunc {
	return func(detections []model.Detection) float64 {
		return Reduce(detections, label)
	}
}
