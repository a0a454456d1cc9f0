package model

import (
	"image"
	"time"
)

// Detection is a single detector hit in sample pixel coordinates.
type Detection struct {
	Label      string          `json:"label"`
	Confidence float64         `json:"confidence"`
	Box        image.Rectangle `json:"box"`
}

// Sample is one unit pulled from a sample source: a JPEG-encoded frame.
type Sample struct {
	Seq        uint64
	CapturedAt time.Time
	Width      int
	Height     int
	Data       []byte
}
