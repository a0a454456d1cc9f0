package pipeline

import (
	"context"
	"time"

	"edgecounter/internal/dto"
	"edgecounter/internal/model"
)

// Detector turns one sample into a detection set.
type Detector interface {
	Detect(ctx context.Context, sample model.Sample) ([]model.Detection, error)
}

// Annotator draws detections onto an encoded frame.
type Annotator interface {
	Annotate(data []byte, detections []model.Detection) ([]byte, error)
}

// Publisher sends a payload on a topic. Failures are handled by the implementation.
type Publisher interface {
	Publish(topic string, payload []byte)
}

// Display receives frames and summaries for live viewers. It must not block.
type Display interface {
	Broadcast(msg dto.DisplayMessage)
}

// ArtifactSaver persists annotated frames at its own rate.
type ArtifactSaver interface {
	MaybeSave(at time.Time, data []byte, observation float64) (*model.Artifact, error)
}

// ReadingSource provides the latest external readings in column order.
type ReadingSource interface {
	Snapshot() []model.ReadingValue
}
