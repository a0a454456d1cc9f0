package pipeline

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"edgecounter/internal/config"
	"edgecounter/internal/dto"
)

// EncodeArtifact renders an annotated frame as the artifact topic payload.
func EncodeArtifact(encoding string, seq uint64, at time.Time, observation float64, frame []byte) ([]byte, error) {
	switch encoding {
	case config.EncodingBase64, "":
		out := make([]byte, base64.StdEncoding.EncodedLen(len(frame)))
		base64.StdEncoding.Encode(out, frame)
		return out, nil
	case config.EncodingRaw:
		return frame, nil
	case config.EncodingMsgpack:
		payload, err := msgpack.Marshal(&dto.ArtifactEnvelope{
			Timestamp:   at.Unix(),
			Seq:         seq,
			Observation: observation,
			Image:       frame,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to encode artifact envelope: %w", err)
		}
		return payload, nil
	default:
		return nil, fmt.Errorf("unknown artifact encoding %q", encoding)
	}
}
