package dto

// ArtifactEnvelope is the msgpack payload published on the artifact topic
// when the msgpack encoding is selected.
type ArtifactEnvelope struct {
	Timestamp   int64   `msgpack:"ts"`
	Seq         uint64  `msgpack:"seq"`
	Observation float64 `msgpack:"observation"`
	Image       []byte  `msgpack:"image"`
}
