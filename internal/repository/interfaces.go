package repository

import "edgecounter/internal/model"

// RecordRepository stores fused records in a relational table.
type RecordRepository interface {
	// EnsureTable creates the table for the given channels when absent.
	EnsureTable(channels []string) (created bool, err error)
	Insert(rec model.FusedRecord) error
	// Rows returns every stored record rendered as cells, oldest first.
	Rows() ([][]string, error)
}

// ArtifactRepository indexes saved frames.
type ArtifactRepository interface {
	Insert(a *model.Artifact) (int64, error)
	List(limit int) ([]model.Artifact, error)
	Count() (int, error)
}
