package recorder

import (
	"edgecounter/internal/model"
	"edgecounter/internal/repository"
)

// SQLite stores records in the fused_records table.
type SQLite struct {
	repo   repository.RecordRepository
	schema Schema
}

// NewSQLite creates a recorder over repo. The database is owned by the caller.
func NewSQLite(repo repository.RecordRepository, schema Schema) *SQLite {
	return &SQLite{repo: repo, schema: schema}
}

func (s *SQLite) EnsureSchema() (bool, error) {
	return s.repo.EnsureTable(s.schema.ChannelNames())
}

func (s *SQLite) Append(rec model.FusedRecord) error {
	return s.repo.Insert(rec)
}

func (s *SQLite) Close() error { return nil }
