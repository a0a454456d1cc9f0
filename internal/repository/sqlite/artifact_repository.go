package sqlite

import (
	"fmt"

	"edgecounter/internal/model"
)

// ArtifactRepository implements repository.ArtifactRepository for SQLite.
type ArtifactRepository struct {
	db *DB
}

// NewArtifactRepository creates a new SQLite artifact repository.
func NewArtifactRepository(db *DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

// Insert adds a saved frame to the index.
func (r *ArtifactRepository) Insert(a *model.Artifact) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		INSERT INTO artifacts (filename, filepath, captured_at, filesize, observation)
		VALUES (?, ?, ?, ?, ?)
	`, a.Filename, a.FilePath, a.CapturedAt, a.FileSize, a.Observation)
	if err != nil {
		return 0, fmt.Errorf("failed to insert artifact: %w", err)
	}

	return result.LastInsertId()
}

// List returns the most recent artifacts first. limit <= 0 returns all.
func (r *ArtifactRepository) List(limit int) ([]model.Artifact, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query := `
		SELECT id, filename, filepath, captured_at, filesize, observation
		FROM artifacts ORDER BY captured_at DESC, id DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []model.Artifact
	for rows.Next() {
		var a model.Artifact
		if err := rows.Scan(&a.ID, &a.Filename, &a.FilePath, &a.CapturedAt, &a.FileSize, &a.Observation); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		artifacts = append(artifacts, a)
	}

	return artifacts, rows.Err()
}

// Count returns the number of indexed artifacts.
func (r *ArtifactRepository) Count() (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM artifacts`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count artifacts: %w", err)
	}
	return count, nil
}
