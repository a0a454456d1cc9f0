// Package recorder appends fused records to a durable store.
package recorder

import (
	"fmt"
	"os"
	"path/filepath"

	"edgecounter/internal/config"
	"edgecounter/internal/model"
	"edgecounter/internal/repository"
)

// Recorder is the durable store written by the persist job. Only one
// goroutine calls Append.
type Recorder interface {
	// EnsureSchema creates the store with its header when absent. It reports
	// whether anything was created.
	EnsureSchema() (created bool, err error)
	Append(rec model.FusedRecord) error
	Close() error
}

// Schema is the fixed column layout: timestamp, observation, one per channel.
type Schema struct {
	Timestamp   string
	Observation string
	Channels    []config.ChannelConfig
}

// SchemaFromConfig builds the column layout from the store and channel config.
func SchemaFromConfig(cfg *config.Config) Schema {
	return Schema{
		Timestamp:   cfg.Store.TimestampColumn,
		Observation: cfg.Store.ObservationColumn,
		Channels:    append([]config.ChannelConfig(nil), cfg.MQTT.Channels...),
	}
}

// Header returns the column labels in order.
func (s Schema) Header() []string {
	h := []string{s.Timestamp, s.Observation}
	for _, ch := range s.Channels {
		h = append(h, ch.Column)
	}
	return h
}

// ChannelNames returns the reading channel names in column order.
func (s Schema) ChannelNames() []string {
	names := make([]string, len(s.Channels))
	for i, ch := range s.Channels {
		names[i] = ch.Name
	}
	return names
}

// New returns the recorder for the configured backend. repo is only used by
// the sqlite backend.
func New(cfg *config.Config, repo repository.RecordRepository) (Recorder, error) {
	schema := SchemaFromConfig(cfg)

	switch cfg.Store.Backend {
	case config.BackendCSV, "":
		return NewCSV(cfg.Store.Path, schema), nil
	case config.BackendXLSX:
		return NewXLSX(cfg.Store.Path, schema), nil
	case config.BackendSQLite:
		if repo == nil {
			return nil, fmt.Errorf("sqlite backend requires a database")
		}
		return NewSQLite(repo, schema), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// exists reports whether a non-empty file is present at path.
func exists(path string) (bool, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return info.Size() > 0, nil
}

// replaceFile writes via write() into a temp file beside path and renames it
// over path, so a crash never leaves a half-written store.
func replaceFile(path, ext string, write func(tmp string) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	tmp := filepath.Join(dir, "."+filepath.Base(path)+".tmp"+ext)
	if err := write(tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
