package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"edgecounter/internal/model"
)

const recordTable = "fused_records"

// ErrReservedChannel is returned when a channel would share a name with one of
// the fixed record columns.
var ErrReservedChannel = errors.New("channel name collides with a record column")

// reservedColumns are compared case-insensitively, as SQLite does.
var reservedColumns = []string{"id", "timestamp", "smoothed"}

// RecordRepository implements repository.RecordRepository for SQLite.
// Each reading channel gets its own nullable REAL column.
type RecordRepository struct {
	db       *DB
	channels []string
}

// NewRecordRepository creates a new SQLite record repository.
func NewRecordRepository(db *DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// EnsureTable creates fused_records when absent. An existing table gains any
// channel column it is missing.
func (r *RecordRepository) EnsureTable(channels []string) (bool, error) {
	for _, ch := range channels {
		for _, col := range reservedColumns {
			if strings.EqualFold(ch, col) {
				return false, fmt.Errorf("%w: %q", ErrReservedChannel, ch)
			}
		}
	}

	r.db.Lock()
	defer r.db.Unlock()

	r.channels = append([]string(nil), channels...)

	var count int
	if err := r.db.Conn().QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, recordTable,
	).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to inspect schema: %w", err)
	}

	if count == 0 {
		cols := []string{
			"id INTEGER PRIMARY KEY AUTOINCREMENT",
			"timestamp TEXT NOT NULL",
			"smoothed REAL NOT NULL",
		}
		for _, ch := range channels {
			cols = append(cols, quoteIdent(ch)+" REAL")
		}
		stmt := fmt.Sprintf("CREATE TABLE %s (%s)", recordTable, strings.Join(cols, ", "))
		if _, err := r.db.Conn().Exec(stmt); err != nil {
			return false, fmt.Errorf("failed to create %s: %w", recordTable, err)
		}
		return true, nil
	}

	existing, err := r.columns()
	if err != nil {
		return false, err
	}
	for _, ch := range channels {
		if existing[ch] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s REAL", recordTable, quoteIdent(ch))
		if _, err := r.db.Conn().Exec(stmt); err != nil {
			return false, fmt.Errorf("failed to add column %s: %w", ch, err)
		}
	}
	return false, nil
}

func (r *RecordRepository) columns() (map[string]bool, error) {
	rows, err := r.db.Conn().Query(fmt.Sprintf("PRAGMA table_info(%s)", recordTable))
	if err != nil {
		return nil, fmt.Errorf("failed to read table info: %w", err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan table info: %w", err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// Insert appends rec. Readings that were never received are stored as NULL.
func (r *RecordRepository) Insert(rec model.FusedRecord) error {
	r.db.Lock()
	defer r.db.Unlock()

	cols := []string{"timestamp", "smoothed"}
	args := []interface{}{rec.Timestamp.Local().Format(model.TimestampLayout), rec.Smoothed}
	for _, rv := range rec.Readings {
		cols = append(cols, quoteIdent(rv.Channel))
		if rv.Valid {
			args = append(args, rv.Value)
		} else {
			args = append(args, nil)
		}
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", recordTable, strings.Join(cols, ", "), placeholders)
	if _, err := r.db.Conn().Exec(stmt, args...); err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

// Rows returns the stored records as cells in insertion order, NULL as N/A.
func (r *RecordRepository) Rows() ([][]string, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	cols := []string{"timestamp", "smoothed"}
	for _, ch := range r.channels {
		cols = append(cols, quoteIdent(ch))
	}

	rows, err := r.db.Conn().Query(fmt.Sprintf("SELECT %s FROM %s ORDER BY id", strings.Join(cols, ", "), recordTable))
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		var (
			ts       string
			smoothed float64
		)
		readings := make([]sql.NullFloat64, len(r.channels))
		dest := []interface{}{&ts, &smoothed}
		for i := range readings {
			dest = append(dest, &readings[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		row := []string{ts, model.FormatValue(smoothed)}
		for _, rv := range readings {
			if rv.Valid {
				row = append(row, model.FormatValue(rv.Float64))
			} else {
				row = append(row, model.Missing)
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
