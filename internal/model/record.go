package model

import (
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	// TimestampLayout is the human-readable local time used in stored rows.
	TimestampLayout = "2006-01-02 15:04:05"
	// Missing marks a reading that has never been received.
	Missing = "N/A"
)

// FusedRecord joins the smoothed observation with the external readings at one instant.
type FusedRecord struct {
	Timestamp time.Time
	Smoothed  float64
	Readings  []ReadingValue
}

// NewFusedRecord copies readings so the record cannot change after construction.
func NewFusedRecord(ts time.Time, smoothed float64, readings []ReadingValue) FusedRecord {
	cp := make([]ReadingValue, len(readings))
	copy(cp, readings)
	return FusedRecord{Timestamp: ts, Smoothed: smoothed, Readings: cp}
}

// Row renders the record as string cells: timestamp, smoothed value, then one cell per channel.
func (r FusedRecord) Row() []string {
	row := make([]string, 0, 2+len(r.Readings))
	row = append(row, r.Timestamp.Local().Format(TimestampLayout), FormatValue(r.Smoothed))
	for _, rv := range r.Readings {
		if rv.Valid {
			row = append(row, FormatValue(rv.Value))
		} else {
			row = append(row, Missing)
		}
	}
	return row
}

// FormatValue renders v in shortest round-trip form, keeping a fractional part on
// integral values so 3 is written as "3.0".
func FormatValue(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}
