// Package history keeps per-user analysis records.
//
// Records are keyed by user and timestamp: saving a record with an
// existing pair replaces it.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Accepted timestamp range in unix milliseconds (2020-01-01 to 2050-01-01).
const (
	MinTimestamp int64 = 1577836800000
	MaxTimestamp int64 = 2524608000000
)

// Sentinel errors.
var (
	ErrInvalidUserID    = errors.New("history: invalid user id")
	ErrInvalidTimestamp = errors.New("history: invalid timestamp")
	ErrNotFound         = errors.New("history: record not found")
)

// Record is one saved analysis.
type Record struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Timestamp int64           `json:"timestamp"`
	Analysis  json.RawMessage `json:"analysisData"`
}

// Store persists records.
type Store interface {
	// Save creates or replaces the record for (UserID, Timestamp).
	// A zero timestamp is set to now and an empty ID is generated.
	Save(ctx context.Context, rec *Record) error

	// List returns a user's records, newest first.
	List(ctx context.Context, userID string) ([]Record, error)

	// Delete removes one record.
	Delete(ctx context.Context, userID string, timestamp int64) error

	// Close releases resources.
	Close() error
}

// ValidateUserID checks that id is a canonical UUID.
func ValidateUserID(id string) error {
	if len(id) != 36 {
		return fmt.Errorf("%w: %q", ErrInvalidUserID, id)
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidUserID, id)
	}
	return nil
}

// ValidateTimestamp checks that ts lies in the accepted range.
func ValidateTimestamp(ts int64) error {
	if ts < MinTimestamp || ts > MaxTimestamp {
		return fmt.Errorf("%w: %d", ErrInvalidTimestamp, ts)
	}
	return nil
}

// prepare fills defaults and validates rec before a save.
func prepare(rec *Record, now time.Time) error {
	if rec.Timestamp == 0 {
		rec.Timestamp = now.UnixMilli()
	}
	if err := ValidateUserID(rec.UserID); err != nil {
		return err
	}
	if err := ValidateTimestamp(rec.Timestamp); err != nil {
		return err
	}
	if len(rec.Analysis) == 0 {
		rec.Analysis = json.RawMessage("{}")
	}
	if !json.Valid(rec.Analysis) {
		return errors.New("history: analysis is not valid JSON")
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	return nil
}
