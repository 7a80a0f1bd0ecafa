package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// JSONStore implements Store using a JSON file for persistence.
type JSONStore struct {
	path    string
	records map[recordKey]Record
	mu      sync.RWMutex
}

type recordKey struct {
	userID    string
	timestamp int64
}

// storeData is the JSON structure for the store file.
type storeData struct {
	Version   int      `json:"version"`
	UpdatedAt string   `json:"updated_at"`
	Records   []Record `json:"records"`
}

const currentVersion = 1

// NewJSONStore creates a new JSON-based store at the given path.
// If the file doesn't exist, it will be created on first save.
func NewJSONStore(path string) (*JSONStore, error) {
	store := &JSONStore{
		path:    path,
		records: make(map[recordKey]Record),
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := store.load(); err != nil {
			return nil, fmt.Errorf("failed to load store: %w", err)
		}
	}

	return store, nil
}

// load reads the store from disk.
func (s *JSONStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var stored storeData
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}

	s.records = make(map[recordKey]Record, len(stored.Records))
	for _, rec := range stored.Records {
		s.records[recordKey{rec.UserID, rec.Timestamp}] = rec
	}
	return nil
}

// save writes the store to disk. Caller holds the write lock.
func (s *JSONStore) save() error {
	records := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].UserID != records[j].UserID {
			return records[i].UserID < records[j].UserID
		}
		return records[i].Timestamp < records[j].Timestamp
	})

	data, err := json.MarshalIndent(storeData{
		Version:   currentVersion,
		UpdatedAt: time.Now().Format(time.RFC3339),
		Records:   records,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	// Write to temp file first, then rename (atomic write)
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Save creates or replaces a record.
func (s *JSONStore) Save(ctx context.Context, rec *Record) error {
	if err := prepare(rec, time.Now()); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey{rec.UserID, rec.Timestamp}
	prev, existed := s.records[key]
	if existed {
		rec.ID = prev.ID
	}
	s.records[key] = *rec
	if err := s.save(); err != nil {
		if existed {
			s.records[key] = prev
		} else {
			delete(s.records, key)
		}
		return err
	}
	return nil
}

// List returns a user's records, newest first.
func (s *JSONStore) List(ctx context.Context, userID string) ([]Record, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0)
	for key, rec := range s.records {
		if key.userID == userID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp > out[j].Timestamp
	})
	return out, nil
}

// Delete removes a record.
func (s *JSONStore) Delete(ctx context.Context, userID string, timestamp int64) error {
	if err := ValidateUserID(userID); err != nil {
		return err
	}
	if err := ValidateTimestamp(timestamp); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey{userID, timestamp}
	prev, ok := s.records[key]
	if !ok {
		return fmt.Errorf("%w: %s@%d", ErrNotFound, userID, timestamp)
	}
	delete(s.records, key)
	if err := s.save(); err != nil {
		s.records[key] = prev
		return err
	}
	return nil
}

// Count returns the total number of records.
func (s *JSONStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close is a no-op; every write is flushed immediately.
func (s *JSONStore) Close() error {
	return nil
}

var _ Store = (*JSONStore)(nil)
