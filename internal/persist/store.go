package persist

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/kimhsiao/promptdeck/internal/models"
)

// Well-known kv keys.
const (
	keySnapshot   = "snapshot"
	keyQueue      = "sync_queue"
	keyCheckpoint = "sync_checkpoint"
	keyQuotaDate  = "quota_date"
	keyQuotaCount = "quota_count"
)

// Store exposes the typed persistence operations the engine needs on top
// of the raw key/value database.
type Store struct {
	db *DB
}

// NewStore creates a Store over an open database.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// SaveSnapshot writes the full entity store snapshot.
func (s *Store) SaveSnapshot(snap *models.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.db.Set(keySnapshot, data)
}

// LoadSnapshot reads the persisted snapshot. Returns nil when none exists.
func (s *Store) LoadSnapshot() (*models.Snapshot, error) {
	data, ok, err := s.db.Get(keySnapshot)
	if err != nil || !ok {
		return nil, err
	}
	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// SaveQueue persists the pending sync operations.
func (s *Store) SaveQueue(ops []models.SyncOperation) error {
	data, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("marshal queue: %w", err)
	}
	return s.db.Set(keyQueue, data)
}

// LoadQueue reads the persisted sync operations. Returns nil when none exist.
func (s *Store) LoadQueue() ([]models.SyncOperation, error) {
	data, ok, err := s.db.Get(keyQueue)
	if err != nil || !ok {
		return nil, err
	}
	var ops []models.SyncOperation
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, fmt.Errorf("unmarshal queue: %w", err)
	}
	return ops, nil
}

// Checkpoint returns the timestamp of the last successful full
// reconciliation, or zero when no reconciliation has completed.
func (s *Store) Checkpoint() (int64, error) {
	data, ok, err := s.db.Get(keyCheckpoint)
	if err != nil || !ok {
		return 0, err
	}
	ts, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse checkpoint: %w", err)
	}
	return ts, nil
}

// SetCheckpoint records the timestamp of a successful full reconciliation.
func (s *Store) SetCheckpoint(ts int64) error {
	return s.db.Set(keyCheckpoint, []byte(strconv.FormatInt(ts, 10)))
}

// QuotaCounter returns the persisted daily quota counter.
func (s *Store) QuotaCounter() (date string, count int, err error) {
	dateBytes, ok, err := s.db.Get(keyQuotaDate)
	if err != nil || !ok {
		return "", 0, err
	}
	countBytes, ok, err := s.db.Get(keyQuotaCount)
	if err != nil || !ok {
		return string(dateBytes), 0, err
	}
	n, err := strconv.Atoi(string(countBytes))
	if err != nil {
		return "", 0, fmt.Errorf("parse quota count: %w", err)
	}
	return string(dateBytes), n, nil
}

// SetQuotaCounter persists the daily quota counter.
func (s *Store) SetQuotaCounter(date string, count int) error {
	if err := s.db.Set(keyQuotaDate, []byte(date)); err != nil {
		return err
	}
	return s.db.Set(keyQuotaCount, []byte(strconv.Itoa(count)))
}
