package conflict

import (
	"sort"
	"sync"

	"github.com/kimhsiao/promptdeck/internal/errors"
	"github.com/kimhsiao/promptdeck/internal/models"
)

// Batch holds the conflicts detected by one reconciliation pass. A pass
// is not considered finished until every conflict in its batch carries a
// resolution, so the sync checkpoint only advances on a complete batch.
type Batch struct {
	mu      sync.Mutex
	records map[string]*models.ConflictRecord
}

// NewBatch wraps the detected conflicts. Records are stored by conflict
// id; the caller keeps no other handle on them.
func NewBatch(records []*models.ConflictRecord) *Batch {
	byID := make(map[string]*models.ConflictRecord, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}
	return &Batch{records: byID}
}

// Resolve marks one conflict with the chosen resolution and returns its
// record. Merge is rejected for entity types that do not support it.
func (b *Batch) Resolve(conflictID string, resolution models.Resolution) (*models.ConflictRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.records[conflictID]
	if !ok {
		return nil, errors.Newf(errors.ErrNotFound, "unknown conflict: %s", conflictID)
	}
	if rec.Resolved() {
		return nil, errors.Newf(errors.ErrInvalid, "conflict already resolved: %s", conflictID)
	}
	if resolution == models.ResolutionMerge && !rec.MergeSupported() {
		return nil, errors.Newf(errors.ErrInvalid, "merge is not supported for %s conflicts", rec.EntityType)
	}
	switch resolution {
	case models.ResolutionLocal, models.ResolutionRemote, models.ResolutionMerge:
	default:
		return nil, errors.Newf(errors.ErrInvalid, "unknown resolution: %s", resolution)
	}

	rec.Resolution = resolution
	return rec, nil
}

// Complete reports whether every conflict in the batch is resolved.
// An empty batch is complete.
func (b *Batch) Complete() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, rec := range b.records {
		if !rec.Resolved() {
			return false
		}
	}
	return true
}

// Unresolved returns the number of conflicts still awaiting a choice.
func (b *Batch) Unresolved() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, rec := range b.records {
		if !rec.Resolved() {
			n++
		}
	}
	return n
}

// Len returns the total number of conflicts in the batch.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// Records returns the conflicts ordered by detection time, then id.
func (b *Batch) Records() []*models.ConflictRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*models.ConflictRecord, 0, len(b.records))
	for _, rec := range b.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DetectedAt != out[j].DetectedAt {
			return out[i].DetectedAt < out[j].DetectedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}
