// Package conflict detects concurrent-edit conflicts during pull
// reconciliation and produces the entity that survives a resolution.
package conflict

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/kimhsiao/promptdeck/internal/errors"
	"github.com/kimhsiao/promptdeck/internal/ident"
	"github.com/kimhsiao/promptdeck/internal/logging"
	"github.com/kimhsiao/promptdeck/internal/models"
)

// Resolver detects and resolves conflicts between local and remote
// copies of an entity.
type Resolver struct {
	now func() time.Time
}

// New creates a Resolver.
func New() *Resolver {
	return &Resolver{now: time.Now}
}

// DetectTask reports a conflict when both copies were modified after the
// last sync checkpoint and their payloads actually differ. Matching
// payloads with diverged timestamps are not a conflict.
func (r *Resolver) DetectTask(local, remote *models.Task, checkpoint int64) (*models.ConflictRecord, bool) {
	if local == nil || remote == nil || local.ID != remote.ID {
		return nil, false
	}
	if local.UpdatedAt <= checkpoint || remote.UpdatedAt <= checkpoint {
		return nil, false
	}
	if taskPayloadsEqual(local, remote) {
		return nil, false
	}

	rec := &models.ConflictRecord{
		ID:              ident.NewOperationID(),
		EntityType:      models.EntityTask,
		EntityID:        local.ID,
		LocalTask:       local.Clone(),
		RemoteTask:      remote.Clone(),
		LocalTimestamp:  local.UpdatedAt,
		RemoteTimestamp: remote.UpdatedAt,
		DetectedAt:      r.now().UnixMilli(),
	}

	logging.Warn("Concurrent edit conflict detected", map[string]interface{}{
		"entity_type":      string(models.EntityTask),
		"entity_id":        local.ID,
		"local_timestamp":  local.UpdatedAt,
		"remote_timestamp": remote.UpdatedAt,
		"checkpoint":       checkpoint,
	})

	return rec, true
}

// DetectFolder is the folder counterpart of DetectTask.
func (r *Resolver) DetectFolder(local, remote *models.Folder, checkpoint int64) (*models.ConflictRecord, bool) {
	if local == nil || remote == nil || local.ID != remote.ID {
		return nil, false
	}
	if local.UpdatedAt <= checkpoint || remote.UpdatedAt <= checkpoint {
		return nil, false
	}
	if folderPayloadsEqual(local, remote) {
		return nil, false
	}

	rec := &models.ConflictRecord{
		ID:              ident.NewOperationID(),
		EntityType:      models.EntityFolder,
		EntityID:        local.ID,
		LocalFolder:     local.Clone(),
		RemoteFolder:    remote.Clone(),
		LocalTimestamp:  local.UpdatedAt,
		RemoteTimestamp: remote.UpdatedAt,
		DetectedAt:      r.now().UnixMilli(),
	}

	logging.Warn("Concurrent edit conflict detected", map[string]interface{}{
		"entity_type":      string(models.EntityFolder),
		"entity_id":        local.ID,
		"local_timestamp":  local.UpdatedAt,
		"remote_timestamp": remote.UpdatedAt,
		"checkpoint":       checkpoint,
	})

	return rec, true
}

// ResolveTask returns the task that survives the given resolution.
// The returned task is always a fresh copy.
func (r *Resolver) ResolveTask(rec *models.ConflictRecord, resolution models.Resolution) (*models.Task, error) {
	if rec == nil || rec.EntityType != models.EntityTask || rec.LocalTask == nil || rec.RemoteTask == nil {
		return nil, errors.New(errors.ErrInvalid, "conflict record is not a complete task conflict")
	}

	var winner *models.Task
	switch resolution {
	case models.ResolutionLocal:
		winner = rec.LocalTask.Clone()
	case models.ResolutionRemote:
		winner = rec.RemoteTask.Clone()
	case models.ResolutionMerge:
		winner = r.MergeTasks(rec.LocalTask, rec.RemoteTask)
	default:
		return nil, errors.Newf(errors.ErrInvalid, "unknown resolution: %s", resolution)
	}

	logging.Info("Conflict resolved", map[string]interface{}{
		"entity_type":      string(models.EntityTask),
		"entity_id":        rec.EntityID,
		"resolution":       string(resolution),
		"local_timestamp":  rec.LocalTimestamp,
		"remote_timestamp": rec.RemoteTimestamp,
	})

	return winner, nil
}

// ResolveFolder returns the folder that survives the given resolution.
// Folders are binary: merge is rejected.
func (r *Resolver) ResolveFolder(rec *models.ConflictRecord, resolution models.Resolution) (*models.Folder, error) {
	if rec == nil || rec.EntityType != models.EntityFolder || rec.LocalFolder == nil || rec.RemoteFolder == nil {
		return nil, errors.New(errors.ErrInvalid, "conflict record is not a complete folder conflict")
	}

	var winner *models.Folder
	switch resolution {
	case models.ResolutionLocal:
		winner = rec.LocalFolder.Clone()
	case models.ResolutionRemote:
		winner = rec.RemoteFolder.Clone()
	case models.ResolutionMerge:
		return nil, errors.New(errors.ErrInvalid, "merge is not supported for folders")
	default:
		return nil, errors.Newf(errors.ErrInvalid, "unknown resolution: %s", resolution)
	}

	logging.Info("Conflict resolved", map[string]interface{}{
		"entity_type":      string(models.EntityFolder),
		"entity_id":        rec.EntityID,
		"resolution":       string(resolution),
		"local_timestamp":  rec.LocalTimestamp,
		"remote_timestamp": rec.RemoteTimestamp,
	})

	return winner, nil
}

// MergeTasks combines both sides into one task: scalar fields come from
// the side with the newer UpdatedAt, chat histories are unioned.
func (r *Resolver) MergeTasks(local, remote *models.Task) *models.Task {
	newer := local
	if remote.UpdatedAt > local.UpdatedAt {
		newer = remote
	}

	merged := newer.Clone()
	merged.CurrentChatHistory = MergeHistories(local.CurrentChatHistory, remote.CurrentChatHistory)
	return merged
}

// MergeHistories unions two chat histories, de-duplicating by message id
// and ordering by timestamp. When both sides carry a message with the
// same id, the first side wins.
func MergeHistories(a, b []models.ChatMessage) []models.ChatMessage {
	seen := make(map[string]bool, len(a)+len(b))
	merged := make([]models.ChatMessage, 0, len(a)+len(b))
	for _, src := range [][]models.ChatMessage{a, b} {
		for i := range src {
			if seen[src[i].ID] {
				continue
			}
			seen[src[i].ID] = true
			merged = append(merged, src[i].Clone())
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Timestamp != merged[j].Timestamp {
			return merged[i].Timestamp < merged[j].Timestamp
		}
		return merged[i].ID < merged[j].ID
	})
	return merged
}

// taskPayloadsEqual compares the user-visible content of two tasks,
// ignoring timestamps and sync bookkeeping flags.
func taskPayloadsEqual(a, b *models.Task) bool {
	return string(taskProjection(a)) == string(taskProjection(b))
}

func taskProjection(t *models.Task) []byte {
	c := t.Clone()
	c.CreatedAt = 0
	c.UpdatedAt = 0
	c.CreatedInDB = false
	c.IsUnauthenticated = false
	raw, err := json.Marshal(c)
	if err != nil {
		return nil
	}
	return raw
}

func folderPayloadsEqual(a, b *models.Folder) bool {
	return a.Name == b.Name && a.Color == b.Color
}
