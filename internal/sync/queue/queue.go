// Package queue provides the durable, ordered buffer of pending remote
// mutations, with priority tiers, per-entity ordering, and exponential
// backoff retry.
package queue

import (
	"sync"
	"time"

	"github.com/kimhsiao/promptdeck/internal/errors"
	"github.com/kimhsiao/promptdeck/internal/ident"
	"github.com/kimhsiao/promptdeck/internal/logging"
	"github.com/kimhsiao/promptdeck/internal/models"
)

// Persister stores the queue contents so pending operations survive a
// restart. May be nil for an ephemeral queue.
type Persister interface {
	SaveQueue([]models.SyncOperation) error
}

// Config holds queue tuning parameters.
type Config struct {
	MaxSize     int
	MaxRetries  int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// DefaultConfig returns the default queue configuration.
func DefaultConfig() Config {
	return Config{
		MaxSize:     1000,
		MaxRetries:  3,
		BackoffBase: time.Second,
		BackoffCap:  30 * time.Second,
	}
}

// Queue is the sync queue. It never mutates entities; it holds snapshots
// taken at enqueue time and hands them to the drain worker in order.
type Queue struct {
	mu      sync.Mutex
	ops     []*models.SyncOperation
	seq     uint64
	cfg     Config
	persist Persister
	now     func() time.Time

	succeeded int
	failed    int
}

// New creates a Queue. persist may be nil.
func New(cfg Config, persist Persister) *Queue {
	if cfg.MaxSize == 0 {
		cfg.MaxSize = DefaultConfig().MaxSize
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = DefaultConfig().BackoffBase
	}
	if cfg.BackoffCap == 0 {
		cfg.BackoffCap = DefaultConfig().BackoffCap
	}
	return &Queue{cfg: cfg, persist: persist, now: time.Now}
}

// Enqueue appends an operation. Identity, priority tier, retry budget,
// and sequence number are filled in. Operations are never deduplicated:
// an update following a still-pending create is legal and runs in order.
func (q *Queue) Enqueue(op models.SyncOperation) (*models.SyncOperation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ops) >= q.cfg.MaxSize {
		return nil, errors.Newf(errors.ErrSyncQueueFull, "queue is full (max size: %d)", q.cfg.MaxSize)
	}

	now := q.now()
	q.seq++
	op.ID = ident.NewOperationID()
	op.Seq = q.seq
	op.Priority = models.PriorityFor(op.Operation)
	op.EnqueuedAt = now.UnixMilli()
	op.Status = models.OperationStatusPending
	if op.MaxRetries == 0 {
		op.MaxRetries = q.cfg.MaxRetries
	}

	stored := op
	q.ops = append(q.ops, &stored)
	q.persistLocked()

	logging.Debug("Enqueued sync operation", map[string]interface{}{
		"operation":   string(op.Operation),
		"entity_type": string(op.EntityType),
		"entity_id":   op.EntityID,
		"priority":    op.Priority,
	})

	return &op, nil
}

// Next returns the operation the worker should run now, marked in flight,
// or nil when nothing is ready. Selection order is priority tier, then
// enqueue order, except that an operation is withheld while any
// earlier-enqueued operation for the same entity id is still unfinished.
// That rule keeps per-entity mutations strictly ordered even across
// priority tiers and backoff delays.
func (q *Queue) Next() *models.SyncOperation {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now().UnixMilli()

	var best *models.SyncOperation
	for _, op := range q.ops {
		if op.Status != models.OperationStatusPending {
			continue
		}
		if q.blockedLocked(op) {
			continue
		}
		if op.NextAttemptAt > now {
			continue
		}
		if best == nil || op.Priority < best.Priority ||
			(op.Priority == best.Priority && op.Seq < best.Seq) {
			best = op
		}
	}
	if best == nil {
		return nil
	}

	best.Status = models.OperationStatusInFlight
	copied := *best
	return &copied
}

// blockedLocked reports whether an earlier operation for the same entity
// is still in the queue (pending or in flight).
func (q *Queue) blockedLocked(op *models.SyncOperation) bool {
	for _, other := range q.ops {
		if other.EntityID == op.EntityID && other.Seq < op.Seq {
			return true
		}
	}
	return false
}

// Complete removes a finished operation and returns the number of
// operations still queued.
func (q *Queue) Complete(id string) (remaining int, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.indexLocked(id)
	if idx < 0 {
		return len(q.ops), errors.Newf(errors.ErrNotFound, "operation %s not found", id)
	}
	q.ops = append(q.ops[:idx], q.ops[idx+1:]...)
	q.succeeded++
	q.persistLocked()
	return len(q.ops), nil
}

// Fail records a failed attempt. If the retry budget is exhausted the
// operation is dropped and dropped=true is returned; otherwise it is
// re-queued with an exponential backoff delay.
func (q *Queue) Fail(id string, cause error) (dropped bool, op *models.SyncOperation, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.indexLocked(id)
	if idx < 0 {
		return false, nil, errors.Newf(errors.ErrNotFound, "operation %s not found", id)
	}

	target := q.ops[idx]
	target.Attempts++
	if cause != nil {
		target.LastError = cause.Error()
	}

	if target.Attempts >= target.MaxRetries {
		q.ops = append(q.ops[:idx], q.ops[idx+1:]...)
		q.failed++
		q.persistLocked()

		logging.ErrorWithCode("Sync operation dropped after exhausting retries",
			string(errors.ErrSyncRetryExhausted), cause, map[string]interface{}{
				"operation": string(target.Operation),
				"entity_id": target.EntityID,
				"attempts":  target.Attempts,
			})

		copied := *target
		return true, &copied, nil
	}

	delay := q.backoff(target.Attempts)
	target.NextAttemptAt = q.now().Add(delay).UnixMilli()
	target.Status = models.OperationStatusPending
	q.persistLocked()

	logging.Warn("Sync operation failed, will retry", map[string]interface{}{
		"operation":   string(target.Operation),
		"entity_id":   target.EntityID,
		"attempt":     target.Attempts,
		"max_retries": target.MaxRetries,
		"retry_in_ms": delay.Milliseconds(),
		"error":       target.LastError,
	})

	copied := *target
	return false, &copied, nil
}

// Drop removes an operation without retrying, for permanent failures.
func (q *Queue) Drop(id string) (*models.SyncOperation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.indexLocked(id)
	if idx < 0 {
		return nil, errors.Newf(errors.ErrNotFound, "operation %s not found", id)
	}
	target := q.ops[idx]
	q.ops = append(q.ops[:idx], q.ops[idx+1:]...)
	q.failed++
	q.persistLocked()

	copied := *target
	return &copied, nil
}

// backoff computes base * 2^(attempts-1), capped.
func (q *Queue) backoff(attempts int) time.Duration {
	delay := q.cfg.BackoffBase << uint(attempts-1)
	if delay > q.cfg.BackoffCap || delay <= 0 {
		delay = q.cfg.BackoffCap
	}
	return delay
}

func (q *Queue) indexLocked(id string) int {
	for i, op := range q.ops {
		if op.ID == id {
			return i
		}
	}
	return -1
}

// persistLocked writes the queue contents. Persist failures are logged,
// never propagated: the in-memory queue remains authoritative.
func (q *Queue) persistLocked() {
	if q.persist == nil {
		return
	}
	snapshot := make([]models.SyncOperation, 0, len(q.ops))
	for _, op := range q.ops {
		copied := *op
		copied.Status = models.OperationStatusPending // in-flight resets on reload
		snapshot = append(snapshot, copied)
	}
	if err := q.persist.SaveQueue(snapshot); err != nil {
		logging.Error("Failed to persist sync queue", err, nil)
	}
}

// Load restores persisted operations, typically once at startup.
func (q *Queue) Load(ops []models.SyncOperation) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.ops = make([]*models.SyncOperation, 0, len(ops))
	for i := range ops {
		op := ops[i]
		op.Status = models.OperationStatusPending
		if op.Seq > q.seq {
			q.seq = op.Seq
		}
		q.ops = append(q.ops, &op)
	}
}

// Len returns the number of queued operations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// PendingFor reports whether any operation targeting the entity is still
// queued or in flight. The conflict resolver uses this to avoid raising
// false conflicts against operations already superseded.
func (q *Queue) PendingFor(entityID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, op := range q.ops {
		if op.EntityID == entityID {
			return true
		}
	}
	return false
}

// Clear abandons all queued operations. Used on logout.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = nil
	q.persistLocked()
}

// Stats returns the running success/failure counters.
func (q *Queue) Stats() (succeeded, failed int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.succeeded, q.failed
}

// Snapshot returns a copy of the queued operations, in enqueue order.
func (q *Queue) Snapshot() []models.SyncOperation {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]models.SyncOperation, 0, len(q.ops))
	for _, op := range q.ops {
		out = append(out, *op)
	}
	return out
}
