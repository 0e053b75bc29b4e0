package queue

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/kimhsiao/promptdeck/internal/errors"
	"github.com/kimhsiao/promptdeck/internal/models"
)

func mustEnqueue(t *testing.T, q *Queue, op models.OperationType, entityType models.EntityType, entityID string) *models.SyncOperation {
	t.Helper()
	queued, err := q.Enqueue(models.SyncOperation{
		Operation:  op,
		EntityType: entityType,
		EntityID:   entityID,
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return queued
}

// drainIDs runs the queue to completion, returning entity ids in execution order.
func drainIDs(t *testing.T, q *Queue) []string {
	t.Helper()
	var order []string
	for {
		op := q.Next()
		if op == nil {
			return order
		}
		order = append(order, op.EntityID+":"+string(op.Operation))
		if _, err := q.Complete(op.ID); err != nil {
			t.Fatalf("Complete: %v", err)
		}
	}
}

func TestEnqueueFillsIdentity(t *testing.T) {
	q := New(DefaultConfig(), nil)

	op := mustEnqueue(t, q, models.OperationCreate, models.EntityTask, "1")

	if op.ID == "" || op.Seq == 0 || op.EnqueuedAt == 0 {
		t.Errorf("identity not filled: %+v", op)
	}
	if op.Priority != models.PriorityCreateDelete {
		t.Errorf("priority = %d", op.Priority)
	}
	if op.MaxRetries != DefaultConfig().MaxRetries {
		t.Errorf("maxRetries = %d", op.MaxRetries)
	}
	if op.Status != models.OperationStatusPending {
		t.Errorf("status = %s", op.Status)
	}
}

func TestQueueFull(t *testing.T) {
	q := New(Config{MaxSize: 2}, nil)
	mustEnqueue(t, q, models.OperationCreate, models.EntityTask, "1")
	mustEnqueue(t, q, models.OperationCreate, models.EntityTask, "2")

	_, err := q.Enqueue(models.SyncOperation{Operation: models.OperationCreate, EntityType: models.EntityTask, EntityID: "3"})
	if !errors.Is(err, errors.ErrSyncQueueFull) {
		t.Errorf("expected SYNC_QUEUE_FULL, got %v", err)
	}
}

func TestPriorityTiersAcrossEntities(t *testing.T) {
	q := New(DefaultConfig(), nil)

	// Updates for one entity enqueued before a create for another:
	// the create belongs to the urgent tier and runs first.
	mustEnqueue(t, q, models.OperationUpdate, models.EntityTask, "a")
	mustEnqueue(t, q, models.OperationCreate, models.EntityTask, "b")

	order := drainIDs(t, q)
	want := []string{"b:create", "a:update"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestSameEntityNeverReordered(t *testing.T) {
	q := New(DefaultConfig(), nil)

	// update (tier 2) enqueued before delete (tier 1) for the same id:
	// priority must not let the delete race ahead of the update.
	mustEnqueue(t, q, models.OperationCreate, models.EntityTask, "x")
	mustEnqueue(t, q, models.OperationUpdate, models.EntityTask, "x")
	mustEnqueue(t, q, models.OperationDelete, models.EntityTask, "x")

	order := drainIDs(t, q)
	want := []string{"x:create", "x:update", "x:delete"}
	if len(order) != 3 {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestSameEntitySequentialNotConcurrent(t *testing.T) {
	q := New(DefaultConfig(), nil)

	mustEnqueue(t, q, models.OperationCreate, models.EntityTask, "x")
	mustEnqueue(t, q, models.OperationUpdate, models.EntityTask, "x")

	first := q.Next()
	if first == nil || first.Operation != models.OperationCreate {
		t.Fatalf("first = %+v", first)
	}

	// While the create is in flight the update must be withheld.
	if second := q.Next(); second != nil {
		t.Fatalf("second op handed out while first in flight: %+v", second)
	}

	if _, err := q.Complete(first.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	second := q.Next()
	if second == nil || second.Operation != models.OperationUpdate {
		t.Fatalf("second = %+v", second)
	}
}

func TestBackoffDelaysRetry(t *testing.T) {
	q := New(Config{BackoffBase: time.Second, BackoffCap: 30 * time.Second, MaxRetries: 5}, nil)

	current := time.Unix(1000, 0)
	q.now = func() time.Time { return current }

	op := mustEnqueue(t, q, models.OperationCreate, models.EntityTask, "x")

	inFlight := q.Next()
	if inFlight == nil {
		t.Fatal("expected op")
	}
	dropped, failedOp, err := q.Fail(inFlight.ID, stderrors.New("boom"))
	if err != nil || dropped {
		t.Fatalf("Fail: dropped=%v err=%v", dropped, err)
	}
	if failedOp.Attempts != 1 {
		t.Errorf("attempts = %d", failedOp.Attempts)
	}

	// Not ready before the backoff expires.
	if next := q.Next(); next != nil {
		t.Fatalf("op handed out during backoff: %+v", next)
	}

	// base * 2^0 = 1s after the first failure.
	current = current.Add(1100 * time.Millisecond)
	next := q.Next()
	if next == nil || next.ID != op.ID {
		t.Fatalf("expected retry after backoff, got %+v", next)
	}
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	q := New(Config{BackoffBase: time.Second, BackoffCap: 4 * time.Second, MaxRetries: 10}, nil)

	wants := []time.Duration{
		1 * time.Second, // attempt 1
		2 * time.Second, // attempt 2
		4 * time.Second, // attempt 3
		4 * time.Second, // attempt 4, capped
	}
	for i, want := range wants {
		if got := q.backoff(i + 1); got != want {
			t.Errorf("backoff(attempt %d) = %v, want %v", i+1, got, want)
		}
	}
}

func TestRetryBound(t *testing.T) {
	q := New(Config{MaxRetries: 3, BackoffBase: time.Nanosecond, BackoffCap: time.Nanosecond}, nil)

	mustEnqueue(t, q, models.OperationCreate, models.EntityTask, "x")

	attempts := 0
	for {
		op := q.Next()
		if op == nil {
			// Backoff may still be pending for a nanosecond; spin briefly.
			time.Sleep(time.Millisecond)
			op = q.Next()
			if op == nil {
				break
			}
		}
		attempts++
		dropped, _, err := q.Fail(op.ID, stderrors.New("always fails"))
		if err != nil {
			t.Fatalf("Fail: %v", err)
		}
		if dropped {
			break
		}
	}

	if attempts != 3 {
		t.Errorf("attempts = %d, want exactly maxRetries (3)", attempts)
	}
	if q.Len() != 0 {
		t.Errorf("dropped op still queued, len = %d", q.Len())
	}
	if _, failed := q.Stats(); failed != 1 {
		t.Errorf("failed counter = %d, want 1", failed)
	}

	// Never retried again automatically.
	if op := q.Next(); op != nil {
		t.Errorf("dropped op handed out again: %+v", op)
	}
}

func TestCounters(t *testing.T) {
	q := New(DefaultConfig(), nil)

	mustEnqueue(t, q, models.OperationCreate, models.EntityTask, "a")
	op := q.Next()
	remaining, err := q.Complete(op.ID)
	if err != nil || remaining != 0 {
		t.Fatalf("Complete: remaining=%d err=%v", remaining, err)
	}

	succeeded, failed := q.Stats()
	if succeeded != 1 || failed != 0 {
		t.Errorf("stats = %d/%d", succeeded, failed)
	}
}

func TestDropPermanent(t *testing.T) {
	q := New(DefaultConfig(), nil)

	mustEnqueue(t, q, models.OperationUpdate, models.EntityTask, "a")
	op := q.Next()

	dropped, err := q.Drop(op.ID)
	if err != nil {
		t.Fatalf("Drop: %v", err)
	}
	if dropped.EntityID != "a" {
		t.Errorf("dropped = %+v", dropped)
	}
	if q.Len() != 0 {
		t.Error("op still queued after Drop")
	}
}

func TestPendingFor(t *testing.T) {
	q := New(DefaultConfig(), nil)
	mustEnqueue(t, q, models.OperationUpdate, models.EntityTask, "a")

	if !q.PendingFor("a") {
		t.Error("expected pending for a")
	}
	if q.PendingFor("b") {
		t.Error("unexpected pending for b")
	}

	op := q.Next()
	if !q.PendingFor("a") {
		t.Error("in-flight op must still count as pending")
	}
	q.Complete(op.ID)
	if q.PendingFor("a") {
		t.Error("completed op must not count as pending")
	}
}

// fakePersister records queue saves.
type fakePersister struct {
	saves [][]models.SyncOperation
}

func (p *fakePersister) SaveQueue(ops []models.SyncOperation) error {
	p.saves = append(p.saves, ops)
	return nil
}

func TestDurabilityRoundTrip(t *testing.T) {
	p := &fakePersister{}
	q := New(DefaultConfig(), p)

	mustEnqueue(t, q, models.OperationCreate, models.EntityTask, "a")
	mustEnqueue(t, q, models.OperationUpdate, models.EntityTask, "a")

	if len(p.saves) != 2 {
		t.Fatalf("saves = %d, want 2", len(p.saves))
	}
	persisted := p.saves[len(p.saves)-1]

	// Simulate restart: load into a fresh queue.
	restored := New(DefaultConfig(), nil)
	restored.Load(persisted)

	if restored.Len() != 2 {
		t.Fatalf("restored len = %d", restored.Len())
	}
	order := drainIDs(t, restored)
	if order[0] != "a:create" || order[1] != "a:update" {
		t.Errorf("restored order = %v", order)
	}

	// Sequence numbering continues past loaded ops.
	op := mustEnqueue(t, restored, models.OperationDelete, models.EntityTask, "b")
	if op.Seq <= persisted[1].Seq {
		t.Errorf("seq %d not advanced past %d", op.Seq, persisted[1].Seq)
	}
}

func TestClearAbandonsOperations(t *testing.T) {
	q := New(DefaultConfig(), nil)
	mustEnqueue(t, q, models.OperationCreate, models.EntityTask, "a")
	mustEnqueue(t, q, models.OperationCreate, models.EntityFolder, "f")

	q.Clear()

	if q.Len() != 0 {
		t.Errorf("len after clear = %d", q.Len())
	}
	if op := q.Next(); op != nil {
		t.Errorf("op handed out after clear: %+v", op)
	}
}
