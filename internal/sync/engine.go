// Package sync drives the background reconciliation between the local
// entity store and the remote database: draining the operation queue,
// pulling remote state, and surfacing conflicts for resolution.
package sync

import (
	"context"
	stdsync "sync"
	"time"

	"github.com/kimhsiao/promptdeck/internal/errors"
	"github.com/kimhsiao/promptdeck/internal/logging"
	"github.com/kimhsiao/promptdeck/internal/models"
	"github.com/kimhsiao/promptdeck/internal/store"
	"github.com/kimhsiao/promptdeck/internal/sync/conflict"
	"github.com/kimhsiao/promptdeck/internal/sync/events"
	"github.com/kimhsiao/promptdeck/internal/sync/queue"
)

// Remote is the slice of the remote client the engine needs.
type Remote interface {
	Apply(ctx context.Context, userID string, op *models.SyncOperation) error
	Pull(ctx context.Context, userID string) (*models.Snapshot, error)
	CountTasks(ctx context.Context, userID string) (int, error)
}

// Checkpointer persists the last-fully-reconciled timestamp.
type Checkpointer interface {
	Checkpoint() (int64, error)
	SetCheckpoint(ts int64) error
}

// Status is a point-in-time view of the engine for status indicators.
type Status struct {
	Online        bool   `json:"online"`
	QueueLength   int    `json:"queueLength"`
	LastSyncTime  int64  `json:"lastSyncTime"`
	LastError     string `json:"lastError,omitempty"`
	ConflictCount int    `json:"conflictCount"`
}

// Engine owns the single background worker that flushes the sync queue.
// All remote writes flow through it, so per-entity ordering guarantees
// made by the queue hold end to end.
type Engine struct {
	store    *store.Store
	queue    *queue.Queue
	remote   Remote
	bus      *events.Bus
	ckpt     Checkpointer
	resolver *conflict.Resolver

	mu          stdsync.Mutex
	online      bool
	userID      string
	lastSync    int64
	lastError   string
	activeBatch *conflict.Batch

	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
	now    func() time.Time
}

// New assembles an Engine. Call Start to launch the worker.
func New(st *store.Store, q *queue.Queue, rem Remote, bus *events.Bus, ckpt Checkpointer) *Engine {
	return &Engine{
		store:    st,
		queue:    q,
		remote:   rem,
		bus:      bus,
		ckpt:     ckpt,
		resolver: conflict.New(),
		online:   true,
		wake:     make(chan struct{}, 1),
		now:      time.Now,
	}
}

// Start launches the drain worker.
func (e *Engine) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.run(ctx)
}

// Stop shuts the worker down and waits for it to exit.
func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.wake:
			e.Drain(ctx)
		}
	}
}

// Kick asks the worker to drain soon. Never blocks.
func (e *Engine) Kick() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// SetOnline flips connectivity. Coming back online kicks the worker so
// operations queued while offline flush immediately.
func (e *Engine) SetOnline(online bool) {
	e.mu.Lock()
	was := e.online
	e.online = online
	e.mu.Unlock()

	if online && !was {
		logging.Info("Connectivity restored, flushing sync queue", map[string]interface{}{
			"queued": e.queue.Len(),
		})
		e.Kick()
	}
}

// SetUser binds the engine to an authenticated user. Remote traffic only
// flows while a user is set.
func (e *Engine) SetUser(userID string) {
	e.mu.Lock()
	e.userID = userID
	e.lastError = ""
	e.mu.Unlock()
	e.Kick()
}

// ClearUser detaches the engine from the current user and abandons the
// active conflict batch.
func (e *Engine) ClearUser() {
	e.mu.Lock()
	e.userID = ""
	e.activeBatch = nil
	e.lastError = ""
	e.mu.Unlock()
}

func (e *Engine) session() (userID string, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.online || e.userID == "" {
		return "", false
	}
	return e.userID, true
}

// Status reports the engine state for the status indicator.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := Status{
		Online:       e.online,
		QueueLength:  e.queue.Len(),
		LastSyncTime: e.lastSync,
		LastError:    e.lastError,
	}
	if e.activeBatch != nil {
		st.ConflictCount = e.activeBatch.Unresolved()
	}
	return st
}

// Drain flushes every ready queue operation against the remote store.
// Transient failures reschedule the operation and stop the pass (the
// network is presumed down); permanent failures drop it.
func (e *Engine) Drain(ctx context.Context) {
	userID, ok := e.session()
	if !ok {
		return
	}

	started := false
	for {
		op := e.queue.Next()
		if op == nil {
			break
		}
		if !started {
			started = true
			e.bus.Publish(events.Event{Kind: events.KindSyncStart})
		}

		err := e.remote.Apply(ctx, userID, op)
		if err == nil {
			remaining, _ := e.queue.Complete(op.ID)
			if op.Operation == models.OperationCreate {
				switch op.EntityType {
				case models.EntityTask:
					e.store.MarkCreatedInDB(op.EntityID)
				case models.EntityFolder:
					e.store.MarkFolderCreatedInDB(op.EntityID)
				}
			}
			e.setLastSync()
			e.bus.Publish(events.Event{
				Kind:           events.KindSyncComplete,
				RemainingItems: remaining,
			})
			continue
		}

		if errors.IsTransient(err) {
			dropped, failed, _ := e.queue.Fail(op.ID, err)
			if dropped {
				e.reportError(failed, errors.Wrap(errors.ErrSyncRetryExhausted, "retries exhausted", err))
			} else {
				e.reportError(op, err)
			}
			return
		}

		// Permanent: retrying cannot help.
		e.queue.Drop(op.ID)
		e.reportError(op, err)
	}
}

func (e *Engine) setLastSync() {
	e.mu.Lock()
	e.lastSync = e.now().UnixMilli()
	e.lastError = ""
	e.mu.Unlock()
}

func (e *Engine) reportError(op *models.SyncOperation, err error) {
	e.mu.Lock()
	e.lastError = err.Error()
	e.mu.Unlock()

	logging.ErrorWithCode("Sync operation failed", string(errors.CodeOf(err)), err, map[string]interface{}{
		"operation":   string(op.Operation),
		"entity_type": string(op.EntityType),
		"entity_id":   op.EntityID,
		"attempts":    op.Attempts,
	})
	e.bus.Publish(events.Event{
		Kind:       events.KindSyncError,
		EntityType: op.EntityType,
		EntityID:   op.EntityID,
		Error:      err.Error(),
	})
}

// Reconcile pulls remote state and folds it into the local store.
// Entities with queued local operations are skipped so an in-progress
// local change is never misread as a conflict. The checkpoint advances
// only when the pass ends with no unresolved conflicts.
func (e *Engine) Reconcile(ctx context.Context) error {
	userID, ok := e.session()
	if !ok {
		return nil
	}

	e.mu.Lock()
	if e.activeBatch != nil && !e.activeBatch.Complete() {
		pending := e.activeBatch.Unresolved()
		e.mu.Unlock()
		return errors.Newf(errors.ErrSyncConflict, "%d conflicts awaiting resolution", pending)
	}
	e.mu.Unlock()

	snap, err := e.remote.Pull(ctx, userID)
	if err != nil {
		e.mu.Lock()
		e.lastError = err.Error()
		e.mu.Unlock()
		e.bus.Publish(events.Event{Kind: events.KindSyncError, Error: err.Error()})
		return err
	}

	checkpoint, err := e.ckpt.Checkpoint()
	if err != nil {
		logging.Error("Failed to read sync checkpoint", err)
	}

	var records []*models.ConflictRecord

	remoteFolders := make(map[string]bool, len(snap.Folders))
	for i := range snap.Folders {
		rf := snap.Folders[i]
		remoteFolders[rf.ID] = true
		if e.queue.PendingFor(rf.ID) {
			continue
		}
		local, exists := e.store.Folder(rf.ID)
		if !exists {
			e.store.ApplyRemoteFolder(rf)
			continue
		}
		if rec, conflicted := e.resolver.DetectFolder(&local, &rf, checkpoint); conflicted {
			records = append(records, rec)
			continue
		}
		if rf.UpdatedAt > local.UpdatedAt {
			e.store.ApplyRemoteFolder(rf)
		}
	}

	remoteTasks := make(map[string]bool, len(snap.Tasks))
	for i := range snap.Tasks {
		rt := snap.Tasks[i]
		remoteTasks[rt.ID] = true
		if e.queue.PendingFor(rt.ID) {
			continue
		}
		local, exists := e.store.Task(rt.ID)
		if !exists {
			e.store.ApplyRemoteTask(rt)
			continue
		}
		if rec, conflicted := e.resolver.DetectTask(&local, &rt, checkpoint); conflicted {
			records = append(records, rec)
			continue
		}
		if rt.UpdatedAt > local.UpdatedAt {
			e.store.ApplyRemoteTask(rt)
		}
	}

	// An entity the remote confirmed earlier but no longer returns was
	// deleted from another device. Local-only drafts are left alone.
	for _, local := range e.store.Tasks() {
		if remoteTasks[local.ID] || !local.CreatedInDB || e.queue.PendingFor(local.ID) {
			continue
		}
		if err := e.store.DeleteTask(local.ID); err != nil {
			logging.Error("Failed to apply remote deletion", err, map[string]interface{}{
				"task_id": local.ID,
			})
		}
	}

	// Same rule for folders; surviving local tasks move to the default
	// folder, matching a local folder delete.
	for _, local := range e.store.Folders() {
		if local.ID == models.DefaultFolderID || remoteFolders[local.ID] ||
			!local.CreatedInDB || e.queue.PendingFor(local.ID) {
			continue
		}
		if _, err := e.store.DeleteFolder(local.ID); err != nil {
			logging.Error("Failed to apply remote folder deletion", err, map[string]interface{}{
				"folder_id": local.ID,
			})
		}
	}

	if len(records) > 0 {
		batch := conflict.NewBatch(records)
		e.mu.Lock()
		e.activeBatch = batch
		e.mu.Unlock()
		e.bus.Publish(events.Event{
			Kind:          events.KindConflictDetected,
			ConflictCount: len(records),
		})
		return errors.Newf(errors.ErrSyncConflict, "%d conflicts detected", len(records))
	}

	e.advanceCheckpoint()
	return nil
}

func (e *Engine) advanceCheckpoint() {
	now := e.now().UnixMilli()
	if err := e.ckpt.SetCheckpoint(now); err != nil {
		logging.Error("Failed to advance sync checkpoint", err)
	}
	e.mu.Lock()
	e.lastSync = now
	e.activeBatch = nil
	e.mu.Unlock()
}

// Conflicts lists the unresolved conflicts of the active batch.
func (e *Engine) Conflicts() []*models.ConflictRecord {
	e.mu.Lock()
	batch := e.activeBatch
	e.mu.Unlock()
	if batch == nil {
		return nil
	}
	return batch.Records()
}

// ApplyResolution resolves one conflict from the active batch and applies
// the outcome to the store and queue. Choosing local or merge pushes the
// surviving copy back to the remote; choosing remote adopts it silently.
// When the last conflict of the batch resolves, the checkpoint advances.
func (e *Engine) ApplyResolution(conflictID string, resolution models.Resolution) error {
	e.mu.Lock()
	batch := e.activeBatch
	e.mu.Unlock()
	if batch == nil {
		return errors.New(errors.ErrNotFound, "no conflicts awaiting resolution")
	}

	rec, err := batch.Resolve(conflictID, resolution)
	if err != nil {
		return err
	}

	switch rec.EntityType {
	case models.EntityTask:
		winner, err := e.resolver.ResolveTask(rec, resolution)
		if err != nil {
			return err
		}
		e.store.ApplyRemoteTask(*winner)
		if resolution != models.ResolutionRemote {
			op, err := models.TaskOperation(models.OperationUpdate, winner)
			if err != nil {
				return err
			}
			if _, err := e.queue.Enqueue(*op); err != nil {
				return err
			}
		}
	case models.EntityFolder:
		winner, err := e.resolver.ResolveFolder(rec, resolution)
		if err != nil {
			return err
		}
		e.store.ApplyRemoteFolder(*winner)
		if resolution != models.ResolutionRemote {
			op, err := models.FolderOperation(models.OperationUpdate, winner)
			if err != nil {
				return err
			}
			if _, err := e.queue.Enqueue(*op); err != nil {
				return err
			}
		}
	}

	if batch.Complete() {
		e.advanceCheckpoint()
		e.Kick()
	}
	return nil
}

// ForceSync runs a full pass synchronously: drain, then reconcile.
func (e *Engine) ForceSync(ctx context.Context) error {
	e.Drain(ctx)
	return e.Reconcile(ctx)
}
