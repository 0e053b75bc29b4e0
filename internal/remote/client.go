package remote

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/kimhsiao/promptdeck/internal/errors"
	"github.com/kimhsiao/promptdeck/internal/logging"
	"github.com/kimhsiao/promptdeck/internal/models"
)

// ClientConfig holds the timeout budgets per operation class.
type ClientConfig struct {
	WriteTimeout time.Duration // create/update/delete calls
	PullTimeout  time.Duration // full snapshot pulls
}

// DefaultClientConfig returns the default timeout budgets.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		WriteTimeout: 8 * time.Second,
		PullTimeout:  15 * time.Second,
	}
}

// Client wraps a Store with timeouts, error classification, and the
// create-idempotency rule. It is the only path the sync queue uses to
// reach the remote store.
type Client struct {
	store Store
	cfg   ClientConfig
}

// NewClient creates a Client over the given remote store.
func NewClient(store Store, cfg ClientConfig) *Client {
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultClientConfig().WriteTimeout
	}
	if cfg.PullTimeout == 0 {
		cfg.PullTimeout = DefaultClientConfig().PullTimeout
	}
	return &Client{store: store, cfg: cfg}
}

// Apply performs the remote call for one queued sync operation.
func (c *Client) Apply(ctx context.Context, userID string, op *models.SyncOperation) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()

	var err error
	switch op.EntityType {
	case models.EntityTask:
		err = c.applyTask(ctx, userID, op)
	case models.EntityFolder:
		err = c.applyFolder(ctx, userID, op)
	default:
		return errors.Newf(errors.ErrInvalid, "unknown entity type %q", op.EntityType)
	}
	return c.classify(err, op)
}

func (c *Client) applyTask(ctx context.Context, userID string, op *models.SyncOperation) error {
	if op.Operation == models.OperationDelete {
		err := c.store.DeleteTask(ctx, userID, op.EntityID)
		if stderrors.Is(err, ErrNotFound) {
			// Already gone remotely; a replayed delete is a success.
			return nil
		}
		return err
	}

	task, err := op.TaskPayload()
	if err != nil {
		return errors.Wrap(errors.ErrValidation, "malformed task payload", err)
	}
	rec := taskToRecord(task)

	switch op.Operation {
	case models.OperationCreate:
		_, err = c.store.CreateTask(ctx, userID, rec)
		if stderrors.Is(err, ErrDuplicate) {
			return c.resolveDuplicateTask(ctx, userID, op.EntityID)
		}
		return err
	case models.OperationUpdate:
		_, err = c.store.UpdateTask(ctx, userID, rec)
		if stderrors.Is(err, ErrNotFound) {
			return errors.Newf(errors.ErrNotFound, "task %s missing remotely", op.EntityID)
		}
		return err
	}
	return errors.Newf(errors.ErrInvalid, "unknown operation %q", op.Operation)
}

func (c *Client) applyFolder(ctx context.Context, userID string, op *models.SyncOperation) error {
	if op.Operation == models.OperationDelete {
		err := c.store.DeleteFolder(ctx, userID, op.EntityID)
		if stderrors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	folder, err := op.FolderPayload()
	if err != nil {
		return errors.Wrap(errors.ErrValidation, "malformed folder payload", err)
	}
	rec := folderToRecord(folder)

	switch op.Operation {
	case models.OperationCreate:
		_, err = c.store.CreateFolder(ctx, userID, rec)
		if stderrors.Is(err, ErrDuplicate) {
			_, getErr := c.store.GetFolder(ctx, userID, op.EntityID)
			if getErr != nil {
				return getErr
			}
			return nil
		}
		return err
	case models.OperationUpdate:
		_, err = c.store.UpdateFolder(ctx, userID, rec)
		if stderrors.Is(err, ErrNotFound) {
			return errors.Newf(errors.ErrNotFound, "folder %s missing remotely", op.EntityID)
		}
		return err
	}
	return errors.Newf(errors.ErrInvalid, "unknown operation %q", op.Operation)
}

// resolveDuplicateTask implements the create-idempotency rule: a create
// that hits a uniqueness violation resolves by fetching the existing
// remote record. Retries can legitimately re-send a create whose prior
// response was lost.
func (c *Client) resolveDuplicateTask(ctx context.Context, userID, id string) error {
	_, err := c.store.GetTask(ctx, userID, id)
	if err != nil {
		return err
	}
	logging.Debug("Duplicate create resolved against existing remote record",
		map[string]interface{}{"entity_id": id})
	return nil
}

// classify maps transport-level failures onto the engine's error
// taxonomy. A timeout is treated identically to a transport error.
func (c *Client) classify(err error, op *models.SyncOperation) error {
	if err == nil {
		return nil
	}
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return errors.Wrap(errors.ErrSyncTimeout,
			string(op.Operation)+" "+string(op.EntityType)+" timed out", err)
	}
	return errors.Wrap(errors.ErrSyncFailed,
		string(op.Operation)+" "+string(op.EntityType)+" failed", err)
}

// Pull fetches the full remote snapshot of folders and tasks for the account.
func (c *Client) Pull(ctx context.Context, userID string) (*models.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.PullTimeout)
	defer cancel()

	folderRecs, err := c.store.ListFolders(ctx, userID)
	if err != nil {
		return nil, c.classifyPull(err)
	}
	taskRecs, err := c.store.ListTasks(ctx, userID)
	if err != nil {
		return nil, c.classifyPull(err)
	}

	snap := &models.Snapshot{SelectedFolderID: models.DefaultFolderID}
	for _, rec := range folderRecs {
		snap.Folders = append(snap.Folders, *folderFromRecord(rec))
	}
	for _, rec := range taskRecs {
		snap.Tasks = append(snap.Tasks, *taskFromRecord(rec))
	}
	return snap, nil
}

// CountTasks returns the number of tasks the account holds remotely.
func (c *Client) CountTasks(ctx context.Context, userID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()

	n, err := c.store.CountTasks(ctx, userID)
	if err != nil {
		return 0, c.classifyPull(err)
	}
	return n, nil
}

func (c *Client) classifyPull(err error) error {
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return errors.Wrap(errors.ErrSyncTimeout, "pull timed out", err)
	}
	return errors.Wrap(errors.ErrSyncFailed, "pull failed", err)
}
