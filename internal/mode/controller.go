// Package mode switches the application between unauthenticated local-only
// operation and authenticated synchronized operation, and runs the
// one-time data migration when an account first appears.
package mode

import (
	"context"
	"sync"

	"github.com/kimhsiao/promptdeck/internal/errors"
	"github.com/kimhsiao/promptdeck/internal/logging"
	"github.com/kimhsiao/promptdeck/internal/models"
	"github.com/kimhsiao/promptdeck/internal/quota"
	"github.com/kimhsiao/promptdeck/internal/store"
	"github.com/kimhsiao/promptdeck/internal/sync/queue"
)

// Mode names the two operating states.
type Mode string

const (
	ModeUnauthenticated Mode = "unauthenticated"
	ModeAuthenticated   Mode = "authenticated"
)

// Session identifies a signed-in user. A nil session means signed out.
type Session struct {
	UserID string
	Email  string
}

// AuthService emits the session stream the controller reacts to.
type AuthService interface {
	Sessions() <-chan *Session
}

// Engine is the slice of the sync engine the controller drives.
type Engine interface {
	SetUser(userID string)
	ClearUser()
	Kick()
}

// Remote is what the login migration needs from the remote client.
type Remote interface {
	CountTasks(ctx context.Context, userID string) (int, error)
	Pull(ctx context.Context, userID string) (*models.Snapshot, error)
}

// Controller owns the mode state machine.
type Controller struct {
	store  *store.Store
	queue  *queue.Queue
	engine Engine
	remote Remote
	meter  *quota.Meter
	auth   AuthService

	// usage, when set, is the remote quota authority consulted on
	// entering unauthenticated mode.
	usage quota.UsageService

	mu     sync.RWMutex
	mode   Mode
	userID string
}

// New creates a Controller starting in unauthenticated mode.
func New(st *store.Store, q *queue.Queue, eng Engine, rem Remote, meter *quota.Meter, auth AuthService) *Controller {
	return &Controller{
		store:  st,
		queue:  q,
		engine: eng,
		remote: rem,
		meter:  meter,
		auth:   auth,
		mode:   ModeUnauthenticated,
	}
}

// SetUsageService wires the remote quota authority.
func (c *Controller) SetUsageService(svc quota.UsageService) {
	c.usage = svc
}

// refreshQuota pulls the remote usage view. Called when unauthenticated
// operation begins so a wiped local counter cannot bypass the limit.
func (c *Controller) refreshQuota(ctx context.Context) {
	if c.usage == nil {
		return
	}
	if err := c.meter.Refresh(ctx, c.usage); err != nil {
		logging.Error("Failed to refresh usage quota", err)
	}
}

// Run consumes the session stream until the context ends. The quota is
// refreshed up front since operation starts unauthenticated.
func (c *Controller) Run(ctx context.Context) {
	c.refreshQuota(ctx)
	sessions := c.auth.Sessions()
	for {
		select {
		case <-ctx.Done():
			return
		case session, ok := <-sessions:
			if !ok {
				return
			}
			if session != nil {
				c.login(ctx, session)
			} else {
				c.logout()
				c.refreshQuota(ctx)
			}
		}
	}
}

// Mode returns the current operating mode.
func (c *Controller) Mode() Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

// UserID returns the signed-in user id, empty when unauthenticated.
func (c *Controller) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// Authorize gates one chargeable action. Authenticated sessions are
// unmetered; unauthenticated sessions consume the daily quota.
func (c *Controller) Authorize() error {
	if c.Mode() == ModeAuthenticated {
		return nil
	}
	return c.meter.Consume()
}

// login transitions to authenticated mode, migrating local data on the
// account's first appearance.
func (c *Controller) login(ctx context.Context, session *Session) {
	c.mu.RLock()
	already := c.mode == ModeAuthenticated && c.userID == session.UserID
	c.mu.RUnlock()
	if already {
		return
	}

	count, err := c.remote.CountTasks(ctx, session.UserID)
	if err != nil {
		logging.ErrorWithCode("Login aborted, cannot read remote account state",
			string(errors.CodeOf(err)), err, map[string]interface{}{
				"user_id": session.UserID,
			})
		return
	}

	if count == 0 {
		c.migrateLocalToAccount(session.UserID)
	} else if err := c.adoptRemoteWorkspace(ctx, session.UserID); err != nil {
		// Stay unauthenticated: flipping modes with the scratch
		// workspace still in place would leak local-only tasks into
		// the account.
		return
	}

	c.meter.Reset()

	c.mu.Lock()
	c.mode = ModeAuthenticated
	c.userID = session.UserID
	c.mu.Unlock()

	c.engine.SetUser(session.UserID)
	c.engine.Kick()

	logging.Info("Switched to authenticated mode", map[string]interface{}{
		"user_id":           session.UserID,
		"remote_task_count": count,
	})
}

// migrateLocalToAccount keeps the local workspace: every task created
// without an account is retagged and pushed, oldest first so remote
// creation order mirrors local creation order.
func (c *Controller) migrateLocalToAccount(userID string) {
	migratedFolders := 0
	for _, folder := range c.store.Folders() {
		if folder.ID == models.DefaultFolderID || folder.CreatedInDB {
			continue
		}
		f := folder
		op, err := models.FolderOperation(models.OperationCreate, &f)
		if err != nil {
			logging.Error("Failed to build folder migration operation", err)
			continue
		}
		if _, err := c.queue.Enqueue(*op); err != nil {
			logging.Error("Failed to enqueue folder migration", err)
			continue
		}
		migratedFolders++
	}

	migratedTasks := 0
	for _, task := range c.store.TasksOldestFirst() {
		if !task.IsUnauthenticated && task.CreatedInDB {
			continue
		}
		retagged, err := c.store.RetagForAccount(task.ID)
		if err != nil {
			logging.Error("Failed to retag task for account", err, map[string]interface{}{
				"task_id": task.ID,
			})
			continue
		}
		op, err := models.TaskOperation(models.OperationCreate, &retagged)
		if err != nil {
			logging.Error("Failed to build task migration operation", err)
			continue
		}
		if _, err := c.queue.Enqueue(*op); err != nil {
			logging.Error("Failed to enqueue task migration", err)
			continue
		}
		migratedTasks++
	}

	logging.Info("Migrated local workspace to new account", map[string]interface{}{
		"user_id": userID,
		"tasks":   migratedTasks,
		"folders": migratedFolders,
	})
}

// adoptRemoteWorkspace discards local unauthenticated data in favor of
// the account's existing workspace. A pull failure aborts the login
// transition entirely.
func (c *Controller) adoptRemoteWorkspace(ctx context.Context, userID string) error {
	snap, err := c.remote.Pull(ctx, userID)
	if err != nil {
		logging.ErrorWithCode("Login aborted, cannot pull account workspace",
			string(errors.CodeOf(err)), err, map[string]interface{}{
				"user_id": userID,
			})
		return err
	}

	c.queue.Clear()
	c.store.ReplaceAll(snap)

	logging.Info("Adopted existing account workspace", map[string]interface{}{
		"user_id": userID,
		"tasks":   len(snap.Tasks),
		"folders": len(snap.Folders),
	})
	return nil
}

// logout returns to unauthenticated mode: queued operations are
// abandoned and the store resets to an empty workspace.
func (c *Controller) logout() {
	c.mu.Lock()
	if c.mode == ModeUnauthenticated {
		c.mu.Unlock()
		return
	}
	userID := c.userID
	c.mode = ModeUnauthenticated
	c.userID = ""
	c.mu.Unlock()

	c.engine.ClearUser()
	abandoned := c.queue.Len()
	c.queue.Clear()
	c.store.Reset()

	logging.Info("Switched to unauthenticated mode", map[string]interface{}{
		"user_id":              userID,
		"abandoned_operations": abandoned,
	})
}
