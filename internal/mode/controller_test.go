package mode

import (
	"context"
	"testing"
	"time"

	"github.com/kimhsiao/promptdeck/internal/errors"
	"github.com/kimhsiao/promptdeck/internal/models"
	"github.com/kimhsiao/promptdeck/internal/quota"
	"github.com/kimhsiao/promptdeck/internal/remote"
	"github.com/kimhsiao/promptdeck/internal/store"
	"github.com/kimhsiao/promptdeck/internal/sync/queue"
)

type fakeEngine struct {
	userID  string
	cleared int
	kicks   int
}

func (f *fakeEngine) SetUser(userID string) { f.userID = userID }
func (f *fakeEngine) ClearUser()            { f.cleared++; f.userID = "" }
func (f *fakeEngine) Kick()                 { f.kicks++ }

type fakeAuth struct {
	ch chan *Session
}

func newFakeAuth() *fakeAuth                  { return &fakeAuth{ch: make(chan *Session, 4)} }
func (f *fakeAuth) Sessions() <-chan *Session { return f.ch }
func (f *fakeAuth) push(s *Session)           { f.ch <- s }

type fixture struct {
	controller *Controller
	store      *store.Store
	queue      *queue.Queue
	engine     *fakeEngine
	remote     *remote.MemoryStore
	auth       *fakeAuth
	meter      *quota.Meter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := remote.NewMemoryStore()
	client := remote.NewClient(mem, remote.DefaultClientConfig())
	st := store.New(nil)
	q := queue.New(queue.DefaultConfig(), nil)
	eng := &fakeEngine{}
	auth := newFakeAuth()
	meter := quota.New(nil, 5)

	return &fixture{
		controller: New(st, q, eng, client, meter, auth),
		store:      st,
		queue:      q,
		engine:     eng,
		remote:     mem,
		auth:       auth,
		meter:      meter,
	}
}

func (f *fixture) createLocalTask(t *testing.T, name string) models.Task {
	t.Helper()
	task, err := f.store.CreateTask(models.Task{
		Name:              name,
		FolderID:          models.DefaultFolderID,
		IsUnauthenticated: true,
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	return task
}

// brokenPullRemote reports an existing account but cannot deliver its
// workspace.
type brokenPullRemote struct {
	count int
}

func (r *brokenPullRemote) CountTasks(ctx context.Context, userID string) (int, error) {
	return r.count, nil
}

func (r *brokenPullRemote) Pull(ctx context.Context, userID string) (*models.Snapshot, error) {
	return nil, errors.New(errors.ErrSyncTimeout, "pull timed out")
}

func TestStartsUnauthenticated(t *testing.T) {
	f := newFixture(t)
	if f.controller.Mode() != ModeUnauthenticated {
		t.Errorf("mode = %s", f.controller.Mode())
	}
	if f.controller.UserID() != "" {
		t.Errorf("user = %q", f.controller.UserID())
	}
}

func TestFirstLoginMigratesLocalWorkspace(t *testing.T) {
	f := newFixture(t)

	first := f.createLocalTask(t, "first prompt")
	time.Sleep(2 * time.Millisecond)
	second := f.createLocalTask(t, "second prompt")

	f.controller.login(context.Background(), &Session{UserID: "u1"})

	if f.controller.Mode() != ModeAuthenticated || f.controller.UserID() != "u1" {
		t.Fatalf("mode = %s user = %s", f.controller.Mode(), f.controller.UserID())
	}
	if f.engine.userID != "u1" || f.engine.kicks == 0 {
		t.Error("engine not bound to the new user")
	}

	// Tasks no longer carry the unauthenticated marker.
	for _, id := range []string{first.ID, second.ID} {
		task, _ := f.store.Task(id)
		if task.IsUnauthenticated {
			t.Errorf("task %s still marked unauthenticated", id)
		}
	}

	// Creates are queued oldest first.
	ops := f.queue.Snapshot()
	if len(ops) != 2 {
		t.Fatalf("queued ops = %d", len(ops))
	}
	if ops[0].EntityID != first.ID || ops[1].EntityID != second.ID {
		t.Errorf("migration order = %s, %s", ops[0].EntityID, ops[1].EntityID)
	}
	for _, op := range ops {
		if op.Operation != models.OperationCreate {
			t.Errorf("operation = %s", op.Operation)
		}
	}
}

func TestFirstLoginMigratesFolders(t *testing.T) {
	f := newFixture(t)
	folder, err := f.store.CreateFolder("Work", "#ff0000")
	if err != nil {
		t.Fatal(err)
	}

	f.controller.login(context.Background(), &Session{UserID: "u1"})

	found := false
	for _, op := range f.queue.Snapshot() {
		if op.EntityType == models.EntityFolder && op.EntityID == folder.ID {
			found = true
		}
		if op.EntityID == models.DefaultFolderID {
			t.Error("default folder must not be migrated")
		}
	}
	if !found {
		t.Error("custom folder not queued for migration")
	}
}

func TestLoginWithExistingAccountAdoptsRemote(t *testing.T) {
	f := newFixture(t)
	local := f.createLocalTask(t, "doomed local draft")

	f.remote.SeedTask("u1", &remote.TaskRecord{
		ID: "77", FolderID: models.DefaultFolderID, Name: "account task", UpdatedAt: 500,
	})

	f.controller.login(context.Background(), &Session{UserID: "u1"})

	if _, ok := f.store.Task(local.ID); ok {
		t.Error("local data survived adoption of an existing account")
	}
	adopted, ok := f.store.Task("77")
	if !ok {
		t.Fatal("remote task not adopted")
	}
	if !adopted.CreatedInDB {
		t.Error("adopted task not marked confirmed")
	}
	if f.queue.Len() != 0 {
		t.Errorf("queue len = %d, want 0 after adoption", f.queue.Len())
	}
}

func TestLoginAbortsWhenAccountPullFails(t *testing.T) {
	f := newFixture(t)
	f.createLocalTask(t, "scratch prompt")

	st := f.store
	ctrl := New(st, f.queue, f.engine, &brokenPullRemote{count: 3}, f.meter, f.auth)
	ctrl.login(context.Background(), &Session{UserID: "u1"})

	// The account has remote data we could not fetch; authenticating now
	// would keep the scratch workspace alongside it.
	if ctrl.Mode() != ModeUnauthenticated {
		t.Fatalf("mode = %s, want unauthenticated after failed pull", ctrl.Mode())
	}
	if ctrl.UserID() != "" {
		t.Errorf("user = %q", ctrl.UserID())
	}
	if f.engine.userID != "" {
		t.Error("engine received a user despite aborted login")
	}
	if len(st.Tasks()) != 1 {
		t.Errorf("local tasks = %d, workspace should be untouched", len(st.Tasks()))
	}
}

func TestLoginResetsQuota(t *testing.T) {
	f := newFixture(t)
	f.controller.Authorize()
	f.controller.Authorize()

	f.controller.login(context.Background(), &Session{UserID: "u1"})

	used, _ := f.meter.Usage()
	if used != 0 {
		t.Errorf("quota used = %d after login", used)
	}
}

func TestLogoutResetsToEmptyWorkspace(t *testing.T) {
	f := newFixture(t)
	f.controller.login(context.Background(), &Session{UserID: "u1"})
	f.createLocalTask(t, "session data")

	f.controller.logout()

	if f.controller.Mode() != ModeUnauthenticated {
		t.Errorf("mode = %s", f.controller.Mode())
	}
	if f.engine.cleared != 1 {
		t.Error("engine user not cleared")
	}
	if len(f.store.Tasks()) != 0 {
		t.Error("tasks survived logout")
	}
	if f.queue.Len() != 0 {
		t.Error("queue survived logout")
	}
	// The default folder is recreated.
	if _, ok := f.store.Folder(models.DefaultFolderID); !ok {
		t.Error("default folder missing after logout")
	}
}

func TestLogoutWhileUnauthenticatedIsNoop(t *testing.T) {
	f := newFixture(t)
	task := f.createLocalTask(t, "keep me")

	f.controller.logout()

	if _, ok := f.store.Task(task.ID); !ok {
		t.Error("unauthenticated logout wiped local data")
	}
}

func TestAuthorizeMetersUnauthenticatedOnly(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 5; i++ {
		if err := f.controller.Authorize(); err != nil {
			t.Fatalf("Authorize %d: %v", i, err)
		}
	}
	if err := f.controller.Authorize(); !errors.Is(err, errors.ErrQuotaExceeded) {
		t.Fatalf("expected QUOTA_EXCEEDED, got %v", err)
	}

	f.controller.login(context.Background(), &Session{UserID: "u1"})
	for i := 0; i < 20; i++ {
		if err := f.controller.Authorize(); err != nil {
			t.Fatalf("authenticated Authorize: %v", err)
		}
	}
}

func TestRunReactsToSessionStream(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.controller.Run(ctx)
	}()

	f.auth.push(&Session{UserID: "u1"})
	waitMode(t, f.controller, ModeAuthenticated)

	f.auth.push(nil)
	waitMode(t, f.controller, ModeUnauthenticated)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit on context cancellation")
	}
}

func waitMode(t *testing.T, c *Controller, want Mode) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Mode() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("mode never became %s", want)
}
