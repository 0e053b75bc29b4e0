package remote

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store implementation used by tests and the
// development server. It supports failure injection and artificial latency
// to exercise the client's retry and timeout paths.
type MemoryStore struct {
	mu      sync.Mutex
	tasks   map[string]map[string]*TaskRecord   // userID -> taskID -> record
	folders map[string]map[string]*FolderRecord // userID -> folderID -> record

	// FailWith, when non-nil, is returned by every call.
	FailWith error
	// Latency is added to every call before it executes.
	Latency time.Duration
	// Calls counts remote invocations, by method name.
	Calls map[string]int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:   make(map[string]map[string]*TaskRecord),
		folders: make(map[string]map[string]*FolderRecord),
		Calls:   make(map[string]int),
	}
}

func (m *MemoryStore) enter(ctx context.Context, method string) error {
	m.mu.Lock()
	m.Calls[method]++
	fail := m.FailWith
	latency := m.Latency
	m.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fail
}

func (m *MemoryStore) userTasks(userID string) map[string]*TaskRecord {
	if m.tasks[userID] == nil {
		m.tasks[userID] = make(map[string]*TaskRecord)
	}
	return m.tasks[userID]
}

func (m *MemoryStore) userFolders(userID string) map[string]*FolderRecord {
	if m.folders[userID] == nil {
		m.folders[userID] = make(map[string]*FolderRecord)
	}
	return m.folders[userID]
}

func (m *MemoryStore) CreateTask(ctx context.Context, userID string, task *TaskRecord) (*TaskRecord, error) {
	if err := m.enter(ctx, "CreateTask"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tasks := m.userTasks(userID)
	if _, ok := tasks[task.ID]; ok {
		return nil, ErrDuplicate
	}
	clone := *task
	tasks[task.ID] = &clone
	return &clone, nil
}

func (m *MemoryStore) UpdateTask(ctx context.Context, userID string, task *TaskRecord) (*TaskRecord, error) {
	if err := m.enter(ctx, "UpdateTask"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tasks := m.userTasks(userID)
	if _, ok := tasks[task.ID]; !ok {
		return nil, ErrNotFound
	}
	clone := *task
	tasks[task.ID] = &clone
	return &clone, nil
}

func (m *MemoryStore) DeleteTask(ctx context.Context, userID, id string) error {
	if err := m.enter(ctx, "DeleteTask"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tasks := m.userTasks(userID)
	if _, ok := tasks[id]; !ok {
		return ErrNotFound
	}
	delete(tasks, id)
	return nil
}

func (m *MemoryStore) GetTask(ctx context.Context, userID, id string) (*TaskRecord, error) {
	if err := m.enter(ctx, "GetTask"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.userTasks(userID)[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *task
	return &clone, nil
}

func (m *MemoryStore) ListTasks(ctx context.Context, userID string) ([]*TaskRecord, error) {
	if err := m.enter(ctx, "ListTasks"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*TaskRecord
	for _, task := range m.userTasks(userID) {
		clone := *task
		out = append(out, &clone)
	}
	return out, nil
}

func (m *MemoryStore) CountTasks(ctx context.Context, userID string) (int, error) {
	if err := m.enter(ctx, "CountTasks"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.userTasks(userID)), nil
}

func (m *MemoryStore) CreateFolder(ctx context.Context, userID string, folder *FolderRecord) (*FolderRecord, error) {
	if err := m.enter(ctx, "CreateFolder"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	folders := m.userFolders(userID)
	if _, ok := folders[folder.ID]; ok {
		return nil, ErrDuplicate
	}
	clone := *folder
	folders[folder.ID] = &clone
	return &clone, nil
}

func (m *MemoryStore) UpdateFolder(ctx context.Context, userID string, folder *FolderRecord) (*FolderRecord, error) {
	if err := m.enter(ctx, "UpdateFolder"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	folders := m.userFolders(userID)
	if _, ok := folders[folder.ID]; !ok {
		return nil, ErrNotFound
	}
	clone := *folder
	folders[folder.ID] = &clone
	return &clone, nil
}

func (m *MemoryStore) DeleteFolder(ctx context.Context, userID, id string) error {
	if err := m.enter(ctx, "DeleteFolder"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	folders := m.userFolders(userID)
	if _, ok := folders[id]; !ok {
		return ErrNotFound
	}
	delete(folders, id)
	return nil
}

func (m *MemoryStore) GetFolder(ctx context.Context, userID, id string) (*FolderRecord, error) {
	if err := m.enter(ctx, "GetFolder"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	folder, ok := m.userFolders(userID)[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *folder
	return &clone, nil
}

func (m *MemoryStore) ListFolders(ctx context.Context, userID string) ([]*FolderRecord, error) {
	if err := m.enter(ctx, "ListFolders"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*FolderRecord
	for _, folder := range m.userFolders(userID) {
		clone := *folder
		out = append(out, &clone)
	}
	return out, nil
}

// SetFailure injects an error returned by every subsequent call.
// Pass nil to restore normal behavior.
func (m *MemoryStore) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailWith = err
}

// SeedTask inserts a task directly, bypassing failure injection.
func (m *MemoryStore) SeedTask(userID string, task *TaskRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *task
	m.userTasks(userID)[task.ID] = &clone
}

// SeedFolder inserts a folder directly, bypassing failure injection.
func (m *MemoryStore) SeedFolder(userID string, folder *FolderRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *folder
	m.userFolders(userID)[folder.ID] = &clone
}

// CallCount returns how many times the named method was invoked.
func (m *MemoryStore) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls[method]
}
