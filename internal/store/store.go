// Package store provides the in-memory entity store: the single source of
// truth for folders and tasks rendered by the UI. All mutation funnels
// through one commit path, and every committed mutation writes a snapshot
// to local persistence.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/kimhsiao/promptdeck/internal/errors"
	"github.com/kimhsiao/promptdeck/internal/ident"
	"github.com/kimhsiao/promptdeck/internal/logging"
	"github.com/kimhsiao/promptdeck/internal/models"
)

// SnapshotWriter persists a snapshot of the store. Writes are
// fire-and-forget: a failed write is logged, never propagated to the UI.
type SnapshotWriter interface {
	SaveSnapshot(*models.Snapshot) error
}

// Store is the in-memory entity store. It is safe for concurrent use;
// mutation happens only under the write lock so there is a single writer
// at any point in time.
type Store struct {
	mu               sync.RWMutex
	folders          map[string]*models.Folder
	tasks            map[string]*models.Task
	selectedFolderID string
	expanded         map[string]bool
	persist          SnapshotWriter
	now              func() time.Time
}

// New creates a Store seeded with the default folder.
// persist may be nil, in which case snapshots are not written.
func New(persist SnapshotWriter) *Store {
	s := &Store{
		folders:  make(map[string]*models.Folder),
		tasks:    make(map[string]*models.Task),
		expanded: make(map[string]bool),
		persist:  persist,
		now:      time.Now,
	}
	def := models.NewDefaultFolder(s.now().UnixMilli())
	s.folders[def.ID] = &def
	s.selectedFolderID = def.ID
	return s
}

// Hydrate loads a persisted snapshot into the store, typically once at
// startup. The default folder is recreated if the snapshot lacks it.
func (s *Store) Hydrate(snap *models.Snapshot) {
	if snap == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.folders = make(map[string]*models.Folder, len(snap.Folders))
	for i := range snap.Folders {
		f := snap.Folders[i]
		s.folders[f.ID] = &f
	}
	s.tasks = make(map[string]*models.Task, len(snap.Tasks))
	for i := range snap.Tasks {
		t := snap.Tasks[i]
		s.tasks[t.ID] = &t
	}
	s.ensureDefaultLocked()

	s.selectedFolderID = snap.SelectedFolderID
	if _, ok := s.folders[s.selectedFolderID]; !ok {
		s.selectedFolderID = models.DefaultFolderID
	}
}

// commit persists the current state. Must be called with the write lock held.
func (s *Store) commit() {
	if s.persist == nil {
		return
	}
	if err := s.persist.SaveSnapshot(s.snapshotLocked()); err != nil {
		logging.Error("Failed to persist snapshot", err, nil)
	}
}

func (s *Store) ensureDefaultLocked() {
	if _, ok := s.folders[models.DefaultFolderID]; !ok {
		def := models.NewDefaultFolder(s.now().UnixMilli())
		s.folders[def.ID] = &def
	}
}

// =====================================================
// Folder operations
// =====================================================

// CreateFolder adds a folder and returns it.
func (s *Store) CreateFolder(name, color string) (models.Folder, error) {
	now := s.now().UnixMilli()
	folder := models.Folder{
		ID:        ident.NewEntityID(),
		Name:      name,
		Color:     color,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := models.ValidateStruct(folder); err != nil {
		return models.Folder{}, errors.Wrap(errors.ErrValidation, "invalid folder", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.folders[folder.ID] = folder.Clone()
	s.commit()
	return folder, nil
}

// RenameFolder changes a folder's name.
func (s *Store) RenameFolder(id, name string) (models.Folder, error) {
	return s.updateFolder(id, func(f *models.Folder) { f.Name = name })
}

// SetFolderColor changes a folder's color.
func (s *Store) SetFolderColor(id, color string) (models.Folder, error) {
	return s.updateFolder(id, func(f *models.Folder) { f.Color = color })
}

func (s *Store) updateFolder(id string, mutate func(*models.Folder)) (models.Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	folder, ok := s.folders[id]
	if !ok {
		return models.Folder{}, errors.Newf(errors.ErrFolderNotFound, "folder %s not found", id)
	}
	mutate(folder)
	folder.UpdatedAt = s.now().UnixMilli()
	s.commit()
	return *folder.Clone(), nil
}

// DeleteFolder removes a folder and reassigns its tasks to the default
// folder. The default folder cannot be deleted. The reassigned tasks are
// returned so the caller can enqueue their updates.
func (s *Store) DeleteFolder(id string) ([]models.Task, error) {
	if id == models.DefaultFolderID {
		return nil, errors.New(errors.ErrFolderProtected, "the default folder cannot be deleted")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.folders[id]; !ok {
		return nil, errors.Newf(errors.ErrFolderNotFound, "folder %s not found", id)
	}
	delete(s.folders, id)
	delete(s.expanded, id)

	now := s.now().UnixMilli()
	var reassigned []models.Task
	for _, task := range s.tasks {
		if task.FolderID == id {
			task.FolderID = models.DefaultFolderID
			task.UpdatedAt = now
			reassigned = append(reassigned, *task.Clone())
		}
	}
	sort.Slice(reassigned, func(i, j int) bool { return reassigned[i].ID < reassigned[j].ID })

	if s.selectedFolderID == id {
		s.selectedFolderID = models.DefaultFolderID
	}
	s.commit()
	return reassigned, nil
}

// Folder returns a copy of the folder with the given id.
func (s *Store) Folder(id string) (models.Folder, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	folder, ok := s.folders[id]
	if !ok {
		return models.Folder{}, false
	}
	return *folder.Clone(), true
}

// Folders returns all folders ordered by creation time, default first.
func (s *Store) Folders() []models.Folder {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Folder, 0, len(s.folders))
	for _, f := range s.folders {
		out = append(out, *f.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID == models.DefaultFolderID {
			return true
		}
		if out[j].ID == models.DefaultFolderID {
			return false
		}
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// =====================================================
// Task operations
// =====================================================

// CreateTask adds a task. An empty ID is filled with a generated entity id;
// an empty FolderID falls back to the default folder.
func (s *Store) CreateTask(task models.Task) (models.Task, error) {
	now := s.now().UnixMilli()
	if task.ID == "" {
		task.ID = ident.NewEntityID()
	}
	if task.FolderID == "" {
		task.FolderID = models.DefaultFolderID
	}
	task.CreatedAt = now
	task.UpdatedAt = now

	if err := models.ValidateStruct(task); err != nil {
		return models.Task{}, errors.Wrap(errors.ErrValidation, "invalid task", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.folders[task.FolderID]; !ok {
		return models.Task{}, errors.Newf(errors.ErrFolderNotFound, "folder %s not found", task.FolderID)
	}
	if _, ok := s.tasks[task.ID]; ok {
		return models.Task{}, errors.Newf(errors.ErrDuplicate, "task %s already exists", task.ID)
	}

	s.tasks[task.ID] = task.Clone()
	s.commit()
	return task, nil
}

// UpdateTask applies mutate to the task and bumps its UpdatedAt.
// This is the single state-transition path shared by user edits, the sync
// queue, and the conflict resolver.
func (s *Store) UpdateTask(id string, mutate func(*models.Task)) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return models.Task{}, errors.Newf(errors.ErrTaskNotFound, "task %s not found", id)
	}
	mutate(task)
	task.UpdatedAt = s.now().UnixMilli()
	s.commit()
	return *task.Clone(), nil
}

// MoveTask reassigns a task to another folder.
func (s *Store) MoveTask(id, folderID string) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.folders[folderID]; !ok {
		return models.Task{}, errors.Newf(errors.ErrFolderNotFound, "folder %s not found", folderID)
	}
	task, ok := s.tasks[id]
	if !ok {
		return models.Task{}, errors.Newf(errors.ErrTaskNotFound, "task %s not found", id)
	}
	task.FolderID = folderID
	task.UpdatedAt = s.now().UnixMilli()
	s.commit()
	return *task.Clone(), nil
}

// DeleteTask removes a task.
func (s *Store) DeleteTask(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return errors.Newf(errors.ErrTaskNotFound, "task %s not found", id)
	}
	delete(s.tasks, id)
	s.commit()
	return nil
}

// Task returns a copy of the task with the given id.
func (s *Store) Task(id string) (models.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return models.Task{}, false
	}
	return *task.Clone(), true
}

// Tasks returns all tasks in unspecified order.
func (s *Store) Tasks() []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t.Clone())
	}
	return out
}

// TasksInFolder returns the tasks in a folder, oldest first.
func (s *Store) TasksInFolder(folderID string) []models.Task {
	tasks := s.TasksOldestFirst()
	out := tasks[:0]
	for _, t := range tasks {
		if t.FolderID == folderID {
			out = append(out, t)
		}
	}
	return out
}

// TasksOldestFirst returns all tasks in original creation order. Entity
// ids are monotonic, so the id breaks ties within one millisecond.
func (s *Store) TasksOldestFirst() []models.Task {
	out := s.Tasks()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		if len(out[i].ID) != len(out[j].ID) {
			return len(out[i].ID) < len(out[j].ID)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// AppendMessage appends a chat message to a task's current history.
// Missing message id and timestamp are filled in.
func (s *Store) AppendMessage(taskID string, msg models.ChatMessage) (models.Task, error) {
	if msg.ID == "" {
		msg.ID = ident.NewOperationID()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = s.now().UnixMilli()
	}
	return s.UpdateTask(taskID, func(t *models.Task) {
		t.CurrentChatHistory = append(t.CurrentChatHistory, msg)
	})
}

// ClearHistory removes a task's current chat history.
func (s *Store) ClearHistory(taskID string) (models.Task, error) {
	return s.UpdateTask(taskID, func(t *models.Task) {
		t.CurrentChatHistory = nil
	})
}

// SnapshotVersion appends a prompt version capturing the task's current content.
func (s *Store) SnapshotVersion(taskID string) (models.Task, error) {
	now := s.now().UnixMilli()
	return s.UpdateTask(taskID, func(t *models.Task) {
		t.Versions = append(t.Versions, models.PromptVersion{
			ID:        ident.NewOperationID(),
			Content:   t.Content,
			CreatedAt: now,
		})
	})
}

// RestoreVersion replaces the task's content with a stored prompt version.
func (s *Store) RestoreVersion(taskID, versionID string) (models.Task, error) {
	var found bool
	task, err := s.UpdateTask(taskID, func(t *models.Task) {
		for _, v := range t.Versions {
			if v.ID == versionID {
				t.Content = v.Content
				found = true
				return
			}
		}
	})
	if err != nil {
		return models.Task{}, err
	}
	if !found {
		return models.Task{}, errors.Newf(errors.ErrNotFound, "version %s not found on task %s", versionID, taskID)
	}
	return task, nil
}

// MarkCreatedInDB records that the remote store confirmed the task's
// creation. Called by the sync queue on a successful create; does not
// bump UpdatedAt so no spurious conflicts arise.
func (s *Store) MarkCreatedInDB(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return
	}
	task.CreatedInDB = true
	s.commit()
}

// MarkFolderCreatedInDB records that the remote store confirmed the
// folder's creation.
func (s *Store) MarkFolderCreatedInDB(folderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	folder, ok := s.folders[folderID]
	if !ok {
		return
	}
	folder.CreatedInDB = true
	s.commit()
}

// RetagForAccount clears a task's unauthenticated flags ahead of the
// first-login migration. UpdatedAt is preserved so the original creation
// order stays recoverable.
func (s *Store) RetagForAccount(taskID string) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return models.Task{}, errors.Newf(errors.ErrTaskNotFound, "task %s not found", taskID)
	}
	task.IsUnauthenticated = false
	task.CreatedInDB = false
	s.commit()
	return *task.Clone(), nil
}

// =====================================================
// Reconciliation and lifecycle
// =====================================================

// ApplyRemoteTask overwrites (or adds) a task with its remote payload,
// marking it confirmed in the remote store. Used by the conflict resolver
// and by pull reconciliation.
func (s *Store) ApplyRemoteTask(task models.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task.CreatedInDB = true
	task.IsUnauthenticated = false
	if _, ok := s.folders[task.FolderID]; !ok {
		task.FolderID = models.DefaultFolderID
	}
	s.tasks[task.ID] = task.Clone()
	s.commit()
}

// ApplyRemoteFolder overwrites (or adds) a folder with its remote payload,
// marking it confirmed in the remote store.
func (s *Store) ApplyRemoteFolder(folder models.Folder) {
	s.mu.Lock()
	defer s.mu.Unlock()

	folder.CreatedInDB = true
	s.folders[folder.ID] = folder.Clone()
	s.commit()
}

// ReplaceAll discards the store contents and adopts the given snapshot as
// remote-confirmed state. Used when login finds existing remote data.
func (s *Store) ReplaceAll(snap *models.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.folders = make(map[string]*models.Folder, len(snap.Folders))
	for i := range snap.Folders {
		f := snap.Folders[i]
		f.CreatedInDB = true
		s.folders[f.ID] = &f
	}
	s.tasks = make(map[string]*models.Task, len(snap.Tasks))
	for i := range snap.Tasks {
		t := snap.Tasks[i]
		t.CreatedInDB = true
		t.IsUnauthenticated = false
		s.tasks[t.ID] = &t
	}
	s.ensureDefaultLocked()
	s.selectedFolderID = models.DefaultFolderID
	s.expanded = make(map[string]bool)
	s.commit()
}

// Restore discards the store contents and adopts the snapshot as-is,
// keeping each entity's sync-state flags. Used when importing a backup
// archive: an imported task was not necessarily confirmed remote, and
// stamping it CreatedInDB would make the next reconcile mistake it for a
// remote deletion.
func (s *Store) Restore(snap *models.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.folders = make(map[string]*models.Folder, len(snap.Folders))
	for i := range snap.Folders {
		f := snap.Folders[i]
		s.folders[f.ID] = &f
	}
	s.tasks = make(map[string]*models.Task, len(snap.Tasks))
	for i := range snap.Tasks {
		t := snap.Tasks[i]
		s.tasks[t.ID] = &t
	}
	s.ensureDefaultLocked()
	selected := snap.SelectedFolderID
	if _, ok := s.folders[selected]; !ok {
		selected = models.DefaultFolderID
	}
	s.selectedFolderID = selected
	s.expanded = make(map[string]bool)
	s.commit()
}

// Reset restores the store to its initial state: a single default folder
// and no tasks. Used on logout.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	def := models.NewDefaultFolder(s.now().UnixMilli())
	s.folders = map[string]*models.Folder{def.ID: &def}
	s.tasks = make(map[string]*models.Task)
	s.expanded = make(map[string]bool)
	s.selectedFolderID = def.ID
	s.commit()
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() *models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() *models.Snapshot {
	snap := &models.Snapshot{
		Folders:          make([]models.Folder, 0, len(s.folders)),
		Tasks:            make([]models.Task, 0, len(s.tasks)),
		SelectedFolderID: s.selectedFolderID,
	}
	for _, f := range s.folders {
		snap.Folders = append(snap.Folders, *f.Clone())
	}
	for _, t := range s.tasks {
		snap.Tasks = append(snap.Tasks, *t.Clone())
	}
	sort.Slice(snap.Folders, func(i, j int) bool { return snap.Folders[i].ID < snap.Folders[j].ID })
	sort.Slice(snap.Tasks, func(i, j int) bool { return snap.Tasks[i].ID < snap.Tasks[j].ID })
	return snap
}

// =====================================================
// UI flags
// =====================================================

// SelectFolder records which folder the UI has selected.
func (s *Store) SelectFolder(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.folders[id]; !ok {
		return errors.Newf(errors.ErrFolderNotFound, "folder %s not found", id)
	}
	s.selectedFolderID = id
	s.commit()
	return nil
}

// SelectedFolder returns the currently selected folder id.
func (s *Store) SelectedFolder() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedFolderID
}

// SetExpanded records a folder's expansion state in the UI tree.
// Expansion is ephemeral UI state and is not persisted.
func (s *Store) SetExpanded(id string, expanded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if expanded {
		s.expanded[id] = true
	} else {
		delete(s.expanded, id)
	}
}

// IsExpanded reports a folder's expansion state.
func (s *Store) IsExpanded(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expanded[id]
}
