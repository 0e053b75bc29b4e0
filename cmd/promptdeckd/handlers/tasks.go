package handlers

import (
	"net/http"

	"github.com/kimhsiao/promptdeck/internal/logging"
	"github.com/kimhsiao/promptdeck/internal/mode"
	"github.com/kimhsiao/promptdeck/internal/models"
	"github.com/kimhsiao/promptdeck/internal/store"
	"github.com/kimhsiao/promptdeck/internal/sync/queue"
)

// Kicker wakes the sync worker after a mutation.
type Kicker interface {
	Kick()
}

// TaskHandler serves /api/tasks.
type TaskHandler struct {
	store  *store.Store
	queue  *queue.Queue
	ctrl   *mode.Controller
	engine Kicker
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(st *store.Store, q *queue.Queue, ctrl *mode.Controller, engine Kicker) *TaskHandler {
	return &TaskHandler{store: st, queue: q, ctrl: ctrl, engine: engine}
}

// push queues a remote operation for the task when a session exists.
// Unauthenticated mutations stay local; the first-login migration pushes
// them later.
func (h *TaskHandler) push(op models.OperationType, task *models.Task) {
	if h.ctrl.Mode() != mode.ModeAuthenticated {
		return
	}
	syncOp, err := models.TaskOperation(op, task)
	if err != nil {
		logging.Error("Failed to build sync operation", err)
		return
	}
	if _, err := h.queue.Enqueue(*syncOp); err != nil {
		logging.Error("Failed to enqueue sync operation", err)
		return
	}
	h.engine.Kick()
}

// List handles GET /api/tasks.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	if folderID := r.URL.Query().Get("folder"); folderID != "" {
		writeJSON(w, http.StatusOK, h.store.TasksInFolder(folderID))
		return
	}
	writeJSON(w, http.StatusOK, h.store.Tasks())
}

// Get handles GET /api/tasks/{id}.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	task, ok := h.store.Task(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Create handles POST /api/tasks.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Authorize(); err != nil {
		writeError(w, err)
		return
	}

	var task models.Task
	if err := decode(r, &task); err != nil {
		writeError(w, err)
		return
	}
	task.IsUnauthenticated = h.ctrl.Mode() == mode.ModeUnauthenticated

	created, err := h.store.CreateTask(task)
	if err != nil {
		writeError(w, err)
		return
	}
	h.push(models.OperationCreate, &created)
	writeJSON(w, http.StatusCreated, created)
}

// taskPatch is the partial update body for a task.
type taskPatch struct {
	Name        *string   `json:"name"`
	Content     *string   `json:"content"`
	FolderID    *string   `json:"folderId"`
	Model       *string   `json:"model"`
	Temperature *float64  `json:"temperature"`
	MaxTokens   *int      `json:"maxTokens"`
	TopK        *int      `json:"topK"`
	TopP        *float64  `json:"topP"`
	Tags        *[]string `json:"tags"`
	Notes       *string   `json:"notes"`
}

// Update handles PATCH /api/tasks/{id}.
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Authorize(); err != nil {
		writeError(w, err)
		return
	}

	var patch taskPatch
	if err := decode(r, &patch); err != nil {
		writeError(w, err)
		return
	}

	id := r.PathValue("id")

	// Folder moves validate the target folder.
	if patch.FolderID != nil {
		if _, err := h.store.MoveTask(id, *patch.FolderID); err != nil {
			writeError(w, err)
			return
		}
	}

	updated, err := h.store.UpdateTask(id, func(t *models.Task) {
		if patch.Name != nil {
			t.Name = *patch.Name
		}
		if patch.Content != nil {
			t.Content = *patch.Content
		}
		if patch.Model != nil {
			t.Model = *patch.Model
		}
		if patch.Temperature != nil {
			t.Temperature = *patch.Temperature
		}
		if patch.MaxTokens != nil {
			t.MaxTokens = *patch.MaxTokens
		}
		if patch.TopK != nil {
			t.TopK = patch.TopK
		}
		if patch.TopP != nil {
			t.TopP = patch.TopP
		}
		if patch.Tags != nil {
			t.Tags = *patch.Tags
		}
		if patch.Notes != nil {
			t.Notes = *patch.Notes
		}
	})
	if err != nil {
		writeError(w, err)
		return
	}
	h.push(models.OperationUpdate, &updated)
	writeJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/tasks/{id}.
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Authorize(); err != nil {
		writeError(w, err)
		return
	}

	id := r.PathValue("id")
	task, ok := h.store.Task(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}
	if err := h.store.DeleteTask(id); err != nil {
		writeError(w, err)
		return
	}
	h.push(models.OperationDelete, &task)
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

// AppendMessage handles POST /api/tasks/{id}/messages.
func (h *TaskHandler) AppendMessage(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Authorize(); err != nil {
		writeError(w, err)
		return
	}

	var msg models.ChatMessage
	if err := decode(r, &msg); err != nil {
		writeError(w, err)
		return
	}

	updated, err := h.store.AppendMessage(r.PathValue("id"), msg)
	if err != nil {
		writeError(w, err)
		return
	}
	h.push(models.OperationUpdate, &updated)
	writeJSON(w, http.StatusOK, updated)
}

// ClearHistory handles DELETE /api/tasks/{id}/messages.
func (h *TaskHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Authorize(); err != nil {
		writeError(w, err)
		return
	}

	updated, err := h.store.ClearHistory(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	h.push(models.OperationUpdate, &updated)
	writeJSON(w, http.StatusOK, updated)
}

// SnapshotVersion handles POST /api/tasks/{id}/versions.
func (h *TaskHandler) SnapshotVersion(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Authorize(); err != nil {
		writeError(w, err)
		return
	}

	updated, err := h.store.SnapshotVersion(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	h.push(models.OperationUpdate, &updated)
	writeJSON(w, http.StatusOK, updated)
}

// RestoreVersion handles POST /api/tasks/{id}/versions/{versionID}/restore.
func (h *TaskHandler) RestoreVersion(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Authorize(); err != nil {
		writeError(w, err)
		return
	}

	updated, err := h.store.RestoreVersion(r.PathValue("id"), r.PathValue("versionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	h.push(models.OperationUpdate, &updated)
	writeJSON(w, http.StatusOK, updated)
}
