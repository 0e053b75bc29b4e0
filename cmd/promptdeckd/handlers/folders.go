package handlers

import (
	"net/http"

	"github.com/kimhsiao/promptdeck/internal/logging"
	"github.com/kimhsiao/promptdeck/internal/mode"
	"github.com/kimhsiao/promptdeck/internal/models"
	"github.com/kimhsiao/promptdeck/internal/store"
	"github.com/kimhsiao/promptdeck/internal/sync/queue"
)

// FolderHandler serves /api/folders.
type FolderHandler struct {
	store  *store.Store
	queue  *queue.Queue
	ctrl   *mode.Controller
	engine Kicker
}

// NewFolderHandler creates a FolderHandler.
func NewFolderHandler(st *store.Store, q *queue.Queue, ctrl *mode.Controller, engine Kicker) *FolderHandler {
	return &FolderHandler{store: st, queue: q, ctrl: ctrl, engine: engine}
}

func (h *FolderHandler) push(op models.OperationType, folder *models.Folder) {
	if h.ctrl.Mode() != mode.ModeAuthenticated {
		return
	}
	syncOp, err := models.FolderOperation(op, folder)
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

func (h *FolderHandler) pushTaskUpdate(task *models.Task) {
	if h.ctrl.Mode() != mode.ModeAuthenticated {
		return
	}
	syncOp, err := models.TaskOperation(models.OperationUpdate, task)
	if err != nil {
		logging.Error("Failed to build sync operation", err)
		return
	}
	if _, err := h.queue.Enqueue(*syncOp); err != nil {
		logging.Error("Failed to enqueue sync operation", err)
	}
}

// List handles GET /api/folders.
func (h *FolderHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"folders":  h.store.Folders(),
		"selected": h.store.SelectedFolder(),
	})
}

// Create handles POST /api/folders.
func (h *FolderHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Authorize(); err != nil {
		writeError(w, err)
		return
	}

	var body struct {
		Name  string `json:"name"`
		Color string `json:"color"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}

	created, err := h.store.CreateFolder(body.Name, body.Color)
	if err != nil {
		writeError(w, err)
		return
	}
	h.push(models.OperationCreate, &created)
	writeJSON(w, http.StatusCreated, created)
}

// Update handles PATCH /api/folders/{id}.
func (h *FolderHandler) Update(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Authorize(); err != nil {
		writeError(w, err)
		return
	}

	var body struct {
		Name  *string `json:"name"`
		Color *string `json:"color"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}

	id := r.PathValue("id")
	var updated models.Folder
	var err error
	if body.Name != nil {
		if updated, err = h.store.RenameFolder(id, *body.Name); err != nil {
			writeError(w, err)
			return
		}
	}
	if body.Color != nil {
		if updated, err = h.store.SetFolderColor(id, *body.Color); err != nil {
			writeError(w, err)
			return
		}
	}
	if body.Name == nil && body.Color == nil {
		current, ok := h.store.Folder(id)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "folder not found"})
			return
		}
		updated = current
	}

	h.push(models.OperationUpdate, &updated)
	writeJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/folders/{id}. Tasks of the deleted folder
// move to the default folder, and each move is pushed as an update.
func (h *FolderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Authorize(); err != nil {
		writeError(w, err)
		return
	}

	id := r.PathValue("id")
	folder, ok := h.store.Folder(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "folder not found"})
		return
	}

	reassigned, err := h.store.DeleteFolder(id)
	if err != nil {
		writeError(w, err)
		return
	}

	for i := range reassigned {
		h.pushTaskUpdate(&reassigned[i])
	}
	h.push(models.OperationDelete, &folder)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"deleted":    id,
		"reassigned": len(reassigned),
	})
}

// Select handles POST /api/folders/{id}/select.
func (h *FolderHandler) Select(w http.ResponseWriter, r *http.Request) {
	if err := h.store.SelectFolder(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"selected": h.store.SelectedFolder()})
}
