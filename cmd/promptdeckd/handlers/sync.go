package handlers

import (
	"context"
	"net/http"

	"github.com/kimhsiao/promptdeck/internal/models"
	syncpkg "github.com/kimhsiao/promptdeck/internal/sync"
	"github.com/kimhsiao/promptdeck/internal/sync/queue"
)

// SyncControl is the slice of the engine the sync endpoints drive.
type SyncControl interface {
	Status() syncpkg.Status
	Conflicts() []*models.ConflictRecord
	ApplyResolution(conflictID string, resolution models.Resolution) error
	ForceSync(ctx context.Context) error
	SetOnline(online bool)
}

// SyncHandler serves /api/sync.
type SyncHandler struct {
	engine SyncControl
	queue  *queue.Queue
}

// NewSyncHandler creates a SyncHandler.
func NewSyncHandler(engine SyncControl, q *queue.Queue) *SyncHandler {
	return &SyncHandler{engine: engine, queue: q}
}

// Status handles GET /api/sync/status.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	succeeded, failed := h.queue.Stats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":               h.engine.Status(),
		"successfulOperations": succeeded,
		"failedOperations":     failed,
	})
}

// SyncNow handles POST /api/sync/now.
func (h *SyncHandler) SyncNow(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ForceSync(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Status())
}

// SetOnline handles POST /api/sync/online.
func (h *SyncHandler) SetOnline(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Online bool `json:"online"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	h.engine.SetOnline(body.Online)
	writeJSON(w, http.StatusOK, map[string]bool{"online": body.Online})
}

// Conflicts handles GET /api/sync/conflicts.
func (h *SyncHandler) Conflicts(w http.ResponseWriter, r *http.Request) {
	conflicts := h.engine.Conflicts()
	if conflicts == nil {
		conflicts = []*models.ConflictRecord{}
	}
	writeJSON(w, http.StatusOK, conflicts)
}

// Resolve handles POST /api/sync/conflicts/{id}/resolve.
func (h *SyncHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Resolution models.Resolution `json:"resolution"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}

	if err := h.engine.ApplyResolution(r.PathValue("id"), body.Resolution); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Status())
}
