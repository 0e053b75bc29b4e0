package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/kimhsiao/promptdeck/internal/backup"
	"github.com/kimhsiao/promptdeck/internal/logging"
	"github.com/kimhsiao/promptdeck/internal/search"
	"github.com/kimhsiao/promptdeck/internal/store"
	"github.com/kimhsiao/promptdeck/internal/sync/queue"
)

// WorkspaceHandler serves backup export/import and prompt search.
type WorkspaceHandler struct {
	store  *store.Store
	queue  *queue.Queue
	backup *backup.Service
	search *search.Engine
}

// NewWorkspaceHandler creates a WorkspaceHandler.
func NewWorkspaceHandler(st *store.Store, q *queue.Queue) *WorkspaceHandler {
	return &WorkspaceHandler{
		store:  st,
		queue:  q,
		backup: backup.New(st),
		search: search.New(),
	}
}

// Export handles GET /api/workspace/export. An optional passphrase query
// parameter encrypts the archive.
func (h *WorkspaceHandler) Export(w http.ResponseWriter, r *http.Request) {
	name := backup.Filename(time.Now())
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))

	result, err := h.backup.Export(w, r.URL.Query().Get("passphrase"))
	if err != nil {
		// Headers may already be out; log instead of rewriting the status.
		logging.Error("Workspace export failed", err)
		return
	}
	logging.Debug("Workspace export served", map[string]interface{}{
		"tasks": result.TaskCount,
		"bytes": result.SizeBytes,
	})
}

// Import handles POST /api/workspace/import. The archive replaces the
// current workspace, so pending sync operations for the old entities are
// discarded.
func (h *WorkspaceHandler) Import(w http.ResponseWriter, r *http.Request) {
	result, err := h.backup.Import(r.Body, r.URL.Query().Get("passphrase"))
	if err != nil {
		writeError(w, err)
		return
	}

	if abandoned := h.queue.Len(); abandoned > 0 {
		logging.Warn("Discarding queued operations after workspace import", map[string]interface{}{
			"abandoned": abandoned,
		})
	}
	h.queue.Clear()

	writeJSON(w, http.StatusOK, result)
}

// Search handles GET /api/tasks/search?q=...&limit=n.
func (h *WorkspaceHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSON(w, http.StatusOK, []search.Match{})
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		fmt.Sscanf(raw, "%d", &limit)
	}

	matches := h.search.Search(h.store.Tasks(), query, limit)
	if matches == nil {
		matches = []search.Match{}
	}
	writeJSON(w, http.StatusOK, matches)
}
