package conflict

import (
	"testing"

	"github.com/kimhsiao/promptdeck/internal/errors"
	"github.com/kimhsiao/promptdeck/internal/models"
)

func testTask(id string, updatedAt int64, content string) *models.Task {
	return &models.Task{
		ID:        id,
		Name:      "task " + id,
		Content:   content,
		FolderID:  models.DefaultFolderID,
		CreatedAt: 1,
		UpdatedAt: updatedAt,
	}
}

func msg(id string, ts int64) models.ChatMessage {
	return models.ChatMessage{ID: id, Role: models.RoleUser, Content: "m" + id, Timestamp: ts}
}

func TestDetectTask(t *testing.T) {
	r := New()
	const checkpoint = int64(100)

	t.Run("both modified after checkpoint with differing payloads", func(t *testing.T) {
		local := testTask("1", 150, "local edit")
		remote := testTask("1", 160, "remote edit")

		rec, ok := r.DetectTask(local, remote, checkpoint)
		if !ok {
			t.Fatal("expected conflict")
		}
		if rec.EntityID != "1" || rec.LocalTimestamp != 150 || rec.RemoteTimestamp != 160 {
			t.Errorf("record = %+v", rec)
		}
		if rec.Resolved() {
			t.Error("fresh conflict must not be resolved")
		}
	})

	t.Run("only local modified", func(t *testing.T) {
		local := testTask("1", 150, "local edit")
		remote := testTask("1", 90, "old")
		if _, ok := r.DetectTask(local, remote, checkpoint); ok {
			t.Error("unexpected conflict")
		}
	})

	t.Run("only remote modified", func(t *testing.T) {
		local := testTask("1", 90, "old")
		remote := testTask("1", 150, "remote edit")
		if _, ok := r.DetectTask(local, remote, checkpoint); ok {
			t.Error("unexpected conflict")
		}
	})

	t.Run("identical payloads despite diverged timestamps", func(t *testing.T) {
		local := testTask("1", 150, "same")
		remote := testTask("1", 160, "same")
		remote.CreatedInDB = true
		if _, ok := r.DetectTask(local, remote, checkpoint); ok {
			t.Error("identical content must not conflict")
		}
	})

	t.Run("id mismatch", func(t *testing.T) {
		if _, ok := r.DetectTask(testTask("1", 150, "a"), testTask("2", 160, "b"), checkpoint); ok {
			t.Error("different entities must not conflict")
		}
	})
}

func TestDetectFolder(t *testing.T) {
	r := New()
	local := &models.Folder{ID: "f1", Name: "Work", UpdatedAt: 150}
	remote := &models.Folder{ID: "f1", Name: "Work (renamed)", UpdatedAt: 160}

	rec, ok := r.DetectFolder(local, remote, 100)
	if !ok {
		t.Fatal("expected conflict")
	}
	if rec.MergeSupported() {
		t.Error("folder conflicts must not offer merge")
	}

	same := &models.Folder{ID: "f1", Name: "Work", UpdatedAt: 160}
	if _, ok := r.DetectFolder(local, same, 100); ok {
		t.Error("identical folders must not conflict")
	}
}

func TestResolveTask(t *testing.T) {
	r := New()
	local := testTask("1", 150, "local edit")
	remote := testTask("1", 160, "remote edit")
	rec, _ := r.DetectTask(local, remote, 100)

	t.Run("local", func(t *testing.T) {
		winner, err := r.ResolveTask(rec, models.ResolutionLocal)
		if err != nil {
			t.Fatal(err)
		}
		if winner.Content != "local edit" {
			t.Errorf("content = %q", winner.Content)
		}
	})

	t.Run("remote", func(t *testing.T) {
		winner, err := r.ResolveTask(rec, models.ResolutionRemote)
		if err != nil {
			t.Fatal(err)
		}
		if winner.Content != "remote edit" {
			t.Errorf("content = %q", winner.Content)
		}
	})

	t.Run("unknown resolution", func(t *testing.T) {
		if _, err := r.ResolveTask(rec, models.Resolution("coin_flip")); err == nil {
			t.Error("expected error")
		}
	})
}

func TestResolveFolderRejectsMerge(t *testing.T) {
	r := New()
	local := &models.Folder{ID: "f1", Name: "A", UpdatedAt: 150}
	remote := &models.Folder{ID: "f1", Name: "B", UpdatedAt: 160}
	rec, _ := r.DetectFolder(local, remote, 100)

	if _, err := r.ResolveFolder(rec, models.ResolutionMerge); !errors.Is(err, errors.ErrInvalid) {
		t.Errorf("expected INVALID, got %v", err)
	}

	winner, err := r.ResolveFolder(rec, models.ResolutionRemote)
	if err != nil {
		t.Fatal(err)
	}
	if winner.Name != "B" {
		t.Errorf("name = %q", winner.Name)
	}
}

func TestMergeHistories(t *testing.T) {
	a := []models.ChatMessage{msg("1", 10), msg("2", 20), msg("3", 30)}
	b := []models.ChatMessage{msg("2", 20), msg("3", 30), msg("4", 40)}

	merged := MergeHistories(a, b)

	want := []string{"1", "2", "3", "4"}
	if len(merged) != len(want) {
		t.Fatalf("merged = %d messages, want %d", len(merged), len(want))
	}
	for i, id := range want {
		if merged[i].ID != id {
			t.Errorf("merged[%d] = %s, want %s", i, merged[i].ID, id)
		}
	}
}

func TestMergeHistoriesOrdersByTimestamp(t *testing.T) {
	a := []models.ChatMessage{msg("late", 50)}
	b := []models.ChatMessage{msg("early", 10), msg("mid", 30)}

	merged := MergeHistories(a, b)
	if merged[0].ID != "early" || merged[1].ID != "mid" || merged[2].ID != "late" {
		t.Errorf("order = %s, %s, %s", merged[0].ID, merged[1].ID, merged[2].ID)
	}
}

func TestMergeTasks(t *testing.T) {
	local := testTask("1", 150, "local edit")
	local.CurrentChatHistory = []models.ChatMessage{msg("1", 10), msg("2", 20)}
	remote := testTask("1", 160, "remote edit")
	remote.Temperature = 1.5
	remote.CurrentChatHistory = []models.ChatMessage{msg("2", 20), msg("3", 30)}

	merged := New().MergeTasks(local, remote)

	// Scalars come from the newer side.
	if merged.Content != "remote edit" || merged.Temperature != 1.5 {
		t.Errorf("scalars = %q / %v", merged.Content, merged.Temperature)
	}
	// Histories are unioned.
	if len(merged.CurrentChatHistory) != 3 {
		t.Fatalf("history length = %d", len(merged.CurrentChatHistory))
	}
	if merged.UpdatedAt != 160 {
		t.Errorf("updatedAt = %d", merged.UpdatedAt)
	}
}

func TestBatchAllOrNothing(t *testing.T) {
	r := New()
	rec1, _ := r.DetectTask(testTask("1", 150, "a"), testTask("1", 160, "b"), 100)
	rec2, _ := r.DetectFolder(&models.Folder{ID: "f", Name: "A", UpdatedAt: 150}, &models.Folder{ID: "f", Name: "B", UpdatedAt: 160}, 100)

	batch := NewBatch([]*models.ConflictRecord{rec1, rec2})
	if batch.Complete() {
		t.Fatal("batch with unresolved conflicts reported complete")
	}

	if _, err := batch.Resolve(rec1.ID, models.ResolutionMerge); err != nil {
		t.Fatalf("Resolve task merge: %v", err)
	}
	if batch.Complete() {
		t.Fatal("half-resolved batch reported complete")
	}
	if batch.Unresolved() != 1 {
		t.Errorf("unresolved = %d", batch.Unresolved())
	}

	// Merge is invalid for the folder conflict.
	if _, err := batch.Resolve(rec2.ID, models.ResolutionMerge); err == nil {
		t.Fatal("folder merge accepted")
	}
	if _, err := batch.Resolve(rec2.ID, models.ResolutionRemote); err != nil {
		t.Fatalf("Resolve folder: %v", err)
	}

	if !batch.Complete() {
		t.Error("fully resolved batch not complete")
	}

	// Double resolution is rejected.
	if _, err := batch.Resolve(rec1.ID, models.ResolutionLocal); err == nil {
		t.Error("re-resolution accepted")
	}

	// Unknown id.
	if _, err := batch.Resolve("nope", models.ResolutionLocal); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestEmptyBatchIsComplete(t *testing.T) {
	if !NewBatch(nil).Complete() {
		t.Error("empty batch must be complete")
	}
}
