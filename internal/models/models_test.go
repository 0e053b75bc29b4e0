package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTaskValidation(t *testing.T) {
	now := time.Now().UnixMilli()

	valid := Task{
		ID:        "1756400000000123",
		Name:      "Summarizer",
		Content:   "You are a summarizer.",
		FolderID:  DefaultFolderID,
		Model:     "gpt-4o",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := ValidateStruct(valid); err != nil {
		t.Errorf("valid task rejected: %v", err)
	}

	t.Run("NonNumericID", func(t *testing.T) {
		bad := valid
		bad.ID = "not-numeric"
		if err := ValidateStruct(bad); err == nil {
			t.Error("expected non-numeric id to fail validation")
		}
	})

	t.Run("MissingName", func(t *testing.T) {
		bad := valid
		bad.Name = ""
		if err := ValidateStruct(bad); err == nil {
			t.Error("expected empty name to fail validation")
		}
	})

	t.Run("TemperatureRange", func(t *testing.T) {
		bad := valid
		bad.Temperature = 3.5
		if err := ValidateStruct(bad); err == nil {
			t.Error("expected out-of-range temperature to fail validation")
		}
	})
}

func TestTaskClone(t *testing.T) {
	topK := 40
	task := &Task{
		ID:       "1",
		Name:     "t",
		FolderID: DefaultFolderID,
		TopK:     &topK,
		Tags:     []string{"a"},
		CurrentChatHistory: []ChatMessage{
			{ID: "m1", Role: RoleUser, Content: "hi", TokenUsage: &TokenUsage{Total: 3}},
		},
	}

	clone := task.Clone()
	clone.Tags[0] = "b"
	*clone.TopK = 99
	clone.CurrentChatHistory[0].TokenUsage.Total = 7

	if task.Tags[0] != "a" {
		t.Error("clone shares tags slice")
	}
	if *task.TopK != 40 {
		t.Error("clone shares TopK pointer")
	}
	if task.CurrentChatHistory[0].TokenUsage.Total != 3 {
		t.Error("clone shares chat history token usage")
	}
}

func TestPriorityFor(t *testing.T) {
	if PriorityFor(OperationCreate) != PriorityCreateDelete {
		t.Error("create should use the urgent tier")
	}
	if PriorityFor(OperationDelete) != PriorityCreateDelete {
		t.Error("delete should use the urgent tier")
	}
	if PriorityFor(OperationUpdate) != PriorityUpdate {
		t.Error("update should use the deferred tier")
	}
}

func TestTaskOperationPayloadRoundTrip(t *testing.T) {
	task := &Task{ID: "123", Name: "n", FolderID: DefaultFolderID, Content: "c"}

	op, err := TaskOperation(OperationUpdate, task)
	if err != nil {
		t.Fatalf("TaskOperation: %v", err)
	}
	if op.EntityID != "123" || op.EntityType != EntityTask {
		t.Errorf("unexpected operation target: %+v", op)
	}

	decoded, err := op.TaskPayload()
	if err != nil {
		t.Fatalf("TaskPayload: %v", err)
	}
	if decoded.Name != "n" || decoded.Content != "c" {
		t.Errorf("payload round-trip mismatch: %+v", decoded)
	}
}

func TestDeleteOperationCarriesNoPayload(t *testing.T) {
	op, err := TaskOperation(OperationDelete, &Task{ID: "9", Name: "n", FolderID: DefaultFolderID})
	if err != nil {
		t.Fatalf("TaskOperation: %v", err)
	}
	if op.Payload != nil {
		t.Errorf("delete payload should be empty, got %s", op.Payload)
	}
}

func TestConflictRecordMergeSupported(t *testing.T) {
	taskConflict := ConflictRecord{EntityType: EntityTask}
	folderConflict := ConflictRecord{EntityType: EntityFolder}

	if !taskConflict.MergeSupported() {
		t.Error("task conflicts should offer merge")
	}
	if folderConflict.MergeSupported() {
		t.Error("folder conflicts are binary")
	}
}

func TestSnapshotJSONShape(t *testing.T) {
	snap := Snapshot{
		Folders:          []Folder{NewDefaultFolder(1)},
		Tasks:            []Task{},
		SelectedFolderID: DefaultFolderID,
	}

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"folders", "tasks", "selectedFolderId"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("snapshot JSON missing %q", key)
		}
	}
}
