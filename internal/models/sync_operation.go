package models

import "encoding/json"

// OperationType is the kind of remote mutation a queued operation performs.
type OperationType string

const (
	OperationCreate OperationType = "create"
	OperationUpdate OperationType = "update"
	OperationDelete OperationType = "delete"
)

// EntityType identifies which entity a sync operation targets.
type EntityType string

const (
	EntityTask   EntityType = "task"
	EntityFolder EntityType = "folder"
)

// OperationStatus tracks a queued operation through the drain worker.
type OperationStatus string

const (
	OperationStatusPending  OperationStatus = "pending"
	OperationStatusInFlight OperationStatus = "in_flight"
)

// Operation priorities. Lower is more urgent: creates and deletes run
// ahead of updates so a new entity exists remotely before edits land.
const (
	PriorityCreateDelete = 1
	PriorityUpdate       = 2
)

// PriorityFor returns the queue priority tier for an operation type.
func PriorityFor(op OperationType) int {
	if op == OperationUpdate {
		return PriorityUpdate
	}
	return PriorityCreateDelete
}

// SyncOperation is one pending remote mutation in the sync queue.
type SyncOperation struct {
	ID         string          `json:"id"`
	Operation  OperationType   `json:"operation"`
	EntityType EntityType      `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Priority   int             `json:"priority"`
	Seq        uint64          `json:"seq"`
	EnqueuedAt int64           `json:"enqueuedAt"`

	Attempts      int             `json:"attempts"`
	MaxRetries    int             `json:"maxRetries"`
	NextAttemptAt int64           `json:"nextAttemptAt"`
	Status        OperationStatus `json:"status"`
	LastError     string          `json:"lastError,omitempty"`
}

// TaskOperation builds a sync operation carrying a task snapshot.
// Delete operations carry no payload.
func TaskOperation(op OperationType, task *Task) (*SyncOperation, error) {
	so := &SyncOperation{
		Operation:  op,
		EntityType: EntityTask,
		EntityID:   task.ID,
	}
	if op != OperationDelete {
		payload, err := json.Marshal(task)
		if err != nil {
			return nil, err
		}
		so.Payload = payload
	}
	return so, nil
}

// FolderOperation builds a sync operation carrying a folder snapshot.
func FolderOperation(op OperationType, folder *Folder) (*SyncOperation, error) {
	so := &SyncOperation{
		Operation:  op,
		EntityType: EntityFolder,
		EntityID:   folder.ID,
	}
	if op != OperationDelete {
		payload, err := json.Marshal(folder)
		if err != nil {
			return nil, err
		}
		so.Payload = payload
	}
	return so, nil
}

// TaskPayload decodes the operation payload as a task.
func (op *SyncOperation) TaskPayload() (*Task, error) {
	var t Task
	if err := json.Unmarshal(op.Payload, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// FolderPayload decodes the operation payload as a folder.
func (op *SyncOperation) FolderPayload() (*Folder, error) {
	var f Folder
	if err := json.Unmarshal(op.Payload, &f); err != nil {
		return nil, err
	}
	return &f, nil
}
