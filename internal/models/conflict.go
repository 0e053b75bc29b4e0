package models

// Resolution is the user- or policy-selected outcome for one conflict.
type Resolution string

const (
	ResolutionLocal  Resolution = "local"
	ResolutionRemote Resolution = "remote"
	ResolutionMerge  Resolution = "merge"
)

// ConflictRecord captures a divergence between the local and remote copy
// of one entity, detected during pull reconciliation. It exists from
// detection until a resolution is applied.
type ConflictRecord struct {
	ID         string     `json:"id"`
	EntityType EntityType `json:"entityType"`
	EntityID   string     `json:"entityId"`

	LocalTask    *Task   `json:"localTask,omitempty"`
	RemoteTask   *Task   `json:"remoteTask,omitempty"`
	LocalFolder  *Folder `json:"localFolder,omitempty"`
	RemoteFolder *Folder `json:"remoteFolder,omitempty"`

	LocalTimestamp  int64 `json:"localTimestamp"`
	RemoteTimestamp int64 `json:"remoteTimestamp"`
	DetectedAt      int64 `json:"detectedAt"`

	// Resolution is empty until a side (or merge) is chosen.
	Resolution Resolution `json:"resolution,omitempty"`
}

// Resolved reports whether a resolution has been chosen.
func (c *ConflictRecord) Resolved() bool {
	return c.Resolution != ""
}

// MergeSupported reports whether field-level merge is offered for this
// entity type. Folders are binary: local or remote only.
func (c *ConflictRecord) MergeSupported() bool {
	return c.EntityType == EntityTask
}
