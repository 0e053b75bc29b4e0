// Package models provides data model definitions for the promptdeck sync engine.
package models

// DefaultFolderID is the identifier of the folder that always exists and
// cannot be deleted. Tasks of a deleted folder are reassigned to it.
const DefaultFolderID = "default"

// Folder groups tasks in the UI tree.
type Folder struct {
	ID        string `json:"id" validate:"required"`
	Name      string `json:"name" validate:"required,min=1,max=100"`
	Color     string `json:"color,omitempty"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`

	// CreatedInDB flips to true once the remote store confirms the
	// folder exists, mirroring the task flag.
	CreatedInDB bool `json:"createdInDB"`
}

// NewDefaultFolder returns the built-in default folder.
func NewDefaultFolder(now int64) Folder {
	return Folder{
		ID:        DefaultFolderID,
		Name:      "Default",
		Color:     "#6b7280",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a copy of the folder.
func (f *Folder) Clone() *Folder {
	c := *f
	return &c
}
