package models

// Task is a system prompt plus its model parameters and chat history.
type Task struct {
	ID          string   `json:"id" validate:"required,numeric"`
	Name        string   `json:"name" validate:"required,min=1,max=255"`
	Content     string   `json:"content"`
	FolderID    string   `json:"folderId" validate:"required"`
	Model       string   `json:"model,omitempty"`
	Temperature float64  `json:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int      `json:"maxTokens" validate:"gte=0"`
	TopK        *int     `json:"topK,omitempty"`
	TopP        *float64 `json:"topP,omitempty"`

	Tags               []string        `json:"tags,omitempty"`
	Notes              string          `json:"notes,omitempty"`
	Versions           []PromptVersion `json:"versions,omitempty"`
	CurrentChatHistory []ChatMessage   `json:"currentChatHistory,omitempty"`

	CreatedAt int64 `json:"createdAt"`
	UpdatedAt int64 `json:"updatedAt"`

	// Sync state. CreatedInDB flips to true once the remote store confirms
	// the task exists; IsUnauthenticated marks tasks created without a session.
	CreatedInDB       bool `json:"createdInDB"`
	IsUnauthenticated bool `json:"isUnauthenticated"`
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	c := *t
	if t.TopK != nil {
		k := *t.TopK
		c.TopK = &k
	}
	if t.TopP != nil {
		p := *t.TopP
		c.TopP = &p
	}
	if t.Tags != nil {
		c.Tags = append([]string(nil), t.Tags...)
	}
	if t.Versions != nil {
		c.Versions = append([]PromptVersion(nil), t.Versions...)
	}
	if t.CurrentChatHistory != nil {
		c.CurrentChatHistory = make([]ChatMessage, 0, len(t.CurrentChatHistory))
		for i := range t.CurrentChatHistory {
			c.CurrentChatHistory = append(c.CurrentChatHistory, t.CurrentChatHistory[i].Clone())
		}
	}
	return &c
}

// HasTag reports whether the task carries the given tag.
func (t *Task) HasTag(tag string) bool {
	for _, existing := range t.Tags {
		if existing == tag {
			return true
		}
	}
	return false
}

// Snapshot is a full serialized copy of the entity store at a point in time.
// It is what local persistence writes on every committed mutation.
type Snapshot struct {
	Folders          []Folder `json:"folders"`
	Tasks            []Task   `json:"tasks"`
	SelectedFolderID string   `json:"selectedFolderId"`
}
