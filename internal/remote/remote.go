// Package remote provides the thin CRUD façade over the remote store.
// It translates domain objects to and from the remote schema and isolates
// the rest of the engine from the transport behind it.
package remote

import "context"

// Errors implementations return so the client can apply its idempotency
// and retry rules uniformly.
import "errors"

var (
	// ErrNotFound indicates the remote entity does not exist.
	ErrNotFound = errors.New("remote: not found")

	// ErrDuplicate indicates a create hit a uniqueness violation.
	ErrDuplicate = errors.New("remote: duplicate id")
)

// TaskRecord is the remote schema representation of a task.
type TaskRecord struct {
	ID           string          `json:"id"`
	FolderID     string          `json:"folder_id"`
	Name         string          `json:"name"`
	SystemPrompt string          `json:"system_prompt"`
	Model        string          `json:"model,omitempty"`
	Temperature  float64         `json:"temperature"`
	MaxTokens    int             `json:"max_tokens"`
	TopK         *int            `json:"top_k,omitempty"`
	TopP         *float64        `json:"top_p,omitempty"`
	Tags         []string        `json:"tags,omitempty"`
	Notes        string          `json:"notes,omitempty"`
	ChatHistory  []MessageRecord `json:"chat_history,omitempty"`
	CreatedAt    int64           `json:"created_at"`
	UpdatedAt    int64           `json:"updated_at"`
}

// MessageRecord is the remote schema representation of a chat message.
type MessageRecord struct {
	ID           string   `json:"id"`
	Role         string   `json:"role"`
	Content      string   `json:"content"`
	Timestamp    int64    `json:"timestamp"`
	PromptTokens *int     `json:"prompt_tokens,omitempty"`
	OutputTokens *int     `json:"output_tokens,omitempty"`
	TotalTokens  *int     `json:"total_tokens,omitempty"`
	ResponseTime *float64 `json:"response_time,omitempty"`
}

// FolderRecord is the remote schema representation of a folder.
type FolderRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// Store is the opaque remote collaborator. Implementations are expected
// to return ErrNotFound and ErrDuplicate (possibly wrapped) for the
// corresponding conditions; any other error is treated as a transport
// failure by the client.
type Store interface {
	CreateTask(ctx context.Context, userID string, task *TaskRecord) (*TaskRecord, error)
	UpdateTask(ctx context.Context, userID string, task *TaskRecord) (*TaskRecord, error)
	DeleteTask(ctx context.Context, userID, id string) error
	GetTask(ctx context.Context, userID, id string) (*TaskRecord, error)
	ListTasks(ctx context.Context, userID string) ([]*TaskRecord, error)
	CountTasks(ctx context.Context, userID string) (int, error)

	CreateFolder(ctx context.Context, userID string, folder *FolderRecord) (*FolderRecord, error)
	UpdateFolder(ctx context.Context, userID string, folder *FolderRecord) (*FolderRecord, error)
	DeleteFolder(ctx context.Context, userID, id string) error
	GetFolder(ctx context.Context, userID, id string) (*FolderRecord, error)
	ListFolders(ctx context.Context, userID string) ([]*FolderRecord, error)
}
