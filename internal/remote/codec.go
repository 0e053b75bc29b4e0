package remote

import "github.com/kimhsiao/promptdeck/internal/models"

// taskToRecord translates a domain task into the remote schema.
func taskToRecord(t *models.Task) *TaskRecord {
	rec := &TaskRecord{
		ID:           t.ID,
		FolderID:     t.FolderID,
		Name:         t.Name,
		SystemPrompt: t.Content,
		Model:        t.Model,
		Temperature:  t.Temperature,
		MaxTokens:    t.MaxTokens,
		TopK:         t.TopK,
		TopP:         t.TopP,
		Tags:         t.Tags,
		Notes:        t.Notes,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
	for i := range t.CurrentChatHistory {
		rec.ChatHistory = append(rec.ChatHistory, messageToRecord(&t.CurrentChatHistory[i]))
	}
	return rec
}

// taskFromRecord translates a remote record back into the domain model.
// Tasks arriving from the remote store are by definition confirmed there.
func taskFromRecord(rec *TaskRecord) *models.Task {
	t := &models.Task{
		ID:          rec.ID,
		FolderID:    rec.FolderID,
		Name:        rec.Name,
		Content:     rec.SystemPrompt,
		Model:       rec.Model,
		Temperature: rec.Temperature,
		MaxTokens:   rec.MaxTokens,
		TopK:        rec.TopK,
		TopP:        rec.TopP,
		Tags:        rec.Tags,
		Notes:       rec.Notes,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
		CreatedInDB: true,
	}
	for i := range rec.ChatHistory {
		t.CurrentChatHistory = append(t.CurrentChatHistory, messageFromRecord(&rec.ChatHistory[i]))
	}
	return t
}

func messageToRecord(m *models.ChatMessage) MessageRecord {
	rec := MessageRecord{
		ID:           m.ID,
		Role:         string(m.Role),
		Content:      m.Content,
		Timestamp:    m.Timestamp,
		ResponseTime: m.ResponseTime,
	}
	if m.TokenUsage != nil {
		prompt, completion, total := m.TokenUsage.Prompt, m.TokenUsage.Completion, m.TokenUsage.Total
		rec.PromptTokens = &prompt
		rec.OutputTokens = &completion
		rec.TotalTokens = &total
	}
	return rec
}

func messageFromRecord(rec *MessageRecord) models.ChatMessage {
	m := models.ChatMessage{
		ID:           rec.ID,
		Role:         models.MessageRole(rec.Role),
		Content:      rec.Content,
		Timestamp:    rec.Timestamp,
		ResponseTime: rec.ResponseTime,
	}
	if rec.PromptTokens != nil || rec.OutputTokens != nil || rec.TotalTokens != nil {
		usage := &models.TokenUsage{}
		if rec.PromptTokens != nil {
			usage.Prompt = *rec.PromptTokens
		}
		if rec.OutputTokens != nil {
			usage.Completion = *rec.OutputTokens
		}
		if rec.TotalTokens != nil {
			usage.Total = *rec.TotalTokens
		}
		m.TokenUsage = usage
	}
	return m
}

func folderToRecord(f *models.Folder) *FolderRecord {
	return &FolderRecord{
		ID:        f.ID,
		Name:      f.Name,
		Color:     f.Color,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

func folderFromRecord(rec *FolderRecord) *models.Folder {
	return &models.Folder{
		ID:        rec.ID,
		Name:      rec.Name,
		Color:     rec.Color,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}
