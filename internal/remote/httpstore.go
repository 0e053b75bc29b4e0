package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPStore implements Store against a hosted REST backend. Paths follow
// the /users/{id}/tasks and /users/{id}/folders layout; the backend
// answers 404 for missing entities and 409 for duplicate creates.
type HTTPStore struct {
	base   string
	token  string
	client *http.Client
}

// NewHTTPStore creates an HTTPStore for the given base URL. The token,
// if non-empty, is sent as a bearer credential.
func NewHTTPStore(base, token string) *HTTPStore {
	return &HTTPStore{
		base:  base,
		token: token,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (s *HTTPStore) url(userID string, parts ...string) string {
	u := s.base + "/users/" + url.PathEscape(userID)
	for _, p := range parts {
		u += "/" + url.PathEscape(p)
	}
	return u
}

// do runs one request and decodes the response into out when non-nil.
func (s *HTTPStore) do(ctx context.Context, method, u string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		return ErrDuplicate
	case resp.StatusCode >= 400:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("remote: %s %s returned %d: %s", method, u, resp.StatusCode, raw)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (s *HTTPStore) CreateTask(ctx context.Context, userID string, task *TaskRecord) (*TaskRecord, error) {
	var created TaskRecord
	if err := s.do(ctx, http.MethodPost, s.url(userID, "tasks"), task, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *HTTPStore) UpdateTask(ctx context.Context, userID string, task *TaskRecord) (*TaskRecord, error) {
	var updated TaskRecord
	if err := s.do(ctx, http.MethodPut, s.url(userID, "tasks", task.ID), task, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *HTTPStore) DeleteTask(ctx context.Context, userID, id string) error {
	return s.do(ctx, http.MethodDelete, s.url(userID, "tasks", id), nil, nil)
}

func (s *HTTPStore) GetTask(ctx context.Context, userID, id string) (*TaskRecord, error) {
	var task TaskRecord
	if err := s.do(ctx, http.MethodGet, s.url(userID, "tasks", id), nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *HTTPStore) ListTasks(ctx context.Context, userID string) ([]*TaskRecord, error) {
	var tasks []*TaskRecord
	if err := s.do(ctx, http.MethodGet, s.url(userID, "tasks"), nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *HTTPStore) CountTasks(ctx context.Context, userID string) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if err := s.do(ctx, http.MethodGet, s.url(userID, "tasks", "count"), nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (s *HTTPStore) CreateFolder(ctx context.Context, userID string, folder *FolderRecord) (*FolderRecord, error) {
	var created FolderRecord
	if err := s.do(ctx, http.MethodPost, s.url(userID, "folders"), folder, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *HTTPStore) UpdateFolder(ctx context.Context, userID string, folder *FolderRecord) (*FolderRecord, error) {
	var updated FolderRecord
	if err := s.do(ctx, http.MethodPut, s.url(userID, "folders", folder.ID), folder, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *HTTPStore) DeleteFolder(ctx context.Context, userID, id string) error {
	return s.do(ctx, http.MethodDelete, s.url(userID, "folders", id), nil, nil)
}

func (s *HTTPStore) GetFolder(ctx context.Context, userID, id string) (*FolderRecord, error) {
	var folder FolderRecord
	if err := s.do(ctx, http.MethodGet, s.url(userID, "folders", id), nil, &folder); err != nil {
		return nil, err
	}
	return &folder, nil
}

func (s *HTTPStore) ListFolders(ctx context.Context, userID string) ([]*FolderRecord, error) {
	var folders []*FolderRecord
	if err := s.do(ctx, http.MethodGet, s.url(userID, "folders"), nil, &folders); err != nil {
		return nil, err
	}
	return folders, nil
}
