package remote

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPStoreTaskRoundTrip(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		switch r.Method + " " + r.URL.Path {
		case "POST /users/u1/tasks":
			var task TaskRecord
			json.NewDecoder(r.Body).Decode(&task)
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(task)
		case "GET /users/u1/tasks/7":
			json.NewEncoder(w).Encode(TaskRecord{ID: "7", Name: "stored"})
		case "GET /users/u1/tasks/count":
			json.NewEncoder(w).Encode(map[string]int{"count": 3})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL, "secret-token")
	ctx := context.Background()

	created, err := store.CreateTask(ctx, "u1", &TaskRecord{ID: "7", Name: "hello"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if created.Name != "hello" {
		t.Errorf("created = %+v", created)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("auth header = %q", gotAuth)
	}

	fetched, err := store.GetTask(ctx, "u1", "7")
	if err != nil || fetched.Name != "stored" {
		t.Errorf("GetTask = %+v, %v", fetched, err)
	}

	count, err := store.CountTasks(ctx, "u1")
	if err != nil || count != 3 {
		t.Errorf("CountTasks = %d, %v", count, err)
	}
}

func TestHTTPStoreStatusMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/u1/tasks/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/users/u1/tasks":
			w.WriteHeader(http.StatusConflict)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL, "")
	ctx := context.Background()

	if _, err := store.GetTask(ctx, "u1", "missing"); !stderrors.Is(err, ErrNotFound) {
		t.Errorf("missing task: %v", err)
	}
	if _, err := store.CreateTask(ctx, "u1", &TaskRecord{ID: "1"}); !stderrors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate create: %v", err)
	}
	if _, err := store.GetFolder(ctx, "u1", "f1"); err == nil {
		t.Error("server error not surfaced")
	}
}

func TestHTTPStoreContextCancellation(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	store := NewHTTPStore(srv.URL, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.ListTasks(ctx, "u1"); err == nil {
		t.Error("cancelled context did not fail the request")
	}
}
