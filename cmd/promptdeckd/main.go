// Package main runs the promptdeck sync daemon: a localhost companion
// process owning the entity store, local persistence, and the background
// sync machinery, exposed to the UI over REST and WebSocket.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kimhsiao/promptdeck/cmd/promptdeckd/handlers"
	"github.com/kimhsiao/promptdeck/internal/crypto"
	"github.com/kimhsiao/promptdeck/internal/logging"
	"github.com/kimhsiao/promptdeck/internal/mode"
	"github.com/kimhsiao/promptdeck/internal/persist"
	"github.com/kimhsiao/promptdeck/internal/quota"
	"github.com/kimhsiao/promptdeck/internal/remote"
	"github.com/kimhsiao/promptdeck/internal/statusfeed"
	"github.com/kimhsiao/promptdeck/internal/store"
	syncpkg "github.com/kimhsiao/promptdeck/internal/sync"
	"github.com/kimhsiao/promptdeck/internal/sync/events"
	"github.com/kimhsiao/promptdeck/internal/sync/queue"
	"github.com/kimhsiao/promptdeck/internal/sync/scheduler"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

const remoteTokenKey = "remote_token"

// remoteToken resolves the bearer token for the hosted backend. A token
// passed via REMOTE_TOKEN is stored encrypted, keyed to the data directory,
// so later starts can omit the variable.
func remoteToken(db *persist.DB, dataDir string) (string, error) {
	if token := os.Getenv("REMOTE_TOKEN"); token != "" {
		stored, err := crypto.EncryptToken(token, dataDir)
		if err != nil {
			return "", err
		}
		if err := db.Set(remoteTokenKey, []byte(stored)); err != nil {
			return "", err
		}
		return token, nil
	}

	stored, ok, err := db.Get(remoteTokenKey)
	if err != nil || !ok {
		return "", err
	}
	return crypto.DecryptToken(string(stored), dataDir)
}

func main() {
	level, err := logrus.ParseLevel(envOr("LOG_LEVEL", "info"))
	if err != nil {
		level = logrus.InfoLevel
	}
	logging.Init(os.Stdout, level)

	port := envOr("PORT", "8090")
	dataDir := envOr("DATA_DIR", "./data")

	db, err := persist.Open(dataDir)
	if err != nil {
		logging.Error("Failed to open local database", err, map[string]interface{}{
			"data_dir": dataDir,
		})
		os.Exit(1)
	}
	defer db.Close()
	pstore := persist.NewStore(db)

	// Entity store, hydrated from the last persisted snapshot.
	st := store.New(pstore)
	snap, err := pstore.LoadSnapshot()
	if err != nil {
		logging.Error("Failed to load snapshot, starting empty", err)
	}
	st.Hydrate(snap)

	// Sync queue, restored so operations survive restarts.
	q := queue.New(queue.DefaultConfig(), pstore)
	if ops, err := pstore.LoadQueue(); err != nil {
		logging.Error("Failed to load sync queue, starting empty", err)
	} else {
		q.Load(ops)
	}

	// Remote backend: a hosted REST endpoint when configured, otherwise
	// an in-process store for standalone operation.
	var backend remote.Store
	if base := os.Getenv("REMOTE_URL"); base != "" {
		token, err := remoteToken(db, dataDir)
		if err != nil {
			logging.Error("Failed to load remote token", err)
			os.Exit(1)
		}
		backend = remote.NewHTTPStore(base, token)
		logging.Info("Using remote backend", map[string]interface{}{"url": base})
	} else {
		backend = remote.NewMemoryStore()
		logging.Warn("No REMOTE_URL configured, sync targets in-process storage", nil)
	}
	client := remote.NewClient(backend, remote.DefaultClientConfig())

	bus := events.NewBus()
	defer bus.Close()

	engine := syncpkg.New(st, q, client, bus, pstore)
	engine.Start()
	defer engine.Stop()

	quotaLimit, _ := strconv.Atoi(envOr("QUOTA_LIMIT", "0"))
	meter := quota.New(pstore, quotaLimit)

	source := handlers.NewSessionSource()
	ctrl := mode.New(st, q, engine, client, meter, source)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go ctrl.Run(ctx)

	sched := scheduler.New(engine, scheduler.DefaultConfig())
	sched.Start(ctx)
	defer sched.Stop()

	hub := statusfeed.NewHub(bus)
	go hub.Run()
	defer hub.Close()

	taskHandler := handlers.NewTaskHandler(st, q, ctrl, engine)
	folderHandler := handlers.NewFolderHandler(st, q, ctrl, engine)
	syncHandler := handlers.NewSyncHandler(engine, q)
	authHandler := handlers.NewAuthHandler(source, ctrl)
	workspaceHandler := handlers.NewWorkspaceHandler(st, q)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"promptdeckd"}`))
	})

	mux.HandleFunc("GET /api/tasks", taskHandler.List)
	mux.HandleFunc("POST /api/tasks", taskHandler.Create)
	mux.HandleFunc("GET /api/tasks/search", workspaceHandler.Search)
	mux.HandleFunc("GET /api/tasks/{id}", taskHandler.Get)
	mux.HandleFunc("PATCH /api/tasks/{id}", taskHandler.Update)
	mux.HandleFunc("DELETE /api/tasks/{id}", taskHandler.Delete)
	mux.HandleFunc("POST /api/tasks/{id}/messages", taskHandler.AppendMessage)
	mux.HandleFunc("DELETE /api/tasks/{id}/messages", taskHandler.ClearHistory)
	mux.HandleFunc("POST /api/tasks/{id}/versions", taskHandler.SnapshotVersion)
	mux.HandleFunc("POST /api/tasks/{id}/versions/{versionID}/restore", taskHandler.RestoreVersion)

	mux.HandleFunc("GET /api/folders", folderHandler.List)
	mux.HandleFunc("POST /api/folders", folderHandler.Create)
	mux.HandleFunc("PATCH /api/folders/{id}", folderHandler.Update)
	mux.HandleFunc("DELETE /api/folders/{id}", folderHandler.Delete)
	mux.HandleFunc("POST /api/folders/{id}/select", folderHandler.Select)

	mux.HandleFunc("GET /api/sync/status", syncHandler.Status)
	mux.HandleFunc("POST /api/sync/now", syncHandler.SyncNow)
	mux.HandleFunc("POST /api/sync/online", syncHandler.SetOnline)
	mux.HandleFunc("GET /api/sync/conflicts", syncHandler.Conflicts)
	mux.HandleFunc("POST /api/sync/conflicts/{id}/resolve", syncHandler.Resolve)

	mux.HandleFunc("GET /api/workspace/export", workspaceHandler.Export)
	mux.HandleFunc("POST /api/workspace/import", workspaceHandler.Import)

	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("POST /api/auth/logout", authHandler.Logout)
	mux.HandleFunc("GET /api/auth/session", authHandler.Session)

	mux.HandleFunc("GET /ws", hub.Handler())

	server := &http.Server{
		Addr:         "127.0.0.1:" + port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logging.Info("promptdeckd listening", map[string]interface{}{
		"addr":     server.Addr,
		"data_dir": dataDir,
	})
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logging.Error("Server terminated", err)
		os.Exit(1)
	}
}
