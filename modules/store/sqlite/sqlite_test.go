package sqlite_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/replypass/replypass/internal/core"
	"github.com/replypass/replypass/internal/store"
	"github.com/replypass/replypass/internal/store/storetest"
	"github.com/replypass/replypass/modules/store/sqlite"
	"github.com/replypass/replypass/pkg/reply"
)

func openStore(t *testing.T, path string) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), sqlite.Config{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	t.Parallel()
	storetest.Run(t, func(t *testing.T) store.Store {
		return openStore(t, filepath.Join(t.TempDir(), "replypass.db"))
	})
}

func TestOpen_CreatesDirectory(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "dir", "replypass.db")
	openStore(t, path)

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file not created: %v", err)
	}
}

func TestStore_SurvivesReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "replypass.db")
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)

	s, err := sqlite.Open(ctx, sqlite.Config{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	storetest.Seed(t, s)
	if err := s.SaveGeneration(ctx, storetest.Generation("gen-1", "session-1", created, "A", "B", "C")); err != nil {
		t.Fatalf("SaveGeneration: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := openStore(t, path)
	g, err := reopened.LatestGeneration(ctx, "session-1")
	if err != nil {
		t.Fatalf("LatestGeneration: %v", err)
	}
	if !g.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", g.CreatedAt, created)
	}
	if msgs, err := reopened.Messages(ctx, "session-1"); err != nil || len(msgs) != 3 {
		t.Errorf("Messages() after reopen = %d, %v", len(msgs), err)
	}
}

func TestStore_DuplicateGeneration(t *testing.T) {
	t.Parallel()
	s := openStore(t, filepath.Join(t.TempDir(), "replypass.db"))
	ctx := context.Background()
	g := storetest.Generation("gen-1", "session-1", time.Now(), "A", "B", "C")

	if err := s.SaveGeneration(ctx, g); err != nil {
		t.Fatalf("SaveGeneration: %v", err)
	}
	if err := s.SaveGeneration(ctx, g); err == nil {
		t.Fatal("expected error saving a generation twice")
	}
}

func TestStore_FeedbackRequiresSucceededGeneration(t *testing.T) {
	t.Parallel()
	s := openStore(t, filepath.Join(t.TempDir(), "replypass.db"))
	ctx := context.Background()

	failed := reply.Generation{
		ID: "gen-f", UserID: "user-1", CaseID: "case-1", SessionID: "session-1",
		Mode: reply.ModeInitial, Round: 1, Status: reply.GenerationFailed,
		FailureKind: reply.FailureInvalidOutput, CreatedAt: time.Now(),
	}
	if err := s.SaveGeneration(ctx, failed); err != nil {
		t.Fatalf("SaveGeneration: %v", err)
	}
	_, err := s.RecordFeedback(ctx, reply.FeedbackRecord{GenerationID: "gen-f", SuggestionIndex: 0, Rating: reply.RatingAccepted})
	if err == nil {
		t.Fatal("expected feedback on a failed generation to be refused")
	}
}

func TestModule_Lifecycle(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	var node yaml.Node
	if err := yaml.Unmarshal([]byte("busy_timeout: 1000\nwal: false\n"), &node); err != nil {
		t.Fatal(err)
	}

	m := &sqlite.Module{}
	if info := m.ModuleInfo(); info.ID != "store.sqlite" {
		t.Fatalf("module ID = %q", info.ID)
	}
	if err := m.Configure(node.Content[0]); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	appCtx := core.NewAppContext(slog.New(slog.DiscardHandler), dir)
	if err := m.Provision(appCtx); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	svc, ok := core.ServiceAs[store.Store](appCtx, store.ServiceStore)
	if !ok || svc != store.Store(m.Store()) {
		t.Fatalf("store service not registered: %v", ok)
	}
	if _, err := os.Stat(filepath.Join(dir, "replypass.db")); err != nil {
		t.Errorf("default database path not used: %v", err)
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestModule_RejectsNegativeBusyTimeout(t *testing.T) {
	t.Parallel()

	var node yaml.Node
	if err := yaml.Unmarshal([]byte("busy_timeout: -1\n"), &node); err != nil {
		t.Fatal(err)
	}
	m := &sqlite.Module{}
	if err := m.Configure(node.Content[0]); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := m.Provision(core.NewAppContext(slog.New(slog.DiscardHandler), t.TempDir())); err == nil {
		_ = m.Stop(context.Background())
		t.Error("expected negative busy_timeout to be rejected")
	}
}
