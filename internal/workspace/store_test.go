package workspace

import (
	"context"
	"errors"
	"testing"

	"github.com/terra-clan/exam-engine/internal/languages"
	"github.com/terra-clan/exam-engine/internal/models"
	"github.com/terra-clan/exam-engine/internal/snapshot"
)

func newTestStore(t *testing.T) (*Store, *snapshot.MemoryStore) {
	t.Helper()
	snapshots := snapshot.NewMemoryStore()
	store := NewStore(snapshots, languages.NewCatalog())
	t.Cleanup(store.Close)
	return store, snapshots
}

func TestInitDefaultsToEmptyEntryFile(t *testing.T) {
	store, _ := newTestStore(t)

	ws, err := store.Init(context.Background(), 1)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	if ws.Language != "python" {
		t.Errorf("expected language python, got %s", ws.Language)
	}
	if ws.ActiveFile != "main.py" {
		t.Errorf("expected active file main.py, got %s", ws.ActiveFile)
	}
	if len(ws.Files) != 1 {
		t.Fatalf("expected exactly one file, got %d", len(ws.Files))
	}
	if content, ok := ws.Files["main.py"]; !ok || content != "" {
		t.Errorf("expected empty main.py, got %q (present=%v)", content, ok)
	}
}

func TestInitRestoresSnapshotVerbatim(t *testing.T) {
	snapshots := snapshot.NewMemoryStore()
	saved := &models.Workspace{
		Language:   "go",
		ActiveFile: "solution.go",
		Files:      map[string]string{"solution.go": "package main", "util.go": "// helpers"},
	}
	if err := snapshots.SaveWorkspace(context.Background(), 7, saved); err != nil {
		t.Fatalf("SaveWorkspace failed: %v", err)
	}

	store := NewStore(snapshots, languages.NewCatalog())
	t.Cleanup(store.Close)

	ws, err := store.Init(context.Background(), 7)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if ws.Language != "go" || ws.ActiveFile != "solution.go" {
		t.Errorf("snapshot not restored verbatim: language=%s active=%s", ws.Language, ws.ActiveFile)
	}
	if ws.Files["util.go"] != "// helpers" {
		t.Errorf("file content lost on restore: %q", ws.Files["util.go"])
	}
}

func TestAddFileBecomesActive(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Init(ctx, 1); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	if err := store.AddFile(1, "helpers.py"); err != nil {
		t.Fatalf("AddFile failed: %v", err)
	}

	ws, err := store.Workspace(1)
	if err != nil {
		t.Fatalf("Workspace failed: %v", err)
	}
	if ws.ActiveFile != "helpers.py" {
		t.Errorf("expected new file to become active, got %s", ws.ActiveFile)
	}
	if ws.Files["helpers.py"] != "" {
		t.Errorf("new file should be empty, got %q", ws.Files["helpers.py"])
	}
}

func TestAddFileValidation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Init(ctx, 1); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	if err := store.AddFile(1, ""); !errors.Is(err, ErrEmptyFileName) {
		t.Errorf("expected ErrEmptyFileName, got %v", err)
	}
	if err := store.AddFile(1, "main.py"); !errors.Is(err, ErrDuplicateFile) {
		t.Errorf("expected ErrDuplicateFile, got %v", err)
	}
	if err := store.AddFile(99, "x.py"); !errors.Is(err, ErrWorkspaceNotFound) {
		t.Errorf("expected ErrWorkspaceNotFound, got %v", err)
	}
}

func TestDeleteLastFileRejected(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Init(ctx, 1); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	if err := store.DeleteFile(1, "main.py"); !errors.Is(err, ErrLastFile) {
		t.Errorf("expected ErrLastFile, got %v", err)
	}

	// Still there after the rejected delete
	ws, _ := store.Workspace(1)
	if len(ws.Files) != 1 || ws.ActiveFile != "main.py" {
		t.Errorf("workspace mutated by rejected delete: %+v", ws)
	}
}

func TestDeleteActiveFileReassignsActive(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Init(ctx, 1); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := store.AddFile(1, "zz.py"); err != nil {
		t.Fatalf("AddFile failed: %v", err)
	}
	if err := store.AddFile(1, "aa.py"); err != nil {
		t.Fatalf("AddFile failed: %v", err)
	}

	// aa.py is active; deleting it must hand active to the first remaining file
	if err := store.DeleteFile(1, "aa.py"); err != nil {
		t.Fatalf("DeleteFile failed: %v", err)
	}

	ws, _ := store.Workspace(1)
	if ws.ActiveFile != "main.py" {
		t.Errorf("expected active to fall back to main.py, got %s", ws.ActiveFile)
	}
	if _, exists := ws.Files[ws.ActiveFile]; !exists {
		t.Errorf("active file %s does not exist in workspace", ws.ActiveFile)
	}
}

func TestAddRenameDeleteSequence(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Init(ctx, 1); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	if err := store.AddFile(1, "b.py"); err != nil {
		t.Fatalf("AddFile failed: %v", err)
	}
	if err := store.RenameFile(1, "b.py", "c.py"); err != nil {
		t.Fatalf("RenameFile failed: %v", err)
	}
	if err := store.DeleteFile(1, "main.py"); err != nil {
		t.Fatalf("DeleteFile failed: %v", err)
	}

	ws, _ := store.Workspace(1)
	if len(ws.Files) != 1 {
		t.Fatalf("expected one file, got %d: %v", len(ws.Files), ws.Files)
	}
	if _, ok := ws.Files["c.py"]; !ok {
		t.Errorf("expected c.py to survive, got %v", ws.Files)
	}
	if ws.ActiveFile != "c.py" {
		t.Errorf("expected active c.py, got %s", ws.ActiveFile)
	}
}

func TestRenameKeepsContentAndActivePointer(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Init(ctx, 1); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := store.UpdateFileContent(1, "main.py", "print('hi')"); err != nil {
		t.Fatalf("UpdateFileContent failed: %v", err)
	}

	if err := store.RenameFile(1, "main.py", "solution.py"); err != nil {
		t.Fatalf("RenameFile failed: %v", err)
	}

	ws, _ := store.Workspace(1)
	if ws.Files["solution.py"] != "print('hi')" {
		t.Errorf("content lost on rename: %q", ws.Files["solution.py"])
	}
	if _, exists := ws.Files["main.py"]; exists {
		t.Error("old name still present after rename")
	}
	if ws.ActiveFile != "solution.py" {
		t.Errorf("active pointer did not follow rename, got %s", ws.ActiveFile)
	}
}

func TestRenameValidation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Init(ctx, 1); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := store.AddFile(1, "other.py"); err != nil {
		t.Fatalf("AddFile failed: %v", err)
	}

	if err := store.RenameFile(1, "missing.py", "x.py"); !errors.Is(err, ErrUnknownFile) {
		t.Errorf("expected ErrUnknownFile, got %v", err)
	}
	if err := store.RenameFile(1, "main.py", "other.py"); !errors.Is(err, ErrDuplicateFile) {
		t.Errorf("expected ErrDuplicateFile, got %v", err)
	}
	// Renaming to the same name is a no-op, not an error
	if err := store.RenameFile(1, "main.py", "main.py"); err != nil {
		t.Errorf("same-name rename should be a no-op, got %v", err)
	}
}

func TestSetLanguageKeepsFiles(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Init(ctx, 1); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := store.UpdateFileContent(1, "main.py", "print(1)"); err != nil {
		t.Fatalf("UpdateFileContent failed: %v", err)
	}

	if err := store.SetLanguage(1, "java"); err != nil {
		t.Fatalf("SetLanguage failed: %v", err)
	}

	ws, _ := store.Workspace(1)
	if ws.Language != "java" {
		t.Errorf("expected language java, got %s", ws.Language)
	}
	if ws.Files["main.py"] != "print(1)" {
		t.Errorf("file content should survive language switch, got %q", ws.Files["main.py"])
	}

	if err := store.SetLanguage(1, "cobol"); !errors.Is(err, ErrUnsupportedLanguage) {
		t.Errorf("expected ErrUnsupportedLanguage, got %v", err)
	}
}

func TestFlushPersistsPendingWrites(t *testing.T) {
	store, snapshots := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Init(ctx, 1); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := store.UpdateFileContent(1, "main.py", "final answer"); err != nil {
		t.Fatalf("UpdateFileContent failed: %v", err)
	}

	store.Flush(ctx)

	ws, err := snapshots.LoadWorkspace(ctx, 1)
	if err != nil {
		t.Fatalf("LoadWorkspace failed: %v", err)
	}
	if ws == nil {
		t.Fatal("expected persisted workspace, got nil")
	}
	if ws.Files["main.py"] != "final answer" {
		t.Errorf("flushed content mismatch: %q", ws.Files["main.py"])
	}
}

func TestSnapshotRoundTripAcrossStores(t *testing.T) {
	snapshots := snapshot.NewMemoryStore()
	catalog := languages.NewCatalog()
	ctx := context.Background()

	first := NewStore(snapshots, catalog)
	if _, err := first.Init(ctx, 3); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := first.AddFile(3, "extra.py"); err != nil {
		t.Fatalf("AddFile failed: %v", err)
	}
	if err := first.UpdateFileContent(3, "extra.py", "x = 1"); err != nil {
		t.Fatalf("UpdateFileContent failed: %v", err)
	}
	if err := first.SetRunResult(ctx, 3, &models.ExecutionResult{Output: "ok", Success: true}); err != nil {
		t.Fatalf("SetRunResult failed: %v", err)
	}
	first.Close()

	// A fresh store over the same backend sees everything the first one wrote
	second := NewStore(snapshots, catalog)
	t.Cleanup(second.Close)

	ws, err := second.Init(ctx, 3)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if ws.ActiveFile != "extra.py" || ws.Files["extra.py"] != "x = 1" {
		t.Errorf("restored workspace mismatch: %+v", ws)
	}

	res, err := second.RunResult(3)
	if err != nil {
		t.Fatalf("RunResult failed: %v", err)
	}
	if res == nil || !res.Success || res.Output != "ok" {
		t.Errorf("restored run result mismatch: %+v", res)
	}
}

func TestAttachmentsRoundTrip(t *testing.T) {
	store, snapshots := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Init(ctx, 5); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	payload := []byte{0x50, 0x4b, 0x03, 0x04}
	if err := store.UploadAttachment(ctx, 5, "lib.jar", payload); err != nil {
		t.Fatalf("UploadAttachment failed: %v", err)
	}

	atts, err := store.Attachments(5)
	if err != nil {
		t.Fatalf("Attachments failed: %v", err)
	}
	if string(atts["lib.jar"]) != string(payload) {
		t.Errorf("attachment bytes mismatch: %v", atts["lib.jar"])
	}

	// Persisted synchronously, no flush needed
	saved, err := snapshots.LoadAttachments(ctx, 5)
	if err != nil {
		t.Fatalf("LoadAttachments failed: %v", err)
	}
	if saved == nil || string(saved["lib.jar"]) != string(payload) {
		t.Errorf("attachment not persisted: %v", saved)
	}
}

func TestWorkspaceReturnsCopy(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Init(ctx, 1); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	ws, _ := store.Workspace(1)
	ws.Files["main.py"] = "mutated outside"

	fresh, _ := store.Workspace(1)
	if fresh.Files["main.py"] != "" {
		t.Error("external mutation leaked into store state")
	}
}
