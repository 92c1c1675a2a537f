package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/terra-clan/exam-engine/internal/languages"
	"github.com/terra-clan/exam-engine/internal/models"
	"github.com/terra-clan/exam-engine/internal/snapshot"
)

// Common errors
var (
	ErrDuplicateFile       = errors.New("file already exists")
	ErrLastFile            = errors.New("cannot delete the last remaining file")
	ErrUnknownFile         = errors.New("file not found in workspace")
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrEmptyFileName       = errors.New("file name must not be empty")
	ErrWorkspaceNotFound   = errors.New("workspace not found")
)

// Store manages the per-question workspaces of one session. Every mutation is
// persisted through the injected snapshot store, keyed by question id, so a
// reload restores each coding question independently.
//
// Workspace writes are buffered: mutations mark the question dirty and a
// background flusher persists a clone of the current state. The keystroke path
// (UpdateFileContent) therefore never waits on the backend. Flush drains all
// pending writes and must be called before the session is torn down.
type Store struct {
	mu        sync.Mutex
	snapshots snapshot.Store
	catalog   *languages.Catalog

	workspaces  map[int]*models.Workspace
	results     map[int]*models.ExecutionResult
	attachments map[int]models.AttachmentSet

	dirty  map[int]bool
	notify chan struct{}
	done   chan struct{}
	closed sync.Once

	// serializes flusher and Flush callers so writes land in state order
	flushMu sync.Mutex
}

// NewStore creates a workspace store and starts its background flusher
func NewStore(snapshots snapshot.Store, catalog *languages.Catalog) *Store {
	s := &Store{
		snapshots:   snapshots,
		catalog:     catalog,
		workspaces:  make(map[int]*models.Workspace),
		results:     make(map[int]*models.ExecutionResult),
		attachments: make(map[int]models.AttachmentSet),
		dirty:       make(map[int]bool),
		notify:      make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	go s.flushLoop()
	return s
}

// Init creates the workspace for a coding question, restoring the durable
// snapshot if one exists and defaulting to a single empty entry file otherwise.
// The restored snapshot is adopted verbatim, including language and activeFile.
func (s *Store) Init(ctx context.Context, questionID int) (*models.Workspace, error) {
	ws, err := s.snapshots.LoadWorkspace(ctx, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to restore workspace: %w", err)
	}

	if ws == nil {
		lang := s.catalog.Get(languages.DefaultLanguage)
		ws = &models.Workspace{
			Language:   lang.ID,
			ActiveFile: lang.DefaultFile,
			Files:      map[string]string{lang.DefaultFile: ""},
		}
		if err := s.snapshots.SaveWorkspace(ctx, questionID, ws); err != nil {
			return nil, fmt.Errorf("failed to persist workspace: %w", err)
		}
	} else {
		slog.Info("workspace restored from snapshot",
			"question_id", questionID,
			"language", ws.Language,
			"files", len(ws.Files),
		)
	}

	res, err := s.snapshots.LoadRunResult(ctx, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to restore run result: %w", err)
	}

	atts, err := s.snapshots.LoadAttachments(ctx, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to restore attachments: %w", err)
	}

	s.mu.Lock()
	s.workspaces[questionID] = ws
	if res != nil {
		s.results[questionID] = res
	}
	if atts != nil {
		s.attachments[questionID] = atts
	}
	clone := ws.Clone()
	s.mu.Unlock()

	return clone, nil
}

// Workspace returns a copy of the workspace for the given question
func (s *Store) Workspace(questionID int) (*models.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, ok := s.workspaces[questionID]
	if !ok {
		return nil, ErrWorkspaceNotFound
	}
	return ws.Clone(), nil
}

// AddFile inserts an empty file and makes it active
func (s *Store) AddFile(questionID int, name string) error {
	if name == "" {
		return ErrEmptyFileName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ws, ok := s.workspaces[questionID]
	if !ok {
		return ErrWorkspaceNotFound
	}
	if _, exists := ws.Files[name]; exists {
		return ErrDuplicateFile
	}

	ws.Files[name] = ""
	ws.ActiveFile = name
	s.markDirty(questionID)
	return nil
}

// DeleteFile removes a file. Deleting the only remaining file is rejected.
// If the deleted file was active, the first remaining file becomes active.
func (s *Store) DeleteFile(questionID int, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, ok := s.workspaces[questionID]
	if !ok {
		return ErrWorkspaceNotFound
	}
	if _, exists := ws.Files[name]; !exists {
		return ErrUnknownFile
	}
	if len(ws.Files) == 1 {
		return ErrLastFile
	}

	delete(ws.Files, name)
	if ws.ActiveFile == name {
		ws.ActiveFile = ws.FirstFile()
	}
	s.markDirty(questionID)
	return nil
}

// RenameFile moves content under a new name; the active pointer follows
func (s *Store) RenameFile(questionID int, oldName, newName string) error {
	if newName == "" {
		return ErrEmptyFileName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ws, ok := s.workspaces[questionID]
	if !ok {
		return ErrWorkspaceNotFound
	}
	if _, exists := ws.Files[oldName]; !exists {
		return ErrUnknownFile
	}
	if newName == oldName {
		return nil
	}
	if _, exists := ws.Files[newName]; exists {
		return ErrDuplicateFile
	}

	ws.Files[newName] = ws.Files[oldName]
	delete(ws.Files, oldName)
	if ws.ActiveFile == oldName {
		ws.ActiveFile = newName
	}
	s.markDirty(questionID)
	return nil
}

// SetActiveFile updates the active file pointer
func (s *Store) SetActiveFile(questionID int, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, ok := s.workspaces[questionID]
	if !ok {
		return ErrWorkspaceNotFound
	}
	if _, exists := ws.Files[name]; !exists {
		return ErrUnknownFile
	}

	ws.ActiveFile = name
	s.markDirty(questionID)
	return nil
}

// UpdateFileContent replaces a file's content verbatim. This is the
// keystroke-driven path; persistence is deferred to the flusher.
func (s *Store) UpdateFileContent(questionID int, name, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, ok := s.workspaces[questionID]
	if !ok {
		return ErrWorkspaceNotFound
	}
	if _, exists := ws.Files[name]; !exists {
		return ErrUnknownFile
	}

	ws.Files[name] = content
	s.markDirty(questionID)
	return nil
}

// SetLanguage updates the language tag. File contents are untouched.
func (s *Store) SetLanguage(questionID int, language string) error {
	if !s.catalog.Supported(language) {
		return ErrUnsupportedLanguage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ws, ok := s.workspaces[questionID]
	if !ok {
		return ErrWorkspaceNotFound
	}

	ws.Language = language
	s.markDirty(questionID)
	return nil
}

// UploadAttachment stores or overwrites an attachment as raw bytes and
// persists the attachment set. Language policy is enforced by the caller.
func (s *Store) UploadAttachment(ctx context.Context, questionID int, name string, data []byte) error {
	if name == "" {
		return ErrEmptyFileName
	}

	s.mu.Lock()
	if _, ok := s.workspaces[questionID]; !ok {
		s.mu.Unlock()
		return ErrWorkspaceNotFound
	}
	atts := s.attachments[questionID]
	if atts == nil {
		atts = make(models.AttachmentSet)
		s.attachments[questionID] = atts
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	atts[name] = buf
	clone := atts.Clone()
	s.mu.Unlock()

	if err := s.snapshots.SaveAttachments(ctx, questionID, clone); err != nil {
		return fmt.Errorf("failed to persist attachments: %w", err)
	}
	return nil
}

// Attachments returns a copy of the attachment set for the given question
func (s *Store) Attachments(questionID int) (models.AttachmentSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workspaces[questionID]; !ok {
		return nil, ErrWorkspaceNotFound
	}
	return s.attachments[questionID].Clone(), nil
}

// SetRunResult records the latest run result for a question and persists it.
// Both successful and failed results land here, latest-wins.
func (s *Store) SetRunResult(ctx context.Context, questionID int, res *models.ExecutionResult) error {
	s.mu.Lock()
	if _, ok := s.workspaces[questionID]; !ok {
		s.mu.Unlock()
		return ErrWorkspaceNotFound
	}
	s.results[questionID] = res
	s.mu.Unlock()

	if err := s.snapshots.SaveRunResult(ctx, questionID, res); err != nil {
		return fmt.Errorf("failed to persist run result: %w", err)
	}
	return nil
}

// RunResult returns the latest stored run result, or nil if none exists
func (s *Store) RunResult(questionID int) (*models.ExecutionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workspaces[questionID]; !ok {
		return nil, ErrWorkspaceNotFound
	}
	return s.results[questionID], nil
}

// QuestionIDs returns the ids of all initialized workspaces
func (s *Store) QuestionIDs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int, 0, len(s.workspaces))
	for id := range s.workspaces {
		ids = append(ids, id)
	}
	return ids
}

// markDirty flags a workspace for the flusher. Callers hold s.mu.
func (s *Store) markDirty(questionID int) {
	s.dirty[questionID] = true
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Store) flushLoop() {
	for {
		select {
		case <-s.done:
			return
		case <-s.notify:
			s.flushDirty(context.Background())
		}
	}
}

// flushDirty persists a clone of every dirty workspace. The clone is taken
// under the state lock after the dirty set is swapped out, so a write can
// never carry state older than the mutation that marked it dirty.
func (s *Store) flushDirty(ctx context.Context) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	pending := make(map[int]*models.Workspace, len(s.dirty))
	for questionID := range s.dirty {
		if ws, ok := s.workspaces[questionID]; ok {
			pending[questionID] = ws.Clone()
		}
	}
	s.dirty = make(map[int]bool)
	s.mu.Unlock()

	for questionID, ws := range pending {
		if err := s.snapshots.SaveWorkspace(ctx, questionID, ws); err != nil {
			slog.Warn("failed to persist workspace",
				"question_id", questionID,
				"error", err,
			)
		}
	}
}

// Flush drains all pending workspace writes. Call before tearing the
// session down.
func (s *Store) Flush(ctx context.Context) {
	s.flushDirty(ctx)
}

// Close flushes pending writes and stops the background flusher
func (s *Store) Close() {
	s.closed.Do(func() {
		close(s.done)
		s.flushDirty(context.Background())
	})
}
