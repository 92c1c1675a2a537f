package snapshot

import (
	"context"
	"fmt"

	"github.com/terra-clan/exam-engine/internal/models"
)

// Snapshot categories. Keys are namespaced by category and question id so every
// coding question restores independently after a reload.
const (
	CategoryWorkspace   = "workspace"
	CategoryRunResult   = "last-run-result"
	CategoryAttachments = "attachments"
)

// Store is the durable snapshot capability injected into the workspace store.
// Load methods return (nil, nil) when no snapshot exists for the question id.
// Stale entries from prior sessions are treated as valid restorable state and
// are never proactively cleared.
type Store interface {
	LoadWorkspace(ctx context.Context, questionID int) (*models.Workspace, error)
	SaveWorkspace(ctx context.Context, questionID int, ws *models.Workspace) error

	LoadRunResult(ctx context.Context, questionID int) (*models.ExecutionResult, error)
	SaveRunResult(ctx context.Context, questionID int, res *models.ExecutionResult) error

	LoadAttachments(ctx context.Context, questionID int) (models.AttachmentSet, error)
	SaveAttachments(ctx context.Context, questionID int, atts models.AttachmentSet) error

	Ping(ctx context.Context) error
	Close() error
}

// key builds the storage key for a category and question id
func key(category string, questionID int) string {
	return fmt.Sprintf("exam:%s:%d", category, questionID)
}
