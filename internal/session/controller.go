package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/terra-clan/exam-engine/internal/examapi"
	"github.com/terra-clan/exam-engine/internal/languages"
	"github.com/terra-clan/exam-engine/internal/models"
	"github.com/terra-clan/exam-engine/internal/runner"
	"github.com/terra-clan/exam-engine/internal/workspace"
)

// Common errors
var (
	ErrSessionNotFound       = errors.New("session not found")
	ErrSessionNotActive      = errors.New("session is not active")
	ErrAlreadySubmitted      = errors.New("session already submitted")
	ErrSubmitInProgress      = errors.New("submission already in progress")
	ErrQuestionNotFound      = errors.New("question not found in test")
	ErrNotCodingQuestion     = errors.New("question is not a coding question")
	ErrNotChoiceQuestion     = errors.New("question does not take a recorded answer")
	ErrAttachmentsNotAllowed = errors.New("language does not accept attachments")
)

// Controller owns one timed exam session: the state machine, the countdown,
// question navigation, answer collection, and submission. Workspace and run
// operations are delegated to the workspace store and the runner client.
//
// State machine: loading -> active -> submitting -> submitted. A failed
// submission releases the submit guard so the session can be submitted again,
// but it never returns to active. A failed test fetch is a hard stop: no
// controller is retained at all.
type Controller struct {
	id        string
	test      *models.Test
	createdAt time.Time

	workspaces *workspace.Store
	runner     runner.Client
	examAPI    examapi.Client
	catalog    *languages.Catalog

	mu          sync.Mutex
	status      models.SessionStatus
	current     int
	remaining   int
	answers     map[int]string
	submittedAt *time.Time
	submitBusy  bool

	stopTimer   context.CancelFunc
	subscribers map[chan models.SessionEvent]struct{}
}

func newController(id string, test *models.Test, workspaces *workspace.Store, run runner.Client, api examapi.Client, catalog *languages.Catalog) *Controller {
	return &Controller{
		id:          id,
		test:        test,
		createdAt:   time.Now(),
		workspaces:  workspaces,
		runner:      run,
		examAPI:     api,
		catalog:     catalog,
		status:      models.SessionLoading,
		answers:     make(map[int]string),
		remaining:   test.DurationMinutes * 60,
		subscribers: make(map[chan models.SessionEvent]struct{}),
	}
}

// initWorkspaces creates one workspace per coding question, restoring durable
// snapshots where present
func (c *Controller) initWorkspaces(ctx context.Context) error {
	for _, qid := range c.test.CodingQuestionIDs() {
		if _, err := c.workspaces.Init(ctx, qid); err != nil {
			return fmt.Errorf("failed to initialize workspace for question %d: %w", qid, err)
		}
	}
	return nil
}

// start transitions to active and registers the countdown. The timer goroutine
// is cancelled on any exit from active and on engine shutdown via ctx.
func (c *Controller) start(ctx context.Context) {
	timerCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.status = models.SessionActive
	c.stopTimer = cancel
	c.mu.Unlock()

	go c.runTimer(timerCtx)

	slog.Info("session started",
		"session_id", c.id,
		"test_id", c.test.ID,
		"duration_minutes", c.test.DurationMinutes,
		"questions", len(c.test.Questions),
	)
}

func (c *Controller) runTimer(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, stop := c.tick()
			if expired {
				if err := c.Submit(context.Background()); err != nil {
					slog.Error("auto-submission failed",
						"session_id", c.id,
						"error", err,
					)
				}
			}
			if stop {
				return
			}
		}
	}
}

// tick advances the countdown by one second. It reports whether the clock just
// reached zero (the single auto-submission trigger) and whether the timer
// should stop. Remaining time never goes negative and is never replenished.
// Leaving active freezes the clock for good, so the timer stops there too.
func (c *Controller) tick() (expired, stop bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != models.SessionActive {
		return false, true
	}
	if c.remaining > 0 {
		c.remaining--
	}

	c.broadcastLocked(models.SessionEvent{
		Type:             "tick",
		Status:           c.status,
		RemainingSeconds: c.remaining,
	})

	return c.remaining == 0, false
}

// Next moves to the following question, clamped at the last index
func (c *Controller) Next() error {
	return c.move(1)
}

// Previous moves to the preceding question, clamped at index zero
func (c *Controller) Previous() error {
	return c.move(-1)
}

func (c *Controller) move(delta int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != models.SessionActive {
		return ErrSessionNotActive
	}

	next := c.current + delta
	if next < 0 || next >= len(c.test.Questions) {
		return nil // no-op at the ends
	}
	c.current = next
	return nil
}

// requireActive rejects state-changing operations once the session has left
// the active state. A submitted session is read-only, workspaces included.
func (c *Controller) requireActive() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != models.SessionActive {
		return ErrSessionNotActive
	}
	return nil
}

// RecordAnswer updates the recorded answer for a multiple_choice question.
// Coding answers are derived from the workspace at submit time instead.
func (c *Controller) RecordAnswer(questionID int, answer string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != models.SessionActive {
		return ErrSessionNotActive
	}

	q := c.test.QuestionByID(questionID)
	if q == nil {
		return ErrQuestionNotFound
	}
	if q.QuestionType != models.QuestionMultipleChoice {
		return ErrNotChoiceQuestion
	}

	c.answers[questionID] = answer
	return nil
}

// Workspace mutations pass through the controller so the state check applies
// uniformly: once the session leaves active, workspaces are frozen.

// AddFile inserts an empty file into a question's workspace and makes it active
func (c *Controller) AddFile(questionID int, name string) error {
	if err := c.requireActive(); err != nil {
		return err
	}
	return c.workspaces.AddFile(questionID, name)
}

// DeleteFile removes a file from a question's workspace
func (c *Controller) DeleteFile(questionID int, name string) error {
	if err := c.requireActive(); err != nil {
		return err
	}
	return c.workspaces.DeleteFile(questionID, name)
}

// RenameFile renames a file in a question's workspace
func (c *Controller) RenameFile(questionID int, oldName, newName string) error {
	if err := c.requireActive(); err != nil {
		return err
	}
	return c.workspaces.RenameFile(questionID, oldName, newName)
}

// SetActiveFile updates a workspace's active file pointer
func (c *Controller) SetActiveFile(questionID int, name string) error {
	if err := c.requireActive(); err != nil {
		return err
	}
	return c.workspaces.SetActiveFile(questionID, name)
}

// UpdateFileContent replaces a file's content in a question's workspace
func (c *Controller) UpdateFileContent(questionID int, name, content string) error {
	if err := c.requireActive(); err != nil {
		return err
	}
	return c.workspaces.UpdateFileContent(questionID, name, content)
}

// SetLanguage changes a workspace's language tag
func (c *Controller) SetLanguage(questionID int, language string) error {
	if err := c.requireActive(); err != nil {
		return err
	}
	return c.workspaces.SetLanguage(questionID, language)
}

// UploadAttachment stores a binary attachment for a coding question. Policy
// check lives here: only languages that consume attachments accept uploads.
func (c *Controller) UploadAttachment(ctx context.Context, questionID int, name string, data []byte) error {
	if err := c.requireActive(); err != nil {
		return err
	}
	if err := c.requireCoding(questionID); err != nil {
		return err
	}

	ws, err := c.workspaces.Workspace(questionID)
	if err != nil {
		return err
	}
	if !c.catalog.AllowsAttachments(ws.Language) {
		return ErrAttachmentsNotAllowed
	}

	return c.workspaces.UploadAttachment(ctx, questionID, name, data)
}

// Run dispatches the question's workspace to the sandbox and stores the
// result, success or failure alike. A second run while one is outstanding
// fails fast with runner.ErrRunInFlight.
func (c *Controller) Run(ctx context.Context, questionID int) (*models.ExecutionResult, error) {
	if err := c.requireActive(); err != nil {
		return nil, err
	}
	if err := c.requireCoding(questionID); err != nil {
		return nil, err
	}

	ws, err := c.workspaces.Workspace(questionID)
	if err != nil {
		return nil, err
	}
	atts, err := c.workspaces.Attachments(questionID)
	if err != nil {
		return nil, err
	}

	res, err := c.runner.Run(ctx, questionID, ws, atts)
	if err != nil {
		return nil, err
	}

	if err := c.workspaces.SetRunResult(ctx, questionID, res); err != nil {
		slog.Warn("failed to persist run result",
			"session_id", c.id,
			"question_id", questionID,
			"error", err,
		)
	}

	return res, nil
}

func (c *Controller) requireCoding(questionID int) error {
	q := c.test.QuestionByID(questionID)
	if q == nil {
		return ErrQuestionNotFound
	}
	if q.QuestionType != models.QuestionCoding {
		return ErrNotCodingQuestion
	}
	return nil
}

// Submit finalizes the session. Exactly one trigger wins: a concurrent manual
// submit and timer expiry cannot both go through. On upstream failure the
// guard is released so the session stays submittable, but it never returns
// to active.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.status == models.SessionSubmitted {
		c.mu.Unlock()
		return ErrAlreadySubmitted
	}
	if c.submitBusy {
		c.mu.Unlock()
		return ErrSubmitInProgress
	}
	if c.status != models.SessionActive && c.status != models.SessionSubmitting {
		c.mu.Unlock()
		return ErrSessionNotActive
	}

	c.submitBusy = true
	c.status = models.SessionSubmitting
	remaining := c.remaining
	answers := make(map[int]string, len(c.answers))
	for id, a := range c.answers {
		answers[id] = a
	}
	c.mu.Unlock()

	// Pending workspace writes must land before the bundle is built
	c.workspaces.Flush(ctx)

	payload := BuildSubmission(c.test, answers, c.workspaces, remaining)

	record, err := c.examAPI.SubmitTest(ctx, payload)
	if err != nil {
		c.mu.Lock()
		c.submitBusy = false
		c.mu.Unlock()
		return fmt.Errorf("submission failed: %w", err)
	}

	now := time.Now()
	c.mu.Lock()
	c.status = models.SessionSubmitted
	c.submittedAt = &now
	stop := c.stopTimer
	c.broadcastLocked(models.SessionEvent{
		Type:             "status",
		Status:           c.status,
		RemainingSeconds: c.remaining,
	})
	c.mu.Unlock()

	if stop != nil {
		stop()
	}

	slog.Info("session submitted",
		"session_id", c.id,
		"test_id", c.test.ID,
		"submission_id", record.ID,
		"time_taken_minutes", payload.TimeTakenMinutes,
	)

	return nil
}

// reapableAt reports whether the session may be dropped from memory at the
// given cutoff. Submitted sessions go once their submission time has passed
// the cutoff. Sessions stuck in submitting (upstream submit keeps failing and
// nobody retries) age out once the full test budget has elapsed too.
func (c *Controller) reapableAt(cutoff time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.status {
	case models.SessionSubmitted:
		return c.submittedAt == nil || !c.submittedAt.After(cutoff)
	case models.SessionSubmitting:
		deadline := c.createdAt.Add(time.Duration(c.test.DurationMinutes) * time.Minute)
		return !deadline.After(cutoff)
	default:
		return false
	}
}

// View returns a snapshot of the externally visible session state
func (c *Controller) View() models.SessionView {
	c.mu.Lock()
	defer c.mu.Unlock()

	answers := make(map[int]string, len(c.answers))
	for id, a := range c.answers {
		answers[id] = a
	}

	return models.SessionView{
		ID:               c.id,
		TestID:           c.test.ID,
		TestTitle:        c.test.Title,
		Status:           c.status,
		CurrentQuestion:  c.current,
		QuestionCount:    len(c.test.Questions),
		RemainingSeconds: c.remaining,
		Answers:          answers,
		CreatedAt:        c.createdAt,
		SubmittedAt:      c.submittedAt,
	}
}

// Test returns the read-only test definition for this session
func (c *Controller) Test() *models.Test {
	return c.test
}

// Workspaces exposes the session's workspace store for delegated operations
func (c *Controller) Workspaces() *workspace.Store {
	return c.workspaces
}

// Subscribe registers an event channel fed by timer ticks and status changes.
// The returned cancel func must be called when the consumer goes away.
func (c *Controller) Subscribe() (<-chan models.SessionEvent, func()) {
	ch := make(chan models.SessionEvent, 8)

	c.mu.Lock()
	c.subscribers[ch] = struct{}{}
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		if _, ok := c.subscribers[ch]; ok {
			delete(c.subscribers, ch)
			close(ch)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

// broadcastLocked sends an event to all subscribers without blocking.
// Callers hold c.mu.
func (c *Controller) broadcastLocked(ev models.SessionEvent) {
	for ch := range c.subscribers {
		select {
		case ch <- ev:
		default: // slow consumer, drop the event
		}
	}
}

// Close stops the timer, drops subscribers, and flushes the workspace store
func (c *Controller) Close() {
	c.mu.Lock()
	stop := c.stopTimer
	c.stopTimer = nil
	for ch := range c.subscribers {
		delete(c.subscribers, ch)
		close(ch)
	}
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	c.workspaces.Close()
}
