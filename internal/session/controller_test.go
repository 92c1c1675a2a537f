package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/terra-clan/exam-engine/internal/languages"
	"github.com/terra-clan/exam-engine/internal/models"
	"github.com/terra-clan/exam-engine/internal/snapshot"
	"github.com/terra-clan/exam-engine/internal/workspace"
)

// fakeExamAPI serves a canned test and records submissions. failSubmits makes
// the next N submissions fail with a transport-style error.
type fakeExamAPI struct {
	mu          sync.Mutex
	test        *models.Test
	submissions []models.SubmissionPayload
	failSubmits int
}

func (f *fakeExamAPI) FetchTest(ctx context.Context, testID int) (*models.Test, error) {
	if f.test == nil || f.test.ID != testID {
		return nil, errors.New("test not found")
	}
	return f.test, nil
}

func (f *fakeExamAPI) SubmitTest(ctx context.Context, payload models.SubmissionPayload) (*models.SubmissionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failSubmits > 0 {
		f.failSubmits--
		return nil, errors.New("upstream unavailable")
	}
	f.submissions = append(f.submissions, payload)
	return &models.SubmissionRecord{ID: 101, TestID: payload.TestID, TimeTakenMinutes: payload.TimeTakenMinutes}, nil
}

func (f *fakeExamAPI) submitted() []models.SubmissionPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.SubmissionPayload, len(f.submissions))
	copy(out, f.submissions)
	return out
}

// fakeRunner returns a canned result and records what it was asked to run
type fakeRunner struct {
	mu     sync.Mutex
	result *models.ExecutionResult
	calls  int
	lastWS *models.Workspace
}

func (f *fakeRunner) Run(ctx context.Context, questionID int, ws *models.Workspace, atts models.AttachmentSet) (*models.ExecutionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastWS = ws
	if f.result != nil {
		return f.result, nil
	}
	return &models.ExecutionResult{Output: "ok", Success: true}, nil
}

func sampleTest() *models.Test {
	return &models.Test{
		ID:              42,
		Title:           "Backend Basics",
		DurationMinutes: 1,
		Questions: []models.Question{
			{ID: 10, QuestionType: models.QuestionMultipleChoice, QuestionText: "Pick one", Marks: 2, Options: []string{"a", "b"}},
			{ID: 20, QuestionType: models.QuestionCoding, QuestionText: "Write code", Marks: 5},
			{ID: 30, QuestionType: models.QuestionMultipleChoice, QuestionText: "Pick another", Marks: 1, Options: []string{"x", "y"}},
		},
	}
}

func newTestController(t *testing.T, api *fakeExamAPI, run *fakeRunner) *Controller {
	t.Helper()

	catalog := languages.NewCatalog()
	store := workspace.NewStore(snapshot.NewMemoryStore(), catalog)

	c := newController("sess-1", api.test, store, run, api, catalog)
	if err := c.initWorkspaces(context.Background()); err != nil {
		t.Fatalf("initWorkspaces failed: %v", err)
	}

	// Drive the countdown from the tests instead of a live ticker
	c.mu.Lock()
	c.status = models.SessionActive
	c.mu.Unlock()

	t.Cleanup(c.Close)
	return c
}

func TestExpiryTriggersExactlyOnce(t *testing.T) {
	api := &fakeExamAPI{test: sampleTest()}
	c := newTestController(t, api, &fakeRunner{})

	for i := 0; i < 59; i++ {
		expired, stop := c.tick()
		if expired {
			t.Fatalf("expired after %d seconds of a 60 second test", i+1)
		}
		if stop {
			t.Fatalf("timer stopped early at second %d", i+1)
		}
	}

	expired, _ := c.tick()
	if !expired {
		t.Fatal("expected expiry on the 60th tick")
	}

	if err := c.Submit(context.Background()); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// Further ticks must not re-trigger and must tell the timer to stop
	expired, stop := c.tick()
	if expired {
		t.Error("tick re-triggered expiry after submission")
	}
	if !stop {
		t.Error("tick should stop the timer once the session is terminal")
	}

	if err := c.Submit(context.Background()); !errors.Is(err, ErrAlreadySubmitted) {
		t.Errorf("expected ErrAlreadySubmitted, got %v", err)
	}

	subs := api.submitted()
	if len(subs) != 1 {
		t.Fatalf("expected exactly one submission, got %d", len(subs))
	}
	// The full minute was consumed, and the untouched coding workspace
	// submits its default empty entry file
	if subs[0].TimeTakenMinutes != 1 {
		t.Errorf("expected time_taken_minutes 1, got %d", subs[0].TimeTakenMinutes)
	}
	for _, a := range subs[0].Answers {
		if a.QuestionID == 20 && a.Answer != "" {
			t.Errorf("expected empty coding answer, got %q", a.Answer)
		}
	}
}

func TestSubmitPayloadContents(t *testing.T) {
	api := &fakeExamAPI{test: sampleTest()}
	c := newTestController(t, api, &fakeRunner{})

	if err := c.RecordAnswer(10, "b"); err != nil {
		t.Fatalf("RecordAnswer failed: %v", err)
	}
	if err := c.Workspaces().UpdateFileContent(20, "main.py", "print('answer')"); err != nil {
		t.Fatalf("UpdateFileContent failed: %v", err)
	}

	// Half the 60 second budget elapsed
	c.mu.Lock()
	c.remaining = 30
	c.mu.Unlock()

	if err := c.Submit(context.Background()); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	subs := api.submitted()
	if len(subs) != 1 {
		t.Fatalf("expected one submission, got %d", len(subs))
	}
	payload := subs[0]

	if payload.TestID != 42 {
		t.Errorf("expected test id 42, got %d", payload.TestID)
	}
	// 30 seconds elapsed rounds up to one minute
	if payload.TimeTakenMinutes != 1 {
		t.Errorf("expected time_taken_minutes 1, got %d", payload.TimeTakenMinutes)
	}
	if len(payload.Answers) != 3 {
		t.Fatalf("expected answers for all 3 questions, got %d", len(payload.Answers))
	}

	// Answers arrive in test order
	if payload.Answers[0].QuestionID != 10 || payload.Answers[0].Answer != "b" {
		t.Errorf("unexpected first answer: %+v", payload.Answers[0])
	}
	if payload.Answers[1].QuestionID != 20 || payload.Answers[1].Answer != "print('answer')" {
		t.Errorf("coding answer should be the active file content: %+v", payload.Answers[1])
	}
	if payload.Answers[2].QuestionID != 30 || payload.Answers[2].Answer != "" {
		t.Errorf("unanswered question should submit empty: %+v", payload.Answers[2])
	}
}

func TestSubmitFailureAllowsRetry(t *testing.T) {
	api := &fakeExamAPI{test: sampleTest(), failSubmits: 1}
	c := newTestController(t, api, &fakeRunner{})

	if err := c.Submit(context.Background()); err == nil {
		t.Fatal("expected first submission to fail")
	}

	// The session left active and must not accept new answers
	if err := c.RecordAnswer(10, "a"); !errors.Is(err, ErrSessionNotActive) {
		t.Errorf("expected ErrSessionNotActive after failed submit, got %v", err)
	}

	// But the guard is released and a retry goes through
	if err := c.Submit(context.Background()); err != nil {
		t.Fatalf("retry after failed submission should succeed: %v", err)
	}
	if c.View().Status != models.SessionSubmitted {
		t.Errorf("expected submitted status, got %s", c.View().Status)
	}
}

func TestWorkspaceFrozenAfterSubmit(t *testing.T) {
	api := &fakeExamAPI{test: sampleTest()}
	c := newTestController(t, api, &fakeRunner{})
	ctx := context.Background()

	if err := c.Workspaces().SetLanguage(20, "java"); err != nil {
		t.Fatalf("SetLanguage failed: %v", err)
	}
	if err := c.Submit(ctx); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	before, err := c.Workspaces().Workspace(20)
	if err != nil {
		t.Fatalf("Workspace failed: %v", err)
	}

	mutations := map[string]error{
		"AddFile":           c.AddFile(20, "late.py"),
		"DeleteFile":        c.DeleteFile(20, "Main.java"),
		"RenameFile":        c.RenameFile(20, "Main.java", "Late.java"),
		"SetActiveFile":     c.SetActiveFile(20, "Main.java"),
		"UpdateFileContent": c.UpdateFileContent(20, "Main.java", "too late"),
		"SetLanguage":       c.SetLanguage(20, "python"),
		"UploadAttachment":  c.UploadAttachment(ctx, 20, "late.jar", []byte{1}),
	}
	for op, err := range mutations {
		if !errors.Is(err, ErrSessionNotActive) {
			t.Errorf("%s on a submitted session: expected ErrSessionNotActive, got %v", op, err)
		}
	}

	after, err := c.Workspaces().Workspace(20)
	if err != nil {
		t.Fatalf("Workspace failed: %v", err)
	}
	if after.Language != before.Language || after.ActiveFile != before.ActiveFile || len(after.Files) != len(before.Files) {
		t.Errorf("workspace mutated after submit: before=%+v after=%+v", before, after)
	}
}

func TestTimerStopsAfterFailedSubmit(t *testing.T) {
	api := &fakeExamAPI{test: sampleTest(), failSubmits: 1}
	c := newTestController(t, api, &fakeRunner{})

	if err := c.Submit(context.Background()); err == nil {
		t.Fatal("expected first submission to fail")
	}

	// The clock is frozen once the session leaves active; the timer must not
	// keep running for a session stuck in submitting
	remaining := c.View().RemainingSeconds
	expired, stop := c.tick()
	if expired {
		t.Error("tick fired expiry on a non-active session")
	}
	if !stop {
		t.Error("tick should stop the timer once the session has left active")
	}
	if got := c.View().RemainingSeconds; got != remaining {
		t.Errorf("clock moved after leaving active: %d -> %d", remaining, got)
	}
}

func TestSubmitGuardRejectsConcurrent(t *testing.T) {
	api := &fakeExamAPI{test: sampleTest()}
	c := newTestController(t, api, &fakeRunner{})

	c.mu.Lock()
	c.submitBusy = true
	c.mu.Unlock()

	if err := c.Submit(context.Background()); !errors.Is(err, ErrSubmitInProgress) {
		t.Errorf("expected ErrSubmitInProgress, got %v", err)
	}
}

func TestNavigationClampedAtEnds(t *testing.T) {
	api := &fakeExamAPI{test: sampleTest()}
	c := newTestController(t, api, &fakeRunner{})

	// Previous at the first question is a no-op
	if err := c.Previous(); err != nil {
		t.Fatalf("Previous failed: %v", err)
	}
	if c.View().CurrentQuestion != 0 {
		t.Errorf("expected to stay at question 0, got %d", c.View().CurrentQuestion)
	}

	for i := 0; i < 5; i++ {
		if err := c.Next(); err != nil {
			t.Fatalf("Next failed: %v", err)
		}
	}
	if c.View().CurrentQuestion != 2 {
		t.Errorf("expected to clamp at last question 2, got %d", c.View().CurrentQuestion)
	}
}

func TestRecordAnswerValidation(t *testing.T) {
	api := &fakeExamAPI{test: sampleTest()}
	c := newTestController(t, api, &fakeRunner{})

	if err := c.RecordAnswer(99, "a"); !errors.Is(err, ErrQuestionNotFound) {
		t.Errorf("expected ErrQuestionNotFound, got %v", err)
	}
	if err := c.RecordAnswer(20, "a"); !errors.Is(err, ErrNotChoiceQuestion) {
		t.Errorf("expected ErrNotChoiceQuestion for coding question, got %v", err)
	}

	// Re-answering overwrites
	if err := c.RecordAnswer(10, "a"); err != nil {
		t.Fatalf("RecordAnswer failed: %v", err)
	}
	if err := c.RecordAnswer(10, "b"); err != nil {
		t.Fatalf("RecordAnswer failed: %v", err)
	}
	if c.View().Answers[10] != "b" {
		t.Errorf("expected last answer to win, got %q", c.View().Answers[10])
	}
}

func TestRunStoresFailedResult(t *testing.T) {
	api := &fakeExamAPI{test: sampleTest()}
	run := &fakeRunner{result: &models.ExecutionResult{Success: false, Error: "compile error"}}
	c := newTestController(t, api, run)

	res, err := c.Run(context.Background(), 20)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Success || res.Error != "compile error" {
		t.Errorf("unexpected result: %+v", res)
	}

	// Failed results are stored like successful ones, latest-wins
	stored, err := c.Workspaces().RunResult(20)
	if err != nil {
		t.Fatalf("RunResult failed: %v", err)
	}
	if stored == nil || stored.Error != "compile error" {
		t.Errorf("failed result not stored: %+v", stored)
	}
}

func TestRunRejectsNonCodingQuestion(t *testing.T) {
	api := &fakeExamAPI{test: sampleTest()}
	c := newTestController(t, api, &fakeRunner{})

	if _, err := c.Run(context.Background(), 10); !errors.Is(err, ErrNotCodingQuestion) {
		t.Errorf("expected ErrNotCodingQuestion, got %v", err)
	}
	if _, err := c.Run(context.Background(), 99); !errors.Is(err, ErrQuestionNotFound) {
		t.Errorf("expected ErrQuestionNotFound, got %v", err)
	}
}

func TestAttachmentUploadPolicy(t *testing.T) {
	api := &fakeExamAPI{test: sampleTest()}
	c := newTestController(t, api, &fakeRunner{})
	ctx := context.Background()

	// Default workspace language is python, which takes no attachments
	if err := c.UploadAttachment(ctx, 20, "lib.jar", []byte{1, 2, 3}); !errors.Is(err, ErrAttachmentsNotAllowed) {
		t.Errorf("expected ErrAttachmentsNotAllowed, got %v", err)
	}

	if err := c.Workspaces().SetLanguage(20, "java"); err != nil {
		t.Fatalf("SetLanguage failed: %v", err)
	}
	if err := c.UploadAttachment(ctx, 20, "lib.jar", []byte{1, 2, 3}); err != nil {
		t.Fatalf("UploadAttachment failed for java: %v", err)
	}

	atts, err := c.Workspaces().Attachments(20)
	if err != nil {
		t.Fatalf("Attachments failed: %v", err)
	}
	if len(atts["lib.jar"]) != 3 {
		t.Errorf("attachment not stored: %v", atts)
	}
}

func TestSubscribeReceivesTicks(t *testing.T) {
	api := &fakeExamAPI{test: sampleTest()}
	c := newTestController(t, api, &fakeRunner{})

	events, cancel := c.Subscribe()
	defer cancel()

	c.tick()

	select {
	case ev := <-events:
		if ev.Type != "tick" {
			t.Errorf("expected tick event, got %s", ev.Type)
		}
		if ev.RemainingSeconds != 59 {
			t.Errorf("expected 59 seconds remaining, got %d", ev.RemainingSeconds)
		}
	default:
		t.Fatal("expected a buffered tick event")
	}
}

func TestRemainingNeverGoesNegative(t *testing.T) {
	api := &fakeExamAPI{test: sampleTest()}
	c := newTestController(t, api, &fakeRunner{})

	c.mu.Lock()
	c.remaining = 0
	c.mu.Unlock()

	c.tick()
	if got := c.View().RemainingSeconds; got != 0 {
		t.Errorf("remaining went negative: %d", got)
	}
}
