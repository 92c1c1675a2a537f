package examapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/terra-clan/exam-engine/internal/models"
)

func TestFetchTest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tests/42" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("missing bearer token, got %q", got)
		}
		json.NewEncoder(w).Encode(models.Test{
			ID:              42,
			Title:           "Algorithms",
			DurationMinutes: 90,
			Questions: []models.Question{
				{ID: 1, QuestionType: models.QuestionCoding, QuestionText: "Sort it", Marks: 10},
			},
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "secret")
	test, err := client.FetchTest(context.Background(), 42)
	if err != nil {
		t.Fatalf("FetchTest failed: %v", err)
	}

	if test.ID != 42 || test.Title != "Algorithms" {
		t.Errorf("unexpected test: %+v", test)
	}
	if test.DurationMinutes != 90 {
		t.Errorf("expected duration 90, got %d", test.DurationMinutes)
	}
	if len(test.Questions) != 1 || test.Questions[0].QuestionType != models.QuestionCoding {
		t.Errorf("questions not decoded: %+v", test.Questions)
	}
}

func TestFetchTestNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "")
	if _, err := client.FetchTest(context.Background(), 99); !errors.Is(err, ErrTestNotFound) {
		t.Errorf("expected ErrTestNotFound, got %v", err)
	}
}

func TestSubmitTest(t *testing.T) {
	var got models.SubmissionPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/tests/42/submit" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode submission: %v", err)
		}
		json.NewEncoder(w).Encode(models.SubmissionRecord{
			ID:               7,
			TestID:           got.TestID,
			TimeTakenMinutes: got.TimeTakenMinutes,
			SubmittedAt:      time.Now().UTC(),
		})
	}))
	defer server.Close()

	payload := models.SubmissionPayload{
		TestID: 42,
		Answers: []models.SubmissionAnswer{
			{QuestionID: 1, Answer: "def solve(): pass"},
		},
		TimeTakenMinutes: 12,
	}

	client := NewHTTPClient(server.URL, "secret")
	record, err := client.SubmitTest(context.Background(), payload)
	if err != nil {
		t.Fatalf("SubmitTest failed: %v", err)
	}

	if record.ID != 7 {
		t.Errorf("expected record id 7, got %d", record.ID)
	}
	if got.TimeTakenMinutes != 12 {
		t.Errorf("time taken not forwarded, got %d", got.TimeTakenMinutes)
	}
	if len(got.Answers) != 1 || got.Answers[0].QuestionID != 1 {
		t.Errorf("answers not forwarded: %+v", got.Answers)
	}
}

func TestSubmitTestUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "validation failed", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "")
	if _, err := client.SubmitTest(context.Background(), models.SubmissionPayload{TestID: 42}); err == nil {
		t.Fatal("expected error for upstream rejection")
	}
}
