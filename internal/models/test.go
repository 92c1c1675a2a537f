package models

import (
	"time"
)

// QuestionType discriminates the two kinds of questions a test can carry
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionCoding         QuestionType = "coding"
)

// Test is the exam definition fetched from the upstream exam API.
// It is read-only for the lifetime of a session.
type Test struct {
	ID              int        `json:"id"`
	Title           string     `json:"title"`
	DurationMinutes int        `json:"duration_minutes"`
	Questions       []Question `json:"questions"`
}

// Question is a single entry in a test. Options and CorrectAnswer are only
// populated for multiple_choice questions; coding questions carry their
// payload in the per-question workspace instead.
type Question struct {
	ID           int          `json:"id"`
	QuestionType QuestionType `json:"question_type"`
	QuestionText string       `json:"question_text"`
	Marks        int          `json:"marks"`
	Options      []string     `json:"options,omitempty"`
}

// CodingQuestionIDs returns the ids of all coding questions in test order
func (t *Test) CodingQuestionIDs() []int {
	var ids []int
	for _, q := range t.Questions {
		if q.QuestionType == QuestionCoding {
			ids = append(ids, q.ID)
		}
	}
	return ids
}

// QuestionByID returns the question with the given id, or nil
func (t *Test) QuestionByID(id int) *Question {
	for i := range t.Questions {
		if t.Questions[i].ID == id {
			return &t.Questions[i]
		}
	}
	return nil
}

// SubmissionAnswer is one answer entry in the submission payload
type SubmissionAnswer struct {
	QuestionID int    `json:"question_id"`
	Answer     string `json:"answer"`
}

// SubmissionPayload is the full contract handed to the upstream exam API
type SubmissionPayload struct {
	TestID           int                `json:"test_id"`
	Answers          []SubmissionAnswer `json:"answers"`
	TimeTakenMinutes int                `json:"time_taken_minutes"`
}

// SubmissionRecord is the server-assigned record returned after submission
type SubmissionRecord struct {
	ID               int       `json:"id"`
	TestID           int       `json:"test_id"`
	TimeTakenMinutes int       `json:"time_taken_minutes"`
	SubmittedAt      time.Time `json:"submitted_at"`
}
