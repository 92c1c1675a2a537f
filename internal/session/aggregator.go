package session

import (
	"github.com/terra-clan/exam-engine/internal/models"
	"github.com/terra-clan/exam-engine/internal/workspace"
)

// BuildSubmission derives the final answer bundle from session state. Answers
// are emitted in test order: the recorded text for multiple_choice questions,
// the active file's content for coding questions. time_taken_minutes is the
// elapsed time rounded up to whole minutes. No I/O happens here.
func BuildSubmission(test *models.Test, answers map[int]string, workspaces *workspace.Store, remainingSeconds int) models.SubmissionPayload {
	out := models.SubmissionPayload{
		TestID:  test.ID,
		Answers: make([]models.SubmissionAnswer, 0, len(test.Questions)),
	}

	for _, q := range test.Questions {
		answer := answers[q.ID]
		if q.QuestionType == models.QuestionCoding {
			if ws, err := workspaces.Workspace(q.ID); err == nil {
				answer = ws.Files[ws.ActiveFile]
			}
		}
		out.Answers = append(out.Answers, models.SubmissionAnswer{
			QuestionID: q.ID,
			Answer:     answer,
		})
	}

	elapsedSeconds := test.DurationMinutes*60 - remainingSeconds
	if elapsedSeconds < 0 {
		elapsedSeconds = 0
	}
	out.TimeTakenMinutes = (elapsedSeconds + 59) / 60

	return out
}
