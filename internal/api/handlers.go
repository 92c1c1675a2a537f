package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/terra-clan/exam-engine/internal/examapi"
	"github.com/terra-clan/exam-engine/internal/runner"
	"github.com/terra-clan/exam-engine/internal/session"
	"github.com/terra-clan/exam-engine/internal/workspace"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// respondDomainError maps engine errors to stable HTTP codes. Unknown errors
// are logged and reported as internal.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "not_found", "session not found")
	case errors.Is(err, session.ErrAlreadySubmitted):
		respondError(w, http.StatusConflict, "already_submitted", "session already submitted")
	case errors.Is(err, session.ErrSubmitInProgress):
		respondError(w, http.StatusConflict, "submit_in_progress", "submission already in progress")
	case errors.Is(err, session.ErrSessionNotActive):
		respondError(w, http.StatusConflict, "session_not_active", "session is not active")
	case errors.Is(err, session.ErrQuestionNotFound):
		respondError(w, http.StatusNotFound, "question_not_found", "question not found in test")
	case errors.Is(err, session.ErrNotCodingQuestion):
		respondError(w, http.StatusBadRequest, "not_coding_question", "question is not a coding question")
	case errors.Is(err, session.ErrNotChoiceQuestion):
		respondError(w, http.StatusBadRequest, "not_choice_question", "question does not take a recorded answer")
	case errors.Is(err, session.ErrAttachmentsNotAllowed):
		respondError(w, http.StatusBadRequest, "attachments_not_allowed", "language does not accept attachments")
	case errors.Is(err, workspace.ErrDuplicateFile):
		respondError(w, http.StatusConflict, "duplicate_file", "file already exists")
	case errors.Is(err, workspace.ErrLastFile):
		respondError(w, http.StatusConflict, "last_file", "cannot delete the last remaining file")
	case errors.Is(err, workspace.ErrUnknownFile):
		respondError(w, http.StatusNotFound, "unknown_file", "file not found in workspace")
	case errors.Is(err, workspace.ErrUnsupportedLanguage):
		respondError(w, http.StatusBadRequest, "unsupported_language", "language is not supported")
	case errors.Is(err, workspace.ErrEmptyFileName):
		respondError(w, http.StatusBadRequest, "validation_error", "file name must not be empty")
	case errors.Is(err, workspace.ErrWorkspaceNotFound):
		respondError(w, http.StatusNotFound, "workspace_not_found", "no workspace for this question")
	case errors.Is(err, runner.ErrRunInFlight):
		respondError(w, http.StatusConflict, "run_in_flight", "a run is already in flight for this question")
	case errors.Is(err, examapi.ErrTestNotFound):
		respondError(w, http.StatusNotFound, "test_not_found", "test not found")
	default:
		slog.Error("internal error", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "service not ready")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// Language catalog handlers

func (s *Server) handleListLanguages(w http.ResponseWriter, r *http.Request) {
	langs := s.catalog.List()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"languages": langs,
		"total":     len(langs),
	})
}
