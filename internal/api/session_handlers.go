package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/exam-engine/internal/models"
	"github.com/terra-clan/exam-engine/internal/session"
)

// sessionFromRequest resolves the {id} route param to a live session
func (s *Server) sessionFromRequest(r *http.Request) (*session.Controller, error) {
	id := chi.URLParam(r, "id")
	if id == "" {
		return nil, session.ErrSessionNotFound
	}
	return s.sessions.Get(id)
}

// questionIDFromRequest parses the {questionID} route param
func questionIDFromRequest(r *http.Request) (int, bool) {
	qid, err := strconv.Atoi(chi.URLParam(r, "questionID"))
	if err != nil {
		return 0, false
	}
	return qid, true
}

// --- Session lifecycle handlers ---

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if req.TestID <= 0 {
		respondError(w, http.StatusBadRequest, "validation_error", "test_id is required")
		return
	}

	c, err := s.sessions.Create(r.Context(), req.TestID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, c.View())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	c, err := s.sessionFromRequest(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"session": c.View(),
		"test":    c.Test(),
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sessions.Delete(id); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "session deleted",
	})
}

func (s *Server) handleNextQuestion(w http.ResponseWriter, r *http.Request) {
	c, err := s.sessionFromRequest(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	if err := c.Next(); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c.View())
}

func (s *Server) handlePreviousQuestion(w http.ResponseWriter, r *http.Request) {
	c, err := s.sessionFromRequest(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	if err := c.Previous(); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c.View())
}

func (s *Server) handleRecordAnswer(w http.ResponseWriter, r *http.Request) {
	c, err := s.sessionFromRequest(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	qid, ok := questionIDFromRequest(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "validation_error", "invalid question id")
		return
	}

	var req struct {
		Answer string `json:"answer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if err := c.RecordAnswer(qid, req.Answer); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c.View())
}

func (s *Server) handleSubmitSession(w http.ResponseWriter, r *http.Request) {
	c, err := s.sessionFromRequest(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	if err := c.Submit(r.Context()); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c.View())
}

// --- Workspace handlers ---

func (s *Server) handleGetWorkspace(w http.ResponseWriter, r *http.Request) {
	c, err := s.sessionFromRequest(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	qid, ok := questionIDFromRequest(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "validation_error", "invalid question id")
		return
	}

	ws, err := c.Workspaces().Workspace(qid)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ws)
}

func (s *Server) handleAddFile(w http.ResponseWriter, r *http.Request) {
	c, err := s.sessionFromRequest(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	qid, ok := questionIDFromRequest(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "validation_error", "invalid question id")
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if err := c.AddFile(qid, req.Name); err != nil {
		respondDomainError(w, err)
		return
	}

	ws, err := c.Workspaces().Workspace(qid)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, ws)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	c, err := s.sessionFromRequest(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	qid, ok := questionIDFromRequest(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "validation_error", "invalid question id")
		return
	}

	if err := c.DeleteFile(qid, chi.URLParam(r, "name")); err != nil {
		respondDomainError(w, err)
		return
	}

	ws, err := c.Workspaces().Workspace(qid)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ws)
}

func (s *Server) handleRenameFile(w http.ResponseWriter, r *http.Request) {
	c, err := s.sessionFromRequest(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	qid, ok := questionIDFromRequest(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "validation_error", "invalid question id")
		return
	}

	var req struct {
		NewName string `json:"new_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if err := c.RenameFile(qid, chi.URLParam(r, "name"), req.NewName); err != nil {
		respondDomainError(w, err)
		return
	}

	ws, err := c.Workspaces().Workspace(qid)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ws)
}

func (s *Server) handleUpdateFileContent(w http.ResponseWriter, r *http.Request) {
	c, err := s.sessionFromRequest(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	qid, ok := questionIDFromRequest(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "validation_error", "invalid question id")
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if err := c.UpdateFileContent(qid, chi.URLParam(r, "name"), req.Content); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "content updated",
	})
}

func (s *Server) handleSetActiveFile(w http.ResponseWriter, r *http.Request) {
	c, err := s.sessionFromRequest(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	qid, ok := questionIDFromRequest(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "validation_error", "invalid question id")
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if err := c.SetActiveFile(qid, req.Name); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "active file updated",
	})
}

func (s *Server) handleSetLanguage(w http.ResponseWriter, r *http.Request) {
	c, err := s.sessionFromRequest(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	qid, ok := questionIDFromRequest(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "validation_error", "invalid question id")
		return
	}

	var req struct {
		Language string `json:"language"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if err := c.SetLanguage(qid, req.Language); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "language updated",
	})
}

// --- Attachment handlers ---

func (s *Server) handleListAttachments(w http.ResponseWriter, r *http.Request) {
	c, err := s.sessionFromRequest(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	qid, ok := questionIDFromRequest(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "validation_error", "invalid question id")
		return
	}

	atts, err := c.Workspaces().Attachments(qid)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	names := make([]string, 0, len(atts))
	for name := range atts {
		names = append(names, name)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"attachments": names,
		"total":       len(names),
	})
}

func (s *Server) handleUploadAttachment(w http.ResponseWriter, r *http.Request) {
	c, err := s.sessionFromRequest(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	qid, ok := questionIDFromRequest(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "validation_error", "invalid question id")
		return
	}

	var req struct {
		Name string `json:"name"`
		Data string `json:"data"` // base64
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "attachment name is required")
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", "attachment data must be base64")
		return
	}

	if err := c.UploadAttachment(r.Context(), qid, req.Name, data); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{
		"message": "attachment stored",
	})
}

// --- Run handlers ---

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	c, err := s.sessionFromRequest(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	qid, ok := questionIDFromRequest(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "validation_error", "invalid question id")
		return
	}

	res, err := c.Run(r.Context(), qid)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetRunResult(w http.ResponseWriter, r *http.Request) {
	c, err := s.sessionFromRequest(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	qid, ok := questionIDFromRequest(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "validation_error", "invalid question id")
		return
	}

	res, err := c.Workspaces().RunResult(qid)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if res == nil {
		respondError(w, http.StatusNotFound, "no_result", "no run result stored for this question")
		return
	}
	respondJSON(w, http.StatusOK, res)
}
