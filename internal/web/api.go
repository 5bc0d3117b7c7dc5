package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/flowdeck/flowdeck/internal/jobs"
	"github.com/flowdeck/flowdeck/internal/store"
	"github.com/flowdeck/flowdeck/pkg/auth"
)

// envelope is the uniform procedure response shape.
type envelope struct {
	OK     bool      `json:"ok"`
	Result any       `json:"result,omitempty"`
	Error  *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeResult(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(envelope{OK: true, Result: result})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{OK: false, Error: &apiError{Code: code, Message: message}})
}

// decode reads the procedure input. An empty body decodes into the zero
// input so parameterless calls need no payload.
func decode(r *http.Request, into any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(into); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// storeError maps repository failures onto the envelope.
func storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "workflow not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "internal", err.Error())
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Token string `json:"token"`
	}
	if err := decode(r, &input); err != nil || input.Token == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "token is required")
		return
	}

	principal, err := s.gate.Login(w, r, input.Token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenRejected) {
			writeError(w, http.StatusUnauthorized, "token_rejected", "the auth service rejected this token")
			return
		}
		writeError(w, http.StatusBadGateway, "auth_unavailable", err.Error())
		return
	}
	writeResult(w, principal)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.gate.Logout(w, r); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeResult(w, map[string]bool{"logged_out": true})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Query    string `json:"q"`
		Page     int    `json:"page"`
		PageSize int    `json:"page_size"`
	}
	if err := decode(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if input.PageSize == 0 {
		input.PageSize = s.cfg.UI.PageSize
	}

	result, err := s.store.List(r.Context(), store.ListOptions{
		Query:    input.Query,
		Page:     input.Page,
		PageSize: input.PageSize,
	})
	if err != nil {
		storeError(w, err)
		return
	}
	writeResult(w, result)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	var input struct {
		ID string `json:"id"`
	}
	if err := decode(r, &input); err != nil || input.ID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "id is required")
		return
	}

	workflow, err := s.store.Get(r.Context(), input.ID)
	if err != nil {
		storeError(w, err)
		return
	}
	writeResult(w, workflow)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := decode(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if input.Name == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "name is required")
		return
	}

	principal, _ := auth.FromContext(r.Context())
	workflow, err := s.store.Create(r.Context(), input.Name, input.Description, principal.ID)
	if err != nil {
		storeError(w, err)
		return
	}

	s.live.InvalidateAll()
	writeResult(w, workflow)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var input struct {
		ID          string       `json:"id"`
		Name        string       `json:"name"`
		Description string       `json:"description"`
		Status      store.Status `json:"status"`
	}
	if err := decode(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if input.ID == "" || input.Name == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "id and name are required")
		return
	}
	if input.Status == "" {
		input.Status = store.StatusDraft
	}
	if !input.Status.Valid() {
		writeError(w, http.StatusBadRequest, "bad_request", "unknown status")
		return
	}

	workflow, err := s.store.Update(r.Context(), input.ID, input.Name, input.Description, input.Status)
	if err != nil {
		storeError(w, err)
		return
	}

	s.live.InvalidateAll()
	writeResult(w, workflow)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var input struct {
		ID string `json:"id"`
	}
	if err := decode(r, &input); err != nil || input.ID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "id is required")
		return
	}

	if err := s.store.Delete(r.Context(), input.ID); err != nil {
		storeError(w, err)
		return
	}

	s.live.InvalidateAll()
	writeResult(w, map[string]bool{"deleted": true})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var input struct {
		ID string `json:"id"`
	}
	if err := decode(r, &input); err != nil || input.ID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "id is required")
		return
	}

	// Reject unknown workflows up front; the job would only fail later.
	if _, err := s.store.Get(r.Context(), input.ID); err != nil {
		storeError(w, err)
		return
	}

	principal, _ := auth.FromContext(r.Context())
	job := jobs.Job{Kind: jobs.KindGenerate, WorkflowID: input.ID, RequestedBy: principal.ID}
	if err := s.jobs.Enqueue(job); err != nil {
		if errors.Is(err, jobs.ErrQueueFull) {
			writeError(w, http.StatusTooManyRequests, "queue_full", "too many pending jobs, retry shortly")
			return
		}
		writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
		return
	}

	s.metrics.jobsEnqueued.Inc()
	writeResult(w, map[string]string{"status": "queued", "workflow_id": input.ID})
}
