package jobs

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// errorResponse is the body of every error reply.
type errorResponse struct {
	Error string `json:"error"`
}

// createRequest is the body of POST /jobs.
type createRequest struct {
	DryRun     bool   `json:"dry_run"`
	FilePath   string `json:"file_path"`
	ImportType string `json:"import_type"`
	UserID     string `json:"user_id"`
}

// abortResponse is the body of POST /jobs/{id}/abort.
type abortResponse struct {
	Aborted bool `json:"aborted"`
	Job     *Job `json:"job"`
}

// Handler serves the job status API.
type Handler struct {
	logger     *slog.Logger
	manager    *Manager
	nationSlug string
}

// NewHandler creates a Handler. Jobs it creates target nationSlug.
func NewHandler(manager *Manager, nationSlug string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:     logger.With("component", "jobs_api"),
		manager:    manager,
		nationSlug: nationSlug,
	}
}

// Routes returns the API router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/{id}", h.status)
		r.Post("/{id}/abort", h.abort)
	})

	return r
}

// create handles POST /jobs.
func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := h.manager.Create(NewJob{
		DryRun:     req.DryRun,
		FilePath:   req.FilePath,
		ImportType: req.ImportType,
		NationSlug: h.nationSlug,
		UserID:     req.UserID,
	})
	if err != nil {
		h.logger.Warn("could not create job", "error", err)
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusAccepted, job)
}

// list handles GET /jobs?user_id=.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.manager.List(r.URL.Query().Get("user_id"))
	if err != nil {
		h.logger.Error("could not list jobs", "error", err)
		respondError(w, http.StatusInternalServerError, "could not list jobs")
		return
	}
	if jobs == nil {
		jobs = []*Job{}
	}
	respondJSON(w, http.StatusOK, map[string][]*Job{"jobs": jobs})
}

// status handles GET /jobs/{id}.
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	job, err := h.manager.Status(chi.URLParam(r, "id"))
	if err != nil {
		h.respondLookupError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// abort handles POST /jobs/{id}/abort.
func (h *Handler) abort(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	aborted, err := h.manager.Abort(id)
	if err != nil {
		h.respondLookupError(w, err)
		return
	}
	job, err := h.manager.Status(id)
	if err != nil {
		h.respondLookupError(w, err)
		return
	}

	status := http.StatusOK
	if !aborted {
		status = http.StatusConflict
	}
	respondJSON(w, status, abortResponse{Aborted: aborted, Job: job})
}

func (h *Handler) respondLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrJobNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	h.logger.Error("job lookup failed", "error", err)
	respondError(w, http.StatusInternalServerError, "job lookup failed")
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
