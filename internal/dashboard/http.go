// Package dashboard implements the read-mostly HTTP API described in
// the external interfaces: job stats, job listing, metrics, enqueue,
// and DLQ retry, all delegating to the queue manager. No HTML
// templates, no authentication — both are out of scope here.
package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"queuectl/internal/model"
	"queuectl/internal/queue"
)

// NewRouter builds the dashboard's HTTP handler over manager.
func NewRouter(manager *queue.Manager) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	h := &handlers{manager: manager}

	r.Get("/api/stats", h.stats)
	r.Get("/api/jobs", h.listJobs)
	r.Get("/api/metrics", h.metrics)
	r.Post("/api/enqueue", h.enqueue)
	r.Post("/api/retry/{id}", h.retry)

	return r
}

type handlers struct {
	manager *queue.Manager
}

func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.manager.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handlers) listJobs(w http.ResponseWriter, r *http.Request) {
	var statePtr *model.State
	if s := r.URL.Query().Get("state"); s != "" {
		state := model.State(s)
		statePtr = &state
	}

	jobs, err := h.manager.ListJobs(r.Context(), statePtr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (h *handlers) metrics(w http.ResponseWriter, r *http.Request) {
	n := 10
	if raw := r.URL.Query().Get("recent"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, &model.ValidationError{Field: "recent", Reason: "must be an integer"})
			return
		}
		n = parsed
	}

	summary, err := h.manager.Metrics(r.Context(), n)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type enqueueRequest struct {
	ID         string `json:"id"`
	Command    string `json:"command"`
	Priority   int    `json:"priority"`
	MaxRetries int    `json:"max_retries"`
	RunAt      string `json:"run_at"`
}

func (h *handlers) enqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &model.ValidationError{Field: "body", Reason: "invalid JSON"})
		return
	}

	var runAt *time.Time
	if req.RunAt != "" {
		t, err := time.Parse(time.RFC3339, req.RunAt)
		if err != nil {
			writeError(w, &model.ValidationError{Field: "run_at", Reason: "must be ISO-8601 UTC"})
			return
		}
		runAt = &t
	}

	job, err := h.manager.Enqueue(r.Context(), queue.EnqueueInput{
		ID:         req.ID,
		Command:    req.Command,
		Priority:   req.Priority,
		MaxRetries: req.MaxRetries,
		RunAt:      runAt,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (h *handlers) retry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.manager.RetryDLQJob(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var ve *model.ValidationError
	var nf *model.NotFoundError
	var it *model.InvalidTransitionError
	switch {
	case errors.As(err, &ve):
		status = http.StatusBadRequest
	case errors.As(err, &nf):
		status = http.StatusNotFound
	case errors.As(err, &it):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
