package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/maltedev/listing-autoposter/internal/jobs"
	"github.com/maltedev/listing-autoposter/internal/models"
	"github.com/maltedev/listing-autoposter/internal/storage"
)

// JobService queues publish runs and reports on them.
type JobService interface {
	Submit(listing *models.Listing) (*jobs.Job, error)
	Get(id string) (*jobs.Job, error)
	List() []*jobs.Job
	LatestLogs() []string
	Stats() jobs.Stats
}

// OutboxStats is satisfied by the outbox relay when Postgres is in use.
type OutboxStats interface {
	GetPendingCount(ctx context.Context) (int64, error)
	GetDeadLetterCount(ctx context.Context) (int64, error)
}

type Handlers struct {
	store  storage.Store
	jobs   JobService
	outbox OutboxStats
	logger *slog.Logger
}

func NewHandlers(store storage.Store, jobs JobService, outbox OutboxStats, logger *slog.Logger) *Handlers {
	return &Handlers{
		store:  store,
		jobs:   jobs,
		outbox: outbox,
		logger: logger.With("component", "api"),
	}
}

// PublishResponse acknowledges a publish request.
type PublishResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	JobID   string `json:"job_id"`
}

// ValidationError lists why a listing was rejected.
type ValidationError struct {
	Error    string   `json:"error"`
	Problems []string `json:"problems"`
}

// GetInventory returns every listing.
func (h *Handlers) GetInventory(w http.ResponseWriter, r *http.Request) {
	listings, err := h.store.All(r.Context())
	if err != nil {
		h.logger.Error("failed to load inventory", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to load inventory")
		return
	}

	h.respondJSON(w, http.StatusOK, listings)
}

// SaveItem creates or replaces a listing. A missing id creates a new one.
func (h *Handlers) SaveItem(w http.ResponseWriter, r *http.Request) {
	var listing models.Listing
	if err := json.NewDecoder(r.Body).Decode(&listing); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if problems := listing.Validate(); len(problems) > 0 {
		h.respondJSON(w, http.StatusUnprocessableEntity, ValidationError{
			Error:    "invalid listing",
			Problems: problems,
		})
		return
	}

	saved, err := h.store.Upsert(r.Context(), &listing)
	if err != nil {
		h.logger.Error("failed to save listing", "error", err, "id", listing.ID)
		h.respondError(w, http.StatusInternalServerError, "failed to save listing")
		return
	}

	h.respondJSON(w, http.StatusOK, saved)
}

// DeleteItem removes a listing; unknown ids succeed too.
func (h *Handlers) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		h.logger.Error("failed to delete listing", "error", err, "id", id)
		h.respondError(w, http.StatusInternalServerError, "failed to delete listing")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Publish marks the listing Published and queues an automation run. The
// run's progress is visible through /logs and /jobs/{jobID}.
func (h *Handlers) Publish(w http.ResponseWriter, r *http.Request) {
	var req models.Listing
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ID == "" {
		h.respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	ctx := r.Context()
	if err := h.store.UpdateStatus(ctx, req.ID, models.StatusPublished); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.respondError(w, http.StatusNotFound, "listing not found")
			return
		}
		h.logger.Error("failed to mark listing published", "error", err, "id", req.ID)
		h.respondError(w, http.StatusInternalServerError, "failed to update listing")
		return
	}

	listing := &req
	if req.Title == "" {
		stored, err := h.store.Get(ctx, req.ID)
		if err != nil {
			h.logger.Error("failed to load listing", "error", err, "id", req.ID)
			h.respondError(w, http.StatusInternalServerError, "failed to load listing")
			return
		}
		listing = stored
	}
	listing.Status = models.StatusPublished

	job, err := h.jobs.Submit(listing)
	if err != nil {
		h.logger.Error("failed to queue automation", "error", err, "id", req.ID)
		h.respondError(w, http.StatusServiceUnavailable, "failed to start automation")
		return
	}

	h.respondJSON(w, http.StatusOK, PublishResponse{
		Status:  "started",
		Message: "Automation initiated.",
		JobID:   job.ID,
	})
}

// GetLogs returns the run log of the latest publish request.
func (h *Handlers) GetLogs(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string][]string{"logs": h.jobs.LatestLogs()})
}

// GetJob handles job status retrieval
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		h.respondError(w, http.StatusBadRequest, "job ID is required")
		return
	}

	job, err := h.jobs.Get(jobID)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	}

	h.respondJSON(w, http.StatusOK, job)
}

// ListJobs handles listing all jobs
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.jobs.List())
}

// Health reports job counts and, with Postgres, the outbox backlog.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "ok",
		"jobs":   h.jobs.Stats(),
	}
	status := http.StatusOK

	if h.outbox != nil {
		pendingCount, _ := h.outbox.GetPendingCount(r.Context())
		deadLetterCount, _ := h.outbox.GetDeadLetterCount(r.Context())

		health["outbox"] = map[string]interface{}{
			"pending":     pendingCount,
			"dead_letter": deadLetterCount,
		}

		if pendingCount > 1000 {
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
		if deadLetterCount > 100 {
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		}
	}

	h.respondJSON(w, status, health)
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
