package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/listing-autoposter/internal/automation"
	"github.com/maltedev/listing-autoposter/internal/jobs"
	"github.com/maltedev/listing-autoposter/internal/models"
	"github.com/maltedev/listing-autoposter/internal/orchestrator"
	"github.com/maltedev/listing-autoposter/internal/runlog"
	"github.com/maltedev/listing-autoposter/internal/storage"
)

type recordingRunner struct {
	mu       sync.Mutex
	listings []*models.Listing
}

func (r *recordingRunner) Run(ctx context.Context, listing *models.Listing, sink runlog.Sink, opts ...orchestrator.RunOption) (*orchestrator.RunReport, error) {
	r.mu.Lock()
	r.listings = append(r.listings, listing)
	r.mu.Unlock()

	sink.Append("Starting automation for: " + listing.Title)
	sink.Append("Job complete: " + listing.Title)
	return &orchestrator.RunReport{
		ListingID: listing.ID,
		Status:    models.StatusPublished,
		Sites: []*automation.Report{{
			Site:    automation.SiteCraigslist,
			Steps:   []automation.StepResult{{Step: "navigate", State: automation.Navigated, Status: automation.StepOK}},
			Reached: automation.Done,
		}},
	}, nil
}

type fakeOutbox struct {
	pending, dead int64
}

func (f fakeOutbox) GetPendingCount(context.Context) (int64, error) { return f.pending, nil }
func (f fakeOutbox) GetDeadLetterCount(context.Context) (int64, error) { return f.dead, nil }

type server struct {
	handler http.Handler
	store   storage.Store
	jobs    *jobs.Manager
	runner  *recordingRunner
}

func newServer(t *testing.T, outbox OutboxStats) *server {
	t.Helper()
	store := storage.NewFileStore(filepath.Join(t.TempDir(), "inventory.json"))
	runner := &recordingRunner{}
	manager := jobs.NewManager(runner, nil, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go manager.StartWorker(ctx)

	return &server{
		handler: NewRouter(NewHandlers(store, manager, outbox, slog.Default())),
		store:   store,
		jobs:    manager,
		runner:  runner,
	}
}

func (s *server) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestSaveItem(t *testing.T) {
	s := newServer(t, nil)

	rec := s.do(t, http.MethodPost, "/items", map[string]interface{}{
		"title":    "Desk",
		"price":    50,
		"zip_code": "80211",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	saved := decode[models.Listing](t, rec)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, models.Price("50"), saved.Price)
	assert.Equal(t, models.StatusDraft, saved.Status)

	saved.Title = "Oak Desk"
	rec = s.do(t, http.MethodPost, "/items", saved)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/inventory", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	inventory := decode[[]models.Listing](t, rec)
	require.Len(t, inventory, 1)
	assert.Equal(t, "Oak Desk", inventory[0].Title)
	assert.Equal(t, saved.ID, inventory[0].ID)
}

func TestSaveItem_PriceStaysNumeric(t *testing.T) {
	s := newServer(t, nil)

	rec := s.do(t, http.MethodPost, "/items", `{"title":"Desk","price":1200}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodPost, "/items", `{"title":"Chair","price":"$1,200"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/inventory", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var inventory []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inventory))
	require.Len(t, inventory, 2)

	prices := map[interface{}]interface{}{}
	for _, item := range inventory {
		prices[item["title"]] = item["price"]
	}
	assert.Equal(t, float64(1200), prices["Desk"])
	assert.Equal(t, "$1,200", prices["Chair"])
}

func TestSaveItem_Invalid(t *testing.T) {
	s := newServer(t, nil)

	rec := s.do(t, http.MethodPost, "/items", map[string]string{"price": "$10"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, []string{"title is required"}, decode[ValidationError](t, rec).Problems)

	rec = s.do(t, http.MethodPost, "/items", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetInventory_Empty(t *testing.T) {
	s := newServer(t, nil)

	rec := s.do(t, http.MethodGet, "/inventory", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestDeleteItem(t *testing.T) {
	s := newServer(t, nil)
	saved, err := s.store.Upsert(context.Background(), &models.Listing{Title: "Desk", Price: "$50"})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		rec := s.do(t, http.MethodDelete, "/items/"+saved.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"deleted"}`, rec.Body.String())
	}

	all, err := s.store.All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestPublish(t *testing.T) {
	s := newServer(t, nil)
	saved, err := s.store.Upsert(context.Background(), &models.Listing{Title: "Desk", Price: "$50"})
	require.NoError(t, err)

	rec := s.do(t, http.MethodPost, "/publish", saved)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[PublishResponse](t, rec)
	assert.Equal(t, "started", resp.Status)
	assert.Equal(t, "Automation initiated.", resp.Message)
	require.NotEmpty(t, resp.JobID)

	stored, err := s.store.Get(context.Background(), saved.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublished, stored.Status)

	require.Eventually(t, func() bool {
		job, err := s.jobs.Get(resp.JobID)
		return err == nil && job.Status == jobs.StatusCompleted
	}, 2*time.Second, 5*time.Millisecond)

	rec = s.do(t, http.MethodGet, "/jobs/"+resp.JobID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	job := decode[jobs.Job](t, rec)
	assert.Equal(t, saved.ID, job.ListingID)
	assert.Equal(t, jobs.StatusCompleted, job.Status)
	require.NotNil(t, job.Report)
	require.Len(t, job.Report.Sites, 1)
	assert.Equal(t, automation.Done, job.Report.Sites[0].Reached)
	assert.Equal(t, automation.Navigated, job.Report.Sites[0].Steps[0].State)

	rec = s.do(t, http.MethodGet, "/logs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"logs":["> Starting automation for: Desk","> Job complete: Desk"]}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]jobs.Job](t, rec), 1)
}

func TestPublish_ByIDOnly(t *testing.T) {
	s := newServer(t, nil)
	saved, err := s.store.Upsert(context.Background(), &models.Listing{Title: "Lamp", Price: "$15"})
	require.NoError(t, err)

	rec := s.do(t, http.MethodPost, "/publish", map[string]string{"id": saved.ID})
	require.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool {
		s.runner.mu.Lock()
		defer s.runner.mu.Unlock()
		return len(s.runner.listings) == 1
	}, 2*time.Second, 5*time.Millisecond)

	s.runner.mu.Lock()
	defer s.runner.mu.Unlock()
	assert.Equal(t, "Lamp", s.runner.listings[0].Title)
	assert.Equal(t, models.StatusPublished, s.runner.listings[0].Status)
}

func TestPublish_Errors(t *testing.T) {
	s := newServer(t, nil)

	rec := s.do(t, http.MethodPost, "/publish", map[string]string{"title": "Desk"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/publish", map[string]string{"id": "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLogs_NoJobs(t *testing.T) {
	s := newServer(t, nil)

	rec := s.do(t, http.MethodGet, "/logs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"logs":[]}`, rec.Body.String())
}

func TestGetJob_NotFound(t *testing.T) {
	s := newServer(t, nil)

	rec := s.do(t, http.MethodGet, "/jobs/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	t.Run("without outbox", func(t *testing.T) {
		s := newServer(t, nil)
		rec := s.do(t, http.MethodGet, "/health", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", decode[map[string]interface{}](t, rec)["status"])
	})

	t.Run("dead letters", func(t *testing.T) {
		s := newServer(t, fakeOutbox{dead: 101})
		rec := s.do(t, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "error", decode[map[string]interface{}](t, rec)["status"])
	})
}

func TestCORS(t *testing.T) {
	s := newServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/inventory", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()

	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
