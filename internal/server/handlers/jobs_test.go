package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/3leaps/batchlog/internal/errors"
	"github.com/3leaps/batchlog/pkg/event"
	"github.com/3leaps/batchlog/pkg/eventlog"
	"github.com/3leaps/batchlog/pkg/jobarchive"
	"github.com/3leaps/batchlog/pkg/jobid"
	"github.com/3leaps/batchlog/pkg/scheduler"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T) *scheduler.Scheduler {
	t.Helper()
	log, err := eventlog.Open(t.TempDir(), eventlog.Options{Now: func() time.Time { return t0 }})
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	s, err := scheduler.New(scheduler.Options{Log: log, Now: func() time.Time { return t0 }})
	require.NoError(t, err)

	submit := func(rec *event.Record) {
		_, _, err := s.Submit(context.Background(), rec)
		require.NoError(t, err)
	}
	for i, q := range []string{"normal", "short", "normal"} {
		submit(event.WithPayload(event.JobNew, t0, &event.JobNewLog{
			JobID:    int32(i + 1),
			Queue:    q,
			UserName: "alice",
			JobName:  "build",
			Command:  "make",
		}))
	}
	submit(event.WithPayload(event.JobStart, t0.Add(time.Second), &event.JobStartLog{
		JobID:     2,
		Status:    event.StatusRunning,
		ExecHosts: []string{"node01"},
	}))
	return s
}

func newTestRouter(api *API) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/jobs", api.ListJobs)
	r.Get("/jobs/{id}", api.GetJob)
	r.Get("/archive/jobs", api.ListArchivedJobs)
	r.Get("/cluster", api.GetCluster)
	r.Get("/status", api.GetStatus)
	r.Get("/reasons/bands", ListBands)
	r.Get("/reasons/{kind}/{code}", GetReason)
	return r
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestListJobs(t *testing.T) {
	router := newTestRouter(NewAPI(newTestScheduler(t), nil))

	tests := []struct {
		name    string
		path    string
		wantIDs []int32
	}{
		{name: "all", path: "/jobs", wantIDs: []int32{1, 2, 3}},
		{name: "by queue", path: "/jobs?queue=normal", wantIDs: []int32{1, 3}},
		{name: "by status", path: "/jobs?status=RUN", wantIDs: []int32{2}},
		{name: "status list", path: "/jobs?status=PEND,RUN", wantIDs: []int32{1, 2, 3}},
		{name: "by host glob", path: "/jobs?host=node*", wantIDs: []int32{2}},
		{name: "limit", path: "/jobs?limit=2", wantIDs: []int32{1, 2}},
		{name: "no match", path: "/jobs?user=bob", wantIDs: []int32{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, router, tt.path)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var resp struct {
				Count int `json:"count"`
				Jobs  []struct {
					ID jobid.ID `json:"id"`
				} `json:"jobs"`
			}
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			ids := make([]int32, 0, len(resp.Jobs))
			for _, j := range resp.Jobs {
				ids = append(ids, j.ID.Base)
			}
			assert.Equal(t, tt.wantIDs, ids)
			assert.Equal(t, len(tt.wantIDs), resp.Count)
		})
	}
}

func TestListJobs_BadInput(t *testing.T) {
	router := newTestRouter(NewAPI(newTestScheduler(t), nil))

	for _, path := range []string{
		"/jobs?status=SLEEPING",
		"/jobs?submitted_after=not-a-date",
		"/jobs?name=[",
		"/jobs?limit=0",
		"/jobs?mem_min=lots",
	} {
		t.Run(path, func(t *testing.T) {
			rec := get(t, router, path)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var body apperrors.HTTPErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, apperrors.CodeBadRequest, body.Error.Code)
		})
	}
}

func TestGetJob(t *testing.T) {
	router := newTestRouter(NewAPI(newTestScheduler(t), nil))

	rec := get(t, router, "/jobs/2")
	require.Equal(t, http.StatusOK, rec.Code)
	var view struct {
		ID     jobid.ID     `json:"id"`
		Status event.Status `json:"status"`
		Source string       `json:"source"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	assert.Equal(t, jobid.New(2, 0), view.ID)
	assert.Equal(t, event.StatusRunning, view.Status)
	assert.Equal(t, "live", view.Source)

	rec = get(t, router, "/jobs/99")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, router, "/jobs/abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetJob_FromArchive(t *testing.T) {
	ctx := context.Background()
	db, err := jobarchive.Open(ctx, jobarchive.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, jobarchive.Migrate(ctx, db))

	s := newTestScheduler(t)
	rec, ok := s.Job(jobid.New(1, 0))
	require.True(t, ok)
	rec.ID = jobid.New(40, 0)
	rec.Status = event.StatusExited
	end := t0.Add(time.Minute)
	rec.EndTime = &end
	require.NoError(t, jobarchive.ArchiveJob(ctx, db, rec, 12, t0))

	router := newTestRouter(NewAPI(s, db))

	resp := get(t, router, "/jobs/40")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var view struct {
		Source string       `json:"source"`
		Status event.Status `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, "archive", view.Source)
	assert.Equal(t, event.StatusExited, view.Status)

	resp = get(t, router, "/archive/jobs?status=EXIT")
	require.Equal(t, http.StatusOK, resp.Code)
	var list struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Equal(t, 1, list.Count)
}

func TestListArchivedJobs_NotConfigured(t *testing.T) {
	router := newTestRouter(NewAPI(newTestScheduler(t), nil))
	rec := get(t, router, "/archive/jobs")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetStatus(t *testing.T) {
	router := newTestRouter(NewAPI(newTestScheduler(t), nil))

	rec := get(t, router, "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp StatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, uint64(4), resp.Position)
	assert.Equal(t, 3, resp.Jobs)
	assert.Equal(t, map[string]int{"PEND": 2, "RUN": 1}, resp.ByStatus)
	assert.Equal(t, int32(4), resp.NextJobID)
}

func TestGetCluster(t *testing.T) {
	router := newTestRouter(NewAPI(newTestScheduler(t), nil))

	rec := get(t, router, "/cluster")
	require.Equal(t, http.StatusOK, rec.Code)
	var state scheduler.ClusterState
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&state))
	assert.Equal(t, int32(3), state.LastJobID)
}

func TestGetReason(t *testing.T) {
	router := newTestRouter(nil)

	tests := []struct {
		path string
		want int
	}{
		{"/reasons/bands", http.StatusOK},
		{"/reasons/exit/0", http.StatusOK},
		{"/reasons/pending/999999", http.StatusNotFound},
		{"/reasons/pending/x", http.StatusBadRequest},
		{"/reasons/nonsense/1", http.StatusBadRequest},
		{"/reasons/exit/123456789", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, get(t, router, tt.path).Code)
		})
	}
}
