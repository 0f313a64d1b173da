package handlers

import (
	"database/sql"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/3leaps/batchlog/internal/errors"
	"github.com/3leaps/batchlog/pkg/event"
	"github.com/3leaps/batchlog/pkg/jobarchive"
	"github.com/3leaps/batchlog/pkg/jobid"
	"github.com/3leaps/batchlog/pkg/jobstate"
	"github.com/3leaps/batchlog/pkg/match"
	"github.com/3leaps/batchlog/pkg/reason"
	"github.com/3leaps/batchlog/pkg/scheduler"
)

const (
	defaultJobLimit = 1000
	maxJobLimit     = 10000
)

// API serves the job, cluster and archive endpoints.
type API struct {
	sched   *scheduler.Scheduler
	archive *sql.DB
}

// NewAPI creates the query API. archive may be nil.
func NewAPI(sched *scheduler.Scheduler, archive *sql.DB) *API {
	return &API{sched: sched, archive: archive}
}

// JobView is a job record with its reasons resolved against the catalog.
type JobView struct {
	*jobstate.JobRecord
	Source        string             `json:"source"`
	PendingReason *ReasonView        `json:"pending_reason,omitempty"`
	SuspendReason *ReasonView        `json:"suspend_reason,omitempty"`
	Exit          string             `json:"exit,omitempty"`
	Term          *reason.TermReason `json:"term,omitempty"`
}

// ReasonView is a resolved reason code.
type ReasonView struct {
	reason.Descriptor
	Subreasons []reason.Subreason `json:"subreasons,omitempty"`
}

// JobsResponse is the body of GET /jobs.
type JobsResponse struct {
	Position uint64                `json:"position"`
	Filter   string                `json:"filter"`
	Count    int                   `json:"count"`
	Jobs     []*jobstate.JobRecord `json:"jobs"`
}

func newJobView(rec *jobstate.JobRecord, source string) JobView {
	v := JobView{JobRecord: rec, Source: source}
	if rec.PendReason != nil {
		v.PendingReason = describe(*rec.PendReason, reason.Pending)
	}
	if rec.SuspReason != nil {
		v.SuspendReason = describe(*rec.SuspReason, reason.Suspending)
	}
	if rec.ExitInfo != nil {
		v.Exit = rec.ExitInfo.String()
	}
	if rec.TermInfo != 0 {
		if t, err := reason.LookupTerm(int(rec.TermInfo)); err == nil {
			v.Term = &t
		}
	}
	return v
}

func describe(r jobstate.Reason, kind reason.Kind) *ReasonView {
	d, subs, err := r.Describe(kind)
	if err != nil {
		return &ReasonView{Descriptor: reason.Descriptor{Code: int(r.Code), AppliesTo: kind, Text: err.Error()}}
	}
	return &ReasonView{Descriptor: d, Subreasons: subs}
}

// ListJobs serves GET /jobs. Query parameters mirror match.FilterConfig.
func (a *API) ListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cfg := filterConfigFromQuery(q)
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	filter, err := match.NewFilterFromConfig(cfg)
	if err != nil {
		respondWithError(w, r, apperrors.NewBadRequest(err.Error(), err))
		return
	}

	var m scheduler.JobMatcher
	if filter != nil {
		m = filter
	}
	jobs := a.sched.Jobs(m, limit)
	if jobs == nil {
		jobs = []*jobstate.JobRecord{}
	}
	writeJSON(w, http.StatusOK, JobsResponse{
		Position: uint64(a.sched.Position()),
		Filter:   filter.String(),
		Count:    len(jobs),
		Jobs:     jobs,
	})
}

// GetJob serves GET /jobs/{id}. Jobs no longer live are looked up in the
// archive; the most recent lineage is returned.
func (a *API) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	if rec, ok := a.sched.Job(id); ok {
		writeJSON(w, http.StatusOK, newJobView(rec, "live"))
		return
	}

	if a.archive != nil {
		archived, err := jobarchive.GetArchivedJobs(r.Context(), a.archive, id)
		if err != nil {
			respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "archive lookup failed"))
			return
		}
		if len(archived) > 0 {
			writeJSON(w, http.StatusOK, newJobView(archived[len(archived)-1].Record, "archive"))
			return
		}
	}
	respondWithError(w, r, apperrors.NewNotFound(fmt.Sprintf("job %s not found", id)))
}

// ListArchivedJobs serves GET /archive/jobs.
func (a *API) ListArchivedJobs(w http.ResponseWriter, r *http.Request) {
	if a.archive == nil {
		respondWithError(w, r, apperrors.NewServiceUnavailable("job archive is not configured", nil))
		return
	}
	q := r.URL.Query()
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	f := jobarchive.Filter{Queue: q.Get("queue"), User: q.Get("user"), Limit: limit}
	if s := q.Get("status"); s != "" {
		status, ok := event.ParseStatus(strings.ToUpper(s))
		if !ok {
			respondWithError(w, r, apperrors.NewBadRequest("invalid status "+s, match.ErrInvalidStatus))
			return
		}
		f.Status = status
	}
	if s := q.Get("ended_after"); s != "" {
		t, err := match.ParseDate(s)
		if err != nil {
			respondWithError(w, r, apperrors.NewBadRequest("ended_after: "+err.Error(), err))
			return
		}
		f.EndedAfter = t
	}
	if s := q.Get("ended_before"); s != "" {
		t, err := match.ParseDate(s)
		if err != nil {
			respondWithError(w, r, apperrors.NewBadRequest("ended_before: "+err.Error(), err))
			return
		}
		f.EndedBefore = t
	}

	jobs, err := jobarchive.QueryArchivedJobs(r.Context(), a.archive, f)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "archive query failed"))
		return
	}
	out := make([]JobView, len(jobs))
	for i, j := range jobs {
		out[i] = newJobView(j.Record, "archive")
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"count": len(out), "jobs": out})
}

// GetCluster serves GET /cluster.
func (a *API) GetCluster(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.sched.Cluster())
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Position  uint64         `json:"position"`
	Jobs      int            `json:"jobs"`
	ByStatus  map[string]int `json:"by_status"`
	NextJobID int32          `json:"next_job_id,omitempty"`
}

// GetStatus serves GET /status.
func (a *API) GetStatus(w http.ResponseWriter, r *http.Request) {
	reg := a.sched.Registry()
	counts := reg.CountByStatus()
	by := make(map[string]int, len(counts))
	for s, n := range counts {
		by[s.String()] = n
	}
	resp := StatusResponse{
		Position: uint64(a.sched.Position()),
		Jobs:     reg.Len(),
		ByStatus: by,
	}
	if next, err := a.sched.NextJobID(); err == nil {
		resp.NextJobID = next
	}
	writeJSON(w, http.StatusOK, resp)
}

func filterConfigFromQuery(q url.Values) *match.FilterConfig {
	get := q.Get
	list := func(key string) []string {
		var out []string
		for _, v := range q[key] {
			for _, part := range strings.Split(v, ",") {
				if part = strings.TrimSpace(part); part != "" {
					out = append(out, part)
				}
			}
		}
		return out
	}

	cfg := &match.FilterConfig{
		Queue:     list("queue"),
		User:      list("user"),
		Host:      list("host"),
		Group:     list("group"),
		Status:    list("status"),
		NameRegex: get("name"),
	}
	if after, before := get("submitted_after"), get("submitted_before"); after != "" || before != "" {
		cfg.Submitted = &match.DateFilterConfig{After: after, Before: before}
	}
	if after, before := get("ended_after"), get("ended_before"); after != "" || before != "" {
		cfg.Ended = &match.DateFilterConfig{After: after, Before: before}
	}
	if lo, hi := get("mem_min"), get("mem_max"); lo != "" || hi != "" {
		cfg.Mem = &match.SizeFilterConfig{Min: lo, Max: hi}
	}
	return cfg
}

func parseLimit(s string) (int, error) {
	if s == "" {
		return defaultJobLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, apperrors.NewBadRequest("limit must be a positive integer", err)
	}
	if n > maxJobLimit {
		n = maxJobLimit
	}
	return n, nil
}
