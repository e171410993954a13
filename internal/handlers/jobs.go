package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/darbyjahn/smallphot0-backend/internal/journal"
)

const (
	defaultJobLimit = 50
	maxJobLimit     = 500
)

// ListJobs returns recent transcode jobs, newest first, with the number of
// journal rows in each state.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := defaultJobLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = min(v, maxJobLimit)
	}

	jobs := []journal.Job{}
	counts := map[journal.State]int{}
	if h.jobs != nil {
		recent, err := h.jobs.Recent(r.Context(), limit)
		if err != nil {
			writeError(w, "list jobs", err)
			return
		}
		jobs = append(jobs, recent...)

		if counts, err = h.jobs.Counts(r.Context()); err != nil {
			writeError(w, "count jobs", err)
			return
		}
	}

	pending := 0
	if h.queue != nil {
		pending = h.queue.Pending()
	}

	w.Header().Set("Cache-Control", "no-cache")
	writeJSONStatus(w, http.StatusOK, map[string]interface{}{
		"pending": pending,
		"counts":  counts,
		"jobs":    jobs,
	})
}

// GetJob returns one transcode job by journal id.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["job"], 10, 64)
	if err != nil || h.jobs == nil {
		writeJSONError(w, "Job not found", http.StatusNotFound)
		return
	}

	job, err := h.jobs.Get(r.Context(), id)
	if err != nil {
		writeError(w, "get job", err)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	writeJSONStatus(w, http.StatusOK, job)
}
