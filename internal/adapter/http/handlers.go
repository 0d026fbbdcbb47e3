package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Strob0t/DealWatch/internal/port/messagequeue"
	"github.com/Strob0t/DealWatch/internal/service"
)

// healthTimeout bounds each dependency probe of /health.
const healthTimeout = 2 * time.Second

const maxRequestedBy = 100

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// Handlers holds the services behind the REST API.
type Handlers struct {
	Rules  *service.RuleService
	Deals  *service.DealService
	Alerts *service.PushAlertService
	Jobs   *service.JobService
	// Checks are reported by /health, keyed by dependency name.
	Checks map[string]HealthCheck
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health reports liveness plus the state of every registered dependency.
// Any failing check turns the response into 503.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	status := http.StatusOK

	if len(h.Checks) > 0 {
		resp.Checks = make(map[string]string, len(h.Checks))
		for name, check := range h.Checks {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			err := check(ctx)
			cancel()
			if err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	writeJSON(w, status, resp)
}

// ListDeals returns the caller's deal history, newest first.
func (h *Handlers) ListDeals(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	deals, err := h.Deals.ListByUser(r.Context(), uid, limit)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(deals))
}

// ListJobLogs returns the latest job executions.
func (h *Handlers) ListJobLogs(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUser(w, r); !ok {
		return
	}
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	logs, err := h.Jobs.RecentLogs(r.Context(), limit)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(logs))
}

type runAccepted struct {
	Status      string `json:"status"`
	RequestedBy string `json:"requested_by"`
}

// RunJob starts the deals job on behalf of the caller. It answers 202 once
// the run is requested and 409 while another run is in progress.
func (h *Handlers) RunJob(w http.ResponseWriter, r *http.Request) {
	uid, ok := currentUser(w, r)
	if !ok {
		return
	}
	h.requestRun(w, r, "user:"+strconv.FormatInt(uid, 10))
}

// HookRunJob is the signed trigger for external schedulers. The body may
// name the caller in requested_by and nothing else.
func (h *Handlers) HookRunJob(w http.ResponseWriter, r *http.Request) {
	req, ok := readStrictOptionalJSON[messagequeue.JobTriggerPayload](w, r)
	if !ok {
		return
	}
	by := req.RequestedBy
	switch {
	case by == "":
		by = "hook"
	case len(by) > maxRequestedBy:
		writeError(w, http.StatusBadRequest, "requested_by too long")
		return
	}
	h.requestRun(w, r, by)
}

func (h *Handlers) requestRun(w http.ResponseWriter, r *http.Request, by string) {
	if err := h.Jobs.RequestRun(r.Context(), by); err != nil {
		writeDomainError(w, err, "job not found")
		return
	}
	writeJSON(w, http.StatusAccepted, runAccepted{Status: "accepted", RequestedBy: by})
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
