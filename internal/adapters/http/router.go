package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/kt-search/internal/config"
	"github.com/kirillkom/kt-search/internal/core/domain"
	"github.com/kirillkom/kt-search/internal/core/ports"
	"github.com/kirillkom/kt-search/internal/observability/metrics"
)

const (
	serviceName     = "api"
	maxBodyBytes    = 64 << 10
	healthCheckWait = 2 * time.Second
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck = func(ctx context.Context) error

// Dependencies are the inbound services the router exposes. Jobs, Logs,
// Clients, Metrics and MCP are optional; their routes answer 501 or are
// not mounted when absent.
type Dependencies struct {
	Search  ports.SearchService
	Jobs    ports.SearchJobService
	Logs    ports.SearchLogReader
	Clients ports.ClientDirectory
	Health  map[string]HealthCheck
	Metrics *metrics.HTTPServerMetrics
	MCP     http.Handler
}

type Router struct {
	cfg  config.Config
	deps Dependencies
}

func NewRouter(cfg config.Config, deps Dependencies) *Router {
	return &Router{cfg: cfg, deps: deps}
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/search", rt.search)
	api.HandleFunc("POST /v1/search/jobs", rt.submitJob)
	api.HandleFunc("GET /v1/search/jobs/{job_id}", rt.jobStatus)
	api.HandleFunc("GET /v1/search/jobs/{job_id}/result", rt.jobResult)
	api.HandleFunc("GET /v1/search/logs", rt.searchLogs)
	api.HandleFunc("GET /v1/clients", rt.clients)
	if rt.deps.MCP != nil {
		api.Handle("/mcp", rt.deps.MCP)
	}

	var guarded http.Handler = api
	if rt.cfg.APIRequestValidation {
		validator, err := newRequestValidator()
		if err != nil {
			slog.Error("openapi_validator_disabled", "error", err)
		} else {
			guarded = validator.middleware(guarded)
		}
	}
	guarded = backpressureMiddleware(guarded, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait, rt.rejected("backpressure"))
	guarded = rateLimitMiddleware(guarded, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, rt.rejected("rate_limit"))

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", rt.healthz)
	if rt.deps.Metrics != nil {
		root.Handle("GET /metrics", rt.deps.Metrics.Handler())
	}
	root.Handle("/", guarded)

	var handler http.Handler = recoverMiddleware(root)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	if rt.deps.Metrics != nil {
		handler = rt.deps.Metrics.Middleware(serviceName, handler)
	}
	return handler
}

func (rt *Router) rejected(reason string) func() {
	return func() {
		if rt.deps.Metrics != nil {
			rt.deps.Metrics.RecordRejected(serviceName, reason)
		}
	}
}

func (rt *Router) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckWait)
	defer cancel()

	checks := make(map[string]string, len(rt.deps.Health))
	healthy := true
	for name, check := range rt.deps.Health {
		if err := check(ctx); err != nil {
			healthy = false
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"status": status, "checks": checks})
}

type searchRequest struct {
	Query string `json:"query"`
}

func decodeSearchRequest(w http.ResponseWriter, r *http.Request) (searchRequest, bool) {
	var req searchRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return req, false
	}
	return req, true
}

// search always returns the SearchResponse body. The status code follows the
// typed failure so callers can branch without parsing.
func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSearchRequest(w, r)
	if !ok {
		return
	}

	resp := rt.deps.Search.Search(r.Context(), req.Query)
	code := http.StatusOK
	if !resp.Success && resp.Err != nil {
		code = mapErrorToHTTPStatus(resp.Err)
		if code == http.StatusInternalServerError || code == http.StatusNotFound {
			code = http.StatusOK
		}
	}
	writeJSON(w, code, resp)
}

func (rt *Router) submitJob(w http.ResponseWriter, r *http.Request) {
	if rt.deps.Jobs == nil {
		writeError(w, http.StatusNotImplemented, "async search is not enabled")
		return
	}
	req, ok := decodeSearchRequest(w, r)
	if !ok {
		return
	}

	job, err := rt.deps.Jobs.Submit(r.Context(), req.Query)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/search/jobs/"+job.ID)
	writeJSON(w, http.StatusAccepted, job)
}

func (rt *Router) jobStatus(w http.ResponseWriter, r *http.Request) {
	if rt.deps.Jobs == nil {
		writeError(w, http.StatusNotImplemented, "async search is not enabled")
		return
	}
	jobID := strings.TrimSpace(r.PathValue("job_id"))

	status, err := rt.deps.Jobs.Status(r.Context(), jobID)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	code := http.StatusOK
	if status == domain.JobNotFound {
		code = http.StatusNotFound
	}
	writeJSON(w, code, map[string]any{"job_id": jobID, "status": status})
}

func (rt *Router) jobResult(w http.ResponseWriter, r *http.Request) {
	if rt.deps.Jobs == nil {
		writeError(w, http.StatusNotImplemented, "async search is not enabled")
		return
	}
	jobID := strings.TrimSpace(r.PathValue("job_id"))

	resp, err := rt.deps.Jobs.Result(r.Context(), jobID)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) searchLogs(w http.ResponseWriter, r *http.Request) {
	if rt.deps.Logs == nil {
		writeError(w, http.StatusNotImplemented, "search log is not enabled")
		return
	}
	limit := rt.cfg.SearchLogsDefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := rt.deps.Logs.Recent(r.Context(), limit)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

func (rt *Router) clients(w http.ResponseWriter, r *http.Request) {
	if rt.deps.Clients == nil {
		writeError(w, http.StatusNotImplemented, "client registry is not enabled")
		return
	}
	clients, err := rt.deps.Clients.Clients(r.Context())
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": clients, "count": len(clients)})
}

func (rt *Router) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	code := mapErrorToHTTPStatus(err)
	if code >= http.StatusInternalServerError {
		slog.Error("http_request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeError(w, code, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
