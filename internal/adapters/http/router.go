// Package httpadapter exposes the run lifecycle over HTTP: start a dry or
// real run, poll status, list runs, fetch signed artifact URLs, and follow
// a run via server-sent events.
package httpadapter

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mhduong/docsorter/internal/core/domain"
	"github.com/mhduong/docsorter/internal/core/ports"
	"github.com/mhduong/docsorter/internal/observability/metrics"
)

const defaultArtifactTTL = 10 * time.Minute

type Router struct {
	runs    ports.RunService
	keys    ports.AccessKeys
	metrics *metrics.HTTPServerMetrics
	service string
}

func NewRouter(runs ports.RunService, keys ports.AccessKeys, m *metrics.HTTPServerMetrics, service string) *Router {
	return &Router{
		runs:    runs,
		keys:    keys,
		metrics: m,
		service: service,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.Handle("POST /v1/runs/dry-run", rt.authenticated(rt.startDryRun))
	mux.Handle("POST /v1/runs", rt.authenticated(rt.startRun))
	mux.Handle("GET /v1/runs", rt.authenticated(rt.listRuns))
	mux.Handle("GET /v1/runs/{run_id}", rt.authenticated(rt.getRun))
	mux.Handle("GET /v1/runs/{run_id}/artifacts", rt.authenticated(rt.artifactURLs))
	mux.Handle("GET /v1/runs/{run_id}/stream", rt.authenticated(rt.streamRun))

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.service, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type startRunRequest struct {
	Email     string `json:"email"`
	ProfileID string `json:"profile_id"`
}

func (rt *Router) runRequest(r *http.Request) (ports.RunRequest, error) {
	var body startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return ports.RunRequest{}, domain.WrapError(domain.ErrInvalidInput, "decode run request", err)
	}
	if strings.TrimSpace(body.Email) == "" {
		return ports.RunRequest{}, domain.WrapError(domain.ErrInvalidInput, "validate run request", errEmailRequired)
	}
	return ports.RunRequest{
		Email:         body.Email,
		ProfileID:     body.ProfileID,
		OwnerHash:     domain.OwnerHash(body.Email),
		AccessKeyHash: accessKeyHashFromContext(r.Context()),
	}, nil
}

func (rt *Router) startDryRun(w http.ResponseWriter, r *http.Request) {
	req, err := rt.runRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := rt.runs.StartDryRun(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordRunStarted(rt.service, string(domain.ModeDry))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":  result.RunID,
		"summary": result.Summary,
	})
}

func (rt *Router) startRun(w http.ResponseWriter, r *http.Request) {
	req, err := rt.runRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := rt.runs.StartRun(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordRunStarted(rt.service, string(domain.ModeReal))
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id": result.RunID,
		"state":  domain.RunRunning,
	})
}

func (rt *Router) getRun(w http.ResponseWriter, r *http.Request) {
	rec, err := rt.runs.GetStatus(r.Context(), r.PathValue("run_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (rt *Router) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}

	records, err := rt.runs.ListRuns(r.Context(), accessKeyHashFromContext(r.Context()), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": records})
}

func (rt *Router) artifactURLs(w http.ResponseWriter, r *http.Request) {
	ttl := defaultArtifactTTL
	if raw := r.URL.Query().Get("ttl_seconds"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "ttl_seconds must be a positive integer"})
			return
		}
		ttl = time.Duration(parsed) * time.Second
	}

	urls, err := rt.runs.ArtifactURLs(r.Context(), r.PathValue("run_id"), ttl, accessKeyHashFromContext(r.Context()))
	if rt.metrics != nil {
		rt.metrics.RecordPresign(rt.service, err)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, urls)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}
