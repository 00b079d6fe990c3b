package httpadapter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mhduong/docsorter/internal/core/domain"
)

const streamPollInterval = time.Second

// streamRun follows a run over server-sent events, polling the persisted
// status at a fixed cadence. The stream closes server-side once a terminal
// state is delivered or the client disconnects.
func (rt *Router) streamRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")

	rec, err := rt.runs.GetStatus(r.Context(), runID)
	if err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if rt.metrics != nil {
		rt.metrics.StreamOpened()
		defer rt.metrics.StreamClosed()
	}

	if done := writeStatusEvent(w, flusher, rec); done {
		return
	}

	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			rec, err := rt.runs.GetStatus(r.Context(), runID)
			if err != nil {
				writeSSE(w, flusher, "error", map[string]string{"error": err.Error()})
				return
			}
			if done := writeStatusEvent(w, flusher, rec); done {
				return
			}
		}
	}
}

// writeStatusEvent reports true when the delivered state is terminal.
func writeStatusEvent(w http.ResponseWriter, flusher http.Flusher, rec *domain.RunRecord) bool {
	writeSSE(w, flusher, "status", rec)
	return rec.State.Terminal()
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}
