package handler

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
)

// HandleStream runs one generation and streams its records as server-sent
// events. Validation failures are rejected synchronously with 400; every
// later failure, including the metadata fetch, arrives as an error record on
// the stream. The stream ends after exactly one terminal record.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	in, err := decodeRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req := in.toGeneration()
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	runID := newRunID(req)
	h.trace.Append(runID, "api", "stream_start", map[string]any{
		"owner": req.Owner, "repo": req.Repo,
	})

	send := func(rec WireRecord) bool {
		raw, err := json.Marshal(rec)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", raw); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	ctx := r.Context()
	rc, err := h.provider.Fetch(ctx, req.Owner, req.Repo, req.GitHubToken)
	if err != nil {
		h.trace.Append(runID, "api", "fetch_failed", map[string]any{"error": err.Error()})
		send(WireRecord{Status: "error", Message: err.Error()})
		return
	}

	for ev := range h.svc.Run(ctx, req, rc) {
		h.tracePhase(runID, ev)
		rec := ToWire(ev)
		if !send(rec) {
			log.Printf("handler: stream write failed, abandoning run %s", runID)
			return
		}
		if IsTerminalRecord(rec) {
			h.trace.Append(runID, "api", "stream_end", map[string]any{"status": rec.Status})
			return
		}
	}
}
