// Package handler exposes the diagram generation API over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"diagramgen/internal/gateway/run"
	"diagramgen/internal/github"
	"diagramgen/internal/pipeline"
)

// Handler serves the generation endpoints. One instance is shared by all
// transports.
type Handler struct {
	svc      *pipeline.Service
	provider github.Provider
	trace    run.TraceStore
	llmName  string
}

func New(svc *pipeline.Service, provider github.Provider, trace run.TraceStore, llmName string) *Handler {
	return &Handler{svc: svc, provider: provider, trace: trace, llmName: llmName}
}

// apiRequest is the JSON body shared by the cost, SSE and websocket
// endpoints.
type apiRequest struct {
	Username     string `json:"username"`
	Repo         string `json:"repo"`
	Instructions string `json:"instructions,omitempty"`
	APIKey       string `json:"api_key,omitempty"`
	GitHubPAT    string `json:"github_pat,omitempty"`
}

func (in *apiRequest) toGeneration() pipeline.GenerationRequest {
	return pipeline.GenerationRequest{
		Owner:        strings.TrimSpace(in.Username),
		Repo:         strings.TrimSpace(in.Repo),
		Instructions: strings.TrimSpace(in.Instructions),
		APIKey:       strings.TrimSpace(in.APIKey),
		GitHubToken:  strings.TrimSpace(in.GitHubPAT),
	}
}

func decodeRequest(r *http.Request) (*apiRequest, error) {
	var in apiRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		return nil, errors.New("invalid json body")
	}
	return &in, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusForFetchErr maps metadata fetch failures onto HTTP statuses for the
// synchronous endpoints.
func statusForFetchErr(err error) int {
	switch {
	case errors.Is(err, github.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, github.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func newRunID(req pipeline.GenerationRequest) string {
	return fmt.Sprintf("%s-%s-%d", req.Owner, req.Repo, time.Now().UnixNano())
}

// tracePhase records phase boundaries of the run.
func (h *Handler) tracePhase(runID string, ev pipeline.Event) {
	if ev.Kind == pipeline.EventPhaseBegan {
		h.trace.Append(runID, "pipeline", "phase_began", map[string]any{"phase": string(ev.Phase)})
	}
}

// WireRecord is the JSON shape of one stream element, shared by the SSE,
// websocket and RPC transports.
type WireRecord struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Chunk   string `json:"chunk,omitempty"`
	Diagram string `json:"diagram,omitempty"`
}

const (
	msgStarted     = "Starting generation process..."
	msgExplanation = "Analyzing repository structure..."
	msgMapping     = "Creating component mapping..."
	msgDiagram     = "Generating diagram..."
)

// ToWire converts one pipeline event into its wire representation.
func ToWire(ev pipeline.Event) WireRecord {
	switch ev.Kind {
	case pipeline.EventStarted:
		return WireRecord{Status: "started", Message: msgStarted}
	case pipeline.EventPhaseBegan:
		switch ev.Phase {
		case pipeline.PhaseExplanation:
			return WireRecord{Status: "explanation_sent", Message: msgExplanation}
		case pipeline.PhaseMapping:
			return WireRecord{Status: "mapping", Message: msgMapping}
		default:
			return WireRecord{Status: "diagram", Message: msgDiagram}
		}
	case pipeline.EventPhaseChunk:
		return WireRecord{Status: string(ev.Phase) + "_chunk", Chunk: ev.Chunk}
	case pipeline.EventCompleted:
		return WireRecord{Status: "complete", Diagram: ev.Diagram}
	default:
		return WireRecord{Status: "error", Message: ev.Message}
	}
}

// IsTerminalRecord reports whether a record closes the stream.
func IsTerminalRecord(rec WireRecord) bool {
	return rec.Status == "complete" || rec.Status == "error"
}
