// Package rpc exposes the generation pipeline as a connect server stream.
package rpc

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"connectrpc.com/connect"

	"diagramgen/internal/gateway/handler"
	"diagramgen/internal/gateway/run"
	"diagramgen/internal/github"
	"diagramgen/internal/pipeline"
)

// GenerateProcedure is the connect route of the streaming endpoint.
const GenerateProcedure = "/diagram.v1.DiagramService/Generate"

// GenerateRequest mirrors the HTTP request body.
type GenerateRequest struct {
	Username     string `json:"username"`
	Repo         string `json:"repo"`
	Instructions string `json:"instructions,omitempty"`
	APIKey       string `json:"api_key,omitempty"`
	GitHubPAT    string `json:"github_pat,omitempty"`
}

// GenerateResponse is one stream element, identical in shape to the SSE and
// websocket records.
type GenerateResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Chunk   string `json:"chunk,omitempty"`
	Diagram string `json:"diagram,omitempty"`
}

// DiagramHandler streams generation records over connect.
type DiagramHandler struct {
	svc      *pipeline.Service
	provider github.Provider
	trace    run.TraceStore
}

func NewDiagramHandler(svc *pipeline.Service, provider github.Provider, trace run.TraceStore) *DiagramHandler {
	return &DiagramHandler{svc: svc, provider: provider, trace: trace}
}

// Routes returns the pattern and handler to mount on a mux.
func (h *DiagramHandler) Routes() (string, http.Handler) {
	return GenerateProcedure, connect.NewServerStreamHandler(
		GenerateProcedure,
		h.Generate,
		connect.WithCodec(jsonCodec{}),
	)
}

func (h *DiagramHandler) Generate(ctx context.Context, req *connect.Request[GenerateRequest], stream *connect.ServerStream[GenerateResponse]) error {
	gen := pipeline.GenerationRequest{
		Owner:        req.Msg.Username,
		Repo:         req.Msg.Repo,
		Instructions: req.Msg.Instructions,
		APIKey:       req.Msg.APIKey,
		GitHubToken:  req.Msg.GitHubPAT,
	}
	if err := gen.Validate(); err != nil {
		return connect.NewError(connect.CodeInvalidArgument, err)
	}

	send := func(rec handler.WireRecord) error {
		return stream.Send(&GenerateResponse{
			Status:  rec.Status,
			Message: rec.Message,
			Chunk:   rec.Chunk,
			Diagram: rec.Diagram,
		})
	}

	runID := fmt.Sprintf("%s-%s-%d", gen.Owner, gen.Repo, time.Now().UnixNano())
	h.trace.Append(runID, "rpc", "generate_start", map[string]any{
		"owner": gen.Owner, "repo": gen.Repo,
	})

	rc, err := h.provider.Fetch(ctx, gen.Owner, gen.Repo, gen.GitHubToken)
	if err != nil {
		h.trace.Append(runID, "rpc", "fetch_failed", map[string]any{"error": err.Error()})
		return send(handler.WireRecord{Status: "error", Message: err.Error()})
	}

	for ev := range h.svc.Run(ctx, gen, rc) {
		if ev.Kind == pipeline.EventPhaseBegan {
			h.trace.Append(runID, "pipeline", "phase_began", map[string]any{"phase": string(ev.Phase)})
		}
		rec := handler.ToWire(ev)
		if err := send(rec); err != nil {
			return err
		}
		if handler.IsTerminalRecord(rec) {
			h.trace.Append(runID, "rpc", "generate_end", map[string]any{"status": rec.Status})
			break
		}
	}
	return nil
}
