package handler

import (
	"fmt"
	"net/http"

	"diagramgen/internal/llm"
)

// Per-million-token prices for the hosted backend, in USD.
const (
	inputPricePerM  = 0.10
	outputPricePerM = 0.40
)

// estimatedOutputTokens covers the explanation, mapping and diagram replies.
const estimatedOutputTokens = 8000

// HandleCost estimates the cost of generating a diagram for the repository.
// The repository metadata is fetched (and cached) to size the prompt.
func (h *Handler) HandleCost(w http.ResponseWriter, r *http.Request) {
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

	if h.llmName == "ollama" {
		writeJSON(w, http.StatusOK, map[string]string{"cost": "$0.00 USD (using local LLM)"})
		return
	}

	rc, err := h.provider.Fetch(r.Context(), req.Owner, req.Repo, req.GitHubToken)
	if err != nil {
		writeError(w, statusForFetchErr(err), err.Error())
		return
	}

	// The file tree and readme enter the prompt of every phase.
	inputTokens := 3 * (llm.EstimateTokens(rc.FileTree()) + llm.EstimateTokens(rc.Readme))
	cost := float64(inputTokens)/1e6*inputPricePerM + float64(estimatedOutputTokens)/1e6*outputPricePerM
	writeJSON(w, http.StatusOK, map[string]string{"cost": fmt.Sprintf("$%.2f USD", cost)})
}
