package llm

import (
	"context"
	"fmt"
)

// Effort selects how much reasoning the backend is asked to spend on a call.
// It maps onto a sampling temperature; see temperatureFor.
type Effort string

const (
	EffortLow    Effort = "low"
	EffortMedium Effort = "medium"
	EffortHigh   Effort = "high"
)

// temperatureFor maps a reasoning effort onto a backend sampling temperature.
// Unrecognized values fall back to the lowest tier.
func temperatureFor(effort Effort) float32 {
	switch effort {
	case EffortLow:
		return 0.1
	case EffortMedium:
		return 0.5
	case EffortHigh:
		return 0.9
	default:
		return 0.1
	}
}

// Engine issues prompts to an LLM backend. Implementations hold no mutable
// state beyond configuration resolved at construction.
type Engine interface {
	Name() string

	// GenerateOnce blocks until the backend returns the full response text.
	GenerateOnce(ctx context.Context, systemPrompt string, payload []Section, apiKey string, effort Effort) (string, error)

	// GenerateStream returns a channel of text fragments in emission order and
	// a 1-buffered error channel that receives exactly one value (nil on clean
	// end of stream) after the fragment channel closes. Canceling ctx aborts
	// the underlying transport read; no fragment is delivered afterwards.
	GenerateStream(ctx context.Context, systemPrompt string, payload []Section, apiKey string, effort Effort) (<-chan string, <-chan error)

	Close() error
}

// BackendError reports a transport or backend failure before or instead of a
// usable response.
type BackendError struct {
	Backend string
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: unexpected status %d: %s", e.Backend, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Backend, e.Message)
}
