package pipeline

import "fmt"

// maxInstructionsLen bounds user-supplied instructions.
const maxInstructionsLen = 1000

// reservedRepos are repository names the service refuses to analyze.
var reservedRepos = map[string]struct{}{
	"fastapi":       {},
	"streamlit":     {},
	"flask":         {},
	"api-analytics": {},
	"monkeytype":    {},
}

// GenerationRequest carries everything the orchestrator needs to run one
// generation. APIKey is forwarded to the engine per call and never stored;
// GitHubToken scopes the metadata fetch.
type GenerationRequest struct {
	Owner        string
	Repo         string
	Instructions string
	APIKey       string
	GitHubToken  string
}

// ValidationError reports a request rejected before any work started.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Validate rejects malformed requests synchronously, before any event is
// emitted or any backend is contacted.
func (r *GenerationRequest) Validate() error {
	if r.Owner == "" {
		return &ValidationError{Field: "username", Message: "must not be empty"}
	}
	if r.Repo == "" {
		return &ValidationError{Field: "repo", Message: "must not be empty"}
	}
	if _, ok := reservedRepos[r.Repo]; ok {
		return &ValidationError{Field: "repo", Message: "analysis of this repository is not supported"}
	}
	if len(r.Instructions) > maxInstructionsLen {
		return &ValidationError{Field: "instructions", Message: fmt.Sprintf("must be at most %d characters", maxInstructionsLen)}
	}
	return nil
}
