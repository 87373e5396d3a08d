package llm

import (
	"context"

	genai "google.golang.org/genai"

	"diagramgen/internal/gateway/config"
)

// GeminiEngine is a thin wrapper around the official genai client. The API
// key is resolved by the client from the environment at construction; the
// per-request credential argument is ignored.
type GeminiEngine struct {
	cli   *genai.Client
	model string
	rl    *rpsLimiter
}

func NewGeminiEngine(ctx context.Context, cfg config.LLMConfig) (*GeminiEngine, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &GeminiEngine{cli: cli, model: cfg.Model, rl: newRPSLimiter(cfg.RPS, cfg.Burst)}, nil
}

func (g *GeminiEngine) Name() string { return "Gemini:" + g.model }

func (g *GeminiEngine) Close() error {
	if g.rl != nil {
		g.rl.Stop()
	}
	return nil
}

func (g *GeminiEngine) generateConfig(systemPrompt string, effort Effort) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(temperatureFor(effort)),
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}},
	}
}

func (g *GeminiEngine) GenerateOnce(ctx context.Context, systemPrompt string, payload []Section, _ string, effort Effort) (string, error) {
	if err := g.rl.Acquire(ctx); err != nil {
		return "", err
	}
	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: UserMessage(payload)}}}},
		g.generateConfig(systemPrompt, effort),
	)
	if err != nil {
		return "", &BackendError{Backend: "gemini", Message: err.Error()}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", &BackendError{Backend: "gemini", Message: "empty response"}
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}

func (g *GeminiEngine) GenerateStream(ctx context.Context, systemPrompt string, payload []Section, _ string, effort Effort) (<-chan string, <-chan error) {
	out := make(chan string)
	errCh := make(chan error, 1)

	if err := g.rl.Acquire(ctx); err != nil {
		close(out)
		errCh <- err
		close(errCh)
		return out, errCh
	}

	go func() {
		defer close(errCh)
		defer close(out)

		for resp, err := range g.cli.Models.GenerateContentStream(ctx, g.model,
			[]*genai.Content{{Parts: []*genai.Part{{Text: UserMessage(payload)}}}},
			g.generateConfig(systemPrompt, effort),
		) {
			if err != nil {
				errCh <- &BackendError{Backend: "gemini", Message: err.Error()}
				return
			}
			if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
				continue
			}
			for _, part := range resp.Candidates[0].Content.Parts {
				if part == nil || part.Text == "" {
					continue
				}
				select {
				case out <- part.Text:
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				}
			}
		}
		errCh <- nil
	}()

	return out, errCh
}
