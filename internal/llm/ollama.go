package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"diagramgen/internal/gateway/config"
)

// OllamaEngine calls an Ollama-compatible /api/generate endpoint. The api key
// argument of the Engine interface is accepted but unused; a local backend
// needs none.
type OllamaEngine struct {
	http    *http.Client
	baseURL string
	model   string
	rl      *rpsLimiter
}

func NewOllamaEngine(cfg config.LLMConfig) *OllamaEngine {
	return &OllamaEngine{
		http:    &http.Client{Timeout: 5 * time.Minute},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		rl:      newRPSLimiter(cfg.RPS, cfg.Burst),
	}
}

func (o *OllamaEngine) Name() string { return "Ollama:" + o.model }

func (o *OllamaEngine) Close() error {
	if o.rl != nil {
		o.rl.Stop()
	}
	return nil
}

type ollamaGenerateReq struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Temperature float32 `json:"temperature"`
	Stream      bool    `json:"stream"`
}

// ollamaLine is one self-contained record of the streaming response.
type ollamaLine struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (o *OllamaEngine) fullPrompt(systemPrompt string, payload []Section) string {
	return fmt.Sprintf("<system>\n%s\n</system>\n\n%s", systemPrompt, UserMessage(payload))
}

func (o *OllamaEngine) post(ctx context.Context, body ollamaGenerateReq) (*http.Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	if err := o.rl.Acquire(ctx); err != nil {
		return nil, err
	}
	resp, err := o.http.Do(req)
	if err != nil {
		return nil, &BackendError{Backend: "ollama", Message: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		const max = 2048
		if len(body) > max {
			body = body[:max]
		}
		return nil, &BackendError{Backend: "ollama", Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return resp, nil
}

// GenerateOnce sends a non-streaming request and returns the full response text.
func (o *OllamaEngine) GenerateOnce(ctx context.Context, systemPrompt string, payload []Section, _ string, effort Effort) (string, error) {
	resp, err := o.post(ctx, ollamaGenerateReq{
		Model:       o.model,
		Prompt:      o.fullPrompt(systemPrompt, payload),
		Temperature: temperatureFor(effort),
		Stream:      false,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out ollamaLine
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return out.Response, nil
}

// GenerateStream sends a streaming request and relays fragments as they
// arrive. Each transport line is parsed independently; malformed lines are
// logged and skipped, empty fragments are dropped.
func (o *OllamaEngine) GenerateStream(ctx context.Context, systemPrompt string, payload []Section, _ string, effort Effort) (<-chan string, <-chan error) {
	out := make(chan string)
	errCh := make(chan error, 1)

	resp, err := o.post(ctx, ollamaGenerateReq{
		Model:       o.model,
		Prompt:      o.fullPrompt(systemPrompt, payload),
		Temperature: temperatureFor(effort),
		Stream:      true,
	})
	if err != nil {
		close(out)
		errCh <- err
		close(errCh)
		return out, errCh
	}

	go func() {
		defer close(errCh)
		defer close(out)
		defer resp.Body.Close()

		malformed := 0
		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			var rec ollamaLine
			if err := json.Unmarshal([]byte(line), &rec); err != nil {
				malformed++
				log.Printf("ollama stream: skipping malformed line (%d so far): %v", malformed, err)
				continue
			}
			if rec.Response != "" {
				select {
				case out <- rec.Response:
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				}
			}
			if rec.Done {
				errCh <- nil
				return
			}
		}
		if err := sc.Err(); err != nil {
			if ctx.Err() != nil {
				errCh <- ctx.Err()
				return
			}
			errCh <- &BackendError{Backend: "ollama", Message: "read stream: " + err.Error()}
			return
		}
		errCh <- nil
	}()

	return out, errCh
}
