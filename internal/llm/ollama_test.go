package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"diagramgen/internal/gateway/config"
)

func newTestOllama(t *testing.T, h http.HandlerFunc) *OllamaEngine {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	engine := NewOllamaEngine(config.LLMConfig{BaseURL: srv.URL, Model: "test-model"})
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

func drainStream(t *testing.T, chunks <-chan string, errs <-chan error) (string, error) {
	t.Helper()
	var b strings.Builder
	for c := range chunks {
		b.WriteString(c)
	}
	return b.String(), <-errs
}

func TestOllamaGenerateStream_RelaysFragments(t *testing.T) {
	engine := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %q, want /api/generate", r.URL.Path)
		}
		var req ollamaGenerateReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "test-model" || !req.Stream {
			t.Errorf("request = %+v, want streaming test-model", req)
		}
		if !strings.HasPrefix(req.Prompt, "<system>\n") {
			t.Errorf("prompt missing system block: %q", req.Prompt)
		}
		w.Write([]byte(`{"response":"Hello ","done":false}` + "\n"))
		w.Write([]byte("this line is not json\n"))
		w.Write([]byte(`{"response":"","done":false}` + "\n"))
		w.Write([]byte(`{"response":"world","done":false}` + "\n"))
		w.Write([]byte(`{"response":"","done":true}` + "\n"))
	})

	chunks, errs := engine.GenerateStream(context.Background(), "sys", []Section{{Label: "readme", Text: "hi"}}, "", EffortMedium)
	got, err := drainStream(t, chunks, errs)
	if err != nil {
		t.Fatalf("stream error = %v", err)
	}
	if got != "Hello world" {
		t.Fatalf("accumulated = %q, want %q", got, "Hello world")
	}
}

func TestOllamaGenerateStream_BackendErrorOnBadStatus(t *testing.T) {
	engine := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	})

	chunks, errs := engine.GenerateStream(context.Background(), "sys", nil, "", EffortLow)
	got, err := drainStream(t, chunks, errs)
	if got != "" {
		t.Fatalf("fragments on error = %q, want none", got)
	}
	var be *BackendError
	if !errors.As(err, &be) {
		t.Fatalf("error type %T, want *BackendError", err)
	}
	if be.Status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", be.Status)
	}
}

func TestOllamaGenerateStream_CancelAbortsRead(t *testing.T) {
	release := make(chan struct{})
	engine := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":"first","done":false}` + "\n"))
		w.(http.Flusher).Flush()
		<-release
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	chunks, errs := engine.GenerateStream(ctx, "sys", nil, "", EffortLow)

	if got := <-chunks; got != "first" {
		t.Fatalf("first fragment = %q", got)
	}
	cancel()

	for range chunks {
	}
	if err := <-errs; !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestOllamaGenerateOnce_ReturnsFullResponse(t *testing.T) {
	engine := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		var req ollamaGenerateReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Stream {
			t.Errorf("GenerateOnce must not request streaming")
		}
		json.NewEncoder(w).Encode(ollamaLine{Response: "the whole answer", Done: true})
	})

	got, err := engine.GenerateOnce(context.Background(), "sys", nil, "", EffortHigh)
	if err != nil {
		t.Fatalf("GenerateOnce() error = %v", err)
	}
	if got != "the whole answer" {
		t.Fatalf("GenerateOnce() = %q", got)
	}
}

func TestTemperatureFor(t *testing.T) {
	cases := []struct {
		effort Effort
		want   float32
	}{
		{EffortLow, 0.1},
		{EffortMedium, 0.5},
		{EffortHigh, 0.9},
		{Effort("bogus"), 0.1},
		{Effort(""), 0.1},
	}
	for _, tc := range cases {
		if got := temperatureFor(tc.effort); got != tc.want {
			t.Fatalf("temperatureFor(%q) = %v, want %v", tc.effort, got, tc.want)
		}
	}
}
