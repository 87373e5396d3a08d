// Package run persists per-generation trace events for debugging.
package run

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"diagramgen/internal/gateway/config"
)

var runIDSanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// TraceEvent is one structured trace line of a generation run.
type TraceEvent struct {
	Timestamp string         `json:"timestamp"`
	RunID     string         `json:"run_id"`
	Source    string         `json:"source"`
	Stage     string         `json:"stage"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// TraceStore records and replays generation trace events. Append never
// returns an error: tracing must not interfere with the run itself.
type TraceStore interface {
	Append(runID, source, stage string, fields map[string]any)
	Read(runID string) ([]TraceEvent, error)
}

// NewTraceStore selects the backend: Postgres when a DSN is configured,
// JSONL files otherwise.
func NewTraceStore(cfg config.TraceConfig) TraceStore {
	if strings.TrimSpace(cfg.PostgresDSN) != "" {
		store, err := newPostgresTraceStore(cfg.PostgresDSN)
		if err != nil {
			log.Printf("run: postgres trace store unavailable, falling back to files: %v", err)
		} else {
			return store
		}
	}
	return NewFileTraceStore(cfg.Dir)
}

// FileTraceStore appends trace events to one JSONL file per run.
type FileTraceStore struct {
	dir string
	mu  sync.Mutex
}

func defaultTraceDir() string {
	return filepath.Join("tmp", "run_logs")
}

func NewFileTraceStore(dir string) *FileTraceStore {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		trimmed = defaultTraceDir()
	}
	_ = os.MkdirAll(trimmed, 0o755)
	return &FileTraceStore{dir: trimmed}
}

func sanitizeRunID(runID string) string {
	id := strings.TrimSpace(runID)
	if id == "" {
		return "unknown"
	}
	id = runIDSanitizer.ReplaceAllString(id, "_")
	if id == "" {
		return "unknown"
	}
	return id
}

func (s *FileTraceStore) filePath(runID string) string {
	return filepath.Join(s.dir, sanitizeRunID(runID)+".jsonl")
}

func newTraceEvent(runID, source, stage string, fields map[string]any) TraceEvent {
	ev := TraceEvent{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		RunID:     strings.TrimSpace(runID),
		Source:    strings.TrimSpace(source),
		Stage:     strings.TrimSpace(stage),
	}
	if len(fields) > 0 {
		ev.Fields = fields
	}
	return ev
}

// Append writes one trace line for the run.
func (s *FileTraceStore) Append(runID, source, stage string, fields map[string]any) {
	if s == nil || strings.TrimSpace(runID) == "" {
		return
	}
	raw, err := json.Marshal(newTraceEvent(runID, source, stage, fields))
	if err != nil {
		return
	}
	raw = append(raw, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_ = os.MkdirAll(s.dir, 0o755)
	f, err := os.OpenFile(s.filePath(runID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.Write(raw)
}

// Read returns all persisted trace events for a run, oldest first.
func (s *FileTraceStore) Read(runID string) ([]TraceEvent, error) {
	if s == nil {
		return nil, nil
	}
	f, err := os.Open(s.filePath(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return []TraceEvent{}, nil
		}
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	defer f.Close()

	out := make([]TraceEvent, 0, 64)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var ev TraceEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan trace file: %w", err)
	}
	return out, nil
}
