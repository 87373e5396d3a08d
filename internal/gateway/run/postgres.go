package run

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const traceSchema = `
CREATE TABLE IF NOT EXISTS run_trace_events (
	id         BIGSERIAL PRIMARY KEY,
	run_id     TEXT NOT NULL,
	source     TEXT NOT NULL,
	stage      TEXT NOT NULL,
	fields     JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS run_trace_events_run_id_idx ON run_trace_events (run_id, id);
`

// PostgresTraceStore persists trace events in Postgres.
type PostgresTraceStore struct {
	db *sql.DB
}

func newPostgresTraceStore(dsn string) (*PostgresTraceStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if _, err := db.Exec(traceSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure trace schema: %w", err)
	}
	return &PostgresTraceStore{db: db}, nil
}

func (s *PostgresTraceStore) Append(runID, source, stage string, fields map[string]any) {
	if s == nil || strings.TrimSpace(runID) == "" {
		return
	}
	var raw []byte
	if len(fields) > 0 {
		var err error
		raw, err = json.Marshal(fields)
		if err != nil {
			raw = nil
		}
	}
	_, err := s.db.Exec(
		`INSERT INTO run_trace_events (run_id, source, stage, fields) VALUES ($1, $2, $3, $4)`,
		strings.TrimSpace(runID), strings.TrimSpace(source), strings.TrimSpace(stage), raw,
	)
	if err != nil {
		log.Printf("run: append trace event: %v", err)
	}
}

func (s *PostgresTraceStore) Read(runID string) ([]TraceEvent, error) {
	rows, err := s.db.Query(
		`SELECT run_id, source, stage, fields, created_at FROM run_trace_events WHERE run_id = $1 ORDER BY id`,
		strings.TrimSpace(runID),
	)
	if err != nil {
		return nil, fmt.Errorf("query trace events: %w", err)
	}
	defer rows.Close()

	out := make([]TraceEvent, 0, 64)
	for rows.Next() {
		var ev TraceEvent
		var raw []byte
		var createdAt time.Time
		if err := rows.Scan(&ev.RunID, &ev.Source, &ev.Stage, &raw, &createdAt); err != nil {
			return nil, fmt.Errorf("scan trace event: %w", err)
		}
		ev.Timestamp = createdAt.UTC().Format(time.RFC3339Nano)
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &ev.Fields)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trace events: %w", err)
	}
	return out, nil
}

func (s *PostgresTraceStore) Close() error { return s.db.Close() }
