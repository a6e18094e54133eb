// Package audit provides optional PostgreSQL persistence for tool-call
// records. It stores invocation metadata and an argument digest, not
// argument contents or conversation state.
package audit

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	_ "github.com/lib/pq"
)

// Store wraps the underlying *sql.DB and provides typed query methods.
type Store struct {
	conn *sql.DB
}

// Open connects to PostgreSQL, verifies connectivity, and applies
// pending migrations.
func Open(databaseURL string) (*Store, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("audit db open: %w", err)
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("audit db ping: %w", err)
	}
	if err := applyMigrations(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("audit db migrate: %w", err)
	}
	return &Store{conn: conn}, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

// Entry is one recorded tool invocation.
type Entry struct {
	CallID     string        `json:"call_id"`
	TraceID    string        `json:"trace_id"`
	ToolName   string        `json:"tool_name"`
	ArgsDigest string        `json:"args_digest"`
	Status     string        `json:"status"`
	ErrorText  string        `json:"error_text,omitempty"`
	Duration   time.Duration `json:"duration"`
	CreatedAt  time.Time     `json:"created_at"`
}

func (s *Store) Record(ctx context.Context, e *Entry) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO tool_calls (call_id, trace_id, tool_name, args_digest, status, error_text, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.CallID, e.TraceID, e.ToolName, e.ArgsDigest, e.Status, e.ErrorText, e.Duration.Milliseconds(), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert tool_call: %w", err)
	}
	return nil
}

// ListByTool returns the most recent entries for a tool.
func (s *Store) ListByTool(ctx context.Context, toolName string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.conn.QueryContext(ctx,
		`SELECT call_id, trace_id, tool_name, args_digest, status, error_text, duration_ms, created_at
		 FROM tool_calls WHERE tool_name = $1 ORDER BY created_at DESC LIMIT $2`,
		toolName, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list tool_calls: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		var durationMS int64
		if err := rows.Scan(&e.CallID, &e.TraceID, &e.ToolName, &e.ArgsDigest, &e.Status, &e.ErrorText, &durationMS, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tool_call: %w", err)
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DigestArguments produces a stable hex digest of tool-call arguments:
// keys are sorted so equivalent argument sets hash identically.
func DigestArguments(args map[string]json.RawMessage) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write(args[k])
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
