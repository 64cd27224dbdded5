// internal/logging/audit.go
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/askdba/dbquery-skill/internal/util"
)

// maxAuditQueryLen bounds the statement text kept per audit entry.
const maxAuditQueryLen = 1000

// AuditEntry is one line of the audit log.
type AuditEntry struct {
	Timestamp    string `json:"timestamp"`
	RequestID    string `json:"request_id,omitempty"`
	Tool         string `json:"tool"`
	Action       string `json:"action,omitempty"`
	Database     string `json:"database,omitempty"`
	Query        string `json:"query,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
	RowCount     int    `json:"row_count,omitempty"`
	RowsAffected int64  `json:"rows_affected,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
	Success      bool   `json:"success"`
	ErrorCode    string `json:"error_code,omitempty"`
	Error        string `json:"error,omitempty"`
}

// AuditLogger appends entries to a JSONL file. The zero value and a logger
// created with an empty path are disabled.
type AuditLogger struct {
	file    *os.File
	mu      sync.Mutex
	enabled bool
}

// NewAuditLogger opens path for appending. If path is empty, the logger is
// disabled.
func NewAuditLogger(path string) (*AuditLogger, error) {
	if path == "" {
		return &AuditLogger{}, nil
	}
	cleanPath := filepath.Clean(path)
	// #nosec G304 -- path comes from operator configuration
	f, err := os.OpenFile(cleanPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return &AuditLogger{file: f, enabled: true}, nil
}

// Enabled reports whether entries are written.
func (a *AuditLogger) Enabled() bool {
	return a != nil && a.enabled
}

// Log stamps and writes entry. Query and Error are redacted, and Query is
// truncated.
func (a *AuditLogger) Log(entry *AuditEntry) {
	if !a.Enabled() || entry == nil {
		return
	}
	entry.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	entry.Query = util.TruncateQuery(util.Redact(entry.Query), maxAuditQueryLen)
	entry.Error = util.Redact(entry.Error)

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	_, _ = a.file.Write(append(data, '\n'))
}

// Close closes the audit log file.
func (a *AuditLogger) Close() error {
	if a == nil || a.file == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = false
	return a.file.Close()
}

// NewRequestID returns a random identifier for correlating a call's log
// lines, audit entry and response.
func NewRequestID() string {
	return uuid.NewString()
}
