// internal/logging/timer.go
package logging

import (
	"time"

	"github.com/askdba/dbquery-skill/internal/tokens"
)

// Queries longer than this are left out of log lines.
const maxLoggedQueryLen = 200

// QueryTimer tracks call duration and logs the outcome.
type QueryTimer struct {
	start time.Time
	tool  string
}

// NewQueryTimer starts a timer for tool.
func NewQueryTimer(tool string) *QueryTimer {
	return &QueryTimer{start: time.Now(), tool: tool}
}

// Elapsed returns the time since the timer started.
func (t *QueryTimer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// ElapsedMs returns Elapsed in milliseconds.
func (t *QueryTimer) ElapsedMs() int64 {
	return t.Elapsed().Milliseconds()
}

func (t *QueryTimer) fields(query string, usage *tokens.Usage) map[string]interface{} {
	fields := map[string]interface{}{
		"tool":        t.tool,
		"duration_ms": t.ElapsedMs(),
	}
	if query != "" && len(query) <= maxLoggedQueryLen {
		fields["query"] = query
	}
	if usage != nil {
		fields["tokens"] = map[string]interface{}{
			"input_estimated":  usage.InputEstimated,
			"output_estimated": usage.OutputEstimated,
			"total_estimated":  usage.TotalEstimated,
			"model":            usage.Model,
		}
	}
	return fields
}

// LogSuccess logs a successful call.
func (t *QueryTimer) LogSuccess(rowCount int, query string, usage *tokens.Usage) {
	fields := t.fields(query, usage)
	fields["row_count"] = rowCount
	Info("query executed", fields)
}

// LogError logs a failed call.
func (t *QueryTimer) LogError(err error, query string, usage *tokens.Usage) {
	fields := t.fields(query, usage)
	fields["error"] = err.Error()
	Error("query failed", fields)
}
