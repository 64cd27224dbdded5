// Package logging provides the structured stderr logger, the JSONL audit
// log and a small timer for call durations. Messages and string fields are
// redacted before they are written.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/askdba/dbquery-skill/internal/util"
)

// Entry is one structured log line.
type Entry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

var (
	mu         sync.Mutex
	jsonFormat bool
	out        io.Writer = os.Stderr
	textLogger           = log.New(os.Stderr, "", log.LstdFlags)
)

// SetJSONFormat switches between JSON lines and plain text.
func SetJSONFormat(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	jsonFormat = enabled
}

// SetOutput redirects log output; nil restores stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	out = w
	textLogger = log.New(w, "", log.LstdFlags)
}

func write(level, message string, fields map[string]interface{}) {
	message = util.Redact(message)
	fields = redactFields(fields)

	mu.Lock()
	defer mu.Unlock()
	if jsonFormat {
		data, err := json.Marshal(Entry{
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Level:     level,
			Message:   message,
			Fields:    fields,
		})
		if err != nil {
			data = []byte(fmt.Sprintf(`{"level":%q,"message":%q}`, level, message))
		}
		fmt.Fprintln(out, string(data))
		return
	}
	if len(fields) > 0 {
		textLogger.Printf("[%s] %s %v", level, message, fields)
	} else {
		textLogger.Printf("[%s] %s", level, message)
	}
}

func redactFields(fields map[string]interface{}) map[string]interface{} {
	if len(fields) == 0 {
		return fields
	}
	cp := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if s, ok := v.(string); ok {
			v = util.Redact(s)
		}
		cp[k] = v
	}
	return cp
}

func Info(message string, fields map[string]interface{}) {
	write("INFO", message, fields)
}

func Warn(message string, fields map[string]interface{}) {
	write("WARN", message, fields)
}

func Error(message string, fields map[string]interface{}) {
	write("ERROR", message, fields)
}
