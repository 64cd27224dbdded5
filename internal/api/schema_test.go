// internal/api/schema_test.go
package api

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateSkillRequest(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"query", `{"action":"query","sql":"SELECT 1","database":"shop"}`, ""},
		{"execute with loose confirm", `{"action":"execute","sql":"DELETE FROM t","database":"shop","confirm":"true"}`, ""},
		{"limits of any type", `{"action":"query","sql":"SELECT 1","database":"shop","timeoutMs":"soon","maxRows":5}`, ""},
		{"unknown action passes schema", `{"action":"truncate"}`, ""},
		{"missing action", `{"sql":"SELECT 1"}`, "action"},
		{"empty action", `{"action":""}`, "action"},
		{"sql not a string", `{"action":"query","sql":42}`, "sql"},
		{"params not an array", `{"action":"query","params":"1"}`, "params"},
		{"unknown field", `{"action":"query","limit":5}`, "limit"},
		{"not an object", `[1,2]`, "object"},
		{"malformed", `{"action":`, "malformed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSkillRequest([]byte(tt.body))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected valid, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error mentioning %q", tt.wantErr)
			}
			var se *SchemaError
			if !errors.As(err, &se) {
				t.Fatalf("expected *SchemaError, got %T", err)
			}
			if !strings.Contains(strings.ToLower(err.Error()), strings.ToLower(tt.wantErr)) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantErr)
			}
		})
	}
}
