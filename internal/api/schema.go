// internal/api/schema.go
package api

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// SkillRequestSchema describes the body of POST /api/skill. Action values are
// checked by the skill itself so unknown actions get INVALID_ACTION. Limit
// overrides and confirm stay untyped; the policy gate decides what counts.
const SkillRequestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["action"],
  "additionalProperties": false,
  "properties": {
    "action":     {"type": "string", "minLength": 1},
    "sql":        {"type": "string"},
    "database":   {"type": "string"},
    "table":      {"type": "string"},
    "params":     {"type": "array"},
    "confirm":    {},
    "timeoutMs":  {},
    "maxRows":    {},
    "maxCostUsd": {}
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *gojsonschema.Schema
	schemaErr      error
)

func skillSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(SkillRequestSchema))
	})
	return compiledSchema, schemaErr
}

// SchemaError lists every violation found in a request body.
type SchemaError struct {
	Violations []string
}

func (e *SchemaError) Error() string {
	return "invalid request: " + strings.Join(e.Violations, "; ")
}

// ValidateSkillRequest checks body against SkillRequestSchema. Malformed JSON
// and schema violations are both returned as errors.
func ValidateSkillRequest(body []byte) error {
	schema, err := skillSchema()
	if err != nil {
		return fmt.Errorf("compile request schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return &SchemaError{Violations: []string{fmt.Sprintf("malformed JSON: %v", err)}}
	}
	if result.Valid() {
		return nil
	}
	violations := make([]string, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		violations = append(violations, re.String())
	}
	return &SchemaError{Violations: violations}
}
