// internal/skill/types.go
package skill

import (
	"github.com/askdba/dbquery-skill/internal/gateway"
	"github.com/askdba/dbquery-skill/internal/policy"
	"github.com/askdba/dbquery-skill/internal/skillerr"
	"github.com/askdba/dbquery-skill/internal/tokens"
	"github.com/askdba/dbquery-skill/internal/util"
)

// Layer tags every response produced by this handler.
const Layer = "L1"

// Request is one call to the skill. Limit fields and Confirm stay loosely
// typed because they arrive from JSON; the policy gate decides what counts.
type Request struct {
	Action     string        `json:"action" jsonschema:"one of query, execute, describe_table, list_tables, explain"`
	SQL        string        `json:"sql,omitempty" jsonschema:"SQL statement; query and explain accept SELECT, WITH or EXPLAIN only"`
	Database   string        `json:"database,omitempty" jsonschema:"target database name"`
	Table      string        `json:"table,omitempty" jsonschema:"table name for describe_table"`
	Params     []interface{} `json:"params,omitempty" jsonschema:"positional bound parameters"`
	Confirm    interface{}   `json:"confirm,omitempty" jsonschema:"must be the boolean true for execute"`
	TimeoutMs  interface{}   `json:"timeoutMs,omitempty" jsonschema:"per-call timeout override in milliseconds"`
	MaxRows    interface{}   `json:"maxRows,omitempty" jsonschema:"per-call row limit override"`
	MaxCostUsd interface{}   `json:"maxCostUsd,omitempty" jsonschema:"per-call cost ceiling override in USD"`
}

// SkillConfig is the per-skill configuration supplied by the host.
type SkillConfig struct {
	TimeoutMs        interface{} `json:"timeoutMs,omitempty"`
	MaxRows          interface{} `json:"maxRows,omitempty"`
	MaxCostUsd       interface{} `json:"maxCostUsd,omitempty"`
	AllowedDatabases []string    `json:"allowedDatabases,omitempty"`
}

// HostContext carries what the platform adapter injects. ProviderClient is
// preferred over GatewayClient.
type HostContext struct {
	ProviderClient gateway.Client
	GatewayClient  gateway.Client
	Config         *SkillConfig
}

func (h HostContext) client() gateway.Client {
	if h.ProviderClient != nil {
		return h.ProviderClient
	}
	return h.GatewayClient
}

// Response is the envelope returned for every call.
type Response struct {
	Result   string   `json:"result"`
	Metadata Metadata `json:"metadata"`
}

// ErrorInfo describes a failed call.
type ErrorInfo struct {
	Code      skillerr.Code           `json:"code"`
	Message   string                  `json:"message"`
	Retriable bool                    `json:"retriable"`
	Findings  []util.InjectionFinding `json:"findings,omitempty"`
}

// Metadata is the structured part of a Response. Action-specific fields are
// only set for the action that produces them.
type Metadata struct {
	Success   bool       `json:"success"`
	Action    string     `json:"action"`
	Layer     string     `json:"layer"`
	RequestID string     `json:"requestId,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Database  string     `json:"database,omitempty"`
	Table     string     `json:"table,omitempty"`

	RowCount     *int                     `json:"rowCount,omitempty"`
	Columns      interface{}              `json:"columns,omitempty"`
	Rows         []map[string]interface{} `json:"rows,omitempty"`
	Truncated    bool                     `json:"truncated,omitempty"`
	RowsAffected *int64                   `json:"rowsAffected,omitempty"`
	LastInsertID *int64                   `json:"lastInsertId,omitempty"`
	Tables       []string                 `json:"tables,omitempty"`
	Plan         interface{}              `json:"plan,omitempty"`

	Limits     *policy.EffectiveLimits `json:"limits,omitempty"`
	Tokens     *tokens.Usage           `json:"tokens,omitempty"`
	Warnings   []string                `json:"warnings,omitempty"`
	DurationMs int64                   `json:"durationMs"`
}
