// internal/policy/action.go
package policy

import "github.com/askdba/dbquery-skill/internal/skillerr"

// Action names one operation of the database-query skill.
type Action string

const (
	ActionQuery         Action = "query"
	ActionExecute       Action = "execute"
	ActionDescribeTable Action = "describe_table"
	ActionListTables    Action = "list_tables"
	ActionExplain       Action = "explain"
)

// Actions lists every supported action in display order.
var Actions = []Action{ActionQuery, ActionExecute, ActionDescribeTable, ActionListTables, ActionExplain}

// ParseAction maps a request string onto a known action.
func ParseAction(s string) (Action, bool) {
	for _, a := range Actions {
		if string(a) == s {
			return a, true
		}
	}
	return "", false
}

// Endpoint is the gateway path the action is dispatched to.
func (a Action) Endpoint() string {
	return "database/" + string(a)
}

// NeedsSQL reports whether the action carries a statement.
func (a Action) NeedsSQL() bool {
	return a == ActionQuery || a == ActionExecute || a == ActionExplain
}

// ReadOnly reports whether the statement must pass the read-only classifier.
func (a Action) ReadOnly() bool {
	return a == ActionQuery || a == ActionExplain
}

// FailureCode is the code reported when the gateway call itself fails.
func (a Action) FailureCode() skillerr.Code {
	switch a {
	case ActionQuery:
		return skillerr.CodeQueryFailed
	case ActionExecute:
		return skillerr.CodeExecuteFailed
	case ActionDescribeTable:
		return skillerr.CodeDescribeFailed
	case ActionListTables:
		return skillerr.CodeListTablesFailed
	case ActionExplain:
		return skillerr.CodeExplainFailed
	default:
		return skillerr.CodeOperationFailed
	}
}
