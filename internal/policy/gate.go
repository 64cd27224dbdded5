// internal/policy/gate.go
package policy

import (
	"strings"

	"github.com/askdba/dbquery-skill/internal/skillerr"
	"github.com/askdba/dbquery-skill/internal/util"
)

// Wildcard in the allow-list admits every database.
const Wildcard = "*"

// StatementRequest is the caller-controlled part of one call.
type StatementRequest struct {
	SQL      string
	Database string
	Table    string
	Params   []interface{}
	// Confirm only counts when it is the boolean true.
	Confirm   interface{}
	Overrides LimitSource
}

// Config is the operator-controlled policy.
type Config struct {
	// AllowedDatabases is the allow-list. Empty means unconfigured and
	// skips the check.
	AllowedDatabases []string
	// StrictParser additionally requires read-only statements to parse as a
	// single MySQL SELECT/UNION/EXPLAIN without dangerous functions.
	StrictParser bool
	// CheckParams runs libinjection over string bound parameters.
	CheckParams bool
	Limits      LimitSource
}

// ErrorKind classifies a rejected decision.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindMissingParameter
	KindInvalidParameter
	KindDatabaseNotAllowed
	KindSQLNotAllowed
	KindSQLInjectionDetected
	KindConfirmationRequired
)

// Code maps the kind onto the wire error code.
func (k ErrorKind) Code() skillerr.Code {
	switch k {
	case KindMissingParameter:
		return skillerr.CodeMissingParameter
	case KindInvalidParameter:
		return skillerr.CodeInvalidParameter
	case KindDatabaseNotAllowed:
		return skillerr.CodeDatabaseNotAllowed
	case KindSQLNotAllowed:
		return skillerr.CodeSQLNotAllowed
	case KindSQLInjectionDetected:
		return skillerr.CodeSQLInjectionDetected
	case KindConfirmationRequired:
		return skillerr.CodeConfirmationRequired
	default:
		return ""
	}
}

func (k ErrorKind) String() string {
	if k == KindNone {
		return "NONE"
	}
	return string(k.Code())
}

// Decision is the outcome of Evaluate. A rejected decision is final.
type Decision struct {
	Allowed        bool
	Kind           ErrorKind
	Err            *skillerr.Error
	Classification *util.ClassificationResult
	Findings       []util.InjectionFinding
	Limits         EffectiveLimits
}

func reject(kind ErrorKind, format string, args ...interface{}) Decision {
	return Decision{Kind: kind, Err: skillerr.New(kind.Code(), format, args...)}
}

// Evaluate runs the admission checks in order and stops at the first
// failure:
//
//  1. sql present (actions that carry a statement)
//  2. database present (and table, for describe_table)
//  3. database allow-listed
//  4. read-only classification (query and explain)
//  5. no injection findings
//  6. strict confirmation (execute)
//
// Allowed decisions carry the resolved limits.
func Evaluate(action Action, req StatementRequest, cfg Config) Decision {
	sqlText := strings.TrimSpace(req.SQL)
	database := strings.TrimSpace(req.Database)

	if action.NeedsSQL() && sqlText == "" {
		return reject(KindMissingParameter, "sql is required for action %q", action)
	}
	if database == "" {
		return reject(KindMissingParameter, "database is required for action %q", action)
	}
	if action == ActionDescribeTable {
		table := strings.TrimSpace(req.Table)
		if table == "" {
			return reject(KindMissingParameter, "table is required for action %q", action)
		}
		if err := util.ValidateIdent(table); err != nil {
			return reject(KindInvalidParameter, "invalid table name: %v", err)
		}
	}

	if !DatabaseAllowed(database, cfg.AllowedDatabases) {
		return reject(KindDatabaseNotAllowed, "database %q is not allowed; allowed databases: %s",
			database, strings.Join(cfg.AllowedDatabases, ", "))
	}

	var classification *util.ClassificationResult
	if action.ReadOnly() {
		res := util.ClassifySQL(sqlText)
		classification = &res
		if !res.ReadOnly() {
			d := reject(KindSQLNotAllowed, "only read-only statements (SELECT, WITH, EXPLAIN) are allowed for %s: %s", action, res.Reason)
			d.Classification = classification
			return d
		}
		if cfg.StrictParser {
			if err := util.ValidateWithParser(sqlText); err != nil {
				d := reject(KindSQLNotAllowed, "statement rejected by parser: %v", err)
				d.Classification = classification
				return d
			}
		}
	}

	if action.NeedsSQL() {
		findings := util.ScanForInjection(sqlText)
		if cfg.CheckParams {
			findings = append(findings, util.ScanParams(req.Params)...)
		}
		if len(findings) > 0 {
			d := reject(KindSQLInjectionDetected, "potential SQL injection detected: %s", findings[0].Message)
			d.Err.Findings = findings
			d.Classification = classification
			d.Findings = findings
			return d
		}
	}

	if action == ActionExecute {
		if confirmed, ok := req.Confirm.(bool); !ok || !confirmed {
			return reject(KindConfirmationRequired,
				"execute modifies data; set confirm to true to proceed")
		}
	}

	return Decision{
		Allowed:        true,
		Kind:           KindNone,
		Classification: classification,
		Limits:         ResolveLimits(req.Overrides, cfg.Limits),
	}
}

// DatabaseAllowed reports whether database passes the allow-list. An empty
// allow-list is treated as unconfigured.
func DatabaseAllowed(database string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		a = strings.TrimSpace(a)
		if a == Wildcard || a == database {
			return true
		}
	}
	return false
}
