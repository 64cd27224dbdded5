// internal/util/sql_parser.go
package util

import (
	"fmt"
	"strings"

	"github.com/xwb1989/sqlparser"
)

// ParserValidationError explains why the strict parser check refused a
// statement.
type ParserValidationError struct {
	Reason    string
	Statement string
}

func (e *ParserValidationError) Error() string {
	if e.Statement != "" {
		return fmt.Sprintf("%s: %s", e.Reason, e.Statement)
	}
	return e.Reason
}

// DangerousFunctions are refused anywhere in a statement, even on the read
// path: they sleep, take locks or touch the server filesystem.
var DangerousFunctions = map[string]bool{
	"sleep":             true,
	"benchmark":         true,
	"get_lock":          true,
	"release_lock":      true,
	"is_free_lock":      true,
	"is_used_lock":      true,
	"release_all_locks": true,
	"load_file":         true,
	"sys_eval":          true,
	"sys_exec":          true,
}

// DangerousSchemas may not be referenced as a table or column qualifier.
var DangerousSchemas = map[string]bool{
	"mysql":              true,
	"information_schema": true,
	"performance_schema": true,
	"sys":                true,
}

// ValidateWithParser is the strict read-path check. The statement must parse
// under the MySQL grammar as exactly one SELECT, UNION or EXPLAIN, and no node
// in its tree may call a dangerous function, name a system schema or take a
// row lock. Anything the grammar does not understand, CTEs included, is
// refused.
func ValidateWithParser(sqlText string) error {
	stmt, err := parseSingle(sqlText)
	if err != nil {
		return err
	}
	if err := checkStatementKind(stmt); err != nil {
		return err
	}
	return sqlparser.Walk(inspectNode, stmt)
}

func parseSingle(sqlText string) (sqlparser.Statement, error) {
	sqlText = strings.TrimSpace(sqlText)
	if sqlText == "" {
		return nil, &ParserValidationError{Reason: "empty query"}
	}

	// The splitter understands literals, so "a;b" inside quotes stays whole.
	pieces, err := sqlparser.SplitStatementToPieces(sqlText)
	if err != nil {
		return nil, &ParserValidationError{Reason: "failed to parse SQL statement", Statement: err.Error()}
	}
	switch len(pieces) {
	case 0:
		return nil, &ParserValidationError{Reason: "empty query"}
	case 1:
	default:
		return nil, &ParserValidationError{Reason: "multi-statement queries are not allowed"}
	}

	stmt, err := sqlparser.Parse(pieces[0])
	if err != nil {
		return nil, &ParserValidationError{Reason: "failed to parse SQL statement", Statement: err.Error()}
	}
	return stmt, nil
}

func checkStatementKind(stmt sqlparser.Statement) error {
	var kind string
	switch s := stmt.(type) {
	case *sqlparser.Select, *sqlparser.Union, *sqlparser.ParenSelect, *sqlparser.OtherRead:
		return nil
	case *sqlparser.Insert:
		kind = strings.ToUpper(strings.TrimSpace(s.Action))
	case *sqlparser.Update:
		kind = "UPDATE"
	case *sqlparser.Delete:
		kind = "DELETE"
	case *sqlparser.Set:
		kind = "SET"
	case *sqlparser.DDL:
		return &ParserValidationError{Reason: "DDL statements are not allowed", Statement: s.Action}
	case *sqlparser.DBDDL:
		return &ParserValidationError{Reason: "database DDL statements are not allowed", Statement: s.Action}
	default:
		return &ParserValidationError{Reason: "statement type not allowed", Statement: fmt.Sprintf("%T", stmt)}
	}
	return &ParserValidationError{Reason: kind + " statements are not allowed"}
}

// inspectNode is the sqlparser.Walk visitor. Returning an error stops the
// walk and surfaces it from ValidateWithParser.
func inspectNode(node sqlparser.SQLNode) (bool, error) {
	switch n := node.(type) {
	case *sqlparser.FuncExpr:
		if name := n.Name.Lowered(); DangerousFunctions[name] {
			return false, &ParserValidationError{Reason: "dangerous function not allowed", Statement: name}
		}
	case sqlparser.TableName:
		if q := strings.ToLower(n.Qualifier.String()); DangerousSchemas[q] {
			return false, &ParserValidationError{Reason: "access to system schema is not allowed", Statement: q}
		}
	case *sqlparser.Select:
		if lock := strings.TrimSpace(n.Lock); lock != "" {
			return false, &ParserValidationError{Reason: "locking reads are not allowed", Statement: lock}
		}
	}
	return true, nil
}
