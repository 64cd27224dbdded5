// internal/skill/format.go
package skill

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/askdba/dbquery-skill/internal/policy"
)

// Rows shown in the human-readable result; metadata always carries all of them.
const maxResultRows = 20

// formatResult validates the gateway payload for action and produces the
// success metadata plus the human-readable result. Payloads may come from the
// in-process gateway (Go types) or a remote one (decoded JSON).
func formatResult(action policy.Action, req Request, out map[string]interface{}, limits policy.EffectiveLimits) (Metadata, string, error) {
	switch action {
	case policy.ActionQuery:
		return formatQuery(req, out, limits)
	case policy.ActionExecute:
		return formatExecute(req, out)
	case policy.ActionDescribeTable:
		return formatDescribe(req, out)
	case policy.ActionListTables:
		return formatListTables(req, out)
	case policy.ActionExplain:
		return formatExplain(req, out)
	default:
		return Metadata{}, "", fmt.Errorf("unsupported action %q", action)
	}
}

func formatQuery(req Request, out map[string]interface{}, limits policy.EffectiveLimits) (Metadata, string, error) {
	raw, ok := out["rows"]
	if !ok {
		return Metadata{}, "", fmt.Errorf("missing rows")
	}
	rows, err := toRows(raw)
	if err != nil {
		return Metadata{}, "", fmt.Errorf("rows: %w", err)
	}

	var columns []string
	if c, ok := out["columns"]; ok && c != nil {
		if columns, err = toStrings(c); err != nil {
			return Metadata{}, "", fmt.Errorf("columns: %w", err)
		}
	} else {
		columns = columnsOf(rows)
	}

	truncated, _ := out["truncated"].(bool)
	if limits.MaxRows > 0 && len(rows) > limits.MaxRows {
		rows = rows[:limits.MaxRows]
		truncated = true
	}
	rowCount := len(rows)

	meta := Metadata{
		RowCount:  &rowCount,
		Columns:   columns,
		Rows:      rows,
		Truncated: truncated,
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Query returned %d row(s) from %s", rowCount, req.Database)
	if truncated {
		fmt.Fprintf(&b, " (truncated at %d rows)", limits.MaxRows)
	}
	b.WriteString(".")
	if rowCount > 0 {
		b.WriteString("\n")
		writeTable(&b, columns, rows)
	}
	return meta, b.String(), nil
}

func formatExecute(req Request, out map[string]interface{}) (Metadata, string, error) {
	affected, ok := toInt64(out["rowsAffected"])
	if !ok {
		return Metadata{}, "", fmt.Errorf("missing or non-numeric rowsAffected")
	}
	meta := Metadata{RowsAffected: &affected}
	if id, ok := toInt64(out["lastInsertId"]); ok && id > 0 {
		meta.LastInsertID = &id
	}
	result := fmt.Sprintf("Statement executed on %s: %d row(s) affected.", req.Database, affected)
	if meta.LastInsertID != nil {
		result += fmt.Sprintf(" Last insert id: %d.", *meta.LastInsertID)
	}
	return meta, result, nil
}

func formatDescribe(req Request, out map[string]interface{}) (Metadata, string, error) {
	raw, ok := out["columns"]
	if !ok {
		return Metadata{}, "", fmt.Errorf("missing columns")
	}
	columns, err := toRows(raw)
	if err != nil {
		return Metadata{}, "", fmt.Errorf("columns: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Table %s in %s has %d column(s):", req.Table, req.Database, len(columns))
	for _, col := range columns {
		fmt.Fprintf(&b, "\n- %v %v", col["name"], col["type"])
		if notNull(col["nullable"]) {
			b.WriteString(" NOT NULL")
		}
	}
	return Metadata{Table: req.Table, Columns: columns}, b.String(), nil
}

// notNull reads a nullable flag as either a bool or the information_schema
// "YES"/"NO" form.
func notNull(v interface{}) bool {
	switch n := v.(type) {
	case bool:
		return !n
	case string:
		return strings.EqualFold(strings.TrimSpace(n), "NO")
	}
	return false
}

func formatListTables(req Request, out map[string]interface{}) (Metadata, string, error) {
	raw, ok := out["tables"]
	if !ok {
		return Metadata{}, "", fmt.Errorf("missing tables")
	}
	tables, err := toStrings(raw)
	if err != nil {
		return Metadata{}, "", fmt.Errorf("tables: %w", err)
	}
	result := fmt.Sprintf("Database %s has %d table(s)", req.Database, len(tables))
	if len(tables) > 0 {
		result += ": " + strings.Join(tables, ", ")
	}
	return Metadata{Tables: tables}, result + ".", nil
}

func formatExplain(req Request, out map[string]interface{}) (Metadata, string, error) {
	plan, ok := out["plan"]
	if !ok || plan == nil {
		return Metadata{}, "", fmt.Errorf("missing plan")
	}
	pretty, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return Metadata{}, "", fmt.Errorf("plan: %w", err)
	}
	return Metadata{Plan: plan}, fmt.Sprintf("Query plan on %s:\n%s", req.Database, pretty), nil
}

func writeTable(b *strings.Builder, columns []string, rows []map[string]interface{}) {
	b.WriteString(strings.Join(columns, " | "))
	for i, row := range rows {
		if i == maxResultRows {
			fmt.Fprintf(b, "\n... %d more row(s)", len(rows)-maxResultRows)
			return
		}
		cells := make([]string, len(columns))
		for j, col := range columns {
			cells[j] = formatCell(row[col])
		}
		b.WriteString("\n")
		b.WriteString(strings.Join(cells, " | "))
	}
}

func formatCell(v interface{}) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprint(v)
}

func columnsOf(rows []map[string]interface{}) []string {
	if len(rows) == 0 {
		return []string{}
	}
	cols := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func toRows(v interface{}) ([]map[string]interface{}, error) {
	switch x := v.(type) {
	case []map[string]interface{}:
		return x, nil
	case []interface{}:
		rows := make([]map[string]interface{}, len(x))
		for i, item := range x {
			m, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("element %d is %T, want object", i, item)
			}
			rows[i] = m
		}
		return rows, nil
	case nil:
		return []map[string]interface{}{}, nil
	default:
		return nil, fmt.Errorf("got %T, want array of objects", v)
	}
}

func toStrings(v interface{}) ([]string, error) {
	switch x := v.(type) {
	case []string:
		return x, nil
	case []interface{}:
		out := make([]string, len(x))
		for i, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("element %d is %T, want string", i, item)
			}
			out[i] = s
		}
		return out, nil
	case nil:
		return []string{}, nil
	default:
		return nil, fmt.Errorf("got %T, want array of strings", v)
	}
}

func toInt64(v interface{}) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint64:
		return int64(x), true
	case float64:
		if x != float64(int64(x)) {
			return 0, false
		}
		return int64(x), true
	case json.Number:
		n, err := x.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}
