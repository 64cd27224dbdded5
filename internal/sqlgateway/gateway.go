// Package sqlgateway is an in-process database gateway. It serves the
// database/* endpoints over database/sql for a registry of named
// connections and satisfies gateway.Client.
package sqlgateway

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/askdba/dbquery-skill/internal/util"
)

// Endpoint paths served by the gateway.
const (
	PathQuery         = "database/query"
	PathExecute       = "database/execute"
	PathDescribeTable = "database/describe_table"
	PathListTables    = "database/list_tables"
	PathExplain       = "database/explain"
)

// DefaultMaxRows applies when neither the request nor Options set a cap.
const DefaultMaxRows = 1000

// Options configures a Gateway.
type Options struct {
	// MaxRows caps query results; requests may only lower it.
	MaxRows int
	// QueryTimeout bounds each statement. Zero leaves it to the caller's
	// context.
	QueryTimeout time.Duration
}

// Gateway executes gateway requests against registered connections.
type Gateway struct {
	conns        *Registry
	maxRows      int
	queryTimeout time.Duration
}

// New creates a gateway over reg.
func New(reg *Registry, opts Options) *Gateway {
	if opts.MaxRows <= 0 {
		opts.MaxRows = DefaultMaxRows
	}
	return &Gateway{conns: reg, maxRows: opts.MaxRows, queryTimeout: opts.QueryTimeout}
}

// NewWithDB builds a single-connection gateway around an existing *sql.DB.
// This is mainly useful for tests where we use a sqlmock.DB.
func NewWithDB(db *sql.DB, cfg ConnectionConfig, opts Options) (*Gateway, error) {
	reg := NewRegistry()
	if err := reg.Attach(cfg, db); err != nil {
		return nil, err
	}
	return New(reg, opts), nil
}

// Registry exposes the connection registry.
func (g *Gateway) Registry() *Registry {
	return g.conns
}

// Close closes every registered connection.
func (g *Gateway) Close() error {
	return g.conns.Close()
}

// request is the body shape accepted on every endpoint.
type request struct {
	SQL      string        `json:"sql"`
	Database string        `json:"database"`
	Table    string        `json:"table"`
	Params   []interface{} `json:"params"`
	MaxRows  int           `json:"maxRows"`
}

func decodeRequest(body interface{}) (request, error) {
	var req request
	if body == nil {
		return req, nil
	}
	if r, ok := body.(request); ok {
		return r, nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return req, fmt.Errorf("invalid request body: %w", err)
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, fmt.Errorf("invalid request body: %w", err)
	}
	return req, nil
}

// Request implements gateway.Client.
func (g *Gateway) Request(ctx context.Context, method, path string, body interface{}) (map[string]interface{}, error) {
	if method != http.MethodPost {
		return nil, fmt.Errorf("method %s not allowed for %s", method, path)
	}
	req, err := decodeRequest(body)
	if err != nil {
		return nil, err
	}
	conn, err := g.conns.Get(strings.TrimSpace(req.Database))
	if err != nil {
		return nil, err
	}

	if g.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.queryTimeout)
		defer cancel()
	}

	switch strings.Trim(path, "/") {
	case PathQuery:
		return g.query(ctx, conn, req)
	case PathExecute:
		return g.execute(ctx, conn, req)
	case PathDescribeTable:
		return g.describeTable(ctx, conn, req)
	case PathListTables:
		return g.listTables(ctx, conn)
	case PathExplain:
		return g.explain(ctx, conn, req)
	default:
		return nil, fmt.Errorf("unknown endpoint %q", path)
	}
}

func (g *Gateway) rowCap(requested int) int {
	if requested <= 0 || requested > g.maxRows {
		return g.maxRows
	}
	return requested
}

func (g *Gateway) query(ctx context.Context, conn *Conn, req request) (map[string]interface{}, error) {
	if strings.TrimSpace(req.SQL) == "" {
		return nil, fmt.Errorf("sql is required")
	}
	rows, err := conn.DB.QueryContext(ctx, req.SQL, req.Params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, out, truncated, err := scanRows(rows, g.rowCap(req.MaxRows))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"columns":   cols,
		"rows":      out,
		"rowCount":  len(out),
		"truncated": truncated,
	}, nil
}

func (g *Gateway) execute(ctx context.Context, conn *Conn, req request) (map[string]interface{}, error) {
	if conn.Config.ReadOnly {
		return nil, fmt.Errorf("connection %q is read-only", conn.Config.Name)
	}
	if strings.TrimSpace(req.SQL) == "" {
		return nil, fmt.Errorf("sql is required")
	}
	res, err := conn.DB.ExecContext(ctx, req.SQL, req.Params...)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	out := map[string]interface{}{"rowsAffected": affected}
	// Not every driver reports insert ids.
	if id, err := res.LastInsertId(); err == nil && id > 0 {
		out["lastInsertId"] = id
	}
	return out, nil
}

func (g *Gateway) describeTable(ctx context.Context, conn *Conn, req request) (map[string]interface{}, error) {
	table := strings.TrimSpace(req.Table)
	if err := util.ValidateIdent(table); err != nil {
		return nil, fmt.Errorf("invalid table name: %w", err)
	}
	rows, err := conn.DB.QueryContext(ctx, conn.Dialect.DescribeColumns, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	_, columns, _, err := scanRows(rows, 0)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %q not found", table)
	}
	return map[string]interface{}{"table": table, "columns": columns}, nil
}

func (g *Gateway) listTables(ctx context.Context, conn *Conn) (map[string]interface{}, error) {
	rows, err := conn.DB.QueryContext(ctx, conn.Dialect.ListTables)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return map[string]interface{}{"tables": tables}, nil
}

func (g *Gateway) explain(ctx context.Context, conn *Conn, req request) (map[string]interface{}, error) {
	if strings.TrimSpace(req.SQL) == "" {
		return nil, fmt.Errorf("sql is required")
	}
	rows, err := conn.DB.QueryContext(ctx, conn.Dialect.ExplainSQL(req.SQL), req.Params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	_, plan, _, err := scanRows(rows, 0)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"plan": plan}, nil
}

// scanRows reads rows into maps keyed by column name. With limit > 0 it
// stops after limit rows and reports whether more were available.
func scanRows(rows *sql.Rows, limit int) ([]string, []map[string]interface{}, bool, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, false, err
	}

	out := []map[string]interface{}{}
	truncated := false
	for rows.Next() {
		if limit > 0 && len(out) >= limit {
			truncated = true
			break
		}
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, false, err
		}
		row := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			row[col] = util.NormalizeValue(values[i])
		}
		out = append(out, row)
	}
	return cols, out, truncated, rows.Err()
}
