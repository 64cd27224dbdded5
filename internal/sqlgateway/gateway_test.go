// internal/sqlgateway/gateway_test.go
package sqlgateway

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func newTestGateway(t *testing.T, cfg ConnectionConfig) (*Gateway, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}

	gw, err := NewWithDB(db, cfg, Options{MaxRows: 2, QueryTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("failed to create gateway: %v", err)
	}
	t.Cleanup(func() { _ = gw.Close() })
	return gw, mock
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestQuery_Truncates(t *testing.T) {
	gw, mock := newTestGateway(t, ConnectionConfig{})

	rows := sqlmock.NewRows([]string{"id", "name"}).
		AddRow(1, "alice").
		AddRow(2, []byte("bob")).
		AddRow(3, "carol")
	mock.ExpectQuery("SELECT id, name FROM users").WillReturnRows(rows)

	out, err := gw.Request(testCtx(t), "POST", PathQuery, map[string]interface{}{
		"sql":      "SELECT id, name FROM users",
		"database": "default",
	})
	if err != nil {
		t.Fatalf("query returned error: %v", err)
	}

	if out["rowCount"] != 2 {
		t.Errorf("rowCount = %v, want 2", out["rowCount"])
	}
	if out["truncated"] != true {
		t.Errorf("truncated = %v, want true", out["truncated"])
	}
	got := out["rows"].([]map[string]interface{})
	if got[1]["name"] != "bob" {
		t.Errorf("[]byte value not normalized: %#v", got[1]["name"])
	}
	cols := out["columns"].([]string)
	if len(cols) != 2 || cols[0] != "id" {
		t.Errorf("columns = %v", cols)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestQuery_RequestCanLowerMaxRows(t *testing.T) {
	gw, mock := newTestGateway(t, ConnectionConfig{})

	mock.ExpectQuery("SELECT id FROM t WHERE a = ?").
		WithArgs("x").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2))

	out, err := gw.Request(testCtx(t), "POST", PathQuery, map[string]interface{}{
		"sql":      "SELECT id FROM t WHERE a = ?",
		"database": "default",
		"params":   []interface{}{"x"},
		"maxRows":  1,
	})
	if err != nil {
		t.Fatalf("query returned error: %v", err)
	}
	if out["rowCount"] != 1 || out["truncated"] != true {
		t.Errorf("got rowCount=%v truncated=%v", out["rowCount"], out["truncated"])
	}
}

func TestExecute(t *testing.T) {
	gw, mock := newTestGateway(t, ConnectionConfig{})

	mock.ExpectExec("DELETE FROM users WHERE id=1").WillReturnResult(sqlmock.NewResult(0, 3))

	out, err := gw.Request(testCtx(t), "POST", PathExecute, map[string]interface{}{
		"sql":      "DELETE FROM users WHERE id=1",
		"database": "default",
	})
	if err != nil {
		t.Fatalf("execute returned error: %v", err)
	}
	if out["rowsAffected"] != int64(3) {
		t.Errorf("rowsAffected = %#v, want 3", out["rowsAffected"])
	}
	if _, ok := out["lastInsertId"]; ok {
		t.Errorf("lastInsertId should be omitted when zero")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestExecute_ReadOnlyConnection(t *testing.T) {
	gw, _ := newTestGateway(t, ConnectionConfig{Name: "replica", ReadOnly: true})

	_, err := gw.Request(testCtx(t), "POST", PathExecute, map[string]interface{}{
		"sql":      "DELETE FROM users",
		"database": "replica",
	})
	if err == nil || !strings.Contains(err.Error(), "read-only") {
		t.Fatalf("expected read-only error, got %v", err)
	}
}

func TestListTables(t *testing.T) {
	gw, mock := newTestGateway(t, ConnectionConfig{})

	mock.ExpectQuery("SHOW TABLES").
		WillReturnRows(sqlmock.NewRows([]string{"Tables_in_testdb"}).AddRow("users").AddRow("orders"))

	out, err := gw.Request(testCtx(t), "POST", PathListTables, map[string]interface{}{"database": "default"})
	if err != nil {
		t.Fatalf("list_tables returned error: %v", err)
	}
	tables := out["tables"].([]string)
	if len(tables) != 2 || tables[0] != "users" || tables[1] != "orders" {
		t.Fatalf("unexpected tables: %v", tables)
	}
}

func TestDescribeTable(t *testing.T) {
	gw, mock := newTestGateway(t, ConnectionConfig{})

	mock.ExpectQuery(mysqlDialect.DescribeColumns).
		WithArgs("users").
		WillReturnRows(sqlmock.NewRows([]string{"name", "type", "nullable", "key", "default", "extra"}).
			AddRow("id", "int", "NO", "PRI", nil, "auto_increment").
			AddRow("name", "varchar(255)", "YES", "", nil, ""))

	out, err := gw.Request(testCtx(t), "POST", PathDescribeTable, map[string]interface{}{
		"database": "default",
		"table":    "users",
	})
	if err != nil {
		t.Fatalf("describe_table returned error: %v", err)
	}
	cols := out["columns"].([]map[string]interface{})
	if len(cols) != 2 || cols[0]["name"] != "id" || cols[0]["key"] != "PRI" {
		t.Fatalf("unexpected columns: %v", cols)
	}
}

func TestDescribeTable_Errors(t *testing.T) {
	gw, mock := newTestGateway(t, ConnectionConfig{})

	if _, err := gw.Request(testCtx(t), "POST", PathDescribeTable, map[string]interface{}{
		"database": "default",
		"table":    "users; DROP TABLE x",
	}); err == nil {
		t.Error("expected invalid table name error")
	}

	mock.ExpectQuery(mysqlDialect.DescribeColumns).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	_, err := gw.Request(testCtx(t), "POST", PathDescribeTable, map[string]interface{}{
		"database": "default",
		"table":    "missing",
	})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not found error, got %v", err)
	}
}

func TestExplain(t *testing.T) {
	gw, mock := newTestGateway(t, ConnectionConfig{})

	mock.ExpectQuery("EXPLAIN SELECT * FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"id", "select_type", "table"}).AddRow(1, "SIMPLE", "users"))

	out, err := gw.Request(testCtx(t), "POST", PathExplain, map[string]interface{}{
		"sql":      "SELECT * FROM users;",
		"database": "default",
	})
	if err != nil {
		t.Fatalf("explain returned error: %v", err)
	}
	plan := out["plan"].([]map[string]interface{})
	if len(plan) != 1 || plan[0]["select_type"] != "SIMPLE" {
		t.Fatalf("unexpected plan: %v", plan)
	}
}

func TestRequest_Errors(t *testing.T) {
	gw, mock := newTestGateway(t, ConnectionConfig{})

	tests := []struct {
		name   string
		method string
		path   string
		body   map[string]interface{}
		want   string
	}{
		{"wrong method", "GET", PathQuery, map[string]interface{}{"database": "default"}, "not allowed"},
		{"unknown database", "POST", PathQuery, map[string]interface{}{"database": "other", "sql": "SELECT 1"}, "unknown database"},
		{"unknown endpoint", "POST", "database/drop", map[string]interface{}{"database": "default"}, "unknown endpoint"},
		{"missing sql", "POST", PathQuery, map[string]interface{}{"database": "default"}, "sql is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gw.Request(testCtx(t), tt.method, tt.path, tt.body)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}

	mock.ExpectQuery("SELECT broken").WillReturnError(errors.New("syntax error near broken"))
	_, err := gw.Request(testCtx(t), "POST", PathQuery, map[string]interface{}{"database": "default", "sql": "SELECT broken"})
	if err == nil || !strings.Contains(err.Error(), "syntax error") {
		t.Errorf("expected driver error, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	mock.ExpectClose()

	cfg := ConnectionConfig{Name: "prod", Driver: "postgres", DSN: "postgres://app:secret@db:5432/prod"}
	if err := reg.Attach(cfg, db); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if err := reg.Attach(cfg, db); err == nil {
		t.Error("duplicate name should be rejected")
	}
	if err := reg.Attach(ConnectionConfig{Name: "x", Driver: "oracle"}, db); err == nil {
		t.Error("unsupported driver should be rejected")
	}

	c, err := reg.Get("prod")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if c.Dialect.Name != "postgres" || c.Config.Driver != "pgx" {
		t.Errorf("dialect = %s, driver = %s", c.Dialect.Name, c.Config.Driver)
	}

	list := reg.List()
	if len(list) != 1 || strings.Contains(list[0].DSN, "secret") {
		t.Errorf("List should mask DSNs: %+v", list)
	}
	if names := reg.Names(); len(names) != 1 || names[0] != "prod" {
		t.Errorf("Names = %v", names)
	}
	if _, err := reg.Get("nope"); err == nil {
		t.Error("expected unknown database error")
	}
	if err := reg.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if len(reg.Names()) != 0 {
		t.Error("Close should empty the registry")
	}
}

func TestRegistryOpen_Validation(t *testing.T) {
	reg := NewRegistry()
	ctx := testCtx(t)
	if err := reg.Open(ctx, ConnectionConfig{DSN: "x"}, PoolConfig{}); err == nil {
		t.Error("missing name should fail")
	}
	if err := reg.Open(ctx, ConnectionConfig{Name: "a"}, PoolConfig{}); err == nil {
		t.Error("missing dsn should fail")
	}
	if err := reg.Open(ctx, ConnectionConfig{Name: "a", Driver: "db2", DSN: "x"}, PoolConfig{}); err == nil {
		t.Error("unsupported driver should fail")
	}
}

func TestDialectFor(t *testing.T) {
	tests := map[string]string{
		"":           "mysql",
		"MySQL":      "mysql",
		"pgx":        "postgres",
		"postgresql": "postgres",
		"sqlite3":    "sqlite",
	}
	for in, want := range tests {
		d, err := DialectFor(in)
		if err != nil || d.Name != want {
			t.Errorf("DialectFor(%q) = %s, %v; want %s", in, d.Name, err, want)
		}
	}
}

func TestExplainSQL(t *testing.T) {
	if got := sqliteDialect.ExplainSQL("SELECT 1;"); got != "EXPLAIN QUERY PLAN SELECT 1" {
		t.Errorf("got %q", got)
	}
	if got := mysqlDialect.ExplainSQL("explain select 1"); got != "explain select 1" {
		t.Errorf("got %q", got)
	}
}
