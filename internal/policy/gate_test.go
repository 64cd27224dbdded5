// internal/policy/gate_test.go
package policy

import (
	"strings"
	"testing"

	"github.com/askdba/dbquery-skill/internal/skillerr"
)

func TestEvaluate_Order(t *testing.T) {
	cfg := Config{AllowedDatabases: []string{"production", "staging"}}

	tests := []struct {
		name     string
		action   Action
		req      StatementRequest
		wantKind ErrorKind
	}{
		{"missing sql", ActionQuery, StatementRequest{SQL: "  ", Database: "production"}, KindMissingParameter},
		{"missing sql wins over database", ActionQuery, StatementRequest{Database: "secret_db"}, KindMissingParameter},
		{"missing database", ActionQuery, StatementRequest{SQL: "SELECT 1"}, KindMissingParameter},
		{"database not allowed", ActionQuery, StatementRequest{SQL: "SELECT 1", Database: "secret_db"}, KindDatabaseNotAllowed},
		{"not allowed wins over write verb", ActionQuery, StatementRequest{SQL: "DROP TABLE t", Database: "secret_db"}, KindDatabaseNotAllowed},
		{"write via query", ActionQuery, StatementRequest{SQL: "INSERT INTO t VALUES(1)", Database: "production"}, KindSQLNotAllowed},
		{"stacked write via query", ActionQuery, StatementRequest{SQL: "SELECT 1; DROP TABLE users", Database: "production"}, KindSQLNotAllowed},
		{"write via explain", ActionExplain, StatementRequest{SQL: "DELETE FROM t", Database: "production"}, KindSQLNotAllowed},
		{"union injection", ActionQuery, StatementRequest{SQL: "SELECT name FROM users UNION SELECT password FROM admin", Database: "production"}, KindSQLInjectionDetected},
		{"tautology injection", ActionQuery, StatementRequest{SQL: "SELECT * FROM users WHERE id='1' OR 1=1", Database: "production"}, KindSQLInjectionDetected},
		{"injection on execute", ActionExecute, StatementRequest{SQL: "UPDATE t SET a = 1 WHERE id = 1 OR 1=1", Database: "production", Confirm: true}, KindSQLInjectionDetected},
		{"injection wins over confirmation", ActionExecute, StatementRequest{SQL: "DELETE FROM t WHERE 1=1 OR 2=2", Database: "production"}, KindSQLInjectionDetected},
		{"execute allows write verbs", ActionExecute, StatementRequest{SQL: "DELETE FROM users WHERE id=1", Database: "production", Confirm: true}, KindNone},
		{"query allowed", ActionQuery, StatementRequest{SQL: "SELECT id FROM users", Database: "staging"}, KindNone},
		{"list tables needs no sql", ActionListTables, StatementRequest{Database: "production"}, KindNone},
		{"describe needs table", ActionDescribeTable, StatementRequest{Database: "production"}, KindMissingParameter},
		{"describe rejects bad table", ActionDescribeTable, StatementRequest{Database: "production", Table: "users; DROP"}, KindInvalidParameter},
		{"describe allowed", ActionDescribeTable, StatementRequest{Database: "production", Table: "users"}, KindNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate(tt.action, tt.req, cfg)
			if d.Kind != tt.wantKind {
				msg := ""
				if d.Err != nil {
					msg = d.Err.Message
				}
				t.Fatalf("Kind = %v, want %v (%s)", d.Kind, tt.wantKind, msg)
			}
			if d.Allowed != (tt.wantKind == KindNone) {
				t.Errorf("Allowed = %v with kind %v", d.Allowed, d.Kind)
			}
			if !d.Allowed && (d.Err == nil || d.Err.Code != tt.wantKind.Code()) {
				t.Errorf("Err = %+v, want code %s", d.Err, tt.wantKind.Code())
			}
			if !d.Allowed && d.Err.Retriable {
				t.Errorf("policy rejections must not be retriable")
			}
		})
	}
}

func TestEvaluate_AllowList(t *testing.T) {
	allowed := []string{"production", "staging"}
	if d := Evaluate(ActionQuery, StatementRequest{SQL: "SELECT 1", Database: "secret_db"}, Config{AllowedDatabases: allowed}); d.Kind != KindDatabaseNotAllowed {
		t.Fatalf("secret_db: kind = %v", d.Kind)
	} else if !strings.Contains(d.Err.Message, "production") || !strings.Contains(d.Err.Message, "staging") {
		t.Errorf("message %q should cite the allowed set", d.Err.Message)
	}

	if d := Evaluate(ActionQuery, StatementRequest{SQL: "SELECT 1", Database: "production"}, Config{AllowedDatabases: allowed}); !d.Allowed {
		t.Errorf("production should pass, got %v", d.Kind)
	}

	for _, db := range []string{"production", "secret_db", "anything"} {
		if d := Evaluate(ActionQuery, StatementRequest{SQL: "SELECT 1", Database: db}, Config{AllowedDatabases: []string{"*"}}); !d.Allowed {
			t.Errorf("wildcard should admit %q, got %v", db, d.Kind)
		}
	}

	if !DatabaseAllowed("whatever", nil) {
		t.Error("empty allow-list should be treated as unconfigured")
	}
}

func TestEvaluate_Confirmation(t *testing.T) {
	cfg := Config{AllowedDatabases: []string{"default"}}
	base := StatementRequest{SQL: "DELETE FROM users WHERE id=1", Database: "default"}

	for _, confirm := range []interface{}{nil, false, "true", 1, "yes"} {
		req := base
		req.Confirm = confirm
		if d := Evaluate(ActionExecute, req, cfg); d.Kind != KindConfirmationRequired {
			t.Errorf("confirm=%#v: kind = %v, want CONFIRMATION_REQUIRED", confirm, d.Kind)
		}
	}

	req := base
	req.Confirm = true
	if d := Evaluate(ActionExecute, req, cfg); !d.Allowed {
		t.Errorf("confirm=true should pass, got %v", d.Kind)
	}
}

func TestEvaluate_SQLNotAllowedNamesKeyword(t *testing.T) {
	d := Evaluate(ActionQuery, StatementRequest{SQL: "INSERT INTO t VALUES(1)", Database: "default"}, Config{AllowedDatabases: []string{"default"}})
	if d.Err == nil || d.Err.Code != skillerr.CodeSQLNotAllowed {
		t.Fatalf("expected SQL_NOT_ALLOWED, got %+v", d.Err)
	}
	if !strings.Contains(d.Err.Message, "INSERT") {
		t.Errorf("message %q should mention INSERT", d.Err.Message)
	}
	if d.Classification == nil || d.Classification.LeadingKeyword != "INSERT" {
		t.Errorf("classification = %+v", d.Classification)
	}
}

func TestEvaluate_InjectionFindings(t *testing.T) {
	d := Evaluate(ActionQuery, StatementRequest{
		SQL:      "SELECT a FROM t WHERE b = 1 OR 1=1 UNION SELECT pw FROM users",
		Database: "db",
	}, Config{})
	if d.Kind != KindSQLInjectionDetected {
		t.Fatalf("kind = %v", d.Kind)
	}
	if len(d.Findings) != 2 || len(d.Err.Findings) != 2 {
		t.Fatalf("expected 2 findings, got %+v", d.Findings)
	}
	if !strings.Contains(d.Err.Message, d.Findings[0].Message) {
		t.Errorf("message %q should cite the first finding", d.Err.Message)
	}
}

func TestEvaluate_StrictParser(t *testing.T) {
	cfg := Config{StrictParser: true}
	if d := Evaluate(ActionQuery, StatementRequest{SQL: "SELECT * FROM mysql.user", Database: "db"}, cfg); d.Kind != KindSQLNotAllowed {
		t.Errorf("system schema: kind = %v", d.Kind)
	}
	if d := Evaluate(ActionQuery, StatementRequest{SQL: "SELECT id FROM users", Database: "db"}, cfg); !d.Allowed {
		t.Errorf("plain select should pass strict parser, got %v", d.Err)
	}
	if d := Evaluate(ActionQuery, StatementRequest{SQL: "SELECT * FROM mysql.user", Database: "db"}, Config{}); !d.Allowed {
		t.Errorf("strict parser is opt-in, got %v", d.Err)
	}
}

func TestEvaluate_CheckParams(t *testing.T) {
	req := StatementRequest{
		SQL:      "SELECT * FROM users WHERE name = ?",
		Database: "db",
		Params:   []interface{}{"-1' and 1=1 union/* foo */select load_file('/etc/passwd')--"},
	}
	if d := Evaluate(ActionQuery, req, Config{}); !d.Allowed {
		t.Errorf("params are not scanned unless enabled, got %v", d.Err)
	}
	d := Evaluate(ActionQuery, req, Config{CheckParams: true})
	if d.Kind != KindSQLInjectionDetected {
		t.Fatalf("kind = %v", d.Kind)
	}
	if d.Findings[0].PatternID != "param_injection" {
		t.Errorf("finding = %+v", d.Findings[0])
	}
}

func TestEvaluate_AttachesLimits(t *testing.T) {
	d := Evaluate(ActionQuery, StatementRequest{
		SQL:       "SELECT 1",
		Database:  "db",
		Overrides: LimitSource{TimeoutMs: 5000},
	}, Config{Limits: LimitSource{MaxRows: 50}})
	if !d.Allowed {
		t.Fatalf("unexpected rejection: %v", d.Err)
	}
	want := EffectiveLimits{TimeoutMs: 5000, MaxRows: 50, MaxCostUSD: DefaultMaxCostUSD}
	if d.Limits != want {
		t.Errorf("Limits = %+v, want %+v", d.Limits, want)
	}
}

func TestActions(t *testing.T) {
	for _, a := range Actions {
		got, ok := ParseAction(string(a))
		if !ok || got != a {
			t.Errorf("ParseAction(%q) = %q, %v", a, got, ok)
		}
		if a.Endpoint() != "database/"+string(a) {
			t.Errorf("Endpoint() = %q", a.Endpoint())
		}
		if !a.FailureCode().Retriable() {
			t.Errorf("%s failure code should be retriable", a)
		}
	}
	if _, ok := ParseAction("drop_database"); ok {
		t.Error("unknown action accepted")
	}
	if ErrorKind(99).Code() != "" || KindNone.String() != "NONE" {
		t.Error("unexpected kind mapping")
	}
}
