// internal/util/sql_validator_test.go
package util

import (
	"strings"
	"testing"
)

func TestClassifySQL(t *testing.T) {
	tests := []struct {
		name        string
		sql         string
		wantVerdict Verdict
		wantKeyword string
	}{
		// Read-only
		{"simple select", "SELECT id FROM users", VerdictReadOnly, "SELECT"},
		{"lowercase select", "select * from users", VerdictReadOnly, "SELECT"},
		{"cte", "WITH recent AS (SELECT * FROM orders) SELECT * FROM recent", VerdictReadOnly, "WITH"},
		{"explain", "EXPLAIN SELECT * FROM users", VerdictReadOnly, "EXPLAIN"},
		{"trailing semicolon", "SELECT * FROM users;", VerdictReadOnly, "SELECT"},
		{"two selects", "SELECT 1; SELECT 2", VerdictReadOnly, "SELECT"},
		{"paren after keyword", "SELECT(1)", VerdictReadOnly, "SELECT"},
		{"leading comment", "/* report */ SELECT 1", VerdictReadOnly, "SELECT"},
		{"write verb inside literal", "SELECT 'x; DROP TABLE y' AS s", VerdictReadOnly, "SELECT"},
		{"write verb inside comment", "SELECT 1 -- ; DELETE FROM t", VerdictReadOnly, "SELECT"},

		// Write verbs
		{"insert", "INSERT INTO t VALUES(1)", VerdictRejected, "INSERT"},
		{"update", "UPDATE users SET name = 'x'", VerdictRejected, "UPDATE"},
		{"delete", "delete from users", VerdictRejected, "DELETE"},
		{"drop", "DROP TABLE users", VerdictRejected, "DROP"},
		{"truncate", "TRUNCATE TABLE users", VerdictRejected, "TRUNCATE"},
		{"grant", "GRANT SELECT ON *.* TO 'u'@'%'", VerdictRejected, "GRANT"},
		{"set", "SET @a = 1", VerdictRejected, "SET"},
		{"call", "CALL cleanup()", VerdictRejected, "CALL"},
		{"stacked drop", "SELECT 1; DROP TABLE users", VerdictRejected, "DROP"},
		{"stacked after comment", "SELECT 1 /* c */; DELETE FROM users", VerdictRejected, "DELETE"},

		// Unknown statements fail closed
		{"show", "SHOW TABLES", VerdictRejected, "SHOW"},
		{"describe", "DESCRIBE users", VerdictRejected, "DESCRIBE"},
		{"begin", "BEGIN", VerdictRejected, "BEGIN"},
		{"stacked unknown", "SELECT 1; FLUSH PRIVILEGES", VerdictRejected, "FLUSH"},

		// Malformed
		{"empty", "", VerdictRejected, ""},
		{"only semicolons", " ; ; ", VerdictRejected, ""},
		{"only comment", "-- nothing", VerdictRejected, ""},
		{"unterminated literal", "SELECT 'abc; DROP TABLE t", VerdictRejected, "SELECT"},
		{"unterminated comment", "SELECT 1 /* ; DROP TABLE t", VerdictRejected, "SELECT"},
		{"backslash hides stacked drop", `SELECT 'C:\'; /**/DROP TABLE victims; --'`, VerdictRejected, "SELECT"},
		{"backslash escaped quote", `SELECT 'it\'s' AS s`, VerdictRejected, "SELECT"},
		{"backslash path", `SELECT 'C:\path' AS p`, VerdictReadOnly, "SELECT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifySQL(tt.sql)
			if got.Verdict != tt.wantVerdict {
				t.Errorf("ClassifySQL(%q) verdict = %v, want %v (reason %q)", tt.sql, got.Verdict, tt.wantVerdict, got.Reason)
			}
			if got.LeadingKeyword != tt.wantKeyword {
				t.Errorf("ClassifySQL(%q) keyword = %q, want %q", tt.sql, got.LeadingKeyword, tt.wantKeyword)
			}
			if got.Verdict != VerdictReadOnly && got.Reason == "" {
				t.Errorf("ClassifySQL(%q) rejected without a reason", tt.sql)
			}
		})
	}
}

func TestClassifySQL_ReasonNamesVerb(t *testing.T) {
	got := ClassifySQL("SELECT 1; DROP TABLE users")
	if got.ReadOnly() {
		t.Fatal("expected stacked DROP to be rejected")
	}
	if !strings.Contains(got.Reason, "DROP") {
		t.Errorf("reason %q should mention DROP", got.Reason)
	}

	err := got.Err()
	if err == nil {
		t.Fatal("expected Err() to return an error")
	}
	vErr, ok := err.(*SQLValidationError)
	if !ok {
		t.Fatalf("expected *SQLValidationError, got %T", err)
	}
	if vErr.Pattern != "DROP" {
		t.Errorf("Pattern = %q, want DROP", vErr.Pattern)
	}
}

func TestSplitFragments(t *testing.T) {
	frags := SplitFragments("SELECT 1; ; insert into t values(1);")
	if len(frags) != 2 {
		t.Fatalf("expected 2 fragments, got %d: %+v", len(frags), frags)
	}
	if frags[0].Keyword != "SELECT" || frags[0].Kind != VerdictReadOnly {
		t.Errorf("fragment 0 = %+v", frags[0])
	}
	if frags[1].Keyword != "INSERT" || frags[1].Kind != VerdictWrite {
		t.Errorf("fragment 1 = %+v", frags[1])
	}
}

func TestWriteVerbsAreRejected(t *testing.T) {
	for _, verb := range WriteVerbs {
		t.Run(verb, func(t *testing.T) {
			res := ClassifyStatement(verb + " something")
			if res.ReadOnly() {
				t.Fatalf("%s classified as read-only", verb)
			}
			if res.LeadingKeyword != verb {
				t.Errorf("keyword = %q, want %q", res.LeadingKeyword, verb)
			}
			if !strings.Contains(res.Reason, verb) {
				t.Errorf("reason %q should mention %s", res.Reason, verb)
			}
		})
	}
}

func TestValidateReadOnly(t *testing.T) {
	if err := ValidateReadOnly("   "); err == nil {
		t.Error("expected error for blank query")
	}
	if err := ValidateReadOnly("SELECT 1"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if IsReadOnlySQL("UPDATE t SET a = 1") {
		t.Error("UPDATE reported as read-only")
	}
}

func TestVerdictString(t *testing.T) {
	tests := map[Verdict]string{
		VerdictReadOnly: "read-only",
		VerdictWrite:    "write",
		VerdictRejected: "rejected",
		Verdict(42):     "unknown",
	}
	for v, want := range tests {
		if got := v.String(); got != want {
			t.Errorf("Verdict(%d).String() = %q, want %q", int(v), got, want)
		}
	}
}

func TestSQLValidationError(t *testing.T) {
	err := &SQLValidationError{Reason: "bad", Pattern: "DROP"}
	if err.Error() != "bad: DROP" {
		t.Errorf("got %q", err.Error())
	}
	err2 := &SQLValidationError{Reason: "only reason"}
	if err2.Error() != "only reason" {
		t.Errorf("got %q", err2.Error())
	}
}
