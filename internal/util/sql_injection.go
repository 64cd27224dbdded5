// internal/util/sql_injection.go
package util

import (
	"fmt"
	"regexp"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionFinding is one heuristic match. Findings are advisory: an empty
// result only means none of the known shapes matched.
type InjectionFinding struct {
	PatternID string `json:"patternId"`
	Message   string `json:"message"`
}

// Checked in this order; ScanForInjection reports matches in the same order.
var injectionPatterns = []struct {
	id      string
	pattern *regexp.Regexp
	message string
}{
	{
		"numeric_tautology",
		regexp.MustCompile(`(?i)\bOR\s+\d+\s*=\s*\d+`),
		"numeric tautology (OR n=n) detected",
	},
	{
		"string_tautology",
		regexp.MustCompile(`(?i)\bOR\s+'[^']*'\s*=\s*'[^']*'`),
		"string tautology (OR 'a'='a') detected",
	},
	{
		"union_select",
		regexp.MustCompile(`(?i)\bUNION\s+(ALL\s+)?SELECT\b`),
		"UNION-based SELECT detected",
	},
	{
		"stacked_write",
		regexp.MustCompile(`(?i);\s*(` + strings.Join(WriteVerbs, "|") + `)\b`),
		"statement chaining with a write verb detected",
	},
	{
		"waitfor_delay",
		regexp.MustCompile(`(?i)\bWAITFOR\s+DELAY\b`),
		"time-based delay (WAITFOR DELAY) detected",
	},
	{
		"benchmark",
		regexp.MustCompile(`(?i)\bBENCHMARK\s*\(`),
		"time-based delay (BENCHMARK) detected",
	},
	{
		"sleep",
		regexp.MustCompile(`(?i)\b(PG_)?SLEEP\s*\(`),
		"time-based delay (SLEEP) detected",
	},
	{
		"string_concat",
		regexp.MustCompile("'\\s*\\+\\s*|`\\$\\{"),
		"string concatenation idiom detected",
	},
}

// ScanForInjection matches the raw, unnormalized statement against the known
// attack shapes and returns every finding.
func ScanForInjection(sqlText string) []InjectionFinding {
	var findings []InjectionFinding
	for _, p := range injectionPatterns {
		if p.pattern.MatchString(sqlText) {
			findings = append(findings, InjectionFinding{PatternID: p.id, Message: p.message})
		}
	}
	return findings
}

// ScanParams runs libinjection over string bound parameters. Non-string
// values cannot carry SQL and are skipped.
func ScanParams(params []interface{}) []InjectionFinding {
	var findings []InjectionFinding
	for i, p := range params {
		s, ok := p.(string)
		if !ok || s == "" {
			continue
		}
		if isSQLi, fingerprint := libinjection.IsSQLi(s); isSQLi {
			findings = append(findings, InjectionFinding{
				PatternID: "param_injection",
				Message:   fmt.Sprintf("parameter %d looks like SQL injection (fingerprint %s)", i+1, fingerprint),
			})
		}
	}
	return findings
}
