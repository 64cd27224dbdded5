// internal/util/sql_validator.go
package util

import (
	"fmt"
	"regexp"
	"strings"
)

// SQLValidationError contains details about why a query was rejected.
type SQLValidationError struct {
	Reason  string
	Pattern string
}

func (e *SQLValidationError) Error() string {
	if e.Pattern != "" {
		return fmt.Sprintf("%s: %s", e.Reason, e.Pattern)
	}
	return e.Reason
}

// Verdict is the outcome of classifying a statement or one of its fragments.
type Verdict int

const (
	VerdictReadOnly Verdict = iota
	VerdictWrite
	VerdictRejected
)

func (v Verdict) String() string {
	switch v {
	case VerdictReadOnly:
		return "read-only"
	case VerdictWrite:
		return "write"
	case VerdictRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// ClassificationResult is produced once per read-only request.
type ClassificationResult struct {
	Verdict        Verdict
	LeadingKeyword string
	Reason         string
}

// ReadOnly reports whether the whole submission may run on the read path.
func (r ClassificationResult) ReadOnly() bool {
	return r.Verdict == VerdictReadOnly
}

// Err converts a non-read-only result into a *SQLValidationError.
func (r ClassificationResult) Err() error {
	if r.ReadOnly() {
		return nil
	}
	return &SQLValidationError{Reason: r.Reason, Pattern: r.LeadingKeyword}
}

// Leading keywords accepted on the read path.
var readOnlyKeywords = map[string]bool{
	"SELECT":  true,
	"WITH":    true,
	"EXPLAIN": true,
}

// WriteVerbs are leading keywords that mutate schema or data.
var WriteVerbs = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "CREATE", "TRUNCATE",
	"GRANT", "REVOKE", "MERGE", "UPSERT", "REPLACE", "RENAME", "CALL",
	"EXEC", "EXECUTE", "SET",
}

var writeVerbSet = func() map[string]bool {
	m := make(map[string]bool, len(WriteVerbs))
	for _, v := range WriteVerbs {
		m[v] = true
	}
	return m
}()

var (
	leadingWordRegex  = regexp.MustCompile(`^[A-Za-z_]+`)
	stackedWriteRegex = regexp.MustCompile(`(?i);\s*(` + strings.Join(WriteVerbs, "|") + `)\b`)
)

// Fragment is one semicolon-delimited piece of a normalized statement.
type Fragment struct {
	Text    string
	Keyword string
	Kind    Verdict
}

// SplitFragments splits a normalized statement on ';' and classifies the
// leading keyword of every non-empty fragment.
func SplitFragments(cleaned string) []Fragment {
	var out []Fragment
	for _, part := range strings.Split(cleaned, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kw := leadingKeyword(part)
		out = append(out, Fragment{Text: part, Keyword: kw, Kind: keywordKind(kw)})
	}
	return out
}

func leadingKeyword(fragment string) string {
	fields := strings.Fields(fragment)
	if len(fields) == 0 {
		return ""
	}
	token := fields[0]
	if word := leadingWordRegex.FindString(token); word != "" {
		return strings.ToUpper(word)
	}
	return strings.ToUpper(token)
}

func keywordKind(kw string) Verdict {
	switch {
	case readOnlyKeywords[kw]:
		return VerdictReadOnly
	case writeVerbSet[kw]:
		return VerdictWrite
	default:
		return VerdictRejected
	}
}

// ClassifyStatement classifies an already-normalized statement. It is
// read-only only when every fragment is; the first failing fragment decides
// the reported keyword. A semicolon followed by a write verb anywhere in the
// text is rejected as well, independently of the fragment walk.
func ClassifyStatement(cleaned string) ClassificationResult {
	fragments := SplitFragments(cleaned)
	if len(fragments) == 0 {
		return ClassificationResult{Verdict: VerdictRejected, Reason: "empty statement"}
	}

	for _, f := range fragments {
		switch f.Kind {
		case VerdictReadOnly:
			continue
		case VerdictWrite:
			return ClassificationResult{
				Verdict:        VerdictRejected,
				LeadingKeyword: f.Keyword,
				Reason:         fmt.Sprintf("%s statements are not allowed in read-only mode", f.Keyword),
			}
		default:
			return ClassificationResult{
				Verdict:        VerdictRejected,
				LeadingKeyword: f.Keyword,
				Reason:         fmt.Sprintf("statement type %q is not allowed", f.Keyword),
			}
		}
	}

	if m := stackedWriteRegex.FindStringSubmatch(cleaned); m != nil {
		verb := strings.ToUpper(m[1])
		return ClassificationResult{
			Verdict:        VerdictRejected,
			LeadingKeyword: verb,
			Reason:         fmt.Sprintf("%s chained after a semicolon is not allowed", verb),
		}
	}

	return ClassificationResult{
		Verdict:        VerdictReadOnly,
		LeadingKeyword: fragments[0].Keyword,
	}
}

// ClassifySQL normalizes a raw statement and classifies it. An unterminated
// literal or block comment is rejected outright, as is a literal whose end
// depends on backslash escaping.
func ClassifySQL(sqlText string) ClassificationResult {
	scan := Scan(sqlText)
	switch {
	case scan.Unterminated:
		return ClassificationResult{
			Verdict:        VerdictRejected,
			LeadingKeyword: leadingKeyword(scan.Cleaned),
			Reason:         "unterminated string literal or comment",
		}
	case scan.AmbiguousEscape:
		return ClassificationResult{
			Verdict:        VerdictRejected,
			LeadingKeyword: leadingKeyword(scan.Cleaned),
			Reason:         "backslash escape inside a string literal changes where it ends; use a doubled quote",
		}
	}
	return ClassifyStatement(scan.Cleaned)
}

// ValidateReadOnly returns a *SQLValidationError unless sqlText is read-only.
func ValidateReadOnly(sqlText string) error {
	if strings.TrimSpace(sqlText) == "" {
		return &SQLValidationError{Reason: "empty query"}
	}
	return ClassifySQL(sqlText).Err()
}

// IsReadOnlySQL is a convenience wrapper for ValidateReadOnly.
func IsReadOnlySQL(sqlText string) bool {
	return ValidateReadOnly(sqlText) == nil
}
