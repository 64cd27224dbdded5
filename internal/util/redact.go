// internal/util/redact.go
package util

import "regexp"

// RedactionMarker replaces every scrubbed value.
const RedactionMarker = "[REDACTED]"

// quotedValue matches a single- or double-quoted value, including the
// backslash-escaped double quotes of JSON embedded in text.
const quotedValue = `'[^']*'|\\?"[^"\\]*\\?"`

// assignment matches key=value or key: value, where the key may itself be
// quoted and the value is either quoted or a bare run matching bare.
func assignment(keys, bare string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b(` + keys + `)(\\?["']?\s*[=:]\s*)(?:` + quotedValue + `|` + bare + `)`)
}

const assigned = "${1}${2}" + RedactionMarker

// Applied in order. Bare values stop at whitespace, quotes and list separators.
var redactionRules = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	// host / hostname / server assignments
	{assignment(`host|hostname|server`, `[^\s;,'"]+`), assigned},
	// port assignments
	{assignment(`port`, `\d+`), assigned},
	// passwords; short bare values are left alone to avoid eating benign tokens
	{assignment(`password|passwd|pwd`, `[^\s;,'"]{4,}`), assigned},
	// user / username assignments
	{assignment(`user|username`, `[^\s;,'"]+`), assigned},
	// connection strings
	{assignment(`connection[_ ]?string|dsn|jdbc|odbc`, `[^\s'"]+`), assigned},
	// connection URIs
	{regexp.MustCompile(`(?i)\b(mysql|postgres|postgresql|mssql|mongodb|redis)://[^\s'"]+`), "${1}://" + RedactionMarker},
	// go-sql-driver DSNs: user:pass@tcp(host:port)/db
	{regexp.MustCompile(`[^\s:@/'"]+:[^\s@'"]*@(tcp|unix)\([^)]*\)\S*`), RedactionMarker},
	// api keys, secrets, tokens
	{assignment(`api[_-]?key|secret|access[_-]?token|token`, `[^\s;,'"]+`), assigned},
	// bearer credentials
	{regexp.MustCompile(`(?i)\b(bearer)\s+[A-Za-z0-9._~+/=-]+`), "${1} " + RedactionMarker},
}

// Redact scrubs hosts, ports, credentials, connection strings and tokens from
// human-readable text.
func Redact(text string) string {
	if text == "" {
		return text
	}
	for _, r := range redactionRules {
		text = r.pattern.ReplaceAllString(text, r.replacement)
	}
	return text
}
