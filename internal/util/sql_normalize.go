// internal/util/sql_normalize.go
package util

import "strings"

// NormalizeSQL strips literal contents and comments from a statement so that
// keyword matching is not confused by values or commented-out text.
//
// Quoted literals keep their quote style with empty contents ('' or ""),
// comments (--, #, /* */) are replaced by a single space, whitespace runs are
// collapsed and the result is trimmed. The output is never longer than the
// input and normalizing it again yields the same string.
func NormalizeSQL(sqlText string) string {
	cleaned, _ := ScanSQL(sqlText)
	return cleaned
}

// ScanResult is the outcome of one lexer pass.
type ScanResult struct {
	Cleaned string
	// Unterminated is set when a string literal or block comment runs to
	// end of input; it is absorbed.
	Unterminated bool
	// AmbiguousEscape is set when a literal ends at a different place
	// depending on whether backslash escapes are honoured (MySQL) or not
	// (SQLite, standard PostgreSQL).
	AmbiguousEscape bool
}

// ScanSQL is NormalizeSQL that also reports whether a string literal or block
// comment was left open. An unterminated construct extends to end of input.
func ScanSQL(sqlText string) (cleaned string, unterminated bool) {
	r := Scan(sqlText)
	return r.Cleaned, r.Unterminated
}

// Scan normalizes sqlText. Literals follow standard SQL: only a doubled quote
// escapes, a backslash is an ordinary character. Each literal is also read
// with backslash escapes, and any disagreement is flagged so callers can fail
// closed whatever the target dialect.
func Scan(sqlText string) ScanResult {
	var (
		b   strings.Builder
		res ScanResult
	)
	b.Grow(len(sqlText))

	n := len(sqlText)
	i := 0
	for i < n {
		c := sqlText[i]
		switch {
		case c == '\'' || c == '"':
			end, closed := skipQuoted(sqlText, i, false)
			if bsEnd, bsClosed := skipQuoted(sqlText, i, true); bsEnd != end || bsClosed != closed {
				res.AmbiguousEscape = true
			}
			b.WriteByte(c)
			if closed {
				b.WriteByte(c)
			} else {
				res.Unterminated = true
			}
			i = end

		case c == '-' && i+1 < n && sqlText[i+1] == '-':
			i = skipLine(sqlText, i+2)
			b.WriteByte(' ')

		case c == '#':
			i = skipLine(sqlText, i+1)
			b.WriteByte(' ')

		case c == '/' && i+1 < n && sqlText[i+1] == '*':
			end := strings.Index(sqlText[i+2:], "*/")
			if end < 0 {
				res.Unterminated = true
				i = n
			} else {
				i += 2 + end + 2
			}
			b.WriteByte(' ')

		default:
			b.WriteByte(c)
			i++
		}
	}

	res.Cleaned = strings.Join(strings.Fields(b.String()), " ")
	return res
}

// skipQuoted returns the index just past the literal that opens at start and
// whether a closing quote was found. A doubled quote never terminates the
// literal; a backslash escapes the next byte only when backslashEscapes is
// set.
func skipQuoted(s string, start int, backslashEscapes bool) (int, bool) {
	q := s[start]
	n := len(s)
	j := start + 1
	for j < n {
		switch s[j] {
		case '\\':
			if backslashEscapes {
				j += 2
				continue
			}
		case q:
			if j+1 < n && s[j+1] == q {
				j += 2
				continue
			}
			return j + 1, true
		}
		j++
	}
	return n, false
}

// skipLine returns the index of the next newline at or after i (the newline
// itself is kept so it still separates tokens).
func skipLine(s string, i int) int {
	if idx := strings.IndexByte(s[i:], '\n'); idx >= 0 {
		return i + idx
	}
	return len(s)
}
