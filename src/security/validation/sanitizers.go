// backend/src/validation/sanitizers.go
package validation

import (
	"strings"
	"unicode"
)

// SanitizeForFormulaInjection neutralizes spreadsheet formula triggers. A
// value starting with =, +, -, @ or a control prefix gets a leading quote
// so spreadsheet software treats it as text when the data is re-exported.
func SanitizeForFormulaInjection(s string) string {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) == 0 {
		return s
	}
	switch rune(trimmed[0]) {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + s
	}
	return s
}

// StripUnprintable drops non-printable characters, keeping common
// whitespace (space, tab, newline, carriage return).
func StripUnprintable(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		return -1
	}, s)
}
