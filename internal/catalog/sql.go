package catalog

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

var readOnlyKeywords = []string{"SELECT", "WITH", "SHOW", "EXPLAIN", "VALUES", "TABLE"}

func validateReadOnlySQL(fl validator.FieldLevel) bool {
	return IsReadOnlySQL(fl.Field().String())
}

// IsReadOnlySQL reports whether the statement starts with a read-only
// keyword once leading whitespace, comments and parentheses are skipped.
func IsReadOnlySQL(sql string) bool {
	s := stripLeading(sql)
	end := strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	})
	if end == -1 {
		end = len(s)
	}
	word := strings.ToUpper(s[:end])
	for _, kw := range readOnlyKeywords {
		if word == kw {
			return true
		}
	}
	return false
}

func stripLeading(s string) string {
	for {
		s = strings.TrimLeft(s, " \t\r\n(")
		switch {
		case strings.HasPrefix(s, "--"):
			i := strings.IndexByte(s, '\n')
			if i == -1 {
				return ""
			}
			s = s[i+1:]
		case strings.HasPrefix(s, "/*"):
			i := strings.Index(s, "*/")
			if i == -1 {
				return ""
			}
			s = s[i+2:]
		default:
			return s
		}
	}
}
