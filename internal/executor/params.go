package executor

import (
	"strconv"
	"strings"
)

// placeholderStyle is the bind parameter syntax of a database driver.
type placeholderStyle int

const (
	placeholderDollar   placeholderStyle = iota // $1, $2 (postgres)
	placeholderQuestion                         // ? (mysql)
	placeholderAtP                              // @p1, @p2 (sqlserver)
)

// namedQuery is a statement rewritten from :name parameters to driver
// placeholders.
type namedQuery struct {
	SQL string

	// Params lists the parameter name of each positional argument.
	Params []string

	// Referenced holds every distinct name used in the statement.
	Referenced map[string]bool
}

// compileNamed rewrites :name parameters in query. String literals, quoted
// identifiers, comments, dollar-quoted bodies and :: casts are left alone;
// \: produces a literal colon.
func compileNamed(query string, style placeholderStyle) namedQuery {
	var (
		b     strings.Builder
		nq    = namedQuery{Referenced: map[string]bool{}}
		index = map[string]int{}
	)
	b.Grow(len(query))

	for i := 0; i < len(query); {
		c := query[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			end := skipQuoted(query, i, c)
			b.WriteString(query[i:end])
			i = end

		case c == '-' && strings.HasPrefix(query[i:], "--"):
			end := strings.IndexByte(query[i:], '\n')
			if end == -1 {
				end = len(query) - i
			}
			b.WriteString(query[i : i+end])
			i += end

		case c == '/' && strings.HasPrefix(query[i:], "/*"):
			end := strings.Index(query[i+2:], "*/")
			if end == -1 {
				end = len(query)
			} else {
				end = i + 2 + end + 2
			}
			b.WriteString(query[i:end])
			i = end

		case c == '$':
			end := skipDollarQuoted(query, i)
			b.WriteString(query[i:end])
			i = end

		case c == '\\' && i+1 < len(query) && query[i+1] == ':':
			b.WriteByte(':')
			i += 2

		case c == ':' && i+1 < len(query) && query[i+1] == ':':
			b.WriteString("::")
			i += 2

		case c == ':' && i+1 < len(query) && isIdentStart(query[i+1]):
			end := i + 1
			for end < len(query) && isIdentPart(query[end]) {
				end++
			}
			name := query[i+1 : end]
			nq.Referenced[name] = true

			switch style {
			case placeholderQuestion:
				nq.Params = append(nq.Params, name)
				b.WriteByte('?')
			default:
				n, seen := index[name]
				if !seen {
					nq.Params = append(nq.Params, name)
					n = len(nq.Params)
					index[name] = n
				}
				if style == placeholderAtP {
					b.WriteString("@p")
				} else {
					b.WriteByte('$')
				}
				b.WriteString(strconv.Itoa(n))
			}
			i = end

		default:
			b.WriteByte(c)
			i++
		}
	}

	nq.SQL = b.String()
	return nq
}

// skipQuoted returns the index just past the quoted run starting at start.
// A doubled quote character is an escaped quote.
func skipQuoted(s string, start int, quote byte) int {
	for i := start + 1; i < len(s); i++ {
		if s[i] != quote {
			continue
		}
		if i+1 < len(s) && s[i+1] == quote {
			i++
			continue
		}
		return i + 1
	}
	return len(s)
}

// skipDollarQuoted returns the index just past a $tag$...$tag$ body starting
// at start, or start+1 when s[start] does not open one.
func skipDollarQuoted(s string, start int) int {
	end := start + 1
	if end < len(s) && s[end] >= '0' && s[end] <= '9' {
		return end
	}
	for end < len(s) && isIdentPart(s[end]) {
		end++
	}
	if end >= len(s) || s[end] != '$' {
		return start + 1
	}
	tag := s[start : end+1]
	closing := strings.Index(s[end+1:], tag)
	if closing == -1 {
		return len(s)
	}
	return end + 1 + closing + len(tag)
}

func isIdentStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}
