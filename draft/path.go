package draft

import (
	"fmt"
	"strconv"
	"strings"
)

// Path addresses a location inside a snapshot. Elements are exported struct
// field names (string), slice or array indices (int) and map keys. Pointer and
// interface hops are implicit.
type Path []any

// P builds a Path from its elements.
func P(elems ...any) Path {
	return Path(elems)
}

// Join returns a new path with elems appended. The receiver is not modified.
func (p Path) Join(elems ...any) Path {
	out := make(Path, 0, len(p)+len(elems))
	out = append(out, p...)
	return append(out, elems...)
}

// String renders the path as Field.Sub[0][key]. String keys that would not
// parse back bare are quoted, as in Labels["a.b"].
func (p Path) String() string {
	if len(p) == 0 {
		return "."
	}
	var b strings.Builder
	for i, elem := range p {
		switch v := elem.(type) {
		case int:
			fmt.Fprintf(&b, "[%d]", v)
		case string:
			if needsQuote(v) {
				fmt.Fprintf(&b, "[%s]", strconv.Quote(v))
				continue
			}
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteString(v)
		default:
			fmt.Fprintf(&b, "[%v]", v)
		}
	}
	return b.String()
}

// ParsePath parses the String form back into a Path. Bracketed segments that
// parse as integers become ints, everything else stays a string. Quoted
// bracket segments ("[\"0\"]") are always strings.
func ParsePath(s string) (Path, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "." {
		return Path{}, nil
	}

	var out Path
	i := 0
	for i < len(s) {
		switch s[i] {
		case '.':
			i++
			if i >= len(s) || s[i] == '.' || s[i] == '[' {
				return nil, fmt.Errorf("%w: empty field at offset %d in %q", ErrPath, i, s)
			}
		case '[':
			if i+1 < len(s) && s[i+1] == '"' {
				quoted, err := strconv.QuotedPrefix(s[i+1:])
				if err != nil {
					return nil, fmt.Errorf("%w: bad quoted key in %q", ErrPath, s)
				}
				rb := i + 1 + len(quoted)
				if rb >= len(s) || s[rb] != ']' {
					return nil, fmt.Errorf("%w: unterminated bracket in %q", ErrPath, s)
				}
				key, _ := strconv.Unquote(quoted)
				out = append(out, key)
				i = rb + 1
				continue
			}
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated bracket in %q", ErrPath, s)
			}
			raw := s[i+1 : i+end]
			if raw == "" {
				return nil, fmt.Errorf("%w: empty bracket in %q", ErrPath, s)
			}
			if unquoted, err := strconv.Unquote(raw); err == nil {
				out = append(out, unquoted)
			} else if n, err := strconv.Atoi(raw); err == nil {
				out = append(out, n)
			} else {
				out = append(out, raw)
			}
			i += end + 1
			continue
		}

		j := i
		for j < len(s) && s[j] != '.' && s[j] != '[' {
			j++
		}
		out = append(out, s[i:j])
		i = j
	}
	return out, nil
}

// needsQuote reports whether a string element would not parse back bare.
func needsQuote(s string) bool {
	return s == "" || strings.ContainsAny(s, ".[]\"") || strings.TrimSpace(s) != s
}
