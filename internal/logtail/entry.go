package logtail

import (
	"strconv"
	"strings"
	"time"
)

// Attr is one key=value pair of a log record beyond time, level and msg.
type Attr struct {
	Key   string
	Value string
}

// Entry is one parsed slog text record.
type Entry struct {
	Time  time.Time
	Level string
	Msg   string
	Attrs []Attr
}

// Get returns the value of the first attribute named key.
func (e Entry) Get(key string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// Parse reads a line written by slog.TextHandler. It reports false when the
// line has no msg key.
func Parse(line string) (Entry, bool) {
	var entry Entry
	hasMsg := false
	rest := strings.TrimSpace(line)
	for rest != "" {
		key, value, tail, ok := nextPair(rest)
		if !ok {
			return Entry{}, false
		}
		rest = tail
		switch key {
		case "time":
			if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
				entry.Time = ts
				continue
			}
			entry.Attrs = append(entry.Attrs, Attr{Key: key, Value: value})
		case "level":
			entry.Level = value
		case "msg":
			entry.Msg = value
			hasMsg = true
		default:
			entry.Attrs = append(entry.Attrs, Attr{Key: key, Value: value})
		}
	}
	return entry, hasMsg
}

func nextPair(s string) (key, value, rest string, ok bool) {
	eq := strings.IndexByte(s, '=')
	if eq <= 0 || strings.ContainsAny(s[:eq], " \"") {
		return "", "", "", false
	}
	key = s[:eq]
	s = s[eq+1:]

	if strings.HasPrefix(s, `"`) {
		end := closingQuote(s)
		if end < 0 {
			return "", "", "", false
		}
		unquoted, err := strconv.Unquote(s[:end+1])
		if err != nil {
			return "", "", "", false
		}
		return key, unquoted, strings.TrimLeft(s[end+1:], " "), true
	}

	if sp := strings.IndexByte(s, ' '); sp >= 0 {
		return key, s[:sp], strings.TrimLeft(s[sp:], " "), true
	}
	return key, s, "", true
}

func closingQuote(s string) int {
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return -1
}
