package logtail

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestRead(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	var content strings.Builder
	var expectedAll []string
	for i := 1; i <= 10; i++ {
		line := fmt.Sprintf("Line %d", i)
		content.WriteString(line + "\n")
		expectedAll = append(expectedAll, line)
	}
	if err := os.WriteFile(logPath, []byte(content.String()), 0o644); err != nil {
		t.Fatalf("failed to create test log file: %v", err)
	}

	tests := []struct {
		name     string
		maxLines int
		expected []string
	}{
		{name: "zero", maxLines: 0, expected: nil},
		{name: "negative", maxLines: -1, expected: nil},
		{name: "partial", maxLines: 5, expected: expectedAll[5:]},
		{name: "exactly all", maxLines: 10, expected: expectedAll},
		{name: "more than exists", maxLines: 20, expected: expectedAll},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Read(logPath, tt.maxLines)
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Read() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRead_MissingFile(t *testing.T) {
	got, err := Read(filepath.Join(t.TempDir(), "nope.log"), 10)
	if err != nil || got != nil {
		t.Fatalf("Read() = %v, %v, want nil, nil", got, err)
	}
}

func TestParse(t *testing.T) {
	line := `time=2026-10-19T09:14:02.113Z level=WARN msg="write dropped" source=tasks reason="channel closed" version=7`
	got, ok := Parse(line)
	if !ok {
		t.Fatalf("Parse() ok = false, want true")
	}
	want := Entry{
		Time:  time.Date(2026, 10, 19, 9, 14, 2, 113000000, time.UTC),
		Level: "WARN",
		Msg:   "write dropped",
		Attrs: []Attr{
			{Key: "source", Value: "tasks"},
			{Key: "reason", Value: "channel closed"},
			{Key: "version", Value: "7"},
		},
	}
	if !got.Time.Equal(want.Time) {
		t.Fatalf("Time = %v, want %v", got.Time, want.Time)
	}
	got.Time = want.Time
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Parse() = %+v, want %+v", got, want)
	}
	if v, ok := got.Get("reason"); !ok || v != "channel closed" {
		t.Fatalf("Get(reason) = %q, %v, want %q, true", v, ok, "channel closed")
	}
}

func TestParse_EscapedQuotes(t *testing.T) {
	got, ok := Parse(`level=INFO msg="rename \"milk\" done"`)
	if !ok {
		t.Fatalf("Parse() ok = false, want true")
	}
	if got.Msg != `rename "milk" done` {
		t.Fatalf("Msg = %q, want %q", got.Msg, `rename "milk" done`)
	}
}

func TestParse_Rejects(t *testing.T) {
	for _, line := range []string{
		"",
		"plain text line",
		`level=INFO source=tasks`,
		`msg="unterminated`,
	} {
		if _, ok := Parse(line); ok {
			t.Errorf("Parse(%q) ok = true, want false", line)
		}
	}
}

func TestTail_KeepsRawLines(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "tasks.log")
	content := "panic: boom\nlevel=INFO msg=channel.publish version=2\n"
	if err := os.WriteFile(logPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	entries, err := Tail(logPath, 10)
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(Tail) = %d, want 2", len(entries))
	}
	if entries[0].Msg != "panic: boom" || entries[0].Level != "" {
		t.Fatalf("entries[0] = %+v, want raw message", entries[0])
	}
	if entries[1].Msg != "channel.publish" || entries[1].Level != "INFO" {
		t.Fatalf("entries[1] = %+v, want parsed record", entries[1])
	}
}
