// Package logtail reads the tail of the tasks log file for display in the TUI.
//
// Read extracts the last N lines of a file in one pass with a ring buffer, so
// memory stays proportional to N regardless of file size. A missing file
// yields no lines rather than an error.
//
// The log is written by slog.TextHandler, so each line is a sequence of
// key=value pairs with time, level and msg first:
//
//	time=2026-10-19T09:14:02.113Z level=INFO msg=local.flush source=tasks/local version=7
//
// Parse splits such a line into an Entry, unquoting quoted values. Tail
// combines the two, keeping unparseable lines as bare messages.
package logtail
