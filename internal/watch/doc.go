// Package watch turns filesystem events for one file into debounced reload
// calls. The tasks TUI uses it so edits made to the tasks file outside the
// program show up as global state changes.
package watch
