// Package ui is the Bubble Tea front end of the tasks program.
//
// The model never owns task data. New looks up the Provider mounted on the
// context it is given and subscribes two selectors to it: one on the shared
// list, used for the header counts, and one on a local overlay, used for the
// rows. Selector callbacks run on whatever goroutine published the change,
// so they only poke a one-slot channel; a command blocked on that channel
// turns the poke into a changeMsg on the Bubble Tea goroutine.
//
// List actions (add, delete, toggle, clear) dispatch straight to the shared
// list. Renaming goes through the overlay: each keystroke rewrites the task
// locally and the overlay flushes the result once the program goes idle.
// Escape restores the original name the same way; Enter commits whatever is
// still staged immediately.
//
// Theme, hidden-done and log pane toggles are persisted through prefs.
package ui
