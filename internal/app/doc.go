// Package app is the composition root of the tasks program.
//
// Run loads the config, prefs and tasks file, opens the text log, and mounts
// one Provider of the shared task list on a real-time host scheduler. Every
// state event goes to both the log and a Prometheus registry. It then runs,
// under one errgroup:
//
//   - the Bubble Tea UI, which ends the group when the user quits
//   - a watcher on the tasks file that reloads it when it changes on disk
//   - the /metrics endpoint, when metrics_addr is set
//   - autosave, when autosave_secs is set
//
// # Data Flow
//
//	tasks.yaml ──watch──> store.Reload ──ReplaceAll──> Provider ──> selectors ──> UI
//	                                                     ^   │
//	                         UI list actions ────────────┘   └──> local overlay ──flush──┐
//	                                                     ^                               │
//	                                                     └───────────────────────────────┘
//	Provider ──store.Save / autosave──> tasks.yaml
//
// A reload that matches the shared list is skipped, so the watcher seeing
// the program's own saves does not publish anything. A reload that differs
// is an upstream change: it discards whatever a local overlay has staged.
//
// # Errors
//
// Config, log and tasks file problems at startup are returned from Run.
// Reload and autosave failures are logged and retried; autosave backs off
// exponentially up to five minutes.
package app
