// Package config loads the tasks TUI configuration file.
//
// # Configuration Discovery
//
// Load follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/immersive/config.toml
//  3. If the file doesn't exist, fall back to defaults
//  4. If the file exists but fields are empty, use defaults for those fields
//
// # Default Values
//
//   - Tasks file: ~/.local/share/immersive/tasks.yaml
//   - Log file: ~/.local/share/immersive/tasks.log
//   - Log level: info
//   - Metrics: disabled
//   - Autosave: disabled
//
// # Example
//
//	tasks_file = "~/notes/tasks.yaml"
//	log_level = "debug"
//	metrics_addr = "127.0.0.1:9464"
//	autosave_secs = 30
//
//	# state container tuning
//	select_delay_ms = 16
//	idle_timeout_ms = 200
//	flush_mode = "idle"   # or "delay"
//	flush_delay_ms = 100
//
// Paths beginning with ~ are expanded against the user's home directory and
// made absolute. The state container fields are validated at load time, so
// Config.StateOptions never sees an unknown flush mode from a loaded file.
package config
