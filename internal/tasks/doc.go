// Package tasks is the task list domain of the tasks TUI: the State shared
// through a state.Context, the Actions that change it, and the YAML file it
// is stored in.
//
// A tasks file looks like:
//
//	tasks:
//	  - task: hello
//	    done: false
//
// Load falls back to a single "hello" task when the file does not exist, so
// a first run starts with something on screen.
package tasks
