package tasks

import (
	"strings"

	"github.com/five82/immersive/draft"
	"github.com/five82/immersive/state"
)

// Task is a single to-do entry.
type Task struct {
	Task string `yaml:"task"`
	Done bool   `yaml:"done"`
}

// State is the task list shared by every view.
type State struct {
	Tasks []Task `yaml:"tasks"`
}

// DefaultTaskName is used by AddTask when no name is given.
const DefaultTaskName = "New task"

// Default is the list a fresh tasks file starts with.
func Default() State {
	return State{Tasks: []Task{{Task: "hello"}}}
}

// Actions are the named updates of the task list.
type Actions struct {
	AddTask    func(name string)
	RemoveTask func(index int)
	ToggleTask func(index int)
	RenameTask func(index int, name string)
	ReplaceAll func(next State)
	ClearDone  func()
}

// Define binds Actions to a sink.
func Define(modify state.Modify[State]) Actions {
	return Actions{
		AddTask: func(name string) {
			name = strings.TrimSpace(name)
			if name == "" {
				name = DefaultTaskName
			}
			modify(func(d *draft.Draft[State]) {
				d.Append(draft.P("Tasks"), Task{Task: name})
			})
		},
		RemoveTask: func(index int) {
			modify(func(d *draft.Draft[State]) {
				if inRange(d, index) {
					d.Delete(draft.P("Tasks", index))
				}
			})
		},
		ToggleTask: func(index int) {
			modify(func(d *draft.Draft[State]) {
				if inRange(d, index) {
					done := draft.GetAs[bool](d, draft.P("Tasks", index, "Done"))
					d.Set(draft.P("Tasks", index, "Done"), !done)
				}
			})
		},
		RenameTask: func(index int, name string) {
			modify(func(d *draft.Draft[State]) {
				if inRange(d, index) {
					d.Set(draft.P("Tasks", index, "Task"), name)
				}
			})
		},
		ReplaceAll: func(next State) {
			modify(func(d *draft.Draft[State]) {
				d.Replace(next)
			})
		},
		ClearDone: func() {
			modify(func(d *draft.Draft[State]) {
				for i := d.Len(draft.P("Tasks")) - 1; i >= 0; i-- {
					if draft.GetAs[bool](d, draft.P("Tasks", i, "Done")) {
						d.Delete(draft.P("Tasks", i))
					}
				}
			})
		},
	}
}

func inRange(d *draft.Draft[State], index int) bool {
	return index >= 0 && index < d.Len(draft.P("Tasks"))
}

// NewContext creates the shared task list context.
func NewContext(initial State, opts ...state.Option) *state.Context[State, Actions] {
	opts = append([]state.Option{state.WithName("tasks")}, opts...)
	return state.New(initial, Define, opts...)
}

// Counts returns the number of open and done tasks.
func (s State) Counts() (open, done int) {
	for _, t := range s.Tasks {
		if t.Done {
			done++
		} else {
			open++
		}
	}
	return open, done
}
