// Package state is a shared state container for UI programs, built from an
// initial snapshot and a set of named actions.
//
// A Context describes the state; Provide mounts it, returning a
// context.Context that carries the Provider. Hooks resolve the Provider from
// that context.Context:
//
//	todos := state.New(Todos{}, func(modify state.Modify[Todos]) Actions {
//		return Actions{
//			Add: func(name string) {
//				modify(func(d *draft.Draft[Todos]) {
//					d.Append(draft.P("Tasks"), Task{Task: name})
//				})
//			},
//		}
//	})
//
//	ctx, p := todos.Provide(context.Background())
//	defer p.Close()
//
//	tasks := state.UseSelectState(ctx, todos, func(t Todos) []Task { return t.Tasks })
//	todos.UseActions(ctx).Add("write docs")
//	fmt.Println(len(tasks.Value())) // 1
//
// Every action call produces a new immutable snapshot through package draft;
// untouched parts are shared with the previous snapshot. Hooks called with a
// context.Context that has no Provider for the Context, or whose Provider was
// closed, panic with a *HookError wrapping ErrNoProvider or ErrClosed.
//
// # Local overlays
//
// UseLocalUpdates returns a Local: a private copy of the global snapshot with
// its own actions and selectors. Local actions change only the copy, and
// schedule a flush that writes the copy back once the host is idle (bounded
// by the idle timeout) or, in FlushDelay mode, after a fixed delay. Each
// further local change restarts the wait, so a burst of changes is flushed
// once. A global change made by anyone else replaces the copy and cancels
// the flush; local changes that had not been flushed are lost.
//
// # Scheduling
//
// Providers schedule through a host.Scheduler. Without WithScheduler each
// Provider runs its own host.Host; tests pass a host.Manual to control time.
package state
