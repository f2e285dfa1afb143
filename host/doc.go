// Package host provides the scheduling primitives a state container needs from
// its host environment: a fixed-delay timer and an "run when idle, but no later
// than the timeout" registration, each with an explicit cancellation handle.
//
// Host is the real-time implementation. Callers report activity with Touch;
// idle callbacks run once a full frame (DefaultFrame unless WithFrame is
// given) passes without activity. Every idle registration with a positive
// timeout also fires when the timeout elapses, so a host that never goes quiet
// still runs it. All callbacks, idle or timer, run one at a time.
//
// Manual is a deterministic implementation for tests. Its clock only moves
// on Advance, and idle callbacks only run on Idle:
//
//	sched := host.NewManual()
//	h := sched.RequestIdle(flush, 100*time.Millisecond)
//	sched.Idle()                          // runs flush
//	sched.Advance(100 * time.Millisecond) // no-op, flush already ran
//	h.Cancel()                            // false
package host
