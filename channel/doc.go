// Package channel publishes successive immutable snapshots of a value to
// subscribers.
//
// A Channel holds one snapshot and a version counter. Write derives the next
// snapshot through a draft (see package draft), Replace swaps it outright and
// ReplaceIf swaps it only if no one else published in the meantime.
//
// # Delivery
//
// Listeners never run concurrently with each other. A publish that happens
// while listeners are being notified, from a listener or from another
// goroutine, is applied at once and folded into the running delivery pass,
// which goes around again with the newest snapshot. Listeners therefore see
// versions in increasing order and always end on the latest one, though
// intermediate versions may be skipped.
//
// # Selectors
//
// Select subscribes to a projection of the snapshot:
//
//	count := channel.Select(ch, func(s State) int { return len(s.Tasks) },
//		channel.WithOnChange(func(n int) { fmt.Println("tasks:", n) }))
//	defer count.Close()
//
// WithOnChange is called only when the projection differs from the last one
// delivered under the selector's Equal (Shallow unless WithEqual is given).
// A selector is either synchronous or debounced (WithDelay), never both: a
// debounced selector evaluates once publishes have settled for the delay.
package channel
