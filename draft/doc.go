// Package draft produces immutable snapshots by applying field-level writes to
// a copy-on-write view of an existing snapshot.
//
// # Overview
//
// A mutation function receives a *Draft and addresses locations with a Path:
//
//	next := draft.Apply(prev, func(d *draft.Draft[State]) {
//		d.Append(draft.P("Tasks"), Task{Task: "New task"})
//		d.Set(draft.P("Tasks", 0, "Done"), true)
//	})
//
// prev is never written. Only the containers on a written path are copied
// (the Tasks slice above); every other slice, map and pointer target in next
// is the same object as in prev. Downstream consumers can therefore detect
// unchanged subtrees with identity checks instead of deep comparison.
//
// # Paths
//
// Path elements are exported struct field names, slice or array indices and
// map keys. Map keys convert to the map's key type when they belong to the same
// kind family (an int key literal addresses a map[int64]T). Pointers and
// interfaces are followed implicitly; nil pointers on a written path are
// allocated. ParsePath accepts the String form, e.g. "Tasks[0].Done".
//
// # Errors
//
// Addressing mistakes are programmer errors: Draft methods panic with a
// *PathError wrapping ErrPath, ErrIndex, ErrType or ErrUnexported. Apply lets
// every panic propagate. TryApply recovers *PathError panics only.
//
// # Patches
//
// Every write is recorded as a Patch. ApplyWithPatches returns them alongside
// the snapshot and ApplyPatches replays them onto a base, so a sequence of
// actions can be logged and reproduced.
package draft
