package draft

// Op is the kind of change a Patch records.
type Op string

const (
	OpReplace Op = "replace"
	OpAdd     Op = "add"
	OpRemove  Op = "remove"
)

// Patch is one recorded draft write. Add and remove patches address slice
// elements; replace patches address any location, including the root (empty
// path).
type Patch struct {
	Op    Op
	Path  Path
	Value any
}

// ApplyPatches replays patches onto base, in order, and returns the result.
// Replaying the patches recorded by ApplyWithPatches against the same base
// yields an equal snapshot.
func ApplyPatches[T any](base T, patches []Patch) T {
	return Apply(base, func(d *Draft[T]) {
		for _, p := range patches {
			switch p.Op {
			case OpReplace:
				d.Set(p.Path, p.Value)
			case OpAdd:
				if len(p.Path) == 0 {
					fail("add", p.Path, ErrPath)
				}
				parent, last := p.Path[:len(p.Path)-1], p.Path[len(p.Path)-1]
				if idx, ok := last.(int); ok {
					d.Splice(parent, idx, 0, p.Value)
					continue
				}
				d.Set(p.Path, p.Value)
			case OpRemove:
				d.Delete(p.Path)
			default:
				failf(string(p.Op), p.Path, ErrPath, "unknown op")
			}
		}
	})
}
