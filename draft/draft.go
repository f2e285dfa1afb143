package draft

import (
	"errors"
	"reflect"
	"strings"
)

// Draft is the mutable view of a snapshot handed to a mutation function. It
// is only valid for the duration of the Apply call that created it.
//
// Writes copy every container on the written path the first time it is
// touched (path copying). Containers copied during this Apply are owned by
// the draft and are written in place afterwards; everything else is shared
// with the base snapshot and never written.
type Draft[T any] struct {
	root    reflect.Value
	owned   map[uintptr]any
	patches []Patch
}

// Apply produces a new snapshot from base by running mutate against a draft.
// base is never modified. Panics raised by mutate propagate to the caller.
func Apply[T any](base T, mutate func(d *Draft[T])) T {
	d := newDraft(base)
	if mutate != nil {
		mutate(d)
	}
	return d.result()
}

// ApplyWithPatches is Apply that also returns the patches recorded while
// mutate ran, in order.
func ApplyWithPatches[T any](base T, mutate func(d *Draft[T])) (T, []Patch) {
	d := newDraft(base)
	if mutate != nil {
		mutate(d)
	}
	return d.result(), d.patches
}

// TryApply is Apply that converts a *PathError panic into an error. Any other
// panic is re-raised. On error base is returned unchanged.
func TryApply[T any](base T, mutate func(d *Draft[T])) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			rerr, ok := r.(error)
			var pe *PathError
			if !ok || !errors.As(rerr, &pe) {
				panic(r)
			}
			out, err = base, pe
		}
	}()
	return Apply(base, mutate), nil
}

func newDraft[T any](base T) *Draft[T] {
	root := reflect.New(reflect.TypeFor[T]()).Elem()
	root.Set(reflect.ValueOf(&base).Elem())
	return &Draft[T]{root: root, owned: make(map[uintptr]any)}
}

func (d *Draft[T]) result() T {
	var out T
	reflect.ValueOf(&out).Elem().Set(d.root)
	return out
}

// Current returns the draft's value as it stands. Containers already copied
// by this draft may still change if the draft is written again.
func (d *Draft[T]) Current() T {
	return d.result()
}

// Patches returns the patches recorded so far.
func (d *Draft[T]) Patches() []Patch {
	return append([]Patch(nil), d.patches...)
}

// Get reads the value at path. Missing map keys read as the zero value.
func (d *Draft[T]) Get(path Path) any {
	v := lookup("get", d.root, path)
	if !v.IsValid() {
		return nil
	}
	return v.Interface()
}

// Len returns the length of the slice, array, map or string at path.
func (d *Draft[T]) Len(path Path) int {
	v := deref(lookup("len", d.root, path))
	switch v.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
		return v.Len()
	case reflect.Invalid:
		return 0
	}
	failf("len", path, ErrType, "%s has no length", v.Type())
	return 0
}

// GetAs reads the value at path as V.
func GetAs[V, T any](d *Draft[T], path Path) V {
	var out V
	v := lookup("get", d.root, path)
	if !v.IsValid() {
		return out
	}
	target := reflect.ValueOf(&out).Elem()
	target.Set(assignable("get", path, v.Interface(), target.Type()))
	return out
}

// Replace swaps the whole draft value for v.
func (d *Draft[T]) Replace(v T) {
	d.root.Set(reflect.ValueOf(&v).Elem())
	d.release(d.root)
	d.record(Patch{Op: OpReplace, Path: Path{}, Value: v})
}

// Set assigns value at path. Numeric values convert between kinds of the same
// family; nil clears pointers, slices, maps and interfaces.
func (d *Draft[T]) Set(path Path, value any) {
	if len(path) == 0 {
		rv := assignable("set", path, value, d.root.Type())
		d.root.Set(rv)
		d.release(rv)
		d.record(Patch{Op: OpReplace, Path: Path{}, Value: rv.Interface()})
		return
	}
	var stored any
	d.write("set", path, false, func(target reflect.Value) {
		rv := assignable("set", path, value, target.Type())
		if !target.CanSet() {
			fail("set", path, ErrUnexported)
		}
		target.Set(rv)
		d.release(rv)
		stored = rv.Interface()
	})
	d.record(Patch{Op: OpReplace, Path: path, Value: stored})
}

// Update replaces the value at path with fn applied to its current value.
func (d *Draft[T]) Update(path Path, fn func(current any) any) {
	d.Set(path, fn(d.Get(path)))
}

// Append adds values to the end of the slice at path.
func (d *Draft[T]) Append(path Path, values ...any) {
	if len(values) == 0 {
		return
	}
	var start int
	var added []any
	d.write("append", path, true, func(target reflect.Value) {
		if target.Kind() != reflect.Slice {
			failf("append", path, ErrType, "%s is not a slice", target.Type())
		}
		elemType := target.Type().Elem()
		start = target.Len()
		if !d.owns(target) || target.Cap()-target.Len() < len(values) {
			dup := reflect.MakeSlice(target.Type(), start, start+len(values))
			reflect.Copy(dup, target)
			target.Set(dup)
			d.own(target)
		}
		for _, v := range values {
			rv := assignable("append", path, v, elemType)
			target.Set(reflect.Append(target, rv))
			d.release(rv)
			added = append(added, rv.Interface())
		}
	})
	for i, v := range added {
		d.record(Patch{Op: OpAdd, Path: path.Join(start + i), Value: v})
	}
}

// Splice removes deleteCount elements starting at start from the slice at
// path and inserts values in their place.
func (d *Draft[T]) Splice(path Path, start, deleteCount int, values ...any) {
	var inserted []any
	d.write("splice", path, true, func(target reflect.Value) {
		if target.Kind() != reflect.Slice {
			failf("splice", path, ErrType, "%s is not a slice", target.Type())
		}
		n := target.Len()
		if start < 0 || start > n {
			failf("splice", path.Join(start), ErrIndex, "start %d with length %d", start, n)
		}
		if deleteCount < 0 || start+deleteCount > n {
			failf("splice", path.Join(start), ErrIndex, "delete %d from %d with length %d", deleteCount, start, n)
		}
		elemType := target.Type().Elem()
		size := n - deleteCount + len(values)
		dup := reflect.MakeSlice(target.Type(), size, size)
		reflect.Copy(dup, target.Slice(0, start))
		for i, v := range values {
			rv := assignable("splice", path, v, elemType)
			dup.Index(start + i).Set(rv)
			d.release(rv)
			inserted = append(inserted, rv.Interface())
		}
		reflect.Copy(dup.Slice(start+len(values), size), target.Slice(start+deleteCount, n))
		target.Set(dup)
		d.own(target)
	})
	for i := 0; i < deleteCount; i++ {
		d.record(Patch{Op: OpRemove, Path: path.Join(start)})
	}
	for i, v := range inserted {
		d.record(Patch{Op: OpAdd, Path: path.Join(start + i), Value: v})
	}
}

// Delete removes the map key, slice element or struct field value at path.
// Struct fields are reset to their zero value.
func (d *Draft[T]) Delete(path Path) {
	if len(path) == 0 {
		fail("delete", path, ErrPath)
	}
	parent, last := path[:len(path)-1], path[len(path)-1]
	if v := deref(lookup("delete", d.root, parent)); v.Kind() == reflect.Slice {
		idx, ok := last.(int)
		if !ok {
			failf("delete", path, ErrPath, "slice index must be int, got %T", last)
		}
		d.Splice(parent, idx, 1)
		return
	}

	d.write("delete", parent, true, func(target reflect.Value) {
		switch target.Kind() {
		case reflect.Map:
			if target.IsNil() {
				return
			}
			key := mapKey("delete", path, target.Type().Key(), last)
			if !d.owns(target) {
				target.Set(cloneMap(target))
				d.own(target)
			}
			target.SetMapIndex(key, reflect.Value{})
		case reflect.Struct:
			f := d.writableField("delete", target, path, len(path)-1)
			if !f.CanSet() {
				fail("delete", path, ErrUnexported)
			}
			f.Set(reflect.Zero(f.Type()))
		default:
			failf("delete", path, ErrPath, "cannot delete from %s", target.Type())
		}
	})
	d.record(Patch{Op: OpRemove, Path: path})
}

func (d *Draft[T]) record(p Patch) {
	p.Path = append(Path{}, p.Path...)
	d.patches = append(d.patches, p)
}

// write walks path from the root, copying shared containers on the way, and
// calls fn with the addressable target. With derefLeaf the walk continues
// through pointers and interfaces at the end of the path so fn receives the
// container itself.
func (d *Draft[T]) write(op string, path Path, derefLeaf bool, fn func(target reflect.Value)) {
	d.writeAt(op, d.root, path, 0, derefLeaf, fn)
}

func (d *Draft[T]) writeAt(op string, v reflect.Value, path Path, i int, derefLeaf bool, fn func(reflect.Value)) {
	kind := v.Kind()
	if i == len(path) && (!derefLeaf || (kind != reflect.Pointer && kind != reflect.Interface)) {
		fn(v)
		return
	}

	switch kind {
	case reflect.Pointer:
		switch {
		case v.IsNil():
			v.Set(reflect.New(v.Type().Elem()))
			d.own(v)
		case !d.owns(v):
			dup := reflect.New(v.Type().Elem())
			dup.Elem().Set(v.Elem())
			v.Set(dup)
			d.own(v)
		}
		d.writeAt(op, v.Elem(), path, i, derefLeaf, fn)

	case reflect.Interface:
		if v.IsNil() {
			failf(op, path[:i], ErrPath, "nil interface")
		}
		inner := reflect.New(v.Elem().Type()).Elem()
		inner.Set(v.Elem())
		d.writeAt(op, inner, path, i, derefLeaf, fn)
		v.Set(inner)

	case reflect.Struct:
		f := d.writableField(op, v, path, i)
		d.writeAt(op, f, path, i+1, derefLeaf, fn)

	case reflect.Slice:
		idx := index(op, v, path, i)
		if !d.owns(v) {
			v.Set(cloneSlice(v))
			d.own(v)
		}
		d.writeAt(op, v.Index(idx), path, i+1, derefLeaf, fn)

	case reflect.Array:
		idx := index(op, v, path, i)
		d.writeAt(op, v.Index(idx), path, i+1, derefLeaf, fn)

	case reflect.Map:
		key := mapKey(op, path[:i+1], v.Type().Key(), path[i])
		switch {
		case v.IsNil():
			v.Set(reflect.MakeMap(v.Type()))
			d.own(v)
		case !d.owns(v):
			v.Set(cloneMap(v))
			d.own(v)
		}
		elem := reflect.New(v.Type().Elem()).Elem()
		if cur := v.MapIndex(key); cur.IsValid() {
			elem.Set(cur)
		}
		d.writeAt(op, elem, path, i+1, derefLeaf, fn)
		v.SetMapIndex(key, elem)

	default:
		failf(op, path[:i+1], ErrPath, "cannot descend into %s", v.Type())
	}
}

// writableField resolves a struct field for writing. Promoted fields reached
// through embedded pointers copy those pointers first.
func (d *Draft[T]) writableField(op string, v reflect.Value, path Path, i int) reflect.Value {
	sf := structField(op, v.Type(), path, i)
	for n, ix := range sf.Index {
		if n > 0 && v.Kind() == reflect.Pointer {
			switch {
			case v.IsNil():
				v.Set(reflect.New(v.Type().Elem()))
				d.own(v)
			case !d.owns(v):
				dup := reflect.New(v.Type().Elem())
				dup.Elem().Set(v.Elem())
				v.Set(dup)
				d.own(v)
			}
			v = v.Elem()
		}
		v = v.Field(ix)
	}
	return v
}

func (d *Draft[T]) owns(v reflect.Value) bool {
	key, ok := identity(v)
	if !ok {
		return false
	}
	_, owned := d.owned[key]
	return owned
}

func (d *Draft[T]) own(v reflect.Value) {
	// Holding the container keeps its address from being reused while the
	// draft is alive.
	if key, ok := identity(v); ok {
		d.owned[key] = v.Interface()
	}
}

// release drops ownership of every owned container reachable from v. Once a
// value is stored it may share containers with the location it was read
// from, so the next write through either location copies again. Patch values
// stay immutable for the same reason.
func (d *Draft[T]) release(v reflect.Value) {
	if len(d.owned) == 0 {
		return
	}
	d.releaseAt(v, make(map[ref]bool))
}

type ref struct {
	ptr uintptr
	n   int
}

func (d *Draft[T]) releaseAt(v reflect.Value, seen map[ref]bool) {
	if !v.IsValid() || !holdsRefs(v.Type()) {
		return
	}
	if key, ok := identity(v); ok {
		r := ref{ptr: key}
		if v.Kind() == reflect.Slice {
			r.n = v.Len()
		}
		if seen[r] {
			return
		}
		seen[r] = true
		delete(d.owned, key)
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if !v.IsNil() {
			d.releaseAt(v.Elem(), seen)
		}
	case reflect.Slice, reflect.Array:
		if !holdsRefs(v.Type().Elem()) {
			return
		}
		for i := 0; i < v.Len(); i++ {
			d.releaseAt(v.Index(i), seen)
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			d.releaseAt(iter.Key(), seen)
			d.releaseAt(iter.Value(), seen)
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			d.releaseAt(v.Field(i), seen)
		}
	}
}

// holdsRefs reports whether values of t can reach a slice, map or pointer.
func holdsRefs(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map:
		return true
	case reflect.Array:
		return holdsRefs(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if holdsRefs(t.Field(i).Type) {
				return true
			}
		}
	}
	return false
}

func identity(v reflect.Value) (uintptr, bool) {
	switch v.Kind() {
	case reflect.Slice:
		if v.Cap() == 0 {
			return 0, false
		}
		return v.Pointer(), true
	case reflect.Map, reflect.Pointer:
		if v.IsNil() {
			return 0, false
		}
		return v.Pointer(), true
	}
	return 0, false
}

func lookup(op string, v reflect.Value, path Path) reflect.Value {
	for i := 0; i < len(path); {
		switch v.Kind() {
		case reflect.Pointer, reflect.Interface:
			if v.IsNil() {
				failf(op, path[:i], ErrPath, "nil %s", v.Kind())
			}
			v = v.Elem()
		case reflect.Struct:
			sf := structField(op, v.Type(), path, i)
			f, err := v.FieldByIndexErr(sf.Index)
			if err != nil {
				failf(op, path[:i+1], ErrPath, "%v", err)
			}
			v = f
			i++
		case reflect.Slice, reflect.Array:
			v = v.Index(index(op, v, path, i))
			i++
		case reflect.Map:
			key := mapKey(op, path[:i+1], v.Type().Key(), path[i])
			elem := v.MapIndex(key)
			if !elem.IsValid() {
				elem = reflect.Zero(v.Type().Elem())
			}
			v = elem
			i++
		default:
			failf(op, path[:i+1], ErrPath, "cannot descend into %s", v.Type())
		}
	}
	return v
}

func deref(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func structField(op string, t reflect.Type, path Path, i int) reflect.StructField {
	name, ok := path[i].(string)
	if !ok {
		failf(op, path[:i+1], ErrPath, "field name must be string, got %T", path[i])
	}
	sf, found := t.FieldByName(name)
	if !found {
		sf, found = t.FieldByNameFunc(func(n string) bool { return strings.EqualFold(n, name) })
	}
	if !found {
		failf(op, path[:i+1], ErrPath, "%s has no field %q", t, name)
	}
	if !sf.IsExported() {
		fail(op, path[:i+1], ErrUnexported)
	}
	return sf
}

func index(op string, v reflect.Value, path Path, i int) int {
	idx, ok := path[i].(int)
	if !ok {
		failf(op, path[:i+1], ErrPath, "index must be int, got %T", path[i])
	}
	if idx < 0 || idx >= v.Len() {
		failf(op, path[:i+1], ErrIndex, "index %d with length %d", idx, v.Len())
	}
	return idx
}

func mapKey(op string, path Path, keyType reflect.Type, raw any) reflect.Value {
	k := reflect.ValueOf(raw)
	if !k.IsValid() {
		fail(op, path, ErrPath)
	}
	if k.Type().AssignableTo(keyType) {
		return k
	}
	if k.CanConvert(keyType) && family(k.Kind()) == family(keyType.Kind()) {
		return k.Convert(keyType)
	}
	failf(op, path, ErrType, "cannot use %s as map key %s", k.Type(), keyType)
	return reflect.Value{}
}

func assignable(op string, path Path, value any, t reflect.Type) reflect.Value {
	if value == nil {
		switch t.Kind() {
		case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface, reflect.Func, reflect.Chan:
			return reflect.Zero(t)
		}
		failf(op, path, ErrType, "cannot use nil as %s", t)
	}
	rv := reflect.ValueOf(value)
	if rv.Type().AssignableTo(t) {
		if t.Kind() == reflect.Interface {
			out := reflect.New(t).Elem()
			out.Set(rv)
			return out
		}
		return rv
	}
	if rv.CanConvert(t) && family(rv.Kind()) == family(t.Kind()) {
		return rv.Convert(t)
	}
	failf(op, path, ErrType, "cannot use %s as %s", rv.Type(), t)
	return reflect.Value{}
}

// family groups kinds that convert without changing meaning.
func family(k reflect.Kind) reflect.Kind {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return reflect.Int
	case reflect.Float32, reflect.Float64:
		return reflect.Float64
	case reflect.Complex64, reflect.Complex128:
		return reflect.Complex128
	}
	return k
}

func cloneSlice(v reflect.Value) reflect.Value {
	dup := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
	reflect.Copy(dup, v)
	return dup
}

func cloneMap(v reflect.Value) reflect.Value {
	dup := reflect.MakeMapWithSize(v.Type(), v.Len())
	iter := v.MapRange()
	for iter.Next() {
		dup.SetMapIndex(iter.Key(), iter.Value())
	}
	return dup
}
