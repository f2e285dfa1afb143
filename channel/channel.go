package channel

import (
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/five82/immersive/draft"
	"github.com/five82/immersive/host"
	"github.com/five82/immersive/observability"
)

// Listener receives every published snapshot with its version.
type Listener[T any] func(snapshot T, version uint64)

// Channel holds the current snapshot of a value and notifies subscribers
// when a new one is published.
type Channel[T any] struct {
	name     string
	obs      observability.Observer
	sched    host.Scheduler
	activity host.Activity

	// wmu serializes writers so read-modify-write never loses an update.
	wmu sync.Mutex

	mu         sync.Mutex
	snap       T
	version    uint64
	order      []uuid.UUID
	listeners  map[uuid.UUID]Listener[T]
	closed     bool
	delivering bool
	dirty      bool
}

// Option configures a Channel.
type Option func(*options)

type options struct {
	name     string
	obs      observability.Observer
	sched    host.Scheduler
	activity host.Activity
}

// WithName labels the channel in events.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithObserver sets the observer that receives channel and selector events.
func WithObserver(obs observability.Observer) Option {
	return func(o *options) { o.obs = obs }
}

// WithScheduler sets the scheduler used by debounced selectors.
func WithScheduler(s host.Scheduler) Option {
	return func(o *options) { o.sched = s }
}

// WithActivity reports every publish to a, so hosts that schedule idle work
// see state changes as activity.
func WithActivity(a host.Activity) Option {
	return func(o *options) { o.activity = a }
}

// New creates a Channel holding initial at version 0.
func New[T any](initial T, opts ...Option) *Channel[T] {
	o := options{name: "channel", obs: observability.NoOpObserver{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.obs == nil {
		o.obs = observability.NoOpObserver{}
	}
	return &Channel[T]{
		name:      o.name,
		obs:       o.obs,
		sched:     o.sched,
		activity:  o.activity,
		snap:      initial,
		listeners: make(map[uuid.UUID]Listener[T]),
	}
}

// Name returns the channel's label.
func (c *Channel[T]) Name() string { return c.name }

// Snapshot returns the current snapshot. Callers must treat it as read-only.
func (c *Channel[T]) Snapshot() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Version returns the number of snapshots published so far.
func (c *Channel[T]) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Load returns the current snapshot and its version together.
func (c *Channel[T]) Load() (T, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap, c.version
}

// Write derives the next snapshot from the current one with draft.Apply and
// publishes it. A mutation that records no change publishes nothing. Write
// returns the resulting version.
func (c *Channel[T]) Write(mutate func(d *draft.Draft[T])) uint64 {
	c.wmu.Lock()
	base, version := c.Load()
	if c.isClosed() {
		c.wmu.Unlock()
		c.dropped(version)
		return version
	}
	next, patches := applyUnlocking(&c.wmu, base, mutate)
	if len(patches) == 0 {
		c.wmu.Unlock()
		return version
	}
	version, ok := c.store(next, nil)
	c.wmu.Unlock()
	if ok {
		c.deliver(len(patches))
	}
	return version
}

// applyUnlocking runs draft.Apply and releases mu if mutate panics.
func applyUnlocking[T any](mu *sync.Mutex, base T, mutate func(d *draft.Draft[T])) (T, []draft.Patch) {
	ok := false
	defer func() {
		if !ok {
			mu.Unlock()
		}
	}()
	next, patches := draft.ApplyWithPatches(base, mutate)
	ok = true
	return next, patches
}

// Replace publishes v as the next snapshot and returns its version.
func (c *Channel[T]) Replace(v T) uint64 {
	c.wmu.Lock()
	version, ok := c.store(v, nil)
	c.wmu.Unlock()
	if ok {
		c.deliver(1)
	} else {
		c.dropped(version)
	}
	return version
}

// ReplaceIf publishes v only if the channel is still at version expected. It
// returns the current version and whether v was published.
func (c *Channel[T]) ReplaceIf(expected uint64, v T) (uint64, bool) {
	c.wmu.Lock()
	version, ok := c.store(v, &expected)
	c.wmu.Unlock()
	if ok {
		c.deliver(1)
	} else if c.isClosed() {
		c.dropped(version)
	}
	return version, ok
}

func (c *Channel[T]) store(v T, expected *uint64) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || (expected != nil && *expected != c.version) {
		return c.version, false
	}
	c.snap = v
	c.version++
	return c.version, true
}

// Subscribe registers fn for every later publish. The returned func removes
// it; calling it more than once is harmless.
func (c *Channel[T]) Subscribe(fn Listener[T]) (cancel func()) {
	return c.subscribeAs(uuid.New(), fn)
}

func (c *Channel[T]) subscribeAs(id uuid.UUID, fn Listener[T]) func() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return func() {}
	}
	c.order = append(c.order, id)
	c.listeners[id] = fn
	count := len(c.order)
	c.mu.Unlock()

	observability.Emit(c.obs, observability.EventSubscribe, observability.LevelVerbose, c.name, map[string]any{
		"id":          id.String(),
		"subscribers": count,
	})

	var once sync.Once
	return func() {
		once.Do(func() { c.unsubscribe(id) })
	}
}

func (c *Channel[T]) unsubscribe(id uuid.UUID) {
	c.mu.Lock()
	if _, ok := c.listeners[id]; !ok {
		c.mu.Unlock()
		return
	}
	delete(c.listeners, id)
	c.order = slices.DeleteFunc(c.order, func(other uuid.UUID) bool { return other == id })
	count := len(c.order)
	c.mu.Unlock()

	observability.Emit(c.obs, observability.EventUnsubscribe, observability.LevelVerbose, c.name, map[string]any{
		"id":          id.String(),
		"subscribers": count,
	})
}

// Subscribers returns the number of registered listeners.
func (c *Channel[T]) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Close removes every listener. Later writes are dropped.
func (c *Channel[T]) Close() {
	c.mu.Lock()
	c.closed = true
	c.order = nil
	clear(c.listeners)
	c.mu.Unlock()
}

// Closed reports whether Close was called.
func (c *Channel[T]) Closed() bool { return c.isClosed() }

func (c *Channel[T]) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Channel[T]) dropped(version uint64) {
	observability.Emit(c.obs, observability.EventWriteDropped, observability.LevelWarning, c.name, map[string]any{
		"version": version,
	})
}

// deliver notifies listeners of the latest snapshot. Only one delivery pass
// runs at a time; a publish that lands during a pass marks it dirty and the
// running pass goes around again with the newest snapshot.
func (c *Channel[T]) deliver(changes int) {
	if c.activity != nil {
		c.activity.Touch()
	}

	c.mu.Lock()
	version, subscribers := c.version, len(c.order)
	if c.delivering {
		c.dirty = true
		c.mu.Unlock()
		c.published(version, changes, subscribers)
		return
	}
	c.delivering = true
	c.mu.Unlock()
	c.published(version, changes, subscribers)

	finished := false
	defer func() {
		if !finished {
			// A panicking listener must not leave the channel stuck mid-pass.
			c.mu.Lock()
			c.delivering = false
			c.dirty = false
			c.mu.Unlock()
		}
	}()

	c.mu.Lock()
	for {
		c.dirty = false
		snap, version := c.snap, c.version
		ids := slices.Clone(c.order)
		c.mu.Unlock()

		for _, id := range ids {
			c.mu.Lock()
			fn, ok := c.listeners[id]
			c.mu.Unlock()
			if ok {
				fn(snap, version)
			}
		}

		c.mu.Lock()
		if !c.dirty {
			c.delivering = false
			finished = true
			c.mu.Unlock()
			return
		}
	}
}

func (c *Channel[T]) published(version uint64, changes, subscribers int) {
	observability.Emit(c.obs, observability.EventPublish, observability.LevelVerbose, c.name, map[string]any{
		"version":     version,
		"changes":     changes,
		"subscribers": subscribers,
	})
}
