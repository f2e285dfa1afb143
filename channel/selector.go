package channel

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/five82/immersive/host"
	"github.com/five82/immersive/observability"
)

var defaultHost = sync.OnceValue(func() *host.Host { return host.New() })

// SelectOption configures a Selector.
type SelectOption func(*selectOptions)

type selectOptions struct {
	equal    any
	onChange any
	delay    time.Duration
	sched    host.Scheduler
}

// WithEqual replaces Shallow as the change test.
func WithEqual[R any](eq func(a, b R) bool) SelectOption {
	return func(o *selectOptions) { o.equal = eq }
}

// WithOnChange registers fn to receive each selection that differs from the
// previously delivered one.
func WithOnChange[R any](fn func(v R)) SelectOption {
	return func(o *selectOptions) { o.onChange = fn }
}

// WithDelay debounces re-evaluation: the projection runs once publishes have
// settled for d. Zero keeps the selector synchronous.
func WithDelay(d time.Duration) SelectOption {
	return func(o *selectOptions) {
		if d >= 0 {
			o.delay = d
		}
	}
}

// WithSelectScheduler sets the scheduler for a debounced selector, overriding
// the channel's.
func WithSelectScheduler(s host.Scheduler) SelectOption {
	return func(o *selectOptions) { o.sched = s }
}

// Selector is a subscription to a projection of a channel's snapshot.
//
// A synchronous selector (the default) projects on every publish, so Value
// always reflects the latest snapshot. A debounced selector projects only
// after publishes have settled for its delay, and Value returns the last
// value it delivered.
type Selector[T, R any] struct {
	id       uuid.UUID
	ch       *Channel[T]
	project  func(T) R
	equal    func(a, b R) bool
	onChange func(R)
	delay    time.Duration
	sched    host.Scheduler
	cancel   func()

	mu        sync.Mutex
	value     R
	version   uint64
	delivered R
	pending   host.Handle
	gen       uint64
	closed    bool
}

// Select subscribes to ch through project. Options built with WithEqual or
// WithOnChange must use the selection type R.
func Select[T, R any](ch *Channel[T], project func(T) R, opts ...SelectOption) *Selector[T, R] {
	var o selectOptions
	for _, opt := range opts {
		opt(&o)
	}
	s := &Selector[T, R]{
		ch:      ch,
		project: project,
		equal:   Shallow[R],
		delay:   o.delay,
		sched:   o.sched,
	}
	if o.equal != nil {
		eq, ok := o.equal.(func(a, b R) bool)
		if !ok {
			panic("channel: WithEqual type does not match selection type")
		}
		s.equal = eq
	}
	if o.onChange != nil {
		fn, ok := o.onChange.(func(R))
		if !ok {
			panic("channel: WithOnChange type does not match selection type")
		}
		s.onChange = fn
	}
	if s.delay > 0 && s.sched == nil {
		s.sched = ch.sched
		if s.sched == nil {
			s.sched = defaultHost()
		}
	}

	snap, version := ch.Load()
	s.value = project(snap)
	s.delivered = s.value
	s.version = version
	s.id = uuid.New()
	s.cancel = ch.subscribeAs(s.id, s.onPublish)
	if latest, v := ch.Load(); v != version {
		s.onPublish(latest, v)
	}
	return s
}

// ID identifies the selector in its channel's subscriber registry.
func (s *Selector[T, R]) ID() uuid.UUID { return s.id }

// Value returns the current selection. After Close it returns the last value
// the selector held.
func (s *Selector[T, R]) Value() R {
	s.mu.Lock()
	if s.delay > 0 || s.closed {
		defer s.mu.Unlock()
		return s.value
	}
	s.mu.Unlock()

	snap, version := s.ch.Load()
	s.mu.Lock()
	fresh := version == s.version
	s.mu.Unlock()
	if fresh {
		return s.Cached()
	}
	next := s.project(snap)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.remember(next, version)
	return s.value
}

// Cached returns the selection without re-projecting.
func (s *Selector[T, R]) Cached() R {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// remember stores next as the memoized value unless it is older than what is
// held. An equal value keeps the previous one so identity stays stable.
func (s *Selector[T, R]) remember(next R, version uint64) {
	if version <= s.version {
		return
	}
	s.version = version
	if !s.equal(next, s.value) {
		s.value = next
	}
}

// Close unsubscribes and cancels a pending debounced evaluation.
func (s *Selector[T, R]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.pending != nil {
		s.pending.Cancel()
		s.pending = nil
	}
	s.mu.Unlock()
	s.cancel()
}

func (s *Selector[T, R]) onPublish(snap T, version uint64) {
	if s.delay > 0 {
		s.schedule()
		return
	}

	next := s.project(snap)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.remember(next, version)
	changed := !s.equal(next, s.delivered)
	if changed {
		s.delivered = next
	}
	s.mu.Unlock()

	if changed {
		s.notify(next, version)
	}
}

func (s *Selector[T, R]) schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.pending != nil {
		s.pending.Cancel()
	}
	s.gen++
	gen := s.gen
	s.pending = s.sched.AfterFunc(s.delay, func() { s.settle(gen) })
}

// settle runs the debounced evaluation against the latest snapshot.
func (s *Selector[T, R]) settle(gen uint64) {
	snap, version := s.ch.Load()
	next := s.project(snap)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if gen == s.gen {
		s.pending = nil
	}
	s.version = version
	changed := !s.equal(next, s.delivered)
	if changed {
		s.delivered = next
		s.value = next
	}
	s.mu.Unlock()

	if changed {
		s.notify(next, version)
	}
}

func (s *Selector[T, R]) notify(next R, version uint64) {
	observability.Emit(s.ch.obs, observability.EventSelectorDeliver, observability.LevelVerbose, s.ch.name, map[string]any{
		"id":      s.id.String(),
		"version": version,
	})
	if s.onChange != nil {
		s.onChange(next)
	}
}
