package state

import (
	"context"
	"sync"

	"github.com/five82/immersive/channel"
	"github.com/five82/immersive/draft"
)

// Modify applies one mutation to a sink and publishes the result.
type Modify[T any] func(mutate func(d *draft.Draft[T]))

// ActionsFactory builds the action set of a Context around a sink. It is
// called once per sink: once for each Provider and once for each Local.
type ActionsFactory[T, A any] func(modify Modify[T]) A

// contextKey is unique per Context, so clones never see each other's
// Providers.
type contextKey struct {
	name string
}

// Context describes a piece of shared state: its initial snapshot, its
// actions and its options. It holds no state itself; Provide mounts one.
type Context[T, A any] struct {
	initial  T
	define   ActionsFactory[T, A]
	opts     []Option
	settings settings
	key      *contextKey
}

// New creates a Context.
func New[T, A any](initial T, define ActionsFactory[T, A], opts ...Option) *Context[T, A] {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return &Context[T, A]{
		initial:  initial,
		define:   define,
		opts:     opts,
		settings: s,
		key:      &contextKey{name: s.name},
	}
}

// Clone returns a Context with the same actions and options but its own
// initial snapshot. Providers of the two never interact.
func (c *Context[T, A]) Clone(initial T) *Context[T, A] {
	return New(initial, c.define, c.opts...)
}

// Initial returns the snapshot new Providers start from.
func (c *Context[T, A]) Initial() T { return c.initial }

// Name returns the Context's label.
func (c *Context[T, A]) Name() string { return c.settings.name }

// Provide mounts a Provider holding the Context's initial snapshot and
// returns a context carrying it. Close the Provider when the subtree that
// uses it goes away.
func (c *Context[T, A]) Provide(parent context.Context) (context.Context, *Provider[T, A]) {
	p := newProvider(c)
	return context.WithValue(parent, c.key, p), p
}

// UseContext returns the Provider for c in ctx.
func (c *Context[T, A]) UseContext(ctx context.Context) *Provider[T, A] {
	return c.provider(ctx, "UseContext")
}

// UseActions returns the actions bound to the global snapshot.
func (c *Context[T, A]) UseActions(ctx context.Context) A {
	return c.provider(ctx, "UseActions").Actions()
}

// UseLocalUpdates starts a local overlay over the global snapshot.
func (c *Context[T, A]) UseLocalUpdates(ctx context.Context) *Local[T, A] {
	return c.provider(ctx, "UseLocalUpdates").Local()
}

// UseSelectState subscribes to a projection of the global snapshot. The
// selector is debounced when the Context has a select delay; opts given here
// take precedence.
func UseSelectState[T, A, R any](ctx context.Context, c *Context[T, A], project func(T) R, opts ...channel.SelectOption) *channel.Selector[T, R] {
	return Select(c.provider(ctx, "UseSelectState"), project, opts...)
}

func (c *Context[T, A]) provider(ctx context.Context, hook string) *Provider[T, A] {
	var p *Provider[T, A]
	if ctx != nil {
		p, _ = ctx.Value(c.key).(*Provider[T, A])
	}
	if p == nil {
		panic(&HookError{Hook: hook, Context: c.settings.name, Err: ErrNoProvider})
	}
	if p.Closed() {
		panic(&HookError{Hook: hook, Context: c.settings.name, Err: ErrClosed})
	}
	return p
}

// binding memoizes an action set for one sink.
type binding[T, A any] struct {
	once    sync.Once
	actions A
}

func (b *binding[T, A]) get(define ActionsFactory[T, A], modify Modify[T]) A {
	b.once.Do(func() {
		b.actions = define(modify)
	})
	return b.actions
}

type closer interface {
	Close()
}
