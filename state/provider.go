package state

import (
	"sync"

	"github.com/five82/immersive/channel"
	"github.com/five82/immersive/draft"
	"github.com/five82/immersive/host"
	"github.com/five82/immersive/observability"
)

// Provider owns the global snapshot of one mounted Context.
type Provider[T, A any] struct {
	ctx   *Context[T, A]
	ch    *channel.Channel[T]
	sched host.Scheduler
	own   *host.Host
	obs   observability.Observer
	name  string

	actions binding[T, A]

	mu        sync.Mutex
	selectors []closer
	locals    []*Local[T, A]
	closed    bool
}

func newProvider[T, A any](c *Context[T, A]) *Provider[T, A] {
	s := c.settings
	p := &Provider[T, A]{
		ctx:   c,
		sched: s.sched,
		obs:   s.observer(),
		name:  s.name,
	}
	if p.sched == nil {
		p.own = host.New(host.WithLogger(s.logger))
		p.sched = p.own
	}
	p.ch = channel.New(c.initial, p.channelOptions(s.name)...)

	observability.Emit(p.obs, observability.EventProviderMount, observability.LevelInfo, p.name, map[string]any{
		"flush_mode":   s.flushMode.String(),
		"select_delay": s.selectDelay.String(),
	})
	return p
}

func (p *Provider[T, A]) channelOptions(name string) []channel.Option {
	opts := []channel.Option{
		channel.WithName(name),
		channel.WithObserver(p.obs),
		channel.WithScheduler(p.sched),
	}
	if act, ok := p.sched.(host.Activity); ok {
		opts = append(opts, channel.WithActivity(act))
	}
	return opts
}

// Snapshot returns the current global snapshot.
func (p *Provider[T, A]) Snapshot() T { return p.ch.Snapshot() }

// Version returns the number of global snapshots published.
func (p *Provider[T, A]) Version() uint64 { return p.ch.Version() }

// Channel exposes the global channel.
func (p *Provider[T, A]) Channel() *channel.Channel[T] { return p.ch }

// Write applies mutate to the global snapshot.
func (p *Provider[T, A]) Write(mutate func(d *draft.Draft[T])) uint64 {
	return p.ch.Write(mutate)
}

// Actions returns the action set bound to the global snapshot. Every call
// returns the same set. After Close the actions do nothing.
func (p *Provider[T, A]) Actions() A {
	return p.actions.get(p.ctx.define, func(mutate func(d *draft.Draft[T])) {
		p.ch.Write(mutate)
	})
}

// Select subscribes to a projection of the global snapshot with the
// Context's select delay. Closing the Provider closes the selector.
func Select[T, A, R any](p *Provider[T, A], project func(T) R, opts ...channel.SelectOption) *channel.Selector[T, R] {
	all := make([]channel.SelectOption, 0, len(opts)+2)
	all = append(all,
		channel.WithDelay(p.ctx.settings.selectDelay),
		channel.WithSelectScheduler(p.sched),
	)
	all = append(all, opts...)
	sel := channel.Select(p.ch, project, all...)
	if !p.track(sel) {
		sel.Close()
	}
	return sel
}

// Local starts a local overlay over the global snapshot.
func (p *Provider[T, A]) Local() *Local[T, A] {
	l := newLocal(p)
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		l.Close()
		return l
	}
	p.locals = append(p.locals, l)
	p.mu.Unlock()
	return l
}

func (p *Provider[T, A]) track(c closer) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.selectors = append(p.selectors, c)
	return true
}

// Closed reports whether Close was called.
func (p *Provider[T, A]) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close unmounts the Provider. Overlays and selectors are closed, pending
// flushes are cancelled and later writes are dropped.
func (p *Provider[T, A]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	locals, selectors := p.locals, p.selectors
	p.locals, p.selectors = nil, nil
	p.mu.Unlock()

	for _, l := range locals {
		l.Close()
	}
	for _, sel := range selectors {
		sel.Close()
	}
	p.ch.Close()
	if p.own != nil {
		p.own.Close()
	}

	observability.Emit(p.obs, observability.EventProviderClose, observability.LevelInfo, p.name, map[string]any{
		"version":   p.ch.Version(),
		"overlays":  len(locals),
		"selectors": len(selectors),
	})
}
